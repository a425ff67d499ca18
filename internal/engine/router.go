package engine

import (
	"context"
	"fmt"
)

// Router sends algorithms the builtin engine implements to it and everything
// else to the remote engine, when one is configured.
type Router struct {
	builtin *Builtin
	remote  Engine
}

// NewRouter creates a router. remote may be nil.
func NewRouter(builtin *Builtin, remote Engine) *Router {
	return &Router{builtin: builtin, remote: remote}
}

// Forecast implements Engine.
func (r *Router) Forecast(ctx context.Context, req *ForecastRequest, progress Progress) (*ForecastOutput, error) {
	if r.builtin.SupportsForecast(req.Algorithm) {
		return r.builtin.Forecast(ctx, req, progress)
	}
	if r.remote == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, req.Algorithm)
	}
	return r.remote.Forecast(ctx, req, progress)
}

// DetectAnomalies implements Engine.
func (r *Router) DetectAnomalies(ctx context.Context, req *AnomalyRequest, progress Progress) (*AnomalyOutput, error) {
	if r.builtin.SupportsAnomaly(req.Algorithm) {
		return r.builtin.DetectAnomalies(ctx, req, progress)
	}
	if r.remote == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, req.Algorithm)
	}
	return r.remote.DetectAnomalies(ctx, req, progress)
}
