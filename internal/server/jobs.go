package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/engine"
	"github.com/wolfeidau/tsrunner/internal/pipeline"
	"github.com/wolfeidau/tsrunner/internal/store"
)

// submitJob runs a job and answers with its terminal frame. Progress is
// discarded in this mode.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	kind, err := pipelineOf(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}
	principal := auth.PrincipalFromContext(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierr.Write(w, r, apierr.ServiceStatus(http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		apierr.Write(w, r, apierr.Service("failed to read request body"))
		return
	}

	// a client that hangs up does not stop the job, its result is still written
	result, err := s.runner.Run(context.WithoutCancel(r.Context()), principal.UserID, kind, payload, nil)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, resultFrame(kind, result))
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	kind, err := pipelineOf(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}
	principal := auth.PrincipalFromContext(r.Context())

	results, err := s.results.ListByUser(r.Context(), principal.UserID, string(kind))
	if err != nil {
		apierr.Write(w, r, apierr.Unexpected(fmt.Errorf("failed to list results: %w", err)))
		return
	}

	body := ListBody[ResultSummary]{Data: make([]ResultSummary, 0, len(results))}
	for _, result := range results {
		body.Data = append(body.Data, newResultSummary(result))
	}
	apierr.WriteJSON(w, http.StatusOK, body)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	kind, err := pipelineOf(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}
	principal := auth.PrincipalFromContext(r.Context())

	resultID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apierr.Write(w, r, errNotFound)
		return
	}

	result, err := s.results.Get(r.Context(), principal.UserID, resultID)
	switch {
	case errors.Is(err, store.ErrResultNotFound):
		apierr.Write(w, r, errNotFound)
		return
	case err != nil:
		apierr.Write(w, r, apierr.Unexpected(fmt.Errorf("failed to get result: %w", err)))
		return
	}
	if result.Pipeline != string(kind) {
		apierr.Write(w, r, errNotFound)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, newResultDetail(result))
}

// listAlgorithms serves the algorithm catalogue. It only changes with a
// release, so clients may cache it.
func (s *Server) listAlgorithms(w http.ResponseWriter, r *http.Request) {
	kind, err := pipelineOf(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	var body AlgorithmsBody
	switch kind {
	case pipeline.KindForecast:
		body.Data = algorithmViews(engine.ForecastAlgorithms(), engine.ForecastAlgorithm)
	case pipeline.KindAnomaly:
		body.Data = algorithmViews(engine.AnomalyAlgorithms(), engine.AnomalyAlgorithm)
		body.ThresholdClasses = algorithmViews(engine.ThresholdClasses(), engine.ThresholdClass)
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(algorithmsCacheMaxAge.Seconds())))
	apierr.WriteJSON(w, http.StatusOK, body)
}
