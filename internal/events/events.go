// Package events publishes job outcomes to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// DefaultResultsTopic is the topic result events are written to.
const DefaultResultsTopic = "tsrunner.results"

// ResultEvent announces a persisted job result. It carries no metrics or
// series; consumers fetch the detail through the API.
type ResultEvent struct {
	ResultID  uuid.UUID `json:"result_id"`
	UserID    uuid.UUID `json:"user_id"`
	Pipeline  string    `json:"pipeline"`
	Algorithm string    `json:"algorithm,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewResultEvent builds the event for a persisted result.
func NewResultEvent(result *models.Result) *ResultEvent {
	return &ResultEvent{
		ResultID:  result.ResultID,
		UserID:    result.UserID,
		Pipeline:  result.Pipeline,
		Algorithm: result.Algorithm,
		Status:    result.Status,
		Message:   result.Message,
		CreatedAt: result.CreatedAt,
	}
}

// Publisher publishes result events.
type Publisher interface {
	PublishResult(ctx context.Context, result *models.Result) error
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// PublishResult implements Publisher.
func (Discard) PublishResult(context.Context, *models.Result) error { return nil }

func encode(result *models.Result) (key, value []byte, err error) {
	value, err = json.Marshal(NewResultEvent(result))
	if err != nil {
		return nil, nil, err
	}
	// keyed by user so a user's events stay ordered within a partition
	return []byte(result.UserID.String()), value, nil
}
