package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// Event is one item of a job stream: a progress stage, or the terminal
// result or error.
type Event struct {
	Stage  *Stage
	Result *models.Result
	Err    error
}

// Terminal reports whether this is the last event of the stream.
func (e Event) Terminal() bool {
	return e.Stage == nil
}

// Stream runs a job in its own goroutine and delivers its events in order:
// zero or more progress stages, then exactly one terminal event, then the
// channel is closed.
//
// Cancelling ctx stops delivery but not the job, which runs detached and
// still persists its result. The channel is buffered for every event a run
// can produce, so the job never waits on a slow reader.
func (r *Runner) Stream(ctx context.Context, userID uuid.UUID, kind Kind, payload []byte) <-chan Event {
	events := make(chan Event, len(stageTables[kind])+1)

	send := func(ev Event) {
		if ctx.Err() != nil {
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)

		result, err := r.Run(context.WithoutCancel(ctx), userID, kind, payload, func(s Stage) {
			send(Event{Stage: &s})
		})
		if err != nil {
			send(Event{Err: err})
			return
		}
		send(Event{Result: result})
	}()

	return events
}
