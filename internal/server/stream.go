package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/pipeline"
	"github.com/wolfeidau/tsrunner/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// streamConn is the write side of one job stream. Frames are written from a
// single goroutine; close may race with nothing but itself and runs once.
type streamConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	metrics      *telemetry.Metrics
	attrs        metric.MeasurementOption

	closeOnce sync.Once
	broken    bool
}

// send writes f as one text message. A frame that cannot be encoded is
// replaced by an unexpected error frame and the stream is closed with 4005;
// only a failed socket write marks the connection broken.
func (c *streamConn) send(ctx context.Context, f *Frame) bool {
	if c.broken {
		c.metrics.StreamDroppedTotal.Add(ctx, 1, c.attrs)
		return false
	}

	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("status", f.Status).Msg("Failed to encode stream frame")
		c.metrics.StreamDroppedTotal.Add(ctx, 1, c.attrs)
		fault, _ := json.Marshal(errorFrame(f.Progress, apierr.Unexpected(err)))
		if c.write(ctx, fault) {
			c.close(apierr.CloseServerFault, "")
		}
		return false
	}

	return c.write(ctx, data)
}

func (c *streamConn) write(ctx context.Context, data []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Msg("Stream write failed, dropping remaining frames")
		c.broken = true
		c.metrics.StreamDroppedTotal.Add(ctx, 1, c.attrs)
		return false
	}

	c.metrics.StreamFramesTotal.Add(ctx, 1, c.attrs)
	return true
}

// close sends the close frame with code and releases the connection. Only
// the first call has any effect.
func (c *streamConn) close(code int, text string) {
	c.closeOnce.Do(func() {
		if !c.broken {
			msg := websocket.FormatCloseMessage(code, text)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		}
		_ = c.conn.Close()
	})
}

// stream runs one job over a websocket. The connection is authenticated
// from its token query parameter after the upgrade so a rejection can be
// reported as a frame; the first text message is the job payload.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	kind, err := pipelineOf(r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	principal, authErr := s.gate.Connection(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered the request
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.maxPayload)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sc := &streamConn{
		conn:         conn,
		writeTimeout: s.writeTimeout,
		metrics:      s.metrics,
		attrs:        metric.WithAttributes(telemetry.AttrPipeline.String(string(kind))),
	}
	defer sc.close(apierr.CloseServerFault, "")

	if authErr != nil {
		s.metrics.StreamRejectedTotal.Add(ctx, 1, sc.attrs)
		sc.send(ctx, errorFrame(nil, authErr))
		sc.close(apierr.ClosePolicyViolation, apierr.From(authErr).Message)
		return
	}

	s.metrics.ActiveStreams.Add(ctx, 1, sc.attrs)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1, sc.attrs)

	_ = conn.SetReadDeadline(time.Now().Add(s.firstMessageTimeout))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Msg("Stream closed before a payload arrived")
		sc.broken = true
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if msgType != websocket.TextMessage {
		err := apierr.Validation(apierr.Detail{Loc: []string{"body"}, Msg: "payload must be a text message", Type: "json_invalid"})
		sc.send(ctx, errorFrame(nil, err))
		sc.close(apierr.CloseError, "")
		return
	}

	// the reader only watches for the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	events := s.runner.Stream(ctx, principal.UserID, kind, payload)

	var last *pipeline.Stage
	for {
		select {
		case <-ctx.Done():
			// client gone, the job carries on and persists its result
			sc.broken = true
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch {
			case !ev.Terminal():
				last = ev.Stage
				if !sc.send(ctx, progressFrame(*ev.Stage)) {
					return
				}
			case ev.Err != nil:
				sc.send(ctx, errorFrame(last, ev.Err))
				sc.close(apierr.From(ev.Err).CloseCode(), "")
			default:
				sc.send(ctx, resultFrame(kind, ev.Result))
				sc.close(apierr.CloseNormal, "")
			}
		}
	}
}
