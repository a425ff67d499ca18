// Package client is a Go client for the tsrunner HTTP and stream API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/login"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/server"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	CacheDir  string // algorithm catalogue cache, in memory when empty

	// DeviceFingerprint is sent on every request so the server can tell
	// which session is this one.
	DeviceFingerprint string
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8000",
		Timeout:   5 * time.Minute,
	}
}

// Error is a non 2xx API response.
type Error struct {
	Status int
	Msg    string
	Detail []apierr.Detail
}

func (e *Error) Error() string {
	if len(e.Detail) > 0 {
		msgs := make([]string, 0, len(e.Detail))
		for _, d := range e.Detail {
			msgs = append(msgs, d.Msg)
		}
		return fmt.Sprintf("%d: %s", e.Status, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Msg)
}

// StreamResult is the outcome of a streamed job.
type StreamResult struct {
	Final     *server.Frame // last frame received, nil if none arrived
	CloseCode int
}

// Client calls the tsrunner API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	cached  *http.Client
	dialer  *websocket.Dialer
	device  string
}

// New creates a client for cfg.ServerURL.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}

	cached := NewCachingHTTPClient(cfg.CacheDir)
	cached.Timeout = cfg.Timeout

	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: tracedTransport()},
		cached:  cached,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 30 * time.Second,
		},
		device: cfg.DeviceFingerprint,
	}, nil
}

// Login exchanges a username and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password, fingerprint string) (*login.TokenPair, error) {
	body := login.LoginRequest{Username: username, Password: password, DeviceFingerprint: fingerprint}

	var pair login.TokenPair
	if err := c.do(ctx, c.http, http.MethodPost, "/auth/login", "", body, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Refresh rotates a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken, fingerprint string) (*login.TokenPair, error) {
	var pair login.TokenPair
	err := c.do(ctx, c.http, http.MethodPost, "/auth/refresh", refreshToken, login.DeviceRequest{DeviceFingerprint: fingerprint}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout ends the session of this device.
func (c *Client) Logout(ctx context.Context, accessToken, fingerprint string) error {
	return c.do(ctx, c.http, http.MethodPost, "/auth/logout", accessToken, login.DeviceRequest{DeviceFingerprint: fingerprint}, nil)
}

// Sessions lists the sessions of the caller across devices.
func (c *Client) Sessions(ctx context.Context, accessToken string) ([]login.SessionView, error) {
	var body login.SessionsBody
	if err := c.do(ctx, c.http, http.MethodGet, "/auth/sessions", accessToken, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Results lists the caller's results for a pipeline, newest first.
func (c *Client) Results(ctx context.Context, accessToken, pipeline string) ([]server.ResultSummary, error) {
	var body server.ListBody[server.ResultSummary]
	if err := c.do(ctx, c.http, http.MethodGet, "/jobs/"+url.PathEscape(pipeline), accessToken, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Result fetches one result with its series.
func (c *Client) Result(ctx context.Context, accessToken, pipeline, id string) (*server.ResultDetail, error) {
	var detail server.ResultDetail
	path := "/jobs/" + url.PathEscape(pipeline) + "/" + url.PathEscape(id)
	if err := c.do(ctx, c.http, http.MethodGet, path, accessToken, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Algorithms returns the algorithm catalogue of a pipeline. Responses are
// cached for as long as the server allows.
func (c *Client) Algorithms(ctx context.Context, pipeline string) (*server.AlgorithmsBody, error) {
	var body server.AlgorithmsBody
	if err := c.do(ctx, c.cached, http.MethodGet, "/algorithms/"+url.PathEscape(pipeline), "", nil, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Stream submits payload on the job stream and calls onFrame for every frame
// until the server closes the connection.
func (c *Client) Stream(ctx context.Context, accessToken, pipeline string, payload json.RawMessage, onFrame func(*server.Frame)) (*StreamResult, error) {
	u := *c.baseURL
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path += "/ws/jobs/" + url.PathEscape(pipeline)
	u.RawQuery = url.Values{auth.TokenQueryParam: {accessToken}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("failed to send job: %w", err)
	}

	result := &StreamResult{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				result.CloseCode = closeErr.Code
				return result, nil
			}
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, fmt.Errorf("stream read failed: %w", err)
		}

		var frame server.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return result, fmt.Errorf("invalid frame: %w", err)
		}

		log.Debug().Str("status", frame.Status).Msg("Received frame")

		result.Final = &frame
		if onFrame != nil {
			onFrame(&frame)
		}
	}
}

// Succeeded reports whether the stream ended with a successful result.
func (r *StreamResult) Succeeded() bool {
	return r.CloseCode == websocket.CloseNormalClosure && r.Final != nil && r.Final.Status == models.StatusSuccess
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.device != "" {
		req.Header.Set(login.DeviceHeader, c.device)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// the cache only stores a response once its body hits EOF
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}

	var body struct {
		Msg    string          `json:"msg"`
		Detail []apierr.Detail `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		if body.Msg != "" {
			apiErr.Msg = body.Msg
		}
		apiErr.Detail = body.Detail
	}

	return apiErr
}
