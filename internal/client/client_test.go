package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/login"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/pipeline"
	"github.com/wolfeidau/tsrunner/internal/server"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.ServerURL = ts.URL
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{ServerURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req login.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret123" {
			apierr.WriteJSON(w, http.StatusUnauthorized, apierr.MessageBody{Msg: login.MsgBadCredentials})
			return
		}
		require.Equal(t, "device-1", req.DeviceFingerprint)
		apierr.WriteJSON(w, http.StatusOK, login.TokenPair{AccessToken: "a", RefreshToken: "r", TokenType: login.TokenType})
	})
	c := newTestClient(t, mux)

	pair, err := c.Login(context.Background(), "alice", "secret123", "device-1")
	require.NoError(t, err)
	require.Equal(t, "a", pair.AccessToken)
	require.Equal(t, "r", pair.RefreshToken)

	_, err = c.Login(context.Background(), "alice", "wrongpw", "device-1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, login.MsgBadCredentials, apiErr.Msg)
}

func TestRefreshSendsBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer old-refresh", r.Header.Get("Authorization"))
		apierr.WriteJSON(w, http.StatusOK, login.TokenPair{AccessToken: "a2", RefreshToken: "r2", TokenType: login.TokenType})
	})
	c := newTestClient(t, mux)

	pair, err := c.Refresh(context.Background(), "old-refresh", "device-1")
	require.NoError(t, err)
	require.Equal(t, "r2", pair.RefreshToken)
}

func TestSessionsSendsDeviceHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "device-1", r.Header.Get(login.DeviceHeader))
		apierr.WriteJSON(w, http.StatusOK, login.SessionsBody{Data: []login.SessionView{{DeviceKey: login.DeviceKey("device-1"), Current: true}}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	c, err := New(Config{ServerURL: ts.URL, DeviceFingerprint: "device-1"})
	require.NoError(t, err)

	sessions, err := c.Sessions(context.Background(), "access")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)
}

func TestValidationErrorDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/forecast", func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, http.StatusUnprocessableEntity, apierr.DetailBody{Detail: []apierr.Detail{{Msg: "bad field"}}})
	})
	c := newTestClient(t, mux)

	_, err := c.Results(context.Background(), "token", "forecast")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Len(t, apiErr.Detail, 1)
	require.Contains(t, apiErr.Error(), "bad field")
}

func TestAlgorithmsAreCached(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /algorithms/forecast", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		apierr.WriteJSON(w, http.StatusOK, server.AlgorithmsBody{Data: []server.AlgorithmView{{Name: "DefaultForecaster"}}})
	})
	c := newTestClient(t, mux)

	for range 3 {
		body, err := c.Algorithms(context.Background(), "forecast")
		require.NoError(t, err)
		require.Equal(t, "DefaultForecaster", body.Data[0].Name)
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/jobs/anomaly", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		require.JSONEq(t, `{"algorithm":"ZMS"}`, string(payload))

		stage := pipeline.Stage{Name: "load", Label: "Загрузка", Percent: 10}
		require.NoError(t, conn.WriteJSON(server.Frame{Status: models.StatusInProcess, Progress: &stage}))
		final := pipeline.Stage{Name: "done", Label: "Готово", Percent: 100}
		require.NoError(t, conn.WriteJSON(server.Frame{Status: models.StatusSuccess, Progress: &final}))

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	})
	c := newTestClient(t, mux)

	var frames []*server.Frame
	result, err := c.Stream(context.Background(), "tok", "anomaly", json.RawMessage(`{"algorithm":"ZMS"}`), func(f *server.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, 10, frames[0].Progress.Percent)
	require.Equal(t, websocket.CloseNormalClosure, result.CloseCode)
	require.True(t, result.Succeeded())
}

func TestStreamHandshakeRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/jobs/bogus", func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, http.StatusNotFound, apierr.MessageBody{Msg: "Объект не найден"})
	})
	c := newTestClient(t, mux)

	_, err := c.Stream(context.Background(), "tok", "bogus", json.RawMessage(`{}`), nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "Объект не найден", apiErr.Msg)
}
