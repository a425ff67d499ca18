package login

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/auth"
)

type httpEnv struct {
	*testEnv
	mux *http.ServeMux
}

func newHTTPEnv(t *testing.T, limiter *Limiter) *httpEnv {
	t.Helper()
	env := newTestEnv(t)
	mux := http.NewServeMux()
	NewHandlers(env.svc, limiter, nil).Register(mux, auth.NewGate(env.tokens))
	return &httpEnv{testEnv: env, mux: mux}
}

type call struct {
	method    string
	path      string
	bearer    string
	userAgent string
	body      any
}

func (e *httpEnv) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}

	method := c.method
	if method == "" {
		method = http.MethodPost
	}

	req := httptest.NewRequest(method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func (e *httpEnv) login(t *testing.T, userAgent string) (access, refresh string) {
	t.Helper()
	rec, out := e.do(t, call{
		path:      "/auth/login",
		userAgent: userAgent,
		body:      map[string]string{"username": "alice", "password": testPassword},
	})
	require.Equal(t, http.StatusOK, rec.Code, out)
	require.Equal(t, "bearer", out["token_type"])
	return out["access_token"].(string), out["refresh_token"].(string)
}

func TestLoginHandler(t *testing.T) {
	env := newHTTPEnv(t, nil)

	t.Run("success", func(t *testing.T) {
		access, refresh := env.login(t, "Mozilla/5.0")
		require.NotEmpty(t, access)
		require.NotEmpty(t, refresh)
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec, out := env.do(t, call{
			path:      "/auth/login",
			userAgent: "curl/8.0",
			body:      map[string]string{"username": "alice", "password": "wrongpw"},
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, map[string]any{"msg": MsgBadCredentials}, out)
	})

	t.Run("validation", func(t *testing.T) {
		rec, out := env.do(t, call{
			path: "/auth/login",
			body: map[string]string{"username": "al"},
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		detail := out["detail"].([]any)
		require.Len(t, detail, 2)
		first := detail[0].(map[string]any)
		require.Equal(t, []any{"body", "username"}, first["loc"])
		require.Equal(t, "min", first["type"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"username":`))
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRefreshHandler(t *testing.T) {
	env := newHTTPEnv(t, nil)
	access, refresh := env.login(t, "Mozilla/5.0")

	rec, out := env.do(t, call{path: "/auth/refresh", bearer: refresh, userAgent: "Mozilla/5.0"})
	require.Equal(t, http.StatusOK, rec.Code, out)
	require.NotEqual(t, refresh, out["refresh_token"])

	t.Run("rotated token is rejected", func(t *testing.T) {
		rec, out := env.do(t, call{path: "/auth/refresh", bearer: refresh, userAgent: "Mozilla/5.0"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, map[string]any{"msg": MsgTokenNotValid}, out)
	})

	t.Run("access token is rejected by the gate", func(t *testing.T) {
		rec, out := env.do(t, call{path: "/auth/refresh", bearer: access, userAgent: "Mozilla/5.0"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, map[string]any{"msg": auth.MsgInvalidToken}, out)
	})

	t.Run("missing authorization", func(t *testing.T) {
		rec, out := env.do(t, call{path: "/auth/refresh", userAgent: "Mozilla/5.0"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, map[string]any{"msg": auth.MsgInvalidAuthorization}, out)
	})
}

func TestRefreshHandlerDeviceFingerprint(t *testing.T) {
	env := newHTTPEnv(t, nil)

	rec, out := env.do(t, call{
		path:      "/auth/login",
		userAgent: "Mozilla/5.0",
		body:      map[string]string{"username": "alice", "password": testPassword, "device_fingerprint": "laptop"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	refresh := out["refresh_token"].(string)

	// the user agent differs, the session belongs to "laptop"
	rec, _ = env.do(t, call{path: "/auth/refresh", bearer: refresh, userAgent: "Mozilla/5.0"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, call{path: "/auth/refresh", bearer: refresh, userAgent: "laptop"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutHandler(t *testing.T) {
	env := newHTTPEnv(t, nil)
	access, refresh := env.login(t, "Mozilla/5.0")

	rec, out := env.do(t, call{path: "/auth/logout", bearer: refresh, userAgent: "Mozilla/5.0"})
	require.Equal(t, http.StatusForbidden, rec.Code, "logout needs an access token")
	require.Equal(t, map[string]any{"msg": auth.MsgInvalidToken}, out)

	rec, out = env.do(t, call{path: "/auth/logout", bearer: access, userAgent: "Mozilla/5.0"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"msg": "ok"}, out)

	rec, _ = env.do(t, call{path: "/auth/refresh", bearer: refresh, userAgent: "Mozilla/5.0"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionsHandler(t *testing.T) {
	env := newHTTPEnv(t, nil)
	access, refresh := env.login(t, "laptop")
	env.login(t, "phone")

	rec, _ := env.do(t, call{method: http.MethodGet, path: "/auth/sessions", bearer: refresh})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := env.do(t, call{method: http.MethodGet, path: "/auth/sessions", bearer: access, userAgent: "laptop"})
	require.Equal(t, http.StatusOK, rec.Code)

	data := out["data"].([]any)
	require.Len(t, data, 2)

	current := 0
	for _, item := range data {
		sess := item.(map[string]any)
		require.NotContains(t, sess, "refresh_token_hash")
		if sess["current"] == true {
			current++
			require.Equal(t, "laptop", sess["device_fingerprint"])
		}
	}
	require.Equal(t, 1, current)
}

func TestLoginHandlerRateLimit(t *testing.T) {
	env := newHTTPEnv(t, NewLimiter(LimiterConfig{Rate: 0.001, Burst: 2}))

	body := map[string]string{"username": "alice", "password": "wrongpw"}
	for range 2 {
		rec, _ := env.do(t, call{path: "/auth/login", body: body})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, out := env.do(t, call{path: "/auth/login", body: body})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, map[string]any{"msg": MsgTooManyAttempts}, out)
}
