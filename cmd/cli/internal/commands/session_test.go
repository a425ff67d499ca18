package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/cmd/cli/internal/credentials"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/login"
)

func tokenExpiring(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return token
}

func setupProfile(t *testing.T, serverURL, access string) ProfileFlags {
	t.Helper()
	dir := t.TempDir()
	store, err := credentials.NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(credentials.Credential{
		Name:         "default",
		ServerURL:    serverURL,
		Username:     "alice",
		AccessToken:  access,
		RefreshToken: "refresh-1",
	}))
	return ProfileFlags{CredentialsDir: dir, Timeout: 5 * time.Second}
}

func TestAccessTokenFresh(t *testing.T) {
	fresh := tokenExpiring(t, time.Now().Add(time.Hour))
	flags := setupProfile(t, "http://127.0.0.1:1", fresh)

	sess, err := flags.open()
	require.NoError(t, err)

	token, err := sess.accessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, token)
}

func TestAccessTokenRefreshesWhenExpiring(t *testing.T) {
	renewed := tokenExpiring(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))
		apierr.WriteJSON(w, http.StatusOK, login.TokenPair{AccessToken: renewed, RefreshToken: "refresh-2", TokenType: login.TokenType})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	flags := setupProfile(t, ts.URL, tokenExpiring(t, time.Now().Add(10*time.Second)))

	sess, err := flags.open()
	require.NoError(t, err)

	token, err := sess.accessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, renewed, token)

	// the rotated pair is persisted
	reopened, err := flags.open()
	require.NoError(t, err)
	require.Equal(t, "refresh-2", reopened.cred.RefreshToken)
}

func TestAccessTokenRejectedRefreshClearsProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, http.StatusForbidden, apierr.MessageBody{Msg: login.MsgTokenNotValid})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	flags := setupProfile(t, ts.URL, "not-a-jwt")

	sess, err := flags.open()
	require.NoError(t, err)

	_, err = sess.accessToken(context.Background())
	require.Error(t, err)

	reopened, err := flags.open()
	require.NoError(t, err)
	require.False(t, reopened.cred.LoggedIn())

	_, err = reopened.accessToken(context.Background())
	require.ErrorIs(t, err, credentials.ErrNotLoggedIn)
}

func TestOpenWithoutProfile(t *testing.T) {
	flags := ProfileFlags{CredentialsDir: t.TempDir()}
	_, err := flags.open()
	require.ErrorIs(t, err, credentials.ErrNoDefaultCredential)
}
