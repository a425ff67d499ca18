package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/apierr"
)

// TokenQueryParam carries the access token on stream connections.
const TokenQueryParam = "token"

// Rejection messages returned by the gate.
const (
	MsgInvalidAuthorization = "Invalid authorization"
	MsgInvalidScheme        = "Invalid authentication scheme"
	MsgInvalidToken         = "Invalid or expired token"
)

var (
	errMissingAuthorization = apierr.ServiceStatus(http.StatusForbidden, MsgInvalidAuthorization)
	errInvalidScheme        = apierr.ServiceStatus(http.StatusForbidden, MsgInvalidScheme)
	errInvalidToken         = apierr.ServiceStatus(http.StatusForbidden, MsgInvalidToken)
)

// Verifier checks a token of one kind and returns its subject.
type Verifier interface {
	VerifyAccess(token string) (string, error)
	VerifyRefresh(token string) (string, error)
}

// Gate authenticates inbound requests and stream connections. It only
// produces principals; sessions are handled by the login flow.
type Gate struct {
	verifier Verifier
}

// NewGate creates a gate backed by verifier.
func NewGate(verifier Verifier) *Gate {
	return &Gate{verifier: verifier}
}

// RequireAccess returns middleware that requires a bearer access token.
func (g *Gate) RequireAccess() func(http.Handler) http.Handler {
	return g.middleware(KindAccess)
}

// RequireRefresh returns middleware that requires a bearer refresh token.
func (g *Gate) RequireRefresh() func(http.Handler) http.Handler {
	return g.middleware(KindRefresh)
}

func (g *Gate) middleware(kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extractBearerToken(r)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected request authorization")
				apierr.Write(w, r, err)
				return
			}

			principal, err := g.authenticate(tokenString, kind)
			if err != nil {
				log.Debug().Str("path", r.URL.Path).Str("kind", kind).Msg("Rejected bearer token")
				apierr.Write(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Connection authenticates a stream connection from the token query
// parameter. Handshakes from browsers cannot set arbitrary headers, so the
// header is not consulted.
func (g *Gate) Connection(r *http.Request) (*Principal, error) {
	tokenString := r.URL.Query().Get(TokenQueryParam)
	if tokenString == "" {
		return nil, errMissingAuthorization
	}
	return g.authenticate(tokenString, KindAccess)
}

func (g *Gate) authenticate(tokenString, kind string) (*Principal, error) {
	var (
		subject string
		err     error
	)
	switch kind {
	case KindAccess:
		subject, err = g.verifier.VerifyAccess(tokenString)
	case KindRefresh:
		subject, err = g.verifier.VerifyRefresh(tokenString)
	default:
		err = ErrInvalidToken
	}
	if err != nil {
		return nil, errInvalidToken
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, errInvalidToken
	}

	return &Principal{UserID: userID, Kind: kind, Token: tokenString}, nil
}

// extractBearerToken extracts the token from the Authorization header.
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingAuthorization
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" {
		return "", errInvalidScheme
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingAuthorization
	}

	return token, nil
}
