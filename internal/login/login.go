// Package login implements the password login, refresh token rotation and
// logout flow. Each device of a user holds at most one refresh session; a
// refresh replaces the stored token so any predecessor stops matching.
package login

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
	"github.com/wolfeidau/tsrunner/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// TokenType is returned alongside every token pair.
const TokenType = "bearer"

// User facing failure messages.
const (
	MsgBadCredentials  = "Неверное имя пользователя или пароль"
	MsgTokenNotValid   = "token not valid"
	MsgTooManyAttempts = "Слишком много попыток входа. Попробуйте позже."
)

var (
	// ErrBadCredentials is the uniform login failure. It never says which
	// of username or password was wrong.
	ErrBadCredentials = apierr.ServiceStatus(http.StatusUnauthorized, MsgBadCredentials)

	// ErrTokenNotValid is returned when a refresh token has no live session.
	ErrTokenNotValid = apierr.ServiceStatus(http.StatusForbidden, MsgTokenNotValid)

	// ErrTooManyAttempts is returned when a client exceeds the login rate.
	ErrTooManyAttempts = apierr.ServiceStatus(http.StatusTooManyRequests, MsgTooManyAttempts)
)

// DeviceKey derives the session key of a device from its fingerprint.
func DeviceKey(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return base58.Encode(sum[:])
}

// TokenPair is the response of login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Device identifies the client a session belongs to.
type Device struct {
	Fingerprint string
	IPAddress   string
}

// Service runs the session lifecycle against the user and session stores.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	tokens   *auth.TokenService
	hasher   *auth.Hasher
	metrics  *telemetry.Metrics

	// decoy is compared against when the user does not exist, so unknown
	// usernames cost the same bcrypt work as wrong passwords.
	decoyOnce sync.Once
	decoy     string
}

// NewService creates a login service. metrics may be nil.
func NewService(users store.UserStore, sessions store.SessionStore, tokens *auth.TokenService, hasher *auth.Hasher, metrics *telemetry.Metrics) *Service {
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		metrics:  metrics,
	}
}

// Login verifies the credentials and opens, or replaces, the session of
// the device.
func (s *Service) Login(ctx context.Context, username, password string, device Device) (*TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		s.hasher.Verify(s.decoyHash(), password)
		s.recordLogin(ctx, "unknown_user")
		return nil, ErrBadCredentials
	case err != nil:
		return nil, apierr.Unexpected(fmt.Errorf("failed to get user: %w", err))
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.recordLogin(ctx, "bad_password")
		return nil, ErrBadCredentials
	}
	if !user.IsActive {
		s.recordLogin(ctx, "inactive")
		return nil, ErrBadCredentials
	}

	pair, err := s.issuePair(user.UserID)
	if err != nil {
		return nil, err
	}

	err = s.sessions.Upsert(ctx, &models.Session{
		UserID:            user.UserID,
		DeviceKey:         DeviceKey(device.Fingerprint),
		DeviceFingerprint: device.Fingerprint,
		RefreshTokenHash:  auth.HashRefreshToken(pair.RefreshToken),
		IPAddress:         device.IPAddress,
	})
	if err != nil {
		return nil, apierr.Unexpected(fmt.Errorf("failed to upsert session: %w", err))
	}

	s.recordLogin(ctx, "success")
	log.Info().Str("user_id", user.UserID.String()).Str("ip", device.IPAddress).Msg("User logged in")

	return pair, nil
}

// Refresh exchanges the refresh token carried by principal for a new pair.
// The stored token is swapped atomically, so of two concurrent refreshes
// with the same token only one succeeds.
func (s *Service) Refresh(ctx context.Context, principal *auth.Principal, device Device) (*TokenPair, error) {
	if principal == nil || principal.Kind != auth.KindRefresh {
		return nil, ErrTokenNotValid
	}

	deviceKey := DeviceKey(device.Fingerprint)
	oldHash := auth.HashRefreshToken(principal.Token)

	session, err := s.sessions.Lookup(ctx, oldHash, deviceKey)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		s.recordRefresh(ctx, "not_found")
		return nil, ErrTokenNotValid
	case err != nil:
		return nil, apierr.Unexpected(fmt.Errorf("failed to look up session: %w", err))
	}
	if session.UserID != principal.UserID {
		s.recordRefresh(ctx, "user_mismatch")
		return nil, ErrTokenNotValid
	}

	pair, err := s.issuePair(principal.UserID)
	if err != nil {
		return nil, err
	}

	err = s.sessions.Rotate(ctx, principal.UserID, deviceKey, oldHash, auth.HashRefreshToken(pair.RefreshToken))
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		s.recordRefresh(ctx, "lost_race")
		return nil, ErrTokenNotValid
	case err != nil:
		return nil, apierr.Unexpected(fmt.Errorf("failed to rotate session: %w", err))
	}

	s.recordRefresh(ctx, "success")
	return pair, nil
}

// Logout removes the session of the device. The access token presented
// stays valid until it expires; only the refresh session is revoked.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, device Device) error {
	if err := s.sessions.Delete(ctx, userID, DeviceKey(device.Fingerprint)); err != nil {
		return apierr.Unexpected(fmt.Errorf("failed to delete session: %w", err))
	}
	log.Info().Str("user_id", userID.String()).Msg("User logged out")
	return nil
}

// SessionView is a session as listed to its owner. The refresh token hash
// never leaves the server.
type SessionView struct {
	DeviceKey         string    `json:"device_key"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IPAddress         string    `json:"ip_address,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Current           bool      `json:"current"`
}

// Sessions lists the sessions of a user, most recently used first. The
// session of device is flagged as current.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID, device Device) ([]SessionView, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, apierr.Unexpected(fmt.Errorf("failed to list sessions: %w", err))
	}

	current := DeviceKey(device.Fingerprint)
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, SessionView{
			DeviceKey:         sess.DeviceKey,
			DeviceFingerprint: sess.DeviceFingerprint,
			IPAddress:         sess.IPAddress,
			CreatedAt:         sess.CreatedAt,
			UpdatedAt:         sess.UpdatedAt,
			Current:           sess.DeviceKey == current,
		})
	}
	return views, nil
}

func (s *Service) issuePair(userID uuid.UUID) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(userID.String())
	if err != nil {
		return nil, apierr.Unexpected(fmt.Errorf("failed to issue access token: %w", err))
	}
	refresh, err := s.tokens.IssueRefresh(userID.String())
	if err != nil {
		return nil, apierr.Unexpected(fmt.Errorf("failed to issue refresh token: %w", err))
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: TokenType}, nil
}

func (s *Service) decoyHash() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(time.Now().String())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to build decoy password hash")
		}
		s.decoy = hash
	})
	return s.decoy
}

func (s *Service) recordLogin(ctx context.Context, outcome string) {
	s.metrics.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(telemetry.AttrOutcome.String(outcome)))
}

func (s *Service) recordRefresh(ctx context.Context, outcome string) {
	s.metrics.RefreshTotal.Add(ctx, 1, metric.WithAttributes(telemetry.AttrOutcome.String(outcome)))
}
