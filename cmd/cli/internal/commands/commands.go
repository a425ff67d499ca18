package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/cmd/cli/internal/credentials"
	"github.com/wolfeidau/tsrunner/internal/client"
)

type Globals struct {
	Debug   bool
	Version string
}

// ProfileFlags select the stored login profile a command acts for.
type ProfileFlags struct {
	Profile        string        `help:"Credential profile, the default profile when empty" env:"TSCTL_PROFILE"`
	CredentialsDir string        `help:"Custom credentials directory" env:"TSCTL_CREDENTIALS_DIR"`
	Timeout        time.Duration `help:"Request timeout" default:"5m"`
	CacheDir       string        `help:"Directory for cached API responses, in memory when empty"`
}

// session is an opened profile with a client for its server.
type session struct {
	store  *credentials.Store
	cred   *credentials.Credential
	client *client.Client
}

func (p *ProfileFlags) open() (*session, error) {
	store, err := credentials.NewStore(p.CredentialsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	cred, err := store.Resolve(p.Profile)
	if err != nil {
		if errors.Is(err, credentials.ErrNoDefaultCredential) || errors.Is(err, credentials.ErrCredentialNotFound) {
			return nil, fmt.Errorf("%w: run tsctl login first", err)
		}
		return nil, err
	}

	fingerprint, err := store.DeviceFingerprint()
	if err != nil {
		return nil, err
	}

	c, err := client.New(client.Config{
		ServerURL:         cred.ServerURL,
		Timeout:           p.Timeout,
		CacheDir:          p.CacheDir,
		DeviceFingerprint: fingerprint,
	})
	if err != nil {
		return nil, err
	}

	return &session{store: store, cred: cred, client: c}, nil
}

// accessToken returns a usable access token, rotating the token pair first
// when the stored access token is close to expiry.
func (s *session) accessToken(ctx context.Context) (string, error) {
	if !s.cred.LoggedIn() {
		return "", fmt.Errorf("%w: profile %s, run tsctl login", credentials.ErrNotLoggedIn, s.cred.Name)
	}

	if !credentials.NeedsRefresh(s.cred.AccessToken, time.Now()) {
		return s.cred.AccessToken, nil
	}

	log.Debug().Str("profile", s.cred.Name).Msg("access token expiring, refreshing")

	if err := s.refresh(ctx); err != nil {
		return "", err
	}
	return s.cred.AccessToken, nil
}

// refresh rotates the stored token pair. A rejected refresh token clears the
// profile so the next command asks for a login.
func (s *session) refresh(ctx context.Context) error {
	fingerprint, err := s.store.DeviceFingerprint()
	if err != nil {
		return err
	}

	pair, err := s.client.Refresh(ctx, s.cred.RefreshToken, fingerprint)
	if err != nil {
		var apiErr *client.Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			if clearErr := s.store.ClearTokens(s.cred.Name); clearErr != nil {
				log.Warn().Err(clearErr).Msg("failed to clear rejected tokens")
			}
			return fmt.Errorf("session expired, run tsctl login: %w", err)
		}
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	s.cred.AccessToken = pair.AccessToken
	s.cred.RefreshToken = pair.RefreshToken

	return s.store.Save(*s.cred)
}
