package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wolfeidau/tsrunner/cmd/cli/internal/credentials"
	"github.com/wolfeidau/tsrunner/internal/client"
)

// LoginCmd logs in and stores the token pair in a profile.
type LoginCmd struct {
	Username       string `arg:"" help:"Username"`
	Server         string `help:"Server URL" default:"http://localhost:8000" env:"TSCTL_SERVER"`
	Profile        string `help:"Profile to store the tokens in" default:"default" env:"TSCTL_PROFILE"`
	Password       string `help:"Password, read from stdin when empty" env:"TSCTL_PASSWORD"`
	CredentialsDir string `help:"Custom credentials directory" env:"TSCTL_CREDENTIALS_DIR"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(l.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	fingerprint, err := store.DeviceFingerprint()
	if err != nil {
		return err
	}

	password := l.Password
	if password == "" {
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	cfg := client.DefaultConfig()
	cfg.ServerURL = l.Server
	c, err := client.New(cfg)
	if err != nil {
		return err
	}

	pair, err := c.Login(ctx, l.Username, password, fingerprint)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	err = store.Save(credentials.Credential{
		Name:         l.Profile,
		ServerURL:    l.Server,
		Username:     l.Username,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	fmt.Printf("Logged in to %s as %s (profile %s)\n", l.Server, l.Username, l.Profile)
	return nil
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

// RefreshCmd rotates the token pair of a profile.
type RefreshCmd struct {
	ProfileFlags
}

func (r *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	sess, err := r.open()
	if err != nil {
		return err
	}
	if !sess.cred.LoggedIn() {
		return fmt.Errorf("%w: profile %s", credentials.ErrNotLoggedIn, sess.cred.Name)
	}

	if err := sess.refresh(ctx); err != nil {
		return err
	}

	fmt.Printf("Tokens refreshed for %s (profile %s)\n", sess.cred.Username, sess.cred.Name)
	return nil
}

// LogoutCmd ends the server session of this device and forgets the tokens.
type LogoutCmd struct {
	ProfileFlags
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	sess, err := l.open()
	if err != nil {
		return err
	}
	if !sess.cred.LoggedIn() {
		fmt.Printf("Profile %s is not logged in\n", sess.cred.Name)
		return nil
	}

	fingerprint, err := sess.store.DeviceFingerprint()
	if err != nil {
		return err
	}

	// an expired access token still lets us clear the local profile
	token, err := sess.accessToken(ctx)
	if err == nil {
		if err := sess.client.Logout(ctx, token, fingerprint); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
	}

	if err := sess.store.ClearTokens(sess.cred.Name); err != nil && !errors.Is(err, credentials.ErrCredentialNotFound) {
		return err
	}

	fmt.Printf("Logged out of %s (profile %s)\n", sess.cred.ServerURL, sess.cred.Name)
	return nil
}
