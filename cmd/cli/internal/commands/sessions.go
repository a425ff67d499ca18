package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/wolfeidau/tsrunner/cmd/cli/internal/credentials"
)

// SessionsCmd lists the server sessions of the logged in user.
type SessionsCmd struct {
	ProfileFlags
}

func (s *SessionsCmd) Run(ctx context.Context, globals *Globals) error {
	sess, err := s.open()
	if err != nil {
		return err
	}

	token, err := sess.accessToken(ctx)
	if err != nil {
		return err
	}

	views, err := sess.client.Sessions(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tIP\tLAST USED\tCURRENT")
	for _, v := range views {
		current := ""
		if v.Current {
			current = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncate(v.DeviceFingerprint, 40), v.IPAddress, v.UpdatedAt.Local().Format(timeFormat), current)
	}
	return w.Flush()
}

// ProfilesCmd manages local credential profiles.
type ProfilesCmd struct {
	List       ProfilesListCmd       `cmd:"" default:"1" help:"List profiles"`
	SetDefault ProfilesSetDefaultCmd `cmd:"" name:"set-default" help:"Set the default profile"`
	Delete     ProfilesDeleteCmd     `cmd:"" help:"Delete a profile"`
}

type ProfilesListCmd struct {
	CredentialsDir string `help:"Custom credentials directory" env:"TSCTL_CREDENTIALS_DIR"`
}

func (c *ProfilesListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	creds, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(creds) == 0 {
		fmt.Println("No profiles found.")
		fmt.Println()
		fmt.Println("To create one:")
		fmt.Println("  tsctl login <username> --server <url>")
		return nil
	}

	sort.Slice(creds, func(i, j int) bool { return creds[i].Name < creds[j].Name })

	defaultName := ""
	if def, err := store.GetDefault(); err == nil {
		defaultName = def.Name
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVER\tUSER\tSTATUS\tDEFAULT")
	for _, cred := range creds {
		status := "logged out"
		if cred.LoggedIn() {
			status = "logged in"
		}
		isDefault := ""
		if cred.Name == defaultName {
			isDefault = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", cred.Name, cred.ServerURL, cred.Username, status, isDefault)
	}
	return w.Flush()
}

type ProfilesSetDefaultCmd struct {
	Name           string `arg:"" help:"Profile name"`
	CredentialsDir string `help:"Custom credentials directory" env:"TSCTL_CREDENTIALS_DIR"`
}

func (c *ProfilesSetDefaultCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store.SetDefault(c.Name)
}

type ProfilesDeleteCmd struct {
	Name           string `arg:"" help:"Profile name"`
	CredentialsDir string `help:"Custom credentials directory" env:"TSCTL_CREDENTIALS_DIR"`
}

func (c *ProfilesDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store.Delete(c.Name)
}
