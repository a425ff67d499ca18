package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tsrunner/cmd/cli/internal/commands"
	"github.com/wolfeidau/tsrunner/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login      commands.LoginCmd      `cmd:"" help:"Log in and store a token pair"`
		Refresh    commands.RefreshCmd    `cmd:"" help:"Rotate the stored token pair"`
		Logout     commands.LogoutCmd     `cmd:"" help:"End the session of this device"`
		Sessions   commands.SessionsCmd   `cmd:"" help:"List your sessions across devices"`
		Profiles   commands.ProfilesCmd   `cmd:"" help:"Manage local credential profiles"`
		Submit     commands.SubmitCmd     `cmd:"" help:"Run a job and stream its progress"`
		History    commands.HistoryCmd    `cmd:"" help:"List or show past results"`
		Algorithms commands.AlgorithmsCmd `cmd:"" help:"List the algorithms of a pipeline"`
		Debug      bool                   `help:"Enable debug mode." env:"TSCTL_DEBUG"`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("tsctl"),
		kong.Description("Client for the tsrunner time series service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
