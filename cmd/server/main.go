package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tsrunner/cmd/server/internal/commands"
	"go.uber.org/automaxprocs/maxprocs"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"TSRUNNER_DEBUG"`
		Version kong.VersionFlag

		Server  commands.ServerCmd  `cmd:"" help:"Start the API and stream server"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply or roll back database migrations"`
		User    struct {
			Add commands.UserAddCmd `cmd:"" help:"Create a user"`
		} `cmd:"" help:"Manage users"`
		Dataset struct {
			Add commands.DatasetAddCmd `cmd:"" help:"Register a CSV dataset for a user"`
		} `cmd:"" help:"Manage datasets"`
	}
)

func main() {
	_, _ = maxprocs.Set()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("tsrunner"),
		kong.Description("Time series forecasting and anomaly detection job runner."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
