package commands

import (
	"context"

	"github.com/wolfeidau/tsrunner/internal/logger"
	postgresstore "github.com/wolfeidau/tsrunner/internal/store/postgres"
)

type MigrateCmd struct {
	Down     bool          `help:"roll back every migration, dropping all data" default:"false"`
	Postgres PostgresFlags `embed:"" prefix:"postgres-" envprefix:"TSRUNNER_POSTGRES_"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	database, err := openDatabase(ctx, &c.Postgres)
	if err != nil {
		return err
	}
	defer database.Close()

	if c.Down {
		log.Warn().Msg("Rolling back all migrations")
		return postgresstore.MigrateDown(database.db)
	}

	return postgresstore.Migrate(database.db)
}
