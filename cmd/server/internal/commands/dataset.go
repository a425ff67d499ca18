package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/logger"
	"github.com/wolfeidau/tsrunner/internal/seed"
)

type DatasetAddCmd struct {
	Username string `arg:"" help:"owner of the dataset"`
	File     string `arg:"" help:"CSV path, relative to the data dir unless absolute"`
	ID       string `help:"dataset id, a new UUIDv7 when empty" default:""`
	DataDir  string `help:"root directory of dataset files" default:"./data" env:"TSRUNNER_DATA_DIR"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-" envprefix:"TSRUNNER_POSTGRES_"`
}

func (c *DatasetAddCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	database, err := openDatabase(ctx, &c.Postgres)
	if err != nil {
		return err
	}
	defer database.Close()

	user, err := database.userStore().GetByUsername(ctx, c.Username)
	if err != nil {
		return fmt.Errorf("failed to find user %s: %w", c.Username, err)
	}

	ds, err := seed.NewDataset(ctx, &dataset.FileLoader{Root: c.DataDir}, user.UserID, c.ID, c.File)
	if err != nil {
		return err
	}

	if err := database.datasetStore().Create(ctx, ds); err != nil {
		return err
	}

	log.Info().
		Str("dataset_id", ds.DatasetID.String()).
		Str("username", user.Username).
		Strs("columns", ds.Columns).
		Msg("Dataset registered")
	fmt.Println(ds.DatasetID)

	return nil
}
