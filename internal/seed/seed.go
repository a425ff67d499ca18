// Package seed loads users and datasets from a YAML file so a memory backed
// server starts with usable accounts.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
	"github.com/wolfeidau/tsrunner/internal/validate"
	"gopkg.in/yaml.v3"
)

// File is the seed document.
//
//	users:
//	  - username: alice
//	    password: secret123
//	    datasets:
//	      - file: sales.csv
type File struct {
	Users []User `yaml:"users" validate:"dive"`
}

// User is one seeded account.
type User struct {
	ID       string    `yaml:"id" json:"id" validate:"omitempty,uuid"`
	Username string    `yaml:"username" json:"username" validate:"required,min=3,max=50"`
	Email    string    `yaml:"email" json:"email" validate:"omitempty,email"`
	Password string    `yaml:"password" json:"password" validate:"required,min=8"`
	Datasets []Dataset `yaml:"datasets" json:"datasets" validate:"dive"`
}

// Dataset registers a CSV under the dataset root for its user.
type Dataset struct {
	ID   string `yaml:"id" json:"id" validate:"omitempty,uuid"`
	File string `yaml:"file" json:"file" validate:"required"`
}

// Stores are where seeded records are written.
type Stores struct {
	Users    store.UserStore
	Datasets store.DatasetStore
}

// Parse decodes and validates a seed document.
func Parse(r io.Reader, v *validate.Validator) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	if err := v.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &f, nil
}

// LoadFile parses the seed document at path.
func LoadFile(path string, v *validate.Validator) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer fh.Close()

	return Parse(fh, v)
}

// Apply creates every user and dataset in f. Existing usernames are skipped
// so a server can be restarted against the same seed and store.
func Apply(ctx context.Context, f *File, stores Stores, hasher *auth.Hasher, loader *dataset.FileLoader) error {
	for _, u := range f.Users {
		user, err := newUser(u, hasher)
		if err != nil {
			return err
		}

		err = stores.Users.Create(ctx, user)
		switch {
		case errors.Is(err, store.ErrUserAlreadyExists):
			log.Info().Str("username", u.Username).Msg("Seed user already exists, skipping")
			continue
		case err != nil:
			return fmt.Errorf("failed to seed user %s: %w", u.Username, err)
		}

		for _, d := range u.Datasets {
			ds, err := NewDataset(ctx, loader, user.UserID, d.ID, d.File)
			if err != nil {
				return err
			}
			if err := stores.Datasets.Create(ctx, ds); err != nil {
				return fmt.Errorf("failed to seed dataset %s: %w", d.File, err)
			}
			log.Info().
				Str("username", u.Username).
				Str("dataset_id", ds.DatasetID.String()).
				Str("file", ds.FileName).
				Msg("Seeded dataset")
		}

		log.Info().Str("username", u.Username).Str("user_id", user.UserID.String()).Msg("Seeded user")
	}

	return nil
}

func newUser(u User, hasher *auth.Hasher) (*models.User, error) {
	id, err := parseOrNewID(u.ID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.Username, err)
	}

	hash, err := hasher.Hash(u.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password for %s: %w", u.Username, err)
	}

	return &models.User{
		UserID:       id,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: hash,
		IsActive:     true,
	}, nil
}

// NewDataset reads the header of the CSV at path and builds the dataset record.
// An empty id generates a new UUIDv7.
func NewDataset(ctx context.Context, loader *dataset.FileLoader, userID uuid.UUID, id, path string) (*models.Dataset, error) {
	datasetID, err := parseOrNewID(id)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}

	frame, err := loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	return &models.Dataset{
		DatasetID: datasetID,
		UserID:    userID,
		FileName:  filepath.Base(path),
		FilePath:  path,
		Columns:   append([]string(nil), frame.Columns()...),
	}, nil
}

func parseOrNewID(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.NewV7()
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return parsed, nil
}
