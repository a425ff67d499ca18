package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/logger"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/seed"
	"github.com/wolfeidau/tsrunner/internal/validate"
)

type UserAddCmd struct {
	Username string `arg:"" help:"login name, 3 to 50 characters"`
	Email    string `help:"email address" default:""`
	Password string `help:"password, at least 8 characters" required:"" env:"TSRUNNER_USER_PASSWORD"`
	Inactive bool   `help:"create the user disabled" default:"false"`

	Hasher   HasherFlags   `embed:""`
	Postgres PostgresFlags `embed:"" prefix:"postgres-" envprefix:"TSRUNNER_POSTGRES_"`
}

func (c *UserAddCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	// same rules as seeded users
	err := validate.New().Struct(&seed.User{Username: c.Username, Email: c.Email, Password: c.Password})
	if err != nil {
		return err
	}

	hash, err := c.Hasher.hasher().Hash(c.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	database, err := openDatabase(ctx, &c.Postgres)
	if err != nil {
		return err
	}
	defer database.Close()

	user := &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: hash,
		IsActive:     !c.Inactive,
	}
	if err := database.userStore().Create(ctx, user); err != nil {
		return err
	}

	log.Info().Str("user_id", user.UserID.String()).Str("username", user.Username).Msg("User created")
	fmt.Println(user.UserID)

	return nil
}
