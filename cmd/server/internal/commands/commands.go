package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/store"
	postgresstore "github.com/wolfeidau/tsrunner/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// PostgresFlags configures the shared connection pool.
type PostgresFlags struct {
	ConnString      string        `help:"PostgreSQL connection string" env:"URL"`
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20" env:"MAX_CONNS"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m" env:"MAX_CONN_IDLE_TIME"`
	AutoMigrate     bool          `help:"run database migrations on startup" default:"false" env:"AUTO_MIGRATE"`
}

func (f *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
	}
}

func (f *PostgresFlags) check() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or TSRUNNER_POSTGRES_URL)")
	}
	return nil
}

// database is an open pool plus a database/sql view of the same pool.
type database struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

func openDatabase(ctx context.Context, flags *PostgresFlags) (*database, error) {
	if err := flags.check(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPool(ctx, flags.poolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &database{pool: pool, db: stdlib.OpenDBFromPool(pool)}, nil
}

func (d *database) Close() {
	_ = d.db.Close()
	d.pool.Close()
}

func (d *database) userStore() store.UserStore {
	return postgresstore.NewUserStore(d.pool)
}

func (d *database) datasetStore() store.DatasetStore {
	return postgresstore.NewDatasetStore(d.pool)
}

// HasherFlags configures password hashing.
type HasherFlags struct {
	BcryptCost int `help:"bcrypt cost for stored passwords" default:"12" env:"TSRUNNER_BCRYPT_COST"`
}

func (f *HasherFlags) hasher() *auth.Hasher {
	return auth.NewHasher(f.BcryptCost)
}
