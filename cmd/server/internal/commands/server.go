package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/engine"
	"github.com/wolfeidau/tsrunner/internal/events"
	httpmiddleware "github.com/wolfeidau/tsrunner/internal/http"
	"github.com/wolfeidau/tsrunner/internal/logger"
	"github.com/wolfeidau/tsrunner/internal/login"
	"github.com/wolfeidau/tsrunner/internal/modelstore"
	"github.com/wolfeidau/tsrunner/internal/pipeline"
	"github.com/wolfeidau/tsrunner/internal/seed"
	"github.com/wolfeidau/tsrunner/internal/server"
	"github.com/wolfeidau/tsrunner/internal/store"
	memorystore "github.com/wolfeidau/tsrunner/internal/store/memory"
	postgresstore "github.com/wolfeidau/tsrunner/internal/store/postgres"
	"github.com/wolfeidau/tsrunner/internal/telemetry"
	"github.com/wolfeidau/tsrunner/internal/validate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8000" env:"TSRUNNER_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"TSRUNNER_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"TSRUNNER_TLS_KEY"`

	// CORS and websocket origin configuration
	CORSOrigins []string `help:"allowed origins for API requests and stream handshakes" env:"TSRUNNER_CORS_ORIGINS"`

	// Only enable behind a proxy that overwrites X-Forwarded-For
	TrustProxyHeaders bool `help:"take the client address from X-Forwarded-For and X-Real-IP" default:"false" env:"TSRUNNER_TRUST_PROXY_HEADERS"`

	// Local storage
	DataDir  string `help:"root directory of dataset files" default:"./data" env:"TSRUNNER_DATA_DIR"`
	ModelDir string `help:"root directory of saved model artifacts" default:"./models" env:"TSRUNNER_MODEL_DIR"`
	Seed     string `help:"YAML file of users and datasets to create on startup" default:"" env:"TSRUNNER_SEED"`

	MaxPayload int64 `help:"largest accepted job payload in bytes" default:"1048576" env:"TSRUNNER_MAX_PAYLOAD"`

	// Telemetry
	Tracing     bool    `help:"enable OpenTelemetry tracing and metrics export" default:"false" env:"TSRUNNER_TRACING"`
	SampleRatio float64 `help:"trace sample ratio" default:"1" env:"TSRUNNER_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"TSRUNNER_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-" envprefix:"TSRUNNER_POSTGRES_"`

	Login  LoginFlags  `embed:"" prefix:"login-" envprefix:"TSRUNNER_LOGIN_"`
	Engine EngineFlags `embed:"" prefix:"engine-" envprefix:"TSRUNNER_ENGINE_"`
	Kafka  KafkaFlags  `embed:"" prefix:"kafka-" envprefix:"TSRUNNER_KAFKA_"`
	Hasher HasherFlags `embed:""`
}

// LoginFlags configures token issuance and the login rate limit.
type LoginFlags struct {
	Secret     string        `help:"HS256 signing secret, at least 32 bytes" env:"SECRET"`
	AccessTTL  time.Duration `help:"access token lifetime" default:"15m" env:"ACCESS_TTL"`
	RefreshTTL time.Duration `help:"refresh token lifetime" default:"168h" env:"REFRESH_TTL"`

	Limiter login.LimiterConfig `embed:""`
}

func (f *LoginFlags) Validate() error {
	if len(f.Secret) < auth.MinSecretLength {
		return fmt.Errorf("login secret must be at least %d bytes (--login-secret or TSRUNNER_LOGIN_SECRET)", auth.MinSecretLength)
	}
	if f.AccessTTL <= 0 || f.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if f.AccessTTL >= f.RefreshTTL {
		return errors.New("access token TTL must be shorter than refresh token TTL")
	}
	return nil
}

// EngineFlags configures the optional remote analytics service.
type EngineFlags struct {
	URL        string        `help:"base URL of the remote analytics service, builtin algorithms only when empty" default:"" env:"URL"`
	Timeout    time.Duration `help:"per attempt timeout of remote calls" default:"10m" env:"TIMEOUT"`
	MaxElapsed time.Duration `help:"total retry budget of remote calls" default:"2m" env:"MAX_ELAPSED"`
}

func (f *EngineFlags) Validate() error {
	if f.URL != "" && (f.Timeout <= 0 || f.MaxElapsed <= 0) {
		return errors.New("engine timeout and max elapsed must be positive")
	}
	return nil
}

func (f *EngineFlags) engine() *engine.Router {
	var remote engine.Engine
	if f.URL != "" {
		remote = engine.NewRemote(engine.RemoteConfig{
			BaseURL:    f.URL,
			Timeout:    f.Timeout,
			MaxElapsed: f.MaxElapsed,
		})
	}
	return engine.NewRouter(engine.NewBuiltin(), remote)
}

// KafkaFlags configures result event publishing. Publishing is off without brokers.
type KafkaFlags struct {
	Brokers []string `help:"Kafka broker addresses" env:"BROKERS"`
	Topic   string   `help:"topic for result events" default:"tsrunner.results" env:"TOPIC"`
}

func (c *ServerCmd) Validate() error {
	if c.StoreType == "postgres" {
		if err := c.Postgres.check(); err != nil {
			return err
		}
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS needs both --cert and --key")
	}
	if err := c.Login.Validate(); err != nil {
		return err
	}
	return c.Engine.Validate()
}

// stores is the set of stores the server runs on.
type stores struct {
	users    store.UserStore
	sessions store.SessionStore
	datasets store.DatasetStore
	results  store.ResultStore
	close    func()
}

func (c *ServerCmd) openStores(ctx context.Context, log zerolog.Logger) (*stores, error) {
	switch c.StoreType {
	case "postgres":
		database, err := openDatabase(ctx, &c.Postgres)
		if err != nil {
			return nil, err
		}

		if c.Postgres.AutoMigrate {
			if err := postgresstore.Migrate(database.db); err != nil {
				database.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

		return &stores{
			users:    database.userStore(),
			sessions: postgresstore.NewSessionStore(database.pool),
			datasets: database.datasetStore(),
			results:  postgresstore.NewResultStore(database.db),
			close:    database.Close,
		}, nil

	default:
		log.Info().Msg("Using in-memory stores")

		return &stores{
			users:    memorystore.NewUserStore(),
			sessions: memorystore.NewSessionStore(),
			datasets: memorystore.NewDatasetStore(),
			results:  memorystore.NewResultStore(),
			close:    func() {},
		}, nil
	}
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "tsrunner",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	metrics, err := telemetry.NewMetrics(telemetry.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	st, err := c.openStores(ctx, log)
	if err != nil {
		return err
	}
	defer st.close()

	validator := validate.New()
	hasher := c.Hasher.hasher()
	loader := &dataset.FileLoader{Root: c.DataDir}

	if c.Seed != "" {
		doc, err := seed.LoadFile(c.Seed, validator)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, doc, seed.Stores{Users: st.users, Datasets: st.datasets}, hasher, loader); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	tokens, err := auth.NewTokenService([]byte(c.Login.Secret), c.Login.AccessTTL, c.Login.RefreshTTL)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	models, err := modelstore.NewFileStore(c.ModelDir)
	if err != nil {
		return fmt.Errorf("failed to open model store: %w", err)
	}

	publisher := events.NewKafkaPublisher(c.Kafka.Brokers, c.Kafka.Topic)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close result publisher")
		}
	}()

	deps := pipeline.Deps{
		Datasets:  st.datasets,
		Results:   st.results,
		Loader:    loader,
		Engine:    c.Engine.engine(),
		Models:    models,
		Validator: validator,
		Metrics:   metrics,
	}
	if publisher != nil {
		deps.Events = publisher
		log.Info().Strs("brokers", c.Kafka.Brokers).Str("topic", c.Kafka.Topic).Msg("Publishing result events")
	}

	loginService := login.NewService(st.users, st.sessions, tokens, hasher, metrics)

	srv := server.New(server.Config{
		Runner:         pipeline.NewRunner(deps),
		Results:        st.results,
		Gate:           auth.NewGate(tokens),
		Login:          login.NewHandlers(loginService, login.NewLimiter(c.Login.Limiter), validator),
		Metrics:        metrics,
		AllowedOrigins: c.CORSOrigins,
		MaxPayload:     c.MaxPayload,
	})

	var handler http.Handler = srv.Handler()
	handler = withCORS(c.CORSOrigins, handler)
	handler = httpmiddleware.ClientIPMiddleware(c.TrustProxyHeaders)(handler)
	handler = logger.Requests(log)(handler)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "tsrunner")
	}

	httpServer := configureHTTPServer(c.Listen, handler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Str("store", c.StoreType).Msg("Starting HTTP server")

		var err error
		if c.Cert != "" {
			err = httpServer.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// withCORS allows browser clients on the configured origins to call the API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return h
	}
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "User-Agent"},
		MaxAge:         int((time.Hour).Seconds()),
	})
	return middleware.Handler(h)
}
