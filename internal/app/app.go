package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizroom/quizroom/internal/config"
	"github.com/quizroom/quizroom/internal/generator"
	"github.com/quizroom/quizroom/internal/identity"
	"github.com/quizroom/quizroom/internal/logging"
	"github.com/quizroom/quizroom/internal/server"
	"github.com/quizroom/quizroom/internal/session"
	memorystore "github.com/quizroom/quizroom/internal/store/memory"
	postgresstore "github.com/quizroom/quizroom/internal/store/postgres"
	redisstore "github.com/quizroom/quizroom/internal/store/redis"
)

// Application aggregates shared infrastructure (store, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	sweeper   *session.Sweeper
	bgCancels []context.CancelFunc
}

// New bootstraps config, logger, the configured store backend, the
// question generator and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Str("backend", cfg.Store.Backend).Msg("starting application bootstrap")

	var (
		pool        *pgxpool.Pool
		redisClient *redis.Client
		sessions    session.SessionStore
		results     session.ResultStore
		err         error
	)

	// Redis serves as the session store for the redis backend and as the
	// question set cache whenever an address is configured.
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
			cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

		pool, err = pgxpool.New(ctx, connString)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		sessions = postgresstore.NewSessionStore(pool)
		results = postgresstore.NewResultStore(pool)

	case config.BackendRedis:
		sessions = redisstore.NewSessionStore(redisClient, logger)
		results = redisstore.NewResultStore(redisClient, logger)

	case config.BackendMemory:
		logger.Warn().Msg("memory store selected; sessions will not survive a restart")
		sessions = memorystore.NewSessionStore()
		results = memorystore.NewResultStore()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	verifier := identity.NewVerifier(cfg.Security.JWTSecret)

	var source session.QuestionSource = generator.NewClient(generator.Config{
		URL:     cfg.Generator.URL,
		APIKey:  cfg.Generator.APIKey,
		Timeout: cfg.Generator.HTTPTimeout,
	}, logger)
	if redisClient != nil {
		cache := generator.NewCache(redisClient, cfg.Generator.CacheTTL)
		source = generator.NewCachedSource(source, cache, logger)
	}

	sessionSvc := session.NewService(sessions, results, source, session.ServiceOptions{
		DefaultQuestionCount: cfg.Sessions.DefaultQuestionCount,
		MaxQuestionCount:     cfg.Sessions.MaxQuestionCount,
	}, logger)
	sessionHandlers := session.NewHTTPHandlers(sessionSvc, logger)
	sweeper := session.NewSweeper(sessionSvc, cfg.Sessions.SweepInterval, cfg.Sessions.TTL, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, verifier, sessionHandlers)

	return &Application{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     redisClient,
		http:      apiServer,
		sweeper:   sweeper,
		bgCancels: make([]context.CancelFunc, 0, 1),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.sweeper != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.sweeper.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("expiry sweeper stopped")
			}
		}()
	}
}
