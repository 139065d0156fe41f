package server

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizroom/quizroom/internal/config"
	"github.com/quizroom/quizroom/internal/identity"
	"github.com/quizroom/quizroom/internal/session"
)

// NewHTTPServer wires base routes (health, metrics) and the session API.
// pool and redisClient may be nil depending on the configured store
// backend; the ping endpoint only checks what is actually wired.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, verifier *identity.Verifier, sessions *session.HTTPHandlers) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), pool, redisClient); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	// Session endpoints. Every route runs behind token verification; the
	// public session view still needs a valid caller, it just is not
	// restricted to the owner.
	authed := identity.Middleware(verifier, logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	handle("POST /v1/sessions", sessions.CreateSession)
	handle("GET /v1/sessions/{code}", sessions.GetSession)
	handle("POST /v1/sessions/{code}/join", sessions.JoinSession)
	handle("POST /v1/sessions/{code}/answers", sessions.SubmitAnswers)
	handle("POST /v1/sessions/{code}/close", sessions.CloseSession)
	handle("GET /v1/sessions/{code}/info", sessions.GetInfo)
	handle("GET /v1/sessions/{code}/analysis", sessions.GetAnalysis)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redisClient *redis.Client) error {
	if pool != nil {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
	}
	if redisClient != nil {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
