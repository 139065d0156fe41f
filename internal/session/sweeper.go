package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically force-closes sessions that outlive the TTL. It goes
// through the same close transition as owner-initiated closes, so racing a
// manual close is harmless: whichever caller loses observes idempotent
// success.
type Sweeper struct {
	svc      *Service
	logger   zerolog.Logger
	interval time.Duration
	ttl      time.Duration
}

// NewSweeper creates the expiry sweeper.
func NewSweeper(svc *Service, interval, ttl time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Sweeper{
		svc:      svc,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
		interval: interval,
		ttl:      ttl,
	}
}

// Run blocks until context cancellation. Sweeps never overlap: each tick
// runs to completion before the next is taken.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick closes every expired open session in isolation; one session's
// failure is logged and the sweep continues with the rest.
func (w *Sweeper) tick(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.ttl)
	codes, err := w.svc.ExpiredOpen(ctx, cutoff)
	if err != nil {
		w.logger.Warn().Err(err).Msg("expired session listing failed")
		return
	}
	if len(codes) == 0 {
		return
	}

	closed := 0
	for _, code := range codes {
		out, err := w.svc.ForceClose(ctx, code)
		if err != nil {
			w.logger.Warn().Err(err).Str("session_code", code).Msg("force close failed")
			continue
		}
		if !out.AlreadyClosed {
			closed++
		}
	}

	w.logger.Info().
		Int("expired", len(codes)).
		Int("closed", closed).
		Msg("expiry sweep complete")
}
