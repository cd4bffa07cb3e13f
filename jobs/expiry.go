package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/karanja/foodbridge-go/lifecycle"
	"github.com/karanja/foodbridge-go/store"
)

const sweepBatchSize = 100

// ExpirySweeper periodically moves stale available donations to expired. It
// reuses the engine's CAS transition, so a volunteer who accepts a donation
// in the same instant always wins over the sweep.
type ExpirySweeper struct {
	donations *store.Donations
	engine    *lifecycle.Engine
	interval  time.Duration
	log       zerolog.Logger
}

func NewExpirySweeper(donations *store.Donations, engine *lifecycle.Engine, interval time.Duration, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{donations: donations, engine: engine, interval: interval, log: log}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires one batch of overdue donations.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ids, err := s.donations.FindExpiredIDs(sweepCtx, time.Now(), sweepBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("expiry scan failed")
		return
	}

	expired := 0
	for _, id := range ids {
		err := s.engine.Expire(sweepCtx, id)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, lifecycle.ErrConflict), errors.Is(err, lifecycle.ErrInvalidTransition):
			// Lost to a concurrent accept or admin action; nothing to do.
		default:
			s.log.Error().Err(err).Str("donation_id", id.Hex()).Msg("expire failed")
		}
	}
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("expiry sweep complete")
	}
}
