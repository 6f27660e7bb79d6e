package engine

import (
	"context"
	"time"

	"rsicross/internal/broker"

	"github.com/rs/zerolog"
)

// Scheduler drives the daily cycle off the broker's market clock: rebalance
// Offset after the open, record at the close.
type Scheduler struct {
	Engine *Engine
	Broker Broker
	Offset time.Duration
	Log    zerolog.Logger
	// Wait blocks for delay; broker.WaitForContext when nil.
	Wait func(ctx context.Context, delay time.Duration) error
	// OnCycle runs after each recorded close.
	OnCycle func()
}

type phase string

const (
	phaseRebalance phase = "rebalance"
	phaseRecord    phase = "record"
)

// next picks the upcoming event. Sessions are keyed by their closing time;
// while the market is shut the clock's NextClose already belongs to the
// session that opens at NextOpen. A process started mid-session rebalances
// immediately.
func (s *Scheduler) next(clock broker.Clock, rebalanced time.Time) (phase, time.Time) {
	if !clock.IsOpen {
		return phaseRebalance, clock.NextOpen.Add(s.Offset)
	}
	if !rebalanced.Equal(clock.NextClose) {
		return phaseRebalance, clock.Now
	}
	return phaseRecord, clock.NextClose
}

func (s *Scheduler) Run(ctx context.Context) error {
	wait := s.Wait
	if wait == nil {
		wait = broker.WaitForContext
	}
	var rebalanced time.Time

	for {
		clock, err := s.Broker.Clock(ctx)
		if err != nil {
			s.Log.Error().Err(err).Msg("market clock failed, retrying")
			if err := wait(ctx, time.Minute); err != nil {
				return err
			}
			continue
		}

		ph, at := s.next(clock, rebalanced)
		s.Log.Info().Str("event", string(ph)).Time("at", at).Msg("next scheduled event")
		if err := wait(ctx, at.Sub(clock.Now)); err != nil {
			return err
		}

		switch ph {
		case phaseRebalance:
			reconcileOnce(ctx, s.Log, s.Broker, s.Engine.state, s.Engine.cfg.Symbols)
			if err := s.Engine.Rebalance(ctx); err != nil {
				s.Log.Error().Err(err).Msg("rebalance reported data faults")
			}
			rebalanced = clock.NextClose
		case phaseRecord:
			_ = s.Engine.RecordVars(ctx)
			if s.OnCycle != nil {
				s.OnCycle()
			}
			// Step past the close so the next clock read reports it shut.
			if err := wait(ctx, time.Minute); err != nil {
				return err
			}
		}
	}
}
