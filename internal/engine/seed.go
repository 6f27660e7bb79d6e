package engine

import (
	"context"
	"errors"

	"rsicross/internal/record"
	"rsicross/internal/state"

	"github.com/rs/zerolog"
)

// ReadingSource returns the last stored reading for a symbol.
type ReadingSource interface {
	Latest(ctx context.Context, symbol string) (record.Entry, error)
}

// SeedReadings restores readings newer than the ones in the store, so the
// close-of-day record has values before the first evaluation of a run.
func SeedReadings(ctx context.Context, log zerolog.Logger, source ReadingSource, store *state.Store, symbols []string) {
	for _, symbol := range symbols {
		entry, err := source.Latest(ctx, symbol)
		if errors.Is(err, record.ErrNoRecord) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to load stored reading")
			continue
		}
		if !entry.Time.After(store.Symbol(symbol).Reading.Time) {
			continue
		}
		store.SetReading(symbol, state.Reading{
			Time:      entry.Time,
			Price:     entry.Price,
			RSI:       toPtr(entry.RSI),
			EWMA:      toPtr(entry.EWMA),
			Direction: entry.Direction,
		})
		log.Info().Str("symbol", symbol).Time("reading_time", entry.Time).Msg("restored reading")
	}
}
