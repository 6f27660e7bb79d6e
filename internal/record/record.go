// Package record publishes per-symbol indicator readings to metrics and
// storage sinks.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/moznion/go-optional"
)

// Entry is one labeled reading. RSI and EWMA are None during warm-up.
type Entry struct {
	Time      time.Time
	Symbol    string
	RSI       optional.Option[float64]
	EWMA      optional.Option[float64]
	Price     float64
	Direction string
}

// ErrNoRecord means nothing has been stored for a symbol yet.
var ErrNoRecord = errors.New("no record")

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Multi sends every entry to all recorders and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, entry Entry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
