package notifier

import (
	"context"
	"sync"
	"time"

	"rsicross/internal/indicator"

	"github.com/rs/zerolog"
)

// Dispatcher sends an alert only when a symbol's direction changes. A FLAT
// reading resets the symbol so the next LONG or SHORT is sent again.
type Dispatcher struct {
	notifier Notifier
	log      zerolog.Logger
	timeout  time.Duration

	mu   sync.Mutex
	last map[string]indicator.Direction
	wg   sync.WaitGroup
}

func NewDispatcher(n Notifier, log zerolog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Dispatcher{
		notifier: n,
		log:      log.With().Str("component", "notifier").Logger(),
		timeout:  timeout,
		last:     make(map[string]indicator.Direction),
	}
}

// ShouldSend reports whether direction differs from the last one seen for
// symbol, and remembers it.
func (d *Dispatcher) ShouldSend(symbol string, direction indicator.Direction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if direction == indicator.Flat {
		delete(d.last, symbol)
		return false
	}
	if d.last[symbol] == direction {
		return false
	}
	d.last[symbol] = direction
	return true
}

// Dispatch sends msg in the background when the direction changed. The send
// outlives ctx cancellation so Wait can drain it on shutdown.
func (d *Dispatcher) Dispatch(ctx context.Context, symbol string, direction indicator.Direction, msg Message) bool {
	if !d.ShouldSend(symbol, direction) {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.notifier.Send(sendCtx, msg); err != nil {
			d.log.Error().Err(err).Str("symbol", symbol).Str("direction", string(direction)).Msg("alert failed")
			return
		}
		d.log.Info().Str("symbol", symbol).Str("direction", string(direction)).Msg("alert sent")
	}()
	return true
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
