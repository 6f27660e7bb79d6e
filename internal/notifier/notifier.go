// Package notifier delivers signal alerts over email, SMS and Telegram.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rsicross/internal/indicator"
)

type Message struct {
	Subject string
	Body    string
}

// Text renders the message for transports without a subject line.
func (m Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	return m.Subject + "\n" + m.Body
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retry resends a failed message up to Attempts times, waiting Delay between
// tries.
type Retry struct {
	Next     Notifier
	Attempts int
	Delay    time.Duration
}

func (r Retry) Send(ctx context.Context, msg Message) error {
	attempts := max(r.Attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(r.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("send cancelled after %d attempts: %w", i, errors.Join(err, ctx.Err()))
			case <-timer.C:
			}
		}
		if err = r.Next.Send(ctx, msg); err == nil {
			return nil
		}
	}
	return fmt.Errorf("send failed after %d attempts: %w", attempts, err)
}

// FormatSignal renders a crossover alert for symbol.
func FormatSignal(symbol string, eval indicator.Evaluation, low, high float64) Message {
	var b strings.Builder
	rsi, hasRSI := eval.RSILatest.TakeOr(0), eval.RSILatest.IsSome()
	fmt.Fprintf(&b, "RSI(%d): %s\n", eval.Window, formatOptional(rsi, hasRSI))
	ewma, hasEWMA := eval.EWMALatest.TakeOr(0), eval.EWMALatest.IsSome()
	fmt.Fprintf(&b, "RSI EWMA: %s\n", formatOptional(ewma, hasEWMA))
	fmt.Fprintf(&b, "Delta: %+.2f\n", eval.Signal.Delta)
	if hasRSI {
		fmt.Fprintf(&b, "Zone: %s\n", indicator.Classify(rsi, low, high))
	}
	fmt.Fprintf(&b, "Price: %.2f", eval.Price.Price)
	if !eval.Price.Time.IsZero() {
		fmt.Fprintf(&b, " (%s)", eval.Price.Time.Format("2006-01-02 15:04 MST"))
	}

	direction := eval.Signal.Direction
	if direction == "" {
		direction = indicator.Flat
	}
	return Message{
		Subject: fmt.Sprintf("%s %s", symbol, direction),
		Body:    b.String(),
	}
}

func formatOptional(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
