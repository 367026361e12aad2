package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WithSignals returns a context cancelled on SIGINT or SIGTERM.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Step is one named piece of teardown work.
type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Drain runs steps in order under a shared deadline. Every step runs even
// if an earlier one fails; the failures are joined.
func Drain(log *slog.Logger, timeout time.Duration, steps ...Step) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, s := range steps {
		if err := s.Fn(ctx); err != nil {
			log.Error("shutdown step failed", "step", s.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		log.Debug("shutdown step done", "step", s.Name)
	}
	return errors.Join(errs...)
}

// WaitFor returns a step function that blocks until done is closed.
func WaitFor(done <-chan struct{}) func(context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
