// Package notify delivers best-effort operator alerts. Delivery failures
// are logged by implementations, never surfaced to the monitoring path.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends one operator-facing text alert. Fire-and-forget: callers
// ignore the returned error except for logging.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes alerts to the log. The default sink when no webhook is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, text string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("operator notification", "text", text)
	return nil
}

// Multi fans an alert out to several sinks; the first error is returned
// after all sinks were attempted.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
