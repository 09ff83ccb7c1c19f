// Package notify fans agent alerts (forced exits, failed trades, sweep
// errors) out to Telegram and Discord, filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every Sender whose event passes the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty allows all
	prefix  string
	logger  *slog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. Titles are rendered as "<prefix>: <event>".
func NewNotifier(senders []Sender, events []string, prefix string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if prefix == "" {
		prefix = "vaultagent"
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify forwards message to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, fmt.Sprintf("%s: %s", n.prefix, title(event)), message)
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// title turns "stop_loss" into "stop loss".
func title(event string) string {
	return strings.ReplaceAll(event, "_", " ")
}
