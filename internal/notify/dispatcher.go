package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenhq/offworker/internal/clients"
	"github.com/lumenhq/offworker/internal/msg"
	"github.com/lumenhq/offworker/internal/record"
)

// Notifier is the platform notification surface.
// Implementations must replace an existing notification carrying the same
// tag instead of stacking a new one.
type Notifier interface {
	// Show displays a notification.
	Show(ctx context.Context, n record.Notification) error
	// Close dismisses a notification by tag. Closing an unknown tag is a
	// no-op.
	Close(ctx context.Context, tag string) error
}

// Dispatcher shows notifications and mirrors them to open page clients.
type Dispatcher struct {
	notifier Notifier
	registry *clients.Registry
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher. The logger may be nil.
func NewDispatcher(notifier Notifier, registry *clients.Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{notifier: notifier, registry: registry, log: log}
}

// Show displays a notification and then broadcasts NOTIFICATION_SHOWN to
// every open client, including ones the worker does not control yet.
// Display happens-before the broadcast. Broadcast problems are logged and
// swallowed; a failed mirror never fails the notification.
func (d *Dispatcher) Show(ctx context.Context, n record.Notification) error {
	if err := d.notifier.Show(ctx, n); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}

	d.registry.Broadcast(msg.Message{
		Type:  msg.TypeNotificationShown,
		Title: n.Title,
		Body:  n.Body,
		Tag:   n.Tag,
	})
	return nil
}
