package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lumenhq/offworker/internal/record"
)

// TrayNotifier is the production Notifier. It models the platform tray:
// at most one visible notification per tag, newer notifications with the
// same tag replace older ones. Display is surfaced through the log and to
// page clients via the dispatcher's broadcast.
type TrayNotifier struct {
	mu      sync.Mutex
	visible map[string]record.Notification
	log     *slog.Logger
}

// NewTrayNotifier creates a tray notifier. The logger may be nil.
func NewTrayNotifier(log *slog.Logger) *TrayNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &TrayNotifier{
		visible: make(map[string]record.Notification),
		log:     log,
	}
}

// Show displays a notification, replacing any visible one with the same tag.
func (t *TrayNotifier) Show(ctx context.Context, n record.Notification) error {
	t.mu.Lock()
	_, replaced := t.visible[n.Tag]
	t.visible[n.Tag] = n
	t.mu.Unlock()

	t.log.Info("notification shown",
		"title", n.Title,
		"tag", n.Tag,
		"replaced", replaced,
		"require_interaction", n.RequireInteraction,
	)
	return nil
}

// Close dismisses the visible notification with the given tag, if any.
func (t *TrayNotifier) Close(ctx context.Context, tag string) error {
	t.mu.Lock()
	_, ok := t.visible[tag]
	delete(t.visible, tag)
	t.mu.Unlock()

	if ok {
		t.log.Debug("notification closed", "tag", tag)
	}
	return nil
}

// Visible returns the currently visible notifications, keyed by tag.
func (t *TrayNotifier) Visible() map[string]record.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]record.Notification, len(t.visible))
	for tag, n := range t.visible {
		out[tag] = n
	}
	return out
}
