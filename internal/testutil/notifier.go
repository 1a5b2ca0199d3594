package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/lumenhq/offworker/internal/record"
)

// CaptureNotifier records every shown and closed notification for
// assertions. It implements notify.Notifier.
type CaptureNotifier struct {
	mu     sync.Mutex
	shown  []record.Notification
	closed []string

	// FailShow, when set, makes Show return an error. Used to exercise
	// the worker's error reply paths.
	FailShow bool
}

// NewCaptureNotifier creates an empty capture notifier.
func NewCaptureNotifier() *CaptureNotifier {
	return &CaptureNotifier{}
}

// Show records the notification.
func (c *CaptureNotifier) Show(ctx context.Context, n record.Notification) error {
	if c.FailShow {
		return errors.New("notifier unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, n)
	return nil
}

// Close records the dismissed tag.
func (c *CaptureNotifier) Close(ctx context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, tag)
	return nil
}

// Shown returns a snapshot of shown notifications in display order.
func (c *CaptureNotifier) Shown() []record.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]record.Notification(nil), c.shown...)
}

// Closed returns a snapshot of closed tags in dismissal order.
func (c *CaptureNotifier) Closed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.closed...)
}
