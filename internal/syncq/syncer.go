package syncq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lumenhq/offworker/internal/notify"
	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
)

// syncPath is where queued tasks are pushed on the upstream origin.
const syncPath = "/api/tasks/sync"

// Syncer drains the pending-task queue and issues due-task reminders.
type Syncer struct {
	store      *store.Store
	client     *http.Client
	origin     *url.URL
	dispatcher *notify.Dispatcher
	renderer   *notify.Renderer
	now        func() time.Time
	log        *slog.Logger
}

// New creates a Syncer. client defaults to http.DefaultClient, now to
// time.Now, and the logger to slog.Default().
func New(
	s *store.Store,
	client *http.Client,
	origin *url.URL,
	dispatcher *notify.Dispatcher,
	renderer *notify.Renderer,
	log *slog.Logger,
) *Syncer {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		store:      s,
		client:     client,
		origin:     origin,
		dispatcher: dispatcher,
		renderer:   renderer,
		now:        time.Now,
		log:        log,
	}
}

// WithNow overrides the wall clock, for tests.
func (s *Syncer) WithNow(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// SyncTasks reads locally queued pending tasks and pushes each to the
// upstream sequentially, marking tasks synced as they land. The first
// upstream failure stops the pass; remaining tasks stay queued for the
// next sync event. Always returns nil: sync failure is logged, never
// rethrown.
func (s *Syncer) SyncTasks(ctx context.Context) error {
	tasks, err := s.store.PendingTasks(ctx)
	if err != nil {
		s.log.Error("background sync: failed to read pending tasks", "error", err)
		return nil
	}
	if len(tasks) == 0 {
		s.log.Debug("background sync: nothing pending")
		return nil
	}

	for _, task := range tasks {
		if err := s.pushTask(ctx, task); err != nil {
			s.log.Warn("background sync: task push failed, will retry on next sync",
				"task", task.ID,
				"error", err,
			)
			return nil
		}
		if err := s.store.MarkTaskSynced(ctx, task.ID, s.now().Unix()); err != nil {
			s.log.Error("background sync: failed to mark task synced", "task", task.ID, "error", err)
			return nil
		}
		s.log.Info("background sync: task pushed", "task", task.ID)
	}
	return nil
}

// RemindDue scans for due tasks and shows one notification per task. Each
// reminder carries its own tag so reminders coexist, and requires
// explicit interaction to dismiss. Errors are logged and the scan
// continues with the next task.
func (s *Syncer) RemindDue(ctx context.Context) error {
	due, err := s.store.DueTasks(ctx, s.now().Unix())
	if err != nil {
		s.log.Error("periodic sync: failed to read due tasks", "error", err)
		return nil
	}

	for _, task := range due {
		n := s.renderer.Reminder(task)
		if err := s.dispatcher.Show(ctx, n); err != nil {
			s.log.Warn("periodic sync: failed to show reminder", "task", task.ID, "error", err)
		}
	}
	return nil
}

// pushTask POSTs one task payload to the upstream sync endpoint.
func (s *Syncer) pushTask(ctx context.Context, task record.PendingTask) error {
	u := s.origin.ResolveReference(&url.URL{Path: syncPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(),
		bytes.NewReader([]byte(task.Payload)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Task-ID", task.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
