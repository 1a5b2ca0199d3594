package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/lumenhq/offworker/internal/msg"
	"github.com/lumenhq/offworker/internal/notify"
	"github.com/lumenhq/offworker/internal/push"
	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
)

// State is the worker's lifecycle position.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled // waiting
	StateActivating
	StateActive
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Lifecycle is the cache lifecycle manager contract.
// Implemented by bucket.Manager.
type Lifecycle interface {
	Install(ctx context.Context) error
	Activate(ctx context.Context) error
}

// Syncer is the background/periodic sync contract.
// Implemented by syncq.Syncer.
type Syncer interface {
	SyncTasks(ctx context.Context) error
	RemindDue(ctx context.Context) error
}

// Default sync hook tags. Events carrying any other tag are ignored.
const (
	BackgroundSyncTag = "background-sync-tasks"
	PeriodicSyncTag   = "task-reminders"
)

// Worker is the single-writer offline worker event loop.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - State(): safe from any goroutine
type Worker struct {
	store      *store.Store
	lifecycle  Lifecycle
	dispatcher *notify.Dispatcher
	renderer   *notify.Renderer
	syncer     Syncer

	backgroundTag string
	periodicTag   string
	autoActivate  bool

	queue *eventQueue
	clock *Clock
	ids   IDGenerator
	state atomic.Int32
	log   *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithSyncTags overrides the sync hook tags.
func WithSyncTags(background, periodic string) Option {
	return func(w *Worker) {
		w.backgroundTag = background
		w.periodicTag = periodic
	}
}

// WithAutoActivate controls whether a completed install immediately
// chains into activation. The production worker calls skip-waiting during
// install, so this defaults to true; tests exercising the SKIP_WAITING
// message disable it to observe the waiting state.
func WithAutoActivate(auto bool) Option {
	return func(w *Worker) {
		w.autoActivate = auto
	}
}

// WithClock installs a pre-configured clock, used when resuming over an
// existing event log or for deterministic tests.
func WithClock(c *Clock) Option {
	return func(w *Worker) {
		w.clock = c
	}
}

// New creates a Worker. The logger may be nil.
func New(
	s *store.Store,
	lifecycle Lifecycle,
	dispatcher *notify.Dispatcher,
	renderer *notify.Renderer,
	syncer Syncer,
	ids IDGenerator,
	log *slog.Logger,
	opts ...Option,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		store:         s,
		lifecycle:     lifecycle,
		dispatcher:    dispatcher,
		renderer:      renderer,
		syncer:        syncer,
		backgroundTag: BackgroundSyncTag,
		periodicTag:   PeriodicSyncTag,
		autoActivate:  true,
		queue:         newEventQueue(),
		clock:         NewClock(),
		ids:           ids,
		log:           log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.log.Debug("worker state", "state", s.String())
}

// Clock exposes the worker's logical clock so the router can stamp
// write-through cache entries with consistent seq values.
func (w *Worker) Clock() *Clock {
	return w.clock
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false if the worker has been stopped.
func (w *Worker) Enqueue(ev Event) bool {
	return w.queue.Enqueue(ev)
}

// SkipWaiting promotes a waiting worker to activation without requiring
// old pages to close. Safe from any goroutine; a worker that is not
// waiting ignores the request (activation is already past or pending).
func (w *Worker) SkipWaiting() {
	if w.State() == StateInstalled {
		w.Enqueue(Event{Kind: record.EventActivate})
	}
}

// Close stops accepting events. The Run loop drains what is queued and
// returns.
func (w *Worker) Close() {
	w.queue.Close()
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Close() is called and the
// queue drains.
//
// ERROR HANDLING: On handler failure, the error is logged with full event
// context and processing continues. Retries would make replay
// non-deterministic; operators use the logged context instead.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting")

	for {
		event, ok := w.queue.TryDequeue()
		if ok {
			w.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("worker stopping: context cancelled")
			w.queue.Close()
			return ctx.Err()

		case _, open := <-w.queue.Wait():
			// A received token means events may be available; the
			// channel only closes when the queue closes. A token can
			// be stale (coalesced while an earlier event was being
			// processed), so an empty queue alone never ends the loop.
			if !open && w.queue.Len() == 0 {
				w.log.Info("worker stopping: queue closed")
				return nil
			}
		}
	}
}

// processEvent routes one event to its handler, waits for registered
// work, logs handler errors, and appends the event to the durable log.
func (w *Worker) processEvent(ctx context.Context, ev Event) {
	seq := w.clock.Next()
	ext := newExtendable()

	detail := w.dispatch(ctx, ev, ext)

	for _, err := range ext.Wait() {
		w.log.Error("event handler error",
			"event", string(ev.Kind),
			"seq", seq,
			"error", err,
		)
	}

	id, err := record.EventID(ev.Kind, seq, detail)
	if err != nil {
		w.log.Error("failed to compute event id", "event", string(ev.Kind), "error", err)
		return
	}
	if err := w.store.AppendEvent(ctx, record.Event{
		ID:     id,
		Kind:   ev.Kind,
		Seq:    seq,
		Detail: detail,
	}); err != nil {
		w.log.Error("failed to append event", "event", string(ev.Kind), "error", err)
	}
}

// dispatch invokes the handler for an event kind and returns the detail
// recorded in the event log. Details must stay deterministic: no IDs from
// the generator, no wall-clock values.
func (w *Worker) dispatch(ctx context.Context, ev Event, ext *Extendable) map[string]any {
	switch ev.Kind {
	case record.EventInstall:
		return w.handleInstall(ctx, ext)
	case record.EventActivate:
		return w.handleActivate(ctx, ext)
	case record.EventPush:
		return w.handlePush(ctx, ev, ext)
	case record.EventNotificationClick:
		return w.handleClick(ctx, ev, ext)
	case record.EventSync:
		return w.handleSync(ctx, ev, ext)
	case record.EventPeriodicSync:
		return w.handlePeriodicSync(ctx, ev, ext)
	case record.EventMessage:
		return w.handleMessage(ctx, ev, ext)
	default:
		w.log.Warn("unknown event kind", "kind", string(ev.Kind))
		return map[string]any{"ignored": true}
	}
}

func (w *Worker) handleInstall(ctx context.Context, ext *Extendable) map[string]any {
	w.setState(StateInstalling)

	ext.WaitUntil(func() error {
		if err := w.lifecycle.Install(ctx); err != nil {
			// Best-effort offline support rather than all-or-nothing:
			// the worker still proceeds to installed.
			return newHandlerError(ErrCodeCachePopulate, record.EventInstall,
				"cache population failed, worker will activate with partial cache", err)
		}
		return nil
	})
	ext.Wait()

	w.setState(StateInstalled)

	if w.autoActivate {
		// Skip waiting: force immediate activation without waiting for
		// existing workers to release control.
		w.Enqueue(Event{Kind: record.EventActivate})
	}
	return map[string]any{"state": StateInstalled.String()}
}

func (w *Worker) handleActivate(ctx context.Context, ext *Extendable) map[string]any {
	if w.State() == StateActive {
		return map[string]any{"state": StateActive.String(), "noop": true}
	}
	w.setState(StateActivating)

	ext.WaitUntil(func() error {
		if err := w.lifecycle.Activate(ctx); err != nil {
			return newHandlerError(ErrCodeCachePopulate, record.EventActivate,
				"activation housekeeping failed", err)
		}
		return nil
	})
	ext.Wait()

	w.setState(StateActive)
	return map[string]any{"state": StateActive.String()}
}

func (w *Worker) handlePush(ctx context.Context, ev Event, ext *Extendable) map[string]any {
	n := push.Parse(ev.Payload, w.renderer.Default(), w.log)
	n.ID = w.ids.Generate()

	ext.WaitUntil(func() error {
		if err := w.dispatcher.Show(ctx, n); err != nil {
			return newHandlerError(ErrCodeNotificationShow, record.EventPush,
				"failed to show push notification", err)
		}
		return nil
	})

	return map[string]any{"title": n.Title, "tag": n.Tag}
}

func (w *Worker) handleClick(ctx context.Context, ev Event, ext *Extendable) map[string]any {
	click := ev.Click
	if click == nil {
		click = &ClickInfo{}
	}

	ext.WaitUntil(func() error {
		return w.dispatcher.HandleClick(ctx, click.Tag, click.Action)
	})

	detail := map[string]any{"tag": click.Tag}
	if click.Action != "" {
		detail["action"] = click.Action
	}
	return detail
}

func (w *Worker) handleSync(ctx context.Context, ev Event, ext *Extendable) map[string]any {
	if ev.Tag != w.backgroundTag {
		return map[string]any{"tag": ev.Tag, "ignored": true}
	}

	ext.WaitUntil(func() error {
		// Sync errors are logged, never rethrown: propagating would make
		// the platform reschedule unbounded retries.
		if err := w.syncer.SyncTasks(ctx); err != nil {
			w.log.Error("background sync failed", "tag", ev.Tag, "error", err)
		}
		return nil
	})
	return map[string]any{"tag": ev.Tag}
}

func (w *Worker) handlePeriodicSync(ctx context.Context, ev Event, ext *Extendable) map[string]any {
	if ev.Tag != w.periodicTag {
		return map[string]any{"tag": ev.Tag, "ignored": true}
	}

	ext.WaitUntil(func() error {
		if err := w.syncer.RemindDue(ctx); err != nil {
			w.log.Error("periodic sync failed", "tag", ev.Tag, "error", err)
		}
		return nil
	})
	return map[string]any{"tag": ev.Tag}
}

func (w *Worker) handleMessage(ctx context.Context, ev Event, ext *Extendable) map[string]any {
	m := ev.Message
	if m == nil {
		return map[string]any{"ignored": true}
	}

	switch m.Type {
	case msg.TypeSkipWaiting:
		w.SkipWaiting()
		ev.Port.Post(msg.Reply{Success: true})
		return map[string]any{"type": m.Type}

	case msg.TypeShowNotification:
		n := w.notificationFromMessage(m)
		port := ev.Port
		ext.WaitUntil(func() error {
			if err := w.dispatcher.Show(ctx, n); err != nil {
				port.Post(msg.Reply{Error: err.Error()})
				return newHandlerError(ErrCodeNotificationShow, record.EventMessage,
					"failed to show requested notification", err)
			}
			port.Post(msg.Reply{Success: true})
			return nil
		})
		return map[string]any{"type": m.Type, "title": n.Title}

	default:
		w.log.Warn("unrecognized message type", "type", m.Type)
		ev.Port.Post(msg.Reply{Error: "unrecognized message type: " + m.Type})
		return map[string]any{"type": m.Type, "ignored": true}
	}
}

// notificationFromMessage builds the notification for a SHOW_NOTIFICATION
// command: localized defaults, the caller's title, then options applied
// field by field.
func (w *Worker) notificationFromMessage(m *msg.Message) record.Notification {
	n := w.renderer.Default()
	if m.Title != "" {
		n.Title = m.Title
	}
	n.Body = ""
	if m.Options != nil {
		if body, ok := m.Options["body"].(string); ok {
			n.Body = body
		}
		if icon, ok := m.Options["icon"].(string); ok {
			n.Icon = icon
		}
		if tag, ok := m.Options["tag"].(string); ok {
			n.Tag = tag
		}
		if ri, ok := m.Options["requireInteraction"].(bool); ok {
			n.RequireInteraction = ri
		}
		if data, ok := m.Options["data"].(map[string]any); ok {
			n.Data = data
		}
	}
	n.ID = w.ids.Generate()
	return n
}
