package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/offworker/internal/clients"
	"github.com/lumenhq/offworker/internal/msg"
	"github.com/lumenhq/offworker/internal/notify"
	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
	"github.com/lumenhq/offworker/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLifecycle struct {
	mu          sync.Mutex
	installs    int
	activates   int
	installErr  error
	activateErr error
}

func (s *stubLifecycle) Install(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installs++
	return s.installErr
}

func (s *stubLifecycle) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activates++
	return s.activateErr
}

func (s *stubLifecycle) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installs, s.activates
}

type stubSyncer struct {
	mu      sync.Mutex
	syncs   int
	reminds int
	syncErr error
}

func (s *stubSyncer) SyncTasks(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
	return s.syncErr
}

func (s *stubSyncer) RemindDue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminds++
	return nil
}

func (s *stubSyncer) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs, s.reminds
}

// fixture runs a worker over a stub lifecycle and syncer with the real
// dispatcher, registry, and durable store underneath it.
type fixture struct {
	t         *testing.T
	worker    *Worker
	store     *store.Store
	notifier  *testutil.CaptureNotifier
	registry  *clients.Registry
	lifecycle *stubLifecycle
	syncer    *stubSyncer

	done     chan error
	stopOnce sync.Once
	runErr   error
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	notifier := testutil.NewCaptureNotifier()
	registry := clients.NewRegistry(testutil.NewFixedIDGenerator("c1", "c2"))
	dispatcher := notify.NewDispatcher(notifier, registry, testLogger())
	renderer := notify.NewRenderer("en")
	lifecycle := &stubLifecycle{}
	syncer := &stubSyncer{}
	ids := testutil.NewFixedIDGenerator("n1", "n2", "n3")

	w := New(st, lifecycle, dispatcher, renderer, syncer, ids, testLogger(), opts...)

	f := &fixture{
		t:         t,
		worker:    w,
		store:     st,
		notifier:  notifier,
		registry:  registry,
		lifecycle: lifecycle,
		syncer:    syncer,
		done:      make(chan error, 1),
	}
	go func() { f.done <- w.Run(context.Background()) }()
	t.Cleanup(func() { f.stop() })
	return f
}

// stop closes the queue and waits for the loop to drain and return.
func (f *fixture) stop() error {
	f.stopOnce.Do(func() {
		f.worker.Close()
		f.runErr = <-f.done
	})
	return f.runErr
}

func (f *fixture) waitForState(s State) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return f.worker.State() == s
	}, 2*time.Second, 5*time.Millisecond, "worker never reached state %s", s)
}

func (f *fixture) events() []record.Event {
	f.t.Helper()
	evs, err := f.store.ReadEvents(context.Background())
	require.NoError(f.t, err)
	return evs
}

func eventKinds(evs []record.Event) []string {
	kinds := make([]string, len(evs))
	for i, ev := range evs {
		kinds[i] = string(ev.Kind)
	}
	return kinds
}

func TestWorker_InstallChainsIntoActivation(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.worker.Enqueue(Event{Kind: record.EventInstall}))
	f.waitForState(StateActive)
	require.NoError(t, f.stop())

	installs, activates := f.lifecycle.counts()
	assert.Equal(t, 1, installs)
	assert.Equal(t, 1, activates)

	evs := f.events()
	require.Equal(t, []string{"install", "activate"}, eventKinds(evs))
	assert.Equal(t, "installed", evs[0].Detail["state"])
	assert.Equal(t, "active", evs[1].Detail["state"])
}

func TestWorker_LoopOutlivesSelfEnqueuedActivation(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateActive)

	// The install handler enqueues activate while install is still being
	// processed, leaving a coalesced wakeup token behind after the queue
	// drains. The loop must treat that token as a wakeup, not a closure,
	// and keep serving events delivered afterwards.
	require.True(t, f.worker.Enqueue(Event{
		Kind:    record.EventPush,
		Payload: []byte("Later|Still running"),
	}))
	require.Eventually(t, func() bool {
		return len(f.notifier.Shown()) == 1
	}, 2*time.Second, 5*time.Millisecond, "push after activation was never processed")

	require.NoError(t, f.stop())
	assert.Equal(t, []string{"install", "activate", "push"}, eventKinds(f.events()))
}

func TestWorker_AutoActivateOffLeavesWorkerWaiting(t *testing.T) {
	f := newFixture(t, WithAutoActivate(false))

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateInstalled)
	require.NoError(t, f.stop())

	_, activates := f.lifecycle.counts()
	assert.Zero(t, activates)
	assert.Equal(t, []string{"install"}, eventKinds(f.events()))
}

func TestWorker_InstallFailureStillReachesInstalled(t *testing.T) {
	f := newFixture(t, WithAutoActivate(false))
	f.lifecycle.installErr = assert.AnError

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateInstalled)
	require.NoError(t, f.stop())

	// The failure is logged, the event is still recorded.
	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, record.EventInstall, evs[0].Kind)
}

func TestWorker_SkipWaitingMessagePromotesWaitingWorker(t *testing.T) {
	f := newFixture(t, WithAutoActivate(false))

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateInstalled)

	port := msg.NewPort()
	f.worker.Enqueue(Event{
		Kind:    record.EventMessage,
		Message: &msg.Message{Type: msg.TypeSkipWaiting},
		Port:    port,
	})
	f.waitForState(StateActive)

	select {
	case reply := <-port:
		assert.True(t, reply.Success)
	case <-time.After(time.Second):
		t.Fatal("no reply posted for SKIP_WAITING")
	}

	require.NoError(t, f.stop())
	assert.Equal(t, []string{"install", "message", "activate"}, eventKinds(f.events()))
}

func TestWorker_SkipWaitingIgnoredOutsideWaitingState(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateActive)

	// Already active: no second activation is enqueued.
	f.worker.SkipWaiting()
	require.NoError(t, f.stop())

	assert.Equal(t, []string{"install", "activate"}, eventKinds(f.events()))
}

func TestWorker_RepeatedActivateIsNoop(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateActive)
	f.worker.Enqueue(Event{Kind: record.EventActivate})
	require.NoError(t, f.stop())

	evs := f.events()
	require.Len(t, evs, 3)
	assert.Equal(t, true, evs[2].Detail["noop"])

	_, activates := f.lifecycle.counts()
	assert.Equal(t, 1, activates)
}

func TestWorker_PushShowsNotificationAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	page := f.registry.Register("/tasks")

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateActive)
	f.worker.Enqueue(Event{
		Kind:    record.EventPush,
		Payload: []byte(`{"title":"High priority","body":"Task overdue"}`),
	})
	require.NoError(t, f.stop())

	shown := f.notifier.Shown()
	require.Len(t, shown, 1)
	assert.Equal(t, "Task overdue", shown[0].Title)
	assert.Equal(t, "High priority", shown[0].Body)
	assert.Equal(t, "task-notification", shown[0].Tag)

	select {
	case m := <-page.Messages():
		assert.Equal(t, msg.TypeNotificationShown, m.Type)
		assert.Equal(t, "Task overdue", m.Title)
	default:
		t.Fatal("no NOTIFICATION_SHOWN mirrored to the page")
	}

	evs := f.events()
	last := evs[len(evs)-1]
	assert.Equal(t, record.EventPush, last.Kind)
	assert.Equal(t, "Task overdue", last.Detail["title"])
	assert.Equal(t, "task-notification", last.Detail["tag"])
}

func TestWorker_EmptyPushFallsBackToDefaults(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventPush, Payload: nil})
	require.NoError(t, f.stop())

	shown := f.notifier.Shown()
	require.Len(t, shown, 1)
	assert.Equal(t, "Task Manager", shown[0].Title)
	assert.Equal(t, "You have a new notification", shown[0].Body)
}

func TestWorker_ClickFocusesExistingRootClient(t *testing.T) {
	f := newFixture(t)
	home := f.registry.Register("/")
	f.registry.Register("/settings")

	f.worker.Enqueue(Event{
		Kind:  record.EventNotificationClick,
		Click: &ClickInfo{Tag: "task-notification"},
	})
	require.NoError(t, f.stop())

	assert.Equal(t, []string{"task-notification"}, f.notifier.Closed())
	focused, _ := f.registry.Get(home.ID)
	assert.True(t, focused.Focused)
	assert.Len(t, f.registry.List(), 2, "no new window is opened when one exists at the root")
}

func TestWorker_ClickOpensWindowWhenNoRootClient(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{
		Kind:  record.EventNotificationClick,
		Click: &ClickInfo{Tag: "task-notification", Action: "view"},
	})
	require.NoError(t, f.stop())

	list := f.registry.List()
	require.Len(t, list, 1)
	assert.Equal(t, "/", list[0].URL)
	assert.True(t, list[0].Focused)

	evs := f.events()
	assert.Equal(t, "view", evs[0].Detail["action"])
}

func TestWorker_DismissActionClosesWithoutNavigation(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{
		Kind:  record.EventNotificationClick,
		Click: &ClickInfo{Tag: "task-notification", Action: notify.ActionDismiss},
	})
	require.NoError(t, f.stop())

	assert.Equal(t, []string{"task-notification"}, f.notifier.Closed())
	assert.Empty(t, f.registry.List())
}

func TestWorker_ShowNotificationMessageRepliesSuccess(t *testing.T) {
	f := newFixture(t)

	port := msg.NewPort()
	f.worker.Enqueue(Event{
		Kind: record.EventMessage,
		Message: &msg.Message{
			Type:  msg.TypeShowNotification,
			Title: "Deploy finished",
			Options: map[string]any{
				"body":               "v2 is live",
				"tag":                "deploy",
				"requireInteraction": true,
			},
		},
		Port: port,
	})
	require.NoError(t, f.stop())

	select {
	case reply := <-port:
		assert.True(t, reply.Success)
		assert.Empty(t, reply.Error)
	case <-time.After(time.Second):
		t.Fatal("no reply posted")
	}

	shown := f.notifier.Shown()
	require.Len(t, shown, 1)
	assert.Equal(t, "Deploy finished", shown[0].Title)
	assert.Equal(t, "v2 is live", shown[0].Body)
	assert.Equal(t, "deploy", shown[0].Tag)
	assert.True(t, shown[0].RequireInteraction)
}

func TestWorker_ShowNotificationFailureRepliesError(t *testing.T) {
	f := newFixture(t)
	f.notifier.FailShow = true

	port := msg.NewPort()
	f.worker.Enqueue(Event{
		Kind:    record.EventMessage,
		Message: &msg.Message{Type: msg.TypeShowNotification, Title: "x"},
		Port:    port,
	})
	require.NoError(t, f.stop())

	select {
	case reply := <-port:
		assert.False(t, reply.Success)
		assert.Contains(t, reply.Error, "notifier unavailable")
	case <-time.After(time.Second):
		t.Fatal("no reply posted")
	}
}

func TestWorker_UnknownMessageTypeRepliesError(t *testing.T) {
	f := newFixture(t)

	port := msg.NewPort()
	f.worker.Enqueue(Event{
		Kind:    record.EventMessage,
		Message: &msg.Message{Type: "CLEAR_CACHE"},
		Port:    port,
	})
	require.NoError(t, f.stop())

	select {
	case reply := <-port:
		assert.Contains(t, reply.Error, "CLEAR_CACHE")
	case <-time.After(time.Second):
		t.Fatal("no reply posted")
	}
}

func TestWorker_SyncRunsForMatchingTagOnly(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventSync, Tag: "unrelated"})
	f.worker.Enqueue(Event{Kind: record.EventSync, Tag: BackgroundSyncTag})
	require.NoError(t, f.stop())

	syncs, _ := f.syncer.counts()
	assert.Equal(t, 1, syncs)

	evs := f.events()
	require.Len(t, evs, 2)
	assert.Equal(t, true, evs[0].Detail["ignored"])
	assert.Nil(t, evs[1].Detail["ignored"])
}

func TestWorker_SyncErrorIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.syncer.syncErr = assert.AnError

	f.worker.Enqueue(Event{Kind: record.EventSync, Tag: BackgroundSyncTag})
	f.worker.Enqueue(Event{Kind: record.EventPush, Payload: []byte("hello")})
	require.NoError(t, f.stop())

	// The failed sync never stops the loop: the push after it is handled.
	require.Len(t, f.notifier.Shown(), 1)
	assert.Equal(t, []string{"sync", "push"}, eventKinds(f.events()))
}

func TestWorker_PeriodicSyncRemindsDue(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventPeriodicSync, Tag: PeriodicSyncTag})
	f.worker.Enqueue(Event{Kind: record.EventPeriodicSync, Tag: "not-reminders"})
	require.NoError(t, f.stop())

	_, reminds := f.syncer.counts()
	assert.Equal(t, 1, reminds)
}

func TestWorker_SyncTagsAreConfigurable(t *testing.T) {
	f := newFixture(t, WithSyncTags("custom-sync", "custom-reminders"))

	f.worker.Enqueue(Event{Kind: record.EventSync, Tag: BackgroundSyncTag})
	f.worker.Enqueue(Event{Kind: record.EventSync, Tag: "custom-sync"})
	f.worker.Enqueue(Event{Kind: record.EventPeriodicSync, Tag: "custom-reminders"})
	require.NoError(t, f.stop())

	syncs, reminds := f.syncer.counts()
	assert.Equal(t, 1, syncs)
	assert.Equal(t, 1, reminds)
}

func TestWorker_EventLogCarriesContentAddressedIDs(t *testing.T) {
	f := newFixture(t)

	f.worker.Enqueue(Event{Kind: record.EventInstall})
	f.waitForState(StateActive)
	f.worker.Enqueue(Event{Kind: record.EventPush, Payload: []byte("Label|Headline")})
	require.NoError(t, f.stop())

	evs := f.events()
	require.Len(t, evs, 3)
	for i, ev := range evs {
		assert.Equal(t, int64(i+1), ev.Seq)
		id, err := record.EventID(ev.Kind, ev.Seq, ev.Detail)
		require.NoError(t, err)
		assert.Equal(t, id, ev.ID, "stored id must match recomputed hash")
	}
}

func TestWorker_ContextCancelStopsLoop(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	notifier := testutil.NewCaptureNotifier()
	registry := clients.NewRegistry(testutil.NewFixedIDGenerator())
	dispatcher := notify.NewDispatcher(notifier, registry, testLogger())
	w := New(st, &stubLifecycle{}, dispatcher, notify.NewRenderer("en"),
		&stubSyncer{}, testutil.NewFixedIDGenerator(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}

	assert.False(t, w.Enqueue(Event{Kind: record.EventPush}), "queue refuses events after shutdown")
}

func TestExtendable_CollectsErrorsFromAllWork(t *testing.T) {
	ext := newExtendable()
	ext.WaitUntil(func() error { return nil })
	ext.WaitUntil(func() error { return assert.AnError })
	ext.WaitUntil(func() error { return assert.AnError })

	errs := ext.Wait()
	assert.Len(t, errs, 2)
}
