package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/lumenhq/offworker/internal/bucket"
	"github.com/lumenhq/offworker/internal/clients"
	"github.com/lumenhq/offworker/internal/msg"
	"github.com/lumenhq/offworker/internal/notify"
	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
	"github.com/lumenhq/offworker/internal/syncq"
	"github.com/lumenhq/offworker/internal/testutil"
	"github.com/lumenhq/offworker/internal/worker"
)

// lifecycleTimeout bounds how long Run waits for install/activation to
// settle before delivering steps.
const lifecycleTimeout = 10 * time.Second

// defaultOffline is used when a scenario config omits the offline path.
const defaultOffline = "/offline.html"

// Result captures everything a scenario's assertions can inspect.
type Result struct {
	// Trace is the durable event log in handling order.
	Trace []record.Event

	// Shown are the notifications displayed, in display order.
	Shown []record.Notification

	// Closed are the notification tags closed, in order.
	Closed []string

	// State is the worker's final lifecycle state.
	State worker.State

	// Replies are the message-step replies, in step order.
	Replies []msg.Reply

	store *store.Store
}

// Store exposes the scenario's state for cache assertions.
func (r *Result) Store() *store.Store {
	return r.store
}

// Close releases the scenario's database.
func (r *Result) Close() error {
	return r.store.Close()
}

// Run executes a scenario against a real worker loop over an in-memory
// store. IDs and the logical clock are deterministic, so the same
// scenario always yields the same trace.
func Run(scenario *Scenario) (*Result, error) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := scenario.Origin[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentTypeFor(r.URL.Path))
		io.WriteString(w, body)
	}))
	defer upstream.Close()
	if len(scenario.Origin) == 0 {
		// No origin content means the upstream is down for the whole run.
		upstream.Close()
	}
	origin, err := url.Parse(upstream.URL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	clock := worker.NewClock()
	ids := testutil.NewFixedIDGenerator()
	notifier := testutil.NewCaptureNotifier()
	registry := clients.NewRegistry(testutil.NewFixedIDGenerator())
	dispatcher := notify.NewDispatcher(notifier, registry, log)
	renderer := notify.NewRenderer(scenario.Config.Locale)

	offline := scenario.Config.Offline
	if offline == "" {
		offline = defaultOffline
	}
	lifecycle := bucket.New(st, nil, origin, scenario.Config.Version,
		scenario.Config.Assets, offline, registry, nil, clock, log)
	syncer := syncq.New(st, nil, origin, dispatcher, renderer, log).
		WithNow(func() time.Time { return time.Unix(1_700_000_000, 0) })

	autoActivate := true
	if scenario.Config.AutoActivate != nil {
		autoActivate = *scenario.Config.AutoActivate
	}
	agent := worker.New(st, lifecycle, dispatcher, renderer, syncer, ids, log,
		worker.WithClock(clock),
		worker.WithAutoActivate(autoActivate),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- agent.Run(ctx) }()

	for _, clientURL := range scenario.Clients {
		registry.Register(clientURL)
	}

	agent.Enqueue(worker.Event{Kind: record.EventInstall})
	settled := worker.StateActive
	if !autoActivate {
		settled = worker.StateInstalled
	}
	if err := waitForState(agent, settled); err != nil {
		st.Close()
		return nil, err
	}

	var ports []msg.Port
	for i, step := range scenario.Steps {
		ev, port, err := eventForStep(step)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if port != nil {
			ports = append(ports, port)
		}
		agent.Enqueue(ev)
	}

	// Close the queue and let the loop drain everything in order.
	agent.Close()
	if err := <-runErr; err != nil && err != context.Canceled {
		st.Close()
		return nil, fmt.Errorf("worker run: %w", err)
	}

	trace, err := st.ReadEvents(context.Background())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("read trace: %w", err)
	}

	result := &Result{
		Trace:  trace,
		Shown:  notifier.Shown(),
		Closed: notifier.Closed(),
		State:  agent.State(),
		store:  st,
	}
	for _, port := range ports {
		select {
		case reply := <-port:
			result.Replies = append(result.Replies, reply)
		default:
			result.Replies = append(result.Replies, msg.Reply{Error: "no reply posted"})
		}
	}
	return result, nil
}

func eventForStep(step Step) (worker.Event, msg.Port, error) {
	switch {
	case step.Push != nil:
		return worker.Event{Kind: record.EventPush, Payload: []byte(*step.Push)}, nil, nil
	case step.Click != nil:
		return worker.Event{
			Kind:  record.EventNotificationClick,
			Click: &worker.ClickInfo{Tag: step.Click.Tag, Action: step.Click.Action},
		}, nil, nil
	case step.Message != nil:
		port := msg.NewPort()
		return worker.Event{Kind: record.EventMessage, Message: step.Message, Port: port}, port, nil
	case step.Sync != nil:
		return worker.Event{Kind: record.EventSync, Tag: *step.Sync}, nil, nil
	case step.PeriodicSync != nil:
		return worker.Event{Kind: record.EventPeriodicSync, Tag: *step.PeriodicSync}, nil, nil
	}
	return worker.Event{}, nil, fmt.Errorf("empty step")
}

// waitForState polls until the worker reaches the wanted lifecycle state.
func waitForState(agent *worker.Worker, want worker.State) error {
	deadline := time.Now().Add(lifecycleTimeout)
	for time.Now().Before(deadline) {
		if agent.State() == want {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("worker did not reach state %s within %s", want, lifecycleTimeout)
}

// contentTypeFor gives scenario upstream responses a plausible type.
func contentTypeFor(path string) string {
	switch {
	case path == "/" || strings.HasSuffix(path, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".css"):
		return "text/css"
	case strings.HasSuffix(path, ".js"):
		return "text/javascript"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".mp3"):
		return "audio/mpeg"
	default:
		return "text/plain; charset=utf-8"
	}
}
