package clients

import (
	"fmt"
	"sync"

	"github.com/lumenhq/offworker/internal/msg"
)

// outboxSize bounds how many undelivered messages a client may hold.
// Overflow drops the newest message; mirroring notifications to pages is
// best-effort by contract.
const outboxSize = 16

// IDGenerator produces unique client IDs.
// Implemented by worker.UUIDv7Generator (production) and
// testutil.FixedIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// Client is a point-in-time view of one open instance of the application.
// The flag fields are a snapshot taken when the value was handed out; the
// message stream stays live. Re-fetch through the registry to observe
// claim or focus changes.
type Client struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Controlled bool   `json:"controlled"`
	Focused    bool   `json:"focused"`

	outbox chan msg.Message
}

// Messages returns the client's inbound message stream.
func (c Client) Messages() <-chan msg.Message {
	return c.outbox
}

// Registry is the set of currently open page instances.
// All methods are safe for concurrent use. The registry never hands out
// pointers to its internal state: callers get value snapshots so the
// worker can mutate claim and focus flags without racing readers.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	order   []string // registration order for deterministic List
	ids     IDGenerator
}

// NewRegistry creates an empty registry.
func NewRegistry(ids IDGenerator) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		ids:     ids,
	}
}

// add inserts a new client. The caller must hold r.mu.
func (r *Registry) add(url string) *Client {
	c := &Client{
		ID:     r.ids.Generate(),
		URL:    url,
		outbox: make(chan msg.Message, outboxSize),
	}
	r.clients[c.ID] = c
	r.order = append(r.order, c.ID)
	return c
}

// Register adds a new client at the given URL and returns a snapshot of
// it. Newly registered clients are NOT controlled until the worker claims
// them.
func (r *Registry) Register(url string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.add(url)
}

// Unregister removes a client and closes its outbox.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return
	}
	delete(r.clients, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	close(c.outbox)
}

// Get returns a snapshot of a client by ID.
func (r *Registry) Get(id string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

// List returns snapshots of all clients in registration order.
func (r *Registry) List() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Client, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.clients[id])
	}
	return out
}

// Broadcast delivers a message to every client, including ones not
// currently controlled by the worker. Delivery is best-effort: a full
// outbox drops the message for that client.
func (r *Registry) Broadcast(m msg.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		c := r.clients[id]
		select {
		case c.outbox <- m:
		default:
		}
	}
}

// Send delivers a message to one client, best-effort.
func (r *Registry) Send(id string, m msg.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return fmt.Errorf("send: client %q not registered", id)
	}
	select {
	case c.outbox <- m:
	default:
	}
	return nil
}

// Focus marks one client focused and clears focus on all others.
func (r *Registry) Focus(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return fmt.Errorf("focus: client %q not registered", id)
	}
	for _, other := range r.clients {
		other.Focused = false
	}
	c.Focused = true
	return nil
}

// OpenWindow registers a new, focused client at the given URL, modeling
// the platform opening a fresh window. Returns a snapshot of it.
func (r *Registry) OpenWindow(url string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.add(url)
	for _, other := range r.clients {
		other.Focused = false
	}
	c.Focused = true
	return *c
}

// ClaimAll marks every client as controlled by the worker, so requests are
// governed without requiring a page reload.
func (r *Registry) ClaimAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.Controlled = true
	}
}
