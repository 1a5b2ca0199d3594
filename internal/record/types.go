package record

import "net/http"

// EventKind identifies the worker event that produced a log entry.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
	EventSync              EventKind = "sync"
	EventPeriodicSync      EventKind = "periodicsync"
	EventMessage           EventKind = "message"
)

// Event is one handled worker event, stamped with a logical clock value.
// Events are appended to the durable log as each handler completes, so the
// log reflects the order work was actually performed in.
type Event struct {
	ID     string         `json:"id"`
	Kind   EventKind      `json:"kind"`
	Seq    int64          `json:"seq"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Action is a named notification button with an associated intent.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is the normalized record constructed per push event.
// It is ephemeral: created on push, shown via the notifier, optionally
// echoed to open clients, and discarded once dismissed or clicked.
type Notification struct {
	ID                 string         `json:"id,omitempty"`
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	Actions            []Action       `json:"actions,omitempty"`
	RequireInteraction bool           `json:"require_interaction,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// DefaultNotification seeds the fixed record shown when a push payload
// cannot be parsed or carries no data.
func DefaultNotification() Notification {
	return Notification{
		Title: "Task Manager",
		Body:  "You have a new notification",
		Icon:  "/icons/icon-192.png",
		Tag:   "task-notification",
		Actions: []Action{
			{Action: "view", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}
}

// CachedResponse is one URL entry inside a cache bucket.
type CachedResponse struct {
	Bucket      string      `json:"bucket"`
	URL         string      `json:"url"`
	Status      int         `json:"status"`
	Header      http.Header `json:"header"`
	Body        []byte      `json:"body"`
	ContentHash string      `json:"content_hash"`
	Seq         int64       `json:"seq"`
}

// Bucket is a named cache bucket. At most one bucket is current once
// activation has completed; all others are garbage.
type Bucket struct {
	Name       string `json:"name"`
	Current    bool   `json:"current"`
	CreatedSeq int64  `json:"created_seq"`
}

// PendingTask is a locally queued task awaiting background sync, plus an
// optional due time consumed by the periodic reminder scan.
type PendingTask struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Payload    string `json:"payload,omitempty"`
	DueAt      int64  `json:"due_at,omitempty"` // unix seconds, 0 = no reminder
	CreatedSeq int64  `json:"created_seq"`
	SyncedAt   int64  `json:"synced_at,omitempty"` // unix seconds, 0 = pending
}
