package msg

// Message type discriminators. Values are wire-visible and must not change.
const (
	TypeSkipWaiting       = "SKIP_WAITING"
	TypeShowNotification  = "SHOW_NOTIFICATION"
	TypeNotificationShown = "NOTIFICATION_SHOWN"
)

// Message is one protocol message in either direction.
type Message struct {
	Type    string         `json:"type"`
	Title   string         `json:"title,omitempty"`
	Body    string         `json:"body,omitempty"`
	Tag     string         `json:"tag,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Reply is posted back over a reply port for SHOW_NOTIFICATION.
type Reply struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Port is a single-use reply channel. NewPort returns a buffered port so
// the worker can post without a listener being ready.
type Port chan Reply

// NewPort creates a reply port with room for one reply.
func NewPort() Port {
	return make(Port, 1)
}

// Post delivers a reply without blocking. A second post on a used port is
// dropped rather than stalling the worker.
func (p Port) Post(r Reply) {
	if p == nil {
		return
	}
	select {
	case p <- r:
	default:
	}
}
