package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lumenhq/offworker/internal/clients"
	"github.com/lumenhq/offworker/internal/msg"
	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/worker"
)

// replyTimeout bounds how long a message endpoint waits for the event
// loop to answer before giving up on the reply port.
const replyTimeout = 5 * time.Second

// maxPushBytes bounds an injected push payload. Push services cap
// payloads around 4 KiB; anything bigger is a client bug.
const maxPushBytes = 64 << 10

// ControlAPI is the page/platform-facing HTTP surface: the message
// protocol, client registration, and event injection.
type ControlAPI struct {
	worker   *worker.Worker
	registry *clients.Registry
	log      *slog.Logger
}

// NewControlAPI creates the control surface over a worker and its client
// registry. The logger defaults to slog.Default().
func NewControlAPI(w *worker.Worker, registry *clients.Registry, log *slog.Logger) *ControlAPI {
	if log == nil {
		log = slog.Default()
	}
	return &ControlAPI{worker: w, registry: registry, log: log}
}

// Routes builds the mux router for the control API.
func (c *ControlAPI) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", c.handleHealth).Methods(http.MethodGet)

	w := r.PathPrefix("/_worker").Subrouter()
	w.HandleFunc("/message", c.handleMessage).Methods(http.MethodPost)
	w.HandleFunc("/push", c.handlePush).Methods(http.MethodPost)
	w.HandleFunc("/click", c.handleClick).Methods(http.MethodPost)
	w.HandleFunc("/sync/{tag}", c.handleSync).Methods(http.MethodPost)
	w.HandleFunc("/periodic-sync/{tag}", c.handlePeriodicSync).Methods(http.MethodPost)
	w.HandleFunc("/clients", c.handleRegister).Methods(http.MethodPost)
	w.HandleFunc("/clients", c.handleListClients).Methods(http.MethodGet)
	w.HandleFunc("/clients/{id}", c.handleUnregister).Methods(http.MethodDelete)
	w.HandleFunc("/clients/{id}/messages", c.handleDrainMessages).Methods(http.MethodGet)
	return r
}

func (c *ControlAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  c.worker.State().String(),
	})
}

// handleMessage delivers one page → worker message and relays the reply
// port's answer. The event loop answers SKIP_WAITING and
// SHOW_NOTIFICATION; unknown types come back as error replies rather
// than HTTP errors, matching the in-page protocol.
func (c *ControlAPI) handleMessage(w http.ResponseWriter, r *http.Request) {
	var m msg.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, msg.Reply{Error: "malformed message: " + err.Error()})
		return
	}

	port := msg.NewPort()
	if !c.worker.Enqueue(worker.Event{
		Kind:    record.EventMessage,
		Message: &m,
		Port:    port,
	}) {
		writeJSON(w, http.StatusServiceUnavailable, msg.Reply{Error: "worker stopped"})
		return
	}

	select {
	case reply := <-port:
		writeJSON(w, http.StatusOK, reply)
	case <-time.After(replyTimeout):
		writeJSON(w, http.StatusGatewayTimeout, msg.Reply{Error: "no reply from worker"})
	case <-r.Context().Done():
	}
}

func (c *ControlAPI) handlePush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPushBytes))
	if err != nil {
		http.Error(w, "unreadable payload", http.StatusBadRequest)
		return
	}
	if !c.worker.Enqueue(worker.Event{Kind: record.EventPush, Payload: payload}) {
		http.Error(w, "worker stopped", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *ControlAPI) handleClick(w http.ResponseWriter, r *http.Request) {
	var click worker.ClickInfo
	if err := json.NewDecoder(r.Body).Decode(&click); err != nil {
		http.Error(w, "malformed click: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !c.worker.Enqueue(worker.Event{Kind: record.EventNotificationClick, Click: &click}) {
		http.Error(w, "worker stopped", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *ControlAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	c.injectSync(w, record.EventSync, mux.Vars(r)["tag"])
}

func (c *ControlAPI) handlePeriodicSync(w http.ResponseWriter, r *http.Request) {
	c.injectSync(w, record.EventPeriodicSync, mux.Vars(r)["tag"])
}

func (c *ControlAPI) injectSync(w http.ResponseWriter, kind record.EventKind, tag string) {
	if !c.worker.Enqueue(worker.Event{Kind: kind, Tag: tag}) {
		http.Error(w, "worker stopped", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *ControlAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed registration: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.URL == "" {
		body.URL = "/"
	}
	client := c.registry.Register(body.URL)
	c.log.Debug("client registered", "id", client.ID, "url", client.URL)
	writeJSON(w, http.StatusCreated, client)
}

func (c *ControlAPI) handleListClients(w http.ResponseWriter, r *http.Request) {
	list := c.registry.List()
	if list == nil {
		list = []clients.Client{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *ControlAPI) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c.registry.Unregister(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleDrainMessages returns every message queued for the client since
// the last drain. Non-blocking: an empty array means nothing pending.
func (c *ControlAPI) handleDrainMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	client, ok := c.registry.Get(id)
	if !ok {
		http.Error(w, "unknown client", http.StatusNotFound)
		return
	}

	drained := []msg.Message{}
	for {
		select {
		case m, open := <-client.Messages():
			if !open {
				writeJSON(w, http.StatusOK, drained)
				return
			}
			drained = append(drained, m)
		default:
			writeJSON(w, http.StatusOK, drained)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
