package monitor

import (
	"encoding/json"
	"path"
	"sync"
	"time"

	"github.com/kbukum/dwiflow/logger"
)

const (
	clientBuffer    = 256
	broadcastBuffer = 1024
)

// Event is the envelope of every published notification.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type frame struct {
	typ  string
	data []byte
}

// Client is one connected event stream. It receives the events whose type
// matches its topic glob.
type Client struct {
	id     string
	topic  string
	events chan frame
}

// NewClient creates a client subscribed to topic. An empty topic means all
// events.
func NewClient(id, topic string) *Client {
	if topic == "" {
		topic = "*"
	}
	return &Client{
		id:     id,
		topic:  topic,
		events: make(chan frame, clientBuffer),
	}
}

func (c *Client) ID() string    { return c.id }
func (c *Client) Topic() string { return c.topic }

func (c *Client) send(f frame) bool {
	select {
	case c.events <- f:
		return true
	default:
		return false
	}
}

// Hub fans published events out to connected clients. All client
// bookkeeping happens on the goroutine running Run.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, broadcastBuffer),
		done:       make(chan struct{}),
		log:        logger.WithComponent("monitor.hub"),
	}
}

// Run is the hub's event loop. It blocks until Stop is called and closes
// every client stream on the way out.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", client.id, "topic", client.topic, logger.FieldCount, total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.events)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields("client_id", client.id, logger.FieldCount, total))

		case f := <-h.broadcast:
			h.deliver(f)
		}
	}
}

// Stop makes Run return. Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client. It returns false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its stream.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish encodes data into an Event of type typ and queues it for delivery.
// It never blocks: when the queue is full or the hub has stopped the event
// is dropped.
func (h *Hub) Publish(typ string, data any) {
	select {
	case <-h.done:
		return
	default:
	}
	payload, err := json.Marshal(Event{Type: typ, Time: time.Now().UTC(), Data: data})
	if err != nil {
		h.log.Error("event encoding failed", logger.ErrorFields(typ, err))
		return
	}
	select {
	case h.broadcast <- frame{typ: typ, data: payload}:
	default:
		h.log.Warn("event queue full, dropping event", logger.Fields("type", typ))
	}
}

func (h *Hub) deliver(f frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.clients {
		matched, err := path.Match(client.topic, f.typ)
		if err != nil || !matched {
			continue
		}
		if !client.send(f) {
			h.log.Warn("client too slow, dropping event", logger.Fields("client_id", id, "type", f.typ))
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.events)
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
