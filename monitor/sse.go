package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/kbukum/dwiflow/logger"
)

// EventConnected is the first event of every stream.
const EventConnected = "connected"

type connectedEvent struct {
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

// ServeSSE streams hub events to one client until the request ends or the
// hub stops.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, clientID, topic string, keepAlive time.Duration) {
	log := logger.WithComponent("monitor.sse").WithFields(logger.Fields("client_id", clientID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	client := NewClient(clientID, topic)
	if _, err := path.Match(client.topic, ""); err != nil {
		http.Error(w, "invalid topic pattern", http.StatusBadRequest)
		return
	}

	// Streams are long-lived; the server's write timeout must not cut them.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not disable write deadline", logger.Fields(logger.FieldError, err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if !hub.Register(client) {
		http.Error(w, "monitor is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	hello, _ := json.Marshal(Event{Type: EventConnected, Time: time.Now().UTC(), Data: connectedEvent{ClientID: clientID, Topic: client.topic}})
	writeEvent(w, EventConnected, hello)
	flusher.Flush()
	log.Debug("client connected", logger.Fields("remote_addr", r.RemoteAddr))

	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected")
			return

		case f, ok := <-client.events:
			if !ok {
				return
			}
			writeEvent(w, f.typ, f.data)
			flusher.Flush()

		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, typ string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data)
}
