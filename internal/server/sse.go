package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// sseClient represents a connected SSE client.
type sseClient struct {
	events chan string
}

// sseHub manages SSE client connections and broadcasts.
type sseHub struct {
	clients map[*sseClient]bool
	mu      sync.RWMutex
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]bool),
	}
}

func (h *sseHub) register(client *sseClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *sseHub) unregister(client *sseClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.events)
	}
}

// broadcast sends an event to all connected clients. Clients with a full
// buffer miss the event rather than stall the sender.
func (h *sseHub) broadcast(event string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.events <- event:
		default:
		}
	}
}

func (h *sseHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleEvents streams audit events to the admin dashboard over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{events: make(chan string, 16)}
	s.hub.register(client)
	defer s.hub.unregister(client)

	// Initial comment keeps proxies from buffering the empty stream.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-client.events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}
