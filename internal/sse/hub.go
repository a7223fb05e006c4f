// Package sse pushes pipeline events to the kiosk front end over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"sync"

	"github.com/LakePipiCAKA/self-discovery/internal/pipeline"

	log "github.com/sirupsen/logrus"
)

// Client is a per-connection message channel.
type Client chan []byte

// Hub manages the set of active clients and broadcasts pipeline events to
// them. It implements pipeline.Notifier.
type Hub struct {
	clients map[Client]bool

	broadcast  chan []byte
	register   chan Client
	unregister chan Client

	mu sync.Mutex
}

// NewHub creates a hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run processes register/unregister/broadcast requests until the process
// exits.
func (h *Hub) Run() {
	log.Info("SSE hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debugf("SSE client registered, total: %d", len(h.clients))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Debugf("SSE client unregistered, total: %d", len(h.clients))
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Slow client; drop the message rather than stall
					// the tick loop behind it.
					log.Warn("SSE client channel full, skipping message")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client to the hub.
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast sends raw bytes to all registered clients without blocking the
// caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// Notify implements pipeline.Notifier by serializing the event as JSON.
func (h *Hub) Notify(ev pipeline.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Failed to marshal SSE event: %v", err)
		return
	}
	h.Broadcast(data)
}
