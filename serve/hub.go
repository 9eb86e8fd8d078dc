// Package serve exposes running sessions to external observers over
// HTTP and WebSocket. The surface is strictly read-only: observers see
// state, scores, and the action log, but every mutation goes through
// the command surface. Evaluation harnesses watch here while the actor
// under test acts elsewhere.
package serve

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

// LogEvent is one observer-feed message: a session's new action record.
type LogEvent struct {
	SessionID string             `json:"session_id"`
	Record    types.ActionRecord `json:"record"`
}

// Hub maintains the set of active observer clients and broadcasts log
// events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	logger     *Logger
}

// NewHub initializes a new observer hub.
func NewHub(log *Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     log,
	}
}

// Run starts the hub's main loop to handle client connections and
// broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Observer hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Observer connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("Observer disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent serializes a log event and sends it to all observers.
func (h *Hub) BroadcastEvent(event LogEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to serialize log event for broadcast: " + err.Error())
		return
	}
	h.broadcast <- payload
}

// StartLogPoller polls the session store and pushes new action records
// to the hub. The hub runs independently from the command surface while
// observing the same persisted log.
func (h *Hub) StartLogPoller(ctx context.Context, store session.Store, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		seen := map[string]int{}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ids, err := store.List()
				if err != nil {
					h.logger.Warn("Log poll failed: " + err.Error())
					continue
				}
				for _, id := range ids {
					s, err := store.Load(id)
					if err != nil {
						continue
					}
					if len(s.Log) > seen[id] {
						for _, rec := range s.Log[seen[id]:] {
							h.BroadcastEvent(LogEvent{SessionID: id, Record: rec})
						}
						seen[id] = len(s.Log)
					}
				}
			}
		}
	}()
}
