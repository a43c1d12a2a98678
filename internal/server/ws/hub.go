package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/peopledesk/peopledesk/internal/server/storage"
)

// Hub tracks the open connections per user and fans pushed payloads
// out to all of a user's tabs.
type Hub struct {
	Store *storage.Store

	mu      sync.RWMutex
	clients map[int]map[*Client]bool
	log     *zap.SugaredLogger
}

func NewHub(store *storage.Store, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		Store:   store,
		clients: make(map[int]map[*Client]bool),
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*Client]bool)
	}
	h.clients[c.UserID][c] = true
	h.mu.Unlock()

	h.Store.SetOnline(c.UserID, true)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	online := len(h.clients[c.UserID]) > 0
	h.mu.Unlock()

	close(c.Send)
	if !online {
		h.Store.SetOnline(c.UserID, false)
	}
}

func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// PushTo delivers v to every open connection of userID. Slow
// consumers are skipped rather than blocking the hub.
func (h *Hub) PushTo(userID int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Errorw("marshal push payload", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.Send <- data:
		default:
			h.log.Warnw("dropping push to slow client", "user", userID)
		}
	}
}
