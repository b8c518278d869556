package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/QsSama-W/nimingChat/internal/domain"
)

// Hub tracks live clients and which transport rooms they are subscribed
// to. It implements chat.Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	subs    map[string]map[string]struct{} // connID -> rooms

	readLimit int64
	log       *slog.Logger
	dropped   atomic.Uint64
}

// NewHub creates a hub. readLimit caps inbound frame size in bytes; zero
// means domain.MaxMessageSize.
func NewHub(readLimit int64, logger *slog.Logger) *Hub {
	if readLimit <= 0 {
		readLimit = domain.MaxMessageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		subs:      make(map[string]map[string]struct{}),
		readLimit: readLimit,
		log:       logger,
	}
}

// Subscribe adds a registered connection to a transport room.
func (h *Hub) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = c
	h.subs[connID][roomID] = struct{}{}
}

// Unsubscribe removes a connection from a transport room.
func (h *Hub) Unsubscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(connID, roomID)
}

// DeliverToRoom sends evt to every subscriber of roomID except
// exceptConnID. An empty exceptConnID excludes nobody.
func (h *Hub) DeliverToRoom(roomID string, evt domain.Event, exceptConnID string) {
	data, err := evt.Encode()
	if err != nil {
		h.log.Error("encode event", "event", evt.Name, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[roomID] {
		if id == exceptConnID {
			continue
		}
		h.trySend(c, data)
	}
}

// DeliverToConnection sends evt to one connection.
func (h *Hub) DeliverToConnection(connID string, evt domain.Event) {
	data, err := evt.Encode()
	if err != nil {
		h.log.Error("encode event", "event", evt.Name, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.trySend(c, data)
	}
}

// trySend queues data without blocking; a full buffer drops it.
// NOTE: caller must hold at least h.mu.RLock
func (h *Hub) trySend(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.dropped.Add(1)
		h.log.Warn("client buffer full, event dropped", "conn", c.id)
	}
}

// NOTE: caller must hold h.mu
func (h *Hub) unsubscribeLocked(connID, roomID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if rooms, ok := h.subs[connID]; ok {
		delete(rooms, roomID)
	}
}
