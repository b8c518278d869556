package ws

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.subs[c.id] = make(map[string]struct{})
}

// Unregister removes a client from the hub and all its rooms, then closes
// its send queue. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Check if client exists - prevent double unregister
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	for roomID := range h.subs[c.id] {
		h.unsubscribeLocked(c.id, roomID)
	}
	delete(h.subs, c.id)
	delete(h.clients, c.id)
	close(c.send)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many outbound events were discarded because a
// client could not keep up.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
