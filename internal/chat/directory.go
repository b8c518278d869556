// Package chat is the room core of the relay: which connection is which
// ephemeral user in which room, and how inbound events change that and fan
// out to the transport.
package chat

import (
	"sync"

	"github.com/QsSama-W/nimingChat/internal/domain"
	"github.com/QsSama-W/nimingChat/internal/roomkey"
)

// NameGenerator hands out ephemeral user ids.
type NameGenerator interface {
	Generate() string
}

// JoinResult describes a completed join.
type JoinResult struct {
	UserID      string
	RoomID      string
	IsPublic    bool
	OnlineCount int

	// PreviousRoomID is the room the connection was bound to before this
	// join, empty if it was unbound. Previous is set only when the bound
	// user was still a member there and got removed by this join.
	PreviousRoomID string
	Previous       *LeaveResult
}

// LeaveResult describes a membership removal.
type LeaveResult struct {
	UserID      string
	RoomID      string
	OnlineCount int
	RoomDeleted bool
}

// Directory owns the room member sets and the connection bindings. A single
// mutex covers both maps so every membership change and its binding change
// happen together. Nothing here performs I/O.
type Directory struct {
	mu       sync.Mutex
	rooms    map[string]map[string]struct{} // roomID -> member user ids
	bindings map[string]domain.Binding      // connID -> binding
	names    NameGenerator
}

// NewDirectory creates a directory holding only the empty public room.
func NewDirectory(names NameGenerator) *Directory {
	return &Directory{
		rooms: map[string]map[string]struct{}{
			roomkey.PublicRoom: {},
		},
		bindings: make(map[string]domain.Binding),
		names:    names,
	}
}

// Join puts connID into the room selected by passphrase under a fresh user
// id. A connection that is still bound elsewhere is removed from that room
// first.
func (d *Directory) Join(connID, passphrase string) JoinResult {
	roomID := roomkey.RoomID(passphrase)
	userID := d.names.Generate()

	d.mu.Lock()
	defer d.mu.Unlock()

	var prev *LeaveResult
	var prevRoom string
	if old, ok := d.bindings[connID]; ok {
		delete(d.bindings, connID)
		prevRoom = old.RoomID
		if res, removed := d.removeLocked(old.UserID, old.RoomID); removed {
			prev = &res
		}
	}

	members, ok := d.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		d.rooms[roomID] = members
	}
	members[userID] = struct{}{}
	d.bindings[connID] = domain.Binding{UserID: userID, RoomID: roomID}

	return JoinResult{
		UserID:         userID,
		RoomID:         roomID,
		IsPublic:       roomkey.IsPublic(roomID),
		OnlineCount:    len(members),
		PreviousRoomID: prevRoom,
		Previous:       prev,
	}
}

// Leave removes userID from roomID and drops connID's binding. It reports
// false and changes nothing when userID is not a member of roomID.
func (d *Directory) Leave(connID, userID, roomID string) (LeaveResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isMemberLocked(userID, roomID) {
		return LeaveResult{}, false
	}
	delete(d.bindings, connID)
	return d.removeLocked(userID, roomID)
}

// Disconnect forgets connID. When its bound user was still in the room the
// removal is reported; the binding is dropped either way.
func (d *Directory) Disconnect(connID string) (LeaveResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[connID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(d.bindings, connID)
	return d.removeLocked(b.UserID, b.RoomID)
}

// KeyFor returns the message key for a room passphrase. It is derived from
// the passphrase itself, not from the room id.
func (d *Directory) KeyFor(passphrase string) roomkey.Key {
	return roomkey.KeyFor(passphrase)
}

// OnlineCount returns the member count of roomID.
func (d *Directory) OnlineCount(roomID string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[roomID]
	return len(members), ok
}

// RoomCount returns the number of rooms, the public room included.
func (d *Directory) RoomCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// ConnectionCount returns the number of bound connections.
func (d *Directory) ConnectionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bindings)
}

// NOTE: caller must hold d.mu
func (d *Directory) isMemberLocked(userID, roomID string) bool {
	members, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = members[userID]
	return ok
}

// removeLocked drops userID from roomID and deletes the room when it is
// private and now empty.
// NOTE: caller must hold d.mu
func (d *Directory) removeLocked(userID, roomID string) (LeaveResult, bool) {
	if !d.isMemberLocked(userID, roomID) {
		return LeaveResult{}, false
	}
	members := d.rooms[roomID]
	delete(members, userID)

	res := LeaveResult{UserID: userID, RoomID: roomID, OnlineCount: len(members)}
	if len(members) == 0 && !roomkey.IsPublic(roomID) {
		delete(d.rooms, roomID)
		res.RoomDeleted = true
	}
	return res, true
}
