package chat

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/QsSama-W/nimingChat/internal/domain"
	"github.com/QsSama-W/nimingChat/internal/roomkey"
)

// Broadcaster is the delivery side of the transport. Room subscriptions
// live in the transport; the dispatcher only tells it when they change.
type Broadcaster interface {
	Subscribe(connID, roomID string)
	Unsubscribe(connID, roomID string)
	DeliverToRoom(roomID string, evt domain.Event, exceptConnID string)
	DeliverToConnection(connID string, evt domain.Event)
}

// SessionChecker decides whether a session token is logged in.
type SessionChecker interface {
	Authenticated(token string) bool
}

// Peer is one live connection as seen by the dispatcher.
type Peer interface {
	ID() string
	SessionToken() string
}

// Stats counts dispatcher outcomes since start.
type Stats struct {
	Joins        uint64 `json:"joins"`
	Leaves       uint64 `json:"leaves"`
	Disconnects  uint64 `json:"disconnects"`
	Relayed      uint64 `json:"relayed"`
	Dropped      uint64 `json:"dropped"`
	AuthRejected uint64 `json:"auth_rejected"`
}

// Dispatcher turns inbound connection events into directory changes and
// outbound deliveries. Directory locks are never held while delivering.
type Dispatcher struct {
	dir      *Directory
	out      Broadcaster
	sessions SessionChecker
	log      *slog.Logger
	encrypt  func(string, roomkey.Key) (string, error)

	joins        atomic.Uint64
	leaves       atomic.Uint64
	disconnects  atomic.Uint64
	relayed      atomic.Uint64
	dropped      atomic.Uint64
	authRejected atomic.Uint64
}

// NewDispatcher wires a dispatcher. A nil logger means slog.Default().
func NewDispatcher(dir *Directory, out Broadcaster, sessions SessionChecker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		dir:      dir,
		out:      out,
		sessions: sessions,
		log:      logger,
		encrypt:  roomkey.Encrypt,
	}
}

// Directory returns the directory the dispatcher mutates.
func (d *Dispatcher) Directory() *Directory {
	return d.dir
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Joins:        d.joins.Load(),
		Leaves:       d.leaves.Load(),
		Disconnects:  d.disconnects.Load(),
		Relayed:      d.relayed.Load(),
		Dropped:      d.dropped.Load(),
		AuthRejected: d.authRejected.Load(),
	}
}

// Dispatch routes one inbound frame. Unknown events and undecodable
// payloads are ignored.
func (d *Dispatcher) Dispatch(p Peer, f domain.Frame) {
	switch f.Event {
	case domain.EventJoinRoom:
		var req domain.JoinRoomRequest
		if !d.decode(p, f, &req) {
			return
		}
		d.JoinRoom(p, req)

	case domain.EventLeaveRoom:
		var req domain.LeaveRoomRequest
		if !d.decode(p, f, &req) {
			return
		}
		d.LeaveRoom(p, req)

	case domain.EventSendMessage:
		var req domain.SendMessageRequest
		if !d.decode(p, f, &req) {
			return
		}
		d.SendMessage(p, req)

	default:
		d.log.Debug("unknown event ignored", "conn", p.ID(), "event", f.Event)
	}
}

// Connect runs when a connection opens. It only checks the session.
func (d *Dispatcher) Connect(p Peer) bool {
	return d.authorize(p)
}

// JoinRoom places the connection in the room chosen by its passphrase.
func (d *Dispatcher) JoinRoom(p Peer, req domain.JoinRoomRequest) {
	if !d.authorize(p) {
		return
	}

	res := d.dir.Join(p.ID(), req.CustomStr)
	d.joins.Add(1)
	switch {
	case res.Previous != nil:
		d.announceLeave(p.ID(), *res.Previous)
	case res.PreviousRoomID != "" && res.PreviousRoomID != res.RoomID:
		// membership was already gone; only the subscription is left
		d.out.Unsubscribe(p.ID(), res.PreviousRoomID)
	}

	d.out.Subscribe(p.ID(), res.RoomID)
	d.out.DeliverToConnection(p.ID(), domain.Event{
		Name: domain.EventRoomInfo,
		Data: domain.RoomInfo{
			UserID:      res.UserID,
			Room:        res.RoomID,
			IsPublic:    res.IsPublic,
			OnlineCount: res.OnlineCount,
		},
	})
	d.out.DeliverToRoom(res.RoomID, domain.Event{
		Name: domain.EventUserStatus,
		Data: domain.UserStatus{
			Status:      domain.StatusOnline,
			UserID:      res.UserID,
			OnlineCount: res.OnlineCount,
		},
	}, p.ID())

	d.log.Info("room joined", "conn", p.ID(), "room", roomkey.Fingerprint(res.RoomID), "online", res.OnlineCount)
}

// LeaveRoom removes the named user from the named room.
func (d *Dispatcher) LeaveRoom(p Peer, req domain.LeaveRoomRequest) {
	if !d.authorize(p) {
		return
	}

	res, ok := d.dir.Leave(p.ID(), req.UserID, req.Room)
	if !ok {
		d.log.Debug("leave for unknown member ignored", "conn", p.ID(), "room", roomkey.Fingerprint(req.Room))
		return
	}
	d.leaves.Add(1)
	d.announceLeave(p.ID(), res)
}

// Disconnect cleans up after a connection that is gone. It runs without a
// session check since there is nobody left to answer and the binding must
// not outlive the connection.
func (d *Dispatcher) Disconnect(p Peer) {
	d.disconnects.Add(1)

	res, ok := d.dir.Disconnect(p.ID())
	if !ok {
		return
	}
	d.announceLeave(p.ID(), res)
}

// SendMessage encrypts a message for its room and relays it to every other
// subscriber. If encryption fails the message is dropped without telling
// the sender.
func (d *Dispatcher) SendMessage(p Peer, req domain.SendMessageRequest) {
	if !d.authorize(p) {
		return
	}
	if req.UserID == "" || req.Room == "" || req.Message == nil || len(req.Timestamp) == 0 {
		d.log.Debug("incomplete message ignored", "conn", p.ID())
		return
	}

	key := d.dir.KeyFor(req.CustomStr)
	envelope, err := d.encrypt(*req.Message, key)
	if err != nil {
		d.dropped.Add(1)
		d.log.Warn("message dropped", "conn", p.ID(), "room", roomkey.Fingerprint(req.Room), "err", err)
		return
	}

	d.out.DeliverToRoom(req.Room, domain.Event{
		Name: domain.EventReceiveMessage,
		Data: domain.ReceiveMessage{
			UserID:           req.UserID,
			EncryptedMessage: envelope,
			Timestamp:        req.Timestamp,
		},
	}, p.ID())
	d.relayed.Add(1)
}

func (d *Dispatcher) authorize(p Peer) bool {
	if d.sessions.Authenticated(p.SessionToken()) {
		return true
	}
	d.authRejected.Add(1)
	d.out.DeliverToConnection(p.ID(), domain.Event{Name: domain.EventLoginRequired})
	return false
}

// announceLeave tells the room about a departure, the leaver included, then
// detaches the connection from the transport room.
func (d *Dispatcher) announceLeave(connID string, res LeaveResult) {
	d.out.DeliverToRoom(res.RoomID, domain.Event{
		Name: domain.EventUserStatus,
		Data: domain.UserStatus{
			Status:      domain.StatusOffline,
			OnlineCount: res.OnlineCount,
		},
	}, "")
	d.out.Unsubscribe(connID, res.RoomID)

	d.log.Info("room left", "conn", connID, "room", roomkey.Fingerprint(res.RoomID), "online", res.OnlineCount, "room_deleted", res.RoomDeleted)
}

func (d *Dispatcher) decode(p Peer, f domain.Frame, v any) bool {
	data := f.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		d.log.Debug("malformed payload ignored", "conn", p.ID(), "event", f.Event)
		return false
	}
	return true
}
