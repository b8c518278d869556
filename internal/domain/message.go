package domain

import "encoding/json"

// EventName identifies a frame on the websocket
type EventName string

const (
	// Inbound
	EventJoinRoom    EventName = "join_room"
	EventLeaveRoom   EventName = "leave_room"
	EventSendMessage EventName = "send_message"

	// Outbound
	EventLoginRequired  EventName = "login_required"
	EventRoomInfo       EventName = "room_info"
	EventUserStatus     EventName = "user_status"
	EventReceiveMessage EventName = "receive_message"
)

// Frame is the JSON envelope of every websocket text frame
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame before encoding
type Event struct {
	Name EventName
	Data any
}

// Encode renders the event as a frame. A nil Data becomes {}.
func (e Event) Encode() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = struct{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: e.Name, Data: raw})
}

// JoinRoomRequest is the payload of join_room
type JoinRoomRequest struct {
	CustomStr string `json:"custom_str"`
}

// LeaveRoomRequest is the payload of leave_room
type LeaveRoomRequest struct {
	UserID string `json:"user_id"`
	Room   string `json:"room"`
}

// SendMessageRequest is the payload of send_message.
// Timestamp is relayed verbatim.
type SendMessageRequest struct {
	UserID    string          `json:"user_id"`
	Room      string          `json:"room"`
	Message   *string         `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
	CustomStr string          `json:"custom_str"`
}

// RoomInfo tells a joining client who and where it is
type RoomInfo struct {
	UserID      string `json:"user_id"`
	Room        string `json:"room"`
	IsPublic    bool   `json:"is_public"`
	OnlineCount int    `json:"online_count"`
}

// UserStatus announces presence changes in a room
type UserStatus struct {
	Status      string `json:"status"`
	UserID      string `json:"user_id,omitempty"`
	OnlineCount int    `json:"online_count"`
}

// ReceiveMessage carries an encrypted chat message to room members
type ReceiveMessage struct {
	UserID           string          `json:"user_id"`
	EncryptedMessage string          `json:"encrypted_message"`
	Timestamp        json.RawMessage `json:"timestamp"`
}
