package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/QsSama-W/nimingChat/internal/chat"
	"github.com/QsSama-W/nimingChat/internal/domain"
	"github.com/QsSama-W/nimingChat/internal/roomkey"
	"github.com/QsSama-W/nimingChat/internal/usecase"
)

type staticSessions map[string]bool

func (s staticSessions) Authenticated(token string) bool { return s[token] }

// newTestServer serves /ws?token=... backed by a real hub and dispatcher.
func newTestServer(t *testing.T) (*httptest.Server, *Hub, *chat.Dispatcher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(0, logger)
	dir := chat.NewDirectory(usecase.NewNicknameGenerator())
	dispatcher := chat.NewDispatcher(dir, hub, staticSessions{"good": true}, logger)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go NewClient(hub, dispatcher, conn, r.URL.Query().Get("token")).Serve()
	}))
	t.Cleanup(srv.Close)
	return srv, hub, dispatcher
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event domain.EventName, data any) {
	t.Helper()
	raw, err := domain.Event{Name: event, Data: data}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expect(t *testing.T, conn *websocket.Conn, event domain.EventName, into any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("waiting for %s: %v", event, err)
	}
	var f domain.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("bad frame %s: %v", raw, err)
	}
	if f.Event != event {
		t.Fatalf("Expected %s, got %s (%s)", event, f.Event, f.Data)
	}
	if into != nil {
		if err := json.Unmarshal(f.Data, into); err != nil {
			t.Fatalf("bad %s payload: %v", event, err)
		}
	}
}

func TestNewClient(t *testing.T) {
	hub := newTestHub()
	c1 := NewClient(hub, nil, nil, "tok")
	c2 := NewClient(hub, nil, nil, "tok")

	if c1.ID() == "" || c1.ID() == c2.ID() {
		t.Errorf("Expected unique connection ids, got %q and %q", c1.ID(), c2.ID())
	}
	if c1.SessionToken() != "tok" {
		t.Errorf("Expected token tok, got %q", c1.SessionToken())
	}
	if cap(c1.send) != sendBuffer {
		t.Errorf("Expected send buffer %d, got %d", sendBuffer, cap(c1.send))
	}
}

func TestClient_UnauthenticatedStaysOpen(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	conn := dial(t, srv, "forged")

	expect(t, conn, domain.EventLoginRequired, nil)

	// still connected; each event is rejected on its own
	send(t, conn, domain.EventJoinRoom, domain.JoinRoomRequest{CustomStr: "abc"})
	expect(t, conn, domain.EventLoginRequired, nil)
	if hub.ClientCount() != 1 {
		t.Errorf("Expected client still registered, got %d", hub.ClientCount())
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected client unregistered after close, got %d", hub.ClientCount())
	}
}

func TestClient_RoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)
	alice := dial(t, srv, "good")
	bob := dial(t, srv, "good")

	var aliceInfo domain.RoomInfo
	send(t, alice, domain.EventJoinRoom, domain.JoinRoomRequest{CustomStr: "abc"})
	expect(t, alice, domain.EventRoomInfo, &aliceInfo)
	if aliceInfo.Room != roomkey.RoomID("abc") || aliceInfo.OnlineCount != 1 {
		t.Fatalf("Unexpected room_info %+v", aliceInfo)
	}

	var bobInfo domain.RoomInfo
	send(t, bob, domain.EventJoinRoom, domain.JoinRoomRequest{CustomStr: "abc"})
	expect(t, bob, domain.EventRoomInfo, &bobInfo)
	if bobInfo.OnlineCount != 2 {
		t.Errorf("Expected 2 online, got %d", bobInfo.OnlineCount)
	}

	var online domain.UserStatus
	expect(t, alice, domain.EventUserStatus, &online)
	if online.Status != domain.StatusOnline || online.UserID != bobInfo.UserID {
		t.Errorf("Unexpected user_status %+v", online)
	}

	text := "hello"
	send(t, bob, domain.EventSendMessage, domain.SendMessageRequest{
		UserID:    bobInfo.UserID,
		Room:      bobInfo.Room,
		Message:   &text,
		Timestamp: json.RawMessage(`"10:00"`),
		CustomStr: "abc",
	})

	var got domain.ReceiveMessage
	expect(t, alice, domain.EventReceiveMessage, &got)
	plain, err := roomkey.Open(got.EncryptedMessage, roomkey.DeriveKey("abc"))
	if err != nil || plain != "hello" {
		t.Errorf("Expected hello, got %q (err=%v)", plain, err)
	}

	// bob leaves by closing; alice sees the count drop
	bob.Close()
	var offline domain.UserStatus
	expect(t, alice, domain.EventUserStatus, &offline)
	if offline.Status != domain.StatusOffline || offline.OnlineCount != 1 {
		t.Errorf("Unexpected offline status %+v", offline)
	}
}

func TestClient_MalformedFrameIgnored(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv, "good")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, conn, domain.EventJoinRoom, domain.JoinRoomRequest{})

	var info domain.RoomInfo
	expect(t, conn, domain.EventRoomInfo, &info)
	if !info.IsPublic {
		t.Errorf("Expected public room, got %+v", info)
	}
}

func TestClient_OversizedFrameCloses(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	conn := dial(t, srv, "good")

	big := strings.Repeat("x", domain.MaxMessageSize+1)
	conn.WriteMessage(websocket.TextMessage, []byte(big))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected connection closed after oversized frame")
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected client unregistered, got %d", hub.ClientCount())
	}
}
