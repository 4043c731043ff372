package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stylecast/stylecast/internal/storage"
)

type fakeCreds struct {
	creds storage.Credentials
	err   error
}

func (f fakeCreds) LoadCredentials() (storage.Credentials, error) {
	return f.creds, f.err
}

// testServer is a minimal stand-in for the messaging backend: it records
// every inbound envelope and lets tests push events to the client.
type testServer struct {
	*httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn

	inbound chan envelope
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{inbound: make(chan envelope, 64)}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()

		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.inbound <- env
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// push sends an event to the connected client.
func (ts *testServer) push(t *testing.T, event string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	ts.mu.Lock()
	conn := ts.conn
	ts.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if err := conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		t.Fatal(err)
	}
}

// recv waits for the next inbound envelope with the given event name,
// skipping others.
func (ts *testServer) recv(t *testing.T, event string) envelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-ts.inbound:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func newTestClient(t *testing.T, ts *testServer, creds CredentialSource, cb Callbacks) *Client {
	t.Helper()
	c := New(Config{ServerURL: ts.wsURL(), TypingIdle: 150 * time.Millisecond, AllowGuest: true}, creds)
	if err := c.Initialize(context.Background(), cb); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Disconnect)
	ts.recv(t, evAuth) // consume the auth frame
	return c
}

func TestInitializeSendsAuth(t *testing.T) {
	ts := newTestServer(t)
	creds := fakeCreds{creds: storage.Credentials{Token: "tok", UserID: "u1", UserName: "Ada"}}

	c := New(Config{ServerURL: ts.wsURL(), AllowGuest: false}, creds)
	if err := c.Initialize(context.Background(), Callbacks{}); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	env := ts.recv(t, evAuth)
	var auth map[string]string
	if err := json.Unmarshal(env.Data, &auth); err != nil {
		t.Fatal(err)
	}
	if auth["token"] != "tok" || auth["userId"] != "u1" || auth["userName"] != "Ada" {
		t.Fatalf("unexpected auth payload: %v", auth)
	}
}

func TestGuestFallback(t *testing.T) {
	ts := newTestServer(t)
	creds := fakeCreds{err: storage.ErrNoCredentials}

	c := newTestClient(t, ts, creds, Callbacks{})

	ident := c.Identity()
	if !strings.HasPrefix(ident.UserID, "guest-") {
		t.Fatalf("expected guest identity, got %q", ident.UserID)
	}
	if ident.Token != "" {
		t.Fatalf("guest identity must not carry a token, got %q", ident.Token)
	}
}

func TestGuestFallbackDisabled(t *testing.T) {
	ts := newTestServer(t)
	creds := fakeCreds{err: storage.ErrNoCredentials}

	var gotErr error
	c := New(Config{ServerURL: ts.wsURL(), AllowGuest: false}, creds)
	err := c.Initialize(context.Background(), Callbacks{
		OnConnectError: func(err error) { gotErr = err },
	})
	if err == nil {
		t.Fatal("expected initialize to fail without credentials")
	}
	if gotErr == nil {
		t.Fatal("expected OnConnectError to fire")
	}
}

func TestSecondInitializeRefused(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{})

	if err := c.Initialize(context.Background(), Callbacks{}); err == nil {
		t.Fatal("expected second initialize to be refused")
	}
}

func TestJoinRoomUpdatesCurrentRoom(t *testing.T) {
	ts := newTestServer(t)

	joined := make(chan string, 1)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{
		OnRoomJoined: func(roomID string) { joined <- roomID },
	})

	c.JoinRoom("r1")
	ts.recv(t, evJoinRoom)

	// Membership is confirmed by the server event, not the emit.
	if c.CurrentRoom() != "" {
		t.Fatalf("expected no confirmed room yet, got %q", c.CurrentRoom())
	}

	ts.push(t, evRoomJoined, map[string]string{"roomId": "r1"})
	select {
	case roomID := <-joined:
		if roomID != "r1" {
			t.Fatalf("expected r1, got %q", roomID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for room-joined callback")
	}
	if c.CurrentRoom() != "r1" {
		t.Fatalf("expected current room r1, got %q", c.CurrentRoom())
	}

	ts.push(t, evRoomLeft, map[string]string{"roomId": "r1"})
	deadline := time.Now().Add(5 * time.Second)
	for c.CurrentRoom() != "" {
		if time.Now().After(deadline) {
			t.Fatal("current room was not cleared after room-left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendMessageStampsIDAndTimestamp(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{})

	c.SendMessage(Message{Text: "hello", RoomID: "r1", Kind: KindText, SenderRole: RoleUser})

	env := ts.recv(t, evSendMessage)
	var m Message
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatal(err)
	}
	if m.ID == "" {
		t.Fatal("expected message id to be stamped")
	}
	if _, err := time.Parse(time.RFC3339, m.Timestamp); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q: %v", m.Timestamp, err)
	}

	if got := c.History(); len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("expected message in history, got %v", got)
	}
}

func TestSendWhileDisconnectedIsNoop(t *testing.T) {
	c := New(Config{ServerURL: "ws://localhost:1"}, fakeCreds{err: storage.ErrNoCredentials})

	// None of these may panic or block.
	c.JoinRoom("r1")
	c.LeaveRoom("r1")
	c.SendMessage(Message{Text: "x", RoomID: "r1"})
	c.StartTyping("r1")
	c.StopTyping("r1")
	c.SendReaction("m1", ReactionLike, "r1")
	c.Disconnect()
	c.Disconnect()
}

func TestTypingDebounce(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{})

	// Two starts inside the idle window: one eventual stop, timed from the
	// second start.
	c.StartTyping("r1")
	ts.recv(t, evTypingStart)

	time.Sleep(75 * time.Millisecond)
	secondStart := time.Now()
	c.StartTyping("r1")
	ts.recv(t, evTypingStart)

	ts.recv(t, evTypingStop)
	elapsed := time.Since(secondStart)

	// Idle window is 150ms; the stop must come after the window measured
	// from the second start, not the first (which would be ~75ms).
	if elapsed < 120*time.Millisecond {
		t.Fatalf("typing-stop fired too early: %v after second start", elapsed)
	}

	// No second stop pending.
	select {
	case env := <-ts.inbound:
		if env.Event == evTypingStop {
			t.Fatal("unexpected second typing-stop")
		}
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSendReactionValidatesKind(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{})

	c.SendReaction("m1", ReactionKind("sparkle"), "r1")
	c.SendReaction("m1", ReactionFire, "r1")

	env := ts.recv(t, evMessageReaction)
	var p map[string]string
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p["reaction"] != "fire" {
		t.Fatalf("expected the valid reaction only, got %q", p["reaction"])
	}
}

func TestInboundDispatch(t *testing.T) {
	ts := newTestServer(t)

	msgs := make(chan Message, 1)
	typing := make(chan TypingUser, 1)
	reactions := make(chan ReactionUpdate, 1)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{
		OnNewMessage:      func(m Message) { msgs <- m },
		OnTypingStart:     func(tu TypingUser) { typing <- tu },
		OnReactionUpdated: func(ru ReactionUpdate) { reactions <- ru },
	})

	ts.push(t, evNewMessage, Message{ID: "m1", Text: "hi", RoomID: "r1", Kind: KindText})
	select {
	case m := <-msgs:
		if m.ID != "m1" {
			t.Fatalf("unexpected message: %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for new-message")
	}
	if len(c.History()) != 1 {
		t.Fatalf("expected inbound message in history, got %d entries", len(c.History()))
	}

	ts.push(t, evTypingStart, TypingUser{UserID: "u2", UserName: "Bee", RoomID: "r1"})
	select {
	case tu := <-typing:
		if tu.UserID != "u2" {
			t.Fatalf("unexpected typing user: %+v", tu)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for typing-start")
	}

	ts.push(t, evReactionUpdated, ReactionUpdate{
		MessageID: "m1", RoomID: "r1", Kind: ReactionLove,
		Reactions: map[ReactionKind]Reaction{ReactionLove: {Count: 2, Reacted: true}},
	})
	select {
	case ru := <-reactions:
		if ru.Reactions[ReactionLove].Count != 2 {
			t.Fatalf("unexpected reaction update: %+v", ru)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reaction update")
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	ts := newTestServer(t)
	creds := fakeCreds{err: storage.ErrNoCredentials}

	disconnected := make(chan error, 4)
	cb := Callbacks{OnDisconnect: func(err error) { disconnected <- err }}

	c := New(Config{ServerURL: ts.wsURL(), AllowGuest: true}, creds)
	if err := c.Initialize(context.Background(), cb); err != nil {
		t.Fatal(err)
	}
	ts.recv(t, evAuth)

	c.Disconnect()
	select {
	case err := <-disconnected:
		if err != nil {
			t.Fatalf("deliberate disconnect should report nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}

	// Second connection: the first connection's dead read loop must not
	// wipe this one's state or surface a phantom connection-lost error.
	if err := c.Initialize(context.Background(), cb); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Disconnect)
	ts.recv(t, evAuth)

	if !c.IsConnected() {
		t.Fatal("expected connected state after reconnect")
	}
	c.SendMessage(Message{Text: "back", RoomID: "r1", Kind: KindText})
	ts.recv(t, evSendMessage)
	if !c.IsConnected() {
		t.Fatal("reconnected client lost its state")
	}

	select {
	case err := <-disconnected:
		t.Fatalf("unexpected disconnect callback after reconnect: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestCallSignalRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{})

	if err := c.SendSignal("call-1", map[string]any{"type": "offer", "sdp": "v=0"}); err != nil {
		t.Fatal(err)
	}
	env := ts.recv(t, "call-signal")
	var frame SignalFrame
	if err := json.Unmarshal(env.Data, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.CallID != "call-1" || frame.Payload["type"] != "offer" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.From != c.Identity().UserID {
		t.Fatalf("frame not stamped with sender identity: %q", frame.From)
	}

	ch, cancel := c.SubscribeSignals()
	defer cancel()
	ts.push(t, "call-signal", SignalFrame{
		CallID:  "call-1",
		From:    "u2",
		Payload: map[string]any{"type": "answer", "sdp": "v=0"},
	})
	select {
	case got := <-ch:
		if got.From != "u2" || got.Payload["type"] != "answer" {
			t.Fatalf("unexpected inbound frame: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbound signal")
	}
}

func TestDisconnectCallback(t *testing.T) {
	ts := newTestServer(t)

	disconnected := make(chan error, 1)
	c := newTestClient(t, ts, fakeCreds{err: storage.ErrNoCredentials}, Callbacks{
		OnDisconnect: func(err error) { disconnected <- err },
	})

	c.Disconnect()
	select {
	case err := <-disconnected:
		if err != nil {
			t.Fatalf("deliberate disconnect should report nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}
	if c.IsConnected() {
		t.Fatal("expected disconnected state")
	}
}
