// Package messaging implements the realtime messaging client: one live
// websocket connection to the message/presence server, room membership,
// typing indicators, and reaction sends. Inbound events are dispatched to
// caller-supplied callbacks; missing callbacks drop the event silently.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stylecast/stylecast/internal/storage"
	"github.com/stylecast/stylecast/internal/util"
)

// historyCap is the number of recent messages kept in memory per client.
const historyCap = 100

// envelope is the wire frame: every websocket message is one of these.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// CredentialSource resolves the stored identity used to authenticate the
// connection. storage.DB satisfies it.
type CredentialSource interface {
	LoadCredentials() (storage.Credentials, error)
}

// Callbacks are the caller-supplied handlers for inbound events. Any field
// may be nil; events without a handler are dropped.
type Callbacks struct {
	OnConnect         func()
	OnDisconnect      func(err error)
	OnConnectError    func(err error)
	OnRoomJoined      func(roomID string)
	OnRoomLeft        func(roomID string)
	OnNewMessage      func(Message)
	OnTypingStart     func(TypingUser)
	OnTypingStop      func(TypingUser)
	OnUserJoined      func(RoomEvent)
	OnUserLeft        func(RoomEvent)
	OnReactionUpdated func(ReactionUpdate)
}

// Config carries the connection settings for one client.
type Config struct {
	ServerURL  string
	TypingIdle time.Duration // auto-stop window; 0 means the 3s default
	AllowGuest bool
}

// Client owns one live connection to the messaging server. Construct one per
// hosting controller with New; there is no shared instance.
type Client struct {
	cfg   Config
	creds CredentialSource

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	closing     bool
	currentRoom string
	typingStop  *time.Timer
	identity    storage.Credentials
	cb          Callbacks

	// gorilla/websocket allows at most one concurrent writer.
	writeMu sync.Mutex

	history *util.RingBuffer[Message]
	signals *signalHub
}

// New creates a disconnected client. Call Initialize to connect.
func New(cfg Config, creds CredentialSource) *Client {
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = 3 * time.Second
	}
	return &Client{
		cfg:     cfg,
		creds:   creds,
		history: util.NewRingBuffer[Message](historyCap),
		signals: newSignalHub(),
	}
}

// Initialize resolves credentials, opens the connection with the identity as
// connect-time auth, and starts dispatching inbound events to cb. A second
// call while connected is refused; Disconnect first.
func (c *Client) Initialize(ctx context.Context, cb Callbacks) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		log.Printf("MSG: initialize refused — already connected")
		return errors.New("messaging: already connected")
	}
	c.cb = cb
	c.mu.Unlock()

	ident, err := c.resolveIdentity()
	if err != nil {
		if cb.OnConnectError != nil {
			cb.OnConnectError(err)
		}
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: util.DefaultConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.cfg.ServerURL, err)
		if cb.OnConnectError != nil {
			cb.OnConnectError(err)
		}
		return err
	}

	// Connect-time authentication: first frame carries the identity.
	auth := map[string]string{
		"token":    ident.Token,
		"userId":   ident.UserID,
		"userName": ident.UserName,
	}
	if err := c.writeEnvelope(conn, evAuth, auth); err != nil {
		conn.Close()
		err = fmt.Errorf("send auth: %w", err)
		if cb.OnConnectError != nil {
			cb.OnConnectError(err)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.closing = false
	c.identity = ident
	c.mu.Unlock()

	log.Printf("MSG: connected to %s as %s", c.cfg.ServerURL, ident.UserID)
	go c.readLoop(conn)

	if cb.OnConnect != nil {
		cb.OnConnect()
	}
	return nil
}

// resolveIdentity loads stored credentials, falling back to a synthesized
// guest identity when allowed. The fallback is never silent — it indicates a
// degraded/demo mode and is logged every time.
func (c *Client) resolveIdentity() (storage.Credentials, error) {
	ident, err := c.creds.LoadCredentials()
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, storage.ErrNoCredentials) {
		return storage.Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}
	if !c.cfg.AllowGuest {
		return storage.Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}

	guestID := "guest-" + uuid.NewString()[:8]
	log.Printf("MSG: no stored credentials — falling back to guest identity %s (degraded mode)", guestID)
	return storage.Credentials{
		UserID:   guestID,
		UserName: "Guest",
	}, nil
}

// JoinRoom asks the server to add this client to a room. Fire-and-forget:
// membership is confirmed by the room-joined event, not by this call.
func (c *Client) JoinRoom(roomID string) {
	if !c.IsConnected() {
		log.Printf("MSG: join-room %s ignored — not connected", roomID)
		return
	}
	c.emit(evJoinRoom, map[string]string{"roomId": roomID})
}

// LeaveRoom asks the server to remove this client from a room.
func (c *Client) LeaveRoom(roomID string) {
	if !c.IsConnected() {
		log.Printf("MSG: leave-room %s ignored — not connected", roomID)
		return
	}
	c.emit(evLeaveRoom, map[string]string{"roomId": roomID})
}

// SendMessage stamps the message with a fresh id and timestamp and transmits
// it. Delivery is fire-and-forget; there is no acknowledgment tracking.
func (c *Client) SendMessage(msg Message) {
	if !c.IsConnected() {
		log.Printf("MSG: send-message to %s ignored — not connected", msg.RoomID)
		return
	}

	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)

	c.history.Push(msg)
	c.emit(evSendMessage, msg)
}

// StartTyping emits a typing-start signal and schedules an automatic
// StopTyping after the idle window. Each call resets the window, so repeated
// keystrokes extend the indicator without exceeding one pending stop.
func (c *Client) StartTyping(roomID string) {
	if !c.IsConnected() {
		log.Printf("MSG: typing-start %s ignored — not connected", roomID)
		return
	}

	c.mu.Lock()
	if c.typingStop != nil {
		c.typingStop.Stop()
	}
	c.typingStop = time.AfterFunc(c.cfg.TypingIdle, func() {
		c.StopTyping(roomID)
	})
	c.mu.Unlock()

	c.emit(evTypingStart, map[string]string{"roomId": roomID})
}

// StopTyping cancels any pending auto-stop and emits a typing-stop signal.
func (c *Client) StopTyping(roomID string) {
	c.mu.Lock()
	if c.typingStop != nil {
		c.typingStop.Stop()
		c.typingStop = nil
	}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return
	}
	c.emit(evTypingStop, map[string]string{"roomId": roomID})
}

// SendReaction sends a reaction toggle for a message. Fire-and-forget; the
// authoritative counts arrive via message-reaction-updated.
func (c *Client) SendReaction(messageID string, kind ReactionKind, roomID string) {
	if !ValidReaction(kind) {
		log.Printf("MSG: reaction %q ignored — unknown kind", kind)
		return
	}
	if !c.IsConnected() {
		log.Printf("MSG: reaction on %s ignored — not connected", messageID)
		return
	}
	c.emit(evMessageReaction, map[string]string{
		"messageId": messageID,
		"reaction":  string(kind),
		"roomId":    roomID,
	})
}

// Disconnect closes the transport and clears all local state. Safe to call
// multiple times or when never connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	c.closing = true
	c.connected = false
	c.conn = nil
	c.currentRoom = ""
	if c.typingStop != nil {
		c.typingStop.Stop()
		c.typingStop = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.history.Clear()
	if wasConnected {
		log.Printf("MSG: disconnected")
	}
}

// IsConnected reports whether the transport is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// CurrentRoom returns the room the server last confirmed membership in,
// or "" when not in a room.
func (c *Client) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoom
}

// Identity returns the credentials the connection was opened with.
func (c *Client) Identity() storage.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// History returns the recent messages seen by this client, oldest first.
func (c *Client) History() []Message {
	return c.history.Snapshot()
}

// emit marshals and writes one envelope. Write failures are logged, not
// returned — sends are fire-and-forget and the read loop surfaces the
// disconnect.
func (c *Client) emit(event string, v any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := c.writeEnvelope(conn, event, v); err != nil {
		log.Printf("MSG: write %s failed: %v", event, err)
	}
}

func (c *Client) writeEnvelope(conn *websocket.Conn, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(envelope{Event: event, Data: data})
}

// readLoop reads envelopes until the connection drops, dispatching each one
// to the matching callback.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			if c.conn != conn {
				// This loop's connection was already replaced by a newer
				// Initialize or torn down by Disconnect. Never touch the
				// current connection's state; only the deliberate-close
				// callback is still owed.
				deliberate := c.closing && c.conn == nil
				cb := c.cb
				c.mu.Unlock()
				if deliberate && cb.OnDisconnect != nil {
					cb.OnDisconnect(nil)
				}
				return
			}
			deliberate := c.closing
			c.connected = false
			c.conn = nil
			c.currentRoom = ""
			cb := c.cb
			c.mu.Unlock()

			if deliberate {
				if cb.OnDisconnect != nil {
					cb.OnDisconnect(nil)
				}
				return
			}
			log.Printf("MSG: connection lost: %v", err)
			if cb.OnDisconnect != nil {
				cb.OnDisconnect(err)
			}
			return
		}
		c.dispatch(env)
	}
}

// dispatch routes one inbound envelope. Unknown events and events without a
// registered callback are dropped silently.
func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()

	switch env.Event {
	case evRoomJoined:
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("MSG: bad %s payload: %v", env.Event, err)
			return
		}
		c.mu.Lock()
		c.currentRoom = p.RoomID
		c.mu.Unlock()
		if cb.OnRoomJoined != nil {
			cb.OnRoomJoined(p.RoomID)
		}

	case evRoomLeft:
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("MSG: bad %s payload: %v", env.Event, err)
			return
		}
		c.mu.Lock()
		if c.currentRoom == p.RoomID {
			c.currentRoom = ""
		}
		c.mu.Unlock()
		if cb.OnRoomLeft != nil {
			cb.OnRoomLeft(p.RoomID)
		}

	case evNewMessage:
		var m Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			log.Printf("MSG: bad %s payload: %v", env.Event, err)
			return
		}
		c.history.Push(m)
		if cb.OnNewMessage != nil {
			cb.OnNewMessage(m)
		}

	case evTypingStart, evTypingStop:
		var tu TypingUser
		if err := json.Unmarshal(env.Data, &tu); err != nil {
			log.Printf("MSG: bad %s payload: %v", env.Event, err)
			return
		}
		if env.Event == evTypingStart {
			if cb.OnTypingStart != nil {
				cb.OnTypingStart(tu)
			}
		} else if cb.OnTypingStop != nil {
			cb.OnTypingStop(tu)
		}

	case evUserJoined, evUserLeft:
		var re RoomEvent
		if err := json.Unmarshal(env.Data, &re); err != nil {
			log.Printf("MSG: bad %s payload: %v", env.Event, err)
			return
		}
		if env.Event == evUserJoined {
			if cb.OnUserJoined != nil {
				cb.OnUserJoined(re)
			}
		} else if cb.OnUserLeft != nil {
			cb.OnUserLeft(re)
		}

	case evReactionUpdated:
		var ru ReactionUpdate
		if err := json.Unmarshal(env.Data, &ru); err != nil {
			log.Printf("MSG: bad %s payload: %v", env.Event, err)
			return
		}
		if cb.OnReactionUpdated != nil {
			cb.OnReactionUpdated(ru)
		}

	case evCallSignal:
		c.dispatchSignal(env.Data)

	default:
		// Unknown event — drop.
	}
}
