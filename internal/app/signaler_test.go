package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stylecast/stylecast/internal/messaging"
	"github.com/stylecast/stylecast/internal/storage"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type noCreds struct{}

func (noCreds) LoadCredentials() (storage.Credentials, error) {
	return storage.Credentials{}, storage.ErrNoCredentials
}

// signalServer accepts one messaging client and lets the test push
// call-signal frames at it.
type signalServer struct {
	*httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn
}

func newSignalServer(t *testing.T) *signalServer {
	t.Helper()
	ss := &signalServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ss.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ss.mu.Lock()
		ss.conn = conn
		ss.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ss.Close)
	return ss
}

func (ss *signalServer) pushSignal(t *testing.T, frame messaging.SignalFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatal(err)
	}
	ss.mu.Lock()
	conn := ss.conn
	ss.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if err := conn.WriteJSON(wireFrame{Event: "call-signal", Data: data}); err != nil {
		t.Fatal(err)
	}
}

func TestSignalerAdapterStopWithSlowConsumer(t *testing.T) {
	ss := newSignalServer(t)

	msg := messaging.New(messaging.Config{
		ServerURL:  "ws" + strings.TrimPrefix(ss.URL, "http"),
		AllowGuest: true,
	}, noCreds{})
	if err := msg.Initialize(context.Background(), messaging.Callbacks{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(msg.Disconnect)

	adapter := &signalerAdapter{client: msg}
	out, stop := adapter.Subscribe()

	// Never read from out; flood it well past its buffer so the forwarder
	// ends up parked on a send nobody will receive.
	for i := 0; i < 200; i++ {
		ss.pushSignal(t, messaging.SignalFrame{
			CallID:  "call-1",
			From:    "u2",
			Payload: map[string]any{"type": "ice-candidate", "n": fmt.Sprint(i)},
		})
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(out) < cap(out) {
		if time.Now().After(deadline) {
			t.Fatalf("buffer never filled: %d/%d", len(out), cap(out))
		}
		time.Sleep(10 * time.Millisecond)
	}

	stop()
	stop() // stop is idempotent

	// The buffered envelopes are still readable, and the channel must close
	// once they are drained instead of stranding the forwarder.
	drained := 0
	timeout := time.After(5 * time.Second)
	for {
		select {
		case env, ok := <-out:
			if !ok {
				if drained < cap(out) {
					t.Fatalf("channel closed after only %d envelopes", drained)
				}
				return
			}
			if env.CallID != "call-1" {
				t.Fatalf("unexpected envelope: %+v", env)
			}
			drained++
		case <-timeout:
			t.Fatal("out channel never closed after stop")
		}
	}
}
