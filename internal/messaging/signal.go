package messaging

import (
	"encoding/json"
	"log"
	"sync"
)

const evCallSignal = "call-signal"

// SignalFrame carries one call-signaling message (offer, answer, candidate,
// hangup) through the messaging socket. The client never interprets the
// payload; the call layer owns its shape.
type SignalFrame struct {
	CallID  string         `json:"callId"`
	From    string         `json:"from"`
	Payload map[string]any `json:"payload"`
}

// signalHub fans inbound call-signal frames out to subscribers.
type signalHub struct {
	mu        sync.RWMutex
	listeners map[chan *SignalFrame]struct{}
}

func newSignalHub() *signalHub {
	return &signalHub{listeners: make(map[chan *SignalFrame]struct{})}
}

// SendSignal transmits a call-signaling payload scoped to callID. The sender
// identity is stamped from the connection's credentials.
func (c *Client) SendSignal(callID string, payload any) error {
	p, err := toPayloadMap(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	from := c.identity.UserID
	c.mu.Unlock()
	if conn == nil {
		log.Printf("MSG: call-signal for %s dropped — not connected", callID)
		return nil
	}
	return c.writeEnvelope(conn, evCallSignal, SignalFrame{
		CallID:  callID,
		From:    from,
		Payload: p,
	})
}

// SubscribeSignals registers a listener for inbound call-signal frames.
// A slow listener drops frames rather than blocking the read loop.
func (c *Client) SubscribeSignals() (ch chan *SignalFrame, cancel func()) {
	ch = make(chan *SignalFrame, 64)

	c.signals.mu.Lock()
	c.signals.listeners[ch] = struct{}{}
	c.signals.mu.Unlock()

	cancel = func() {
		c.signals.mu.Lock()
		if _, ok := c.signals.listeners[ch]; ok {
			delete(c.signals.listeners, ch)
			close(ch)
		}
		c.signals.mu.Unlock()
	}
	return ch, cancel
}

func (c *Client) dispatchSignal(data json.RawMessage) {
	var frame SignalFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("MSG: bad %s payload: %v", evCallSignal, err)
		return
	}

	c.signals.mu.RLock()
	defer c.signals.mu.RUnlock()
	for ch := range c.signals.listeners {
		select {
		case ch <- &frame:
		default:
			log.Printf("MSG: call-signal listener full — dropping frame for %s", frame.CallID)
		}
	}
}

// toPayloadMap normalizes any payload into the map form SignalFrame carries.
func toPayloadMap(payload any) (map[string]any, error) {
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
