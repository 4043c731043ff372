// Package call manages live shopping call sessions: Pion peer connections,
// offer/answer/ICE signaling over the messaging socket, and the per-call
// wardrobe coordinator. Coupling to the messaging layer is via the Signaler
// interface only.
package call

import (
	"context"
	"log"
	"sync"

	"github.com/stylecast/stylecast/internal/config"
	"github.com/stylecast/stylecast/internal/storage"
	"github.com/stylecast/stylecast/internal/wardrobe"
)

// Manager owns active call sessions and bridges signaling to them.
type Manager struct {
	sig    Signaler
	rtcCfg config.RTC
	api    *wardrobe.APIClient
	db     *storage.DB
	selfID string

	mu       sync.RWMutex
	sessions map[string]*Session

	// Signals that arrived before the local side accepted the call (the
	// remote offer usually beats AcceptCall). Replayed once the session
	// exists, dropped on reject.
	pendingMu sync.Mutex
	pending   map[string][]pendingSignal

	incomingMu sync.RWMutex
	incoming   []func(*IncomingCall)

	done chan struct{}
}

// New creates a Manager attached to sig and starts listening for signaling
// messages immediately. api and db back each session's wardrobe coordinator.
func New(sig Signaler, rtcCfg config.RTC, api *wardrobe.APIClient, db *storage.DB, selfID string) *Manager {
	m := &Manager{
		sig:      sig,
		rtcCfg:   rtcCfg,
		api:      api,
		db:       db,
		selfID:   selfID,
		sessions: make(map[string]*Session),
		pending:  make(map[string][]pendingSignal),
		done:     make(chan struct{}),
	}
	go m.dispatchLoop()
	return m
}

// OnIncoming registers a callback fired for each incoming call-request.
func (m *Manager) OnIncoming(fn func(*IncomingCall)) {
	m.incomingMu.Lock()
	m.incoming = append(m.incoming, fn)
	m.incomingMu.Unlock()
}

// StartCall creates an outbound session for callID to remotePeer, sends the
// call-request, and begins negotiation as the offering side.
func (m *Manager) StartCall(ctx context.Context, callID, remotePeer string) (*Session, error) {
	sess := newSession(callID, remotePeer, m)
	m.mu.Lock()
	m.sessions[callID] = sess
	m.mu.Unlock()

	if err := m.sig.Send(callID, map[string]any{"type": sigCallRequest}); err != nil {
		m.removeSession(callID)
		return nil, err
	}
	if err := sess.start(true); err != nil {
		sess.Hangup()
		return nil, err
	}
	log.Printf("CALL: started %s → %s", callID, remotePeer)
	return sess, nil
}

// AcceptCall creates a session for an incoming call; it answers when the
// remote offer arrives.
func (m *Manager) AcceptCall(ctx context.Context, callID, remotePeer string) (*Session, error) {
	sess := newSession(callID, remotePeer, m)
	m.mu.Lock()
	m.sessions[callID] = sess
	m.mu.Unlock()

	if err := sess.start(false); err != nil {
		sess.Hangup()
		return nil, err
	}

	m.pendingMu.Lock()
	queued := m.pending[callID]
	delete(m.pending, callID)
	m.pendingMu.Unlock()
	for _, ps := range queued {
		sess.handleSignal(ps.msgType, ps.payload)
	}

	log.Printf("CALL: accepted %s from %s", callID, remotePeer)
	return sess, nil
}

type pendingSignal struct {
	msgType string
	payload map[string]any
}

// GetSession returns the active session for callID, if any.
func (m *Manager) GetSession(callID string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[callID]
	m.mu.RUnlock()
	return s, ok
}

func (m *Manager) removeSession(callID string) {
	m.mu.Lock()
	delete(m.sessions, callID)
	m.mu.Unlock()
}

// Close shuts down the manager and hangs up all active sessions.
func (m *Manager) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Hangup()
	}
}

// dispatchLoop reads signaling envelopes and routes them.
func (m *Manager) dispatchLoop() {
	ch, cancel := m.sig.Subscribe()
	defer cancel()

	for {
		select {
		case <-m.done:
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			m.dispatch(env)
		}
	}
}

// dispatch routes one envelope to its session, or fires OnIncoming handlers
// for a new call-request.
func (m *Manager) dispatch(env *Envelope) {
	payload, ok := env.Payload.(map[string]any)
	if !ok {
		return
	}
	msgType, _ := payload["type"].(string)

	if msgType == sigCallRequest {
		ic := &IncomingCall{
			CallID:     env.CallID,
			RemotePeer: env.From,
			Accept: func(ctx context.Context) (*Session, error) {
				return m.AcceptCall(ctx, env.CallID, env.From)
			},
			Reject: func() {
				_ = m.sig.Send(env.CallID, map[string]any{"type": sigHangup})
				m.removeSession(env.CallID)
				m.pendingMu.Lock()
				delete(m.pending, env.CallID)
				m.pendingMu.Unlock()
			},
		}
		m.incomingMu.RLock()
		handlers := make([]func(*IncomingCall), len(m.incoming))
		copy(handlers, m.incoming)
		m.incomingMu.RUnlock()
		for _, fn := range handlers {
			fn(ic)
		}
		return
	}

	m.mu.RLock()
	sess, ok := m.sessions[env.CallID]
	m.mu.RUnlock()
	if ok {
		sess.handleSignal(msgType, payload)
		return
	}

	if msgType == sigHangup {
		return
	}
	m.pendingMu.Lock()
	if len(m.pending[env.CallID]) < 32 {
		m.pending[env.CallID] = append(m.pending[env.CallID], pendingSignal{msgType, payload})
	}
	m.pendingMu.Unlock()
}
