package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/stylecast/stylecast/internal/config"
	"github.com/stylecast/stylecast/internal/storage"
	"github.com/stylecast/stylecast/internal/wardrobe"
)

// fakeSig is an in-memory signaler. Two instances joined by link form a
// loopback signaling path between two managers.
type fakeSig struct {
	self string

	mu   sync.Mutex
	peer *fakeSig
	subs []chan *Envelope
	sent []map[string]any
}

func link(a, b *fakeSig) {
	a.peer = b
	b.peer = a
}

func (f *fakeSig) Send(callID string, payload any) error {
	p, _ := payload.(map[string]any)
	f.mu.Lock()
	f.sent = append(f.sent, p)
	peer := f.peer
	f.mu.Unlock()

	if peer == nil {
		return nil
	}
	env := &Envelope{CallID: callID, From: f.self, Payload: payload}
	peer.mu.Lock()
	subs := append([]chan *Envelope(nil), peer.subs...)
	peer.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

func (f *fakeSig) Subscribe() (chan *Envelope, func()) {
	ch := make(chan *Envelope, 64)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

// sentTypes returns the signal types sent so far, in order.
func (f *fakeSig) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.sent {
		if t, ok := p["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func newTestManager(t *testing.T, sig Signaler, selfID string) *Manager {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	api := wardrobe.NewAPIClient("http://localhost:1", db, time.Second)
	cfg := config.RTC{STUNServers: "stun:stun.l.google.com:19302"}
	m := New(sig, cfg, api, db, selfID)
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartCallSendsRequestAndOffer(t *testing.T) {
	sig := &fakeSig{self: "u1"}
	m := newTestManager(t, sig, "u1")

	sess, err := m.StartCall(context.Background(), "call-1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Hangup()

	types := sig.sentTypes()
	if len(types) < 2 || types[0] != sigCallRequest || types[1] != sigOffer {
		t.Fatalf("expected call-request then offer, got %v", types)
	}
	if _, ok := m.GetSession("call-1"); !ok {
		t.Fatal("session not tracked")
	}
}

func TestIncomingCallFanout(t *testing.T) {
	caller := &fakeSig{self: "u1"}
	callee := &fakeSig{self: "u2"}
	link(caller, callee)

	m := newTestManager(t, callee, "u2")
	incoming := make(chan *IncomingCall, 1)
	m.OnIncoming(func(ic *IncomingCall) { incoming <- ic })

	caller.Send("call-1", map[string]any{"type": sigCallRequest})

	select {
	case ic := <-incoming:
		if ic.CallID != "call-1" || ic.RemotePeer != "u1" {
			t.Fatalf("unexpected incoming call: %+v", ic)
		}
		ic.Reject()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for incoming call")
	}

	waitFor(t, "hangup reply", func() bool {
		for _, ty := range callee.sentTypes() {
			if ty == sigHangup {
				return true
			}
		}
		return false
	})
}

func TestOfferAnswerOverSignaler(t *testing.T) {
	callerSig := &fakeSig{self: "u1"}
	calleeSig := &fakeSig{self: "u2"}
	link(callerSig, calleeSig)

	callerMgr := newTestManager(t, callerSig, "u1")
	calleeMgr := newTestManager(t, calleeSig, "u2")

	calleeMgr.OnIncoming(func(ic *IncomingCall) {
		go ic.Accept(context.Background())
	})

	sess, err := callerMgr.StartCall(context.Background(), "call-1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Hangup()

	// The callee's answer must land and settle the caller's negotiation.
	waitFor(t, "stable signaling state", func() bool {
		sess.mu.Lock()
		pc := sess.pc
		sess.mu.Unlock()
		return pc != nil && pc.SignalingState() == webrtc.SignalingStateStable
	})
}

func TestHangupIsIdempotentAndFinalizes(t *testing.T) {
	sig := &fakeSig{self: "u1"}
	m := newTestManager(t, sig, "u1")

	sess, err := m.StartCall(context.Background(), "call-1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Wardrobe.GetSessionState() == nil {
		t.Fatal("expected wardrobe session to be initialized")
	}

	sess.Hangup()
	sess.Hangup()

	if sess.Active() {
		t.Fatal("expected inactive session")
	}
	if sess.Wardrobe.GetSessionState() != nil {
		t.Fatal("expected wardrobe session to be finalized on hangup")
	}
	if _, ok := m.GetSession("call-1"); ok {
		t.Fatal("session not removed after hangup")
	}

	hangups := 0
	for _, ty := range sig.sentTypes() {
		if ty == sigHangup {
			hangups++
		}
	}
	if hangups != 1 {
		t.Fatalf("expected exactly one hangup signal, got %d", hangups)
	}
}

func TestRemoteHangupTearsDown(t *testing.T) {
	callerSig := &fakeSig{self: "u1"}
	calleeSig := &fakeSig{self: "u2"}
	link(callerSig, calleeSig)

	m := newTestManager(t, callerSig, "u1")
	sess, err := m.StartCall(context.Background(), "call-1", "u2")
	if err != nil {
		t.Fatal(err)
	}

	calleeSig.Send("call-1", map[string]any{"type": sigHangup})

	waitFor(t, "session teardown", func() bool { return !sess.Active() })
}
