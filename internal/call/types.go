package call

import "context"

// Signaler is the only surface the call package needs from the messaging
// layer. The messaging client satisfies it via a small adapter in
// internal/app (the only place that imports both packages).
type Signaler interface {
	Send(callID string, payload any) error
	Subscribe() (ch chan *Envelope, cancel func())
}

// Envelope is one signaling message scoped to a call.
type Envelope struct {
	CallID  string `json:"callId"`
	From    string `json:"from"`
	Payload any    `json:"payload"`
}

// Signal message types carried in Envelope payloads.
const (
	sigCallRequest  = "call-request"
	sigOffer        = "offer"
	sigAnswer       = "answer"
	sigICECandidate = "ice-candidate"
	sigHangup       = "call-hangup"
)

// IncomingCall is handed to OnIncoming handlers; exactly one of Accept or
// Reject should be invoked.
type IncomingCall struct {
	CallID     string
	RemotePeer string
	Accept     func(ctx context.Context) (*Session, error)
	Reject     func()
}
