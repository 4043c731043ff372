package app

import (
	"sync"

	"github.com/stylecast/stylecast/internal/call"
	"github.com/stylecast/stylecast/internal/messaging"
)

// signalerAdapter bridges the messaging client's call-signal frames to the
// call package's Signaler interface.
type signalerAdapter struct {
	client *messaging.Client
}

func (a *signalerAdapter) Send(callID string, payload any) error {
	return a.client.SendSignal(callID, payload)
}

func (a *signalerAdapter) Subscribe() (chan *call.Envelope, func()) {
	frames, cancel := a.client.SubscribeSignals()
	out := make(chan *call.Envelope, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for frame := range frames {
			env := &call.Envelope{
				CallID:  frame.CallID,
				From:    frame.From,
				Payload: frame.Payload,
			}
			// The consumer may stop reading before cancelling; never let a
			// full buffer pin this goroutine past the subscription's life.
			select {
			case out <- env:
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	return out, stop
}
