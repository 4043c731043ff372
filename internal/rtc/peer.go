package rtc

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/stylecast/stylecast/internal/config"
)

// NewPeerConnection builds a peer connection with default codecs and
// interceptors, ICE servers from cfg (see ICEServers), and the configured
// candidate pool pre-gathered so negotiation starts with candidates in hand.
func NewPeerConnection(cfg config.RTC) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	// Generous ICE timeouts: the default 5 s disconnectedTimeout drops calls
	// on brief relay or NAT hiccups that ICE would otherwise recover from.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pool := cfg.CandidatePoolSize
	if pool < 0 || pool > 255 {
		pool = 0
	}
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:           ICEServers(cfg),
		ICECandidatePoolSize: uint8(pool),
	})
}

// AddRecvOnlyTransceivers adds recvonly video and audio transceivers so
// CreateOffer/CreateAnswer produces valid m-lines with ICE credentials even
// when no local tracks were captured.
func AddRecvOnlyTransceivers(pc *webrtc.PeerConnection) {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("RTC: AddTransceiver(video) error: %v", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("RTC: AddTransceiver(audio) error: %v", err)
	}
}

// CreateOffer produces the local offer and installs it as the local
// description. Candidates trickle afterwards via OnICECandidate. If the
// connection has no senders yet, recvonly transceivers are added first so
// the offer carries usable m-lines.
func CreateOffer(pc *webrtc.PeerConnection) (webrtc.SessionDescription, error) {
	if pc == nil {
		return webrtc.SessionDescription{}, errors.New("nil peer connection")
	}
	if len(pc.GetSenders()) == 0 && len(pc.GetTransceivers()) == 0 {
		AddRecvOnlyTransceivers(pc)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

// CreateAnswer installs the remote offer, produces the answer, and installs
// it as the local description.
func CreateAnswer(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if pc == nil {
		return webrtc.SessionDescription{}, errors.New("nil peer connection")
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

// SetRemoteAnswer installs the remote answer on the offering side.
func SetRemoteAnswer(pc *webrtc.PeerConnection, answer webrtc.SessionDescription) error {
	if pc == nil {
		return errors.New("nil peer connection")
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// AddICECandidate feeds a trickled remote candidate into the connection.
// Nil-safe: a candidate arriving after teardown is dropped with a log line.
func AddICECandidate(pc *webrtc.PeerConnection, cand webrtc.ICECandidateInit) error {
	if pc == nil {
		log.Printf("RTC: dropping ICE candidate — connection already closed")
		return nil
	}
	return pc.AddICECandidate(cand)
}

// CloseConnection tears a connection down. Nil-safe and idempotent; Close
// errors are logged, never returned, since teardown must always proceed.
func CloseConnection(pc *webrtc.PeerConnection) {
	if pc == nil {
		return
	}
	if err := pc.Close(); err != nil {
		log.Printf("RTC: close peer connection: %v", err)
	}
}
