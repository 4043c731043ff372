package rtc

import "github.com/pion/webrtc/v4"

// Re-exported Pion types so callers branch on connection state without
// importing pion/webrtc directly. The helpers never interpret these values.
type (
	ConnectionState    = webrtc.PeerConnectionState
	ICEConnectionState = webrtc.ICEConnectionState
	GatheringState     = webrtc.ICEGatheringState
	SignalingState     = webrtc.SignalingState
	SessionDescription = webrtc.SessionDescription
	ICECandidateInit   = webrtc.ICECandidateInit
)

const (
	ConnectionStateNew          = webrtc.PeerConnectionStateNew
	ConnectionStateConnecting   = webrtc.PeerConnectionStateConnecting
	ConnectionStateConnected    = webrtc.PeerConnectionStateConnected
	ConnectionStateDisconnected = webrtc.PeerConnectionStateDisconnected
	ConnectionStateFailed       = webrtc.PeerConnectionStateFailed
	ConnectionStateClosed       = webrtc.PeerConnectionStateClosed
)
