package call

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/stylecast/stylecast/internal/rtc"
	"github.com/stylecast/stylecast/internal/wardrobe"
)

const pliInterval = 3 * time.Second

// Session is one live shopping call with a remote peer. It owns the peer
// connection, the local media stream, and the wardrobe coordinator for the
// call; Hangup finalizes all three.
type Session struct {
	callID     string
	remotePeer string
	mgr        *Manager

	// Wardrobe holds the shared-wardrobe state for this call. Initialized
	// with no wardrobe selected; finalized on hangup.
	Wardrobe *wardrobe.Coordinator

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	media       mediadevices.MediaStream
	screen      mediadevices.MediaStream
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
	cameraTrack webrtc.TrackLocal
	audioOn     bool
	videoOn     bool
	hung        bool
}

func newSession(callID, remotePeer string, m *Manager) *Session {
	s := &Session{
		callID:     callID,
		remotePeer: remotePeer,
		mgr:        m,
		Wardrobe:   wardrobe.NewCoordinator(m.api, m.db),
		audioOn:    true,
		videoOn:    true,
	}
	s.Wardrobe.AddedBy = m.selfID
	s.Wardrobe.InitializeSession(callID, "")
	return s
}

// start builds the peer connection, attaches local media (falling back to
// receive-only when capture fails), and, on the offering side, sends the
// initial offer. The answering side waits for the remote offer.
func (s *Session) start(initiator bool) error {
	pc, err := rtc.NewPeerConnection(s.mgr.rtcCfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	s.attachLocalMedia(pc)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		payload := map[string]any{
			"type":      sigICECandidate,
			"candidate": init.Candidate,
		}
		if init.SDPMid != nil {
			payload["sdpMid"] = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			payload["sdpMLineIndex"] = float64(*init.SDPMLineIndex)
		}
		if err := s.mgr.sig.Send(s.callID, payload); err != nil {
			log.Printf("CALL [%s]: send candidate: %v", s.callID, err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("CALL [%s]: remote track %s (%s)", s.callID, track.ID(), track.Kind())
		go s.drainTrack(pc, track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("CALL [%s]: connection state %s", s.callID, state)
		if state == webrtc.PeerConnectionStateFailed {
			s.Hangup()
		}
	})

	if initiator {
		offer, err := rtc.CreateOffer(pc)
		if err != nil {
			return err
		}
		return s.mgr.sig.Send(s.callID, map[string]any{"type": sigOffer, "sdp": offer.SDP})
	}
	return nil
}

// attachLocalMedia captures camera+mic and adds the tracks. Capture failure
// (no devices, unsupported platform) degrades to receive-only.
func (s *Session) attachLocalMedia(pc *webrtc.PeerConnection) {
	stream, err := rtc.GetUserMedia(rtc.DefaultCaptureOptions)
	if err != nil {
		log.Printf("CALL [%s]: local media unavailable (%v) — receive-only", s.callID, err)
		rtc.AddRecvOnlyTransceivers(pc)
		return
	}

	s.mu.Lock()
	s.media = stream
	s.mu.Unlock()

	for _, track := range stream.GetTracks() {
		sender, err := pc.AddTrack(track)
		if err != nil {
			log.Printf("CALL [%s]: add track: %v", s.callID, err)
			continue
		}
		s.mu.Lock()
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			s.audioSender = sender
		case webrtc.RTPCodecTypeVideo:
			s.videoSender = sender
			s.cameraTrack = track
		}
		s.mu.Unlock()
	}
	log.Printf("CALL [%s]: local media attached — %d tracks", s.callID, len(stream.GetTracks()))
}

// drainTrack reads inbound RTP until the track ends. For video it also
// requests a keyframe every pliInterval so a new viewer is not stuck waiting
// for the encoder's next natural keyframe.
func (s *Session) drainTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	done := make(chan struct{})
	defer close(done)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go func() {
			ticker := time.NewTicker(pliInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					err := pc.WriteRTCP([]rtcp.Packet{
						&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
					})
					if err != nil {
						return
					}
				}
			}
		}()
	}

	var (
		pkt      *rtp.Packet
		err      error
		received uint64
		lost     uint64
		lastSeq  uint16
		haveSeq  bool
	)
	for {
		pkt, _, err = track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("CALL [%s]: track %s read: %v", s.callID, track.ID(), err)
			}
			if received > 0 {
				log.Printf("CALL [%s]: track %s ended — %d packets, %d lost", s.callID, track.ID(), received, lost)
			}
			return
		}
		received++
		if haveSeq {
			if gap := pkt.SequenceNumber - lastSeq; gap > 1 && gap < 1<<15 {
				lost += uint64(gap - 1)
			}
		}
		lastSeq = pkt.SequenceNumber
		haveSeq = true
	}
}

// ToggleAudio flips the outbound audio track. Returns the new muted state
// (true = muted). Mute detaches the track from its sender so no packets
// leave; unmute reattaches it.
func (s *Session) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audioOn = !s.audioOn
	muted := !s.audioOn
	if s.audioSender != nil {
		var t webrtc.TrackLocal
		if s.audioOn && s.media != nil {
			for _, track := range s.media.GetAudioTracks() {
				t = track
				break
			}
		}
		if err := s.audioSender.ReplaceTrack(t); err != nil {
			log.Printf("CALL [%s]: toggle audio: %v", s.callID, err)
		}
	}
	log.Printf("CALL [%s]: audio muted=%v", s.callID, muted)
	return muted
}

// ToggleVideo flips the outbound video track. Returns the new disabled
// state (true = disabled).
func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.videoOn = !s.videoOn
	disabled := !s.videoOn
	if s.videoSender != nil {
		var t webrtc.TrackLocal
		if s.videoOn {
			t = s.cameraTrack
		}
		if err := s.videoSender.ReplaceTrack(t); err != nil {
			log.Printf("CALL [%s]: toggle video: %v", s.callID, err)
		}
	}
	log.Printf("CALL [%s]: video disabled=%v", s.callID, disabled)
	return disabled
}

// ShareScreen swaps the outbound video track for a screen capture. The
// camera keeps running so StopScreenShare can switch back instantly.
func (s *Session) ShareScreen() error {
	stream, err := rtc.GetDisplayMedia(rtc.CaptureOptions{Video: true})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoSender == nil {
		rtc.StopMediaStream(stream)
		return errors.New("no video sender to share on")
	}
	var screenTrack webrtc.TrackLocal
	for _, track := range stream.GetVideoTracks() {
		screenTrack = track
		break
	}
	if screenTrack == nil {
		rtc.StopMediaStream(stream)
		return errors.New("screen capture produced no video track")
	}
	if err := s.videoSender.ReplaceTrack(screenTrack); err != nil {
		rtc.StopMediaStream(stream)
		return err
	}
	if s.screen != nil {
		rtc.StopMediaStream(s.screen)
	}
	s.screen = stream
	log.Printf("CALL [%s]: screen share started", s.callID)
	return nil
}

// StopScreenShare restores the camera track and releases the screen capture.
func (s *Session) StopScreenShare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen == nil {
		return
	}
	if s.videoSender != nil && s.videoOn {
		if err := s.videoSender.ReplaceTrack(s.cameraTrack); err != nil {
			log.Printf("CALL [%s]: restore camera: %v", s.callID, err)
		}
	}
	rtc.StopMediaStream(s.screen)
	s.screen = nil
	log.Printf("CALL [%s]: screen share stopped", s.callID)
}

// Hangup tears the session down: signals the remote peer, closes the peer
// connection, releases media, and finalizes the wardrobe session. Idempotent.
func (s *Session) Hangup() {
	s.mu.Lock()
	if s.hung {
		s.mu.Unlock()
		return
	}
	s.hung = true
	pc := s.pc
	media := s.media
	screen := s.screen
	s.pc = nil
	s.media = nil
	s.screen = nil
	s.mu.Unlock()

	_ = s.mgr.sig.Send(s.callID, map[string]any{"type": sigHangup})
	s.teardown(pc, media, screen)
	log.Printf("CALL [%s]: hangup sent to %s", s.callID, s.remotePeer)
}

func (s *Session) teardown(pc *webrtc.PeerConnection, media, screen mediadevices.MediaStream) {
	rtc.CloseConnection(pc)
	rtc.StopMediaStream(media)
	rtc.StopMediaStream(screen)

	summary := s.Wardrobe.FinalizeLiveSession()
	if summary.TotalItems > 0 {
		log.Printf("CALL [%s]: session saved %d items to wardrobe %q",
			s.callID, summary.TotalItems, summary.WardrobeID)
	}
	s.mgr.removeSession(s.callID)
}

// handleSignal processes one inbound signaling message from the remote peer.
func (s *Session) handleSignal(msgType string, payload map[string]any) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil && msgType != sigHangup {
		return
	}

	switch msgType {
	case sigOffer:
		sdp, _ := payload["sdp"].(string)
		answer, err := rtc.CreateAnswer(pc, webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sdp,
		})
		if err != nil {
			log.Printf("CALL [%s]: answer offer: %v", s.callID, err)
			return
		}
		if err := s.mgr.sig.Send(s.callID, map[string]any{"type": sigAnswer, "sdp": answer.SDP}); err != nil {
			log.Printf("CALL [%s]: send answer: %v", s.callID, err)
		}

	case sigAnswer:
		sdp, _ := payload["sdp"].(string)
		err := rtc.SetRemoteAnswer(pc, webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  sdp,
		})
		if err != nil {
			log.Printf("CALL [%s]: apply answer: %v", s.callID, err)
		}

	case sigICECandidate:
		cand, _ := payload["candidate"].(string)
		init := webrtc.ICECandidateInit{Candidate: cand}
		if mid, ok := payload["sdpMid"].(string); ok {
			init.SDPMid = &mid
		}
		if idx, ok := payload["sdpMLineIndex"].(float64); ok {
			u := uint16(idx)
			init.SDPMLineIndex = &u
		}
		if err := rtc.AddICECandidate(pc, init); err != nil {
			log.Printf("CALL [%s]: add candidate: %v", s.callID, err)
		}

	case sigHangup:
		log.Printf("CALL [%s]: remote hangup from %s", s.callID, s.remotePeer)
		s.Hangup()

	default:
		log.Printf("CALL [%s]: unknown signal %q from %s", s.callID, msgType, s.remotePeer)
	}
}

// Active reports whether the session has not been hung up.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hung
}

// RemotePeer returns the peer id this session is connected to.
func (s *Session) RemotePeer() string { return s.remotePeer }

// CallID returns the call this session belongs to.
func (s *Session) CallID() string { return s.callID }
