package rtc

import (
	"os"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/stylecast/stylecast/internal/config"
)

func TestICEServers(t *testing.T) {
	t.Run("stun list splits on commas", func(t *testing.T) {
		servers := ICEServers(config.RTC{
			STUNServers: "stun:a.example:19302, stun:b.example:19302",
		})
		if len(servers) != 1 {
			t.Fatalf("expected 1 server entry, got %d", len(servers))
		}
		if len(servers[0].URLs) != 2 || servers[0].URLs[1] != "stun:b.example:19302" {
			t.Fatalf("unexpected urls: %v", servers[0].URLs)
		}
	})

	t.Run("complete turn config is included", func(t *testing.T) {
		servers := ICEServers(config.RTC{
			STUNServers:  "stun:a.example:19302",
			TURNServer:   "turn:relay.example:3478",
			TURNUsername: "u",
			TURNPassword: "p",
		})
		if len(servers) != 2 {
			t.Fatalf("expected stun+turn, got %d entries", len(servers))
		}
		if servers[1].Username != "u" || servers[1].Credential != "p" {
			t.Fatalf("turn credentials not carried: %+v", servers[1])
		}
	})

	t.Run("partial turn config is skipped", func(t *testing.T) {
		servers := ICEServers(config.RTC{
			STUNServers: "stun:a.example:19302",
			TURNServer:  "turn:relay.example:3478",
		})
		if len(servers) != 1 {
			t.Fatalf("partial turn must be dropped, got %d entries", len(servers))
		}
	})

	t.Run("environment overrides config", func(t *testing.T) {
		os.Setenv(envSTUNServers, "stun:env.example:19302")
		defer os.Unsetenv(envSTUNServers)

		servers := ICEServers(config.RTC{STUNServers: "stun:file.example:19302"})
		if servers[0].URLs[0] != "stun:env.example:19302" {
			t.Fatalf("env override not applied: %v", servers[0].URLs)
		}
	})
}

func TestCreateOfferAddsRecvOnlyLines(t *testing.T) {
	pc, err := NewPeerConnection(config.RTC{STUNServers: "stun:stun.l.google.com:19302"})
	if err != nil {
		t.Fatal(err)
	}
	defer CloseConnection(pc)

	offer, err := CreateOffer(pc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(offer.SDP, "m=video") || !strings.Contains(offer.SDP, "m=audio") {
		t.Fatal("offer missing media sections")
	}
	if !strings.Contains(offer.SDP, "a=recvonly") {
		t.Fatal("expected recvonly direction without local tracks")
	}
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	cfg := config.RTC{STUNServers: "stun:stun.l.google.com:19302"}
	caller, err := NewPeerConnection(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer CloseConnection(caller)
	callee, err := NewPeerConnection(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer CloseConnection(callee)

	offer, err := CreateOffer(caller)
	if err != nil {
		t.Fatal(err)
	}
	answer, err := CreateAnswer(callee, offer)
	if err != nil {
		t.Fatal(err)
	}
	if err := SetRemoteAnswer(caller, answer); err != nil {
		t.Fatal(err)
	}
	if caller.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("expected stable signaling state, got %s", caller.SignalingState())
	}
}

func TestNilSafety(t *testing.T) {
	// Teardown helpers must tolerate an already-closed session.
	CloseConnection(nil)
	if err := AddICECandidate(nil, webrtc.ICECandidateInit{Candidate: "candidate:1"}); err != nil {
		t.Fatalf("nil pc candidate must be dropped silently, got %v", err)
	}
	if _, err := CreateOffer(nil); err == nil {
		t.Fatal("expected error from nil pc")
	}
	StopMediaStream(nil)
}
