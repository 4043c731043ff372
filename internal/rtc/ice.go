// Package rtc holds stateless WebRTC helpers: peer connection construction,
// offer/answer negotiation, ICE plumbing, and local media capture. Nothing
// here keeps state between calls; the call package owns session lifetime.
package rtc

import (
	"log"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/stylecast/stylecast/internal/config"
)

// Environment overrides take precedence over the config file so deployments
// can swap ICE infrastructure without editing config.
const (
	envSTUNServers  = "STYLECAST_STUN_SERVERS"
	envTURNServer   = "STYLECAST_TURN_SERVER"
	envTURNUsername = "STYLECAST_TURN_USERNAME"
	envTURNPassword = "STYLECAST_TURN_PASSWORD"
)

// ICEServers resolves the ICE server list from config plus environment
// overrides. A TURN entry is included only when server, username, and
// password are all present; a partial TURN setup is ignored and logged.
func ICEServers(cfg config.RTC) []webrtc.ICEServer {
	stun := cfg.STUNServers
	if v := os.Getenv(envSTUNServers); v != "" {
		stun = v
	}
	if strings.TrimSpace(stun) == "" {
		stun = "stun:stun.l.google.com:19302"
	}

	var servers []webrtc.ICEServer
	var urls []string
	for _, s := range strings.Split(stun, ",") {
		if s = strings.TrimSpace(s); s != "" {
			urls = append(urls, s)
		}
	}
	if len(urls) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}

	turnServer := firstNonEmpty(os.Getenv(envTURNServer), cfg.TURNServer)
	turnUser := firstNonEmpty(os.Getenv(envTURNUsername), cfg.TURNUsername)
	turnPass := firstNonEmpty(os.Getenv(envTURNPassword), cfg.TURNPassword)

	switch {
	case turnServer == "" && turnUser == "" && turnPass == "":
		// No TURN configured.
	case turnServer != "" && turnUser != "" && turnPass != "":
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{turnServer},
			Username:   turnUser,
			Credential: turnPass,
		})
	default:
		log.Printf("RTC: incomplete TURN configuration (server/username/password must all be set) — skipping relay")
	}

	return servers
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
