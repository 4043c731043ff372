package rtc

import (
	"errors"
	"log"

	"github.com/pion/mediadevices"
)

// ErrMediaUnsupported is returned by capture helpers on platforms without
// mediadevices driver support.
var ErrMediaUnsupported = errors.New("local media capture not supported on this platform")

// CaptureOptions selects which tracks to capture and at what geometry.
// Zero-valued fields fall back to per-source defaults: 1280x720 @ 30 fps for
// the camera, 1920x1080 @ 30 fps for screen capture.
type CaptureOptions struct {
	Video     bool
	Audio     bool
	Width     int
	Height    int
	FrameRate float32
}

// DefaultCaptureOptions is the camera+mic capture used by call sessions.
var DefaultCaptureOptions = CaptureOptions{Video: true, Audio: true}

// StopMediaStream closes every track of a captured stream. Nil-safe and
// idempotent; per-track close errors are logged and do not stop the walk.
func StopMediaStream(stream mediadevices.MediaStream) {
	if stream == nil {
		return
	}
	for _, track := range stream.GetTracks() {
		if err := track.Close(); err != nil {
			log.Printf("RTC: close track %s: %v", track.ID(), err)
		}
	}
}
