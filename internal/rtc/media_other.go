//go:build !linux

package rtc

import "github.com/pion/mediadevices"

// Camera/mic/screen capture via pion/mediadevices requires platform drivers
// (V4L2, malgo, X11 on Linux). Elsewhere the session runs receive-only.

func GetUserMedia(CaptureOptions) (mediadevices.MediaStream, error) {
	return nil, ErrMediaUnsupported
}

func GetDisplayMedia(CaptureOptions) (mediadevices.MediaStream, error) {
	return nil, ErrMediaUnsupported
}
