//go:build linux

package rtc

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
)

const (
	defaultCameraWidth  = 1280
	defaultCameraHeight = 720
	defaultScreenWidth  = 1920
	defaultScreenHeight = 1080
	defaultFrameRate    = 30
)

// newCodecSelector builds the VP8+Opus selector used for every capture.
func newCodecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

func videoConstraint(opts CaptureOptions, defW, defH int) func(*mediadevices.MediaTrackConstraints) {
	w, h, fps := opts.Width, opts.Height, opts.FrameRate
	if w <= 0 {
		w = defW
	}
	if h <= 0 {
		h = defH
	}
	if fps <= 0 {
		fps = defaultFrameRate
	}
	return func(c *mediadevices.MediaTrackConstraints) {
		// Raw formats only. MJPEG camera nodes can emit malformed JPEG frames
		// that poison the VP8 encoder and break SDP negotiation.
		c.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatYUYV,
			frame.FormatI420,
			frame.FormatI444,
			frame.FormatRGBA,
		}
		c.Width = prop.IntRanged{Ideal: w, Max: w}
		c.Height = prop.IntRanged{Ideal: h, Max: h}
		c.FrameRate = prop.FloatRanged{Ideal: fps, Max: fps}
	}
}

// GetUserMedia captures camera and/or microphone tracks per opts. Defaults
// to 1280x720 @ 30 fps video. Capture failure is an environment error; the
// caller decides whether to fall back to receive-only.
func GetUserMedia(opts CaptureOptions) (mediadevices.MediaStream, error) {
	if !opts.Video && !opts.Audio {
		return nil, fmt.Errorf("capture requested with no tracks")
	}
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	if opts.Video {
		constraints.Video = videoConstraint(opts, defaultCameraWidth, defaultCameraHeight)
	}
	if opts.Audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	return stream, nil
}

// GetDisplayMedia captures the screen for sharing. Defaults to 1920x1080
// @ 30 fps. Audio is never captured from the display source.
func GetDisplayMedia(opts CaptureOptions) (mediadevices.MediaStream, error) {
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}

	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: selector,
		Video: videoConstraint(opts, defaultScreenWidth, defaultScreenHeight),
	})
	if err != nil {
		return nil, fmt.Errorf("get display media: %w", err)
	}
	return stream, nil
}
