// Package video provides the playback substrate behind the overlay plane: a
// Player that behaves like a muted, non-looping video element and the
// decoders that feed it frames.
package video

import (
	"context"
	"errors"
	"image"
	"path"
	"strings"
	"time"

	"github.com/markercast/engine/internal/media"
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg is not found in PATH.
	ErrFFmpegNotFound = errors.New("video: ffmpeg not found in PATH")

	// ErrNoFrames is returned for a source without any decodable frame.
	ErrNoFrames = errors.New("video: no frames")
)

// Decoder produces frames of a single video source.
type Decoder interface {
	// Size returns the intrinsic frame size in pixels.
	Size() (w, h int)
	// Duration returns the playable length.
	Duration() time.Duration
	// FrameAt returns the frame shown at t. The returned image may be reused
	// by the next call.
	FrameAt(t time.Duration) (image.Image, error)
	Close() error
}

// Opener opens a decoder for a URI.
type Opener func(ctx context.Context, uri string) (Decoder, error)

// NewOpener returns the default opener: animated GIFs are decoded in process,
// anything else goes through ffmpeg.
func NewOpener(fetcher *media.Fetcher) Opener {
	return func(ctx context.Context, uri string) (Decoder, error) {
		if isGIF(uri) {
			data, err := fetcher.Fetch(ctx, uri)
			if err != nil {
				return nil, err
			}
			return NewGIF(data)
		}
		src := uri
		if p, ok := media.LocalPath(uri); ok {
			src = p
		}
		return NewFFmpeg(ctx, src, FFmpegOptions{})
	}
}

func isGIF(uri string) bool {
	p := uri
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.EqualFold(path.Ext(p), ".gif")
}
