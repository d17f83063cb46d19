// Package camera models the single camera the viewer and the scanner share.
// A Device opens Sources; the Arbiter hands out at most one live Stream at a
// time and stops the current holder before opening for a new one.
package camera

import (
	"context"
	"image"
	"time"

	"github.com/markercast/engine/internal/config"
)

// Constraints is the stream request passed to a device.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
	FPS        int
}

// ConstraintsFrom builds constraints from the camera config.
func ConstraintsFrom(cfg config.CameraConfig) Constraints {
	return Constraints{
		FacingMode: cfg.FacingMode,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FPS:        cfg.FPS,
	}
}

// Interval returns the frame period, 30fps when unset.
func (c Constraints) Interval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FPS)
}

// Frame is one captured image. Image must not be modified by consumers.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	Seq       uint64
}

// Source is an open camera track.
type Source interface {
	// ReadFrame blocks until the next frame is captured.
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Device opens camera tracks. Open errors are reported to callers as
// permission errors.
type Device interface {
	Open(ctx context.Context, c Constraints) (Source, error)
}
