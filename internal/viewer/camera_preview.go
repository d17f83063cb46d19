package viewer

import (
	"context"
	"sync"

	"github.com/markercast/engine/internal/camera"
)

// CameraOwnerPreview names the camera preview when it holds the camera.
const CameraOwnerPreview = "camera-preview"

// CameraPreview shows the live camera. It loses the camera whenever another
// component acquires it.
type CameraPreview struct {
	arbiter *camera.Arbiter

	mu     sync.Mutex
	stream *camera.Stream
}

// NewCameraPreview creates an idle preview.
func NewCameraPreview(arbiter *camera.Arbiter) *CameraPreview {
	return &CameraPreview{arbiter: arbiter}
}

// Start acquires the camera.
func (c *CameraPreview) Start(ctx context.Context) error {
	stream, err := c.arbiter.Acquire(ctx, CameraOwnerPreview)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	return nil
}

// Active reports whether the preview still holds a live stream.
func (c *CameraPreview) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil && !c.stream.Stopped()
}

// Frame returns the latest camera frame while active.
func (c *CameraPreview) Frame() (camera.Frame, bool) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil || stream.Stopped() {
		return camera.Frame{}, false
	}
	return stream.Latest()
}

// Stop releases the camera.
func (c *CameraPreview) Stop() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	c.arbiter.Release(stream)
}
