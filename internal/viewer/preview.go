package viewer

import (
	"context"
	"time"

	"github.com/markercast/engine/internal/overlay"
	"github.com/markercast/engine/internal/qr"
	"github.com/markercast/engine/internal/scene"
	"github.com/markercast/engine/pkg/core"
)

// Preview simulates a campaign without a camera: the marker is shown and a
// manual toggle plays the video over it. The natural end of the video turns
// the toggle off.
type Preview struct {
	*Scene
}

// NewPreview creates a preview for c.
func NewPreview(ctx context.Context, c *core.Campaign, opts Options) (*Preview, error) {
	opts.Arbiter = nil
	s, err := NewScene(opts)
	if err != nil {
		return nil, err
	}
	s.clearManualOnEnd = true
	if err := s.Load(ctx, c); err != nil {
		s.Unmount()
		return nil, err
	}
	return &Preview{Scene: s}, nil
}

// Toggle flips the video overlay and reports whether it is now shown.
func (p *Preview) Toggle() bool {
	p.ToggleManual()
	return p.ShowingVideo()
}

// ShowingVideo reports whether the manual toggle is on.
func (p *Preview) ShowingVideo() bool {
	return p.Overlay().Flag(overlay.ManualOverlay)
}

// ButtonLabel is the caption of the toggle.
func (p *Preview) ButtonLabel() string {
	if p.ShowingVideo() {
		return "Hide Video Overlay"
	}
	return "Show Video Overlay"
}

// Payload is the campaign's shareable QR payload.
func (p *Preview) Payload() (string, error) {
	c := p.Campaign()
	if c == nil {
		return "", core.ErrNoActiveCampaign
	}
	return qr.Encode(c)
}

// Step advances the preview with the camera at its resting pose.
func (p *Preview) Step(dt time.Duration) scene.Frame {
	return p.Tick(core.DefaultCameraPose(), dt)
}
