package camera

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/markercast/engine/pkg/core"
)

// StillDevice serves a fixed image as a camera. It backs headless previews
// and scanning of image files.
type StillDevice struct {
	Image image.Image
	// Deny makes Open fail, standing in for a refused permission prompt.
	Deny error
}

// Open starts a track producing Image at the requested rate.
func (d *StillDevice) Open(ctx context.Context, c Constraints) (Source, error) {
	if d.Deny != nil {
		return nil, d.Deny
	}
	if d.Image == nil {
		return nil, errors.New("no image")
	}
	return &stillSource{img: d.Image, interval: c.Interval(), closed: make(chan struct{})}, nil
}

type stillSource struct {
	img      image.Image
	interval time.Duration
	once     sync.Once
	closed   chan struct{}
}

func (s *stillSource) ReadFrame(ctx context.Context) (image.Image, error) {
	t := time.NewTimer(s.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, core.ErrStreamClosed
	case <-t.C:
		return s.img, nil
	}
}

func (s *stillSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
