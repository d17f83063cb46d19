package camera

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/markercast/engine/pkg/core"
)

const instrumentationName = "github.com/markercast/engine/internal/camera"

// Arbiter grants exclusive use of a device. Acquiring for a new owner stops
// the stream of the previous owner first.
type Arbiter struct {
	dev         Device
	constraints Constraints
	log         *slog.Logger

	mu      sync.Mutex
	current *Stream

	live    atomic.Int64
	tracks  metric.Int64UpDownCounter
	denials metric.Int64Counter
}

// NewArbiter creates an arbiter for dev.
func NewArbiter(dev Device, c Constraints, log *slog.Logger) *Arbiter {
	if log == nil {
		log = slog.Default()
	}
	m := otel.Meter(instrumentationName)
	tracks, _ := m.Int64UpDownCounter("camera.tracks.live",
		metric.WithDescription("Open camera tracks"))
	denials, _ := m.Int64Counter("camera.open.failed",
		metric.WithDescription("Camera open attempts that failed"))

	return &Arbiter{
		dev:         dev,
		constraints: c,
		log:         log,
		tracks:      tracks,
		denials:     denials,
	}
}

// Acquire opens the camera for owner. Errors opening the device are returned
// as *core.PermissionError.
func (a *Arbiter) Acquire(ctx context.Context, owner string) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		a.log.Debug("releasing camera", "from", a.current.Owner(), "to", owner)
		a.current.Stop()
		a.current = nil
	}

	src, err := a.dev.Open(ctx, a.constraints)
	if err != nil {
		a.denials.Add(ctx, 1)
		perr := &core.PermissionError{Err: err}
		a.log.Error("camera open failed", "owner", owner, "error", perr)
		return nil, perr
	}

	a.live.Add(1)
	a.tracks.Add(ctx, 1)

	s := newStream(owner, src, a.log, func() {
		a.live.Add(-1)
		a.tracks.Add(context.Background(), -1)
	})
	a.current = s
	return s, nil
}

// Release stops s when it is the current stream. Stopping a stale stream is
// still safe.
func (a *Arbiter) Release(s *Stream) {
	if s == nil {
		return
	}
	a.mu.Lock()
	if a.current == s {
		a.current = nil
	}
	a.mu.Unlock()
	s.Stop()
}

// Current returns the live stream, if any.
func (a *Arbiter) Current() *Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Live returns the number of open tracks.
func (a *Arbiter) Live() int {
	return int(a.live.Load())
}
