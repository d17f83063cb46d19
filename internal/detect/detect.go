// Package detect decides once per frame whether the marker is in view and
// reports found/lost edges.
//
// The test is a heuristic on the camera pose, not image matching: the marker
// counts as visible when the camera is closer than MaxDistance to the marker
// and its roll stays within MaxRoll.
package detect

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/pkg/core"
)

const instrumentationName = "github.com/markercast/engine/internal/detect"

// Defaults used when a config value is zero.
const (
	DefaultMaxDistance = 5.0
	DefaultMaxRoll     = math.Pi / 4
)

// Config holds the visibility thresholds.
type Config struct {
	MaxDistance float64
	MaxRoll     float64
}

// ConfigFrom converts the detection config, filling zero values with defaults.
func ConfigFrom(c config.DetectionConfig) Config {
	cfg := Config{MaxDistance: c.MaxDistance, MaxRoll: c.MaxRoll}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	if cfg.MaxRoll <= 0 {
		cfg.MaxRoll = DefaultMaxRoll
	}
	return cfg
}

// Event is the outcome of one Update.
type Event int

const (
	None Event = iota
	Found
	Lost
)

func (e Event) String() string {
	switch e {
	case Found:
		return "found"
	case Lost:
		return "lost"
	}
	return "none"
}

// State mirrors the detector flags.
type State struct {
	IsLoaded  bool
	IsVisible bool
}

// Detector tracks marker visibility for one marker. Not safe for concurrent
// use; the frame loop owns it.
type Detector struct {
	cfg    Config
	marker core.Vec3
	log    *slog.Logger

	loaded  bool
	visible bool

	transitions metric.Int64Counter
}

// New creates a detector for a marker at the origin. It stays disabled until
// SetLoaded(true).
func New(cfg Config, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	transitions, _ := otel.Meter(instrumentationName).Int64Counter("detect.transitions",
		metric.WithDescription("Marker found and lost edges"))
	return &Detector{cfg: cfg, log: log, transitions: transitions}
}

// SetMarker moves the marker plane.
func (d *Detector) SetMarker(p core.Vec3) { d.marker = p }

// SetLoaded enables or disables detection. Disabling clears visibility
// without emitting an event and reports whether the marker was visible.
func (d *Detector) SetLoaded(loaded bool) (wasVisible bool) {
	wasVisible = d.visible
	d.loaded = loaded
	if !loaded {
		d.visible = false
	}
	return wasVisible
}

// InView applies the visibility heuristic to pose.
func (d *Detector) InView(pose core.Pose) bool {
	dist := pose.Position.DistanceTo(d.marker)
	return dist < d.cfg.MaxDistance && math.Abs(pose.Rotation.Z) < d.cfg.MaxRoll
}

// Update evaluates pose and returns Found or Lost on a change of visibility.
// Nothing is emitted while the marker texture is not loaded.
func (d *Detector) Update(pose core.Pose) Event {
	if !d.loaded {
		return None
	}
	visible := d.InView(pose)
	if visible == d.visible {
		return None
	}
	d.visible = visible

	ev := Lost
	if visible {
		ev = Found
	}
	d.transitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", ev.String())))
	d.log.Debug("marker "+ev.String(), "component", "detect", "distance", pose.Position.DistanceTo(d.marker))
	return ev
}

// State returns the current flags.
func (d *Detector) State() State {
	return State{IsLoaded: d.loaded, IsVisible: d.visible}
}
