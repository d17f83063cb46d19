// Package overlay holds the state machine deciding whether the overlay video
// is shown. Three independent triggers are OR-combined: marker detection, a
// confirmed QR scan and the manual toggle. The controller only enters SHOWING
// when the video starts.
package overlay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/markercast/engine/pkg/core"
)

// State is the overlay visibility.
type State int

const (
	Hidden State = iota
	Showing
)

func (s State) String() string {
	if s == Showing {
		return "SHOWING"
	}
	return "HIDDEN"
}

// Trigger identifies one input flag.
type Trigger int

const (
	MarkerDetected Trigger = iota
	QRScanned
	ManualOverlay
	numTriggers
)

func (t Trigger) String() string {
	switch t {
	case MarkerDetected:
		return "markerDetected"
	case QRScanned:
		return "qrScanned"
	case ManualOverlay:
		return "manualOverlayOn"
	}
	return fmt.Sprintf("Trigger(%d)", int(t))
}

// Triggers lists every trigger in order.
func Triggers() []Trigger {
	return []Trigger{MarkerDetected, QRScanned, ManualOverlay}
}

// Playback is the video the controller drives. *video.Player implements it.
type Playback interface {
	Seek(t time.Duration)
	Play() error
	Pause()
}

// Transition describes a state change.
type Transition struct {
	From, To State
	Cause    Trigger
	At       time.Time
}

// Controller recomputes the state on every flag change.
type Controller struct {
	log *slog.Logger

	mu       sync.Mutex
	flags    [numTriggers]bool
	state    State
	playback Playback
	lastErr  error
	onChange []func(Transition)
}

// New creates a hidden controller. pb may be nil for campaigns without video.
func New(pb Playback, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{playback: pb, log: log}
}

// SetPlayback swaps the driven video. The controller returns to HIDDEN with
// all flags cleared.
func (c *Controller) SetPlayback(pb Playback) {
	c.Reset()
	c.mu.Lock()
	c.playback = pb
	c.lastErr = nil
	c.mu.Unlock()
}

// OnTransition registers fn for every state change.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Set changes one trigger flag and returns the resulting state.
func (c *Controller) Set(t Trigger, on bool) State {
	if t < 0 || t >= numTriggers {
		return c.State()
	}
	c.mu.Lock()
	c.flags[t] = on
	tr, changed := c.recomputeLocked(t)
	callbacks := c.onChange
	state := c.state
	c.mu.Unlock()

	if changed {
		for _, fn := range callbacks {
			fn(tr)
		}
	}
	return state
}

// Toggle flips the manual trigger.
func (c *Controller) Toggle() State {
	return c.Set(ManualOverlay, !c.Flag(ManualOverlay))
}

// VideoEnded handles the natural end of playback: the marker sustain flag is
// cleared so the overlay hides unless another trigger holds it.
func (c *Controller) VideoEnded() State {
	return c.Set(MarkerDetected, false)
}

// Reset clears every flag.
func (c *Controller) Reset() State {
	c.mu.Lock()
	c.flags = [numTriggers]bool{}
	tr, changed := c.recomputeLocked(MarkerDetected)
	callbacks := c.onChange
	state := c.state
	c.mu.Unlock()

	if changed {
		for _, fn := range callbacks {
			fn(tr)
		}
	}
	return state
}

// recomputeLocked moves to the OR of the flags. A failed play keeps the
// controller HIDDEN with the flags untouched, so the next flag change retries.
func (c *Controller) recomputeLocked(cause Trigger) (Transition, bool) {
	next := Hidden
	for _, f := range c.flags {
		if f {
			next = Showing
			break
		}
	}
	if next == c.state {
		return Transition{}, false
	}

	if c.playback != nil {
		if next == Showing {
			c.playback.Seek(0)
			if err := c.playback.Play(); err != nil {
				c.lastErr = asPlaybackError(err)
				c.log.Error("video playback failed", "component", "overlay", "cause", cause.String(), "error", c.lastErr)
				return Transition{}, false
			}
			c.lastErr = nil
		} else {
			c.playback.Pause()
		}
	}

	tr := Transition{From: c.state, To: next, Cause: cause, At: time.Now()}
	c.state = next
	return tr, true
}

func asPlaybackError(err error) error {
	if _, ok := err.(*core.PlaybackError); ok {
		return err
	}
	return &core.PlaybackError{Err: err}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Visible reports whether the state is SHOWING.
func (c *Controller) Visible() bool {
	return c.State() == Showing
}

// Flag returns one trigger flag.
func (c *Controller) Flag(t Trigger) bool {
	if t < 0 || t >= numTriggers {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[t]
}

// LastError returns the error of the most recent failed play, nil once a
// later play succeeds.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
