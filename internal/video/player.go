package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/markercast/engine/pkg/core"
)

// DefaultWidth and DefaultHeight are reported by Size before metadata is known.
const (
	DefaultWidth  = 16
	DefaultHeight = 9
)

// State is the load state of a Player.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var errClosed = errors.New("player closed")

// Options configures a Player.
type Options struct {
	Open Opener
	// Post schedules a load completion on the owner's loop. Nil runs it on the
	// loading goroutine.
	Post  func(func())
	Log   *slog.Logger
	Muted bool
	Loop  bool
}

// Player drives one video source. Time only advances through Advance, which
// the frame loop calls once per tick.
type Player struct {
	opts Options

	mu      sync.Mutex
	state   State
	uri     string
	gen     uint64
	dec     Decoder
	loadErr error
	playing bool
	pos     time.Duration
	ended   []func()
	ready   []func()
	cancel  context.CancelFunc
}

// NewPlayer creates an empty player.
func NewPlayer(opts Options) *Player {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Player{opts: opts}
}

// Load starts loading uri in the background. Loading the current source again
// is a no-op. The previous decoder is released before the new load starts.
func (p *Player) Load(ctx context.Context, uri string) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	if uri == p.uri && (p.state == StateLoading || p.state == StateReady) {
		p.mu.Unlock()
		return
	}

	p.releaseLocked()
	p.gen++
	gen := p.gen
	p.uri = uri
	p.pos = 0
	p.loadErr = nil
	if uri == "" {
		p.state = StateEmpty
		p.mu.Unlock()
		return
	}
	p.state = StateLoading
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		dec, err := p.opts.Open(ctx, uri)
		p.post(func() { p.finishLoad(gen, dec, err) })
	}()
}

func (p *Player) post(fn func()) {
	if p.opts.Post != nil {
		p.opts.Post(fn)
		return
	}
	fn()
}

func (p *Player) finishLoad(gen uint64, dec Decoder, err error) {
	p.mu.Lock()
	if gen != p.gen || p.state != StateLoading {
		p.mu.Unlock()
		if dec != nil {
			dec.Close()
		}
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if err != nil {
		p.state = StateFailed
		p.loadErr = &core.ResourceLoadError{URI: p.uri, Err: err}
		uri := p.uri
		p.playing = false
		p.mu.Unlock()
		p.opts.Log.Error("video load failed", "component", "video", "uri", uri, "error", err)
		return
	}
	p.dec = dec
	p.state = StateReady
	callbacks := append([]func(){}, p.ready...)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// OnReady registers fn to run whenever a source becomes playable.
func (p *Player) OnReady(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = append(p.ready, fn)
}

// OnEnded registers fn to run when a non-looping source reaches its end.
func (p *Player) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, fn)
}

// Play starts playback. A source still loading starts once ready.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return &core.PlaybackError{URI: p.uri, Err: errClosed}
	case StateEmpty:
		return &core.PlaybackError{Err: errors.New("no source")}
	case StateFailed:
		return &core.PlaybackError{URI: p.uri, Err: p.loadErr}
	}
	if p.state == StateReady && !p.opts.Loop && p.pos >= p.dec.Duration() {
		p.pos = 0
	}
	p.playing = true
	return nil
}

// Pause stops playback and keeps the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// Seek moves the playhead, clamped to the source duration once known.
func (p *Player) Seek(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if p.state == StateReady && t > p.dec.Duration() {
		t = p.dec.Duration()
	}
	p.pos = t
}

// CurrentTime returns the playhead position.
func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Playing reports whether playback was requested and not ended or paused.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Ready reports whether the current source can render frames.
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateReady
}

// State returns the load state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// URI returns the current source.
func (p *Player) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

// Muted reports whether audio is muted. Audio is never decoded.
func (p *Player) Muted() bool { return p.opts.Muted }

// Advance moves time forward by dt while playing. Reaching the end of a
// non-looping source stops playback and fires the ended callbacks.
func (p *Player) Advance(dt time.Duration) {
	p.mu.Lock()
	if p.state != StateReady || !p.playing || dt <= 0 {
		p.mu.Unlock()
		return
	}
	length := p.dec.Duration()
	p.pos += dt
	if p.pos < length {
		p.mu.Unlock()
		return
	}
	if p.opts.Loop && length > 0 {
		p.pos %= length
		p.mu.Unlock()
		return
	}
	p.pos = length
	p.playing = false
	callbacks := append([]func(){}, p.ended...)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Frame returns the frame at the playhead.
func (p *Player) Frame() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReady {
		return nil, core.ErrNotReady
	}
	return p.dec.FrameAt(p.pos)
}

// Size returns the intrinsic size, or 16x9 until the source is ready.
func (p *Player) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateReady {
		if w, h := p.dec.Size(); w > 0 && h > 0 {
			return w, h
		}
	}
	return DefaultWidth, DefaultHeight
}

// Close stops playback and releases the decoder. Pending loads are discarded.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.gen++
	p.state = StateClosed
}

func (p *Player) releaseLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.dec != nil {
		if err := p.dec.Close(); err != nil {
			p.opts.Log.Warn("failed to close decoder", "component", "video", "uri", p.uri, "error", err)
		}
		p.dec = nil
	}
	p.playing = false
}
