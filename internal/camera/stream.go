package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markercast/engine/internal/channel"
	"github.com/markercast/engine/pkg/core"
)

// frameBuffer is small so consumers always see recent frames.
const frameBuffer = 2

// Stream pumps frames from a Source until stopped.
type Stream struct {
	owner  string
	src    Source
	frames channel.Channel[Frame]
	log    *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	onStop   func()

	latest  atomic.Pointer[Frame]
	dropped atomic.Int64
	stopped atomic.Bool
}

func newStream(owner string, src Source, log *slog.Logger, onStop func()) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		owner:  owner,
		src:    src,
		frames: channel.New[Frame](frameBuffer),
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
		onStop: onStop,
	}
	go s.pump(ctx)
	return s
}

func (s *Stream) pump(ctx context.Context) {
	defer close(s.done)

	var seq uint64
	for {
		img, err := s.src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, core.ErrStreamClosed) {
				s.log.Warn("camera read failed", "owner", s.owner, "error", err)
			}
			return
		}
		seq++
		f := Frame{Image: img, Timestamp: time.Now(), Seq: seq}
		s.latest.Store(&f)
		if !s.frames.TrySend(f) {
			s.dropped.Add(1)
		}
	}
}

// Owner names the component holding the stream.
func (s *Stream) Owner() string { return s.owner }

// Frames delivers captured frames. Frames are dropped while the consumer lags.
// The channel is closed by Stop.
func (s *Stream) Frames() <-chan Frame { return s.frames.Receive() }

// Latest returns the most recent frame.
func (s *Stream) Latest() (Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Dropped returns how many frames were skipped because no one was reading.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Stopped reports whether Stop has run.
func (s *Stream) Stopped() bool { return s.stopped.Load() }

// Stop ends the track and returns after the pump has exited. Safe to call
// more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if err := s.src.Close(); err != nil {
			s.log.Warn("failed to close camera source", "owner", s.owner, "error", err)
		}
		<-s.done
		s.frames.Close()
		s.stopped.Store(true)
		if s.onStop != nil {
			s.onStop()
		}
	})
}
