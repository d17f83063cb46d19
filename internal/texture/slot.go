package texture

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/markercast/engine/pkg/core"
)

// Loader fetches and decodes the image at uri.
type Loader func(ctx context.Context, uri string) (image.Image, error)

// Slot is an image texture bound to a source URI.
type Slot struct {
	name string
	mgr  *Manager
	load Loader
	post func(func())

	mu      sync.Mutex
	uri     string
	gen     uint64
	loading bool
	handle  *Handle
	err     error
	cancel  context.CancelFunc
	onLoad  []func(*Handle)
}

// NewSlot creates an empty slot. post schedules load completions on the
// owner's loop; nil applies them on the loading goroutine.
func (m *Manager) NewSlot(name string, load Loader, post func(func())) *Slot {
	return &Slot{name: name, mgr: m, load: load, post: post}
}

// OnLoad registers fn to run each time a handle becomes ready.
func (s *Slot) OnLoad(fn func(*Handle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = append(s.onLoad, fn)
}

// Set points the slot at uri. The previous handle is released immediately
// and any load still in flight is discarded when it completes.
func (s *Slot) Set(ctx context.Context, uri string) {
	s.mu.Lock()
	if uri == s.uri && (s.loading || s.handle != nil) {
		s.mu.Unlock()
		return
	}
	s.releaseLocked()
	s.gen++
	gen := s.gen
	s.uri = uri
	s.err = nil
	if uri == "" {
		s.mu.Unlock()
		return
	}
	s.loading = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		start := time.Now()
		img, err := s.load(ctx, uri)
		took := time.Since(start)
		s.schedule(func() { s.finish(gen, uri, img, err, took) })
	}()
}

func (s *Slot) schedule(fn func()) {
	if s.post != nil {
		s.post(fn)
		return
	}
	fn()
}

func (s *Slot) finish(gen uint64, uri string, img image.Image, err error, took time.Duration) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.loading = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err != nil {
		s.err = &core.ResourceLoadError{URI: uri, Err: err}
		s.mu.Unlock()
		s.mgr.failed.Add(context.Background(), 1)
		s.mgr.log.Error("texture load failed", "component", "texture", "slot", s.name, "error", s.err)
		s.mgr.observe(s.name, uri, false, took)
		return
	}
	h := s.mgr.newHandle(uri, img)
	s.handle = h
	callbacks := append([]func(*Handle){}, s.onLoad...)
	s.mu.Unlock()

	s.mgr.observe(s.name, uri, true, took)
	for _, fn := range callbacks {
		fn(h)
	}
}

// Get returns the ready handle, core.ErrNotReady while loading or empty, or
// the *core.ResourceLoadError of a failed load.
func (s *Slot) Get() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.handle == nil {
		return nil, core.ErrNotReady
	}
	return s.handle, nil
}

// Loaded reports whether a handle is ready.
func (s *Slot) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Loading reports whether a load is in flight.
func (s *Slot) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// URI returns the source the slot is bound to.
func (s *Slot) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uri
}

// Release frees the handle and abandons a pending load.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.gen++
	s.uri = ""
	s.err = nil
}

func (s *Slot) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
}
