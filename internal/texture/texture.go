// Package texture owns the displayable images bound to scene planes. A Slot
// follows one changing source URI: it loads asynchronously, reports not ready
// until the image arrives, and releases the previous handle when the URI
// changes.
package texture

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/markercast/engine/internal/texture"

// Observer is told about every finished load.
type Observer func(slot, uri string, ok bool, took time.Duration)

// Manager counts live handles across all slots.
type Manager struct {
	log    *slog.Logger
	nextID atomic.Uint64
	live   atomic.Int64

	handles metric.Int64UpDownCounter
	failed  metric.Int64Counter

	mu       sync.RWMutex
	observer Observer
}

// NewManager creates a texture manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := otel.Meter(instrumentationName)
	handles, _ := m.Int64UpDownCounter("texture.handles.live",
		metric.WithDescription("Texture handles not yet released"))
	failed, _ := m.Int64Counter("texture.load.failed",
		metric.WithDescription("Texture loads that failed"))
	return &Manager{log: log, handles: handles, failed: failed}
}

// SetObserver installs fn as the load observer.
func (m *Manager) SetObserver(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

func (m *Manager) observe(slot, uri string, ok bool, took time.Duration) {
	m.mu.RLock()
	fn := m.observer
	m.mu.RUnlock()
	if fn != nil {
		fn(slot, uri, ok, took)
	}
}

// Live returns the number of handles not yet released.
func (m *Manager) Live() int {
	return int(m.live.Load())
}

// Wrap creates a handle around an already decoded image.
func (m *Manager) Wrap(uri string, img image.Image) *Handle {
	return m.newHandle(uri, img)
}

func (m *Manager) newHandle(uri string, img image.Image) *Handle {
	m.live.Add(1)
	m.handles.Add(context.Background(), 1)
	return &Handle{id: m.nextID.Add(1), uri: uri, img: img, version: 1, mgr: m}
}

// Handle is one displayable image. Its owner must Release it.
type Handle struct {
	id  uint64
	uri string
	mgr *Manager

	mu       sync.RWMutex
	img      image.Image
	version  uint64
	released bool
}

func (h *Handle) ID() uint64  { return h.id }
func (h *Handle) URI() string { return h.uri }

// Image returns the current contents, nil after release.
func (h *Handle) Image() image.Image {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.img
}

// Size returns the pixel size of the current contents.
func (h *Handle) Size() (int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.img == nil {
		return 0, 0
	}
	b := h.img.Bounds()
	return b.Dx(), b.Dy()
}

// Version increases every time the contents change.
func (h *Handle) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}

func (h *Handle) update(img image.Image) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.img = img
	h.version++
	return true
}

// Release frees the handle. Only the first call has an effect.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.img = nil
	h.mu.Unlock()

	h.mgr.live.Add(-1)
	h.mgr.handles.Add(context.Background(), -1)
}
