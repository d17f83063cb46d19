package texture

import (
	"sync"

	"github.com/markercast/engine/internal/video"
	"github.com/markercast/engine/pkg/core"
)

// VideoSlot is a texture fed by a Player. The handle exists while the player
// has a ready source; its contents are refreshed only while visible.
type VideoSlot struct {
	mgr    *Manager
	player *video.Player

	mu     sync.Mutex
	handle *Handle
	uri    string
}

// NewVideoSlot binds a texture to p.
func (m *Manager) NewVideoSlot(p *video.Player) *VideoSlot {
	return &VideoSlot{mgr: m, player: p}
}

// Update syncs the handle with the player and, when visible, copies the
// current frame into it. It reports whether the contents changed.
func (v *VideoSlot) Update(visible bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	uri := v.player.URI()
	if v.handle != nil && (uri != v.uri || !v.player.Ready()) {
		v.handle.Release()
		v.handle = nil
	}
	if !v.player.Ready() {
		return false
	}

	if v.handle == nil {
		frame, err := v.player.Frame()
		if err != nil {
			v.mgr.log.Warn("video frame unavailable", "component", "texture", "uri", uri, "error", err)
			return false
		}
		v.handle = v.mgr.newHandle(uri, frame)
		v.uri = uri
		return true
	}
	if !visible {
		return false
	}
	frame, err := v.player.Frame()
	if err != nil {
		v.mgr.log.Warn("video frame unavailable", "component", "texture", "uri", uri, "error", err)
		return false
	}
	return v.handle.update(frame)
}

// Get returns the handle, or core.ErrNotReady before the first frame.
func (v *VideoSlot) Get() (*Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handle == nil {
		return nil, core.ErrNotReady
	}
	return v.handle, nil
}

// Release frees the handle. The player is not closed.
func (v *VideoSlot) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handle != nil {
		v.handle.Release()
		v.handle = nil
	}
	v.uri = ""
}
