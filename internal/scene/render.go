package scene

import (
	"image"
	"math"

	"github.com/gogpu/gg"
)

// Renderer draws frames onto a gg context. It caches converted image
// buffers per texture handle and version.
type Renderer struct {
	Background gg.RGBA
	cache      map[uint64]cachedBuf
}

type cachedBuf struct {
	version uint64
	buf     *gg.ImageBuf
}

// NewRenderer creates a renderer clearing to black.
func NewRenderer() *Renderer {
	return &Renderer{
		Background: gg.RGBA2(0, 0, 0, 1),
		cache:      make(map[uint64]cachedBuf),
	}
}

// Render draws f. camera is the live camera frame drawn full size behind the
// planes, nil for none.
func (r *Renderer) Render(dc *gg.Context, f Frame, camera image.Image) {
	dc.ClearWithColor(r.Background)

	if camera != nil {
		dc.DrawImageEx(gg.ImageBufFromImage(camera), gg.DrawImageOptions{
			DstWidth:  float64(dc.Width()),
			DstHeight: float64(dc.Height()),
			Opacity:   1,
		})
	}

	used := make(map[uint64]bool, len(f.Planes))
	for _, p := range f.Planes {
		if p.Texture == nil || p.Texture.Released() {
			continue
		}
		buf := r.buffer(p)
		if buf == nil {
			continue
		}
		used[p.Texture.ID()] = true

		x, y, w, h, ok := project(f, p, dc.Width(), dc.Height())
		if !ok {
			continue
		}
		dc.DrawImageEx(buf, gg.DrawImageOptions{
			X:             x,
			Y:             y,
			DstWidth:      w,
			DstHeight:     h,
			Interpolation: gg.InterpBilinear,
			Opacity:       p.Opacity,
			BlendMode:     gg.BlendNormal,
		})
	}

	for id := range r.cache {
		if !used[id] {
			delete(r.cache, id)
		}
	}
}

// Cached returns the number of buffered textures.
func (r *Renderer) Cached() int { return len(r.cache) }

// Reset drops every cached buffer.
func (r *Renderer) Reset() { clear(r.cache) }

func (r *Renderer) buffer(p Plane) *gg.ImageBuf {
	id, version := p.Texture.ID(), p.Texture.Version()
	if c, ok := r.cache[id]; ok && c.version == version {
		return c.buf
	}
	img := p.Texture.Image()
	if img == nil {
		return nil
	}
	buf := gg.ImageBufFromImage(img)
	r.cache[id] = cachedBuf{version: version, buf: buf}
	return buf
}

// project maps a plane to a pixel rectangle for a camera looking down -Z.
func project(f Frame, p Plane, width, height int) (x, y, w, h float64, ok bool) {
	depth := f.Camera.Pose.Position.Z - p.Position.Z
	if depth <= 0 {
		return 0, 0, 0, 0, false
	}
	visibleH := 2 * math.Tan(f.Camera.FOV*math.Pi/360) * depth
	ppu := float64(height) / visibleH

	cx := float64(width)/2 + (p.Position.X-f.Camera.Pose.Position.X)*ppu
	cy := float64(height)/2 - (p.Position.Y-f.Camera.Pose.Position.Y)*ppu
	w = p.Width * ppu
	h = p.Height * ppu
	return cx - w/2, cy - h/2, w, h, true
}
