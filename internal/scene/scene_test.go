package scene

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gg"
	"github.com/markercast/engine/internal/texture"
	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func baseInput(m *texture.Manager) Input {
	return Input{
		Pose:          core.DefaultCameraPose(),
		Viewport:      core.ViewportAt(DefaultFOV, 5, 160, 90),
		Policy:        Exclusive,
		MarkerOpacity: 0.5,
		Marker:        m.Wrap("m.png", solid(4, 4, color.White)),
		Video:         m.Wrap("v.mp4", solid(16, 9, color.Black)),
		VideoWidth:    16,
		VideoHeight:   9,
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Exclusive, p)

	p, err = ParsePolicy("simultaneous")
	require.NoError(t, err)
	assert.Equal(t, Simultaneous, p)

	_, err = ParsePolicy("both")
	assert.Error(t, err)
}

func TestPlaneSize(t *testing.T) {
	vp := core.Viewport{Width: 16, Height: 9}

	w, h := PlaneSize(vp, 16.0/9)
	assert.InDelta(t, 16, w, 1e-9)
	assert.InDelta(t, 9, h, 1e-9)

	// square image covers the wider side
	w, h = PlaneSize(vp, 1)
	assert.InDelta(t, 16, w, 1e-9)
	assert.InDelta(t, 16, h, 1e-9)

	// tall viewport
	w, h = PlaneSize(core.Viewport{Width: 9, Height: 16}, 16.0/9)
	assert.InDelta(t, 16*16.0/9, w, 1e-9)
	assert.InDelta(t, 16, h, 1e-9)

	w, h = PlaneSize(vp, 0)
	assert.Equal(t, w, h)
}

func TestCompose_Exclusive(t *testing.T) {
	m := texture.NewManager(nil)
	in := baseInput(m)

	f := Compose(in)
	assert.True(t, f.Visible(MarkerPlane))
	assert.False(t, f.Visible(VideoPlane))
	p, _ := f.Plane(MarkerPlane)
	assert.Equal(t, 1.0, p.Opacity)
	assert.Equal(t, MarkerDepth, p.Position.Z)

	in.Showing = true
	f = Compose(in)
	assert.False(t, f.Visible(MarkerPlane))
	require.True(t, f.Visible(VideoPlane))
	v, _ := f.Plane(VideoPlane)
	assert.Equal(t, VideoDepth, v.Position.Z)
	assert.InDelta(t, v.Width/v.Height, 16.0/9, 1e-9)
}

func TestCompose_Simultaneous(t *testing.T) {
	m := texture.NewManager(nil)
	in := baseInput(m)
	in.Policy = Simultaneous
	in.Showing = true

	f := Compose(in)
	require.Len(t, f.Planes, 2)
	assert.Equal(t, VideoPlane, f.Planes[0].Kind, "video is behind the marker")
	assert.Equal(t, 0.5, f.Planes[1].Opacity)

	in.MarkerOpacity = 0
	f = Compose(in)
	p, _ := f.Plane(MarkerPlane)
	assert.Equal(t, DefaultMarkerOpacity, p.Opacity)
}

func TestCompose_NothingUntilReady(t *testing.T) {
	m := texture.NewManager(nil)
	in := baseInput(m)
	in.Marker = nil
	in.Video = nil

	assert.Empty(t, Compose(in).Planes)
	in.Showing = true
	assert.Empty(t, Compose(in).Planes)
}

func TestCompose_DefaultVideoSize(t *testing.T) {
	m := texture.NewManager(nil)
	in := baseInput(m)
	in.Showing = true
	in.VideoWidth, in.VideoHeight = 0, 0

	v, ok := Compose(in).Plane(VideoPlane)
	require.True(t, ok)
	assert.InDelta(t, 16.0/9, v.Width/v.Height, 1e-9)
}

func TestCompose_Lights(t *testing.T) {
	f := Compose(Input{})
	require.Len(t, f.Lights, 2)
	assert.Equal(t, AmbientIntensity, f.Lights[0].Intensity)
	assert.Equal(t, PointLightPosition, f.Lights[1].Position)
	assert.Equal(t, DefaultFOV, f.Camera.FOV)
}

func TestRenderer_DrawsVisiblePlane(t *testing.T) {
	m := texture.NewManager(nil)
	in := baseInput(m)
	in.Marker = m.Wrap("m.png", solid(4, 4, color.RGBA{255, 0, 0, 255}))

	dc := gg.NewContext(160, 90)
	defer dc.Close()

	r := NewRenderer()
	r.Render(dc, Compose(in), nil)
	assert.Equal(t, 1, r.Cached())

	c := color.RGBAModel.Convert(dc.Image().At(80, 45)).(color.RGBA)
	assert.Greater(t, c.R, uint8(200))
	assert.Less(t, c.G, uint8(50))

	in.Showing = true
	r.Render(dc, Compose(in), nil)
	c = color.RGBAModel.Convert(dc.Image().At(80, 45)).(color.RGBA)
	assert.Less(t, c.R, uint8(50))
	assert.Equal(t, 1, r.Cached())
}

func TestRenderer_SkipsReleased(t *testing.T) {
	m := texture.NewManager(nil)
	in := baseInput(m)
	in.Marker.Release()

	dc := gg.NewContext(32, 18)
	defer dc.Close()

	r := NewRenderer()
	r.Render(dc, Compose(in), nil)
	assert.Equal(t, 0, r.Cached())
}

func TestProject_BehindCamera(t *testing.T) {
	f := Frame{Camera: Camera{Pose: core.Pose{Position: core.Vec3{Z: -1}}, FOV: DefaultFOV}}
	_, _, _, _, ok := project(f, Plane{}, 10, 10)
	assert.False(t, ok)
}
