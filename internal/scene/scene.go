// Package scene turns viewer state into a render description. Compose is a
// pure function; Renderer rasterizes its output.
package scene

import (
	"fmt"

	"github.com/markercast/engine/internal/texture"
	"github.com/markercast/engine/pkg/core"
)

// Policy selects how the marker and video planes combine while SHOWING.
type Policy int

const (
	// Exclusive shows the video plane alone while SHOWING and the marker
	// plane alone otherwise.
	Exclusive Policy = iota
	// Simultaneous keeps the marker at reduced opacity under the video.
	Simultaneous
)

func (p Policy) String() string {
	if p == Simultaneous {
		return "simultaneous"
	}
	return "exclusive"
}

// ParsePolicy reads a policy name. Empty means Exclusive.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "exclusive":
		return Exclusive, nil
	case "simultaneous":
		return Simultaneous, nil
	}
	return Exclusive, fmt.Errorf("unknown viewer policy %q", s)
}

// Scene constants.
const (
	DefaultFOV           = 75.0
	DefaultMarkerOpacity = 0.5
	AmbientIntensity     = 0.5
	PointIntensity       = 1.0
	MarkerDepth          = 0.0
	VideoDepth           = -0.1
)

// PointLightPosition is where the scene's point light sits.
var PointLightPosition = core.Vec3{X: 10, Y: 10, Z: 10}

// PlaneKind identifies a plane.
type PlaneKind int

const (
	MarkerPlane PlaneKind = iota
	VideoPlane
)

func (k PlaneKind) String() string {
	if k == VideoPlane {
		return "video"
	}
	return "marker"
}

// Plane is a textured quad facing the camera.
type Plane struct {
	Kind     PlaneKind
	Position core.Vec3
	Width    float64
	Height   float64
	Opacity  float64
	Texture  *texture.Handle
}

// LightKind identifies a light.
type LightKind int

const (
	AmbientLight LightKind = iota
	PointLight
)

// Light is a scene light.
type Light struct {
	Kind      LightKind
	Intensity float64
	Position  core.Vec3
}

// Camera is the perspective camera.
type Camera struct {
	Pose core.Pose
	FOV  float64
}

// Frame is everything needed to draw one frame. Planes are ordered back to
// front and only contain what is visible.
type Frame struct {
	Camera   Camera
	Viewport core.Viewport
	Lights   []Light
	Planes   []Plane
	Showing  bool
}

// Visible reports whether a plane of kind k is drawn.
func (f Frame) Visible(k PlaneKind) bool {
	_, ok := f.Plane(k)
	return ok
}

// Plane returns the plane of kind k.
func (f Frame) Plane(k PlaneKind) (Plane, bool) {
	for _, p := range f.Planes {
		if p.Kind == k {
			return p, true
		}
	}
	return Plane{}, false
}

// Input is the state Compose reads.
type Input struct {
	Pose     core.Pose
	Viewport core.Viewport
	FOV      float64
	Policy   Policy
	// MarkerOpacity applies to the marker under Simultaneous while SHOWING.
	MarkerOpacity float64
	Showing       bool

	// Marker and Video are nil until their textures are ready.
	Marker *texture.Handle
	Video  *texture.Handle
	// VideoWidth and VideoHeight are the player's intrinsic size.
	VideoWidth, VideoHeight int
}

// Compose decides which planes are drawn and how big they are.
func Compose(in Input) Frame {
	fov := in.FOV
	if fov <= 0 {
		fov = DefaultFOV
	}
	f := Frame{
		Camera:   Camera{Pose: in.Pose, FOV: fov},
		Viewport: in.Viewport,
		Lights: []Light{
			{Kind: AmbientLight, Intensity: AmbientIntensity},
			{Kind: PointLight, Intensity: PointIntensity, Position: PointLightPosition},
		},
		Showing: in.Showing,
	}

	showMarker := !in.Showing || in.Policy == Simultaneous
	showVideo := in.Showing

	if showVideo && in.Video != nil {
		w, h := in.VideoWidth, in.VideoHeight
		if w <= 0 || h <= 0 {
			w, h = 16, 9
		}
		pw, ph := PlaneSize(in.Viewport, float64(w)/float64(h))
		f.Planes = append(f.Planes, Plane{
			Kind:     VideoPlane,
			Position: core.Vec3{Z: VideoDepth},
			Width:    pw,
			Height:   ph,
			Opacity:  1,
			Texture:  in.Video,
		})
	}

	if showMarker && in.Marker != nil {
		opacity := 1.0
		if in.Showing {
			opacity = in.MarkerOpacity
			if opacity <= 0 || opacity > 1 {
				opacity = DefaultMarkerOpacity
			}
		}
		w, h := in.Marker.Size()
		if w <= 0 || h <= 0 {
			w, h = 1, 1
		}
		pw, ph := PlaneSize(in.Viewport, float64(w)/float64(h))
		f.Planes = append(f.Planes, Plane{
			Kind:     MarkerPlane,
			Position: core.Vec3{Z: MarkerDepth},
			Width:    pw,
			Height:   ph,
			Opacity:  opacity,
			Texture:  in.Marker,
		})
	}

	return f
}

// PlaneSize scales a plane of the given aspect to cover the viewport:
// scale = max(vw, vh/aspect), width = scale, height = scale/aspect.
func PlaneSize(vp core.Viewport, aspect float64) (w, h float64) {
	if aspect <= 0 {
		aspect = 1
	}
	scale := max(vp.Width, vp.Height/aspect)
	return scale, scale / aspect
}
