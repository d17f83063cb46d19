// pkg/core/geometry.go
package core

import "math"

// Vec3 is a point or direction in scene world units.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Len returns the euclidean length.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the euclidean distance between two points.
func (v Vec3) DistanceTo(o Vec3) float64 {
	return v.Sub(o).Len()
}

// Euler holds XYZ rotation angles in radians. Z is the roll of a camera looking down -Z.
type Euler struct {
	X, Y, Z float64
}

// Pose is the camera placement sampled once per rendered frame.
type Pose struct {
	Position Vec3
	Rotation Euler
}

// DefaultCameraPose matches the scene camera placement: five units in front of the
// marker plane, looking at the origin.
func DefaultCameraPose() Pose {
	return Pose{Position: Vec3{Z: 5}}
}

// Viewport is the visible frustum slice at the marker plane, in world units, plus the
// pixel size of the render target.
type Viewport struct {
	Width, Height float64
	PixelWidth    int
	PixelHeight   int
}

// ViewportAt computes the frustum slice of a perspective camera with vertical fov
// (degrees) at the given distance, for a render target of w x h pixels.
func ViewportAt(fovDeg, distance float64, w, h int) Viewport {
	height := 2 * math.Tan(fovDeg*math.Pi/360) * distance
	aspect := 1.0
	if h > 0 {
		aspect = float64(w) / float64(h)
	}
	return Viewport{
		Width:       height * aspect,
		Height:      height,
		PixelWidth:  w,
		PixelHeight: h,
	}
}

// UnitsPerPixel returns the world-unit size of one pixel.
func (v Viewport) UnitsPerPixel() float64 {
	if v.PixelWidth == 0 {
		return 0
	}
	return v.Width / float64(v.PixelWidth)
}
