package camera

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice() *StillDevice {
	return &StillDevice{Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}
}

func fast() Constraints {
	return Constraints{FacingMode: "environment", Width: 8, Height: 8, FPS: 200}
}

func TestConstraintsFrom(t *testing.T) {
	c := ConstraintsFrom(config.CameraConfig{FacingMode: "environment", Width: 1280, Height: 720, FPS: 25})
	assert.Equal(t, "environment", c.FacingMode)
	assert.Equal(t, 1280, c.Width)
	assert.Equal(t, 720, c.Height)
	assert.Equal(t, 40*time.Millisecond, c.Interval())
	assert.Equal(t, time.Second/30, Constraints{}.Interval())
}

func TestArbiter_AcquireDeliversFrames(t *testing.T) {
	a := NewArbiter(testDevice(), fast(), nil)

	s, err := a.Acquire(context.Background(), "scanner")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Live())
	assert.Equal(t, "scanner", s.Owner())

	select {
	case f := <-s.Frames():
		assert.Equal(t, uint64(1), f.Seq)
		assert.Equal(t, 8, f.Image.Bounds().Dx())
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}

	_, ok := s.Latest()
	assert.True(t, ok)

	a.Release(s)
	assert.Equal(t, 0, a.Live())
	assert.True(t, s.Stopped())
	assert.Nil(t, a.Current())

	// channel is closed after stop
	for range s.Frames() {
	}
}

func TestArbiter_SingleOwner(t *testing.T) {
	a := NewArbiter(testDevice(), fast(), nil)

	preview, err := a.Acquire(context.Background(), "preview")
	require.NoError(t, err)

	scanner, err := a.Acquire(context.Background(), "scanner")
	require.NoError(t, err)

	assert.True(t, preview.Stopped())
	assert.False(t, scanner.Stopped())
	assert.Equal(t, 1, a.Live())
	assert.Same(t, scanner, a.Current())

	// releasing the stale holder does not touch the new one
	a.Release(preview)
	assert.Same(t, scanner, a.Current())
	assert.Equal(t, 1, a.Live())

	a.Release(scanner)
	assert.Equal(t, 0, a.Live())
}

func TestArbiter_PermissionError(t *testing.T) {
	denied := errors.New("Permission denied")
	a := NewArbiter(&StillDevice{Deny: denied}, fast(), nil)

	_, err := a.Acquire(context.Background(), "scanner")
	var perr *core.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, "Camera access error: Permission denied", err.Error())
	assert.Equal(t, 0, a.Live())
}

func TestStream_StopIdempotent(t *testing.T) {
	a := NewArbiter(testDevice(), fast(), nil)
	s, err := a.Acquire(context.Background(), "preview")
	require.NoError(t, err)

	s.Stop()
	s.Stop()
	a.Release(s)
	assert.Equal(t, 0, a.Live())
}

func TestStream_DropsWhenNotRead(t *testing.T) {
	a := NewArbiter(testDevice(), fast(), nil)
	s, err := a.Acquire(context.Background(), "preview")
	require.NoError(t, err)
	defer a.Release(s)

	require.Eventually(t, func() bool { return s.Dropped() > 0 }, 2*time.Second, 5*time.Millisecond)
}
