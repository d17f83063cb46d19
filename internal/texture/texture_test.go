package texture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/markercast/engine/internal/video"
	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func img(w, h int) image.Image { return image.NewRGBA(image.Rect(0, 0, w, h)) }

// loop collects completions so tests decide when they apply.
type loop struct{ ch chan func() }

func newLoop() *loop { return &loop{ch: make(chan func(), 8)} }

func (l *loop) post(fn func()) { l.ch <- fn }

func (l *loop) next(t *testing.T) {
	t.Helper()
	select {
	case fn := <-l.ch:
		fn()
	case <-time.After(time.Second):
		t.Fatal("no completion")
	}
}

func TestSlot_LoadLifecycle(t *testing.T) {
	m := NewManager(nil)
	l := newLoop()
	var observed []bool
	m.SetObserver(func(slot, uri string, ok bool, took time.Duration) {
		assert.Equal(t, "marker", slot)
		observed = append(observed, ok)
	})

	s := m.NewSlot("marker", func(ctx context.Context, uri string) (image.Image, error) {
		return img(4, 2), nil
	}, l.post)

	var loaded *Handle
	s.OnLoad(func(h *Handle) { loaded = h })

	_, err := s.Get()
	assert.ErrorIs(t, err, core.ErrNotReady)

	s.Set(context.Background(), "m.png")
	assert.True(t, s.Loading())
	_, err = s.Get()
	assert.ErrorIs(t, err, core.ErrNotReady)

	l.next(t)
	h, err := s.Get()
	require.NoError(t, err)
	assert.Same(t, h, loaded)
	assert.Equal(t, "m.png", h.URI())
	w, hh := h.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, hh)
	assert.Equal(t, 1, m.Live())
	assert.Equal(t, []bool{true}, observed)

	// same uri is a no-op
	s.Set(context.Background(), "m.png")
	assert.False(t, s.Loading())

	s.Release()
	assert.True(t, h.Released())
	assert.Nil(t, h.Image())
	assert.Equal(t, 0, m.Live())
}

func TestSlot_URIChangeReleasesPrevious(t *testing.T) {
	m := NewManager(nil)
	l := newLoop()
	s := m.NewSlot("marker", func(ctx context.Context, uri string) (image.Image, error) {
		return img(1, 1), nil
	}, l.post)

	s.Set(context.Background(), "a.png")
	l.next(t)
	first, err := s.Get()
	require.NoError(t, err)

	s.Set(context.Background(), "b.png")
	assert.True(t, first.Released())
	assert.Equal(t, 0, m.Live())
	_, err = s.Get()
	assert.ErrorIs(t, err, core.ErrNotReady)

	l.next(t)
	second, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "b.png", second.URI())
	assert.Equal(t, 1, m.Live())
}

func TestSlot_StaleCompletionDiscarded(t *testing.T) {
	m := NewManager(nil)
	l := newLoop()
	release := make(chan struct{})
	s := m.NewSlot("marker", func(ctx context.Context, uri string) (image.Image, error) {
		if uri == "slow.png" {
			<-release
		}
		return img(1, 1), nil
	}, l.post)

	s.Set(context.Background(), "slow.png")
	s.Set(context.Background(), "fast.png")
	l.next(t)

	close(release)
	l.next(t)

	h, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "fast.png", h.URI())
	assert.Equal(t, 1, m.Live())
}

func TestSlot_FailureIsResourceLoadError(t *testing.T) {
	m := NewManager(nil)
	l := newLoop()
	var observed []bool
	m.SetObserver(func(slot, uri string, ok bool, took time.Duration) { observed = append(observed, ok) })

	s := m.NewSlot("marker", func(ctx context.Context, uri string) (image.Image, error) {
		return nil, errors.New("unreachable")
	}, l.post)

	s.Set(context.Background(), "http://nowhere/m.png")
	l.next(t)

	_, err := s.Get()
	var lerr *core.ResourceLoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "http://nowhere/m.png", lerr.URI)
	assert.False(t, s.Loaded())
	assert.False(t, s.Loading())
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, []bool{false}, observed)
}

func TestSlot_ReleaseDuringLoad(t *testing.T) {
	m := NewManager(nil)
	l := newLoop()
	s := m.NewSlot("marker", func(ctx context.Context, uri string) (image.Image, error) {
		return img(1, 1), nil
	}, l.post)

	s.Set(context.Background(), "m.png")
	s.Release()
	l.next(t)

	assert.False(t, s.Loaded())
	assert.Equal(t, 0, m.Live())
}

func TestHandle_ReleaseOnce(t *testing.T) {
	m := NewManager(nil)
	h := m.newHandle("x", img(1, 1))
	assert.Equal(t, uint64(1), h.Version())
	h.Release()
	h.Release()
	assert.Equal(t, 0, m.Live())
	assert.False(t, h.update(img(1, 1)))
}

type fakeDecoder struct{ length time.Duration }

func (f *fakeDecoder) Size() (int, int)        { return 32, 18 }
func (f *fakeDecoder) Duration() time.Duration { return f.length }
func (f *fakeDecoder) FrameAt(t time.Duration) (image.Image, error) {
	return img(32, 18), nil
}
func (f *fakeDecoder) Close() error { return nil }

func TestVideoSlot_FollowsPlayer(t *testing.T) {
	m := NewManager(nil)
	ch := make(chan func(), 1)
	p := video.NewPlayer(video.Options{
		Open: func(ctx context.Context, uri string) (video.Decoder, error) {
			return &fakeDecoder{length: time.Second}, nil
		},
		Post: func(fn func()) { ch <- fn },
	})
	v := m.NewVideoSlot(p)

	assert.False(t, v.Update(true))
	_, err := v.Get()
	assert.ErrorIs(t, err, core.ErrNotReady)

	p.Load(context.Background(), "v.mp4")
	(<-ch)()

	assert.True(t, v.Update(false))
	h, err := v.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Live())
	version := h.Version()

	// hidden frames are not pumped
	assert.False(t, v.Update(false))
	assert.Equal(t, version, h.Version())

	assert.True(t, v.Update(true))
	assert.Greater(t, h.Version(), version)

	p.Close()
	assert.False(t, v.Update(true))
	assert.True(t, h.Released())
	assert.Equal(t, 0, m.Live())
}

func TestVideoSlot_Release(t *testing.T) {
	m := NewManager(nil)
	ch := make(chan func(), 1)
	p := video.NewPlayer(video.Options{
		Open: func(ctx context.Context, uri string) (video.Decoder, error) {
			return &fakeDecoder{length: time.Second}, nil
		},
		Post: func(fn func()) { ch <- fn },
	})
	p.Load(context.Background(), "v.mp4")
	(<-ch)()

	v := m.NewVideoSlot(p)
	v.Update(true)
	assert.Equal(t, 1, m.Live())
	v.Release()
	assert.Equal(t, 0, m.Live())
}
