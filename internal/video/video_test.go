package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	w, h   int
	length time.Duration
	closed atomic.Bool
}

func (f *fakeDecoder) Size() (int, int)        { return f.w, f.h }
func (f *fakeDecoder) Duration() time.Duration { return f.length }
func (f *fakeDecoder) FrameAt(t time.Duration) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, f.w, f.h)), nil
}
func (f *fakeDecoder) Close() error { f.closed.Store(true); return nil }

func openerFor(dec Decoder, err error) Opener {
	return func(ctx context.Context, uri string) (Decoder, error) { return dec, err }
}

func readyPlayer(t *testing.T, dec Decoder, opts Options) *Player {
	t.Helper()
	ch := make(chan func(), 1)
	opts.Open = openerFor(dec, nil)
	opts.Post = func(fn func()) { ch <- fn }
	p := NewPlayer(opts)
	p.Load(context.Background(), "v.mp4")
	(<-ch)()
	require.True(t, p.Ready())
	return p
}

func TestPlayer_DefaultSizeUntilReady(t *testing.T) {
	ch := make(chan func(), 1)
	p := NewPlayer(Options{
		Open: openerFor(&fakeDecoder{w: 640, h: 480, length: time.Second}, nil),
		Post: func(fn func()) { ch <- fn },
	})

	w, h := p.Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 9, h)

	p.Load(context.Background(), "v.mp4")
	assert.Equal(t, StateLoading, p.State())
	_, err := p.Frame()
	assert.ErrorIs(t, err, core.ErrNotReady)

	(<-ch)()
	w, h = p.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestPlayer_PlayPauseSeek(t *testing.T) {
	p := readyPlayer(t, &fakeDecoder{w: 16, h: 9, length: 10 * time.Second}, Options{Muted: true})
	assert.True(t, p.Muted())

	require.NoError(t, p.Play())
	p.Advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, p.CurrentTime())

	p.Pause()
	p.Advance(time.Second)
	assert.Equal(t, 3*time.Second, p.CurrentTime())

	p.Seek(0)
	assert.Equal(t, time.Duration(0), p.CurrentTime())

	p.Seek(time.Minute)
	assert.Equal(t, 10*time.Second, p.CurrentTime())
}

func TestPlayer_EndedFiresOnce(t *testing.T) {
	p := readyPlayer(t, &fakeDecoder{w: 16, h: 9, length: 2 * time.Second}, Options{})
	var ended int
	p.OnEnded(func() { ended++ })

	require.NoError(t, p.Play())
	p.Advance(time.Second)
	assert.Equal(t, 0, ended)
	p.Advance(2 * time.Second)
	assert.Equal(t, 1, ended)
	assert.False(t, p.Playing())

	p.Advance(time.Second)
	assert.Equal(t, 1, ended)

	// playing again after the end restarts from zero
	require.NoError(t, p.Play())
	assert.Equal(t, time.Duration(0), p.CurrentTime())
}

func TestPlayer_Loop(t *testing.T) {
	p := readyPlayer(t, &fakeDecoder{w: 16, h: 9, length: 2 * time.Second}, Options{Loop: true})
	var ended int
	p.OnEnded(func() { ended++ })

	require.NoError(t, p.Play())
	p.Advance(5 * time.Second)
	assert.Equal(t, time.Second, p.CurrentTime())
	assert.True(t, p.Playing())
	assert.Equal(t, 0, ended)
}

func TestPlayer_PlayBeforeReady(t *testing.T) {
	ch := make(chan func(), 1)
	p := NewPlayer(Options{
		Open: openerFor(&fakeDecoder{w: 16, h: 9, length: 5 * time.Second}, nil),
		Post: func(fn func()) { ch <- fn },
	})
	p.Load(context.Background(), "v.mp4")
	require.NoError(t, p.Play())

	p.Advance(time.Second)
	assert.Equal(t, time.Duration(0), p.CurrentTime())

	(<-ch)()
	p.Advance(time.Second)
	assert.Equal(t, time.Second, p.CurrentTime())
}

func TestPlayer_LoadFailure(t *testing.T) {
	ch := make(chan func(), 1)
	p := NewPlayer(Options{Open: openerFor(nil, errors.New("404")), Post: func(fn func()) { ch <- fn }})
	p.Load(context.Background(), "missing.mp4")
	(<-ch)()

	assert.Equal(t, StateFailed, p.State())
	err := p.Play()
	var perr *core.PlaybackError
	require.ErrorAs(t, err, &perr)
	var lerr *core.ResourceLoadError
	assert.ErrorAs(t, err, &lerr)
}

func TestPlayer_StaleLoadDiscarded(t *testing.T) {
	first := &fakeDecoder{w: 1, h: 1, length: time.Second}
	second := &fakeDecoder{w: 2, h: 2, length: time.Second}

	ch := make(chan func(), 2)
	p := NewPlayer(Options{
		Open: func(ctx context.Context, uri string) (Decoder, error) {
			if uri == "a.mp4" {
				return first, nil
			}
			return second, nil
		},
		Post: func(fn func()) { ch <- fn },
	})

	p.Load(context.Background(), "a.mp4")
	fnA := <-ch
	p.Load(context.Background(), "b.mp4")
	fnB := <-ch

	fnB()
	fnA()

	assert.Equal(t, "b.mp4", p.URI())
	w, _ := p.Size()
	assert.Equal(t, 2, w)
	assert.True(t, first.closed.Load())
	assert.False(t, second.closed.Load())
}

func TestPlayer_CloseReleases(t *testing.T) {
	dec := &fakeDecoder{w: 16, h: 9, length: time.Second}
	p := readyPlayer(t, dec, Options{})
	require.NoError(t, p.Play())

	p.Close()
	assert.True(t, dec.closed.Load())
	assert.Equal(t, StateClosed, p.State())
	assert.False(t, p.Playing())
	assert.Error(t, p.Play())

	// loads after close are ignored
	p.Load(context.Background(), "other.mp4")
	assert.Equal(t, StateClosed, p.State())
}

func testGIF(t *testing.T) []byte {
	t.Helper()
	g := &gif.GIF{}
	for i, c := range []color.Color{color.White, color.Black} {
		frame := image.NewPaletted(image.Rect(0, 0, 4, 3), palette.Plan9)
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				frame.Set(x, y, c)
			}
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 50*(i+1))
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func TestGIF_Frames(t *testing.T) {
	d, err := NewGIF(testGIF(t))
	require.NoError(t, err)
	defer d.Close()

	w, h := d.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 3, h)
	assert.Equal(t, 2, d.Frames())
	assert.Equal(t, 1500*time.Millisecond, d.Duration())

	first, err := d.FrameAt(0)
	require.NoError(t, err)
	r, _, _, _ := first.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	second, err := d.FrameAt(600 * time.Millisecond)
	require.NoError(t, err)
	r, _, _, _ = second.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)

	last, err := d.FrameAt(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, second, last)
}

func TestGIF_Invalid(t *testing.T) {
	_, err := NewGIF([]byte("nope"))
	assert.Error(t, err)
}

func TestParseProbe(t *testing.T) {
	w, h, d, err := parseProbe([]byte(`{"streams":[{"width":1280,"height":720}],"format":{"duration":"12.500000"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
	assert.Equal(t, 12500*time.Millisecond, d)

	_, _, _, err = parseProbe([]byte(`{"streams":[],"format":{"duration":"1"}}`))
	assert.Error(t, err)

	_, _, _, err = parseProbe([]byte(`{"streams":[{"width":1,"height":1}],"format":{"duration":"N/A"}}`))
	assert.Error(t, err)
}

func TestIsGIF(t *testing.T) {
	assert.True(t, isGIF("https://cdn/x/anim.GIF?token=1"))
	assert.False(t, isGIF("v.mp4"))
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	_, err := NewFFmpeg(context.Background(), "v.mp4", FFmpegOptions{Binary: "definitely-not-ffmpeg"})
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestFFmpeg_Decode(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	src := t.TempDir() + "/clip.mp4"
	err := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi", "-i", "testsrc=size=64x36:rate=10:duration=1",
		"-pix_fmt", "yuv420p", src).Run()
	require.NoError(t, err)

	d, err := NewFFmpeg(context.Background(), src, FFmpegOptions{FPS: 10})
	require.NoError(t, err)
	defer d.Close()

	w, h := d.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 36, h)

	img, err := d.FrameAt(500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	_, err = d.FrameAt(0)
	require.NoError(t, err)
}
