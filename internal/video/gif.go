package video

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"sort"
	"time"
)

// minFrameDelay matches the delay browsers apply to GIF frames declaring less.
const minFrameDelay = 20 * time.Millisecond

// GIF is an in-process decoder for animated GIFs. Frames are composited once
// at open time.
type GIF struct {
	frames []*image.RGBA
	starts []time.Duration
	length time.Duration
	w, h   int
}

// NewGIF decodes an animated GIF.
func NewGIF(data []byte) (*GIF, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, ErrNoFrames
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	bounds := image.Rect(0, 0, w, h)

	canvas := image.NewRGBA(bounds)
	d := &GIF{w: w, h: h}
	var at time.Duration

	for i, frame := range g.Image {
		var restore *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			restore = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		d.frames = append(d.frames, cloneRGBA(canvas))
		d.starts = append(d.starts, at)

		delay := minFrameDelay
		if i < len(g.Delay) && time.Duration(g.Delay[i])*10*time.Millisecond > minFrameDelay {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		at += delay

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = restore
		}
	}
	d.length = at
	return d, nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func (d *GIF) Size() (int, int) { return d.w, d.h }

func (d *GIF) Duration() time.Duration { return d.length }

func (d *GIF) FrameAt(t time.Duration) (image.Image, error) {
	if len(d.frames) == 0 {
		return nil, ErrNoFrames
	}
	i := sort.Search(len(d.starts), func(i int) bool { return d.starts[i] > t }) - 1
	if i < 0 {
		i = 0
	}
	return d.frames[i], nil
}

// Frames returns the number of composited frames.
func (d *GIF) Frames() int { return len(d.frames) }

func (d *GIF) Close() error {
	d.frames = nil
	return nil
}
