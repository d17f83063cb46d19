package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/gg"
	"github.com/markercast/engine/internal/camera"
	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/logging"
	"github.com/markercast/engine/internal/viewer"
	"github.com/markercast/engine/pkg/core"

	"github.com/spf13/pflag"
)

// loop drives a scene at fps in wall-clock time so media loads can complete,
// rendering every frame to outDir when it is set.
type loop struct {
	frames int
	fps    int
	outDir string
	width  int
	height int
}

func (l loop) run(ctx context.Context, step func(i int, dt time.Duration), render func(dc *gg.Context)) error {
	if l.fps <= 0 {
		return errors.New("--fps must be positive")
	}
	if l.outDir != "" {
		if err := os.MkdirAll(l.outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	dt := time.Second / time.Duration(l.fps)
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	for i := 0; i < l.frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		step(i, dt)
		if l.outDir == "" {
			continue
		}
		dc := gg.NewContext(l.width, l.height)
		render(dc)
		err := dc.SavePNG(filepath.Join(l.outDir, fmt.Sprintf("frame_%04d.png", i)))
		dc.Close()
		if err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}
	return nil
}

func bindLoop(fs *pflag.FlagSet) *loop {
	l := &loop{}
	fs.IntVar(&l.frames, "frames", 90, "number of frames to run")
	fs.IntVar(&l.fps, "fps", 30, "frames per second")
	fs.StringVarP(&l.outDir, "out", "o", "", "write PNG frames to this directory")
	return l
}

// runPreview plays the campaign preview: marker on screen, video toggled by
// the button, toggle cleared when the video ends.
func runPreview(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("preview", pflag.ContinueOnError)
	l := bindLoop(fs)
	toggleAt := fs.Int("toggle-at", 15, "frame at which the overlay button is pressed (-1 never)")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if fs.NArg() != 1 {
		return errors.New("usage: preview [--frames n] [--out dir] <campaign-id>")
	}

	c, err := a.campaigns.Find(fs.Arg(0))
	if err != nil {
		return err
	}
	opts := a.viewerOptions()
	l.width, l.height = opts.Width, opts.Height

	p, err := viewer.NewPreview(ctx, &c, opts)
	if err != nil {
		return err
	}
	defer p.Unmount()

	label := p.ButtonLabel()
	fmt.Printf("[%s]\n", label)
	err = l.run(ctx, func(i int, dt time.Duration) {
		if i == *toggleAt {
			p.Toggle()
		}
		p.Step(dt)
		if next := p.ButtonLabel(); next != label {
			label = next
			fmt.Printf("frame %d: [%s] overlay=%s\n", i, label, p.Overlay().State())
		}
	}, p.Render)
	if err != nil {
		return err
	}

	st := p.Stats()
	fmt.Printf("video=%s textures=%d\n", st.VideoState, st.LiveTextures)
	return nil
}

// runView renders the AR scene over a still camera image while the camera
// sweeps toward the marker and back, so the marker enters and leaves the
// detection range.
func runView(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("view", pflag.ContinueOnError)
	l := bindLoop(fs)
	cameraImage := fs.String("camera", "", "image used as the camera feed")
	near := fs.Float64("near", 2, "closest camera distance")
	far := fs.Float64("far", 8, "farthest camera distance")
	roll := fs.Float64("roll", 0, "camera roll in radians")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if fs.NArg() != 1 || *cameraImage == "" {
		return errors.New("usage: view --camera <image> [--frames n] [--out dir] <campaign-id>")
	}

	c, err := a.campaigns.Find(fs.Arg(0))
	if err != nil {
		return err
	}
	feed, err := a.fetcher.LoadImage(ctx, *cameraImage)
	if err != nil {
		return err
	}

	arbiter := camera.NewArbiter(&camera.StillDevice{Image: feed},
		camera.ConstraintsFrom(config.GetCameraConfig()),
		a.logs.Component(logging.ComponentCamera))
	opts := a.viewerOptions()
	opts.Arbiter = arbiter
	l.width, l.height = opts.Width, opts.Height

	s, err := viewer.NewScene(opts)
	if err != nil {
		return err
	}
	defer s.Unmount()
	if err := s.Load(ctx, &c); err != nil {
		return err
	}
	if err := s.AttachCamera(ctx); err != nil {
		return err
	}

	visible := false
	err = l.run(ctx, func(i int, dt time.Duration) {
		// triangle wave far -> near -> far over the run
		t := float64(i) / math.Max(1, float64(l.frames-1))
		z := *far - (*far-*near)*(1-math.Abs(2*t-1))
		pose := core.Pose{
			Position: core.Vec3{Z: z},
			Rotation: core.Euler{Z: *roll},
		}
		s.Tick(pose, dt)
		if st := s.Stats(); st.Detector.IsVisible != visible {
			visible = st.Detector.IsVisible
			fmt.Printf("frame %d: z=%.2f marker visible=%t overlay=%s\n", i, z, visible, st.State)
		}
	}, s.Render)
	if err != nil {
		return err
	}

	st := s.Stats()
	fmt.Printf("video=%s textures=%d tracks=%d\n", st.VideoState, st.LiveTextures, st.LiveTracks)
	return nil
}
