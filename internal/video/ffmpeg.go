package video

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFmpegOptions tunes the external decoder.
type FFmpegOptions struct {
	// FPS is the rate frames are sampled at. Zero means 30.
	FPS int
	// Binary and Probe override the ffmpeg and ffprobe executables.
	Binary string
	Probe  string
}

// FFmpeg decodes any container ffmpeg understands by running it as an
// external process that writes raw RGBA frames to stdout. Frames are read
// sequentially; seeking backwards or far ahead restarts the process.
type FFmpeg struct {
	opts   FFmpegOptions
	src    string
	w, h   int
	length time.Duration

	mu    sync.Mutex
	cmd   *exec.Cmd
	out   io.ReadCloser
	r     *bufio.Reader
	next  int // index of the frame the reader will return next
	frame *image.RGBA
	index int // index held by frame, -1 when empty
	eof   bool
}

// NewFFmpeg probes src and prepares a decoder. The decoding process starts on
// the first FrameAt.
func NewFFmpeg(ctx context.Context, src string, opts FFmpegOptions) (*FFmpeg, error) {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Probe == "" {
		opts.Probe = "ffprobe"
	}
	if _, err := exec.LookPath(opts.Binary); err != nil {
		return nil, ErrFFmpegNotFound
	}

	out, err := exec.CommandContext(ctx, opts.Probe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		src,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", src, err)
	}

	w, h, length, err := parseProbe(out)
	if err != nil {
		return nil, err
	}

	return &FFmpeg{opts: opts, src: src, w: w, h: h, length: length, index: -1}, nil
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(data []byte) (int, int, time.Duration, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 || p.Streams[0].Width <= 0 || p.Streams[0].Height <= 0 {
		return 0, 0, 0, errors.New("no video stream")
	}
	secs, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse duration %q: %w", p.Format.Duration, err)
	}
	return p.Streams[0].Width, p.Streams[0].Height, time.Duration(secs * float64(time.Second)), nil
}

func (d *FFmpeg) Size() (int, int) { return d.w, d.h }

func (d *FFmpeg) Duration() time.Duration { return d.length }

func (d *FFmpeg) FrameAt(t time.Duration) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target := int(t * time.Duration(d.opts.FPS) / time.Second)
	if target == d.index && d.frame != nil {
		return d.frame, nil
	}

	if d.cmd == nil || target < d.next-1 || target > d.next+2*d.opts.FPS {
		if err := d.restart(target); err != nil {
			return nil, err
		}
	}

	for !d.eof && d.next <= target {
		if err := d.readFrame(); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				break
			}
			return nil, err
		}
	}

	if d.frame == nil {
		return nil, ErrNoFrames
	}
	return d.frame, nil
}

func (d *FFmpeg) restart(target int) error {
	d.stop()

	start := float64(target) / float64(d.opts.FPS)
	cmd := exec.Command(d.opts.Binary,
		"-v", "error",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", d.src,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-r", strconv.Itoa(d.opts.FPS),
		"-",
	)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	d.cmd = cmd
	d.out = out
	d.r = bufio.NewReaderSize(out, d.w*d.h*4)
	d.next = target
	d.eof = false
	return nil
}

func (d *FFmpeg) readFrame() error {
	if d.frame == nil {
		d.frame = image.NewRGBA(image.Rect(0, 0, d.w, d.h))
	}
	if _, err := io.ReadFull(d.r, d.frame.Pix); err != nil {
		return err
	}
	d.index = d.next
	d.next++
	return nil
}

func (d *FFmpeg) stop() {
	if d.cmd == nil {
		return
	}
	d.out.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	d.cmd = nil
	d.out = nil
	d.r = nil
}

func (d *FFmpeg) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop()
	d.frame = nil
	d.index = -1
	return nil
}
