// Package viewer runs the AR frame loop: one Tick per display refresh drains
// load completions, runs marker detection, routes trigger events to the
// overlay controller, pumps the video and composes the frame.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markercast/engine/internal/camera"
	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/detect"
	"github.com/markercast/engine/internal/dispatcher"
	"github.com/markercast/engine/internal/logging"
	"github.com/markercast/engine/internal/overlay"
	"github.com/markercast/engine/internal/qr"
	"github.com/markercast/engine/internal/queue"
	"github.com/markercast/engine/internal/scene"
	"github.com/markercast/engine/internal/texture"
	"github.com/markercast/engine/internal/video"
	"github.com/markercast/engine/pkg/core"
)

// CameraOwner names the scene when it holds the camera.
const CameraOwner = "ar-scene"

// Options configures a Scene.
type Options struct {
	Log       *slog.Logger
	EventLog  dispatcher.Logger
	LoadImage texture.Loader
	OpenVideo video.Opener
	Arbiter   *camera.Arbiter
	Sink      Sink

	Detection     detect.Config
	Muted         bool
	Loop          bool
	Policy        scene.Policy
	MarkerOpacity float64
	FOV           float64
	Width         int
	Height        int
}

// Stats is a snapshot of the resources a scene holds.
type Stats struct {
	LiveTextures int
	LiveTracks   int
	State        overlay.State
	Detector     detect.State
	VideoState   video.State
	Pending      int
}

// Scene is the AR scene for the active campaign. All methods except the
// trigger setters are meant for the frame loop goroutine.
type Scene struct {
	opts Options
	log  *slog.Logger

	inbox    *queue.Queue[func()]
	events   *dispatcher.Dispatcher
	textures *texture.Manager
	marker   *texture.Slot
	player   *video.Player
	videoTex *texture.VideoSlot
	detector *detect.Detector
	overlay  *overlay.Controller
	renderer *scene.Renderer

	mu       sync.RWMutex
	campaign *core.Campaign
	stream   *camera.Stream
	frame    scene.Frame
	mounted  bool

	clearManualOnEnd bool
}

// NewScene creates a mounted, empty scene.
func NewScene(opts Options) (*Scene, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.EventLog == nil {
		opts.EventLog = logging.NewDispatcherLogger(zerolog.Nop())
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.LoadImage == nil || opts.OpenVideo == nil {
		return nil, errors.New("image loader and video opener are required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.FOV <= 0 {
		opts.FOV = scene.DefaultFOV
	}
	opts.Detection = detect.ConfigFrom(config.DetectionConfig{
		MaxDistance: opts.Detection.MaxDistance,
		MaxRoll:     opts.Detection.MaxRoll,
	})

	events, err := dispatcher.New(opts.EventLog)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	s := &Scene{
		opts:     opts,
		log:      opts.Log,
		inbox:    queue.New[func()](),
		events:   events,
		textures: texture.NewManager(opts.Log),
		detector: detect.New(opts.Detection, opts.Log),
		renderer: scene.NewRenderer(),
		mounted:  true,
	}
	s.textures.SetObserver(opts.Sink.Texture)
	s.marker = s.textures.NewSlot("marker", opts.LoadImage, s.post)
	s.marker.OnLoad(func(*texture.Handle) { s.detector.SetLoaded(true) })

	s.player = video.NewPlayer(video.Options{
		Open:  opts.OpenVideo,
		Post:  s.post,
		Log:   opts.Log,
		Muted: opts.Muted,
		Loop:  opts.Loop,
	})
	s.player.OnEnded(func() {
		s.dispatch(EventVideoEnded, s.player.CurrentTime())
	})
	s.videoTex = s.textures.NewVideoSlot(s.player)

	s.overlay = overlay.New(nil, opts.Log)
	s.overlay.OnTransition(func(tr overlay.Transition) {
		s.opts.Sink.Overlay(s.campaignID(), tr)
	})

	s.registerHandlers()
	return s, nil
}

func (s *Scene) registerHandlers() {
	set := func(t overlay.Trigger, on bool) dispatcher.HandlerFunc {
		return func(dispatcher.Event) (any, error) {
			return s.overlay.Set(t, on), nil
		}
	}
	s.events.Register(EventMarkerFound, set(overlay.MarkerDetected, true), dispatcher.Logged())
	s.events.Register(EventMarkerLost, set(overlay.MarkerDetected, false), dispatcher.Logged())
	s.events.Register(EventQRConfirmed, set(overlay.QRScanned, true), dispatcher.Logged())
	s.events.Register(EventQRCleared, set(overlay.QRScanned, false), dispatcher.Logged())
	s.events.Register(EventManualToggle, func(e dispatcher.Event) (any, error) {
		on, ok := e.Payload.(bool)
		if !ok {
			return nil, fmt.Errorf("manual toggle payload %T", e.Payload)
		}
		return s.overlay.Set(overlay.ManualOverlay, on), nil
	}, dispatcher.Logged())
	s.events.Register(EventVideoEnded, func(e dispatcher.Event) (any, error) {
		pos, _ := e.Payload.(time.Duration)
		s.opts.Sink.VideoEnded(s.campaignID(), pos)
		if s.clearManualOnEnd {
			s.overlay.Set(overlay.ManualOverlay, false)
		}
		return s.overlay.VideoEnded(), nil
	}, dispatcher.Logged())
	s.events.Register(EventScanRecord, func(e dispatcher.Event) (any, error) {
		rec, ok := e.Payload.(core.ScanRecord)
		if !ok {
			return nil, fmt.Errorf("scan record payload %T", e.Payload)
		}
		s.opts.Sink.Scan(rec)
		return nil, nil
	}, dispatcher.Buffered(scanBuffer))
}

func (s *Scene) post(fn func()) { s.inbox.Push(fn) }

func (s *Scene) dispatch(kind string, payload any) {
	if _, err := s.events.Dispatch(dispatcher.Event{Kind: kind, Payload: payload}); err != nil {
		s.log.Warn("event not delivered", "component", "viewer", "kind", kind, "error", err)
	}
}

func (s *Scene) campaignID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.campaign == nil {
		return ""
	}
	return s.campaign.ID
}

// Campaign returns the campaign on display.
func (s *Scene) Campaign() *core.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaign
}

// Load switches the scene to c. Triggers are cleared, the previous textures
// are released and the new media start loading.
func (s *Scene) Load(ctx context.Context, c *core.Campaign) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return errors.New("scene unmounted")
	}
	if c != nil && s.campaign != nil && s.campaign.ID == c.ID {
		s.mu.Unlock()
		return nil
	}
	s.campaign = c
	s.mu.Unlock()

	s.overlay.Reset()
	s.detector.SetLoaded(false)

	if c == nil {
		s.marker.Set(ctx, "")
		s.player.Load(ctx, "")
		s.videoTex.Release()
		s.overlay.SetPlayback(nil)
		return nil
	}

	s.marker.Set(ctx, c.MarkerImage)
	if s.marker.Loaded() {
		s.detector.SetLoaded(true)
	}
	s.player.Load(ctx, c.VideoURL)
	if c.HasVideo() {
		s.overlay.SetPlayback(s.player)
	} else {
		s.overlay.SetPlayback(nil)
	}
	return nil
}

// AttachCamera takes the camera for the background layer.
func (s *Scene) AttachCamera(ctx context.Context) error {
	if s.opts.Arbiter == nil {
		return errors.New("no camera configured")
	}
	stream, err := s.opts.Arbiter.Acquire(ctx, CameraOwner)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	return nil
}

// ConfirmScan checks a decoded QR string against the active campaign and
// raises the QR trigger on a match. Every check is recorded.
func (s *Scene) ConfirmScan(raw string) (core.QRPayload, error) {
	active := s.campaignID()
	p, err := qr.Check(raw, active)

	rec := core.ScanRecord{
		ID:         uuid.NewString(),
		CampaignID: active,
		ScannedID:  p.ID,
		Confirmed:  err == nil,
		Time:       time.Now(),
	}
	if err != nil {
		rec.Reason = err.Error()
	}
	s.dispatch(EventScanRecord, rec)

	if err != nil {
		return p, err
	}
	s.dispatch(EventQRConfirmed, p)
	return p, nil
}

// Scan runs sc until it yields a payload and confirms it. The scanner takes
// the camera from the background layer.
func (s *Scene) Scan(ctx context.Context, sc *qr.Scanner) (core.QRPayload, error) {
	res, err := sc.Scan(ctx)
	if err != nil {
		return core.QRPayload{}, err
	}
	return s.ConfirmScan(res.Raw)
}

// ClearScan drops the QR trigger.
func (s *Scene) ClearScan() {
	s.dispatch(EventQRCleared, nil)
}

// SetManual sets the manual overlay trigger.
func (s *Scene) SetManual(on bool) {
	s.dispatch(EventManualToggle, on)
}

// ToggleManual flips the manual overlay trigger.
func (s *Scene) ToggleManual() {
	s.SetManual(!s.overlay.Flag(overlay.ManualOverlay))
}

// Overlay exposes the overlay controller.
func (s *Scene) Overlay() *overlay.Controller { return s.overlay }

// Player exposes the video player.
func (s *Scene) Player() *video.Player { return s.player }

// Tick advances the scene by dt with the camera at pose and returns the
// composed frame.
func (s *Scene) Tick(pose core.Pose, dt time.Duration) scene.Frame {
	s.inbox.Drain(func(fn func()) { fn() })

	switch s.detector.Update(pose) {
	case detect.Found:
		s.dispatch(EventMarkerFound, pose)
	case detect.Lost:
		s.dispatch(EventMarkerLost, pose)
	}

	s.player.Advance(dt)

	showing := s.overlay.Visible()
	s.videoTex.Update(showing)

	dist := pose.Position.Len()
	if dist == 0 {
		dist = core.DefaultCameraPose().Position.Len()
	}
	in := scene.Input{
		Pose:          pose,
		Viewport:      core.ViewportAt(s.opts.FOV, dist, s.opts.Width, s.opts.Height),
		FOV:           s.opts.FOV,
		Policy:        s.opts.Policy,
		MarkerOpacity: s.opts.MarkerOpacity,
		Showing:       showing,
	}
	if h, err := s.marker.Get(); err == nil {
		in.Marker = h
	}
	if h, err := s.videoTex.Get(); err == nil {
		in.Video = h
	}
	in.VideoWidth, in.VideoHeight = s.player.Size()

	f := scene.Compose(in)
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()
	return f
}

// Frame returns the last composed frame.
func (s *Scene) Frame() scene.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Render draws the last composed frame with the camera image behind it.
func (s *Scene) Render(dc *gg.Context) {
	var bg image.Image
	s.mu.RLock()
	stream := s.stream
	f := s.frame
	s.mu.RUnlock()
	if stream != nil && !stream.Stopped() {
		if cf, ok := stream.Latest(); ok {
			bg = cf.Image
		}
	}
	s.renderer.Render(dc, f, bg)
}

// Unmount releases the camera, the video and every texture before
// returning. The scene cannot be used afterwards.
func (s *Scene) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	stream := s.stream
	s.stream = nil
	s.frame = scene.Frame{}
	s.mu.Unlock()

	if stream != nil {
		s.opts.Arbiter.Release(stream)
	}
	s.overlay.Reset()
	s.overlay.SetPlayback(nil)
	s.player.Close()
	s.videoTex.Release()
	s.marker.Release()
	s.detector.SetLoaded(false)
	s.inbox.Clear()
	s.renderer.Reset()
	s.events.Close()
}

// Stats reports the resources held by the scene.
func (s *Scene) Stats() Stats {
	st := Stats{
		LiveTextures: s.textures.Live(),
		State:        s.overlay.State(),
		Detector:     s.detector.State(),
		VideoState:   s.player.State(),
		Pending:      s.inbox.Len(),
	}
	if s.opts.Arbiter != nil {
		st.LiveTracks = s.opts.Arbiter.Live()
	}
	return st
}
