package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/markercast/engine/internal/influx"
	"github.com/markercast/engine/internal/viewer"
	"github.com/markercast/engine/pkg/core"
)

// StatusFile is written under Dependencies.StatusDir on every tick.
const StatusFile = "status.json"

// Campaigns is the part of the campaign service the monitor reads.
type Campaigns interface {
	List() []core.Campaign
	Active() *core.Campaign
	Loading() bool
	LastError() string
}

// ViewerStats reports the live scene's resource usage.
type ViewerStats interface {
	Stats() viewer.Stats
}

// Tracks reports open camera tracks.
type Tracks interface {
	Live() int
}

// PointWriter accepts status points. influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(p *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service. Every field
// except Campaigns is optional.
type Dependencies struct {
	Campaigns Campaigns
	Viewer    ViewerStats
	Tracks    Tracks
	Points    PointWriter
	StatusDir string
	Interval  time.Duration
	Log       *slog.Logger
}

// ViewerStatus is the JSON form of viewer.Stats.
type ViewerStatus struct {
	Overlay      string `json:"overlay"`
	MarkerLoaded bool   `json:"markerLoaded"`
	MarkerInView bool   `json:"markerInView"`
	Video        string `json:"video"`
	LiveTextures int    `json:"liveTextures"`
	Pending      int    `json:"pending"`
}

// Status is one snapshot of the engine.
type Status struct {
	Time       time.Time     `json:"time"`
	Uptime     string        `json:"uptime"`
	Campaigns  int           `json:"campaigns"`
	Active     string        `json:"activeCampaign,omitempty"`
	Loading    bool          `json:"loading"`
	LastError  string        `json:"lastError,omitempty"`
	LiveTracks int           `json:"liveTracks"`
	Viewer     *ViewerStatus `json:"viewer,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Service{
		deps:     deps,
		started:  time.Now(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot collects the current status.
func (s *Service) Snapshot() Status {
	now := time.Now()
	st := Status{
		Time:   now.UTC(),
		Uptime: now.Sub(s.started).Truncate(time.Second).String(),
	}
	if c := s.deps.Campaigns; c != nil {
		st.Campaigns = len(c.List())
		if a := c.Active(); a != nil {
			st.Active = a.ID
		}
		st.Loading = c.Loading()
		st.LastError = c.LastError()
	}
	if s.deps.Tracks != nil {
		st.LiveTracks = s.deps.Tracks.Live()
	}
	if s.deps.Viewer != nil {
		vs := s.deps.Viewer.Stats()
		st.Viewer = &ViewerStatus{
			Overlay:      vs.State.String(),
			MarkerLoaded: vs.Detector.IsLoaded,
			MarkerInView: vs.Detector.IsVisible,
			Video:        vs.VideoState.String(),
			LiveTextures: vs.LiveTextures,
			Pending:      vs.Pending,
		}
		if s.deps.Tracks == nil {
			st.LiveTracks = vs.LiveTracks
		}
	}
	return st
}

// Point converts a snapshot into an InfluxDB point.
func (st Status) Point() *influxdb2_write.Point {
	textures, showing := 0, false
	if st.Viewer != nil {
		textures = st.Viewer.LiveTextures
		showing = st.Viewer.Overlay == "SHOWING"
	}
	return influx.StatusPoint(st.Active, st.Campaigns, st.LiveTracks, textures, showing, st.Time)
}

// WriteStatus writes a snapshot to the status file, replacing its contents.
func (s *Service) WriteStatus(st Status) error {
	if s.deps.StatusDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	path := filepath.Join(s.deps.StatusDir, StatusFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *Service) tick() {
	st := s.Snapshot()
	if err := s.WriteStatus(st); err != nil {
		s.deps.Log.Error("Error writing status file", "error", err)
	}
	if s.deps.Points != nil {
		if err := s.deps.Points.WritePoint(st.Point()); err != nil {
			s.deps.Log.Error("Error writing status point", "error", err)
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.StatusDir != "" {
		if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to create status dir: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		s.deps.Log.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit. A final status is
// written on the way out.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	s.tick()
}
