package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/markercast/engine/internal/auth"
	"github.com/markercast/engine/internal/blob"
	"github.com/markercast/engine/internal/campaign"
	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/detect"
	"github.com/markercast/engine/internal/influx"
	"github.com/markercast/engine/internal/logging"
	"github.com/markercast/engine/internal/media"
	intOtel "github.com/markercast/engine/internal/otel"
	"github.com/markercast/engine/internal/scene"
	"github.com/markercast/engine/internal/storage"
	"github.com/markercast/engine/internal/video"
	"github.com/markercast/engine/internal/viewer"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BuildVersion and BuildDate can be set at build time via ldflags
var (
	BuildVersion = "0.0.1"
	BuildDate    = "unknown"
)

const appName = "markercast"

// app holds the services shared by every command.
type app struct {
	logs    *logging.SlogManager
	log     *slog.Logger
	zlog    zerolog.Logger
	otel    *intOtel.Provider
	logFile *os.File

	store     storage.Backend
	blobs     blob.Store
	fetcher   *media.Fetcher
	influx    *influx.Manager
	session   *auth.Session
	campaigns *campaign.Service
}

// setup loads configuration and connects every backend.
func setup(ctx context.Context, configDir, logLevel string) (*app, error) {
	a := &app{
		logs:    logging.NewSlogManager(),
		session: &auth.Session{},
	}
	a.logs.Setup(os.Stderr, "info", nil)
	a.log = a.logs.Logger()

	if err := config.Load(configDir); err != nil {
		a.log.Warn("Failed to load config, using defaults!", "error", err)
	}
	if logLevel != "" {
		viper.Set("logLevel", logLevel)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", appName, time.Now().Format("20060102_150405")))
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFile = f
	a.zlog = zerolog.New(f).With().Timestamp().Str("app", appName).Logger()

	a.otel, err = intOtel.New(config.GetOTelConfig(), f)
	if err != nil {
		a.log.Warn("Failed to initialize OpenTelemetry", "error", err)
		a.otel, _ = intOtel.New(config.OTelConfig{}, nil)
	}

	a.logs.SetContextProvider(a.logContext)
	a.logs.Setup(f, viper.GetString("logLevel"), a.otel.LoggerProvider())
	a.log = a.logs.Logger()
	a.log.Info("Starting", "version", BuildVersion, "build", BuildDate)

	a.store, err = storage.NewBackend(config.GetStorageConfig(), a.logs.Component(logging.ComponentStorage))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := a.store.Init(); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	a.blobs, err = blob.New(ctx, config.GetBlobConfig())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	a.fetcher = media.NewFetcher(30 * time.Second)

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		a.influx = influx.NewManager(a.zlog, influxCfg, filepath.Join(logsDir, "influx_backup.log.gz"))
		if err := a.influx.Connect(ctx); err != nil {
			a.log.Warn("InfluxDB unavailable", "error", err)
			a.influx = nil
		}
	}

	a.campaigns, err = campaign.NewService(campaign.Deps{
		Store:   a.store,
		Blobs:   a.blobs,
		Users:   a.session,
		Fetcher: a.fetcher,
		Log:     a.logs.Component(logging.ComponentCampaign),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// logContext tags records with the request user and the active campaign.
func (a *app) logContext(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if u, ok := auth.UserFrom(ctx); ok {
		attrs = append(attrs, slog.String("user", u.ID))
	}
	if a.campaigns != nil {
		if c := a.campaigns.Active(); c != nil {
			attrs = append(attrs, slog.String("campaign", c.ID))
		}
	}
	return attrs
}

// signIn makes uid the current user of the session.
func (a *app) signIn(uid string) error {
	if uid == "" {
		return fmt.Errorf("--user is required")
	}
	a.session.SignIn(auth.User{ID: uid})
	return nil
}

// viewerOptions builds scene options from config.
func (a *app) viewerOptions() viewer.Options {
	det := config.GetDetectionConfig()
	pb := config.GetPlaybackConfig()
	vc := config.GetViewerConfig()
	cam := config.GetCameraConfig()

	policy, err := scene.ParsePolicy(vc.Policy)
	if err != nil {
		a.log.Warn("Unknown viewer policy, using exclusive", "policy", vc.Policy)
	}

	return viewer.Options{
		Log:           a.logs.Component(logging.ComponentScene),
		EventLog:      logging.NewDispatcherLogger(a.zlog),
		LoadImage:     a.fetcher.LoadImage,
		OpenVideo:     video.NewOpener(a.fetcher),
		Sink:          a.sink(),
		Detection:     detect.ConfigFrom(det),
		Muted:         pb.Muted,
		Loop:          pb.Loop,
		Policy:        policy,
		MarkerOpacity: vc.MarkerOpacity,
		FOV:           vc.FOV,
		Width:         cam.Width,
		Height:        cam.Height,
	}
}

func (a *app) sink() viewer.Sink {
	s := &viewer.RecorderSink{Scans: a.store, Log: a.log}
	if a.influx != nil {
		s.Points = a.influx
	}
	return s
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Failed to close storage backend", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.log.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.log.Error("Failed to shut down OpenTelemetry", "error", err)
		}
	}
	_ = a.logs.Flush(ctx)
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s %s

Usage: %s <command> [flags]

Commands:
  serve     run the HTTP API
  token     sign a session token for a user
  list      list a user's campaigns
  create    create a campaign from a marker image and optional video
  delete    delete a campaign
  qr        write a campaign's QR code as PNG
  scan      read a QR code from an image and check it against a campaign
  preview   render the campaign preview to PNG frames
  view      render the AR scene over a still camera image along a camera path

Global flags:
`, appName, BuildVersion, appName)
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	bindGlobals(fs)
	fs.PrintDefaults()
}

type globals struct {
	configDir string
	logLevel  string
}

func bindGlobals(fs *pflag.FlagSet) *globals {
	g := &globals{}
	fs.StringVar(&g.configDir, "config", ".", "directory holding "+config.FileName)
	fs.StringVar(&g.logLevel, "log-level", "", "override logLevel (debug, info, warn, error)")
	return g
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := strings.ToLower(os.Args[1])
	cmd, ok := commands[name]
	if !ok {
		if name != "help" && name != "-h" && name != "--help" {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		}
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
