package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/markercast/engine/internal/auth"
	"github.com/markercast/engine/internal/camera"
	"github.com/markercast/engine/internal/campaign"
	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/logging"
	"github.com/markercast/engine/internal/monitor"
	"github.com/markercast/engine/internal/qr"
	"github.com/markercast/engine/internal/server"
	"github.com/markercast/engine/pkg/core"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"serve":   runServe,
	"token":   runToken,
	"list":    runList,
	"create":  runCreate,
	"delete":  runDelete,
	"qr":      runQR,
	"scan":    runScan,
	"preview": runPreview,
	"view":    runView,
}

// parse binds the global flags to fs, parses args and loads the app.
func parse(ctx context.Context, fs *pflag.FlagSet, args []string) (*app, error) {
	g := bindGlobals(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return setup(ctx, g.configDir, g.logLevel)
}

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (default server.addr)")
	statusDir := fs.String("status-dir", "", "directory for status.json (default logsDir)")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	issuer, err := auth.NewIssuer(config.GetAuthConfig())
	if err != nil {
		return err
	}
	if *addr == "" {
		*addr = config.GetServerConfig().Addr
	}
	if *statusDir == "" {
		*statusDir = config.GetString("logsDir")
	}

	deps := monitor.Dependencies{
		Campaigns: a.campaigns,
		StatusDir: *statusDir,
		Interval:  5 * time.Second,
		Log:       a.logs.Component("monitor"),
	}
	if a.influx != nil {
		deps.Points = a.influx
	}
	mon := monitor.NewService(deps)
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	srv, err := server.New(server.Options{
		Campaigns: a.campaigns,
		Auth:      issuer,
		Scans:     a.store,
		Status:    mon,
		QRSize:    qr.DefaultSize,
		Log:       a.logs.Component(logging.ComponentServer),
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, *addr)
}

func runToken(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	user := fs.String("user", "", "user id")
	email := fs.String("email", "", "user email")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	if *user == "" {
		return errors.New("--user is required")
	}
	issuer, err := auth.NewIssuer(config.GetAuthConfig())
	if err != nil {
		return err
	}
	tok, err := issuer.Sign(auth.User{ID: *user, Email: *email})
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	user := fs.String("user", "", "owner id")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.signIn(*user); err != nil {
		return err
	}

	list, err := a.campaigns.Fetch(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tCREATED")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Title, c.Type, c.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runCreate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
	user := fs.String("user", "", "owner id")
	title := fs.String("title", "", "campaign title")
	marker := fs.String("marker", "", "marker image path or URL")
	videoURI := fs.String("video", "", "overlay video path or URL")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.signIn(*user); err != nil {
		return err
	}

	d := campaign.Draft{Title: *title, Marker: campaign.Media{URI: *marker}}
	if *videoURI != "" {
		d.Video = &campaign.Media{URI: *videoURI}
	}
	c, err := a.campaigns.Add(ctx, d)
	if err != nil {
		return err
	}
	fmt.Println(c.ID)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	user := fs.String("user", "", "owner id")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.signIn(*user); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: delete --user <uid> <campaign-id>")
	}
	return a.campaigns.Remove(ctx, fs.Arg(0))
}

func runQR(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("qr", pflag.ContinueOnError)
	out := fs.StringP("out", "o", "", "output file (default ar-campaign-<id>.png)")
	size := fs.Int("size", qr.DefaultSize, "image size in pixels")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if fs.NArg() != 1 {
		return errors.New("usage: qr [--out file] [--size n] <campaign-id>")
	}

	c, err := a.campaigns.Find(fs.Arg(0))
	if err != nil {
		return err
	}
	payload, err := qr.Encode(&c)
	if err != nil {
		return err
	}
	png, err := qr.Generate(payload, *size)
	if err != nil {
		return err
	}
	if *out == "" {
		*out = qr.Filename(c.ID)
	}
	if err := os.WriteFile(*out, png, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", *out, err)
	}
	fmt.Println(*out)
	return nil
}

// runScan feeds an image through a still camera into the scanner, the same
// path a live camera takes, and confirms the result against a campaign.
func runScan(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	active := fs.String("active", "", "active campaign id")
	timeout := fs.Duration("timeout", 5*time.Second, "give up after this long")
	a, err := parse(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()
	if fs.NArg() != 1 {
		return errors.New("usage: scan --active <campaign-id> <image>")
	}

	img, err := a.fetcher.LoadImage(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	arbiter := camera.NewArbiter(&camera.StillDevice{Image: img},
		camera.ConstraintsFrom(config.GetCameraConfig()),
		a.logs.Component(logging.ComponentCamera))
	scanner := qr.NewScanner(arbiter, a.logs.Component(logging.ComponentScanner))
	defer scanner.Close()
	scanner.OnError(func(err error) {
		fmt.Fprintln(os.Stderr, err)
	})

	scanCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	res, err := scanner.Scan(scanCtx)
	if err != nil {
		return err
	}

	err = qr.Matches(res.Payload, *active)
	rec := core.ScanRecord{
		ID:         uuid.NewString(),
		CampaignID: *active,
		ScannedID:  res.Payload.ID,
		Confirmed:  err == nil,
		Time:       time.Now().UTC(),
	}
	if err != nil {
		rec.Reason = err.Error()
	}
	a.sink().Scan(rec)
	if err != nil {
		return err
	}
	fmt.Printf("confirmed %s\n  marker: %s\n  video:  %s\n", res.Payload.ID, res.Payload.MarkerImage, res.Payload.VideoURL)
	return nil
}
