package viewer

import (
	"log/slog"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/markercast/engine/internal/influx"
	"github.com/markercast/engine/internal/overlay"
	"github.com/markercast/engine/pkg/core"
)

// PointWriter accepts InfluxDB points. *influx.Manager implements it.
type PointWriter interface {
	WritePoint(p *influxdb2_write.Point) error
}

// ScanStore persists scan records. Every storage.Backend implements it.
type ScanStore interface {
	RecordScan(s *core.ScanRecord) error
}

// RecorderSink writes scene observations to InfluxDB and scan records to
// the document store. Either target may be nil.
type RecorderSink struct {
	Points PointWriter
	Scans  ScanStore
	Log    *slog.Logger
}

func (r *RecorderSink) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

func (r *RecorderSink) write(p *influxdb2_write.Point) {
	if r.Points == nil {
		return
	}
	if err := r.Points.WritePoint(p); err != nil {
		r.logger().Warn("failed to write point", "component", "viewer", "error", err)
	}
}

func (r *RecorderSink) Scan(rec core.ScanRecord) {
	if r.Scans != nil {
		if err := r.Scans.RecordScan(&rec); err != nil {
			r.logger().Error("failed to record scan", "component", "viewer", "error", err)
		}
	}
	r.write(influx.ScanPoint(rec.CampaignID, rec.ScannedID, rec.Confirmed, rec.Reason, rec.Time))
}

func (r *RecorderSink) Overlay(campaignID string, tr overlay.Transition) {
	r.write(influx.OverlayPoint(campaignID, tr.To == overlay.Showing, tr.Cause.String(), tr.At))
}

func (r *RecorderSink) Texture(slot, uri string, ok bool, took time.Duration) {
	r.write(influx.TexturePoint(slot, uri, ok, took, time.Now()))
}

func (r *RecorderSink) VideoEnded(campaignID string, position time.Duration) {
	r.write(influx.VideoEndedPoint(campaignID, position, time.Now()))
}
