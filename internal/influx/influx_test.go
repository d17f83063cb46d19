package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/markercast/engine/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func lineOf(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestScanPoint(t *testing.T) {
	line := lineOf(ScanPoint("c1", "c2", false, "mismatch", ts))

	assert.Contains(t, line, "scan,campaign=c1")
	assert.Contains(t, line, `scanned="c2"`)
	assert.Contains(t, line, "confirmed=false")
	assert.Contains(t, line, `reason="mismatch"`)
}

func TestOverlayPoint(t *testing.T) {
	line := lineOf(OverlayPoint("c1", true, "markerDetected", ts))
	assert.Contains(t, line, "overlay_transition,campaign=c1,state=showing")
	assert.Contains(t, line, `trigger="markerDetected"`)
}

func TestTextureAndVideoEndedPoints(t *testing.T) {
	assert.Contains(t, lineOf(TexturePoint("marker", "file:///m.png", true, 42*time.Millisecond, ts)), "ms=42i")
	assert.Contains(t, lineOf(VideoEndedPoint("c1", 1500*time.Millisecond, ts)), "seconds=1.5")
}

func TestStatusPoint(t *testing.T) {
	line := lineOf(StatusPoint("c1", 3, 1, 2, true, ts))
	assert.Contains(t, line, "engine_status,campaign=c1")
	assert.Contains(t, line, "campaigns=3i")
	assert.Contains(t, line, "tracks=1i")
	assert.Contains(t, line, "textures=2i")
	assert.Contains(t, line, "showing=true")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: false}, "")
	assert.Error(t, m.Connect(context.Background()))
	assert.Error(t, m.WritePoint(ScanPoint("c", "c", true, "", ts)))
}

func TestConnect_UnreachableUsesBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.lp.gz")
	var logBuf bytes.Buffer

	m := NewManager(zerolog.New(&logBuf), config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "markercast",
		Bucket:   "viewer_events",
	}, backup)

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
	assert.Contains(t, logBuf.String(), "backup")

	require.NoError(t, m.WritePoint(ScanPoint("c1", "c1", true, "", ts)))
	require.NoError(t, m.WritePoint(OverlayPoint("c1", true, "qrConfirmed", ts)))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.Contains(t, string(data), "scan,campaign=c1")
	assert.Contains(t, string(data), "overlay_transition,campaign=c1")
}
