package viewer

import (
	"time"

	"github.com/markercast/engine/internal/overlay"
	"github.com/markercast/engine/pkg/core"
)

// Event kinds routed through the scene dispatcher.
const (
	EventMarkerFound  = "marker.found"
	EventMarkerLost   = "marker.lost"
	EventQRConfirmed  = "qr.confirmed"
	EventQRCleared    = "qr.cleared"
	EventManualToggle = "manual.toggle"
	EventVideoEnded   = "video.ended"
	EventScanRecord   = "scan.record"
)

// scanBuffer bounds scan records waiting for the sink.
const scanBuffer = 64

// Sink receives what the scene observes. Calls for scan records happen off
// the frame loop; the others happen on it and must not block.
type Sink interface {
	Scan(rec core.ScanRecord)
	Overlay(campaignID string, tr overlay.Transition)
	Texture(slot, uri string, ok bool, took time.Duration)
	VideoEnded(campaignID string, position time.Duration)
}

type nopSink struct{}

func (nopSink) Scan(core.ScanRecord)                        {}
func (nopSink) Overlay(string, overlay.Transition)          {}
func (nopSink) Texture(string, string, bool, time.Duration) {}
func (nopSink) VideoEnded(string, time.Duration)            {}
