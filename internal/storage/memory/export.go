package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/markercast/engine/pkg/core"
)

const snapshotBase = "campaigns"

// Snapshot is the root JSON structure written on Close
type Snapshot struct {
	Version   int            `json:"version"`
	WrittenAt time.Time      `json:"writtenAt"`
	Campaigns []CampaignJSON `json:"campaigns"`
	Scans     []ScanJSON     `json:"scans"`
}

// CampaignJSON is one persisted campaign
type CampaignJSON struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	MarkerImage string           `json:"markerImage"`
	VideoURL    string           `json:"videoUrl,omitempty"`
	Type        core.MediaType   `json:"type"`
	CreatedAt   time.Time        `json:"createdAt"`
	OwnerID     string           `json:"ownerId"`
	Refs        core.StorageRefs `json:"refs"`
}

// ScanJSON is one persisted scan record
type ScanJSON struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	ScannedID  string    `json:"scannedId"`
	Confirmed  bool      `json:"confirmed"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

// SnapshotPath returns the file the backend reads and writes.
func (b *Backend) SnapshotPath() string {
	name := snapshotBase + ".json"
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return filepath.Join(b.cfg.OutputDir, name)
}

func (b *Backend) buildSnapshot() Snapshot {
	snap := Snapshot{Version: 1, WrittenAt: time.Now().UTC()}

	for _, c := range b.campaigns {
		snap.Campaigns = append(snap.Campaigns, CampaignJSON{
			ID:          c.ID,
			Title:       c.Title,
			MarkerImage: c.MarkerImage,
			VideoURL:    c.VideoURL,
			Type:        c.Type,
			CreatedAt:   c.CreatedAt,
			OwnerID:     c.OwnerID,
			Refs:        c.Refs,
		})
	}
	sort.Slice(snap.Campaigns, func(i, j int) bool { return snap.Campaigns[i].ID < snap.Campaigns[j].ID })

	for _, list := range b.scans {
		for _, s := range list {
			snap.Scans = append(snap.Scans, ScanJSON(s))
		}
	}
	sort.SliceStable(snap.Scans, func(i, j int) bool { return snap.Scans[i].Time.Before(snap.Scans[j].Time) })

	return snap
}

// exportJSON writes the snapshot atomically through a temp file
func (b *Backend) exportJSON() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := b.SnapshotPath()
	tmp := outputPath + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	snap := b.buildSnapshot()
	if b.cfg.CompressOutput {
		err = writeGzipJSON(f, snap)
	} else {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(snap)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return os.Rename(tmp, outputPath)
}

// importJSON replaces the in-memory state with the snapshot if one exists
func (b *Backend) importJSON() error {
	f, err := os.Open(b.SnapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if b.cfg.CompressOutput {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip snapshot: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	b.campaigns = make(map[string]core.Campaign, len(snap.Campaigns))
	for _, c := range snap.Campaigns {
		b.campaigns[c.ID] = core.Campaign{
			ID:          c.ID,
			Title:       c.Title,
			MarkerImage: c.MarkerImage,
			VideoURL:    c.VideoURL,
			Type:        c.Type,
			CreatedAt:   c.CreatedAt,
			OwnerID:     c.OwnerID,
			Refs:        c.Refs,
		}
	}
	b.scans = make(map[string][]core.ScanRecord)
	for _, s := range snap.Scans {
		b.scans[s.CampaignID] = append(b.scans[s.CampaignID], core.ScanRecord(s))
	}
	return nil
}

func writeGzipJSON(w io.Writer, data any) error {
	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
