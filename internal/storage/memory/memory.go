// Package memory keeps campaign documents in maps and persists them as a
// JSON (optionally gzipped) snapshot under the configured output directory.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/pkg/core"
)

// Backend stores campaigns and scan records in memory
type Backend struct {
	cfg config.MemoryConfig

	campaigns map[string]core.Campaign     // keyed by campaign id
	scans     map[string][]core.ScanRecord // keyed by campaign id

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:       cfg,
		campaigns: make(map[string]core.Campaign),
		scans:     make(map[string][]core.ScanRecord),
	}
}

// Init loads the last snapshot when an output directory is configured
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.importJSON()
}

// Close writes the snapshot when an output directory is configured
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exportJSON()
}

// CreateDocument stores a campaign, assigning an id and creation time when unset
func (b *Backend) CreateDocument(c *core.Campaign) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := b.campaigns[c.ID]; exists {
		return "", fmt.Errorf("campaign %s already exists", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	b.campaigns[c.ID] = *c
	return c.ID, nil
}

// ListDocuments returns the owner's campaigns, newest first. An empty owner lists all.
func (b *Backend) ListDocuments(ownerID string) ([]core.Campaign, error) {
	b.mu.RLock()
	out := make([]core.Campaign, 0, len(b.campaigns))
	for _, c := range b.campaigns {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetDocument looks up a campaign by id
func (b *Backend) GetDocument(id string) (*core.Campaign, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", id, core.ErrNotFound)
	}
	return &c, nil
}

// DeleteDocument removes a campaign by id
func (b *Backend) DeleteDocument(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.campaigns[id]; !ok {
		return fmt.Errorf("campaign %s: %w", id, core.ErrNotFound)
	}
	delete(b.campaigns, id)
	return nil
}

// RecordScan appends a scan record
func (b *Backend) RecordScan(s *core.ScanRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Time.IsZero() {
		s.Time = time.Now().UTC()
	}
	b.scans[s.CampaignID] = append(b.scans[s.CampaignID], *s)
	return nil
}

// ListScans returns the scans recorded against a campaign, oldest first
func (b *Backend) ListScans(campaignID string) ([]core.ScanRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]core.ScanRecord(nil), b.scans[campaignID]...), nil
}
