// Package gormstorage implements storage.Backend on top of a GORM connection.
// The sqlite and postgres backends embed it and only add connection setup and
// their own write scheduling.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/markercast/engine/internal/database"
	"github.com/markercast/engine/internal/model"
	"github.com/markercast/engine/internal/model/convert"
	"github.com/markercast/engine/pkg/core"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB  *gorm.DB
	Log *slog.Logger
}

// Backend implements storage.Backend with synchronous GORM writes.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects a connection opened after construction.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}
	b.deps.Log.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// CreateDocument inserts a campaign, assigning an id and creation time when unset.
func (b *Backend) CreateDocument(c *core.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	row := convert.CoreToCampaign(*c)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to insert campaign: %w", err)
	}
	return c.ID, nil
}

// ListDocuments returns the owner's campaigns, newest first. An empty owner lists all.
func (b *Backend) ListDocuments(ownerID string) ([]core.Campaign, error) {
	var rows []model.Campaign
	q := b.deps.DB.Order("created_at DESC").Order("doc_id ASC")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	out := make([]core.Campaign, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.CampaignToCore(r))
	}
	return out, nil
}

// GetDocument fetches one campaign by id.
func (b *Backend) GetDocument(id string) (*core.Campaign, error) {
	var row model.Campaign
	err := b.deps.DB.Where("doc_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("campaign %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	c := convert.CampaignToCore(row)
	return &c, nil
}

// DeleteDocument removes a campaign by id.
func (b *Backend) DeleteDocument(id string) error {
	res := b.deps.DB.Where("doc_id = ?", id).Delete(&model.Campaign{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete campaign: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("campaign %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// RecordScan inserts a scan record, assigning an id and time when unset.
func (b *Backend) RecordScan(s *core.ScanRecord) error {
	PrepareScan(s)
	row := convert.CoreToScanRecord(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert scan record: %w", err)
	}
	return nil
}

// InsertScans writes a batch of scan rows in one transaction.
func (b *Backend) InsertScans(rows []model.ScanRecord) error {
	return b.deps.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// ListScans returns the scans recorded against a campaign, oldest first.
func (b *Backend) ListScans(campaignID string) ([]core.ScanRecord, error) {
	var rows []model.ScanRecord
	err := b.deps.DB.Where("campaign_id = ?", campaignID).Order("time ASC").Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	out := make([]core.ScanRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.ScanRecordToCore(r))
	}
	return out, nil
}

// PrepareScan fills a missing id and timestamp.
func PrepareScan(s *core.ScanRecord) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Time.IsZero() {
		s.Time = time.Now().UTC()
	}
}
