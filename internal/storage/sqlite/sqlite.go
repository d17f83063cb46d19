// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend via composition. The SQLite specific concerns are
// creating the in-memory DB, restoring the last dump on start and the
// periodic dump itself.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/markercast/engine/internal/database"
	"github.com/markercast/engine/internal/model"
	gormstorage "github.com/markercast/engine/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg Config, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := database.GetSqliteDB("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Log: log}),
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Init migrates the schema, restores the previous dump if present and starts
// the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if err := b.restore(); err != nil {
		return fmt.Errorf("failed to restore %s: %w", b.cfg.DumpPath, err)
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the database.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()

	if b.cfg.DumpPath != "" {
		if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
			b.log.Error("Final dump failed", "error", err)
		}
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time snapshot to the configured path.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

// restore copies campaigns and scans from the last dump into the in-memory DB.
func (b *Backend) restore() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	if _, err := os.Stat(b.cfg.DumpPath); err != nil {
		return nil
	}

	disk, err := database.GetSqliteDB(b.cfg.DumpPath)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := disk.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	var campaigns []model.Campaign
	if err := disk.Find(&campaigns).Error; err != nil {
		return err
	}
	var scans []model.ScanRecord
	if err := disk.Find(&scans).Error; err != nil {
		return err
	}

	if len(campaigns) > 0 {
		if err := b.db.Create(&campaigns).Error; err != nil {
			return err
		}
	}
	if len(scans) > 0 {
		if err := b.db.Create(&scans).Error; err != nil {
			return err
		}
	}
	b.log.Info("Restored from dump", "campaigns", len(campaigns), "scans", len(scans))
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}
