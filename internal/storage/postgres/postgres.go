// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// Campaign documents are written synchronously; scan records go through an
// internal queue drained by a background DB writer goroutine.
package postgres

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/markercast/engine/internal/database"
	"github.com/markercast/engine/internal/model"
	"github.com/markercast/engine/internal/model/convert"
	"github.com/markercast/engine/internal/queue"
	gormstorage "github.com/markercast/engine/internal/storage/gorm"
	"github.com/markercast/engine/pkg/core"

	"gorm.io/gorm"
)

const defaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB            *gorm.DB // optional, a connection is opened from config when nil
	Log           *slog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM/PostgreSQL with queue-based scan writes.
type Backend struct {
	*gormstorage.Backend
	deps     Dependencies
	scans    *queue.Queue[model.ScanRecord]
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	flushMu  sync.Mutex
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: deps.DB, Log: deps.Log}),
		deps:    deps,
	}
}

// Init connects if needed, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.scans = queue.New[model.ScanRecord]()
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil {
		db, err := database.GetPostgresDB()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
		b.SetDB(db)
	}

	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.startDBWriter()
	return nil
}

// Close stops the DB writer goroutine, flushes pending scans and closes the pool.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		b.stopOnce.Do(func() { close(b.stopChan) })
		b.wg.Wait()
		b.flush()
	}
	return b.Backend.Close()
}

// RecordScan converts and queues a scan record.
func (b *Backend) RecordScan(s *core.ScanRecord) error {
	gormstorage.PrepareScan(s)
	b.scans.Push(convert.CoreToScanRecord(*s))
	return nil
}

// Pending returns the number of queued scan records.
func (b *Backend) Pending() int {
	return b.scans.Len()
}

// ListScans flushes queued scans and reads them back.
func (b *Backend) ListScans(campaignID string) ([]core.ScanRecord, error) {
	b.flush()
	return b.Backend.ListScans(campaignID)
}

// flush writes all queued scans in one transaction. Failed batches are requeued.
func (b *Backend) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.scans.Empty() {
		return
	}
	items := b.scans.GetAndEmpty()
	if err := b.InsertScans(items); err != nil {
		b.deps.Log.Error("Error creating scan records", "count", len(items), "error", err)
		b.scans.Push(items...)
	}
}

// startDBWriter starts the background goroutine that periodically drains the queue into the DB.
func (b *Backend) startDBWriter() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.deps.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				b.flush()
			}
		}
	}()
}
