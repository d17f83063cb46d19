package storage

import (
	"fmt"
	"log/slog"

	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/storage/memory"
	"github.com/markercast/engine/internal/storage/postgres"
	sqlitestorage "github.com/markercast/engine/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, log *slog.Logger) (Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Type {
	case "postgres":
		return postgres.New(postgres.Dependencies{Log: log}), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, log)
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
