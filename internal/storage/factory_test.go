package storage_test

import (
	"testing"

	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/storage"
	gormstorage "github.com/markercast/engine/internal/storage/gorm"
	"github.com/markercast/engine/internal/storage/memory"
	"github.com/markercast/engine/internal/storage/postgres"
	sqlitestorage "github.com/markercast/engine/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Backend    = (*gormstorage.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
	_ storage.ScanLister = (*memory.Backend)(nil)
	_ storage.ScanLister = (*gormstorage.Backend)(nil)
	_ storage.ScanLister = (*postgres.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		want    any
		wantErr bool
	}{
		{"memory", "memory", &memory.Backend{}, false},
		{"sqlite", "sqlite", &sqlitestorage.Backend{}, false},
		{"postgres", "postgres", &postgres.Backend{}, false},
		{"unknown", "mongo", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ}, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown storage type")
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}
