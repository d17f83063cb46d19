// Package storage defines the campaign document store and selects a backend.
package storage

import "github.com/markercast/engine/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Campaign documents. CreateDocument assigns an id when the campaign has
	// none and returns it.
	CreateDocument(c *core.Campaign) (string, error)
	ListDocuments(ownerID string) ([]core.Campaign, error)
	GetDocument(id string) (*core.Campaign, error)
	DeleteDocument(id string) error

	// Scan audit trail
	RecordScan(s *core.ScanRecord) error
}

// ScanLister is an optional interface for backends that can read back scan records.
type ScanLister interface {
	ListScans(campaignID string) ([]core.ScanRecord, error)
}
