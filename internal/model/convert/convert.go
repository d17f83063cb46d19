package convert

import (
	"encoding/json"

	"github.com/markercast/engine/internal/model"
	"github.com/markercast/engine/pkg/core"
)

// CampaignToCore converts a GORM model.Campaign to a core.Campaign.
// Malformed refs decode to empty refs rather than failing the read.
func CampaignToCore(c model.Campaign) core.Campaign {
	var refs core.StorageRefs
	if len(c.Refs) > 0 {
		_ = json.Unmarshal(c.Refs, &refs)
	}

	mediaType := core.MediaType(c.Type)
	if mediaType == "" {
		mediaType = core.MediaImage
		if c.VideoURL != "" {
			mediaType = core.MediaVideo
		}
	}

	return core.Campaign{
		ID:          c.DocID,
		Title:       c.Title,
		MarkerImage: c.MarkerImage,
		VideoURL:    c.VideoURL,
		Type:        mediaType,
		CreatedAt:   c.CreatedAt,
		OwnerID:     c.OwnerID,
		Refs:        refs,
	}
}

// ScanRecordToCore converts a GORM model.ScanRecord to a core.ScanRecord.
func ScanRecordToCore(s model.ScanRecord) core.ScanRecord {
	return core.ScanRecord{
		ID:         s.DocID,
		CampaignID: s.CampaignID,
		ScannedID:  s.ScannedID,
		Confirmed:  s.Confirmed,
		Reason:     s.Reason,
		Time:       s.Time,
	}
}
