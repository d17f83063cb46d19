// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"github.com/markercast/engine/internal/model"
	"github.com/markercast/engine/pkg/core"
	"gorm.io/datatypes"
)

// refsToJSON converts storage refs to datatypes.JSON for DB storage.
func refsToJSON(r core.StorageRefs) datatypes.JSON {
	data, err := json.Marshal(r)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToCampaign converts a core.Campaign to a GORM model.Campaign.
// core.Campaign.ID maps to GORM Campaign.DocID.
func CoreToCampaign(c core.Campaign) model.Campaign {
	return model.Campaign{
		DocID:       c.ID,
		Title:       c.Title,
		MarkerImage: c.MarkerImage,
		VideoURL:    c.VideoURL,
		Type:        string(c.Type),
		OwnerID:     c.OwnerID,
		Refs:        refsToJSON(c.Refs),
		CreatedAt:   c.CreatedAt,
	}
}

// CoreToScanRecord converts a core.ScanRecord to a GORM model.ScanRecord.
func CoreToScanRecord(s core.ScanRecord) model.ScanRecord {
	return model.ScanRecord{
		DocID:      s.ID,
		CampaignID: s.CampaignID,
		ScannedID:  s.ScannedID,
		Confirmed:  s.Confirmed,
		Reason:     s.Reason,
		Time:       s.Time,
	}
}
