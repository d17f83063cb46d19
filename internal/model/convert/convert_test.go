package convert

import (
	"testing"
	"time"

	"github.com/markercast/engine/internal/model"
	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCoreToCampaign(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := core.Campaign{
		ID:          "c1",
		Title:       "Poster",
		MarkerImage: "https://cdn/m.png",
		VideoURL:    "https://cdn/v.mp4",
		Type:        core.MediaVideo,
		CreatedAt:   now,
		OwnerID:     "u1",
		Refs:        core.StorageRefs{Marker: "campaigns/u1/1_marker", Video: "campaigns/u1/1_video"},
	}

	g := CoreToCampaign(c)

	assert.Equal(t, "c1", g.DocID)
	assert.Equal(t, uint(0), g.ID, "row id is assigned by the database")
	assert.Equal(t, "video", g.Type)
	assert.Equal(t, now, g.CreatedAt)
	assert.JSONEq(t, `{"marker":"campaigns/u1/1_marker","video":"campaigns/u1/1_video"}`, string(g.Refs))
}

func TestCampaignToCore(t *testing.T) {
	g := model.Campaign{
		ID:          7,
		DocID:       "c2",
		Title:       "Flyer",
		MarkerImage: "file:///m.png",
		Type:        "image",
		OwnerID:     "u2",
		Refs:        datatypes.JSON(`{"marker":"k1","thumbnail":"k2"}`),
	}

	c := CampaignToCore(g)

	assert.Equal(t, "c2", c.ID)
	assert.Equal(t, core.MediaImage, c.Type)
	assert.False(t, c.HasVideo())
	assert.Equal(t, []string{"k1", "k2"}, c.Refs.Keys())
}

func TestCampaignToCore_InfersTypeAndToleratesBadRefs(t *testing.T) {
	c := CampaignToCore(model.Campaign{DocID: "c3", VideoURL: "v.mp4", Refs: datatypes.JSON(`not json`)})

	assert.Equal(t, core.MediaVideo, c.Type)
	assert.Empty(t, c.Refs.Keys())
}

func TestCampaignRoundTrip(t *testing.T) {
	orig := core.Campaign{
		ID:    "rt",
		Title: "Round",
		Type:  core.MediaImage,
		Refs:  core.StorageRefs{Marker: "m"},
	}
	back := CampaignToCore(CoreToCampaign(orig))
	require.Equal(t, orig, back)
}

func TestScanRecordConversion(t *testing.T) {
	now := time.Now().UTC()
	s := core.ScanRecord{ID: "s1", CampaignID: "c1", ScannedID: "c2", Confirmed: false, Reason: "mismatch", Time: now}

	g := CoreToScanRecord(s)
	assert.Equal(t, "s1", g.DocID)
	assert.Equal(t, "mismatch", g.Reason)

	assert.Equal(t, s, ScanRecordToCore(g))
}
