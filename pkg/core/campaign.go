// pkg/core/campaign.go
package core

import "time"

// MediaType tells whether a campaign carries an overlay video or only a marker image.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// StorageRefs are the object keys backing a campaign's media, kept so the
// objects can be purged when the campaign is deleted.
type StorageRefs struct {
	Marker    string `json:"marker"`
	Video     string `json:"video,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Keys returns the non-empty object keys.
func (r StorageRefs) Keys() []string {
	keys := make([]string, 0, 3)
	for _, k := range []string{r.Marker, r.Video, r.Thumbnail} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Campaign is a marker+video pairing, the unit of creation, sharing and deletion.
// Campaigns are immutable once created.
type Campaign struct {
	ID          string
	Title       string
	MarkerImage string // resolved URI
	VideoURL    string // resolved URI, empty when the campaign has no overlay
	Type        MediaType
	CreatedAt   time.Time
	OwnerID     string
	Refs        StorageRefs
}

// HasVideo reports whether an overlay video is attached.
func (c *Campaign) HasVideo() bool {
	return c != nil && c.VideoURL != ""
}

// ScanRecord is written every time a scanned code is checked against the active campaign.
type ScanRecord struct {
	ID         string
	CampaignID string
	ScannedID  string
	Confirmed  bool
	Reason     string
	Time       time.Time
}
