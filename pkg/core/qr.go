// pkg/core/qr.go
package core

// QRPayload is the shareable code content. The JSON shape is both the encode and
// decode format: {"id": "...", "markerImage": "...", "videoUrl": "..."}.
type QRPayload struct {
	ID          string `json:"id"`
	MarkerImage string `json:"markerImage"`
	VideoURL    string `json:"videoUrl"`
}

// PayloadFor builds the payload for a campaign.
func PayloadFor(c *Campaign) QRPayload {
	return QRPayload{
		ID:          c.ID,
		MarkerImage: c.MarkerImage,
		VideoURL:    c.VideoURL,
	}
}
