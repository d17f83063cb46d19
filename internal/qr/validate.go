// Package qr encodes campaigns as QR codes and validates scanned payloads.
package qr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/markercast/engine/pkg/core"
)

// Validation messages.
const (
	MsgInvalidFormat      = "Invalid QR code format"
	MsgInvalidCampaignID  = "Missing or invalid campaign ID"
	MsgInvalidMarkerImage = "Missing or invalid marker image URL"
	MsgInvalidVideoURL    = "Missing or invalid video URL"
	MsgNoActiveCampaign   = "No active campaign"
	MsgCampaignMismatch   = "QR code does not match the active campaign"
)

var fields = []struct {
	key, msg string
}{
	{"id", MsgInvalidCampaignID},
	{"markerImage", MsgInvalidMarkerImage},
	{"videoUrl", MsgInvalidVideoURL},
}

// Validate parses a decoded QR string. Errors are *core.ValidationError.
func Validate(raw string) (core.QRPayload, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return core.QRPayload{}, &core.ValidationError{Msg: MsgInvalidFormat, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return core.QRPayload{}, &core.ValidationError{Msg: MsgInvalidFormat}
	}

	values := make([]string, len(fields))
	for i, f := range fields {
		s, ok := obj[f.key].(string)
		if !ok || s == "" {
			return core.QRPayload{}, &core.ValidationError{Field: f.key, Msg: f.msg}
		}
		values[i] = s
	}

	return core.QRPayload{ID: values[0], MarkerImage: values[1], VideoURL: values[2]}, nil
}

// Matches confirms p against the active campaign id. Only an exact match
// confirms; anything else is a ValidationError on "id" wrapping
// core.ErrNoActiveCampaign or core.ErrCampaignMismatch.
func Matches(p core.QRPayload, activeID string) error {
	if activeID == "" {
		return &core.ValidationError{Field: "id", Msg: MsgNoActiveCampaign, Err: core.ErrNoActiveCampaign}
	}
	if p.ID != activeID {
		return &core.ValidationError{
			Field: "id",
			Msg:   MsgCampaignMismatch,
			Err:   fmt.Errorf("%w: scanned %q, active %q", core.ErrCampaignMismatch, p.ID, activeID),
		}
	}
	return nil
}

// Check validates raw and matches it against activeID.
func Check(raw, activeID string) (core.QRPayload, error) {
	p, err := Validate(raw)
	if err != nil {
		return p, err
	}
	return p, Matches(p, activeID)
}

// Encode returns the wire payload for c.
func Encode(c *core.Campaign) (string, error) {
	return EncodePayload(core.PayloadFor(c))
}

// EncodePayload serializes p without HTML escaping so URLs stay readable.
func EncodePayload(p core.QRPayload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
