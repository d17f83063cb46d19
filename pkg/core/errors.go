// pkg/core/errors.go
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned while an asynchronous resource is still loading.
	ErrNotReady = errors.New("resource not ready")

	// ErrNoActiveCampaign is returned when an operation needs the active campaign and none is set.
	ErrNoActiveCampaign = errors.New("no active campaign")

	// ErrUnauthenticated is returned when no user is signed in.
	ErrUnauthenticated = errors.New("user must be authenticated")

	// ErrUnauthorized is returned when a user acts on a campaign they do not own.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCampaignMismatch is returned when a scanned code belongs to another campaign.
	ErrCampaignMismatch = errors.New("scanned code does not match the active campaign")

	// ErrStreamClosed is returned when reading from a stopped camera stream.
	ErrStreamClosed = errors.New("camera stream closed")

	// ErrNotFound is returned when a campaign document does not exist.
	ErrNotFound = errors.New("not found")
)

// ResourceLoadError reports a texture, image or video that failed to load or decode.
type ResourceLoadError struct {
	URI string
	Err error
}

func (e *ResourceLoadError) Error() string {
	return fmt.Sprintf("failed to load %q: %v", e.URI, e.Err)
}

func (e *ResourceLoadError) Unwrap() error { return e.Err }

// PermissionError reports denied camera access.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("Camera access error: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// ValidationError reports a malformed or mismatched QR payload. Field is empty for
// shape errors that do not concern a single field.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PlaybackError reports a video that failed to start.
type PlaybackError struct {
	URI string
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("video playback error for %q: %v", e.URI, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
