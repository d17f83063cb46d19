// Package campaign manages the signed-in owner's campaigns: media upload,
// document persistence, the fetched collection and the active selection.
package campaign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/markercast/engine/internal/auth"
	"github.com/markercast/engine/internal/blob"
	"github.com/markercast/engine/internal/cache"
	"github.com/markercast/engine/internal/media"
	"github.com/markercast/engine/internal/storage"
	"github.com/markercast/engine/pkg/core"
)

// Messages surfaced through LastError.
const (
	MsgAddFailed    = "Failed to add campaign"
	MsgRemoveFailed = "Failed to remove campaign"
	MsgFetchFailed  = "Failed to fetch campaigns"
)

// ThumbnailWidth is the width of the marker preview stored next to the marker.
const ThumbnailWidth = 320

// Users resolves the caller. auth.Session satisfies it.
type Users interface {
	CurrentUser(ctx context.Context) (auth.User, error)
}

// Media is an upload source: either an open reader or a URI to fetch.
type Media struct {
	Reader      io.Reader
	URI         string
	ContentType string
}

func (m *Media) empty() bool {
	return m == nil || (m.Reader == nil && m.URI == "")
}

// Draft describes a campaign to create.
type Draft struct {
	Title  string
	Marker Media
	Video  *Media
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store   storage.Backend
	Blobs   blob.Store
	Users   Users
	Fetcher *media.Fetcher
	Log     *slog.Logger
	Now     func() time.Time
}

// Service owns the campaign collection for the current user.
type Service struct {
	deps     Deps
	cache    *cache.CampaignCache
	inflight cache.SafeCounter

	mu      sync.RWMutex
	active  *core.Campaign
	lastErr string
}

// NewService validates deps and fills defaults.
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Blobs == nil || deps.Users == nil {
		return nil, errors.New("campaign service needs a store, a blob store and a user source")
	}
	if deps.Fetcher == nil {
		deps.Fetcher = media.NewFetcher(30 * time.Second)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps, cache: cache.NewCampaignCache()}, nil
}

// Loading reports whether an operation is in flight.
func (s *Service) Loading() bool { return s.inflight.Value() > 0 }

// LastError returns the message of the most recent failure, or "".
func (s *Service) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Service) begin() func() {
	s.inflight.Inc()
	s.setError("")
	return s.inflight.Dec
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

func (s *Service) fail(msg string, err error) error {
	s.setError(msg)
	s.deps.Log.Error(msg, "error", err)
	return fmt.Errorf("%s: %w", strings.ToLower(msg[:1])+msg[1:], err)
}

// Fetch replaces the collection with the current user's campaigns.
func (s *Service) Fetch(ctx context.Context) ([]core.Campaign, error) {
	defer s.begin()()

	u, err := s.deps.Users.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail(MsgFetchFailed, err)
	}
	list, err := s.deps.Store.ListDocuments(u.ID)
	if err != nil {
		return nil, s.fail(MsgFetchFailed, err)
	}
	s.cache.Replace(list)
	cache.SortNewestFirst(list)
	s.deps.Log.Debug("campaigns fetched", "owner", u.ID, "count", len(list))
	return list, nil
}

// List returns the collection, newest first.
func (s *Service) List() []core.Campaign { return s.cache.List() }

// Get returns a campaign from the collection.
func (s *Service) Get(id string) (core.Campaign, bool) { return s.cache.Get(id) }

// Find looks id up in the collection and then in the store.
func (s *Service) Find(id string) (core.Campaign, error) {
	if c, ok := s.cache.Get(id); ok {
		return c, nil
	}
	doc, err := s.deps.Store.GetDocument(id)
	if err != nil {
		return core.Campaign{}, err
	}
	if doc == nil {
		return core.Campaign{}, fmt.Errorf("campaign %s: %w", id, core.ErrNotFound)
	}
	return *doc, nil
}

// Add uploads the draft's media and creates the campaign document.
func (s *Service) Add(ctx context.Context, d Draft) (core.Campaign, error) {
	defer s.begin()()

	u, err := s.deps.Users.CurrentUser(ctx)
	if err != nil {
		return core.Campaign{}, s.fail(MsgAddFailed, err)
	}
	if strings.TrimSpace(d.Title) == "" {
		return core.Campaign{}, s.fail(MsgAddFailed, &core.ValidationError{Field: "title", Msg: "title is required"})
	}
	if d.Marker.empty() {
		return core.Campaign{}, s.fail(MsgAddFailed, &core.ValidationError{Field: "marker", Msg: "marker image is required"})
	}

	now := s.deps.Now()
	prefix := fmt.Sprintf("campaigns/%s/%d", u.ID, now.UnixMilli())
	c := core.Campaign{
		Title:     d.Title,
		Type:      core.MediaImage,
		CreatedAt: now.UTC(),
		OwnerID:   u.ID,
	}

	markerData, err := s.read(ctx, &d.Marker)
	if err != nil {
		return core.Campaign{}, s.fail(MsgAddFailed, err)
	}
	img, _, err := media.DecodeImage(markerData)
	if err != nil {
		return core.Campaign{}, s.fail(MsgAddFailed, &core.ValidationError{Field: "marker", Msg: "marker is not a supported image", Err: err})
	}

	var uploaded []string
	cleanup := func() {
		for _, key := range uploaded {
			if derr := s.deps.Blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
				s.deps.Log.Warn("failed to clean up upload", "key", key, "error", derr)
			}
		}
	}

	c.Refs.Marker = prefix + "_marker"
	c.MarkerImage, err = s.deps.Blobs.Upload(ctx, c.Refs.Marker, contentTypeOf(&d.Marker, markerData), bytes.NewReader(markerData))
	if err != nil {
		return core.Campaign{}, s.fail(MsgAddFailed, err)
	}
	uploaded = append(uploaded, c.Refs.Marker)

	if thumb, err := thumbnail(img); err != nil {
		s.deps.Log.Warn("failed to build marker thumbnail", "error", err)
	} else {
		key := prefix + "_thumb"
		if _, err := s.deps.Blobs.Upload(ctx, key, "image/jpeg", bytes.NewReader(thumb)); err != nil {
			s.deps.Log.Warn("failed to upload marker thumbnail", "key", key, "error", err)
		} else {
			c.Refs.Thumbnail = key
			uploaded = append(uploaded, key)
		}
	}

	if !d.Video.empty() {
		videoData, err := s.read(ctx, d.Video)
		if err != nil {
			cleanup()
			return core.Campaign{}, s.fail(MsgAddFailed, err)
		}
		c.Refs.Video = prefix + "_video"
		c.VideoURL, err = s.deps.Blobs.Upload(ctx, c.Refs.Video, contentTypeOf(d.Video, videoData), bytes.NewReader(videoData))
		if err != nil {
			cleanup()
			return core.Campaign{}, s.fail(MsgAddFailed, err)
		}
		uploaded = append(uploaded, c.Refs.Video)
		c.Type = core.MediaVideo
	}

	id, err := s.deps.Store.CreateDocument(&c)
	if err != nil {
		cleanup()
		return core.Campaign{}, s.fail(MsgAddFailed, err)
	}
	c.ID = id
	s.cache.Put(c)
	s.deps.Log.Info("campaign added", "id", id, "owner", u.ID, "type", c.Type)
	return c, nil
}

// Remove deletes a campaign owned by the current user along with its media.
func (s *Service) Remove(ctx context.Context, id string) error {
	defer s.begin()()

	u, err := s.deps.Users.CurrentUser(ctx)
	if err != nil {
		return s.fail(MsgRemoveFailed, err)
	}
	c, err := s.Find(id)
	if err != nil || c.OwnerID != u.ID {
		return s.fail(MsgRemoveFailed, core.ErrUnauthorized)
	}

	for _, key := range c.Refs.Keys() {
		if err := s.deps.Blobs.Delete(ctx, key); err != nil {
			return s.fail(MsgRemoveFailed, err)
		}
	}
	if err := s.deps.Store.DeleteDocument(id); err != nil {
		return s.fail(MsgRemoveFailed, err)
	}
	s.cache.Delete(id)

	s.mu.Lock()
	if s.active != nil && s.active.ID == id {
		s.active = nil
	}
	s.mu.Unlock()

	s.deps.Log.Info("campaign removed", "id", id, "owner", u.ID)
	return nil
}

// SetActive selects the campaign the viewer and scanner work against. nil
// clears the selection.
func (s *Service) SetActive(c *core.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.active = nil
		return
	}
	cp := *c
	s.active = &cp
}

// SetActiveID selects a campaign from the collection by id.
func (s *Service) SetActiveID(id string) (core.Campaign, error) {
	c, ok := s.cache.Get(id)
	if !ok {
		return core.Campaign{}, fmt.Errorf("campaign %s: %w", id, core.ErrNotFound)
	}
	s.SetActive(&c)
	return c, nil
}

// Active returns a copy of the active campaign, or nil.
func (s *Service) Active() *core.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	cp := *s.active
	return &cp
}

func (s *Service) read(ctx context.Context, m *Media) ([]byte, error) {
	if m.Reader != nil {
		data, err := io.ReadAll(m.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		return data, nil
	}
	data, err := s.deps.Fetcher.Fetch(ctx, m.URI)
	if err != nil {
		return nil, &core.ResourceLoadError{URI: m.URI, Err: err}
	}
	return data, nil
}

func contentTypeOf(m *Media, data []byte) string {
	if m.ContentType != "" {
		return m.ContentType
	}
	return media.ContentType(data)
}

func thumbnail(img image.Image) ([]byte, error) {
	thumb := imaging.Resize(img, ThumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
