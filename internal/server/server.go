// Package server exposes campaign management and scan confirmation over
// HTTP. Every route except the health and status probes needs a bearer JWT.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/markercast/engine/internal/auth"
	"github.com/markercast/engine/internal/campaign"
	"github.com/markercast/engine/internal/monitor"
	"github.com/markercast/engine/internal/qr"
	"github.com/markercast/engine/pkg/core"
)

// DefaultMaxUpload bounds a campaign upload form.
const DefaultMaxUpload = 64 << 20

// Campaigns is the campaign service as seen by the handlers.
type Campaigns interface {
	Fetch(ctx context.Context) ([]core.Campaign, error)
	Add(ctx context.Context, d campaign.Draft) (core.Campaign, error)
	Remove(ctx context.Context, id string) error
	Find(id string) (core.Campaign, error)
}

// Verifier turns a bearer token into a user. auth.Issuer satisfies it.
type Verifier interface {
	Verify(token string) (auth.User, error)
}

// ScanStore persists scan outcomes.
type ScanStore interface {
	RecordScan(s *core.ScanRecord) error
}

// StatusSource reports engine status for GET /status.
type StatusSource interface {
	Snapshot() monitor.Status
}

// Options configure a Server. Campaigns and Auth are required.
type Options struct {
	Campaigns Campaigns
	Auth      Verifier
	Scans     ScanStore
	Status    StatusSource
	QRSize    int
	MaxUpload int64
	Log       *slog.Logger
}

// Server routes HTTP requests to the campaign service.
type Server struct {
	opts   Options
	router *mux.Router
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Campaigns == nil || opts.Auth == nil {
		return nil, errors.New("server needs a campaign service and a token verifier")
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	s := &Server{opts: opts, router: mux.NewRouter()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api := s.router.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/campaigns", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/campaigns", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/campaigns/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/campaigns/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/campaigns/{id}/qr.png", s.handleQR).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.opts.Log.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ParseBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing auth")
			return
		}
		u, err := s.opts.Auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Status == nil {
		writeError(w, http.StatusNotFound, "status not available")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Status.Snapshot())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.opts.Campaigns.Fetch(r.Context())
	if err != nil {
		s.fail(w, r, err, campaign.MsgFetchFailed)
		return
	}
	out := make([]campaignJSON, len(list))
	for i := range list {
		out[i] = toJSON(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.owned(r)
	if err != nil {
		s.fail(w, r, err, "Failed to load campaign")
		return
	}
	writeJSON(w, http.StatusOK, toJSON(&c))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	if err := r.ParseMultipartForm(s.opts.MaxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	draft := campaign.Draft{Title: r.FormValue("title")}

	marker, err := formMedia(r, "marker")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if marker != nil {
		draft.Marker = *marker
		defer closeMedia(marker)
	}
	video, err := formMedia(r, "video")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if video != nil {
		draft.Video = video
		defer closeMedia(video)
	}

	c, err := s.opts.Campaigns.Add(r.Context(), draft)
	if err != nil {
		s.fail(w, r, err, campaign.MsgAddFailed)
		return
	}
	w.Header().Set("Location", "/campaigns/"+c.ID)
	writeJSON(w, http.StatusCreated, toJSON(&c))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Campaigns.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err, campaign.MsgRemoveFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	c, err := s.owned(r)
	if err != nil {
		s.fail(w, r, err, "Failed to generate QR code")
		return
	}
	size := s.opts.QRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			writeError(w, http.StatusBadRequest, "size must be between 64 and 2048")
			return
		}
		size = n
	}
	payload, err := qr.Encode(&c)
	if err != nil {
		s.fail(w, r, err, "Failed to generate QR code")
		return
	}
	png, err := qr.Generate(payload, size)
	if err != nil {
		s.fail(w, r, err, "Failed to generate QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", qr.Filename(c.ID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type scanResponse struct {
	Confirmed bool            `json:"confirmed"`
	Error     string          `json:"error,omitempty"`
	Payload   *core.QRPayload `json:"payload,omitempty"`
}

// handleScan checks a decoded QR string against ?active=<campaign id>.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	active := r.URL.Query().Get("active")
	p, err := qr.Check(string(raw), active)

	rec := core.ScanRecord{
		ID:         uuid.NewString(),
		CampaignID: active,
		ScannedID:  p.ID,
		Confirmed:  err == nil,
		Time:       time.Now().UTC(),
	}
	resp := scanResponse{Confirmed: err == nil}
	if err != nil {
		rec.Reason = err.Error()
		resp.Error = scanMessage(err)
	}
	if p.ID != "" {
		resp.Payload = &p
	}
	if s.opts.Scans != nil {
		if rerr := s.opts.Scans.RecordScan(&rec); rerr != nil {
			s.opts.Log.WarnContext(r.Context(), "failed to record scan", "error", rerr)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func scanMessage(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Msg
	}
	return err.Error()
}

// owned loads the {id} campaign and checks the caller owns it.
func (s *Server) owned(r *http.Request) (core.Campaign, error) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		return core.Campaign{}, core.ErrUnauthenticated
	}
	c, err := s.opts.Campaigns.Find(mux.Vars(r)["id"])
	if err != nil {
		return core.Campaign{}, err
	}
	if c.OwnerID != u.ID {
		return core.Campaign{}, core.ErrUnauthorized
	}
	return c, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Msg
	}
	if status >= http.StatusInternalServerError {
		s.opts.Log.ErrorContext(r.Context(), msg, "error", err)
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	var verr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// formMedia returns the named file part, or nil when it is absent.
func formMedia(r *http.Request, name string) (*campaign.Media, error) {
	f, hdr, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload", name)
	}
	return &campaign.Media{Reader: f, ContentType: hdr.Header.Get("Content-Type")}, nil
}

func closeMedia(m *campaign.Media) {
	if f, ok := m.Reader.(multipart.File); ok {
		f.Close()
	}
}

type campaignJSON struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	MarkerImage string         `json:"markerImage"`
	VideoURL    string         `json:"videoUrl,omitempty"`
	Type        core.MediaType `json:"type"`
	CreatedAt   time.Time      `json:"createdAt"`
	OwnerID     string         `json:"ownerId"`
}

func toJSON(c *core.Campaign) campaignJSON {
	return campaignJSON{
		ID:          c.ID,
		Title:       c.Title,
		MarkerImage: c.MarkerImage,
		VideoURL:    c.VideoURL,
		Type:        c.Type,
		CreatedAt:   c.CreatedAt,
		OwnerID:     c.OwnerID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
