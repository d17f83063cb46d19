package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/markercast/engine/internal/auth"
	"github.com/markercast/engine/internal/blob"
	"github.com/markercast/engine/internal/campaign"
	"github.com/markercast/engine/internal/config"
	"github.com/markercast/engine/internal/monitor"
	"github.com/markercast/engine/internal/qr"
	"github.com/markercast/engine/internal/storage/memory"
	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanLog struct {
	mu      sync.Mutex
	records []core.ScanRecord
}

func (l *scanLog) RecordScan(s *core.ScanRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, *s)
	return nil
}

type staticStatus struct{}

func (staticStatus) Snapshot() monitor.Status { return monitor.Status{Campaigns: 7} }

type harness struct {
	srv    *httptest.Server
	issuer *auth.Issuer
	scans  *scanLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	blobs, err := blob.NewLocal(t.TempDir(), "http://media.test")
	require.NoError(t, err)
	svc, err := campaign.NewService(campaign.Deps{
		Store: memory.New(config.MemoryConfig{}),
		Blobs: blobs,
		Users: &auth.Session{},
	})
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(config.AuthConfig{Secret: "test-secret", Issuer: "markercast", TTL: time.Hour})
	require.NoError(t, err)

	h := &harness{issuer: issuer, scans: &scanLog{}}
	s, err := New(Options{Campaigns: svc, Auth: issuer, Scans: h.scans, Status: staticStatus{}})
	require.NoError(t, err)
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := h.issuer.Sign(auth.User{ID: uid})
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func markerPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 0; i < 64; i++ {
		img.Set(i, i, color.White)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadForm(t *testing.T, title string, marker, video []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", title))
	if marker != nil {
		fw, err := mw.CreateFormFile("marker", "marker.png")
		require.NoError(t, err)
		_, err = fw.Write(marker)
		require.NoError(t, err)
	}
	if video != nil {
		fw, err := mw.CreateFormFile("video", "clip.mp4")
		require.NoError(t, err)
		_, err = fw.Write(video)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (h *harness) create(t *testing.T, token, title string, withVideo bool) campaignJSON {
	t.Helper()
	var video []byte
	if withVideo {
		video = []byte("mp4 bytes")
	}
	body, ct := uploadForm(t, title, markerPNG(t), video)
	resp := h.do(t, http.MethodPost, "/campaigns", token, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var c campaignJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
	return c
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealthAndStatus(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/status", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st monitor.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 7, st.Campaigns)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/campaigns", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing auth", decodeError(t, resp))

	resp = h.do(t, http.MethodGet, "/campaigns", "not-a-jwt", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", decodeError(t, resp))
}

func TestCreateListDelete(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, "u1")

	first := h.create(t, tok, "Poster", false)
	second := h.create(t, tok, "Trailer", true)

	assert.Equal(t, core.MediaImage, first.Type)
	assert.Equal(t, core.MediaVideo, second.Type)
	assert.True(t, strings.HasPrefix(second.VideoURL, "http://media.test/campaigns/u1/"))

	resp := h.do(t, http.MethodGet, "/campaigns", tok, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []campaignJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	resp = h.do(t, http.MethodDelete, "/campaigns/"+first.ID, tok, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/campaigns/"+first.ID, tok, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, "u1")

	body, ct := uploadForm(t, "No marker", nil, nil)
	resp := h.do(t, http.MethodPost, "/campaigns", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "marker image is required", decodeError(t, resp))

	resp = h.do(t, http.MethodPost, "/campaigns", tok, bytes.NewBufferString("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForeignCampaign(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, h.token(t, "owner"), "Mine", false)
	other := h.token(t, "intruder")

	resp := h.do(t, http.MethodDelete, "/campaigns/"+c.ID, other, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, campaign.MsgRemoveFailed, decodeError(t, resp))

	resp = h.do(t, http.MethodGet, "/campaigns/"+c.ID+"/qr.png", other, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/campaigns/unknown", other, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestQRCode(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, "u1")
	c := h.create(t, tok, "Trailer", true)

	resp := h.do(t, http.MethodGet, "/campaigns/"+c.ID+"/qr.png?size=300", tok, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), qr.Filename(c.ID))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())

	raw, err := qr.DecodeImage(img)
	require.NoError(t, err)
	p, err := qr.Check(raw, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.VideoURL, p.VideoURL)

	resp = h.do(t, http.MethodGet, "/campaigns/"+c.ID+"/qr.png?size=5", tok, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScan(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, "u1")
	valid := `{"id":"c1","markerImage":"https://x/m.png","videoUrl":"https://x/v.mp4"}`

	tests := []struct {
		name      string
		active    string
		body      string
		confirmed bool
		msg       string
	}{
		{"match", "c1", valid, true, ""},
		{"mismatch", "c2", valid, false, "QR code does not match the active campaign"},
		{"no active", "", valid, false, "No active campaign"},
		{"not json", "c1", "hello", false, qr.MsgInvalidFormat},
		{"array", "c1", "[]", false, qr.MsgInvalidFormat},
		{"missing id", "c1", `{"markerImage":"a","videoUrl":"b"}`, false, qr.MsgInvalidCampaignID},
		{"empty video", "c1", `{"id":"c1","markerImage":"a","videoUrl":""}`, false, qr.MsgInvalidVideoURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, "/scan?active="+tt.active, tok, bytes.NewBufferString(tt.body), "text/plain")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var out scanResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, tt.confirmed, out.Confirmed)
			assert.Equal(t, tt.msg, out.Error)
		})
	}

	h.scans.mu.Lock()
	defer h.scans.mu.Unlock()
	require.Len(t, h.scans.records, len(tests))
	assert.True(t, h.scans.records[0].Confirmed)
	assert.Equal(t, "c1", h.scans.records[0].ScannedID)
	assert.False(t, h.scans.records[1].Confirmed)
	assert.NotEmpty(t, h.scans.records[1].Reason)
}
