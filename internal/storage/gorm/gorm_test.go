package gormstorage

import (
	"errors"
	"testing"
	"time"

	"github.com/markercast/engine/internal/database"
	"github.com/markercast/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestCreateDocument_AssignsIDAndTime(t *testing.T) {
	b := newTestBackend(t)

	c := &core.Campaign{Title: "Poster", MarkerImage: "m.png", OwnerID: "u1", Type: core.MediaImage}
	id, err := b.CreateDocument(c)
	require.NoError(t, err)

	assert.NotEmpty(t, id)
	assert.Equal(t, id, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := b.GetDocument(id)
	require.NoError(t, err)
	assert.Equal(t, "Poster", got.Title)
	assert.Equal(t, "u1", got.OwnerID)
}

func TestListDocuments_FilteredAndNewestFirst(t *testing.T) {
	b := newTestBackend(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, owner := range []string{"u1", "u2", "u1"} {
		_, err := b.CreateDocument(&core.Campaign{
			ID:        string(rune('a' + i)),
			OwnerID:   owner,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	list, err := b.ListDocuments("u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	all, err := b.ListDocuments("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteDocument(t *testing.T) {
	b := newTestBackend(t)

	id, err := b.CreateDocument(&core.Campaign{Title: "x"})
	require.NoError(t, err)

	require.NoError(t, b.DeleteDocument(id))

	_, err = b.GetDocument(id)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	err = b.DeleteDocument(id)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestRecordAndListScans(t *testing.T) {
	b := newTestBackend(t)

	s1 := &core.ScanRecord{CampaignID: "c1", ScannedID: "c1", Confirmed: true}
	require.NoError(t, b.RecordScan(s1))
	assert.NotEmpty(t, s1.ID)

	s2 := &core.ScanRecord{CampaignID: "c1", ScannedID: "c9", Reason: "mismatch", Time: s1.Time.Add(time.Second)}
	require.NoError(t, b.RecordScan(s2))
	require.NoError(t, b.RecordScan(&core.ScanRecord{CampaignID: "other"}))

	scans, err := b.ListScans("c1")
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.True(t, scans[0].Confirmed)
	assert.Equal(t, "mismatch", scans[1].Reason)
}
