package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-scout/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTender(ref string, extractedAt time.Time) model.TenderRecord {
	return model.TenderRecord{
		Title:          "Management Consulting Services",
		Reference:      ref,
		Organization:   "UNDP",
		Country:        "Nigeria",
		URL:            "https://www.ungm.org/Public/Notice/12345",
		Source:         "ungm",
		ExtractedAt:    extractedAt,
		RelevanceScore: 70,
		PriorityLevel:  model.PriorityHigh,
	}
}

func TestSQLite_UpsertTender_Insert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.UpsertTender(ctx, sampleTender("RFP-1", time.Now().UTC()))
	require.NoError(t, err)
	assert.True(t, created)

	got, err := s.GetTender(ctx, "ungm", "RFP-1")
	require.NoError(t, err)
	assert.Equal(t, "Management Consulting Services", got.Title)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSQLite_UpsertTender_MergePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleTender("RFP-1", mkTime("2025-01-01T00:00:00Z"))
	created, err := s.UpsertTender(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	stored, err := s.GetTender(ctx, "ungm", "RFP-1")
	require.NoError(t, err)

	second := sampleTender("RFP-1", mkTime("2025-02-01T00:00:00Z"))
	second.Title = "Management Consulting Services (amended)"
	second.Description = "Scope extended to three regions."
	created, err = s.UpsertTender(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetTender(ctx, "ungm", "RFP-1")
	require.NoError(t, err)
	assert.Equal(t, "Management Consulting Services (amended)", got.Title)
	assert.Equal(t, "Scope extended to three regions.", got.Description)
	assert.Equal(t, stored.CreatedAt, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(stored.UpdatedAt))
}

func TestSQLite_UpsertTender_URLIdentityFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleTender("", time.Now().UTC())
	rec.URL = "https://www.dgmarket.com/tenders/9917?utm_source=feed"
	rec.Source = "dgmarket"
	created, err := s.UpsertTender(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	// Same notice, different volatile query string: must merge, not duplicate.
	again := rec
	again.URL = "https://www.DGMarket.com/tenders/9917#details"
	again.ExtractedAt = time.Now().UTC().Add(time.Hour)
	created, err = s.UpsertTender(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)

	list, err := s.ListTenders(ctx, TenderFilter{Source: "dgmarket"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := s.GetTenderByURL(ctx, "dgmarket", "https://www.dgmarket.com/tenders/9917")
	require.NoError(t, err)
	assert.Equal(t, "Management Consulting Services", got.Title)
}

func TestSQLite_UpsertTender_NoIdentity(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertTender(context.Background(), model.TenderRecord{Source: "ungm", Title: "orphan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no identity")
}

func TestSQLite_GetTender_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTender(context.Background(), "ungm", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListTenders_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	high := sampleTender("RFP-1", now)
	mid := sampleTender("RFP-2", now)
	mid.Country = "Ghana"
	mid.RelevanceScore = 55
	mid.PriorityLevel = model.PriorityMedium
	low := sampleTender("RFP-3", now)
	low.RelevanceScore = 10
	low.PriorityLevel = model.PriorityVeryLow

	for _, rec := range []model.TenderRecord{low, mid, high} {
		_, err := s.UpsertTender(ctx, rec)
		require.NoError(t, err)
	}

	all, err := s.ListTenders(ctx, TenderFilter{Source: "ungm"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "RFP-1", all[0].Reference, "ordered by score descending")

	ghana, err := s.ListTenders(ctx, TenderFilter{Country: "Ghana"})
	require.NoError(t, err)
	require.Len(t, ghana, 1)
	assert.Equal(t, "RFP-2", ghana[0].Reference)

	scored, err := s.ListTenders(ctx, TenderFilter{MinScore: 50})
	require.NoError(t, err)
	assert.Len(t, scored, 2)

	priority, err := s.ListTenders(ctx, TenderFilter{Priority: model.PriorityHigh})
	require.NoError(t, err)
	assert.Len(t, priority, 1)

	limited, err := s.ListTenders(ctx, TenderFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "RFP-2", limited[0].Reference)
}

func newSession(source string, status model.SessionStatus) *model.ScrapeSession {
	return &model.ScrapeSession{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    status,
		StartedAt: time.Now().UTC(),
		Profile:   model.Profile{Keywords: []string{"consulting"}},
	}
}

func TestSQLite_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("ungm", model.SessionPending)
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPending, got.Status)
	assert.Equal(t, []string{"consulting"}, got.Profile.Keywords)

	// Full-row replace on save.
	sess.Status = model.SessionRunning
	sess.PagesProcessed = 3
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, got.Status)
	assert.Equal(t, 3, got.PagesProcessed)

	_, err = s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ActiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.ActiveSession(ctx, "ungm")
	require.NoError(t, err)
	assert.Nil(t, active, "idle source has no active session")

	done := newSession("ungm", model.SessionCompleted)
	require.NoError(t, s.SaveSession(ctx, done))
	running := newSession("ungm", model.SessionRunning)
	require.NoError(t, s.SaveSession(ctx, running))
	other := newSession("dgmarket", model.SessionRunning)
	require.NoError(t, s.SaveSession(ctx, other))

	active, err = s.ActiveSession(ctx, "ungm")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, running.ID, active.ID)
}

func TestSQLite_ListSessions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, newSession("ungm", model.SessionCompleted)))
	require.NoError(t, s.SaveSession(ctx, newSession("ungm", model.SessionFailed)))
	require.NoError(t, s.SaveSession(ctx, newSession("dgmarket", model.SessionCompleted)))

	ungm, err := s.ListSessions(ctx, SessionFilter{Source: "ungm"})
	require.NoError(t, err)
	assert.Len(t, ungm, 2)

	completed, err := s.ListSessions(ctx, SessionFilter{Status: model.SessionCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestSQLite_Checkpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := newSession("ungm", model.SessionRunning)
	require.NoError(t, s.SaveSession(ctx, sess))

	latest, err := s.LatestCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "no checkpoints yet")

	for seq := 1; seq <= 3; seq++ {
		cp := &model.Checkpoint{
			ID:           uuid.New().String(),
			SessionID:    sess.ID,
			Seq:          seq,
			KeywordIndex: seq - 1,
			Page:         seq * 2,
			Processed:    seq * 25,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, s.SaveCheckpoint(ctx, cp))
	}

	latest, err = s.LatestCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Seq)
	assert.Equal(t, 2, latest.KeywordIndex)
	assert.Equal(t, 6, latest.Page)
	assert.Equal(t, 75, latest.Processed)
}
