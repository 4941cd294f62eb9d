package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-scout/internal/driver"
	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/pipeline"
	"github.com/sells-group/tender-scout/internal/resilience"
	"github.com/sells-group/tender-scout/internal/source"
	"github.com/sells-group/tender-scout/internal/store"
)

// nopDriver satisfies driver.PageDriver; fake adapters never touch it.
type nopDriver struct{}

func (nopDriver) Navigate(context.Context, string) error       { return nil }
func (nopDriver) Fill(context.Context, string, string) error   { return nil }
func (nopDriver) Click(context.Context, string) error          { return nil }
func (nopDriver) WaitVisible(context.Context, string) error    { return nil }
func (nopDriver) Text(context.Context, string) (string, error) { return "", nil }
func (nopDriver) HTML(context.Context, string) (string, error) { return "", nil }
func (nopDriver) CurrentURL(context.Context) (string, error)   { return "", nil }
func (nopDriver) Close() error                                 { return nil }

// fakeAdapter serves scripted pages per keyword.
type fakeAdapter struct {
	mu            sync.Mutex
	requiresLogin bool
	loginErr      error
	loginCalls    int
	searches      []string
	pages         map[string][]*source.Page
	currentKw     string
	pageIdx       int
	nextPageCalls int
	failNextOnce  error
	blockAfter    int // block NextPage once this many pages were served (0 = never)
}

func (f *fakeAdapter) Name() string        { return "fake" }
func (f *fakeAdapter) RequiresLogin() bool { return f.requiresLogin }

func (f *fakeAdapter) Login(_ context.Context, _ source.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginErr
}

func (f *fakeAdapter) Search(_ context.Context, keyword string, _ source.Filters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, keyword)
	f.currentKw = keyword
	f.pageIdx = 0
	return nil
}

func (f *fakeAdapter) NextPage(ctx context.Context) (*source.Page, error) {
	f.mu.Lock()
	f.nextPageCalls++
	if err := f.failNextOnce; err != nil {
		f.failNextOnce = nil
		f.mu.Unlock()
		return nil, err
	}
	block := f.blockAfter > 0 && f.pageIdx >= f.blockAfter
	pages := f.pages[f.currentKw]
	idx := f.pageIdx
	if idx < len(pages) {
		f.pageIdx++
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if idx >= len(pages) {
		if idx == 0 {
			return nil, source.ErrNoResults
		}
		return nil, source.ErrNoMorePages
	}
	return pages[idx], nil
}

func (f *fakeAdapter) ExtractRecord(_ context.Context, row source.Row) (pipeline.RawRecord, error) {
	return pipeline.RawRecord{
		Title:     row.Fields["title"],
		Reference: row.Fields["reference"],
		Country:   row.Fields["country"],
		URL:       row.Fields["url"],
	}, nil
}

func makeRow(idx int, ref string) source.Row {
	return source.Row{
		Index: idx,
		Fields: map[string]string{
			"title":     "Consulting services " + ref,
			"reference": ref,
			"country":   "Nigeria",
			"url":       "https://example.org/notice/" + ref,
		},
	}
}

func makePage(number, rows int, prefix string) *source.Page {
	p := &source.Page{Number: number}
	for i := 0; i < rows; i++ {
		p.Rows = append(p.Rows, makeRow(i, fmt.Sprintf("%s-p%d-r%d", prefix, number, i)))
	}
	return p
}

func newTestOrchestrator(t *testing.T, fa *fakeAdapter) (*Orchestrator, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := source.NewRegistry()
	require.NoError(t, reg.Register("fake", func(driver.PageDriver) source.Adapter { return fa }))

	o := New(Options{
		Store:    st,
		Registry: reg,
		NewDriver: func(context.Context) (driver.PageDriver, error) {
			return nopDriver{}, nil
		},
		Credentials: func(string) (source.Credentials, error) {
			return source.Credentials{Username: "svc", Password: "pw"}, nil
		},
		Retry: resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
	})
	return o, st
}

func testProfile(keywords ...string) model.Profile {
	return model.Profile{
		Keywords:           keywords,
		MaxPages:           10,
		RequestDelay:       time.Millisecond,
		CheckpointInterval: 5,
	}
}

func TestSchedule_RunsToCompletion(t *testing.T) {
	fa := &fakeAdapter{pages: map[string][]*source.Page{
		"consulting": {makePage(1, 3, "c"), makePage(2, 3, "c")},
		"training":   {makePage(1, 3, "t")},
	}}
	o, st := newTestOrchestrator(t, fa)
	ctx := context.Background()

	sess, err := o.Schedule(ctx, "fake", testProfile("consulting", "training"))
	require.NoError(t, err)
	assert.Equal(t, model.SessionPending, sess.Status)
	o.Wait()

	got, err := o.GetStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.Equal(t, 3, got.PagesProcessed)
	assert.Equal(t, 9, got.RecordsFound)
	assert.Equal(t, 9, got.RecordsPersisted)
	assert.Empty(t, got.Errors)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, []string{"consulting", "training"}, fa.searches)

	tenders, err := st.ListTenders(ctx, store.TenderFilter{Source: "fake"})
	require.NoError(t, err)
	assert.Len(t, tenders, 9)

	// Interval 5 over 9 records: one interval checkpoint plus the final flush.
	cp, err := st.LatestCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.Seq)
	assert.Equal(t, 9, cp.Processed)
}

func TestSchedule_UnknownSource(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeAdapter{})

	_, err := o.Schedule(context.Background(), "nosuch", testProfile("x"))
	var cfgErr *resilience.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSchedule_InvalidProfile(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeAdapter{})

	_, err := o.Schedule(context.Background(), "fake", model.Profile{})
	var cfgErr *resilience.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSchedule_RejectsSecondSessionForSource(t *testing.T) {
	fa := &fakeAdapter{
		pages:      map[string][]*source.Page{"consulting": {makePage(1, 2, "c")}},
		blockAfter: 1,
	}
	o, _ := newTestOrchestrator(t, fa)
	ctx := context.Background()

	first, err := o.Schedule(ctx, "fake", testProfile("consulting"))
	require.NoError(t, err)

	// The runner is now blocked inside NextPage; the source is busy.
	require.Eventually(t, func() bool {
		got, err := o.GetStatus(ctx, first.ID)
		return err == nil && got.Status == model.SessionRunning
	}, 2*time.Second, 5*time.Millisecond)

	_, err = o.Schedule(ctx, "fake", testProfile("consulting"))
	var busy *AlreadyRunningError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, first.ID, busy.SessionID)

	require.NoError(t, o.Cancel(ctx, first.ID))
	o.Wait()

	// Terminal sessions free the source.
	fa.blockAfter = 0
	_, err = o.Schedule(ctx, "fake", testProfile("consulting"))
	assert.NoError(t, err)
	o.Wait()
}

func TestCancel_MidSession(t *testing.T) {
	fa := &fakeAdapter{
		pages: map[string][]*source.Page{
			"consulting": {makePage(1, 5, "c"), makePage(2, 5, "c"), makePage(3, 5, "c")},
		},
		blockAfter: 1, // serve page 1, then hang until cancelled
	}
	o, st := newTestOrchestrator(t, fa)
	ctx := context.Background()

	sess, err := o.Schedule(ctx, "fake", testProfile("consulting"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := o.GetStatus(ctx, sess.ID)
		return err == nil && got.RecordsPersisted == 5
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, o.Cancel(ctx, sess.ID))
	o.Wait()

	got, err := o.GetStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, got.Status)
	assert.Equal(t, 5, got.RecordsPersisted, "partial results survive cancellation")
	assert.NotNil(t, got.CompletedAt)

	// Cancellation cut a final checkpoint so the session can resume.
	cp, err := st.LatestCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 5, cp.Processed)
	assert.Equal(t, 1, cp.Page)

	// A second cancel of the now-terminal session errors.
	assert.Error(t, o.Cancel(ctx, sess.ID))
}

func TestRun_BadRowDoesNotAbortPage(t *testing.T) {
	page := makePage(1, 0, "d")
	for i := 0; i < 20; i++ {
		if i == 6 {
			// No title, reference, or URL: normalization must reject it.
			page.Rows = append(page.Rows, source.Row{Index: i, Fields: map[string]string{}})
			continue
		}
		page.Rows = append(page.Rows, makeRow(i, fmt.Sprintf("d-%d", i)))
	}
	fa := &fakeAdapter{pages: map[string][]*source.Page{"consulting": {page}}}
	o, st := newTestOrchestrator(t, fa)
	ctx := context.Background()

	sess, err := o.Schedule(ctx, "fake", testProfile("consulting"))
	require.NoError(t, err)
	o.Wait()

	got, err := o.GetStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.Equal(t, 19, got.RecordsPersisted)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, model.ErrExtraction, got.Errors[0].Type)
	assert.Equal(t, "page 1 row 6", got.Errors[0].Context)

	tenders, err := st.ListTenders(ctx, store.TenderFilter{Source: "fake"})
	require.NoError(t, err)
	assert.Len(t, tenders, 19)

	// The checkpoint covering the page carries the error snapshot.
	cp, err := st.LatestCheckpoint(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Len(t, cp.Errors, 1)
	assert.Equal(t, "page 1 row 6", cp.Errors[0].Context)
}

func TestRun_AuthFailureIsFatalAndNotRetried(t *testing.T) {
	fa := &fakeAdapter{
		requiresLogin: true,
		loginErr:      &resilience.AuthenticationError{Err: fmt.Errorf("bad credentials")},
		pages:         map[string][]*source.Page{"consulting": {makePage(1, 2, "c")}},
	}
	o, _ := newTestOrchestrator(t, fa)
	ctx := context.Background()

	sess, err := o.Schedule(ctx, "fake", testProfile("consulting"))
	require.NoError(t, err)
	o.Wait()

	got, err := o.GetStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, got.Status)
	assert.Equal(t, 1, fa.loginCalls, "fatal errors are not retried")
	require.NotEmpty(t, got.Errors)
	assert.Equal(t, model.ErrAuthentication, got.Errors[0].Type)
	assert.Equal(t, 0, got.RecordsPersisted)
}

func TestRun_TransientNextPageRetried(t *testing.T) {
	fa := &fakeAdapter{
		pages:        map[string][]*source.Page{"consulting": {makePage(1, 2, "c")}},
		failNextOnce: resilience.NewTransientError(fmt.Errorf("gateway hiccup"), 502),
	}
	o, _ := newTestOrchestrator(t, fa)
	ctx := context.Background()

	sess, err := o.Schedule(ctx, "fake", testProfile("consulting"))
	require.NoError(t, err)
	o.Wait()

	got, err := o.GetStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.Equal(t, 2, got.RecordsPersisted)
	assert.Empty(t, got.Errors, "retried failures leave no scar")
}

func TestResume_SkipsCheckpointedWork(t *testing.T) {
	fa := &fakeAdapter{pages: map[string][]*source.Page{
		"alpha": {makePage(1, 2, "a"), makePage(2, 2, "a")},
		"beta":  {makePage(1, 2, "b"), makePage(2, 2, "b"), makePage(3, 2, "b")},
		"gamma": {makePage(1, 2, "g")},
	}}
	o, st := newTestOrchestrator(t, fa)
	ctx := context.Background()

	// A cancelled session left a checkpoint at keyword "beta", page 2.
	prev := &model.ScrapeSession{
		ID:        "prev-session",
		Source:    "fake",
		Status:    model.SessionCancelled,
		StartedAt: time.Now().UTC().Add(-time.Hour),
		Profile:   testProfile("alpha", "beta", "gamma"),
	}
	require.NoError(t, st.SaveSession(ctx, prev))
	require.NoError(t, st.SaveCheckpoint(ctx, &model.Checkpoint{
		ID:           "cp-1",
		SessionID:    prev.ID,
		Seq:          2,
		KeywordIndex: 1,
		Page:         2,
		Processed:    8,
		CreatedAt:    time.Now().UTC(),
	}))

	resumed, err := o.Resume(ctx, prev.ID)
	require.NoError(t, err)
	assert.NotEqual(t, prev.ID, resumed.ID, "resume starts a fresh session")
	o.Wait()

	got, err := o.GetStatus(ctx, resumed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)

	// alpha was fully checkpointed; beta restarts past page 2.
	assert.Equal(t, []string{"beta", "gamma"}, fa.searches)
	tenders, err := st.ListTenders(ctx, store.TenderFilter{Source: "fake"})
	require.NoError(t, err)
	assert.Len(t, tenders, 4, "beta page 3 plus gamma page 1")
}

func TestResume_CompletedSessionRejected(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()

	done := &model.ScrapeSession{
		ID:        "done",
		Source:    "fake",
		Status:    model.SessionCompleted,
		StartedAt: time.Now().UTC(),
		Profile:   testProfile("x"),
	}
	require.NoError(t, st.SaveSession(ctx, done))

	_, err := o.Resume(ctx, "done")
	assert.Error(t, err)
}

func TestGetStatus_Missing(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeAdapter{})

	_, err := o.GetStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMetrics_AfterRuns(t *testing.T) {
	fa := &fakeAdapter{pages: map[string][]*source.Page{"consulting": {makePage(1, 4, "m")}}}
	o, _ := newTestOrchestrator(t, fa)
	ctx := context.Background()

	_, err := o.Schedule(ctx, "fake", testProfile("consulting"))
	require.NoError(t, err)
	o.Wait()

	snap, err := o.Metrics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SessionsTotal)
	assert.Equal(t, 1, snap.SessionsCompleted)
	assert.Equal(t, 4, snap.RecordsPersisted)
}
