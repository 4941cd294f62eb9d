package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/pipeline"
	"github.com/sells-group/tender-scout/internal/resilience"
	"github.com/sells-group/tender-scout/internal/scorer"
	"github.com/sells-group/tender-scout/internal/source"
)

// runner drives one session end to end: adapter, pipeline, scorer, writer.
// It owns the session struct; all reads from outside go through snapshot().
type runner struct {
	orc    *Orchestrator
	sess   *model.ScrapeSession
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	// Resume position; zero values mean a fresh start.
	startKeyword int
	startPage    int
	resumedFrom  *model.Checkpoint

	// Current position, for the final checkpoint. Guarded by orc.mu.
	posKeyword int
	posPage    int

	// Set once in scrape; recordError mirrors errors into it so each
	// checkpoint carries the errors seen since the previous one.
	writer *checkpointWriter
}

func (r *runner) snapshot() *model.ScrapeSession {
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	return r.snapshotLocked()
}

// snapshotLocked requires orc.mu to be held.
func (r *runner) snapshotLocked() *model.ScrapeSession {
	cp := *r.sess
	cp.Errors = append([]model.SessionError(nil), r.sess.Errors...)
	return &cp
}

func (r *runner) setStatus(status model.SessionStatus) bool {
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	if !r.sess.Status.CanTransition(status) {
		return false
	}
	r.sess.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		r.sess.CompletedAt = &now
	}
	return true
}

func (r *runner) recordError(errType model.ErrorType, context string, err error) {
	e := model.SessionError{
		Type:      errType,
		Context:   context,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	r.sess.Errors = append(r.sess.Errors, e)
	if r.writer != nil {
		r.writer.RecordError(e)
	}
}

func (r *runner) addCounts(pages, found, persisted int) {
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	r.sess.PagesProcessed += pages
	r.sess.RecordsFound += found
	r.sess.RecordsPersisted += persisted
}

func (r *runner) cancelled() bool {
	return r.ctx.Err() != nil
}

func (r *runner) save(ctx context.Context) {
	if err := r.orc.store.SaveSession(ctx, r.snapshot()); err != nil {
		r.log.Error("save session", zap.Error(err))
	}
}

// run executes the session and always leaves it in a terminal state. The
// passed context is the orchestrator's lifetime, not the scheduler's: a
// session outlives the call that scheduled it.
func (r *runner) run() {
	defer r.orc.finish(r.sess.ID)

	// Persistence of terminal state uses a context that survives cancel.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSave()

	if !r.setStatus(model.SessionRunning) {
		r.log.Warn("session not startable", zap.String("status", string(r.snapshot().Status)))
		return
	}
	r.save(saveCtx)
	r.log.Info("session started",
		zap.Strings("keywords", r.sess.Profile.Keywords),
		zap.Int("max_pages", r.sess.Profile.MaxPages),
	)

	err := r.scrape()

	switch {
	case r.cancelled():
		r.setStatus(model.SessionCancelled)
		r.log.Info("session cancelled", zap.Int("records_persisted", r.snapshot().RecordsPersisted))
	case err != nil:
		r.recordError(resilience.Classify(err), "session", err)
		r.setStatus(model.SessionFailed)
		r.log.Error("session failed", zap.Error(err))
	default:
		r.setStatus(model.SessionCompleted)
		snap := r.snapshot()
		r.log.Info("session completed",
			zap.Int("pages", snap.PagesProcessed),
			zap.Int("found", snap.RecordsFound),
			zap.Int("persisted", snap.RecordsPersisted),
			zap.Int("errors", len(snap.Errors)),
		)
	}
	r.save(saveCtx)
}

// scrape runs the full keyword/page/record loop. A returned error is fatal
// for the whole session; recoverable problems land in the error list.
func (r *runner) scrape() error {
	profile := r.sess.Profile

	drv, err := r.orc.newDriver(r.ctx)
	if err != nil {
		return &resilience.ConfigurationError{Err: eris.Wrap(err, "start page driver")}
	}
	defer drv.Close()

	adapter, err := r.orc.registry.New(r.sess.Source, drv)
	if err != nil {
		return &resilience.ConfigurationError{Err: err}
	}
	throttled := source.Throttle(adapter, profile.RequestDelay)

	if adapter.RequiresLogin() {
		if err := r.login(throttled); err != nil {
			return err
		}
	}

	writer := newCheckpointWriter(r.orc.store, r.sess.ID, profile.CheckpointInterval, r.log)
	writer.seed(r.resumedFrom)
	r.writer = writer

	for kwIdx := r.startKeyword; kwIdx < len(profile.Keywords); kwIdx++ {
		if r.cancelled() {
			break
		}
		keyword := profile.Keywords[kwIdx]
		if err := r.search(throttled, keyword); err != nil {
			if r.cancelled() {
				break
			}
			if resilience.IsFatal(err) {
				return err
			}
			// Exhausted retries on one keyword's search: move on.
			r.recordError(resilience.Classify(err), "search "+keyword, err)
			continue
		}

		if err := r.scrapePages(throttled, writer, kwIdx); err != nil {
			return err
		}
	}

	// Final checkpoint covers the tail batch, including on cancellation.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	if err := writer.Flush(flushCtx, r.lastKeyword(), r.lastPage()); err != nil {
		r.recordError(model.ErrPersistence, "final checkpoint", err)
	}
	return nil
}

func (r *runner) login(adapter source.Adapter) error {
	creds, err := r.orc.credentials(r.sess.Source)
	if err != nil {
		return &resilience.ConfigurationError{Err: err}
	}
	return resilience.Do(r.ctx, r.retryCfg("login"), func(ctx context.Context) error {
		return adapter.Login(ctx, creds)
	})
}

func (r *runner) search(adapter source.Adapter, keyword string) error {
	r.log.Info("searching", zap.String("keyword", keyword))
	return resilience.Do(r.ctx, r.retryCfg("search"), func(ctx context.Context) error {
		return adapter.Search(ctx, keyword, source.Filters{
			Countries: r.sess.Profile.Scoring.TargetRegions,
		})
	})
}

// scrapePages walks result pages for the current keyword until the site
// runs out, MaxPages is hit, or the session is cancelled.
func (r *runner) scrapePages(adapter source.Adapter, writer *checkpointWriter, kwIdx int) error {
	profile := r.sess.Profile
	for {
		if r.cancelled() {
			return nil
		}

		page, err := resilience.DoVal(r.ctx, r.retryCfg("next_page"), func(ctx context.Context) (*source.Page, error) {
			return adapter.NextPage(ctx)
		})
		if err != nil {
			return r.handlePageError(err, kwIdx)
		}
		r.setPosition(kwIdx, page.Number)

		// Pages at or before the resume point were already checkpointed.
		if r.resumedFrom != nil && kwIdx == r.startKeyword && page.Number <= r.startPage {
			r.log.Debug("skipping checkpointed page", zap.Int("page", page.Number))
		} else {
			r.processPage(adapter, writer, page)
			r.addCounts(1, 0, 0)
		}

		if writer.Due() {
			if err := writer.Flush(r.ctx, kwIdx, page.Number); err != nil {
				r.recordError(model.ErrPersistence, "checkpoint", err)
			}
		}
		if profile.MaxPages > 0 && page.Number >= profile.MaxPages {
			r.log.Debug("page limit reached", zap.Int("max_pages", profile.MaxPages))
			return nil
		}
	}
}

// handlePageError maps end-of-pagination conditions to a clean keyword
// finish and everything else to its place in the taxonomy.
func (r *runner) handlePageError(err error, kwIdx int) error {
	switch {
	case eris.Is(err, source.ErrNoResults):
		r.log.Info("no results for keyword", zap.Int("keyword_index", kwIdx))
		return nil
	case eris.Is(err, source.ErrNoMorePages):
		r.log.Debug("pagination exhausted", zap.Int("keyword_index", kwIdx))
		return nil
	case eris.Is(err, source.ErrPaginationNotFound):
		// Layout drift: record it, keep the session alive.
		r.recordError(model.ErrExtraction, "pagination", err)
		return nil
	case r.cancelled():
		return nil
	case resilience.IsFatal(err):
		return err
	default:
		// Retries exhausted on a transient failure: give up on this
		// keyword but let the session carry on.
		r.recordError(resilience.Classify(err), "next page", err)
		return nil
	}
}

// processPage extracts, normalizes, scores, and persists every row on the
// page. Per-record failures never abort the page.
func (r *runner) processPage(adapter source.Adapter, writer *checkpointWriter, page *source.Page) {
	for _, row := range page.Rows {
		if r.cancelled() {
			return
		}

		raw, err := adapter.ExtractRecord(r.ctx, row)
		if err != nil {
			// Partial extraction keeps the record; the error is logged
			// either way.
			r.recordError(resilience.Classify(err), rowContext(page, row), err)
		}

		rec, err := pipeline.Normalize(raw, r.sess.Source, time.Now().UTC())
		if err != nil {
			r.recordError(model.ErrExtraction, rowContext(page, row), err)
			continue
		}
		scorer.Apply(&rec, r.sess.Profile.Scoring)
		r.addCounts(0, 1, 0)

		if _, err := writer.Write(r.ctx, rec); err != nil {
			r.recordError(model.ErrPersistence, rec.IdentityKey(), err)
			continue
		}
		r.addCounts(0, 0, 1)
	}
}

func rowContext(page *source.Page, row source.Row) string {
	return fmt.Sprintf("page %d row %d", page.Number, row.Index)
}

func (r *runner) retryCfg(operation string) resilience.RetryConfig {
	cfg := r.orc.retry
	cfg.OnRetry = resilience.RetryLogger(r.sess.Source, operation)
	return cfg
}

// position bookkeeping for the final checkpoint

func (r *runner) setPosition(kwIdx, page int) {
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	r.posKeyword = kwIdx
	r.posPage = page
}

func (r *runner) lastKeyword() int {
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	return r.posKeyword
}

func (r *runner) lastPage() int {
	r.orc.mu.Lock()
	defer r.orc.mu.Unlock()
	return r.posPage
}
