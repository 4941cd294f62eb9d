// Package session owns the scrape session lifecycle: scheduling, status,
// cooperative cancellation, resume, and the run loop connecting adapters to
// the pipeline, scorer, and store.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/config"
	"github.com/sells-group/tender-scout/internal/driver"
	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/monitoring"
	"github.com/sells-group/tender-scout/internal/resilience"
	"github.com/sells-group/tender-scout/internal/source"
	"github.com/sells-group/tender-scout/internal/store"
)

// AlreadyRunningError rejects a schedule request for a source that has an
// active session. Per-source runs are strictly sequential.
type AlreadyRunningError struct {
	Source    string
	SessionID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("source %s already has active session %s", e.Source, e.SessionID)
}

// DriverFactory builds a page driver for one session.
type DriverFactory func(ctx context.Context) (driver.PageDriver, error)

// CredentialsFunc resolves login credentials for a source.
type CredentialsFunc func(source string) (source.Credentials, error)

// Options configures an Orchestrator.
type Options struct {
	Store       store.Store
	Registry    *source.Registry
	NewDriver   DriverFactory
	Credentials CredentialsFunc
	Retry       resilience.RetryConfig
}

// Orchestrator schedules and supervises scrape sessions. One orchestrator
// serves the whole process; sessions run in their own goroutines.
type Orchestrator struct {
	store       store.Store
	registry    *source.Registry
	newDriver   DriverFactory
	credentials CredentialsFunc
	retry       resilience.RetryConfig
	collector   *monitoring.Collector
	log         *zap.Logger

	mu      sync.Mutex
	running map[string]*runner // session ID → runner
	bySrc   map[string]string  // source → active session ID
	wg      sync.WaitGroup
}

// New creates an orchestrator. Store and Registry are required; NewDriver
// defaults to a headless Chrome factory and Credentials to empty.
func New(opts Options) *Orchestrator {
	newDriver := opts.NewDriver
	if newDriver == nil {
		newDriver = func(ctx context.Context) (driver.PageDriver, error) {
			return driver.NewChrome(ctx, driver.Options{Headless: true})
		}
	}
	creds := opts.Credentials
	if creds == nil {
		creds = func(string) (source.Credentials, error) { return source.Credentials{}, nil }
	}
	return &Orchestrator{
		store:       opts.Store,
		registry:    opts.Registry,
		newDriver:   newDriver,
		credentials: creds,
		retry:       opts.Retry,
		collector:   monitoring.NewCollector(opts.Store),
		log:         zap.L().With(zap.String("component", "session")),
		running:     make(map[string]*runner),
		bySrc:       make(map[string]string),
	}
}

// Schedule validates the request and starts a session for src in the
// background, returning its initial snapshot. At most one active session
// per source; a second request gets an AlreadyRunningError.
func (o *Orchestrator) Schedule(ctx context.Context, src string, profile model.Profile) (*model.ScrapeSession, error) {
	return o.schedule(ctx, src, profile, nil)
}

func (o *Orchestrator) schedule(ctx context.Context, src string, profile model.Profile, resumeFrom *model.Checkpoint) (*model.ScrapeSession, error) {
	if !o.registry.Has(src) {
		return nil, &resilience.ConfigurationError{
			Err: eris.Errorf("unknown source %q (registered: %v)", src, o.registry.Names()),
		}
	}
	config.ApplyProfileDefaults(&profile)
	if err := config.ValidateProfile(profile); err != nil {
		return nil, &resilience.ConfigurationError{Err: err}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if id, busy := o.bySrc[src]; busy {
		return nil, &AlreadyRunningError{Source: src, SessionID: id}
	}
	// A pending/running row in the store also blocks: another process (or a
	// crashed run) may own the source.
	if active, err := o.store.ActiveSession(ctx, src); err != nil {
		return nil, eris.Wrap(err, "check active session")
	} else if active != nil {
		return nil, &AlreadyRunningError{Source: src, SessionID: active.ID}
	}

	sess := &model.ScrapeSession{
		ID:        uuid.New().String(),
		Source:    src,
		Status:    model.SessionPending,
		StartedAt: time.Now().UTC(),
		Profile:   profile,
	}
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "persist new session")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &runner{
		orc:    o,
		sess:   sess,
		ctx:    runCtx,
		cancel: cancel,
		log:    o.log.With(zap.String("session_id", sess.ID), zap.String("source", src)),
	}
	if resumeFrom != nil {
		r.resumedFrom = resumeFrom
		r.startKeyword = resumeFrom.KeywordIndex
		r.startPage = resumeFrom.Page
	}
	o.running[sess.ID] = r
	o.bySrc[src] = sess.ID
	snap := *sess

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		r.run()
	}()

	return &snap, nil
}

// finish releases the bookkeeping for a terminated runner.
func (o *Orchestrator) finish(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.running[sessionID]; ok {
		r.cancel()
		delete(o.bySrc, r.sess.Source)
		delete(o.running, sessionID)
	}
}

// GetStatus returns the session snapshot: live counters for a running
// session, the stored row otherwise.
func (o *Orchestrator) GetStatus(ctx context.Context, sessionID string) (*model.ScrapeSession, error) {
	o.mu.Lock()
	r, ok := o.running[sessionID]
	o.mu.Unlock()
	if ok {
		return r.snapshot(), nil
	}
	return o.store.GetSession(ctx, sessionID)
}

// Cancel requests cooperative cancellation. A running session stops at the
// next page or record boundary, checkpoints, and lands in CANCELLED; its
// partial results stay persisted. Cancelling a terminal session errors.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	r, ok := o.running[sessionID]
	o.mu.Unlock()
	if ok {
		r.cancel()
		o.log.Info("cancellation requested", zap.String("session_id", sessionID))
		return nil
	}

	// Not in this process: either terminal, or orphaned by a crash.
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return eris.Errorf("session %s already %s", sessionID, sess.Status)
	}
	if !sess.Status.CanTransition(model.SessionCancelled) {
		return eris.Errorf("session %s cannot be cancelled from %s", sessionID, sess.Status)
	}
	sess.Status = model.SessionCancelled
	now := time.Now().UTC()
	sess.CompletedAt = &now
	return o.store.SaveSession(ctx, sess)
}

// ListSessions returns stored sessions, live ones reflecting current counters.
func (o *Orchestrator) ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.ScrapeSession, error) {
	sessions, err := o.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range sessions {
		if r, ok := o.running[sessions[i].ID]; ok {
			sessions[i] = *r.snapshotLocked()
		}
	}
	return sessions, nil
}

// Metrics aggregates operational metrics over the lookback window.
func (o *Orchestrator) Metrics(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error) {
	return o.collector.Collect(ctx, lookbackHours)
}

// Resume starts a new session continuing a failed or cancelled one from
// its last checkpoint, so already-persisted records are not reprocessed.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*model.ScrapeSession, error) {
	prev, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch prev.Status {
	case model.SessionFailed, model.SessionCancelled:
	default:
		return nil, eris.Errorf("session %s is %s; only failed or cancelled sessions resume", sessionID, prev.Status)
	}

	cp, err := o.store.LatestCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		o.log.Info("no checkpoint; resuming from scratch", zap.String("session_id", sessionID))
	}
	return o.schedule(ctx, prev.Source, prev.Profile, cp)
}

// Wait blocks until every in-flight session reaches a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels every in-flight session and waits for their final
// checkpoints and terminal saves.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, r := range o.running {
		r.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}
