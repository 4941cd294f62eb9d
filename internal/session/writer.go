package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/resilience"
	"github.com/sells-group/tender-scout/internal/store"
)

// checkpointWriter persists normalized records and cuts a durable
// checkpoint after every interval of processed records, so a crashed or
// cancelled session can resume without reprocessing.
type checkpointWriter struct {
	store     store.Store
	sessionID string
	interval  int
	log       *zap.Logger

	seq       int
	processed int
	batch     []model.TenderRecord // records since the last checkpoint
	errs      []model.SessionError // errors since the last checkpoint
}

func newCheckpointWriter(st store.Store, sessionID string, interval int, log *zap.Logger) *checkpointWriter {
	if interval <= 0 {
		interval = 25
	}
	return &checkpointWriter{store: st, sessionID: sessionID, interval: interval, log: log}
}

// Write upserts rec, reporting whether a new row was created. A failed
// upsert surfaces as a PersistenceError scoped to the record's identity.
func (w *checkpointWriter) Write(ctx context.Context, rec model.TenderRecord) (bool, error) {
	created, err := w.store.UpsertTender(ctx, rec)
	if err != nil {
		return false, &resilience.PersistenceError{Key: rec.IdentityKey(), Err: err}
	}
	w.processed++
	w.batch = append(w.batch, rec)
	return created, nil
}

// RecordError accumulates an error for the next checkpoint's snapshot.
func (w *checkpointWriter) RecordError(e model.SessionError) {
	w.errs = append(w.errs, e)
}

// Due reports whether enough records accumulated for the next checkpoint.
func (w *checkpointWriter) Due() bool {
	return len(w.batch) >= w.interval
}

// Flush writes a checkpoint capturing the current position and the errors
// seen since the previous one. A no-op when nothing was processed since the
// last one, so cancellation never writes empty trailing checkpoints.
func (w *checkpointWriter) Flush(ctx context.Context, keywordIndex, page int) error {
	if len(w.batch) == 0 {
		return nil
	}
	w.seq++
	cp := &model.Checkpoint{
		ID:           uuid.New().String(),
		SessionID:    w.sessionID,
		Seq:          w.seq,
		KeywordIndex: keywordIndex,
		Page:         page,
		Processed:    w.processed,
		Records:      w.batch,
		Errors:       w.errs,
		CreatedAt:    time.Now().UTC(),
	}
	if err := w.store.SaveCheckpoint(ctx, cp); err != nil {
		return eris.Wrapf(err, "session %s: checkpoint %d", w.sessionID, w.seq)
	}
	w.log.Debug("checkpoint written",
		zap.Int("seq", w.seq),
		zap.Int("processed", w.processed),
		zap.Int("keyword_index", keywordIndex),
		zap.Int("page", page),
	)
	w.batch = nil
	w.errs = nil
	return nil
}

// Processed returns the cumulative processed-record count.
func (w *checkpointWriter) Processed() int { return w.processed }

// seed pre-loads progress from a resumed checkpoint so counts and sequence
// numbers continue instead of restarting.
func (w *checkpointWriter) seed(cp *model.Checkpoint) {
	if cp == nil {
		return
	}
	w.seq = cp.Seq
	w.processed = cp.Processed
}
