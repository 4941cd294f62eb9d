// Package monitoring aggregates operational metrics across stored scrape
// sessions and tenders.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/store"
)

// MetricsSnapshot holds a point-in-time view of scraping health.
type MetricsSnapshot struct {
	// Session metrics (within lookback window).
	SessionsTotal     int     `json:"sessions_total"`
	SessionsCompleted int     `json:"sessions_completed"`
	SessionsFailed    int     `json:"sessions_failed"`
	SessionsCancelled int     `json:"sessions_cancelled"`
	SessionsActive    int     `json:"sessions_active"`
	SessionFailRate   float64 `json:"session_fail_rate"`

	// Volume across sessions in the window.
	PagesProcessed   int     `json:"pages_processed"`
	RecordsFound     int     `json:"records_found"`
	RecordsPersisted int     `json:"records_persisted"`
	RecordsPerMinute float64 `json:"records_per_minute"`

	// Error taxonomy counts across session error lists.
	ErrorsByType map[model.ErrorType]int `json:"errors_by_type"`

	// Tender corpus metrics (store-wide).
	TendersHighPriority int     `json:"tenders_high_priority"`
	TendersAvgScore     float64 `json:"tenders_avg_score"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of scraping metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		ErrorsByType:  make(map[model.ErrorType]int),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	sessions, err := c.store.ListSessions(ctx, store.SessionFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	var runMinutes float64
	for _, sess := range sessions {
		if sess.StartedAt.Before(cutoff) {
			continue
		}
		snap.SessionsTotal++
		switch sess.Status {
		case model.SessionCompleted:
			snap.SessionsCompleted++
		case model.SessionFailed:
			snap.SessionsFailed++
		case model.SessionCancelled:
			snap.SessionsCancelled++
		case model.SessionPending, model.SessionRunning:
			snap.SessionsActive++
		}

		snap.PagesProcessed += sess.PagesProcessed
		snap.RecordsFound += sess.RecordsFound
		snap.RecordsPersisted += sess.RecordsPersisted
		for _, e := range sess.Errors {
			snap.ErrorsByType[e.Type]++
		}
		if sess.CompletedAt != nil {
			runMinutes += sess.CompletedAt.Sub(sess.StartedAt).Minutes()
		}
	}

	finished := snap.SessionsCompleted + snap.SessionsFailed
	if finished > 0 {
		snap.SessionFailRate = float64(snap.SessionsFailed) / float64(finished)
	}
	if runMinutes > 0 {
		snap.RecordsPerMinute = float64(snap.RecordsPersisted) / runMinutes
	}

	tenders, err := c.store.ListTenders(ctx, store.TenderFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list tenders")
	}
	var totalScore int
	for _, t := range tenders {
		totalScore += t.RelevanceScore
		if t.PriorityLevel == model.PriorityHigh {
			snap.TendersHighPriority++
		}
	}
	if len(tenders) > 0 {
		snap.TendersAvgScore = float64(totalScore) / float64(len(tenders))
	}

	return snap, nil
}
