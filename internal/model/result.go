package model

import "time"

// SummaryBreakdowns groups record counts along the axes downstream consumers
// chart: country, organization type, and priority bucket.
type SummaryBreakdowns struct {
	ByCountry  map[string]int `json:"by_country"`
	ByOrgType  map[string]int `json:"by_organization_type"`
	ByPriority map[string]int `json:"by_priority"`
}

// ResultSummary is the aggregate view inside a SessionResult.
type ResultSummary struct {
	SessionID          string            `json:"session_id"`
	Source             string            `json:"source"`
	PagesProcessed     int               `json:"pages_processed"`
	RecordsFound       int               `json:"records_found"`
	RecordsPersisted   int               `json:"records_persisted"`
	ErrorCount         int               `json:"error_count"`
	Breakdowns         SummaryBreakdowns `json:"breakdowns"`
	DeadlinesWithin7d  int               `json:"deadlines_within_7d"`
	DeadlinesWithin30d int               `json:"deadlines_within_30d"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// SessionResult is the sole artifact handed to downstream consumers
// (file exporters, dashboards). Its shape is the contract; their formatting
// is their concern.
type SessionResult struct {
	Summary ResultSummary  `json:"summary"`
	Records []TenderRecord `json:"records"`
	Errors  []SessionError `json:"errors"`
}

// BuildResult assembles the result artifact from a session snapshot and the
// records it produced. now anchors the deadline-proximity counts so the
// artifact is reproducible in tests.
func BuildResult(sess ScrapeSession, records []TenderRecord, now time.Time) SessionResult {
	sum := ResultSummary{
		SessionID:        sess.ID,
		Source:           sess.Source,
		PagesProcessed:   sess.PagesProcessed,
		RecordsFound:     sess.RecordsFound,
		RecordsPersisted: sess.RecordsPersisted,
		ErrorCount:       len(sess.Errors),
		Breakdowns: SummaryBreakdowns{
			ByCountry:  make(map[string]int),
			ByOrgType:  make(map[string]int),
			ByPriority: make(map[string]int),
		},
		GeneratedAt: now,
	}

	for _, r := range records {
		if r.Country != "" {
			sum.Breakdowns.ByCountry[r.Country]++
		}
		if r.OrganizationType != "" {
			sum.Breakdowns.ByOrgType[r.OrganizationType]++
		}
		sum.Breakdowns.ByPriority[string(r.PriorityLevel)]++

		if r.Deadline != nil && r.Deadline.After(now) {
			until := r.Deadline.Sub(now)
			if until <= 7*24*time.Hour {
				sum.DeadlinesWithin7d++
			}
			if until <= 30*24*time.Hour {
				sum.DeadlinesWithin30d++
			}
		}
	}

	return SessionResult{
		Summary: sum,
		Records: records,
		Errors:  sess.Errors,
	}
}
