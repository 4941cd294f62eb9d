// Package store persists tenders, scrape sessions, and checkpoints behind a
// single interface with SQLite and PostgreSQL implementations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = eris.New("store: not found")

// TenderFilter specifies criteria for listing tenders.
type TenderFilter struct {
	Source   string         `json:"source,omitempty"`
	Country  string         `json:"country,omitempty"`
	Priority model.Priority `json:"priority,omitempty"`
	MinScore int            `json:"min_score,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Source string              `json:"source,omitempty"`
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the scraping pipeline.
type Store interface {
	// Tenders. UpsertTender merges by identity and reports whether the
	// record was newly created.
	UpsertTender(ctx context.Context, rec model.TenderRecord) (bool, error)
	GetTender(ctx context.Context, source, reference string) (*model.TenderRecord, error)
	GetTenderByURL(ctx context.Context, source, rawURL string) (*model.TenderRecord, error)
	ListTenders(ctx context.Context, filter TenderFilter) ([]model.TenderRecord, error)

	// Sessions
	SaveSession(ctx context.Context, sess *model.ScrapeSession) error
	GetSession(ctx context.Context, id string) (*model.ScrapeSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSession, error)
	ActiveSession(ctx context.Context, source string) (*model.ScrapeSession, error)

	// Checkpoints
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error
	LatestCheckpoint(ctx context.Context, sessionID string) (*model.Checkpoint, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// MergeTender folds incoming into existing field by field: for every field
// the value extracted more recently wins, except that an empty value never
// overwrites a populated one. CreatedAt always comes from existing.
func MergeTender(existing, incoming model.TenderRecord) model.TenderRecord {
	newerIn := !incoming.ExtractedAt.Before(existing.ExtractedAt)

	// pick returns the winning value for one string field.
	pick := func(old, new string) string {
		if new == "" {
			return old
		}
		if old == "" || newerIn {
			return new
		}
		return old
	}

	out := existing
	out.Title = pick(existing.Title, incoming.Title)
	out.Reference = pick(existing.Reference, incoming.Reference)
	out.Organization = pick(existing.Organization, incoming.Organization)
	out.OrganizationType = pick(existing.OrganizationType, incoming.OrganizationType)
	out.Country = pick(existing.Country, incoming.Country)
	out.DeadlineRaw = pick(existing.DeadlineRaw, incoming.DeadlineRaw)
	out.NoticeType = pick(existing.NoticeType, incoming.NoticeType)
	out.Description = pick(existing.Description, incoming.Description)
	out.ContactEmail = pick(existing.ContactEmail, incoming.ContactEmail)
	out.ContactPhone = pick(existing.ContactPhone, incoming.ContactPhone)
	out.Currency = pick(existing.Currency, incoming.Currency)
	out.URL = pick(existing.URL, incoming.URL)

	if incoming.Deadline != nil && (existing.Deadline == nil || newerIn) {
		out.Deadline = incoming.Deadline
	}
	if incoming.PublicationDate != nil && (existing.PublicationDate == nil || newerIn) {
		out.PublicationDate = incoming.PublicationDate
	}
	if incoming.EstimatedBudget != 0 && (existing.EstimatedBudget == 0 || newerIn) {
		out.EstimatedBudget = incoming.EstimatedBudget
	}
	if len(incoming.Documents) > 0 && (len(existing.Documents) == 0 || newerIn) {
		out.Documents = incoming.Documents
	}
	if newerIn {
		out.ExtractedAt = incoming.ExtractedAt
		out.RelevanceScore = incoming.RelevanceScore
		out.PriorityLevel = incoming.PriorityLevel
	}

	out.CreatedAt = existing.CreatedAt
	return out
}
