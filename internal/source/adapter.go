// Package source defines the per-site adapter contract and the framework
// pieces shared by every adapter: pagination strategies, rate limiting, and
// the adapter registry.
package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/pipeline"
)

// End-of-pagination conditions. The runner logs each distinctly: an empty
// result set, a cleanly exhausted result set, and a page whose pagination
// control could not be located are three different situations.
var (
	// ErrNoResults means the search produced zero rows on the first page.
	ErrNoResults = eris.New("source: no results for search")

	// ErrNoMorePages means pagination ended cleanly (disabled or absent
	// "next" on a page that had results).
	ErrNoMorePages = eris.New("source: no more pages")

	// ErrPaginationNotFound means the pagination control was expected but
	// missing entirely, usually a site layout change worth investigating.
	ErrPaginationNotFound = eris.New("source: pagination control not found")
)

// Credentials holds a login for one site.
type Credentials struct {
	Username string
	Password string
}

// Filters narrows a keyword search server-side where the site supports it.
type Filters struct {
	Countries  []string
	NoticeType string
}

// Row is one raw result row as scraped from a listing page. Fields carries
// the site's own column labels; DetailURL, when present, points at the
// notice detail page.
type Row struct {
	Index     int
	Fields    map[string]string
	DetailURL string
}

// Page is one listing page of rows, numbered from 1 per search.
type Page struct {
	Number int
	Rows   []Row
}

// Adapter is the contract every listing site implements. One adapter
// instance serves one session and is not safe for concurrent use; the
// orchestrator guarantees a single sequential pipeline per source.
type Adapter interface {
	// Name returns the unique source identifier (e.g. "ungm").
	Name() string

	// RequiresLogin reports whether Login must be called before Search.
	RequiresLogin() bool

	// Login authenticates against the site. Invalid credentials or an
	// unexpected post-login page yield an AuthenticationError; transient
	// network failures surface as retryable errors for the retry policy.
	Login(ctx context.Context, creds Credentials) error

	// Search starts a fresh search for the keyword, fully resetting any
	// prior search state so result sets never bleed across keywords.
	Search(ctx context.Context, keyword string, filters Filters) error

	// NextPage returns the next listing page, or one of ErrNoResults,
	// ErrNoMorePages, ErrPaginationNotFound.
	NextPage(ctx context.Context) (*Page, error)

	// ExtractRecord turns a row into raw fields, optionally navigating to
	// the detail page. When detail navigation fails the row-level fields
	// are still returned together with a non-nil *resilience.ExtractionError;
	// the caller records the error and keeps the partial record.
	ExtractRecord(ctx context.Context, row Row) (pipeline.RawRecord, error)
}
