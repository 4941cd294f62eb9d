package source

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/driver"
)

// Paginator advances the driver to the next listing page. Implementations
// return ErrNoMorePages when pagination ends cleanly and
// ErrPaginationNotFound when the control is missing from the page.
type Paginator interface {
	// Advance moves to the next page. The caller parses rows afterwards.
	Advance(ctx context.Context) error

	// Reset rewinds the paginator for a fresh search.
	Reset()
}

// NextLinkPaginator drives classic "next" link pagination: it locates the
// link by CSS selector, treats a disabled link as the end of the result
// set, and clicks through otherwise.
type NextLinkPaginator struct {
	Driver driver.PageDriver

	// Selector matches the next-page anchor.
	Selector string

	// DisabledClass marks an exhausted next link (e.g. "disabled").
	DisabledClass string

	// Container is the pagination wrapper; used to tell a missing control
	// apart from a missing link.
	Container string
}

// Advance clicks the next link, waiting for the results container to
// settle afterwards is the adapter's job.
func (p *NextLinkPaginator) Advance(ctx context.Context) error {
	html, err := p.Driver.HTML(ctx, "body")
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	if p.Container != "" && doc.Find(p.Container).Length() == 0 {
		return ErrPaginationNotFound
	}
	link := doc.Find(p.Selector).First()
	if link.Length() == 0 {
		return ErrNoMorePages
	}
	if p.DisabledClass != "" {
		if cls, _ := link.Attr("class"); strings.Contains(cls, p.DisabledClass) {
			return ErrNoMorePages
		}
		if parent, _ := link.Parent().Attr("class"); strings.Contains(parent, p.DisabledClass) {
			return ErrNoMorePages
		}
	}
	return p.Driver.Click(ctx, p.Selector)
}

// Reset is a no-op; the link lives in whatever page the search rendered.
func (p *NextLinkPaginator) Reset() {}

// BatchPaginator drives offset/batch pagination: each page has its own URL
// built from the page number, the way AJAX-backed listings expose result
// batches. The adapter detects the end of the set by an empty batch.
type BatchPaginator struct {
	Driver driver.PageDriver

	// URLFor builds the listing URL for a 1-based page number.
	URLFor func(page int) string

	// WaitFor is the selector that signals the batch has rendered.
	WaitFor string

	page int
}

// Advance navigates to the next batch URL. The page counter only moves on
// success, so a retried Advance fetches the batch that failed instead of
// skipping past it.
func (p *BatchPaginator) Advance(ctx context.Context) error {
	next := p.page + 1
	if err := p.Driver.Navigate(ctx, p.URLFor(next)); err != nil {
		return err
	}
	if p.WaitFor != "" {
		if err := p.Driver.WaitVisible(ctx, p.WaitFor); err != nil {
			return eris.Wrapf(err, "batch page %d", next)
		}
	}
	p.page = next
	return nil
}

// Reset rewinds to before the first batch.
func (p *BatchPaginator) Reset() { p.page = 0 }

// Page returns the 1-based number of the last batch advanced to.
func (p *BatchPaginator) Page() int { return p.page }
