// Package pipeline converts raw site fields into canonical tender records.
// Normalization is pure: identical raw input yields identical output aside
// from the extraction timestamp, which callers supply.
package pipeline

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/model"
)

// RawDocument is an attached link as scraped, before classification.
type RawDocument struct {
	Title string
	URL   string
}

// RawRecord carries site fields exactly as extracted by a source adapter.
// Field values are whatever the site showed; normalization owns cleanup.
type RawRecord struct {
	Title            string
	Reference        string
	Organization     string
	OrganizationType string
	Country          string
	Location         string
	Deadline         string
	Published        string
	NoticeType       string
	Description      string
	ContactEmail     string
	ContactPhone     string
	BudgetText       string
	URL              string
	Documents        []RawDocument
}

// Normalize maps a raw record into the canonical schema. A record without a
// title and without any identity (reference or URL) is rejected; everything
// else is kept, with unparseable values retained verbatim where the schema
// allows.
func Normalize(raw RawRecord, source string, extractedAt time.Time) (model.TenderRecord, error) {
	title := collapse(raw.Title)
	ref := collapse(raw.Reference)
	url := strings.TrimSpace(raw.URL)

	if title == "" && ref == "" && url == "" {
		return model.TenderRecord{}, eris.New("pipeline: record has no title, reference, or url")
	}

	rec := model.TenderRecord{
		Title:            title,
		Reference:        ref,
		Organization:     collapse(raw.Organization),
		OrganizationType: collapse(raw.OrganizationType),
		NoticeType:       collapse(raw.NoticeType),
		Description:      collapse(raw.Description),
		ContactEmail:     strings.TrimSpace(raw.ContactEmail),
		ContactPhone:     collapse(raw.ContactPhone),
		URL:              url,
		Source:           source,
		ExtractedAt:      extractedAt,
	}

	// Deadline: keep the raw string either way; parse when a known layout fits.
	rec.DeadlineRaw = collapse(raw.Deadline)
	rec.Deadline = ParseDate(rec.DeadlineRaw)
	rec.PublicationDate = ParseDate(collapse(raw.Published))

	// Country: explicit field first, then substring detection over the text.
	rec.Country = DetectCountry(raw.Country, raw.Organization, raw.Location, raw.Description)

	for _, d := range raw.Documents {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		rec.Documents = append(rec.Documents, model.Document{
			Title:    collapse(d.Title),
			URL:      strings.TrimSpace(d.URL),
			Category: ClassifyDocument(d.Title, d.URL),
		})
	}

	if amount, currency, ok := ParseBudget(raw.BudgetText); ok {
		rec.EstimatedBudget = amount
		rec.Currency = currency
	}

	if rec.IdentityKey() == "" {
		return model.TenderRecord{}, eris.New("pipeline: record has no usable identity key")
	}

	return rec, nil
}

// collapse trims and squeezes internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
