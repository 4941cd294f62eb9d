package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/driver"
	"github.com/sells-group/tender-scout/internal/pipeline"
	"github.com/sells-group/tender-scout/internal/resilience"
)

const dgmarketBase = "https://www.dgmarket.com"

// DGMarket scrapes the dgMarket tender listing. The site needs no login
// and paginates by batch URLs, one URL per result page.
type DGMarket struct {
	d       driver.PageDriver
	pager   *BatchPaginator
	log     *zap.Logger
	keyword string
	country string
	opened  bool
}

// NewDGMarket returns an adapter bound to d.
func NewDGMarket(d driver.PageDriver) *DGMarket {
	m := &DGMarket{
		d:   d,
		log: zap.L().With(zap.String("component", "source"), zap.String("source", "dgmarket")),
	}
	m.pager = &BatchPaginator{
		Driver:  d,
		URLFor:  m.batchURL,
		WaitFor: "div#tenderList",
	}
	return m
}

func (m *DGMarket) Name() string        { return "dgmarket" }
func (m *DGMarket) RequiresLogin() bool { return false }

// Login is a no-op; the listing is public.
func (m *DGMarket) Login(ctx context.Context, creds Credentials) error { return nil }

func (m *DGMarket) batchURL(page int) string {
	q := url.Values{}
	q.Set("q", m.keyword)
	if m.country != "" {
		q.Set("country", m.country)
	}
	q.Set("p", fmt.Sprint(page))
	return dgmarketBase + "/tenders/?" + q.Encode()
}

// Search records the query; the first NextPage fetches batch 1, so a new
// Search fully resets pagination.
func (m *DGMarket) Search(ctx context.Context, keyword string, filters Filters) error {
	m.keyword = keyword
	m.country = ""
	if len(filters.Countries) > 0 {
		m.country = filters.Countries[0]
	}
	m.pager.Reset()
	m.opened = true
	m.log.Debug("search prepared", zap.String("keyword", keyword))
	return nil
}

// NextPage fetches the next batch URL and parses its rows.
func (m *DGMarket) NextPage(ctx context.Context) (*Page, error) {
	if !m.opened {
		return nil, eris.New("dgmarket: NextPage called before Search")
	}
	if err := m.pager.Advance(ctx); err != nil {
		return nil, err
	}
	html, err := m.d.HTML(ctx, "div#tenderList")
	if err != nil {
		return nil, err
	}
	rows, err := m.parseRows(html)
	if err != nil {
		return nil, &resilience.ExtractionError{Context: "dgmarket tender list", Err: err}
	}
	if len(rows) == 0 {
		if m.pager.Page() == 1 {
			return nil, ErrNoResults
		}
		return nil, ErrNoMorePages
	}
	return &Page{Number: m.pager.Page(), Rows: rows}, nil
}

func (m *DGMarket) parseRows(html string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []Row
	doc.Find("div.tender-row").Each(func(i int, s *goquery.Selection) {
		row := Row{Index: i, Fields: map[string]string{}}
		for _, key := range []string{"title", "reference", "country", "buyer", "deadline", "published", "notice-type"} {
			if v := strings.TrimSpace(s.Find("span." + key).Text()); v != "" {
				row.Fields[key] = v
			}
		}
		if href, ok := s.Find("a.tender-link").Attr("href"); ok {
			row.DetailURL = absoluteURL(dgmarketBase, href)
		}
		if len(row.Fields) > 0 || row.DetailURL != "" {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

// ExtractRecord maps a listing row and enriches from the detail page when
// reachable; detail failures keep the row-level fields.
func (m *DGMarket) ExtractRecord(ctx context.Context, row Row) (pipeline.RawRecord, error) {
	raw := pipeline.RawRecord{
		Title:        row.Fields["title"],
		Reference:    row.Fields["reference"],
		Country:      row.Fields["country"],
		Organization: row.Fields["buyer"],
		Deadline:     row.Fields["deadline"],
		Published:    row.Fields["published"],
		NoticeType:   row.Fields["notice-type"],
		URL:          row.DetailURL,
	}
	if row.DetailURL == "" {
		return raw, nil
	}

	if err := m.d.Navigate(ctx, row.DetailURL); err != nil {
		return raw, &resilience.ExtractionError{Context: "dgmarket detail " + row.DetailURL, Err: err}
	}
	html, err := m.d.HTML(ctx, "div#tenderDetail")
	if err != nil {
		return raw, &resilience.ExtractionError{Context: "dgmarket detail " + row.DetailURL, Err: err}
	}
	m.enrichFromDetail(&raw, html)
	return raw, nil
}

func (m *DGMarket) enrichFromDetail(raw *pipeline.RawRecord, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	get := func(sel string) string { return strings.TrimSpace(doc.Find(sel).First().Text()) }
	if v := get("div.tender-description"); v != "" {
		raw.Description = v
	}
	if v := get("span.buyer-type"); v != "" {
		raw.OrganizationType = v
	}
	if v := get("a.contact-email"); v != "" {
		raw.ContactEmail = v
	}
	if v := get("span.contact-phone"); v != "" {
		raw.ContactPhone = v
	}
	if v := get("span.budget"); v != "" {
		raw.BudgetText = v
	}
	doc.Find("ul.attachments a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		raw.Documents = append(raw.Documents, pipeline.RawDocument{
			Title: strings.TrimSpace(s.Text()),
			URL:   absoluteURL(dgmarketBase, href),
		})
	})
}
