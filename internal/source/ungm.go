package source

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/driver"
	"github.com/sells-group/tender-scout/internal/pipeline"
	"github.com/sells-group/tender-scout/internal/resilience"
)

const (
	ungmBase      = "https://www.ungm.org"
	ungmLoginURL  = ungmBase + "/Account/Login"
	ungmSearchURL = ungmBase + "/Public/Notice"
)

// UNGM scrapes the UN Global Marketplace public notice board. Search state
// lives in the rendered page; pagination is a classic next link.
type UNGM struct {
	d      driver.PageDriver
	pager  *NextLinkPaginator
	log    *zap.Logger
	page   int
	opened bool

	// advanced is set between a successful next click and the results
	// container rendering, so a retried NextPage resumes at the wait.
	advanced bool
}

// NewUNGM returns an adapter bound to d.
func NewUNGM(d driver.PageDriver) *UNGM {
	return &UNGM{
		d: d,
		pager: &NextLinkPaginator{
			Driver:        d,
			Selector:      "a.pagination-next",
			DisabledClass: "disabled",
			Container:     "div.pagination",
		},
		log: zap.L().With(zap.String("component", "source"), zap.String("source", "ungm")),
	}
}

func (u *UNGM) Name() string        { return "ungm" }
func (u *UNGM) RequiresLogin() bool { return true }

// Login signs in through the account form. A login page that renders again
// after submit means the credentials were rejected.
func (u *UNGM) Login(ctx context.Context, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return &resilience.ConfigurationError{Err: eris.New("ungm: missing credentials")}
	}
	if err := u.d.Navigate(ctx, ungmLoginURL); err != nil {
		return err
	}
	if err := u.d.Fill(ctx, "#UserName", creds.Username); err != nil {
		return err
	}
	if err := u.d.Fill(ctx, "#Password", creds.Password); err != nil {
		return err
	}
	if err := u.d.Click(ctx, "button[type=submit]"); err != nil {
		return err
	}
	cur, err := u.d.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(cur, "/Account/Login") {
		return &resilience.AuthenticationError{Err: eris.New("ungm: login rejected")}
	}
	u.log.Info("logged in")
	return nil
}

// Search renders a fresh notice search for keyword. Navigating the search
// URL anew discards any state left by a previous keyword.
func (u *UNGM) Search(ctx context.Context, keyword string, filters Filters) error {
	if err := u.d.Navigate(ctx, ungmSearchURL); err != nil {
		return err
	}
	if err := u.d.Fill(ctx, "#txtNoticeTitle", keyword); err != nil {
		return err
	}
	for _, c := range filters.Countries {
		// The country picker accepts free text; one fill per country.
		if err := u.d.Fill(ctx, "#txtCountry", c); err != nil {
			return err
		}
	}
	if err := u.d.Click(ctx, "#btnSearch"); err != nil {
		return err
	}
	if err := u.d.WaitVisible(ctx, "#noticeSearchResults"); err != nil {
		return err
	}
	u.page = 0
	u.opened = true
	u.advanced = false
	u.pager.Reset()
	u.log.Debug("search submitted", zap.String("keyword", keyword))
	return nil
}

// NextPage parses the current results table, then advances the next link
// so the following call sees the next page.
func (u *UNGM) NextPage(ctx context.Context) (*Page, error) {
	if !u.opened {
		return nil, eris.New("ungm: NextPage called before Search")
	}
	if u.page > 0 {
		// A retry after a failed WaitVisible must not click next again;
		// the browser already moved on the first attempt.
		if !u.advanced {
			if err := u.pager.Advance(ctx); err != nil {
				return nil, err
			}
			u.advanced = true
		}
		if err := u.d.WaitVisible(ctx, "#noticeSearchResults"); err != nil {
			return nil, err
		}
	}
	u.advanced = false
	u.page++

	html, err := u.d.HTML(ctx, "#noticeSearchResults")
	if err != nil {
		return nil, err
	}
	rows, err := u.parseRows(html)
	if err != nil {
		return nil, &resilience.ExtractionError{Context: "ungm results table", Err: err}
	}
	if len(rows) == 0 {
		if u.page == 1 {
			return nil, ErrNoResults
		}
		return nil, ErrNoMorePages
	}
	return &Page{Number: u.page, Rows: rows}, nil
}

func (u *UNGM) parseRows(html string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []Row
	doc.Find("div.tableRow").Each(func(i int, s *goquery.Selection) {
		row := Row{Index: i, Fields: map[string]string{}}
		s.Find("div.tableCell").Each(func(_ int, cell *goquery.Selection) {
			label, _ := cell.Attr("data-description")
			if label == "" {
				return
			}
			row.Fields[strings.TrimSpace(label)] = strings.TrimSpace(cell.Text())
		})
		if href, ok := s.Find("a").First().Attr("href"); ok {
			row.DetailURL = absoluteURL(ungmBase, href)
		}
		if len(row.Fields) > 0 || row.DetailURL != "" {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

// ExtractRecord maps a listing row to raw fields and enriches it from the
// detail page. When the detail page cannot be loaded the row-level fields
// are returned with the error, so the caller can keep the partial record.
// The driver is put back on the listing page before returning, so the next
// NextPage still finds the pagination control.
func (u *UNGM) ExtractRecord(ctx context.Context, row Row) (pipeline.RawRecord, error) {
	raw := pipeline.RawRecord{
		Title:      row.Fields["Title"],
		Reference:  row.Fields["Reference"],
		Country:    row.Fields["Beneficiary country"],
		Deadline:   row.Fields["Deadline"],
		Published:  row.Fields["Published"],
		NoticeType: row.Fields["Notice type"],
		URL:        row.DetailURL,
	}
	if raw.Organization == "" {
		raw.Organization = row.Fields["UN organization"]
	}
	if row.DetailURL == "" {
		return raw, nil
	}

	listing, err := u.d.CurrentURL(ctx)
	if err != nil {
		return raw, &resilience.ExtractionError{Context: "ungm detail " + row.DetailURL, Err: err}
	}
	html, detailErr := u.detailHTML(ctx, row.DetailURL)
	if err := u.d.Navigate(ctx, listing); err != nil {
		return raw, err
	}
	if err := u.d.WaitVisible(ctx, "#noticeSearchResults"); err != nil {
		return raw, err
	}
	if detailErr != nil {
		return raw, detailErr
	}
	u.enrichFromDetail(&raw, html)
	return raw, nil
}

func (u *UNGM) detailHTML(ctx context.Context, detailURL string) (string, error) {
	if err := u.d.Navigate(ctx, detailURL); err != nil {
		return "", &resilience.ExtractionError{Context: "ungm detail " + detailURL, Err: err}
	}
	html, err := u.d.HTML(ctx, "div.noticeDetails")
	if err != nil {
		return "", &resilience.ExtractionError{Context: "ungm detail " + detailURL, Err: err}
	}
	return html, nil
}

func (u *UNGM) enrichFromDetail(raw *pipeline.RawRecord, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	fields := map[string]string{}
	doc.Find("div.formRow").Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Find("label").First().Text())
		value := strings.TrimSpace(s.Find("span").First().Text())
		if label != "" && value != "" {
			fields[strings.TrimSuffix(label, ":")] = value
		}
	})
	if v := fields["Description"]; v != "" {
		raw.Description = v
	}
	if v := fields["Contact email"]; v != "" {
		raw.ContactEmail = v
	}
	if v := fields["Contact phone"]; v != "" {
		raw.ContactPhone = v
	}
	if v := fields["Estimated budget"]; v != "" {
		raw.BudgetText = v
	}
	if raw.Organization == "" {
		raw.Organization = fields["UN organization"]
	}
	doc.Find("div.documentRow a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		raw.Documents = append(raw.Documents, pipeline.RawDocument{
			Title: strings.TrimSpace(s.Text()),
			URL:   absoluteURL(ungmBase, href),
		})
	})
}

func absoluteURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(u).String()
}
