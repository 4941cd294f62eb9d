package pipeline

import (
	"strings"

	"github.com/sells-group/tender-scout/internal/model"
)

// docRules maps filename/title keywords to a document category. Checked in
// order; "terms of reference" must win over a generic "tender" hit in the
// same title.
var docRules = []struct {
	Category model.DocumentCategory
	Keywords []string
}{
	{model.DocTerms, []string{"terms of reference", "termes de reference", "tor_", "_tor", " tor ", "tor."}},
	{model.DocAnnex, []string{"annex", "annexe", "appendix", "attachment"}},
	{model.DocBidding, []string{"bid form", "bidding", "bid document", "submission form", "offer form"}},
	{model.DocTender, []string{"tender", "appel d'offres", "request for proposal", "rfp", "request for quotation", "rfq", "solicitation", "notice"}},
}

// ClassifyDocument buckets an attached link by heuristics over its title and
// URL. Anything unmatched is DocOther.
func ClassifyDocument(title, url string) model.DocumentCategory {
	haystack := strings.ToLower(title + " " + url)
	for _, rule := range docRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				return rule.Category
			}
		}
	}
	return model.DocOther
}
