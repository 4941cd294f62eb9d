// Package model holds the core domain types shared across the scraping
// pipeline: tender records, scrape sessions, checkpoints, and profiles.
package model

import (
	"net/url"
	"strings"
	"time"
)

// Priority buckets a relevance score into a business priority level.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
	PriorityVeryLow Priority = "very_low"
)

// DocumentCategory classifies an attached document by its role in the tender.
type DocumentCategory string

const (
	DocTender  DocumentCategory = "tender"
	DocAnnex   DocumentCategory = "annex"
	DocTerms   DocumentCategory = "terms_of_reference"
	DocBidding DocumentCategory = "bidding"
	DocOther   DocumentCategory = "other"
)

// Document is a file attached to a tender notice.
type Document struct {
	Title    string           `json:"title"`
	URL      string           `json:"url"`
	Category DocumentCategory `json:"category"`
}

// TenderRecord is the canonical, normalized form of a discovered tender
// opportunity. Identity is (Source, Reference); when a site exposes no
// reference number the normalized URL stands in.
type TenderRecord struct {
	Title            string     `json:"title"`
	Reference        string     `json:"reference"`
	Organization     string     `json:"organization"`
	OrganizationType string     `json:"organization_type,omitempty"`
	Country          string     `json:"country,omitempty"`
	DeadlineRaw      string     `json:"deadline_raw,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	PublicationDate  *time.Time `json:"publication_date,omitempty"`
	NoticeType       string     `json:"notice_type,omitempty"`
	Description      string     `json:"description,omitempty"`
	Documents        []Document `json:"documents,omitempty"`
	ContactEmail     string     `json:"contact_email,omitempty"`
	ContactPhone     string     `json:"contact_phone,omitempty"`
	EstimatedBudget  float64    `json:"estimated_budget,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	URL              string     `json:"url"`
	Source           string     `json:"source"`
	ExtractedAt      time.Time  `json:"extracted_at"`
	RelevanceScore   int        `json:"relevance_score"`
	PriorityLevel    Priority   `json:"priority_level"`

	// Set by the store: CreatedAt is fixed at first insert and survives
	// every later merge; UpdatedAt moves on each write.
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IdentityKey returns the dedup key for this record: (source, reference),
// falling back to (source, normalized URL) when no reference is present.
// Empty string means the record carries no usable identity and must be skipped.
func (t *TenderRecord) IdentityKey() string {
	ref := strings.TrimSpace(t.Reference)
	if ref != "" {
		return t.Source + "|" + ref
	}
	if u := NormalizeURL(t.URL); u != "" {
		return t.Source + "|" + u
	}
	return ""
}

// NormalizeURL canonicalizes a URL for identity comparison: lowercased
// scheme/host, no fragment, no trailing slash, sorted-insensitive because
// query strings are dropped entirely (listing URLs carry volatile tracking
// parameters on every site we scrape).
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""
	return strings.TrimRight(u.String(), "/")
}
