package models

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrDuplicate is returned by a fetcher for a request it has already served
	ErrDuplicate = errors.New("duplicate request")
	// ErrDisallowed is returned by a fetcher when robots.txt forbids the URL
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// Stage identifies which crawl stage a request belongs to
type Stage string

const (
	StageFiltering Stage = "filtering"
	StageListing   Stage = "listing"
	StageDetail    Stage = "detail"
)

// RenderScript names the page behaviour a fetcher should run while rendering.
// The core treats it as an opaque token.
type RenderScript string

const (
	ScriptSubmitFilter  RenderScript = "submit-filter"
	ScriptRenderListing RenderScript = "render-listing"
	ScriptRenderDetail  RenderScript = "render-detail"
)

// Request is one unit of crawl work
type Request struct {
	Stage   Stage             `json:"stage"`
	URL     string            `json:"url"`
	Script  RenderScript      `json:"script"`
	Params  map[string]string `json:"params,omitempty"`
	Referer string            `json:"referer,omitempty"`
}

// Page represents a rendered web page
type Page struct {
	URL        string    `json:"url"`
	FinalURL   string    `json:"final_url"`
	Body       string    `json:"-"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// BaseURL returns the URL relative links on the page resolve against
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// RawFieldSet holds the text fragments a selector returned, keyed by field
// name in insertion order.
type RawFieldSet struct {
	names  []string
	values map[string][]string
}

// NewRawFieldSet creates an empty RawFieldSet
func NewRawFieldSet() RawFieldSet {
	return RawFieldSet{values: make(map[string][]string)}
}

// Add appends fragments to a field. A field added with no fragments is still
// present.
func (s *RawFieldSet) Add(name string, fragments ...string) {
	if s.values == nil {
		s.values = make(map[string][]string)
	}
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
		s.values[name] = []string{}
	}
	s.values[name] = append(s.values[name], fragments...)
}

// Get returns the fragments of a field
func (s RawFieldSet) Get(name string) []string {
	return s.values[name]
}

// First returns the first fragment of a field, or "" when there is none
func (s RawFieldSet) First(name string) string {
	if v := s.values[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Has reports whether the field carries at least one non-blank fragment
func (s RawFieldSet) Has(name string) bool {
	for _, f := range s.values[name] {
		if strings.TrimSpace(f) != "" {
			return true
		}
	}
	return false
}

// Names returns the field names in insertion order
func (s RawFieldSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of fields
func (s RawFieldSet) Len() int {
	return len(s.names)
}

// CrawlSummary contains the counters of one crawl run
type CrawlSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ListingPages   int64     `json:"listing_pages"`
	DetailPages    int64     `json:"detail_pages"`
	RecordsEmitted int64     `json:"records_emitted"`
	ExtractionGaps int64     `json:"extraction_gaps"`
	FetchErrors    int64     `json:"fetch_errors"`
	SinkErrors     int64     `json:"sink_errors"`
	Duplicates     int64     `json:"duplicates"`
}

// Duration returns the wall time of the run
func (s CrawlSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
