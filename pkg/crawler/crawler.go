package crawler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/assembler"
)

const tracerName = "github.com/amosWeiskopf/riacrawler/pkg/crawler"

// Dependencies are the collaborators a Crawler drives
type Dependencies struct {
	Fetcher  Fetcher
	Selector Selector
	Sink     Sink
	Logger   *slog.Logger
}

// Crawler walks filter submission, listing pages and detail pages. A
// Crawler runs once.
type Crawler struct {
	opts     Options
	filter   models.SearchFilter
	profile  assembler.Profile
	fetcher  Fetcher
	selector Selector
	sink     Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	domain   string
	runID    string

	queue     *list.List
	queueMu   sync.Mutex
	queueCond *sync.Cond
	closed    bool
	pending   sync.WaitGroup

	listingPages   atomic.Int64
	detailPages    atomic.Int64
	recordsEmitted atomic.Int64
	extractionGaps atomic.Int64
	fetchErrors    atomic.Int64
	sinkErrors     atomic.Int64
	duplicates     atomic.Int64
}

// New creates a Crawler. The profile is validated here so schema drift
// fails before any request is made.
func New(opts Options, filter models.SearchFilter, profile assembler.Profile, deps Dependencies) (*Crawler, error) {
	if deps.Fetcher == nil || deps.Selector == nil || deps.Sink == nil {
		return nil, errors.New("crawler needs a fetcher, a selector and a sink")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(opts.StartURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid start URL %q", opts.StartURL)
	}
	allowed := opts.AllowedDomain
	if allowed == "" {
		allowed = u.Hostname()
	}

	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PageParam == "" {
		opts.PageParam = DefaultPageParam
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()

	c := &Crawler{
		opts:     opts,
		filter:   filter,
		profile:  profile,
		fetcher:  deps.Fetcher,
		selector: deps.Selector,
		sink:     deps.Sink,
		logger:   logger.With("run_id", runID),
		tracer:   otel.Tracer(tracerName),
		domain:   registrableDomain(allowed),
		runID:    runID,
		queue:    list.New(),
	}
	c.queueCond = sync.NewCond(&c.queueMu)
	return c, nil
}

// Run pings the rendering service, submits the search filter and processes
// the queue until every scheduled request has been handled or ctx ends.
// When ctx ends first, the partial summary is returned with ctx's error.
func (c *Crawler) Run(ctx context.Context) (models.CrawlSummary, error) {
	started := time.Now()

	if err := c.fetcher.Ping(ctx); err != nil {
		c.logger.ErrorContext(ctx, "rendering service unreachable", "endpoint", c.fetcher.Endpoint(), "error", err)
		return c.summary(started), &ConnectivityError{Endpoint: c.fetcher.Endpoint(), Err: err}
	}

	c.logger.InfoContext(ctx, "crawl started",
		"start_url", c.opts.StartURL,
		"profile", c.profile.Version,
		"workers", c.opts.Workers,
		"filter", c.filter.FormParams())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.enqueue(models.Request{
		Stage:  models.StageFiltering,
		URL:    c.opts.StartURL,
		Script: models.ScriptSubmitFilter,
		Params: c.filter.FormParams(),
	})

	var workers sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			c.work(ctx)
		}()
	}
	if c.opts.ProgressEvery > 0 {
		go c.trackProgress(ctx, time.Duration(c.opts.ProgressEvery)*time.Second)
	}

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	c.shutdown()
	workers.Wait()

	summary := c.summary(started)
	c.logger.InfoContext(ctx, "crawl finished",
		"listing_pages", summary.ListingPages,
		"detail_pages", summary.DetailPages,
		"records", summary.RecordsEmitted,
		"extraction_gaps", summary.ExtractionGaps,
		"fetch_errors", summary.FetchErrors,
		"duration", summary.Duration().String())

	// ctx is only done here when the caller ended it
	return summary, ctx.Err()
}

// RunID identifies this crawl in logs and reports
func (c *Crawler) RunID() string {
	return c.runID
}

func (c *Crawler) summary(started time.Time) models.CrawlSummary {
	return models.CrawlSummary{
		RunID:          c.runID,
		StartedAt:      started,
		FinishedAt:     time.Now(),
		ListingPages:   c.listingPages.Load(),
		DetailPages:    c.detailPages.Load(),
		RecordsEmitted: c.recordsEmitted.Load(),
		ExtractionGaps: c.extractionGaps.Load(),
		FetchErrors:    c.fetchErrors.Load(),
		SinkErrors:     c.sinkErrors.Load(),
		Duplicates:     c.duplicates.Load(),
	}
}

func (c *Crawler) enqueue(reqs ...models.Request) {
	if len(reqs) == 0 {
		return
	}
	c.queueMu.Lock()
	if c.closed {
		c.queueMu.Unlock()
		return
	}
	for _, r := range reqs {
		c.pending.Add(1)
		c.queue.PushBack(r)
	}
	c.queueMu.Unlock()
	c.queueCond.Broadcast()
}

// shutdown stops the workers and releases requests that were never started
func (c *Crawler) shutdown() {
	c.queueMu.Lock()
	c.closed = true
	for e := c.queue.Front(); e != nil; e = c.queue.Front() {
		c.queue.Remove(e)
		c.pending.Done()
	}
	c.queueMu.Unlock()
	c.queueCond.Broadcast()
}

func (c *Crawler) work(ctx context.Context) {
	for {
		c.queueMu.Lock()
		for c.queue.Len() == 0 && !c.closed {
			c.queueCond.Wait()
		}
		if c.closed {
			c.queueMu.Unlock()
			return
		}
		elem := c.queue.Front()
		req := elem.Value.(models.Request)
		c.queue.Remove(elem)
		c.queueMu.Unlock()

		c.process(ctx, req)
		c.pending.Done()
	}
}

func (c *Crawler) process(ctx context.Context, req models.Request) {
	ctx, span := c.tracer.Start(ctx, "crawler."+string(req.Stage),
		trace.WithAttributes(attribute.String("url", req.URL)))
	defer span.End()

	page, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicate):
			c.duplicates.Add(1)
			c.logger.DebugContext(ctx, "skipped duplicate request", "stage", req.Stage, "url", req.URL)
		case ctx.Err() != nil:
			c.logger.DebugContext(ctx, "fetch cancelled", "stage", req.Stage, "url", req.URL)
		case errors.Is(err, models.ErrDisallowed):
			c.fetchErrors.Add(1)
			c.logger.InfoContext(ctx, "skipped by robots.txt", "stage", req.Stage, "url", req.URL)
		default:
			c.fetchErrors.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.WarnContext(ctx, "fetch failed", "stage", req.Stage, "url", req.URL, "error", err)
		}
		return
	}

	switch req.Stage {
	case models.StageFiltering, models.StageListing:
		c.enqueue(c.HandleListing(ctx, req, page)...)
	case models.StageDetail:
		c.HandleDetail(ctx, req, page)
	default:
		c.logger.ErrorContext(ctx, "unknown stage", "stage", req.Stage, "url", req.URL)
	}
}

// HandleListing processes a rendered listing page (the filter submission
// response included) and returns the requests it schedules: every detail
// request first, then the next listing page. A page without entity links
// is an extraction gap and schedules nothing.
func (c *Crawler) HandleListing(ctx context.Context, req models.Request, page *models.Page) []models.Request {
	n := c.listingPages.Add(1)

	raw, err := c.selector.Select(page, c.profile.Listing.Selectors)
	if err != nil {
		c.gap(ctx, slog.LevelWarn, &ExtractionGap{Stage: models.StageListing, URL: req.URL, Reason: fmt.Sprintf("selector failed: %v", err)})
		return nil
	}
	fields := assembler.Assemble(raw, c.profile.Listing)

	canonical := c.canonicalURL(req, page, fields.String("page_url"))
	entities := c.entityURLs(page, fields.Strings("entity_urls"))
	if len(entities) == 0 {
		c.gap(ctx, slog.LevelWarn, &ExtractionGap{Stage: models.StageListing, URL: canonical, Reason: "no entity links"})
		return nil
	}

	var next *string
	if c.opts.MaxPages <= 0 || n < int64(c.opts.MaxPages) {
		nextURL, err := NextPageURL(canonical, c.opts.PageParam)
		if err != nil {
			c.logger.WarnContext(ctx, "cannot derive next page", "url", canonical, "error", err)
		} else {
			next = &nextURL
		}
	}

	c.emit(ctx, models.ListingRecord{PageURL: canonical, EntityURLs: entities, NextPageURL: next})
	c.logger.InfoContext(ctx, "listing page processed", "url", canonical, "entities", len(entities))

	reqs := make([]models.Request, 0, len(entities)+1)
	for _, u := range entities {
		reqs = append(reqs, models.Request{
			Stage:   models.StageDetail,
			URL:     u,
			Script:  models.ScriptRenderDetail,
			Referer: canonical,
		})
	}
	if next != nil {
		reqs = append(reqs, models.Request{
			Stage:   models.StageListing,
			URL:     *next,
			Script:  models.ScriptRenderListing,
			Referer: canonical,
		})
	}
	return reqs
}

// HandleDetail assembles and emits the record of one detail page. It
// reports whether a record was emitted.
func (c *Crawler) HandleDetail(ctx context.Context, req models.Request, page *models.Page) bool {
	c.detailPages.Add(1)

	var merged models.Fields
	for i, schema := range c.profile.Detail {
		raw, err := c.selector.Select(page, schema.Selectors)
		if err != nil {
			c.gap(ctx, slog.LevelError, &ExtractionGap{Stage: models.StageDetail, URL: req.URL, Reason: fmt.Sprintf("selector %s failed: %v", schema.Selectors, err)})
			return false
		}
		if i == 0 && !raw.Has(c.profile.Anchor) {
			c.gap(ctx, slog.LevelError, &ExtractionGap{Stage: models.StageDetail, URL: req.URL, Reason: "missing " + c.profile.Anchor})
			return false
		}
		merged = merged.Merge(assembler.Assemble(raw, schema))
	}

	record, err := models.NewDetailRecord(c.profile.Variant, req.URL, merged)
	if err != nil {
		c.logger.ErrorContext(ctx, "cannot build detail record", "url", req.URL, "error", err)
		return false
	}
	return c.emit(ctx, record)
}

func (c *Crawler) emit(ctx context.Context, record models.Record) bool {
	if err := c.sink.Emit(ctx, record); err != nil {
		c.sinkErrors.Add(1)
		c.logger.ErrorContext(ctx, "sink rejected record", "kind", record.Kind(), "error", err)
		return false
	}
	c.recordsEmitted.Add(1)
	return true
}

func (c *Crawler) gap(ctx context.Context, level slog.Level, g *ExtractionGap) {
	c.extractionGaps.Add(1)
	c.logger.Log(ctx, level, "extraction gap", "stage", g.Stage, "url", g.URL, "reason", g.Reason)
}

// canonicalURL returns the URL a listing page is known by. Pages reached by
// pagination carry a referer and their requested URL is exact; the filter
// submission response does not, so the page's own link is used.
func (c *Crawler) canonicalURL(req models.Request, page *models.Page, embedded string) string {
	if req.Referer != "" {
		return req.URL
	}
	if embedded != "" {
		if resolved, ok := resolveURL(page.BaseURL(), embedded); ok {
			return resolved
		}
	}
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return req.URL
}

// entityURLs resolves, dedups and domain-scopes the links of a listing page
func (c *Crawler) entityURLs(page *models.Page, links []string) []string {
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		abs, ok := resolveURL(page.BaseURL(), link)
		if !ok || seen[abs] {
			continue
		}
		seen[abs] = true

		u, err := url.Parse(abs)
		if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if registrableDomain(u.Hostname()) != c.domain {
			c.logger.Debug("skipped off-site link", "url", abs)
			continue
		}
		out = append(out, abs)
	}
	return out
}

func (c *Crawler) trackProgress(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.queueMu.Lock()
			queued := c.queue.Len()
			c.queueMu.Unlock()
			c.logger.InfoContext(ctx, "crawl progress",
				"listing_pages", c.listingPages.Load(),
				"detail_pages", c.detailPages.Load(),
				"records", c.recordsEmitted.Load(),
				"queued", queued)
		}
	}
}

func resolveURL(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return refURL.String(), refURL.IsAbs()
	}
	return baseURL.ResolveReference(refURL).String(), true
}

// registrableDomain returns the eTLD+1 of host, or host itself when it has
// none (localhost, bare IPs).
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
