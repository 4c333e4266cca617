package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/assembler"
)

const (
	startURL   = "https://auto.ria.com/uk/advanced-search"
	searchURL  = "https://auto.ria.com/uk/search/?brand=audi"
	searchURL1 = "https://auto.ria.com/uk/search/?brand=audi&page=1"
	searchURL2 = "https://auto.ria.com/uk/search/?brand=audi&page=2"
)

// recordingHandler keeps every log record for inspection
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler             { return h }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) count(msg string, level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Message == msg && r.Level == level {
			n++
		}
	}
	return n
}

type fakeFetcher struct {
	mu       sync.Mutex
	pingErr  error
	failURLs map[string]error
	requests []models.Request
	block    bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, req models.Request) (*models.Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err := f.failURLs[req.URL]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &models.Page{URL: req.URL, FinalURL: req.URL}, nil
}

func (f *fakeFetcher) Ping(context.Context) error { return f.pingErr }
func (f *fakeFetcher) Endpoint() string           { return "http://splash:8050" }

func (f *fakeFetcher) seen() []models.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Request(nil), f.requests...)
}

// fakeSelector serves canned raw fields per page URL and selector set
type fakeSelector map[string]map[string]models.RawFieldSet

func (s fakeSelector) Select(page *models.Page, set string) (models.RawFieldSet, error) {
	if sets, ok := s[page.URL]; ok {
		if raw, ok := sets[set]; ok {
			return raw, nil
		}
	}
	return models.NewRawFieldSet(), nil
}

type memorySink struct {
	mu      sync.Mutex
	records []models.Record
	err     error
}

func (s *memorySink) Emit(_ context.Context, r models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) byKind(kind string) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Record
	for _, r := range s.records {
		if r.Kind() == kind {
			out = append(out, r)
		}
	}
	return out
}

func listingFields(pageURL string, entities ...string) models.RawFieldSet {
	raw := models.NewRawFieldSet()
	if pageURL != "" {
		raw.Add("page_url", pageURL)
	}
	raw.Add("entity_urls", entities...)
	return raw
}

func detailFields(heading, price string) models.RawFieldSet {
	raw := models.NewRawFieldSet()
	if heading != "" {
		raw.Add("brand_model_year", heading)
	}
	raw.Add("price", price)
	return raw
}

func testProfile() assembler.Profile {
	return assembler.ProfileV1(assembler.DefaultDetailOptions(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func newTestCrawler(t *testing.T, opts Options, fetcher Fetcher, selector Selector, sink Sink) (*Crawler, *recordingHandler) {
	t.Helper()
	if opts.StartURL == "" {
		opts.StartURL = startURL
	}
	handler := &recordingHandler{}
	c, err := New(opts, models.SearchFilter{}, testProfile(), Dependencies{
		Fetcher:  fetcher,
		Selector: selector,
		Sink:     sink,
		Logger:   slog.New(handler),
	})
	require.NoError(t, err)
	return c, handler
}

func TestNew(t *testing.T) {
	deps := Dependencies{Fetcher: &fakeFetcher{}, Selector: fakeSelector{}, Sink: &memorySink{}}

	tests := []struct {
		name    string
		opts    Options
		profile assembler.Profile
		deps    Dependencies
		wantErr bool
	}{
		{name: "valid", opts: Options{StartURL: startURL}, profile: testProfile(), deps: deps},
		{name: "relative start URL", opts: Options{StartURL: "not-a-url"}, profile: testProfile(), deps: deps, wantErr: true},
		{name: "empty start URL", opts: Options{}, profile: testProfile(), deps: deps, wantErr: true},
		{name: "missing sink", opts: Options{StartURL: startURL}, profile: testProfile(), deps: Dependencies{Fetcher: deps.Fetcher, Selector: deps.Selector}, wantErr: true},
		{name: "invalid profile", opts: Options{StartURL: startURL}, profile: assembler.Profile{Version: 9, Variant: models.VariantBasic}, deps: deps, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts, models.SearchFilter{}, tt.profile, tt.deps)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, c)
				assert.NotEmpty(t, c.RunID())
			}
		})
	}
}

func TestHandleListingSchedulesDetailsBeforeNextPage(t *testing.T) {
	sink := &memorySink{}
	selector := fakeSelector{
		startURL: {"listing": listingFields(
			"/uk/search/?brand=audi",
			"/uk/auto_audi_a6_1.html",
			"https://auto.ria.com/uk/auto_audi_a4_2.html",
			"/uk/auto_audi_a6_1.html",
			"https://ads.example.net/banner.html",
		)},
	}
	c, handler := newTestCrawler(t, Options{}, &fakeFetcher{}, selector, sink)

	req := models.Request{Stage: models.StageFiltering, URL: startURL, Script: models.ScriptSubmitFilter}
	got := c.HandleListing(context.Background(), req, &models.Page{URL: startURL, FinalURL: startURL})

	require.Len(t, got, 3)
	assert.Equal(t, models.Request{Stage: models.StageDetail, URL: "https://auto.ria.com/uk/auto_audi_a6_1.html", Script: models.ScriptRenderDetail, Referer: searchURL}, got[0])
	assert.Equal(t, "https://auto.ria.com/uk/auto_audi_a4_2.html", got[1].URL)
	assert.Equal(t, models.Request{Stage: models.StageListing, URL: searchURL1, Script: models.ScriptRenderListing, Referer: searchURL}, got[2])

	listings := sink.byKind(models.KindListing)
	require.Len(t, listings, 1)
	rec := listings[0].(models.ListingRecord)
	assert.Equal(t, searchURL, rec.PageURL)
	assert.Len(t, rec.EntityURLs, 2)
	require.NotNil(t, rec.NextPageURL)
	assert.Equal(t, searchURL1, *rec.NextPageURL)
	assert.Zero(t, handler.count("extraction gap", slog.LevelWarn))
}

func TestHandleListingCanonicalURL(t *testing.T) {
	tests := []struct {
		name     string
		req      models.Request
		page     *models.Page
		embedded string
		want     string
	}{
		{
			name:     "paginated request keeps its own URL",
			req:      models.Request{Stage: models.StageListing, URL: searchURL1, Referer: searchURL},
			page:     &models.Page{URL: searchURL1, FinalURL: "https://auto.ria.com/uk/elsewhere"},
			embedded: "https://auto.ria.com/ru/search/",
			want:     searchURL1,
		},
		{
			name:     "filter response uses the embedded link",
			req:      models.Request{Stage: models.StageFiltering, URL: startURL},
			page:     &models.Page{URL: startURL, FinalURL: startURL},
			embedded: "/uk/search/?brand=audi",
			want:     searchURL,
		},
		{
			name: "falls back to the final URL",
			req:  models.Request{Stage: models.StageFiltering, URL: startURL},
			page: &models.Page{URL: startURL, FinalURL: searchURL},
			want: searchURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector := fakeSelector{tt.page.URL: {"listing": listingFields(tt.embedded, "/uk/auto_x_1.html")}}
			c, _ := newTestCrawler(t, Options{}, &fakeFetcher{}, selector, &memorySink{})

			got := c.HandleListing(context.Background(), tt.req, tt.page)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want, got[0].Referer)
		})
	}
}

func TestHandleListingWithoutEntitiesIsAGap(t *testing.T) {
	sink := &memorySink{}
	selector := fakeSelector{searchURL2: {"listing": listingFields("")}}
	c, handler := newTestCrawler(t, Options{}, &fakeFetcher{}, selector, sink)

	req := models.Request{Stage: models.StageListing, URL: searchURL2, Referer: searchURL1}
	got := c.HandleListing(context.Background(), req, &models.Page{URL: searchURL2})

	assert.Empty(t, got)
	assert.Empty(t, sink.byKind(models.KindListing))
	assert.Equal(t, 1, handler.count("extraction gap", slog.LevelWarn))
}

func TestHandleListingMaxPages(t *testing.T) {
	sink := &memorySink{}
	selector := fakeSelector{searchURL1: {"listing": listingFields("", "/uk/auto_x_1.html")}}
	c, _ := newTestCrawler(t, Options{MaxPages: 1}, &fakeFetcher{}, selector, sink)

	req := models.Request{Stage: models.StageListing, URL: searchURL1, Referer: searchURL}
	got := c.HandleListing(context.Background(), req, &models.Page{URL: searchURL1})

	require.Len(t, got, 1)
	assert.Equal(t, models.StageDetail, got[0].Stage)
	rec := sink.byKind(models.KindListing)[0].(models.ListingRecord)
	assert.Nil(t, rec.NextPageURL)
}

func TestHandleDetail(t *testing.T) {
	const carURL = "https://auto.ria.com/uk/auto_audi_a6_1.html"

	t.Run("emits assembled record", func(t *testing.T) {
		sink := &memorySink{}
		selector := fakeSelector{carURL: {"detail.basic": detailFields("Audi A6 2015", "21 500 $")}}
		c, handler := newTestCrawler(t, Options{}, &fakeFetcher{}, selector, sink)

		ok := c.HandleDetail(context.Background(), models.Request{Stage: models.StageDetail, URL: carURL}, &models.Page{URL: carURL})
		require.True(t, ok)

		details := sink.byKind(models.KindDetail)
		require.Len(t, details, 1)
		assert.Equal(t, []any{carURL, "Audi", "A6", int64(2015), 21500.0}, details[0].Values())
		assert.Zero(t, handler.count("extraction gap", slog.LevelError))
	})

	t.Run("missing anchor emits nothing", func(t *testing.T) {
		sink := &memorySink{}
		selector := fakeSelector{carURL: {"detail.basic": detailFields("", "21 500 $")}}
		c, handler := newTestCrawler(t, Options{}, &fakeFetcher{}, selector, sink)

		ok := c.HandleDetail(context.Background(), models.Request{Stage: models.StageDetail, URL: carURL}, &models.Page{URL: carURL})
		assert.False(t, ok)
		assert.Empty(t, sink.byKind(models.KindDetail))
		assert.Equal(t, 1, handler.count("extraction gap", slog.LevelError))
	})

	t.Run("later schemas win", func(t *testing.T) {
		profile := testProfile()
		profile.Detail = append(profile.Detail, assembler.Schema{
			Name:      "override",
			Selectors: "override",
			Fields:    []assembler.Field{{Name: "brand", Normalize: assembler.Text(), Default: ""}},
		})
		sink := &memorySink{}
		selector := fakeSelector{carURL: {
			"detail.basic": detailFields("Audi A6 2015", ""),
			"override":     func() models.RawFieldSet { r := models.NewRawFieldSet(); r.Add("brand", "AUDI AG"); return r }(),
		}}
		c, err := New(Options{StartURL: startURL}, models.SearchFilter{}, profile, Dependencies{
			Fetcher: &fakeFetcher{}, Selector: selector, Sink: sink, Logger: slog.New(&recordingHandler{}),
		})
		require.NoError(t, err)

		require.True(t, c.HandleDetail(context.Background(), models.Request{URL: carURL}, &models.Page{URL: carURL}))
		rec := sink.byKind(models.KindDetail)[0].(models.DetailRecord)
		assert.Equal(t, "AUDI AG", rec.Fields().String("brand"))
		assert.Equal(t, "A6", rec.Fields().String("model"))
	})
}

func TestRunEndToEnd(t *testing.T) {
	selector := fakeSelector{
		startURL: {"listing": listingFields(searchURL,
			"https://auto.ria.com/uk/auto_a_1.html",
			"https://auto.ria.com/uk/auto_b_2.html")},
		searchURL1: {"listing": listingFields("", "https://auto.ria.com/uk/auto_c_3.html")},
		searchURL2: {"listing": listingFields("")},
		"https://auto.ria.com/uk/auto_a_1.html": {"detail.basic": detailFields("Audi A6 2015", "10 000 $")},
		"https://auto.ria.com/uk/auto_b_2.html": {"detail.basic": detailFields("", "")},
		"https://auto.ria.com/uk/auto_c_3.html": {"detail.basic": detailFields("BMW X5 2019", "40 000 $")},
	}
	fetcher := &fakeFetcher{}
	sink := &memorySink{}
	c, handler := newTestCrawler(t, Options{Workers: 3}, fetcher, selector, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.ListingPages)
	assert.Equal(t, int64(3), summary.DetailPages)
	assert.Equal(t, int64(2), summary.ExtractionGaps)
	assert.Equal(t, int64(4), summary.RecordsEmitted)
	assert.Len(t, sink.byKind(models.KindListing), 2)
	assert.Len(t, sink.byKind(models.KindDetail), 2)
	assert.Equal(t, 1, handler.count("extraction gap", slog.LevelWarn))
	assert.Equal(t, 1, handler.count("extraction gap", slog.LevelError))

	requests := fetcher.seen()
	require.NotEmpty(t, requests)
	assert.Equal(t, models.StageFiltering, requests[0].Stage)
	assert.Equal(t, models.ScriptSubmitFilter, requests[0].Script)
	for _, r := range requests {
		assert.NotEqual(t, "https://auto.ria.com/uk/search/?brand=audi&page=3", r.URL)
	}
}

func TestRunFetchErrorsAndSinkErrorsDoNotStopTheCrawl(t *testing.T) {
	selector := fakeSelector{
		startURL: {"listing": listingFields(searchURL,
			"https://auto.ria.com/uk/auto_a_1.html",
			"https://auto.ria.com/uk/auto_b_2.html")},
		"https://auto.ria.com/uk/auto_b_2.html": {"detail.basic": detailFields("Audi A4 2012", "")},
	}
	fetcher := &fakeFetcher{failURLs: map[string]error{
		"https://auto.ria.com/uk/auto_a_1.html": errors.New("render timeout"),
		searchURL1:                              models.ErrDuplicate,
	}}
	sink := &memorySink{err: errors.New("disk full")}
	c, _ := newTestCrawler(t, Options{Workers: 2}, fetcher, selector, sink)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.FetchErrors)
	assert.Equal(t, int64(1), summary.Duplicates)
	assert.Equal(t, int64(2), summary.SinkErrors)
	assert.Zero(t, summary.RecordsEmitted)
}

func TestRunConnectivityError(t *testing.T) {
	fetcher := &fakeFetcher{pingErr: errors.New("connection refused")}
	c, handler := newTestCrawler(t, Options{}, fetcher, fakeSelector{}, &memorySink{})

	_, err := c.Run(context.Background())
	var connErr *ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "http://splash:8050", connErr.Endpoint)
	assert.Empty(t, fetcher.seen())
	assert.Equal(t, 1, handler.count("rendering service unreachable", slog.LevelError))
}

func TestRunStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{block: true}
	c, _ := newTestCrawler(t, Options{Workers: 2}, fetcher, fakeSelector{}, &memorySink{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
