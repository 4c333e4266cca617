package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

var tracer = otel.Tracer("github.com/amosWeiskopf/riacrawler/pkg/fetch")

// SplashOptions configures a SplashClient
type SplashOptions struct {
	URL               string        // Splash base URL, e.g. http://127.0.0.1:8050
	Timeout           time.Duration // Per render, passed to Splash and used for the HTTP call
	Retries           int
	RetryWait         time.Duration
	RequestsPerSecond float64 // 0 disables the limit
	Burst             int
	Wait              float64 // Seconds the scripts wait after navigation
	FollowRobots      bool
	RobotsAgent       string
}

// SplashClient renders pages through the Splash /execute endpoint
type SplashClient struct {
	opts    SplashOptions
	client  *resty.Client
	scripts Scripts
	agents  *UserAgentPool
	limiter *rate.Limiter
	robots  *robotsCache
	seen    sync.Map
	logger  *slog.Logger
}

type splashResult struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

type splashError struct {
	Error       int            `json:"error"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Info        map[string]any `json:"info"`
}

// NewSplashClient creates a Splash backed fetcher
func NewSplashClient(opts SplashOptions, scripts Scripts, agents *UserAgentPool, logger *slog.Logger) (*SplashClient, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("splash URL is required")
	}
	if agents == nil {
		agents = NewUserAgentPool(nil, "", logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RobotsAgent == "" {
		opts.RobotsAgent = "riacrawler"
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(4 * opts.RetryWait).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			// Splash answers 503 while its render slots are full
			return err != nil || res.StatusCode() == http.StatusServiceUnavailable || res.StatusCode() == http.StatusBadGateway
		})
	if opts.Timeout > 0 {
		// leave Splash room to report its own timeout
		client.SetTimeout(opts.Timeout + 10*time.Second)
	}

	return &SplashClient{
		opts:    opts,
		client:  client,
		scripts: scripts,
		agents:  agents,
		limiter: rate.NewLimiter(limit, burst),
		robots:  newRobotsCache(opts.RobotsAgent),
		logger:  logger,
	}, nil
}

// Endpoint returns the Splash base URL
func (c *SplashClient) Endpoint() string {
	return c.opts.URL
}

// Ping checks that Splash answers on /_ping
func (c *SplashClient) Ping(ctx context.Context) error {
	res, err := c.client.R().SetContext(ctx).Get("/_ping")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("ping returned status %d", res.StatusCode())
	}
	return nil
}

// Fetch renders the request through Splash. A request already served
// returns models.ErrDuplicate, one robots.txt forbids models.ErrDisallowed.
func (c *SplashClient) Fetch(ctx context.Context, req models.Request) (*models.Page, error) {
	ctx, span := tracer.Start(ctx, "fetch.Fetch", trace.WithAttributes(
		attribute.String("url", req.URL),
		attribute.String("script", string(req.Script)),
	))
	defer span.End()

	page, err := c.fetch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("status", page.StatusCode), attribute.Int("bytes", len(page.Body)))
	return page, nil
}

func (c *SplashClient) fetch(ctx context.Context, req models.Request) (*models.Page, error) {
	src, err := c.scripts.Source(req.Script)
	if err != nil {
		return nil, err
	}

	if c.opts.FollowRobots {
		allowed, err := c.robots.Allowed(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", req.URL, models.ErrDisallowed)
		}
	}

	if _, loaded := c.seen.LoadOrStore(requestKey(req), struct{}{}); loaded {
		return nil, fmt.Errorf("%s: %w", req.URL, models.ErrDuplicate)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body := map[string]any{
		"lua_source": src,
		"url":        req.URL,
		"user_agent": c.agents.Pick(),
	}
	if len(req.Params) > 0 {
		body["form"] = req.Params
	}
	if req.Referer != "" {
		body["referer"] = req.Referer
	}
	if c.opts.Timeout > 0 {
		body["timeout"] = c.opts.Timeout.Seconds()
	}
	if c.opts.Wait > 0 {
		body["wait"] = c.opts.Wait
	}

	var result splashResult
	var failure splashError
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/execute")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	if res.IsError() {
		if failure.Description != "" {
			return nil, fmt.Errorf("render %s: splash %s (%d): %s", req.URL, failure.Type, res.StatusCode(), failure.Description)
		}
		return nil, fmt.Errorf("render %s: splash returned status %d", req.URL, res.StatusCode())
	}

	c.logger.Debug("page rendered", "url", req.URL, "script", req.Script, "final_url", result.URL, "duration", res.Time())
	return &models.Page{
		URL:        req.URL,
		FinalURL:   result.URL,
		Body:       result.HTML,
		StatusCode: res.StatusCode(),
		FetchedAt:  time.Now(),
	}, nil
}

// requestKey identifies a request by script, URL and sorted params
func requestKey(req models.Request) string {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(req.Script))
	b.WriteByte(' ')
	b.WriteString(req.URL)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(req.Params[k])
	}
	return b.String()
}
