package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgents is used when no list is configured
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// UserAgentPool hands out random user agents. When a source URL is set the
// list is replaced by the newline separated file it serves.
type UserAgentPool struct {
	mu        sync.RWMutex
	agents    []string
	rnd       *rand.Rand
	rndMu     sync.Mutex
	sourceURL string
	client    *resty.Client
	logger    *slog.Logger
}

// NewUserAgentPool creates a pool over a static list. An empty list falls
// back to DefaultUserAgents.
func NewUserAgentPool(agents []string, sourceURL string, logger *slog.Logger) *UserAgentPool {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserAgentPool{
		agents:    append([]string(nil), agents...),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sourceURL: sourceURL,
		client:    resty.New().SetTimeout(15 * time.Second),
		logger:    logger,
	}
}

// Pick returns a random user agent
func (p *UserAgentPool) Pick() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	p.rndMu.Lock()
	i := p.rnd.Intn(len(p.agents))
	p.rndMu.Unlock()
	return p.agents[i]
}

// Agents returns a copy of the current list
func (p *UserAgentPool) Agents() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.agents...)
}

// Refresh downloads the source list. The current list is kept when the
// download fails or yields nothing.
func (p *UserAgentPool) Refresh(ctx context.Context) error {
	if p.sourceURL == "" {
		return nil
	}
	res, err := p.client.R().SetContext(ctx).Get(p.sourceURL)
	if err != nil {
		return fmt.Errorf("failed to fetch user agents: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("failed to fetch user agents: status %d", res.StatusCode())
	}

	var agents []string
	for _, line := range strings.Split(res.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			agents = append(agents, line)
		}
	}
	if len(agents) == 0 {
		return fmt.Errorf("user agent source %s is empty", p.sourceURL)
	}

	p.mu.Lock()
	p.agents = agents
	p.mu.Unlock()
	p.logger.Debug("user agents refreshed", "count", len(agents))
	return nil
}

// Start refreshes the list once and then every interval until ctx ends.
// A zero interval refreshes only once.
func (p *UserAgentPool) Start(ctx context.Context, interval time.Duration) {
	if p.sourceURL == "" {
		return
	}
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("user agent refresh failed", "source", p.sourceURL, "error", err)
	}
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					p.logger.Warn("user agent refresh failed", "source", p.sourceURL, "error", err)
				}
			}
		}
	}()
}
