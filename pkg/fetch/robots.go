package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
)

// robotsCache fetches robots.txt once per scheme and host
type robotsCache struct {
	client *resty.Client
	agent  string

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

func newRobotsCache(agent string) *robotsCache {
	return &robotsCache{
		client: resty.New().SetTimeout(15 * time.Second),
		agent:  agent,
		groups: make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether robots.txt of the URL's host permits fetching it.
// An unreachable robots.txt allows everything.
func (c *robotsCache) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	group, ok := c.groups[key]
	c.mu.Unlock()
	if !ok {
		group = c.load(ctx, key)
		c.mu.Lock()
		c.groups[key] = group
		c.mu.Unlock()
	}
	if group == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), nil
}

func (c *robotsCache) load(ctx context.Context, origin string) *robotstxt.Group {
	res, err := c.client.R().SetContext(ctx).Get(origin + "/robots.txt")
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(res.StatusCode(), res.Body())
	if err != nil {
		return nil
	}
	return robots.FindGroup(c.agent)
}
