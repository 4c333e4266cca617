package crawler

import (
	"context"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// Fetcher renders pages. Implementations must be safe for concurrent use.
type Fetcher interface {
	// Fetch renders the request's URL running the request's script
	Fetch(ctx context.Context, req models.Request) (*models.Page, error)

	// Ping checks that the rendering service is reachable
	Ping(ctx context.Context) error

	// Endpoint names the rendering service for log messages
	Endpoint() string
}

// Selector extracts raw field fragments from a rendered page using a
// named selector set.
type Selector interface {
	Select(page *models.Page, selectorSet string) (models.RawFieldSet, error)
}

// Sink receives records. Emit is called from several goroutines at once.
type Sink interface {
	Emit(ctx context.Context, record models.Record) error
	Close() error
}

// Options contains configuration for the crawler
type Options struct {
	StartURL      string // Search entry point the filter form lives on
	AllowedDomain string // Registrable domain entity links must belong to; empty means the start URL's
	PageParam     string // Query parameter that carries the page number
	Workers       int    // Concurrent fetch workers
	MaxPages      int    // Listing pages to visit, 0 for no limit
	ProgressEvery int    // Seconds between progress log lines, 0 to disable
}
