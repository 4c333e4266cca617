package crawler

import (
	"fmt"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// ConnectivityError means the rendering service could not be reached at start
type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach rendering service %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ExtractionGap means a page lacked the structure its stage needs. It is
// logged and the branch is dropped; it never stops the crawl.
type ExtractionGap struct {
	Stage  models.Stage
	URL    string
	Reason string
}

func (e *ExtractionGap) Error() string {
	return fmt.Sprintf("%s page %s: %s", e.Stage, e.URL, e.Reason)
}
