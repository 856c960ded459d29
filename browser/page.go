// Package browser drives a headless browser session and issues direct
// requests that share its cookies.
package browser

import (
	"context"
	"strings"
	"time"
)

// Response is one network response observed by, or issued through, a page.
// Header names are lower-cased.
type Response struct {
	URL     string
	Method  string
	Status  int
	Headers map[string]string
	Body    []byte

	// Navigation numbers the page load the request belonged to, starting
	// at 1. Direct requests carry 0.
	Navigation uint64
}

// Header returns the value of the named header, case-insensitively.
func (r Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Request is an outgoing request paused by a route handler.
type Request struct {
	URL          string
	Method       string
	Headers      map[string]string
	ResourceType string
}

// DirectRequest is a request issued outside page navigation. A non-nil Body
// is encoded as JSON.
type DirectRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// Page is a single browser page. Handlers registered with OnResponse and
// OnRoute may be called from other goroutines.
type Page interface {
	// Navigate loads url and returns once the network is idle.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// OnResponse registers a handler for data responses the page receives.
	OnResponse(handler func(Response))
	// OnRoute observes requests matching pattern; they always continue.
	OnRoute(pattern string, handler func(Request))
	// Content returns the markup of the rendered document.
	Content(ctx context.Context) (string, error)
	// Request issues a direct request with the page's cookies.
	Request(ctx context.Context, req DirectRequest) (Response, error)
	Close() error
}
