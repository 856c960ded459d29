package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ResponseCapture records JSON responses from the API host in arrival order.
// Responses tagged with a navigation older than the newest one seen, or
// older than the last Reset, are dropped.
type ResponseCapture struct {
	host    string
	metrics *Metrics
	now     func() time.Time

	mu         sync.Mutex
	responses  []models.CapturedResponse
	changed    chan struct{}
	generation int
	latest     uint64
	floor      uint64
}

// NewResponseCapture builds a capture that keeps responses from apiHost.
func NewResponseCapture(apiHost string, metrics *Metrics) *ResponseCapture {
	return &ResponseCapture{
		host:    strings.ToLower(apiHost),
		metrics: metrics,
		now:     time.Now,
		changed: make(chan struct{}),
	}
}

// Observe is registered as a page response handler. Responses from other
// hosts, non-JSON responses and undecodable bodies are dropped.
func (c *ResponseCapture) Observe(resp browser.Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("response observer panic", slog.String("url", resp.URL), slog.Any("panic", r))
		}
	}()

	if !c.admit(resp.Navigation) {
		slog.Debug("dropping response from earlier page load", slog.String("url", resp.URL))
		return
	}
	if !c.fromAPIHost(resp.URL) {
		return
	}
	if !strings.Contains(strings.ToLower(resp.Header("content-type")), "json") {
		return
	}

	body, err := decodeJSON(resp.Body)
	if err != nil {
		slog.Warn("dropping undecodable api response",
			slog.String("url", resp.URL),
			slog.Int("status", resp.Status),
			slog.Any("error", err),
		)
		return
	}

	c.Add(models.CapturedResponse{
		URL:        resp.URL,
		Method:     resp.Method,
		Status:     resp.Status,
		Body:       body,
		Raw:        string(resp.Body),
		CapturedAt: c.now(),
		Navigation: resp.Navigation,
	})
	c.metrics.IncCaptured()
	slog.Debug("captured api response", slog.String("url", resp.URL), slog.Int("status", resp.Status))
}

// Add appends responses and wakes any waiter.
func (c *ResponseCapture) Add(responses ...models.CapturedResponse) {
	if len(responses) == 0 {
		return
	}
	c.mu.Lock()
	c.responses = append(c.responses, responses...)
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// Reset discards everything captured so far and stops accepting responses
// from page loads already seen.
func (c *ResponseCapture) Reset() {
	c.mu.Lock()
	c.responses = nil
	c.generation++
	c.floor = c.latest + 1
	c.mu.Unlock()
}

// admit reports whether a response from navigation nav belongs to the
// current page load. A newer navigation purges entries from older ones.
// Direct requests carry no navigation and are always admitted.
func (c *ResponseCapture) admit(nav uint64) bool {
	if nav == 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if nav < c.floor || nav < c.latest {
		return false
	}
	if nav > c.latest {
		c.latest = nav
		kept := c.responses[:0]
		for _, r := range c.responses {
			if r.Navigation == 0 || r.Navigation >= nav {
				kept = append(kept, r)
			}
		}
		if len(kept) != len(c.responses) {
			c.generation++
		}
		c.responses = kept
	}
	return true
}

// Snapshot returns a copy of the captured responses.
func (c *ResponseCapture) Snapshot() []models.CapturedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CapturedResponse, len(c.responses))
	copy(out, c.responses)
	return out
}

// Len returns the number of captured responses.
func (c *ResponseCapture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

// Wait blocks until a captured response satisfies match or ctx is done.
func (c *ResponseCapture) Wait(ctx context.Context, match func(models.CapturedResponse) bool) bool {
	checked := 0
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()
	for {
		c.mu.Lock()
		// A reset or purge while waiting restarts the scan.
		if c.generation != generation {
			generation = c.generation
			checked = 0
		}
		for ; checked < len(c.responses); checked++ {
			if match(c.responses[checked]) {
				c.mu.Unlock()
				return true
			}
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}

func (c *ResponseCapture) fromAPIHost(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.ToLower(parsed.Hostname()) == c.host
}

// decodeJSON decodes a document keeping numbers in their textual form.
func decodeJSON(raw []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}
