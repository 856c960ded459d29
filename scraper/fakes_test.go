package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

const (
	testAPIHost     = "msf-api.test"
	testProducts    = "https://msf-api.test/api/products"
	testSubcategory = "https://msf-api.test/api/catalog/subcategory"
)

// fakePage replays scripted responses instead of driving a browser.
type fakePage struct {
	mu          sync.Mutex
	onResponse  []func(browser.Response)
	routes      []string
	navigate    func(url string) ([]browser.Response, error)
	request     func(req browser.DirectRequest) (browser.Response, error)
	content     func(url string) (string, error)
	navigations []string
	requests    []browser.DirectRequest
	closed      int
}

func (f *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	f.mu.Lock()
	f.navigations = append(f.navigations, url)
	handlers := append([]func(browser.Response){}, f.onResponse...)
	f.mu.Unlock()

	if f.navigate == nil {
		return nil
	}
	responses, err := f.navigate(url)
	for _, resp := range responses {
		for _, handler := range handlers {
			handler(resp)
		}
	}
	return err
}

// Content renders the document of the last navigation.
func (f *fakePage) Content(context.Context) (string, error) {
	f.mu.Lock()
	last := ""
	if n := len(f.navigations); n > 0 {
		last = f.navigations[n-1]
	}
	f.mu.Unlock()
	if f.content == nil {
		return "<html></html>", nil
	}
	return f.content(last)
}

func (f *fakePage) OnResponse(handler func(browser.Response)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onResponse = append(f.onResponse, handler)
}

func (f *fakePage) OnRoute(pattern string, _ func(browser.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, pattern)
}

func (f *fakePage) Request(_ context.Context, req browser.DirectRequest) (browser.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.request == nil {
		return browser.Response{}, fmt.Errorf("no request handler")
	}
	return f.request(req)
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakePage) sentRequests() []browser.DirectRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]browser.DirectRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// fakeCache records saves in memory.
type fakeCache struct {
	mu     sync.Mutex
	stored *models.ProbeConfig
	saves  []models.ProbeConfig
}

func (c *fakeCache) Load() (models.ProbeConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored == nil {
		return models.ProbeConfig{}, false
	}
	return *c.stored, true
}

func (c *fakeCache) Save(cfg models.ProbeConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, cfg)
	c.stored = &cfg
	return nil
}

func jsonResponse(url, body string) browser.Response {
	return browser.Response{
		URL:     url,
		Method:  http.MethodGet,
		Status:  http.StatusOK,
		Headers: map[string]string{"content-type": "application/json; charset=utf-8"},
		Body:    []byte(body),
	}
}

// productsJSON builds a products payload of n items with barcodes
// prefix-0 .. prefix-(n-1). extra is spliced into the top-level object.
func productsJSON(n int, prefix, extra string) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"name":"%s %d","price":"Q%d.00","barcode":"%s-%d"}`, prefix, i, i+1, prefix, i))
	}
	body := `{"products":[` + strings.Join(items, ",") + `]`
	if extra != "" {
		body += "," + extra
	}
	return body + "}"
}

func intPtr(v int) *int { return &v }
