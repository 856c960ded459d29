package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the browser process.
type ChromeOptions struct {
	Headless  bool
	UserAgent string
	// Requester issues direct requests. Defaults to a requester with a 30s
	// timeout and UserAgent.
	Requester *HTTPRequester
}

// Chrome is a Page backed by a single chromedp tab.
type Chrome struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	requester   *HTTPRequester
	logger      *slog.Logger

	mu          sync.Mutex
	inflight    map[network.RequestID]*inflightResponse
	onResponse  []func(Response)
	routes      []route
	routesDirty bool
	idle        chan struct{}
	idleArmed   bool
	navigation  uint64

	// deliverMu is held for reading while handlers run, so starting a new
	// navigation waits out deliveries already past the staleness check.
	deliverMu sync.RWMutex
	fetches   fetchTracker
	closeOnce sync.Once
}

type inflightResponse struct {
	url        string
	method     string
	status     int
	headers    map[string]string
	ready      bool
	navigation uint64
}

type route struct {
	pattern string
	match   *regexp.Regexp
	handler func(Request)
}

// NewChrome launches a browser and opens one tab. Launch failures are
// returned to the caller.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1440, 900),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
	)

	requester := opts.Requester
	if requester == nil {
		requester = NewHTTPRequester(30*time.Second, opts.UserAgent)
	}

	c := &Chrome{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		requester:   requester,
		logger:      slog.Default().With(slog.String("component", "browser")),
		inflight:    make(map[network.RequestID]*inflightResponse),
		idle:        make(chan struct{}),
	}
	chromedp.ListenTarget(tabCtx, c.handleEvent)

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
	); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return c, nil
}

// OnResponse registers a handler for XHR and fetch responses. Handlers run
// on a background goroutine once the response body is available.
func (c *Chrome) OnResponse(handler func(Response)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponse = append(c.onResponse, handler)
}

// OnRoute pauses requests whose URL matches the glob pattern ("*" matches
// any run of characters), calls handler and lets them continue unchanged.
// Interception starts with the next navigation.
func (c *Chrome) OnRoute(pattern string, handler func(Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = append(c.routes, route{
		pattern: pattern,
		match:   globPattern(pattern),
		handler: handler,
	})
	c.routesDirty = true
}

// Navigate loads url and waits for the network-idle lifecycle event. Body
// fetches started during the load are joined before returning. Responses
// to requests issued before this call are no longer delivered.
func (c *Chrome) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := c.tabContext(ctx, timeout)
	defer cancel()

	if err := c.enableRoutes(runCtx); err != nil {
		return err
	}

	idle := c.armIdle()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-idle:
	case <-runCtx.Done():
		return fmt.Errorf("wait for network idle on %s: %w", url, runCtx.Err())
	}

	if err := c.fetches.wait(runCtx); err != nil {
		return fmt.Errorf("wait for response bodies on %s: %w", url, err)
	}
	return nil
}

// Content returns the outer HTML of the rendered document.
func (c *Chrome) Content(ctx context.Context) (string, error) {
	runCtx, cancel := c.tabContext(ctx, 0)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read rendered document: %w", err)
	}
	return html, nil
}

// Request issues req through the direct requester with the cookies the
// browser holds for req.URL.
func (c *Chrome) Request(ctx context.Context, req DirectRequest) (Response, error) {
	runCtx, cancel := c.tabContext(ctx, 0)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(actx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithUrls([]string{req.URL}).Do(actx)
		return err
	}))
	if err != nil {
		return Response{}, fmt.Errorf("read browser cookies: %w", err)
	}

	jar := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		jar = append(jar, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return c.requester.Do(ctx, req, jar)
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.fetches.close()
		c.cancelTab()
		_ = c.fetches.wait(context.Background())
		c.cancelAlloc()
	})
	return nil
}

// tabContext derives a context that runs on the tab and ends with ctx, with
// the tab, or after timeout when it is positive.
func (c *Chrome) tabContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(c.tabCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(c.tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) enableRoutes(ctx context.Context) error {
	c.mu.Lock()
	if !c.routesDirty {
		c.mu.Unlock()
		return nil
	}
	patterns := make([]*fetch.RequestPattern, 0, len(c.routes))
	for _, r := range c.routes {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   r.pattern,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	c.routesDirty = false
	c.mu.Unlock()

	if err := chromedp.Run(ctx, fetch.Enable().WithPatterns(patterns)); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}
	return nil
}

// armIdle starts a new navigation: it resets the idle signal and marks
// responses from earlier navigations as stale.
func (c *Chrome) armIdle() <-chan struct{} {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigation++
	c.idle = make(chan struct{})
	c.idleArmed = false
	return c.idle
}

func (c *Chrome) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.mu.Lock()
		c.inflight[e.RequestID] = &inflightResponse{
			url:        e.Request.URL,
			method:     e.Request.Method,
			navigation: c.navigation,
		}
		c.mu.Unlock()

	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeXHR && e.Type != network.ResourceTypeFetch {
			c.mu.Lock()
			delete(c.inflight, e.RequestID)
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		entry, ok := c.inflight[e.RequestID]
		if !ok {
			entry = &inflightResponse{method: http.MethodGet, navigation: c.navigation}
			c.inflight[e.RequestID] = entry
		}
		entry.url = e.Response.URL
		entry.status = int(e.Response.Status)
		entry.headers = flattenHeaders(e.Response.Headers)
		entry.ready = true
		c.mu.Unlock()

	case *network.EventLoadingFinished:
		c.mu.Lock()
		entry, ok := c.inflight[e.RequestID]
		delete(c.inflight, e.RequestID)
		handlers := append([]func(Response){}, c.onResponse...)
		c.mu.Unlock()
		if !ok || !entry.ready || len(handlers) == 0 {
			return
		}
		if !c.fetches.start() {
			return
		}
		go c.deliver(e.RequestID, entry, handlers)

	case *network.EventLoadingFailed:
		c.mu.Lock()
		delete(c.inflight, e.RequestID)
		c.mu.Unlock()

	case *fetch.EventRequestPaused:
		if !c.fetches.start() {
			return
		}
		go c.continueRequest(e)

	case *page.EventLifecycleEvent:
		c.mu.Lock()
		switch e.Name {
		case "init":
			c.idleArmed = true
		case "networkIdle":
			if c.idleArmed {
				c.idleArmed = false
				close(c.idle)
			}
		}
		c.mu.Unlock()
	}
}

func (c *Chrome) deliver(id network.RequestID, entry *inflightResponse, handlers []func(Response)) {
	defer c.fetches.done()

	body, err := network.GetResponseBody(id).Do(c.executor())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Debug("response body unavailable", slog.String("url", entry.url), slog.Any("error", err))
		}
		return
	}

	resp := Response{
		URL:        entry.url,
		Method:     entry.method,
		Status:     entry.status,
		Headers:    entry.headers,
		Body:       body,
		Navigation: entry.navigation,
	}
	c.dispatch(resp, handlers)
}

// dispatch hands resp to handlers unless a newer navigation has started.
func (c *Chrome) dispatch(resp Response, handlers []func(Response)) {
	c.deliverMu.RLock()
	defer c.deliverMu.RUnlock()
	c.mu.Lock()
	current := c.navigation
	c.mu.Unlock()
	if resp.Navigation != current {
		c.logger.Debug("dropping response from earlier navigation", slog.String("url", resp.URL))
		return
	}
	for _, handler := range handlers {
		handler(resp)
	}
}

func (c *Chrome) continueRequest(e *fetch.EventRequestPaused) {
	defer c.fetches.done()

	req := Request{
		URL:          e.Request.URL,
		Method:       e.Request.Method,
		Headers:      flattenHeaders(e.Request.Headers),
		ResourceType: string(e.ResourceType),
	}

	c.mu.Lock()
	var handlers []func(Request)
	for _, r := range c.routes {
		if r.match.MatchString(req.URL) {
			handlers = append(handlers, r.handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(req)
	}
	if err := fetch.ContinueRequest(e.RequestID).Do(c.executor()); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("continue intercepted request", slog.String("url", req.URL), slog.Any("error", err))
	}
}

// fetchTracker counts background CDP calls in flight. Unlike a WaitGroup,
// new calls may start while another goroutine waits for the count to drain.
type fetchTracker struct {
	mu      sync.Mutex
	pending int
	closed  bool
	drained chan struct{}
}

// start registers a call. It reports false once the tracker is closed.
func (t *fetchTracker) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.pending == 0 {
		t.drained = make(chan struct{})
	}
	t.pending++
	return true
}

func (t *fetchTracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	if t.pending == 0 {
		close(t.drained)
	}
}

// wait blocks until no call is pending or ctx is done.
func (t *fetchTracker) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.pending == 0 {
		t.mu.Unlock()
		return nil
	}
	drained := t.drained
	t.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close refuses further calls.
func (t *fetchTracker) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (c *Chrome) executor() context.Context {
	return cdp.WithExecutor(c.tabCtx, chromedp.FromContext(c.tabCtx).Target)
}

func flattenHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		out[strings.ToLower(name)] = fmt.Sprint(value)
	}
	return out
}

// globPattern compiles a CDP URL pattern, where "*" matches any run of
// characters and "?" a single one.
func globPattern(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\?`, `.`)
	return regexp.MustCompile("^" + quoted + "$")
}
