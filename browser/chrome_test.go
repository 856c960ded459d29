package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestGlobPattern(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{pattern: "*msf-api.test*", url: "https://msf-api.test/api/products", want: true},
		{pattern: "*/api/*", url: "https://shop.test/api/catalog/subcategory/9", want: true},
		{pattern: "*/api/*", url: "https://shop.test/static/app.js", want: false},
		{pattern: "https://shop.test/p?ge", url: "https://shop.test/page", want: true},
		{pattern: "https://shop.test/a.b", url: "https://shop.test/axb", want: false},
	}
	for _, tt := range tests {
		if got := globPattern(tt.pattern).MatchString(tt.url); got != tt.want {
			t.Errorf("globPattern(%q).Match(%q) = %v, want %v", tt.pattern, tt.url, got, tt.want)
		}
	}
}

func TestFlattenHeaders(t *testing.T) {
	got := flattenHeaders(network.Headers{"Content-Type": "application/json", "X-Count": 3})
	if got["content-type"] != "application/json" || got["x-count"] != "3" {
		t.Fatalf("unexpected headers: %v", got)
	}
	if (Response{Headers: got}).Header("Content-Type") != "application/json" {
		t.Fatalf("Header lookup should be case-insensitive")
	}
}

func TestFetchTrackerStartsDuringWait(t *testing.T) {
	var tracker fetchTracker
	if !tracker.start() {
		t.Fatalf("start on an open tracker should succeed")
	}

	waited := make(chan error, 1)
	go func() { waited <- tracker.wait(context.Background()) }()

	// Calls keep arriving while a waiter is blocked.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.start() {
				time.Sleep(time.Millisecond)
				tracker.done()
			}
		}()
	}
	tracker.done()
	wg.Wait()

	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not return after calls drained")
	}
	if err := tracker.wait(context.Background()); err != nil {
		t.Fatalf("wait on idle tracker: %v", err)
	}
}

func TestFetchTrackerWaitHonoursContext(t *testing.T) {
	var tracker fetchTracker
	tracker.start()
	defer tracker.done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tracker.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestFetchTrackerClosedRefusesStart(t *testing.T) {
	var tracker fetchTracker
	tracker.close()
	if tracker.start() {
		t.Fatalf("start after close should be refused")
	}
	if err := tracker.wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestTabContextFollowsCaller(t *testing.T) {
	tab, cancelTab := context.WithCancel(context.Background())
	defer cancelTab()
	c := &Chrome{tabCtx: tab}

	caller, cancelCaller := context.WithCancel(context.Background())
	runCtx, cancel := c.tabContext(caller, 0)
	defer cancel()

	cancelCaller()
	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("cancelling the caller should end the tab context")
	}
}

func TestTabContextFollowsTab(t *testing.T) {
	tab, cancelTab := context.WithCancel(context.Background())
	c := &Chrome{tabCtx: tab}

	runCtx, cancel := c.tabContext(context.Background(), time.Hour)
	defer cancel()
	if _, ok := runCtx.Deadline(); !ok {
		t.Fatalf("a positive timeout should set a deadline")
	}

	cancelTab()
	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("closing the tab should end the derived context")
	}
}

func TestDispatchDropsEarlierNavigations(t *testing.T) {
	c := &Chrome{logger: slog.Default(), idle: make(chan struct{})}
	c.armIdle()

	var got []string
	handlers := []func(Response){func(r Response) { got = append(got, r.URL) }}

	c.dispatch(Response{URL: "first", Navigation: 1}, handlers)
	c.armIdle()
	c.dispatch(Response{URL: "late", Navigation: 1}, handlers)
	c.dispatch(Response{URL: "second", Navigation: 2}, handlers)

	want := []string{"first", "second"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("delivered %v, want %v", got, want)
	}
}
