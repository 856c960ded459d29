package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

// PageScraper scrapes one catalog page through the site's API traffic.
type PageScraper interface {
	Scrape(ctx context.Context, url string, wait time.Duration) *models.PageResult
}

// FallbackScraper scrapes one catalog page from its markup.
type FallbackScraper interface {
	Scrape(ctx context.Context, url string) (*models.PageResult, error)
}

// Crawler follows catalog pagination from each start URL and streams the
// products of every page into a pipeline.
type Crawler struct {
	cfg      *config.Config
	api      PageScraper
	fallback FallbackScraper
	Metrics  *Metrics
	limiter  *rate.Limiter
	pace     func(context.Context) error

	mu           sync.Mutex
	pageCount    int
	errorCount   int
	fallbacks    int
	totalCount   int
	failedURLs   []string
	errorsByType map[string]int
}

// NewCrawler builds a crawler. A nil fallback disables the markup path.
func NewCrawler(cfg *config.Config, api PageScraper, fallback FallbackScraper, metrics *Metrics) *Crawler {
	limiter := newPageLimiter(cfg.Delay)
	return &Crawler{
		cfg:          cfg,
		api:          api,
		fallback:     fallback,
		Metrics:      metrics,
		limiter:      limiter,
		pace:         limiter.Wait,
		errorsByType: make(map[string]int),
	}
}

// newPageLimiter allows one page scrape per delay. A non-positive delay
// disables pacing.
func newPageLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Run scrapes every start URL in order. Page failures are recorded in the
// result; only cancellation of ctx ends the crawl early.
func (c *Crawler) Run(ctx context.Context, urls []string, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	var runErr error
crawl:
	for _, startURL := range urls {
		current := startURL
		for page := 0; page < c.cfg.MaxPages && current != ""; page++ {
			if err := c.waitTurn(ctx); err != nil {
				runErr = err
				break crawl
			}
			if err := ctx.Err(); err != nil {
				runErr = err
				break crawl
			}

			result, source := c.scrapePage(ctx, current, page == 0)

			if result.Error != "" {
				c.recordFailure(current, result.ErrorType)
				slog.Error("page failed",
					slog.String("url", current),
					slog.String("category", result.ErrorType),
					slog.String("error", result.Error),
				)
				break
			}

			c.recordPage(len(result.Products), source == "markup")
			c.Metrics.IncPage(source)
			c.Metrics.AddItems(len(result.Products))
			if p != nil && len(result.Products) > 0 {
				if err := p.Process(result.Products...); err != nil {
					if errors.Is(err, pipeline.ErrPipelineClosed) {
						runErr = err
						if ctxErr := ctx.Err(); ctxErr != nil {
							runErr = ctxErr
						}
						break crawl
					}
					slog.Error("pipeline process error", slog.Any("error", err))
				}
			}

			next := result.Next()
			if next == current {
				slog.Warn("next page repeats current page, stopping", slog.String("url", current))
				break
			}
			current = next
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("crawl: %w", runErr)
	}
	if runErr != nil {
		slog.Warn("crawl interrupted", slog.Any("error", runErr))
	}
	return c.snapshot(start), nil
}

// waitTurn blocks until the limiter admits the next page.
func (c *Crawler) waitTurn(ctx context.Context) error {
	err := c.pace(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// The limiter refuses up front when the wait would outlive the deadline.
	if _, ok := ctx.Deadline(); ok {
		return context.DeadlineExceeded
	}
	return err
}

// scrapePage tries the API path and, on the first page of a start URL that
// yielded nothing, the markup fallback.
func (c *Crawler) scrapePage(ctx context.Context, url string, first bool) (*models.PageResult, string) {
	result := c.api.Scrape(ctx, url, c.cfg.WaitTime)
	if len(result.Products) > 0 || !first || c.fallback == nil || !c.cfg.FallbackMarkup {
		return result, "api"
	}

	slog.Info("api yielded no products, trying markup", slog.String("url", url))
	markup, err := c.fallback.Scrape(ctx, url)
	if err != nil {
		slog.Warn("markup fallback failed", slog.String("url", url), slog.Any("error", err))
		return result, "api"
	}
	if len(markup.Products) == 0 {
		return result, "api"
	}
	return markup, "markup"
}

func (c *Crawler) recordPage(products int, fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageCount++
	c.totalCount += products
	if fallback {
		c.fallbacks++
	}
}

func (c *Crawler) recordFailure(url, category string) {
	if category == "" {
		category = "other"
	}
	c.mu.Lock()
	c.errorCount++
	c.errorsByType[category]++
	c.failedURLs = append(c.failedURLs, url)
	c.mu.Unlock()
}

func (c *Crawler) snapshot(start time.Time) *models.ScraperResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := make([]string, len(c.failedURLs))
	copy(failed, c.failedURLs)
	byType := make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		byType[k] = v
	}
	return &models.ScraperResult{
		StartTime:     start,
		EndTime:       time.Now(),
		TotalCount:    c.totalCount,
		PageCount:     c.pageCount,
		ErrorCount:    c.errorCount,
		FailedURLs:    failed,
		ErrorsByType:  byType,
		FallbackPages: c.fallbacks,
	}
}
