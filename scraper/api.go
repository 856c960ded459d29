package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// APIOptions configures how a page's API traffic is collected.
type APIOptions struct {
	APIHost           string
	Endpoints         parser.Endpoints
	NavigationTimeout time.Duration
	PrimaryWait       time.Duration
}

// APIOptionsFromConfig extracts the API scrape settings from cfg.
func APIOptionsFromConfig(cfg *config.Config) APIOptions {
	return APIOptions{
		APIHost: cfg.APIHost,
		Endpoints: parser.Endpoints{
			Products:    cfg.ProductsEndpoint,
			Subcategory: cfg.SubcategoryEndpoint,
		},
		NavigationTimeout: cfg.NavigationTimeout,
		PrimaryWait:       cfg.PrimaryWait,
	}
}

// APIScraper scrapes one catalog page by capturing the JSON the page loads,
// probing for richer responses when needed and normalizing the products.
type APIScraper struct {
	page    browser.Page
	capture *ResponseCapture
	prober  *ConfigProber
	opts    APIOptions
	metrics *Metrics
	sleep   func(context.Context, time.Duration) error
}

// NewAPIScraper wires a capture into page. A nil prober disables probing.
func NewAPIScraper(page browser.Page, prober *ConfigProber, opts APIOptions, metrics *Metrics) *APIScraper {
	s := &APIScraper{
		page:    page,
		capture: NewResponseCapture(opts.APIHost, metrics),
		prober:  prober,
		opts:    opts,
		metrics: metrics,
		sleep:   sleepContext,
	}
	page.OnResponse(s.capture.Observe)
	page.OnRoute("*"+opts.APIHost+"*", func(req browser.Request) {
		slog.Debug("api request", slog.String("method", req.Method), slog.String("url", req.URL))
	})
	return s
}

// Scrape loads url and returns what its API traffic yielded. Transport
// failures are reported through PageResult.Error, never as a Go error.
func (s *APIScraper) Scrape(ctx context.Context, url string, wait time.Duration) *models.PageResult {
	logger := slog.With(slog.String("url", url))
	s.capture.Reset()

	start := time.Now()
	s.metrics.IncRequest("navigate")
	if err := s.page.Navigate(ctx, url, s.opts.NavigationTimeout); err != nil {
		classified := classifyError(err, 0)
		label := errorTypeLabel(classified)
		s.metrics.IncError(label)
		logger.Error("navigation failed", slog.String("category", label), slog.Any("error", err))
		return &models.PageResult{
			URL:       url,
			Products:  []*models.Product{},
			Error:     classified.Error(),
			ErrorType: label,
		}
	}
	s.metrics.ObserveDuration(time.Since(start))

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.PrimaryWait)
	found := s.capture.Wait(waitCtx, s.isPrimary)
	cancel()
	if !found {
		logger.Warn("no primary api response yet, waiting for trailing calls",
			slog.Duration("primary_wait", s.opts.PrimaryWait),
			slog.Duration("wait", wait),
		)
		if err := s.sleep(ctx, wait); err != nil {
			classified := classifyError(err, 0)
			return &models.PageResult{
				URL:          url,
				Products:     []*models.Product{},
				APIResponses: s.capture.Len(),
				Error:        classified.Error(),
				ErrorType:    errorTypeLabel(classified),
			}
		}
	}

	captured := s.capture.Snapshot()
	baseline := s.baseline(captured)
	if s.prober != nil && s.hasPrimary(captured) && s.prober.ShouldProbe(baseline) {
		outcome := s.prober.Probe(ctx, url, baseline)
		s.capture.Add(outcome.Added...)
		captured = s.capture.Snapshot()
		logger.Info("probing finished",
			slog.Int("attempts", outcome.Attempts),
			slog.Int("failures", outcome.Failures),
			slog.Int("added", len(outcome.Added)),
			slog.Int("best_count", outcome.BestCount),
		)
	}

	merged := parser.MergeResponses(captured, s.opts.Endpoints)

	var products []*models.Product
	if merged.Primary != nil {
		products = parser.ExtractProducts(merged.Primary)
	}
	if len(products) == 0 && merged.Subcategory != nil {
		products = parser.ExtractProducts(merged.Subcategory)
	}
	if products == nil {
		products = []*models.Product{}
	}

	pagination := parser.ResolvePagination(merged.Primary, url)
	result := &models.PageResult{
		URL:          url,
		Products:     products,
		ProductCount: len(products),
		APIResponses: len(captured),
		Pagination:   pagination.Info,
		RawData: models.RawPayloads{
			Products:    merged.Primary,
			Subcategory: merged.Subcategory,
		},
	}
	if pagination.NextURL != "" {
		next := pagination.NextURL
		result.NextPage = &next
	}

	logger.Info("page scraped",
		slog.Int("products", result.ProductCount),
		slog.Int("api_responses", result.APIResponses),
		slog.Int("merged_lists", merged.Lists),
		slog.String("next_page", pagination.NextURL),
	)
	return result
}

// Close releases the browser page.
func (s *APIScraper) Close() error {
	return s.page.Close()
}

func (s *APIScraper) isPrimary(resp models.CapturedResponse) bool {
	if resp.Status != http.StatusOK {
		return false
	}
	return s.onEndpoint(resp.URL, s.opts.Endpoints.Products) || s.onEndpoint(resp.URL, s.opts.Endpoints.Subcategory)
}

func (s *APIScraper) hasPrimary(captured []models.CapturedResponse) bool {
	for _, resp := range captured {
		if s.isPrimary(resp) {
			return true
		}
	}
	return false
}

// baseline is the largest products list among the page's own responses.
func (s *APIScraper) baseline(captured []models.CapturedResponse) int {
	best := 0
	for _, resp := range captured {
		if !s.onEndpoint(resp.URL, s.opts.Endpoints.Products) {
			continue
		}
		if count := parser.ProductCount(resp.Body); count > best {
			best = count
		}
	}
	return best
}

func (s *APIScraper) onEndpoint(url, endpoint string) bool {
	return endpoint != "" && strings.Contains(url, endpoint)
}
