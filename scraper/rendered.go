package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// RenderedScraper loads a catalog page in the browser and parses the DOM
// the client application rendered.
type RenderedScraper struct {
	page    browser.Page
	timeout time.Duration
	metrics *Metrics
}

// NewRenderedScraper builds a fallback scraper that drives page.
func NewRenderedScraper(page browser.Page, cfg *config.Config, metrics *Metrics) *RenderedScraper {
	return &RenderedScraper{
		page:    page,
		timeout: cfg.NavigationTimeout,
		metrics: metrics,
	}
}

// Scrape navigates to pageURL and extracts products from the rendered
// document.
func (s *RenderedScraper) Scrape(ctx context.Context, pageURL string) (*models.PageResult, error) {
	start := time.Now()
	s.metrics.IncRequest("rendered")

	if err := s.page.Navigate(ctx, pageURL, s.timeout); err != nil {
		classified := classifyError(err, 0)
		s.metrics.IncError(errorTypeLabel(classified))
		return nil, fmt.Errorf("render %s: %w", pageURL, classified)
	}
	html, err := s.page.Content(ctx)
	if err != nil {
		classified := classifyError(err, 0)
		s.metrics.IncError(errorTypeLabel(classified))
		return nil, fmt.Errorf("read rendered %s: %w", pageURL, classified)
	}
	s.metrics.ObserveDuration(time.Since(start))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered %s: %w", pageURL, err)
	}
	result := parseMarkupPage(doc.Selection, pageURL)

	slog.Info("rendered page scraped", slog.String("url", pageURL), slog.Int("products", result.ProductCount))
	return result, nil
}

// FallbackChain tries each fallback in order and returns the first result
// that has products. When none does, the last result or the joined errors
// are returned.
type FallbackChain []FallbackScraper

// Scrape implements FallbackScraper.
func (chain FallbackChain) Scrape(ctx context.Context, pageURL string) (*models.PageResult, error) {
	var (
		last *models.PageResult
		errs []error
	)
	for _, fallback := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := fallback.Scrape(ctx, pageURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(result.Products) > 0 {
			return result, nil
		}
		last = result
	}
	if last != nil {
		return last, nil
	}
	if len(errs) == 0 {
		return &models.PageResult{URL: pageURL, Products: []*models.Product{}}, nil
	}
	return nil, errors.Join(errs...)
}
