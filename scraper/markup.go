package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// MarkupScraper fetches a catalog page over plain HTTP and parses the
// served markup. It only finds products on pages rendered server side; see
// RenderedScraper for client-rendered catalogs.
type MarkupScraper struct {
	collector *colly.Collector
	retry     RetryPolicy
	metrics   *Metrics
}

// NewMarkupScraper builds a fallback scraper configured from cfg.
func NewMarkupScraper(cfg *config.Config, metrics *Metrics) (*MarkupScraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &MarkupScraper{
		collector: collector,
		retry:     NewRetryPolicy(cfg, metrics),
		metrics:   metrics,
	}, nil
}

// Scrape fetches pageURL, retrying transient failures, and extracts the
// products and next-page link from its markup.
func (s *MarkupScraper) Scrape(ctx context.Context, pageURL string) (*models.PageResult, error) {
	var result *models.PageResult
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		page, err := s.fetch(pageURL)
		if err != nil {
			return err
		}
		result = page
		return nil
	})
	if err != nil {
		s.metrics.IncError(errorTypeLabel(err))
		return nil, fmt.Errorf("markup fetch %s: %w", pageURL, err)
	}
	return result, nil
}

func (s *MarkupScraper) fetch(pageURL string) (*models.PageResult, error) {
	c := s.collector.Clone()

	result := &models.PageResult{URL: pageURL, Products: []*models.Product{}}
	var fetchErr error
	var start time.Time

	c.OnRequest(func(r *colly.Request) {
		start = time.Now()
		s.metrics.IncRequest("markup")
	})
	c.OnResponse(func(r *colly.Response) {
		s.metrics.ObserveDuration(time.Since(start))
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = classifyError(err, status)
		slog.Warn("markup request error",
			slog.String("url", pageURL),
			slog.Int("status", status),
			slog.String("category", errorTypeLabel(fetchErr)),
			slog.Any("error", err),
		)
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		result = parseMarkupPage(e.DOM, e.Request.URL.String())
		result.URL = pageURL
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = classifyError(err, 0)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	slog.Info("markup page scraped", slog.String("url", pageURL), slog.Int("products", result.ProductCount))
	return result, nil
}

// parseMarkupPage extracts products and the next-page link from a parsed
// document.
func parseMarkupPage(doc *goquery.Selection, pageURL string) *models.PageResult {
	products := parser.ParseMarkupProducts(doc)
	result := &models.PageResult{URL: pageURL, Products: products, ProductCount: len(products)}
	if next := parser.FindNextPage(doc, pageURL); next != "" {
		result.NextPage = &next
	}
	return result
}
