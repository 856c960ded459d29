package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

const (
	defaultMinPrice = 0
	defaultMaxPrice = 9999
)

// ProbeOptions describes the products endpoint and when to probe it.
type ProbeOptions struct {
	Endpoint  string
	Referer   string
	Channel   string
	StoreCode int
	// Threshold is the largest baseline product count that still triggers
	// probing. ForceAll probes regardless of the baseline.
	Threshold int
	ForceAll  bool
}

// ProbeOptionsFromConfig extracts the probe settings from cfg.
func ProbeOptionsFromConfig(cfg *config.Config) ProbeOptions {
	return ProbeOptions{
		Endpoint:  cfg.ProductsEndpoint,
		Referer:   cfg.Referer,
		Channel:   cfg.Channel,
		StoreCode: cfg.StoreCode,
		Threshold: cfg.ProbeThreshold,
		ForceAll:  cfg.ForceAllProducts,
	}
}

// ProbeOutcome summarizes one probing round.
type ProbeOutcome struct {
	Attempts  int
	Failures  int
	Best      *models.ProbeConfig
	BestCount int
	// Added holds every probe payload that beat the baseline, in probe order.
	Added        []models.CapturedResponse
	CacheWritten bool
}

// ConfigProber re-queries the products endpoint with candidate parameter
// sets, looking for a request that returns more products than the page did.
type ConfigProber struct {
	page    browser.Page
	cache   ProbeCacheStore
	opts    ProbeOptions
	metrics *Metrics
	now     func() time.Time
}

// NewConfigProber builds a prober. A nil cache disables persistence.
func NewConfigProber(page browser.Page, cache ProbeCacheStore, opts ProbeOptions, metrics *Metrics) *ConfigProber {
	return &ConfigProber{
		page:    page,
		cache:   cache,
		opts:    opts,
		metrics: metrics,
		now:     time.Now,
	}
}

// ShouldProbe reports whether a baseline product count warrants probing.
func (p *ConfigProber) ShouldProbe(baseline int) bool {
	return p.opts.ForceAll || baseline <= p.opts.Threshold
}

// Probe tries every candidate configuration against target's catalog
// filters. Individual probe failures are logged and skipped.
func (p *ConfigProber) Probe(ctx context.Context, target string, baseline int) ProbeOutcome {
	var outcome ProbeOutcome

	subcategory := subcategoryID(target)
	minPrice, maxPrice := priceFilters(target)

	var cached *models.ProbeConfig
	if p.cache != nil {
		if cfg, ok := p.cache.Load(); ok {
			cached = &cfg
		}
	}
	candidates := probeCandidates(subcategory, cached)

	logger := slog.With(slog.String("url", target), slog.Int("baseline", baseline))
	logger.Info("probing products endpoint", slog.Int("candidates", len(candidates)))

	best := baseline
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		outcome.Attempts++

		captured, count, err := p.request(ctx, candidate, minPrice, maxPrice)
		if err != nil {
			outcome.Failures++
			label := errorTypeLabel(err)
			p.metrics.IncProbe("failed")
			p.metrics.IncError(label)
			logger.Warn("probe failed",
				slog.Any("config", candidate.Fields()),
				slog.String("category", label),
				slog.Any("error", err),
			)
			continue
		}

		if count > best {
			best = count
			chosen := candidate
			outcome.Best = &chosen
			outcome.BestCount = count
			p.metrics.IncProbe("improved")
			logger.Info("probe found more products", slog.Any("config", candidate.Fields()), slog.Int("count", count))
		} else {
			p.metrics.IncProbe("kept")
		}
		if count > baseline {
			outcome.Added = append(outcome.Added, captured)
		}
	}

	if outcome.Best != nil && p.cache != nil {
		if err := p.cache.Save(*outcome.Best); err != nil {
			logger.Warn("persist best probe config", slog.Any("error", err))
		} else {
			outcome.CacheWritten = true
		}
	}
	return outcome
}

func (p *ConfigProber) request(ctx context.Context, candidate models.ProbeConfig, minPrice, maxPrice float64) (models.CapturedResponse, int, error) {
	body := map[string]any{
		"channel": p.opts.Channel,
		"store":   map[string]any{"code": p.opts.StoreCode},
	}
	for key, value := range candidate.Fields() {
		body[key] = value
	}
	body["minPrice"] = minPrice
	body["maxPrice"] = maxPrice

	start := time.Now()
	p.metrics.IncRequest("probe")
	resp, err := p.page.Request(ctx, browser.DirectRequest{
		Method: http.MethodPost,
		URL:    p.opts.Endpoint,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Referer":      p.opts.Referer,
		},
		Body: body,
	})
	p.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return models.CapturedResponse{}, 0, classifyError(err, 0)
	}
	if resp.Status != http.StatusOK {
		return models.CapturedResponse{}, 0, classifyError(nil, resp.Status)
	}

	decoded, err := decodeJSON(resp.Body)
	if err != nil {
		return models.CapturedResponse{}, 0, err
	}
	captured := models.CapturedResponse{
		URL:        p.opts.Endpoint,
		Method:     http.MethodPost,
		Status:     resp.Status,
		Body:       decoded,
		Raw:        string(resp.Body),
		CapturedAt: p.now(),
	}
	return captured, parser.ProductCount(decoded), nil
}

// probeCandidates returns the fixed candidate order, with cached moved to
// the front when it equals one of them.
func probeCandidates(subcategory *int, cached *models.ProbeConfig) []models.ProbeConfig {
	typeZero, typeOne := 0, 1
	candidates := []models.ProbeConfig{
		{Type: &typeZero, SubcategoryID: subcategory},
		{Type: &typeOne, SubcategoryID: subcategory},
		{SubcategoryID: subcategory},
		{Type: &typeZero},
		{},
	}
	if cached == nil {
		return candidates
	}
	for i, candidate := range candidates {
		if candidate.Equal(*cached) {
			ordered := make([]models.ProbeConfig, 0, len(candidates))
			ordered = append(ordered, candidate)
			ordered = append(ordered, candidates[:i]...)
			ordered = append(ordered, candidates[i+1:]...)
			return ordered
		}
	}
	return candidates
}

// subcategoryID returns the integer path segment following "catalog".
func subcategoryID(target string) *int {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] != "catalog" {
			continue
		}
		id, err := strconv.Atoi(segments[i+1])
		if err != nil {
			return nil
		}
		return &id
	}
	return nil
}

// priceFilters reads minPrice and maxPrice from target's query.
func priceFilters(target string) (float64, float64) {
	minPrice, maxPrice := float64(defaultMinPrice), float64(defaultMaxPrice)
	parsed, err := url.Parse(target)
	if err != nil {
		return minPrice, maxPrice
	}
	query := parsed.Query()
	if raw := query.Get("minPrice"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			minPrice = value
		} else {
			slog.Warn("invalid minPrice, using default", slog.String("value", raw))
		}
	}
	if raw := query.Get("maxPrice"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			maxPrice = value
		} else {
			slog.Warn("invalid maxPrice, using default", slog.String("value", raw))
		}
	}
	return minPrice, maxPrice
}
