// Package commands implements the scraper command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
)

var rootCmd = newRootCmd()

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type scrapeFlags struct {
	configFile     string
	envFile        string
	catalogURLs    []string
	maxPages       int
	delay          time.Duration
	wait           time.Duration
	outputFile     string
	outputFormat   string
	databaseURL    string
	headless       bool
	forceAll       bool
	cacheConfig    bool
	fallbackMarkup bool
	parallelism    int
	verbose        bool
	logFile        string
	metricsAddr    string
}

func newRootCmd() *cobra.Command {
	var flags *scrapeFlags
	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "scraper collects catalog products by capturing the store's API traffic.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), cfg)
		},
	}
	flags = bindScrapeFlags(cmd)
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newReportCmd())
	return cmd
}

func bindScrapeFlags(cmd *cobra.Command) *scrapeFlags {
	flags := &scrapeFlags{}
	defaults := config.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "YAML configuration file")
	f.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringSliceVar(&flags.catalogURLs, "url", nil, "catalog start URL (repeatable)")
	f.IntVar(&flags.maxPages, "pages", defaults.MaxPages, "maximum pages to follow per start URL")
	f.DurationVar(&flags.delay, "delay", defaults.Delay, "delay between page scrapes")
	f.DurationVar(&flags.wait, "wait", defaults.WaitTime, "extra wait for trailing API calls when no products response arrives")
	f.StringVarP(&flags.outputFile, "output", "o", defaults.OutputFile, "output file path")
	f.StringVar(&flags.outputFormat, "format", defaults.OutputFormat, "output format: csv, json, dual, or postgres")
	f.StringVar(&flags.databaseURL, "database-url", "", "Postgres DSN for the postgres format")
	f.BoolVar(&flags.headless, "headless", defaults.Headless, "run the browser headless")
	f.BoolVar(&flags.forceAll, "force-all", defaults.ForceAllProducts, "probe the products endpoint on every page")
	f.BoolVar(&flags.cacheConfig, "cache-config", defaults.CacheConfig, "remember the best probe configuration between runs")
	f.BoolVar(&flags.fallbackMarkup, "fallback-markup", defaults.FallbackMarkup, "parse page markup when the API yields nothing")
	f.IntVar(&flags.parallelism, "parallel", defaults.Parallelism, "pipeline workers")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&flags.logFile, "log-file", defaults.LogFile, "also write debug logs to this file (empty disables)")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	return flags
}

// loadConfig layers defaults, the YAML file, the environment and finally
// explicitly set flags.
func loadConfig(cmd *cobra.Command, flags *scrapeFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configFile != "" {
		if err := cfg.LoadFile(flags.configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("url") {
		cfg.CatalogURLs = flags.catalogURLs
	}
	if changed("pages") {
		cfg.MaxPages = flags.maxPages
	}
	if changed("delay") {
		cfg.Delay = flags.delay
	}
	if changed("wait") {
		cfg.WaitTime = flags.wait
	}
	if changed("output") {
		cfg.OutputFile = flags.outputFile
	}
	if changed("format") {
		cfg.OutputFormat = strings.ToLower(flags.outputFormat)
	}
	if changed("database-url") {
		cfg.DatabaseURL = flags.databaseURL
	}
	if changed("headless") {
		cfg.Headless = flags.headless
	}
	if changed("force-all") {
		cfg.ForceAllProducts = flags.forceAll
	}
	if changed("cache-config") {
		cfg.CacheConfig = flags.cacheConfig
	}
	if changed("fallback-markup") {
		cfg.FallbackMarkup = flags.fallbackMarkup
	}
	if changed("parallel") {
		cfg.Parallelism = flags.parallelism
	}
	if changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if changed("log-file") {
		cfg.LogFile = flags.logFile
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runScrape(ctx context.Context, cfg *config.Config) error {
	logger, level, closeLog, err := newLogger(os.Stdout, cfg.Verbose, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintln(os.Stderr, "close log file:", err)
		}
	}()
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	slog.Info("starting scrape",
		slog.Any("urls", cfg.CatalogURLs),
		slog.Int("pages", cfg.MaxPages),
		slog.String("format", cfg.OutputFormat),
	)

	metrics := scraper.NewMetrics()
	stopServer := startMetricsServer(cfg.MetricsAddr, metrics.Registry)
	defer stopServer()

	page, err := browser.NewChrome(ctx, browser.ChromeOptions{
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
		Requester: browser.NewHTTPRequester(cfg.Timeout, cfg.UserAgent),
	})
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}

	var cache scraper.ProbeCacheStore
	if cfg.CacheConfig {
		cache = scraper.NewFileCacheStore(cfg.CacheFile)
	}
	prober := scraper.NewConfigProber(page, cache, scraper.ProbeOptionsFromConfig(cfg), metrics)
	api := scraper.NewAPIScraper(page, prober, scraper.APIOptionsFromConfig(cfg), metrics)
	defer func() {
		if err := api.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	var fallback scraper.FallbackScraper
	if cfg.FallbackMarkup {
		markup, err := scraper.NewMarkupScraper(cfg, metrics)
		if err != nil {
			return fmt.Errorf("markup scraper: %w", err)
		}
		fallback = scraper.FallbackChain{scraper.NewRenderedScraper(page, cfg, metrics), markup}
	}
	crawler := scraper.NewCrawler(cfg, api, fallback, metrics)

	writer, err := createWriter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := crawler.Run(ctx, cfg.CatalogURLs, p)
	if err != nil {
		return fmt.Errorf("scraping failed: %w", err)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if err := writer.Validate(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			slog.Warn("output incomplete after interrupt", slog.Any("error", err))
		} else {
			return fmt.Errorf("output validation failed: %w", err)
		}
	}

	printSummary(os.Stdout, result, time.Since(startTime), outputTarget(cfg), p.GetMetrics())
	return nil
}
