package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/riacrawler/internal/config"
	"github.com/amosWeiskopf/riacrawler/internal/logging"
	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/internal/telemetry"
	"github.com/amosWeiskopf/riacrawler/pkg/analyzer"
	"github.com/amosWeiskopf/riacrawler/pkg/assembler"
	"github.com/amosWeiskopf/riacrawler/pkg/crawler"
	"github.com/amosWeiskopf/riacrawler/pkg/extractor"
	"github.com/amosWeiskopf/riacrawler/pkg/fetch"
	"github.com/amosWeiskopf/riacrawler/pkg/sink"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Submit the search filter and crawl every result page",
	Args:  cobra.NoArgs,
	RunE:  runCrawl,
}

func init() {
	f := crawlCmd.Flags()

	// Crawl
	f.String("start-url", "", "Search page the filter form is submitted on")
	f.Int("workers", 4, "Concurrent fetch workers")
	f.Int("max-pages", 0, "Listing pages to visit, 0 for no limit")
	f.Int("profile", 2, "Record profile: 1 basic, 2 rich")
	f.Bool("follow-robots-txt", true, "Skip URLs disallowed by robots.txt")
	f.String("splash-url", "", "Splash rendering service URL")

	// Output
	f.String("sink", "", "Output types, comma separated (xlsx, ndjson, sqlite, postgres)")
	f.String("output", "", "Output file path")
	f.String("dsn", "", "Postgres connection string")
	f.Bool("include-listings", false, "Also write one record per listing page")

	// Search filter
	f.String("category", "any", "Vehicle category")
	f.String("brand", "", "Brand")
	f.String("model", "", "Model")
	f.String("region", "", "Region")
	f.Int("min-year", 0, "Lowest model year")
	f.Int("max-year", 0, "Highest model year")
	f.Int("min-price", 0, "Lowest price in USD")
	f.Int("max-price", 0, "Highest price in USD")
	f.String("condition", "any", "Vehicle condition")
	f.Bool("verified-vin", false, "Only adverts with a verified VIN")

	// Logging
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	addReportFlags(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return configError(fmt.Errorf("failed to load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return configError(err)
	}
	slog.SetDefault(logger)

	shutdown, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("trace export shutdown failed", "error", err)
		}
	}()

	detailOpts, err := cfg.DetailOptions(time.Now())
	if err != nil {
		return configError(err)
	}
	filter, err := models.NewSearchFilter(cfg.FilterParams(), detailOpts.YearBounds)
	if err != nil {
		return configError(err)
	}
	profile, err := assembler.ProfileFor(cfg.Crawler.Profile, detailOpts)
	if err != nil {
		return configError(err)
	}
	selectors, err := extractor.New(cfg.SelectorOverrides())
	if err != nil {
		return configError(fmt.Errorf("invalid selectors: %w", err))
	}
	scripts, err := fetch.LoadScripts(cfg.ScriptOverrides())
	if err != nil {
		return configError(err)
	}

	agents := fetch.NewUserAgentPool(cfg.UserAgents.List, cfg.UserAgents.SourceURL, logger)
	agents.Start(ctx, cfg.UserAgents.RefreshInterval)

	client, err := fetch.NewSplashClient(cfg.SplashOptions(), scripts, agents, logger)
	if err != nil {
		return configError(err)
	}

	out, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	collector := analyzer.NewCollector()
	records := sink.NewMulti(out, collector)

	c, err := crawler.New(cfg.CrawlerOptions(), filter, profile, crawler.Dependencies{
		Fetcher:  client,
		Selector: selectors,
		Sink:     records,
		Logger:   logger,
	})
	if err != nil {
		records.Close()
		return configError(fmt.Errorf("failed to create crawler: %w", err))
	}

	summary, runErr := c.Run(ctx)
	if err := records.Close(); err != nil {
		logger.Error("failed to close output", "error", err)
	}

	var connErr *crawler.ConnectivityError
	switch {
	case errors.As(runErr, &connErr):
		return &exitError{code: 3, err: runErr}
	case errors.Is(runErr, context.Canceled):
		logger.Warn("crawl interrupted, reporting partial results")
	case runErr != nil:
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	report := analyzer.New().Analyze(collector.Rows(), &summary, cfg.Crawler.StartURL)
	return writeReport(cmd, report)
}
