package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sjsage522/menucrawler/config"
	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/browser"
	"sjsage522/menucrawler/internal/crawler"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/services/storage"
	"sjsage522/menucrawler/services/worker"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "menucrawler",
		Short:         "menucrawler extracts restaurant menus from food delivery sites.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCrawlCmd(), newPlatformsCmd(), newIndexCmd())
	return root
}

// crawlFlags override the environment configuration when set
type crawlFlags struct {
	platforms   []string
	cities      []string
	saveDir     string
	selectors   string
	workers     int
	headless    bool
	interactive bool
	interval    time.Duration
}

func (f *crawlFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("platform") {
		cfg.Platforms = f.platforms
	}
	if changed("city") {
		cfg.Cities = f.cities
	}
	if changed("save-dir") {
		cfg.SaveDir = f.saveDir
	}
	if changed("selectors") {
		cfg.SelectorsFile = f.selectors
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("headless") {
		cfg.Headless = f.headless
	}
	if changed("interactive") {
		cfg.Interactive = f.interactive
	}
	if changed("interval") {
		cfg.CrawlInterval = f.interval
	}
}

func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the selected platforms and cities, resuming earlier runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			flags.apply(cmd, cfg)
			return runCrawl(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&flags.platforms, "platform", "p", nil, "platforms to crawl (default all)")
	f.StringSliceVarP(&flags.cities, "city", "c", nil, "cities to crawl (default the platform's list)")
	f.StringVar(&flags.saveDir, "save-dir", "", "directory records are written to")
	f.StringVar(&flags.selectors, "selectors", "", "YAML file overriding built-in platform tables")
	f.IntVarP(&flags.workers, "workers", "w", 0, "merchant pages extracted in parallel per platform")
	f.BoolVar(&flags.headless, "headless", true, "run Chrome without a window")
	f.BoolVarP(&flags.interactive, "interactive", "i", false, "ask an operator to solve captchas")
	f.DurationVar(&flags.interval, "interval", 0, "repeat the crawl on this interval (0 runs once)")
	return cmd
}

func runCrawl(ctx context.Context, cfg *config.Config) error {
	log := logger.Default

	if err := cfg.Validate(); err != nil {
		return err
	}
	all, err := config.LoadPlatforms(cfg.SelectorsFile)
	if err != nil {
		return err
	}
	platforms, err := config.SelectPlatforms(all, cfg.Platforms)
	if err != nil {
		return err
	}

	log.Info().
		Str("environment", cfg.Environment).
		Strs("platforms", platformNames(platforms)).
		Int("workers", cfg.Workers).
		Bool("interactive", cfg.Interactive).
		Dur("crawl_interval", cfg.CrawlInterval).
		Msg("Starting application")

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Cleanup()

	deps := crawler.Dependencies{
		Launcher: browser.NewLauncher(browser.Options{
			Headless:  cfg.Headless,
			RemoteURL: cfg.ChromeRemoteURL,
			UserAgent: cfg.UserAgent,
		}),
		Cache:    services.Cache,
		ErrorLog: helpers.NewLogger(cfg.ErrorLogFile),
		OpenSink: services.OpenSink(cfg.SaveDir),
	}
	if cfg.Interactive {
		deps.Operator = crawler.NewConsoleOperator(os.Stdin, os.Stdout)
	}

	crawlers, err := crawler.CreateCrawlers(cfg, platforms, deps)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range crawlers {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("crawler", c.GetName()).Msg("Failed to close crawler")
			}
		}
	}()

	w := worker.NewWorker(ctx, crawlers, services.Publisher, deps.ErrorLog, cfg.CrawlInterval)
	w.OnCycle = func(summaries []*crawler.Summary) {
		renderSummaries(os.Stdout, summaries)
	}

	log.Info().Msg("Starting menu crawler")
	err = w.Start()
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Shutting down gracefully...")
		return nil
	}
	return err
}

func platformNames(platforms []*config.Platform) []string {
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, p.Name)
	}
	return names
}

func newPlatformsCmd() *cobra.Command {
	var selectors string
	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "Lists the platforms and their default cities.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if selectors == "" {
				selectors = config.LoadConfig().SelectorsFile
			}
			all, err := config.LoadPlatforms(selectors)
			if err != nil {
				return err
			}
			platforms, err := config.SelectPlatforms(all, nil)
			if err != nil {
				return err
			}
			renderPlatforms(cmd.OutOrStdout(), platforms)
			return nil
		},
	}
	cmd.Flags().StringVar(&selectors, "selectors", "", "YAML file overriding built-in platform tables")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var saveDir string
	cmd := &cobra.Command{
		Use:   "index <platform>",
		Short: "Prints the master index of merchants saved for a platform.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if saveDir == "" {
				saveDir = config.LoadConfig().SaveDir
			}
			sink, err := storage.Open(saveDir, strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			defer sink.Close()
			renderIndex(cmd.OutOrStdout(), sink.Index(), sink.ProcessedCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "directory records were written to")
	return cmd
}
