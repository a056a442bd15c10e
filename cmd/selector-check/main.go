package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/config"
	"github.com/maltedev/catalog-crawler/internal/logging"
	"github.com/maltedev/catalog-crawler/internal/scraper"
)

func main() {
	var (
		url     = flag.String("url", "", "page to check")
		kind    = flag.String("kind", "listing", "page kind: grid, listing or product")
		backend = flag.String("backend", "", "session backend, overrides BROWSER_BACKEND")
		guest   = flag.Bool("guest", false, "enter the storefront as a guest before opening the page")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "Please provide a URL with -url")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Browser.Backend = *backend
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	selectors := scraper.DefaultSelectors()
	checks, err := selectors.PageSelectors(*kind)
	if err != nil {
		logger.Error("invalid page kind", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout

	s, err := browser.Open(ctx, cfg.Browser.Backend, opts, logger)
	if err != nil {
		logger.Error("failed to open session", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if *guest {
		timings := scraper.DefaultTimings()
		bootstrap := scraper.NewGuestBootstrap(nil, cfg.Site.HomeURL, cfg.Site.Zip, selectors, timings, logger)
		if err := bootstrap.AuthenticateGuest(ctx, s); err != nil {
			logger.Error("guest entry failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("opening page", "url", *url, "kind", *kind, "backend", cfg.Browser.Backend)
	if err := s.Navigate(ctx, *url); err != nil {
		logger.Error("failed to navigate", "error", err)
		os.Exit(1)
	}

	matches, err := scraper.CheckSelectors(ctx, s, checks)
	if err != nil {
		logger.Error("selector check failed", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMATCHES\tSELECTOR")
	missing := 0
	for _, m := range matches {
		if m.Count == 0 {
			missing++
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", m.Name, m.Count, m.Selector)
	}
	w.Flush()

	if missing > 0 {
		logger.Warn("selectors without matches", "count", missing)
		os.Exit(1)
	}
}
