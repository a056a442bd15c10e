package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/retry"
	"github.com/maltedev/catalog-crawler/internal/session"
)

// DefaultLinkTries is the number of attempts made to read a listing page.
const DefaultLinkTries = 3

type LinkCollector struct {
	selectors Selectors
	timings   Timings
	policy    retry.Policy
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewLinkCollector(selectors Selectors, timings Timings, policy retry.Policy, m *metrics.Metrics, logger *slog.Logger) *LinkCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkCollector{
		selectors: selectors,
		timings:   timings,
		policy:    policy,
		metrics:   m,
		logger:    logger.With("component", "link_collector"),
	}
}

// CollectLinks returns the absolute product URLs on the current listing page
// in page order. A page that stays empty after every try yields an empty
// slice; only session loss or cancellation produce an error.
func (c *LinkCollector) CollectLinks(ctx context.Context, s session.Session) ([]string, error) {
	var prev error
	links, tries, err := retry.Attempt(ctx, c.policy, func(ctx context.Context, try int) ([]string, error) {
		// Only a page that rendered without cards is reloaded; other
		// failures are retried in place after the policy's delay.
		if try > 1 && errors.Is(prev, ErrNoCards) {
			c.logger.Info("reloading listing page", "try", try)
			if err := s.Reload(ctx); err != nil {
				if fatal(ctx, err) {
					return nil, retry.Permanent(err)
				}
				c.logger.Warn("failed to reload listing page", "error", err)
			}
		}
		var links []string
		links, prev = c.collect(ctx, s)
		return links, prev
	}, nil)
	c.metrics.AddRetries("links", tries)

	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		c.logger.Warn("no product links found", "tries", tries, "error", err)
		return []string{}, nil
	}

	return links, nil
}

func (c *LinkCollector) collect(ctx context.Context, s session.Session) ([]string, error) {
	if _, err := s.WaitFor(ctx, c.selectors.ListingContainer, c.timings.ListingWait); err != nil {
		if fatal(ctx, err) {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("failed waiting for listing: %w", err)
	}

	cards, err := s.FindAll(ctx, c.selectors.ProductCard)
	if err != nil {
		if fatal(ctx, err) {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("failed to find product cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, ErrNoCards
	}

	base, _ := s.CurrentURL(ctx)

	links := make([]string, 0, len(cards))
	for i, card := range cards {
		link, err := session.Find(ctx, card, c.selectors.ProductLink)
		if err != nil {
			c.logger.Debug("card has no product link", "index", i, "error", err)
			continue
		}
		href, ok, err := link.Attribute(ctx, "href")
		if err != nil || !ok || strings.TrimSpace(href) == "" {
			c.logger.Debug("card link has no href", "index", i)
			continue
		}
		links = append(links, resolve(base, href))
	}

	c.logger.Debug("collected product links", "cards", len(cards), "links", len(links))
	return links, nil
}

// resolve makes href absolute against base when possible.
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() || base == "" {
		return ref.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
