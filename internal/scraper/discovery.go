package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/session"
)

// Discoverer lists the categories to crawl, in crawl order.
type Discoverer interface {
	DiscoverCategories(ctx context.Context, s session.Session) ([]models.Category, error)
}

// DefaultCategorySeeds are the storefront's top-level categories.
func DefaultCategorySeeds() []models.Category {
	return []models.Category{
		{ID: "produce", DisplayName: "Produce"},
		{ID: "meatseafood", DisplayName: "Meat & Seafood"},
		{ID: "bakerybread", DisplayName: "Bakery & Breads"},
		{ID: "dairyeggs", DisplayName: "Dairy & Eggs"},
		{ID: "canneddry", DisplayName: "Canned & Dry"},
		{ID: "frozenfoods", DisplayName: "Frozen Foods"},
		{ID: "beverages", DisplayName: "Beverages"},
		{ID: "equipmentsupplies", DisplayName: "Equipment & Supplies"},
		{ID: "disposables", DisplayName: "Disposables"},
		{ID: "chemicals", DisplayName: "Chemicals"},
	}
}

// GridDiscovery finds each seed's listing URL by clicking its tile on the
// category grid and recording where the click lands.
type GridDiscovery struct {
	seeds     []models.Category
	selectors Selectors
	timings   Timings
	logger    *slog.Logger
}

func NewGridDiscovery(seeds []models.Category, selectors Selectors, timings Timings, logger *slog.Logger) *GridDiscovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &GridDiscovery{
		seeds:     seeds,
		selectors: selectors,
		timings:   timings,
		logger:    logger.With("component", "grid_discovery"),
	}
}

// DiscoverCategories returns only the seeds whose tile could be followed.
func (g *GridDiscovery) DiscoverCategories(ctx context.Context, s session.Session) ([]models.Category, error) {
	if _, err := s.WaitFor(ctx, g.selectors.CategoryGrid, g.timings.GridWait); err != nil {
		return nil, fmt.Errorf("failed to find category grid: %w", err)
	}

	found := make([]models.Category, 0, len(g.seeds))
	for _, seed := range g.seeds {
		listingURL, err := g.follow(ctx, s, seed)
		if err != nil {
			if fatal(ctx, err) {
				return models.CrawlableCategories(found), err
			}
			g.logger.Warn("failed to discover category", "category", seed.ID, "error", err)
			continue
		}

		seed.ListingURL = listingURL
		found = append(found, seed)
		g.logger.Info("discovered category", "category", seed.ID, "url", listingURL)
	}

	return models.CrawlableCategories(found), nil
}

func (g *GridDiscovery) follow(ctx context.Context, s session.Session, seed models.Category) (string, error) {
	tile, err := session.Find(ctx, s, fmt.Sprintf(g.selectors.CategoryTile, seed.ID))
	if err != nil {
		return "", err
	}
	if err := tile.ScrollIntoView(ctx); err != nil {
		return "", err
	}
	if err := session.Pause(ctx, g.timings.ScrollSettle); err != nil {
		return "", err
	}
	if err := tile.Click(ctx); err != nil {
		return "", err
	}
	if err := session.Pause(ctx, g.timings.ClickSettle); err != nil {
		return "", err
	}

	listingURL, err := s.CurrentURL(ctx)
	if err != nil {
		return "", err
	}

	if err := s.Back(ctx); err != nil {
		return "", fmt.Errorf("failed to return to category grid: %w", err)
	}
	if _, err := s.WaitFor(ctx, g.selectors.CategoryGrid, g.timings.GridWait); err != nil {
		return "", fmt.Errorf("category grid did not reload: %w", err)
	}

	return listingURL, nil
}

// StaticDiscovery returns a fixed category list.
type StaticDiscovery struct {
	categories []models.Category
}

func NewStaticDiscovery(categories []models.Category) *StaticDiscovery {
	return &StaticDiscovery{categories: categories}
}

func (d *StaticDiscovery) DiscoverCategories(ctx context.Context, _ session.Session) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return models.CrawlableCategories(d.categories), nil
}

// ParseCategories reads "id=url" pairs. Display names come from the default
// seeds when the ID is known, otherwise the ID is used.
func ParseCategories(pairs []string) ([]models.Category, error) {
	names := make(map[string]string)
	for _, seed := range DefaultCategorySeeds() {
		names[seed.ID] = seed.DisplayName
	}

	categories := make([]models.Category, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, listingURL, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(listingURL) == "" {
			return nil, fmt.Errorf("invalid category %q, want id=url", pair)
		}
		id = strings.TrimSpace(id)
		name, known := names[id]
		if !known {
			name = id
		}
		categories = append(categories, models.Category{
			ID:          id,
			DisplayName: name,
			ListingURL:  strings.TrimSpace(listingURL),
		})
	}
	return categories, nil
}
