package scraper

import (
	"context"
	"fmt"

	"github.com/maltedev/catalog-crawler/internal/session"
)

type NamedSelector struct {
	Name     string
	Selector string
}

type SelectorMatch struct {
	NamedSelector
	Count int
}

// PageSelectors lists the selectors expected on a page of the given kind:
// "grid", "listing" or "product".
func (s Selectors) PageSelectors(kind string) ([]NamedSelector, error) {
	switch kind {
	case "grid":
		return []NamedSelector{
			{Name: "category_grid", Selector: s.CategoryGrid},
		}, nil
	case "listing":
		return []NamedSelector{
			{Name: "listing_container", Selector: s.ListingContainer},
			{Name: "product_card", Selector: s.ProductCard},
			{Name: "product_link", Selector: s.ProductLink},
			{Name: "results_count", Selector: s.ResultsCount},
			{Name: "next_page", Selector: s.NextPage},
		}, nil
	case "product":
		return []NamedSelector{
			{Name: "product_content", Selector: s.ProductContent},
			{Name: "sku", Selector: s.SKU},
			{Name: "brand", Selector: s.Brand},
			{Name: "name", Selector: s.Name},
			{Name: "packaging", Selector: s.Packaging},
			{Name: "image", Selector: s.Image},
			{Name: "description", Selector: s.Description},
		}, nil
	default:
		return nil, fmt.Errorf("unknown page kind %q", kind)
	}
}

// CheckSelectors counts the matches of each selector on the current page.
func CheckSelectors(ctx context.Context, s session.Session, selectors []NamedSelector) ([]SelectorMatch, error) {
	matches := make([]SelectorMatch, 0, len(selectors))
	for _, sel := range selectors {
		elements, err := s.FindAll(ctx, sel.Selector)
		if err != nil {
			return matches, fmt.Errorf("failed to query %s: %w", sel.Name, err)
		}
		matches = append(matches, SelectorMatch{NamedSelector: sel, Count: len(elements)})
	}
	return matches, nil
}
