package scraper

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/catalog-crawler/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSelectors_Product(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/2", httpmock.NewStringResponder(200, sparseProduct))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/product/2"))

	selectors, err := DefaultSelectors().PageSelectors("product")
	require.NoError(t, err)

	matches, err := CheckSelectors(ctx, s, selectors)
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Name] = m.Count
	}
	assert.Equal(t, map[string]int{
		"product_content": 1,
		"sku":             1,
		"brand":           0,
		"name":            1,
		"packaging":       1,
		"image":           1,
		"description":     0,
	}, counts)
}

func TestCheckSelectors_Listing(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/c/produce", httpmock.NewStringResponder(200, cardsPage))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/c/produce"))

	selectors, err := DefaultSelectors().PageSelectors("listing")
	require.NoError(t, err)

	matches, err := CheckSelectors(ctx, s, selectors)
	require.NoError(t, err)
	require.Len(t, matches, 5)
	assert.Equal(t, 4, matches[1].Count, "product cards")
	assert.Equal(t, 3, matches[2].Count, "product links")
	assert.Zero(t, matches[4].Count, "next page")
}

func TestCheckSelectors_SessionClosed(t *testing.T) {
	s, _ := newStatic(t)
	require.NoError(t, s.Close())

	_, err := CheckSelectors(context.Background(), s, []NamedSelector{{Name: "grid", Selector: ".category-grid-container"}})
	assert.ErrorIs(t, err, session.ErrSessionClosed)
}

func TestPageSelectors_UnknownKind(t *testing.T) {
	_, err := DefaultSelectors().PageSelectors("checkout")
	assert.Error(t, err)
}
