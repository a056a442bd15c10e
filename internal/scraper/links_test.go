package scraper

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/catalog-crawler/internal/retry"
	"github.com/maltedev/catalog-crawler/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardsPage = `<html><body><div class="catalog-cards-wrapper">
  <div class="product-card-container"><a class="product-card-link" href="/product/111">A</a></div>
  <div class="product-card-container"><span>sold out</span></div>
  <div class="product-card-container"><a class="product-card-link" href="https://cdn.shop.test/product/222">B</a></div>
  <div class="product-card-container"><a class="product-card-link" href="">C</a></div>
</div></body></html>`

const emptyListing = `<html><body><div class="catalog-cards-wrapper"></div></body></html>`

func newLinkCollector() *LinkCollector {
	return NewLinkCollector(DefaultSelectors(), noWait(), retry.Fixed(DefaultLinkTries, 0), nil, nil)
}

func TestLinkCollector_CollectsInPageOrder(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/c/produce", httpmock.NewStringResponder(200, cardsPage))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/c/produce"))

	links, err := newLinkCollector().CollectLinks(ctx, s)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.test/product/111",
		"https://cdn.shop.test/product/222",
	}, links)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://shop.test/c/produce"])
}

func TestLinkCollector_ReloadsEmptyPage(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/c/produce",
		httpmock.NewStringResponder(200, emptyListing).
			Then(httpmock.NewStringResponder(200, emptyListing)).
			Then(httpmock.NewStringResponder(200, cardsPage)))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/c/produce"))

	links, err := newLinkCollector().CollectLinks(ctx, s)

	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.Equal(t, 3, transport.GetCallCountInfo()["GET https://shop.test/c/produce"])
}

func TestLinkCollector_ExhaustionIsEmptyNotError(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/c/produce", httpmock.NewStringResponder(200, emptyListing))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/c/produce"))

	links, err := newLinkCollector().CollectLinks(ctx, s)

	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
	// one navigation plus a reload before each of the two retries
	assert.Equal(t, 3, transport.GetCallCountInfo()["GET https://shop.test/c/produce"])
}

func TestLinkCollector_MissingContainerRetriesWithoutReload(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/c/produce",
		httpmock.NewStringResponder(200, `<html><body>loading</body></html>`).
			Then(httpmock.NewStringResponder(200, cardsPage)))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/c/produce"))

	links, err := newLinkCollector().CollectLinks(ctx, s)

	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://shop.test/c/produce"])
}

func TestLinkCollector_SessionLost(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/c/produce", httpmock.NewStringResponder(200, cardsPage))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://shop.test/c/produce"))
	require.NoError(t, s.Close())

	links, err := newLinkCollector().CollectLinks(ctx, s)

	assert.ErrorIs(t, err, session.ErrSessionClosed)
	assert.Empty(t, links)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base string
		href string
		want string
	}{
		{base: "https://shop.test/c/produce?page=2", href: "/product/1", want: "https://shop.test/product/1"},
		{base: "https://shop.test/c/produce", href: "https://other.test/x", want: "https://other.test/x"},
		{base: "", href: "/product/1", want: "/product/1"},
		{base: "https://shop.test/c/", href: " rel ", want: "https://shop.test/c/rel"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resolve(tt.base, tt.href))
	}
}
