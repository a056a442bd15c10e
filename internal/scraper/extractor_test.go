package scraper

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/retry"
	"github.com/maltedev/catalog-crawler/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullProduct = `<html><body><div class="image-header-info-section">
  <div data-id="product_id">  1234567 </div>
  <button data-id="product_brand_link">Sysco Imperial</button>
  <div data-id="product_name">Apple, Gala Fresh</div>
  <div data-id="pack_size">1/40 LB</div>
  <img data-id="main-product-img-v2" src="https://img.shop.test/1234567.jpg">
  <div data-id="product_description_text">Crisp and sweet.</div>
</div></body></html>`

const sparseProduct = `<html><body><div class="image-header-info-section">
  <div data-id="product_id">7654321</div>
  <div data-id="product_name">   </div>
  <img data-id="main-product-img-v2">
  <div data-id="pack_size">6/#10 CN</div>
</div></body></html>`

const blankProduct = `<html><body><div class="image-header-info-section"></div></body></html>`

func newExtractor() *ProductExtractor {
	return NewProductExtractor(ExtractorOptions{
		Selectors: DefaultSelectors(),
		Timings:   noWait(),
		Policy:    retry.Fixed(DefaultExtractTries, 0),
		Usability: models.DefaultUsabilityPolicy(),
	}, nil)
}

func TestExtractor_UsableRecord(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/1", httpmock.NewStringResponder(200, fullProduct))

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/1")

	require.Equal(t, OutcomeOK, result.Outcome)
	assert.NoError(t, result.Err)
	assert.Equal(t, models.ProductRecord{
		SKU:         "1234567",
		Brand:       "Sysco Imperial",
		Name:        "Apple, Gala Fresh",
		Packaging:   "1/40 LB",
		ImageURL:    "https://img.shop.test/1234567.jpg",
		Description: "Crisp and sweet.",
		SourceURL:   "https://shop.test/product/1",
		ScrapedAt:   result.Value.ScrapedAt,
	}, result.Value)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://shop.test/product/1"])
}

func TestExtractor_PartialAfterRetries(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/2", httpmock.NewStringResponder(200, sparseProduct))

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/2")

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.ErrorIs(t, result.Err, retry.ErrExhausted)
	assert.Equal(t, 2, result.Value.ValidFieldCount())
	assert.Equal(t, "7654321", result.Value.SKU)
	assert.Equal(t, models.Unknown, result.Value.Name)
	assert.Equal(t, models.Unknown, result.Value.ImageURL)
	assert.Equal(t, models.Unknown, result.Value.Brand)
	assert.Equal(t, DefaultExtractTries, transport.GetCallCountInfo()["GET https://shop.test/product/2"])
}

func TestExtractor_RetryRecovers(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/3",
		httpmock.NewStringResponder(200, sparseProduct).Then(httpmock.NewStringResponder(200, fullProduct)))

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/3")

	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 6, result.Value.ValidFieldCount())
}

func TestExtractor_FailedWhenPageNeverLoads(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/4", httpmock.NewStringResponder(503, "busy"))

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/4")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrNoSession)
	assert.Equal(t, DefaultExtractTries, transport.GetCallCountInfo()["GET https://shop.test/product/4"])
}

func TestExtractor_LoadedPageWithoutFieldsIsPartial(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/5", httpmock.NewStringResponder(200, blankProduct))

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/5")

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.ErrorIs(t, result.Err, retry.ErrExhausted)
	assert.NotErrorIs(t, result.Err, ErrNoSession)
	assert.Zero(t, result.Value.ValidFieldCount())
	assert.Equal(t, "https://shop.test/product/5", result.Value.SourceURL)
	assert.Equal(t, DefaultExtractTries, transport.GetCallCountInfo()["GET https://shop.test/product/5"])
}

func TestExtractor_MissingContentRegionIsRetried(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/6",
		httpmock.NewStringResponder(200, `<html><body>spinner</body></html>`).Then(httpmock.NewStringResponder(200, fullProduct)))

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/6")

	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 2, transport.GetCallCountInfo()["GET https://shop.test/product/6"])
}

func TestExtractor_SessionLostIsNotRetried(t *testing.T) {
	s, transport := newStatic(t)
	require.NoError(t, s.Close())

	result := newExtractor().Extract(context.Background(), s, "https://shop.test/product/7")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, session.ErrSessionClosed)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestExtractor_CustomUsabilityThreshold(t *testing.T) {
	s, transport := newStatic(t)
	transport.RegisterResponder("GET", "https://shop.test/product/8", httpmock.NewStringResponder(200, sparseProduct))

	extractor := NewProductExtractor(ExtractorOptions{
		Selectors: DefaultSelectors(),
		Timings:   noWait(),
		Policy:    retry.Fixed(DefaultExtractTries, 0),
		Usability: models.UsabilityPolicy{MinFields: 2},
	}, nil)

	result := extractor.Extract(context.Background(), s, "https://shop.test/product/8")

	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://shop.test/product/8"])
}
