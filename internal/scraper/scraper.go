package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/catalog-crawler/internal/session"
)

var (
	ErrAdvanceFailed = errors.New("failed to advance to next page")
	ErrNoSession     = errors.New("no product data could be read")
	ErrNoCards       = errors.New("no product cards on page")
)

// Selectors locates the storefront's page elements. The zero value is not
// usable; start from DefaultSelectors.
type Selectors struct {
	CategoryGrid string
	// CategoryTile is a format string taking the category ID.
	CategoryTile string

	ListingContainer string
	ProductCard      string
	ProductLink      string
	ResultsCount     string
	NextPage         string

	ProductContent string
	SKU            string
	Brand          string
	Name           string
	Packaging      string
	Image          string
	ImageAttribute string
	Description    string

	ShopNow         TextTarget
	ContinueAsGuest TextTarget
	ZipInput        string
	StartShopping   TextTarget
}

// TextTarget matches the first element for Selector whose text contains
// Contains.
type TextTarget struct {
	Selector string
	Contains string
}

func DefaultSelectors() Selectors {
	return Selectors{
		CategoryGrid: ".category-grid-container",
		CategoryTile: "div.category-grid-button span[data-id='lbl_category_app.dashboard.%s.title']",

		ListingContainer: ".catalog-cards-wrapper",
		ProductCard:      "div.product-card-container",
		ProductLink:      "a.product-card-link",
		ResultsCount:     "span[data-id='ss-searchPage-header-label-searchResultsTotalText']",
		NextPage:         "button.pagination-btn-right",

		ProductContent: ".image-header-info-section",
		SKU:            "div[data-id='product_id']",
		Brand:          "button[data-id='product_brand_link']",
		Name:           "div[data-id='product_name']",
		Packaging:      "div[data-id='pack_size']",
		Image:          "img[data-id='main-product-img-v2']",
		ImageAttribute: "src",
		Description:    "div[data-id='product_description_text']",

		ShopNow:         TextTarget{Selector: "a", Contains: "Shop Now"},
		ContinueAsGuest: TextTarget{Selector: "button", Contains: "Continue as Guest"},
		ZipInput:        "input[data-id='initial_zipcode_modal_input']",
		StartShopping:   TextTarget{Selector: "button", Contains: "Start Shopping"},
	}
}

// Timings bounds every wait the crawler makes.
type Timings struct {
	GridWait      time.Duration
	ListingWait   time.Duration
	ResultsWait   time.Duration
	NextPageWait  time.Duration
	ContentWait   time.Duration
	ScrollSettle  time.Duration
	AdvanceSettle time.Duration
	ClickSettle   time.Duration
	LoginSettle   time.Duration
	RetryDelay    time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		GridWait:      10 * time.Second,
		ListingWait:   15 * time.Second,
		ResultsWait:   10 * time.Second,
		NextPageWait:  5 * time.Second,
		ContentWait:   15 * time.Second,
		ScrollSettle:  time.Second,
		AdvanceSettle: 3 * time.Second,
		ClickSettle:   2 * time.Second,
		LoginSettle:   5 * time.Second,
		RetryDelay:    2 * time.Second,
	}
}

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomePartial
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one crawl stage.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// fatal reports whether err ends the run rather than the current step.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, session.ErrSessionClosed)
}
