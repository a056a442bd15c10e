package models

import (
	"strings"
	"sync"
	"time"
)

// Unknown marks a product field that could not be read.
const Unknown = "N/A"

// DefaultMinValidFields is the usability threshold used when none is configured.
const DefaultMinValidFields = 3

type Category struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ListingURL  string `json:"listing_url"`
}

// Crawlable reports whether the category has a listing to visit.
func (c Category) Crawlable() bool {
	return strings.TrimSpace(c.ListingURL) != ""
}

// CrawlableCategories drops categories without a listing URL, keeping order.
func CrawlableCategories(categories []Category) []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.Crawlable() {
			out = append(out, c)
		}
	}
	return out
}

type ProductRecord struct {
	SKU         string    `json:"sku"`
	Brand       string    `json:"brand"`
	Name        string    `json:"name"`
	Packaging   string    `json:"packaging"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	SourceURL   string    `json:"source_url,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// NewProductRecord returns a record with every extracted field set to Unknown.
func NewProductRecord(sourceURL string) ProductRecord {
	return ProductRecord{
		SKU:         Unknown,
		Brand:       Unknown,
		Name:        Unknown,
		Packaging:   Unknown,
		ImageURL:    Unknown,
		Description: Unknown,
		SourceURL:   sourceURL,
		ScrapedAt:   time.Now(),
	}
}

// Fields returns the six extracted fields in CSV column order.
func (p ProductRecord) Fields() []string {
	return []string{p.SKU, p.Brand, p.Name, p.Packaging, p.ImageURL, p.Description}
}

// ValidFieldCount counts extracted fields that are not Unknown.
func (p ProductRecord) ValidFieldCount() int {
	count := 0
	for _, f := range p.Fields() {
		if IsKnown(f) {
			count++
		}
	}
	return count
}

// IsKnown reports whether a field value carries data.
func IsKnown(value string) bool {
	return value != "" && value != Unknown
}

// FieldOrUnknown normalizes an empty read to Unknown.
func FieldOrUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return Unknown
	}
	return value
}

// UsabilityPolicy decides whether a record carries enough data to keep as a
// complete result.
type UsabilityPolicy struct {
	MinFields int
}

func DefaultUsabilityPolicy() UsabilityPolicy {
	return UsabilityPolicy{MinFields: DefaultMinValidFields}
}

func (u UsabilityPolicy) Usable(p ProductRecord) bool {
	threshold := u.MinFields
	if threshold <= 0 {
		threshold = DefaultMinValidFields
	}
	return p.ValidFieldCount() >= threshold
}

// PageState describes one listing page visit.
type PageState struct {
	CategoryID string
	PageIndex  int
	TotalPages int
	ListingURL string
}

func (p PageState) IsLast() bool {
	return p.PageIndex >= p.TotalPages
}

// CrawlProgress is the running tally of a crawl. It is safe for concurrent
// readers while the crawl loop records results.
type CrawlProgress struct {
	mu               sync.RWMutex
	runID            string
	targetQuota      int
	totalAccumulated int
	perCategory      map[string]int
	order            []string
	current          string
	startedAt        time.Time
}

// ProgressSnapshot is a point-in-time copy of CrawlProgress.
type ProgressSnapshot struct {
	RunID            string         `json:"run_id"`
	TargetQuota      int            `json:"target_quota"`
	TotalAccumulated int            `json:"total_accumulated"`
	PerCategory      map[string]int `json:"per_category"`
	Categories       []string       `json:"categories"`
	CurrentCategory  string         `json:"current_category,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	QuotaReached     bool           `json:"quota_reached"`
}

func NewCrawlProgress(runID string, targetQuota int) *CrawlProgress {
	return &CrawlProgress{
		runID:       runID,
		targetQuota: targetQuota,
		perCategory: make(map[string]int),
		startedAt:   time.Now(),
	}
}

// Begin marks categoryID as the one being crawled.
func (c *CrawlProgress) Begin(categoryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = categoryID
}

// Record adds count records for categoryID and returns the new total.
func (c *CrawlProgress) Record(categoryID string, count int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.perCategory[categoryID]; !ok {
		c.order = append(c.order, categoryID)
	}
	c.perCategory[categoryID] += count
	c.totalAccumulated += count
	c.current = ""
	return c.totalAccumulated
}

func (c *CrawlProgress) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalAccumulated
}

// QuotaReached reports whether the accumulated total meets the target. A
// non-positive target never stops the crawl.
func (c *CrawlProgress) QuotaReached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quotaReachedLocked()
}

func (c *CrawlProgress) quotaReachedLocked() bool {
	return c.targetQuota > 0 && c.totalAccumulated >= c.targetQuota
}

func (c *CrawlProgress) Snapshot() ProgressSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	per := make(map[string]int, len(c.perCategory))
	for k, v := range c.perCategory {
		per[k] = v
	}
	order := make([]string, len(c.order))
	copy(order, c.order)

	return ProgressSnapshot{
		RunID:            c.runID,
		TargetQuota:      c.targetQuota,
		TotalAccumulated: c.totalAccumulated,
		PerCategory:      per,
		Categories:       order,
		CurrentCategory:  c.current,
		StartedAt:        c.startedAt,
		QuotaReached:     c.quotaReachedLocked(),
	}
}
