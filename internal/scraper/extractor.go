package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/ratelimit"
	"github.com/maltedev/catalog-crawler/internal/retry"
	"github.com/maltedev/catalog-crawler/internal/session"
)

// DefaultExtractTries is the number of attempts made per product page.
const DefaultExtractTries = 2

type ProductExtractor struct {
	selectors Selectors
	timings   Timings
	policy    retry.Policy
	usability models.UsabilityPolicy
	limiter   ratelimit.RateLimiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type ExtractorOptions struct {
	Selectors Selectors
	Timings   Timings
	Policy    retry.Policy
	Usability models.UsabilityPolicy
	// Limiter paces product page loads. Nil means no pacing.
	Limiter ratelimit.RateLimiter
	Metrics *metrics.Metrics
}

func NewProductExtractor(opts ExtractorOptions, logger *slog.Logger) *ProductExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &ProductExtractor{
		selectors: opts.Selectors,
		timings:   opts.Timings,
		policy:    opts.Policy,
		usability: opts.Usability,
		limiter:   limiter,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "extractor"),
	}
}

// Extract loads productURL and reads its fields. A usable record gives
// OutcomeOK. When no try yields a usable record the best partial one is
// returned with OutcomePartial, even when none of its fields are known; only
// when no page could be loaded at all is the result OutcomeFailed wrapping
// ErrNoSession.
func (e *ProductExtractor) Extract(ctx context.Context, s session.Session, productURL string) Result[models.ProductRecord] {
	start := time.Now()
	defer func() { e.metrics.ObserveExtract(time.Since(start).Seconds()) }()

	var (
		best     models.ProductRecord
		haveBest bool
	)

	record, tries, err := retry.Attempt(ctx, e.policy, func(ctx context.Context, try int) (models.ProductRecord, error) {
		rec, err := e.read(ctx, s, productURL)
		if err != nil {
			e.logger.Warn("failed to load product page", "url", productURL, "try", try, "error", err)
			if fatal(ctx, err) {
				return rec, retry.Permanent(err)
			}
			return rec, err
		}
		if !haveBest || rec.ValidFieldCount() > best.ValidFieldCount() {
			best, haveBest = rec, true
		}
		if !e.usability.Usable(rec) {
			e.logger.Info("product record incomplete", "url", productURL, "try", try, "valid_fields", rec.ValidFieldCount())
		}
		return rec, nil
	}, func(rec models.ProductRecord, err error) bool {
		return err == nil && e.usability.Usable(rec)
	})
	e.metrics.AddRetries("extract", tries)

	var result Result[models.ProductRecord]
	switch {
	case err == nil:
		result = Result[models.ProductRecord]{Value: record, Outcome: OutcomeOK}
	case fatal(ctx, err):
		result = Result[models.ProductRecord]{Value: best, Outcome: OutcomeFailed, Err: err}
	case haveBest:
		result = Result[models.ProductRecord]{Value: best, Outcome: OutcomePartial, Err: err}
	default:
		result = Result[models.ProductRecord]{
			Value:   models.NewProductRecord(productURL),
			Outcome: OutcomeFailed,
			Err:     fmt.Errorf("%w: %s: %w", ErrNoSession, productURL, err),
		}
	}

	e.metrics.IncProduct(result.Outcome.String())
	return result
}

// read loads the product page and reads every field. Only navigation or
// content-wait failures are errors; unreadable fields become Unknown.
func (e *ProductExtractor) read(ctx context.Context, s session.Session, productURL string) (models.ProductRecord, error) {
	record := models.NewProductRecord(productURL)

	if err := e.limiter.Wait(ctx); err != nil {
		return record, err
	}
	if err := s.Navigate(ctx, productURL); err != nil {
		return record, err
	}
	if _, err := s.WaitFor(ctx, e.selectors.ProductContent, e.timings.ContentWait); err != nil {
		return record, err
	}

	record.SKU = e.text(ctx, s, e.selectors.SKU)
	record.Brand = e.text(ctx, s, e.selectors.Brand)
	record.Name = e.text(ctx, s, e.selectors.Name)
	record.Packaging = e.text(ctx, s, e.selectors.Packaging)
	record.ImageURL = e.attribute(ctx, s, e.selectors.Image, e.selectors.ImageAttribute)
	record.Description = e.text(ctx, s, e.selectors.Description)

	return record, nil
}

func (e *ProductExtractor) text(ctx context.Context, s session.Session, selector string) string {
	el, err := session.Find(ctx, s, selector)
	if err != nil {
		return models.Unknown
	}
	text, err := el.Text(ctx)
	if err != nil {
		e.logger.Debug("failed to read field", "selector", selector, "error", err)
		return models.Unknown
	}
	return models.FieldOrUnknown(text)
}

func (e *ProductExtractor) attribute(ctx context.Context, s session.Session, selector, name string) string {
	el, err := session.Find(ctx, s, selector)
	if err != nil {
		return models.Unknown
	}
	value, ok, err := el.Attribute(ctx, name)
	if err != nil || !ok {
		return models.Unknown
	}
	return models.FieldOrUnknown(value)
}
