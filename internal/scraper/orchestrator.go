package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/session"
	"github.com/maltedev/catalog-crawler/internal/storage"
)

// DefaultTargetQuota is the record count at which a run stops.
const DefaultTargetQuota = 3000

type Status int

const (
	StatusQuotaReached Status = iota
	StatusCategoriesExhausted
	StatusNoCategories
	StatusNoProducts
	StatusBootstrapFailed
	StatusUnexpectedFault
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusQuotaReached:
		return "quota_reached"
	case StatusCategoriesExhausted:
		return "categories_exhausted"
	case StatusNoCategories:
		return "no_categories"
	case StatusNoProducts:
		return "no_products"
	case StatusBootstrapFailed:
		return "bootstrap_failed"
	case StatusUnexpectedFault:
		return "unexpected_fault"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ExitCode maps a status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusQuotaReached, StatusCategoriesExhausted:
		return 0
	case StatusNoCategories, StatusNoProducts:
		return 2
	case StatusInterrupted:
		return 130
	default:
		return 1
	}
}

type categoryRunner interface {
	Crawl(ctx context.Context, s session.Session, category models.Category) CategoryResult
}

type RunResult struct {
	RunID      string
	Status     Status
	Records    []models.ProductRecord
	Categories []CategoryResult
	Err        error
}

type OrchestratorOptions struct {
	// RunID tags the run's logs and records. A random UUID is used when empty.
	RunID       string
	TargetQuota int
	// PersistTimeout bounds the final sink write, which runs even after the
	// run context is cancelled.
	PersistTimeout time.Duration
	Metrics        *metrics.Metrics
}

type Orchestrator struct {
	bootstrapper Bootstrapper
	discoverer   Discoverer
	crawler      categoryRunner
	sink         storage.Sink
	opts         OrchestratorOptions
	runID        string
	progress     *models.CrawlProgress
	logger       *slog.Logger
}

func NewOrchestrator(bootstrapper Bootstrapper, discoverer Discoverer, crawler categoryRunner, sink storage.Sink, opts OrchestratorOptions, logger *slog.Logger) *Orchestrator {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	return &Orchestrator{
		bootstrapper: bootstrapper,
		discoverer:   discoverer,
		crawler:      crawler,
		sink:         sink,
		opts:         opts,
		runID:        runID,
		progress:     models.NewCrawlProgress(runID, opts.TargetQuota),
		logger:       logger.With("component", "orchestrator", "run_id", runID),
	}
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

// Progress is updated as categories finish and may be read concurrently.
func (o *Orchestrator) Progress() *models.CrawlProgress {
	return o.progress
}

// Run performs one full crawl and persists what it gathered.
func (o *Orchestrator) Run(ctx context.Context) (result RunResult) {
	result = RunResult{RunID: o.runID, Records: []models.ProductRecord{}}
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("crawl panicked", "panic", r)
			result.Status = StatusUnexpectedFault
			result.Err = fmt.Errorf("panic during crawl: %v", r)
		}
		o.logger.Info("crawl finished",
			"status", result.Status.String(),
			"records", len(result.Records),
			"categories", len(result.Categories),
			"duration", time.Since(started).String(),
		)
	}()

	o.logger.Info("starting crawl", "target_quota", o.opts.TargetQuota)

	s, err := o.bootstrapper.Bootstrap(ctx)
	if err != nil {
		o.logger.Error("failed to bootstrap session", "error", err)
		result.Status = StatusBootstrapFailed
		result.Err = err
		return result
	}
	defer func() {
		if err := s.Close(); err != nil {
			o.logger.Warn("failed to close session", "error", err)
		}
	}()

	categories, err := o.discoverer.DiscoverCategories(ctx, s)
	if err != nil {
		o.logger.Error("category discovery failed", "error", err)
	}
	if ctx.Err() != nil {
		result.Status = StatusInterrupted
		result.Err = ctx.Err()
		return result
	}
	categories = models.CrawlableCategories(categories)
	if len(categories) == 0 {
		o.logger.Warn("no categories to crawl")
		result.Status = StatusNoCategories
		result.Err = err
		return result
	}
	o.logger.Info("discovered categories", "count", len(categories))

	result.Status = StatusCategoriesExhausted
	for i, category := range categories {
		o.progress.Begin(category.ID)
		o.logger.Info("crawling category", "category", category.ID, "index", i+1, "of", len(categories))

		crawled := o.crawler.Crawl(ctx, s, category)
		result.Categories = append(result.Categories, crawled)
		result.Records = append(result.Records, crawled.Records...)

		total := o.progress.Record(category.ID, len(crawled.Records))
		o.opts.Metrics.SetRecords(total)
		o.logger.Info("category done",
			"category", category.ID,
			"records", len(crawled.Records),
			"total", total,
			"termination", crawled.Termination.String(),
		)

		if crawled.Termination == TerminationCancelled {
			result.Status = StatusInterrupted
			result.Err = crawled.Err
			break
		}
		if crawled.Termination == TerminationSessionLost {
			o.logger.Error("session lost, stopping crawl", "error", crawled.Err)
			result.Status = StatusUnexpectedFault
			result.Err = crawled.Err
			break
		}
		if o.progress.QuotaReached() {
			o.logger.Info("target quota reached", "total", total, "quota", o.opts.TargetQuota)
			result.Status = StatusQuotaReached
			break
		}
	}

	if len(result.Records) == 0 {
		o.logger.Warn("no products collected")
		if result.Status == StatusCategoriesExhausted || result.Status == StatusQuotaReached {
			result.Status = StatusNoProducts
		}
		return result
	}

	if err := o.persist(ctx, result.Records); err != nil {
		o.logger.Error("failed to persist records", "error", err)
		result.Status = StatusUnexpectedFault
		result.Err = errors.Join(result.Err, err)
	}

	return result
}

func (o *Orchestrator) persist(ctx context.Context, records []models.ProductRecord) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()
	return o.sink.Persist(persistCtx, records)
}
