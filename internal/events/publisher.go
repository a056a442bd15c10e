package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	// EventTypeProductExtracted is published once per persisted record.
	EventTypeProductExtracted EventType = "PRODUCT_EXTRACTED"
	// EventTypeCrawlCompleted closes a run's sequence of events.
	EventTypeCrawlCompleted EventType = "CRAWL_COMPLETED"

	DefaultStream = "stream:catalog_products"
)

// RedisClient is the subset of *redis.Client the publisher uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type ProductExtractedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	CategoryID  string    `json:"category_id"`
	SKU         string    `json:"sku"`
	Brand       string    `json:"brand"`
	Name        string    `json:"name"`
	Packaging   string    `json:"packaging"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	SourceURL   string    `json:"source_url"`
	ValidFields int       `json:"valid_fields"`
	Source      string    `json:"source"`
}

type CrawlCompletedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Records   int       `json:"records"`
	Source    string    `json:"source"`
}

// StreamPublisher appends a run's records to a Redis stream.
type StreamPublisher struct {
	redis  RedisClient
	stream string
	runID  string
	maxLen int64
	now    func() time.Time
	logger *slog.Logger
}

type PublisherConfig struct {
	Stream string
	// MaxLen trims the stream approximately; zero keeps every entry.
	MaxLen int64
}

func NewStreamPublisher(client RedisClient, runID string, cfg PublisherConfig, logger *slog.Logger) *StreamPublisher {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPublisher{
		redis:  client,
		stream: cfg.Stream,
		runID:  runID,
		maxLen: cfg.MaxLen,
		now:    time.Now,
		logger: logger.With("component", "stream_publisher"),
	}
}

// Persist publishes one event per record followed by a completion event.
func (p *StreamPublisher) Persist(ctx context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return storage.ErrNoRecords
	}

	for _, r := range records {
		payload := ProductExtractedPayload{
			EventID:     uuid.New().String(),
			EventType:   string(EventTypeProductExtracted),
			Timestamp:   p.now(),
			RunID:       p.runID,
			CategoryID:  r.CategoryID,
			SKU:         r.SKU,
			Brand:       r.Brand,
			Name:        r.Name,
			Packaging:   r.Packaging,
			ImageURL:    r.ImageURL,
			Description: r.Description,
			SourceURL:   r.SourceURL,
			ValidFields: r.ValidFieldCount(),
			Source:      "catalog-crawler",
		}
		if err := p.publish(ctx, payload.EventID, EventTypeProductExtracted, r.SKU, payload); err != nil {
			return fmt.Errorf("failed to publish record %s: %w", r.SourceURL, err)
		}
	}

	done := CrawlCompletedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeCrawlCompleted),
		Timestamp: p.now(),
		RunID:     p.runID,
		Records:   len(records),
		Source:    "catalog-crawler",
	}
	if err := p.publish(ctx, done.EventID, EventTypeCrawlCompleted, p.runID, done); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}

	p.logger.Info("records published",
		"stream", p.stream,
		"run_id", p.runID,
		"records", len(records),
	)
	return nil
}

func (p *StreamPublisher) publish(ctx context.Context, eventID string, eventType EventType, aggregateID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":         string(data),
			"type":         string(eventType),
			"event_id":     eventID,
			"run_id":       p.runID,
			"aggregate_id": aggregateID,
			"timestamp":    fmt.Sprintf("%d", p.now().UnixNano()),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (p *StreamPublisher) Close() error {
	return p.redis.Close()
}
