package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/storage"
)

const recordSchema = `
	CREATE TABLE IF NOT EXISTS product_record (
		run_id      UUID        NOT NULL,
		source_url  TEXT        NOT NULL,
		category_id TEXT        NOT NULL,
		sku         TEXT        NOT NULL,
		brand       TEXT        NOT NULL,
		name        TEXT        NOT NULL,
		packaging   TEXT        NOT NULL,
		image_url   TEXT        NOT NULL,
		description TEXT        NOT NULL,
		valid_fields SMALLINT   NOT NULL,
		scraped_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, source_url)
	)`

const insertRecord = `
	INSERT INTO product_record (
		run_id, source_url, category_id, sku, brand, name,
		packaging, image_url, description, valid_fields, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	)
	ON CONFLICT (run_id, source_url) DO NOTHING`

// TxRunner runs a function inside a transaction. *DB implements it.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// RecordStore writes a run's product records to Postgres.
type RecordStore struct {
	db     TxRunner
	runID  string
	logger *slog.Logger
}

func NewRecordStore(db TxRunner, runID string, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		db:     db,
		runID:  runID,
		logger: logger.With("component", "record_store"),
	}
}

// EnsureSchema creates the record table if it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, recordSchema); err != nil {
			return fmt.Errorf("failed to create product_record table: %w", err)
		}
		return nil
	})
}

// Persist inserts all records in one batch. A record already stored for this
// run and source URL is left untouched.
func (s *RecordStore) Persist(ctx context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return storage.ErrNoRecords
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertRecord,
			s.runID, r.SourceURL, r.CategoryID, r.SKU, r.Brand, r.Name,
			r.Packaging, r.ImageURL, r.Description, r.ValidFieldCount(), r.ScrapedAt,
		)
	}

	var inserted int64
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return fmt.Errorf("failed to insert record %s: %w", records[i].SourceURL, err)
			}
			inserted += tag.RowsAffected()
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist records: %w", err)
	}

	s.logger.Info("records stored",
		"run_id", s.runID,
		"records", len(records),
		"inserted", inserted,
	)
	return nil
}
