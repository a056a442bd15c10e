package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maltedev/catalog-crawler/internal/models"
)

// ErrNoRecords is returned when a sink is asked to persist nothing.
var ErrNoRecords = errors.New("no records to persist")

// CSVHeader lists the exported columns in order.
var CSVHeader = []string{"sku", "brand", "name", "packaging", "image_url", "description"}

// Sink persists the records of a finished crawl.
type Sink interface {
	Persist(ctx context.Context, records []models.ProductRecord) error
}

type CSVSink struct {
	dir    string
	prefix string
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func NewCSVSink(dir, prefix string, logger *slog.Logger) *CSVSink {
	if prefix == "" {
		prefix = "products"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With("component", "csv_sink"),
	}
}

// Filename returns the file name used for a run finishing at t.
func (s *CSVSink) Filename(t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", s.prefix, t.Format("20060102_150405"))
}

// LastPath returns the path of the most recently written file.
func (s *CSVSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *CSVSink) Persist(ctx context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	path := filepath.Join(s.dir, s.Filename(s.now()))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := writeCSV(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()

	s.logger.Info("saved products", "path", path, "records", len(records))
	return nil
}

func writeCSV(f *os.File, records []models.ProductRecord) error {
	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.Fields()); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// MultiSink persists to every sink in order. All sinks are tried; their
// errors are joined.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMultiSink(logger *slog.Logger, sinks ...Sink) *MultiSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSink{sinks: sinks, logger: logger.With("component", "multi_sink")}
}

func (m *MultiSink) Persist(ctx context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	var errs []error
	for i, sink := range m.sinks {
		if err := sink.Persist(ctx, records); err != nil {
			m.logger.Error("sink failed", "index", i, "sink", fmt.Sprintf("%T", sink), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
