// Package metrics exposes Prometheus collectors for a crawl run. All methods
// are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry            *prometheus.Registry
	PagesVisited        *prometheus.CounterVec
	ProductsExtracted   *prometheus.CounterVec
	RetriesTotal        *prometheus.CounterVec
	CategoriesCompleted *prometheus.CounterVec
	RecordsAccumulated  prometheus.Gauge
	ExtractDuration     prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_visited_total",
			Help: "Listing pages visited, by category.",
		},
		[]string{"category"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_products_extracted_total",
			Help: "Product extractions, by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Retried stage attempts, by stage.",
		},
		[]string{"stage"},
	)
	categories := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_categories_completed_total",
			Help: "Categories finished, by termination reason.",
		},
		[]string{"termination"},
	)
	records := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_records_accumulated",
			Help: "Records accumulated in the current run.",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_extract_duration_seconds",
			Help:    "Time spent extracting one product page, retries included.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(pages, products, retries, categories, records, duration)

	return &Metrics{
		Registry:            registry,
		PagesVisited:        pages,
		ProductsExtracted:   products,
		RetriesTotal:        retries,
		CategoriesCompleted: categories,
		RecordsAccumulated:  records,
		ExtractDuration:     duration,
	}
}

func (m *Metrics) IncPage(category string) {
	if m == nil {
		return
	}
	m.PagesVisited.WithLabelValues(category).Inc()
}

func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsExtracted.WithLabelValues(outcome).Inc()
}

// AddRetries records the tries beyond the first.
func (m *Metrics) AddRetries(stage string, tries int) {
	if m == nil || tries <= 1 {
		return
	}
	m.RetriesTotal.WithLabelValues(stage).Add(float64(tries - 1))
}

func (m *Metrics) IncCategory(termination string) {
	if m == nil {
		return
	}
	m.CategoriesCompleted.WithLabelValues(termination).Inc()
}

func (m *Metrics) SetRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsAccumulated.Set(float64(n))
}

func (m *Metrics) ObserveExtract(seconds float64) {
	if m == nil {
		return
	}
	m.ExtractDuration.Observe(seconds)
}
