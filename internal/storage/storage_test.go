package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []models.ProductRecord {
	full := models.NewProductRecord("https://shop.test/p/1")
	full.SKU = "1234567"
	full.Brand = "Sysco Classic"
	full.Name = "Apples, Gala"
	full.Packaging = "1/40 LB"
	full.ImageURL = "https://img.test/1.jpg"
	full.Description = `Crisp "Gala" apples, fresh`

	partial := models.NewProductRecord("https://shop.test/p/2")
	partial.SKU = "7654321"

	return []models.ProductRecord{full, partial}
}

func TestCSVSink_Persist(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir, "sysco_products", nil)
	sink.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }

	require.NoError(t, sink.Persist(context.Background(), sampleRecords()))

	path := filepath.Join(dir, "sysco_products_20240309_140507.csv")
	assert.Equal(t, path, sink.LastPath())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"1234567", "Sysco Classic", "Apples, Gala", "1/40 LB", "https://img.test/1.jpg", `Crisp "Gala" apples, fresh`}, rows[1])
	assert.Equal(t, []string{"7654321", "N/A", "N/A", "N/A", "N/A", "N/A"}, rows[2])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCSVSink_EmptyWritesNothing(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir, "sysco_products", nil)

	err := sink.Persist(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoRecords)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, sink.LastPath())
}

func TestCSVSink_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink := NewCSVSink(dir, "", nil)

	require.NoError(t, sink.Persist(context.Background(), sampleRecords()))
	assert.FileExists(t, sink.LastPath())
	assert.Contains(t, filepath.Base(sink.LastPath()), "products_")
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Persist(ctx context.Context, records []models.ProductRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func TestMultiSink_TriesAllSinks(t *testing.T) {
	records := sampleRecords()
	failing := errors.New("db down")

	first := &mockSink{}
	first.On("Persist", mock.Anything, records).Return(failing)
	second := &mockSink{}
	second.On("Persist", mock.Anything, records).Return(nil)

	err := NewMultiSink(nil, first, second).Persist(context.Background(), records)

	assert.ErrorIs(t, err, failing)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestMultiSink_Empty(t *testing.T) {
	first := &mockSink{}

	err := NewMultiSink(nil, first).Persist(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoRecords)
	first.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
}
