package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, m *metrics.Metrics) (*httptest.Server, *models.CrawlProgress) {
	t.Helper()
	progress := models.NewCrawlProgress("run-42", 3000)
	srv := httptest.NewServer(NewRouter(NewHandlers(progress, nil), m, nil))
	t.Cleanup(srv.Close)
	return srv, progress
}

func getJSON(t *testing.T, url string, into interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var health HealthResponse
	status := getJSON(t, srv.URL+"/health", &health)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "run-42", health.RunID)
}

func TestGetProgress(t *testing.T) {
	srv, progress := newTestServer(t, nil)
	progress.Record("produce", 1200)
	progress.Record("beverages", 1900)
	progress.Begin("dairyeggs")

	var snap models.ProgressSnapshot
	status := getJSON(t, srv.URL+"/api/v1/progress", &snap)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3100, snap.TotalAccumulated)
	assert.True(t, snap.QuotaReached)
	assert.Equal(t, "dairyeggs", snap.CurrentCategory)
	assert.Equal(t, []string{"produce", "beverages"}, snap.Categories)
}

func TestGetCategoryProgress(t *testing.T) {
	srv, progress := newTestServer(t, nil)
	progress.Record("produce", 12)
	progress.Begin("beverages")

	tests := []struct {
		name       string
		category   string
		wantStatus int
		want       CategoryProgressResponse
	}{
		{name: "finished", category: "produce", wantStatus: http.StatusOK, want: CategoryProgressResponse{CategoryID: "produce", Records: 12}},
		{name: "in progress", category: "beverages", wantStatus: http.StatusOK, want: CategoryProgressResponse{CategoryID: "beverages", InProgress: true}},
		{name: "unknown", category: "chemicals", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CategoryProgressResponse
			status := getJSON(t, srv.URL+"/api/v1/progress/categories/"+tt.category, &got)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncPage("produce")
	srv, _ := newTestServer(t, m)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `crawler_pages_visited_total{category="produce"} 1`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/progress", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
