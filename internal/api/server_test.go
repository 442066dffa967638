package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubharvest/hubharvest/internal/harvest"
	storememory "github.com/hubharvest/hubharvest/internal/store/memory"
)

func testCatalog() []harvest.CatalogEntry {
	return []harvest.CatalogEntry{
		{ID: "org/complete"},
		{ID: "org/failed"},
		{ID: "org/unseen"},
	}
}

func seededStore(t *testing.T) *storememory.RecordStore {
	t.Helper()
	store := storememory.NewRecordStore()
	require.NoError(t, store.Write(context.Background(), harvest.Record{
		ID:        "org/complete",
		History:   []harvest.RevisionEntry{{StatusCode: 200}, {StatusCode: 200}},
		FetchedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.Write(context.Background(), harvest.Record{
		ID:        "org/failed",
		History:   []harvest.RevisionEntry{{StatusCode: 403}},
		FetchedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))
	return store
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := NewServer(testCatalog(), seededStore(t), prometheus.NewRegistry(), nil)
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	var body map[string]string
	resp := getJSON(t, server.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStatusReportsSummary(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	var body statusResponse
	resp := getJSON(t, server.URL+"/v1/status", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 3, body.Catalog)
	assert.Equal(t, 2, body.WorkSet)
	assert.Equal(t, harvest.Summary{Unseen: 1, Failed: 1, Complete: 1}, body.Summary)
}

func TestGetRecordClassifies(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	var complete recordResponse
	resp := getJSON(t, server.URL+"/v1/records/org/complete", &complete)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, harvest.ClassComplete, complete.Classification)
	assert.Equal(t, 2, complete.Revisions)
	require.NotNil(t, complete.FetchedAt)

	var unseen recordResponse
	resp = getJSON(t, server.URL+"/v1/records/org/unseen", &unseen)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, harvest.ClassUnseen, unseen.Classification)
	assert.Nil(t, unseen.FetchedAt)
}

func TestMetricsEndpointServes(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type brokenStore struct{}

func (brokenStore) LoadAll(context.Context) (map[harvest.Identifier]harvest.Record, error) {
	return nil, errors.New("backend down")
}

func (brokenStore) Write(context.Context, harvest.Record) error {
	return errors.New("backend down")
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(testCatalog(), brokenStore{}, prometheus.NewRegistry(), nil)
	server := httptest.NewServer(srv.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
