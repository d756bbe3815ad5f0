package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/gregtusar/liquidation-heatmap/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	runs      []store.RunRecord
	err       error
	lastLimit int
}

func (f *fakeHistory) Runs(limit int) ([]store.RunRecord, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	tiers := models.DefaultLeverageTiers()
	snapshot := &models.Snapshot{
		Coins: []string{"BTC"},
		Data: map[string]models.InstrumentProfile{
			"BTC": {
				CurrentPrice: 100,
				LongLiquidations: []models.PriceBucket{{
					Price: 85, Value: 1000, Cumulative: 1000,
					Tiers: []models.TierValue{{Label: "10x", Value: 1000}, {Label: "25x"}, {Label: "50x"}, {Label: "100x"}},
				}},
				ShortLiquidations: []models.PriceBucket{},
				TotalLongValue:    1000,
				PositionCount:     1,
			},
		},
		LeverageBuckets: tiers,
		TradersCount:    1,
		LastUpdated:     models.Timestamp{Time: time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)},
	}
	require.NoError(t, store.WriteSnapshot(path, snapshot))
	return path
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer("unused", nil, quietLogger(), "0")
	rec := serve(s, http.MethodGet, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHeatmap(t *testing.T) {
	s := NewServer(writeSample(t), nil, quietLogger(), "0")
	rec := serve(s, http.MethodGet, "/api/heatmap")
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, []string{"BTC"}, snapshot.Coins)
	assert.Equal(t, 1000.0, snapshot.Data["BTC"].LongLiquidations[0].TierValue("10x"))
}

func TestHeatmap_NotGeneratedYet(t *testing.T) {
	s := NewServer(filepath.Join(t.TempDir(), "missing.json"), nil, quietLogger(), "0")
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/heatmap").Code)
}

func TestHeatmap_MethodNotAllowed(t *testing.T) {
	s := NewServer(writeSample(t), nil, quietLogger(), "0")
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodPost, "/api/heatmap").Code)
}

func TestHeatmapCoin(t *testing.T) {
	s := NewServer(writeSample(t), nil, quietLogger(), "0")

	rec := serve(s, http.MethodGet, "/api/heatmap/btc")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, 100.0, profile["currentPrice"])
	assert.Equal(t, 1.0, profile["positionCount"])

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/heatmap/ETH").Code)
}

func TestRuns(t *testing.T) {
	history := &fakeHistory{runs: []store.RunRecord{{ID: "run-1", TradersCount: 7}}}
	s := NewServer("unused", history, quietLogger(), "0")

	rec := serve(s, http.MethodGet, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.lastLimit)
	assert.Contains(t, rec.Body.String(), `"id":"run-1"`)

	serve(s, http.MethodGet, "/api/runs")
	assert.Equal(t, defaultRunsLimit, history.lastLimit)

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/api/runs?limit=zero").Code)
}

func TestRuns_Disabled(t *testing.T) {
	s := NewServer("unused", nil, quietLogger(), "0")
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/runs").Code)
}

func TestRuns_StoreError(t *testing.T) {
	s := NewServer("unused", &fakeHistory{err: errors.New("locked")}, quietLogger(), "0")
	assert.Equal(t, http.StatusInternalServerError, serve(s, http.MethodGet, "/api/runs").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer("unused", nil, quietLogger(), "0")
	rec := serve(s, http.MethodOptions, "/api/heatmap")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer("unused", nil, quietLogger(), "0")
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/metrics").Code)
}
