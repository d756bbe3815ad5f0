package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordVenueCall(t *testing.T) {
	Init()
	before := testutil.ToFloat64(VenueCalls.WithLabelValues("test_endpoint", "error"))

	RecordVenueCall("test_endpoint", 10*time.Millisecond, errors.New("boom"))
	RecordVenueCall("test_endpoint", 10*time.Millisecond, nil)

	assert.Equal(t, before+1, testutil.ToFloat64(VenueCalls.WithLabelValues("test_endpoint", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(VenueCalls.WithLabelValues("test_endpoint", "success")), 1.0)
}

func TestRecordLeaderboard(t *testing.T) {
	Init()
	empty := testutil.ToFloat64(LeaderboardSource.WithLabelValues("primary", "empty"))
	failed := testutil.ToFloat64(LeaderboardSource.WithLabelValues("fallback", "error"))

	RecordLeaderboard("primary", 0, nil)
	RecordLeaderboard("fallback", 0, errors.New("down"))

	assert.Equal(t, empty+1, testutil.ToFloat64(LeaderboardSource.WithLabelValues("primary", "empty")))
	assert.Equal(t, failed+1, testutil.ToFloat64(LeaderboardSource.WithLabelValues("fallback", "error")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	Init()
	Init()
	RecordLiquidationValue("BTC", 1000, 500)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `heatmap_liquidation_value_usd{coin="BTC",side="long"} 1000`))
}
