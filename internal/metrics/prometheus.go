package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Venue metrics
	VenueCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatmap_venue_calls_total",
			Help: "Total number of venue API calls",
		},
		[]string{"endpoint", "status"}, // status: success|error
	)

	VenueLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heatmap_venue_latency_seconds",
			Help:    "Venue API call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	VenueRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatmap_venue_retries_total",
			Help: "Total number of retried venue API calls",
		},
		[]string{"endpoint"},
	)

	// Discovery metrics
	LeaderboardSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatmap_leaderboard_source_total",
			Help: "Leaderboard discovery outcomes by source",
		},
		[]string{"source", "status"}, // source: primary|fallback, status: success|empty|error
	)

	// Collection metrics
	AccountsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatmap_accounts_processed_total",
			Help: "Accounts processed by outcome",
		},
		[]string{"status"}, // status: success|error
	)

	PositionsCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatmap_positions_collected_total",
			Help: "Tracked positions collected",
		},
		[]string{"coin", "side"},
	)

	// Run metrics
	RunDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heatmap_last_run_duration_seconds",
			Help: "Duration of the last pipeline run",
		},
	)

	RunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heatmap_last_run_timestamp",
			Help: "Unix timestamp of the last completed pipeline run",
		},
	)

	LiquidationValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heatmap_liquidation_value_usd",
			Help: "In-window liquidation notional of the last run",
		},
		[]string{"coin", "side"},
	)
)

// Registry holds every heatmap metric. It is separate from the default
// registry so a one-shot run can push exactly these series.
var Registry = prometheus.NewRegistry()

var initOnce sync.Once

// Init registers all metrics with Registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		// Venue metrics
		Registry.MustRegister(VenueCalls)
		Registry.MustRegister(VenueLatency)
		Registry.MustRegister(VenueRetries)

		// Discovery and collection metrics
		Registry.MustRegister(LeaderboardSource)
		Registry.MustRegister(AccountsProcessed)
		Registry.MustRegister(PositionsCollected)

		// Run metrics
		Registry.MustRegister(RunDuration)
		Registry.MustRegister(RunTimestamp)
		Registry.MustRegister(LiquidationValue)
	})
}

// Handler returns the HTTP handler for Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Push sends Registry to a Prometheus pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(Registry).PushContext(ctx)
}

// RecordVenueCall records a venue API call
func RecordVenueCall(endpoint string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	VenueCalls.WithLabelValues(endpoint, status).Inc()
	VenueLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordRetry records a retried venue call
func RecordRetry(endpoint string) {
	VenueRetries.WithLabelValues(endpoint).Inc()
}

// RecordLeaderboard records the outcome of one leaderboard source
func RecordLeaderboard(source string, accounts int, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case accounts == 0:
		status = "empty"
	}
	LeaderboardSource.WithLabelValues(source, status).Inc()
}

// RecordAccount records one account collection outcome
func RecordAccount(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AccountsProcessed.WithLabelValues(status).Inc()
}

// RecordPosition records one collected position
func RecordPosition(coin, side string) {
	PositionsCollected.WithLabelValues(coin, side).Inc()
}

// RecordRun records the completion of a pipeline run
func RecordRun(duration time.Duration) {
	RunDuration.Set(duration.Seconds())
	RunTimestamp.SetToCurrentTime()
}

// RecordLiquidationValue records the in-window totals of one coin
func RecordLiquidationValue(coin string, long, short float64) {
	LiquidationValue.WithLabelValues(coin, "long").Set(long)
	LiquidationValue.WithLabelValues(coin, "short").Set(short)
}
