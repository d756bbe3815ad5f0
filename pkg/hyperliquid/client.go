package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gregtusar/liquidation-heatmap/internal/metrics"
	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInfoURL        = "https://api.hyperliquid.xyz/info"
	DefaultLeaderboardURL = "https://stats-data.hyperliquid.xyz/Mainnet/leaderboard"

	// DefaultMaxAccounts caps discovery when no cap is configured.
	DefaultMaxAccounts = 200

	maxResponseBytes = 64 << 20
)

// Metric endpoint labels.
const (
	endpointPrices              = "metaAndAssetCtxs"
	endpointLeaderboard         = "leaderboard"
	endpointLeaderboardFallback = "leaderboard_fallback"
	endpointPositions           = "clearinghouseState"
)

type Config struct {
	InfoURL            string
	LeaderboardURL     string
	LeaderboardWindow  string
	UserAgent          string
	LeaderboardTimeout time.Duration
	PositionsTimeout   time.Duration
	PricesTimeout      time.Duration
	MaxRetries         int
	RetryDelay         time.Duration

	// Coins is the tracked instrument set; everything else is ignored.
	Coins         []string
	LeverageTiers models.LeverageTiers
	MaxAccounts   int
}

// Client reads public market and account state from the Hyperliquid info
// API. Every exported fetch absorbs its own failures.
type Client struct {
	cfg        Config
	coins      map[string]bool
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.InfoURL == "" {
		cfg.InfoURL = DefaultInfoURL
	}
	if cfg.LeaderboardURL == "" {
		cfg.LeaderboardURL = DefaultLeaderboardURL
	}
	if cfg.LeaderboardWindow == "" {
		cfg.LeaderboardWindow = "day"
	}
	if len(cfg.LeverageTiers) == 0 {
		cfg.LeverageTiers = models.DefaultLeverageTiers()
	}
	if cfg.MaxAccounts <= 0 {
		cfg.MaxAccounts = DefaultMaxAccounts
	}
	if logger == nil {
		logger = logrus.New()
	}

	coins := make(map[string]bool, len(cfg.Coins))
	for _, c := range cfg.Coins {
		coins[c] = true
	}

	return &Client{
		cfg:   cfg,
		coins: coins,
		// Per-call deadlines come from the context; this is a backstop.
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type infoRequest struct {
	Type       string `json:"type"`
	User       string `json:"user,omitempty"`
	TimeWindow string `json:"timeWindow,omitempty"`
}

func (c *Client) postInfo(ctx context.Context, endpoint string, timeout time.Duration, req infoRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, endpoint, timeout, http.MethodPost, c.cfg.InfoURL, body)
}

// do runs one logical call under its own timeout, retrying throttling and
// server errors with exponential backoff.
func (c *Client) do(ctx context.Context, endpoint string, timeout time.Duration, method, url string, body []byte) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			metrics.RecordRetry(endpoint)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s retry cancelled: %w", endpoint, ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		data, err := c.doRequest(ctx, method, url, body)
		metrics.RecordVenueCall(endpoint, time.Since(start), err)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !isRetryable(ctx, err) {
			break
		}
	}
	return nil, fmt.Errorf("%s: %w", endpoint, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{URL: url, Status: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, nil
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
