package hyperliquid

import (
	"context"
	"net/http"

	"github.com/gregtusar/liquidation-heatmap/internal/metrics"
)

// DiscoverAccounts returns up to MaxAccounts addresses to inspect. The stats
// leaderboard is tried first; if it fails or yields nothing, the info
// endpoint leaderboard is tried once. Both failing yields an empty list.
func (c *Client) DiscoverAccounts(ctx context.Context) []string {
	accounts, err := c.primaryLeaderboard(ctx)
	metrics.RecordLeaderboard("primary", len(accounts), err)
	switch {
	case err != nil:
		c.logger.WithError(err).Warn("Leaderboard error")
	case len(accounts) == 0:
		c.logger.Warn("Leaderboard returned no traders")
	default:
		c.logger.WithField("traders", len(accounts)).Info("Leaderboard traders found")
		return accounts
	}

	accounts, err = c.fallbackLeaderboard(ctx)
	metrics.RecordLeaderboard("fallback", len(accounts), err)
	if err != nil {
		c.logger.WithError(err).Warn("Leaderboard fallback error")
		return []string{}
	}

	c.logger.WithField("traders", len(accounts)).Info("Leaderboard (fallback) traders found")
	return accounts
}

func (c *Client) primaryLeaderboard(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, endpointLeaderboard, c.cfg.LeaderboardTimeout, http.MethodGet, c.cfg.LeaderboardURL, nil)
	if err != nil {
		return nil, err
	}
	return extractAccounts(body, keyedRowKeys, listEntryKeys, c.cfg.MaxAccounts)
}

func (c *Client) fallbackLeaderboard(ctx context.Context) ([]string, error) {
	body, err := c.postInfo(ctx, endpointLeaderboardFallback, c.cfg.LeaderboardTimeout, infoRequest{
		Type:       "leaderboard",
		TimeWindow: c.cfg.LeaderboardWindow,
	})
	if err != nil {
		return nil, err
	}
	return extractAccounts(body, nil, fallbackEntryKeys, c.cfg.MaxAccounts)
}
