package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gregtusar/liquidation-heatmap/internal/metrics"
	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/sirupsen/logrus"
)

type clearinghouseState struct {
	AssetPositions []json.RawMessage `json:"assetPositions"`
}

type rawPosition struct {
	Coin          string   `json:"coin"`
	Szi           number   `json:"szi"`
	EntryPx       number   `json:"entryPx"`
	LiquidationPx number   `json:"liquidationPx"`
	Leverage      leverage `json:"leverage"`
}

// CollectPositions returns the tracked positions of one account that carry
// a liquidation price. Failures are absorbed: the account contributes no
// positions and the caller carries on with the next one.
func (c *Client) CollectPositions(ctx context.Context, account string) []models.Position {
	positions, err := c.collectPositions(ctx, account)
	metrics.RecordAccount(err)
	if err != nil {
		c.logger.WithError(err).WithField("account", account).Debug("Position fetch failed")
		return nil
	}

	for _, p := range positions {
		metrics.RecordPosition(p.Coin, string(p.Side))
	}
	return positions
}

func (c *Client) collectPositions(ctx context.Context, account string) ([]models.Position, error) {
	body, err := c.postInfo(ctx, endpointPositions, c.cfg.PositionsTimeout, infoRequest{
		Type: "clearinghouseState",
		User: account,
	})
	if err != nil {
		return nil, err
	}
	return parseClearinghouseState(body, c.coins, c.cfg.LeverageTiers, c.logger.WithField("account", account))
}

// parseClearinghouseState normalizes every usable asset position. Entries on
// untracked coins, without an entry or liquidation price, with a notional
// outside the float64 range, or that fail to decode are skipped individually.
func parseClearinghouseState(body []byte, coins map[string]bool, tiers models.LeverageTiers, log *logrus.Entry) ([]models.Position, error) {
	var state clearinghouseState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode clearinghouse state: %w", err)
	}

	positions := make([]models.Position, 0, len(state.AssetPositions))
	for _, raw := range state.AssetPositions {
		entry := struct {
			Position rawPosition `json:"position"`
		}{Position: rawPosition{Leverage: newLeverage()}}

		if err := json.Unmarshal(raw, &entry); err != nil {
			log.WithError(err).Debug("Skipping undecodable asset position")
			continue
		}

		pos := entry.Position
		if !coins[pos.Coin] {
			continue
		}
		if !pos.LiquidationPx.positive() || !pos.EntryPx.positive() {
			continue
		}

		p := models.NewPosition(
			pos.Coin,
			pos.Szi.Value,
			pos.EntryPx.Value,
			pos.LiquidationPx.Value,
			pos.Leverage.Value,
			tiers,
		)
		if math.IsInf(p.Value, 0) || math.IsNaN(p.Value) {
			log.WithField("coin", p.Coin).Debug("Skipping position with overflowing notional")
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}
