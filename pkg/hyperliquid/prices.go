package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gregtusar/liquidation-heatmap/pkg/models"
)

type assetMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type assetContext struct {
	MarkPx number `json:"markPx"`
}

// FetchPrices returns the current mark price of every tracked coin. Any
// transport or decoding failure yields an empty snapshot; callers skip coins
// without a price rather than fail.
func (c *Client) FetchPrices(ctx context.Context) models.PriceSnapshot {
	body, err := c.postInfo(ctx, endpointPrices, c.cfg.PricesTimeout, infoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		c.logger.WithError(err).Warn("Price fetch failed")
		return models.PriceSnapshot{}
	}

	prices, err := parseMetaAndAssetCtxs(body, c.coins)
	if err != nil {
		c.logger.WithError(err).Warn("Price response could not be parsed")
		return models.PriceSnapshot{}
	}

	c.logger.WithField("coins", len(prices)).Info("Fetched current prices")
	return prices
}

// parseMetaAndAssetCtxs zips the index-aligned [meta, contexts] pair. A null
// mark price becomes 0.
func parseMetaAndAssetCtxs(body []byte, coins map[string]bool) (models.PriceSnapshot, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: expected [meta, contexts], got %d elements", ErrMalformedResponse, len(parts))
	}

	var meta assetMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	var contexts []assetContext
	if err := json.Unmarshal(parts[1], &contexts); err != nil {
		return nil, fmt.Errorf("decode asset contexts: %w", err)
	}

	prices := make(models.PriceSnapshot)
	for i, asset := range meta.Universe {
		if !coins[asset.Name] || i >= len(contexts) {
			continue
		}
		prices[asset.Name] = contexts[i].MarkPx.Value
	}
	return prices, nil
}
