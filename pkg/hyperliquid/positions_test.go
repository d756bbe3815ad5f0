package hyperliquid

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleState = `{
	"marginSummary": {"accountValue": "12345.6"},
	"assetPositions": [
		{"type": "oneWay", "position": {"coin": "BTC", "szi": "0.5", "entryPx": "60000", "liquidationPx": "48000", "leverage": {"type": "cross", "value": 20}}},
		{"type": "oneWay", "position": {"coin": "ETH", "szi": "-2", "entryPx": "3000", "liquidationPx": "3600.5", "leverage": {"type": "isolated", "value": 50, "rawUsd": "-5000"}}},
		{"type": "oneWay", "position": {"coin": "SOL", "szi": "10", "entryPx": "150", "liquidationPx": null, "leverage": {"type": "cross", "value": 3}}},
		{"type": "oneWay", "position": {"coin": "DOGE", "szi": "1000", "entryPx": "0.1", "liquidationPx": "0.05", "leverage": {"type": "cross", "value": 5}}},
		{"type": "oneWay", "position": {"coin": "SOL", "szi": "-4", "entryPx": "150", "liquidationPx": "210"}},
		{"type": "oneWay", "position": {"coin": "BTC", "szi": "1", "entryPx": "0", "liquidationPx": "40000", "leverage": 10}},
		{"type": "oneWay", "position": {"coin": "ETH", "szi": "1", "entryPx": "3000", "liquidationPx": "2000", "leverage": 75}},
		{"type": "oneWay", "position": {"coin": "ETH", "szi": "1", "entryPx": "3000", "liquidationPx": "2000", "leverage": [1]}}
	]
}`

func testCoins() map[string]bool {
	return map[string]bool{"BTC": true, "ETH": true, "SOL": true}
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestParseClearinghouseState(t *testing.T) {
	positions, err := parseClearinghouseState([]byte(sampleState), testCoins(), models.DefaultLeverageTiers(), testLog())
	require.NoError(t, err)
	require.Len(t, positions, 4)

	btc := positions[0]
	assert.Equal(t, "BTC", btc.Coin)
	assert.Equal(t, models.SideLong, btc.Side)
	assert.Equal(t, 48000.0, btc.LiquidationPrice)
	assert.Equal(t, 30000.0, btc.Value)
	assert.Equal(t, 20.0, btc.Leverage)
	assert.Equal(t, "25x", btc.LeverageTier)

	eth := positions[1]
	assert.Equal(t, models.SideShort, eth.Side)
	assert.Equal(t, 2.0, eth.Size)
	assert.Equal(t, 6000.0, eth.Value)
	assert.Equal(t, "50x", eth.LeverageTier)

	// A missing leverage descriptor defaults to 1x.
	sol := positions[2]
	assert.Equal(t, "SOL", sol.Coin)
	assert.Equal(t, 1.0, sol.Leverage)
	assert.Equal(t, "10x", sol.LeverageTier)
	assert.Equal(t, models.SideShort, sol.Side)

	// A bare-number descriptor is taken as is.
	bare := positions[3]
	assert.Equal(t, 75.0, bare.Leverage)
	assert.Equal(t, "100x", bare.LeverageTier)
}

func TestParseClearinghouseState_NoPositions(t *testing.T) {
	positions, err := parseClearinghouseState([]byte(`{"assetPositions": []}`), testCoins(), models.DefaultLeverageTiers(), testLog())
	require.NoError(t, err)
	assert.Empty(t, positions)

	positions, err = parseClearinghouseState([]byte(`{}`), testCoins(), models.DefaultLeverageTiers(), testLog())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestParseClearinghouseState_Malformed(t *testing.T) {
	_, err := parseClearinghouseState([]byte(`[1,2,3]`), testCoins(), models.DefaultLeverageTiers(), testLog())
	assert.Error(t, err)
}

func TestLeverage_Descriptors(t *testing.T) {
	cases := map[string]float64{
		`{"type": "cross", "value": 20}`: 20,
		`{"type": "cross"}`:              1,
		`{"value": null}`:                1,
		`{"value": "7"}`:                 7,
		`null`:                           1,
		`12`:                             12,
		`"3"`:                            3,
	}
	for raw, want := range cases {
		l := newLeverage()
		require.NoError(t, l.UnmarshalJSON([]byte(raw)), raw)
		assert.Equal(t, want, l.Value, raw)
	}

	for _, raw := range []string{`true`, `[1]`, `{"value": "x"}`} {
		l := newLeverage()
		assert.Error(t, l.UnmarshalJSON([]byte(raw)), raw)
	}
}

func TestCollectPositions(t *testing.T) {
	fv, srv := newFakeVenue(t)
	fv.info["clearinghouseState"] = writeBody(sampleState)

	positions := newTestClient(srv).CollectPositions(context.Background(), "0xabc")

	assert.Len(t, positions, 4)
	assert.Equal(t, []string{"0xabc"}, fv.users)
}

func TestCollectPositions_FailureYieldsNoPositions(t *testing.T) {
	fv, srv := newFakeVenue(t)
	fv.info["clearinghouseState"] = func(w http.ResponseWriter, req infoRequest) {
		if req.User == "0xbad" {
			io.WriteString(w, `{"assetPositions": "oops"}`)
			return
		}
		io.WriteString(w, sampleState)
	}
	c := newTestClient(srv)

	assert.Empty(t, c.CollectPositions(context.Background(), "0xbad"))
	assert.Len(t, c.CollectPositions(context.Background(), "0xgood"), 4)
}

func TestParseClearinghouseState_SkipsNonFiniteValues(t *testing.T) {
	body := `{"assetPositions": [
		{"type": "oneWay", "position": {"coin": "BTC", "szi": "1e300", "entryPx": "1e300", "liquidationPx": "90", "leverage": {"type": "cross", "value": 5}}},
		{"type": "oneWay", "position": {"coin": "BTC", "szi": "1e400", "entryPx": "100", "liquidationPx": "90", "leverage": {"type": "cross", "value": 5}}},
		{"type": "oneWay", "position": {"coin": "ETH", "szi": "1", "entryPx": "100", "liquidationPx": "-1e400", "leverage": {"type": "cross", "value": 5}}},
		{"type": "oneWay", "position": {"coin": "BTC", "szi": "2", "entryPx": "100", "liquidationPx": "90", "leverage": {"type": "cross", "value": 5}}}
	]}`

	positions, err := parseClearinghouseState([]byte(body), testCoins(), models.DefaultLeverageTiers(), testLog())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].Coin)
	assert.Equal(t, 200.0, positions[0].Value)
}

func TestNumber_RejectsOutOfRange(t *testing.T) {
	for _, raw := range []string{`"1e400"`, `"-1e400"`, `1e400`} {
		var n number
		err := n.UnmarshalJSON([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedResponse, raw)
		assert.False(t, n.Valid, raw)
	}

	var n number
	require.NoError(t, n.UnmarshalJSON([]byte(`"1e300"`)))
	assert.Equal(t, 1e300, n.Value)
}
