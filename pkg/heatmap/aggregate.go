package heatmap

import (
	"math"
	"math/big"
	"sort"

	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultBucketCount   = 50
	DefaultWindowFloor   = 0.7
	DefaultWindowCeiling = 1.3
)

// Aggregator turns a flat position list into per-coin liquidation
// histograms. It holds only configuration; Aggregate is a pure function of
// its arguments.
type Aggregator struct {
	coins         []string
	bucketCount   int
	windowFloor   float64
	windowCeiling float64
	tiers         models.LeverageTiers
}

// NewAggregator buckets each coin's liquidations over
// [price*floor, price*ceiling] split into bucketCount equal cells.
func NewAggregator(coins []string, bucketCount int, floor, ceiling float64, tiers models.LeverageTiers) *Aggregator {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	if floor <= 0 || floor >= ceiling {
		floor, ceiling = DefaultWindowFloor, DefaultWindowCeiling
	}
	if len(tiers) == 0 {
		tiers = models.DefaultLeverageTiers()
	}
	return &Aggregator{
		coins:         append([]string(nil), coins...),
		bucketCount:   bucketCount,
		windowFloor:   floor,
		windowCeiling: ceiling,
		tiers:         tiers,
	}
}

func (a *Aggregator) Coins() []string {
	return append([]string(nil), a.coins...)
}

func (a *Aggregator) Tiers() models.LeverageTiers {
	return append(models.LeverageTiers(nil), a.tiers...)
}

// Aggregate builds a profile for every tracked coin that has a positive
// price and at least one position. Other coins are absent from the result.
func (a *Aggregator) Aggregate(positions []models.Position, prices models.PriceSnapshot) map[string]models.InstrumentProfile {
	byCoin := make(map[string][]models.Position)
	for _, p := range positions {
		byCoin[p.Coin] = append(byCoin[p.Coin], p)
	}

	result := make(map[string]models.InstrumentProfile)
	for _, coin := range a.coins {
		price := prices.Price(coin)
		if price <= 0 {
			continue
		}
		coinPositions := byCoin[coin]
		if len(coinPositions) == 0 {
			continue
		}
		result[coin] = a.profile(price, coinPositions)
	}
	return result
}

func (a *Aggregator) profile(price float64, positions []models.Position) models.InstrumentProfile {
	w := a.window(price)
	long := newHistogram(a.bucketCount, len(a.tiers))
	short := newHistogram(a.bucketCount, len(a.tiers))

	for _, p := range positions {
		if !finite(p.Value) {
			continue
		}
		idx, ok := w.index(p.LiquidationPrice)
		if !ok {
			continue
		}
		h := short
		if p.Side == models.SideLong {
			h = long
		}
		h.add(idx, a.tierIndex(p), p.Value)
	}

	labels := a.tiers.Labels()
	// Longs liquidate below the current price: accumulate from the top of
	// the window downward. Shorts accumulate upward.
	longBuckets, longTotal := long.emit(w, labels, true)
	shortBuckets, shortTotal := short.emit(w, labels, false)

	return models.InstrumentProfile{
		CurrentPrice:      price,
		LongLiquidations:  longBuckets,
		ShortLiquidations: shortBuckets,
		TotalLongValue:    longTotal,
		TotalShortValue:   shortTotal,
		// Counts every position on the coin, in window or not.
		PositionCount: len(positions),
	}
}

func (a *Aggregator) tierIndex(p models.Position) int {
	if i := a.tiers.IndexOf(p.LeverageTier); i >= 0 {
		return i
	}
	return a.tiers.ClassifyIndex(p.Leverage)
}

type window struct {
	min, max, width float64
	buckets         int
}

func (a *Aggregator) window(price float64) window {
	lo := price * a.windowFloor
	hi := price * a.windowCeiling
	return window{
		min:     lo,
		max:     hi,
		width:   (hi - lo) / float64(a.bucketCount),
		buckets: a.bucketCount,
	}
}

// index returns the bucket of liq, or false when liq is outside the
// inclusive window. The upper edge falls into the last bucket.
func (w window) index(liq float64) (int, bool) {
	if liq < w.min || liq > w.max {
		return 0, false
	}
	idx := int(math.Floor((liq - w.min) / w.width))
	if idx >= w.buckets {
		idx = w.buckets - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx, true
}

func (w window) center(idx int) float64 {
	return w.min + (float64(idx)+0.5)*w.width
}

// histogram holds per-bucket, per-tier notional for one side.
type histogram struct {
	cells [][]float64
	used  []bool
}

func newHistogram(buckets, tiers int) *histogram {
	cells := make([][]float64, buckets)
	for i := range cells {
		cells[i] = make([]float64, tiers)
	}
	return &histogram{cells: cells, used: make([]bool, buckets)}
}

func (h *histogram) add(bucket, tier int, value float64) {
	h.cells[bucket][tier] += value
	h.used[bucket] = true
}

// emit returns the occupied buckets ascending by rounded price, with
// Cumulative accumulated in descending price order when descending is set,
// and the final running total. Buckets whose prices round to the same cent
// keep their accumulation order.
func (h *histogram) emit(w window, labels []string, descending bool) ([]models.PriceBucket, float64) {
	order := make([]int, 0, len(h.used))
	for i, used := range h.used {
		if used {
			order = append(order, i)
		}
	}
	if descending {
		reverse(order)
	}

	buckets := make([]models.PriceBucket, 0, len(order))
	var cumulative float64
	for _, idx := range order {
		tiers := make([]models.TierValue, len(labels))
		var value float64
		for t, label := range labels {
			tiers[t] = models.TierValue{Label: label, Value: h.cells[idx][t]}
			value += h.cells[idx][t]
		}
		cumulative += value
		buckets = append(buckets, models.PriceBucket{
			Price:      roundPrice(w.center(idx)),
			Value:      value,
			Cumulative: cumulative,
			Tiers:      tiers,
		})
	}

	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Price < buckets[j].Price })
	return buckets, cumulative
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// roundPrice rounds the exact binary value of p to cents, ties to even.
// Shortest-form rounding would send 2.675 (stored as 2.67499...) up.
func roundPrice(p float64) float64 {
	if !finite(p) {
		return p
	}
	exact, err := decimal.NewFromString(new(big.Float).SetFloat64(p).Text('f', 1074))
	if err != nil {
		return decimal.NewFromFloat(p).Round(2).InexactFloat64()
	}
	return exact.RoundBank(2).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
