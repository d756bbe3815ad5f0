package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is one account's open position on a tracked coin, normalized
// from the venue payload. Value is |size| * entry price.
type Position struct {
	Coin             string  `json:"coin"`
	LiquidationPrice float64 `json:"liquidationPx"`
	EntryPrice       float64 `json:"entryPx"`
	Size             float64 `json:"size"`
	Value            float64 `json:"positionValue"`
	Leverage         float64 `json:"leverage"`
	LeverageTier     string  `json:"leverageBucket"`
	Side             Side    `json:"side"`
}

// NewPosition derives side, notional value and tier from the raw signed size
// and leverage.
func NewPosition(coin string, signedSize, entryPrice, liquidationPrice, leverage float64, tiers LeverageTiers) Position {
	side := SideShort
	if signedSize > 0 {
		side = SideLong
	}
	size := math.Abs(signedSize)
	return Position{
		Coin:             coin,
		LiquidationPrice: liquidationPrice,
		EntryPrice:       entryPrice,
		Size:             size,
		Value:            size * entryPrice,
		Leverage:         leverage,
		LeverageTier:     tiers.Classify(leverage),
		Side:             side,
	}
}

// PriceSnapshot maps coin to mark price. A missing or zero entry means the
// coin is skipped for this run.
type PriceSnapshot map[string]float64

func (p PriceSnapshot) Price(coin string) float64 {
	return p[coin]
}

type TierValue struct {
	Label string
	Value float64
}

// PriceBucket is one histogram cell. Tiers follow the configured tier order
// and always sum to Value.
type PriceBucket struct {
	Price      float64
	Value      float64
	Cumulative float64
	Tiers      []TierValue
}

// TierValue returns the sub-total for label, or 0.
func (b PriceBucket) TierValue(label string) float64 {
	for _, tv := range b.Tiers {
		if tv.Label == label {
			return tv.Value
		}
	}
	return 0
}

// MarshalJSON flattens the tier sub-totals into the bucket object, keyed by
// tier label, after price, value and cumulative.
func (b PriceBucket) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, v float64, first bool) error {
		if !first {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		n, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("bucket field %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(n)
		return nil
	}
	if err := write("price", b.Price, true); err != nil {
		return nil, err
	}
	if err := write("value", b.Value, false); err != nil {
		return nil, err
	}
	if err := write("cumulative", b.Cumulative, false); err != nil {
		return nil, err
	}
	for _, tv := range b.Tiers {
		if err := write(tv.Label, tv.Value, false); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON treats every key other than price, value and cumulative as a
// tier sub-total. Tiers come back sorted by label; Snapshot restores the
// configured order.
func (b *PriceBucket) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = PriceBucket{}
	for k, v := range raw {
		switch k {
		case "price":
			b.Price = v
		case "value":
			b.Value = v
		case "cumulative":
			b.Cumulative = v
		default:
			b.Tiers = append(b.Tiers, TierValue{Label: k, Value: v})
		}
	}
	sort.Slice(b.Tiers, func(i, j int) bool { return b.Tiers[i].Label < b.Tiers[j].Label })
	return nil
}

// InstrumentProfile is the two-sided histogram for one coin. Both bucket
// sequences are ascending by price.
type InstrumentProfile struct {
	CurrentPrice      float64       `json:"currentPrice"`
	LongLiquidations  []PriceBucket `json:"longLiquidations"`
	ShortLiquidations []PriceBucket `json:"shortLiquidations"`
	TotalLongValue    float64       `json:"totalLongValue"`
	TotalShortValue   float64       `json:"totalShortValue"`
	PositionCount     int           `json:"positionCount"`
}

// TimestampLayout renders UTC with microseconds and a literal Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// Snapshot is the artifact produced by one run.
type Snapshot struct {
	Coins           []string                     `json:"coins"`
	Data            map[string]InstrumentProfile `json:"data"`
	LeverageBuckets LeverageTiers                `json:"leverageBuckets"`
	TradersCount    int                          `json:"tradersCount"`
	LastUpdated     Timestamp                    `json:"lastUpdated"`
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type alias Snapshot
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Snapshot(a)
	for coin, profile := range s.Data {
		s.orderTiers(profile.LongLiquidations)
		s.orderTiers(profile.ShortLiquidations)
		s.Data[coin] = profile
	}
	return nil
}

func (s *Snapshot) orderTiers(buckets []PriceBucket) {
	for i := range buckets {
		tiers := buckets[i].Tiers
		sort.SliceStable(tiers, func(a, b int) bool {
			ia, ib := s.LeverageBuckets.IndexOf(tiers[a].Label), s.LeverageBuckets.IndexOf(tiers[b].Label)
			if ia < 0 {
				ia = len(s.LeverageBuckets)
			}
			if ib < 0 {
				ib = len(s.LeverageBuckets)
			}
			return ia < ib
		})
	}
}

// Profile returns the profile for coin and whether it exists.
func (s *Snapshot) Profile(coin string) (InstrumentProfile, bool) {
	p, ok := s.Data[coin]
	return p, ok
}
