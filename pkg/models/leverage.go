package models

// LeverageTier is one labeled, inclusive leverage range. Color is carried
// through to the artifact for the visualizer.
type LeverageTier struct {
	Min   float64 `json:"min" mapstructure:"min"`
	Max   float64 `json:"max" mapstructure:"max"`
	Label string  `json:"label" mapstructure:"label"`
	Color string  `json:"color" mapstructure:"color"`
}

// LeverageTiers is ordered from lowest to highest leverage.
type LeverageTiers []LeverageTier

func DefaultLeverageTiers() LeverageTiers {
	return LeverageTiers{
		{Min: 1, Max: 10, Label: "10x", Color: "#3b82f6"},
		{Min: 11, Max: 25, Label: "25x", Color: "#eab308"},
		{Min: 26, Max: 50, Label: "50x", Color: "#f97316"},
		{Min: 51, Max: 100, Label: "100x", Color: "#ef4444"},
	}
}

// Classify returns the label of the first tier whose range contains
// leverage. Values matched by no range (gaps, below the first min, above the
// last max) clamp to the highest tier.
func (t LeverageTiers) Classify(leverage float64) string {
	for _, tier := range t {
		if tier.Min <= leverage && leverage <= tier.Max {
			return tier.Label
		}
	}
	return t.Highest().Label
}

// ClassifyIndex is Classify returning the tier position instead of its label.
func (t LeverageTiers) ClassifyIndex(leverage float64) int {
	for i, tier := range t {
		if tier.Min <= leverage && leverage <= tier.Max {
			return i
		}
	}
	return len(t) - 1
}

func (t LeverageTiers) Highest() LeverageTier {
	if len(t) == 0 {
		return LeverageTier{}
	}
	return t[len(t)-1]
}

func (t LeverageTiers) Labels() []string {
	labels := make([]string, len(t))
	for i, tier := range t {
		labels[i] = tier.Label
	}
	return labels
}

// IndexOf returns the position of label, or -1.
func (t LeverageTiers) IndexOf(label string) int {
	for i, tier := range t {
		if tier.Label == label {
			return i
		}
	}
	return -1
}
