package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.hyperliquid.xyz/info", cfg.Venue.InfoURL)
	assert.Equal(t, 30*time.Second, cfg.Venue.LeaderboardTimeout)
	assert.Equal(t, 15*time.Second, cfg.Venue.PositionsTimeout)
	assert.Equal(t, DefaultCoins, cfg.Heatmap.Coins)
	assert.Equal(t, 50, cfg.Heatmap.BucketCount)
	assert.Equal(t, 0.7, cfg.Heatmap.WindowFloor)
	assert.Equal(t, 1.3, cfg.Heatmap.WindowCeiling)
	assert.Equal(t, models.DefaultLeverageTiers(), cfg.Heatmap.LeverageTiers)
	assert.Equal(t, 200, cfg.Pipeline.MaxAccounts)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.RequestInterval)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
	assert.Equal(t, "data.json", cfg.Output.Path)
	assert.Empty(t, cfg.Database.Path)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
heatmap:
  bucket_count: 20
  leverage_tiers:
    - {min: 1, max: 5, label: "5x", color: "#000000"}
    - {min: 6, max: 20, label: "20x", color: "#ffffff"}
pipeline:
  concurrency: 4
  request_interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("HEATMAP_COINS", "BTC, ETH")
	t.Setenv("HEATMAP_OUTPUT", filepath.Join(dir, "out.json"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Heatmap.BucketCount)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Heatmap.Coins)
	assert.Equal(t, []string{"5x", "20x"}, cfg.Heatmap.LeverageTiers.Labels())
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.RequestInterval)
	assert.Equal(t, filepath.Join(dir, "out.json"), cfg.Output.Path)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Heatmap: HeatmapConfig{
				Coins:         []string{"BTC"},
				BucketCount:   50,
				WindowFloor:   0.7,
				WindowCeiling: 1.3,
				LeverageTiers: models.DefaultLeverageTiers(),
			},
			Pipeline: PipelineConfig{MaxAccounts: 200, Concurrency: 1},
			Output:   OutputConfig{Path: "data.json"},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no coins":        func(c *Config) { c.Heatmap.Coins = nil },
		"zero buckets":    func(c *Config) { c.Heatmap.BucketCount = 0 },
		"inverted window": func(c *Config) { c.Heatmap.WindowFloor = 1.5 },
		"no tiers":        func(c *Config) { c.Heatmap.LeverageTiers = nil },
		"bad tier range":  func(c *Config) { c.Heatmap.LeverageTiers[0].Min = 20 },
		"duplicate label": func(c *Config) { c.Heatmap.LeverageTiers[1].Label = "10x" },
		"no concurrency":  func(c *Config) { c.Pipeline.Concurrency = 0 },
		"no output":       func(c *Config) { c.Output.Path = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
