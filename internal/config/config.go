package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Venue    VenueConfig    `mapstructure:"venue"`
	Heatmap  HeatmapConfig  `mapstructure:"heatmap"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Output   OutputConfig   `mapstructure:"output"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

type VenueConfig struct {
	InfoURL            string        `mapstructure:"info_url"`
	LeaderboardURL     string        `mapstructure:"leaderboard_url"`
	LeaderboardWindow  string        `mapstructure:"leaderboard_window"`
	UserAgent          string        `mapstructure:"user_agent"`
	LeaderboardTimeout time.Duration `mapstructure:"leaderboard_timeout"`
	PositionsTimeout   time.Duration `mapstructure:"positions_timeout"`
	PricesTimeout      time.Duration `mapstructure:"prices_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
}

type HeatmapConfig struct {
	Coins         []string             `mapstructure:"coins"`
	BucketCount   int                  `mapstructure:"bucket_count"`
	WindowFloor   float64              `mapstructure:"window_floor"`
	WindowCeiling float64              `mapstructure:"window_ceiling"`
	LeverageTiers models.LeverageTiers `mapstructure:"leverage_tiers"`
}

type PipelineConfig struct {
	MaxAccounts     int           `mapstructure:"max_accounts"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
	Concurrency     int           `mapstructure:"concurrency"`
	ProgressEvery   int           `mapstructure:"progress_every"`
}

type OutputConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DefaultCoins is the tracked instrument set used when none is configured.
var DefaultCoins = []string{"BTC", "ETH", "SOL", "HYPE", "XRP", "DOGE", "SUI", "LINK", "AVAX", "PEPE"}

func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/liquidation-heatmap")
	}

	v.SetEnvPrefix("HEATMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Venue defaults
	v.SetDefault("venue.info_url", "https://api.hyperliquid.xyz/info")
	v.SetDefault("venue.leaderboard_url", "https://stats-data.hyperliquid.xyz/Mainnet/leaderboard")
	v.SetDefault("venue.leaderboard_window", "day")
	v.SetDefault("venue.user_agent", defaultUserAgent)
	v.SetDefault("venue.leaderboard_timeout", 30*time.Second)
	v.SetDefault("venue.positions_timeout", 15*time.Second)
	v.SetDefault("venue.prices_timeout", 20*time.Second)
	v.SetDefault("venue.max_retries", 2)
	v.SetDefault("venue.retry_delay", 250*time.Millisecond)

	// Heatmap defaults
	v.SetDefault("heatmap.coins", DefaultCoins)
	v.SetDefault("heatmap.bucket_count", 50)
	v.SetDefault("heatmap.window_floor", 0.7)
	v.SetDefault("heatmap.window_ceiling", 1.3)
	tiers := make([]map[string]interface{}, 0, 4)
	for _, t := range models.DefaultLeverageTiers() {
		tiers = append(tiers, map[string]interface{}{
			"min":   t.Min,
			"max":   t.Max,
			"label": t.Label,
			"color": t.Color,
		})
	}
	v.SetDefault("heatmap.leverage_tiers", tiers)

	// Pipeline defaults
	v.SetDefault("pipeline.max_accounts", 200)
	v.SetDefault("pipeline.request_interval", 100*time.Millisecond)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.progress_every", 20)

	// Output defaults
	v.SetDefault("output.path", "data.json")

	// History is off unless a path is given
	v.SetDefault("database.path", "")

	// Metrics defaults
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "liquidation_heatmap")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	// Server defaults
	v.SetDefault("server.port", 8080)
}

func overrideFromEnv(config *Config) {
	// Comma separated list, e.g. HEATMAP_COINS=BTC,ETH
	if coins := os.Getenv("HEATMAP_COINS"); coins != "" {
		var parsed []string
		for _, c := range strings.Split(coins, ",") {
			if c = strings.TrimSpace(c); c != "" {
				parsed = append(parsed, c)
			}
		}
		config.Heatmap.Coins = parsed
	}
	if out := os.Getenv("HEATMAP_OUTPUT"); out != "" {
		config.Output.Path = out
	}
}

// Validate rejects configurations the aggregation cannot run with.
func (c *Config) Validate() error {
	if len(c.Heatmap.Coins) == 0 {
		return fmt.Errorf("at least one tracked coin is required")
	}
	if c.Heatmap.BucketCount <= 0 {
		return fmt.Errorf("bucket_count must be positive, got %d", c.Heatmap.BucketCount)
	}
	if c.Heatmap.WindowFloor <= 0 || c.Heatmap.WindowFloor >= c.Heatmap.WindowCeiling {
		return fmt.Errorf("window must satisfy 0 < floor < ceiling, got [%v, %v]",
			c.Heatmap.WindowFloor, c.Heatmap.WindowCeiling)
	}
	if len(c.Heatmap.LeverageTiers) == 0 {
		return fmt.Errorf("at least one leverage tier is required")
	}
	seen := make(map[string]bool)
	for _, t := range c.Heatmap.LeverageTiers {
		if t.Label == "" {
			return fmt.Errorf("leverage tier [%v, %v] has no label", t.Min, t.Max)
		}
		if t.Min > t.Max {
			return fmt.Errorf("leverage tier %s has min %v > max %v", t.Label, t.Min, t.Max)
		}
		if seen[t.Label] {
			return fmt.Errorf("duplicate leverage tier label %s", t.Label)
		}
		seen[t.Label] = true
	}
	if c.Pipeline.MaxAccounts < 0 {
		return fmt.Errorf("max_accounts must not be negative")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}
