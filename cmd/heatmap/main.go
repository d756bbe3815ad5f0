package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregtusar/liquidation-heatmap/api"
	"github.com/gregtusar/liquidation-heatmap/internal/config"
	"github.com/gregtusar/liquidation-heatmap/internal/logging"
	"github.com/gregtusar/liquidation-heatmap/internal/metrics"
	"github.com/gregtusar/liquidation-heatmap/pkg/heatmap"
	"github.com/gregtusar/liquidation-heatmap/pkg/hyperliquid"
	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/gregtusar/liquidation-heatmap/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "liquidation-heatmap",
		Short: "Hyperliquid liquidation heatmap generator",
		Long: `Samples top Hyperliquid accounts, collects their open positions and writes
a per-coin histogram of estimated liquidation prices, split by leverage tier.`,
		Args: cobra.NoArgs,
		Run:  runHeatmap,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the last generated heatmap over HTTP",
		Args:  cobra.NoArgs,
		Run:   runServe,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logrus.Logger) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := logging.New(cfg.Logging)
	metrics.Init()
	return cfg, logger
}

func runHeatmap(cmd *cobra.Command, args []string) {
	cfg, logger := setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := hyperliquid.NewClient(clientConfig(cfg), logger)
	aggregator := heatmap.NewAggregator(
		cfg.Heatmap.Coins,
		cfg.Heatmap.BucketCount,
		cfg.Heatmap.WindowFloor,
		cfg.Heatmap.WindowCeiling,
		cfg.Heatmap.LeverageTiers,
	)
	pipeline := heatmap.NewPipeline(client, client, client, aggregator, heatmap.PipelineConfig{
		Concurrency:     cfg.Pipeline.Concurrency,
		RequestInterval: cfg.Pipeline.RequestInterval,
		ProgressEvery:   cfg.Pipeline.ProgressEvery,
	}, logger)

	snapshot, err := pipeline.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Heatmap run failed")
	}

	if err := store.WriteSnapshot(cfg.Output.Path, snapshot); err != nil {
		logger.WithError(err).Fatal("Failed to write heatmap")
	}
	logger.WithField("path", cfg.Output.Path).Info("Saved heatmap")

	recordHistory(cfg, snapshot, logger)
	pushMetrics(ctx, cfg, logger)
}

func clientConfig(cfg *config.Config) hyperliquid.Config {
	return hyperliquid.Config{
		InfoURL:            cfg.Venue.InfoURL,
		LeaderboardURL:     cfg.Venue.LeaderboardURL,
		LeaderboardWindow:  cfg.Venue.LeaderboardWindow,
		UserAgent:          cfg.Venue.UserAgent,
		LeaderboardTimeout: cfg.Venue.LeaderboardTimeout,
		PositionsTimeout:   cfg.Venue.PositionsTimeout,
		PricesTimeout:      cfg.Venue.PricesTimeout,
		MaxRetries:         cfg.Venue.MaxRetries,
		RetryDelay:         cfg.Venue.RetryDelay,
		Coins:              cfg.Heatmap.Coins,
		LeverageTiers:      cfg.Heatmap.LeverageTiers,
		MaxAccounts:        cfg.Pipeline.MaxAccounts,
	}
}

// recordHistory appends the run to the history store. The artifact is
// already written, so failures here are logged only.
func recordHistory(cfg *config.Config, snapshot *models.Snapshot, logger *logrus.Logger) {
	if cfg.Database.Path == "" {
		return
	}

	history, err := store.NewHistory(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Error("Failed to open run history")
		return
	}
	defer history.Close()

	run, err := history.Record(snapshot)
	if err != nil {
		logger.WithError(err).Error("Failed to record run")
		return
	}
	logger.WithField("run_id", run.ID).Info("Recorded run")
}

func pushMetrics(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.WithError(err).Error("Failed to push metrics")
		return
	}
	logger.WithField("job", cfg.Metrics.Job).Debug("Pushed metrics")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, logger := setup()

	var history api.RunHistory
	if cfg.Database.Path != "" {
		h, err := store.NewHistory(cfg.Database.Path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open run history")
		}
		defer h.Close()
		history = h
	}

	server := api.NewServer(cfg.Output.Path, history, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Heatmap server is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to shut down API server")
	}

	logger.Info("Heatmap server stopped")
}
