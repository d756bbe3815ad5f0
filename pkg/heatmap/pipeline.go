package heatmap

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gregtusar/liquidation-heatmap/internal/metrics"
	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PriceOracle returns current mark prices. Failures yield an empty snapshot.
type PriceOracle interface {
	FetchPrices(ctx context.Context) models.PriceSnapshot
}

// AccountDiscovery returns the accounts to sample. It never fails; an empty
// list is a valid answer.
type AccountDiscovery interface {
	DiscoverAccounts(ctx context.Context) []string
}

// PositionCollector returns one account's tracked positions, or nothing
// when the account could not be read.
type PositionCollector interface {
	CollectPositions(ctx context.Context, account string) []models.Position
}

type PipelineConfig struct {
	// Concurrency is the number of accounts read in parallel.
	Concurrency int
	// RequestInterval is the minimum spacing between position requests.
	RequestInterval time.Duration
	// ProgressEvery logs progress after every N accounts; 0 disables it.
	ProgressEvery int
}

// Pipeline runs one end-to-end heatmap build: prices, discovery, position
// collection, aggregation.
type Pipeline struct {
	prices     PriceOracle
	accounts   AccountDiscovery
	positions  PositionCollector
	aggregator *Aggregator
	cfg        PipelineConfig
	logger     *logrus.Logger
	now        func() time.Time
}

func NewPipeline(prices PriceOracle, accounts AccountDiscovery, positions PositionCollector, aggregator *Aggregator, cfg PipelineConfig, logger *logrus.Logger) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		prices:     prices,
		accounts:   accounts,
		positions:  positions,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run builds a snapshot. Venue failures degrade the result rather than
// failing it; only cancellation of ctx returns an error.
func (p *Pipeline) Run(ctx context.Context) (*models.Snapshot, error) {
	start := p.now()

	p.logger.Info("Fetching current prices")
	prices := p.prices.FetchPrices(ctx)
	p.logger.WithField("coins", len(prices)).Info("Got prices")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("Discovering accounts")
	accounts := p.accounts.DiscoverAccounts(ctx)
	p.logger.WithField("accounts", len(accounts)).Info("Found accounts to analyze")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	positions, err := p.collect(ctx, accounts)
	if err != nil {
		return nil, err
	}
	p.logger.WithField("positions", len(positions)).Info("Collected positions")

	data := p.aggregator.Aggregate(positions, prices)
	snapshot := p.assemble(data, len(accounts))

	metrics.RecordRun(p.now().Sub(start))
	for coin, profile := range data {
		metrics.RecordLiquidationValue(coin, profile.TotalLongValue, profile.TotalShortValue)
	}
	p.logSummary(snapshot)

	return snapshot, nil
}

// collect reads every account through a shared rate limiter. Results land in
// per-account slots so the output order matches discovery order regardless
// of concurrency.
func (p *Pipeline) collect(ctx context.Context, accounts []string) ([]models.Position, error) {
	limit := rate.Inf
	if p.cfg.RequestInterval > 0 {
		limit = rate.Every(p.cfg.RequestInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	results := make([][]models.Position, len(accounts))
	jobs := make(chan int)

	var (
		wg        sync.WaitGroup
		processed atomic.Int64
		found     atomic.Int64
	)

	for w := 0; w < p.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					continue
				}
				results[i] = p.collectOne(ctx, accounts[i])

				found.Add(int64(len(results[i])))
				n := processed.Add(1)
				if p.cfg.ProgressEvery > 0 && n%int64(p.cfg.ProgressEvery) == 0 {
					p.logger.WithFields(logrus.Fields{
						"processed": n,
						"total":     len(accounts),
						"positions": found.Load(),
					}).Info("Collection progress")
				}
			}
		}()
	}

feed:
	for i := range accounts {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("position collection interrupted after %d of %d accounts: %w",
			processed.Load(), len(accounts), err)
	}

	var positions []models.Position
	for _, r := range results {
		positions = append(positions, r...)
	}
	return positions, nil
}

// collectOne isolates a single account: a panicking collector costs that
// account's positions and nothing else.
func (p *Pipeline) collectOne(ctx context.Context, account string) (positions []models.Position) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"account": account,
				"panic":   r,
			}).Error("Position collection panicked")
			positions = nil
		}
	}()
	return p.positions.CollectPositions(ctx, account)
}

func (p *Pipeline) assemble(data map[string]models.InstrumentProfile, traders int) *models.Snapshot {
	coins := make([]string, 0, len(data))
	for _, coin := range p.aggregator.Coins() {
		if _, ok := data[coin]; ok {
			coins = append(coins, coin)
		}
	}
	return &models.Snapshot{
		Coins:           coins,
		Data:            data,
		LeverageBuckets: p.aggregator.Tiers(),
		TradersCount:    traders,
		LastUpdated:     models.Timestamp{Time: p.now().UTC()},
	}
}

func (p *Pipeline) logSummary(s *models.Snapshot) {
	p.logger.WithFields(logrus.Fields{
		"coins":   len(s.Coins),
		"traders": s.TradersCount,
	}).Info("Heatmap complete")

	for _, coin := range s.Coins {
		profile := s.Data[coin]
		p.logger.Infof("%s: %s positions, Long $%s, Short $%s",
			coin,
			humanize.Comma(int64(profile.PositionCount)),
			humanize.Commaf(math.Round(profile.TotalLongValue)),
			humanize.Commaf(math.Round(profile.TotalShortValue)),
		)
	}
}
