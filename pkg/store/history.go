package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gregtusar/liquidation-heatmap/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RunRecord summarizes one completed run.
type RunRecord struct {
	ID            string             `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt     time.Time          `json:"createdAt"`
	LastUpdated   time.Time          `gorm:"index" json:"lastUpdated"`
	TradersCount  int                `json:"tradersCount"`
	PositionCount int                `json:"positionCount"`
	Instruments   []InstrumentRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"instruments"`
}

// InstrumentRecord holds the headline numbers of one coin within a run.
type InstrumentRecord struct {
	ID              uint    `gorm:"primaryKey" json:"-"`
	RunID           string  `gorm:"index;size:36" json:"-"`
	Coin            string  `gorm:"index" json:"coin"`
	CurrentPrice    float64 `json:"currentPrice"`
	TotalLongValue  float64 `json:"totalLongValue"`
	TotalShortValue float64 `json:"totalShortValue"`
	PositionCount   int     `json:"positionCount"`
	LongBuckets     int     `json:"longBuckets"`
	ShortBuckets    int     `json:"shortBuckets"`
}

// History is the optional SQLite record of past runs.
type History struct {
	db *gorm.DB
}

func NewHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go driver, no cgo
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}, &InstrumentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &History{db: db}, nil
}

// Record stores a snapshot's summary and returns the new run.
func (h *History) Record(snapshot *models.Snapshot) (*RunRecord, error) {
	run := RunRecord{
		ID:           uuid.NewString(),
		LastUpdated:  snapshot.LastUpdated.UTC(),
		TradersCount: snapshot.TradersCount,
	}
	for _, coin := range snapshot.Coins {
		profile, ok := snapshot.Profile(coin)
		if !ok {
			continue
		}
		run.PositionCount += profile.PositionCount
		run.Instruments = append(run.Instruments, InstrumentRecord{
			Coin:            coin,
			CurrentPrice:    profile.CurrentPrice,
			TotalLongValue:  profile.TotalLongValue,
			TotalShortValue: profile.TotalShortValue,
			PositionCount:   profile.PositionCount,
			LongBuckets:     len(profile.LongLiquidations),
			ShortBuckets:    len(profile.ShortLiquidations),
		})
	}

	if err := h.db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return &run, nil
}

// Runs returns up to limit runs, newest first, with their instruments.
func (h *History) Runs(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	q := h.db.
		Preload("Instruments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("last_updated desc").
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	return runs, nil
}

func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
