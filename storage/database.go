package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/chainarb/risk"
	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Execution history, stranded-funds ledger, risk state
// ═══════════════════════════════════════════════════════════════════════════════
//
// The in-memory ring buffer remains the live source of truth; this layer
// persists records for post-mortems and the stranded-funds recovery queue.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

// Execution is a persisted execution record
type Execution struct {
	ID            string          `gorm:"primaryKey"`
	Initiator     string
	OpportunityID string          `gorm:"index"`
	Token         string
	SourceChain   string
	TargetChain   string
	Status        string          `gorm:"index"`
	FinalState    string
	Failure       string
	NetProfit     decimal.Decimal `gorm:"type:decimal(20,6)"`
	LossUSD       decimal.Decimal `gorm:"type:decimal(20,6)"`
	BuyTxHash     string
	SellTxHash    string
	BridgeRef     string
	StartedAt     time.Time
	FinishedAt    time.Time
	CreatedAt     time.Time
}

// StrandedFund is one saga needing out-of-band recovery
type StrandedFund struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	OpportunityID string          `gorm:"index"`
	Failure       string
	StrandedUSD   decimal.Decimal `gorm:"type:decimal(20,6)"`
	FeesLostUSD   decimal.Decimal `gorm:"type:decimal(20,6)"`
	BridgeRef     string
	Recovered     bool            `gorm:"index;default:false"`
	RecoveredAt   *time.Time
	CreatedAt     time.Time
}

// RiskDay is the persisted daily risk state
type RiskDay struct {
	Date                string          `gorm:"primaryKey"`
	DailyLossUSD        decimal.Decimal `gorm:"type:decimal(20,6)"`
	ConsecutiveFailures int
	Tripped             bool
	TripReason          string
	UpdatedAt           time.Time
}

// New opens the database: a postgres URL or a sqlite file path
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), gormCfg)
	} else {
		if dir := filepath.Dir(dbPath); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, mkErr
			}
		}
		db, err = gorm.Open(sqlite.Open(dbPath), gormCfg)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Execution{}, &StrandedFund{}, &RiskDay{}); err != nil {
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("💾 Database connected")
	return &Database{db: db}, nil
}

// SaveExecution persists one completed execution record
func (d *Database) SaveExecution(record types.ExecutionRecord) error {
	row := Execution{
		ID:            record.ID,
		Initiator:     record.Initiator,
		OpportunityID: record.Opportunity.ID,
		Token:         record.Opportunity.Token,
		SourceChain:   string(record.Opportunity.SourceChain),
		TargetChain:   string(record.Opportunity.TargetChain),
		Status:        string(record.Status),
		StartedAt:     record.StartedAt,
		FinishedAt:    record.FinishedAt,
	}
	if record.Result != nil {
		row.FinalState = string(record.Result.FinalState)
		row.Failure = string(record.Result.Failure)
		row.NetProfit = record.Result.NetProfit
		row.LossUSD = record.Result.LossUSD
		row.BuyTxHash = record.Result.BuyTxHash
		row.SellTxHash = record.Result.SellTxHash
		row.BridgeRef = record.Result.BridgeRef
	}

	return d.db.Create(&row).Error
}

// SaveStranded records a saga whose funds need manual recovery
func (d *Database) SaveStranded(outcome *types.TradeOutcome) error {
	row := StrandedFund{
		OpportunityID: outcome.OpportunityID,
		Failure:       string(outcome.Failure),
		StrandedUSD:   outcome.StrandedUSD,
		FeesLostUSD:   outcome.LossUSD,
		BridgeRef:     outcome.BridgeRef,
	}
	return d.db.Create(&row).Error
}

// PendingStranded returns unrecovered stranded-funds entries
func (d *Database) PendingStranded() ([]types.StrandedEntry, error) {
	var rows []StrandedFund
	if err := d.db.Where("recovered = ?", false).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.StrandedEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.StrandedEntry{
			ID:            row.ID,
			OpportunityID: row.OpportunityID,
			Failure:       types.FailureKind(row.Failure),
			StrandedUSD:   row.StrandedUSD,
			FeesLostUSD:   row.FeesLostUSD,
			BridgeRef:     row.BridgeRef,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}

// MarkRecovered flags a stranded entry as resolved
func (d *Database) MarkRecovered(id uint) error {
	now := time.Now()
	return d.db.Model(&StrandedFund{}).
		Where("id = ?", id).
		Updates(map[string]any{"recovered": true, "recovered_at": &now}).Error
}

// SaveRiskDay upserts the daily risk state for crash recovery
func (d *Database) SaveRiskDay(status risk.Status) error {
	row := RiskDay{
		Date:                status.Date,
		DailyLossUSD:        status.DailyLossUSD,
		ConsecutiveFailures: status.ConsecutiveFailures,
		Tripped:             status.Tripped,
		TripReason:          status.Reason,
		UpdatedAt:           time.Now(),
	}
	return d.db.Save(&row).Error
}

// RecentExecutions returns the latest persisted executions
func (d *Database) RecentExecutions(limit int) ([]Execution, error) {
	var rows []Execution
	err := d.db.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Close closes the underlying connection
func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}
