package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cashflow/core/events"
)

const emitTimeout = 5 * time.Second

// ErrStoreClosed is returned by a nil or unconfigured store.
var ErrStoreClosed = errors.New("index: store closed")

// EventRow is the persisted form of a committed ledger event.
type EventRow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Vault      string    `gorm:"size:96;index" json:"vault,omitempty"`
	Pool       string    `gorm:"size:96;index" json:"pool,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Record decodes the stored attributes.
func (r EventRow) Record() (*events.Record, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &events.Record{Type: r.Type, Attributes: attrs}, nil
}

// RedemptionRow mirrors a committed redemption.
type RedemptionRow struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Vault           string `gorm:"size:96;index" json:"vault"`
	Redeemer        string `gorm:"size:96;index" json:"redeemer"`
	Month           uint32 `json:"month"`
	TokenAmount     Amount `json:"tokenAmount"`
	RedemptionValue Amount `json:"redemptionValue"`
	RedeemedAt      int64  `json:"redeemedAt"`
	Exported        bool   `gorm:"index" json:"-"`
}

// SaleRow mirrors a committed primary sale.
type SaleRow struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	Vault              string `gorm:"size:96;index" json:"vault"`
	Buyer              string `gorm:"size:96;index" json:"buyer"`
	TokenAmount        Amount `json:"tokenAmount"`
	PurchasePrice      Amount `json:"purchasePrice"`
	DiscountPercentage uint8  `json:"discountPercentage"`
	PurchasedAt        int64  `json:"purchasedAt"`
	Exported           bool   `gorm:"index" json:"-"`
}

// PoolSnapshotRow records pool state captured by the snapshot job.
type PoolSnapshotRow struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Pool         string    `gorm:"size:96;index" json:"pool"`
	ReserveA     Amount    `json:"reserveA"`
	ReserveB     Amount    `json:"reserveB"`
	TotalShares  Amount    `json:"totalShares"`
	WindowNumber uint64    `json:"windowNumber"`
	WindowStart  int64     `json:"windowStart"`
	TakenAt      time.Time `gorm:"index" json:"takenAt"`
}

// VaultSnapshotRow records vault progress captured by the snapshot job.
type VaultSnapshotRow struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Vault             string    `gorm:"size:96;index" json:"vault"`
	CurrentMonth      uint32    `json:"currentMonth"`
	TotalTokensMinted Amount    `json:"totalTokensMinted"`
	TotalRedeemed     Amount    `json:"totalRedeemed"`
	TreasuryBalance   Amount    `json:"treasuryBalance"`
	TakenAt           time.Time `gorm:"index" json:"takenAt"`
}

// AutoMigrate performs the schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRow{},
		&RedemptionRow{},
		&SaleRow{},
		&PoolSnapshotRow{},
		&VaultSnapshotRow{},
	)
}

// Store persists committed ledger events for querying and export. It
// implements events.Emitter.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("index: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("index: db required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged; emission never blocks
// the ledger.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := s.Record(ctx, evt); err != nil {
		log.Printf("index: record %s: %v", evt.EventType(), err)
	}
}

// Record persists a single event together with its typed projection.
func (s *Store) Record(ctx context.Context, evt events.Event) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	rec := evt.Event()
	if rec == nil {
		return nil
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return err
	}
	row := &EventRow{
		Type:       rec.Type,
		Vault:      rec.Attributes["vault"],
		Pool:       rec.Attributes["pool"],
		Attributes: string(attrs),
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		switch e := evt.(type) {
		case events.TokensRedeemed:
			return tx.Create(&RedemptionRow{
				Vault:           e.Vault.String(),
				Redeemer:        e.Redeemer.String(),
				Month:           e.Month,
				TokenAmount:     Amount(e.TokenAmount),
				RedemptionValue: Amount(e.RedemptionValue),
				RedeemedAt:      e.RedeemedAt,
			}).Error
		case events.TokensPurchased:
			return tx.Create(&SaleRow{
				Vault:              e.Vault.String(),
				Buyer:              e.Buyer.String(),
				TokenAmount:        Amount(e.TokenAmount),
				PurchasePrice:      Amount(e.PurchasePrice),
				DiscountPercentage: e.DiscountPercentage,
				PurchasedAt:        e.PurchasedAt,
			}).Error
		}
		return nil
	})
}

// EventFilter narrows event queries. Zero fields match everything.
type EventFilter struct {
	Type    string
	Vault   string
	Pool    string
	AfterID uint
	Limit   int
}

// Events returns stored events in commit order.
func (s *Store) Events(ctx context.Context, filter EventFilter) ([]EventRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	q := s.db.WithContext(ctx).Model(&EventRow{}).Where("id > ?", filter.AfterID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Vault != "" {
		q = q.Where("vault = ?", filter.Vault)
	}
	if filter.Pool != "" {
		q = q.Where("pool = ?", filter.Pool)
	}
	var rows []EventRow
	err := q.Order("id asc").Limit(clampLimit(filter.Limit)).Find(&rows).Error
	return rows, err
}

// Redemptions lists a vault's redemptions, most recent first.
func (s *Store) Redemptions(ctx context.Context, vault string, limit int) ([]RedemptionRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []RedemptionRow
	err := s.db.WithContext(ctx).Where("vault = ?", vault).
		Order("id desc").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// Sales lists a vault's primary sales, most recent first.
func (s *Store) Sales(ctx context.Context, vault string, limit int) ([]SaleRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []SaleRow
	err := s.db.WithContext(ctx).Where("vault = ?", vault).
		Order("id desc").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// PendingExport returns the redemptions and sales not yet exported.
func (s *Store) PendingExport(ctx context.Context, limit int) ([]RedemptionRow, []SaleRow, error) {
	if s == nil || s.db == nil {
		return nil, nil, ErrStoreClosed
	}
	var redemptions []RedemptionRow
	if err := s.db.WithContext(ctx).Where("exported = ?", false).
		Order("id asc").Limit(clampLimit(limit)).Find(&redemptions).Error; err != nil {
		return nil, nil, err
	}
	var sales []SaleRow
	if err := s.db.WithContext(ctx).Where("exported = ?", false).
		Order("id asc").Limit(clampLimit(limit)).Find(&sales).Error; err != nil {
		return nil, nil, err
	}
	return redemptions, sales, nil
}

// MarkExported flags the supplied rows as exported.
func (s *Store) MarkExported(ctx context.Context, redemptionIDs, saleIDs []uint) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(redemptionIDs) > 0 {
			if err := tx.Model(&RedemptionRow{}).Where("id IN ?", redemptionIDs).
				Update("exported", true).Error; err != nil {
				return err
			}
		}
		if len(saleIDs) > 0 {
			if err := tx.Model(&SaleRow{}).Where("id IN ?", saleIDs).
				Update("exported", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordPoolSnapshot stores a pool snapshot.
func (s *Store) RecordPoolSnapshot(ctx context.Context, row *PoolSnapshotRow) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if row.TakenAt.IsZero() {
		row.TakenAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// RecordVaultSnapshot stores a vault snapshot.
func (s *Store) RecordVaultSnapshot(ctx context.Context, row *VaultSnapshotRow) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if row.TakenAt.IsZero() {
		row.TakenAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// PoolSnapshots returns a pool's snapshots, most recent first.
func (s *Store) PoolSnapshots(ctx context.Context, pool string, limit int) ([]PoolSnapshotRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []PoolSnapshotRow
	err := s.db.WithContext(ctx).Where("pool = ?", pool).
		Order("id desc").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
