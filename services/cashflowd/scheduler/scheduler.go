package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"

	"cashflow/crypto"
	"cashflow/native/amm"
	"cashflow/native/receivable"
	"cashflow/services/cashflowd/export"
	"cashflow/services/cashflowd/index"
)

// LedgerView is the read surface the snapshot job needs.
type LedgerView interface {
	Pools() ([]*amm.Pool, error)
	Vaults() ([]*receivable.Vault, error)
	Balance(mint, owner crypto.Address) (uint64, error)
}

// SnapshotSink persists snapshot rows.
type SnapshotSink interface {
	RecordPoolSnapshot(ctx context.Context, row *index.PoolSnapshotRow) error
	RecordVaultSnapshot(ctx context.Context, row *index.VaultSnapshotRow) error
}

// Gauges receives the latest snapshot values.
type Gauges interface {
	RecordPool(pool string, reserveA, reserveB, shares uint64)
	RecordVault(vault string, treasury uint64, currentMonth uint32)
}

// Exporter runs a single export batch.
type Exporter interface {
	Run(ctx context.Context) (export.Result, error)
}

// Scheduler manages the background cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	ledger   LedgerView
	sink     SnapshotSink
	gauges   Gauges
	exporter Exporter
	ctx      context.Context
}

// New creates a scheduler bound to ctx. gauges and exporter may be nil.
func New(ctx context.Context, ledger LedgerView, sink SnapshotSink, gauges Gauges, exporter Exporter) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		ledger:   ledger,
		sink:     sink,
		gauges:   gauges,
		exporter: exporter,
		ctx:      ctx,
	}
}

// Register adds the snapshot and export jobs. Empty expressions are skipped.
func (s *Scheduler) Register(snapshotCron, exportCron string) error {
	if spec := strings.TrimSpace(snapshotCron); spec != "" {
		if _, err := s.cron.AddFunc(spec, s.snapshotTask); err != nil {
			return fmt.Errorf("register snapshot task: %w", err)
		}
	}
	if spec := strings.TrimSpace(exportCron); spec != "" {
		if s.exporter == nil {
			return errors.New("register export task: exporter not configured")
		}
		if _, err := s.cron.AddFunc(spec, s.exportTask); err != nil {
			return fmt.Errorf("register export task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("scheduler: started with %d jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("scheduler: stopped")
}

func (s *Scheduler) snapshotTask() {
	if err := s.Snapshot(s.ctx); err != nil {
		log.Printf("scheduler: snapshot: %v", err)
	}
}

func (s *Scheduler) exportTask() {
	res, err := s.exporter.Run(s.ctx)
	if err != nil {
		log.Printf("scheduler: export: %v", err)
		return
	}
	if len(res.Files) > 0 {
		log.Printf("scheduler: exported %d redemptions and %d sales", res.Redemptions, res.Sales)
	}
}

// Snapshot records the current pool reserves and vault progress.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	if s.ledger == nil || s.sink == nil {
		return errors.New("snapshot: ledger and sink required")
	}
	pools, err := s.ledger.Pools()
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}
	for _, pool := range pools {
		id := pool.ID.String()
		if err := s.sink.RecordPoolSnapshot(ctx, &index.PoolSnapshotRow{
			Pool:         id,
			ReserveA:     index.Amount(pool.TokenAReserve),
			ReserveB:     index.Amount(pool.TokenBReserve),
			TotalShares:  index.Amount(pool.TotalLPShares),
			WindowNumber: pool.WindowNumber,
			WindowStart:  pool.WindowStart,
		}); err != nil {
			return fmt.Errorf("pool %s: %w", id, err)
		}
		if s.gauges != nil {
			s.gauges.RecordPool(id, pool.TokenAReserve, pool.TokenBReserve, pool.TotalLPShares)
		}
	}

	vaults, err := s.ledger.Vaults()
	if err != nil {
		return fmt.Errorf("list vaults: %w", err)
	}
	for _, vault := range vaults {
		id := vault.ID.String()
		treasury, err := s.ledger.Balance(vault.PaymentMint, vault.Treasury)
		if err != nil {
			return fmt.Errorf("vault %s treasury: %w", id, err)
		}
		if err := s.sink.RecordVaultSnapshot(ctx, &index.VaultSnapshotRow{
			Vault:             id,
			CurrentMonth:      vault.CurrentMonth,
			TotalTokensMinted: index.Amount(vault.TotalTokensMinted),
			TotalRedeemed:     index.Amount(vault.TotalRedeemed),
			TreasuryBalance:   index.Amount(treasury),
		}); err != nil {
			return fmt.Errorf("vault %s: %w", id, err)
		}
		if s.gauges != nil {
			s.gauges.RecordVault(id, treasury, vault.CurrentMonth)
		}
	}
	return nil
}
