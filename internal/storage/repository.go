package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"octowatcher/internal/ledger"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	// The ON CONFLICT DO NOTHING insert is the idempotence compare-and-set:
	// rows-affected tells the ledger whether this signature was new, and two
	// concurrent submissions of one signature see exactly one insert.
	markProcessedSQL = `INSERT INTO processed_signatures (
        signature,
        amount_sol,
        hp_added,
        counterparty,
        observed_at,
        credited_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (signature) DO NOTHING;`

	hasProcessedSQL = `SELECT EXISTS (
        SELECT 1 FROM processed_signatures WHERE signature = $1
    );`

	listRecentDonationsSQL = `SELECT
        signature,
        amount_sol,
        hp_added,
        counterparty,
        observed_at,
        credited_at
    FROM processed_signatures
    WHERE hp_added > 0
    ORDER BY observed_at DESC
    LIMIT $1;`

	listDonationsBetweenSQL = `SELECT
        signature,
        amount_sol,
        hp_added,
        counterparty,
        observed_at,
        credited_at
    FROM processed_signatures
    WHERE hp_added > 0
      AND observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`

	countProcessedSQL = `SELECT COUNT(*) FROM processed_signatures;`

	upsertVitalitySQL = `INSERT INTO vitality_state (id, hp, phase, updated_at)
    VALUES (1, $1, $2, $3)
    ON CONFLICT (id) DO UPDATE
    SET hp = EXCLUDED.hp,
        phase = EXCLUDED.phase,
        updated_at = EXCLUDED.updated_at;`

	loadVitalitySQL = `SELECT hp, phase, updated_at FROM vitality_state WHERE id = 1;`
)

// DonationStore defines read access to the donation history.
type DonationStore interface {
	ListRecentDonations(ctx context.Context, limit int) ([]ledger.ProcessedRecord, error)
	ListDonationsBetween(ctx context.Context, from, to time.Time) ([]ledger.ProcessedRecord, error)
	CountProcessed(ctx context.Context) (int64, error)
}

// VitalityStore persists and restores the machine snapshot.
type VitalityStore interface {
	SaveVitality(ctx context.Context, snap VitalitySnapshot) error
	LoadVitality(ctx context.Context) (*VitalitySnapshot, error)
}

// Store aggregates access to processed signatures and the vitality snapshot.
// It implements ledger.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// MarkProcessed durably records a processed signature. The returned bool is
// true only for the call that actually inserted the row.
func (s *Store) MarkProcessed(ctx context.Context, rec ledger.ProcessedRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tag, execErr := pool.Exec(ctx, markProcessedSQL,
		rec.Signature,
		rec.Amount.String(),
		rec.Credit,
		rec.Counterparty,
		rec.ObservedAt,
		rec.CreditedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("mark processed: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// HasProcessed reports whether a signature has been recorded.
func (s *Store) HasProcessed(ctx context.Context, signature string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var exists bool
	if scanErr := pool.QueryRow(ctx, hasProcessedSQL, signature).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("has processed: %w", scanErr)
	}
	return exists, nil
}

// ListRecentDonations lists credited records, newest first.
func (s *Store) ListRecentDonations(ctx context.Context, limit int) ([]ledger.ProcessedRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDonationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent donations: %w", queryErr)
	}
	defer rows.Close()

	return collectDonations(rows, limit)
}

// ListDonationsBetween lists credited records within a time window.
func (s *Store) ListDonationsBetween(ctx context.Context, from, to time.Time) ([]ledger.ProcessedRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDonationsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list donations between: %w", queryErr)
	}
	defer rows.Close()

	return collectDonations(rows, 0)
}

// CountProcessed counts all processed signatures, dust included.
func (s *Store) CountProcessed(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countProcessedSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count processed: %w", scanErr)
	}
	return count, nil
}

// SaveVitality upserts the single snapshot row.
func (s *Store) SaveVitality(ctx context.Context, snap VitalitySnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertVitalitySQL, snap.HP, snap.Phase, snap.UpdatedAt); execErr != nil {
		return fmt.Errorf("save vitality: %w", execErr)
	}
	return nil
}

// LoadVitality returns the stored snapshot, or nil when none exists yet.
func (s *Store) LoadVitality(ctx context.Context) (*VitalitySnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var snap VitalitySnapshot
	scanErr := pool.QueryRow(ctx, loadVitalitySQL).Scan(&snap.HP, &snap.Phase, &snap.UpdatedAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load vitality: %w", scanErr)
	}
	return &snap, nil
}

func collectDonations(rows pgx.Rows, capacity int) ([]ledger.ProcessedRecord, error) {
	records := make([]ledger.ProcessedRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanDonation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanDonation(rows pgx.Rows) (ledger.ProcessedRecord, error) {
	var (
		rec       ledger.ProcessedRecord
		amountStr string
	)

	if err := rows.Scan(
		&rec.Signature,
		&amountStr,
		&rec.Credit,
		&rec.Counterparty,
		&rec.ObservedAt,
		&rec.CreditedAt,
	); err != nil {
		return ledger.ProcessedRecord{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return ledger.ProcessedRecord{}, fmt.Errorf("parse amount: %w", err)
	}
	rec.Amount = amount

	return rec, nil
}

var _ ledger.Store = (*Store)(nil)
