// Package ledger implements the at-most-once credit gate between observed
// wallet transfers and the vitality resource. Poll and push can both observe
// the same transfer, and a restarted process replays recent history; the
// signature-keyed processed record is what makes that redundancy safe.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrUnavailable marks a store failure during Submit. The caller must retry
// the same transfer later; skipping it would lose a donation permanently.
var ErrUnavailable = errors.New("ledger: store unavailable")

// IncomingTransfer is a normalized incoming wallet transfer. Signature is
// globally unique per underlying transaction and is the sole dedup key.
type IncomingTransfer struct {
	Signature    string
	Amount       decimal.Decimal // SOL, > 0
	Counterparty string
	ObservedAt   time.Time
}

// ProcessedRecord is the append-only durable marker written exactly once per
// accepted transfer. Its presence is the single source of truth for
// "already credited".
type ProcessedRecord struct {
	Signature    string
	Amount       decimal.Decimal
	Credit       int64
	Counterparty string
	ObservedAt   time.Time
	CreditedAt   time.Time
}

// Store persists processed-signature records. Writes must be durable before
// MarkProcessed returns.
type Store interface {
	// HasProcessed reports whether the signature has been recorded.
	HasProcessed(ctx context.Context, signature string) (bool, error)
	// MarkProcessed records the signature and reports whether it was newly
	// inserted. The presence check and the write are one atomic operation;
	// two concurrent calls for the same signature see exactly one true.
	MarkProcessed(ctx context.Context, rec ProcessedRecord) (bool, error)
}

// Creditor receives accepted credits. Implemented by the vitality machine.
type Creditor interface {
	Credit(amount int64)
}

// Status classifies a Submit outcome.
type Status int

const (
	// Credited means the transfer was newly recorded. Credit may still be
	// zero for dust below the minimum.
	Credited Status = iota
	// AlreadyProcessed means the signature was seen before; no side effects.
	AlreadyProcessed
)

// CreditResult reports what Submit did.
type CreditResult struct {
	Status Status
	Credit int64
}

// DonationEvent is emitted once per newly credited transfer.
type DonationEvent struct {
	Signature    string
	Amount       decimal.Decimal
	Credit       int64
	Counterparty string
	ObservedAt   time.Time
}

// DonationHook observes accepted donations. Fire-and-forget.
type DonationHook func(DonationEvent)

// Ledger converts qualifying transfers into vitality credits exactly once.
type Ledger struct {
	store    Store
	creditor Creditor
	minimum  decimal.Decimal
	hook     DonationHook
	logger   zerolog.Logger
}

// New constructs a Ledger. minimum is both the smallest qualifying donation
// and the SOL price of one HP.
func New(store Store, creditor Creditor, minimum decimal.Decimal, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:    store,
		creditor: creditor,
		minimum:  minimum,
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

// SetDonationHook registers the observer for accepted donations.
func (l *Ledger) SetDonationHook(hook DonationHook) {
	l.hook = hook
}

// CreditFor converts a SOL amount into HP: floor(amount / minimum), zero for
// amounts below the minimum.
func (l *Ledger) CreditFor(amount decimal.Decimal) int64 {
	if amount.LessThan(l.minimum) {
		return 0
	}
	return amount.Div(l.minimum).Floor().IntPart()
}

// Submit runs one transfer through the credit gate.
//
// The durable write happens before the in-memory credit: a crash between the
// two loses the credit but can never double-apply it on replay. Dust below
// the minimum is recorded at zero credit so it is not re-evaluated forever.
func (l *Ledger) Submit(ctx context.Context, transfer IncomingTransfer) (CreditResult, error) {
	if !transfer.Amount.IsPositive() {
		return CreditResult{}, fmt.Errorf("ledger: non-positive transfer amount %s for %s",
			transfer.Amount, transfer.Signature)
	}

	credit := l.CreditFor(transfer.Amount)
	rec := ProcessedRecord{
		Signature:    transfer.Signature,
		Amount:       transfer.Amount,
		Credit:       credit,
		Counterparty: transfer.Counterparty,
		ObservedAt:   transfer.ObservedAt,
		CreditedAt:   time.Now().UTC(),
	}

	inserted, err := l.store.MarkProcessed(ctx, rec)
	if err != nil {
		return CreditResult{}, fmt.Errorf("%w: mark %s: %v", ErrUnavailable, transfer.Signature, err)
	}
	if !inserted {
		l.logger.Debug().Str("signature", transfer.Signature).Msg("transfer already processed")
		return CreditResult{Status: AlreadyProcessed}, nil
	}

	if credit == 0 {
		l.logger.Info().Str("signature", transfer.Signature).
			Str("amount_sol", transfer.Amount.String()).
			Msg("dust transfer recorded without credit")
		return CreditResult{Status: Credited}, nil
	}

	l.creditor.Credit(credit)

	l.logger.Info().Str("signature", transfer.Signature).
		Str("amount_sol", transfer.Amount.String()).
		Int64("hp_added", credit).
		Str("from", transfer.Counterparty).
		Msg("donation credited")

	if l.hook != nil {
		l.hook(DonationEvent{
			Signature:    transfer.Signature,
			Amount:       transfer.Amount,
			Credit:       credit,
			Counterparty: transfer.Counterparty,
			ObservedAt:   transfer.ObservedAt,
		})
	}

	return CreditResult{Status: Credited, Credit: credit}, nil
}
