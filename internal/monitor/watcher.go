package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"octowatcher/internal/ledger"
	"octowatcher/internal/solana"
)

// TransactionSource is the provider capability the watcher needs.
type TransactionSource interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// Submitter is the ledger surface the watcher feeds.
type Submitter interface {
	Submit(ctx context.Context, transfer ledger.IncomingTransfer) (ledger.CreditResult, error)
}

// BalanceHook observes the wallet balance on every sync. Best-effort.
type BalanceHook func(sol decimal.Decimal)

// Options parameterise the watcher.
type Options struct {
	Address        string
	SignatureLimit int
}

// Watcher runs the fetch-and-diff routine both triggers converge on: list
// recent signatures, diff against the in-memory high-water mark, fetch and
// normalize the new ones oldest-first, and submit them to the ledger. The
// mark is a latency shortcut only; at-most-once crediting is the ledger's
// job, so replaying the same signatures is always safe.
type Watcher struct {
	source    TransactionSource
	submitter Submitter
	opts      Options
	onBalance BalanceHook
	logger    zerolog.Logger

	// syncMu serializes overlapping poll and push triggers.
	syncMu  sync.Mutex
	lastSig string
}

// New constructs a Watcher.
func New(source TransactionSource, submitter Submitter, opts Options, logger zerolog.Logger) *Watcher {
	if opts.SignatureLimit <= 0 {
		opts.SignatureLimit = 20
	}
	return &Watcher{
		source:    source,
		submitter: submitter,
		opts:      opts,
		logger:    logger.With().Str("component", "watcher").Logger(),
	}
}

// SetBalanceHook registers the balance observer.
func (w *Watcher) SetBalanceHook(hook BalanceHook) {
	w.onBalance = hook
}

// Sync performs one fetch-and-diff pass. Returning an error means the pass
// should be retried on the next trigger; the high-water mark only advances
// past transfers that were handled, so nothing is skipped.
func (w *Watcher) Sync(ctx context.Context) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.reportBalance(ctx)

	sigs, err := w.source.GetSignaturesForAddress(ctx, w.opts.Address, w.opts.SignatureLimit)
	if err != nil {
		return fmt.Errorf("list signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil
	}

	if w.lastSig == "" {
		// First sync: seed the mark without replaying pre-start history.
		w.lastSig = sigs[0].Signature
		w.logger.Info().Str("signature", w.lastSig).Msg("high-water mark seeded")
		return nil
	}

	fresh := make([]solana.SignatureInfo, 0, len(sigs))
	for _, sig := range sigs {
		if sig.Signature == w.lastSig {
			break
		}
		fresh = append(fresh, sig)
	}
	if len(fresh) == 0 {
		return nil
	}

	w.logger.Info().Int("count", len(fresh)).Msg("new transactions detected")

	// Oldest first, advancing the mark per handled signature so a mid-batch
	// failure retries only the remainder.
	for i := len(fresh) - 1; i >= 0; i-- {
		if err := w.handle(ctx, fresh[i]); err != nil {
			return err
		}
		w.lastSig = fresh[i].Signature
	}
	return nil
}

func (w *Watcher) handle(ctx context.Context, sig solana.SignatureInfo) error {
	if len(sig.Err) > 0 && string(sig.Err) != "null" {
		w.logger.Debug().Str("signature", sig.Signature).Msg("failed transaction skipped")
		return nil
	}

	tx, err := w.source.GetTransaction(ctx, sig.Signature)
	if err != nil {
		return fmt.Errorf("fetch transaction %s: %w", sig.Signature, err)
	}
	if tx == nil {
		w.logger.Warn().Str("signature", sig.Signature).Msg("transaction not available; skipped")
		return nil
	}

	transfer, ok := Normalize(tx, w.opts.Address)
	if !ok {
		w.logger.Debug().Str("signature", sig.Signature).Msg("not an incoming transfer")
		return nil
	}

	result, err := w.submitter.Submit(ctx, transfer)
	if err != nil {
		return fmt.Errorf("submit %s: %w", transfer.Signature, err)
	}
	if result.Status == ledger.AlreadyProcessed {
		w.logger.Debug().Str("signature", transfer.Signature).Msg("duplicate observation")
	}
	return nil
}

func (w *Watcher) reportBalance(ctx context.Context) {
	if w.onBalance == nil {
		return
	}
	balance, err := w.source.GetBalance(ctx, w.opts.Address)
	if err != nil {
		w.logger.Debug().Err(err).Msg("balance fetch failed")
		return
	}
	w.onBalance(balance)
}
