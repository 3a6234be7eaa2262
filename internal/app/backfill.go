package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"octowatcher/internal/ledger"
	"octowatcher/internal/monitor"
	"octowatcher/internal/storage"
	"octowatcher/internal/vitality"
)

// Backfill walks older signature history through the same normalize/submit
// path as the live watcher. Signature-keyed idempotence makes re-running it
// over already credited history a no-op, so the command is safe to repeat.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	client := a.newClient()
	address := a.Config.Wallet.Address

	sigs, err := client.GetSignaturesForAddress(ctx, address, opts.Limit)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		a.Logger.Info().Msg("no signatures found for backfill")
		return nil
	}

	var led *ledger.Ledger
	var machine *vitality.Machine
	var store *storage.Store

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be credited")
	} else {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}

		machine = a.newMachine()
		snap, loadErr := store.LoadVitality(ctx)
		if loadErr != nil {
			return loadErr
		}
		if snap != nil {
			machine.Restore(snap.HP)
		}

		led = ledger.New(store, machine, a.minimumSOL(), a.Logger)
	}

	credited := 0
	duplicates := 0
	skipped := 0
	failed := 0

	// Oldest first so partial progress leaves a contiguous record.
	for i := len(sigs) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sig := sigs[i]
		tx, txErr := client.GetTransaction(ctx, sig.Signature)
		if txErr != nil {
			failed++
			a.Logger.Error().Err(txErr).Str("signature", sig.Signature).Msg("backfill fetch failed")
			continue
		}

		transfer, ok := monitor.Normalize(tx, address)
		if !ok {
			skipped++
			continue
		}

		if opts.DryRun {
			fmt.Printf("would submit %s: %s SOL from %s\n",
				transfer.Signature, transfer.Amount.String(), transfer.Counterparty)
			credited++
			continue
		}

		result, subErr := led.Submit(ctx, transfer)
		if subErr != nil {
			failed++
			a.Logger.Error().Err(subErr).Str("signature", sig.Signature).Msg("backfill submit failed")
			continue
		}
		if result.Status == ledger.AlreadyProcessed {
			duplicates++
		} else {
			credited++
		}
	}

	if machine != nil && store != nil {
		snap := machine.Snapshot()
		if saveErr := store.SaveVitality(ctx, storage.VitalitySnapshot{
			HP:        snap.HP,
			Phase:     snap.Phase.String(),
			UpdatedAt: time.Now().UTC(),
		}); saveErr != nil {
			return saveErr
		}
	}

	a.Logger.Info().Int("credited", credited).Int("duplicates", duplicates).
		Int("skipped", skipped).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return errors.New("some transactions failed during backfill; see logs")
	}
	return nil
}
