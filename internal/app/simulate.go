package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"octowatcher/internal/ledger"
	"octowatcher/internal/monitor"
	"octowatcher/internal/notify"
	"octowatcher/internal/vitality"
)

// Simulate pushes synthetic donations through the ledger, vitality machine,
// and configured notification sinks without touching the chain or the
// database. Useful for verifying the notifier wiring and the exchange rule.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.AmountSOL <= 0 {
		return errors.New("--amount must be greater than zero")
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}

	notifier := a.newNotifier()
	machine := a.newMachine()
	machine.SetPhaseHook(func(oldPhase, newPhase vitality.Phase, hp int64) {
		_ = notifier.PhaseChanged(ctx, notify.PhaseChange{
			From: oldPhase.String(),
			To:   newPhase.String(),
			HP:   hp,
		})
	})

	led := ledger.New(ledger.NewMemStore(), machine, a.minimumSOL(), a.Logger)
	led.SetDonationHook(func(event ledger.DonationEvent) {
		_ = notifier.DonationAccepted(ctx, event)
	})

	amount := decimal.NewFromFloat(opts.AmountSOL)
	for i := 0; i < opts.Count; i++ {
		transfer := ledger.IncomingTransfer{
			Signature:    "sim-" + uuid.NewString(),
			Amount:       amount,
			Counterparty: monitor.UnknownCounterparty,
			ObservedAt:   time.Now().UTC(),
		}

		result, err := led.Submit(ctx, transfer)
		if err != nil {
			return err
		}
		fmt.Printf("simulated donation %d: %s SOL -> %d HP\n", i+1, amount.String(), result.Credit)
	}

	snap := machine.Snapshot()
	fmt.Printf("machine after simulation: %d/%d HP (%s)\n", snap.HP, snap.MaxHP, snap.Phase)
	return nil
}
