package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the stored vitality snapshot and recent donations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	snap, err := store.LoadVitality(ctx)
	if err != nil {
		return err
	}
	if snap != nil {
		fmt.Fprintf(os.Stdout, "vitality: %d HP (%s), updated %s\n\n",
			snap.HP, snap.Phase, snap.UpdatedAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(os.Stdout, "vitality: no snapshot stored")
	}

	donations, err := store.ListRecentDonations(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(donations) == 0 {
		fmt.Fprintln(os.Stdout, "no donations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tAmount (SOL)\tHP\tFrom\tSignature")

	for _, rec := range donations {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\n",
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Amount.String(),
			rec.Credit,
			truncate(rec.Counterparty, 16),
			truncate(rec.Signature, 24),
		)
	}

	writer.Flush()
	return nil
}

func truncate(v string, n int) string {
	v = strings.ReplaceAll(v, "\n", " ")
	if len(v) <= n {
		return v
	}
	return v[:n]
}
