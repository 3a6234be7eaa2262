package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"octowatcher/internal/ledger"
)

// Export renders donation history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	donations, err := store.ListDonationsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(donations) == 0 {
		a.Logger.Info().Msg("no donations found for export window")
		return nil
	}

	downsampled := downsampleDonations(donations, opts.MaxPoints)
	a.Logger.Info().Int("total", len(donations)).Int("exported", len(downsampled)).Msg("exporting donations")

	if opts.CSVPath != "" {
		if err := writeDonationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDonationsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleDonations(donations []ledger.ProcessedRecord, max int) []ledger.ProcessedRecord {
	if max <= 0 || len(donations) <= max {
		return donations
	}

	result := make([]ledger.ProcessedRecord, 0, max)
	step := float64(len(donations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(donations) {
			idx = len(donations) - 1
		}
		result = append(result, donations[idx])
	}
	return result
}

func writeDonationsCSV(path string, donations []ledger.ProcessedRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "signature", "amount_sol", "hp_added", "counterparty", "credited_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range donations {
		record := []string{
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Signature,
			rec.Amount.String(),
			strconv.FormatInt(rec.Credit, 10),
			rec.Counterparty,
			rec.CreditedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeDonationsPNG(path string, donations []ledger.ProcessedRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(donations))
	amounts := make([]float64, len(donations))
	cumulative := make([]float64, len(donations))

	var runningHP float64
	for i, rec := range donations {
		x[i] = rec.ObservedAt
		amounts[i] = rec.Amount.InexactFloat64()
		runningHP += float64(rec.Credit)
		cumulative[i] = runningHP
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Donation (SOL)",
		},
		YAxisSecondary: chart.YAxis{
			Name: "Cumulative HP",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Donation SOL",
				XValues: x,
				YValues: amounts,
			},
			chart.TimeSeries{
				Name:    "Cumulative HP",
				XValues: x,
				YValues: cumulative,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
