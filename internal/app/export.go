package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	"wishlist-pricewatch/internal/chart"
	"wishlist-pricewatch/internal/service"
	"wishlist-pricewatch/internal/storage"
)

// Export renders one item's history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.ItemID == "" {
		return errors.New("--item is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	item, err := store.GetItem(ctx, opts.ItemID)
	if err != nil {
		return err
	}
	return a.exportHistory(ctx, store, item, opts)
}

func (a *App) exportHistory(ctx context.Context, history storage.HistoryStore, item storage.Item, opts ExportOptions) error {
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	// Zero from means the whole history.
	var from time.Time
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	observations, err := history.ListObservationsBetween(ctx, item.ID, from, to)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Str("item_id", item.ID).Msg("no observations found for export window")
		return nil
	}

	downsampled := chart.Downsample(observations, opts.MaxPoints)
	a.Logger.Info().Str("item_id", item.ID).
		Int("total", len(observations)).
		Int("exported", len(downsampled)).
		Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		name := item.Name
		if name == "" {
			name = item.ID
		}
		if err := writeHistoryPNG(opts.PNGPath, "Price History for "+name, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func writeObservationsCSV(path string, observations []storage.PriceObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"observed_at", "item_id", "price", "lowest_price"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.ItemID,
			obs.Price.String(),
			obs.LowestPrice.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path, title string, observations []storage.PriceObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return chart.RenderHistory(file, title, service.ChartPoints(observations))
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
