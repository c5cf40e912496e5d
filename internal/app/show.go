package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"wishlist-pricewatch/internal/storage"
)

// Show prints recent observations for one item, the watch-list with latest
// prices, or the alert audit trail.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	switch {
	case opts.Alerts:
		return a.showAlerts(ctx, store, opts.Limit)
	case opts.ItemID != "":
		return a.showObservations(ctx, store, opts.ItemID, opts.Limit)
	default:
		return a.showWatchlist(ctx, store, store)
	}
}

func (a *App) showObservations(ctx context.Context, history storage.HistoryStore, itemID string, limit int) error {
	observations, err := history.ListRecentObservations(ctx, itemID, limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(a.Out, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tLowest")
	for _, obs := range observations {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.Price.StringFixed(2),
			obs.LowestPrice.StringFixed(2),
		)
	}
	return writer.Flush()
}

func (a *App) showWatchlist(ctx context.Context, watchlist storage.WatchlistStore, history storage.HistoryStore) error {
	items, err := watchlist.ListItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.Out, "watch-list is empty")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Item\tName\tPrice\tLowest\tChecked (UTC)")
	for _, item := range items {
		latest, found, err := history.LatestObservation(ctx, item.ID)
		if err != nil {
			return err
		}
		price, lowest, checked := "-", "-", "never"
		if found {
			price = latest.Price.StringFixed(2)
			lowest = latest.LowestPrice.StringFixed(2)
			checked = latest.ObservedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Name, price, lowest, checked)
	}
	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, alerts storage.AlertStore, limit int) error {
	records, err := alerts.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tItem\tPrice\tReasons\tChannels\tDelivered\tError")
	for _, record := range records {
		errMsg := ""
		if record.Error != nil {
			errMsg = sanitizeInline(*record.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			record.ObservedAt.UTC().Format(time.RFC3339),
			record.ItemID,
			record.Price.StringFixed(2),
			strings.Join(record.Reasons, ","),
			strings.Join(record.Channels, ","),
			record.Delivered,
			errMsg,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
