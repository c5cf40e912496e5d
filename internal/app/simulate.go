package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"wishlist-pricewatch/internal/alerting"
	"wishlist-pricewatch/internal/pricing"
	"wishlist-pricewatch/internal/service"
	"wishlist-pricewatch/internal/storage"
)

// Simulate feeds a price sequence through the real decision flow backed by
// an in-memory store and prints every decision. With Notify set, alerts go
// out through the configured channels.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Prices) == 0 {
		return errors.New("at least one price is required")
	}

	cfg := *a.Config
	cfg.Alerting.Enabled = opts.Notify
	cfg.Scheduler.AdvisoryLockKey = 0

	var notifier alerting.Notifier
	if opts.Notify {
		var closeNotifier func()
		notifier, closeNotifier = a.newNotifier()
		defer closeNotifier()
		if notifier == nil {
			return errors.New("--notify requires at least one enabled alert channel")
		}
	}

	store := storage.NewMemoryStore()
	item := storage.Item{ID: opts.ItemID, Name: opts.Name}
	if item.ID == "" {
		item.ID = "simulated"
	}

	svc := service.New(&cfg, nil, nil, store, store, store, notifier, nil, a.Logger)

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Step\tRaw\tPrice\tLowest\tDrop%\tReasons")
	for i, raw := range opts.Prices {
		result, err := svc.ProcessPrice(ctx, item, raw)
		var parseErr *pricing.ParseError
		if errors.As(err, &parseErr) {
			fmt.Fprintf(writer, "%d\t%s\t-\t-\t-\tskipped: %v\n", i+1, raw, parseErr.Err)
			continue
		}
		if err != nil {
			writer.Flush()
			return err
		}

		drop := "-"
		if result.Decision.DropPct.Valid {
			drop = result.Decision.DropPct.Decimal.StringFixed(2)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			raw,
			result.Observation.Price.StringFixed(2),
			result.Observation.LowestPrice.StringFixed(2),
			drop,
			result.Decision.Reasons,
		)
		if result.DeliveryErr != nil {
			a.Logger.Error().Err(result.DeliveryErr).Int("step", i+1).Msg("simulated alert delivery failed")
		}
	}
	return writer.Flush()
}
