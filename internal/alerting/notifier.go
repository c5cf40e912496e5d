package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wishlist-pricewatch/internal/chart"
	"wishlist-pricewatch/internal/pricing"
)

// SeriesLoader lazily loads the item's price history for chart rendering.
type SeriesLoader func(ctx context.Context) ([]chart.Point, error)

// Alert carries one item's triggered reasons and the prices behind them.
type Alert struct {
	ItemID         string
	ItemName       string
	Price          decimal.Decimal
	PreviousPrice  decimal.NullDecimal
	LowestPrice    decimal.Decimal
	PreviousLowest decimal.NullDecimal
	DropPct        decimal.NullDecimal
	ThresholdPct   decimal.Decimal
	Reasons        pricing.Reasons
	ObservedAt     time.Time
	History        SeriesLoader
}

// DisplayName falls back to the item id when no name is known.
func (a Alert) DisplayName() string {
	if a.ItemName != "" {
		return a.ItemName
	}
	return a.ItemID
}

// StoreURL links to the item's store page.
func (a Alert) StoreURL() string {
	return fmt.Sprintf("https://store.steampowered.com/app/%s/", a.ItemID)
}

// Notifier delivers an alert over one channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Channel names a notifier.
type Channel struct {
	Name     string
	Notifier Notifier
}

// MultiNotifier delivers to every channel and reports all failures together.
type MultiNotifier struct {
	channels []Channel
}

// NewMultiNotifier builds a fan-out notifier. Nil notifiers are skipped.
func NewMultiNotifier(channels ...Channel) *MultiNotifier {
	kept := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Notifier != nil {
			kept = append(kept, ch)
		}
	}
	return &MultiNotifier{channels: kept}
}

// Channels returns the channel names in delivery order.
func (m *MultiNotifier) Channels() []string {
	names := make([]string, len(m.channels))
	for i, ch := range m.channels {
		names[i] = ch.Name
	}
	return names
}

// Len reports how many channels are configured.
func (m *MultiNotifier) Len() int {
	return len(m.channels)
}

// Notify delivers to each channel once. A failing channel does not stop the others.
func (m *MultiNotifier) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notifier.Notify(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}

func headline(alert Alert) string {
	switch {
	case alert.Reasons.Has(pricing.SignificantDrop) && alert.Reasons.Has(pricing.NewAllTimeLow):
		return "Price Drop Alert! New all-time low"
	case alert.Reasons.Has(pricing.NewAllTimeLow):
		return "New All-Time Low!"
	default:
		return "Price Drop Alert!"
	}
}

func reasonLines(alert Alert) []string {
	lines := make([]string, 0, 2)
	if alert.Reasons.Has(pricing.SignificantDrop) {
		line := fmt.Sprintf("Dropped %s%% (threshold %s%%)", alert.DropPct.Decimal.StringFixed(2), alert.ThresholdPct.String())
		if alert.PreviousPrice.Valid {
			line += fmt.Sprintf(", was %s", alert.PreviousPrice.Decimal.StringFixed(2))
		}
		lines = append(lines, line)
	}
	if alert.Reasons.Has(pricing.NewAllTimeLow) {
		if alert.PreviousLowest.Valid {
			lines = append(lines, fmt.Sprintf("New all-time low, previous lowest %s", alert.PreviousLowest.Decimal.StringFixed(2)))
		} else {
			lines = append(lines, "First recorded price")
		}
	}
	return lines
}

func renderMessage(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s]\n", headline(alert)))
	builder.WriteString(fmt.Sprintf("%s is now %s\n", alert.DisplayName(), alert.Price.StringFixed(2)))
	for _, line := range reasonLines(alert) {
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	if !alert.ObservedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Checked: %s UTC\n", alert.ObservedAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(alert.StoreURL())
	return builder.String()
}

var _ Notifier = (*MultiNotifier)(nil)
