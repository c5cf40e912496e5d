package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"wishlist-pricewatch/internal/app"
)

var (
	simulateItem   string
	simulateName   string
	simulatePrices string
	simulateNotify bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Feed a price sequence through the alert rules without touching the database",
	Example: `  pricewatch simulate --prices 100,90,60
  pricewatch simulate --item 1245620 --name "ELDEN RING" --prices '$59.99;$41.99' --notify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prices := splitPrices(simulatePrices)
		if len(prices) == 0 {
			return errors.New("--prices must list at least one price")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			ItemID: simulateItem,
			Name:   simulateName,
			Prices: prices,
			Notify: simulateNotify,
		})
	},
}

// splitPrices splits on ';' when present so formatted prices may carry
// grouping commas, and on ',' otherwise.
func splitPrices(raw string) []string {
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(raw, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	simulateCmd.Flags().StringVar(&simulateItem, "item", "", "Item id used in logs and alerts")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "Display name used in alerts")
	simulateCmd.Flags().StringVar(&simulatePrices, "prices", "", "Prices in order, comma or semicolon separated")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Dispatch alerts through the configured channels")
}
