package cli

import (
	"github.com/spf13/cobra"

	"wishlist-pricewatch/internal/app"
)

var (
	checkItem     string
	checkNoNotify bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the watch-list once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{
			ItemID:   checkItem,
			NoNotify: checkNoNotify,
		})
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkItem, "item", "", "Check only this item id")
	checkCmd.Flags().BoolVar(&checkNoNotify, "no-notify", false, "Record prices without sending alerts")
}
