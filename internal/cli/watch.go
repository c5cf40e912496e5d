package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	watchAddName      string
	watchAddByName    bool
	watchRemoveByName bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the watch-list",
}

var watchAddCmd = &cobra.Command{
	Use:   "add ITEM_ID | --by-name NAME...",
	Short: "Add an item to the watch-list",
	Args:  watchTargetArgs(&watchAddByName),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchAddByName {
			return getApp().WatchAddByName(cmd.Context(), strings.Join(args, " "))
		}
		return getApp().WatchAdd(cmd.Context(), args[0], watchAddName)
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:     "remove ITEM_ID | --by-name NAME...",
	Aliases: []string{"rm"},
	Short:   "Remove an item from the watch-list",
	Args:    watchTargetArgs(&watchRemoveByName),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchRemoveByName {
			return getApp().WatchRemoveByName(cmd.Context(), strings.Join(args, " "))
		}
		return getApp().WatchRemove(cmd.Context(), args[0])
	},
}

var watchListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List watched items with their latest prices",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WatchList(cmd.Context())
	},
}

// watchTargetArgs accepts a single id, or a name of any number of words when
// the by-name flag is set.
func watchTargetArgs(byName *bool) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if *byName {
			if len(args) == 0 {
				return fmt.Errorf("--by-name needs a name")
			}
			return nil
		}
		return cobra.ExactArgs(1)(cmd, args)
	}
}

func init() {
	watchAddCmd.Flags().StringVar(&watchAddName, "name", "", "Display name (looked up from the store when empty)")
	watchAddCmd.Flags().BoolVar(&watchAddByName, "by-name", false, "Treat the arguments as an app name and search the store for it")
	watchAddCmd.MarkFlagsMutuallyExclusive("name", "by-name")
	watchRemoveCmd.Flags().BoolVar(&watchRemoveByName, "by-name", false, "Treat the arguments as the name of a watched item")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchListCmd)
}
