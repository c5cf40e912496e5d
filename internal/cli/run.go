package cli

import (
	"github.com/spf13/cobra"
)

var (
	runAPIAddr   string
	runNoStartup bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled watch service",
	Long: `Run checks every watch-list item on the configured schedule, records each
price in the history ledger and sends alerts for significant drops and new
all-time lows. When api.listen_addr is set, the read-only API and Prometheus
metrics are served alongside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("api-addr") {
			a.Config.API.ListenAddr = runAPIAddr
		}
		if runNoStartup {
			a.Config.Scheduler.RunOnStart = false
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runAPIAddr, "api-addr", "", "Serve the API on this address (overrides api.listen_addr)")
	runCmd.Flags().BoolVar(&runNoStartup, "skip-initial-check", false, "Wait for the first scheduled time instead of checking immediately")
}
