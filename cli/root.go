/*
Package cli is the sportwallet command tree.

COMMANDS:
  serve                      Run the HTTP API, stream and day rollover
  status                     Balance and today's state
  stop ACTIVITY DURATION     Settle a finished activity
  project ACTIVITY DURATION  What stopping now would earn
  history                    Newest transactions
  calendar [YYYY-MM]         Month summary
  day [YYYY-MM-DD]           Day details
  wishlist ...               Items, favorite, purchases
  admin ...                  Overrides (local database access)

Every command except serve opens the configured database directly.
*/
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "sportwallet",
	Short: "Earn a virtual currency from physical activity and spend it on your wishlist",
	Long: `sportwallet converts cycling, walking and other exercise into a balance
(400 cents per day at most, plus a streak bonus) and lets you spend it on
wishlist items. Every change is an entry in an append-only ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", `Database path, overrides database.path (":memory:" for a throwaway store)`)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
