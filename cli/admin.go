package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sportwallet/engine/api"
	"github.com/sportwallet/engine/ledger"
)

// Admin commands act on the local database directly; the HTTP admin
// routes are the remote equivalent.

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminResetCmd)
	adminCmd.AddCommand(adminGetDayCmd)
	adminCmd.AddCommand(adminSetDayCmd)
	adminCmd.AddCommand(adminTxCmd)
	adminCmd.AddCommand(adminHashCmd)

	adminResetCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
	adminSetDayCmd.Flags().String("flat", "0", "Flat earned cents (clamped to 0..400)")
	adminSetDayCmd.Flags().String("streak", "0", "Streak days (>= 0)")
	adminSetDayCmd.Flags().String("bonus-percent", "0", "Bonus percent (clamped to 0..50)")
	adminSetDayCmd.Flags().String("bonus-granted", "0", "Bonus granted cents (>= 0)")
	adminTxCmd.Flags().String("day", "", "Attribution day (default: today)")
	adminTxCmd.Flags().String("label", "", `Label (default: "Admin")`)
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Privileged overrides",
	Long: `Privileged overrides that bypass the earning rules: reset everything,
rewrite a day record, insert manual credits or debits. Numeric inputs
that cannot be parsed count as 0.`,
}

// ─── admin reset ────────────────────────────────────────────────────────────

var adminResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every transaction, day record, wish item and purchase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Fprint(cmd.OutOrStdout(), "This deletes ALL data. Type 'reset' to confirm: ")
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if strings.TrimSpace(line) != "reset" {
				return fmt.Errorf("aborted")
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.wallet.Admin().ResetDatabase(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

// ─── admin get-day ──────────────────────────────────────────────────────────

var adminGetDayCmd = &cobra.Command{
	Use:   "get-day YYYY-MM-DD",
	Short: "Print a day record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := ledger.ParseDayKey(args[0])
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.wallet.Admin().GetDay(cmd.Context(), day)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "No record for %s.\n", day)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s flat=%d streak=%d bonus_percent=%d bonus_granted=%d\n",
			rec.Day, rec.FlatEarnedCents, rec.StreakDays, rec.BonusPercent, rec.BonusGrantedCents)
		return nil
	},
}

// ─── admin set-day ──────────────────────────────────────────────────────────

var adminSetDayCmd = &cobra.Command{
	Use:   "set-day YYYY-MM-DD",
	Short: "Overwrite a day record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := ledger.ParseDayKey(args[0])
		if err != nil {
			return err
		}
		flag := func(name string) int64 {
			v, _ := cmd.Flags().GetString(name)
			return api.ParseLenientInt(v)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.wallet.Admin().UpsertDay(cmd.Context(), day,
			flag("flat"), int(flag("streak")), int(flag("bonus-percent")), flag("bonus-granted"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s flat=%d streak=%d bonus_percent=%d bonus_granted=%d\n",
			rec.Day, rec.FlatEarnedCents, rec.StreakDays, rec.BonusPercent, rec.BonusGrantedCents)
		return nil
	},
}

// ─── admin tx ───────────────────────────────────────────────────────────────

var adminTxCmd = &cobra.Command{
	Use:   "tx AMOUNT_CENTS",
	Short: "Insert a manual credit (positive) or debit (negative)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount := api.ParseLenientInt(args[0])
		label, _ := cmd.Flags().GetString("label")
		dayFlag, _ := cmd.Flags().GetString("day")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		day := a.wallet.Today()
		if dayFlag != "" {
			if day, err = ledger.ParseDayKey(dayFlag); err != nil {
				return err
			}
		}

		tx, err := a.wallet.Admin().InsertTransaction(cmd.Context(), day, amount, label)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "#%d %s %s on %s\n", tx.ID, tx.Label, ledger.FormatCents(tx.AmountCents), tx.Day)
		return nil
	},
}

// ─── admin hash-secret ──────────────────────────────────────────────────────

var adminHashCmd = &cobra.Command{
	Use:   "hash-secret SECRET",
	Short: "Print the bcrypt hash to use as admin.password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := api.HashAdminSecret(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
