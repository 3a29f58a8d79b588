package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/wallet"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(dayCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Number of transactions")
}

// ─── status ─────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the balance and today's earnings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		state, err := a.wallet.WalletState(cmd.Context())
		if err != nil {
			return err
		}
		printState(cmd.OutOrStdout(), state)
		return nil
	},
}

func printState(w io.Writer, s wallet.WalletState) {
	fmt.Fprintf(w, "Balance:  %s\n", ledger.FormatCents(s.BalanceCents))
	fmt.Fprintf(w, "Today:    %s\n", s.Day)
	fmt.Fprintf(w, "Earned:   %s / %s\n", ledger.FormatCents(s.DayFlatCents), ledger.FormatCents(ledger.DailyFlatCapCents))
	fmt.Fprintf(w, "Streak:   %d day(s), bonus %d%%", s.StreakDays, s.BonusPercent)
	if s.BonusGrantedCents > 0 {
		fmt.Fprintf(w, " (granted %s)", ledger.FormatCents(s.BonusGrantedCents))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rest:     %d rest day(s) left this week\n", s.RestDaysRemaining)
}

// ─── stop ───────────────────────────────────────────────────────────────────

var stopCmd = &cobra.Command{
	Use:   "stop ACTIVITY [DURATION]",
	Short: "Settle a finished activity",
	Long: `Settle a finished activity against today's record.
ACTIVITY is bike, walk, other or rest_day. DURATION is a Go duration
(45m, 1h10m) or a number of minutes; rest_day needs none.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		activity, elapsed, err := parseActivityArgs(args)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		s, err := a.wallet.ApplyActivityStop(cmd.Context(), activity, elapsed)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case s.RawCents <= 0:
			fmt.Fprintln(out, "Nothing earned.")
		case s.CreditedCents == 0:
			fmt.Fprintf(out, "Daily cap already reached, %s not credited.\n", ledger.FormatCents(s.RawCents))
		default:
			fmt.Fprintf(out, "%s: +%s", activity.Label(), ledger.FormatCents(s.CreditedCents))
			if s.CreditedCents < s.RawCents {
				fmt.Fprintf(out, " (capped from %s)", ledger.FormatCents(s.RawCents))
			}
			fmt.Fprintln(out)
		}
		if s.BonusCents > 0 {
			fmt.Fprintf(out, "%s: +%s\n", wallet.BonusLabel, ledger.FormatCents(s.BonusCents))
		}
		return nil
	},
}

// ─── project ────────────────────────────────────────────────────────────────

var projectCmd = &cobra.Command{
	Use:   "project ACTIVITY [DURATION]",
	Short: "Show what stopping the activity now would earn, without saving",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		activity, elapsed, err := parseActivityArgs(args)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.wallet.Project(cmd.Context(), activity, elapsed)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if p.RestDayRefused {
			fmt.Fprintln(out, "No rest day left this week.")
		}
		fmt.Fprintf(out, "Earned:    %s (credited %s)\n", ledger.FormatCents(p.RawCents), ledger.FormatCents(p.CreditedCents))
		fmt.Fprintf(out, "Today:     %s / %s\n", ledger.FormatCents(p.ProjectedFlatCents), ledger.FormatCents(ledger.DailyFlatCapCents))
		if p.BonusTriggered {
			fmt.Fprintf(out, "Bonus:     +%s\n", ledger.FormatCents(p.BonusCents))
		}
		fmt.Fprintf(out, "Balance:   %s\n", ledger.FormatCents(p.ProjectedBalanceCents))
		return nil
	},
}

func parseActivityArgs(args []string) (wallet.Activity, time.Duration, error) {
	activity, err := wallet.ParseActivity(args[0])
	if err != nil {
		return "", 0, err
	}
	if len(args) < 2 {
		if activity != wallet.ActivityRestDay {
			return "", 0, fmt.Errorf("%s needs a duration", activity)
		}
		return activity, 0, nil
	}
	elapsed, err := parseElapsed(args[1])
	if err != nil {
		return "", 0, err
	}
	return activity, elapsed, nil
}

// parseElapsed accepts Go durations and plain minutes.
func parseElapsed(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if minutes, err := strconv.ParseFloat(s, 64); err == nil {
		if ns := minutes * float64(time.Minute); ns < math.MaxInt64 {
			return time.Duration(ns), nil
		}
		return time.Duration(math.MaxInt64), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: use 45m, 1h10m or minutes", s)
	}
	return d, nil
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the newest transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		txs, err := a.wallet.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DAY\tTIME\tLABEL\tAMOUNT")
		for _, tx := range txs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				tx.Day, tx.Timestamp.In(a.clock.Location()).Format("15:04"), tx.Label, ledger.FormatCents(tx.AmountCents))
		}
		return tw.Flush()
	},
}

// ─── calendar ───────────────────────────────────────────────────────────────

var calendarCmd = &cobra.Command{
	Use:   "calendar [YYYY-MM]",
	Short: "Summarize a month (default: current month)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		month := a.clock.Now().In(a.clock.Location())
		if len(args) == 1 {
			month, err = time.Parse("2006-01", args[0])
			if err != nil {
				return fmt.Errorf("invalid month %q: want YYYY-MM", args[0])
			}
		}

		summary, err := a.wallet.MonthSummary(cmd.Context(), month.Year(), month.Month())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %d: %s over %d active day(s), %d capped\n",
			summary.Month, summary.Year, ledger.FormatCents(summary.TotalCents), summary.ActiveDays, summary.CappedDays)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DAY\tEARNED\tMAIN\tSTREAK")
		for _, d := range summary.Days {
			if d.EarnedCents == 0 {
				continue
			}
			top := "-"
			if act, ok := d.Dominant(); ok {
				top = act.Label()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.Day, ledger.FormatCents(d.EarnedCents), top, d.StreakDays)
		}
		return tw.Flush()
	},
}

// ─── day ────────────────────────────────────────────────────────────────────

var dayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "Show one day's earnings by activity (default: today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		day := a.wallet.Today()
		if len(args) == 1 {
			if day, err = ledger.ParseDayKey(args[0]); err != nil {
				return err
			}
		}

		details, err := a.wallet.DayDetails(cmd.Context(), day)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", details.Day, ledger.FormatCents(details.TotalCents))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, l := range details.Lines {
			minutes := ""
			if l.EstimatedMinutes != nil {
				minutes = fmt.Sprintf("~%d min", *l.EstimatedMinutes)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Label, ledger.FormatCents(l.EarnedCents), minutes)
		}
		return tw.Flush()
	},
}
