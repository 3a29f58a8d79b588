package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/wishlist"
)

func init() {
	rootCmd.AddCommand(wishlistCmd)
	wishlistCmd.AddCommand(wishlistListCmd)
	wishlistCmd.AddCommand(wishlistAddCmd)
	wishlistCmd.AddCommand(wishlistUpdateCmd)
	wishlistCmd.AddCommand(wishlistRemoveCmd)
	wishlistCmd.AddCommand(wishlistFavoriteCmd)
	wishlistCmd.AddCommand(wishlistBuyCmd)
	wishlistCmd.AddCommand(wishlistHistoryCmd)

	for _, c := range []*cobra.Command{wishlistAddCmd, wishlistUpdateCmd} {
		c.Flags().String("image", "", "Image reference (URL or path)")
	}
	wishlistBuyCmd.Flags().Bool("strict", false, "Refuse when the balance is too low or the item was already bought")
}

var wishlistCmd = &cobra.Command{
	Use:     "wishlist",
	Aliases: []string{"wl"},
	Short:   "Manage wish items and purchases",
	Long: `Manage the items you save up for. One item can be the favorite shown
on the home screen. Buying debits the balance and records the purchase.`,
}

// ─── wishlist list ──────────────────────────────────────────────────────────

var wishlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wish items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		items, err := a.wishlist.Items(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTATUS")
		for _, item := range items {
			status := ""
			switch {
			case item.IsPurchased:
				status = "purchased"
			case item.IsFavorite:
				status = "★ favorite"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", item.ID, item.Name, ledger.FormatCents(item.PriceCents), status)
		}
		return tw.Flush()
	},
}

// ─── wishlist add ───────────────────────────────────────────────────────────

var wishlistAddCmd = &cobra.Command{
	Use:   "add NAME PRICE",
	Short: "Add a wish item (PRICE like 12,50 or 12.50)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := ledger.ParseCents(args[1])
		if err != nil {
			return err
		}
		image, _ := cmd.Flags().GetString("image")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		item, err := a.wishlist.AddItem(cmd.Context(), args[0], image, price)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s (%s)\n", item.ID, item.Name, ledger.FormatCents(item.PriceCents))
		return nil
	},
}

// ─── wishlist update ────────────────────────────────────────────────────────

var wishlistUpdateCmd = &cobra.Command{
	Use:   "update ID NAME PRICE",
	Short: "Change an item's name, price and image",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		price, err := ledger.ParseCents(args[2])
		if err != nil {
			return err
		}
		image, _ := cmd.Flags().GetString("image")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		item, err := a.wishlist.UpdateItem(cmd.Context(), id, args[1], image, price)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated #%d %s (%s)\n", item.ID, item.Name, ledger.FormatCents(item.PriceCents))
		return nil
	},
}

// ─── wishlist remove ────────────────────────────────────────────────────────

var wishlistRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Delete a wish item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.wishlist.DeleteItem(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed #%d\n", id)
		return nil
	},
}

// ─── wishlist favorite ──────────────────────────────────────────────────────

var wishlistFavoriteCmd = &cobra.Command{
	Use:   "favorite [ID]",
	Short: "Set the favorite item, or show progress toward it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			if err := a.wishlist.SetFavorite(cmd.Context(), id); err != nil {
				return err
			}
		}

		p, err := a.wishlist.FavoriteProgress(cmd.Context())
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Fprintln(out, "No favorite item.")
			return nil
		}
		fmt.Fprintf(out, "★ %s: %s / %s (%d%%)\n",
			p.Item.Name, ledger.FormatCents(p.BalanceCents), ledger.FormatCents(p.Item.PriceCents), p.Percent)
		if !p.Affordable {
			fmt.Fprintf(out, "  %s to go\n", ledger.FormatCents(p.RemainingCents))
		}
		return nil
	},
}

// ─── wishlist buy ───────────────────────────────────────────────────────────

var wishlistBuyCmd = &cobra.Command{
	Use:   "buy ID",
	Short: "Buy an item with the balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		var opts []wishlist.PurchaseOption
		if strict, _ := cmd.Flags().GetBool("strict"); strict {
			opts = append(opts, wishlist.RequireFunds())
		}
		entry, err := a.wishlist.PurchaseItem(cmd.Context(), id, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bought %s for %s\n", entry.ItemName, ledger.FormatCents(entry.PriceCents))
		return nil
	},
}

// ─── wishlist history ───────────────────────────────────────────────────────

var wishlistHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List purchases, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.wishlist.History(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tITEM\tPRICE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n",
				e.PurchasedAt.In(a.clock.Location()).Format("2006-01-02 15:04"), e.ItemName, ledger.FormatCents(e.PriceCents))
		}
		return tw.Flush()
	},
}

func parseItemID(s string) (ledger.ItemID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return ledger.ItemID(id), nil
}
