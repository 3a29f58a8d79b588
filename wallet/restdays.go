package wallet

import (
	"context"

	"github.com/sportwallet/engine/ledger"
)

// =============================================================================
// REST DAY ALLOWANCE
// =============================================================================

// restDaysUsed counts rest-day credits in the Monday-to-Sunday week of day.
// Capped rest-day stops write nothing and so use nothing.
func restDaysUsed(ctx context.Context, repo ledger.Ledger, day ledger.DayKey) (int, error) {
	start := day.WeekStart()
	txs, err := repo.Transactions(ctx, ledger.TransactionFilter{
		From:         start,
		To:           start.AddDays(6),
		PositiveOnly: true,
	})
	if err != nil {
		return 0, err
	}
	used := 0
	for _, tx := range txs {
		if tx.Kind == ledger.KindActivity && tx.Label == ActivityRestDay.Label() {
			used++
		}
	}
	return used, nil
}

func (r Rules) restDaysLeft(used int) int {
	if left := r.RestDaysPerWeek - used; left > 0 {
		return left
	}
	return 0
}

// RestDaysRemaining is how many rest days the current week can still credit.
func (e *Engine) RestDaysRemaining(ctx context.Context) (int, error) {
	used, err := restDaysUsed(ctx, e.store, e.Today())
	if err != nil {
		return 0, e.storageFailure("rest_days_used", err)
	}
	return e.rules.restDaysLeft(used), nil
}
