package wallet

import (
	"context"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/metrics"
)

// =============================================================================
// WALLET STATE - Read model for the home screen
// =============================================================================

// WalletState is the balance plus today's earning state.
type WalletState struct {
	BalanceCents      int64
	Day               ledger.DayKey
	DayFlatCents      int64
	StreakDays        int
	BonusPercent      int
	BonusGrantedCents int64
	RestDaysRemaining int // this week
}

// RemainingFlatCents is what can still be earned today before the cap.
func (s WalletState) RemainingFlatCents() int64 {
	if s.DayFlatCents >= ledger.DailyFlatCapCents {
		return 0
	}
	return ledger.DailyFlatCapCents - s.DayFlatCents
}

// TotalMaxCents is today's cap plus today's potential bonus.
func (s WalletState) TotalMaxCents() int64 { return TotalMaxCents(s.BonusPercent) }

// record rebuilds the day record the state was derived from.
func (s WalletState) record() ledger.DayRecord {
	return ledger.DayRecord{
		Day:               s.Day,
		FlatEarnedCents:   s.DayFlatCents,
		StreakDays:        s.StreakDays,
		BonusPercent:      s.BonusPercent,
		BonusGrantedCents: s.BonusGrantedCents,
	}
}

// Balance is the sum of every ledger transaction.
func (e *Engine) Balance(ctx context.Context) (int64, error) {
	balance, err := e.store.Balance(ctx)
	if err != nil {
		return 0, e.storageFailure("balance", err)
	}
	metrics.BalanceCents.Set(float64(balance))
	return balance, nil
}

// WalletState reads the balance, today's record and the rest-day usage
// from one store snapshot. A missing record yields the default view;
// nothing is written.
func (e *Engine) WalletState(ctx context.Context) (WalletState, error) {
	day := e.Today()
	var (
		balance int64
		rec     *ledger.DayRecord
		used    int
	)
	err := e.store.View(ctx, func(repo ledger.Repository) error {
		var err error
		if balance, err = repo.Balance(ctx); err != nil {
			return err
		}
		if rec, err = repo.GetDay(ctx, day); err != nil {
			return err
		}
		used, err = restDaysUsed(ctx, repo, day)
		return err
	})
	if err != nil {
		return WalletState{}, e.storageFailure("wallet_state", err)
	}
	metrics.BalanceCents.Set(float64(balance))

	state := WalletState{
		BalanceCents:      balance,
		Day:               day,
		BonusPercent:      BonusPercentFromStreak(0),
		RestDaysRemaining: e.rules.restDaysLeft(used),
	}
	if rec != nil {
		state.DayFlatCents = rec.FlatEarnedCents
		state.StreakDays = rec.StreakDays
		state.BonusPercent = rec.BonusPercent
		state.BonusGrantedCents = rec.BonusGrantedCents
	}
	return state, nil
}

// =============================================================================
// OBSERVERS
// =============================================================================

// ObserveBalance emits the balance now and after every committed change.
func (e *Engine) ObserveBalance(ctx context.Context) <-chan int64 {
	return ledger.Watch(ctx, e.store.Changes(), e.Balance)
}

// ObserveWalletState emits the state now and after every committed change.
// Today is re-read on each emission, so a midnight rollover shows up on the
// next change.
func (e *Engine) ObserveWalletState(ctx context.Context) <-chan WalletState {
	return ledger.Watch(ctx, e.store.Changes(), e.WalletState)
}

// ObserveDay emits day's record (nil when absent) after every change.
func (e *Engine) ObserveDay(ctx context.Context, day ledger.DayKey) <-chan *ledger.DayRecord {
	return ledger.Watch(ctx, e.store.Changes(), func(ctx context.Context) (*ledger.DayRecord, error) {
		rec, err := e.store.GetDay(ctx, day)
		if err != nil {
			return nil, e.storageFailure("get_day", err)
		}
		return rec, nil
	})
}

// ObserveHistory emits the newest transactions after every change.
func (e *Engine) ObserveHistory(ctx context.Context, limit int) <-chan []ledger.Transaction {
	return ledger.Watch(ctx, e.store.Changes(), func(ctx context.Context) ([]ledger.Transaction, error) {
		return e.History(ctx, limit)
	})
}
