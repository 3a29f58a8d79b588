/*
projection.go - What an activity in progress would earn if stopped now

PURPOSE:
  The timer screen refreshes every second and needs the same numbers
  a settlement would produce, without touching the store. Project runs
  the settlement rules on a WalletState snapshot.

PROJECTION vs SETTLEMENT:
  Project never writes. A projection can disagree with the eventual
  settlement only if the store changes in between (another stop, a
  purchase, an admin override, midnight).
*/
package wallet

import (
	"context"
	"time"

	"github.com/sportwallet/engine/ledger"
)

// Projection is the outcome of stopping the activity right now.
type Projection struct {
	Activity              Activity
	Elapsed               time.Duration
	RawCents              int64
	CreditedCents         int64
	ProjectedFlatCents    int64
	ProjectedBalanceCents int64
	BonusTriggered        bool
	BonusCents            int64
	CapReached            bool

	// RestDayRefused is set when a rest day would exceed the week's allowance.
	RestDayRefused bool
}

// Project applies the settlement rules to state without side effects.
func Project(state WalletState, rules Rules, activity Activity, elapsed time.Duration) Projection {
	raw := rules.FlatEarnedCents(activity, elapsed)
	out := settle(state.record(), raw)

	refused := activity == ActivityRestDay && out.credited > 0 && state.RestDaysRemaining <= 0
	if refused {
		out = outcome{newFlat: state.DayFlatCents}
	}

	return Projection{
		Activity:              activity,
		Elapsed:               elapsed,
		RawCents:              raw,
		CreditedCents:         out.credited,
		ProjectedFlatCents:    out.newFlat,
		ProjectedBalanceCents: state.BalanceCents + out.credited + out.bonus,
		BonusTriggered:        out.bonus > 0,
		BonusCents:            out.bonus,
		CapReached:            out.newFlat >= ledger.DailyFlatCapCents,
		RestDayRefused:        refused,
	}
}

// Project reads the current state and projects the activity on it.
func (e *Engine) Project(ctx context.Context, activity Activity, elapsed time.Duration) (Projection, error) {
	if !activity.Valid() {
		return Projection{}, unknownActivity(activity)
	}
	state, err := e.WalletState(ctx)
	if err != nil {
		return Projection{}, err
	}
	rec, err := e.store.GetDay(ctx, state.Day)
	if err != nil {
		return Projection{}, e.storageFailure("get_day", err)
	}
	if rec == nil {
		// settlement will derive today's streak from yesterday
		prev, err := e.store.GetDay(ctx, state.Day.Prev())
		if err != nil {
			return Projection{}, e.storageFailure("get_day", err)
		}
		state.StreakDays = nextStreak(prev)
		state.BonusPercent = BonusPercentFromStreak(state.StreakDays)
	}
	return Project(state, e.rules, activity, elapsed), nil
}
