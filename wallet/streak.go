package wallet

import (
	"github.com/shopspring/decimal"

	"github.com/sportwallet/engine/ledger"
)

// bonusPercentPerDay is the bonus gained per consecutive capped day.
const bonusPercentPerDay = 10

// BonusPercentFromStreak is linear in the streak, clamped to [0, 50].
func BonusPercentFromStreak(streakDays int) int {
	if streakDays <= 0 {
		return 0
	}
	if streakDays >= ledger.MaxBonusPercent/bonusPercentPerDay {
		return ledger.MaxBonusPercent
	}
	return streakDays * bonusPercentPerDay
}

// BonusAmountCents is bonusPercent of the flat cap, rounded half-up.
// The base is always the 400-cent cap, never the day's actual earnings.
func BonusAmountCents(bonusPercent int) int64 {
	if bonusPercent <= 0 {
		return 0
	}
	amount := decimal.NewFromInt(ledger.DailyFlatCapCents).
		Mul(decimal.NewFromInt(int64(bonusPercent))).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return amount.IntPart()
}

// TotalMaxCents is the most a day can earn: cap plus bonus. Display only.
func TotalMaxCents(bonusPercent int) int64 {
	return ledger.DailyFlatCapCents + BonusAmountCents(bonusPercent)
}

// nextStreak derives a new day's streak from the previous day's record.
func nextStreak(prev *ledger.DayRecord) int {
	if prev == nil || !prev.ReachedCap() {
		return 0
	}
	return prev.StreakDays + 1
}
