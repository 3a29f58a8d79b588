/*
calendar.go - History and calendar read models

PURPOSE:
  Read-only views over the ledger for the history and calendar screens.
  Everything here is derived from transactions and day records; nothing
  is cached or written.

VIEWS:
  History:      newest transactions first
  EarnedOnDay:  sum of credits attributed to one day
  MonthSummary: per-day credits and activity session counts
  DayDetails:   one day's credits grouped by label, with estimated minutes
*/
package wallet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sportwallet/engine/ledger"
)

// Grouping labels used by the day details view.
const (
	RestLabel       = "Repos"
	BonusGroupLabel = "Bonus"
)

// DefaultHistoryLimit applies when History is called with limit <= 0.
const DefaultHistoryLimit = 100

// =============================================================================
// HISTORY
// =============================================================================

// History lists the newest transactions first.
func (e *Engine) History(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	txs, err := e.store.Transactions(ctx, ledger.TransactionFilter{Limit: limit})
	if err != nil {
		return nil, e.storageFailure("transactions", err)
	}
	return txs, nil
}

// EarnedOnDay sums the positive transactions attributed to day.
// Purchases and admin debits do not reduce it.
func (e *Engine) EarnedOnDay(ctx context.Context, day ledger.DayKey) (int64, error) {
	if !day.Valid() {
		return 0, &ledger.InvalidDayKeyError{Input: string(day)}
	}
	sum, err := e.store.SumPositiveForDay(ctx, day)
	if err != nil {
		return 0, e.storageFailure("sum_positive_for_day", err)
	}
	return sum, nil
}

// =============================================================================
// MONTH SUMMARY
// =============================================================================

// DaySummary is one calendar cell.
type DaySummary struct {
	Day         ledger.DayKey
	EarnedCents int64
	Sessions    map[Activity]int
	StreakDays  int
	CapReached  bool
}

// Dominant returns the activity with the most sessions that day.
// Ties resolve in display order.
func (d DaySummary) Dominant() (Activity, bool) {
	var (
		best  Activity
		count int
	)
	for _, a := range Activities {
		if n := d.Sessions[a]; n > count {
			best, count = a, n
		}
	}
	return best, count > 0
}

type MonthSummary struct {
	Year       int
	Month      time.Month
	TotalCents int64
	ActiveDays int
	CappedDays int
	Days       []DaySummary // every day of the month, in order
}

// MonthSummary aggregates one calendar month.
func (e *Engine) MonthSummary(ctx context.Context, year int, month time.Month) (MonthSummary, error) {
	if month < time.January || month > time.December {
		return MonthSummary{}, &ledger.InvalidDayKeyError{Input: fmt.Sprintf("%04d-%02d", year, int(month))}
	}
	from, to := ledger.MonthRange(year, month)

	txs, err := e.store.Transactions(ctx, ledger.TransactionFilter{From: from, To: to, PositiveOnly: true})
	if err != nil {
		return MonthSummary{}, e.storageFailure("transactions", err)
	}
	recs, err := e.store.DaysInRange(ctx, from, to)
	if err != nil {
		return MonthSummary{}, e.storageFailure("days_in_range", err)
	}

	byDay := make(map[ledger.DayKey]*DaySummary)
	summary := MonthSummary{Year: year, Month: month}
	for day := from; day <= to; day = day.Next() {
		summary.Days = append(summary.Days, DaySummary{Day: day, Sessions: make(map[Activity]int)})
	}
	for i := range summary.Days {
		byDay[summary.Days[i].Day] = &summary.Days[i]
	}

	for _, tx := range txs {
		d, ok := byDay[tx.Day]
		if !ok {
			continue
		}
		d.EarnedCents += tx.AmountCents
		summary.TotalCents += tx.AmountCents
		if a, ok := ActivityFromLabel(tx.Label); ok {
			d.Sessions[a]++
		}
	}
	for _, rec := range recs {
		if d, ok := byDay[rec.Day]; ok {
			d.StreakDays = rec.StreakDays
			d.CapReached = rec.ReachedCap()
		}
	}
	for _, d := range summary.Days {
		if d.EarnedCents > 0 {
			summary.ActiveDays++
		}
		if d.CapReached {
			summary.CappedDays++
		}
	}
	return summary, nil
}

// =============================================================================
// DAY DETAILS
// =============================================================================

// DayDetailLine groups a day's credits sharing a label.
type DayDetailLine struct {
	Label       string
	Activity    Activity // empty for bonus and admin lines
	EarnedCents int64
	Count       int
	// EstimatedMinutes is the activity time the credits represent.
	// Nil for rest days, bonuses and admin credits.
	EstimatedMinutes *int
}

type DayDetails struct {
	Day        ledger.DayKey
	TotalCents int64
	Lines      []DayDetailLine // highest earnings first
	Record     *ledger.DayRecord
}

// DayDetails lists day's credits grouped by label.
func (e *Engine) DayDetails(ctx context.Context, day ledger.DayKey) (DayDetails, error) {
	if !day.Valid() {
		return DayDetails{}, &ledger.InvalidDayKeyError{Input: string(day)}
	}

	txs, err := e.store.Transactions(ctx, ledger.TransactionFilter{From: day, To: day, PositiveOnly: true})
	if err != nil {
		return DayDetails{}, e.storageFailure("transactions", err)
	}
	rec, err := e.store.GetDay(ctx, day)
	if err != nil {
		return DayDetails{}, e.storageFailure("get_day", err)
	}

	details := DayDetails{Day: day, Record: rec}
	groups := make(map[string]*DayDetailLine)
	var order []string
	for _, tx := range txs {
		label, activity := groupLabel(tx)
		line, ok := groups[label]
		if !ok {
			line = &DayDetailLine{Label: label, Activity: activity}
			groups[label] = line
			order = append(order, label)
		}
		line.EarnedCents += tx.AmountCents
		line.Count++
		details.TotalCents += tx.AmountCents
	}

	for _, label := range order {
		line := *groups[label]
		if line.Activity != "" {
			if minutes, ok := e.rules.EstimatedMinutes(line.Activity, line.EarnedCents); ok {
				line.EstimatedMinutes = &minutes
			}
		}
		details.Lines = append(details.Lines, line)
	}
	sort.SliceStable(details.Lines, func(i, j int) bool {
		return details.Lines[i].EarnedCents > details.Lines[j].EarnedCents
	})
	return details, nil
}

func groupLabel(tx ledger.Transaction) (string, Activity) {
	if tx.Kind == ledger.KindBonus || tx.Label == BonusLabel {
		return BonusGroupLabel, ""
	}
	if tx.Kind == ledger.KindAdmin {
		return tx.Label, ""
	}
	a, ok := ActivityFromLabel(tx.Label)
	if !ok {
		return tx.Label, ""
	}
	if a == ActivityRestDay {
		return RestLabel, a
	}
	return tx.Label, a
}
