package wallet

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/metrics"
)

// AdminLabel replaces blank labels on admin transactions.
const AdminLabel = "Admin"

// =============================================================================
// ADMIN - Privileged overrides
// =============================================================================

// Admin bypasses the earning rules. Inputs are clamped, never rejected.
// Only the admin routes hand it out.
type Admin struct {
	e *Engine
}

func (e *Engine) Admin() *Admin { return &Admin{e: e} }

func (a *Admin) audit(op string, fields logrus.Fields) {
	metrics.AdminOperations.WithLabelValues(op).Inc()
	a.e.log.WithFields(fields).WithField("admin_op", op).Warn("admin override")
}

// ResetDatabase clears the ledger, day records, wishlist and purchase history.
func (a *Admin) ResetDatabase(ctx context.Context) error {
	if err := a.e.store.Reset(ctx); err != nil {
		return a.e.storageFailure("reset", err)
	}
	a.audit("reset", logrus.Fields{})
	return nil
}

// GetDay returns nil when day has no record.
func (a *Admin) GetDay(ctx context.Context, day ledger.DayKey) (*ledger.DayRecord, error) {
	if !day.Valid() {
		return nil, &ledger.InvalidDayKeyError{Input: string(day)}
	}
	rec, err := a.e.store.GetDay(ctx, day)
	if err != nil {
		return nil, a.e.storageFailure("get_day", err)
	}
	return rec, nil
}

// UpsertDay overwrites day's record with clamped values.
func (a *Admin) UpsertDay(ctx context.Context, day ledger.DayKey, flatCents int64, streakDays, bonusPercent int, bonusGrantedCents int64) (ledger.DayRecord, error) {
	if !day.Valid() {
		return ledger.DayRecord{}, &ledger.InvalidDayKeyError{Input: string(day)}
	}

	rec := ledger.DayRecord{
		Day:               day,
		FlatEarnedCents:   clamp(flatCents, 0, ledger.DailyFlatCapCents),
		StreakDays:        max(streakDays, 0),
		BonusPercent:      int(clamp(int64(bonusPercent), 0, ledger.MaxBonusPercent)),
		BonusGrantedCents: max(bonusGrantedCents, 0),
		UpdatedAt:         a.e.clock.Now(),
	}
	if err := a.e.store.UpsertDay(ctx, rec); err != nil {
		return ledger.DayRecord{}, a.e.storageFailure("upsert_day", err)
	}
	a.audit("upsert_day", logrus.Fields{
		"day":                 rec.Day,
		"flat_cents":          rec.FlatEarnedCents,
		"streak_days":         rec.StreakDays,
		"bonus_percent":       rec.BonusPercent,
		"bonus_granted_cents": rec.BonusGrantedCents,
	})
	return rec, nil
}

// InsertTransaction appends a manual credit (amount > 0) or debit (< 0)
// attributed to day and timestamped now.
func (a *Admin) InsertTransaction(ctx context.Context, day ledger.DayKey, amountCents int64, label string) (ledger.Transaction, error) {
	if !day.Valid() {
		return ledger.Transaction{}, &ledger.InvalidDayKeyError{Input: string(day)}
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = AdminLabel
	}

	tx := ledger.Transaction{
		AmountCents: amountCents,
		Label:       label,
		Kind:        ledger.KindAdmin,
		ReferenceID: a.e.newRef(),
		Timestamp:   a.e.clock.Now(),
		Day:         day,
	}
	id, err := a.e.store.AppendTransaction(ctx, tx)
	if err != nil {
		return ledger.Transaction{}, a.e.storageFailure("append_transaction", err)
	}
	tx.ID = id
	a.audit("insert_transaction", logrus.Fields{
		"day":          day,
		"amount_cents": amountCents,
		"label":        label,
	})
	return tx, nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
