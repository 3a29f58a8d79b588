/*
engine.go - Day initialization and activity settlement

PURPOSE:
  The Engine is the only writer of day records and activity credits.
  Every settlement runs as ONE store transaction: the credit, the
  optional bonus, and the day record update commit together or not
  at all.

SETTLEMENT FLOW:
  1. Ensure today's DayRecord exists (streak derived from yesterday)
  2. raw      = FlatEarnedCents(activity, elapsed)
  3. credited = min(raw, 400 - flat)
  4. credited > 0 → append activity credit
  5. newFlat  = min(400, flat + credited)
  6. flat < 400 <= newFlat, no bonus yet, percent > 0 → append bonus
  7. Upsert the DayRecord (streak and percent untouched)

  A rest day that would credit something is refused with
  ErrRestDayLimit once the week's allowance is used up.

EXAMPLE:
  engine := wallet.NewEngine(store, ledger.NewSystemClock(time.Local))
  s, err := engine.ApplyActivityStop(ctx, wallet.ActivityBike, 40*time.Minute)
  // s.CreditedCents == 400, s.BonusCents == 40 with a 1-day streak

SEE ALSO:
  - state.go: Read models over the same store
  - admin.go: Privileged overrides bypassing these rules
*/
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/metrics"
)

// BonusLabel is the ledger label of the streak bonus credit.
const BonusLabel = "Bonus streak"

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store  ledger.TxStore
	clock  ledger.Clock
	rules  Rules
	log    *logrus.Entry
	newRef func() string
}

type Option func(*Engine)

func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithReferenceGenerator overrides the uuid generator for reference IDs.
func WithReferenceGenerator(fn func() string) Option {
	return func(e *Engine) { e.newRef = fn }
}

func NewEngine(store ledger.TxStore, clock ledger.Clock, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		clock:  clock,
		rules:  DefaultRules(),
		log:    logrus.StandardLogger().WithField("component", "wallet"),
		newRef: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Rules() Rules { return e.rules }

func (e *Engine) Clock() ledger.Clock { return e.clock }

// Today returns the engine clock's current day key.
func (e *Engine) Today() ledger.DayKey { return ledger.Today(e.clock) }

// storageFailure logs and counts a storage error before returning it.
func (e *Engine) storageFailure(op string, err error) error {
	if ledger.IsStorageError(err) {
		metrics.StorageErrors.WithLabelValues(op).Inc()
		e.log.WithError(err).WithField("op", op).Error("storage failure")
	}
	return err
}

// =============================================================================
// DAY INITIALIZATION
// =============================================================================

// EnsureTodayInitialized creates today's DayRecord if missing.
func (e *Engine) EnsureTodayInitialized(ctx context.Context) error {
	_, err := e.EnsureDayInitialized(ctx, e.Today())
	return err
}

// EnsureDayInitialized returns day's record, creating it from the previous
// day's record when absent. Idempotent: an existing record is never touched.
func (e *Engine) EnsureDayInitialized(ctx context.Context, day ledger.DayKey) (ledger.DayRecord, error) {
	if !day.Valid() {
		return ledger.DayRecord{}, &ledger.InvalidDayKeyError{Input: string(day)}
	}

	var (
		rec     ledger.DayRecord
		created bool
	)
	err := e.store.WithTx(ctx, func(repo ledger.Repository) error {
		var err error
		rec, created, err = ensureDay(ctx, repo, day, e.clock.Now())
		return err
	})
	if err != nil {
		return ledger.DayRecord{}, e.storageFailure("ensure_day", err)
	}
	if created {
		e.dayCreated(rec)
	}
	return rec, nil
}

func (e *Engine) dayCreated(rec ledger.DayRecord) {
	metrics.DaysInitialized.Inc()
	metrics.StreakDays.Set(float64(rec.StreakDays))
	e.log.WithFields(logrus.Fields{
		"day":           rec.Day,
		"streak_days":   rec.StreakDays,
		"bonus_percent": rec.BonusPercent,
	}).Info("day initialized")
}

// ensureDay must run inside a store transaction.
func ensureDay(ctx context.Context, repo ledger.Repository, day ledger.DayKey, now time.Time) (ledger.DayRecord, bool, error) {
	existing, err := repo.GetDay(ctx, day)
	if err != nil {
		return ledger.DayRecord{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	prev, err := repo.GetDay(ctx, day.Prev())
	if err != nil {
		return ledger.DayRecord{}, false, err
	}

	streak := nextStreak(prev)
	rec := ledger.DayRecord{
		Day:          day,
		StreakDays:   streak,
		BonusPercent: BonusPercentFromStreak(streak),
		UpdatedAt:    now,
	}
	if err := repo.UpsertDay(ctx, rec); err != nil {
		return ledger.DayRecord{}, false, err
	}
	return rec, true, nil
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// Settlement reports what one activity stop changed.
type Settlement struct {
	Activity      Activity
	RawCents      int64 // computed before the cap
	CreditedCents int64 // actually appended
	BonusCents    int64 // 0 unless this stop triggered the bonus
	ReferenceID   string
	Day           ledger.DayRecord // day record after the stop
}

// TotalCents is everything this stop added to the balance.
func (s Settlement) TotalCents() int64 { return s.CreditedCents + s.BonusCents }

// outcome applies the cap and bonus rules to a day record. Pure.
type outcome struct {
	credited int64
	bonus    int64
	newFlat  int64
}

func settle(rec ledger.DayRecord, raw int64) outcome {
	if raw <= 0 {
		return outcome{newFlat: rec.FlatEarnedCents}
	}
	credited := raw
	if remaining := rec.RemainingFlatCents(); credited > remaining {
		credited = remaining
	}
	newFlat := rec.FlatEarnedCents + credited
	if newFlat > ledger.DailyFlatCapCents {
		newFlat = ledger.DailyFlatCapCents
	}

	var bonus int64
	if rec.FlatEarnedCents < ledger.DailyFlatCapCents &&
		newFlat >= ledger.DailyFlatCapCents &&
		rec.BonusGrantedCents == 0 &&
		rec.BonusPercent > 0 {
		bonus = BonusAmountCents(rec.BonusPercent)
	}
	return outcome{credited: credited, bonus: bonus, newFlat: newFlat}
}

// ApplyActivityStop settles a finished activity against today's record.
// Zero earnings are a no-op that still initializes today.
func (e *Engine) ApplyActivityStop(ctx context.Context, activity Activity, elapsed time.Duration) (Settlement, error) {
	if !activity.Valid() {
		return Settlement{}, unknownActivity(activity)
	}

	now := e.clock.Now()
	day := ledger.DayKeyOf(now.In(e.clock.Location()))
	raw := e.rules.FlatEarnedCents(activity, elapsed)
	s := Settlement{Activity: activity, RawCents: raw}

	var created bool
	err := e.store.WithTx(ctx, func(repo ledger.Repository) error {
		rec, isNew, err := ensureDay(ctx, repo, day, now)
		if err != nil {
			return err
		}
		created = isNew
		s.Day = rec
		if raw <= 0 {
			return nil
		}

		out := settle(rec, raw)
		if out.credited == 0 && out.bonus == 0 {
			return nil
		}
		if activity == ActivityRestDay && out.credited > 0 {
			used, err := restDaysUsed(ctx, repo, day)
			if err != nil {
				return err
			}
			if e.rules.restDaysLeft(used) == 0 {
				return ledger.ErrRestDayLimit
			}
		}
		ref := e.newRef()

		if out.credited > 0 {
			if _, err := repo.AppendTransaction(ctx, ledger.Transaction{
				AmountCents: out.credited,
				Label:       activity.Label(),
				Kind:        ledger.KindActivity,
				ReferenceID: ref,
				Timestamp:   now,
				Day:         day,
			}); err != nil {
				return err
			}
		}

		if out.bonus > 0 {
			if _, err := repo.AppendTransaction(ctx, ledger.Transaction{
				AmountCents: out.bonus,
				Label:       BonusLabel,
				Kind:        ledger.KindBonus,
				ReferenceID: ref,
				Timestamp:   now,
				Day:         day,
			}); err != nil {
				return err
			}
			rec.BonusGrantedCents = out.bonus
		}

		rec.FlatEarnedCents = out.newFlat
		rec.UpdatedAt = now
		if err := repo.UpsertDay(ctx, rec); err != nil {
			return err
		}

		s.CreditedCents = out.credited
		s.BonusCents = out.bonus
		if out.credited > 0 {
			s.ReferenceID = ref
		}
		s.Day = rec
		return nil
	})
	if errors.Is(err, ledger.ErrRestDayLimit) {
		metrics.Settlements.WithLabelValues(string(activity), "refused").Inc()
		e.log.WithFields(logrus.Fields{
			"day":      day,
			"activity": activity,
			"allowed":  e.rules.RestDaysPerWeek,
		}).Warn("rest day refused, weekly allowance used up")
		return Settlement{}, err
	}
	if err != nil {
		return Settlement{}, e.storageFailure("apply_activity_stop", err)
	}

	if created {
		e.dayCreated(s.Day)
	}
	e.settled(s)
	return s, nil
}

func (e *Engine) settled(s Settlement) {
	act := string(s.Activity)
	switch {
	case s.RawCents <= 0:
		metrics.Settlements.WithLabelValues(act, "noop").Inc()
		return
	case s.CreditedCents == 0:
		metrics.Settlements.WithLabelValues(act, "capped").Inc()
	default:
		metrics.Settlements.WithLabelValues(act, "credited").Inc()
		metrics.CreditedCents.WithLabelValues(act).Add(float64(s.CreditedCents))
	}

	fields := logrus.Fields{
		"day":            s.Day.Day,
		"activity":       s.Activity,
		"raw_cents":      s.RawCents,
		"credited_cents": s.CreditedCents,
		"flat_cents":     s.Day.FlatEarnedCents,
		"reference_id":   s.ReferenceID,
	}
	if s.BonusCents > 0 {
		metrics.BonusGranted.Inc()
		metrics.BonusCents.Add(float64(s.BonusCents))
		fields["bonus_cents"] = s.BonusCents
		e.log.WithFields(fields).Info("activity settled, streak bonus granted")
		return
	}
	e.log.WithFields(fields).Info("activity settled")
}
