package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/store/memory"
	"github.com/sportwallet/engine/store/sqlite"
	"github.com/sportwallet/engine/wallet"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// may10 is 09:00 on 2024-05-10 in UTC.
var may10 = time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *wallet.Engine
	store  ledger.TxStore
	clock  *ledger.FixedClock
	logs   *logtest.Hook
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, memory.New())
}

func newFixtureWith(t *testing.T, store ledger.TxStore) *fixture {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	refs := 0
	clock := ledger.NewFixedClock(may10)
	engine := wallet.NewEngine(store, clock,
		wallet.WithLogger(logger.WithField("component", "wallet")),
		wallet.WithReferenceGenerator(func() string {
			refs++
			return fmt.Sprintf("ref-%d", refs)
		}),
	)
	return &fixture{engine: engine, store: store, clock: clock, logs: hook}
}

func (f *fixture) day(t *testing.T, day ledger.DayKey) ledger.DayRecord {
	t.Helper()
	rec, err := f.store.GetDay(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, rec, "no record for %s", day)
	return *rec
}

func (f *fixture) today(t *testing.T) ledger.DayRecord {
	return f.day(t, f.engine.Today())
}

func (f *fixture) transactions(t *testing.T) []ledger.Transaction {
	t.Helper()
	txs, err := f.store.Transactions(context.Background(), ledger.TransactionFilter{})
	require.NoError(t, err)
	return txs
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := f.store.Balance(context.Background())
	require.NoError(t, err)
	return b
}

func (f *fixture) stop(t *testing.T, a wallet.Activity, elapsed time.Duration) wallet.Settlement {
	t.Helper()
	s, err := f.engine.ApplyActivityStop(context.Background(), a, elapsed)
	require.NoError(t, err)
	return s
}

func (f *fixture) seedDay(t *testing.T, rec ledger.DayRecord) {
	t.Helper()
	require.NoError(t, f.store.UpsertDay(context.Background(), rec))
}

func countLabel(txs []ledger.Transaction, label string) int {
	n := 0
	for _, tx := range txs {
		if tx.Label == label {
			n++
		}
	}
	return n
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestApplyActivityStop_FreshDayBikeTenMinutes(t *testing.T) {
	// GIVEN: No prior records at all
	f := newFixture(t)

	// WHEN: Stopping a 600 000 ms bike ride
	s := f.stop(t, wallet.ActivityBike, 600_000*time.Millisecond)

	// THEN: Exactly 100 cents are credited as "Vélo"
	assert.Equal(t, int64(100), s.RawCents)
	assert.Equal(t, int64(100), s.CreditedCents)
	assert.Equal(t, int64(0), s.BonusCents)
	assert.Equal(t, "ref-1", s.ReferenceID)

	rec := f.today(t)
	assert.Equal(t, int64(100), rec.FlatEarnedCents)
	assert.Equal(t, 0, rec.StreakDays)
	assert.Equal(t, 0, rec.BonusPercent)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(100), txs[0].AmountCents)
	assert.Equal(t, "Vélo", txs[0].Label)
	assert.Equal(t, ledger.KindActivity, txs[0].Kind)
	assert.Equal(t, ledger.DayKey("2024-05-10"), txs[0].Day)
	assert.Equal(t, int64(100), f.balance(t))
}

func TestApplyActivityStop_CreditCappedToHeadroom(t *testing.T) {
	// GIVEN: Today at 390 flat with a 10% bonus not yet granted
	f := newFixture(t)
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-10", FlatEarnedCents: 390, StreakDays: 1, BonusPercent: 10})

	// WHEN: A stop that computes 50 raw cents (5 min bike)
	s := f.stop(t, wallet.ActivityBike, 5*time.Minute)

	// THEN: Only the 10 cents of headroom are credited and the bonus fires
	assert.Equal(t, int64(50), s.RawCents)
	assert.Equal(t, int64(10), s.CreditedCents)
	assert.Equal(t, int64(40), s.BonusCents)
	assert.Equal(t, int64(50), s.TotalCents())

	rec := f.today(t)
	assert.Equal(t, int64(400), rec.FlatEarnedCents)
	assert.Equal(t, int64(40), rec.BonusGrantedCents)

	txs := f.transactions(t)
	require.Len(t, txs, 2)
	assert.Equal(t, 1, countLabel(txs, wallet.BonusLabel))
	assert.Equal(t, txs[0].ReferenceID, txs[1].ReferenceID, "credit and bonus share a reference")
}

func TestEnsureDayInitialized_StreakFromPreviousDay(t *testing.T) {
	t.Run("previous day capped", func(t *testing.T) {
		// GIVEN: Yesterday reached exactly 400 with a 2-day streak
		f := newFixture(t)
		f.seedDay(t, ledger.DayRecord{Day: "2024-05-09", FlatEarnedCents: 400, StreakDays: 2, BonusPercent: 20})

		// WHEN: Today is initialized
		require.NoError(t, f.engine.EnsureTodayInitialized(context.Background()))

		// THEN: The streak continues
		rec := f.today(t)
		assert.Equal(t, 3, rec.StreakDays)
		assert.Equal(t, 30, rec.BonusPercent)
		assert.Equal(t, int64(0), rec.FlatEarnedCents)
		assert.Equal(t, int64(0), rec.BonusGrantedCents)
	})

	t.Run("previous day 399", func(t *testing.T) {
		f := newFixture(t)
		f.seedDay(t, ledger.DayRecord{Day: "2024-05-09", FlatEarnedCents: 399, StreakDays: 4, BonusPercent: 40})

		require.NoError(t, f.engine.EnsureTodayInitialized(context.Background()))

		rec := f.today(t)
		assert.Equal(t, 0, rec.StreakDays)
		assert.Equal(t, 0, rec.BonusPercent)
	})

	t.Run("previous day missing", func(t *testing.T) {
		f := newFixture(t)
		f.seedDay(t, ledger.DayRecord{Day: "2024-05-08", FlatEarnedCents: 400, StreakDays: 4, BonusPercent: 40})

		require.NoError(t, f.engine.EnsureTodayInitialized(context.Background()))

		assert.Equal(t, 0, f.today(t).StreakDays)
	})
}

func TestApplyActivityStop_BonusGrantedOnce(t *testing.T) {
	// GIVEN: A 30% bonus day
	f := newFixture(t)
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-10", StreakDays: 3, BonusPercent: 30})

	// WHEN: Reaching the cap
	s := f.stop(t, wallet.ActivityBike, 40*time.Minute)

	// THEN: round(400 * 0.30) = 120 cents of bonus
	assert.Equal(t, int64(400), s.CreditedCents)
	assert.Equal(t, int64(120), s.BonusCents)
	assert.Equal(t, int64(120), f.today(t).BonusGrantedCents)

	// WHEN: Earning more later the same day
	f.clock.Advance(2 * time.Hour)
	again := f.stop(t, wallet.ActivityWalk, time.Hour)
	rest := f.stop(t, wallet.ActivityRestDay, 0)

	// THEN: Nothing more is credited and no second bonus appears
	assert.Equal(t, int64(0), again.CreditedCents)
	assert.Equal(t, int64(0), again.BonusCents)
	assert.Empty(t, again.ReferenceID)
	assert.Equal(t, int64(0), rest.CreditedCents)

	txs := f.transactions(t)
	assert.Len(t, txs, 2)
	assert.Equal(t, 1, countLabel(txs, wallet.BonusLabel))
	assert.Equal(t, int64(520), f.balance(t))
	assert.Equal(t, int64(120), f.today(t).BonusGrantedCents)
}

func TestBonus_NotRegrantedAfterAdminLowersFlat(t *testing.T) {
	// GIVEN: The bonus was paid, then an admin lowered today's flat
	f := newFixture(t)
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-10", StreakDays: 1, BonusPercent: 10})
	f.stop(t, wallet.ActivityBike, 40*time.Minute)
	_, err := f.engine.Admin().UpsertDay(context.Background(), "2024-05-10", 100, 1, 10, 40)
	require.NoError(t, err)

	// WHEN: Reaching the cap again
	s := f.stop(t, wallet.ActivityBike, 40*time.Minute)

	// THEN: Headroom is credited, the bonus is not
	assert.Equal(t, int64(300), s.CreditedCents)
	assert.Equal(t, int64(0), s.BonusCents)
	assert.Equal(t, 1, countLabel(f.transactions(t), wallet.BonusLabel))
}

func TestBonus_ZeroPercentGrantsNothing(t *testing.T) {
	f := newFixture(t)

	s := f.stop(t, wallet.ActivityRestDay, 0)

	assert.Equal(t, int64(400), s.CreditedCents)
	assert.Equal(t, int64(0), s.BonusCents)
	assert.Equal(t, "Journée Off", f.transactions(t)[0].Label)
	assert.Equal(t, int64(0), f.today(t).BonusGrantedCents)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestCapAndBalanceInvariants(t *testing.T) {
	// GIVEN: A long mixed sequence of stops over several days
	f := newFixture(t)
	ctx := context.Background()
	activities := []wallet.Activity{wallet.ActivityBike, wallet.ActivityWalk, wallet.ActivityOther, wallet.ActivityRestDay}

	for i := 0; i < 60; i++ {
		a := activities[i%len(activities)]
		if a == wallet.ActivityRestDay && i%8 != 3 {
			a = wallet.ActivityWalk
		}
		if _, err := f.engine.ApplyActivityStop(ctx, a, time.Duration(i*37%23)*time.Minute); err != nil {
			require.ErrorIs(t, err, ledger.ErrRestDayLimit)
		}
		if i%7 == 6 {
			_, err := f.engine.Admin().InsertTransaction(ctx, f.engine.Today(), -int64(i), "")
			require.NoError(t, err)
		}

		// THEN: The cap holds and balance equals the ledger sum, always
		rec := f.today(t)
		assert.LessOrEqual(t, rec.FlatEarnedCents, ledger.DailyFlatCapCents)

		var sum int64
		for _, tx := range f.transactions(t) {
			sum += tx.AmountCents
		}
		balance, err := f.engine.Balance(ctx)
		require.NoError(t, err)
		assert.Equal(t, sum, balance)

		if i%9 == 8 {
			f.clock.AdvanceDays(1)
		} else {
			f.clock.Advance(10 * time.Minute)
		}
	}

	// THEN: At most one bonus per day
	perDay := map[ledger.DayKey]int{}
	for _, tx := range f.transactions(t) {
		if tx.Kind == ledger.KindBonus {
			perDay[tx.Day]++
		}
	}
	for day, n := range perDay {
		assert.Equal(t, 1, n, day)
	}
}

func TestEnsureDayInitialized_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-09", FlatEarnedCents: 400, StreakDays: 0})

	first, err := f.engine.EnsureDayInitialized(ctx, "2024-05-10")
	require.NoError(t, err)

	// Changing yesterday afterwards must not touch today's frozen record
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-09", FlatEarnedCents: 400, StreakDays: 5})
	second, err := f.engine.EnsureDayInitialized(ctx, "2024-05-10")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.StreakDays)

	_, err = f.engine.EnsureDayInitialized(ctx, "10/05/2024")
	assert.ErrorIs(t, err, ledger.ErrInvalidDayKey)
}

func TestNoWrite_NoNotification(t *testing.T) {
	// GIVEN: Today already initialized and a subscriber
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureTodayInitialized(ctx))
	sig, cancel := f.store.Changes().Subscribe()
	defer cancel()

	quiet := func(msg string) {
		t.Helper()
		select {
		case <-sig:
			t.Fatal(msg)
		default:
		}
	}

	// WHEN: Re-initializing and stopping with zero earnings
	require.NoError(t, f.engine.EnsureTodayInitialized(ctx))
	f.stop(t, wallet.ActivityWalk, 8*time.Second)

	// THEN: No signal
	quiet("no-op must not notify")

	// WHEN: Stopping on a capped day
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-10", FlatEarnedCents: 400})
	<-sig
	f.stop(t, wallet.ActivityBike, time.Hour)

	// THEN: No signal either
	quiet("capped stop must not notify")

	// WHEN: A real credit
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-10"})
	<-sig
	f.stop(t, wallet.ActivityBike, 10*time.Minute)

	// THEN: One signal
	select {
	case <-sig:
	default:
		t.Fatal("settlement should notify")
	}
}

func TestStreakAcrossDays(t *testing.T) {
	// GIVEN: Three capped days in a row, then a skipped day
	f := newFixture(t)
	wantBonus := []int64{0, 40, 80}
	for i, want := range wantBonus {
		s := f.stop(t, wallet.ActivityBike, 40*time.Minute)
		assert.Equal(t, want, s.BonusCents, "day %d", i)
		assert.Equal(t, i, s.Day.StreakDays)
		f.clock.AdvanceDays(1)
	}
	f.clock.AdvanceDays(1)

	// WHEN: Activity resumes after the gap
	s := f.stop(t, wallet.ActivityBike, 40*time.Minute)

	// THEN: The streak restarted
	assert.Equal(t, 0, s.Day.StreakDays)
	assert.Equal(t, int64(0), s.BonusCents)
	assert.Equal(t, int64(4*400+40+80), f.balance(t))
}

func TestRestDayAllowance(t *testing.T) {
	// GIVEN: Friday 2024-05-10, two rest days per week
	f := newFixture(t)
	ctx := context.Background()

	left, err := f.engine.RestDaysRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	// WHEN: Resting Friday and Saturday
	f.stop(t, wallet.ActivityRestDay, 0)
	f.clock.AdvanceDays(1)
	f.stop(t, wallet.ActivityRestDay, 0)

	// THEN: Sunday's rest day is refused and writes nothing
	f.clock.AdvanceDays(1)
	left, err = f.engine.RestDaysRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	p, err := f.engine.Project(ctx, wallet.ActivityRestDay, 0)
	require.NoError(t, err)
	assert.True(t, p.RestDayRefused)
	assert.Equal(t, int64(0), p.CreditedCents)

	_, err = f.engine.ApplyActivityStop(ctx, wallet.ActivityRestDay, 0)
	assert.ErrorIs(t, err, ledger.ErrRestDayLimit)
	assert.True(t, ledger.IsClientError(err))
	rec, err := f.store.GetDay(ctx, "2024-05-12")
	require.NoError(t, err)
	assert.Nil(t, rec, "refusal rolls back day initialization")
	assert.Equal(t, int64(840), f.balance(t), "Saturday also paid a 10% bonus")

	// A capped day makes a rest-day stop a plain no-op
	f.stop(t, wallet.ActivityBike, 40*time.Minute)
	s := f.stop(t, wallet.ActivityRestDay, 0)
	assert.Equal(t, int64(0), s.CreditedCents)

	// WHEN: Monday starts a new week
	f.clock.AdvanceDays(1)
	s = f.stop(t, wallet.ActivityRestDay, 0)

	// THEN: Rest days credit again
	assert.Equal(t, int64(400), s.CreditedCents)
	state, err := f.engine.WalletState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.RestDaysRemaining)
}

func TestApplyActivityStop_NoOps(t *testing.T) {
	f := newFixture(t)

	s := f.stop(t, wallet.ActivityWalk, 8*time.Second)
	assert.Equal(t, int64(0), s.RawCents)
	assert.Empty(t, f.transactions(t))
	assert.Equal(t, ledger.DayKey("2024-05-10"), f.today(t).Day, "no-op still initializes today")

	f.stop(t, wallet.ActivityBike, -time.Hour)
	assert.Empty(t, f.transactions(t))

	_, err := f.engine.ApplyActivityStop(context.Background(), wallet.Activity("swim"), time.Hour)
	assert.ErrorIs(t, err, ledger.ErrUnknownActivity)
}

func TestApplyActivityStop_SQLiteStore(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := newFixtureWith(t, store)
	f.seedDay(t, ledger.DayRecord{Day: "2024-05-09", FlatEarnedCents: 400, StreakDays: 2, BonusPercent: 20})

	s := f.stop(t, wallet.ActivityOther, time.Hour)

	assert.Equal(t, int64(400), s.CreditedCents)
	assert.Equal(t, int64(120), s.BonusCents)
	assert.Equal(t, int64(520), f.balance(t))
	assert.Equal(t, int64(120), f.today(t).BonusGrantedCents)
}

// =============================================================================
// ATOMICITY
// =============================================================================

var errDisk = errors.New("disk full")

// flakyStore fails the named repository call inside transactions.
type flakyStore struct {
	*memory.Memory
	failOn string
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	return s.Memory.WithTx(ctx, func(repo ledger.Repository) error {
		return fn(flakyRepo{Repository: repo, store: s})
	})
}

type flakyRepo struct {
	ledger.Repository
	store *flakyStore
}

func (r flakyRepo) UpsertDay(ctx context.Context, rec ledger.DayRecord) error {
	if r.store.failOn == "upsert_day" {
		return ledger.WrapStorage("upsert day", errDisk)
	}
	return r.Repository.UpsertDay(ctx, rec)
}

func (r flakyRepo) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.TransactionID, error) {
	if r.store.failOn == "append_"+string(tx.Kind) {
		return 0, ledger.WrapStorage("append transaction", errDisk)
	}
	return r.Repository.AppendTransaction(ctx, tx)
}

func TestApplyActivityStop_AllOrNothing(t *testing.T) {
	for _, failOn := range []string{"upsert_day", "append_bonus", "append_activity"} {
		t.Run(failOn, func(t *testing.T) {
			// GIVEN: A bonus day about to reach the cap
			store := &flakyStore{Memory: memory.New()}
			f := newFixtureWith(t, store)
			f.seedDay(t, ledger.DayRecord{Day: "2024-05-10", FlatEarnedCents: 300, StreakDays: 2, BonusPercent: 20})

			// WHEN: One of the writes fails
			store.failOn = failOn
			_, err := f.engine.ApplyActivityStop(context.Background(), wallet.ActivityBike, 40*time.Minute)

			// THEN: A storage error surfaces and nothing changed
			assert.ErrorIs(t, err, ledger.ErrStorage)
			assert.ErrorIs(t, err, errDisk)
			assert.Empty(t, f.transactions(t))
			rec := f.today(t)
			assert.Equal(t, int64(300), rec.FlatEarnedCents)
			assert.Equal(t, int64(0), rec.BonusGrantedCents)

			// AND: The failure was logged
			require.NotNil(t, f.logs.LastEntry())
			assert.Equal(t, logrus.ErrorLevel, f.logs.LastEntry().Level)

			// AND: The same stop succeeds once the store recovers
			store.failOn = ""
			s := f.stop(t, wallet.ActivityBike, 40*time.Minute)
			assert.Equal(t, int64(100), s.CreditedCents)
			assert.Equal(t, int64(80), s.BonusCents)
		})
	}
}

func TestEnsureDayInitialized_StorageError(t *testing.T) {
	store := &flakyStore{Memory: memory.New(), failOn: "upsert_day"}
	f := newFixtureWith(t, store)

	err := f.engine.EnsureTodayInitialized(context.Background())

	assert.True(t, ledger.IsStorageError(err))
	rec, err := store.GetDay(context.Background(), "2024-05-10")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
