package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportwallet/engine/ledger"
)

// =============================================================================
// DAY KEY TESTS
// =============================================================================

func TestDayKey_ParseAndValidate(t *testing.T) {
	day, err := ledger.ParseDayKey("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, ledger.DayKey("2024-02-29"), day)
	assert.True(t, day.Valid())

	for _, bad := range []string{"", "2024-2-29", "2023-02-29", "29/02/2024", "2024-13-01"} {
		_, err := ledger.ParseDayKey(bad)
		assert.ErrorIs(t, err, ledger.ErrInvalidDayKey, bad)
		assert.False(t, ledger.DayKey(bad).Valid(), bad)
	}
}

func TestDayKey_Arithmetic(t *testing.T) {
	// GIVEN: Day keys around month, year and leap boundaries
	// THEN: Prev/Next follow the calendar
	assert.Equal(t, ledger.DayKey("2024-02-29"), ledger.DayKey("2024-03-01").Prev())
	assert.Equal(t, ledger.DayKey("2025-01-01"), ledger.DayKey("2024-12-31").Next())
	assert.Equal(t, ledger.DayKey("2024-12-25"), ledger.DayKey("2025-01-04").AddDays(-10))

	// Lexical order equals chronological order
	assert.True(t, ledger.DayKey("2024-09-30") < ledger.DayKey("2024-10-01"))

	// Weeks start on Monday
	assert.Equal(t, ledger.DayKey("2024-05-06"), ledger.DayKey("2024-05-10").WeekStart())
	assert.Equal(t, ledger.DayKey("2024-05-06"), ledger.DayKey("2024-05-12").WeekStart())
	assert.Equal(t, ledger.DayKey("2024-05-13"), ledger.DayKey("2024-05-13").WeekStart())
	assert.Equal(t, ledger.DayKey("2024-12-30"), ledger.DayKey("2025-01-01").WeekStart())
}

func TestDayKey_DSTTransition(t *testing.T) {
	// GIVEN: Paris, where 2024-03-31 has only 23 hours
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}

	// WHEN: Walking the days across the transition
	// THEN: No day is skipped or repeated
	day := ledger.DayKey("2024-03-30")
	assert.Equal(t, ledger.DayKey("2024-03-31"), day.Next())
	assert.Equal(t, ledger.DayKey("2024-04-01"), day.Next().Next())

	midnight := ledger.DayKey("2024-03-31").Time(paris)
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, ledger.DayKey("2024-03-31"), ledger.DayKeyOf(midnight.Add(23*time.Hour-time.Second)))
}

func TestMonthRange(t *testing.T) {
	from, to := ledger.MonthRange(2024, time.February)
	assert.Equal(t, ledger.DayKey("2024-02-01"), from)
	assert.Equal(t, ledger.DayKey("2024-02-29"), to)

	from, to = ledger.MonthRange(2025, time.December)
	assert.Equal(t, ledger.DayKey("2025-12-01"), from)
	assert.Equal(t, ledger.DayKey("2025-12-31"), to)
}

func TestToday_UsesClockLocation(t *testing.T) {
	// GIVEN: 23:30 UTC, which is already the next day at UTC+2
	plus2 := time.FixedZone("UTC+2", 2*60*60)
	clock := ledger.NewFixedClock(time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC).In(plus2))

	assert.Equal(t, ledger.DayKey("2024-06-11"), ledger.Today(clock))

	clock.AdvanceDays(1)
	assert.Equal(t, ledger.DayKey("2024-06-12"), ledger.Today(clock))
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:    "0,00 €",
		400:  "4,00 €",
		5:    "0,05 €",
		-120: "-1,20 €",
	}
	for cents, want := range cases {
		assert.Equal(t, want, ledger.FormatCents(cents))
	}
}

func TestParseCents(t *testing.T) {
	cases := map[string]int64{
		"4":       400,
		"4.5":     450,
		"4,50":    450,
		" 12,99€": 1299,
		"0.019":   1,
	}
	for in, want := range cases {
		got, err := ledger.ParseCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ledger.ParseCents("abc")
	assert.Error(t, err)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestWrapStorage(t *testing.T) {
	assert.NoError(t, ledger.WrapStorage("op", nil))

	cause := errors.New("disk I/O error")
	err := ledger.WrapStorage("append transaction", cause)
	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.True(t, ledger.IsStorageError(err))

	// Already wrapped errors keep their original op
	again := ledger.WrapStorage("commit", err)
	var se *ledger.StorageError
	require.ErrorAs(t, again, &se)
	assert.Equal(t, "append transaction", se.Op)
}

func TestInsufficientBalanceError(t *testing.T) {
	err := fmt.Errorf("purchase: %w", &ledger.InsufficientBalanceError{Available: 300, Requested: 500, Shortfall: 200})

	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.True(t, ledger.IsClientError(err))
	assert.False(t, ledger.IsStorageError(err))
	assert.Contains(t, err.Error(), "2,00 €")
}

func TestTransactionFilter_Matches(t *testing.T) {
	tx := ledger.Transaction{AmountCents: -50, Day: "2024-05-10"}

	assert.True(t, ledger.TransactionFilter{}.Matches(tx))
	assert.True(t, ledger.TransactionFilter{From: "2024-05-10", To: "2024-05-10"}.Matches(tx))
	assert.False(t, ledger.TransactionFilter{From: "2024-05-11"}.Matches(tx))
	assert.False(t, ledger.TransactionFilter{To: "2024-05-09"}.Matches(tx))
	assert.False(t, ledger.TransactionFilter{PositiveOnly: true}.Matches(tx))
}

// =============================================================================
// NOTIFIER / WATCH TESTS
// =============================================================================

func TestNotifier_CoalescesSignals(t *testing.T) {
	n := ledger.NewNotifier()
	sig, cancel := n.Subscribe()
	defer cancel()

	n.Notify()
	n.Notify()
	n.Notify()

	select {
	case <-sig:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-sig:
		t.Fatal("signals should coalesce")
	default:
	}

	cancel()
	cancel()
	assert.Equal(t, 0, n.Subscribers())
}

func TestWatch_EmitsInitialAndLatest(t *testing.T) {
	// GIVEN: A watched counter
	n := ledger.NewNotifier()
	var value atomic.Int64
	load := func(context.Context) (int64, error) { return value.Load(), nil }

	ctx, cancel := context.WithCancel(context.Background())
	ch := ledger.Watch(ctx, n, load)

	// THEN: The current value is emitted immediately
	assert.Equal(t, int64(0), receive(t, ch))

	// WHEN: Several changes happen before the consumer reads
	value.Store(1)
	n.Notify()
	value.Store(2)
	n.Notify()

	// THEN: The consumer eventually sees the latest value
	got := receive(t, ch)
	if got != 2 {
		got = receive(t, ch)
	}
	assert.Equal(t, int64(2), got)

	// WHEN: The context is cancelled
	cancel()

	// THEN: The channel closes and the subscription is released
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, n.Subscribers())
}

func TestWatch_SkipsFailedLoads(t *testing.T) {
	n := ledger.NewNotifier()
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("boom")
		}
		return fmt.Sprintf("v%d", calls), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := ledger.Watch(ctx, n, load)
	assert.Equal(t, "v1", receive(t, ch))

	// The second load fails and emits nothing; the next one recovers
	n.Notify()
	var next string
	require.Eventually(t, func() bool {
		n.Notify()
		select {
		case next = <-ch:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.NotEqual(t, "v2", next)
	assert.NotEmpty(t, next)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emission")
	}
	var zero T
	return zero
}
