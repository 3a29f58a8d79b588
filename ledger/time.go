package ledger

import (
	"sync"
	"time"
)

// =============================================================================
// DAY KEY - Canonical yyyy-MM-dd calendar day in local time
// =============================================================================

const DayKeyLayout = "2006-01-02"

// DayKey identifies a calendar day. Lexical order equals chronological order.
type DayKey string

// DayKeyOf returns the key of the calendar day containing t, in t's location.
func DayKeyOf(t time.Time) DayKey { return DayKey(t.Format(DayKeyLayout)) }

// NewDayKey builds a key from calendar components.
func NewDayKey(year int, month time.Month, day int) DayKey {
	return DayKeyOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDayKey validates s and returns it as a DayKey.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(DayKeyLayout, s)
	if err != nil {
		return "", &InvalidDayKeyError{Input: s}
	}
	return DayKeyOf(t), nil
}

func (k DayKey) String() string { return string(k) }

func (k DayKey) Valid() bool {
	_, err := time.Parse(DayKeyLayout, string(k))
	return err == nil
}

// Time returns local midnight of the day in loc.
func (k DayKey) Time(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(DayKeyLayout, string(k), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays uses calendar arithmetic, so DST transitions do not skip days.
func (k DayKey) AddDays(n int) DayKey {
	t := k.Time(time.UTC)
	if t.IsZero() {
		return k
	}
	return DayKeyOf(t.AddDate(0, 0, n))
}

func (k DayKey) Prev() DayKey { return k.AddDays(-1) }
func (k DayKey) Next() DayKey { return k.AddDays(1) }

// WeekStart returns the Monday of k's week.
func (k DayKey) WeekStart() DayKey {
	t := k.Time(time.UTC)
	if t.IsZero() {
		return k
	}
	return k.AddDays(-((int(t.Weekday()) + 6) % 7))
}

// MonthRange returns the first and last day keys of a calendar month.
func MonthRange(year int, month time.Month) (DayKey, DayKey) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return DayKeyOf(first), DayKeyOf(last)
}

// =============================================================================
// CLOCK - Injected source of "now" and of the local timezone
// =============================================================================

type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Today returns the clock's current local day key.
func Today(c Clock) DayKey { return DayKeyOf(c.Now().In(c.Location())) }

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Loc *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return SystemClock{Loc: loc}
}

func (c SystemClock) Now() time.Time { return time.Now().In(c.Location()) }

func (c SystemClock) Location() *time.Location {
	if c.Loc == nil {
		return time.Local
	}
	return c.Loc
}

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock { return &FixedClock{now: now} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Location()
}

func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AdvanceDays moves to the same wall time n calendar days later.
func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}
