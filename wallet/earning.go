/*
Package wallet implements the earning side of the sport wallet.

PURPOSE:
  Converts settled activity time into currency, enforces the daily flat
  cap, grants the streak bonus once per day, and keeps one DayRecord per
  calendar day consistent with the append-only ledger.

FILES:
  earning.go:    Activity types and the flat earning calculator
  streak.go:     Streak bonus percent and amount
  restdays.go:   Weekly rest day allowance
  engine.go:     Day initialization and activity settlement
  state.go:      Read models and live observers
  projection.go: Side-effect free projection of an activity in progress
  calendar.go:   History, month summaries and day details
  admin.go:      Privileged overrides

EARNING RULES:
  Bike:     600 s per 100 cents
  Walk:     900 s per 100 cents
  Other:    900 s per 100 cents
  Rest day: 400 cents, instantly, at most 2 per Monday-Sunday week

  Earnings always round DOWN: a partially elapsed interval never
  over-credits.
*/
package wallet

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sportwallet/engine/ledger"
)

// =============================================================================
// ACTIVITY TYPES
// =============================================================================

type Activity string

const (
	ActivityBike    Activity = "bike"
	ActivityWalk    Activity = "walk"
	ActivityOther   Activity = "other"
	ActivityRestDay Activity = "rest_day"
)

// Activities lists every activity in display order.
var Activities = []Activity{ActivityBike, ActivityWalk, ActivityOther, ActivityRestDay}

// Label is the ledger label written for the activity's credit.
func (a Activity) Label() string {
	switch a {
	case ActivityBike:
		return "Vélo"
	case ActivityWalk:
		return "Marche"
	case ActivityOther:
		return "Autre"
	case ActivityRestDay:
		return "Journée Off"
	default:
		return string(a)
	}
}

func (a Activity) Valid() bool {
	switch a {
	case ActivityBike, ActivityWalk, ActivityOther, ActivityRestDay:
		return true
	}
	return false
}

// ParseActivity accepts canonical names and the legacy upper-case ones.
func ParseActivity(s string) (Activity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bike", "velo", "vélo":
		return ActivityBike, nil
	case "walk", "marche":
		return ActivityWalk, nil
	case "other", "autre":
		return ActivityOther, nil
	case "rest_day", "rest", "off_day", "off", "repos":
		return ActivityRestDay, nil
	}
	return "", unknownActivity(Activity(s))
}

func unknownActivity(a Activity) error {
	return fmt.Errorf("%w: %q", ledger.ErrUnknownActivity, string(a))
}

// ActivityFromLabel maps a ledger label back to its activity.
func ActivityFromLabel(label string) (Activity, bool) {
	switch strings.TrimSpace(label) {
	case "Vélo":
		return ActivityBike, true
	case "Marche":
		return ActivityWalk, true
	case "Autre":
		return ActivityOther, true
	case "Repos", "Journée Off":
		return ActivityRestDay, true
	}
	return "", false
}

// =============================================================================
// RULES - Earning rates
// =============================================================================

// RestDayCents is the fixed credit for a rest day.
const RestDayCents int64 = 400

// DefaultRestDaysPerWeek is how many rest days a week may credit.
const DefaultRestDaysPerWeek = 2

const centsPerUnit = 100

// Rules holds the seconds required to earn 100 cents, per timed activity.
type Rules struct {
	SecondsPerUnit map[Activity]int64
	// RestDaysPerWeek caps rest-day credits per Monday-to-Sunday week.
	RestDaysPerWeek int
}

func DefaultRules() Rules {
	return Rules{
		SecondsPerUnit: map[Activity]int64{
			ActivityBike:  600,
			ActivityWalk:  900,
			ActivityOther: 900,
		},
		RestDaysPerWeek: DefaultRestDaysPerWeek,
	}
}

// Validate checks every timed activity has a positive rate.
func (r Rules) Validate() error {
	for _, a := range []Activity{ActivityBike, ActivityWalk, ActivityOther} {
		if r.SecondsPerUnit[a] <= 0 {
			return fmt.Errorf("earning rate for %s must be positive, got %d", a, r.SecondsPerUnit[a])
		}
	}
	if r.RestDaysPerWeek < 0 || r.RestDaysPerWeek > 7 {
		return fmt.Errorf("rest days per week must be within [0,7], got %d", r.RestDaysPerWeek)
	}
	return nil
}

// FlatEarnedCents converts elapsed time to cents for the activity.
// Pure: safe to call on every UI tick.
func (r Rules) FlatEarnedCents(a Activity, elapsed time.Duration) int64 {
	if a == ActivityRestDay {
		return RestDayCents
	}
	spu, ok := r.SecondsPerUnit[a]
	if !ok || spu <= 0 {
		return 0
	}

	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > math.MaxInt64/centsPerUnit {
		ms = math.MaxInt64 / centsPerUnit
	}
	// floor(seconds * 100 / spu) in exact integer arithmetic on milliseconds
	return ms * centsPerUnit / (spu * 1000)
}

// EstimatedMinutes inverts the rate: minutes of activity worth cents.
// Returns false for activities without a time rate.
func (r Rules) EstimatedMinutes(a Activity, cents int64) (int, bool) {
	spu, ok := r.SecondsPerUnit[a]
	if !ok || spu <= 0 || a == ActivityRestDay {
		return 0, false
	}
	minutes := float64(cents) * float64(spu) / centsPerUnit / 60
	return int(math.Round(minutes)), true
}

// ComputeFlatEarnedCents applies the default rates.
func ComputeFlatEarnedCents(a Activity, elapsed time.Duration) int64 {
	return DefaultRules().FlatEarnedCents(a, elapsed)
}
