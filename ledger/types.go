/*
Package ledger provides the storage-facing core of the sport wallet.

PURPOSE:
  This package holds the record types shared by the wallet and wishlist
  engines, the contracts a durable store must satisfy, and the small
  amount of plumbing every engine needs (day keys, clocks, change
  notification, error taxonomy).

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: An immutable ledger entry (credit or debit in cents)
  - DayRecord:   The mutable per-day earning state (flat, streak, bonus)
  - WishItem:    Something the user saves up for
  - PurchaseEntry: Immutable snapshot of a completed purchase

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only appended
  2. Derivation: Balance is the sum of all transactions, never stored
  3. Integer cents: All amounts are int64 cents, no floating point
  4. Day scoping: Every transaction is attributed to a DayKey

USAGE:
  tx := ledger.Transaction{
      AmountCents: 100,
      Label:       "Vélo",
      Kind:        ledger.KindActivity,
      Day:         ledger.DayKeyOf(clock.Now()),
      Timestamp:   clock.Now(),
  }
  id, err := store.AppendTransaction(ctx, tx)

SEE ALSO:
  - store.go: Persistence contracts
  - time.go: DayKey and Clock
  - errors.go: StorageError and sentinels
*/
package ledger

import "time"

// =============================================================================
// EARNING CONSTANTS
// =============================================================================

const (
	// DailyFlatCapCents is the most flat (non-bonus) currency a single day can earn.
	DailyFlatCapCents int64 = 400

	// MaxBonusPercent caps the streak bonus.
	MaxBonusPercent = 50
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID int64
type ItemID int64
type PurchaseID int64

// =============================================================================
// TRANSACTION - Append-only ledger entry
// =============================================================================

type TransactionKind string

const (
	KindActivity TransactionKind = "activity" // Flat earning from a settled activity
	KindBonus    TransactionKind = "bonus"    // Streak bonus, at most one per day
	KindPurchase TransactionKind = "purchase" // Wishlist purchase debit
	KindAdmin    TransactionKind = "admin"    // Manual admin credit or debit
)

type Transaction struct {
	ID          TransactionID
	AmountCents int64 // + credit, - debit
	Label       string
	Kind        TransactionKind
	ReferenceID string // shared by all writes of one atomic operation
	Timestamp   time.Time
	Day         DayKey // attribution day, used for daily aggregation
}

// TransactionFilter narrows a transaction listing.
// Zero values mean "no constraint". Results are newest first.
type TransactionFilter struct {
	From         DayKey
	To           DayKey
	PositiveOnly bool
	Limit        int
}

// Matches reports whether tx satisfies the day and sign constraints of f.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.From != "" && tx.Day < f.From {
		return false
	}
	if f.To != "" && tx.Day > f.To {
		return false
	}
	if f.PositiveOnly && tx.AmountCents <= 0 {
		return false
	}
	return true
}

// =============================================================================
// DAY RECORD - One per calendar day
// =============================================================================

// DayRecord is the earning state of one calendar day.
//
// INVARIANTS:
//   - 0 <= FlatEarnedCents <= DailyFlatCapCents
//   - 0 <= BonusPercent <= MaxBonusPercent, frozen once the day is created
//   - BonusGrantedCents is 0 until the bonus is paid, then never changes
type DayRecord struct {
	Day               DayKey
	FlatEarnedCents   int64
	StreakDays        int
	BonusPercent      int
	BonusGrantedCents int64
	UpdatedAt         time.Time
}

// ReachedCap reports whether the day's flat earning hit the daily cap.
func (d DayRecord) ReachedCap() bool { return d.FlatEarnedCents >= DailyFlatCapCents }

// RemainingFlatCents is the headroom left before the daily cap.
func (d DayRecord) RemainingFlatCents() int64 {
	if d.FlatEarnedCents >= DailyFlatCapCents {
		return 0
	}
	return DailyFlatCapCents - d.FlatEarnedCents
}

// =============================================================================
// WISHLIST
// =============================================================================

type WishItem struct {
	ID          ItemID
	Name        string
	ImageRef    string
	PriceCents  int64
	IsFavorite  bool
	IsPurchased bool
	CreatedAt   time.Time
}

// PurchaseEntry is immutable and independent of later changes to the item.
type PurchaseEntry struct {
	ID          PurchaseID
	ItemName    string
	PriceCents  int64
	PurchasedAt time.Time
	ReferenceID string
}
