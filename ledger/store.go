/*
store.go - Persistence contracts for the ledger, day records and wishlist

PURPOSE:
  Defines the interface between the engines and the database. Engines
  never talk SQL; they depend on these contracts only. Implementations
  live in store/sqlite (durable) and store/memory (tests, dev).

KEY INTERFACES:
  Ledger:     Append-only transaction log plus aggregates
  Days:       One mutable DayRecord per calendar day
  Wishlist:   Wish items and immutable purchase history
  Repository: All of the above, the unit passed into WithTx
  TxStore:    Repository + atomic units + read snapshots + change
              notification + reset

APPEND-ONLY CONTRACT:
  Ledger exposes AppendTransaction and reads. There is NO update or delete
  for transactions. Only TxStore.Reset (admin) may clear them.

ATOMIC UNITS:
  WithTx runs fn against a transactional Repository. If fn returns an
  error nothing fn wrote is visible afterwards; otherwise everything is
  committed at once and subscribers are notified exactly once, but only
  when fn wrote something.

READ SNAPSHOTS:
  View runs fn against one consistent state. Writes committing meanwhile
  wait until fn returns. View never notifies; fn must only read.

ERRORS:
  Every failure of the backing store must surface as *StorageError.
  "Not found" on single-record reads is (nil, nil), never an error.
*/
package ledger

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

type Ledger interface {
	// AppendTransaction persists tx and returns its auto-assigned ID.
	// tx.ID is ignored.
	AppendTransaction(ctx context.Context, tx Transaction) (TransactionID, error)

	// Balance returns the sum of all transaction amounts (0 when empty).
	Balance(ctx context.Context) (int64, error)

	// SumPositiveForDay returns the sum of credits attributed to day.
	SumPositiveForDay(ctx context.Context, day DayKey) (int64, error)

	// Transactions lists transactions matching filter, newest first.
	Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// =============================================================================
// DAYS - Per-day earning state
// =============================================================================

type Days interface {
	// GetDay returns nil, nil when no record exists for day.
	GetDay(ctx context.Context, day DayKey) (*DayRecord, error)

	// UpsertDay replaces the record keyed by rec.Day.
	UpsertDay(ctx context.Context, rec DayRecord) error

	// DaysInRange returns records in [from, to], oldest first.
	DaysInRange(ctx context.Context, from, to DayKey) ([]DayRecord, error)
}

// =============================================================================
// WISHLIST - Items and purchase history
// =============================================================================

type Wishlist interface {
	InsertItem(ctx context.Context, item WishItem) (ItemID, error)
	UpdateItem(ctx context.Context, item WishItem) error
	DeleteItem(ctx context.Context, id ItemID) error

	// GetItem returns nil, nil when the item does not exist.
	GetItem(ctx context.Context, id ItemID) (*WishItem, error)

	// Items lists not-purchased items first, then newest first.
	Items(ctx context.Context) ([]WishItem, error)

	// FavoriteItem returns nil, nil when no item is favorite.
	FavoriteItem(ctx context.Context) (*WishItem, error)

	ClearFavorite(ctx context.Context) error
	MarkFavorite(ctx context.Context, id ItemID) error
	MarkPurchased(ctx context.Context, id ItemID) error

	AppendPurchase(ctx context.Context, entry PurchaseEntry) (PurchaseID, error)

	// Purchases lists history newest first.
	Purchases(ctx context.Context) ([]PurchaseEntry, error)
}

// Repository is everything an engine may read or write.
type Repository interface {
	Ledger
	Days
	Wishlist
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

type TxStore interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// View runs the read-only fn against a single snapshot.
	View(ctx context.Context, fn func(Repository) error) error

	// Reset clears every table. Admin only.
	Reset(ctx context.Context) error

	// Changes fires after every committed write, never after pure reads.
	Changes() *Notifier
}

// =============================================================================
// WRITE TRACKING
// =============================================================================

// WriteTracker wraps a Repository and records whether any write succeeded.
// Stores use it to skip notifications for transactions that only read.
type WriteTracker struct {
	Repository
	wrote bool
}

func TrackWrites(repo Repository) *WriteTracker {
	return &WriteTracker{Repository: repo}
}

// Wrote reports whether at least one write succeeded.
func (w *WriteTracker) Wrote() bool { return w.wrote }

func (w *WriteTracker) mark(err error) error {
	if err == nil {
		w.wrote = true
	}
	return err
}

func (w *WriteTracker) AppendTransaction(ctx context.Context, tx Transaction) (TransactionID, error) {
	id, err := w.Repository.AppendTransaction(ctx, tx)
	return id, w.mark(err)
}

func (w *WriteTracker) UpsertDay(ctx context.Context, rec DayRecord) error {
	return w.mark(w.Repository.UpsertDay(ctx, rec))
}

func (w *WriteTracker) InsertItem(ctx context.Context, item WishItem) (ItemID, error) {
	id, err := w.Repository.InsertItem(ctx, item)
	return id, w.mark(err)
}

func (w *WriteTracker) UpdateItem(ctx context.Context, item WishItem) error {
	return w.mark(w.Repository.UpdateItem(ctx, item))
}

func (w *WriteTracker) DeleteItem(ctx context.Context, id ItemID) error {
	return w.mark(w.Repository.DeleteItem(ctx, id))
}

func (w *WriteTracker) ClearFavorite(ctx context.Context) error {
	return w.mark(w.Repository.ClearFavorite(ctx))
}

func (w *WriteTracker) MarkFavorite(ctx context.Context, id ItemID) error {
	return w.mark(w.Repository.MarkFavorite(ctx, id))
}

func (w *WriteTracker) MarkPurchased(ctx context.Context, id ItemID) error {
	return w.mark(w.Repository.MarkPurchased(ctx, id))
}

func (w *WriteTracker) AppendPurchase(ctx context.Context, entry PurchaseEntry) (PurchaseID, error) {
	id, err := w.Repository.AppendPurchase(ctx, entry)
	return id, w.mark(err)
}
