/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Durable storage for the wallet: the append-only transaction ledger, one
  record per calendar day, the wishlist and the purchase history.

KEY TABLES:
  transactions:     Immutable ledger of all balance changes
  daily_stats:      One row per day key (flat, streak, bonus)
  wish_items:       Wishlist
  purchase_history: Immutable purchase snapshots

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on transactions (a trigger aborts any attempt)
  - DELETE only happens through Reset (admin)

INVARIANT ENFORCEMENT:
  - CHECK constraints keep flat earnings in [0,400] and bonus in [0,50]
  - idx_single_favorite allows at most one favorite wish item

CONCURRENCY:
  Uses sync.RWMutex for writer serialization and a single pooled
  connection, so ":memory:" databases behave like files and SQLite sees
  exactly one writer.

ERRORS:
  Every database failure is returned as *ledger.StorageError.

USAGE:
  store, err := sqlite.New("./data/wallet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := wallet.NewEngine(store, ledger.NewSystemClock(time.Local))
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sportwallet/engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	queries
	db      *sql.DB
	mu      sync.RWMutex
	changes *ledger.Notifier
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db, changes: ledger.NewNotifier()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Changes() *ledger.Notifier { return s.changes }

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount_cents INTEGER NOT NULL,
		label TEXT NOT NULL,
		kind TEXT NOT NULL,
		reference_id TEXT,
		timestamp_ms INTEGER NOT NULL,
		day_key TEXT NOT NULL
	);

	-- Daily aggregation (hot path: settlement, calendar)
	CREATE INDEX IF NOT EXISTS idx_transactions_day
		ON transactions(day_key, amount_cents);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp
		ON transactions(timestamp_ms DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS trg_transactions_append_only
		BEFORE UPDATE ON transactions
	BEGIN
		SELECT RAISE(ABORT, 'transactions are append-only');
	END;

	-- One row per calendar day
	CREATE TABLE IF NOT EXISTS daily_stats (
		day_key TEXT PRIMARY KEY,
		flat_earned_cents INTEGER NOT NULL CHECK (flat_earned_cents BETWEEN 0 AND 400),
		streak_days INTEGER NOT NULL CHECK (streak_days >= 0),
		bonus_percent INTEGER NOT NULL CHECK (bonus_percent BETWEEN 0 AND 50),
		bonus_granted_cents INTEGER NOT NULL CHECK (bonus_granted_cents >= 0),
		updated_at_ms INTEGER NOT NULL
	);

	-- Wishlist
	CREATE TABLE IF NOT EXISTS wish_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		image_ref TEXT NOT NULL DEFAULT '',
		price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
		is_favorite INTEGER NOT NULL DEFAULT 0,
		is_purchased INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);

	-- CRITICAL: at most one favorite item
	CREATE UNIQUE INDEX IF NOT EXISTS idx_single_favorite
		ON wish_items(is_favorite) WHERE is_favorite = 1;

	-- Purchase history (immutable snapshots)
	CREATE TABLE IF NOT EXISTS purchase_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_name TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		purchased_at_ms INTEGER NOT NULL,
		reference_id TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED WRAPPERS (ledger.Repository on *Store)
// =============================================================================
// Reads take the read lock, writes take the write lock and notify
// subscribers once they succeed.

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.TransactionID, error) {
	s.mu.Lock()
	id, err := s.queries.AppendTransaction(ctx, tx)
	s.mu.Unlock()
	s.notifyIf(err)
	return id, err
}

func (s *Store) Balance(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.Balance(ctx)
}

func (s *Store) SumPositiveForDay(ctx context.Context, day ledger.DayKey) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.SumPositiveForDay(ctx, day)
}

func (s *Store) Transactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.Transactions(ctx, filter)
}

func (s *Store) GetDay(ctx context.Context, day ledger.DayKey) (*ledger.DayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.GetDay(ctx, day)
}

func (s *Store) UpsertDay(ctx context.Context, rec ledger.DayRecord) error {
	s.mu.Lock()
	err := s.queries.UpsertDay(ctx, rec)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) DaysInRange(ctx context.Context, from, to ledger.DayKey) ([]ledger.DayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.DaysInRange(ctx, from, to)
}

func (s *Store) InsertItem(ctx context.Context, item ledger.WishItem) (ledger.ItemID, error) {
	s.mu.Lock()
	id, err := s.queries.InsertItem(ctx, item)
	s.mu.Unlock()
	s.notifyIf(err)
	return id, err
}

func (s *Store) UpdateItem(ctx context.Context, item ledger.WishItem) error {
	s.mu.Lock()
	err := s.queries.UpdateItem(ctx, item)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) DeleteItem(ctx context.Context, id ledger.ItemID) error {
	s.mu.Lock()
	err := s.queries.DeleteItem(ctx, id)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.WishItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.GetItem(ctx, id)
}

func (s *Store) Items(ctx context.Context) ([]ledger.WishItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.Items(ctx)
}

func (s *Store) FavoriteItem(ctx context.Context) (*ledger.WishItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.FavoriteItem(ctx)
}

func (s *Store) ClearFavorite(ctx context.Context) error {
	s.mu.Lock()
	err := s.queries.ClearFavorite(ctx)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) MarkFavorite(ctx context.Context, id ledger.ItemID) error {
	s.mu.Lock()
	err := s.queries.MarkFavorite(ctx, id)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) MarkPurchased(ctx context.Context, id ledger.ItemID) error {
	s.mu.Lock()
	err := s.queries.MarkPurchased(ctx, id)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) AppendPurchase(ctx context.Context, entry ledger.PurchaseEntry) (ledger.PurchaseID, error) {
	s.mu.Lock()
	id, err := s.queries.AppendPurchase(ctx, entry)
	s.mu.Unlock()
	s.notifyIf(err)
	return id, err
}

func (s *Store) Purchases(ctx context.Context) ([]ledger.PurchaseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries.Purchases(ctx)
}

func (s *Store) notifyIf(err error) {
	if err == nil {
		s.changes.Notify()
	}
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// Subscribers are notified only when fn wrote something.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	wrote, err := s.withTx(ctx, fn)
	if err != nil {
		return err
	}
	if wrote {
		s.changes.Notify()
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(ledger.Repository) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, ledger.WrapStorage("begin transaction", err)
	}
	defer sqlTx.Rollback()

	repo := ledger.TrackWrites(queries{q: sqlTx})
	if err := fn(repo); err != nil {
		return false, err
	}

	if err := sqlTx.Commit(); err != nil {
		return false, ledger.WrapStorage("commit transaction", err)
	}
	return repo.Wrote(), nil
}

// View runs fn inside a transaction that is always rolled back. The read
// lock keeps writers out until fn returns.
func (s *Store) View(ctx context.Context, fn func(ledger.Repository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.WrapStorage("begin read", err)
	}
	defer sqlTx.Rollback()

	return fn(queries{q: sqlTx})
}

// Reset clears all data (admin).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	err := s.reset(ctx)
	s.mu.Unlock()
	s.notifyIf(err)
	return err
}

func (s *Store) reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.WrapStorage("reset", err)
	}
	defer sqlTx.Rollback()

	tables := []string{"transactions", "daily_stats", "wish_items", "purchase_history", "sqlite_sequence"}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return ledger.WrapStorage("reset "+table, err)
		}
	}
	return ledger.WrapStorage("reset", sqlTx.Commit())
}

// =============================================================================
// QUERIES - Shared by *sql.DB and *sql.Tx
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q execer
}

var _ ledger.Repository = queries{}

// AppendTransaction adds a transaction to the ledger.
func (qs queries) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.TransactionID, error) {
	res, err := qs.q.ExecContext(ctx, `
		INSERT INTO transactions (amount_cents, label, kind, reference_id, timestamp_ms, day_key)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		tx.AmountCents,
		tx.Label,
		string(tx.Kind),
		nullString(tx.ReferenceID),
		tx.Timestamp.UnixMilli(),
		string(tx.Day),
	)
	if err != nil {
		return 0, ledger.WrapStorage("append transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ledger.WrapStorage("append transaction", err)
	}
	return ledger.TransactionID(id), nil
}

func (qs queries) Balance(ctx context.Context) (int64, error) {
	var sum int64
	err := qs.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM transactions",
	).Scan(&sum)
	return sum, ledger.WrapStorage("balance", err)
}

func (qs queries) SumPositiveForDay(ctx context.Context, day ledger.DayKey) (int64, error) {
	var sum int64
	err := qs.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE day_key = ? AND amount_cents > 0",
		string(day),
	).Scan(&sum)
	return sum, ledger.WrapStorage("sum positive for day", err)
}

// Transactions returns matching transactions, newest first.
func (qs queries) Transactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT id, amount_cents, label, kind, reference_id, timestamp_ms, day_key
		FROM transactions
		WHERE 1 = 1`
	var args []any
	if filter.From != "" {
		query += " AND day_key >= ?"
		args = append(args, string(filter.From))
	}
	if filter.To != "" {
		query += " AND day_key <= ?"
		args = append(args, string(filter.To))
	}
	if filter.PositiveOnly {
		query += " AND amount_cents > 0"
	}
	query += " ORDER BY timestamp_ms DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.WrapStorage("query transactions", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		var (
			tx          ledger.Transaction
			kind        string
			referenceID sql.NullString
			timestampMs int64
			day         string
		)
		if err := rows.Scan(&tx.ID, &tx.AmountCents, &tx.Label, &kind, &referenceID, &timestampMs, &day); err != nil {
			return nil, ledger.WrapStorage("scan transaction", err)
		}
		tx.Kind = ledger.TransactionKind(kind)
		tx.ReferenceID = referenceID.String
		tx.Timestamp = time.UnixMilli(timestampMs)
		tx.Day = ledger.DayKey(day)
		transactions = append(transactions, tx)
	}

	return transactions, ledger.WrapStorage("query transactions", rows.Err())
}

// GetDay retrieves a day record by key.
func (qs queries) GetDay(ctx context.Context, day ledger.DayKey) (*ledger.DayRecord, error) {
	var (
		rec       ledger.DayRecord
		key       string
		updatedAt int64
	)
	err := qs.q.QueryRowContext(ctx, `
		SELECT day_key, flat_earned_cents, streak_days, bonus_percent, bonus_granted_cents, updated_at_ms
		FROM daily_stats WHERE day_key = ?
	`, string(day)).Scan(&key, &rec.FlatEarnedCents, &rec.StreakDays, &rec.BonusPercent, &rec.BonusGrantedCents, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledger.WrapStorage("get day", err)
	}

	rec.Day = ledger.DayKey(key)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

// UpsertDay replaces the record for rec.Day.
func (qs queries) UpsertDay(ctx context.Context, rec ledger.DayRecord) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO daily_stats (day_key, flat_earned_cents, streak_days, bonus_percent, bonus_granted_cents, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day_key) DO UPDATE SET
			flat_earned_cents = excluded.flat_earned_cents,
			streak_days = excluded.streak_days,
			bonus_percent = excluded.bonus_percent,
			bonus_granted_cents = excluded.bonus_granted_cents,
			updated_at_ms = excluded.updated_at_ms
	`,
		string(rec.Day), rec.FlatEarnedCents, rec.StreakDays, rec.BonusPercent,
		rec.BonusGrantedCents, rec.UpdatedAt.UnixMilli(),
	)
	return ledger.WrapStorage("upsert day", err)
}

func (qs queries) DaysInRange(ctx context.Context, from, to ledger.DayKey) ([]ledger.DayRecord, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT day_key, flat_earned_cents, streak_days, bonus_percent, bonus_granted_cents, updated_at_ms
		FROM daily_stats
		WHERE day_key >= ? AND day_key <= ?
		ORDER BY day_key ASC
	`, string(from), string(to))
	if err != nil {
		return nil, ledger.WrapStorage("days in range", err)
	}
	defer rows.Close()

	var records []ledger.DayRecord
	for rows.Next() {
		var (
			rec       ledger.DayRecord
			key       string
			updatedAt int64
		)
		if err := rows.Scan(&key, &rec.FlatEarnedCents, &rec.StreakDays, &rec.BonusPercent, &rec.BonusGrantedCents, &updatedAt); err != nil {
			return nil, ledger.WrapStorage("scan day", err)
		}
		rec.Day = ledger.DayKey(key)
		rec.UpdatedAt = time.UnixMilli(updatedAt)
		records = append(records, rec)
	}
	return records, ledger.WrapStorage("days in range", rows.Err())
}

// =============================================================================
// WISHLIST
// =============================================================================

const itemColumns = "id, name, image_ref, price_cents, is_favorite, is_purchased, created_at_ms"

func (qs queries) InsertItem(ctx context.Context, item ledger.WishItem) (ledger.ItemID, error) {
	res, err := qs.q.ExecContext(ctx, `
		INSERT INTO wish_items (name, image_ref, price_cents, is_favorite, is_purchased, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.Name, item.ImageRef, item.PriceCents, item.IsFavorite, item.IsPurchased, item.CreatedAt.UnixMilli())
	if err != nil {
		return 0, ledger.WrapStorage("insert item", err)
	}
	id, err := res.LastInsertId()
	return ledger.ItemID(id), ledger.WrapStorage("insert item", err)
}

func (qs queries) UpdateItem(ctx context.Context, item ledger.WishItem) error {
	_, err := qs.q.ExecContext(ctx, `
		UPDATE wish_items
		SET name = ?, image_ref = ?, price_cents = ?, is_favorite = ?, is_purchased = ?
		WHERE id = ?
	`, item.Name, item.ImageRef, item.PriceCents, item.IsFavorite, item.IsPurchased, int64(item.ID))
	return ledger.WrapStorage("update item", err)
}

func (qs queries) DeleteItem(ctx context.Context, id ledger.ItemID) error {
	_, err := qs.q.ExecContext(ctx, "DELETE FROM wish_items WHERE id = ?", int64(id))
	return ledger.WrapStorage("delete item", err)
}

func (qs queries) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.WishItem, error) {
	items, err := qs.queryItems(ctx, "SELECT "+itemColumns+" FROM wish_items WHERE id = ?", int64(id))
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (qs queries) Items(ctx context.Context) ([]ledger.WishItem, error) {
	return qs.queryItems(ctx,
		"SELECT "+itemColumns+" FROM wish_items ORDER BY is_purchased ASC, created_at_ms DESC, id DESC")
}

func (qs queries) FavoriteItem(ctx context.Context) (*ledger.WishItem, error) {
	items, err := qs.queryItems(ctx, "SELECT "+itemColumns+" FROM wish_items WHERE is_favorite = 1 LIMIT 1")
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (qs queries) ClearFavorite(ctx context.Context) error {
	_, err := qs.q.ExecContext(ctx, "UPDATE wish_items SET is_favorite = 0 WHERE is_favorite = 1")
	return ledger.WrapStorage("clear favorite", err)
}

func (qs queries) MarkFavorite(ctx context.Context, id ledger.ItemID) error {
	_, err := qs.q.ExecContext(ctx, "UPDATE wish_items SET is_favorite = 1 WHERE id = ?", int64(id))
	return ledger.WrapStorage("mark favorite", err)
}

func (qs queries) MarkPurchased(ctx context.Context, id ledger.ItemID) error {
	_, err := qs.q.ExecContext(ctx, "UPDATE wish_items SET is_purchased = 1 WHERE id = ?", int64(id))
	return ledger.WrapStorage("mark purchased", err)
}

func (qs queries) queryItems(ctx context.Context, query string, args ...any) ([]ledger.WishItem, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.WrapStorage("query items", err)
	}
	defer rows.Close()

	var items []ledger.WishItem
	for rows.Next() {
		var (
			item      ledger.WishItem
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.ImageRef, &item.PriceCents,
			&item.IsFavorite, &item.IsPurchased, &createdAt); err != nil {
			return nil, ledger.WrapStorage("scan item", err)
		}
		item.CreatedAt = time.UnixMilli(createdAt)
		items = append(items, item)
	}
	return items, ledger.WrapStorage("query items", rows.Err())
}

func (qs queries) AppendPurchase(ctx context.Context, entry ledger.PurchaseEntry) (ledger.PurchaseID, error) {
	res, err := qs.q.ExecContext(ctx, `
		INSERT INTO purchase_history (item_name, price_cents, purchased_at_ms, reference_id)
		VALUES (?, ?, ?, ?)
	`, entry.ItemName, entry.PriceCents, entry.PurchasedAt.UnixMilli(), nullString(entry.ReferenceID))
	if err != nil {
		return 0, ledger.WrapStorage("append purchase", err)
	}
	id, err := res.LastInsertId()
	return ledger.PurchaseID(id), ledger.WrapStorage("append purchase", err)
}

func (qs queries) Purchases(ctx context.Context) ([]ledger.PurchaseEntry, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT id, item_name, price_cents, purchased_at_ms, reference_id
		FROM purchase_history
		ORDER BY purchased_at_ms DESC, id DESC
	`)
	if err != nil {
		return nil, ledger.WrapStorage("query purchases", err)
	}
	defer rows.Close()

	var entries []ledger.PurchaseEntry
	for rows.Next() {
		var (
			e           ledger.PurchaseEntry
			purchasedAt int64
			referenceID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ItemName, &e.PriceCents, &purchasedAt, &referenceID); err != nil {
			return nil, ledger.WrapStorage("scan purchase", err)
		}
		e.PurchasedAt = time.UnixMilli(purchasedAt)
		e.ReferenceID = referenceID.String
		entries = append(entries, e)
	}
	return entries, ledger.WrapStorage("query purchases", rows.Err())
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
