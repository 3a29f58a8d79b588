// Package memory provides an in-memory ledger.TxStore.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sportwallet/engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.Mutex
	state   state
	changes *ledger.Notifier
}

type state struct {
	transactions []ledger.Transaction
	days         map[ledger.DayKey]ledger.DayRecord
	items        map[ledger.ItemID]ledger.WishItem
	purchases    []ledger.PurchaseEntry

	nextTx       ledger.TransactionID
	nextItem     ledger.ItemID
	nextPurchase ledger.PurchaseID
}

var _ ledger.TxStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{state: newState(), changes: ledger.NewNotifier()}
}

func newState() state {
	return state{
		days:  make(map[ledger.DayKey]ledger.DayRecord),
		items: make(map[ledger.ItemID]ledger.WishItem),
	}
}

func (m *Memory) Changes() *ledger.Notifier { return m.changes }

// read runs fn under the lock against the live state.
func (m *Memory) read(fn func(v view)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(view{s: &m.state})
}

// write runs fn under the lock and notifies subscribers on success.
func (m *Memory) write(fn func(v view) error) error {
	m.mu.Lock()
	err := fn(view{s: &m.state})
	m.mu.Unlock()
	if err == nil {
		m.changes.Notify()
	}
	return err
}

// =============================================================================
// TRANSACTIONAL SUPPORT
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Subscribers hear about it only when fn wrote something.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	m.mu.Lock()
	snapshot := m.state.clone()
	repo := ledger.TrackWrites(view{s: &m.state})
	if err := fn(repo); err != nil {
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	if repo.Wrote() {
		m.changes.Notify()
	}
	return nil
}

// View runs fn under the lock, so every read sees the same state.
func (m *Memory) View(ctx context.Context, fn func(ledger.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(view{s: &m.state})
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	return m.write(func(v view) error {
		*v.s = newState()
		return nil
	})
}

func (s state) clone() state {
	c := state{
		transactions: append([]ledger.Transaction(nil), s.transactions...),
		days:         make(map[ledger.DayKey]ledger.DayRecord, len(s.days)),
		items:        make(map[ledger.ItemID]ledger.WishItem, len(s.items)),
		purchases:    append([]ledger.PurchaseEntry(nil), s.purchases...),
		nextTx:       s.nextTx,
		nextItem:     s.nextItem,
		nextPurchase: s.nextPurchase,
	}
	for k, v := range s.days {
		c.days[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	return c
}

// =============================================================================
// LOCKED DELEGATES (ledger.Repository on *Memory)
// =============================================================================

func (m *Memory) AppendTransaction(ctx context.Context, tx ledger.Transaction) (id ledger.TransactionID, err error) {
	err = m.write(func(v view) error {
		id, err = v.AppendTransaction(ctx, tx)
		return err
	})
	return id, err
}

func (m *Memory) Balance(ctx context.Context) (sum int64, err error) {
	m.read(func(v view) { sum, err = v.Balance(ctx) })
	return sum, err
}

func (m *Memory) SumPositiveForDay(ctx context.Context, day ledger.DayKey) (sum int64, err error) {
	m.read(func(v view) { sum, err = v.SumPositiveForDay(ctx, day) })
	return sum, err
}

func (m *Memory) Transactions(ctx context.Context, filter ledger.TransactionFilter) (txs []ledger.Transaction, err error) {
	m.read(func(v view) { txs, err = v.Transactions(ctx, filter) })
	return txs, err
}

func (m *Memory) GetDay(ctx context.Context, day ledger.DayKey) (rec *ledger.DayRecord, err error) {
	m.read(func(v view) { rec, err = v.GetDay(ctx, day) })
	return rec, err
}

func (m *Memory) UpsertDay(ctx context.Context, rec ledger.DayRecord) error {
	return m.write(func(v view) error { return v.UpsertDay(ctx, rec) })
}

func (m *Memory) DaysInRange(ctx context.Context, from, to ledger.DayKey) (recs []ledger.DayRecord, err error) {
	m.read(func(v view) { recs, err = v.DaysInRange(ctx, from, to) })
	return recs, err
}

func (m *Memory) InsertItem(ctx context.Context, item ledger.WishItem) (id ledger.ItemID, err error) {
	err = m.write(func(v view) error {
		id, err = v.InsertItem(ctx, item)
		return err
	})
	return id, err
}

func (m *Memory) UpdateItem(ctx context.Context, item ledger.WishItem) error {
	return m.write(func(v view) error { return v.UpdateItem(ctx, item) })
}

func (m *Memory) DeleteItem(ctx context.Context, id ledger.ItemID) error {
	return m.write(func(v view) error { return v.DeleteItem(ctx, id) })
}

func (m *Memory) GetItem(ctx context.Context, id ledger.ItemID) (item *ledger.WishItem, err error) {
	m.read(func(v view) { item, err = v.GetItem(ctx, id) })
	return item, err
}

func (m *Memory) Items(ctx context.Context) (items []ledger.WishItem, err error) {
	m.read(func(v view) { items, err = v.Items(ctx) })
	return items, err
}

func (m *Memory) FavoriteItem(ctx context.Context) (item *ledger.WishItem, err error) {
	m.read(func(v view) { item, err = v.FavoriteItem(ctx) })
	return item, err
}

func (m *Memory) ClearFavorite(ctx context.Context) error {
	return m.write(func(v view) error { return v.ClearFavorite(ctx) })
}

func (m *Memory) MarkFavorite(ctx context.Context, id ledger.ItemID) error {
	return m.write(func(v view) error { return v.MarkFavorite(ctx, id) })
}

func (m *Memory) MarkPurchased(ctx context.Context, id ledger.ItemID) error {
	return m.write(func(v view) error { return v.MarkPurchased(ctx, id) })
}

func (m *Memory) AppendPurchase(ctx context.Context, entry ledger.PurchaseEntry) (id ledger.PurchaseID, err error) {
	err = m.write(func(v view) error {
		id, err = v.AppendPurchase(ctx, entry)
		return err
	})
	return id, err
}

func (m *Memory) Purchases(ctx context.Context) (entries []ledger.PurchaseEntry, err error) {
	m.read(func(v view) { entries, err = v.Purchases(ctx) })
	return entries, err
}

// =============================================================================
// VIEW - Unlocked operations on the state (used directly inside WithTx)
// =============================================================================

type view struct {
	s *state
}

var _ ledger.Repository = view{}

func (v view) AppendTransaction(_ context.Context, tx ledger.Transaction) (ledger.TransactionID, error) {
	v.s.nextTx++
	tx.ID = v.s.nextTx
	v.s.transactions = append(v.s.transactions, tx)
	return tx.ID, nil
}

func (v view) Balance(_ context.Context) (int64, error) {
	var sum int64
	for _, tx := range v.s.transactions {
		sum += tx.AmountCents
	}
	return sum, nil
}

func (v view) SumPositiveForDay(_ context.Context, day ledger.DayKey) (int64, error) {
	var sum int64
	for _, tx := range v.s.transactions {
		if tx.Day == day && tx.AmountCents > 0 {
			sum += tx.AmountCents
		}
	}
	return sum, nil
}

func (v view) Transactions(_ context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var result []ledger.Transaction
	for _, tx := range v.s.transactions {
		if filter.Matches(tx) {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (v view) GetDay(_ context.Context, day ledger.DayKey) (*ledger.DayRecord, error) {
	rec, ok := v.s.days[day]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (v view) UpsertDay(_ context.Context, rec ledger.DayRecord) error {
	v.s.days[rec.Day] = rec
	return nil
}

func (v view) DaysInRange(_ context.Context, from, to ledger.DayKey) ([]ledger.DayRecord, error) {
	var result []ledger.DayRecord
	for k, rec := range v.s.days {
		if from <= k && k <= to {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

func (v view) InsertItem(_ context.Context, item ledger.WishItem) (ledger.ItemID, error) {
	v.s.nextItem++
	item.ID = v.s.nextItem
	v.s.items[item.ID] = item
	return item.ID, nil
}

func (v view) UpdateItem(_ context.Context, item ledger.WishItem) error {
	if _, ok := v.s.items[item.ID]; !ok {
		return nil
	}
	v.s.items[item.ID] = item
	return nil
}

func (v view) DeleteItem(_ context.Context, id ledger.ItemID) error {
	delete(v.s.items, id)
	return nil
}

func (v view) GetItem(_ context.Context, id ledger.ItemID) (*ledger.WishItem, error) {
	item, ok := v.s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (v view) Items(_ context.Context) ([]ledger.WishItem, error) {
	result := make([]ledger.WishItem, 0, len(v.s.items))
	for _, item := range v.s.items {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.IsPurchased != b.IsPurchased {
			return !a.IsPurchased
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return result, nil
}

func (v view) FavoriteItem(_ context.Context) (*ledger.WishItem, error) {
	for _, item := range v.s.items {
		if item.IsFavorite {
			return &item, nil
		}
	}
	return nil, nil
}

func (v view) ClearFavorite(_ context.Context) error {
	for id, item := range v.s.items {
		if item.IsFavorite {
			item.IsFavorite = false
			v.s.items[id] = item
		}
	}
	return nil
}

func (v view) MarkFavorite(_ context.Context, id ledger.ItemID) error {
	if item, ok := v.s.items[id]; ok {
		item.IsFavorite = true
		v.s.items[id] = item
	}
	return nil
}

func (v view) MarkPurchased(_ context.Context, id ledger.ItemID) error {
	if item, ok := v.s.items[id]; ok {
		item.IsPurchased = true
		v.s.items[id] = item
	}
	return nil
}

func (v view) AppendPurchase(_ context.Context, entry ledger.PurchaseEntry) (ledger.PurchaseID, error) {
	v.s.nextPurchase++
	entry.ID = v.s.nextPurchase
	v.s.purchases = append(v.s.purchases, entry)
	return entry.ID, nil
}

func (v view) Purchases(_ context.Context) ([]ledger.PurchaseEntry, error) {
	result := append([]ledger.PurchaseEntry(nil), v.s.purchases...)
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].PurchasedAt.Equal(result[j].PurchasedAt) {
			return result[i].PurchasedAt.After(result[j].PurchasedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}
