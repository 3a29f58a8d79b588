package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/store/memory"
)

var noon = time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

func TestMemory_LedgerAggregates(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	for i, cents := range []int64{150, 250, -100} {
		_, err := m.AppendTransaction(ctx, ledger.Transaction{
			AmountCents: cents,
			Timestamp:   noon.Add(time.Duration(i) * time.Minute),
			Day:         "2024-05-10",
		})
		require.NoError(t, err)
	}

	balance, err := m.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	earned, err := m.SumPositiveForDay(ctx, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, int64(400), earned)

	txs, err := m.Transactions(ctx, ledger.TransactionFilter{PositiveOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(250), txs[0].AmountCents)
	assert.Equal(t, ledger.TransactionID(2), txs[0].ID)
}

func TestMemory_WithTx_Rollback(t *testing.T) {
	// GIVEN: Existing data and a failing transaction touching all of it
	m := memory.New()
	ctx := context.Background()
	id, err := m.InsertItem(ctx, ledger.WishItem{Name: "Casque", PriceCents: 100, CreatedAt: noon})
	require.NoError(t, err)

	sig, cancel := m.Changes().Subscribe()
	defer cancel()

	boom := errors.New("boom")
	err = m.WithTx(ctx, func(repo ledger.Repository) error {
		_, _ = repo.AppendTransaction(ctx, ledger.Transaction{AmountCents: -100, Day: "2024-05-10"})
		_ = repo.MarkPurchased(ctx, id)
		_ = repo.UpsertDay(ctx, ledger.DayRecord{Day: "2024-05-10", FlatEarnedCents: 400})
		return boom
	})

	// THEN: The error comes back as-is and the snapshot is restored
	assert.Same(t, boom, err)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.False(t, item.IsPurchased)
	balance, _ := m.Balance(ctx)
	assert.Equal(t, int64(0), balance)
	rec, _ := m.GetDay(ctx, "2024-05-10")
	assert.Nil(t, rec)

	select {
	case <-sig:
		t.Fatal("rollback must not notify")
	default:
	}
}

func TestMemory_ItemsOrder(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	a, _ := m.InsertItem(ctx, ledger.WishItem{Name: "a", CreatedAt: noon})
	b, _ := m.InsertItem(ctx, ledger.WishItem{Name: "b", CreatedAt: noon.Add(time.Hour)})
	c, _ := m.InsertItem(ctx, ledger.WishItem{Name: "c", CreatedAt: noon.Add(2 * time.Hour)})
	require.NoError(t, m.MarkPurchased(ctx, c))

	items, err := m.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []ledger.ItemID{b, a, c}, []ledger.ItemID{items[0].ID, items[1].ID, items[2].ID})
}

func TestMemory_Reset(t *testing.T) {
	m := memory.New()
	ctx := context.Background()
	_, _ = m.AppendTransaction(ctx, ledger.Transaction{AmountCents: 100, Day: "2024-05-10"})
	_, _ = m.AppendPurchase(ctx, ledger.PurchaseEntry{ItemName: "x"})

	require.NoError(t, m.Reset(ctx))

	balance, _ := m.Balance(ctx)
	assert.Equal(t, int64(0), balance)
	entries, _ := m.Purchases(ctx)
	assert.Empty(t, entries)

	id, _ := m.AppendTransaction(ctx, ledger.Transaction{AmountCents: 1})
	assert.Equal(t, ledger.TransactionID(1), id)
}

func TestMemory_WithTx_NotifiesOnlyOnWrites(t *testing.T) {
	m := memory.New()
	ctx := context.Background()
	sig, cancel := m.Changes().Subscribe()
	defer cancel()

	// GIVEN: A transaction that only reads
	err := m.WithTx(ctx, func(repo ledger.Repository) error {
		_, err := repo.Balance(ctx)
		return err
	})
	require.NoError(t, err)

	// THEN: No signal
	select {
	case <-sig:
		t.Fatal("read-only transaction must not notify")
	default:
	}

	// WHEN: A transaction that writes
	err = m.WithTx(ctx, func(repo ledger.Repository) error {
		return repo.UpsertDay(ctx, ledger.DayRecord{Day: "2024-05-10"})
	})
	require.NoError(t, err)

	// THEN: One signal
	select {
	case <-sig:
	default:
		t.Fatal("commit should notify subscribers")
	}
}

func TestMemory_ViewHoldsWritersBack(t *testing.T) {
	// GIVEN: A view that starts a concurrent write between two reads
	m := memory.New()
	ctx := context.Background()
	done := make(chan error, 1)

	var before, after int64
	err := m.View(ctx, func(repo ledger.Repository) error {
		var err error
		if before, err = repo.Balance(ctx); err != nil {
			return err
		}
		go func() {
			_, err := m.AppendTransaction(ctx, ledger.Transaction{AmountCents: 100, Day: "2024-05-10"})
			done <- err
		}()
		time.Sleep(20 * time.Millisecond)
		after, err = repo.Balance(ctx)
		return err
	})
	require.NoError(t, err)

	// THEN: Both reads saw the same state and the write landed afterwards
	assert.Equal(t, before, after)
	require.NoError(t, <-done)
	balance, err := m.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}
