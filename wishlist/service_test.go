package wishlist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/store/memory"
	"github.com/sportwallet/engine/store/sqlite"
	"github.com/sportwallet/engine/wishlist"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var may10 = time.Date(2024, time.May, 10, 18, 30, 0, 0, time.UTC)

func newService(t *testing.T, store ledger.TxStore) (*wishlist.Service, *ledger.FixedClock) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	clock := ledger.NewFixedClock(may10)
	svc := wishlist.NewService(store, clock,
		wishlist.WithLogger(logger.WithField("component", "wishlist")),
		wishlist.WithReferenceGenerator(func() string { return "ref-purchase" }),
	)
	return svc, clock
}

func fund(t *testing.T, store ledger.TxStore, cents int64) {
	t.Helper()
	_, err := store.AppendTransaction(context.Background(), ledger.Transaction{
		AmountCents: cents,
		Label:       "Vélo",
		Kind:        ledger.KindActivity,
		Timestamp:   may10.Add(-time.Hour),
		Day:         "2024-05-10",
	})
	require.NoError(t, err)
}

// =============================================================================
// ITEMS
// =============================================================================

func TestAddItem_Normalizes(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, "   ", " https://img/1.png ", -500)
	require.NoError(t, err)

	assert.Equal(t, wishlist.DefaultItemName, item.Name)
	assert.Equal(t, "https://img/1.png", item.ImageRef)
	assert.Equal(t, int64(0), item.PriceCents)
	assert.False(t, item.IsFavorite)
	assert.False(t, item.IsPurchased)
	assert.NotZero(t, item.ID)

	stored, err := svc.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Name, stored.Name)
}

func TestUpdateItem_KeepsFlags(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, "Casque", "", 5000)
	require.NoError(t, err)
	require.NoError(t, svc.SetFavorite(ctx, item.ID))

	updated, err := svc.UpdateItem(ctx, item.ID, "Casque route", "img", 4500)
	require.NoError(t, err)

	assert.Equal(t, "Casque route", updated.Name)
	assert.Equal(t, int64(4500), updated.PriceCents)
	assert.True(t, updated.IsFavorite)

	_, err = svc.UpdateItem(ctx, 999, "x", "", 1)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
}

func TestDeleteItem(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, "Gourde", "", 1500)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, item.ID))
	_, err = svc.Item(ctx, item.ID)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
	assert.ErrorIs(t, svc.DeleteItem(ctx, item.ID), ledger.ErrItemNotFound)
}

func TestSetFavorite_SingleFavorite(t *testing.T) {
	for name, store := range map[string]func(t *testing.T) ledger.TxStore{
		"memory": func(*testing.T) ledger.TxStore { return memory.New() },
		"sqlite": func(t *testing.T) ledger.TxStore {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			// GIVEN: Three items
			svc, _ := newService(t, store(t))
			ctx := context.Background()
			var ids []ledger.ItemID
			for _, n := range []string{"a", "b", "c"} {
				item, err := svc.AddItem(ctx, n, "", 100)
				require.NoError(t, err)
				ids = append(ids, item.ID)
			}

			// WHEN: Marking favorites one after the other
			for _, id := range ids {
				require.NoError(t, svc.SetFavorite(ctx, id))
			}

			// THEN: Only the last one is favorite
			items, err := svc.Items(ctx)
			require.NoError(t, err)
			favorites := 0
			for _, item := range items {
				if item.IsFavorite {
					favorites++
					assert.Equal(t, ids[2], item.ID)
				}
			}
			assert.Equal(t, 1, favorites)

			fav, err := svc.Favorite(ctx)
			require.NoError(t, err)
			require.NotNil(t, fav)
			assert.Equal(t, ids[2], fav.ID)

			// Unknown ids leave the favorite alone
			assert.ErrorIs(t, svc.SetFavorite(ctx, 999), ledger.ErrItemNotFound)
			fav, err = svc.Favorite(ctx)
			require.NoError(t, err)
			assert.Equal(t, ids[2], fav.ID)
		})
	}
}

// =============================================================================
// PURCHASE
// =============================================================================

func TestPurchaseItem_ExactBalanceDebitsToZero(t *testing.T) {
	// GIVEN: A 300-cent item and exactly 300 cents
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	svc, _ := newService(t, store)
	ctx := context.Background()

	fund(t, store, 300)
	item, err := svc.AddItem(ctx, "Gants", "", 300)
	require.NoError(t, err)

	// WHEN: Buying it
	entry, err := svc.PurchaseItem(ctx, item.ID)
	require.NoError(t, err)

	// THEN: Balance 0, one -300 debit, one history entry, item purchased
	balance, err := store.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	txs, err := store.Transactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-300), txs[0].AmountCents)
	assert.Equal(t, "Achat: Gants", txs[0].Label)
	assert.Equal(t, ledger.KindPurchase, txs[0].Kind)
	assert.Equal(t, ledger.DayKey("2024-05-10"), txs[0].Day)
	assert.Equal(t, "ref-purchase", txs[0].ReferenceID)

	history, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entry.ID, history[0].ID)
	assert.Equal(t, "Gants", history[0].ItemName)
	assert.Equal(t, int64(300), history[0].PriceCents)
	assert.Equal(t, "ref-purchase", history[0].ReferenceID)

	bought, err := svc.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, bought.IsPurchased)
}

func TestPurchase_SnapshotSurvivesItemChanges(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	fund(t, store, 1000)
	item, err := svc.AddItem(ctx, "Casque", "", 800)
	require.NoError(t, err)
	_, err = svc.PurchaseItem(ctx, item.ID)
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, item.ID, "Renamed", "", 1)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(ctx, item.ID))

	history, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Casque", history[0].ItemName)
	assert.Equal(t, int64(800), history[0].PriceCents)
}

func TestPurchase_BelowBalanceStillCommits(t *testing.T) {
	// GIVEN: A 500-cent item and only 300 cents
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	fund(t, store, 300)
	item, err := svc.AddItem(ctx, "Casque", "", 500)
	require.NoError(t, err)

	// WHEN: Buying it without a guard
	_, err = svc.PurchaseItem(ctx, item.ID)
	require.NoError(t, err)

	// THEN: The balance goes negative and every write is there
	balance, err := store.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-200), balance)
	history, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	bought, err := svc.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, bought.IsPurchased)

	// Buying it again debits again
	_, err = svc.PurchaseItem(ctx, item.ID)
	require.NoError(t, err)
	balance, err = store.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-700), balance)

	_, err = svc.PurchaseItem(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
}

func TestPurchase_RequireFunds(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	fund(t, store, 500)
	cheap, err := svc.AddItem(ctx, "Gourde", "", 400)
	require.NoError(t, err)
	pricey, err := svc.AddItem(ctx, "Vélo", "", 90000)
	require.NoError(t, err)

	t.Run("insufficient balance", func(t *testing.T) {
		_, err := svc.PurchaseItem(ctx, pricey.ID, wishlist.RequireFunds())

		var short *ledger.InsufficientBalanceError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, int64(500), short.Available)
		assert.Equal(t, int64(90000), short.Requested)
		assert.Equal(t, int64(89500), short.Shortfall)
		assert.True(t, ledger.IsClientError(err))
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := svc.PurchaseItem(ctx, 999, wishlist.RequireFunds())
		assert.ErrorIs(t, err, ledger.ErrItemNotFound)
	})

	t.Run("already purchased", func(t *testing.T) {
		_, err := svc.PurchaseItem(ctx, cheap.ID, wishlist.RequireFunds())
		require.NoError(t, err)

		_, err = svc.PurchaseItem(ctx, cheap.ID, wishlist.RequireFunds())
		assert.ErrorIs(t, err, ledger.ErrAlreadyPurchased)
	})

	// Refusals never touched the ledger
	balance, err := store.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	history, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPurchase_FreeItem(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, "Cadeau", "", 0)
	require.NoError(t, err)

	entry, err := svc.PurchaseItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.PriceCents)
}

// =============================================================================
// ATOMICITY
// =============================================================================

var errDisk = errors.New("disk full")

// flakyStore fails MarkPurchased, the last write of a purchase.
type flakyStore struct {
	*memory.Memory
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	return s.Memory.WithTx(ctx, func(repo ledger.Repository) error {
		return fn(flakyRepo{repo})
	})
}

type flakyRepo struct {
	ledger.Repository
}

func (flakyRepo) MarkPurchased(context.Context, ledger.ItemID) error {
	return ledger.WrapStorage("mark purchased", errDisk)
}

func TestPurchase_AllOrNothing(t *testing.T) {
	// GIVEN: Enough balance but a store failing on the final write
	store := &flakyStore{Memory: memory.New()}
	svc, _ := newService(t, store)
	ctx := context.Background()

	fund(t, store, 1000)
	item, err := svc.AddItem(ctx, "Casque", "", 600)
	require.NoError(t, err)

	// WHEN: Buying
	_, err = svc.PurchaseItem(ctx, item.ID)

	// THEN: A storage error and no partial state
	assert.ErrorIs(t, err, ledger.ErrStorage)
	balance, _ := store.Balance(ctx)
	assert.Equal(t, int64(1000), balance)
	history, _ := svc.History(ctx)
	assert.Empty(t, history)
	stored, _ := svc.Item(ctx, item.ID)
	assert.False(t, stored.IsPurchased)
}

// =============================================================================
// PROGRESS & OBSERVERS
// =============================================================================

func TestFavoriteProgress(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	p, err := svc.FavoriteProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	item, err := svc.AddItem(ctx, "Casque", "", 2000)
	require.NoError(t, err)
	require.NoError(t, svc.SetFavorite(ctx, item.ID))
	fund(t, store, 500)

	p, err = svc.FavoriteProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 25, p.Percent)
	assert.Equal(t, int64(1500), p.RemainingCents)
	assert.False(t, p.Affordable)

	fund(t, store, 1600)
	p, err = svc.FavoriteProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Percent)
	assert.Equal(t, int64(0), p.RemainingCents)
	assert.True(t, p.Affordable)
}

func TestObservers(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items := svc.ObserveItems(ctx)
	favorite := svc.ObserveFavorite(ctx)
	history := svc.ObserveHistory(ctx)
	progress := svc.ObserveFavoriteProgress(ctx)

	item, err := svc.AddItem(ctx, "Gourde", "", 100)
	require.NoError(t, err)
	require.NoError(t, svc.SetFavorite(ctx, item.ID))
	fund(t, store, 100)
	_, err = svc.PurchaseItem(ctx, item.ID)
	require.NoError(t, err)

	waitFor(t, items, func(v []ledger.WishItem) bool { return len(v) == 1 && v[0].IsPurchased })
	waitFor(t, favorite, func(v *ledger.WishItem) bool { return v != nil && v.IsPurchased })
	waitFor(t, history, func(v []ledger.PurchaseEntry) bool { return len(v) == 1 })
	waitFor(t, progress, func(v *wishlist.Progress) bool { return v != nil && v.BalanceCents == 0 })
}

func waitFor[T any](t *testing.T, ch <-chan T, ok func(T) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, open := <-ch:
			require.True(t, open, "channel closed")
			if ok(v) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for emission")
		}
	}
}
