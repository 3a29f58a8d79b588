package wishlist

import (
	"context"

	"github.com/sportwallet/engine/ledger"
)

// =============================================================================
// READS
// =============================================================================

// Items lists not-purchased items first, newest first.
func (s *Service) Items(ctx context.Context) ([]ledger.WishItem, error) {
	items, err := s.store.Items(ctx)
	if err != nil {
		return nil, s.storageFailure("items", err)
	}
	return items, nil
}

// Item returns ErrItemNotFound for unknown ids.
func (s *Service) Item(ctx context.Context, id ledger.ItemID) (ledger.WishItem, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return ledger.WishItem{}, s.storageFailure("get_item", err)
	}
	if item == nil {
		return ledger.WishItem{}, ledger.ErrItemNotFound
	}
	return *item, nil
}

// Favorite returns nil when no item is favorite.
func (s *Service) Favorite(ctx context.Context) (*ledger.WishItem, error) {
	item, err := s.store.FavoriteItem(ctx)
	if err != nil {
		return nil, s.storageFailure("favorite_item", err)
	}
	return item, nil
}

// History lists purchases newest first.
func (s *Service) History(ctx context.Context) ([]ledger.PurchaseEntry, error) {
	entries, err := s.store.Purchases(ctx)
	if err != nil {
		return nil, s.storageFailure("purchases", err)
	}
	return entries, nil
}

// =============================================================================
// FAVORITE PROGRESS - Home screen goal
// =============================================================================

// Progress is how close the balance is to buying the favorite.
type Progress struct {
	Item           ledger.WishItem
	BalanceCents   int64
	RemainingCents int64
	Percent        int // 0..100
	Affordable     bool
}

// FavoriteProgress returns nil when there is no favorite.
func (s *Service) FavoriteProgress(ctx context.Context) (*Progress, error) {
	var (
		fav     *ledger.WishItem
		balance int64
	)
	err := s.store.View(ctx, func(repo ledger.Repository) error {
		var err error
		if fav, err = repo.FavoriteItem(ctx); err != nil || fav == nil {
			return err
		}
		balance, err = repo.Balance(ctx)
		return err
	})
	if err != nil {
		return nil, s.storageFailure("favorite_progress", err)
	}
	if fav == nil {
		return nil, nil
	}
	p := progressOf(*fav, balance)
	return &p, nil
}

func progressOf(item ledger.WishItem, balance int64) Progress {
	p := Progress{Item: item, BalanceCents: balance, Affordable: balance >= item.PriceCents}
	if !p.Affordable {
		p.RemainingCents = item.PriceCents - balance
	}
	switch {
	case item.PriceCents <= 0 || p.Affordable:
		p.Percent = 100
	case balance > 0:
		p.Percent = int(balance * 100 / item.PriceCents)
	}
	return p
}

// =============================================================================
// OBSERVERS
// =============================================================================

func (s *Service) ObserveItems(ctx context.Context) <-chan []ledger.WishItem {
	return ledger.Watch(ctx, s.store.Changes(), s.Items)
}

func (s *Service) ObserveFavorite(ctx context.Context) <-chan *ledger.WishItem {
	return ledger.Watch(ctx, s.store.Changes(), s.Favorite)
}

func (s *Service) ObserveHistory(ctx context.Context) <-chan []ledger.PurchaseEntry {
	return ledger.Watch(ctx, s.store.Changes(), s.History)
}

func (s *Service) ObserveFavoriteProgress(ctx context.Context) <-chan *Progress {
	return ledger.Watch(ctx, s.store.Changes(), s.FavoriteProgress)
}
