/*
Package wishlist manages the things the user saves up for and buys.

PURPOSE:
  CRUD over wish items, a single favorite shown on the home screen,
  and atomic purchases that debit the ledger and snapshot the item
  into the purchase history.

PURCHASE FLOW (one store transaction):
  1. Load the item            → ErrItemNotFound
  2. Append debit "Achat: <name>" attributed to today
  3. Append PurchaseEntry snapshot (name, price, time)
  4. Mark the item purchased

  Any failure rolls back all three writes. The balance may go negative.
  RequireFunds() adds an opt-in guard inside the same transaction:
  ErrAlreadyPurchased / *InsufficientBalanceError.

NORMALIZATION:
  Names and image refs are trimmed, blank names become "Sans nom",
  negative prices become 0. Nothing is rejected.
*/
package wishlist

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/metrics"
)

// DefaultItemName replaces blank item names.
const DefaultItemName = "Sans nom"

// PurchaseLabelPrefix prefixes the ledger label of purchase debits.
const PurchaseLabelPrefix = "Achat: "

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store  ledger.TxStore
	clock  ledger.Clock
	log    *logrus.Entry
	newRef func() string
}

type Option func(*Service)

func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) { s.log = log }
}

func WithReferenceGenerator(fn func() string) Option {
	return func(s *Service) { s.newRef = fn }
}

func NewService(store ledger.TxStore, clock ledger.Clock, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  clock,
		log:    logrus.StandardLogger().WithField("component", "wishlist"),
		newRef: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storageFailure(op string, err error) error {
	if ledger.IsStorageError(err) {
		metrics.StorageErrors.WithLabelValues(op).Inc()
		s.log.WithError(err).WithField("op", op).Error("storage failure")
	}
	return err
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultItemName
	}
	return name
}

func normalizePrice(cents int64) int64 {
	if cents < 0 {
		return 0
	}
	return cents
}

// PurchaseLabel is the ledger label of the debit for an item.
func PurchaseLabel(name string) string { return PurchaseLabelPrefix + name }

// =============================================================================
// ITEMS
// =============================================================================

func (s *Service) AddItem(ctx context.Context, name, imageRef string, priceCents int64) (ledger.WishItem, error) {
	item := ledger.WishItem{
		Name:       normalizeName(name),
		ImageRef:   strings.TrimSpace(imageRef),
		PriceCents: normalizePrice(priceCents),
		CreatedAt:  s.clock.Now(),
	}
	id, err := s.store.InsertItem(ctx, item)
	if err != nil {
		return ledger.WishItem{}, s.storageFailure("insert_item", err)
	}
	item.ID = id
	s.log.WithFields(logrus.Fields{"item_id": id, "price_cents": item.PriceCents}).Info("wish item added")
	return item, nil
}

// UpdateItem changes name, image and price. Favorite and purchased flags
// are kept.
func (s *Service) UpdateItem(ctx context.Context, id ledger.ItemID, name, imageRef string, priceCents int64) (ledger.WishItem, error) {
	var updated ledger.WishItem
	err := s.store.WithTx(ctx, func(repo ledger.Repository) error {
		item, err := repo.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ledger.ErrItemNotFound
		}
		item.Name = normalizeName(name)
		item.ImageRef = strings.TrimSpace(imageRef)
		item.PriceCents = normalizePrice(priceCents)
		if err := repo.UpdateItem(ctx, *item); err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		return ledger.WishItem{}, s.storageFailure("update_item", err)
	}
	return updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, id ledger.ItemID) error {
	err := s.store.WithTx(ctx, func(repo ledger.Repository) error {
		item, err := repo.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ledger.ErrItemNotFound
		}
		return repo.DeleteItem(ctx, id)
	})
	if err != nil {
		return s.storageFailure("delete_item", err)
	}
	s.log.WithField("item_id", id).Info("wish item deleted")
	return nil
}

// SetFavorite makes id the only favorite. Unknown ids return
// ErrItemNotFound and leave the current favorite in place.
func (s *Service) SetFavorite(ctx context.Context, id ledger.ItemID) error {
	err := s.store.WithTx(ctx, func(repo ledger.Repository) error {
		item, err := repo.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ledger.ErrItemNotFound
		}
		if err := repo.ClearFavorite(ctx); err != nil {
			return err
		}
		return repo.MarkFavorite(ctx, id)
	})
	if err != nil {
		return s.storageFailure("set_favorite", err)
	}
	return nil
}

// =============================================================================
// PURCHASE
// =============================================================================

// PurchaseOption tunes a single purchase.
type PurchaseOption func(*purchaseConfig)

type purchaseConfig struct {
	requireFunds bool
}

// RequireFunds refuses the purchase when the item was already bought or
// the balance is below its price.
func RequireFunds() PurchaseOption {
	return func(c *purchaseConfig) { c.requireFunds = true }
}

// checkFunds is the RequireFunds guard, run inside the purchase transaction.
func checkFunds(ctx context.Context, repo ledger.Repository, item *ledger.WishItem, price int64) error {
	if item.IsPurchased {
		return ledger.ErrAlreadyPurchased
	}
	balance, err := repo.Balance(ctx)
	if err != nil {
		return err
	}
	if balance < price {
		return &ledger.InsufficientBalanceError{
			Available: balance,
			Requested: price,
			Shortfall: price - balance,
		}
	}
	return nil
}

// PurchaseItem debits the item's price and records the purchase atomically.
// Without options it always commits, even when the balance goes negative.
func (s *Service) PurchaseItem(ctx context.Context, id ledger.ItemID, opts ...PurchaseOption) (ledger.PurchaseEntry, error) {
	var cfg purchaseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	now := s.clock.Now()
	day := ledger.DayKeyOf(now.In(s.clock.Location()))
	ref := s.newRef()

	var entry ledger.PurchaseEntry
	err := s.store.WithTx(ctx, func(repo ledger.Repository) error {
		item, err := repo.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ledger.ErrItemNotFound
		}

		price := normalizePrice(item.PriceCents)
		if cfg.requireFunds {
			if err := checkFunds(ctx, repo, item, price); err != nil {
				return err
			}
		}

		if _, err := repo.AppendTransaction(ctx, ledger.Transaction{
			AmountCents: -price,
			Label:       PurchaseLabel(item.Name),
			Kind:        ledger.KindPurchase,
			ReferenceID: ref,
			Timestamp:   now,
			Day:         day,
		}); err != nil {
			return err
		}

		entry = ledger.PurchaseEntry{
			ItemName:    item.Name,
			PriceCents:  price,
			PurchasedAt: now,
			ReferenceID: ref,
		}
		pid, err := repo.AppendPurchase(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = pid

		return repo.MarkPurchased(ctx, id)
	})
	if err != nil {
		metrics.Purchases.WithLabelValues(purchaseOutcome(err)).Inc()
		s.log.WithError(err).WithField("item_id", id).Warn("purchase refused")
		return ledger.PurchaseEntry{}, s.storageFailure("purchase_item", err)
	}

	metrics.Purchases.WithLabelValues("ok").Inc()
	metrics.SpentCents.Add(float64(entry.PriceCents))
	s.log.WithFields(logrus.Fields{
		"item_id":      id,
		"price_cents":  entry.PriceCents,
		"reference_id": ref,
	}).Info("wish item purchased")
	return entry, nil
}

func purchaseOutcome(err error) string {
	switch {
	case ledger.IsNotFound(err):
		return "not_found"
	case errors.Is(err, ledger.ErrAlreadyPurchased):
		return "already_purchased"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}
