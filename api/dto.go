/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the wallet and wishlist models from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Every amount is sent twice: integer cents (authoritative) and a
  display string ("4,00 €").

VALIDATION:
  Done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/wallet"
	"github.com/sportwallet/engine/wishlist"
)

// =============================================================================
// WALLET
// =============================================================================

type WalletStateDTO struct {
	BalanceCents       int64  `json:"balance_cents"`
	Balance            string `json:"balance"`
	Day                string `json:"day"`
	DayFlatCents       int64  `json:"day_flat_cents"`
	RemainingFlatCents int64  `json:"remaining_flat_cents"`
	StreakDays         int    `json:"streak_days"`
	BonusPercent       int    `json:"bonus_percent"`
	BonusGrantedCents  int64  `json:"bonus_granted_cents"`
	TotalMaxCents      int64  `json:"total_max_cents"`
	RestDaysRemaining  int    `json:"rest_days_remaining"`
}

func toWalletStateDTO(s wallet.WalletState) WalletStateDTO {
	return WalletStateDTO{
		BalanceCents:       s.BalanceCents,
		Balance:            ledger.FormatCents(s.BalanceCents),
		Day:                s.Day.String(),
		DayFlatCents:       s.DayFlatCents,
		RemainingFlatCents: s.RemainingFlatCents(),
		StreakDays:         s.StreakDays,
		BonusPercent:       s.BonusPercent,
		BonusGrantedCents:  s.BonusGrantedCents,
		TotalMaxCents:      s.TotalMaxCents(),
		RestDaysRemaining:  s.RestDaysRemaining,
	}
}

type BalanceDTO struct {
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

type DayRecordDTO struct {
	Day               string `json:"day"`
	FlatEarnedCents   int64  `json:"flat_earned_cents"`
	StreakDays        int    `json:"streak_days"`
	BonusPercent      int    `json:"bonus_percent"`
	BonusGrantedCents int64  `json:"bonus_granted_cents"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func toDayRecordDTO(rec ledger.DayRecord) DayRecordDTO {
	dto := DayRecordDTO{
		Day:               rec.Day.String(),
		FlatEarnedCents:   rec.FlatEarnedCents,
		StreakDays:        rec.StreakDays,
		BonusPercent:      rec.BonusPercent,
		BonusGrantedCents: rec.BonusGrantedCents,
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// ActivityRequest is the body of stop and projection calls.
type ActivityRequest struct {
	Activity  string `json:"activity"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type SettlementDTO struct {
	Activity      string       `json:"activity"`
	RawCents      int64        `json:"raw_cents"`
	CreditedCents int64        `json:"credited_cents"`
	BonusCents    int64        `json:"bonus_cents"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	Day           DayRecordDTO `json:"day"`
}

func toSettlementDTO(s wallet.Settlement) SettlementDTO {
	return SettlementDTO{
		Activity:      string(s.Activity),
		RawCents:      s.RawCents,
		CreditedCents: s.CreditedCents,
		BonusCents:    s.BonusCents,
		ReferenceID:   s.ReferenceID,
		Day:           toDayRecordDTO(s.Day),
	}
}

type ProjectionDTO struct {
	Activity              string `json:"activity"`
	ElapsedMs             int64  `json:"elapsed_ms"`
	RawCents              int64  `json:"raw_cents"`
	CreditedCents         int64  `json:"credited_cents"`
	ProjectedFlatCents    int64  `json:"projected_flat_cents"`
	ProjectedBalanceCents int64  `json:"projected_balance_cents"`
	ProjectedBalance      string `json:"projected_balance"`
	BonusTriggered        bool   `json:"bonus_triggered"`
	BonusCents            int64  `json:"bonus_cents"`
	CapReached            bool   `json:"cap_reached"`
	RestDayRefused        bool   `json:"rest_day_refused"`
}

func toProjectionDTO(p wallet.Projection) ProjectionDTO {
	return ProjectionDTO{
		Activity:              string(p.Activity),
		ElapsedMs:             p.Elapsed.Milliseconds(),
		RawCents:              p.RawCents,
		CreditedCents:         p.CreditedCents,
		ProjectedFlatCents:    p.ProjectedFlatCents,
		ProjectedBalanceCents: p.ProjectedBalanceCents,
		ProjectedBalance:      ledger.FormatCents(p.ProjectedBalanceCents),
		BonusTriggered:        p.BonusTriggered,
		BonusCents:            p.BonusCents,
		CapReached:            p.CapReached,
		RestDayRefused:        p.RestDayRefused,
	}
}

// =============================================================================
// HISTORY & CALENDAR
// =============================================================================

type TransactionDTO struct {
	ID          int64  `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Label       string `json:"label"`
	Kind        string `json:"kind"`
	ReferenceID string `json:"reference_id,omitempty"`
	Timestamp   string `json:"timestamp"`
	Day         string `json:"day"`
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          int64(tx.ID),
		AmountCents: tx.AmountCents,
		Amount:      ledger.FormatCents(tx.AmountCents),
		Label:       tx.Label,
		Kind:        string(tx.Kind),
		ReferenceID: tx.ReferenceID,
		Timestamp:   tx.Timestamp.Format(time.RFC3339),
		Day:         tx.Day.String(),
	}
}

type DaySummaryDTO struct {
	Day         string         `json:"day"`
	EarnedCents int64          `json:"earned_cents"`
	Sessions    map[string]int `json:"sessions"`
	Dominant    string         `json:"dominant,omitempty"`
	StreakDays  int            `json:"streak_days"`
	CapReached  bool           `json:"cap_reached"`
}

type MonthSummaryDTO struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	TotalCents int64           `json:"total_cents"`
	Total      string          `json:"total"`
	ActiveDays int             `json:"active_days"`
	CappedDays int             `json:"capped_days"`
	Days       []DaySummaryDTO `json:"days"`
}

func toMonthSummaryDTO(m wallet.MonthSummary) MonthSummaryDTO {
	dto := MonthSummaryDTO{
		Year:       m.Year,
		Month:      int(m.Month),
		TotalCents: m.TotalCents,
		Total:      ledger.FormatCents(m.TotalCents),
		ActiveDays: m.ActiveDays,
		CappedDays: m.CappedDays,
		Days:       make([]DaySummaryDTO, len(m.Days)),
	}
	for i, d := range m.Days {
		sessions := make(map[string]int, len(d.Sessions))
		for a, n := range d.Sessions {
			sessions[string(a)] = n
		}
		dd := DaySummaryDTO{
			Day:         d.Day.String(),
			EarnedCents: d.EarnedCents,
			Sessions:    sessions,
			StreakDays:  d.StreakDays,
			CapReached:  d.CapReached,
		}
		if a, ok := d.Dominant(); ok {
			dd.Dominant = string(a)
		}
		dto.Days[i] = dd
	}
	return dto
}

type DayDetailLineDTO struct {
	Label            string `json:"label"`
	Activity         string `json:"activity,omitempty"`
	EarnedCents      int64  `json:"earned_cents"`
	Count            int    `json:"count"`
	EstimatedMinutes *int   `json:"estimated_minutes"`
}

type DayDetailsDTO struct {
	Day        string             `json:"day"`
	TotalCents int64              `json:"total_cents"`
	Total      string             `json:"total"`
	Lines      []DayDetailLineDTO `json:"lines"`
	Record     *DayRecordDTO      `json:"record,omitempty"`
}

func toDayDetailsDTO(d wallet.DayDetails) DayDetailsDTO {
	dto := DayDetailsDTO{
		Day:        d.Day.String(),
		TotalCents: d.TotalCents,
		Total:      ledger.FormatCents(d.TotalCents),
		Lines:      make([]DayDetailLineDTO, len(d.Lines)),
	}
	for i, l := range d.Lines {
		dto.Lines[i] = DayDetailLineDTO{
			Label:            l.Label,
			Activity:         string(l.Activity),
			EarnedCents:      l.EarnedCents,
			Count:            l.Count,
			EstimatedMinutes: l.EstimatedMinutes,
		}
	}
	if d.Record != nil {
		rec := toDayRecordDTO(*d.Record)
		dto.Record = &rec
	}
	return dto
}

// =============================================================================
// WISHLIST
// =============================================================================

type WishItemDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ImageRef    string `json:"image_ref"`
	PriceCents  int64  `json:"price_cents"`
	Price       string `json:"price"`
	IsFavorite  bool   `json:"is_favorite"`
	IsPurchased bool   `json:"is_purchased"`
	CreatedAt   string `json:"created_at"`
}

func toWishItemDTO(item ledger.WishItem) WishItemDTO {
	return WishItemDTO{
		ID:          int64(item.ID),
		Name:        item.Name,
		ImageRef:    item.ImageRef,
		PriceCents:  item.PriceCents,
		Price:       ledger.FormatCents(item.PriceCents),
		IsFavorite:  item.IsFavorite,
		IsPurchased: item.IsPurchased,
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
	}
}

func toWishItemDTOs(items []ledger.WishItem) []WishItemDTO {
	dtos := make([]WishItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toWishItemDTO(item)
	}
	return dtos
}

// WishItemRequest is the body of add and update calls.
type WishItemRequest struct {
	Name       string `json:"name"`
	ImageRef   string `json:"image_ref"`
	PriceCents int64  `json:"price_cents"`
}

type FavoriteDTO struct {
	Item           *WishItemDTO `json:"item"`
	RemainingCents int64        `json:"remaining_cents"`
	Percent        int          `json:"percent"`
	Affordable     bool         `json:"affordable"`
}

func toFavoriteDTO(p *wishlist.Progress) FavoriteDTO {
	if p == nil {
		return FavoriteDTO{}
	}
	item := toWishItemDTO(p.Item)
	return FavoriteDTO{
		Item:           &item,
		RemainingCents: p.RemainingCents,
		Percent:        p.Percent,
		Affordable:     p.Affordable,
	}
}

type PurchaseDTO struct {
	ID          int64  `json:"id"`
	ItemName    string `json:"item_name"`
	PriceCents  int64  `json:"price_cents"`
	Price       string `json:"price"`
	PurchasedAt string `json:"purchased_at"`
	ReferenceID string `json:"reference_id,omitempty"`
}

func toPurchaseDTO(p ledger.PurchaseEntry) PurchaseDTO {
	return PurchaseDTO{
		ID:          int64(p.ID),
		ItemName:    p.ItemName,
		PriceCents:  p.PriceCents,
		Price:       ledger.FormatCents(p.PriceCents),
		PurchasedAt: p.PurchasedAt.Format(time.RFC3339),
		ReferenceID: p.ReferenceID,
	}
}

func toPurchaseDTOs(entries []ledger.PurchaseEntry) []PurchaseDTO {
	dtos := make([]PurchaseDTO, len(entries))
	for i, p := range entries {
		dtos[i] = toPurchaseDTO(p)
	}
	return dtos
}

// =============================================================================
// ADMIN
// =============================================================================

// Admin bodies accept numbers or numeric strings; anything unparsable is 0.

type AdminDayRequest struct {
	FlatEarnedCents   LenientInt `json:"flat_earned_cents"`
	StreakDays        LenientInt `json:"streak_days"`
	BonusPercent      LenientInt `json:"bonus_percent"`
	BonusGrantedCents LenientInt `json:"bonus_granted_cents"`
}

type AdminTransactionRequest struct {
	Day         string     `json:"day"`
	AmountCents LenientInt `json:"amount_cents"`
	Label       string     `json:"label"`
}

// LenientInt decodes a JSON number or string, defaulting to 0.
type LenientInt int64

func (n *LenientInt) UnmarshalJSON(b []byte) error {
	*n = LenientInt(ParseLenientInt(strings.Trim(string(b), `"`)))
	return nil
}

// ParseLenientInt parses s as an integer, returning 0 when it cannot.
func ParseLenientInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
