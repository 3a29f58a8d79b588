/*
handlers.go - HTTP API handlers for the sport wallet

PURPOSE:
  Exposes the wallet and wishlist engines via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engines.

ENDPOINTS:
  Wallet:
    GET    /api/wallet                  Balance and today's state
    GET    /api/wallet/balance          Balance only
    GET    /api/wallet/stream           WebSocket of wallet states
    POST   /api/activities/stop         Settle a finished activity
    POST   /api/activities/projection   Project an activity in progress

  History:
    GET    /api/transactions?limit=N    Newest transactions first
    GET    /api/calendar/{year}/{month} Month summary
    GET    /api/days/{day}              Day details

  Wishlist:
    GET    /api/wishlist                Items
    POST   /api/wishlist                Add item
    PUT    /api/wishlist/{id}           Update item
    DELETE /api/wishlist/{id}           Delete item
    POST   /api/wishlist/{id}/favorite  Make the single favorite
    POST   /api/wishlist/{id}/purchase  Buy the item (?strict=true refuses
                                        when unaffordable or already bought)
    GET    /api/wishlist/favorite       Favorite and progress
    GET    /api/purchases               Purchase history

REQUEST FLOW:
  1. Parse HTTP request
  2. Normalize input
  3. Call the engine
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (unknown activity, bad day key)
  - 404: Wish item not found
  - 409: Strict purchase refused, rest days used up
  - 500: Storage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - admin.go: Admin routes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/wallet"
	"github.com/sportwallet/engine/wishlist"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Wallet   *wallet.Engine
	Wishlist *wishlist.Service
	Log      *logrus.Entry
}

// NewHandler creates a new handler over the two engines.
func NewHandler(w *wallet.Engine, wl *wishlist.Service, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "api")
	}
	return &Handler{Wallet: w, Wishlist: wl, Log: log}
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// GetWallet returns the balance and today's earning state.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	state, err := h.Wallet.WalletState(r.Context())
	if err != nil {
		h.handleError(w, "Failed to load wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletStateDTO(state))
}

// GetBalance returns the ledger balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Wallet.Balance(r.Context())
	if err != nil {
		h.handleError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{BalanceCents: balance, Balance: ledger.FormatCents(balance)})
}

// StopActivity settles a finished activity.
// POST /api/activities/stop
func (h *Handler) StopActivity(w http.ResponseWriter, r *http.Request) {
	activity, elapsed, ok := h.decodeActivity(w, r)
	if !ok {
		return
	}

	s, err := h.Wallet.ApplyActivityStop(r.Context(), activity, elapsed)
	if err != nil {
		h.handleError(w, "Failed to settle activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(s))
}

// ProjectActivity previews a stop without writing.
// POST /api/activities/projection
func (h *Handler) ProjectActivity(w http.ResponseWriter, r *http.Request) {
	activity, elapsed, ok := h.decodeActivity(w, r)
	if !ok {
		return
	}

	p, err := h.Wallet.Project(r.Context(), activity, elapsed)
	if err != nil {
		h.handleError(w, "Failed to project activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectionDTO(p))
}

func (h *Handler) decodeActivity(w http.ResponseWriter, r *http.Request) (wallet.Activity, time.Duration, bool) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return "", 0, false
	}
	activity, err := wallet.ParseActivity(req.Activity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown activity", err)
		return "", 0, false
	}
	return activity, elapsedFromMs(req.ElapsedMs), true
}

// maxElapsedMs is the longest elapsed time a time.Duration can hold.
const maxElapsedMs = math.MaxInt64 / int64(time.Millisecond)

// elapsedFromMs clamps ms to [0, maxElapsedMs] before converting.
func elapsedFromMs(ms int64) time.Duration {
	return time.Duration(min(max(ms, 0), maxElapsedMs)) * time.Millisecond
}

// =============================================================================
// HISTORY & CALENDAR HANDLERS
// =============================================================================

// ListTransactions returns the newest transactions.
// GET /api/transactions?limit=N
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := int(ParseLenientInt(r.URL.Query().Get("limit")))

	txs, err := h.Wallet.History(r.Context(), limit)
	if err != nil {
		h.handleError(w, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetMonthSummary returns the calendar of a month.
// GET /api/calendar/{year}/{month}
func (h *Handler) GetMonthSummary(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	month, errM := strconv.Atoi(chi.URLParam(r, "month"))
	if errY != nil || errM != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid year or month", nil)
		return
	}

	summary, err := h.Wallet.MonthSummary(r.Context(), year, time.Month(month))
	if err != nil {
		h.handleError(w, "Failed to load month", err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthSummaryDTO(summary))
}

// GetDayDetails returns a day's credits grouped by label.
// GET /api/days/{day}
func (h *Handler) GetDayDetails(w http.ResponseWriter, r *http.Request) {
	day, err := ledger.ParseDayKey(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}

	details, err := h.Wallet.DayDetails(r.Context(), day)
	if err != nil {
		h.handleError(w, "Failed to load day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayDetailsDTO(details))
}

// =============================================================================
// WISHLIST HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Wishlist.Items(r.Context())
	if err != nil {
		h.handleError(w, "Failed to list items", err)
		return
	}
	writeJSON(w, http.StatusOK, toWishItemDTOs(items))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req WishItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Wishlist.AddItem(r.Context(), req.Name, req.ImageRef, req.PriceCents)
	if err != nil {
		h.handleError(w, "Failed to add item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWishItemDTO(item))
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req WishItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Wishlist.UpdateItem(r.Context(), id, req.Name, req.ImageRef, req.PriceCents)
	if err != nil {
		h.handleError(w, "Failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, toWishItemDTO(item))
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := h.Wishlist.DeleteItem(r.Context(), id); err != nil {
		h.handleError(w, "Failed to delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := h.Wishlist.SetFavorite(r.Context(), id); err != nil {
		h.handleError(w, "Failed to set favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetFavorite returns the favorite with progress; item is null when none.
func (h *Handler) GetFavorite(w http.ResponseWriter, r *http.Request) {
	p, err := h.Wishlist.FavoriteProgress(r.Context())
	if err != nil {
		h.handleError(w, "Failed to load favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, toFavoriteDTO(p))
}

func (h *Handler) PurchaseItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var opts []wishlist.PurchaseOption
	if strict, _ := strconv.ParseBool(r.URL.Query().Get("strict")); strict {
		opts = append(opts, wishlist.RequireFunds())
	}

	entry, err := h.Wishlist.PurchaseItem(r.Context(), id, opts...)
	if err != nil {
		h.handleError(w, "Purchase refused", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseDTO(entry))
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Wishlist.History(r.Context())
	if err != nil {
		h.handleError(w, "Failed to list purchases", err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTOs(entries))
}

func itemID(w http.ResponseWriter, r *http.Request) (ledger.ItemID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return 0, false
	}
	return ledger.ItemID(id), true
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// handleError maps engine errors to HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error(message)
	}

	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}
	var short *ledger.InsufficientBalanceError
	if errors.As(err, &short) {
		resp.Details = map[string]int64{
			"available_cents": short.Available,
			"requested_cents": short.Requested,
			"shortfall_cents": short.Shortfall,
		}
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrAlreadyPurchased):
		return http.StatusConflict, "already_purchased"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, ledger.ErrRestDayLimit):
		return http.StatusConflict, "rest_day_limit"
	case ledger.IsClientError(err):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
