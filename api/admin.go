package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sportwallet/engine/ledger"
)

// AdminSecretHeader carries the plaintext admin secret.
const AdminSecretHeader = "X-Admin-Secret"

// =============================================================================
// ADMIN AUTH
// =============================================================================

// RequireAdmin rejects requests whose secret does not match passwordHash.
// An empty hash rejects everything.
func RequireAdmin(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get(AdminSecretHeader)
			if passwordHash == "" || secret == "" {
				writeError(w, http.StatusUnauthorized, "Admin secret required", nil)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(secret)); err != nil {
				writeError(w, http.StatusForbidden, "Invalid admin secret", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashAdminSecret returns the bcrypt hash to put in admin.password_hash.
func HashAdminSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase wipes every table.
// POST /api/admin/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Wallet.Admin().ResetDatabase(r.Context()); err != nil {
		h.handleError(w, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AdminGetDay returns a day record; 404 when absent.
// GET /api/admin/days/{day}
func (h *Handler) AdminGetDay(w http.ResponseWriter, r *http.Request) {
	day, err := ledger.ParseDayKey(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}

	rec, err := h.Wallet.Admin().GetDay(r.Context(), day)
	if err != nil {
		h.handleError(w, "Failed to load day", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Day not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDayRecordDTO(*rec))
}

// AdminUpsertDay overwrites a day record with clamped values.
// PUT /api/admin/days/{day}
func (h *Handler) AdminUpsertDay(w http.ResponseWriter, r *http.Request) {
	day, err := ledger.ParseDayKey(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}
	var req AdminDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Wallet.Admin().UpsertDay(r.Context(), day,
		int64(req.FlatEarnedCents),
		int(req.StreakDays),
		int(req.BonusPercent),
		int64(req.BonusGrantedCents),
	)
	if err != nil {
		h.handleError(w, "Failed to upsert day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayRecordDTO(rec))
}

// AdminInsertTransaction appends a manual credit or debit.
// POST /api/admin/transactions
func (h *Handler) AdminInsertTransaction(w http.ResponseWriter, r *http.Request) {
	var req AdminTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	day := h.Wallet.Today()
	if req.Day != "" {
		parsed, err := ledger.ParseDayKey(req.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid day", err)
			return
		}
		day = parsed
	}

	tx, err := h.Wallet.Admin().InsertTransaction(r.Context(), day, int64(req.AmountCents), req.Label)
	if err != nil {
		h.handleError(w, "Failed to insert transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}
