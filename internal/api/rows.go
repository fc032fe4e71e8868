package api

import (
	"net/http"
	"strconv"

	"crypto-invest-platform-go/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultRowLimit = 50

// queryUser returns the user_id query parameter, defaulting to the caller.
// Rows of other users are not readable.
func (h *Handler) queryUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	caller, _ := UserFromRequest(r)
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return caller, true
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user_id")
		return uuid.Nil, false
	}
	if userID != caller {
		h.writeError(w, http.StatusForbidden, "cannot read another user's rows")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultRowLimit
	}
	return limit
}

func (h *Handler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if caller, _ := UserFromRequest(r); caller != id {
		h.writeError(w, http.StatusForbidden, "cannot read another user's profile")
		return
	}
	p, err := h.store.GetProfile(r.Context(), id)
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// TradesHandler returns the active trades, or the closed ones with status=closed.
func (h *Handler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}

	var (
		trades []models.Trade
		err    error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", string(models.TradeActive):
		trades, err = h.store.ListActiveTrades(r.Context(), userID)
	case "closed":
		trades, err = h.store.ListTradeHistory(r.Context(), userID, queryLimit(r))
	default:
		h.writeError(w, http.StatusBadRequest, "status must be active or closed")
		return
	}
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

func (h *Handler) AssetsHandler(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assets)
}

func (h *Handler) AssetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) SignalsHandler(w http.ResponseWriter, r *http.Request) {
	signals, err := h.store.ListSignals(r.Context())
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, signals)
}

func (h *Handler) PurchasedSignalsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}
	owned, err := h.store.ListPurchasedSignals(r.Context(), userID)
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, owned)
}

// PurchasedSignalHandler returns one ownership record. Other users' records read as missing.
func (h *Handler) PurchasedSignalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ps, err := h.store.GetPurchasedSignal(r.Context(), id)
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	if caller, _ := UserFromRequest(r); ps.UserID != caller {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) EngineSettingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}
	settings, err := h.store.EngineSettings(r.Context(), userID)
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}
	txs, err := h.store.ListTransactions(r.Context(), userID, queryLimit(r))
	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// InsertTransactionsHandler appends ledger entries of the caller.
func (h *Handler) InsertTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	var txs []models.Transaction
	if !h.decode(w, r, &txs) {
		return
	}
	caller, _ := UserFromRequest(r)
	for i := range txs {
		if txs[i].UserID != caller {
			h.writeError(w, http.StatusForbidden, "cannot write another user's transactions")
			return
		}
		txs[i].ID = uuid.Nil
	}
	if err := h.store.InsertTransactions(r.Context(), txs); err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txs)
}
