package api

import (
	"encoding/json"
	"net/http"

	"crypto-invest-platform-go/internal/backend"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RPCHandler dispatches POST /rpc/{name} to the backend. Requests acting for a user are
// scoped to the token's user; admin adjustments act as the token's user.
func (h *Handler) RPCHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := UserFromRequest(r)
	name := chi.URLParam(r, "name")
	ctx := r.Context()

	var (
		result any
		err    error
	)

	switch name {
	case backend.RPCStartTradeValidated:
		var req backend.StartTradeRequest
		if !h.decode(w, r, &req) || !h.scope(w, caller, &req.UserID) {
			return
		}
		result, err = h.backend.StartTradeValidated(ctx, req)

	case backend.RPCSyncTradingPrices:
		var updates []backend.PriceUpdate
		if !h.decode(w, r, &updates) {
			return
		}
		err = h.backend.SyncTradingPrices(ctx, updates)
		result = struct{}{}

	case backend.RPCSyncTradingProfits:
		result, err = h.backend.SyncTradingProfits(ctx)

	case backend.RPCUpdateLiveInterestEarned:
		result, err = h.backend.UpdateLiveInterestEarned(ctx)

	case backend.RPCStopSingleTrade:
		var req backend.RPCRequest
		if !h.decode(w, r, &req) || !h.scope(w, caller, &req.UserID) {
			return
		}
		err = h.backend.StopSingleTrade(ctx, req.TradeID, req.UserID)
		result = struct{}{}

	case backend.RPCStopAllUserTrades:
		var req backend.RPCRequest
		if !h.decode(w, r, &req) || !h.scope(w, caller, &req.UserID) {
			return
		}
		result, err = h.backend.StopAllUserTrades(ctx, req.UserID)

	case backend.RPCSwapBalances:
		var req backend.SwapRequest
		if !h.decode(w, r, &req) || !h.scope(w, caller, &req.UserID) {
			return
		}
		result, err = h.backend.SwapBalances(ctx, req)

	case backend.RPCPurchaseSignal:
		var req backend.RPCRequest
		if !h.decode(w, r, &req) || !h.scope(w, caller, &req.UserID) {
			return
		}
		result, err = h.backend.PurchaseSignal(ctx, req.UserID, req.SignalID)

	case backend.RPCAdminAdjustUserBalance:
		var req backend.AdminAdjustRequest
		if !h.decode(w, r, &req) {
			return
		}
		req.AdminID = caller
		result, err = h.backend.AdminAdjustUserBalance(ctx, req)

	default:
		h.writeError(w, http.StatusNotFound, "unknown rpc "+name)
		return
	}

	if err != nil {
		h.writeBackendError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// scope fills an empty user id with the caller and forbids acting for anyone else.
func (h *Handler) scope(w http.ResponseWriter, caller uuid.UUID, userID *uuid.UUID) bool {
	if *userID == uuid.Nil {
		*userID = caller
		return true
	}
	if *userID != caller {
		h.writeError(w, http.StatusForbidden, "cannot act for another user")
		return false
	}
	return true
}
