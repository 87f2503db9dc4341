package handlers

import (
	"net/http"

	"github.com/baharkarakas/evtrade-backend/internal/api/httpx"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

type WalletHandler struct {
	Wallets *services.WalletService
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	wl, err := h.Wallets.Balance(r.Context(), user(r).UserID)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wl)
}

func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	hist, err := h.Wallets.History(r.Context(), user(r).UserID, limit, offset)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, hist)
}

type topUpReq struct {
	Amount int64 `json:"amount"`
}

func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	res, err := h.Wallets.RequestTopUp(r.Context(), user(r).UserID, req.Amount)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"deposit": res.Deposit,
		"pay_url": res.PayURL,
	})
}
