package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

type PaymentHandler struct {
	Reconciler *services.ReconciliationService
	Log        *slog.Logger
}

// MomoIPN answers 204 for every callback it handled, including duplicates and
// bad signatures, so MoMo stops retrying. Only failures that may succeed on a
// retry answer 500.
func (h *PaymentHandler) MomoIPN(w http.ResponseWriter, r *http.Request) {
	var p momo.IPN
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&p); err != nil {
		h.Log.Warn("momo ipn: bad body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	out, err := h.Reconciler.HandleIPN(r.Context(), p)
	if err != nil {
		h.Log.Error("momo ipn failed", "order_id", p.OrderID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.Log.Debug("momo ipn", "order_id", p.OrderID, "outcome", out)
	w.WriteHeader(http.StatusNoContent)
}
