package handlers

import (
	"net/http"

	"github.com/baharkarakas/evtrade-backend/internal/api/httpx"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

type AdminHandler struct {
	Lifecycle *services.LifecycleService
}

// Sweep runs one expiry pass on demand, the same one cmd/sweeper runs on a timer.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Lifecycle.SweepExpired(r.Context())
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}
