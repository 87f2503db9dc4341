package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/evtrade-backend/internal/api/httpx"
	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

const (
	maxEvidenceFiles = 5
	maxDisputeBody   = 20 << 20
)

type TransactionHandler struct {
	Checkout  *services.CheckoutService
	Lifecycle *services.LifecycleService
}

type checkoutReq struct {
	Kind          string `json:"kind"`
	ID            string `json:"id"`
	PaymentMethod string `json:"payment_method"`
}

func method(s string) models.PaymentMethod {
	return models.PaymentMethod(strings.ToUpper(s))
}

func (h *TransactionHandler) CheckoutListing(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	ref := models.ListingRef{Kind: models.ListingKind(strings.ToUpper(req.Kind)), ID: req.ID}
	res, err := h.Checkout.Checkout(r.Context(), user(r).UserID, ref, method(req.PaymentMethod))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

type methodReq struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *TransactionHandler) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	var req methodReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	res, err := h.Checkout.CheckoutCart(r.Context(), user(r).UserID, method(req.PaymentMethod))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	txs, err := h.Lifecycle.ListMine(r.Context(), user(r).UserID, limit, offset)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	tx, err := h.Lifecycle.Get(r.Context(), chi.URLParam(r, "id"), u.UserID, u.IsAdmin())
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}

// Pay settles a pending transaction from the wallet or opens a MoMo session.
func (h *TransactionHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req methodReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	id, buyer := chi.URLParam(r, "id"), user(r).UserID
	switch method(req.PaymentMethod) {
	case models.PayWallet:
		tx, err := h.Checkout.PayWithWallet(r.Context(), id, buyer)
		if err != nil {
			httpx.WriteAppError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, services.CheckoutResult{Transaction: tx})
	case models.PayMomo:
		res, err := h.Checkout.PayWithGateway(r.Context(), id, buyer)
		if err != nil {
			httpx.WriteAppError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusAccepted, res)
	default:
		httpx.WriteAppError(w, r, apperr.BadRequest("payment_method must be WALLET or MOMO"))
	}
}

func (h *TransactionHandler) PayRemainder(w http.ResponseWriter, r *http.Request) {
	var req methodReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	res, err := h.Checkout.PayRemainderForVehicle(r.Context(), chi.URLParam(r, "id"), user(r).UserID, method(req.PaymentMethod))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type appointmentReq struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Location    string    `json:"location"`
}

func (h *TransactionHandler) ScheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	a, err := h.Lifecycle.ScheduleAppointment(r.Context(), chi.URLParam(r, "id"), user(r).UserID, req.ScheduledAt, req.Location)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *TransactionHandler) Ship(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.Lifecycle.Ship(r.Context(), chi.URLParam(r, "id"), user(r).UserID))
}

func (h *TransactionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.Lifecycle.ConfirmReceipt(r.Context(), chi.URLParam(r, "id"), user(r).UserID))
}

func (h *TransactionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.Lifecycle.Complete(r.Context(), chi.URLParam(r, "id"), user(r).UserID))
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *TransactionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	// the reason is optional, so is the body
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteAppError(w, r, err)
			return
		}
	}
	h.respond(w, r)(h.Lifecycle.RejectVehiclePurchase(r.Context(), chi.URLParam(r, "id"), user(r).UserID, req.Reason))
}

// Dispute takes a multipart form: a "reason" field and up to five "evidence" files.
func (h *TransactionHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDisputeBody)
	if err := r.ParseMultipartForm(maxDisputeBody); err != nil {
		httpx.WriteAppError(w, r, apperr.BadRequest("expected a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["evidence"]
	if len(files) > maxEvidenceFiles {
		httpx.WriteAppError(w, r, apperr.BadRequest("at most 5 evidence files"))
		return
	}
	evidence := make([]services.Evidence, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			httpx.WriteAppError(w, r, apperr.BadRequest("unreadable evidence file"))
			return
		}
		defer f.Close()
		evidence = append(evidence, services.Evidence{Name: fh.Filename, Body: f})
	}
	h.respond(w, r)(h.Lifecycle.Dispute(r.Context(), chi.URLParam(r, "id"), user(r).UserID, r.FormValue("reason"), evidence))
}

func (h *TransactionHandler) respond(w http.ResponseWriter, r *http.Request) func(models.Transaction, error) {
	return func(tx models.Transaction, err error) {
		if err != nil {
			httpx.WriteAppError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, tx)
	}
}
