package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/evtrade-backend/internal/api/httpx"
	"github.com/baharkarakas/evtrade-backend/internal/api/validate"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

type ListingHandler struct {
	Listings *services.ListingService
	Auctions *services.AuctionService
}

type createListingReq struct {
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	Price         int64      `json:"price"`
	IsAuction     bool       `json:"is_auction"`
	StartingPrice int64      `json:"starting_price"`
	BidIncrement  int64      `json:"bid_increment"`
	DepositAmount int64      `json:"deposit_amount"`
	AuctionEndAt  *time.Time `json:"auction_end_at"`
}

func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createListingReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	kind := strings.ToUpper(req.Kind)
	if err := validate.Check(
		validate.OneOf("kind", kind, string(models.KindVehicle), string(models.KindBattery)),
		validate.Required("title", req.Title),
	); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	l, err := h.Listings.Create(r.Context(), user(r).UserID, services.NewListing{
		Kind:          models.ListingKind(kind),
		Title:         req.Title,
		Price:         req.Price,
		IsAuction:     req.IsAuction,
		StartingPrice: req.StartingPrice,
		BidIncrement:  req.BidIncrement,
		DepositAmount: req.DepositAmount,
		AuctionEndAt:  req.AuctionEndAt,
	})
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, l)
}

func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := listingRef(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	l, err := h.Listings.Get(r.Context(), ref)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, l)
}

func (h *ListingHandler) Bids(w http.ResponseWriter, r *http.Request) {
	ref, err := listingRef(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	bids, err := h.Auctions.Bids(r.Context(), ref)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bids)
}

type bidReq struct {
	Amount int64 `json:"amount"`
}

func (h *ListingHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	ref, err := listingRef(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	var req bidReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	b, err := h.Auctions.PlaceBid(r.Context(), ref, user(r).UserID, req.Amount)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

func (h *ListingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ref, err := listingRef(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	l, err := h.Auctions.Approve(r.Context(), ref, user(r).UserID)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, l)
}

// Close ends an auction early. The body is the winner's transaction, or null
// when nobody bid.
func (h *ListingHandler) Close(w http.ResponseWriter, r *http.Request) {
	ref, err := listingRef(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	tx, err := h.Auctions.Close(r.Context(), ref, user(r).UserID)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"transaction": tx})
}

type cartReq struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (h *ListingHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	ref := models.ListingRef{Kind: models.ListingKind(strings.ToUpper(req.Kind)), ID: req.ID}
	item, err := h.Listings.AddToCart(r.Context(), user(r).UserID, ref)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, item)
}

func (h *ListingHandler) Cart(w http.ResponseWriter, r *http.Request) {
	items, err := h.Listings.Cart(r.Context(), user(r).UserID)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ListingHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Listings.RemoveFromCart(r.Context(), user(r).UserID, chi.URLParam(r, "itemID")); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
