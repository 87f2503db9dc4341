package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/middleware"
	"github.com/baharkarakas/evtrade-backend/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// page reads limit/offset query params, clamping bad values to defaults.
func page(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// listingRef builds a ref from the {kind}/{id} route params.
func listingRef(r *http.Request) (models.ListingRef, error) {
	ref := models.ListingRef{
		Kind: models.ListingKind(strings.ToUpper(chi.URLParam(r, "kind"))),
		ID:   chi.URLParam(r, "id"),
	}
	if !ref.Kind.Valid() || ref.ID == "" {
		return models.ListingRef{}, apperr.BadRequest("listing kind must be vehicle or battery")
	}
	return ref, nil
}

func user(r *http.Request) middleware.UserCtx { return middleware.FromCtx(r.Context()) }
