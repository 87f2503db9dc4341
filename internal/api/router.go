package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/evtrade-backend/internal/api/handlers"
	"github.com/baharkarakas/evtrade-backend/internal/auth"
	"github.com/baharkarakas/evtrade-backend/internal/config"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/middleware"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

type Deps struct {
	Cfg    config.Config
	Log    *slog.Logger
	Tokens *auth.TokenManager

	Users          *services.UserService
	Wallets        *services.WalletService
	Listings       *services.ListingService
	Auctions       *services.AuctionService
	Checkout       *services.CheckoutService
	Lifecycle      *services.LifecycleService
	Reconciliation *services.ReconciliationService

	// Files serves uploaded evidence and contracts; nil disables /files.
	Files http.Handler
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(d.Log), middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())
	if d.Files != nil {
		r.Handle("/files/*", http.StripPrefix("/files/", d.Files))
	}

	authH := handlers.NewAuthHandler(d.Users)
	walletH := &handlers.WalletHandler{Wallets: d.Wallets}
	listingH := &handlers.ListingHandler{Listings: d.Listings, Auctions: d.Auctions}
	txH := &handlers.TransactionHandler{Checkout: d.Checkout, Lifecycle: d.Lifecycle}
	payH := &handlers.PaymentHandler{Reconciler: d.Reconciliation, Log: d.Log}
	adminH := &handlers.AdminHandler{Lifecycle: d.Lifecycle}

	authMW := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)
		r.Post("/auth/refresh", authH.Refresh)

		// MoMo calls this server to server; the signature is the authentication.
		r.Post("/payments/momo/ipn", payH.MomoIPN)

		r.Get("/listings/{kind}/{id}", listingH.Get)
		r.Get("/listings/{kind}/{id}/bids", listingH.Bids)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			r.Get("/me", authH.Me)

			r.Get("/wallet", walletH.Balance)
			r.Get("/wallet/history", walletH.History)
			r.Post("/wallet/topup", walletH.TopUp)

			r.Post("/listings", listingH.Create)
			r.Post("/listings/{kind}/{id}/bids", listingH.PlaceBid)

			r.Get("/cart", listingH.Cart)
			r.Post("/cart/items", listingH.AddToCart)
			r.Delete("/cart/items/{itemID}", listingH.RemoveFromCart)
			r.Post("/cart/checkout", txH.CheckoutCart)

			r.Post("/checkout", txH.CheckoutListing)

			r.Get("/transactions", txH.List)
			r.Route("/transactions/{id}", func(r chi.Router) {
				r.Get("/", txH.Get)
				r.Post("/pay", txH.Pay)
				r.Post("/remainder", txH.PayRemainder)
				r.Post("/appointment", txH.ScheduleAppointment)
				r.Post("/ship", txH.Ship)
				r.Post("/confirm", txH.Confirm)
				r.Post("/dispute", txH.Dispute)
				r.Post("/reject", txH.Reject)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/users", authH.ListUsers)
				r.Post("/listings/{kind}/{id}/approve", listingH.Approve)
				r.Post("/listings/{kind}/{id}/close", listingH.Close)
				r.Post("/transactions/{id}/complete", txH.Complete)
				r.Post("/sweep", adminH.Sweep)
			})
		})
	})

	return r
}
