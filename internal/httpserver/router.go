package httpserver

import (
	"net/http"

	"btcpaper/internal/auth"
	"btcpaper/internal/health"
	"btcpaper/internal/httputil"
	"btcpaper/internal/ledger"
	"btcpaper/internal/metrics"
	"btcpaper/internal/model"
	"btcpaper/internal/notify"
	"btcpaper/internal/pricefeed"
	"btcpaper/internal/users"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterDeps struct {
	LedgerHandler *ledger.Handler
	UsersHandler  *users.Handler
	NotifyHandler *notify.Handler
	MarketHandler *pricefeed.Handler
	HealthHandler *health.Handler
	Verifier      *auth.Verifier
	UsersService  *users.Service
	Log           *zap.Logger
}

// ownerHandler adapts a handler that needs the caller's owner scope.
type ownerHandler func(w http.ResponseWriter, r *http.Request, owner model.Owner)

func withOwner(h ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, model.Owner{UserID: user.ID, PrivyUserID: user.PrivyUserID})
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Privy-User-Id")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/health", d.HealthHandler.Get)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/market/price", d.MarketHandler.Price)
		r.Get("/market/history", d.MarketHandler.History)
		r.Get("/market/ws", d.MarketHandler.WS.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithIdentity(d.Verifier, d.UsersService, d.Log))
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.UsersHandler.Me(w, r, user)
			})
			r.Get("/balance", withOwner(d.LedgerHandler.Balance))
			r.Post("/positions", withOwner(d.LedgerHandler.OpenPosition))
			r.Get("/positions", withOwner(d.LedgerHandler.Positions))
			r.Post("/positions/{id}/close", withOwner(d.LedgerHandler.ClosePosition))
			r.Get("/trades", withOwner(d.LedgerHandler.Trades))
			r.Get("/transactions", withOwner(d.LedgerHandler.Transactions))
			r.Post("/deposit", withOwner(d.LedgerHandler.Deposit))
			r.Post("/withdraw", withOwner(d.LedgerHandler.Withdraw))
			r.Get("/notifications", withOwner(d.NotifyHandler.List))
			r.Post("/notifications/read", withOwner(d.NotifyHandler.MarkAllRead))
			r.Post("/notifications/{id}/read", withOwner(d.NotifyHandler.MarkRead))
		})
	})

	return r
}
