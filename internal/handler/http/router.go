package http

import (
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/settlement-backend-go/internal/config"
	"github.com/cmlabs-hris/settlement-backend-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
	"golang.org/x/time/rate"
)

func NewRouter(cfg *config.Config, logger *slog.Logger, JWTService jwt.Service, settlementHandler SettlementHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.App.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(chiMiddleware.RealIP)

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Route("/staff/{staffID}", func(r chi.Router) {
				r.Get("/ledger", settlementHandler.GetBalances)
				r.Get("/ledger/replay", settlementHandler.ReplayBalances)
				r.Get("/settlements", settlementHandler.ListPaymentRecords)
				r.Post("/settlements/preview", settlementHandler.Preview)

				// Writes are rate limited per operator
				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimit(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst))
					r.Post("/settlements", settlementHandler.Settle)
				})
			})

			r.Post("/ledgers/audit", settlementHandler.AuditLedgers)
		})
	})
	return r
}
