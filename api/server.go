/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: One logrus line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the web client
  5. Authenticate:  Bearer JWT -> Actor (everything but /api/health)
  6. RateLimit:     Per-IP limit on mutating routes

ROUTE GROUPS:
  /api/health           Liveness
  /api/assignments/*    Stock pages, allocation chain, dispatch, history
  /api/users/*          Directory
  /api/scenarios/*      Demo data (dev)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth, logging, rate limit
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ulule/limiter/v3"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/auth"
	"github.com/warp/allocation-ledger/directory"
)

// RouterOptions carries what NewRouter needs besides the handler.
type RouterOptions struct {
	Verifier       *auth.Verifier
	Limiter        *limiter.Limiter // nil: no rate limit
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limit := RateLimit(opts.Limiter)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.Verifier))

			r.Route("/assignments", func(r chi.Router) {
				r.Get("/{scope}/stock", h.GetScopeStock)
				r.Get("/admin/stock", h.ScopeStock(allocation.ScopeAdmin))
				r.Get("/employee/stock", h.ScopeStock(allocation.ScopeEmployee))
				r.Get("/employee/{empCode}", h.GetEmployeeStock)
				r.Get("/catalog", h.ListCatalog)
				r.Get("/vendor/list", h.VendorList)
				r.Get("/history/admin", h.AdminHistory)
				r.Get("/history/admin/export", h.ExportAdminHistory)
				r.Get("/search/{id}", h.Search)
				r.Get("/audit/{rootId}", h.GetAudit)

				r.Group(func(r chi.Router) {
					r.Use(limit)
					r.Post("/admin", h.CreateRootAllocation)
					r.Post("/admin/stock", h.OpenStock)
					r.Post("/allocate/rm", h.AllocateChild(directory.RoleRegionalManager))
					r.Post("/allocate/bm", h.AllocateChild(directory.RoleBranchManager))
					r.Post("/dispatch/{rootId}", h.Dispatch)
					r.Put("/lr/{rootId}", h.RecordLR)
					r.Put("/vendor/lr/{rootId}", h.RecordLR)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/all", h.ListUsers)
				r.Get("/team", h.ListTeam)
				r.Get("/{empCode}", h.GetUser)
				r.With(limit).Post("/", h.SaveUser)
			})

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.With(limit).Post("/load", h.LoadScenario)
			})
		})
	})

	return r
}
