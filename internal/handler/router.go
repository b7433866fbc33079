package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/uniform-points/internal/middleware"
	"github.com/mmeshcher/uniform-points/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Encoding"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	staff := custommiddleware.RequireRole(model.RoleStaff)
	sellers := custommiddleware.RequireRole(model.RoleStaff, model.RoleStoreOperator)
	buyers := custommiddleware.RequireRole(model.RoleStaff, model.RoleStoreOperator, model.RoleBeneficiary)
	tailors := custommiddleware.RequireRole(model.RoleStaff, model.RoleTailorOperator)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/persons", func(r chi.Router) {
			r.With(staff).Post("/", h.CreatePerson)

			r.Route("/{personID}", func(r chi.Router) {
				r.Use(buyers)
				r.Get("/", h.GetPerson)
				r.With(staff).Delete("/", h.DeactivatePerson)
				r.Get("/points", h.GetPointSummary)
				r.Get("/ledger", h.GetLedger)
				r.Get("/entitlement", h.GetEntitlement)
				r.Get("/orders", h.ListOrders)
				r.Get("/tickets", h.ListPersonTickets)
			})
		})

		r.With(staff).Post("/grants/{year}", h.GrantAnnual)

		r.Route("/orders", func(r chi.Router) {
			r.With(buyers).Post("/", h.CreateOrder)
			r.With(buyers).Get("/{orderID}", h.GetOrder)
			r.With(buyers).Get("/number/{number}", h.GetOrderByNumber)

			r.Group(func(r chi.Router) {
				r.Use(sellers)
				r.Post("/{orderID}/confirm", h.ConfirmOrder)
				r.Post("/{orderID}/cancel", h.CancelOrder)
				r.Post("/{orderID}/advance", h.AdvanceOrder)
				r.Post("/{orderID}/return", h.ReturnOrder)
			})
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Use(tailors)
			r.Get("/{number}", h.LookupTicket)
			r.Post("/{ticketID}/register", h.RegisterTicket)
		})

		r.Route("/tailors", func(r chi.Router) {
			r.With(staff).Post("/", h.CreateTailor)

			r.Route("/{tailorID}", func(r chi.Router) {
				r.Use(tailors)
				r.Get("/tickets", h.ListTailorTickets)
				r.Get("/settlements", h.ListSettlements)
				r.Post("/settlements", h.RequestSettlement)
			})
		})

		r.With(staff).Post("/settlements/{batchID}/confirm", h.ConfirmSettlement)

		r.Route("/stores", func(r chi.Router) {
			r.With(staff).Post("/", h.CreateStore)

			r.Route("/{storeID}/inventory", func(r chi.Router) {
				r.Use(sellers)
				r.Get("/", h.ListInventory)
				r.Post("/receive", h.ReceiveStock)
				r.Post("/adjust", h.AdjustStock)
			})
		})

		r.With(staff).Post("/products", h.CreateProduct)
		r.With(sellers).Get("/inventory/{recordID}/logs", h.ListInventoryLogs)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "not_found", "Маршрут не найден")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Метод не поддерживается")
	})

	return r
}
