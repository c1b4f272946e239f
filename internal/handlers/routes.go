package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

// HandlerFunc serves an authenticated request. actor is nil on public
// routes.
type HandlerFunc func(e *core.RequestEvent, actor *models.Account) error

// Route declares an endpoint and the roles allowed to call it. A nil
// Roles makes the route public.
type Route struct {
	Method string
	Path   string
	Roles  models.Roles
	// Limited routes count against the per-account rate limit.
	Limited bool
	Handle  HandlerFunc
}

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Authenticator turns a bearer credential into the caller's account.
type Authenticator struct {
	Verifier identity.Verifier
	Catalog  *services.CatalogService
}

func (a *Authenticator) Authenticate(e *core.RequestEvent) (*models.Account, error) {
	token := identity.BearerToken(e.Request.Header.Get("Authorization"))
	if token == "" {
		return nil, status.New(status.KindInvalidCredential, "missing bearer token")
	}

	id, err := a.Verifier.Verify(e.Request.Context(), token)
	if err != nil {
		return nil, err
	}

	return a.Catalog.Provision(e.Request.Context(), services.Profile{
		Email:     id.Email,
		SubjectID: id.SubjectID,
		Name:      id.Name,
		PhotoURL:  id.PhotoURL,
	})
}

// Server holds everything the routes need.
type Server struct {
	Auth    *Authenticator
	Limiter Limiter

	Bookings *BookingHandler
	Payments *PaymentHandler
	Tickets  *TicketHandler
	Admin    *AdminHandler
	Health   *HealthHandler

	// Development enables the sandbox-only endpoints.
	Development bool
}

var (
	onlyUser   = models.Roles{models.RoleUser}
	onlyVendor = models.Roles{models.RoleVendor}
	onlyAdmin  = models.Roles{models.RoleAdmin}
	deciders   = models.Roles{models.RoleVendor, models.RoleAdmin}
	anyone     = models.Roles{models.RoleUser, models.RoleVendor, models.RoleAdmin}
)

// Routes is the complete route table.
func (s *Server) Routes() []Route {
	routes := []Route{
		{Method: http.MethodGet, Path: "/health", Handle: s.Health.Check},

		{Method: http.MethodGet, Path: "/api/v1/me", Roles: anyone, Handle: s.Tickets.Me},
		{Method: http.MethodPost, Path: "/api/v1/me/vendor", Roles: onlyUser, Handle: s.Tickets.RegisterVendor},
		{Method: http.MethodGet, Path: "/api/v1/tickets/advertised", Handle: s.Tickets.Advertised},
		{Method: http.MethodGet, Path: "/api/v1/tickets/latest", Handle: s.Tickets.Latest},
		{Method: http.MethodGet, Path: "/api/v1/tickets/{id}", Handle: s.Tickets.Get},

		{Method: http.MethodPost, Path: "/api/v1/bookings", Roles: onlyUser, Limited: true, Handle: s.Bookings.Create},
		{Method: http.MethodGet, Path: "/api/v1/bookings/mine", Roles: onlyUser, Handle: s.Bookings.Mine},
		{Method: http.MethodDelete, Path: "/api/v1/bookings/{id}", Roles: onlyUser, Handle: s.Bookings.Cancel},
		{Method: http.MethodPatch, Path: "/api/v1/bookings/{id}/decision", Roles: deciders, Handle: s.Bookings.Decide},

		{Method: http.MethodGet, Path: "/api/v1/vendor/bookings", Roles: onlyVendor, Handle: s.Bookings.Vendor},
		{Method: http.MethodGet, Path: "/api/v1/vendor/bookings/pending", Roles: onlyVendor, Handle: s.Bookings.VendorPending},
		{Method: http.MethodGet, Path: "/api/v1/vendor/tickets", Roles: onlyVendor, Handle: s.Tickets.Mine},
		{Method: http.MethodPost, Path: "/api/v1/vendor/tickets", Roles: onlyVendor, Handle: s.Tickets.Create},
		{Method: http.MethodPatch, Path: "/api/v1/vendor/tickets/{id}", Roles: onlyVendor, Handle: s.Tickets.Update},
		{Method: http.MethodDelete, Path: "/api/v1/vendor/tickets/{id}", Roles: onlyVendor, Handle: s.Tickets.Delete},

		{Method: http.MethodPost, Path: "/api/v1/payments/checkout", Roles: onlyUser, Limited: true, Handle: s.Payments.Checkout},
		{Method: http.MethodGet, Path: "/api/v1/payments/confirm", Roles: onlyUser, Handle: s.Payments.ConfirmRedirect},
		{Method: http.MethodPost, Path: "/api/v1/payments/webhook", Handle: s.Payments.Webhook},
		{Method: http.MethodGet, Path: "/api/v1/transactions/mine", Roles: onlyUser, Handle: s.Payments.Mine},
		{Method: http.MethodGet, Path: "/api/v1/transactions/{id}", Roles: anyone, Handle: s.Payments.Get},

		{Method: http.MethodPatch, Path: "/api/v1/admin/tickets/{id}/verification", Roles: onlyAdmin, Handle: s.Admin.Verify},
		{Method: http.MethodPatch, Path: "/api/v1/admin/tickets/{id}/advertise", Roles: onlyAdmin, Handle: s.Admin.Advertise},
		{Method: http.MethodPatch, Path: "/api/v1/admin/accounts/{id}/role", Roles: onlyAdmin, Handle: s.Admin.SetRole},
		{Method: http.MethodPatch, Path: "/api/v1/admin/vendors/{id}/fraud", Roles: onlyAdmin, Handle: s.Admin.MarkFraud},
		{Method: http.MethodPost, Path: "/api/v1/admin/reconcile", Roles: onlyAdmin, Handle: s.Admin.Reconcile},
	}

	if s.Development {
		routes = append(routes, Route{Method: http.MethodPost, Path: "/api/v1/test/simulate-payment", Handle: s.Payments.Simulate})
	}
	return routes
}

// Register binds the route table to r.
func (s *Server) Register(r *router.Router[*core.RequestEvent]) {
	for _, route := range s.Routes() {
		r.Route(route.Method, route.Path, s.wrap(route))
	}
	slog.Info("Server routes registered", "count", len(s.Routes()))
}

// wrap enforces the route's role set before calling its handler.
func (s *Server) wrap(route Route) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if route.Roles == nil {
			return route.Handle(e, nil)
		}

		actor, err := s.Auth.Authenticate(e)
		if err != nil {
			return fail(e, err)
		}
		if !route.Roles.Allows(actor.Role) {
			return fail(e, status.Newf(status.KindForbidden, "%s may not %s %s", actor.Role, route.Method, route.Path))
		}

		if route.Limited && s.Limiter != nil {
			allowed, err := s.Limiter.Allow(e.Request.Context(), fmt.Sprintf("%s %s:%s", route.Method, route.Path, actor.ID))
			if err != nil {
				slog.Warn("Rate limiter unavailable", "error", err)
			} else if !allowed {
				return e.JSON(http.StatusTooManyRequests, map[string]any{
					"status":  "error",
					"kind":    "rate_limited",
					"message": "Rate limit exceeded. Please try again later.",
				})
			}
		}

		return route.Handle(e, actor)
	}
}
