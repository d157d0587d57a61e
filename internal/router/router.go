// Package router assembles the HTTP surface under /api/v1.
package router

import (
	"context"
	"net/http"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/auth"
	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/booking"
	"github.com/gighire/backend/internal/cancellation"
	"github.com/gighire/backend/internal/dashboard"
	"github.com/gighire/backend/internal/jobs"
	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/registry"
	"github.com/gighire/backend/internal/respond"
)

const base = "/api/v1"

type Handlers struct {
	Auth         *auth.Handler
	Jobs         *jobs.Handler
	Bookings     *booking.Handler
	Cancellation *cancellation.Handler
	AutoRelease  *autorelease.Handler
	Dashboard    *dashboard.Handler
	Registry     *registry.Handler
}

type Options struct {
	Tokens  middleware.TokenValidator
	Metrics http.Handler
	// Health reports readiness; nil means always healthy.
	Health func(ctx context.Context) error
}

// New returns the API mux. Every route except auth, health and metrics
// requires a bearer token.
func New(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Authenticate(opts.Tokens)
	user := func(fn http.HandlerFunc) http.Handler { return authed(fn) }
	role := func(fn http.HandlerFunc, roles ...string) http.Handler {
		return authed(middleware.RequireRole(roles...)(fn))
	}
	client := func(fn http.HandlerFunc) http.Handler { return role(fn, models.RoleClient) }
	worker := func(fn http.HandlerFunc) http.Handler { return role(fn, models.RoleWorker) }
	admin := func(fn http.HandlerFunc) http.Handler { return role(fn, models.RoleAdmin) }

	mux.HandleFunc("GET /healthz", healthz(opts.Health))
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	mux.Handle("GET "+base+"/me", user(h.Dashboard.GetMe))
	mux.Handle("PATCH "+base+"/me", user(h.Registry.UpdateProfile))
	mux.Handle("GET "+base+"/workers", user(h.Registry.ListActiveWorkers))

	mux.Handle("POST "+base+"/jobs", client(h.Jobs.CreateJob))
	mux.Handle("GET "+base+"/jobs", user(h.Jobs.ListJobs))
	mux.Handle("GET "+base+"/jobs/{id}", user(h.Jobs.GetJob))
	mux.Handle("POST "+base+"/jobs/{id}/cancel", client(h.Jobs.CancelJob))
	mux.Handle("POST "+base+"/jobs/{id}/applications", worker(h.Jobs.Apply))
	mux.Handle("GET "+base+"/jobs/{id}/applications", client(h.Jobs.ListJobApplications))
	mux.Handle("POST "+base+"/jobs/{id}/select", client(h.Jobs.SelectWorker))

	mux.Handle("GET "+base+"/applications", worker(h.Jobs.ListMyApplications))
	mux.Handle("POST "+base+"/applications/{id}/withdraw", worker(h.Jobs.Withdraw))
	mux.Handle("POST "+base+"/applications/{id}/accept", worker(h.Jobs.Accept))
	mux.Handle("POST "+base+"/applications/{id}/decline", worker(h.Jobs.Decline))

	mux.Handle("GET "+base+"/bookings", user(h.Bookings.List))
	mux.Handle("GET "+base+"/bookings/{id}", user(h.Bookings.Get))
	mux.Handle("POST "+base+"/bookings/{id}/start", worker(h.Bookings.Start))
	mux.Handle("POST "+base+"/bookings/{id}/complete", worker(h.Bookings.Complete))
	mux.Handle("POST "+base+"/bookings/{id}/confirm", client(h.Bookings.Confirm))
	mux.Handle("POST "+base+"/bookings/{id}/cancellation", user(h.Bookings.RequestCancellation))
	mux.Handle("POST "+base+"/bookings/{id}/cancellation/respond", user(h.Bookings.RespondToCancellation))
	mux.Handle("POST "+base+"/bookings/{id}/refund", client(h.Bookings.Refund))
	mux.Handle("POST "+base+"/bookings/{id}/dispute", user(h.Bookings.OpenDispute))
	mux.Handle("GET "+base+"/bookings/{id}/worker-cancel", worker(h.Cancellation.Check))
	mux.Handle("POST "+base+"/bookings/{id}/worker-cancel", worker(h.Cancellation.Cancel))

	mux.Handle("GET "+base+"/wallet", user(h.Dashboard.GetWallet))
	mux.Handle("GET "+base+"/wallet/transactions", user(h.Dashboard.ListTransactions))
	mux.Handle("POST "+base+"/wallet/fund", client(h.Dashboard.Fund))
	mux.Handle("POST "+base+"/wallet/fund/verify", client(h.Dashboard.VerifyFunding))

	mux.Handle("POST "+base+"/admin/bookings/{id}/dispute/resolve", admin(h.Bookings.ResolveDispute))
	mux.Handle("POST "+base+"/admin/auto-release/run", admin(h.AutoRelease.RunSweep))
	mux.Handle("GET "+base+"/admin/auto-release/rules", admin(h.AutoRelease.ListRules))
	mux.Handle("POST "+base+"/admin/auto-release/rules", admin(h.AutoRelease.CreateRule))
	mux.Handle("PUT "+base+"/admin/auto-release/rules/{id}", admin(h.AutoRelease.UpdateRule))
	mux.Handle("GET "+base+"/admin/auto-release/logs", admin(h.AutoRelease.ListLogs))
	mux.Handle("GET "+base+"/admin/workers", admin(h.Registry.ListWorkers))
	mux.Handle("PUT "+base+"/admin/workers/{id}/verification", admin(h.Registry.SetVerified))
	mux.Handle("PUT "+base+"/admin/users/{id}/active", admin(h.Registry.SetActive))
	mux.Handle("GET "+base+"/admin/wallets/{id}/reconcile", admin(h.Dashboard.Reconcile))
	mux.Handle("GET "+base+"/admin/escrow/check", admin(h.Dashboard.CheckEscrow))

	mux.HandleFunc(base+"/", func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, nil, apperr.NotFound("route not found"))
	})
	return mux
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, respond.Envelope{Success: false, Message: "unhealthy", Reason: apperr.ReasonInternal})
				return
			}
		}
		respond.OK(w, map[string]string{"status": "ok"})
	}
}
