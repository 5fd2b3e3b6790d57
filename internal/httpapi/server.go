// Package httpapi wires the HTTP surface of the bookkeeping service. It
// keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tealbook/ledgerd/internal/service/account"
	"github.com/tealbook/ledgerd/internal/service/recon"
	"github.com/tealbook/ledgerd/internal/service/rules"
	"github.com/tealbook/ledgerd/internal/service/search"
	"github.com/tealbook/ledgerd/internal/service/transaction"
)

// Store is the union of the repository and writer interfaces the services
// need; both the memory and postgres stores satisfy it.
type Store interface {
	account.Repo
	account.Writer
	transaction.Repo
	transaction.Writer
	search.Repo
	recon.Store
	rules.Repo
	rules.Writer
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Server wires handlers and middleware using chi.
type Server struct {
	accounts     account.Service
	transactions transaction.Service
	search       search.Service
	recon        recon.Service
	rules        rules.Service
	store        Store
	log          *slog.Logger
	rt           *chi.Mux
}

// New constructs the HTTP server with routes and middleware. The rule engine
// is attached to the transaction write pipeline as its auto-apply hook.
func New(store Store, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	ruleSvc := rules.New(store, store)
	s := &Server{
		accounts:     account.New(store, store),
		transactions: transaction.New(store, store, ruleSvc),
		search:       search.New(store),
		recon:        recon.New(store),
		rules:        ruleSvc,
		store:        store,
		log:          logger,
		rt:           r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints.
func (s *Server) routes() {
	// Accounts
	s.rt.Post("/v1/accounts", s.postAccount)
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Get("/v1/accounts/{id}", s.getAccount)
	s.rt.Patch("/v1/accounts/{id}", s.updateAccount)
	s.rt.Delete("/v1/accounts/{id}", s.deleteAccount)
	// Transactions
	s.rt.Post("/v1/transactions", s.postTransaction)
	s.rt.Get("/v1/transactions", s.listTransactions)
	s.rt.Get("/v1/transactions/{id}", s.getTransaction)
	s.rt.Put("/v1/transactions/{id}", s.putTransaction)
	s.rt.Delete("/v1/transactions/{id}", s.deleteTransaction)
	s.rt.Delete("/v1/transactions/{id}/entries/{entryID}", s.deleteEntry)
	// Search
	s.rt.Get("/v1/search/entries", s.searchEntries)
	s.rt.Get("/v1/search/complementary", s.searchComplementary)
	// Reconciliation
	s.rt.Post("/v1/reconcile/merge", s.mergeTransactions)
	s.rt.Post("/v1/reconcile/move", s.moveEntry)
	s.rt.Post("/v1/reconcile/split", s.splitTransaction)
	// Rules
	s.rt.Post("/v1/rules", s.postRule)
	s.rt.Get("/v1/rules", s.listRules)
	s.rt.Get("/v1/rules/{id}", s.getRule)
	s.rt.Put("/v1/rules/{id}", s.putRule)
	s.rt.Delete("/v1/rules/{id}", s.deleteRule)
	s.rt.Post("/v1/rules/apply", s.bulkApplyRules)
	// Ops
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	toJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if rc, ok := s.store.(ReadyChecker); ok {
		if err := rc.Ready(r.Context()); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "store not ready", "not_ready")
			return
		}
	}
	toJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
