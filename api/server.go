// Package api exposes the token sale engine over HTTP as JSON.
//
// Mutating routes act on behalf of the account named in the
// X-Caller-Address header. Authenticating that header is the job of the
// host's middleware.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/tokensale"
)

// CallerHeader names the account a request acts for.
const CallerHeader = "X-Caller-Address"

// Server serves the engine's operations.
type Server struct {
	engine   *tokensale.Engine
	logger   *slog.Logger
	basePath string
	metrics  *httpMetrics

	router http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithBasePath mounts every route under path.
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = strings.TrimRight(path, "/") }
}

// WithRegisterer records request counts and latencies on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.metrics = newHTTPMetrics(reg) }
}

// New builds the HTTP API over engine.
func New(engine *tokensale.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.middleware)
	}

	route := func(r chi.Router) {
		r.Get("/healthz", s.health)

		r.Route("/sales", func(sales chi.Router) {
			sales.Get("/", s.listSales)
			sales.Post("/", s.createSale)

			sales.Route("/{saleID}", func(one chi.Router) {
				one.Get("/", s.getSale)
				one.Get("/status", s.getStatus)
				one.Get("/balances", s.getBalances)
				one.Get("/limits/{address}", s.getLimit)
				one.Get("/purchases", s.listPurchases)
				one.Get("/withdrawals", s.listWithdrawals)

				one.Group(func(caller chi.Router) {
					caller.Use(requireCaller)
					caller.Post("/fund", s.fund)
					caller.Post("/buy", s.buyTokens)
					caller.Post("/price", s.updatePrice)
					caller.Post("/withdraw", s.withdraw)
					caller.Post("/withdraw-tokens", s.withdrawTokens)
				})
			})
		})
	}

	if s.basePath == "" {
		route(r)
	} else {
		r.Route(s.basePath, route)
	}

	return r
}
