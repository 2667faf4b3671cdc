package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cashflow/core"
	"cashflow/core/types"
	"cashflow/crypto"
	"cashflow/native/amm"
	"cashflow/native/receivable"
	"cashflow/observability"
	"cashflow/services/cashflowd/index"
)

const requestIDHeader = "X-Request-ID"

// Ledger is the ledger surface the API drives.
type Ledger interface {
	Apply(ctx context.Context, tx *types.Transaction) (*core.Receipt, error)
	Vault(id crypto.Address) (*receivable.Vault, error)
	Vaults() ([]*receivable.Vault, error)
	PaymentCycle(vault crypto.Address, month uint32) (*receivable.PaymentCycle, error)
	Pool(id crypto.Address) (*amm.Pool, error)
	Position(id [32]byte) (*amm.Position, error)
	Positions(pool crypto.Address) ([]*amm.Position, error)
	Balance(mint, owner crypto.Address) (uint64, error)
	QuoteShares(pool crypto.Address, amountA, amountB uint64) (uint64, error)
}

// Index serves historical queries from the event index.
type Index interface {
	Redemptions(ctx context.Context, vault string, limit int) ([]index.RedemptionRow, error)
	Sales(ctx context.Context, vault string, limit int) ([]index.SaleRow, error)
	Events(ctx context.Context, filter index.EventFilter) ([]index.EventRow, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress  string
	Decimals       uint8
	AllowedOrigins []string
}

// Server exposes the ledger over HTTP.
type Server struct {
	cfg     Config
	ledger  Ledger
	index   Index
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
}

// New constructs a new HTTP server. index, hub and limiter may be nil.
func New(cfg Config, ledger Ledger, idx Index, hub *Hub, auth *Authenticator, limiter *RateLimiter) (*Server, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{cfg: cfg, ledger: ledger, index: idx, hub: hub, auth: auth, limiter: limiter}, nil
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(observeRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware)

			public.Get("/vaults", s.handleListVaults)
			public.Get("/vaults/{vault}", s.handleGetVault)
			public.Get("/vaults/{vault}/cycles/{month}", s.handleGetCycle)
			public.Get("/vaults/{vault}/redemptions", s.handleListRedemptions)
			public.Get("/vaults/{vault}/sales", s.handleListSales)
			public.Get("/pools/{pool}", s.handleGetPool)
			public.Get("/pools/{pool}/positions", s.handleListPositions)
			public.Get("/positions/{position}", s.handleGetPosition)
			public.Get("/balances/{mint}/{owner}", s.handleGetBalance)
			public.Get("/quotes/purchase", s.handleQuotePurchase)
			public.Get("/quotes/liquidity", s.handleQuoteLiquidity)
			public.Get("/events", s.handleListEvents)
			public.Get("/events/stream", s.handleEventStream)
		})

		v1.Group(func(authed chi.Router) {
			authed.Use(s.auth.Middleware)
			authed.Use(s.limiter.Middleware)

			authed.Post("/vaults", s.handleCreateVault)
			authed.Post("/vaults/{vault}/mint", s.handleMintTokens)
			authed.Post("/vaults/{vault}/purchase", s.handlePurchaseTokens)
			authed.Post("/vaults/{vault}/payments", s.handleReceivePayment)
			authed.Post("/vaults/{vault}/redemptions", s.handleRedeem)
			authed.Post("/pools", s.handleCreatePool)
			authed.Post("/pools/{pool}/liquidity", s.handleProvideLiquidity)
			authed.Post("/positions/{position}/withdraw", s.handleWithdrawLiquidity)
			authed.With(RequireAdmin).Post("/admin/fund", s.handleFund)
		})
	})
	return otelhttp.NewHandler(r, "cashflowd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("cashflowd: http server listening on %s", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes the connection through for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.HTTP().Observe(route, rec.status, time.Since(start))
	})
}
