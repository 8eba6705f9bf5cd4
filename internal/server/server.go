package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/deliveries"
	"github.com/learnhub/payhook/internal/metrics"
	"github.com/learnhub/payhook/internal/paypal"
	"github.com/learnhub/payhook/internal/purchases"
	"github.com/learnhub/payhook/internal/settlement"
	"github.com/learnhub/payhook/internal/webhooks"
)

type Server struct {
	cfg         *config.Config
	db          *database.DB
	version     string
	store       settlement.Store
	verifier    paypal.Verifier
	applier     *settlement.Applier
	deliveries  *deliveries.Store
	pruner      *deliveries.Pruner
	webhook     *webhooks.Handler
	hashLimiter *RateLimiter
	httpServer  *http.Server
	router      *Router
	stopStats   chan struct{}
}

const dbStatsInterval = 15 * time.Second

type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithPurchaseStore overrides the store selected by store.driver.
func WithPurchaseStore(store settlement.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithPayPalVerifier overrides the verifier built from gateways.paypal.
func WithPayPalVerifier(v paypal.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

func New(cfg *config.Config, db *database.DB, opts ...Option) (*Server, error) {
	srv := &Server{
		cfg:       cfg,
		db:        db,
		version:   "dev",
		stopStats: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.store == nil {
		srv.store = newPurchaseStore(cfg, db)
	}
	srv.applier = settlement.NewApplier(srv.store, cfg.Settlement.Timeout)

	if srv.verifier == nil && cfg.Gateways.PayPal.Enabled {
		srv.verifier = paypal.NewAPIVerifier(cfg.Gateways.PayPal)
	}

	handlerCfg := webhooks.HandlerConfig{
		Adapters: &webhooks.Adapters{
			Bank:   webhooks.NewBankAdapter(cfg.Gateways.Bank.StoreKey),
			PayPal: webhooks.NewPayPalAdapter(srv.verifier, cfg.Gateways.PayPal.UnknownEvents),
			Query:  webhooks.NewQueryAdapter(),
		},
		Settler:      srv.applier,
		QueryEnabled: cfg.Gateways.Query.Enabled,
		MaxBodySize:  cfg.Server.MaxBodySize,
	}

	if cfg.Audit.Enabled {
		srv.deliveries = deliveries.NewStore(db)
		handlerCfg.Deliveries = srv.deliveries

		pruner, err := deliveries.NewPruner(srv.deliveries, cfg.Audit.PruneSchedule, cfg.Audit.Retention)
		if err != nil {
			return nil, fmt.Errorf("creating delivery pruner: %w", err)
		}
		srv.pruner = pruner
	}

	srv.webhook = webhooks.NewHandler(handlerCfg)
	srv.hashLimiter = NewRateLimiter(cfg.Server.RateLimit.HashGeneration)

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

func newPurchaseStore(cfg *config.Config, db *database.DB) settlement.Store {
	if cfg.Store.Driver == config.StoreDriverRPC {
		return purchases.NewRPCStore(cfg.Store.RPC, cfg.Settlement.Timeout)
	}
	return purchases.NewStore(db)
}

func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Str("store", s.cfg.Store.Driver).
		Bool("paypal", s.verifier != nil).
		Bool("query_callbacks", s.cfg.Gateways.Query.Enabled).
		Msg("Starting server")

	if s.pruner != nil {
		if _, err := s.pruner.PruneNow(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial delivery prune failed")
		}
		s.pruner.Start()
	}

	if s.cfg.Metrics.Enabled {
		go s.collectDBStats()
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	err := s.httpServer.Shutdown(ctx)

	close(s.stopStats)
	s.hashLimiter.Stop()
	if s.pruner != nil {
		s.pruner.Stop()
	}

	return err
}

func (s *Server) collectDBStats() {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		stats := s.db.Stats()
		metrics.UpdateDBStats(stats.OpenConnections, stats.InUse, stats.Idle)

		select {
		case <-ticker.C:
		case <-s.stopStats:
			return
		}
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) DB() *database.DB {
	return s.db
}

func (s *Server) Config() *config.Config {
	return s.cfg
}
