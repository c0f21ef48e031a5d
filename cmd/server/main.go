// Package main runs the unified launch automation service:
// - Launch pipeline (on demand): scrape → analyze → product → funnel →
//   creatives → campaign
// - Autopilot (scheduled): insight normalization, threshold rules,
//   actions and suggestions
// - HTTP API, websocket event feed and Prometheus metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"adpilot/internal/ads"
	"adpilot/internal/ads/stub"
	"adpilot/internal/autopilot"
	"adpilot/internal/config"
	"adpilot/internal/domain"
	"adpilot/internal/events"
	"adpilot/internal/observability"
	"adpilot/internal/orchestrator"
	"adpilot/internal/storage"
	chstore "adpilot/internal/storage/clickhouse"
	"adpilot/internal/storage/memory"
	"adpilot/internal/storage/migrations"
	pgstore "adpilot/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	executions  storage.ExecutionStore
	actions     storage.ActionStore
	suggestions storage.SuggestionStore
	snapshots   storage.SnapshotStore
	policies    storage.PolicyStore
}

// Server wires the orchestrator, the autopilot engine and the event hub
// behind the HTTP API.
type Server struct {
	orch   *orchestrator.Orchestrator
	engine *autopilot.Engine
	stores *allStores
	hub    *events.Hub
	logger *zap.Logger
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (empty uses embedded defaults)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg, *useMemory, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	// Seed the threshold policy from config on first boot; a policy
	// already persisted through the API wins over the file.
	if _, err := stores.policies.Get(ctx); errors.Is(err, storage.ErrNotFound) {
		p := cfg.Policy()
		if err := stores.policies.Put(ctx, &p); err != nil {
			logger.Fatal("seed threshold policy", zap.Error(err))
		}
	} else if err != nil {
		logger.Fatal("read threshold policy", zap.Error(err))
	}

	hub := events.NewHub(nil, logger)

	// External collaborators. The stub platform stands in until real
	// adapter packages are wired here.
	platform := stub.NewAdPlatform()
	var insights ads.InsightGenerator = &stub.InsightGenerator{}

	orch := orchestrator.New(orchestrator.Options{
		Offers:              &stub.OfferSource{Offers: demoOffers()},
		Products:            &stub.ProductPlatform{},
		Funnels:             &stub.FunnelService{},
		Creatives:           &stub.CreativeService{},
		Platform:            platform,
		Executions:          stores.executions,
		Platforms:           cfg.Pipeline.Platforms,
		MaxOffersPerKeyword: cfg.Pipeline.MaxOffersPerKeyword,
		Backoff: orchestrator.BackoffPolicy{
			MaxAttempts: cfg.Pipeline.Readiness.MaxAttempts,
			Delay:       time.Duration(cfg.Pipeline.Readiness.DelaySeconds) * time.Second,
		},
		Publisher: hub,
		Logger:    logger.Named("orchestrator"),
	})

	engine := autopilot.New(autopilot.Options{
		Platform:    platform,
		Insights:    insights,
		Executor:    autopilot.NewExecutor(platform, stores.actions, logger.Named("executor")),
		Actions:     stores.actions,
		Suggestions: stores.suggestions,
		Snapshots:   stores.snapshots,
		Policies:    stores.policies,
		Publisher:   hub,
		Logger:      logger.Named("autopilot"),
	})

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("autopilot stopped", zap.Error(err))
		}
	}()

	server := &Server{orch: orch, engine: engine, stores: stores, hub: hub, logger: logger}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.routes(),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		hub.Close()
	}()

	logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// newLogger builds a production zap logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// createStores creates all required stores and runs migrations.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *zap.Logger) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			executions:  memory.NewExecutionStore(),
			actions:     memory.NewActionStore(),
			suggestions: memory.NewSuggestionStore(),
			snapshots:   memory.NewSnapshotStore(),
			policies:    memory.NewPolicyStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	stores := &allStores{
		executions:  pgstore.NewExecutionStore(pool),
		actions:     pgstore.NewActionStore(pool),
		suggestions: pgstore.NewSuggestionStore(pool),
		policies:    pgstore.NewPolicyStore(pool),
	}
	cleanup := func() { pool.Close() }

	// The snapshot warehouse is a reporting surface, not part of the
	// control loop. A missing ClickHouse degrades to in-memory snapshots
	// rather than blocking startup.
	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN(cfg))
	if err != nil {
		logger.Warn("clickhouse unavailable, keeping snapshots in memory", zap.Error(err))
		stores.snapshots = memory.NewSnapshotStore()
		return stores, cleanup, nil
	}

	stores.snapshots = chstore.NewSnapshotStore(conn)
	cleanup = func() {
		conn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// clickhouseDSN builds a native-protocol DSN from the config section.
func clickhouseDSN(cfg *config.Config) string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   cfg.ClickHouse.Addr,
		Path:   "/" + cfg.ClickHouse.Database,
	}
	if cfg.ClickHouse.Username != "" {
		u.User = url.UserPassword(cfg.ClickHouse.Username, cfg.ClickHouse.Password)
	}
	return u.String()
}

// routes builds the HTTP API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /pipeline/start", s.handlePipelineStart)
	mux.HandleFunc("GET /pipeline/history", s.handlePipelineHistory)
	mux.HandleFunc("GET /pipeline/{id}", s.handlePipelineStatus)
	mux.HandleFunc("POST /pipeline/{id}/cancel", s.handlePipelineCancel)

	mux.HandleFunc("GET /suggestions", s.handleSuggestions)
	mux.HandleFunc("POST /suggestions/{id}/apply", s.handleSuggestionApply)
	mux.HandleFunc("POST /suggestions/{id}/reject", s.handleSuggestionReject)

	mux.HandleFunc("GET /actions", s.handleActions)
	mux.HandleFunc("GET /policy", s.handlePolicyGet)
	mux.HandleFunc("PUT /policy", s.handlePolicyPut)
	mux.HandleFunc("POST /autopilot/run", s.handleAutopilotRun)
	mux.HandleFunc("GET /campaigns/{id}/snapshots", s.handleSnapshots)

	mux.Handle("GET /ws", s.hub)
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func (s *Server) handlePipelineStart(w http.ResponseWriter, r *http.Request) {
	var cfg domain.AutomationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode config: %w", err))
		return
	}

	id, err := s.orch.Start(r.Context(), cfg)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, orchestrator.ErrRunInProgress):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": id})
	}
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	exec, err := s.orch.Status(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, orchestrator.ErrExecutionNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, exec)
	}
}

func (s *Server) handlePipelineCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Cancel(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePipelineHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	execs, err := s.orch.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.engine.OpenSuggestions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleSuggestionApply(w http.ResponseWriter, r *http.Request) {
	action, err := s.engine.ApplySuggestion(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, autopilot.ErrAlreadyApplied):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, action)
	}
}

func (s *Server) handleSuggestionReject(w http.ResponseWriter, r *http.Request) {
	err := s.engine.RejectSuggestion(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	actions, err := s.engine.RecentActions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handlePolicyGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Policy(r.Context()))
}

func (s *Server) handlePolicyPut(w http.ResponseWriter, r *http.Request) {
	var p domain.ThresholdPolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode policy: %w", err))
		return
	}

	err := s.engine.SetPolicy(r.Context(), p)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleAutopilotRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunCycle(r.Context())
	switch {
	case errors.Is(err, autopilot.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	records, err := s.stores.snapshots.GetByCampaignID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// demoOffers is the built-in offer catalog the stub source searches until a
// real scraping adapter replaces it.
func demoOffers() []*domain.CandidateOffer {
	now := time.Now().UnixMilli()
	return []*domain.CandidateOffer{
		{
			ID: "offer_yoga_mat", Title: "Align Pro Yoga Mat", Niche: domain.NicheWhite,
			Price: 39.99, Score: 86,
			RawMetrics: domain.OfferMetrics{Likes: 5400, Comments: 320, Shares: 210},
			ScrapedAt:  now,
		},
		{
			ID: "offer_resistance_bands", Title: "FlexBand Resistance Set", Niche: domain.NicheWhite,
			Price: 24.99, Score: 78,
			RawMetrics: domain.OfferMetrics{Likes: 3100, Comments: 150, Shares: 95},
			ScrapedAt:  now,
		},
		{
			ID: "offer_posture_brace", Title: "UprightGo Posture Trainer", Niche: domain.NicheWhite,
			Price: 49.99, Score: 71,
			RawMetrics: domain.OfferMetrics{Likes: 1800, Comments: 80, Shares: 40},
			ScrapedAt:  now,
		},
	}
}
