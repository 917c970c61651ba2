// Package server hosts strategies behind an HTTP decision API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb"
	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/pkg/observability"
	"github.com/snow-ghost/dilemma/pkg/tracing"
	"github.com/snow-ghost/dilemma/server/api"
	"github.com/snow-ghost/dilemma/store"
)

var (
	errSessionConflict = errors.New("session conflict")
	errSessionBusy     = fmt.Errorf("%w: a decision is already in flight", errSessionConflict)
)

// Config holds the decision server settings.
type Config struct {
	Port         string             `yaml:"port" json:"port"`
	MaxSessions  int                `yaml:"max_sessions" json:"max_sessions"`
	ReadTimeout  time.Duration      `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration      `yaml:"write_timeout" json:"write_timeout"`
	Payoff       match.Payoff       `yaml:"payoff" json:"payoff"`
	Rate         limiter.RateConfig `yaml:"rate" json:"rate"`
}

func DefaultConfig() Config {
	return Config{
		Port:         "8090",
		MaxSessions:  10000,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		Payoff:       match.DefaultPayoff(),
		Rate:         limiter.DefaultRateConfig(),
	}
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.MaxSessions)
	}
	if c.Rate.RPS < 0 {
		return fmt.Errorf("rate.rps must not be negative")
	}
	return c.Payoff.Validate()
}

// Resolver turns a strategy name into a player.
type Resolver func(ctx context.Context, name string) (core.Strategy, error)

// Server represents the HTTP server
type Server struct {
	config     Config
	logger     *logging.Logger
	obs        *observability.Manager
	router     *http.ServeMux
	catalog    kb.Catalog
	resolve    Resolver
	sessions   *SessionTable
	limiter    *limiter.RateLimiter
	tournament http.Handler
	store      store.Store
}

type Option func(*Server)

// WithObservability sets metrics, tracing and logging.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) { s.obs = obs }
}

// WithTournaments serves POST /v1/tournament with h.
func WithTournaments(h http.Handler) Option {
	return func(s *Server) { s.tournament = h }
}

// WithStore serves stored tournaments.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// NewServer creates a new HTTP server. Strategies are listed from catalog and
// built by resolve.
func NewServer(config Config, catalog kb.Catalog, resolve Resolver, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if catalog == nil || resolve == nil {
		return nil, errors.New("server needs a catalog and a resolver")
	}
	sessions, err := NewSessionTable(config.MaxSessions)
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:   config,
		router:   http.NewServeMux(),
		catalog:  catalog,
		resolve:  resolve,
		sessions: sessions,
		limiter:  limiter.NewRateLimiter(config.Rate),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.obs == nil {
		s.obs = observability.NewNop()
	}
	s.logger = s.obs.GetLogger().Named("decider")
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", s.obs.GetMetrics().Handler())

	v1 := http.NewServeMux()
	v1.HandleFunc("/decide", s.handleDecide)
	v1.HandleFunc("/strategies", s.handleStrategies)
	v1.HandleFunc("/tournament", s.handleTournament)
	v1.HandleFunc("GET /tournaments", s.handleListTournaments)
	v1.HandleFunc("GET /tournaments/{id}", s.handleGetTournament)
	v1.HandleFunc("GET /tournaments/{id}/csv", s.handleExportTournament)

	s.router.Handle("/v1/", http.StripPrefix("/v1", s.limit(v1)))
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	return s.sessions.Len()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "port", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "decider",
		"sessions":  s.sessions.Len(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleDecide plays one round for a session
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	var req api.DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid JSON", api.CodeInvalidJSON, http.StatusBadRequest)
		return
	}
	resp, status, err := s.decide(r.Context(), req)
	if err != nil {
		s.obs.RecordDecide(req.Strategy, "error", time.Since(start))
		s.writeError(w, err.Error(), codeFor(status), status)
		return
	}
	s.obs.RecordDecide(req.Strategy, "ok", time.Since(start))
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decide(ctx context.Context, req api.DecideRequest) (api.DecideResponse, int, error) {
	if err := req.Validate(); err != nil {
		return api.DecideResponse{}, http.StatusBadRequest, err
	}
	own, opponent, err := req.Histories()
	if err != nil {
		return api.DecideResponse{}, http.StatusBadRequest, err
	}

	ctx, span := s.obs.GetTracer().StartDecideSpan(ctx, req.SessionID, req.Strategy, len(own))
	defer span.End()

	sess, rebuilt, err := s.sessions.Acquire(ctx, req, own, opponent, s.resolve, s.config.Payoff)
	if err != nil {
		tracing.RecordSpanError(span, err)
		switch {
		case errors.Is(err, kb.ErrNotFound):
			return api.DecideResponse{}, http.StatusNotFound, err
		case errors.Is(err, errSessionConflict):
			return api.DecideResponse{}, http.StatusConflict, err
		}
		return api.DecideResponse{}, http.StatusInternalServerError, err
	}
	if rebuilt {
		s.requestLogger(ctx).Info("session rebuilt from history", "session_id", req.SessionID, "round", len(own))
	}
	resp := sess.decide(req, own, opponent)
	sess.mu.Unlock()

	if resp.Done {
		s.sessions.Release(sess)
	}
	s.obs.GetMetrics().SetActiveSessions(s.sessions.Len())
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"decide.action": resp.Action.String(),
		"decide.mode":   string(resp.Mode),
	})
	tracing.RecordSpanSuccess(span)
	return resp, http.StatusOK, nil
}

// requestLogger scopes the server logger to the request and its trace.
func (s *Server) requestLogger(ctx context.Context) *logging.Logger {
	l := s.logger
	if id := observability.GetRequestIDFromContext(ctx); id != "" {
		l = l.WithRequestID(ctx, id)
	}
	if id := tracing.GetTraceID(ctx); id != "" {
		l = l.WithTraceID(ctx, id)
	}
	return l
}

// handleStrategies lists the hosted strategies
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tag := r.URL.Query().Get("tag")
	configs := s.catalog.List()
	if tag != "" {
		configs = s.catalog.FindByTag(tag)
	}
	infos := make([]api.StrategyInfo, 0, len(configs))
	for _, c := range configs {
		infos = append(infos, api.StrategyInfo{
			Name:        c.Name,
			Description: c.Description,
			Tags:        c.Tags,
			Rule:        string(c.Rule.Kind),
			Complexity:  c.Complexity(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	s.writeJSON(w, http.StatusOK, api.StrategiesResponse{Strategies: infos})
}

// handleTournament hands tournament submissions to the configured runner
func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	if s.tournament == nil {
		s.writeError(w, "Tournaments not available", api.CodeUnavailable, http.StatusServiceUnavailable)
		return
	}
	s.tournament.ServeHTTP(w, r)
}

func (s *Server) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "Store not available", api.CodeUnavailable, http.StatusServiceUnavailable)
		return
	}
	filter := store.Filter{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, "Invalid limit", api.CodeInvalidRequest, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	list, err := s.store.ListTournaments(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list tournaments", "error", err)
		s.writeError(w, "Failed to list tournaments", api.CodeInternal, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tournaments": list})
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "Store not available", api.CodeUnavailable, http.StatusServiceUnavailable)
		return
	}
	t, err := s.store.GetTournament(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleExportTournament(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "Store not available", api.CodeUnavailable, http.StatusServiceUnavailable)
		return
	}
	data, err := s.store.ExportCSV(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, err.Error(), api.CodeNotFound, http.StatusNotFound)
		return
	}
	s.logger.Error("store lookup failed", "error", err)
	s.writeError(w, "Store lookup failed", api.CodeInternal, http.StatusInternalServerError)
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return api.CodeInvalidRequest
	case http.StatusNotFound:
		return api.CodeUnknownStrategy
	case http.StatusConflict:
		return api.CodeSessionConflict
	}
	return api.CodeInternal
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, message, code string, statusCode int) {
	s.writeJSON(w, statusCode, api.ErrorResponse{Error: message, Code: code})
}
