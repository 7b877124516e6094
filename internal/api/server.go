// Package api provides the HTTP API for observing and steering the simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/config"
	"github.com/talgya/mobility/internal/engine"
	"github.com/talgya/mobility/internal/llm"
	"github.com/talgya/mobility/internal/persistence"
)

const maxSSEConns = 8

// sseHeartbeat is the idle interval between SSE keep-alive comments.
var sseHeartbeat = 15 * time.Second

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	LLM      *llm.Client
	Archive  *persistence.Recorder // nil = archive disabled
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// CORSOrigins are allowed in addition to the local dev servers.
	CORSOrigins []string

	// NarrativesPerHour bounds narrative requests per client IP.
	NarrativesPerHour int

	// DefaultRounds is used by start commands that do not name a round count.
	DefaultRounds int

	// Active SSE connection count (atomic).
	sseConns int32

	// runMu guards the engine goroutine handle and the base context.
	runMu     sync.Mutex
	baseCtx   context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}

	// Cached narratives (agent ID → cached narrative), cleared on reset.
	narrMu    sync.Mutex
	narrCache map[agents.AgentID]cachedNarrative
}

type cachedNarrative struct {
	Narrative   string `json:"narrative"`
	GeneratedAt int    `json:"generated_at_round"`
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	narrativeLimiter := NewRateLimiter(s.NarrativesPerHour, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentRoutes(narrativeLimiter))
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/tasks", s.handleTasks)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	// SSE streaming endpoint.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/control", s.adminOnly(s.handleControl))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start serves the HTTP API until ctx is cancelled. Engine runs launched by
// control commands inherit ctx.
func (s *Server) Start(ctx context.Context) error {
	s.runMu.Lock()
	s.baseCtx = ctx
	s.runMu.Unlock()

	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "llm", s.LLM.Enabled(), "archive", s.Archive != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	s.stopEngine()
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no MOBILITY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	opts := s.Sim.Options()
	stats := s.Sim.Stats()

	status := map[string]any{
		"name":       "Social Mobility Simulation",
		"round":      stats.Round,
		"max_rounds": s.Eng.MaxRounds(),
		"running":    s.Eng.Running(),
		"paused":     s.Eng.Paused(),
		"complete":   s.Eng.Complete(),
		"speed":      s.Eng.Speed(),
		"agents":     opts.Agents,
		"alive":      stats.Alive,
		"dropouts":   stats.Dropouts,
		"seed":       opts.Seed,
		"policy":     opts.Policy.String(),
		"llm":        s.LLM.Enabled(),
		"llm_usage":  s.LLM.Usage(),
	}
	if s.Archive != nil {
		if run, ok := s.Archive.Run(); ok {
			status["run_id"] = run.ID
		}
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var class *agents.Wealth
	if c := q.Get("class"); c != "" {
		parsed, err := agents.ParseWealth(c)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		class = &parsed
	}
	var alive *bool
	if a := q.Get("alive"); a != "" {
		b, err := strconv.ParseBool(a)
		if err != nil {
			http.Error(w, "alive must be true or false", http.StatusBadRequest)
			return
		}
		alive = &b
	}

	result := []agents.AgentSummary{}
	for _, a := range s.Sim.Snapshot().Agents {
		if class != nil && a.Class != *class {
			continue
		}
		if alive != nil && a.Alive != *alive {
			continue
		}
		result = append(result, a)
	}
	writeJSON(w, result)
}

// handleAgentRoutes dispatches /api/v1/agent/:id, /:id/history and /:id/narrative.
func (s *Server) handleAgentRoutes(narrativeLimiter *RateLimiter) http.HandlerFunc {
	rateLimitedNarrative := RateLimitMiddleware(narrativeLimiter, s.handleNarrative)

	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
		if len(parts) < 5 || parts[4] == "" {
			http.Error(w, "missing agent id", http.StatusBadRequest)
			return
		}
		id, err := strconv.ParseUint(parts[4], 10, 64)
		if err != nil {
			http.Error(w, "invalid agent id", http.StatusBadRequest)
			return
		}

		detail, ok := s.Sim.Agent(agents.AgentID(id))
		if !ok {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}

		if len(parts) == 5 {
			writeJSON(w, detail)
			return
		}
		switch parts[5] {
		case "history":
			writeJSON(w, detail.History)
		case "narrative":
			rateLimitedNarrative(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	if !s.LLM.Enabled() {
		http.Error(w, "narratives disabled (no ANTHROPIC_API_KEY set)", http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	id, _ := strconv.ParseUint(parts[4], 10, 64)
	detail, ok := s.Sim.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	refresh := r.URL.Query().Get("refresh") == "true"

	// Refresh requires admin auth (LLM-consuming operation).
	if refresh {
		if s.AdminKey == "" || !s.checkBearerToken(r) {
			http.Error(w, "refresh requires admin authorization", http.StatusUnauthorized)
			return
		}
	}

	s.narrMu.Lock()
	if s.narrCache == nil {
		s.narrCache = make(map[agents.AgentID]cachedNarrative)
	}
	cached, hasCached := s.narrCache[detail.ID]
	s.narrMu.Unlock()

	if hasCached && !refresh {
		writeJSON(w, map[string]any{
			"name":               detail.Name,
			"narrative":          cached.Narrative,
			"generated_at_round": cached.GeneratedAt,
		})
		return
	}

	text, err := llm.GenerateNarrative(r.Context(), s.LLM, llm.NewNarrativeContext(detail))
	if err != nil {
		slog.Error("narrative generation failed", "error", err, "agent", detail.Name)
		status := http.StatusBadGateway
		if errors.Is(err, llm.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, "narrative generation failed", status)
		return
	}

	round := s.Sim.CurrentRound()
	s.narrMu.Lock()
	s.narrCache[detail.ID] = cachedNarrative{Narrative: text, GeneratedAt: round}
	s.narrMu.Unlock()

	writeJSON(w, map[string]any{
		"name":               detail.Name,
		"narrative":          text,
		"generated_at_round": round,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.Events(limit, r.URL.Query().Get("category"))
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

// handleStatsHistory returns per-round aggregates of the live simulation, or
// of an archived run when ?run= names one.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		history := s.Sim.StatsHistory()
		if history == nil {
			history = []engine.RoundStats{}
		}
		writeJSON(w, history)
		return
	}

	if s.Archive == nil {
		http.Error(w, "archive not available", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.Archive.DB.RoundStats(runID)
	if err != nil {
		slog.Error("stats history query failed", "error", err, "run", runID)
		http.Error(w, "stats history query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []engine.RoundStats{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Catalog())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		http.Error(w, "archive not available", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	runs, err := s.Archive.DB.Runs(limit)
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "runs query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// controlRequest is the body of POST /api/v1/control.
type controlRequest struct {
	Command string `json:"command"`
	Agents  int    `json:"agents,omitempty"`
	Rounds  int    `json:"rounds,omitempty"`
	Seed    *int64 `json:"seed,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch req.Command {
	case "start":
		opts, rounds := s.resetFrom(req)
		s.Launch(rounds)
		writeJSON(w, map[string]any{
			"message": fmt.Sprintf("Simulation started with %d agents for %d rounds", opts.Agents, rounds),
			"agents":  opts.Agents,
			"rounds":  rounds,
		})

	case "pause":
		s.Eng.Pause()
		writeJSON(w, map[string]any{"message": "Simulation paused", "round": s.Sim.CurrentRound()})

	case "resume":
		s.Eng.Resume()
		if !s.Eng.Running() && !s.Eng.Complete() {
			s.launchEngine()
		}
		writeJSON(w, map[string]any{"message": "Simulation resumed", "round": s.Sim.CurrentRound()})

	case "reset":
		opts, rounds := s.resetFrom(req)
		s.Eng.SetMaxRounds(rounds)
		writeJSON(w, map[string]any{
			"message": "Simulation reset",
			"agents":  opts.Agents,
			"rounds":  rounds,
		})

	default:
		http.Error(w, "unknown command (use: start, pause, resume, reset)", http.StatusBadRequest)
	}
}

// resetFrom stops the engine and respawns the population using the request's
// overrides, clamped to the accepted limits.
func (s *Server) resetFrom(req controlRequest) (engine.Options, int) {
	s.stopEngine()

	opts := s.Sim.Options()
	if req.Agents != 0 {
		opts.Agents = config.ClampAgents(req.Agents)
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	rounds := s.DefaultRounds
	if req.Rounds != 0 {
		rounds = req.Rounds
	}
	rounds = config.ClampRounds(rounds)

	s.Sim.Reset(opts)

	s.narrMu.Lock()
	s.narrCache = nil
	s.narrMu.Unlock()

	slog.Info("simulation control", "command", req.Command, "agents", opts.Agents, "rounds", rounds, "seed", opts.Seed)
	return opts, rounds
}

// Launch runs the current population for up to rounds rounds in the
// background, archiving it as a new run.
func (s *Server) Launch(rounds int) {
	s.Eng.SetMaxRounds(rounds)
	s.Eng.Resume()
	s.beginArchive(rounds)
	s.launchEngine()
}

func (s *Server) beginArchive(rounds int) {
	if s.Archive == nil {
		return
	}
	run, err := s.Archive.Begin(rounds)
	if err != nil {
		slog.Error("archive run not started", "error", err)
		return
	}
	slog.Info("archiving run", "run", run.ID)
}

// launchEngine runs the engine in the background unless it already runs.
// When the run ends the final snapshot is archived.
func (s *Server) launchEngine() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.runDone != nil {
		select {
		case <-s.runDone:
		default:
			return
		}
	}

	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	done := make(chan struct{})
	s.runCancel = cancel
	s.runDone = done

	go func() {
		defer close(done)
		defer cancel()
		err := s.Eng.Run(ctx)
		switch {
		case errors.Is(err, engine.ErrRunning):
			return
		case err != nil && !errors.Is(err, context.Canceled):
			slog.Error("simulation engine error", "error", err)
		}
		if s.Archive != nil {
			if err := s.Archive.Finish(); err != nil && !errors.Is(err, persistence.ErrNoRun) {
				slog.Error("archive finish failed", "error", err)
			}
		}
	}()
}

// stopEngine stops a launched engine and waits for its final archive write.
func (s *Server) stopEngine() {
	s.runMu.Lock()
	cancel, done := s.runCancel, s.runDone
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.Eng.Stop()
	if done != nil {
		<-done
	}
}

// handleStream provides an SSE endpoint for real-time event streaming.
// Each round event is followed by a snapshot of every agent.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before the catch-up so no event falls between the two.
	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	for _, e := range s.Sim.Events(50, "") {
		writeSSE(w, e.Category, e)
	}
	writeSSE(w, "snapshot", s.Sim.Snapshot())
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	// Stream loop with heartbeat.
	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, e.Category, e)
			if e.Category == engine.CategoryRound {
				writeSSE(w, "snapshot", s.Sim.Snapshot())
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSE writes a single named event in SSE format.
func writeSSE(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
