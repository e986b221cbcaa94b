package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/daniacca/plife/internal/plife"
	plifenotifiers "github.com/daniacca/plife/internal/plife/notifiers"
)

// extractSimID extracts the simulation ID from a path like "/sim/{simID}/..."
// Returns the simulation ID and the remaining path, or empty string if not found
func extractSimID(path string) (plife.SimulationID, string) {
	if !strings.HasPrefix(path, "/sim/") {
		return "", ""
	}

	// Remove "/sim/" prefix
	rest := path[5:]

	// Find the next "/"
	idx := strings.Index(rest, "/")
	if idx == -1 {
		// No more path segments, the whole thing is the sim ID
		return plife.SimulationID(rest), ""
	}

	simID := plife.SimulationID(rest[:idx])
	remainingPath := rest[idx:]
	return simID, remainingPath
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// getSimulation resolves the simulation from the request path, writing
// the error response itself when it cannot.
func (s *Server) getSimulation(w http.ResponseWriter, r *http.Request) (*plife.Simulation, bool) {
	simID, _ := extractSimID(r.URL.Path)
	if simID == "" {
		http.Error(w, "simulation ID is required in path: /sim/{simID}/...", http.StatusBadRequest)
		return nil, false
	}
	sim, exists := s.manager.GetSimulation(simID)
	if !exists {
		http.Error(w, "simulation not found", http.StatusNotFound)
		return nil, false
	}
	return sim, true
}

// POST /sim/{simID}/world
// Body: WorldConfig JSON
// Creates a new simulation with the given ID and config, or replaces an existing one
func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	simID, _ := extractSimID(r.URL.Path)
	if simID == "" {
		http.Error(w, "simulation ID is required in path: /sim/{simID}/world", http.StatusBadRequest)
		return
	}

	var cfg plife.WorldConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid world config json: "+err.Error(), http.StatusBadRequest)
		return
	}

	sim, err := s.manager.ReplaceSimulation(simID, cfg)
	if err != nil {
		http.Error(w, "cannot build simulation: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.attachSimulation(sim)

	s.logger.Infof("Simulation configured: sim_id=%s world=%s particles=%d", simID, cfg.Name, cfg.Particles)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("world loaded"))
}

// POST /sim/{simID}/rules
// Body: { "matrix": [[...]], "radii": [[...]], "beta": 0.3, "max_radius": 0.05 }
// An empty body re-randomizes the attraction matrix instead.
type setRulesRequest struct {
	Matrix    [][]float64 `json:"matrix"`
	Radii     [][]float64 `json:"radii,omitempty"`
	Beta      float64     `json:"beta,omitempty"`
	MaxRadius float64     `json:"max_radius,omitempty"`
}

func (s *Server) handleSetRules(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// A malformed body is a client error; only a well-formed request
	// without a matrix (or no body at all) re-randomizes, so a typo
	// cannot destroy the current rule set.
	var req setRulesRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid rules json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.Matrix == nil {
		if err := sim.RandomizeRules(); err != nil {
			http.Error(w, "cannot randomize rules: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.logger.Infof("Rules randomized: sim_id=%s", sim.ID())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("rules randomized"))
		return
	}

	types := len(req.Matrix)
	maxRadius := req.MaxRadius
	if maxRadius == 0 {
		maxRadius = sim.Rules().MaxRadius()
	}
	beta := req.Beta
	if beta == 0 {
		beta = plife.DefaultBeta
	}

	rules := make([]plife.Rule, 0, types*types)
	for from := 0; from < types; from++ {
		if len(req.Matrix[from]) != types {
			http.Error(w, "matrix must be square", http.StatusBadRequest)
			return
		}
		for to := 0; to < types; to++ {
			radius := maxRadius
			if req.Radii != nil {
				if len(req.Radii) != types || len(req.Radii[from]) != types {
					http.Error(w, "radii must match the matrix shape", http.StatusBadRequest)
					return
				}
				radius = req.Radii[from][to]
			}
			rules = append(rules, plife.Rule{Attraction: req.Matrix[from][to], MaxRadius: radius})
		}
	}

	table, err := plife.NewRuleTable(types, rules, plife.BetaProfile(beta))
	if err != nil {
		http.Error(w, "cannot build rule table: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := sim.SetRules(table); err != nil {
		http.Error(w, "cannot apply rule table: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Infof("Rules replaced: sim_id=%s types=%d", sim.ID(), types)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("rules loaded"))
}

// GET /sim/{simID}/rules
// Returns the current attraction matrix
func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"types":      sim.Rules().NumTypes(),
		"max_radius": sim.Rules().MaxRadius(),
		"matrix":     sim.Rules().Matrix(),
	}); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// POST /sim/{simID}/step
// Manually advance a single frame (useful for debugging when auto-running is disabled)
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	snapshot, err := sim.StepContext(r.Context())
	if err != nil {
		s.logger.Errorf("Step failed: sim_id=%s error=%v", sim.ID(), err)
		http.Error(w, "step failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// POST /sim/{simID}/start
// Start the frame loop with the specified interval (in milliseconds)
// Query param: interval (default: 20ms)
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	interval := 20 * time.Millisecond
	if intervalStr := r.URL.Query().Get("interval"); intervalStr != "" {
		if ms, err := strconv.Atoi(intervalStr); err == nil && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		} else {
			http.Error(w, "invalid interval: must be a positive integer (milliseconds)", http.StatusBadRequest)
			return
		}
	}

	sim.Run(interval)
	s.logger.Infof("Simulation started: sim_id=%s interval=%v", sim.ID(), interval)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("simulation started"))
}

// POST /sim/{simID}/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	sim.Stop()
	s.logger.Infof("Simulation stopped: sim_id=%s", sim.ID())

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("simulation stopped"))
}

// POST /sim/{simID}/reset
// Query param: seed (optional; non-zero makes the fresh population reproducible)
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	var seed int64
	if seedStr := r.URL.Query().Get("seed"); seedStr != "" {
		v, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid seed: must be an integer", http.StatusBadRequest)
			return
		}
		seed = v
	}

	sim.Reset(seed)
	s.logger.Infof("Simulation reset: sim_id=%s seed=%d", sim.ID(), seed)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("simulation reset"))
}

// POST /sim/{simID}/impulse
// Body: { "center": {"x": 0.5, "y": 0.5}, "strength": 0.1 }
type impulseRequest struct {
	Center   plife.Vec2 `json:"center"`
	Strength float64    `json:"strength"`
}

func (s *Server) handleImpulse(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	var req impulseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	sim.ApplyImpulse(req.Center, req.Strength)
	s.logger.Debugf("Impulse applied: sim_id=%s center=(%g,%g) strength=%g", sim.ID(), req.Center.X, req.Center.Y, req.Strength)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GET /sim/{simID}/snapshot
// Returns the most recently published snapshot
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sim.LatestSnapshot()); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// POST /sim/{simID}/snapshot
// Triggers a synchronous snapshot save to disk
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	if s.snapshotDir == "" {
		http.Error(w, "snapshot directory not configured", http.StatusInternalServerError)
		return
	}
	sim.SetSnapshotDir(s.snapshotDir)

	path, err := sim.SaveSnapshot()
	if err != nil {
		s.logger.Errorf("Failed to save snapshot: sim_id=%s error=%v", sim.ID(), err)
		http.Error(w, "failed to save snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Debugf("Snapshot saved: sim_id=%s path=%s", sim.ID(), path)

	response := map[string]string{
		"status": "ok",
		"path":   path,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "cannot encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// GET /sim/{simID}/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.getSimulation(w, r)
	if !ok {
		return
	}

	stats := sim.Stats()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"state": sim.State().String(),
		"frame": sim.Frame(),
		"stats": stats,
	}); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// GET /sim/{simID}/ws
// Upgrades to a websocket and streams frame and lifecycle events.
// Events for every simulation flow on the stream; clients filter by
// the simulation_id field.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.getSimulation(w, r); !ok {
		return
	}

	upgrader := s.wsNotifier.GetUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	s.wsNotifier.RegisterClient(conn)
	s.logger.Debugf("websocket client connected: clients=%d", s.wsNotifier.ClientCount())
}

// GET /sims
// List all simulation IDs
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	simIDs := s.manager.ListSimulations()

	ids := make([]string, len(simIDs))
	for i, id := range simIDs {
		ids[i] = string(id)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{"simulations": ids}); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// DELETE /sim/{simID}
func (s *Server) handleDeleteSimulation(w http.ResponseWriter, r *http.Request) {
	simID, _ := extractSimID(r.URL.Path)
	if simID == "" {
		http.Error(w, "simulation ID is required in path: /sim/{simID}", http.StatusBadRequest)
		return
	}

	if err := s.manager.DeleteSimulation(simID); err != nil {
		s.logger.Warnf("Failed to delete simulation: sim_id=%s error=%v", simID, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.logger.Infof("Simulation deleted: sim_id=%s", simID)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("simulation deleted"))
}

// handleSimulationRoutes routes requests to simulation-specific handlers
// Handles paths like /sim/{simID}/world, /sim/{simID}/step, etc.
func (s *Server) handleSimulationRoutes(w http.ResponseWriter, r *http.Request) {
	simID, remainingPath := extractSimID(r.URL.Path)
	if simID == "" {
		http.Error(w, "simulation ID is required in path: /sim/{simID}/...", http.StatusBadRequest)
		return
	}

	switch {
	case remainingPath == "/world" && r.Method == http.MethodPost:
		s.handleWorld(w, r)
	case remainingPath == "/rules" && r.Method == http.MethodPost:
		s.handleSetRules(w, r)
	case remainingPath == "/rules" && r.Method == http.MethodGet:
		s.handleGetRules(w, r)
	case remainingPath == "/step" && r.Method == http.MethodPost:
		s.handleStep(w, r)
	case remainingPath == "/start" && r.Method == http.MethodPost:
		s.handleStart(w, r)
	case remainingPath == "/stop" && r.Method == http.MethodPost:
		s.handleStop(w, r)
	case remainingPath == "/reset" && r.Method == http.MethodPost:
		s.handleReset(w, r)
	case remainingPath == "/impulse" && r.Method == http.MethodPost:
		s.handleImpulse(w, r)
	case remainingPath == "/snapshot" && r.Method == http.MethodGet:
		s.handleGetSnapshot(w, r)
	case remainingPath == "/snapshot" && r.Method == http.MethodPost:
		s.handleSaveSnapshot(w, r)
	case remainingPath == "/stats" && r.Method == http.MethodGet:
		s.handleStats(w, r)
	case remainingPath == "/ws" && r.Method == http.MethodGet:
		s.handleWebSocket(w, r)
	case remainingPath == "" && r.Method == http.MethodDelete:
		s.handleDeleteSimulation(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleNotifiersRoutes handles notifier management endpoints
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/notifiers" && r.Method == http.MethodGet:
		s.handleListNotifiers(w, r)
	case r.URL.Path == "/notifiers" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
// List all registered notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	notifierIDs := s.globalNotifierMgr.ListNotifiers()

	notifierList := make([]map[string]string, 0, len(notifierIDs))
	for _, id := range notifierIDs {
		notifier, exists := s.globalNotifierMgr.GetNotifier(id)
		if exists {
			notifierList = append(notifierList, map[string]string{
				"id":   id,
				"type": notifier.Type(),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"notifiers": notifierList}); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// POST /notifiers
// Register a new notifier
// Body: { "type": "webhook", "id": "my-webhook", "config": { "url": "http://..." } }
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	var notifier plife.Notifier

	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			http.Error(w, "webhook URL is required", http.StatusBadRequest)
			return
		}
		wh := plifenotifiers.NewWebhookNotifier(req.ID, url)

		// Set custom headers if provided
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}

		notifier = wh
	default:
		http.Error(w, "unknown notifier type: "+req.Type, http.StatusBadRequest)
		return
	}

	if err := s.globalNotifierMgr.RegisterNotifier(notifier); err != nil {
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier registered"))
}

// DELETE /notifiers/{id}
// Unregister a notifier
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	notifierID := strings.TrimPrefix(r.URL.Path, "/notifiers/")
	if notifierID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	if err := s.globalNotifierMgr.UnregisterNotifier(notifierID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier unregistered"))
}
