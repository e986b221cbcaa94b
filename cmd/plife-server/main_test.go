package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/daniacca/plife/internal/plife"
)

func testWorldConfig() plife.WorldConfig {
	return plife.WorldConfig{
		Name:      "test-world",
		Seed:      7,
		Particles: 50,
		Types:     3,
		World:     plife.World{Topology: plife.TopologyTorus, Width: 1, Height: 1},
		DT:        0.02,
		MaxRadius: 0.1,
		Workers:   1,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(NewLogger("error"))
	t.Cleanup(srv.Close)
	return srv
}

func createTestSimulation(t *testing.T, srv *Server, id plife.SimulationID) *plife.Simulation {
	t.Helper()
	sim, err := srv.manager.CreateSimulation(id, testWorldConfig())
	if err != nil {
		t.Fatalf("CreateSimulation: %v", err)
	}
	srv.attachSimulation(sim)
	return sim
}

func TestExtractSimID(t *testing.T) {
	tests := []struct {
		path     string
		wantID   plife.SimulationID
		wantRest string
	}{
		{"/sim/abc/step", "abc", "/step"},
		{"/sim/abc", "abc", ""},
		{"/sim/abc/", "abc", "/"},
		{"/other/abc", "", ""},
		{"/sim/", "", ""},
	}
	for _, tt := range tests {
		id, rest := extractSimID(tt.path)
		if id != tt.wantID || rest != tt.wantRest {
			t.Errorf("extractSimID(%q) = (%q, %q), want (%q, %q)", tt.path, id, rest, tt.wantID, tt.wantRest)
		}
	}
}

func TestServer_HandleWorldCreatesSimulation(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(testWorldConfig())
	req := httptest.NewRequest(http.MethodPost, "/sim/world-1/world", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	sim, exists := srv.manager.GetSimulation("world-1")
	if !exists {
		t.Fatal("simulation was not created")
	}
	if len(sim.LatestSnapshot().Particles) != 50 {
		t.Errorf("population = %d, want 50", len(sim.LatestSnapshot().Particles))
	}
}

func TestServer_HandleWorldRejectsInvalidConfig(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sim/bad/world", bytes.NewReader([]byte(`{"name":""}`)))
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestServer_HandleStep(t *testing.T) {
	srv := newTestServer(t)
	createTestSimulation(t, srv, "s1")

	req := httptest.NewRequest(http.MethodPost, "/sim/s1/step", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var snap plife.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Frame != 1 {
		t.Errorf("snapshot frame = %d, want 1", snap.Frame)
	}
}

func TestServer_HandleStepUnknownSimulation(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sim/missing/step", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_HandleGetSnapshot(t *testing.T) {
	srv := newTestServer(t)
	sim := createTestSimulation(t, srv, "s1")
	if _, err := sim.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sim/s1/snapshot", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var snap plife.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SimulationID != "s1" || snap.Frame != 1 || len(snap.Particles) != 50 {
		t.Errorf("snapshot = sim %s frame %d particles %d", snap.SimulationID, snap.Frame, len(snap.Particles))
	}
}

func TestServer_HandleSaveSnapshot(t *testing.T) {
	srv := newTestServer(t)
	tmpDir := t.TempDir()
	srv.SetSnapshotDir(tmpDir)

	sim := createTestSimulation(t, srv, "persist")
	for i := 0; i < 5; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/sim/persist/snapshot", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != "ok" || response["path"] == "" {
		t.Errorf("response = %v", response)
	}

	expectedPath := filepath.Join(tmpDir, "persist.snapshot.json")
	data, err := os.ReadFile(expectedPath)
	if err != nil {
		t.Fatalf("snapshot file not written: %v", err)
	}

	snap, err := plife.DecodeSnapshotJSON(data)
	if err != nil {
		t.Fatalf("decode snapshot file: %v", err)
	}
	if snap.SimulationID != "persist" || snap.Frame != 5 {
		t.Errorf("persisted snapshot = sim %s frame %d", snap.SimulationID, snap.Frame)
	}
}

func TestServer_HandleSaveSnapshot_NoSnapshotDir(t *testing.T) {
	srv := newTestServer(t)
	createTestSimulation(t, srv, "s1")

	req := httptest.NewRequest(http.MethodPost, "/sim/s1/snapshot", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d: %s", w.Code, w.Body.String())
	}
}

func TestServer_HandleStats(t *testing.T) {
	srv := newTestServer(t)
	sim := createTestSimulation(t, srv, "s1")
	if _, err := sim.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sim/s1/stats", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload struct {
		State string          `json:"state"`
		Frame int64           `json:"frame"`
		Stats plife.LoopStats `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if payload.State != "idle" || payload.Frame != 1 || payload.Stats.Frames != 1 {
		t.Errorf("stats payload = %+v", payload)
	}
}

func TestServer_HandleRules(t *testing.T) {
	srv := newTestServer(t)
	createTestSimulation(t, srv, "s1")

	// Replace with an explicit matrix.
	body := []byte(`{"matrix":[[1,0,0],[0,1,0],[0,0,1]],"max_radius":0.2}`)
	req := httptest.NewRequest(http.MethodPost, "/sim/s1/rules", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("set rules: status %d: %s", w.Code, w.Body.String())
	}

	// Read it back.
	req = httptest.NewRequest(http.MethodGet, "/sim/s1/rules", nil)
	w = httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get rules: status %d", w.Code)
	}
	var got struct {
		Types     int         `json:"types"`
		MaxRadius float64     `json:"max_radius"`
		Matrix    [][]float64 `json:"matrix"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	if got.Types != 3 || got.MaxRadius != 0.2 || got.Matrix[0][0] != 1 || got.Matrix[0][1] != 0 {
		t.Errorf("rules = %+v", got)
	}

	// A matrix narrower than the population's types is rejected.
	body = []byte(`{"matrix":[[1]]}`)
	req = httptest.NewRequest(http.MethodPost, "/sim/s1/rules", bytes.NewReader(body))
	w = httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("narrow matrix: status %d, want 400", w.Code)
	}
}

func TestServer_HandleRulesRandomize(t *testing.T) {
	srv := newTestServer(t)
	sim := createTestSimulation(t, srv, "s1")
	before := sim.Rules().Matrix()

	// Empty body randomizes the matrix.
	req := httptest.NewRequest(http.MethodPost, "/sim/s1/rules", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("randomize: status %d: %s", w.Code, w.Body.String())
	}

	after := sim.Rules().Matrix()
	same := true
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				same = false
			}
		}
	}
	if same {
		t.Error("randomize left the matrix unchanged")
	}
}

func TestServer_HandleRulesMalformedBody(t *testing.T) {
	srv := newTestServer(t)
	sim := createTestSimulation(t, srv, "s1")
	before := sim.Rules().Matrix()

	// A malformed body is a client error, not a randomize request.
	req := httptest.NewRequest(http.MethodPost, "/sim/s1/rules", bytes.NewReader([]byte(`{"matrix": [[`)))
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed rules body: status %d, want 400", w.Code)
	}

	after := sim.Rules().Matrix()
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Fatalf("malformed body changed the matrix at [%d][%d]", i, j)
			}
		}
	}
}

func TestServer_HandleResetAndDelete(t *testing.T) {
	srv := newTestServer(t)
	sim := createTestSimulation(t, srv, "s1")
	for i := 0; i < 3; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/sim/s1/reset?seed=99", nil)
	w := httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status %d: %s", w.Code, w.Body.String())
	}
	if sim.Frame() != 0 {
		t.Errorf("frame after reset = %d, want 0", sim.Frame())
	}

	req = httptest.NewRequest(http.MethodDelete, "/sim/s1", nil)
	w = httptest.NewRecorder()
	srv.handleSimulationRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	if _, exists := srv.manager.GetSimulation("s1"); exists {
		t.Error("simulation still present after delete")
	}
}

func TestServer_HandleListSimulations(t *testing.T) {
	srv := newTestServer(t)
	createTestSimulation(t, srv, "a")
	createTestSimulation(t, srv, "b")

	req := httptest.NewRequest(http.MethodGet, "/sims", nil)
	w := httptest.NewRecorder()
	srv.handleListSimulations(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var payload map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload["simulations"]) != 2 {
		t.Errorf("simulations = %v, want 2 entries", payload["simulations"])
	}
}

func TestServer_NotifierEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// The websocket stream notifier is registered at startup.
	req := httptest.NewRequest(http.MethodGet, "/notifiers", nil)
	w := httptest.NewRecorder()
	srv.handleNotifiersRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list notifiers: status %d", w.Code)
	}
	var payload map[string][]map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload["notifiers"]) != 1 || payload["notifiers"][0]["type"] != "websocket" {
		t.Errorf("notifiers = %v", payload["notifiers"])
	}

	// Register a webhook, then remove it.
	body := []byte(`{"type":"webhook","id":"hook","config":{"url":"http://127.0.0.1:9/x"}}`)
	req = httptest.NewRequest(http.MethodPost, "/notifiers", bytes.NewReader(body))
	w = httptest.NewRecorder()
	srv.handleNotifiersRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("register webhook: status %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/notifiers/hook", nil)
	w = httptest.NewRecorder()
	srv.handleNotifiersRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("unregister webhook: status %d: %s", w.Code, w.Body.String())
	}

	// Unknown notifier type is rejected.
	body = []byte(`{"type":"carrier-pigeon","id":"p"}`)
	req = httptest.NewRequest(http.MethodPost, "/notifiers", bytes.NewReader(body))
	w = httptest.NewRecorder()
	srv.handleNotifiersRoutes(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown notifier type: status %d, want 400", w.Code)
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PLIFE_ADDR", "PLIFE_SIM_ID", "PLIFE_WORLD_FILE", "PLIFE_SNAPSHOT_DIR", "PLIFE_SNAPSHOT_EVERY_FRAMES", "PLIFE_LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = []string{"plife-server"}

	cfg := loadServerConfig()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.DefaultSimID != "default" {
		t.Errorf("DefaultSimID = %q, want default", cfg.DefaultSimID)
	}
	if cfg.WorldFile != "" {
		t.Errorf("WorldFile = %q, want empty", cfg.WorldFile)
	}
	if cfg.SnapshotDir != "./data" {
		t.Errorf("SnapshotDir = %q, want ./data", cfg.SnapshotDir)
	}
	if cfg.SnapshotEveryFrames != 1000 {
		t.Errorf("SnapshotEveryFrames = %d, want 1000", cfg.SnapshotEveryFrames)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadServerConfig_EnvVars(t *testing.T) {
	t.Setenv("PLIFE_ADDR", ":9090")
	t.Setenv("PLIFE_SIM_ID", "env-sim")
	t.Setenv("PLIFE_SNAPSHOT_EVERY_FRAMES", "500")

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = []string{"plife-server"}

	cfg := loadServerConfig()

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.DefaultSimID != "env-sim" {
		t.Errorf("DefaultSimID = %q, want env-sim", cfg.DefaultSimID)
	}
	if cfg.SnapshotEveryFrames != 500 {
		t.Errorf("SnapshotEveryFrames = %d, want 500", cfg.SnapshotEveryFrames)
	}
}

func TestLoadServerConfig_FlagsOverrideEnvVars(t *testing.T) {
	t.Setenv("PLIFE_ADDR", ":9090")

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = []string{"plife-server", "-addr", ":7070"}

	cfg := loadServerConfig()

	if cfg.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070 (from flag)", cfg.Addr)
	}
}

func TestLoadServerConfig_InvalidSnapshotFrames(t *testing.T) {
	t.Setenv("PLIFE_SNAPSHOT_EVERY_FRAMES", "invalid")

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = []string{"plife-server"}

	cfg := loadServerConfig()

	if cfg.SnapshotEveryFrames != 1000 {
		t.Errorf("SnapshotEveryFrames = %d, want 1000 (default on invalid input)", cfg.SnapshotEveryFrames)
	}
}

func TestLoadWorldConfigFromFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "world.json")
	data, err := json.Marshal(testWorldConfig())
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := loadWorldConfigFromFile(tmpFile)
	if err != nil {
		t.Fatalf("loadWorldConfigFromFile: %v", err)
	}
	if cfg.Name != "test-world" || cfg.Particles != 50 {
		t.Errorf("loaded config = %+v", cfg)
	}

	if _, err := loadWorldConfigFromFile("/nonexistent/world.json"); err == nil {
		t.Error("missing file loaded without error")
	}

	badFile := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badFile, []byte("not json"), 0644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	if _, err := loadWorldConfigFromFile(badFile); err == nil {
		t.Error("invalid JSON loaded without error")
	}

	invalidFile := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(invalidFile, []byte(`{"name":"x","types":0}`), 0644); err != nil {
		t.Fatalf("write invalid file: %v", err)
	}
	if _, err := loadWorldConfigFromFile(invalidFile); err == nil {
		t.Error("invalid config loaded without error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"info", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"bogus", LogLevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
