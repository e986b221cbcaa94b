package main

import (
	"net/http"

	"github.com/daniacca/plife/internal/plife"
)

func main() {
	cfg := loadServerConfig()
	logger := NewLogger(cfg.LogLevel)

	srv := NewServer(logger)
	defer srv.Close()

	srv.SetSnapshotDir(cfg.SnapshotDir)
	srv.SetSnapshotEveryFrames(cfg.SnapshotEveryFrames)

	if cfg.WorldFile != "" {
		if err := applyInitialWorld(srv, cfg.WorldFile, plife.SimulationID(cfg.DefaultSimID)); err != nil {
			logger.Fatalf("cannot load initial world from %s: %v", cfg.WorldFile, err)
		}
		logger.Infof("Initial world loaded: sim_id=%s file=%s", cfg.DefaultSimID, cfg.WorldFile)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/sims", srv.handleListSimulations)
	mux.HandleFunc("/sim/", srv.handleSimulationRoutes)
	mux.HandleFunc("/notifiers", srv.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", srv.handleNotifiersRoutes)

	logger.Infof("plife-server listening on %s", cfg.Addr)
	logger.Fatalf("%v", http.ListenAndServe(cfg.Addr, mux))
}
