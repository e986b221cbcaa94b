package main

import (
	"github.com/daniacca/plife/internal/plife"
	"github.com/daniacca/plife/internal/plife/notifiers"
)

// plifeLoggerAdapter adapts the server's Logger to the plife.Logger interface
type plifeLoggerAdapter struct {
	logger *Logger
}

func (a *plifeLoggerAdapter) Debugf(format string, v ...any) {
	a.logger.Debugf(format, v...)
}

func (a *plifeLoggerAdapter) Infof(format string, v ...any) {
	a.logger.Infof(format, v...)
}

func (a *plifeLoggerAdapter) Warnf(format string, v ...any) {
	a.logger.Warnf(format, v...)
}

func (a *plifeLoggerAdapter) Errorf(format string, v ...any) {
	a.logger.Errorf(format, v...)
}

// Server is the HTTP front end over the simulation manager. All
// simulations share one notification manager; the websocket stream
// notifier is always registered so /sim/{id}/ws has somewhere to hang
// client connections.
type Server struct {
	manager             *plife.SimulationManager
	globalNotifierMgr   *plife.NotificationManager
	wsNotifier          *notifiers.WebSocketNotifier
	snapshotDir         string
	snapshotEveryFrames int
	logger              *Logger
}

// NewServer creates a new server instance
func NewServer(logger *Logger) *Server {
	plifeLogger := &plifeLoggerAdapter{logger: logger}
	globalMgr := plife.NewNotificationManagerWithLogger(plifeLogger)

	ws := notifiers.NewWebSocketNotifier("ws-stream")
	if err := globalMgr.RegisterNotifier(ws); err != nil {
		logger.Fatalf("cannot register websocket notifier: %v", err)
	}

	return &Server{
		manager:           plife.NewSimulationManagerWithLogger(plifeLogger),
		globalNotifierMgr: globalMgr,
		wsNotifier:        ws,
		logger:            logger,
	}
}

// SetSnapshotDir sets the snapshot directory for all simulations
func (s *Server) SetSnapshotDir(dir string) {
	s.snapshotDir = dir
}

// SetSnapshotEveryFrames sets the snapshot frequency for all simulations
func (s *Server) SetSnapshotEveryFrames(frames int) {
	s.snapshotEveryFrames = frames
}

// attachSimulation wires a freshly created simulation into the server's
// shared notification and snapshot configuration.
func (s *Server) attachSimulation(sim *plife.Simulation) {
	sim.SetNotificationManager(s.globalNotifierMgr)
	if s.snapshotDir != "" {
		sim.SetSnapshotDir(s.snapshotDir)
	}
	if s.snapshotEveryFrames >= 0 {
		sim.SetSnapshotEveryFrames(s.snapshotEveryFrames)
	}
}

// Close stops every simulation and shuts down notification delivery.
func (s *Server) Close() {
	for _, id := range s.manager.ListSimulations() {
		if sim, ok := s.manager.GetSimulation(id); ok {
			sim.Stop()
		}
	}
	if err := s.globalNotifierMgr.Close(); err != nil {
		s.logger.Warnf("error closing notifiers: %v", err)
	}
}
