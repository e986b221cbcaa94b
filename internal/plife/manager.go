package plife

import (
	"fmt"
	"sync"
)

// SimulationManager manages multiple simulations, each isolated from others
type SimulationManager struct {
	mu          sync.RWMutex
	simulations map[SimulationID]*Simulation
	logger      Logger
}

// NewSimulationManager creates a new simulation manager
func NewSimulationManager() *SimulationManager {
	return NewSimulationManagerWithLogger(NewNoOpLogger())
}

// NewSimulationManagerWithLogger creates a simulation manager with an
// injected logger, passed on to every simulation it creates.
func NewSimulationManagerWithLogger(logger Logger) *SimulationManager {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &SimulationManager{
		simulations: make(map[SimulationID]*Simulation),
		logger:      logger,
	}
}

// CreateSimulation builds a simulation from the config and registers
// it under the given ID. Returns an error if the ID is taken or the
// config is invalid.
func (sm *SimulationManager) CreateSimulation(id SimulationID, cfg WorldConfig) (*Simulation, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.simulations[id]; exists {
		return nil, fmt.Errorf("simulation with id %s already exists", id)
	}

	sim, err := NewSimulationWithLogger(cfg, sm.logger)
	if err != nil {
		return nil, err
	}
	sim.SetID(id)
	sm.simulations[id] = sim
	return sim, nil
}

// ReplaceSimulation builds a fresh simulation from the config and
// swaps it in under the ID, stopping the previous one. Used for
// wholesale configuration reload.
func (sm *SimulationManager) ReplaceSimulation(id SimulationID, cfg WorldConfig) (*Simulation, error) {
	sim, err := NewSimulationWithLogger(cfg, sm.logger)
	if err != nil {
		return nil, err
	}
	sim.SetID(id)

	sm.mu.Lock()
	old, existed := sm.simulations[id]
	sm.simulations[id] = sim
	sm.mu.Unlock()

	if existed {
		old.Stop()
	}
	return sim, nil
}

// GetSimulation retrieves a simulation by ID
// Returns the simulation and a boolean indicating if it was found
func (sm *SimulationManager) GetSimulation(id SimulationID) (*Simulation, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sim, exists := sm.simulations[id]
	return sim, exists
}

// DeleteSimulation removes a simulation by ID
// Returns an error if the simulation doesn't exist
func (sm *SimulationManager) DeleteSimulation(id SimulationID) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sim, exists := sm.simulations[id]
	if !exists {
		return fmt.Errorf("simulation with id %s does not exist", id)
	}

	// Stop the loop if it's running
	sim.Stop()

	delete(sm.simulations, id)
	return nil
}

// ListSimulations returns a list of all simulation IDs
func (sm *SimulationManager) ListSimulations() []SimulationID {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]SimulationID, 0, len(sm.simulations))
	for id := range sm.simulations {
		ids = append(ids, id)
	}
	return ids
}
