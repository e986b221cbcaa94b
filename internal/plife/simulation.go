package plife

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulationID identifies a simulation instance.
type SimulationID string

// State is the simulation loop state.
type State int

const (
	// StateIdle: no background loop is running. Frames may still be
	// stepped manually.
	StateIdle State = iota
	// StateRunning: the background ticker is driving frames.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Simulation owns a particle population and evolves it frame by frame:
// rebuild the spatial index, evaluate forces (parallel fan-out,
// fan-in), integrate, publish an immutable snapshot. The position and
// velocity arrays are owned exclusively by the simulation and written
// only during the integrate phase; correctness across the parallel
// phases relies on the barriers between them, not on locking.
type Simulation struct {
	mu sync.Mutex

	id   SimulationID
	cfg  WorldConfig
	name string

	world      World
	rules      *RuleTable
	evaluator  *ForceEvaluator
	integrator *Integrator

	particles []Particle
	forces    []Vec2
	positions []Vec2 // scratch buffer for index rebuilds
	index     SpatialIndex

	rng    *rand.Rand
	frame  int64
	state  State
	stats  LoopStats
	latest Snapshot

	logger    Logger
	notifyMgr *NotificationManager

	snapshotDir         string
	snapshotEveryFrames int

	stopCh chan struct{}
}

// NewSimulation builds a simulation from a validated config. The
// config is validated again here so the constructor is safe on its
// own; structural errors never reach a frame.
func NewSimulation(cfg WorldConfig) (*Simulation, error) {
	return NewSimulationWithLogger(cfg, NewNoOpLogger())
}

// NewSimulationWithLogger builds a simulation with an injected logger.
func NewSimulationWithLogger(cfg WorldConfig, logger Logger) (*Simulation, error) {
	if err := ValidateWorldConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = NewNoOpLogger()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	rules, err := cfg.buildRuleTable(rng)
	if err != nil {
		return nil, fmt.Errorf("building rule table: %w", err)
	}

	integrator, err := NewIntegrator(cfg.World, cfg.frictionFactor(), cfg.Workers)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		id:         SimulationID(NewRandomID()),
		cfg:        cfg,
		name:       cfg.Name,
		world:      cfg.World,
		rules:      rules,
		evaluator:  NewForceEvaluator(cfg.World, cfg.Workers),
		integrator: integrator,
		rng:        rng,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	s.populate()
	s.latest = newSnapshot(s.id, 0, s.particles)
	return s, nil
}

// populate (re)creates the population and the structures sized by it.
// Callers hold the mutex (or own the simulation exclusively).
func (s *Simulation) populate() {
	s.particles = GeneratePopulation(s.cfg.Particles, s.cfg.Types, s.world, s.cfg.Placement, s.rng)
	s.forces = make([]Vec2, len(s.particles))
	s.positions = make([]Vec2, len(s.particles))
	s.index = NewSpatialIndex(s.world, s.rules.MaxRadius())
	s.frame = 0
	s.stats = LoopStats{}
}

// SetID overrides the generated simulation ID. Useful when the caller
// (e.g. the server's manager) names simulations itself.
func (s *Simulation) SetID(id SimulationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *Simulation) ID() SimulationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Simulation) Name() string { return s.name }

func (s *Simulation) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulation) Frame() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Config returns the config the simulation was built from.
func (s *Simulation) Config() WorldConfig { return s.cfg }

// Stats returns a copy of the loop statistics.
func (s *Simulation) Stats() LoopStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LatestSnapshot returns the most recently published snapshot. The
// returned value is immutable: stepping the simulation afterwards
// never changes it.
func (s *Simulation) LatestSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// SetNotificationManager wires the simulation's event stream.
func (s *Simulation) SetNotificationManager(mgr *NotificationManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyMgr = mgr
}

// SetSnapshotDir sets the directory for periodic file snapshots.
func (s *Simulation) SetSnapshotDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotDir = dir
}

// SetSnapshotEveryFrames sets how often (in frames) a file snapshot is
// written; 0 disables periodic snapshots.
func (s *Simulation) SetSnapshotEveryFrames(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotEveryFrames = n
}

// SetRules replaces the rule table wholesale (configuration reload).
// The new table must cover every type present in the population.
func (s *Simulation) SetRules(rules *RuleTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.particles {
		if err := rules.CheckType(s.particles[i].Type); err != nil {
			return err
		}
	}
	s.rules = rules
	// Cell size tracks the interaction radius.
	s.index = NewSpatialIndex(s.world, rules.MaxRadius())
	return nil
}

// RandomizeRules replaces the attraction matrix with fresh random
// coefficients, keeping radii and profile.
func (s *Simulation) RandomizeRules() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.rules.Rules()
	for i := range rules {
		rules[i].Attraction = s.rng.Float64()*2 - 1
	}
	table, err := NewRuleTable(s.rules.NumTypes(), rules, s.rules.profile)
	if err != nil {
		return err
	}
	s.rules = table
	return nil
}

// Rules returns the current rule table.
func (s *Simulation) Rules() *RuleTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules
}

// ApplyImpulse adds a velocity impulse pulling every particle toward a
// world point; negative strength pushes away. This is the engine side
// of the renderer's "attract to cursor" interaction.
func (s *Simulation) ApplyImpulse(center Vec2, strength float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.particles {
		dir := s.world.Delta(s.particles[i].Pos, center).Normalize()
		s.particles[i].Vel = s.particles[i].Vel.Add(dir.Scale(strength))
	}
}

// Step runs exactly one frame and returns its snapshot. An empty
// population completes trivially with an empty snapshot.
func (s *Simulation) Step() (Snapshot, error) {
	return s.StepContext(context.Background())
}

// StepContext is Step with cancellation for the parallel phases.
func (s *Simulation) StepContext(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(ctx)
}

func (s *Simulation) stepLocked(ctx context.Context) (Snapshot, error) {
	start := time.Now()

	// Phase 1: the index must be complete before any query runs.
	s.rebuildIndex()
	rebuilt := time.Now()

	// Phase 2: forces. Fan-out joins inside Compute, so no particle is
	// integrated while any force for this frame is still in flight.
	if err := s.evaluator.Compute(ctx, s.particles, s.index, s.rules, s.forces); err != nil {
		return Snapshot{}, fmt.Errorf("frame %d force phase: %w", s.frame+1, err)
	}
	forced := time.Now()

	// Phase 3: integrate; non-finite states are contained here.
	recovered, err := s.integrator.Step(ctx, s.particles, s.forces, s.cfg.DT, s.reseedParticle)
	if err != nil {
		return Snapshot{}, fmt.Errorf("frame %d integrate phase: %w", s.frame+1, err)
	}
	integrated := time.Now()

	s.frame++
	snapshot := newSnapshot(s.id, s.frame, s.particles)
	s.latest = snapshot

	s.stats.record(FrameStats{
		Frame:     s.frame,
		Rebuild:   rebuilt.Sub(start),
		Forces:    forced.Sub(rebuilt),
		Integrate: integrated.Sub(forced),
		Total:     integrated.Sub(start),
		Recovered: len(recovered),
	})

	if len(recovered) > 0 {
		s.logger.Warnf("frame %d: reset %d non-finite particles: %v", s.frame, len(recovered), recovered)
	}
	s.publishLocked(snapshot, recovered)
	s.maybeSaveSnapshotLocked(snapshot)

	return snapshot, nil
}

// rebuildIndex feeds the current positions to the spatial index.
func (s *Simulation) rebuildIndex() {
	for i := range s.particles {
		s.positions[i] = s.particles[i].Pos
	}
	s.index.Rebuild(s.positions)
}

// reseedParticle supplies a safe replacement state for a particle
// whose position or velocity became non-finite.
func (s *Simulation) reseedParticle(id int) Particle {
	w, h := s.world.spawnExtent()
	return Particle{
		ID:   id,
		Pos:  Vec2{s.rng.Float64() * w, s.rng.Float64() * h},
		Type: s.particles[id].Type,
	}
}

func (s *Simulation) publishLocked(snapshot Snapshot, recovered []int) {
	if s.notifyMgr == nil {
		return
	}
	now := time.Now().Unix()
	stats := s.stats.LastFrame
	s.notifyMgr.Broadcast(Event{
		Kind:         EventFrame,
		SimulationID: s.id,
		Frame:        snapshot.Frame,
		Timestamp:    now,
		Snapshot:     &snapshot,
		Stats:        &stats,
	})
	if len(recovered) > 0 {
		s.notifyMgr.Broadcast(Event{
			Kind:         EventRecovered,
			SimulationID: s.id,
			Frame:        snapshot.Frame,
			Timestamp:    now,
			RecoveredIDs: recovered,
		})
	}
}

func (s *Simulation) maybeSaveSnapshotLocked(snapshot Snapshot) {
	if s.snapshotDir == "" || s.snapshotEveryFrames <= 0 {
		return
	}
	if snapshot.Frame%int64(s.snapshotEveryFrames) != 0 {
		return
	}
	if _, err := SaveSnapshotFile(snapshot, s.snapshotDir); err != nil {
		s.logger.Errorf("periodic snapshot failed: sim=%s frame=%d error=%v", s.id, snapshot.Frame, err)
	}
}

// SaveSnapshot writes the latest snapshot to the configured directory.
func (s *Simulation) SaveSnapshot() (string, error) {
	s.mu.Lock()
	snapshot := s.latest
	dir := s.snapshotDir
	s.mu.Unlock()
	return SaveSnapshotFile(snapshot, dir)
}

// Run starts the background loop, stepping one frame per tick. It is a
// no-op if the loop is already running. Stop and Reset are honored
// only at frame boundaries: an in-flight frame always completes.
func (s *Simulation) Run(interval time.Duration) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return
	}
	// Fresh stop channel for this run (allows restart after Stop).
	s.stopCh = make(chan struct{})
	s.state = StateRunning
	stopCh := s.stopCh
	s.mu.Unlock()

	s.broadcastLifecycle(EventStarted)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.Step(); err != nil {
					// Structural failures (InvalidType) are fatal to
					// the loop, not retried.
					s.logger.Errorf("simulation %s stopped: %v", s.id, err)
					s.Stop()
				}
			case <-stopCh:
				s.broadcastLifecycle(EventStopped)
				return
			}
		}
	}()
}

// Stop requests the background loop to stop at the next frame
// boundary. After stopping, Run can be called again to restart.
func (s *Simulation) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	// Flip to Idle here rather than in the loop goroutine, so a Run
	// issued immediately after Stop restarts instead of racing the
	// goroutine's exit.
	s.state = StateIdle
	close(s.stopCh)
}

// Reset stops the loop (if running) and re-creates the population,
// returning the simulation to Idle at frame 0. A non-zero seed makes
// the fresh population reproducible.
func (s *Simulation) Reset(seed int64) {
	s.Stop()

	s.mu.Lock()
	if seed != 0 {
		s.rng = rand.New(rand.NewSource(seed))
	}
	s.populate()
	s.latest = newSnapshot(s.id, 0, s.particles)
	s.mu.Unlock()

	s.broadcastLifecycle(EventReset)
}

func (s *Simulation) broadcastLifecycle(kind EventKind) {
	s.mu.Lock()
	mgr := s.notifyMgr
	id := s.id
	frame := s.frame
	s.mu.Unlock()
	if mgr == nil {
		return
	}
	mgr.Broadcast(Event{
		Kind:         kind,
		SimulationID: id,
		Frame:        frame,
		Timestamp:    time.Now().Unix(),
	})
}
