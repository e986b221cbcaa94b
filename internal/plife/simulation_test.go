package plife

import (
	"errors"
	"testing"
	"time"
)

func testConfig(particles int) WorldConfig {
	return WorldConfig{
		Name:      "test",
		Seed:      7,
		Particles: particles,
		Types:     3,
		World:     World{Topology: TopologyTorus, Width: 1, Height: 1},
		DT:        0.02,
		MaxRadius: 0.1,
		Workers:   2,
	}
}

func TestNewSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(10)
	cfg.Types = 0
	if _, err := NewSimulation(cfg); err == nil {
		t.Fatal("invalid config accepted")
	}
	var verr *ValidationError
	_, err := NewSimulation(cfg)
	if !errors.As(err, &verr) {
		t.Errorf("error type = %T, want *ValidationError", err)
	}
}

func TestSimulationStepAdvancesFrame(t *testing.T) {
	sim, err := NewSimulation(testConfig(100))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	if sim.Frame() != 0 {
		t.Fatalf("initial frame = %d, want 0", sim.Frame())
	}
	snap, err := sim.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if snap.Frame != 1 || sim.Frame() != 1 {
		t.Errorf("after one step: snapshot frame %d, sim frame %d, want 1", snap.Frame, sim.Frame())
	}
	if len(snap.Particles) != 100 {
		t.Errorf("snapshot has %d particles, want 100", len(snap.Particles))
	}
	if err := ValidateSnapshot(snap, sim.Rules()); err != nil {
		t.Errorf("published snapshot invalid: %v", err)
	}
}

func TestSimulationEmptyPopulation(t *testing.T) {
	// The whole frame cycle must complete as a no-op for n == 0.
	sim, err := NewSimulation(testConfig(0))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	snap, err := sim.Step()
	if err != nil {
		t.Fatalf("Step on empty population: %v", err)
	}
	if snap.Frame != 1 || len(snap.Particles) != 0 {
		t.Errorf("empty-population snapshot = frame %d, %d particles", snap.Frame, len(snap.Particles))
	}
}

func TestSimulationSnapshotImmutable(t *testing.T) {
	sim, err := NewSimulation(testConfig(50))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	first, err := sim.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	saved := make([]ParticleState, len(first.Particles))
	copy(saved, first.Particles)

	// Further steps must never write through the published snapshot.
	for i := 0; i < 10; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	for i := range saved {
		if first.Particles[i] != saved[i] {
			t.Fatalf("snapshot particle %d mutated after publish", i)
		}
	}
}

func TestSimulationDeterministicWithSeed(t *testing.T) {
	run := func() Snapshot {
		sim, err := NewSimulation(testConfig(200))
		if err != nil {
			t.Fatalf("NewSimulation: %v", err)
		}
		var snap Snapshot
		for i := 0; i < 20; i++ {
			snap, err = sim.Step()
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
		}
		return snap
	}

	a, b := run(), run()
	if len(a.Particles) != len(b.Particles) {
		t.Fatalf("population sizes differ: %d vs %d", len(a.Particles), len(b.Particles))
	}
	for i := range a.Particles {
		if a.Particles[i] != b.Particles[i] {
			t.Fatalf("particle %d diverged between identically seeded runs: %+v vs %+v",
				i, a.Particles[i], b.Particles[i])
		}
	}
}

func TestSimulationRunStopStateMachine(t *testing.T) {
	sim, err := NewSimulation(testConfig(20))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	if sim.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", sim.State())
	}

	sim.Run(time.Millisecond)
	if sim.State() != StateRunning {
		t.Fatalf("state after Run = %v, want running", sim.State())
	}
	// Run while running is a no-op.
	sim.Run(time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for sim.Frame() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("loop produced no frames")
		}
		time.Sleep(time.Millisecond)
	}

	sim.Stop()
	for sim.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("loop did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	// Stop while idle is a no-op.
	sim.Stop()

	// The loop must be restartable after a stop.
	frameAtRestart := sim.Frame()
	sim.Run(time.Millisecond)
	for sim.Frame() <= frameAtRestart {
		if time.Now().After(deadline) {
			t.Fatal("loop did not restart")
		}
		time.Sleep(time.Millisecond)
	}
	sim.Stop()
}

func TestSimulationRestartImmediatelyAfterStop(t *testing.T) {
	sim, err := NewSimulation(testConfig(20))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	sim.Run(time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for sim.Frame() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("loop produced no frames")
		}
		time.Sleep(time.Millisecond)
	}

	// Stop must take effect synchronously, so a back-to-back Run
	// restarts instead of no-opping against a still-running state.
	sim.Stop()
	sim.Run(time.Millisecond)
	if sim.State() != StateRunning {
		t.Fatal("Run immediately after Stop did not restart the loop")
	}

	frameAtRestart := sim.Frame()
	for sim.Frame() <= frameAtRestart {
		if time.Now().After(deadline) {
			t.Fatal("restarted loop produced no frames")
		}
		time.Sleep(time.Millisecond)
	}
	sim.Stop()
}

func TestSimulationManualStepWhileIdle(t *testing.T) {
	sim, err := NewSimulation(testConfig(10))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	// Stepping manually while idle is the single-step debugging mode.
	for i := 0; i < 3; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("manual step %d: %v", i, err)
		}
	}
	if sim.State() != StateIdle {
		t.Errorf("state after manual steps = %v, want idle", sim.State())
	}
}

func TestSimulationReset(t *testing.T) {
	sim, err := NewSimulation(testConfig(30))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	sim.Reset(123)
	if sim.Frame() != 0 {
		t.Errorf("frame after reset = %d, want 0", sim.Frame())
	}
	if sim.State() != StateIdle {
		t.Errorf("state after reset = %v, want idle", sim.State())
	}
	snap := sim.LatestSnapshot()
	if snap.Frame != 0 || len(snap.Particles) != 30 {
		t.Errorf("post-reset snapshot = frame %d, %d particles", snap.Frame, len(snap.Particles))
	}
}

func TestSimulationSetRules(t *testing.T) {
	sim, err := NewSimulation(testConfig(10))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	// A table that does not cover the population's types is rejected.
	narrow, err := NewRuleTable(1, uniformRules(1, 0.5, 0.1), nil)
	if err != nil {
		t.Fatalf("NewRuleTable: %v", err)
	}
	if err := sim.SetRules(narrow); err == nil {
		t.Error("rule table narrower than the population accepted")
	}

	wide, err := NewRuleTable(3, uniformRules(3, 0.5, 0.2), nil)
	if err != nil {
		t.Fatalf("NewRuleTable: %v", err)
	}
	if err := sim.SetRules(wide); err != nil {
		t.Fatalf("SetRules: %v", err)
	}
	if sim.Rules().MaxRadius() != 0.2 {
		t.Errorf("rules not replaced: max radius %g", sim.Rules().MaxRadius())
	}
	if _, err := sim.Step(); err != nil {
		t.Errorf("step after rule swap: %v", err)
	}
}

func TestSimulationRandomizeRules(t *testing.T) {
	sim, err := NewSimulation(testConfig(10))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	before := sim.Rules().Matrix()
	if err := sim.RandomizeRules(); err != nil {
		t.Fatalf("RandomizeRules: %v", err)
	}
	after := sim.Rules().Matrix()

	changed := false
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				changed = true
			}
		}
	}
	if !changed {
		t.Error("RandomizeRules left the matrix unchanged")
	}
	// Radii are preserved.
	for _, r := range sim.Rules().Rules() {
		if r.MaxRadius != 0.1 {
			t.Errorf("RandomizeRules changed a radius to %g", r.MaxRadius)
		}
	}
}

func TestSimulationApplyImpulse(t *testing.T) {
	// Zero attraction matrix: the impulse is the only source of motion.
	cfg := testConfig(40)
	cfg.Matrix = [][]float64{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	sim, err := NewSimulation(cfg)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	center := Vec2{0.5, 0.5}
	sim.ApplyImpulse(center, 0.1)

	snap := sim.LatestSnapshot()
	moved, err := sim.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// On average the population must have moved toward the center.
	worldOf := sim.Config().World
	var beforeSum, afterSum float64
	for i := range snap.Particles {
		beforeSum += worldOf.DistanceSq(snap.Particles[i].Pos, center)
		afterSum += worldOf.DistanceSq(moved.Particles[i].Pos, center)
	}
	if afterSum >= beforeSum {
		t.Errorf("impulse did not pull population toward center: %g -> %g", beforeSum, afterSum)
	}
}

func TestSimulationPeriodicSnapshots(t *testing.T) {
	dir := t.TempDir()
	sim, err := NewSimulation(testConfig(5))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	sim.SetID("periodic")
	sim.SetSnapshotDir(dir)
	sim.SetSnapshotEveryFrames(2)

	for i := 0; i < 4; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	snap, err := LoadSnapshotFile(dir, "periodic")
	if err != nil {
		t.Fatalf("periodic snapshot not written: %v", err)
	}
	if snap.Frame != 4 {
		t.Errorf("persisted frame = %d, want 4", snap.Frame)
	}
}

func TestSimulationStats(t *testing.T) {
	sim, err := NewSimulation(testConfig(100))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := sim.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	stats := sim.Stats()
	if stats.Frames != 5 {
		t.Errorf("stats.Frames = %d, want 5", stats.Frames)
	}
	if stats.LastFrame.Frame != 5 {
		t.Errorf("stats.LastFrame.Frame = %d, want 5", stats.LastFrame.Frame)
	}
	if stats.LastFrame.Total <= 0 {
		t.Errorf("stats.LastFrame.Total = %v, want > 0", stats.LastFrame.Total)
	}
	if stats.FPS <= 0 {
		t.Errorf("stats.FPS = %g, want > 0", stats.FPS)
	}
}

func TestSimulationFrameEventsPublished(t *testing.T) {
	sim, err := NewSimulation(testConfig(10))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}

	mgr := NewNotificationManager()
	defer mgr.Close()
	rec := newRecordingNotifier("rec")
	if err := mgr.RegisterNotifier(rec); err != nil {
		t.Fatalf("RegisterNotifier: %v", err)
	}
	sim.SetNotificationManager(mgr)

	if _, err := sim.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	event := rec.waitForEvent(t, EventFrame, 2*time.Second)
	if event.Snapshot == nil || event.Snapshot.Frame != 1 {
		t.Errorf("frame event snapshot = %+v, want frame 1", event.Snapshot)
	}
	if event.Stats == nil {
		t.Error("frame event missing stats")
	}
}
