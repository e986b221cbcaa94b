package plife

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Integrator advances velocities and positions by one step of
// semi-implicit Euler:
//
//	vel = vel*friction + force*dt
//	pos = pos + vel*dt
//
// Friction in [0,1) is the per-step velocity retention factor and is
// the stability safeguard: forces are unbounded in principle, so the
// geometric decay is what keeps velocities bounded over time.
type Integrator struct {
	world    World
	friction float64
	workers  int
}

// FrictionFromHalfLife converts a friction half-life (the time over
// which an unforced particle loses half its speed) into the per-step
// retention factor for the given dt.
func FrictionFromHalfLife(halfLife, dt float64) float64 {
	if halfLife <= 0 {
		return 0
	}
	return math.Pow(0.5, dt/halfLife)
}

// NewIntegrator creates an integrator. friction must be in [0,1);
// workers <= 0 means one worker per available CPU.
func NewIntegrator(world World, friction float64, workers int) (*Integrator, error) {
	if friction < 0 || friction >= 1 {
		return nil, fmt.Errorf("friction must be in [0,1), got %g", friction)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Integrator{world: world, friction: friction, workers: workers}, nil
}

// Friction returns the per-step velocity retention factor.
func (ig *Integrator) Friction() float64 { return ig.friction }

// Step advances every particle by dt under the given net forces.
// Workers own disjoint index ranges, so no particle is written twice.
//
// Particles whose position or velocity comes out non-finite are only
// *marked* during the parallel pass; after the join they are reset to
// a caller-supplied safe state (reseed), so a NaN never survives into
// the next frame. The returned slice holds the ids that were reset.
//
// dt < 0 is rejected; dt == 0 is a legal no-motion step.
func (ig *Integrator) Step(ctx context.Context, particles []Particle, forces []Vec2, dt float64, reseed func(id int) Particle) ([]int, error) {
	if dt < 0 {
		return nil, ErrNegativeDT
	}
	if len(forces) != len(particles) {
		panic("plife: force array length does not match population")
	}
	if len(particles) == 0 {
		return nil, nil
	}

	workers := ig.workers
	if workers > len(particles) {
		workers = len(particles)
	}
	chunk := (len(particles) + workers - 1) / workers

	invalid := make([][]int, workers)
	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := w * chunk
		hi := lo + chunk
		if hi > len(particles) {
			hi = len(particles)
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			invalid[w] = ig.stepRange(particles, forces, dt, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Recovery runs serially after the barrier: it is rare, and it
	// keeps the parallel pass free of shared state (the reseed
	// callback may use a non-thread-safe rng).
	var recovered []int
	for _, ids := range invalid {
		for _, id := range ids {
			fresh := reseed(id)
			fresh.ID = id
			particles[id] = fresh
			recovered = append(recovered, id)
		}
	}
	return recovered, nil
}

func (ig *Integrator) stepRange(particles []Particle, forces []Vec2, dt float64, lo, hi int) []int {
	var invalid []int
	for i := lo; i < hi; i++ {
		p := &particles[i]
		p.Vel = p.Vel.Scale(ig.friction).Add(forces[i].Scale(dt))
		p.Pos = ig.world.Wrap(p.Pos.Add(p.Vel.Scale(dt)))
		if !p.Pos.IsFinite() || !p.Vel.IsFinite() {
			invalid = append(invalid, i)
		}
	}
	return invalid
}
