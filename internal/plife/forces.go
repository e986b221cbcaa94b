package plife

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForceEvaluator computes the net pairwise force on every particle.
// The work is fanned out across workers over disjoint particle index
// ranges; each worker writes only its own slice of the output array
// and keeps a private neighbor buffer, so the phase needs no locking.
type ForceEvaluator struct {
	world   World
	workers int
}

// NewForceEvaluator creates an evaluator. workers <= 0 means one
// worker per available CPU.
func NewForceEvaluator(world World, workers int) *ForceEvaluator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ForceEvaluator{world: world, workers: workers}
}

// Compute fills out[i] with the net force on particles[i]. The index
// must have been rebuilt from the same positions this frame and is
// only read. Returns an InvalidTypeError if any particle's type is
// outside the rule table's range; out is then unspecified.
//
// Force direction convention: a positive profile value is attraction
// and pulls the particle toward its neighbor.
func (e *ForceEvaluator) Compute(ctx context.Context, particles []Particle, index SpatialIndex, rules *RuleTable, out []Vec2) error {
	if len(out) != len(particles) {
		panic("plife: force output length does not match population")
	}
	if len(particles) == 0 {
		return nil
	}

	// Fail fast on configuration bugs before any work is fanned out.
	for i := range particles {
		if err := rules.CheckType(particles[i].Type); err != nil {
			return err
		}
	}

	workers := e.workers
	if workers > len(particles) {
		workers = len(particles)
	}
	chunk := (len(particles) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(particles) {
			hi = len(particles)
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			return e.computeRange(ctx, particles, index, rules, out, lo, hi)
		})
	}
	return g.Wait()
}

func (e *ForceEvaluator) computeRange(ctx context.Context, particles []Particle, index SpatialIndex, rules *RuleTable, out []Vec2, lo, hi int) error {
	neighbors := make([]int, 0, 64)
	for i := lo; i < hi; i++ {
		if i%256 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		p := &particles[i]
		queryRadius := rules.maxRadiusFor[p.Type]
		if queryRadius == 0 {
			out[i] = Vec2{}
			continue
		}

		neighbors = index.QueryRadius(p.Pos, queryRadius, neighbors[:0])

		var total Vec2
		for _, id := range neighbors {
			if id == i {
				continue
			}
			q := &particles[id]
			delta := e.world.Delta(p.Pos, q.Pos)
			dist := delta.Length()
			// Coincident pairs have no defined direction; skip them and
			// let the repulsive core separate them next frame via any
			// non-coincident neighbor.
			if dist == 0 {
				continue
			}
			rule := rules.ruleUnchecked(p.Type, q.Type)
			if rule.MaxRadius == 0 || dist > rule.MaxRadius {
				continue
			}
			f := rules.profile(dist, rule.MaxRadius, rule.Attraction)
			total = total.Add(delta.Scale(f / dist))
		}
		out[i] = total
	}
	return nil
}
