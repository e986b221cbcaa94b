package plife

import (
	"math/rand"

	"github.com/aquilax/go-perlin"
)

// ParticleType selects a row/column in the rule table.
type ParticleType int

// Particle is a point entity. Its ID is its index in the population
// array and is stable for the lifetime of a run.
type Particle struct {
	ID   int          `json:"id"`
	Pos  Vec2         `json:"pos"`
	Vel  Vec2         `json:"vel"`
	Type ParticleType `json:"type"`
}

// Placement selects how the initial population is distributed.
type Placement string

const (
	// PlacementUniform scatters particles uniformly over the spawn area.
	PlacementUniform Placement = "uniform"

	// PlacementPerlin biases particle positions toward the ridges of a
	// Perlin noise field, so runs start from organic clumps.
	PlacementPerlin Placement = "perlin"
)

const (
	perlinAlpha  = 2.0
	perlinBeta   = 2.0
	perlinOctave = 3
	// Noise threshold above which a candidate position is accepted.
	perlinThreshold = 0.1
	// Rejection sampling bails out after this many attempts per
	// particle so a hostile noise field cannot stall seeding.
	perlinMaxTries = 16
)

// spawnExtent returns the rectangle particles are seeded into. For a
// torus it is the world itself; on the open plane it defaults to the
// unit square unless an extent was configured.
func (w World) spawnExtent() (float64, float64) {
	if w.Width > 0 && w.Height > 0 {
		return w.Width, w.Height
	}
	return 1, 1
}

// GeneratePopulation creates n particles with random types in
// [0, numTypes) and positions drawn according to the placement mode.
// Velocities start at zero. n == 0 yields an empty, valid population.
func GeneratePopulation(n, numTypes int, world World, placement Placement, rng *rand.Rand) []Particle {
	w, h := world.spawnExtent()
	particles := make([]Particle, n)

	var noise *perlin.Perlin
	if placement == PlacementPerlin {
		noise = perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctave, rng.Int63())
	}

	for i := range particles {
		pos := Vec2{rng.Float64() * w, rng.Float64() * h}
		if noise != nil {
			for try := 0; try < perlinMaxTries; try++ {
				if noise.Noise2D(pos.X/w*4, pos.Y/h*4) > perlinThreshold {
					break
				}
				pos = Vec2{rng.Float64() * w, rng.Float64() * h}
			}
		}
		particles[i] = Particle{
			ID:   i,
			Pos:  pos,
			Type: ParticleType(rng.Intn(numTypes)),
		}
	}
	return particles
}
