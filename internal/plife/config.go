package plife

import "math/rand"

// WorldConfig is the JSON-facing description of a simulation: the
// population, the world topology, the rule matrix, and the numeric
// parameters of the integrator. It is validated as a whole before a
// simulation is built, and replaced wholesale on reload.
type WorldConfig struct {
	Name string `json:"name"`

	// Seed drives all randomness (placement, random matrices,
	// invalid-state reseeding). Zero means "seed from the clock":
	// runs are then not reproducible.
	Seed int64 `json:"seed,omitempty"`

	Particles int   `json:"particles"`
	Types     int   `json:"types"`
	World     World `json:"world"`

	// DT is the fixed timestep per frame.
	DT float64 `json:"dt"`

	// FrictionHalfLife is the time over which an unforced particle
	// loses half its speed. Friction, when set, overrides it with an
	// explicit per-step velocity retention factor in [0,1).
	FrictionHalfLife float64  `json:"friction_half_life,omitempty"`
	Friction         *float64 `json:"friction,omitempty"`

	// MaxRadius is the interaction cutoff applied to every type pair
	// unless Radii overrides it per pair.
	MaxRadius float64 `json:"max_radius"`

	// Beta is the repulsive-core fraction of the force profile.
	Beta float64 `json:"beta,omitempty"`

	// Matrix holds per-(from,to) attraction coefficients. When absent
	// the matrix is randomized from the seed.
	Matrix [][]float64 `json:"matrix,omitempty"`

	// Radii optionally overrides the interaction cutoff per pair.
	Radii [][]float64 `json:"radii,omitempty"`

	Placement Placement `json:"placement,omitempty"`

	// Workers caps the parallel fan-out; zero means one per CPU.
	Workers int `json:"workers,omitempty"`
}

const (
	defaultFrictionHalfLife = 0.04
	defaultWorldSize        = 1.0
)

// withDefaults returns a copy of the config with unset optional fields
// filled in.
func (cfg WorldConfig) withDefaults() WorldConfig {
	if cfg.World.Topology == "" {
		cfg.World = World{Topology: TopologyTorus, Width: defaultWorldSize, Height: defaultWorldSize}
	}
	if cfg.Beta == 0 {
		cfg.Beta = DefaultBeta
	}
	if cfg.Friction == nil && cfg.FrictionHalfLife == 0 {
		cfg.FrictionHalfLife = defaultFrictionHalfLife
	}
	if cfg.Placement == "" {
		cfg.Placement = PlacementUniform
	}
	return cfg
}

// frictionFactor resolves the per-step velocity retention factor.
func (cfg WorldConfig) frictionFactor() float64 {
	if cfg.Friction != nil {
		return *cfg.Friction
	}
	if cfg.DT == 0 {
		// With dt == 0 nothing moves regardless of friction; pick the
		// fully-damped factor so the integrator's [0,1) bound holds.
		return 0
	}
	return FrictionFromHalfLife(cfg.FrictionHalfLife, cfg.DT)
}

// buildRuleTable constructs the rule table described by the config.
// Matrix and Radii are independent: either may be given without the
// other, with random attractions / the uniform MaxRadius filling in.
func (cfg WorldConfig) buildRuleTable(rng *rand.Rand) (*RuleTable, error) {
	profile := BetaProfile(cfg.Beta)
	if cfg.Matrix == nil && cfg.Radii == nil {
		return NewRandomRuleTable(cfg.Types, cfg.MaxRadius, profile, rng)
	}

	rules := make([]Rule, cfg.Types*cfg.Types)
	for from := 0; from < cfg.Types; from++ {
		for to := 0; to < cfg.Types; to++ {
			attraction := rng.Float64()*2 - 1
			if cfg.Matrix != nil {
				attraction = cfg.Matrix[from][to]
			}
			radius := cfg.MaxRadius
			if cfg.Radii != nil {
				radius = cfg.Radii[from][to]
			}
			rules[from*cfg.Types+to] = Rule{
				Attraction: attraction,
				MaxRadius:  radius,
			}
		}
	}
	return NewRuleTable(cfg.Types, rules, profile)
}
