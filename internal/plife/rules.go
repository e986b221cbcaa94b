package plife

import (
	"fmt"
	"math/rand"
)

// Rule is the force profile descriptor for one ordered (from, to) type
// pair. Attraction > 0 pulls the source particle toward the neighbor,
// Attraction < 0 pushes it away. MaxRadius is the pair's interaction
// cutoff; a zero radius means the pair never interacts.
type Rule struct {
	Attraction float64 `json:"attraction"`
	MaxRadius  float64 `json:"max_radius"`
}

// ForceProfile maps a neighbor at distance dist (0 < dist <= radius) to
// a signed force magnitude. Positive = attraction toward the neighbor.
// Implementations must be continuous in dist, or visible jitter results.
type ForceProfile func(dist, radius, attraction float64) float64

// BetaProfile returns the classic particle-life force shape: a linear
// repulsive core below beta*radius (independent of the attraction
// coefficient, so coincident particles always separate), and a
// triangular attraction band between beta*radius and radius that peaks
// halfway and falls back to zero at the cutoff. Continuous everywhere.
func BetaProfile(beta float64) ForceProfile {
	return func(dist, radius, attraction float64) float64 {
		r := dist / radius
		switch {
		case r < beta:
			return r/beta - 1
		case r < 1:
			return attraction * (1 - abs(2*r-1-beta)/(1-beta))
		default:
			return 0
		}
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// DefaultBeta is the repulsive-core fraction used when a config does
// not specify one.
const DefaultBeta = 0.3

// RuleTable is the static per-(type,type) interaction configuration.
// The matrix is intentionally allowed to be asymmetric: the force A
// exerts on B may differ from the force B exerts on A, which is what
// produces the emergent motion. A table is immutable once built;
// reconfiguration replaces it wholesale.
type RuleTable struct {
	numTypes int
	rules    []Rule // flattened, row-major: rules[from*numTypes+to]
	profile  ForceProfile

	maxRadius    float64   // global maximum over all pairs
	maxRadiusFor []float64 // per source type, max over all targets
}

// NewRuleTable builds a table from a flattened row-major rule slice of
// length numTypes*numTypes. Every MaxRadius must be >= 0.
func NewRuleTable(numTypes int, rules []Rule, profile ForceProfile) (*RuleTable, error) {
	if numTypes < 1 {
		return nil, fmt.Errorf("rule table needs at least one type, got %d", numTypes)
	}
	if len(rules) != numTypes*numTypes {
		return nil, fmt.Errorf("rule table for %d types needs %d rules, got %d", numTypes, numTypes*numTypes, len(rules))
	}
	if profile == nil {
		profile = BetaProfile(DefaultBeta)
	}

	t := &RuleTable{
		numTypes:     numTypes,
		rules:        make([]Rule, len(rules)),
		profile:      profile,
		maxRadiusFor: make([]float64, numTypes),
	}
	copy(t.rules, rules)

	for from := 0; from < numTypes; from++ {
		for to := 0; to < numTypes; to++ {
			r := rules[from*numTypes+to]
			if r.MaxRadius < 0 {
				return nil, fmt.Errorf("rule (%d,%d) has negative max_radius %g", from, to, r.MaxRadius)
			}
			if r.MaxRadius > t.maxRadiusFor[from] {
				t.maxRadiusFor[from] = r.MaxRadius
			}
			if r.MaxRadius > t.maxRadius {
				t.maxRadius = r.MaxRadius
			}
		}
	}
	return t, nil
}

// NewRandomRuleTable builds a table with attraction coefficients drawn
// uniformly from [-1,1) and a uniform interaction radius for all pairs.
func NewRandomRuleTable(numTypes int, radius float64, profile ForceProfile, rng *rand.Rand) (*RuleTable, error) {
	rules := make([]Rule, numTypes*numTypes)
	for i := range rules {
		rules[i] = Rule{Attraction: rng.Float64()*2 - 1, MaxRadius: radius}
	}
	return NewRuleTable(numTypes, rules, profile)
}

// NumTypes returns the number of particle types the table covers.
func (t *RuleTable) NumTypes() int { return t.numTypes }

// MaxRadius returns the largest interaction radius over all pairs.
func (t *RuleTable) MaxRadius() float64 { return t.maxRadius }

// MaxRadiusFor returns the largest interaction radius over all pairs
// whose source type is from. Used as the spatial query radius so the
// neighbor search never has to be repeated per target type.
func (t *RuleTable) MaxRadiusFor(from ParticleType) (float64, error) {
	if err := t.CheckType(from); err != nil {
		return 0, err
	}
	return t.maxRadiusFor[from], nil
}

// CheckType verifies that a type index is within the table's range.
func (t *RuleTable) CheckType(pt ParticleType) error {
	if pt < 0 || int(pt) >= t.numTypes {
		return &InvalidTypeError{Type: pt, NumTypes: t.numTypes}
	}
	return nil
}

// Rule returns the rule for the ordered pair (from, to).
func (t *RuleTable) Rule(from, to ParticleType) (Rule, error) {
	if err := t.CheckType(from); err != nil {
		return Rule{}, err
	}
	if err := t.CheckType(to); err != nil {
		return Rule{}, err
	}
	return t.rules[int(from)*t.numTypes+int(to)], nil
}

// ruleUnchecked is the hot-path lookup. Callers must have validated
// both types via CheckType first.
func (t *RuleTable) ruleUnchecked(from, to ParticleType) Rule {
	return t.rules[int(from)*t.numTypes+int(to)]
}

// Force evaluates the table's profile for a neighbor of type to at
// distance dist from a particle of type from. Returns 0 beyond the
// pair's cutoff or when the pair does not interact.
func (t *RuleTable) Force(from, to ParticleType, dist float64) (float64, error) {
	r, err := t.Rule(from, to)
	if err != nil {
		return 0, err
	}
	if r.MaxRadius == 0 || dist > r.MaxRadius {
		return 0, nil
	}
	return t.profile(dist, r.MaxRadius, r.Attraction), nil
}

// Matrix returns the attraction coefficients as a dense [from][to]
// matrix, for persistence and transport.
func (t *RuleTable) Matrix() [][]float64 {
	m := make([][]float64, t.numTypes)
	for from := 0; from < t.numTypes; from++ {
		m[from] = make([]float64, t.numTypes)
		for to := 0; to < t.numTypes; to++ {
			m[from][to] = t.rules[from*t.numTypes+to].Attraction
		}
	}
	return m
}

// Rules returns a copy of the flattened rule slice.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
