package plife

import (
	"fmt"
	"strings"
)

// ValidationError collects multiple validation issues
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid config: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "config validation errors: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// ValidateWorldConfig performs comprehensive validation of a WorldConfig.
// Structural problems are rejected here, at the API boundary, before a
// simulation ever runs a frame.
func ValidateWorldConfig(cfg WorldConfig) error {
	cfg = cfg.withDefaults()
	err := &ValidationError{}

	if cfg.Name == "" {
		err.Add("config name is required")
	}

	if cfg.Particles < 0 {
		err.Add(fmt.Sprintf("particles must be >= 0, got %d", cfg.Particles))
	}
	if cfg.Types < 1 {
		err.Add(fmt.Sprintf("types must be >= 1, got %d", cfg.Types))
	}

	if cfg.DT < 0 {
		err.Add(fmt.Sprintf("dt must be >= 0, got %g", cfg.DT))
	}

	if cfg.Friction != nil && (*cfg.Friction < 0 || *cfg.Friction >= 1) {
		err.Add(fmt.Sprintf("friction must be in [0,1), got %g", *cfg.Friction))
	}
	if cfg.Friction == nil && cfg.FrictionHalfLife <= 0 {
		err.Add(fmt.Sprintf("friction_half_life must be > 0, got %g", cfg.FrictionHalfLife))
	}

	if cfg.MaxRadius < 0 {
		err.Add(fmt.Sprintf("max_radius must be >= 0, got %g", cfg.MaxRadius))
	}
	if cfg.MaxRadius == 0 && cfg.Radii == nil {
		err.Add("max_radius must be > 0 when no per-pair radii are given")
	}

	if cfg.Beta <= 0 || cfg.Beta >= 1 {
		err.Add(fmt.Sprintf("beta must be in (0,1), got %g", cfg.Beta))
	}

	if werr := cfg.World.Validate(); werr != nil {
		err.Add(werr.Error())
	}

	validateMatrix(cfg.Matrix, "matrix", cfg.Types, false, err)
	validateMatrix(cfg.Radii, "radii", cfg.Types, true, err)

	switch cfg.Placement {
	case PlacementUniform, PlacementPerlin:
	default:
		err.Add(fmt.Sprintf("unknown placement %q (must be %q or %q)", cfg.Placement, PlacementUniform, PlacementPerlin))
	}

	if cfg.Workers < 0 {
		err.Add(fmt.Sprintf("workers must be >= 0, got %d", cfg.Workers))
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

// validateMatrix checks that an optional types x types matrix has the
// right shape, and non-negative entries when required.
func validateMatrix(m [][]float64, name string, types int, nonNegative bool, err *ValidationError) {
	if m == nil {
		return
	}
	if len(m) != types {
		err.Add(fmt.Sprintf("%s must have %d rows, got %d", name, types, len(m)))
		return
	}
	for i, row := range m {
		if len(row) != types {
			err.Add(fmt.Sprintf("%s row %d must have %d columns, got %d", name, i, types, len(row)))
			continue
		}
		if !nonNegative {
			continue
		}
		for j, v := range row {
			if v < 0 {
				err.Add(fmt.Sprintf("%s[%d][%d] must be >= 0, got %g", name, i, j, v))
			}
		}
	}
}
