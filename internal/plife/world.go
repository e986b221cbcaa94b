package plife

import (
	"fmt"
	"math"
)

// Topology selects how the world treats its edges.
type Topology string

const (
	// TopologyPlane is an open, unbounded plane with the plain
	// Euclidean metric. Positions may grow without bound.
	TopologyPlane Topology = "plane"

	// TopologyTorus wraps positions modulo the world size; distances
	// use the shortest wrapped path.
	TopologyTorus Topology = "torus"
)

// World describes the simulation domain: its topology and, for a torus,
// its extent. Width and Height are ignored on the open plane.
type World struct {
	Topology Topology `json:"topology"`
	Width    float64  `json:"width,omitempty"`
	Height   float64  `json:"height,omitempty"`
}

// Validate checks that the world description is usable.
func (w World) Validate() error {
	switch w.Topology {
	case TopologyPlane:
		return nil
	case TopologyTorus:
		if w.Width <= 0 || w.Height <= 0 {
			return fmt.Errorf("toroidal world requires positive width and height, got %gx%g", w.Width, w.Height)
		}
		return nil
	default:
		return fmt.Errorf("unknown topology %q (must be %q or %q)", w.Topology, TopologyPlane, TopologyTorus)
	}
}

// Delta returns the displacement from a to b under the world's metric.
// On a torus this is the shortest wrapped path.
func (w World) Delta(a, b Vec2) Vec2 {
	d := b.Sub(a)
	if w.Topology != TopologyTorus {
		return d
	}
	if d.X > w.Width/2 {
		d.X -= w.Width
	} else if d.X < -w.Width/2 {
		d.X += w.Width
	}
	if d.Y > w.Height/2 {
		d.Y -= w.Height
	} else if d.Y < -w.Height/2 {
		d.Y += w.Height
	}
	return d
}

// DistanceSq returns the squared distance between a and b under the
// world's metric.
func (w World) DistanceSq(a, b Vec2) float64 {
	return w.Delta(a, b).LengthSq()
}

// Wrap maps a position back into the world's fundamental domain.
// On the open plane it is the identity.
func (w World) Wrap(p Vec2) Vec2 {
	if w.Topology != TopologyTorus {
		return p
	}
	p.X = math.Mod(p.X, w.Width)
	if p.X < 0 {
		p.X += w.Width
	}
	p.Y = math.Mod(p.Y, w.Height)
	if p.Y < 0 {
		p.Y += w.Height
	}
	return p
}
