package plife

import "math"

// hashGrid is a sparse cell grid keyed by cell coordinate, for the
// open plane: it supports arbitrarily large (and negative) positions
// without allocating the space between occupied regions.
type hashGrid struct {
	cellSize float64
	cells    map[gridCell][]int
	occupied int

	positions []Vec2
}

// gridCell keys are 64-bit so positions far from the origin still map
// to well-defined cells on every architecture.
type gridCell struct {
	X, Y int64
}

func newHashGrid(world World, cellSize float64) *hashGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	_ = world
	return &hashGrid{
		cellSize: cellSize,
		cells:    make(map[gridCell][]int),
	}
}

func (g *hashGrid) Len() int {
	return len(g.positions)
}

func (g *hashGrid) cellOf(p Vec2) gridCell {
	return gridCell{
		X: int64(math.Floor(p.X / g.cellSize)),
		Y: int64(math.Floor(p.Y / g.cellSize)),
	}
}

func (g *hashGrid) Rebuild(positions []Vec2) {
	// Truncate in place so steady-state rebuilds reuse the buckets.
	// If the population has drifted away from most of the previously
	// touched cells, start over so the map cannot grow without bound.
	if len(g.cells) > 3*g.occupied+16 {
		g.cells = make(map[gridCell][]int, g.occupied)
	} else {
		for k := range g.cells {
			g.cells[k] = g.cells[k][:0]
		}
	}

	g.positions = positions
	for id, p := range positions {
		c := g.cellOf(p)
		g.cells[c] = append(g.cells[c], id)
	}

	g.occupied = 0
	for _, ids := range g.cells {
		if len(ids) > 0 {
			g.occupied++
		}
	}
}

func (g *hashGrid) QueryRadius(center Vec2, radius float64, out []int) []int {
	if radius < 0 || len(g.positions) == 0 {
		return out
	}
	minCell := g.cellOf(Vec2{center.X - radius, center.Y - radius})
	maxCell := g.cellOf(Vec2{center.X + radius, center.Y + radius})

	radiusSq := radius * radius
	for cy := minCell.Y; cy <= maxCell.Y; cy++ {
		for cx := minCell.X; cx <= maxCell.X; cx++ {
			for _, id := range g.cells[gridCell{cx, cy}] {
				if g.positions[id].Sub(center).LengthSq() <= radiusSq {
					out = append(out, id)
				}
			}
		}
	}
	return out
}
