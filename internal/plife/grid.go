package plife

import "math"

// cellGrid is a dense cell grid over a toroidal world. Cells are
// reused across rebuilds, so a steady-state frame allocates nothing.
type cellGrid struct {
	world    World
	cellSize float64
	cols     int
	rows     int
	cells    [][]int

	positions []Vec2 // valid between Rebuild and the next Rebuild
}

func newCellGrid(world World, cellSize float64) *cellGrid {
	if cellSize <= 0 {
		cellSize = world.Width
	}
	cols := int(math.Ceil(world.Width / cellSize))
	rows := int(math.Ceil(world.Height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &cellGrid{
		world:    world,
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    make([][]int, cols*rows),
	}
}

func (g *cellGrid) Len() int {
	return len(g.positions)
}

func (g *cellGrid) cellIndex(p Vec2) int {
	p = g.world.Wrap(p)
	col := int(p.X / g.cellSize)
	row := int(p.Y / g.cellSize)
	// Wrap can land exactly on the far edge for positions like -1e-18.
	if col >= g.cols {
		col = g.cols - 1
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return row*g.cols + col
}

func (g *cellGrid) Rebuild(positions []Vec2) {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.positions = positions
	for id, p := range positions {
		idx := g.cellIndex(p)
		g.cells[idx] = append(g.cells[idx], id)
	}
}

func (g *cellGrid) QueryRadius(center Vec2, radius float64, out []int) []int {
	if radius < 0 || len(g.positions) == 0 {
		return out
	}
	wrapped := g.world.Wrap(center)
	centerCol := int(wrapped.X / g.cellSize)
	centerRow := int(wrapped.Y / g.cellSize)
	if centerCol >= g.cols {
		centerCol = g.cols - 1
	}
	if centerRow >= g.rows {
		centerRow = g.rows - 1
	}

	cellRadius := int(math.Ceil(radius / g.cellSize))
	// When the query spans the whole axis, visit each cell once.
	colSpan := 2*cellRadius + 1
	if colSpan > g.cols {
		colSpan = g.cols
	}
	rowSpan := 2*cellRadius + 1
	if rowSpan > g.rows {
		rowSpan = g.rows
	}

	radiusSq := radius * radius
	for dr := 0; dr < rowSpan; dr++ {
		row := mod(centerRow-cellRadius+dr, g.rows)
		for dc := 0; dc < colSpan; dc++ {
			col := mod(centerCol-cellRadius+dc, g.cols)
			for _, id := range g.cells[row*g.cols+col] {
				if g.world.DistanceSq(center, g.positions[id]) <= radiusSq {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
