package plife

// SpatialIndex answers radius queries over the particle position array.
// An index is rebuilt once per frame from the current positions and is
// read-only (safe for concurrent readers) until the next Rebuild.
//
// QueryRadius appends to out the ids of exactly those particles whose
// position lies within dist <= radius of center under the world's
// metric, and returns the extended slice. Passing a reusable buffer
// keeps the hot path allocation-free. The query point itself is not
// excluded: callers filter self-ids.
type SpatialIndex interface {
	Rebuild(positions []Vec2)
	QueryRadius(center Vec2, radius float64, out []int) []int
	Len() int
}

// NewSpatialIndex returns the index implementation suited to the
// world's topology: a dense wrapped cell grid for a torus, a sparse
// hash grid for the open plane (which must handle arbitrarily large
// coordinates). cellSize is normally the rule table's max radius.
func NewSpatialIndex(world World, cellSize float64) SpatialIndex {
	if world.Topology == TopologyTorus {
		return newCellGrid(world, cellSize)
	}
	return newHashGrid(world, cellSize)
}
