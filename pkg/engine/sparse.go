package engine

import (
	"fmt"
	"sort"

	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
)

// resolvedCoord is one stored coordinate tuple falling inside the partition
// region. Losing duplicates are invalidated in place rather than removed.
type resolvedCoord[T geom.Num] struct {
	tile    int // arena handle
	fragIdx int
	pos     uint64 // cell position within the tile
	coords  []T    // aliases the coords tile payload
	valid   bool
}

// computeOverlappingCoords extracts the in-region coordinates of every
// located sparse-fragment tile, in fragment-then-tile-then-position order.
// Full-overlap tiles skip the per-cell containment test.
func (q *Query[T]) computeOverlappingCoords(arena []*locatedTile[T], region geom.Rect[T]) ([]resolvedCoord[T], error) {
	dims := q.schema.DimNum()
	coordSize := q.schema.CoordSize()

	var out []resolvedCoord[T]
	for h, lt := range arena {
		if q.frags[lt.fragIdx].Dense {
			continue
		}
		payload, ok := lt.payloads[schema.Coords]
		if !ok {
			return nil, fmt.Errorf("%w: coords of %s tile %d",
				ErrMissingTile, q.frags[lt.fragIdx].ID, lt.tileIdx)
		}
		if uint64(len(payload.Fixed))%coordSize != 0 {
			return nil, fmt.Errorf("%w: coords payload of %d bytes, cell size %d",
				ErrAllocation, len(payload.Fixed), coordSize)
		}

		vals := bytesToVals[T](payload.Fixed)
		n := uint64(len(vals)) / uint64(dims)
		for i := uint64(0); i < n; i++ {
			pt := vals[i*uint64(dims) : (i+1)*uint64(dims)]
			if !lt.full && !region.ContainsPoint(pt) {
				continue
			}
			out = append(out, resolvedCoord[T]{
				tile:    h,
				fragIdx: lt.fragIdx,
				pos:     i,
				coords:  pt,
				valid:   true,
			})
		}
	}
	return out, nil
}

// dedupCoords invalidates all but the winning entry among coordinates at
// the same cell. The fragment with the strictly higher precedence rank
// wins; equal ranks keep the first entry in fragment list order.
func (q *Query[T]) dedupCoords(coords []resolvedCoord[T]) {
	if len(coords) < 2 {
		return
	}
	best := make(map[string]int, len(coords))
	for i := range coords {
		key := string(valsToBytes(coords[i].coords))
		j, ok := best[key]
		if !ok {
			best[key] = i
			continue
		}
		if q.frags[coords[i].fragIdx].Rank > q.frags[coords[j].fragIdx].Rank {
			coords[j].valid = false
			best[key] = i
		} else {
			coords[i].valid = false
		}
	}
}

// sortCoords orders the coordinates by the requested result layout. The
// unordered layout keeps the extraction order (fragment, tile, position).
func (q *Query[T]) sortCoords(coords []resolvedCoord[T]) {
	dims := q.schema.DimNum()
	switch q.layout {
	case schema.RowMajor:
		sort.SliceStable(coords, func(i, j int) bool {
			return lessDims(coords[i].coords, coords[j].coords, dims, false)
		})
	case schema.ColMajor:
		sort.SliceStable(coords, func(i, j int) bool {
			return lessDims(coords[i].coords, coords[j].coords, dims, true)
		})
	case schema.Unordered:
	}
}

// lessDims compares coordinate tuples lexicographically, outermost
// dimension first (reversed for column-major order).
func lessDims[T geom.Num](a, b []T, dims int, reverse bool) bool {
	for i := 0; i < dims; i++ {
		d := i
		if reverse {
			d = dims - 1 - i
		}
		if a[d] != b[d] {
			return a[d] < b[d]
		}
	}
	return false
}

// computeCellRanges coalesces the surviving sorted coordinates into maximal
// ranges of consecutive positions within the same tile.
func computeCellRanges[T geom.Num](coords []resolvedCoord[T]) []cellRange[T] {
	var out []cellRange[T]
	for i := range coords {
		c := &coords[i]
		if !c.valid {
			continue
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.tile == c.tile && c.pos == last.end {
				last.end++
				continue
			}
		}
		out = append(out, cellRange[T]{tile: c.tile, start: c.pos, end: c.pos + 1})
	}
	return out
}
