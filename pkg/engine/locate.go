package engine

import (
	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/tilestore"
)

// fillTile is the arena handle sentinel for "no fragment": cells covered by
// a fill-sentinel range are materialized with the attribute's fill value.
const fillTile = -1

// locatedTile is one fragment tile intersecting the current partition. It
// owns the fetched per-attribute payloads for the duration of a single
// Submit call; arena handles (slice indices) must not be kept across calls.
type locatedTile[T geom.Num] struct {
	fragIdx int
	tileIdx uint64
	// full marks tiles whose bounding rectangle lies entirely inside the
	// partition region, so their cells skip per-cell containment tests.
	full bool
	// payloads maps attribute name (including schema.Coords for sparse
	// fragments) to the fetched tile.
	payloads map[string]tilestore.Tile
}

// cellRange is a resolved, contiguous span of result cells attributed to a
// single source tile, or to the fill sentinel. Positions are half-open
// [start, end) offsets in the tile's cell order; for fill ranges they just
// count cells.
type cellRange[T geom.Num] struct {
	tile  int
	start uint64
	end   uint64

	// Dense reads carry the starting cell coordinates of the run and the
	// dimension it advances along, for coordinate synthesis.
	synth []T
	axis  int
}

// locateTiles enumerates every fragment tile whose bounding rectangle
// intersects the partition region, in fragment-then-tile order. Complexity
// is linear in the total tile count across fragments.
func (q *Query[T]) locateTiles(region geom.Rect[T]) ([]*locatedTile[T], error) {
	var arena []*locatedTile[T]
	for fi, f := range q.frags {
		for ti := uint64(0); ti < f.TileCount(); ti++ {
			mbr, err := f.MBR(ti)
			if err != nil {
				return nil, err
			}
			overlaps, contained := geom.Overlap(region, mbr)
			if !overlaps {
				continue
			}
			arena = append(arena, &locatedTile[T]{
				fragIdx:  fi,
				tileIdx:  ti,
				full:     contained,
				payloads: make(map[string]tilestore.Tile),
			})
		}
	}
	return arena, nil
}
