// Package fragment defines the read-only metadata of on-disk fragments: the
// immutable, independently written versions of an array's contents that a
// read query resolves across.
package fragment

import (
	"errors"
	"fmt"

	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
)

// ErrTileOutOfRange indicates a tile index past the fragment's tile count.
var ErrTileOutOfRange = errors.New("tile index out of range")

// TileSize records the on-disk payload sizes of one attribute tile. The
// partitioner uses these as a conservative upper bound on result sizes.
type TileSize struct {
	// Fixed is the byte size of the fixed-data payload. For var-sized
	// attributes this is zero and Off/Var are set instead.
	Fixed uint64
	// Off is the byte size of the offsets payload (var-sized only).
	Off uint64
	// Var is the byte size of the values payload (var-sized only).
	Var uint64
}

// Meta is the metadata of one fragment. It is externally owned and never
// mutated by the engine.
type Meta[T geom.Num] struct {
	// ID identifies the fragment in the tile store.
	ID string
	// Rank is the precedence rank; a strictly higher rank wins over a
	// lower rank for the same cell.
	Rank uint64
	// Dense marks fragments that store every cell of their domain.
	Dense bool
	// Domain is the fragment's non-empty domain.
	Domain geom.Rect[T]
	// MBRs holds the bounding rectangle of every tile, indexed by the
	// fragment-local tile index.
	MBRs []geom.Rect[T]
	// TileSizes maps attribute name to per-tile payload sizes, indexed
	// like MBRs. Sparse fragments carry an entry for schema.Coords.
	TileSizes map[string][]TileSize
}

// TileCount returns the number of tiles in the fragment.
func (m *Meta[T]) TileCount() uint64 { return uint64(len(m.MBRs)) }

// MBR returns the bounding rectangle of the tile at index i.
func (m *Meta[T]) MBR(i uint64) (geom.Rect[T], error) {
	if i >= m.TileCount() {
		return nil, fmt.Errorf("%w: tile %d of %d in fragment %s",
			ErrTileOutOfRange, i, m.TileCount(), m.ID)
	}
	return m.MBRs[i], nil
}

// Size returns the payload sizes of the given attribute's tile at index i.
// Missing size information yields a zero TileSize.
func (m *Meta[T]) Size(attr string, i uint64) TileSize {
	sizes, ok := m.TileSizes[attr]
	if !ok || i >= uint64(len(sizes)) {
		return TileSize{}
	}
	return sizes[i]
}

// NewDense builds the metadata of a dense fragment covering domain. The
// fragment's tiles are the array grid tiles intersecting domain, indexed
// row-major over that sub-grid, matching the on-disk tile layout.
func NewDense[T geom.Num](s *schema.Schema[T], id string, rank uint64, domain geom.Rect[T]) (*Meta[T], error) {
	if !domain.IsValid() {
		return nil, fmt.Errorf("fragment %s: invalid domain", id)
	}
	grid := tileGrid(s, domain)

	mbrs := make([]geom.Rect[T], 0, grid.Cells())
	tc := make([]T, s.DimNum())
	for i := uint64(0); i < grid.Cells(); i++ {
		grid.CoordsAtRowMajor(i, tc)
		mbrs = append(mbrs, geom.TileRect(s.Domain, s.TileExtents, tc))
	}

	return &Meta[T]{
		ID:     id,
		Rank:   rank,
		Dense:  true,
		Domain: domain.Clone(),
		MBRs:   mbrs,
	}, nil
}

// DenseTileIndex returns the fragment-local tile index of the array grid
// tile at tile coordinates tc, or false when the fragment does not cover
// that tile.
func (m *Meta[T]) DenseTileIndex(s *schema.Schema[T], tc []T) (uint64, bool) {
	if !m.Dense {
		return 0, false
	}
	grid := tileGrid(s, m.Domain)
	if !grid.ContainsPoint(tc) {
		return 0, false
	}
	return grid.PosRowMajor(tc), true
}

// tileGrid returns the rectangle of tile-grid coordinates covered by the
// array grid tiles intersecting domain.
func tileGrid[T geom.Num](s *schema.Schema[T], domain geom.Rect[T]) geom.Rect[T] {
	lo, hi := geom.TileGridRange(s.Domain, s.TileExtents, domain)
	grid := make(geom.Rect[T], 0, 2*len(lo))
	for d := range lo {
		grid = append(grid, lo[d], hi[d])
	}
	return grid
}
