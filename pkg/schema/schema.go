// Package schema defines the array schema consumed by the read engine:
// dimensionality, domain, tile extents, cell order, and attributes.
//
// The engine treats schemas as read-only. A schema is parameterized by the
// coordinate type of the array's dimensions, fixed once when the array is
// opened.
package schema

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/eunmann/gridquery/pkg/geom"
)

// Coords is the reserved attribute name for cell coordinates. For sparse
// arrays coordinates are stored on disk like any attribute; for dense
// arrays they are synthesized on read when requested.
const Coords = "__coords"

// Layout identifies a cell ordering.
type Layout int

const (
	// RowMajor orders cells with the last dimension varying fastest.
	RowMajor Layout = iota
	// ColMajor orders cells with the first dimension varying fastest.
	ColMajor
	// Unordered returns sparse cells in fragment-then-tile-then-position
	// order. Not valid for dense reads.
	Unordered
)

func (l Layout) String() string {
	switch l {
	case RowMajor:
		return "row-major"
	case ColMajor:
		return "col-major"
	case Unordered:
		return "unordered"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

var (
	// ErrEmptyDomain indicates a schema with an empty or inverted domain.
	ErrEmptyDomain = errors.New("empty array domain")
	// ErrBadTileExtent indicates a non-positive or missing tile extent.
	ErrBadTileExtent = errors.New("invalid tile extent")
	// ErrDupAttribute indicates a duplicate attribute name.
	ErrDupAttribute = errors.New("duplicate attribute name")
	// ErrNoAttributes indicates a schema without attributes.
	ErrNoAttributes = errors.New("schema has no attributes")
	// ErrUnknownAttribute indicates a lookup of an attribute not in the schema.
	ErrUnknownAttribute = errors.New("unknown attribute")
)

// Attribute describes one attribute of the array.
type Attribute struct {
	// Name is the attribute name, unique within the schema.
	Name string
	// CellSize is the size in bytes of one cell value. For var-sized
	// attributes it is the size of one offsets entry (8).
	CellSize uint64
	// VarSized marks attributes whose cells have variable byte length.
	VarSized bool
	// Fill is the default value written for cells no fragment covers.
	// For fixed-size attributes it must be exactly CellSize bytes; for
	// var-sized attributes it is the var payload of one fill cell.
	Fill []byte
}

// Schema describes a tiled N-dimensional array.
type Schema[T geom.Num] struct {
	// Domain is the inclusive bound of every dimension.
	Domain geom.Rect[T]
	// TileExtents is the tile size along each dimension.
	TileExtents []T
	// CellOrder is the order cells are linearized within a tile on disk.
	CellOrder Layout
	// Dense marks arrays that store every cell; sparse arrays store
	// explicit coordinate/value pairs.
	Dense bool
	// Attributes is the attribute list, excluding the coordinates.
	Attributes []Attribute
}

// DimNum returns the number of dimensions.
func (s *Schema[T]) DimNum() int { return s.Domain.DimNum() }

// CoordSize returns the byte size of one coordinate tuple.
func (s *Schema[T]) CoordSize() uint64 {
	var zero T
	return uint64(s.DimNum()) * sizeOf(zero)
}

// Attribute returns the attribute with the given name. The reserved
// coordinates name resolves to a synthetic fixed-size attribute.
func (s *Schema[T]) Attribute(name string) (Attribute, error) {
	if name == Coords {
		return Attribute{Name: Coords, CellSize: s.CoordSize()}, nil
	}
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, nil
		}
	}
	return Attribute{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
}

// Validate checks the schema invariants.
func (s *Schema[T]) Validate() error {
	if !s.Domain.IsValid() {
		return ErrEmptyDomain
	}
	if len(s.TileExtents) != s.DimNum() {
		return fmt.Errorf("%w: got %d extents for %d dimensions",
			ErrBadTileExtent, len(s.TileExtents), s.DimNum())
	}
	for d, e := range s.TileExtents {
		if e <= 0 {
			return fmt.Errorf("%w: dimension %d", ErrBadTileExtent, d)
		}
	}
	if len(s.Attributes) == 0 {
		return ErrNoAttributes
	}
	seen := make(map[string]struct{}, len(s.Attributes))
	for _, a := range s.Attributes {
		if a.Name == Coords {
			return fmt.Errorf("%w: %q is reserved", ErrDupAttribute, Coords)
		}
		if _, ok := seen[a.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDupAttribute, a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.CellSize == 0 {
			return fmt.Errorf("attribute %q: zero cell size", a.Name)
		}
		if !a.VarSized && uint64(len(a.Fill)) != a.CellSize {
			return fmt.Errorf("attribute %q: fill value is %d bytes, want %d",
				a.Name, len(a.Fill), a.CellSize)
		}
	}
	return nil
}

func sizeOf[T geom.Num](v T) uint64 {
	return uint64(unsafe.Sizeof(v))
}
