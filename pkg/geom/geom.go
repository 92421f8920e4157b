// Package geom provides hyper-rectangle and cell-linearization arithmetic
// over N-dimensional array domains.
//
// A rectangle is stored as interleaved inclusive bounds [lo0, hi0, lo1, hi1, ...].
// Cell-counting and linearization helpers assume integer-valued domains
// (dense array semantics); overlap and containment work for any numeric
// coordinate type.
package geom

// Num is the set of coordinate types supported for array dimensions.
type Num interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Rect is an N-dimensional hyper-rectangle with inclusive bounds,
// stored as [lo0, hi0, lo1, hi1, ...].
type Rect[T Num] []T

// NewRect constructs a rectangle from interleaved bounds.
// It panics if the number of bounds is odd.
func NewRect[T Num](bounds ...T) Rect[T] {
	if len(bounds)%2 != 0 {
		panic("geom: odd number of rectangle bounds")
	}
	r := make(Rect[T], len(bounds))
	copy(r, bounds)
	return r
}

// DimNum returns the number of dimensions.
func (r Rect[T]) DimNum() int { return len(r) / 2 }

// Lo returns the inclusive lower bound of dimension d.
func (r Rect[T]) Lo(d int) T { return r[2*d] }

// Hi returns the inclusive upper bound of dimension d.
func (r Rect[T]) Hi(d int) T { return r[2*d+1] }

// IsValid reports whether every dimension has lo <= hi.
func (r Rect[T]) IsValid() bool {
	for d := 0; d < r.DimNum(); d++ {
		if r.Lo(d) > r.Hi(d) {
			return false
		}
	}
	return len(r) > 0
}

// Clone returns a copy of the rectangle.
func (r Rect[T]) Clone() Rect[T] {
	c := make(Rect[T], len(r))
	copy(c, r)
	return c
}

// Equal reports whether two rectangles have identical bounds.
func (r Rect[T]) Equal(o Rect[T]) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// Overlap reports whether a and b intersect, and whether a fully contains b.
func Overlap[T Num](a, b Rect[T]) (overlaps, aContainsB bool) {
	overlaps = true
	aContainsB = true
	for d := 0; d < a.DimNum(); d++ {
		if a.Lo(d) > b.Hi(d) || a.Hi(d) < b.Lo(d) {
			return false, false
		}
		if a.Lo(d) > b.Lo(d) || a.Hi(d) < b.Hi(d) {
			aContainsB = false
		}
	}
	return overlaps, aContainsB
}

// Intersect returns the intersection of a and b.
// ok is false when the rectangles are disjoint.
func Intersect[T Num](a, b Rect[T]) (Rect[T], bool) {
	out := make(Rect[T], len(a))
	for d := 0; d < a.DimNum(); d++ {
		lo, hi := a.Lo(d), a.Hi(d)
		if b.Lo(d) > lo {
			lo = b.Lo(d)
		}
		if b.Hi(d) < hi {
			hi = b.Hi(d)
		}
		if lo > hi {
			return nil, false
		}
		out[2*d] = lo
		out[2*d+1] = hi
	}
	return out, true
}

// ContainsPoint reports whether pt lies inside r.
// pt must have r.DimNum() coordinates.
func (r Rect[T]) ContainsPoint(pt []T) bool {
	for d := 0; d < r.DimNum(); d++ {
		if pt[d] < r.Lo(d) || pt[d] > r.Hi(d) {
			return false
		}
	}
	return true
}

// Span returns the number of cells along dimension d (integer domains).
func (r Rect[T]) Span(d int) uint64 {
	return uint64(r.Hi(d)-r.Lo(d)) + 1
}

// Cells returns the total cell count of the rectangle (integer domains).
func (r Rect[T]) Cells() uint64 {
	n := uint64(1)
	for d := 0; d < r.DimNum(); d++ {
		n *= r.Span(d)
	}
	return n
}

// PosRowMajor returns the row-major linearized position of pt within r.
func (r Rect[T]) PosRowMajor(pt []T) uint64 {
	pos := uint64(0)
	for d := 0; d < r.DimNum(); d++ {
		pos = pos*r.Span(d) + uint64(pt[d]-r.Lo(d))
	}
	return pos
}

// PosColMajor returns the column-major linearized position of pt within r.
func (r Rect[T]) PosColMajor(pt []T) uint64 {
	pos := uint64(0)
	for d := r.DimNum() - 1; d >= 0; d-- {
		pos = pos*r.Span(d) + uint64(pt[d]-r.Lo(d))
	}
	return pos
}

// CoordsAtRowMajor writes into out the coordinates of the cell at row-major
// position pos within r. out must have r.DimNum() entries.
func (r Rect[T]) CoordsAtRowMajor(pos uint64, out []T) {
	for d := r.DimNum() - 1; d >= 0; d-- {
		s := r.Span(d)
		out[d] = r.Lo(d) + T(pos%s)
		pos /= s
	}
}

// TileCoords writes into out the tile-grid coordinates of pt, given the
// array domain and per-dimension tile extents.
func TileCoords[T Num](domain Rect[T], extents []T, pt []T, out []T) {
	for d := 0; d < domain.DimNum(); d++ {
		out[d] = (pt[d] - domain.Lo(d)) / extents[d]
	}
}

// TileRect returns the rectangle covered by the tile at the given tile-grid
// coordinates, clamped to the domain.
func TileRect[T Num](domain Rect[T], extents []T, tc []T) Rect[T] {
	r := make(Rect[T], len(domain))
	for d := 0; d < domain.DimNum(); d++ {
		lo := domain.Lo(d) + tc[d]*extents[d]
		hi := lo + extents[d] - 1
		if hi > domain.Hi(d) {
			hi = domain.Hi(d)
		}
		r[2*d] = lo
		r[2*d+1] = hi
	}
	return r
}

// TileGridRange returns the inclusive tile-grid coordinate bounds of the
// tiles intersecting region.
func TileGridRange[T Num](domain Rect[T], extents []T, region Rect[T]) (lo, hi []T) {
	dims := domain.DimNum()
	lo = make([]T, dims)
	hi = make([]T, dims)
	loPt := make([]T, dims)
	hiPt := make([]T, dims)
	for d := 0; d < dims; d++ {
		loPt[d] = region.Lo(d)
		hiPt[d] = region.Hi(d)
	}
	TileCoords(domain, extents, loPt, lo)
	TileCoords(domain, extents, hiPt, hi)
	return lo, hi
}
