package engine

import (
	"fmt"

	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
)

// computePartitions splits the query region into sub-regions whose
// estimated worst-case result fits every attribute buffer. Partitions are
// disjoint, union to the region, and are ordered so that concatenating
// their results reproduces a single read in the requested layout.
func (q *Query[T]) computePartitions(region geom.Rect[T]) ([]geom.Rect[T], error) {
	if !region.IsValid() {
		return nil, ErrInvalidRegion
	}

	var out []geom.Rect[T]
	var split func(r geom.Rect[T]) error
	split = func(r geom.Rect[T]) error {
		if q.fitsBuffers(r) {
			out = append(out, r)
			return nil
		}
		a, b, ok := q.splitRegion(r)
		if !ok {
			return fmt.Errorf("%w: region %v", ErrCapacity, r)
		}
		if err := split(a); err != nil {
			return err
		}
		return split(b)
	}
	if err := split(region); err != nil {
		return nil, err
	}
	return out, nil
}

// splitRegion bisects r along the outermost splittable dimension of the
// requested layout, so the two halves stay in result order. ok is false
// when the region is a single cell.
func (q *Query[T]) splitRegion(r geom.Rect[T]) (a, b geom.Rect[T], ok bool) {
	dims := r.DimNum()
	for i := 0; i < dims; i++ {
		d := i
		if q.layout == schema.ColMajor {
			d = dims - 1 - i
		}
		if r.Span(d) < 2 {
			continue
		}
		mid := r.Lo(d) + T(uint64(r.Hi(d)-r.Lo(d))/2)
		a = r.Clone()
		b = r.Clone()
		a[2*d+1] = mid
		b[2*d] = mid + 1
		return a, b, true
	}
	return nil, nil, false
}

// fitsBuffers reports whether the estimated result of r fits every
// requested attribute's buffer capacity.
func (q *Query[T]) fitsBuffers(r geom.Rect[T]) bool {
	for _, name := range q.attrs {
		need := q.estimateResultSize(name, r)
		caps := capsOf(q.buffers[name])
		if need.data > caps.data || need.vr > caps.vr {
			return false
		}
	}
	return true
}

// estimateResultSize returns a conservative (never undercounting) upper
// bound on the bytes the attribute's result for region r can occupy.
//
// Dense fixed-size results are exact: every cell is present once. Var-sized
// and sparse results are bounded by the stored tile payload sizes from the
// fragment metadata, since deduplication and region clipping only shrink
// the result.
func (q *Query[T]) estimateResultSize(name string, r geom.Rect[T]) bufferCaps {
	attr, err := q.schema.Attribute(name)
	if err != nil {
		return bufferCaps{}
	}

	if q.schema.Dense {
		cells := r.Cells()
		if !attr.VarSized {
			return bufferCaps{data: cells * attr.CellSize}
		}
		need := bufferCaps{
			data: cells * 8,
			vr:   cells * uint64(len(attr.Fill)),
		}
		q.forOverlappingTiles(r, func(fi int, ti uint64) {
			need.vr += q.frags[fi].Size(name, ti).Var
		})
		return need
	}

	var need bufferCaps
	q.forOverlappingTiles(r, func(fi int, ti uint64) {
		ts := q.frags[fi].Size(name, ti)
		if attr.VarSized {
			need.data += ts.Off
			need.vr += ts.Var
		} else {
			need.data += ts.Fixed
		}
	})
	return need
}

// forOverlappingTiles visits every (fragment, tile) pair whose bounding
// rectangle intersects r.
func (q *Query[T]) forOverlappingTiles(r geom.Rect[T], visit func(fragIdx int, tileIdx uint64)) {
	for fi, f := range q.frags {
		for ti := uint64(0); ti < f.TileCount(); ti++ {
			mbr, err := f.MBR(ti)
			if err != nil {
				continue
			}
			if overlaps, _ := geom.Overlap(r, mbr); overlaps {
				visit(fi, ti)
			}
		}
	}
}
