package engine

import (
	"fmt"

	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
)

// slab is a maximal contiguous run of region cells along the fastest
// dimension of the requested layout, confined to a single array grid tile.
// Dense resolution sweeps the partition slab by slab.
type slab[T geom.Num] struct {
	start  []T // coordinates of the first cell
	length uint64
	tc     []T // tile-grid coordinates of the containing tile
}

// denseCellRange is a winner segment of one slab: the fragment whose cells
// cover slab offsets [start, end), or fillFrag when no fragment covers them.
type denseCellRange struct {
	fragIdx    int
	start, end uint64
}

const fillFrag = -1

// fastDim returns the dimension the requested layout varies fastest.
func (q *Query[T]) fastDim() int {
	if q.layout == schema.ColMajor {
		return 0
	}
	return q.schema.DimNum() - 1
}

// forEachSlab visits the slabs of region in the requested layout order.
func (q *Query[T]) forEachSlab(region geom.Rect[T], fn func(s slab[T]) error) error {
	dims := q.schema.DimNum()
	fd := q.fastDim()
	domain := q.schema.Domain
	extents := q.schema.TileExtents

	cur := make([]T, dims)
	for d := 0; d < dims; d++ {
		cur[d] = region.Lo(d)
	}
	tc := make([]T, dims)

	for {
		// Run along fd until the tile boundary or the region edge.
		geom.TileCoords(domain, extents, cur, tc)
		tileHi := domain.Lo(fd) + (tc[fd]+1)*extents[fd] - 1
		runEnd := region.Hi(fd)
		if tileHi < runEnd {
			runEnd = tileHi
		}

		s := slab[T]{
			start:  append([]T(nil), cur...),
			length: uint64(runEnd-cur[fd]) + 1,
			tc:     append([]T(nil), tc...),
		}
		if err := fn(s); err != nil {
			return err
		}

		if runEnd < region.Hi(fd) {
			cur[fd] = runEnd + 1
			continue
		}
		cur[fd] = region.Lo(fd)

		// Carry to the next slower dimension in layout order.
		carried := false
		for i := 1; i < dims; i++ {
			d := dims - 1 - i
			if q.layout == schema.ColMajor {
				d = i
			}
			cur[d]++
			if cur[d] <= region.Hi(d) {
				carried = true
				break
			}
			cur[d] = region.Lo(d)
		}
		if !carried {
			return nil
		}
	}
}

// slabCoverage returns the [start, end) slab-offset interval each dense
// fragment covers on the slab, in fragment list order.
func (q *Query[T]) slabCoverage(s slab[T]) []denseCellRange {
	fd := q.fastDim()
	dims := q.schema.DimNum()

	slabRect := make(geom.Rect[T], 2*dims)
	for d := 0; d < dims; d++ {
		slabRect[2*d] = s.start[d]
		slabRect[2*d+1] = s.start[d]
	}
	slabRect[2*fd+1] = s.start[fd] + T(s.length-1)

	var cover []denseCellRange
	for fi, f := range q.frags {
		if !f.Dense {
			continue
		}
		clipped, ok := geom.Intersect(slabRect, f.Domain)
		if !ok {
			continue
		}
		cover = append(cover, denseCellRange{
			fragIdx: fi,
			start:   uint64(clipped.Lo(fd) - s.start[fd]),
			end:     uint64(clipped.Hi(fd)-s.start[fd]) + 1,
		})
	}
	return cover
}

// mergeSlabCoverage sweeps the slab offsets [0, length) and resolves, per
// segment, the covering fragment with the highest precedence rank (equal
// ranks keep the first fragment in list order). Uncovered segments get the
// fill sentinel. The result is gap-free and non-overlapping.
func (q *Query[T]) mergeSlabCoverage(cover []denseCellRange, length uint64) []denseCellRange {
	var out []denseCellRange
	pos := uint64(0)
	for pos < length {
		winner := fillFrag
		next := length
		for _, c := range cover {
			if c.start > pos {
				if c.start < next {
					next = c.start
				}
				continue
			}
			if c.end <= pos {
				continue
			}
			if c.end < next {
				next = c.end
			}
			if winner == fillFrag || q.frags[c.fragIdx].Rank > q.frags[winner].Rank {
				winner = c.fragIdx
			}
		}
		if n := len(out); n > 0 && out[n-1].fragIdx == winner && out[n-1].end == pos {
			out[n-1].end = next
		} else {
			out = append(out, denseCellRange{fragIdx: winner, start: pos, end: next})
		}
		pos = next
	}
	return out
}

// resolveDense computes the ordered, gap-free resolved cell ranges covering
// the partition region of a dense read. coords holds the deduplicated,
// layout-sorted coordinates of sparse fragments participating in the read;
// a coordinate from a strictly higher-rank fragment splits the dense range
// it falls into, while older coordinates are skipped.
func (q *Query[T]) resolveDense(arena []*locatedTile[T], region geom.Rect[T], coords []resolvedCoord[T]) ([]cellRange[T], error) {
	handleOf := make(map[[2]uint64]int, len(arena))
	for h, lt := range arena {
		handleOf[[2]uint64{uint64(lt.fragIdx), lt.tileIdx}] = h
	}

	live := coords[:0:0]
	for _, c := range coords {
		if c.valid {
			live = append(live, c)
		}
	}
	ci := 0

	fd := q.fastDim()
	var out []cellRange[T]

	err := q.forEachSlab(region, func(s slab[T]) error {
		merged := q.mergeSlabCoverage(q.slabCoverage(s), s.length)
		for _, dr := range merged {
			start := dr.start
			for ci < len(live) && coordInSlab(live[ci], s, fd) {
				p := uint64(live[ci].coords[fd] - s.start[fd])
				if p >= dr.end {
					break
				}
				crank := q.frags[live[ci].fragIdx].Rank
				if dr.fragIdx != fillFrag && crank <= q.frags[dr.fragIdx].Rank {
					ci++ // older data, ignored
					continue
				}
				if p > start {
					emitted, err := q.emitDenseRange(s, dr.fragIdx, start, p, handleOf)
					if err != nil {
						return err
					}
					out = append(out, emitted...)
				}
				c := live[ci]
				out = append(out, cellRange[T]{
					tile:  c.tile,
					start: c.pos,
					end:   c.pos + 1,
					synth: append([]T(nil), c.coords...),
					axis:  fd,
				})
				start = p + 1
				ci++
			}
			if start < dr.end {
				emitted, err := q.emitDenseRange(s, dr.fragIdx, start, dr.end, handleOf)
				if err != nil {
					return err
				}
				out = append(out, emitted...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// coordInSlab reports whether the coordinate lies on the slab's cell run.
func coordInSlab[T geom.Num](c resolvedCoord[T], s slab[T], fd int) bool {
	for d := range s.start {
		if d == fd {
			continue
		}
		if c.coords[d] != s.start[d] {
			return false
		}
	}
	off := c.coords[fd]
	return off >= s.start[fd] && uint64(off-s.start[fd]) < s.length
}

// emitDenseRange converts one winner segment [from, to) of a slab into
// tile-relative resolved cell ranges. When the requested layout differs
// from the tile cell order the segment is not contiguous in the tile, so it
// degenerates to per-cell ranges.
func (q *Query[T]) emitDenseRange(s slab[T], fragIdx int, from, to uint64, handleOf map[[2]uint64]int) ([]cellRange[T], error) {
	fd := q.fastDim()
	startCoords := append([]T(nil), s.start...)
	startCoords[fd] += T(from)
	n := to - from

	if fragIdx == fillFrag {
		return []cellRange[T]{{
			tile:  fillTile,
			start: 0,
			end:   n,
			synth: startCoords,
			axis:  fd,
		}}, nil
	}

	frag := q.frags[fragIdx]
	tileIdx, ok := frag.DenseTileIndex(q.schema, s.tc)
	if !ok {
		return nil, fmt.Errorf("%w: fragment %s does not cover tile %v",
			ErrMissingTile, frag.ID, s.tc)
	}
	handle, ok := handleOf[[2]uint64{uint64(fragIdx), tileIdx}]
	if !ok {
		return nil, fmt.Errorf("%w: %s tile %d not located",
			ErrMissingTile, frag.ID, tileIdx)
	}

	tileRect := geom.TileRect(q.schema.Domain, q.schema.TileExtents, s.tc)
	pos := func(pt []T) uint64 {
		if q.schema.CellOrder == schema.ColMajor {
			return tileRect.PosColMajor(pt)
		}
		return tileRect.PosRowMajor(pt)
	}

	if q.layout == q.schema.CellOrder {
		p := pos(startCoords)
		return []cellRange[T]{{
			tile:  handle,
			start: p,
			end:   p + n,
			synth: startCoords,
			axis:  fd,
		}}, nil
	}

	out := make([]cellRange[T], 0, n)
	pt := append([]T(nil), startCoords...)
	for i := uint64(0); i < n; i++ {
		p := pos(pt)
		out = append(out, cellRange[T]{
			tile:  handle,
			start: p,
			end:   p + 1,
			synth: append([]T(nil), pt...),
			axis:  fd,
		})
		pt[fd]++
	}
	return out, nil
}
