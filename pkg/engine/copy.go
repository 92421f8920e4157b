package engine

import (
	"fmt"

	"github.com/eunmann/gridquery/pkg/schema"
	"github.com/eunmann/gridquery/pkg/tilestore"
)

// copyCells materializes the resolved cell ranges for one attribute into
// its output buffer, recording the bytes written.
func (q *Query[T]) copyCells(name string, arena []*locatedTile[T], ranges []cellRange[T]) error {
	attr, err := q.schema.Attribute(name)
	if err != nil {
		return err
	}
	buf := q.buffers[name]

	if name == schema.Coords && q.schema.Dense {
		return q.fillCoords(buf, ranges)
	}
	if attr.VarSized {
		return q.copyVarCells(name, attr, buf, arena, ranges)
	}
	return q.copyFixedCells(name, attr, buf, arena, ranges)
}

// copyFixedCells copies fixed-size cell values range by range, writing the
// attribute's fill value for fill-sentinel ranges.
func (q *Query[T]) copyFixedCells(name string, attr schema.Attribute, buf *Buffer, arena []*locatedTile[T], ranges []cellRange[T]) error {
	cs := attr.CellSize
	capacity := uint64(len(buf.Data))
	offset := uint64(0)

	for _, r := range ranges {
		n := r.end - r.start
		nbytes := n * cs
		if offset+nbytes > capacity {
			return fmt.Errorf("%w: need %d bytes at offset %d of %d",
				ErrBufferOverflow, nbytes, offset, capacity)
		}

		if r.tile == fillTile {
			for i := uint64(0); i < n; i++ {
				copy(buf.Data[offset:], attr.Fill)
				offset += cs
			}
			continue
		}

		tile, ok := arena[r.tile].payloads[name]
		if !ok {
			return fmt.Errorf("%w: attribute %q", ErrMissingTile, name)
		}
		if r.end*cs > uint64(len(tile.Fixed)) {
			return fmt.Errorf("%w: range [%d, %d) past %d payload bytes",
				tilestore.ErrCorruptTile, r.start, r.end, len(tile.Fixed))
		}
		copy(buf.Data[offset:], tile.Fixed[r.start*cs:r.end*cs])
		offset += nbytes
	}

	buf.Size = offset
	return nil
}

// copyVarCells copies var-sized cells, appending one running byte offset
// per cell to the offsets buffer and the cell's exact byte span to the
// values buffer.
func (q *Query[T]) copyVarCells(name string, attr schema.Attribute, buf *Buffer, arena []*locatedTile[T], ranges []cellRange[T]) error {
	offCap := uint64(len(buf.Data))
	varCap := uint64(len(buf.Var))
	offOffset := uint64(0)
	varOffset := uint64(0)

	writeCell := func(span []byte) error {
		if offOffset+8 > offCap {
			return fmt.Errorf("%w: offsets buffer full at %d", ErrBufferOverflow, offOffset)
		}
		if varOffset+uint64(len(span)) > varCap {
			return fmt.Errorf("%w: values buffer full at %d", ErrBufferOverflow, varOffset)
		}
		putU64(buf.Data[offOffset:], varOffset)
		offOffset += 8
		copy(buf.Var[varOffset:], span)
		varOffset += uint64(len(span))
		return nil
	}

	for _, r := range ranges {
		if r.tile == fillTile {
			for i := r.start; i < r.end; i++ {
				if err := writeCell(attr.Fill); err != nil {
					return err
				}
			}
			continue
		}

		tile, ok := arena[r.tile].payloads[name]
		if !ok {
			return fmt.Errorf("%w: attribute %q", ErrMissingTile, name)
		}
		for i := r.start; i < r.end; i++ {
			span, err := tile.VarCell(i)
			if err != nil {
				return err
			}
			if err := writeCell(span); err != nil {
				return err
			}
		}
	}

	buf.Size = offOffset
	buf.VarSize = varOffset
	return nil
}

// fillCoords synthesizes coordinate tuples for a dense read. Each range is
// a run along its axis dimension starting at the recorded coordinates, so
// successive tuples increment exactly that dimension; runs never cross tile
// or region boundaries.
func (q *Query[T]) fillCoords(buf *Buffer, ranges []cellRange[T]) error {
	cs := q.schema.CoordSize()
	capacity := uint64(len(buf.Data))
	offset := uint64(0)

	tmp := make([]T, q.schema.DimNum())
	for _, r := range ranges {
		if r.synth == nil {
			return fmt.Errorf("%w: range without coordinate origin", ErrMissingTile)
		}
		copy(tmp, r.synth)
		for i := r.start; i < r.end; i++ {
			if offset+cs > capacity {
				return fmt.Errorf("%w: coords buffer full at %d", ErrBufferOverflow, offset)
			}
			copy(buf.Data[offset:], valsToBytes(tmp))
			offset += cs
			tmp[r.axis]++
		}
	}

	buf.Size = offset
	return nil
}
