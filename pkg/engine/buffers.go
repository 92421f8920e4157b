package engine

// Buffer is a caller-owned output buffer for one attribute.
//
// For fixed-size attributes Data receives cell values and Var is unused.
// For var-sized attributes Data receives one little-endian uint64 starting
// offset per cell and Var receives the concatenated cell values.
//
// Capacities are the slice lengths; the engine never grows the slices.
// After each successful Submit, Size and VarSize hold the bytes written for
// the partition just processed.
type Buffer struct {
	Data []byte
	Var  []byte

	Size    uint64
	VarSize uint64
}

// bufferCaps records the capacities a buffer had when the query's partition
// plan was computed. Re-set buffers may only grow.
type bufferCaps struct {
	data uint64
	vr   uint64
}

func capsOf(b *Buffer) bufferCaps {
	return bufferCaps{data: uint64(len(b.Data)), vr: uint64(len(b.Var))}
}
