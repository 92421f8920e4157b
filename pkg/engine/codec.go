package engine

import (
	"unsafe"

	"github.com/eunmann/gridquery/pkg/geom"
)

// Tile payloads and output buffers hold raw little-endian values, so
// reinterpreting them as typed slices avoids per-cell decoding. The host is
// assumed little-endian, matching the on-disk format.

// valSize returns the byte size of one value of T.
func valSize[T geom.Num]() uint64 {
	var z T
	return uint64(unsafe.Sizeof(z))
}

// bytesToVals reinterprets a payload as a slice of T. The payload length
// must be a multiple of the value size.
func bytesToVals[T geom.Num](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), uint64(len(b))/valSize[T]())
}

// valsToBytes reinterprets a slice of T as its raw bytes.
func valsToBytes[T geom.Num](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), uint64(len(v))*valSize[T]())
}

// putU64 writes a little-endian uint64, used for var-attribute offsets.
func putU64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
