package engine

import "errors"

var (
	// ErrInvalidRegion indicates an empty subarray or one outside the
	// array domain.
	ErrInvalidRegion = errors.New("invalid query region")
	// ErrCapacity indicates buffers too small to hold even a single
	// cell's worst-case result.
	ErrCapacity = errors.New("buffer capacity cannot fit a single cell")
	// ErrBufferShrink indicates buffers re-set smaller than the
	// capacities the partition plan was computed with.
	ErrBufferShrink = errors.New("buffers smaller than initially set")
	// ErrBufferOverflow indicates a materialization write past a buffer's
	// capacity. Unreachable when partitioning is correct.
	ErrBufferOverflow = errors.New("output buffer overflow")
	// ErrMissingTile indicates a resolved cell range referencing a tile
	// whose payload was never fetched.
	ErrMissingTile = errors.New("tile payload not fetched")
	// ErrAllocation indicates a coordinate payload that cannot be sized
	// into whole coordinate tuples.
	ErrAllocation = errors.New("cannot size coordinate buffer")
	// ErrUnsupportedLayout indicates a cell layout the array cannot
	// serve (e.g. unordered results from a dense array).
	ErrUnsupportedLayout = errors.New("unsupported result layout")
	// ErrNotInitialized indicates Submit before subarray and buffers
	// were set.
	ErrNotInitialized = errors.New("query not initialized")
	// ErrFinalized indicates use of a finalized query.
	ErrFinalized = errors.New("query already finalized")
)
