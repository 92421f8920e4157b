// Package tilestore provides access to the on-disk tiles of array
// fragments. The read engine fetches tiles through the Store interface and
// never caches them across partitions; each implementation decides how
// payloads are stored and retrieved.
package tilestore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested tile does not exist in the store.
	ErrNotFound = errors.New("tile not found")
	// ErrCorruptTile indicates a tile payload that fails basic validation.
	ErrCorruptTile = errors.New("corrupt tile payload")
)

// Tile holds the payloads of one attribute tile.
//
// For fixed-size attributes only Fixed is set. For var-sized attributes
// Fixed is empty, Off holds one starting byte offset per cell into Var, and
// Var holds the concatenated cell values.
type Tile struct {
	Fixed []byte
	Off   []uint64
	Var   []byte
}

// CellCount returns the number of cells in the tile given the fixed cell
// size; for var-sized tiles it is the offsets count.
func (t Tile) CellCount(cellSize uint64) uint64 {
	if len(t.Off) > 0 {
		return uint64(len(t.Off))
	}
	if cellSize == 0 {
		return 0
	}
	return uint64(len(t.Fixed)) / cellSize
}

// VarCell returns the byte span of cell i in the var payload.
func (t Tile) VarCell(i uint64) ([]byte, error) {
	if i >= uint64(len(t.Off)) {
		return nil, fmt.Errorf("%w: cell %d of %d", ErrNotFound, i, len(t.Off))
	}
	start := t.Off[i]
	end := uint64(len(t.Var))
	if i+1 < uint64(len(t.Off)) {
		end = t.Off[i+1]
	}
	if start > end || end > uint64(len(t.Var)) {
		return nil, fmt.Errorf("%w: offsets [%d, %d) exceed %d var bytes",
			ErrCorruptTile, start, end, len(t.Var))
	}
	return t.Var[start:end], nil
}

// Store retrieves tile payloads for (fragment, attribute, tile) triples.
//
// Implementations must be safe for concurrent Fetch calls; the engine
// dispatches one partition's fetches onto a worker pool.
type Store interface {
	// Fetch returns the payloads of one attribute tile. It returns
	// ErrNotFound (possibly wrapped) when the tile does not exist, and
	// propagates IO errors unchanged.
	Fetch(ctx context.Context, fragmentID, attr string, tileIdx uint64) (Tile, error)
}

// MemStore is an in-memory Store, used for embedding and tests.
type MemStore struct {
	tiles map[string]Tile
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tiles: make(map[string]Tile)}
}

func memKey(fragmentID, attr string, tileIdx uint64) string {
	return fmt.Sprintf("%s/%s/%d", fragmentID, attr, tileIdx)
}

// Put stores a tile, replacing any previous payload.
func (s *MemStore) Put(fragmentID, attr string, tileIdx uint64, t Tile) {
	s.tiles[memKey(fragmentID, attr, tileIdx)] = t
}

// Fetch implements Store.
func (s *MemStore) Fetch(_ context.Context, fragmentID, attr string, tileIdx uint64) (Tile, error) {
	t, ok := s.tiles[memKey(fragmentID, attr, tileIdx)]
	if !ok {
		return Tile{}, fmt.Errorf("%w: %s", ErrNotFound, memKey(fragmentID, attr, tileIdx))
	}
	return t, nil
}
