package tilestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Tile file name suffixes under <dir>/<fragment>/.
const (
	fixedSuffix = ".fix"
	offSuffix   = ".off"
	varSuffix   = ".var"
)

// mmapFile is a read-only memory-mapped file.
type mmapFile struct {
	data []byte
}

func openMmap(path string) (*mmapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	size := info.Size()
	if size == 0 {
		return &mmapFile{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mmapFile{data: data}, nil
}

func (m *mmapFile) close() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	m.data = nil
	return nil
}

// DirStore serves tiles from a local directory tree through memory-mapped
// files. The layout is <dir>/<fragmentID>/<attr>_<tileIdx>.fix with
// companion .off and .var files for var-sized attributes.
//
// Fetched tile payloads alias the mappings and remain valid until Close.
// DirStore is safe for concurrent Fetch calls.
type DirStore struct {
	dir string

	mu   sync.Mutex
	maps map[string]*mmapFile
}

// OpenDir creates a DirStore rooted at dir.
func OpenDir(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open tile dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open tile dir: %s is not a directory", dir)
	}
	return &DirStore{dir: dir, maps: make(map[string]*mmapFile)}, nil
}

// TilePath returns the path of a tile's fixed-data file.
func (s *DirStore) TilePath(fragmentID, attr string, tileIdx uint64) string {
	return filepath.Join(s.dir, fragmentID, fmt.Sprintf("%s_%d%s", attr, tileIdx, fixedSuffix))
}

// mapFile returns the cached mapping for path, creating it on first use.
func (s *DirStore) mapFile(path string) (*mmapFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.maps[path]; ok {
		return m, nil
	}
	m, err := openMmap(path)
	if err != nil {
		return nil, err
	}
	s.maps[path] = m
	return m, nil
}

// Fetch implements Store.
func (s *DirStore) Fetch(_ context.Context, fragmentID, attr string, tileIdx uint64) (Tile, error) {
	base := s.TilePath(fragmentID, attr, tileIdx)

	fix, err := s.mapFile(base)
	if errors.Is(err, os.ErrNotExist) {
		// Var-sized tiles have no .fix file; require .off instead.
		return s.fetchVar(base)
	}
	if err != nil {
		return Tile{}, fmt.Errorf("fetch tile %s: %w", base, err)
	}
	return Tile{Fixed: fix.data}, nil
}

func (s *DirStore) fetchVar(base string) (Tile, error) {
	offPath := base[:len(base)-len(fixedSuffix)] + offSuffix
	varPath := base[:len(base)-len(fixedSuffix)] + varSuffix

	offMap, err := s.mapFile(offPath)
	if errors.Is(err, os.ErrNotExist) {
		return Tile{}, fmt.Errorf("%w: %s", ErrNotFound, base)
	}
	if err != nil {
		return Tile{}, fmt.Errorf("fetch offsets %s: %w", offPath, err)
	}
	if len(offMap.data)%8 != 0 {
		return Tile{}, fmt.Errorf("%w: offsets file %s has %d bytes",
			ErrCorruptTile, offPath, len(offMap.data))
	}

	varMap, err := s.mapFile(varPath)
	if err != nil {
		return Tile{}, fmt.Errorf("fetch values %s: %w", varPath, err)
	}

	off := make([]uint64, len(offMap.data)/8)
	for i := range off {
		off[i] = binary.LittleEndian.Uint64(offMap.data[i*8:])
	}
	return Tile{Off: off, Var: varMap.data}, nil
}

// Close unmaps all cached tile files.
func (s *DirStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, m := range s.maps {
		if err := m.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.maps, path)
	}
	return firstErr
}
