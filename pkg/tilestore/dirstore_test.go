package tilestore

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTileFiles(t *testing.T, dir, frag, name string, data []byte) {
	t.Helper()
	fragDir := filepath.Join(dir, frag)
	if err := os.MkdirAll(fragDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fragDir, name), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDirStoreFixed(t *testing.T) {
	dir := t.TempDir()
	writeTileFiles(t, dir, "f1", "a_0.fix", []byte{1, 2, 3, 4, 5, 6, 7, 8})

	s, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer s.Close()

	tile, err := s.Fetch(context.Background(), "f1", "a", 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(tile.Fixed) != 8 || tile.Fixed[3] != 4 {
		t.Errorf("Fixed = %v", tile.Fixed)
	}

	// Second fetch hits the mapping cache.
	again, err := s.Fetch(context.Background(), "f1", "a", 0)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if &again.Fixed[0] != &tile.Fixed[0] {
		t.Error("second Fetch did not reuse the mapping")
	}
}

func TestDirStoreVar(t *testing.T) {
	dir := t.TempDir()
	offs := make([]byte, 16)
	binary.LittleEndian.PutUint64(offs[0:], 0)
	binary.LittleEndian.PutUint64(offs[8:], 3)
	writeTileFiles(t, dir, "f1", "s_2.off", offs)
	writeTileFiles(t, dir, "f1", "s_2.var", []byte("abcde"))

	s, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer s.Close()

	tile, err := s.Fetch(context.Background(), "f1", "s", 2)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(tile.Off) != 2 || tile.Off[1] != 3 {
		t.Errorf("Off = %v, want [0 3]", tile.Off)
	}
	cell, err := tile.VarCell(1)
	if err != nil {
		t.Fatalf("VarCell failed: %v", err)
	}
	if string(cell) != "de" {
		t.Errorf("VarCell(1) = %q, want %q", cell, "de")
	}
}

func TestDirStoreMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Fetch(context.Background(), "nope", "a", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) = %v, want ErrNotFound", err)
	}
}

func TestDirStoreCorruptOffsets(t *testing.T) {
	dir := t.TempDir()
	writeTileFiles(t, dir, "f1", "s_0.off", []byte{1, 2, 3}) // not a multiple of 8
	writeTileFiles(t, dir, "f1", "s_0.var", []byte("x"))

	s, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Fetch(context.Background(), "f1", "s", 0); !errors.Is(err, ErrCorruptTile) {
		t.Errorf("Fetch(corrupt) = %v, want ErrCorruptTile", err)
	}
}
