package tilestore

import (
	"context"
	"errors"
	"testing"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	s.Put("f1", "a", 0, Tile{Fixed: []byte{1, 2, 3, 4}})

	tile, err := s.Fetch(context.Background(), "f1", "a", 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(tile.Fixed) != 4 {
		t.Errorf("Fixed len = %d, want 4", len(tile.Fixed))
	}

	if _, err := s.Fetch(context.Background(), "f1", "a", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) = %v, want ErrNotFound", err)
	}
}

func TestCellCount(t *testing.T) {
	fixed := Tile{Fixed: make([]byte, 40)}
	if got := fixed.CellCount(4); got != 10 {
		t.Errorf("fixed CellCount = %d, want 10", got)
	}

	varTile := Tile{Off: []uint64{0, 3, 5}, Var: []byte("abcdefg")}
	if got := varTile.CellCount(8); got != 3 {
		t.Errorf("var CellCount = %d, want 3", got)
	}
}

func TestVarCell(t *testing.T) {
	tile := Tile{Off: []uint64{0, 3, 5}, Var: []byte("abcdefg")}

	tests := []struct {
		i    uint64
		want string
	}{
		{0, "abc"},
		{1, "de"},
		{2, "fg"},
	}
	for _, tt := range tests {
		got, err := tile.VarCell(tt.i)
		if err != nil {
			t.Fatalf("VarCell(%d) failed: %v", tt.i, err)
		}
		if string(got) != tt.want {
			t.Errorf("VarCell(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}

	if _, err := tile.VarCell(3); err == nil {
		t.Error("VarCell(3) did not fail")
	}

	corrupt := Tile{Off: []uint64{0, 100}, Var: []byte("ab")}
	if _, err := corrupt.VarCell(0); !errors.Is(err, ErrCorruptTile) {
		t.Errorf("VarCell(corrupt) = %v, want ErrCorruptTile", err)
	}
}
