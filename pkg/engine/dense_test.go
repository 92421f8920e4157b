package engine

import (
	"slices"
	"testing"

	"github.com/eunmann/gridquery/pkg/fragment"
	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
	"github.com/eunmann/gridquery/pkg/tilestore"
)

func slabQuery(t *testing.T, layout schema.Layout) *Query[int64] {
	t.Helper()
	s := &schema.Schema[int64]{
		Domain:      geom.NewRect[int64](0, 3, 0, 3),
		TileExtents: []int64{2, 2},
		CellOrder:   schema.RowMajor,
		Dense:       true,
		Attributes:  []schema.Attribute{{Name: "a", CellSize: 8, Fill: u64Bytes(0)}},
	}
	q, err := NewQuery(s, nil, tilestore.NewMemStore())
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	q.layout = layout
	return q
}

func TestForEachSlab(t *testing.T) {
	type wantSlab struct {
		start  []int64
		length uint64
		tc     []int64
	}
	tests := []struct {
		name   string
		layout schema.Layout
		region geom.Rect[int64]
		want   []wantSlab
	}{
		{
			name:   "row major crosses tile columns",
			layout: schema.RowMajor,
			region: geom.NewRect[int64](0, 2, 0, 2),
			want: []wantSlab{
				{start: []int64{0, 0}, length: 2, tc: []int64{0, 0}},
				{start: []int64{0, 2}, length: 1, tc: []int64{0, 1}},
				{start: []int64{1, 0}, length: 2, tc: []int64{0, 0}},
				{start: []int64{1, 2}, length: 1, tc: []int64{0, 1}},
				{start: []int64{2, 0}, length: 2, tc: []int64{1, 0}},
				{start: []int64{2, 2}, length: 1, tc: []int64{1, 1}},
			},
		},
		{
			name:   "col major runs along first dimension",
			layout: schema.ColMajor,
			region: geom.NewRect[int64](0, 2, 0, 1),
			want: []wantSlab{
				{start: []int64{0, 0}, length: 2, tc: []int64{0, 0}},
				{start: []int64{2, 0}, length: 1, tc: []int64{1, 0}},
				{start: []int64{0, 1}, length: 2, tc: []int64{0, 0}},
				{start: []int64{2, 1}, length: 1, tc: []int64{1, 0}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := slabQuery(t, tt.layout)
			var got []wantSlab
			err := q.forEachSlab(tt.region, func(s slab[int64]) error {
				got = append(got, wantSlab{start: s.start, length: s.length, tc: s.tc})
				return nil
			})
			if err != nil {
				t.Fatalf("forEachSlab: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d slabs, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if !slices.Equal(got[i].start, tt.want[i].start) ||
					got[i].length != tt.want[i].length ||
					!slices.Equal(got[i].tc, tt.want[i].tc) {
					t.Errorf("slab %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMergeSlabCoverage(t *testing.T) {
	q := slabQuery(t, schema.RowMajor)
	q.frags = []*fragment.Meta[int64]{
		{ID: "f0", Rank: 0, Dense: true},
		{ID: "f1", Rank: 1, Dense: true},
		{ID: "f2", Rank: 1, Dense: true},
	}

	tests := []struct {
		name   string
		cover  []denseCellRange
		length uint64
		want   []denseCellRange
	}{
		{
			name:   "no coverage fills everything",
			cover:  nil,
			length: 4,
			want:   []denseCellRange{{fragIdx: fillFrag, start: 0, end: 4}},
		},
		{
			name: "higher rank wins the overlap",
			cover: []denseCellRange{
				{fragIdx: 0, start: 0, end: 10},
				{fragIdx: 1, start: 3, end: 7},
			},
			length: 10,
			want: []denseCellRange{
				{fragIdx: 0, start: 0, end: 3},
				{fragIdx: 1, start: 3, end: 7},
				{fragIdx: 0, start: 7, end: 10},
			},
		},
		{
			name: "equal ranks keep list order",
			cover: []denseCellRange{
				{fragIdx: 1, start: 0, end: 4},
				{fragIdx: 2, start: 0, end: 4},
			},
			length: 4,
			want:   []denseCellRange{{fragIdx: 1, start: 0, end: 4}},
		},
		{
			name: "gaps between fragments get fill",
			cover: []denseCellRange{
				{fragIdx: 0, start: 1, end: 3},
				{fragIdx: 0, start: 5, end: 6},
			},
			length: 8,
			want: []denseCellRange{
				{fragIdx: fillFrag, start: 0, end: 1},
				{fragIdx: 0, start: 1, end: 3},
				{fragIdx: fillFrag, start: 3, end: 5},
				{fragIdx: 0, start: 5, end: 6},
				{fragIdx: fillFrag, start: 6, end: 8},
			},
		},
		{
			name: "adjacent same-winner segments merge",
			cover: []denseCellRange{
				{fragIdx: 0, start: 0, end: 3},
				{fragIdx: 0, start: 3, end: 6},
			},
			length: 6,
			want:   []denseCellRange{{fragIdx: 0, start: 0, end: 6}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := q.mergeSlabCoverage(tt.cover, tt.length)
			if len(got) != len(tt.want) {
				t.Fatalf("segments = %+v, want %+v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
			// Gap-free cover of [0, length).
			pos := uint64(0)
			for _, seg := range got {
				if seg.start != pos {
					t.Errorf("segment starts at %d, want %d", seg.start, pos)
				}
				pos = seg.end
			}
			if pos != tt.length {
				t.Errorf("cover ends at %d, want %d", pos, tt.length)
			}
		})
	}
}

func TestSlabCoverage(t *testing.T) {
	s := &schema.Schema[int64]{
		Domain:      geom.NewRect[int64](0, 9, 0, 9),
		TileExtents: []int64{10, 10},
		CellOrder:   schema.RowMajor,
		Dense:       true,
		Attributes:  []schema.Attribute{{Name: "a", CellSize: 8, Fill: u64Bytes(0)}},
	}
	q, err := NewQuery(s, nil, tilestore.NewMemStore())
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	q.frags = []*fragment.Meta[int64]{
		{ID: "rows", Rank: 0, Dense: true, Domain: geom.NewRect[int64](2, 5, 0, 9)},
		{ID: "cols", Rank: 1, Dense: true, Domain: geom.NewRect[int64](0, 9, 4, 6)},
		{ID: "pts", Rank: 2, Dense: false, Domain: geom.NewRect[int64](3, 3, 3, 3)},
	}

	// Row 3, columns 1 through 8.
	sl := slab[int64]{start: []int64{3, 1}, length: 8, tc: []int64{0, 0}}
	got := q.slabCoverage(sl)

	want := []denseCellRange{
		{fragIdx: 0, start: 0, end: 8}, // covers the whole run
		{fragIdx: 1, start: 3, end: 6}, // columns 4..6 at offsets 3..5
	}
	if len(got) != len(want) {
		t.Fatalf("coverage = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("interval %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Row 8, columns 7 through 9: outside both fragments.
	if got := q.slabCoverage(slab[int64]{start: []int64{8, 7}, length: 3, tc: []int64{0, 0}}); len(got) != 0 {
		t.Errorf("uncovered slab has coverage: %+v", got)
	}
}
