package cli

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/gridquery/pkg/geom"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestQueryMissingArray(t *testing.T) {
	err := Run([]string{"query", "--out", "/tmp/out.parquet"})
	if err == nil {
		t.Fatal("expected error with missing --array")
	}
	if !strings.Contains(err.Error(), "--array") {
		t.Errorf("expected '--array' error, got: %v", err)
	}
}

func TestQueryMissingOut(t *testing.T) {
	err := Run([]string{"query", "--array", "/tmp/arr"})
	if err == nil {
		t.Fatal("expected error with missing --out")
	}
	if !strings.Contains(err.Error(), "--out") {
		t.Errorf("expected '--out' error, got: %v", err)
	}
}

func TestInfoMissingArray(t *testing.T) {
	err := Run([]string{"info"})
	if err == nil {
		t.Fatal("expected error with missing --array")
	}
	if !strings.Contains(err.Error(), "--array") {
		t.Errorf("expected '--array' error, got: %v", err)
	}
}

func TestParseSubarray(t *testing.T) {
	tests := []struct {
		name    string
		dims    int
		input   string
		want    geom.Rect[int64]
		wantErr string
	}{
		{name: "one dimension", dims: 1, input: "0:9", want: geom.NewRect[int64](0, 9)},
		{name: "two dimensions", dims: 2, input: "0:9, 10:19", want: geom.NewRect[int64](0, 9, 10, 19)},
		{name: "negative bounds", dims: 1, input: "-5:5", want: geom.NewRect[int64](-5, 5)},
		{name: "dimension mismatch", dims: 2, input: "0:9", wantErr: "want 2"},
		{name: "missing colon", dims: 1, input: "09", wantErr: "lo:hi"},
		{name: "not a number", dims: 1, input: "a:9", wantErr: "a:9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSubarray(tt.dims, tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSubarray: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSubarray = %v, want %v", got, tt.want)
			}
		})
	}
}

// writeTestArray lays out a single-tile dense 1-D array over [0, 9] with two
// overlapping fragments, returning its directory.
func writeTestArray(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	manifest := `{
		"domain": [0, 9],
		"tile_extents": [10],
		"cell_order": "row-major",
		"dense": true,
		"attributes": [{"name": "a", "cell_size": 8}],
		"fragments": [
			{"id": "base", "rank": 0, "dense": true, "domain": [0, 9]},
			{"id": "over", "rank": 1, "dense": true, "domain": [3, 6]}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "array.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	writeTile := func(frag string, cells []uint64) {
		if err := os.MkdirAll(filepath.Join(dir, frag), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", frag, err)
		}
		payload := make([]byte, 8*len(cells))
		for i, v := range cells {
			binary.LittleEndian.PutUint64(payload[8*i:], v)
		}
		if err := os.WriteFile(filepath.Join(dir, frag, "a_0.fix"), payload, 0o644); err != nil {
			t.Fatalf("write tile %s: %v", frag, err)
		}
	}

	writeTile("base", []uint64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	overCells := make([]uint64, 10)
	for i := 3; i <= 6; i++ {
		overCells[i] = 2
	}
	writeTile("over", overCells)
	return dir
}

func TestQueryEndToEnd(t *testing.T) {
	dir := writeTestArray(t)
	out := filepath.Join(t.TempDir(), "result.parquet")

	err := Run([]string{
		"query",
		"--array", dir,
		"--out", out,
		"--coords",
		"--buffer-size", "1KiB",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}

	var rows int64
	for _, rg := range file.RowGroups() {
		rows += rg.NumRows()
	}
	if rows != 10 {
		t.Errorf("output has %d rows, want 10", rows)
	}

	fields := make(map[string]bool)
	for _, f := range file.Schema().Fields() {
		fields[f.Name()] = true
	}
	for _, want := range []string{"a", "d0"} {
		if !fields[want] {
			t.Errorf("output missing column %q", want)
		}
	}
}

func TestQuerySubarrayAndResubmission(t *testing.T) {
	dir := writeTestArray(t)
	out := filepath.Join(t.TempDir(), "result.parquet")

	// 24-byte buffers hold 3 cells, forcing several submits for 8 cells.
	err := Run([]string{
		"query",
		"--array", dir,
		"--subarray", "1:8",
		"--out", out,
		"--buffer-size", "24",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	var rows int64
	for _, rg := range file.RowGroups() {
		rows += rg.NumRows()
	}
	if rows != 8 {
		t.Errorf("output has %d rows, want 8", rows)
	}
}

func TestQueryRejectsBadFlags(t *testing.T) {
	dir := writeTestArray(t)
	out := filepath.Join(t.TempDir(), "result.parquet")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "bad layout",
			args: []string{"query", "--array", dir, "--out", out, "--layout", "zigzag"},
			want: "--layout",
		},
		{
			name: "bad buffer size",
			args: []string{"query", "--array", dir, "--out", out, "--buffer-size", "lots"},
			want: "--buffer-size",
		},
		{
			name: "unknown attribute",
			args: []string{"query", "--array", dir, "--out", out, "--attrs", "missing"},
			want: "--attrs",
		},
		{
			name: "subarray dimension mismatch",
			args: []string{"query", "--array", dir, "--out", out, "--subarray", "0:4,0:4"},
			want: "--subarray",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	dir := writeTestArray(t)
	if err := Run([]string{"info", "--array", dir}); err != nil {
		t.Fatalf("info: %v", err)
	}
}
