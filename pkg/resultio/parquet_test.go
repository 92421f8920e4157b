package resultio

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestWriteParquetRoundTrip(t *testing.T) {
	cols := []Column{
		{Name: "d0", Values: []any{int64(0), int64(1), int64(2)}},
		{Name: "v", Values: []any{int64(10), int64(20), int64(30)}},
		{Name: "label", Values: []any{"a", "bb", "ccc"}},
	}

	var buf bytes.Buffer
	if err := WriteParquet(&buf, cols); err != nil {
		t.Fatalf("write parquet: %v", err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}

	colIdx := make(map[string]int)
	for i, f := range file.Schema().Fields() {
		colIdx[f.Name()] = i
	}
	for _, c := range cols {
		if _, ok := colIdx[c.Name]; !ok {
			t.Fatalf("column %q missing from schema", c.Name)
		}
	}

	var gotD0, gotV []int64
	var gotLabel []string
	for _, rg := range file.RowGroups() {
		rows := rg.Rows()
		rowBuf := make([]parquet.Row, 8)
		for {
			n, err := rows.ReadRows(rowBuf)
			for _, row := range rowBuf[:n] {
				for _, val := range row {
					switch val.Column() {
					case colIdx["d0"]:
						gotD0 = append(gotD0, val.Int64())
					case colIdx["v"]:
						gotV = append(gotV, val.Int64())
					case colIdx["label"]:
						gotLabel = append(gotLabel, val.String())
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					t.Fatalf("read rows: %v", err)
				}
				break
			}
			if n == 0 {
				break
			}
		}
		rows.Close()
	}

	wantD0 := []int64{0, 1, 2}
	wantV := []int64{10, 20, 30}
	wantLabel := []string{"a", "bb", "ccc"}
	if len(gotD0) != 3 || len(gotV) != 3 || len(gotLabel) != 3 {
		t.Fatalf("row counts = %d/%d/%d, want 3", len(gotD0), len(gotV), len(gotLabel))
	}
	for i := 0; i < 3; i++ {
		if gotD0[i] != wantD0[i] || gotV[i] != wantV[i] || gotLabel[i] != wantLabel[i] {
			t.Errorf("row %d = (%d, %d, %q), want (%d, %d, %q)",
				i, gotD0[i], gotV[i], gotLabel[i], wantD0[i], wantV[i], wantLabel[i])
		}
	}
}

func TestWriteParquetValidation(t *testing.T) {
	if err := WriteParquet(io.Discard, nil); !errors.Is(err, ErrNoColumns) {
		t.Errorf("empty export: err = %v, want %v", err, ErrNoColumns)
	}

	ragged := []Column{
		{Name: "a", Values: []any{int64(1), int64(2)}},
		{Name: "b", Values: []any{int64(1)}},
	}
	if err := WriteParquet(io.Discard, ragged); !errors.Is(err, ErrRaggedColumns) {
		t.Errorf("ragged export: err = %v, want %v", err, ErrRaggedColumns)
	}

	unsupported := []Column{{Name: "a", Values: []any{struct{}{}}}}
	if err := WriteParquet(io.Discard, unsupported); err == nil {
		t.Error("unsupported value type accepted")
	}
}
