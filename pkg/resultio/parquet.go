// Package resultio exports materialized read results to columnar files for
// downstream analytics.
package resultio

import (
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ErrNoColumns indicates an export with no columns.
var ErrNoColumns = errors.New("no columns to export")

// ErrRaggedColumns indicates columns with differing row counts.
var ErrRaggedColumns = errors.New("columns have differing row counts")

// Column is one attribute's materialized values, one entry per result cell.
// Supported value types: int32, int64, float32, float64, string, []byte.
type Column struct {
	Name   string
	Values []any
}

// WriteParquet writes the columns as a Parquet file with one row per cell.
func WriteParquet(w io.Writer, cols []Column) error {
	if len(cols) == 0 {
		return ErrNoColumns
	}
	rowCount := len(cols[0].Values)
	for _, c := range cols[1:] {
		if len(c.Values) != rowCount {
			return fmt.Errorf("%w: %q has %d rows, %q has %d",
				ErrRaggedColumns, cols[0].Name, rowCount, c.Name, len(c.Values))
		}
	}

	group := parquet.Group{}
	for _, c := range cols {
		node, err := leafFor(c)
		if err != nil {
			return err
		}
		group[c.Name] = node
	}
	schema := parquet.NewSchema("results", group)

	rows := make([]map[string]any, rowCount)
	for i := range rows {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			row[c.Name] = c.Values[i]
		}
		rows[i] = row
	}

	writer := parquet.NewGenericWriter[map[string]any](w, schema)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// leafFor derives the Parquet leaf node from the column's first value.
func leafFor(c Column) (parquet.Node, error) {
	if len(c.Values) == 0 {
		return parquet.String(), nil
	}
	switch c.Values[0].(type) {
	case int32:
		return parquet.Int(32), nil
	case int64:
		return parquet.Int(64), nil
	case float32:
		return parquet.Leaf(parquet.FloatType), nil
	case float64:
		return parquet.Leaf(parquet.DoubleType), nil
	case string:
		return parquet.String(), nil
	case []byte:
		return parquet.Leaf(parquet.ByteArrayType), nil
	default:
		return nil, fmt.Errorf("column %q: unsupported value type %T", c.Name, c.Values[0])
	}
}
