// Package cli implements the command-line interface for gridquery.
package cli

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eunmann/gridquery/internal/logctx"
	"github.com/eunmann/gridquery/pkg/arraymeta"
	"github.com/eunmann/gridquery/pkg/engine"
	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/humanfmt"
	"github.com/eunmann/gridquery/pkg/resultio"
	"github.com/eunmann/gridquery/pkg/schema"
	"github.com/eunmann/gridquery/pkg/tilestore"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: gridquery <command> [options]\ncommands: query, info")
	}

	switch args[0] {
	case "query":
		return runQuery(args[1:])
	case "info":
		return runInfo(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	arrayDir := fs.String("array", "", "array directory holding array.json and tile files")
	subarrayFlag := fs.String("subarray", "", "inclusive bounds per dimension, e.g. 0:9,0:19 (default: whole domain)")
	attrsFlag := fs.String("attrs", "", "comma-separated attributes to read (default: all)")
	withCoords := fs.Bool("coords", false, "include cell coordinates in the output")
	layoutFlag := fs.String("layout", "row-major", "result layout: row-major, col-major, unordered")
	bufFlag := fs.String("buffer-size", "64MiB", "per-attribute result buffer capacity")
	outPath := fs.String("out", "", "output Parquet file")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly log output")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *arrayDir == "" {
		return errors.New("--array is required")
	}
	if *outPath == "" {
		return errors.New("--out is required")
	}

	logger := logctx.NewConfiguredLogger(*debug, *human).With().
		Str("array", *arrayDir).Logger()
	ctx := logctx.WithLogger(context.Background(), logger)

	manifest, err := arraymeta.Load(*arrayDir)
	if err != nil {
		return err
	}
	s, frags, err := manifest.Build()
	if err != nil {
		return err
	}
	layout, err := arraymeta.ParseLayout(*layoutFlag)
	if err != nil {
		return fmt.Errorf("--layout: %w", err)
	}
	bufBytes, err := humanfmt.ParseBytes(*bufFlag)
	if err != nil {
		return fmt.Errorf("--buffer-size: %w", err)
	}

	names, err := requestedAttrs(s, *attrsFlag, *withCoords)
	if err != nil {
		return err
	}
	buffers := make(map[string]*engine.Buffer, len(names))
	for _, name := range names {
		attr, err := s.Attribute(name)
		if err != nil {
			return err
		}
		b := &engine.Buffer{Data: make([]byte, bufBytes)}
		if attr.VarSized {
			b.Var = make([]byte, bufBytes)
		}
		buffers[name] = b
	}

	store, err := tilestore.OpenDir(*arrayDir)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := engine.NewQuery(s, frags, store)
	if err != nil {
		return err
	}
	if err := q.SetLayout(layout); err != nil {
		return err
	}
	var region geom.Rect[int64]
	if *subarrayFlag != "" {
		region, err = parseSubarray(s.DimNum(), *subarrayFlag)
		if err != nil {
			return err
		}
	}
	if err := q.SetSubarray(region); err != nil {
		return err
	}
	if err := q.SetBuffers(buffers); err != nil {
		return err
	}

	start := time.Now()
	cols := newColumns(s, names)
	submits := 0
	var cells uint64
	for {
		status, err := q.Submit(ctx)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		submits++
		n, err := appendResults(s, names, buffers, cols)
		if err != nil {
			return err
		}
		cells += n
		if status == engine.StatusComplete {
			break
		}
	}

	out, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := resultio.WriteParquet(out, cols); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	logger.Info().
		Int("submits", submits).
		Str("cells", humanfmt.Count(cells)).
		Str("took", humanfmt.Duration(time.Since(start))).
		Str("out", *outPath).
		Msg("query complete")
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	arrayDir := fs.String("array", "", "array directory holding array.json and tile files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *arrayDir == "" {
		return errors.New("--array is required")
	}

	manifest, err := arraymeta.Load(*arrayDir)
	if err != nil {
		return err
	}
	s, frags, err := manifest.Build()
	if err != nil {
		return err
	}

	kind := "sparse"
	if s.Dense {
		kind = "dense"
	}
	fmt.Printf("array: %s (%s, %d dimensions, %s cell order)\n",
		*arrayDir, kind, s.DimNum(), s.CellOrder)
	fmt.Printf("domain: %v  tile extents: %v  cells: %s\n",
		s.Domain, s.TileExtents, humanfmt.Count(s.Domain.Cells()))
	for _, a := range s.Attributes {
		sized := fmt.Sprintf("%d bytes/cell", a.CellSize)
		if a.VarSized {
			sized = "var-sized"
		}
		fmt.Printf("attribute: %s (%s)\n", a.Name, sized)
	}
	for _, f := range frags {
		kind := "sparse"
		if f.Dense {
			kind = "dense"
		}
		fmt.Printf("fragment: %s (rank %d, %s, %d tiles, domain %v)\n",
			f.ID, f.Rank, kind, f.TileCount(), f.Domain)
	}
	return nil
}

// requestedAttrs resolves the --attrs flag into the attribute list, in
// schema order, optionally with the coordinates.
func requestedAttrs(s *schema.Schema[int64], attrsFlag string, withCoords bool) ([]string, error) {
	var names []string
	if attrsFlag == "" {
		for _, a := range s.Attributes {
			names = append(names, a.Name)
		}
	} else {
		for _, name := range strings.Split(attrsFlag, ",") {
			name = strings.TrimSpace(name)
			if _, err := s.Attribute(name); err != nil {
				return nil, fmt.Errorf("--attrs: %w", err)
			}
			names = append(names, name)
		}
	}
	if withCoords {
		names = append(names, schema.Coords)
	}
	return names, nil
}

// parseSubarray parses per-dimension lo:hi bounds, e.g. "0:9,10:19".
func parseSubarray(dims int, s string) (geom.Rect[int64], error) {
	parts := strings.Split(s, ",")
	if len(parts) != dims {
		return nil, fmt.Errorf("--subarray: got %d dimensions, want %d", len(parts), dims)
	}
	bounds := make([]int64, 0, 2*dims)
	for _, part := range parts {
		lo, hi, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("--subarray: %q is not lo:hi", part)
		}
		loV, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--subarray: %q: %w", part, err)
		}
		hiV, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--subarray: %q: %w", part, err)
		}
		bounds = append(bounds, loV, hiV)
	}
	return geom.NewRect(bounds...), nil
}

// newColumns builds the empty output columns for the requested attributes.
// Coordinates expand to one column per dimension, named d0, d1, ...
func newColumns(s *schema.Schema[int64], names []string) []resultio.Column {
	var cols []resultio.Column
	for _, name := range names {
		if name == schema.Coords {
			for d := 0; d < s.DimNum(); d++ {
				cols = append(cols, resultio.Column{Name: fmt.Sprintf("d%d", d)})
			}
			continue
		}
		cols = append(cols, resultio.Column{Name: name})
	}
	return cols
}

// appendResults decodes one partition's buffer contents onto the output
// columns and returns the partition's cell count.
func appendResults(s *schema.Schema[int64], names []string, buffers map[string]*engine.Buffer, cols []resultio.Column) (uint64, error) {
	ci := 0
	var cells uint64
	for _, name := range names {
		buf := buffers[name]
		if name == schema.Coords {
			dims := s.DimNum()
			n := buf.Size / (8 * uint64(dims))
			cells = n
			for i := uint64(0); i < n; i++ {
				for d := 0; d < dims; d++ {
					v := int64(binary.LittleEndian.Uint64(buf.Data[(i*uint64(dims)+uint64(d))*8:]))
					cols[ci+d].Values = append(cols[ci+d].Values, v)
				}
			}
			ci += dims
			continue
		}

		attr, err := s.Attribute(name)
		if err != nil {
			return 0, err
		}
		if attr.VarSized {
			cells = buf.Size / 8
			appendVarCells(&cols[ci], buf)
		} else {
			cells = buf.Size / attr.CellSize
			appendFixedCells(&cols[ci], buf, attr.CellSize)
		}
		ci++
	}
	return cells, nil
}

func appendFixedCells(col *resultio.Column, buf *engine.Buffer, cellSize uint64) {
	data := buf.Data[:buf.Size]
	switch cellSize {
	case 8:
		for i := uint64(0); i+8 <= buf.Size; i += 8 {
			col.Values = append(col.Values, int64(binary.LittleEndian.Uint64(data[i:])))
		}
	case 4:
		for i := uint64(0); i+4 <= buf.Size; i += 4 {
			col.Values = append(col.Values, int32(binary.LittleEndian.Uint32(data[i:])))
		}
	default:
		for i := uint64(0); i+cellSize <= buf.Size; i += cellSize {
			cell := make([]byte, cellSize)
			copy(cell, data[i:])
			col.Values = append(col.Values, cell)
		}
	}
}

func appendVarCells(col *resultio.Column, buf *engine.Buffer) {
	n := buf.Size / 8
	for i := uint64(0); i < n; i++ {
		start := binary.LittleEndian.Uint64(buf.Data[i*8:])
		end := buf.VarSize
		if i+1 < n {
			end = binary.LittleEndian.Uint64(buf.Data[(i+1)*8:])
		}
		col.Values = append(col.Values, string(buf.Var[start:end]))
	}
}
