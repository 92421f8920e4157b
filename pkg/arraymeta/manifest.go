// Package arraymeta parses array manifests: the array.json file describing
// an array's schema and its fragments, stored alongside the tile files.
//
// Manifests use int64 coordinates, the coordinate type served by the CLI.
// Embedders constructing schemas programmatically do not need this package.
package arraymeta

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/gridquery/pkg/fragment"
	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
)

// ManifestName is the manifest file name inside an array directory.
const ManifestName = "array.json"

// Manifest is the JSON representation of an array.
type Manifest struct {
	// Domain holds interleaved inclusive bounds [lo0, hi0, lo1, hi1, ...].
	Domain      []int64             `json:"domain"`
	TileExtents []int64             `json:"tile_extents"`
	CellOrder   string              `json:"cell_order"`
	Dense       bool                `json:"dense"`
	Attributes  []ManifestAttribute `json:"attributes"`
	Fragments   []ManifestFragment  `json:"fragments"`
}

// ManifestAttribute describes one attribute.
type ManifestAttribute struct {
	Name     string `json:"name"`
	CellSize uint64 `json:"cell_size"`
	VarSized bool   `json:"var_sized,omitempty"`
	// Fill is the base64-encoded fill value. Empty means all-zero bytes for
	// fixed-size attributes and an empty cell for var-sized ones.
	Fill string `json:"fill,omitempty"`
}

// ManifestFragment describes one fragment.
type ManifestFragment struct {
	ID     string  `json:"id"`
	Rank   uint64  `json:"rank"`
	Dense  bool    `json:"dense"`
	Domain []int64 `json:"domain"`
	// MBRs holds per-tile bounding rectangles. Required for sparse
	// fragments; dense fragments may omit it and have their tile grid
	// derived from the domain.
	MBRs [][]int64 `json:"mbrs,omitempty"`
	// TileSizes maps attribute name to per-tile payload sizes, indexed like
	// MBRs. Required for sparse fragments.
	TileSizes map[string][]ManifestTileSize `json:"tile_sizes,omitempty"`
}

// ManifestTileSize mirrors fragment.TileSize.
type ManifestTileSize struct {
	Fixed uint64 `json:"fixed,omitempty"`
	Off   uint64 `json:"off,omitempty"`
	Var   uint64 `json:"var,omitempty"`
}

// ParseManifest decodes and validates an array manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}

// Load reads the manifest file of an array directory.
func Load(dir string) (*Manifest, error) {
	f, err := os.Open(dir + "/" + ManifestName)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f)
}

func (m *Manifest) validate() error {
	if len(m.Domain) == 0 || len(m.Domain)%2 != 0 {
		return fmt.Errorf("domain needs interleaved lo/hi bounds, got %d values", len(m.Domain))
	}
	if len(m.TileExtents) != len(m.Domain)/2 {
		return fmt.Errorf("got %d tile extents for %d dimensions",
			len(m.TileExtents), len(m.Domain)/2)
	}
	if len(m.Attributes) == 0 {
		return errors.New("manifest has no attributes")
	}
	switch m.CellOrder {
	case "", "row-major", "col-major":
	default:
		return fmt.Errorf("unknown cell order %q", m.CellOrder)
	}
	for _, f := range m.Fragments {
		if f.ID == "" {
			return errors.New("fragment without id")
		}
		if len(f.Domain) != len(m.Domain) {
			return fmt.Errorf("fragment %s: domain has %d values, want %d",
				f.ID, len(f.Domain), len(m.Domain))
		}
		if !f.Dense {
			if len(f.MBRs) == 0 {
				return fmt.Errorf("fragment %s: sparse fragment without mbrs", f.ID)
			}
			// The partitioner's size estimate needs per-tile payload sizes
			// for every sparse tile; without them it would undercount.
			if len(f.TileSizes) == 0 {
				return fmt.Errorf("fragment %s: sparse fragment without tile_sizes", f.ID)
			}
			for attr, sizes := range f.TileSizes {
				if len(sizes) != len(f.MBRs) {
					return fmt.Errorf("fragment %s: %d tile_sizes for %q, want %d",
						f.ID, len(sizes), attr, len(f.MBRs))
				}
			}
		}
	}
	return nil
}

// ParseLayout converts a layout name to its schema constant.
func ParseLayout(name string) (schema.Layout, error) {
	switch name {
	case "", "row-major":
		return schema.RowMajor, nil
	case "col-major":
		return schema.ColMajor, nil
	case "unordered":
		return schema.Unordered, nil
	default:
		return 0, fmt.Errorf("unknown layout %q", name)
	}
}

// Build converts the manifest into the schema and fragment metadata the
// read engine consumes.
func (m *Manifest) Build() (*schema.Schema[int64], []*fragment.Meta[int64], error) {
	cellOrder, err := ParseLayout(m.CellOrder)
	if err != nil {
		return nil, nil, err
	}

	s := &schema.Schema[int64]{
		Domain:      geom.NewRect(m.Domain...),
		TileExtents: append([]int64(nil), m.TileExtents...),
		CellOrder:   cellOrder,
		Dense:       m.Dense,
	}
	for _, a := range m.Attributes {
		fill, err := decodeFill(a)
		if err != nil {
			return nil, nil, err
		}
		s.Attributes = append(s.Attributes, schema.Attribute{
			Name:     a.Name,
			CellSize: a.CellSize,
			VarSized: a.VarSized,
			Fill:     fill,
		})
	}
	if err := s.Validate(); err != nil {
		return nil, nil, fmt.Errorf("manifest schema: %w", err)
	}

	frags := make([]*fragment.Meta[int64], 0, len(m.Fragments))
	for _, mf := range m.Fragments {
		f, err := buildFragment(s, mf)
		if err != nil {
			return nil, nil, err
		}
		frags = append(frags, f)
	}
	return s, frags, nil
}

func decodeFill(a ManifestAttribute) ([]byte, error) {
	if a.Fill == "" {
		if a.VarSized {
			return nil, nil
		}
		return make([]byte, a.CellSize), nil
	}
	fill, err := base64.StdEncoding.DecodeString(a.Fill)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: decode fill: %w", a.Name, err)
	}
	return fill, nil
}

func buildFragment(s *schema.Schema[int64], mf ManifestFragment) (*fragment.Meta[int64], error) {
	domain := geom.NewRect(mf.Domain...)

	var meta *fragment.Meta[int64]
	if mf.Dense && len(mf.MBRs) == 0 {
		m, err := fragment.NewDense(s, mf.ID, mf.Rank, domain)
		if err != nil {
			return nil, err
		}
		meta = m
	} else {
		mbrs := make([]geom.Rect[int64], len(mf.MBRs))
		for i, b := range mf.MBRs {
			if len(b) != len(mf.Domain) {
				return nil, fmt.Errorf("fragment %s: mbr %d has %d values, want %d",
					mf.ID, i, len(b), len(mf.Domain))
			}
			mbrs[i] = geom.NewRect(b...)
		}
		meta = &fragment.Meta[int64]{
			ID:     mf.ID,
			Rank:   mf.Rank,
			Dense:  mf.Dense,
			Domain: domain,
			MBRs:   mbrs,
		}
	}

	if len(mf.TileSizes) > 0 {
		meta.TileSizes = make(map[string][]fragment.TileSize, len(mf.TileSizes))
		for attr, sizes := range mf.TileSizes {
			ts := make([]fragment.TileSize, len(sizes))
			for i, sz := range sizes {
				ts[i] = fragment.TileSize{Fixed: sz.Fixed, Off: sz.Off, Var: sz.Var}
			}
			meta.TileSizes[attr] = ts
		}
	}
	return meta, nil
}
