// Package engine implements the read-query path of the array store: it
// partitions a subarray query to fit caller buffers, locates and fetches
// the fragment tiles intersecting each partition, resolves per-cell
// provenance across overlapping fragments (higher rank wins), and
// materializes the resolved cell ranges into the caller's buffers.
//
// A Query is driven by repeated Submit calls; each call answers one
// partition. Queries are not safe for concurrent use.
package engine

import (
	"context"
	"fmt"

	"github.com/eunmann/gridquery/internal/logctx"
	"github.com/eunmann/gridquery/pkg/fragment"
	"github.com/eunmann/gridquery/pkg/geom"
	"github.com/eunmann/gridquery/pkg/schema"
	"github.com/eunmann/gridquery/pkg/tilestore"
)

// Status reports the outcome of a Submit call.
type Status int

const (
	// StatusComplete means every partition of the query has been answered.
	StatusComplete Status = iota
	// StatusIncomplete means more partitions remain; the caller should
	// consume the buffers and call Submit again.
	StatusIncomplete
)

func (s Status) String() string {
	if s == StatusComplete {
		return "complete"
	}
	return "incomplete"
}

// Option configures a Query.
type Option func(*options)

type options struct {
	fetchConcurrency int
}

// WithFetchConcurrency sets the number of parallel tile fetches per
// partition. Default: 4.
func WithFetchConcurrency(n int) Option {
	return func(o *options) { o.fetchConcurrency = n }
}

// readState tracks progress through the partition sequence.
type readState[T geom.Num] struct {
	// partitions are disjoint and union to the original subarray; each is
	// answerable within the capacities recorded at initialization.
	partitions []geom.Rect[T]
	// cursor indexes the next unprocessed partition. It only moves forward.
	cursor int
}

// Query is a resumable read query against one array.
type Query[T geom.Num] struct {
	schema *schema.Schema[T]
	frags  []*fragment.Meta[T]
	store  tilestore.Store
	opts   options

	subarray geom.Rect[T]
	layout   schema.Layout
	buffers  map[string]*Buffer
	attrs    []string // requested attributes in schema order, coords last

	// Set at first Submit.
	state       *readState[T]
	initialCaps map[string]bufferCaps
	finalized   bool
}

// NewQuery creates a read query over the given schema, fragment metadata
// and tile store. The fragment list order is the tie-break order for equal
// precedence ranks.
func NewQuery[T geom.Num](s *schema.Schema[T], frags []*fragment.Meta[T], store tilestore.Store, opts ...Option) (*Query[T], error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	o := options{fetchConcurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}
	return &Query[T]{
		schema: s,
		frags:  frags,
		store:  store,
		opts:   o,
		layout: schema.RowMajor,
	}, nil
}

// FragmentNum returns the number of fragments involved in the query.
func (q *Query[T]) FragmentNum() int { return len(q.frags) }

// FragmentIDs returns the fragment IDs in precedence tie-break order.
func (q *Query[T]) FragmentIDs() []string {
	ids := make([]string, len(q.frags))
	for i, f := range q.frags {
		ids[i] = f.ID
	}
	return ids
}

// SetSubarray constrains the query to the given region. A nil region selects
// the whole array domain. Setting a subarray resets any read progress.
func (q *Query[T]) SetSubarray(region geom.Rect[T]) error {
	if q.finalized {
		return ErrFinalized
	}
	if region == nil {
		region = q.schema.Domain.Clone()
	}
	if region.DimNum() != q.schema.DimNum() {
		return fmt.Errorf("%w: %d dimensions, want %d",
			ErrInvalidRegion, region.DimNum(), q.schema.DimNum())
	}
	if !region.IsValid() {
		return fmt.Errorf("%w: inverted bounds", ErrInvalidRegion)
	}
	if _, contained := geom.Overlap(q.schema.Domain, region); !contained {
		return fmt.Errorf("%w: outside array domain", ErrInvalidRegion)
	}
	q.subarray = region.Clone()
	q.state = nil
	q.initialCaps = nil
	return nil
}

// SetLayout sets the cell order of the results. Dense arrays serve
// row-major and column-major only.
func (q *Query[T]) SetLayout(l schema.Layout) error {
	if q.finalized {
		return ErrFinalized
	}
	if q.schema.Dense && l == schema.Unordered {
		return fmt.Errorf("%w: %s results from a dense array", ErrUnsupportedLayout, l)
	}
	q.layout = l
	return nil
}

// SetBuffers declares the output buffers per attribute. The special name
// schema.Coords requests cell coordinates. While a query is in progress,
// buffers may be replaced only with equal or larger capacities.
func (q *Query[T]) SetBuffers(buffers map[string]*Buffer) error {
	if q.finalized {
		return ErrFinalized
	}
	if len(buffers) == 0 {
		return fmt.Errorf("%w: no buffers", ErrNotInitialized)
	}
	for name := range buffers {
		if _, err := q.schema.Attribute(name); err != nil {
			return err
		}
	}
	if q.initialCaps != nil {
		if err := q.checkResetCaps(buffers); err != nil {
			return err
		}
	}

	q.buffers = buffers
	q.attrs = q.attrs[:0]
	for _, a := range q.schema.Attributes {
		if _, ok := buffers[a.Name]; ok {
			q.attrs = append(q.attrs, a.Name)
		}
	}
	if _, ok := buffers[schema.Coords]; ok {
		q.attrs = append(q.attrs, schema.Coords)
	}
	return nil
}

// checkResetCaps enforces the no-shrink rule: the partition plan assumed
// the initial capacities as a lower bound.
func (q *Query[T]) checkResetCaps(buffers map[string]*Buffer) error {
	for name, caps := range q.initialCaps {
		b, ok := buffers[name]
		if !ok {
			return fmt.Errorf("%w: attribute %q removed", ErrBufferShrink, name)
		}
		got := capsOf(b)
		if got.data < caps.data || got.vr < caps.vr {
			return fmt.Errorf("%w: attribute %q", ErrBufferShrink, name)
		}
	}
	return nil
}

// Done reports whether every partition has been processed.
func (q *Query[T]) Done() bool {
	return q.state != nil && q.state.cursor >= len(q.state.partitions)
}

// Finalize aborts the query and releases its read state. Buffer contents
// written by prior successful Submit calls are left untouched.
func (q *Query[T]) Finalize() {
	q.state = nil
	q.finalized = true
}

// Submit answers the next partition of the query, writing results into the
// buffers set with SetBuffers and recording the bytes used in each buffer's
// Size and VarSize fields.
//
// On error the current partition is not consumed and the buffer contents
// are undefined; the same partition is retried by the next Submit. Calling
// Submit when Done is a no-op returning StatusComplete.
func (q *Query[T]) Submit(ctx context.Context) (Status, error) {
	if q.finalized {
		return StatusComplete, ErrFinalized
	}
	if q.buffers == nil {
		return StatusIncomplete, fmt.Errorf("%w: buffers not set", ErrNotInitialized)
	}
	if q.subarray == nil {
		if err := q.SetSubarray(nil); err != nil {
			return StatusIncomplete, err
		}
	}

	if q.state == nil {
		parts, err := q.computePartitions(q.subarray)
		if err != nil {
			return StatusIncomplete, err
		}
		q.state = &readState[T]{partitions: parts}
		q.initialCaps = make(map[string]bufferCaps, len(q.buffers))
		for name, b := range q.buffers {
			q.initialCaps[name] = capsOf(b)
		}
		log := logctx.FromContext(ctx)
		log.Debug().
			Int("partitions", len(parts)).
			Str("layout", q.layout.String()).
			Msg("computed subarray partitions")
	}

	if q.Done() {
		return StatusComplete, nil
	}

	q.zeroOutSizes()

	partition := q.state.partitions[q.state.cursor]
	log := logctx.FromContext(ctx).With().Int("partition", q.state.cursor).Logger()
	ctx = logctx.WithLogger(ctx, log)

	var err error
	if q.schema.Dense {
		err = q.denseRead(ctx, partition)
	} else {
		err = q.sparseRead(ctx, partition)
	}
	if err != nil {
		return StatusIncomplete, err
	}

	q.state.cursor++
	if q.Done() {
		return StatusComplete, nil
	}
	return StatusIncomplete, nil
}

// zeroOutSizes resets the per-attribute written sizes before a partition is
// materialized.
func (q *Query[T]) zeroOutSizes() {
	for _, b := range q.buffers {
		b.Size = 0
		b.VarSize = 0
	}
}

// sparseRead answers one partition of a sparse array read.
func (q *Query[T]) sparseRead(ctx context.Context, region geom.Rect[T]) error {
	arena, err := q.locateTiles(region)
	if err != nil {
		return err
	}
	if err := q.fetchTiles(ctx, arena); err != nil {
		return err
	}

	coords, err := q.computeOverlappingCoords(arena, region)
	if err != nil {
		return err
	}
	q.dedupCoords(coords)
	q.sortCoords(coords)
	ranges := computeCellRanges(coords)

	log := logctx.FromContext(ctx)
	log.Debug().
		Int("tiles", len(arena)).
		Int("coords", len(coords)).
		Int("ranges", len(ranges)).
		Msg("resolved sparse partition")

	return q.copyAll(arena, ranges)
}

// denseRead answers one partition of a dense array read.
func (q *Query[T]) denseRead(ctx context.Context, region geom.Rect[T]) error {
	arena, err := q.locateTiles(region)
	if err != nil {
		return err
	}
	if err := q.fetchTiles(ctx, arena); err != nil {
		return err
	}

	coords, err := q.computeOverlappingCoords(arena, region)
	if err != nil {
		return err
	}
	q.dedupCoords(coords)
	q.sortCoords(coords)

	ranges, err := q.resolveDense(arena, region, coords)
	if err != nil {
		return err
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Int("tiles", len(arena)).
		Int("ranges", len(ranges)).
		Msg("resolved dense partition")

	return q.copyAll(arena, ranges)
}

// copyAll materializes the resolved cell ranges for every requested
// attribute.
func (q *Query[T]) copyAll(arena []*locatedTile[T], ranges []cellRange[T]) error {
	for _, name := range q.attrs {
		if err := q.copyCells(name, arena, ranges); err != nil {
			return fmt.Errorf("copy cells for %q: %w", name, err)
		}
	}
	return nil
}
