package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/gridquery/internal/logctx"
	"github.com/eunmann/gridquery/pkg/schema"
	"github.com/eunmann/gridquery/pkg/tilestore"
)

// fetchTiles retrieves all attribute payloads the current partition needs,
// dispatching (tile, attribute) pairs onto a bounded worker pool. The batch
// completes fully, with first-error propagation, before resolution begins.
func (q *Query[T]) fetchTiles(ctx context.Context, arena []*locatedTile[T]) error {
	type fetchJob struct {
		tile int
		attr string
	}

	var jobs []fetchJob
	for h, lt := range arena {
		for _, name := range q.tileAttrs(lt) {
			jobs = append(jobs, fetchJob{tile: h, attr: name})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	results := make([]tilestore.Tile, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.opts.fetchConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			lt := arena[job.tile]
			frag := q.frags[lt.fragIdx]
			t, err := q.store.Fetch(ctx, frag.ID, job.attr, lt.tileIdx)
			if err != nil {
				return fmt.Errorf("fetch %s/%s tile %d: %w", frag.ID, job.attr, lt.tileIdx, err)
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, job := range jobs {
		arena[job.tile].payloads[job.attr] = results[i]
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Int("tiles", len(arena)).
		Int("fetches", len(jobs)).
		Msg("fetched partition tiles")
	return nil
}

// tileAttrs returns the attribute payloads to fetch for one located tile:
// the requested attributes, plus stored coordinates for sparse fragments.
// Dense fragments do not store coordinates; they are synthesized on copy.
func (q *Query[T]) tileAttrs(lt *locatedTile[T]) []string {
	frag := q.frags[lt.fragIdx]
	attrs := make([]string, 0, len(q.attrs)+1)
	for _, name := range q.attrs {
		if name != schema.Coords {
			attrs = append(attrs, name)
		}
	}
	if !frag.Dense {
		attrs = append(attrs, schema.Coords)
	}
	return attrs
}
