// Package retrieval ranks catalogue items against a reference descriptor.
package retrieval

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/descriptor"
	apperrors "github.com/skinmatch/platform/internal/errors"
	"github.com/skinmatch/platform/internal/scoring"
	"github.com/skinmatch/platform/internal/trace"
)

// Driver defaults
const (
	DefaultTopK    = 8
	DefaultWorkers = 4
)

// Options configures a Driver.
type Options struct {
	TopK    int
	Workers int
}

// Match is one ranked item.
type Match struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Slot      catalogue.Slot    `json:"slot"`
	Score     float64           `json:"score"`
	Breakdown scoring.Breakdown `json:"breakdown"`
}

// SlotResult is the ranking for one slot.
type SlotResult struct {
	Slot    catalogue.Slot `json:"slot"`
	Matches []Match        `json:"matches"`
	// Scanned counts items considered; Excluded counts those with no
	// comparable signal.
	Scanned  int `json:"scanned"`
	Excluded int `json:"excluded"`
}

// Driver scores catalogue items in parallel. It never writes to the store.
type Driver struct {
	scorer *scoring.Scorer
	opts   Options
}

// NewDriver creates a driver.
func NewDriver(scorer *scoring.Scorer, opts Options) *Driver {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Driver{scorer: scorer, opts: opts}
}

// TopK returns the default result size.
func (d *Driver) TopK() int { return d.opts.TopK }

// Retrieve returns up to k of the best items in slot; k <= 0 uses the
// driver default. Cancellation is checked between items.
func (d *Driver) Retrieve(ctx context.Context, store catalogue.Store, ref descriptor.Descriptor, slot catalogue.Slot, k int) (SlotResult, error) {
	if k <= 0 {
		k = d.opts.TopK
	}
	ctx, span := trace.StartSpan(ctx, "retrieve_slot")
	defer span.End()
	span.SetAttr("slot", string(slot))

	items := store.Items(slot)
	res := SlotResult{Slot: slot, Matches: []Match{}, Scanned: len(items)}
	span.SetAttr("items", len(items))

	cands, err := d.score(ctx, ref, items)
	if err != nil {
		span.SetAttr("error", err.Error())
		return res, err
	}

	ranked := make([]scoring.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Result.Finite() {
			ranked = append(ranked, c)
		}
	}
	res.Excluded = len(cands) - len(ranked)
	slices.SortFunc(ranked, scoring.Compare)

	seen := make(map[string]bool, len(ranked))
	for _, c := range ranked {
		if len(res.Matches) == k {
			break
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		it := items[c.Index]
		res.Matches = append(res.Matches, Match{
			ID:        it.ID,
			Name:      it.Name,
			Slot:      it.Slot,
			Score:     c.Result.Score,
			Breakdown: c.Result.Breakdown,
		})
	}
	span.SetAttr("matches", len(res.Matches))
	return res, nil
}

// RetrieveAll runs Retrieve for each slot in order.
func (d *Driver) RetrieveAll(ctx context.Context, store catalogue.Store, ref descriptor.Descriptor, slots []catalogue.Slot, k int) ([]SlotResult, error) {
	out := make([]SlotResult, 0, len(slots))
	for _, slot := range slots {
		res, err := d.Retrieve(ctx, store, ref, slot, k)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// score fans items out to workers. Each worker writes only its own slots of
// the result slice.
func (d *Driver) score(ctx context.Context, ref descriptor.Descriptor, items []catalogue.Item) ([]scoring.Candidate, error) {
	cands := make([]scoring.Candidate, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(d.opts.Workers, max(len(items), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				cands[i] = scoring.Candidate{
					ID:     items[i].ID,
					Index:  i,
					Result: d.scorer.Score(ref, items[i].Descriptor),
				}
			}
		}()
	}

	var err error
submit:
	for i := range items {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, contextError(err)
	}
	return cands, nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "retrieval deadline exceeded")
	}
	return apperrors.Wrap(err, apperrors.CodeCancelled, "retrieval cancelled")
}
