// Package matcher answers "which catalogue items fit this image" queries.
package matcher

import (
	"context"
	"time"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/descriptor"
	"github.com/skinmatch/platform/internal/pixel"
	"github.com/skinmatch/platform/internal/retrieval"
	"github.com/skinmatch/platform/internal/trace"
)

// Config controls query defaults.
type Config struct {
	// Slots are searched when a query names none. Empty means every slot
	// in the store.
	Slots        []catalogue.Slot
	TopK         int
	QueryTimeout time.Duration
}

// Result is the answer to one query.
type Result struct {
	Reference descriptor.Descriptor  `json:"reference"`
	Slots     []retrieval.SlotResult `json:"slots"`
}

// Matcher ties extraction to retrieval over a caller-owned store.
type Matcher struct {
	store     catalogue.Store
	extractor *descriptor.Extractor
	driver    *retrieval.Driver
	cfg       Config
}

// New creates a matcher.
func New(store catalogue.Store, extractor *descriptor.Extractor, driver *retrieval.Driver, cfg Config) *Matcher {
	return &Matcher{store: store, extractor: extractor, driver: driver, cfg: cfg}
}

// Store returns the catalogue being searched.
func (m *Matcher) Store() catalogue.Store { return m.store }

// Describe extracts a descriptor from buf.
func (m *Matcher) Describe(ctx context.Context, buf *pixel.Buffer) descriptor.Descriptor {
	_, span := trace.StartSpan(ctx, "describe")
	defer span.End()
	span.SetAttr("width", buf.Width)
	span.SetAttr("height", buf.Height)

	d := m.extractor.Extract(buf)
	span.SetAttr("fields", d.Fields())
	return d
}

// ParseSlots normalizes requested slot names. No names selects the defaults.
func (m *Matcher) ParseSlots(names []string) ([]catalogue.Slot, error) {
	var slots []catalogue.Slot
	seen := make(map[catalogue.Slot]bool)
	for _, n := range names {
		s, err := catalogue.ParseSlot(n)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			slots = append(slots, s)
		}
	}
	if len(slots) > 0 {
		return slots, nil
	}
	if len(m.cfg.Slots) > 0 {
		return m.cfg.Slots, nil
	}
	return m.store.Slots(), nil
}

// Match describes buf and ranks each slot. k <= 0 uses the configured top-K.
func (m *Matcher) Match(ctx context.Context, buf *pixel.Buffer, slots []catalogue.Slot, k int) (Result, error) {
	res := Result{Slots: []retrieval.SlotResult{}}
	ref, err := m.MatchStream(ctx, buf, slots, k, func(sr retrieval.SlotResult) error {
		res.Slots = append(res.Slots, sr)
		return nil
	})
	res.Reference = ref
	return res, err
}

// MatchStream is Match that hands each slot to emit as soon as it is ranked.
// An emit error stops the query.
func (m *Matcher) MatchStream(ctx context.Context, buf *pixel.Buffer, slots []catalogue.Slot, k int, emit func(retrieval.SlotResult) error) (descriptor.Descriptor, error) {
	if m.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()
	}
	ctx, span := trace.StartSpan(ctx, "match")
	defer span.End()

	if len(slots) == 0 {
		slots, _ = m.ParseSlots(nil)
	}
	if k <= 0 {
		k = m.cfg.TopK
	}
	span.SetAttr("slots", len(slots))

	ref := m.Describe(ctx, buf)
	for _, slot := range slots {
		sr, err := m.driver.Retrieve(ctx, m.store, ref, slot, k)
		if err != nil {
			span.SetAttr("error", err.Error())
			return ref, err
		}
		if err := emit(sr); err != nil {
			return ref, err
		}
	}
	trace.Logger(ctx).Debug("match complete", "slots", len(slots), "fields", ref.Fields())
	return ref, nil
}
