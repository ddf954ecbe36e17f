package catalogue

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/skinmatch/platform/internal/descriptor"
	apperrors "github.com/skinmatch/platform/internal/errors"
	"github.com/skinmatch/platform/internal/resilience"
	"github.com/skinmatch/platform/internal/trace"
)

// Entry is one manifest record. Entries carry a descriptor, an image to
// describe, or neither.
type Entry struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Slot       string                 `json:"slot"`
	Image      string                 `json:"image,omitempty"`
	Descriptor *descriptor.Descriptor `json:"descriptor,omitempty"`
}

// LoadStats summarizes a manifest load.
type LoadStats struct {
	Items     int `json:"items"`
	Described int `json:"described"`
	Queued    int `json:"queued"`
	Bare      int `json:"bare"`
}

// ParseManifest decodes and validates a JSON array of entries.
func ParseManifest(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCatalogueInvalid, "decode manifest")
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, apperrors.New(apperrors.CodeCatalogueInvalid, "entry has no id").
				WithMetadata("index", strconv.Itoa(i))
		}
		if seen[e.ID] {
			return nil, apperrors.Newf(apperrors.CodeCatalogueInvalid, "duplicate id %q", e.ID).
				WithMetadata("index", strconv.Itoa(i))
		}
		seen[e.ID] = true
		if _, err := ParseSlot(e.Slot); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeCatalogueInvalid, "entry %q has no slot", e.ID).
				WithMetadata("index", strconv.Itoa(i))
		}
	}
	return entries, nil
}

// ReadManifest reads path, retrying while the file is unreadable. Malformed
// manifests fail at once.
func ReadManifest(ctx context.Context, path string, retry resilience.RetryConfig) ([]Entry, error) {
	data, err := resilience.Do(ctx, retry, func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCatalogueUnavailable, "read manifest").
				WithMetadata("path", path)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	entries, err := ParseManifest(data)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			appErr.WithMetadata("path", path)
		}
		return nil, err
	}
	return entries, nil
}

// Populate adds entries to store. Entries with only an image are stored
// without visual data and queued on idx when it is non-nil.
func Populate(store Store, idx *Indexer, entries []Entry) (LoadStats, error) {
	var stats LoadStats
	for _, e := range entries {
		slot, err := ParseSlot(e.Slot)
		if err != nil {
			return stats, err
		}
		item := Item{ID: e.ID, Name: e.Name, Slot: slot}
		described := e.Descriptor != nil && !e.Descriptor.Empty()
		if described {
			item.Descriptor = *e.Descriptor
		}
		if err := store.Put(item); err != nil {
			return stats, err
		}
		stats.Items++
		switch {
		case described:
			stats.Described++
		case e.Image != "" && idx != nil && idx.Add(item, e.Image):
			stats.Queued++
		default:
			stats.Bare++
		}
	}
	return stats, nil
}

// Load reads the manifest at path into store.
func Load(ctx context.Context, store Store, idx *Indexer, path string, retry resilience.RetryConfig) (LoadStats, error) {
	ctx, span := trace.StartSpan(ctx, "catalogue_load")
	defer span.End()

	entries, err := ReadManifest(ctx, path, retry)
	if err != nil {
		span.SetAttr("error", err.Error())
		return LoadStats{}, err
	}
	stats, err := Populate(store, idx, entries)
	span.SetAttr("items", stats.Items)
	if err != nil {
		return stats, err
	}
	trace.Logger(ctx).Info("catalogue loaded", "path", path, "items", stats.Items,
		"described", stats.Described, "queued", stats.Queued, "bare", stats.Bare)
	return stats, nil
}

// Entries converts items back to manifest records with their descriptors.
func Entries(items []Item) []Entry {
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		e := Entry{ID: it.ID, Name: it.Name, Slot: string(it.Slot)}
		if !it.Descriptor.Empty() {
			d := it.Descriptor
			e.Descriptor = &d
		}
		out = append(out, e)
	}
	return out
}

// WriteManifest encodes entries as an indented JSON array.
func WriteManifest(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
