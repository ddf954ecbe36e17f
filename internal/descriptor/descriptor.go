// Package descriptor defines the visual fingerprint of an image and extracts
// it from pixel buffers.
package descriptor

import (
	"github.com/skinmatch/platform/internal/colorspace"
)

// WeightedColor is one dominant palette color.
type WeightedColor struct {
	Hex    string `json:"hex"`
	Weight int    `json:"weight"`
}

// RGB parses Hex. Malformed hex yields ok=false.
func (c WeightedColor) RGB() (colorspace.RGB, bool) {
	return colorspace.ParseHex(c.Hex)
}

// Palette is ordered by weight, heaviest first.
type Palette []WeightedColor

// PaletteFromHex builds a palette of unit-weight colors, dropping malformed
// and repeated hex values.
func PaletteFromHex(hexes ...string) Palette {
	p := make(Palette, 0, len(hexes))
	seen := make(map[string]bool, len(hexes))
	for _, h := range hexes {
		rgb, ok := colorspace.ParseHex(h)
		if !ok {
			continue
		}
		hex := rgb.Hex()
		if seen[hex] {
			continue
		}
		seen[hex] = true
		p = append(p, WeightedColor{Hex: hex, Weight: 1})
	}
	return p
}

// Colors returns the parseable entries as RGB.
func (p Palette) Colors() []colorspace.RGB {
	out := make([]colorspace.RGB, 0, len(p))
	for _, c := range p {
		if rgb, ok := c.RGB(); ok {
			out = append(out, rgb)
		}
	}
	return out
}

// Cell is one RGBA sample of a signature grid.
type Cell struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Signature is a Size x Size row-major grid of downsampled samples.
type Signature struct {
	Size  int    `json:"size"`
	Cells []Cell `json:"cells"`
}

// At returns the cell at row y, column x.
func (s Signature) At(x, y int) Cell {
	return s.Cells[y*s.Size+x]
}

// Valid reports whether Cells holds Size*Size samples.
func (s Signature) Valid() bool {
	return s.Size > 0 && len(s.Cells) == s.Size*s.Size
}

// Shape is the alpha occupancy profile of an image.
type Shape struct {
	Rows      []float64 `json:"rows"`
	Cols      []float64 `json:"cols"`
	Occupancy float64   `json:"occupancy"`
}

// Histogram is a normalized distribution; bins sum to 1.
type Histogram []float64

// Descriptor bundles the independently optional features of one image.
// Descriptors are not modified after construction.
type Descriptor struct {
	Palette   Optional[Palette]   `json:"palette,omitzero"`
	Signature Optional[Signature] `json:"signature,omitzero"`
	Shape     Optional[Shape]     `json:"shape,omitzero"`
	Hash      Optional[Hash]      `json:"hash,omitzero"`
	Edges     Optional[Histogram] `json:"edges,omitzero"`
	Tones     Optional[Histogram] `json:"tones,omitzero"`
}

// Empty reports whether no field is known.
func (d Descriptor) Empty() bool {
	return !d.Palette.Present() && !d.Signature.Present() && !d.Shape.Present() &&
		!d.Hash.Present() && !d.Edges.Present() && !d.Tones.Present()
}

// Fields lists the names of the known fields.
func (d Descriptor) Fields() []string {
	var out []string
	add := func(name string, ok bool) {
		if ok {
			out = append(out, name)
		}
	}
	add("palette", d.Palette.Present())
	add("signature", d.Signature.Present())
	add("shape", d.Shape.Present())
	add("hash", d.Hash.Present())
	add("edges", d.Edges.Present())
	add("tones", d.Tones.Present())
	return out
}
