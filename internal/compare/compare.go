// Package compare measures the distance between descriptor fields. Every
// comparator returns +Inf when a side is unknown or nothing overlaps.
package compare

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/skinmatch/platform/internal/colorspace"
	"github.com/skinmatch/platform/internal/descriptor"
)

// Inf marks an indeterminate distance.
var Inf = math.Inf(1)

// Defaults for palette coverage and signature transparency.
const (
	DefaultCoverageThreshold = 56.0
	DefaultTransparentAlpha  = 16
)

// PaletteResult is the palette distance plus the share of candidate colors
// that sit close to some reference color.
type PaletteResult struct {
	Distance float64
	Coverage float64
}

// Palette averages, over candidate colors, the RGB distance to the nearest
// reference color. Coverage counts candidate colors within threshold.
func Palette(ref, cand descriptor.Optional[descriptor.Palette], threshold float64) PaletteResult {
	rp, ok1 := ref.Get()
	cp, ok2 := cand.Get()
	if !ok1 || !ok2 {
		return PaletteResult{Distance: Inf}
	}
	refColors, candColors := rp.Colors(), cp.Colors()
	if len(refColors) == 0 || len(candColors) == 0 {
		return PaletteResult{Distance: Inf}
	}

	nearest := make([]float64, len(candColors))
	covered := 0
	for i, c := range candColors {
		best := Inf
		for _, r := range refColors {
			best = math.Min(best, c.Distance(r))
		}
		nearest[i] = best
		if best <= threshold {
			covered++
		}
	}
	n := float64(len(candColors))
	return PaletteResult{Distance: floats.Sum(nearest) / n, Coverage: float64(covered) / n}
}

// Signature is the alpha-weighted mean RGB distance over the cells both grids
// share. Cells transparent on both sides are skipped.
func Signature(ref, cand descriptor.Optional[descriptor.Signature], transparentAlpha uint8) float64 {
	a, ok1 := ref.Get()
	b, ok2 := cand.Get()
	if !ok1 || !ok2 || !a.Valid() || !b.Valid() {
		return Inf
	}
	n := min(a.Size, b.Size)
	var sum, weight float64
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			ca, cb := a.At(x, y), b.At(x, y)
			if ca.A < transparentAlpha && cb.A < transparentAlpha {
				continue
			}
			w := float64(max(ca.A, cb.A)) / 255
			d := colorspace.RGB{R: ca.R, G: ca.G, B: ca.B}.Distance(colorspace.RGB{R: cb.R, G: cb.G, B: cb.B})
			sum += d * w
			weight += w
		}
	}
	if weight == 0 {
		return Inf
	}
	return sum / weight
}

// Shape averages the finite terms among row MAD, column MAD and the
// occupancy difference.
func Shape(ref, cand descriptor.Optional[descriptor.Shape]) float64 {
	a, ok1 := ref.Get()
	b, ok2 := cand.Get()
	if !ok1 || !ok2 {
		return Inf
	}
	terms := []float64{
		MeanAbsDiff(a.Rows, b.Rows),
		MeanAbsDiff(a.Cols, b.Cols),
		math.Abs(a.Occupancy - b.Occupancy),
	}
	var sum float64
	n := 0
	for _, t := range terms {
		if !isFinite(t) {
			continue
		}
		sum += t
		n++
	}
	if n == 0 {
		return Inf
	}
	return sum / float64(n)
}

// Hash is the Hamming distance over the shared bit length, divided by that
// length. It is symmetric.
func Hash(ref, cand descriptor.Optional[descriptor.Hash]) float64 {
	a, ok1 := ref.Get()
	b, ok2 := cand.Get()
	if !ok1 || !ok2 {
		return Inf
	}
	diff, n := a.Hamming(b)
	if n == 0 {
		return Inf
	}
	return float64(diff) / float64(n)
}

// Edges is the mean absolute difference of two orientation histograms.
func Edges(ref, cand descriptor.Optional[descriptor.Histogram]) float64 {
	return histogram(ref, cand)
}

// Tones is the mean absolute difference of two tone histograms.
func Tones(ref, cand descriptor.Optional[descriptor.Histogram]) float64 {
	return histogram(ref, cand)
}

func histogram(ref, cand descriptor.Optional[descriptor.Histogram]) float64 {
	a, ok1 := ref.Get()
	b, ok2 := cand.Get()
	if !ok1 || !ok2 {
		return Inf
	}
	return MeanAbsDiff(a, b)
}

// MeanAbsDiff compares the first min(len(a), len(b)) values. An empty
// overlap is +Inf.
func MeanAbsDiff(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return Inf
	}
	return floats.Distance(a[:n], b[:n], 1) / float64(n)
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
