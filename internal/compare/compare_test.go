package compare

import (
	"math"
	"testing"

	"github.com/skinmatch/platform/internal/descriptor"
)

func palette(hexes ...string) descriptor.Optional[descriptor.Palette] {
	return descriptor.Some(descriptor.PaletteFromHex(hexes...))
}

func hist(v ...float64) descriptor.Optional[descriptor.Histogram] {
	return descriptor.Some(descriptor.Histogram(v))
}

func hash(t *testing.T, bits string) descriptor.Optional[descriptor.Hash] {
	t.Helper()
	h, err := descriptor.ParseHashBits(bits)
	if err != nil {
		t.Fatal(err)
	}
	return descriptor.Some(h)
}

func TestUnknownSidesAreInfinite(t *testing.T) {
	tests := map[string]float64{
		"palette":   Palette(descriptor.None[descriptor.Palette](), descriptor.None[descriptor.Palette](), DefaultCoverageThreshold).Distance,
		"signature": Signature(descriptor.None[descriptor.Signature](), descriptor.None[descriptor.Signature](), DefaultTransparentAlpha),
		"shape":     Shape(descriptor.None[descriptor.Shape](), descriptor.None[descriptor.Shape]()),
		"hash":      Hash(descriptor.None[descriptor.Hash](), descriptor.None[descriptor.Hash]()),
		"edges":     Edges(descriptor.None[descriptor.Histogram](), hist(1)),
		"tones":     Tones(hist(1), descriptor.None[descriptor.Histogram]()),
		"empty":     Palette(palette(), palette("#FFFFFF"), DefaultCoverageThreshold).Distance,
	}
	for name, d := range tests {
		if !math.IsInf(d, 1) {
			t.Errorf("%s = %v, want +Inf", name, d)
		}
	}
}

func TestPaletteNearestAndCoverage(t *testing.T) {
	ref := palette("#FFAA33")
	a := Palette(ref, palette("#FFAA22"), DefaultCoverageThreshold)
	b := Palette(ref, palette("#112233"), DefaultCoverageThreshold)
	if a.Distance >= b.Distance {
		t.Errorf("near color %v should beat far color %v", a.Distance, b.Distance)
	}
	if a.Distance != 17 {
		t.Errorf("distance = %v, want 17", a.Distance)
	}
	if a.Coverage != 1 || b.Coverage != 0 {
		t.Errorf("coverage = %v / %v", a.Coverage, b.Coverage)
	}

	mixed := Palette(ref, palette("#FFAA33", "#000000"), DefaultCoverageThreshold)
	if mixed.Coverage != 0.5 {
		t.Errorf("mixed coverage = %v, want 0.5", mixed.Coverage)
	}
}

func TestSignature(t *testing.T) {
	cells := func(size int, c descriptor.Cell) descriptor.Optional[descriptor.Signature] {
		s := descriptor.Signature{Size: size, Cells: make([]descriptor.Cell, size*size)}
		for i := range s.Cells {
			s.Cells[i] = c
		}
		return descriptor.Some(s)
	}
	red := descriptor.Cell{R: 255, A: 255}
	black := descriptor.Cell{A: 255}
	transparent := descriptor.Cell{R: 255}

	if d := Signature(cells(4, red), cells(4, red), DefaultTransparentAlpha); d != 0 {
		t.Errorf("identical = %v", d)
	}
	if d := Signature(cells(4, red), cells(2, black), DefaultTransparentAlpha); d != 255 {
		t.Errorf("red vs black = %v, want 255", d)
	}
	if d := Signature(cells(3, transparent), cells(3, transparent), DefaultTransparentAlpha); !math.IsInf(d, 1) {
		t.Errorf("all transparent = %v, want +Inf", d)
	}
}

func TestShapeAveragesFiniteTerms(t *testing.T) {
	a := descriptor.Some(descriptor.Shape{Rows: []float64{1, 1}, Cols: []float64{0.5, 0.5}, Occupancy: 1})
	b := descriptor.Some(descriptor.Shape{Rows: []float64{0, 1}, Cols: []float64{0.5, 0.5}, Occupancy: 0.5})
	// rows 0.5, cols 0, occupancy 0.5
	if d := Shape(a, b); math.Abs(d-1.0/3) > 1e-12 {
		t.Errorf("Shape = %v, want 1/3", d)
	}

	c := descriptor.Some(descriptor.Shape{Occupancy: 0.25})
	if d := Shape(a, c); d != 0.75 {
		t.Errorf("occupancy only = %v, want 0.75", d)
	}
}

func TestHashSymmetricAndNormalized(t *testing.T) {
	a := hash(t, "11110000")
	b := hash(t, "1010")
	if Hash(a, b) != Hash(b, a) {
		t.Error("hash distance not symmetric")
	}
	if d := Hash(a, b); d != 0.5 {
		t.Errorf("Hash = %v, want 0.5", d)
	}
	if d := Hash(a, hash(t, "")); !math.IsInf(d, 1) {
		t.Errorf("empty overlap = %v, want +Inf", d)
	}
}

func TestMeanAbsDiffUsesShorter(t *testing.T) {
	if d := MeanAbsDiff([]float64{0.5, 0.5, 9}, []float64{0.25, 0.75}); d != 0.25 {
		t.Errorf("MeanAbsDiff = %v, want 0.25", d)
	}
	if d := MeanAbsDiff(nil, []float64{1}); !math.IsInf(d, 1) {
		t.Errorf("empty overlap = %v, want +Inf", d)
	}
	if d := Tones(hist(), hist()); !math.IsInf(d, 1) {
		t.Errorf("empty tones = %v, want +Inf", d)
	}
	if d := Edges(hist(1, 0), hist(0, 1)); d != 1 {
		t.Errorf("Edges = %v, want 1", d)
	}
}
