package descriptor

import (
	"encoding/json"
	"image"
	"image/color"
	"math"
	"reflect"
	"testing"

	"github.com/skinmatch/platform/internal/colorspace"
	"github.com/skinmatch/platform/internal/pixel"
)

func newBuffer(w, h int, fill func(x, y int) color.NRGBA) *pixel.Buffer {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	return &pixel.Buffer{Width: w, Height: h, Pix: img.Pix}
}

func redSquare() *pixel.Buffer {
	return newBuffer(40, 40, func(x, y int) color.NRGBA {
		if x >= 10 && x < 30 && y >= 10 && y < 30 {
			return color.NRGBA{R: 255, A: 255}
		}
		return color.NRGBA{}
	})
}

func TestExtractTransparentIsEmpty(t *testing.T) {
	buf := newBuffer(16, 16, func(x, y int) color.NRGBA { return color.NRGBA{R: 200, A: 10} })
	d := NewExtractor(DefaultOptions()).Extract(buf)
	if !d.Empty() {
		t.Errorf("transparent image produced fields %v", d.Fields())
	}
}

func TestZeroOptionsTakeDefaults(t *testing.T) {
	ext := NewExtractor(Options{})
	if got := ext.Options(); !reflect.DeepEqual(got, DefaultOptions()) {
		t.Errorf("Options() = %+v, want DefaultOptions()", got)
	}

	buf := newBuffer(16, 16, func(x, y int) color.NRGBA { return color.NRGBA{} })
	if d := ext.Extract(buf); !d.Empty() {
		t.Errorf("fully transparent image produced fields %v", d.Fields())
	}

	p, ok := ext.Extract(redSquare()).Palette.Get()
	if !ok || len(p) != 1 || p[0].Hex != "#FF0000" {
		t.Errorf("palette = %+v, want only #FF0000", p)
	}
}

func TestPartialROIInheritsAlphaThreshold(t *testing.T) {
	opts := Options{AlphaThreshold: 100, ROI: pixel.ROIOptions{TrimAlpha: true}}
	got := NewExtractor(opts).Options()
	if got.ROI.AlphaThreshold != 100 {
		t.Errorf("ROI.AlphaThreshold = %d, want 100", got.ROI.AlphaThreshold)
	}
}

func TestExtractRedSquare(t *testing.T) {
	d := NewExtractor(DefaultOptions()).Extract(redSquare())
	if len(d.Fields()) != 6 {
		t.Fatalf("fields = %v, want all six", d.Fields())
	}

	p, _ := d.Palette.Get()
	if p[0].Hex != "#FF0000" || p[0].Weight != 400 {
		t.Errorf("palette[0] = %+v, want #FF0000 x400", p[0])
	}

	tones, _ := d.Tones.Get()
	if math.Abs(tones[0]-1) > 1e-9 {
		t.Errorf("tones = %v, want all weight in the red bucket", tones)
	}

	sig, _ := d.Signature.Get()
	if !sig.Valid() || sig.Size != DefaultSignatureGrid {
		t.Errorf("signature size = %d cells = %d", sig.Size, len(sig.Cells))
	}
	if c := sig.At(sig.Size/2, sig.Size/2); c.R < 250 || c.A < 250 {
		t.Errorf("signature centre = %+v", c)
	}

	shape, _ := d.Shape.Get()
	if len(shape.Rows) != DefaultShapeGrid || len(shape.Cols) != DefaultShapeGrid {
		t.Fatalf("shape lengths = %d/%d", len(shape.Rows), len(shape.Cols))
	}
	if shape.Occupancy < 0.6 || shape.Occupancy > 1 {
		t.Errorf("occupancy = %v", shape.Occupancy)
	}

	h, _ := d.Hash.Get()
	if h.Len() != DefaultHashGrid*DefaultHashGrid {
		t.Errorf("hash bits = %d", h.Len())
	}

	edges, _ := d.Edges.Get()
	if len(edges) != DefaultEdgeBins {
		t.Errorf("edge bins = %d", len(edges))
	}
}

func TestExtractFlatImageHasNoEdges(t *testing.T) {
	buf := newBuffer(32, 32, func(x, y int) color.NRGBA { return color.NRGBA{R: 128, G: 128, B: 128, A: 255} })
	d := NewExtractor(DefaultOptions()).Extract(buf)

	if d.Edges.Present() {
		t.Error("flat image should have unknown edges")
	}
	tones, ok := d.Tones.Get()
	if !ok || math.Abs(tones[ToneNeutral]-1) > 1e-9 {
		t.Errorf("grey tones = %v", tones)
	}
	h, _ := d.Hash.Get()
	for i := 0; i < h.Len(); i++ {
		if h.Bit(i) {
			t.Fatalf("flat image hash has bit %d set", i)
		}
	}
}

func TestBucketPaletteOrder(t *testing.T) {
	buf := newBuffer(10, 6, func(x, y int) color.NRGBA {
		switch {
		case y < 3:
			return color.NRGBA{R: 255, A: 255}
		case y < 5:
			return color.NRGBA{G: 255, A: 255}
		default:
			return color.NRGBA{B: 255, A: 255}
		}
	})
	opts := DefaultOptions()
	opts.Region = buf.Bounds()
	p, ok := NewExtractor(opts).Extract(buf).Palette.Get()
	if !ok {
		t.Fatal("palette unknown")
	}
	want := Palette{{"#FF0000", 30}, {"#00FF00", 20}, {"#0000FF", 10}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("palette = %v, want %v", p, want)
	}
}

func TestKMeansPalette(t *testing.T) {
	buf := newBuffer(20, 10, func(x, y int) color.NRGBA {
		if x < 10 {
			return color.NRGBA{R: 230, G: 20, B: 20, A: 255}
		}
		return color.NRGBA{R: 20, G: 20, B: 230, A: 255}
	})
	opts := DefaultOptions()
	opts.PaletteMode = PaletteKMeans
	opts.Region = buf.Bounds()
	p, ok := NewExtractor(opts).Extract(buf).Palette.Get()
	if !ok {
		t.Fatal("palette unknown")
	}
	if len(p) == 0 || len(p) > DefaultPaletteSize {
		t.Fatalf("palette size = %d", len(p))
	}
	seen := map[string]bool{}
	for i, c := range p {
		if seen[c.Hex] {
			t.Errorf("duplicate hex %s", c.Hex)
		}
		seen[c.Hex] = true
		if i > 0 && c.Weight > p[i-1].Weight {
			t.Errorf("palette not sorted by weight: %v", p)
		}
	}
}

func TestKMeansPaletteSingleColor(t *testing.T) {
	buf := newBuffer(8, 8, func(x, y int) color.NRGBA { return color.NRGBA{R: 10, G: 200, B: 40, A: 255} })
	opts := DefaultOptions()
	opts.PaletteMode = PaletteKMeans
	p, ok := NewExtractor(opts).Extract(buf).Palette.Get()
	if !ok || len(p) != 1 {
		t.Fatalf("palette = %v", p)
	}
	got, _ := p[0].RGB()
	if got.Distance(colorspace.RGB{R: 10, G: 200, B: 40}) > 2 {
		t.Errorf("centroid = %s", p[0].Hex)
	}
}

func TestExtractJSONRoundTrip(t *testing.T) {
	d := NewExtractor(DefaultOptions()).Extract(redSquare())
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var back Descriptor
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d, back) {
		t.Errorf("round trip changed descriptor:\n%s", data)
	}
}

func TestOrientationBin(t *testing.T) {
	tests := []struct {
		theta float64
		want  int
	}{
		{-math.Pi, 0},
		{0, 4},
		{math.Pi / 2, 6},
		{math.Pi, 7},
	}
	for _, tt := range tests {
		if got := orientationBin(tt.theta, 8); got != tt.want {
			t.Errorf("orientationBin(%v) = %d, want %d", tt.theta, got, tt.want)
		}
	}
}

func TestToneBucket(t *testing.T) {
	tests := []struct {
		hsl  colorspace.HSL
		want int
	}{
		{colorspace.HSL{H: 0, S: 1, L: 0.5}, 0},
		{colorspace.HSL{H: 45, S: 0.5, L: 0.5}, 1},
		{colorspace.HSL{H: 359, S: 0.5, L: 0.5}, 11},
		{colorspace.HSL{H: 120, S: 0.1, L: 0.5}, ToneNeutral},
		{colorspace.HSL{H: 120, S: 0.9, L: 0.12}, ToneNeutral},
		{colorspace.HSL{H: 120, S: 0.9, L: 0.9}, ToneNeutral},
	}
	for _, tt := range tests {
		if got := ToneBucket(tt.hsl); got != tt.want {
			t.Errorf("ToneBucket(%+v) = %d, want %d", tt.hsl, got, tt.want)
		}
	}
}
