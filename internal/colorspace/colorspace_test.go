package colorspace

import (
	"math"
	"testing"
)

func TestDeltaE2000ReferenceVectors(t *testing.T) {
	// Sharma, Wu & Dalal (2005) test data.
	tests := []struct {
		a, b Lab
		want float64
	}{
		{Lab{50, 2.6772, -79.7751}, Lab{50, 0, -82.7485}, 2.0425},
		{Lab{50, 3.1571, -77.2803}, Lab{50, 0, -82.7485}, 2.8615},
		{Lab{50, 2.8361, -74.0200}, Lab{50, 0, -82.7485}, 3.4412},
		{Lab{50, -1.3802, -84.2814}, Lab{50, 0, -82.7485}, 1.0000},
		{Lab{50, -1.1848, -84.8006}, Lab{50, 0, -82.7485}, 1.0000},
		{Lab{50, -0.9009, -85.5211}, Lab{50, 0, -82.7485}, 1.0000},
		{Lab{50, 0, 0}, Lab{50, -1, 2}, 2.3669},
		{Lab{50, -1, 2}, Lab{50, 0, 0}, 2.3669},
		{Lab{50, 2.49, -0.001}, Lab{50, -2.49, 0.0009}, 7.1792},
		{Lab{50, 2.49, -0.001}, Lab{50, -2.49, 0.0010}, 7.1792},
		{Lab{50, 2.49, -0.001}, Lab{50, -2.49, 0.0011}, 7.2195},
		{Lab{50, 2.49, -0.001}, Lab{50, -2.49, 0.0012}, 7.2195},
		{Lab{50, -0.001, 2.49}, Lab{50, 0.0009, -2.49}, 4.8045},
		{Lab{50, 2.5, 0}, Lab{73, 25, -18}, 27.1492},
		{Lab{50, 2.5, 0}, Lab{61, -5, 29}, 22.8977},
		{Lab{50, 2.5, 0}, Lab{56, -27, -3}, 31.9030},
		{Lab{50, 2.5, 0}, Lab{58, 24, 15}, 19.4535},
		{Lab{60.2574, -34.0099, 36.2677}, Lab{60.4626, -34.1751, 39.4387}, 1.2644},
		{Lab{63.0109, -31.0961, -5.8663}, Lab{62.8187, -29.7946, -4.0864}, 1.2630},
		{Lab{22.7233, 20.0904, -46.6940}, Lab{23.0331, 14.9730, -42.5619}, 2.0373},
	}

	for i, tt := range tests {
		got := DeltaE2000(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-3 {
			t.Errorf("pair %d: DeltaE2000(%v, %v) = %.4f, want %.4f", i+1, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDeltaE2000Identity(t *testing.T) {
	for _, c := range []Lab{{0, 0, 0}, {50, 2.6772, -79.7751}, {100, 0, 0}, {32.3, 79.2, -107.9}} {
		if d := DeltaE2000(c, c); d != 0 {
			t.Errorf("DeltaE2000(%v, %v) = %v, want 0", c, c, d)
		}
	}
}

func TestDeltaE2000Symmetric(t *testing.T) {
	a := RGB{200, 30, 90}.ToLab()
	b := RGB{12, 140, 220}.ToLab()
	if d1, d2 := DeltaE2000(a, b), DeltaE2000(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("asymmetric: %v vs %v", d1, d2)
	}
}

func TestDeltaE2000MatchesColorful(t *testing.T) {
	pairs := [][2]RGB{
		{{255, 170, 34}, {255, 170, 51}},
		{{17, 34, 51}, {255, 170, 51}},
		{{0, 0, 0}, {255, 255, 255}},
		{{120, 80, 200}, {118, 90, 190}},
	}
	for _, p := range pairs {
		want := p[0].colorful().DistanceCIEDE2000(p[1].colorful()) * 100
		got := DeltaE2000(p[0].ToLab(), p[1].ToLab())
		if math.Abs(got-want) > 1e-3 {
			t.Errorf("%v vs %v: got %.5f, go-colorful %.5f", p[0], p[1], got, want)
		}
	}
}

func TestDeltaE2000PanicsOnNonFinite(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for NaN input")
		}
	}()
	DeltaE2000(Lab{math.NaN(), 0, 0}, Lab{50, 0, 0})
}

func TestRGBToLabKnownValues(t *testing.T) {
	tests := []struct {
		c    RGB
		want Lab
	}{
		{RGB{255, 255, 255}, Lab{100, 0, 0}},
		{RGB{0, 0, 0}, Lab{0, 0, 0}},
		{RGB{255, 0, 0}, Lab{53.24, 80.09, 67.20}},
	}
	for _, tt := range tests {
		got := tt.c.ToLab()
		if math.Abs(got.L-tt.want.L) > 0.05 || math.Abs(got.A-tt.want.A) > 0.05 || math.Abs(got.B-tt.want.B) > 0.05 {
			t.Errorf("%v.ToLab() = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestLabRoundTripThroughHex(t *testing.T) {
	for _, hex := range []string{"#FFAA22", "#112233", "#000000", "#FFFFFF", "#7F3FA0", "#0AF0C3", "#C0FFEE"} {
		c, ok := ParseHex(hex)
		if !ok {
			t.Fatalf("ParseHex(%q) failed", hex)
		}
		back := c.ToLab().ToRGB()
		if absDiff(c.R, back.R) > 1 || absDiff(c.G, back.G) > 1 || absDiff(c.B, back.B) > 1 {
			t.Errorf("%s round-tripped to %s", hex, back.Hex())
		}
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want RGB
		ok   bool
	}{
		{"#FFAA22", RGB{255, 170, 34}, true},
		{"ffaa22", RGB{255, 170, 34}, true},
		{"#fa2", RGB{255, 170, 34}, true},
		{"FA2", RGB{255, 170, 34}, true},
		{" #112233 ", RGB{17, 34, 51}, true},
		{"", RGB{}, false},
		{"#", RGB{}, false},
		{"#12345", RGB{}, false},
		{"#1234567", RGB{}, false},
		{"#GG0000", RGB{}, false},
		{"rgb(1,2,3)", RGB{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseHex(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseHex(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHexFormatting(t *testing.T) {
	if got := (RGB{255, 170, 34}).Hex(); got != "#FFAA22" {
		t.Errorf("Hex() = %q, want #FFAA22", got)
	}
}

func TestRGBFromInts(t *testing.T) {
	if _, ok := RGBFromInts(0, 128, 255); !ok {
		t.Error("in-range channels rejected")
	}
	for _, bad := range [][3]int{{-1, 0, 0}, {0, 256, 0}, {0, 0, 1000}} {
		if _, ok := RGBFromInts(bad[0], bad[1], bad[2]); ok {
			t.Errorf("RGBFromInts(%v) accepted", bad)
		}
	}
}

func TestHSLRoundTrip(t *testing.T) {
	for _, c := range []RGB{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {128, 128, 128}, {200, 100, 50}} {
		hsl := c.ToHSL()
		if hsl.H < 0 || hsl.H >= 360 {
			t.Errorf("%v hue %v outside [0,360)", c, hsl.H)
		}
		back := hsl.ToRGB()
		if absDiff(c.R, back.R) > 1 || absDiff(c.G, back.G) > 1 || absDiff(c.B, back.B) > 1 {
			t.Errorf("%v -> %v -> %v", c, hsl, back)
		}
	}
}

func TestHSLKnownValues(t *testing.T) {
	hsl := RGB{0, 0, 255}.ToHSL()
	if math.Abs(hsl.H-240) > 1e-6 || math.Abs(hsl.S-1) > 1e-6 || math.Abs(hsl.L-0.5) > 1e-6 {
		t.Errorf("blue = %v, want {240 1 0.5}", hsl)
	}
	gray := RGB{128, 128, 128}.ToHSL()
	if gray.S != 0 {
		t.Errorf("gray saturation = %v, want 0", gray.S)
	}
}

func TestDistanceAndBrightness(t *testing.T) {
	if d := (RGB{0, 0, 0}).Distance(RGB{255, 255, 255}); math.Abs(d-MaxRGBDistance) > 1e-9 {
		t.Errorf("black-white distance = %v, want %v", d, MaxRGBDistance)
	}
	if b := Brightness(255, 255, 255); math.Abs(b-255) > 1e-9 {
		t.Errorf("white brightness = %v", b)
	}
}
