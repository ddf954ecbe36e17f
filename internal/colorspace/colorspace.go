// Package colorspace converts between sRGB, CIE LAB, HSL and hex notation.
package colorspace

import (
	"math"
	"regexp"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGB is an 8-bit sRGB triple.
type RGB struct {
	R, G, B uint8
}

// Lab is a CIE L*a*b* color referenced to the D65 white point
// (Xr=0.95047, Yr=1.0, Zr=1.08883). L is in [0,100].
type Lab struct {
	L, A, B float64
}

// HSL holds hue in degrees [0,360) with saturation and lightness in [0,1].
type HSL struct {
	H, S, L float64
}

var hexPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// colorful works with channels in [0,1] and L in [0,1].
func (c RGB) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func fromColorful(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// RGBFromInts validates integer channels. Out-of-range input yields ok=false.
func RGBFromInts(r, g, b int) (RGB, bool) {
	if r < 0 || r > 255 || g < 0 || g > 255 || b < 0 || b > 255 {
		return RGB{}, false
	}
	return RGB{R: uint8(r), G: uint8(g), B: uint8(b)}, true
}

// ToLab converts through linear sRGB and XYZ to LAB.
func (c RGB) ToLab() Lab {
	l, a, b := c.colorful().Lab()
	return Lab{L: l * 100, A: a * 100, B: b * 100}
}

// RGBToLab is the free-function form of RGB.ToLab.
func RGBToLab(r, g, b uint8) Lab {
	return RGB{R: r, G: g, B: b}.ToLab()
}

// ToRGB inverts ToLab, clamping to the sRGB gamut and rounding.
func (l Lab) ToRGB() RGB {
	return fromColorful(colorful.Lab(l.L/100, l.A/100, l.B/100))
}

// Finite reports whether every component is a finite number.
func (l Lab) Finite() bool {
	return !math.IsNaN(l.L) && !math.IsInf(l.L, 0) &&
		!math.IsNaN(l.A) && !math.IsInf(l.A, 0) &&
		!math.IsNaN(l.B) && !math.IsInf(l.B, 0)
}

// ParseHex accepts "#abc", "abc", "#aabbcc" or "aabbcc" in any case.
// Malformed input returns ok=false.
func ParseHex(s string) (RGB, bool) {
	m := hexPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return RGB{}, false
	}
	digits := m[1]
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}
	c, err := colorful.Hex("#" + strings.ToLower(digits))
	if err != nil {
		return RGB{}, false
	}
	return fromColorful(c), true
}

// Hex formats the color as "#RRGGBB".
func (c RGB) Hex() string {
	return strings.ToUpper(c.colorful().Hex())
}

// ToHSL converts to hue/saturation/lightness.
func (c RGB) ToHSL() HSL {
	h, s, l := c.colorful().Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return HSL{H: h, S: s, L: l}
}

// ToRGB converts HSL back to sRGB.
func (h HSL) ToRGB() RGB {
	hue := math.Mod(h.H, 360)
	if hue < 0 {
		hue += 360
	}
	return fromColorful(colorful.Hsl(hue, h.S, h.L))
}

// Distance is the Euclidean distance between two colors in RGB space.
func (c RGB) Distance(o RGB) float64 {
	dr := float64(c.R) - float64(o.R)
	dg := float64(c.G) - float64(o.G)
	db := float64(c.B) - float64(o.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Brightness is the BT.601 luma of the color.
func Brightness(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// MaxRGBDistance is the largest possible Euclidean RGB distance, sqrt(3)*255.
var MaxRGBDistance = math.Sqrt(3) * 255
