package descriptor

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/skinmatch/platform/internal/colorspace"
	"github.com/skinmatch/platform/internal/pixel"
)

func (e *Extractor) signature(buf *pixel.Buffer, roi image.Rectangle) Optional[Signature] {
	n := e.opts.SignatureGrid
	img := buf.Resample(roi, n, n, e.opts.Interpolation)
	sig := Signature{Size: n, Cells: make([]Cell, n*n)}
	opaque := false
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := img.NRGBAAt(x, y)
			sig.Cells[y*n+x] = Cell{R: c.R, G: c.G, B: c.B, A: c.A}
			if c.A >= e.opts.AlphaThreshold {
				opaque = true
			}
		}
	}
	if !opaque {
		return None[Signature]()
	}
	return Some(sig)
}

func (e *Extractor) shape(buf *pixel.Buffer, roi image.Rectangle) Optional[Shape] {
	n := e.opts.ShapeGrid
	img := buf.Resample(roi, n, n, e.opts.Interpolation)
	rows := make([]float64, n)
	cols := make([]float64, n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			a := float64(img.NRGBAAt(x, y).A) / 255
			rows[y] += a
			cols[x] += a
		}
	}
	floats.Scale(1/float64(n), rows)
	floats.Scale(1/float64(n), cols)
	clamp01(rows)
	clamp01(cols)
	return Some(Shape{Rows: rows, Cols: cols, Occupancy: stat.Mean(rows, nil)})
}

func (e *Extractor) hash(buf *pixel.Buffer, roi image.Rectangle) Optional[Hash] {
	n := e.opts.HashGrid
	luma := pixel.Luma(buf.Resample(roi, n+1, n, e.opts.Interpolation))
	b := make([]bool, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			b = append(b, luma[y][x] > luma[y][x+1])
		}
	}
	return Some(NewHash(b))
}

func (e *Extractor) edges(buf *pixel.Buffer, roi image.Rectangle) Optional[Histogram] {
	n := e.opts.EdgeGrid
	bins := e.opts.EdgeBins
	luma := pixel.Luma(buf.Resample(roi, n, n, e.opts.Interpolation))
	hist := make(Histogram, bins)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			gx, gy := pixel.Gradient(luma, x, y)
			mag := math.Hypot(gx, gy)
			if mag < minEdgeMagnitude {
				continue
			}
			hist[orientationBin(math.Atan2(gy, gx), bins)] += mag
		}
	}
	return normalized(hist)
}

// orientationBin maps an angle in [-pi, pi] onto one of bins equal sectors.
func orientationBin(theta float64, bins int) int {
	i := int((theta + math.Pi) / (2 * math.Pi) * float64(bins))
	return min(max(i, 0), bins-1)
}

func (e *Extractor) tones(buf *pixel.Buffer, roi image.Rectangle) Optional[Histogram] {
	hist := make(Histogram, ToneBuckets)
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			r, g, b, a := buf.At(x, y)
			if a < e.opts.AlphaThreshold {
				continue
			}
			hsl := colorspace.RGB{R: r, G: g, B: b}.ToHSL()
			hist[ToneBucket(hsl)] += float64(a) / 255 * (0.7 + 0.6*hsl.S)
		}
	}
	return normalized(hist)
}

// ToneBucket places a color in one of the 12 hue buckets or the neutral one.
func ToneBucket(c colorspace.HSL) int {
	if c.S < toneMinSaturation || c.L <= toneMinLightness || c.L >= toneMaxLightness {
		return ToneNeutral
	}
	return int(c.H/(360.0/ToneHueBuckets)) % ToneHueBuckets
}

// normalized scales h to sum to 1, or reports unknown when it sums to 0.
func normalized(h Histogram) Optional[Histogram] {
	total := floats.Sum(h)
	if total <= 0 {
		return None[Histogram]()
	}
	floats.Scale(1/total, h)
	return Some(h)
}

func clamp01(v []float64) {
	for i := range v {
		v[i] = math.Min(1, math.Max(0, v[i]))
	}
}
