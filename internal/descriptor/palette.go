package descriptor

import (
	"cmp"
	"image"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/skinmatch/platform/internal/colorspace"
	"github.com/skinmatch/platform/internal/pixel"
)

func (e *Extractor) palette(buf *pixel.Buffer, roi image.Rectangle) Optional[Palette] {
	var p Palette
	if e.opts.PaletteMode == PaletteKMeans {
		p = e.kmeansPalette(buf, roi)
	} else {
		p = e.bucketPalette(buf, roi)
	}
	if len(p) == 0 {
		return None[Palette]()
	}
	return Some(p)
}

type bucket struct {
	key        int
	r, g, b, n int
}

func (e *Extractor) bucketPalette(buf *pixel.Buffer, roi image.Rectangle) Palette {
	size := e.opts.BucketSize
	side := 256/size + 1
	buckets := make(map[int]*bucket)
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			r, g, b, a := buf.At(x, y)
			if a < e.opts.AlphaThreshold {
				continue
			}
			key := (int(r)/size*side+int(g)/size)*side + int(b)/size
			bk, ok := buckets[key]
			if !ok {
				bk = &bucket{key: key}
				buckets[key] = bk
			}
			bk.r += int(r)
			bk.g += int(g)
			bk.b += int(b)
			bk.n++
		}
	}

	ranked := make([]*bucket, 0, len(buckets))
	for _, bk := range buckets {
		ranked = append(ranked, bk)
	}
	slices.SortFunc(ranked, func(a, b *bucket) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	colors := make([]WeightedColor, 0, len(ranked))
	for _, bk := range ranked {
		avg := colorspace.RGB{
			R: uint8((bk.r + bk.n/2) / bk.n),
			G: uint8((bk.g + bk.n/2) / bk.n),
			B: uint8((bk.b + bk.n/2) / bk.n),
		}
		colors = append(colors, WeightedColor{Hex: avg.Hex(), Weight: bk.n})
	}
	return rankPalette(colors, e.opts.PaletteSize)
}

// labObservation clusters pixels in LAB using CIEDE2000 as the metric.
type labObservation struct {
	lab colorspace.Lab
}

func (o labObservation) Coordinates() clusters.Coordinates {
	return clusters.Coordinates{o.lab.L, o.lab.A, o.lab.B}
}

func (o labObservation) Distance(point clusters.Coordinates) float64 {
	return colorspace.DeltaE2000(o.lab, colorspace.Lab{L: point[0], A: point[1], B: point[2]})
}

func (e *Extractor) kmeansPalette(buf *pixel.Buffer, roi image.Rectangle) Palette {
	sample := buf.Resample(roi, kmeansSampleGrid, kmeansSampleGrid, e.opts.Interpolation)

	var obs clusters.Observations
	distinct := make(map[colorspace.RGB]bool)
	for i := 0; i+3 < len(sample.Pix); i += 4 {
		if sample.Pix[i+3] < e.opts.AlphaThreshold {
			continue
		}
		c := colorspace.RGB{R: sample.Pix[i], G: sample.Pix[i+1], B: sample.Pix[i+2]}
		distinct[c] = true
		obs = append(obs, labObservation{lab: c.ToLab()})
	}
	if len(obs) == 0 {
		return nil
	}

	// Partition fails when k exceeds the number of distinct points it can seed from.
	k := min(e.opts.PaletteSize, len(distinct))
	km, err := kmeans.NewWithOptions(kmeansDelta, nil)
	if err != nil {
		return nil
	}
	parts, err := km.Partition(obs, k)
	if err != nil {
		return nil
	}

	colors := make([]WeightedColor, 0, len(parts))
	for _, c := range parts {
		if len(c.Observations) == 0 || len(c.Center) < 3 {
			continue
		}
		lab := colorspace.Lab{L: c.Center[0], A: c.Center[1], B: c.Center[2]}
		if !lab.Finite() {
			continue
		}
		colors = append(colors, WeightedColor{Hex: lab.ToRGB().Hex(), Weight: len(c.Observations)})
	}
	return rankPalette(colors, e.opts.PaletteSize)
}

// rankPalette merges exact-hex duplicates, sorts by weight descending (ties
// keep input order) and keeps the first n.
func rankPalette(colors []WeightedColor, n int) Palette {
	merged := make(map[string]int, len(colors))
	order := make([]string, 0, len(colors))
	for _, c := range colors {
		if _, ok := merged[c.Hex]; !ok {
			order = append(order, c.Hex)
		}
		merged[c.Hex] += c.Weight
	}
	p := make(Palette, 0, len(order))
	for _, hex := range order {
		p = append(p, WeightedColor{Hex: hex, Weight: merged[hex]})
	}
	slices.SortStableFunc(p, func(a, b WeightedColor) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	if len(p) > n {
		p = p[:n]
	}
	return p
}
