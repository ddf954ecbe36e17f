package descriptor

import (
	"image"
	"sync"

	"github.com/skinmatch/platform/internal/pixel"
)

// PaletteMode selects how dominant colors are found.
type PaletteMode int

const (
	// PaletteBuckets quantizes RGB into coarse cubes and ranks them by count.
	PaletteBuckets PaletteMode = iota
	// PaletteKMeans clusters pixels in LAB under CIEDE2000.
	PaletteKMeans
)

// ParsePaletteMode maps "kmeans" to PaletteKMeans and anything else to PaletteBuckets.
func ParsePaletteMode(s string) PaletteMode {
	if s == "kmeans" {
		return PaletteKMeans
	}
	return PaletteBuckets
}

func (m PaletteMode) String() string {
	if m == PaletteKMeans {
		return "kmeans"
	}
	return "buckets"
}

// Options tunes extraction.
type Options struct {
	AlphaThreshold uint8
	BucketSize     int
	PaletteSize    int
	PaletteMode    PaletteMode
	SignatureGrid  int
	ShapeGrid      int
	HashGrid       int
	EdgeGrid       int
	EdgeBins       int
	Interpolation  pixel.Interpolation
	ROI            pixel.ROIOptions

	// Region, when non-empty, replaces ROI auto-detection.
	Region image.Rectangle
}

// DefaultOptions returns the standard extraction settings.
func DefaultOptions() Options {
	return Options{
		AlphaThreshold: DefaultAlphaThreshold,
		BucketSize:     DefaultBucketSize,
		PaletteSize:    DefaultPaletteSize,
		PaletteMode:    PaletteBuckets,
		SignatureGrid:  DefaultSignatureGrid,
		ShapeGrid:      DefaultShapeGrid,
		HashGrid:       DefaultHashGrid,
		EdgeGrid:       DefaultEdgeGrid,
		EdgeBins:       DefaultEdgeBins,
		Interpolation:  pixel.InterpolationBilinear,
		ROI: pixel.ROIOptions{
			TrimAlpha:         DefaultTrimAlpha,
			AlphaThreshold:    DefaultAlphaThreshold,
			GradientThreshold: DefaultGradientThreshold,
			MinActiveRatio:    DefaultMinActiveRatio,
			Padding:           DefaultROIPadding,
		},
	}
}

// withDefaults fills zero-valued sizes, a zero alpha threshold and unset ROI
// options from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AlphaThreshold == 0 {
		o.AlphaThreshold = d.AlphaThreshold
	}
	if o.ROI == (pixel.ROIOptions{}) {
		o.ROI = d.ROI
		o.ROI.AlphaThreshold = o.AlphaThreshold
	} else if o.ROI.AlphaThreshold == 0 {
		o.ROI.AlphaThreshold = o.AlphaThreshold
	}
	if o.BucketSize <= 0 {
		o.BucketSize = d.BucketSize
	}
	if o.PaletteSize <= 0 {
		o.PaletteSize = d.PaletteSize
	}
	if o.SignatureGrid <= 0 {
		o.SignatureGrid = d.SignatureGrid
	}
	if o.ShapeGrid <= 0 {
		o.ShapeGrid = d.ShapeGrid
	}
	if o.HashGrid <= 0 {
		o.HashGrid = d.HashGrid
	}
	if o.EdgeGrid <= 0 {
		o.EdgeGrid = d.EdgeGrid
	}
	if o.EdgeBins <= 0 {
		o.EdgeBins = d.EdgeBins
	}
	return o
}

// Extractor computes descriptors. It holds no mutable state and may be
// shared between goroutines.
type Extractor struct {
	opts Options
}

// NewExtractor creates an extractor; zero fields in opts take defaults.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Extractor) Options() Options { return e.opts }

// Region returns the rectangle extraction reads from.
func (e *Extractor) Region(buf *pixel.Buffer) image.Rectangle {
	if !e.opts.Region.Empty() {
		if r := e.opts.Region.Intersect(buf.Bounds()); !r.Empty() {
			return r
		}
	}
	return pixel.DetectROI(buf, e.opts.ROI)
}

// Extract computes every field it can. Fields that cannot be derived stay
// unknown; a buffer with no opaque pixels yields an empty descriptor.
func (e *Extractor) Extract(buf *pixel.Buffer) Descriptor {
	var d Descriptor
	roi := e.Region(buf)
	if roi.Empty() || buf.CountOpaque(roi, e.opts.AlphaThreshold) == 0 {
		return d
	}

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	run(func() { d.Palette = e.palette(buf, roi) })
	run(func() { d.Signature = e.signature(buf, roi) })
	run(func() { d.Shape = e.shape(buf, roi) })
	run(func() { d.Hash = e.hash(buf, roi) })
	run(func() { d.Edges = e.edges(buf, roi) })
	run(func() { d.Tones = e.tones(buf, roi) })
	wg.Wait()
	return d
}
