package descriptor

// Extraction defaults
const (
	DefaultAlphaThreshold = 48
	DefaultBucketSize     = 24
	DefaultPaletteSize    = 6
	DefaultSignatureGrid  = 12
	DefaultShapeGrid      = 12
	DefaultHashGrid       = 8
	DefaultEdgeGrid       = 16
	DefaultEdgeBins       = 8
)

// ROI detection defaults
const (
	DefaultTrimAlpha         = true
	DefaultROIPadding        = 0.04
	DefaultGradientThreshold = 24.0
	DefaultMinActiveRatio    = 0.01
)

// Tone histogram layout: 12 hue buckets of 30 degrees, then one neutral bucket.
const (
	ToneHueBuckets = 12
	ToneBuckets    = ToneHueBuckets + 1
	ToneNeutral    = ToneHueBuckets

	toneMinSaturation = 0.18
	toneMinLightness  = 0.12
	toneMaxLightness  = 0.88
)

// Edge pixels with gradient magnitude below this are ignored.
const minEdgeMagnitude = 1.0

// K-means palette sampling grid and iteration bound.
const (
	kmeansSampleGrid = 48
	kmeansDelta      = 0.01
)
