package pixel

import (
	"image"
	"math"

	"github.com/skinmatch/platform/internal/colorspace"
)

// ROIOptions controls region-of-interest auto-detection.
type ROIOptions struct {
	TrimAlpha         bool    // prefer the tight alpha bounding box
	AlphaThreshold    uint8   // pixels at or above this alpha are foreground
	GradientThreshold float64 // |gx|+|gy| brightness change that marks an edge pixel
	MinActiveRatio    float64 // edge pixels / total required to trust the gradient box
	Padding           float64 // fraction of each ROI side added on both ends
}

// AlphaBounds returns the bounding box of pixels with alpha >= threshold.
func AlphaBounds(b *Buffer, threshold uint8) (image.Rectangle, bool) {
	minX, minY, maxX, maxY := b.Width, b.Height, -1, -1
	for y := 0; y < b.Height; y++ {
		row := y * b.Width * 4
		for x := 0; x < b.Width; x++ {
			if b.Pix[row+x*4+3] < threshold {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// GradientBounds returns the bounding box of pixels whose local brightness
// gradient exceeds threshold. It reports false when fewer than minActiveRatio
// of all pixels are active.
func GradientBounds(b *Buffer, threshold, minActiveRatio float64) (image.Rectangle, bool) {
	w, h := b.Width, b.Height
	luma := make([]float64, w*h)
	for i := range luma {
		p := b.Pix[i*4 : i*4+4 : i*4+4]
		luma[i] = colorspace.Brightness(p[0], p[1], p[2]) * float64(p[3]) / 255
	}

	minX, minY, maxX, maxY := w, h, -1, -1
	active := 0
	for y := 0; y < h; y++ {
		up, down := max(y-1, 0)*w, min(y+1, h-1)*w
		row := y * w
		for x := 0; x < w; x++ {
			left, right := max(x-1, 0), min(x+1, w-1)
			gx := luma[row+right] - luma[row+left]
			gy := luma[down+x] - luma[up+x]
			if math.Abs(gx)+math.Abs(gy) <= threshold {
				continue
			}
			active++
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if active == 0 || float64(active)/float64(w*h) < minActiveRatio {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// Pad grows r by ratio of its width and height on each side, clamped to bounds.
func Pad(r, bounds image.Rectangle, ratio float64) image.Rectangle {
	if ratio <= 0 {
		return r.Intersect(bounds)
	}
	px := int(math.Round(float64(r.Dx()) * ratio))
	py := int(math.Round(float64(r.Dy()) * ratio))
	return image.Rect(r.Min.X-px, r.Min.Y-py, r.Max.X+px, r.Max.Y+py).Intersect(bounds)
}

// DetectROI picks the region used for extraction. Alpha trimming wins when
// enabled and it actually trims something; otherwise a gradient box is used
// if enough of the image is active; otherwise the whole image.
func DetectROI(b *Buffer, opts ROIOptions) image.Rectangle {
	full := b.Bounds()
	if opts.TrimAlpha {
		if r, ok := AlphaBounds(b, opts.AlphaThreshold); ok && r != full {
			return Pad(r, full, opts.Padding)
		}
	}
	if r, ok := GradientBounds(b, opts.GradientThreshold, opts.MinActiveRatio); ok {
		return Pad(r, full, opts.Padding)
	}
	return full
}
