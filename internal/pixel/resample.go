package pixel

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/skinmatch/platform/internal/colorspace"
)

// Interpolation selects the resampling kernel used for grid downsampling.
type Interpolation int

const (
	// InterpolationBilinear matches a browser canvas drawImage downscale.
	InterpolationBilinear Interpolation = iota

	// InterpolationNearest samples the nearest source pixel.
	InterpolationNearest
)

// ParseInterpolation maps "nearest" to InterpolationNearest and anything else
// to InterpolationBilinear.
func ParseInterpolation(s string) Interpolation {
	if s == "nearest" {
		return InterpolationNearest
	}
	return InterpolationBilinear
}

func (i Interpolation) scaler() draw.Scaler {
	if i == InterpolationNearest {
		return draw.NearestNeighbor
	}
	return draw.BiLinear
}

// Resample renders the roi of b into a width x height non-premultiplied
// image. Pixels outside the image are transparent.
func (b *Buffer) Resample(roi image.Rectangle, width, height int, interp Interpolation) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	roi = roi.Intersect(b.Bounds())
	if roi.Empty() || width <= 0 || height <= 0 {
		return dst
	}
	interp.scaler().Scale(dst, dst.Bounds(), b.NRGBA(), roi, draw.Src, nil)
	return dst
}

// Luma returns the BT.601 brightness of every pixel of img, row-major.
func Luma(img *image.NRGBA) [][]float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		out[y] = make([]float64, w)
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			out[y][x] = colorspace.Brightness(row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// Gradient returns central-difference brightness gradients of a luma grid.
// Neighbours outside the grid take the centre value.
func Gradient(luma [][]float64, x, y int) (gx, gy float64) {
	h := len(luma)
	w := len(luma[0])
	c := luma[y][x]
	left, right, up, down := c, c, c, c
	if x > 0 {
		left = luma[y][x-1]
	}
	if x < w-1 {
		right = luma[y][x+1]
	}
	if y > 0 {
		up = luma[y-1][x]
	}
	if y < h-1 {
		down = luma[y+1][x]
	}
	return right - left, down - up
}
