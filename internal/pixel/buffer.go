// Package pixel holds raw RGBA pixel buffers and the image plumbing around
// them: decoding, region-of-interest detection and grid resampling.
package pixel

import (
	"bytes"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io"
	"strconv"

	_ "golang.org/x/image/bmp" // BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder

	apperrors "github.com/skinmatch/platform/internal/errors"
)

// MaxImagePixels bounds the declared width x height of a decoded image.
const MaxImagePixels = 24_000_000

// Buffer is a read-only, row-major, top-to-bottom buffer of non-premultiplied
// RGBA quadruplets.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBuffer validates dimensions against the pixel slice.
func NewBuffer(width, height int, pix []byte) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, apperrors.Newf(apperrors.CodeImageEmpty, "image has no area (%dx%d)", width, height)
	}
	if len(pix) != width*height*4 {
		return nil, apperrors.Newf(apperrors.CodeImageInvalid, "pixel data is %d bytes, want %d", len(pix), width*height*4).
			WithMetadata("width", strconv.Itoa(width)).
			WithMetadata("height", strconv.Itoa(height))
	}
	return &Buffer{Width: width, Height: height, Pix: pix}, nil
}

// FromImage copies any image into a Buffer.
func FromImage(img image.Image) (*Buffer, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, apperrors.New(apperrors.CodeImageEmpty, "image has no area")
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Buffer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}, nil
}

// Decode reads a PNG, JPEG, WebP or BMP image into a Buffer. The header is
// checked against MaxImagePixels before any pixel data is decoded.
func Decode(r io.Reader) (*Buffer, error) {
	var head bytes.Buffer
	cfg, format, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeImageInvalid, "decode image header")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperrors.Newf(apperrors.CodeImageEmpty, "image has no area (%dx%d)", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, apperrors.Newf(apperrors.CodeImageInvalid, "image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, MaxImagePixels).
			WithMetadata("format", format).
			WithMetadata("width", strconv.Itoa(cfg.Width)).
			WithMetadata("height", strconv.Itoa(cfg.Height))
	}

	img, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeImageInvalid, "decode image")
	}
	return FromImage(img)
}

// DecodeBytes is Decode over an in-memory encoded image.
func DecodeBytes(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CodeImageEmpty, "empty image payload")
	}
	return Decode(bytes.NewReader(data))
}

// Bounds returns the full image rectangle.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// At returns the RGBA quadruplet at (x, y).
func (b *Buffer) At(x, y int) (r, g, bl, a uint8) {
	i := (y*b.Width + x) * 4
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Alpha returns the alpha channel at (x, y).
func (b *Buffer) Alpha(x, y int) uint8 {
	return b.Pix[(y*b.Width+x)*4+3]
}

// NRGBA views the buffer as an image without copying. Callers must not write
// through it.
func (b *Buffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: b.Pix, Stride: b.Width * 4, Rect: b.Bounds()}
}

// CountOpaque counts pixels inside r whose alpha is at least threshold.
func (b *Buffer) CountOpaque(r image.Rectangle, threshold uint8) int {
	r = r.Intersect(b.Bounds())
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * b.Width * 4
		for x := r.Min.X; x < r.Max.X; x++ {
			if b.Pix[row+x*4+3] >= threshold {
				n++
			}
		}
	}
	return n
}
