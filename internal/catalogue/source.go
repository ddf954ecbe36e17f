package catalogue

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/skinmatch/platform/internal/errors"
	"github.com/skinmatch/platform/internal/pixel"
)

// ImageSource resolves an item's image reference to pixels.
type ImageSource interface {
	Open(ctx context.Context, ref string) (*pixel.Buffer, error)
}

// DirSource reads images from disk. Relative references resolve against Root.
type DirSource struct {
	Root string
}

// Open decodes the image at ref.
func (d DirSource) Open(ctx context.Context, ref string) (*pixel.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCancelled, "open image")
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.Root, ref)
	}
	f, err := os.Open(path)
	if err != nil {
		code := apperrors.CodeUnavailable
		if errors.Is(err, fs.ErrNotExist) {
			code = apperrors.CodeNotFound
		}
		return nil, apperrors.Wrap(err, code, "open image").WithMetadata("path", path)
	}
	defer f.Close()
	return pixel.Decode(f)
}
