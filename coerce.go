package iconmaker

import (
	"context"
	"fmt"
	"path/filepath"
)

// minBitDepth is the shallowest pixel format handed to an encoder.
const minBitDepth = 24

// scratchDir names derived files inside one conversion's scratch directory.
// It is not safe for concurrent use.
type scratchDir struct {
	dir string
	n   int
}

func (s *scratchDir) path(stage string, res Resolution) string {
	s.n++
	if res == (Resolution{}) {
		return filepath.Join(s.dir, fmt.Sprintf("%03d-%s.png", s.n, stage))
	}
	return filepath.Join(s.dir, fmt.Sprintf("%03d-%s-%s.png", s.n, stage, res))
}

// Coercer brings resolved images into the canonical intermediate format: a PNG of
// at least 24 bits per pixel.
type Coercer struct {
	Images  ImageTool
	scratch *scratchDir
}

// NewCoercer returns a Coercer that writes derived images into dir.
func NewCoercer(images ImageTool, dir string) *Coercer {
	return &Coercer{Images: images, scratch: &scratchDir{dir: dir}}
}

// Coerce returns img itself when it already is a deep enough PNG, or a derived
// image otherwise. The source file is never modified.
func (c *Coercer) Coerce(ctx context.Context, img Image) (Image, error) {
	if img.Format == "gif" {
		dst := c.scratch.path("png", Resolution{})
		if err := c.Images.ToPNG(ctx, img.Path, dst); err != nil {
			return Image{}, Wrap(KindConversion, "coerce", "convert gif to png", err)
		}
		derived, err := inspect(img.Ref, dst)
		if err != nil {
			return Image{}, err
		}
		img = derived
	}

	depth, err := BitDepth(img.Model)
	if err != nil {
		return Image{}, Wrap(KindImage, "coerce", "inspect pixel format", err)
	}
	if depth >= minBitDepth {
		return img, nil
	}

	dst := c.scratch.path("png32", Resolution{})
	if err := c.Images.ToPNG32(ctx, img.Path, dst); err != nil {
		return Image{}, Wrap(KindConversion, "coerce", fmt.Sprintf("upconvert %d-bit image", depth), err)
	}
	derived, err := inspect(img.Ref, dst)
	if err != nil {
		return Image{}, err
	}
	if depth, err = BitDepth(derived.Model); err != nil || depth < minBitDepth {
		return Image{}, New(KindConversion, "coerce", fmt.Sprintf("upconverted image is still %d-bit", depth))
	}
	return derived, nil
}
