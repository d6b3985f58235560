package iconmaker

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/png"
	"math/bits"
	"os"
)

// SourceFormats are the decoded formats accepted as input.
var SourceFormats = []string{"png", "gif"}

// Resolution is an image size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Image is a reference resolved to a local, decodable file.
type Image struct {
	Ref    string // reference as supplied by the caller
	Path   string
	Format string // decoder name, "png" or "gif"
	Width  int
	Height int
	Model  color.Model
}

func (img Image) Resolution() Resolution {
	return Resolution{img.Width, img.Height}
}

// inspect decodes the header of path and checks it is a supported source format.
func inspect(ref, path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, Wrap(KindImage, "inspect", "open image", err)
	}
	defer f.Close()

	cfg, name, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return Image{}, Wrap(KindImage, "inspect", "decode image", err)
	}
	if !isSourceFormat(name) {
		return Image{}, New(KindImage, "inspect", fmt.Sprintf("unsupported source format %q", name))
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return Image{}, New(KindImage, "inspect", fmt.Sprintf("empty image %dx%d", cfg.Width, cfg.Height))
	}

	return Image{
		Ref:    ref,
		Path:   path,
		Format: name,
		Width:  cfg.Width,
		Height: cfg.Height,
		Model:  cfg.ColorModel,
	}, nil
}

func isSourceFormat(name string) bool {
	for _, s := range SourceFormats {
		if s == name {
			return true
		}
	}
	return false
}

// BitDepth derives bits per pixel from a color model: paletted and gray models report
// their index or sample width, RGB-class models 24, models with alpha or four channels 32.
func BitDepth(m color.Model) (int, error) {
	if p, ok := m.(color.Palette); ok {
		if len(p) <= 1 {
			return 1, nil
		}
		return bits.Len(uint(len(p) - 1)), nil
	}

	switch m {
	case color.GrayModel, color.AlphaModel:
		return 8, nil
	case color.Gray16Model, color.Alpha16Model:
		return 16, nil
	case color.YCbCrModel:
		return 24, nil
	case color.RGBAModel, color.NRGBAModel, color.CMYKModel, color.NYCbCrAModel,
		color.RGBA64Model, color.NRGBA64Model:
		return 32, nil
	}
	return 0, fmt.Errorf("cannot determine bit depth for unknown mode %T", m)
}
