package iconmaker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/jackmordaunt/icns/v3"
	"golang.org/x/image/draw"

	"github.com/iconfinder/iconmaker/ico"
)

// NativeTools implements every collaborator in-process. It needs no binaries and
// is used when the external tools are not installed.
type NativeTools struct{}

// Toolset exposes NativeTools as image tool, encoder and introspector.
func (t NativeTools) Toolset() Toolset {
	return Toolset{Images: t, Encoder: t, Introspector: t}
}

// ToPNG writes the first frame of src as PNG.
func (NativeTools) ToPNG(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return Wrap(KindConversion, "to_png", "open source", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Wrap(KindConversion, "to_png", "decode source", err)
	}
	return writePNG("to_png", dst, img)
}

// ToPNG32 redraws src into a non-premultiplied RGBA canvas so the PNG encoder
// writes 8 bits per channel. Fully opaque results come out as 24-bit RGB.
func (NativeTools) ToPNG32(ctx context.Context, src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return Wrap(KindConversion, "to_png32", "open source", err)
	}
	b := img.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	return writePNG("to_png32", dst, canvas)
}

func (NativeTools) Scale(ctx context.Context, src, dst string, to Resolution) error {
	img, err := imaging.Open(src)
	if err != nil {
		return Wrap(KindConversion, "scale", "open source", err)
	}
	out := imaging.Resize(img, to.Width, to.Height, imaging.Lanczos)
	if err := imaging.Save(out, dst); err != nil {
		return Wrap(KindConversion, "scale", "save", err)
	}
	return nil
}

// Pad centers src on a transparent canvas of the given size.
func (NativeTools) Pad(ctx context.Context, src, dst string, to Resolution) error {
	img, err := imaging.Open(src)
	if err != nil {
		return Wrap(KindConversion, "pad", "open source", err)
	}
	canvas := imaging.New(to.Width, to.Height, color.NRGBA{})
	out := imaging.PasteCenter(canvas, img)
	if err := imaging.Save(out, dst); err != nil {
		return Wrap(KindConversion, "pad", "save", err)
	}
	return nil
}

func (NativeTools) AssembleICO(ctx context.Context, images []string, target string) error {
	decoded, err := openAll("assemble_ico", images)
	if err != nil {
		return err
	}

	f, err := os.Create(target)
	if err != nil {
		return Wrap(KindConversion, "assemble_ico", "create target", err)
	}
	if err := ico.EncodeAll(f, decoded); err != nil {
		f.Close()
		return Wrap(KindConversion, "assemble_ico", "encode", err)
	}
	if err := f.Close(); err != nil {
		return Wrap(KindConversion, "assemble_ico", "close target", err)
	}
	return nil
}

// icnsPNGTypes is the PNG element written for each square ICNS size.
var icnsPNGTypes = map[int]icns.OsType{
	16:   {ID: "icp4", Size: 16},
	32:   {ID: "ic11", Size: 32},
	128:  {ID: "ic07", Size: 128},
	256:  {ID: "ic08", Size: 256},
	512:  {ID: "ic09", Size: 512},
	1024: {ID: "ic10", Size: 1024},
}

// 48 has no PNG element; it is stored as packed RGB planes plus an 8-bit mask.
const icnsLegacyEdge = 48

// EncodeICNS writes one element per image, in order. Every image must be square
// and sized for an ICNS slot.
func (NativeTools) EncodeICNS(ctx context.Context, target string, images []string) error {
	decoded, err := openAll("encode_icns", images)
	if err != nil {
		return err
	}
	if len(decoded) == 0 {
		return New(KindConversion, "encode_icns", "no images")
	}

	set := &icns.IconSet{}
	var legacy []byte
	for i, img := range decoded {
		b := img.Bounds()
		if b.Dx() != b.Dy() {
			return New(KindConversion, "encode_icns", fmt.Sprintf("%s is %dx%d, not square", images[i], b.Dx(), b.Dy()))
		}
		if b.Dx() == icnsLegacyEdge {
			legacy = append(legacy, legacyICNSElements(imaging.Clone(img))...)
			continue
		}
		typ, ok := icnsPNGTypes[b.Dx()]
		if !ok {
			return New(KindConversion, "encode_icns", fmt.Sprintf("no ICNS slot for %dx%d", b.Dx(), b.Dy()))
		}
		set.Icons = append(set.Icons, &icns.Icon{Type: typ, Image: img})
	}
	if len(set.Icons) == 0 && len(legacy) == 0 {
		return New(KindConversion, "encode_icns", "no icon written")
	}

	var buf bytes.Buffer
	if _, err := set.WriteTo(&buf); err != nil {
		return Wrap(KindConversion, "encode_icns", "encode", err)
	}
	data := append(buf.Bytes(), legacy...)
	binary.BigEndian.PutUint32(data[4:icnsHeaderSize], uint32(len(data)))

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return Wrap(KindConversion, "encode_icns", "write target", err)
	}
	return nil
}

// legacyICNSElements encodes img as an ih32 element (R, G and B planes, each
// PackBits compressed) followed by its h8mk alpha mask.
func legacyICNSElements(img *image.NRGBA) []byte {
	b := img.Bounds()
	planes := make([][]byte, 4)
	for c := range planes {
		planes[c] = make([]byte, 0, b.Dx()*b.Dy())
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			for c := range planes {
				planes[c] = append(planes[c], img.Pix[off+c])
			}
		}
	}

	var rgb []byte
	for _, plane := range planes[:3] {
		rgb = packBits(rgb, plane)
	}
	out := appendICNSElement(nil, "ih32", rgb)
	return appendICNSElement(out, "h8mk", planes[3])
}

// packBits appends src as literal runs of at most 128 bytes.
func packBits(dst, src []byte) []byte {
	for len(src) > 0 {
		n := min(len(src), 128)
		dst = append(dst, byte(n-1))
		dst = append(dst, src[:n]...)
		src = src[n:]
	}
	return dst
}

func appendICNSElement(dst []byte, typ string, data []byte) []byte {
	dst = append(dst, typ...)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)+icnsHeaderSize))
	return append(dst, data...)
}

// List describes the top-level blocks of an ICNS file.
func (NativeTools) List(ctx context.Context, path string) ([]string, error) {
	return listICNS(path)
}

func openAll(op string, paths []string) ([]image.Image, error) {
	images := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			return nil, Wrap(KindConversion, op, "open "+p, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func writePNG(op, dst string, img image.Image) error {
	f, err := os.Create(dst)
	if err != nil {
		return Wrap(KindConversion, op, "create "+dst, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return Wrap(KindConversion, op, "encode PNG", err)
	}
	if err := f.Close(); err != nil {
		return Wrap(KindConversion, op, "close "+dst, err)
	}
	return nil
}
