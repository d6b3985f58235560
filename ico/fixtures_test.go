package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"testing"
)

func sqDiffUInt8(x, y uint8) uint64 {
	d := uint64(x) - uint64(y)
	return d * d
}

func fastCompare(img1, img2 *image.NRGBA) (int64, error) {
	if img1.Bounds() != img2.Bounds() {
		return 0, fmt.Errorf("image bounds not equal: %+v, %+v", img1.Bounds(), img2.Bounds())
	}

	accumError := int64(0)
	for i := 0; i < len(img1.Pix); i++ {
		accumError += int64(sqDiffUInt8(img1.Pix[i], img2.Pix[i]))
	}
	return int64(math.Sqrt(float64(accumError))), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	bounds := img.Bounds()
	nrgba := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			nrgba.Set(x, y, img.At(x, y))
		}
	}
	return nrgba
}

// gradient builds an opaque w x h image with a gradient pattern for visual checks.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func encodeICO(t *testing.T, images ...image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeAll(&buf, images); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	return buf.Bytes()
}

// bmpICO builds a single-entry ICO whose payload is a headerless BMP with the XOR+AND
// doubled height, the way resource compilers and ImageMagick store small icons.
// bits is 24 or 32; transparent lists pixels whose AND-mask bit is set.
func bmpICO(img *image.NRGBA, bits int, transparent ...image.Point) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	bpp := bits / 8
	stride := (w*bpp + 3) &^ 3
	maskStride := (w + 31) / 32 * 4

	dib := make([]byte, 40)
	binary.LittleEndian.PutUint32(dib[0:4], 40)
	binary.LittleEndian.PutUint32(dib[4:8], uint32(w))
	binary.LittleEndian.PutUint32(dib[8:12], uint32(h*2))
	binary.LittleEndian.PutUint16(dib[12:14], 1)
	binary.LittleEndian.PutUint16(dib[14:16], uint16(bits))
	binary.LittleEndian.PutUint32(dib[20:24], uint32(stride*h))

	pixels := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		row := pixels[y*stride:]
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(x, h-1-y) // bottom-up
			row[x*bpp+0] = c.B
			row[x*bpp+1] = c.G
			row[x*bpp+2] = c.R
			if bpp == 4 {
				row[x*bpp+3] = c.A
			}
		}
	}

	var mask []byte
	if bits != 32 {
		mask = make([]byte, maskStride*h)
		for _, p := range transparent {
			row := h - 1 - p.Y
			mask[row*maskStride+p.X/8] |= 0x80 >> uint(p.X%8)
		}
	}

	payload := append(append(dib, pixels...), mask...)
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, Header{Type: 1, Count: 1})
	binary.Write(&out, binary.LittleEndian, direntry{
		Width:  uint8(w),
		Height: uint8(h),
		Plane:  1,
		Bits:   uint16(bits),
		Size:   uint32(len(payload)),
		Offset: HeaderSize + direntrySize,
	})
	out.Write(payload)
	return out.Bytes()
}
