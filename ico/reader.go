// Package ico reads and writes Windows ICO icon containers.
package ico

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	bmp "github.com/jsummers/gobmp"
)

const maxFileSize = int64(64 << 20) // hard cap on the bytes read from one file

// HeaderSize is the size of the ICONDIR header in bytes.
const HeaderSize = 6

// ErrNoImages is returned when a container declares zero entries.
var ErrNoImages = errors.New("ico: no images")

func init() {
	image.RegisterFormat("ico", "\x00\x00\x01\x00?????\x00", Decode, DecodeConfig)
}

// Header is the ICONDIR structure at the start of every ICO file.
type Header struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

// Valid reports whether the header declares an icon resource with at least one entry.
func (h Header) Valid() bool {
	return h.Reserved == 0 && h.Type == 1 && h.Count > 0
}

// Entry describes one image slot of the directory.
type Entry struct {
	Width  int // 256 when the stored byte is 0
	Height int
	Bits   int
	Size   int
	Offset int
	PNG    bool // payload is a PNG stream rather than a headerless BMP
}

type direntry struct {
	Width   byte
	Height  byte
	Palette byte
	_       byte
	Plane   uint16
	Bits    uint16
	Size    uint32
	Offset  uint32
}

func (e direntry) dims() (int, int) {
	w, h := int(e.Width), int(e.Height)
	if w == 0 {
		w = 256
	}
	if h == 0 {
		h = 256
	}
	return w, h
}

// ReadHeader reads and validates the ICONDIR header.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, err
	}
	if h.Reserved != 0 || h.Type != 1 {
		return h, fmt.Errorf("ico: corrupted head: [%x,%x]", h.Reserved, h.Type)
	}
	if h.Count == 0 {
		return h, ErrNoImages
	}
	return h, nil
}

// ReadDir parses the header and directory of an ICO file and describes every entry.
func ReadDir(r io.Reader) (Header, []Entry, error) {
	file, err := readAll(r)
	if err != nil {
		return Header{}, nil, err
	}
	c, err := parse(file)
	if err != nil {
		return c.head, nil, err
	}

	entries := make([]Entry, len(c.dir))
	for i, d := range c.dir {
		w, h := d.dims()
		data, err := c.payload(i)
		if err != nil {
			return c.head, nil, err
		}
		entries[i] = Entry{
			Width:  w,
			Height: h,
			Bits:   int(d.Bits),
			Size:   int(d.Size),
			Offset: int(d.Offset),
			PNG:    isPNG(data),
		}
	}
	return c.head, entries, nil
}

// Decode returns the first image of the container.
func Decode(r io.Reader) (image.Image, error) {
	images, err := DecodeAll(r)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images[0], nil
}

// DecodeAll decodes every entry in directory order.
func DecodeAll(r io.Reader) ([]image.Image, error) {
	file, err := readAll(r)
	if err != nil {
		return nil, err
	}
	c, err := parse(file)
	if err != nil {
		return nil, err
	}

	images := make([]image.Image, len(c.dir))
	for i := range c.dir {
		if images[i], err = c.decodeEntry(i); err != nil {
			return nil, err
		}
	}
	return images, nil
}

// DecodeConfig returns the dimensions and color model of the first entry.
func DecodeConfig(r io.Reader) (image.Config, error) {
	file, err := readAll(r)
	if err != nil {
		return image.Config{}, err
	}
	c, err := parse(file)
	if err != nil {
		return image.Config{}, err
	}

	data, err := c.payload(0)
	if err != nil {
		return image.Config{}, err
	}
	if isPNG(data) {
		return png.DecodeConfig(bytes.NewReader(data))
	}

	buf := make([]byte, 14+len(data))
	copy(buf[14:], data)
	_, n, err := forgeBMPHead(buf, &c.dir[0])
	if err != nil {
		return image.Config{}, err
	}
	return bmp.DecodeConfig(bytes.NewReader(buf[:n]))
}

type container struct {
	file []byte
	head Header
	dir  []direntry
}

func readAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxFileSize {
		return nil, fmt.Errorf("ico: file too large")
	}
	return b, nil
}

func parse(file []byte) (*container, error) {
	c := &container{file: file}
	br := bytes.NewReader(file)

	var err error
	if c.head, err = ReadHeader(br); err != nil {
		return c, err
	}
	c.dir = make([]direntry, c.head.Count)
	for i := range c.dir {
		if err := binary.Read(br, binary.LittleEndian, &c.dir[i]); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (c *container) payload(i int) ([]byte, error) {
	e := c.dir[i]
	start := int64(e.Offset)
	size := int64(e.Size)
	if size <= 0 {
		return nil, fmt.Errorf("ico: corrupted entry (size=%d)", e.Size)
	}
	end := start + size
	if end > int64(len(c.file)) {
		return nil, io.ErrUnexpectedEOF
	}
	return c.file[start:end], nil
}

func (c *container) decodeEntry(i int) (image.Image, error) {
	data, err := c.payload(i)
	if err != nil {
		return nil, err
	}
	if isPNG(data) {
		return png.Decode(bytes.NewReader(data))
	}

	// headerless BMP: prepend room for a BITMAPFILEHEADER
	buf := make([]byte, 14+len(data))
	copy(buf[14:], data)

	mask, n, err := forgeBMPHead(buf, &c.dir[i])
	if err != nil {
		return nil, err
	}
	src, err := bmp.Decode(bytes.NewReader(buf[:n]))
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return src, nil
	}

	alpha := image.NewAlpha(image.Rect(0, 0, w, h))
	if mask != nil {
		if err := applyANDMask(alpha, mask, w, h); err != nil {
			return nil, err
		}
	} else if err := applyAlphaChannel(alpha, buf[:n], w, h); err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.DrawMask(out, out.Bounds(), src, b.Min, alpha, b.Min, draw.Src)
	return out, nil
}

// applyANDMask turns the 1-bit transparency mask of paletted and 24-bit entries into alpha.
func applyANDMask(alpha *image.Alpha, mask []byte, w, h int) error {
	stride := (w + 31) / 32 * 4
	if stride*h > len(mask) {
		return fmt.Errorf("ico: corrupted mask data")
	}
	for row := 0; row < h; row++ {
		line := mask[row*stride:]
		for col := 0; col < w; col++ {
			if (line[col/8]>>(7-uint(col)%8))&0x01 != 1 {
				alpha.SetAlpha(col, h-row-1, color.Alpha{A: 255})
			}
		}
	}
	return nil
}

// applyAlphaChannel copies the fourth byte of 32-bit BGRA pixels into alpha.
func applyAlphaChannel(alpha *image.Alpha, data []byte, w, h int) error {
	if len(data) < 14 {
		return fmt.Errorf("ico: corrupted bmp data")
	}
	stride := (w*32 + 31) / 32 * 4
	offset := int(binary.LittleEndian.Uint32(data[10:14]))
	if offset+stride*h > len(data) {
		return fmt.Errorf("ico: corrupted bmp alpha data")
	}
	for row := 0; row < h; row++ {
		line := data[offset+row*stride:]
		for col := 0; col < w; col++ {
			alpha.SetAlpha(col, h-row-1, color.Alpha{A: line[col*4+3]})
		}
	}
	return nil
}

// dibInfo is the part of a DIB header the BMP decoder needs patched or sized.
type dibInfo struct {
	hdrSize   uint32
	w, h      uint32
	bits      uint16
	numColors uint32
	core      bool // 12-byte BITMAPCOREHEADER with 16-bit dimensions
}

func readDIBInfo(dib []byte) (dibInfo, error) {
	if len(dib) < 4 {
		return dibInfo{}, io.ErrUnexpectedEOF
	}
	d := dibInfo{hdrSize: binary.LittleEndian.Uint32(dib)}
	switch {
	case d.hdrSize < 12:
		return d, fmt.Errorf("ico: corrupted DIB header size (%d)", d.hdrSize)
	case len(dib) < int(d.hdrSize):
		return d, io.ErrUnexpectedEOF
	case d.hdrSize == 12:
		d.core = true
		d.w = uint32(binary.LittleEndian.Uint16(dib[4:]))
		d.h = uint32(binary.LittleEndian.Uint16(dib[6:]))
		d.bits = binary.LittleEndian.Uint16(dib[10:])
		return d, nil
	case len(dib) < 16:
		return d, io.ErrUnexpectedEOF
	}
	d.w = binary.LittleEndian.Uint32(dib[4:])
	d.h = binary.LittleEndian.Uint32(dib[8:])
	d.bits = binary.LittleEndian.Uint16(dib[14:])
	if len(dib) >= 36 {
		d.numColors = binary.LittleEndian.Uint32(dib[32:])
	}
	return d, nil
}

// setHeight rewrites the stored height. Icon DIBs carry XOR and AND rows
// together, so the stored value is usually twice the image height.
func (d *dibInfo) setHeight(dib []byte, h uint32) error {
	if d.core {
		if h > 0xFFFF {
			return fmt.Errorf("ico: corrupted bmp height (%d)", h)
		}
		binary.LittleEndian.PutUint16(dib[6:], uint16(h))
	} else {
		binary.LittleEndian.PutUint32(dib[8:], h)
	}
	d.h = h
	return nil
}

// paletteBytes is the size of the color table following the header.
func (d dibInfo) paletteBytes() uint32 {
	var n uint32
	switch d.bits {
	case 1, 2, 4, 8:
		n = uint32(1) << d.bits
		if d.numColors != 0 && d.numColors < n {
			n = d.numColors
		}
	}
	if d.core || d.hdrSize == 64 {
		return n * 3
	}
	return n * 4
}

// forgeBMPHead writes a BITMAPFILEHEADER into buf[:14] for the DIB stored after
// it and returns the AND mask of entries below 32 bits, if any.
// See en.wikipedia.org/wiki/BMP_file_format
func forgeBMPHead(buf []byte, e *direntry) (mask []byte, bmpSize int, err error) {
	if len(buf) < 14 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	dib := buf[14:]
	d, err := readDIBInfo(dib)
	if err != nil {
		return nil, 0, err
	}

	_, entryH := e.dims()
	if half := d.h / 2; d.h%2 == 0 && (half == uint32(entryH) || half == d.w || d.h > d.w) {
		if err := d.setHeight(dib, half); err != nil {
			return nil, 0, err
		}
	}

	pixels := len(dib)
	if d.bits != 32 {
		if d.w == 0 || d.h == 0 {
			return nil, 0, fmt.Errorf("ico: corrupted bmp dimensions")
		}
		maskSize := int64(d.w+31) / 32 * 4 * int64(d.h)
		if maskSize >= int64(pixels) {
			return nil, 0, fmt.Errorf("ico: corrupted bmp mask size")
		}
		pixels -= int(maskSize)
		mask = dib[pixels:]
	}
	bmpSize = 14 + pixels

	offset := 14 + d.hdrSize + d.paletteBytes()
	if hs := int(d.hdrSize); hs > 40 && hs-4 <= len(dib) {
		offset += binary.LittleEndian.Uint32(dib[hs-8:])
	}
	if offset >= uint32(bmpSize) {
		return nil, 0, fmt.Errorf("ico: corrupted bmp data offset")
	}

	copy(buf, "BM")
	binary.LittleEndian.PutUint32(buf[2:], uint32(bmpSize))
	binary.LittleEndian.PutUint32(buf[10:], offset)
	return mask, bmpSize, nil
}

func isPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngHeader)
}

var pngHeader = []byte{'\x89', 'P', 'N', 'G', '\r', '\n', '\x1a', '\n'}
