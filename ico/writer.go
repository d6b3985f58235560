package ico

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"io"
)

// ErrImageTooLarge is returned when the image dimensions exceed 256x256 pixels.
var ErrImageTooLarge = errors.New("ico: image dimensions must not exceed 256x256 pixels")

// MaxDimension is the largest width or height an ICO entry can declare.
const MaxDimension = 256

const direntrySize = 16

// Encode writes im as a single-entry ICO.
func Encode(w io.Writer, im image.Image) error {
	return EncodeAll(w, []image.Image{im})
}

// EncodeAll writes every image as a PNG-compressed entry of one ICO container,
// keeping the given order in the directory.
func EncodeAll(w io.Writer, images []image.Image) error {
	if len(images) == 0 {
		return ErrNoImages
	}
	if len(images) > 0xFFFF {
		return errors.New("ico: too many images")
	}

	payloads := make([][]byte, len(images))
	entries := make([]direntry, len(images))
	offset := uint32(HeaderSize + direntrySize*len(images))

	for i, im := range images {
		b := im.Bounds()
		if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
			return ErrImageTooLarge
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, im); err != nil {
			return err
		}
		payloads[i] = buf.Bytes()

		// 256 wraps to 0, which is how the format spells it
		entries[i] = direntry{
			Width:  uint8(b.Dx()),
			Height: uint8(b.Dy()),
			Plane:  1,
			Bits:   32,
			Size:   uint32(buf.Len()),
			Offset: offset,
		}
		offset += uint32(buf.Len())
	}

	var bb bytes.Buffer
	header := Header{Reserved: 0, Type: 1, Count: uint16(len(images))}
	if err := binary.Write(&bb, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(&bb, binary.LittleEndian, entries); err != nil {
		return err
	}
	if _, err := w.Write(bb.Bytes()); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}
