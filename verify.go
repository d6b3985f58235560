package iconmaker

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iconfinder/iconmaker/ico"
)

const (
	icnsMagic      = "icns"
	icnsHeaderSize = 8
)

// icnsSlots maps ICNS element types to the edge length they store.
var icnsSlots = map[string]int{
	"is32": 16, "icp4": 16,
	"il32": 32, "icp5": 32, "ic11": 32,
	"ih32": 48,
	"icp6": 64, "ic12": 64,
	"it32": 128, "ic07": 128,
	"ic08": 256, "ic13": 256,
	"ic09": 512, "ic14": 512,
	"ic10": 1024,
}

// Verify reads the signature at the start of path and reports whether it is a
// well-formed header for f. A file shorter than the header is invalid, not an error.
func Verify(f Format, path string) (bool, error) {
	r, ok := f.rule()
	if !ok {
		return false, Wrap(KindConversion, "verify", f.String(), ErrUnknownFormat)
	}

	file, err := os.Open(path)
	if err != nil {
		return false, Wrap(KindConversion, "verify", "open container", err)
	}
	defer file.Close()

	header := make([]byte, r.headerLen)
	if _, err := io.ReadFull(file, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, Wrap(KindConversion, "verify", "read header", err)
	}
	return r.validHeader(header), nil
}

// Inspect lists the entries of the container at path, one line per entry.
func Inspect(f Format, path string) ([]string, error) {
	r, ok := f.rule()
	if !ok {
		return nil, Wrap(KindConversion, "inspect", f.String(), ErrUnknownFormat)
	}
	return r.list(path)
}

// listICO describes every directory entry after checking that each one decodes.
func listICO(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(KindConversion, "inspect", "read container", err)
	}

	_, entries, err := ico.ReadDir(bytes.NewReader(data))
	if err != nil {
		return nil, Wrap(KindConversion, "inspect", "read directory", err)
	}
	if _, err := ico.DecodeAll(bytes.NewReader(data)); err != nil {
		return nil, Wrap(KindConversion, "inspect", "decode entries", errors.Join(ErrInvalidContainer, err))
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := "bmp"
		if e.PNG {
			kind = "png"
		}
		lines = append(lines, fmt.Sprintf("%dx%d %d-bit %s (%d bytes)", e.Width, e.Height, e.Bits, kind, e.Size))
	}
	return lines, nil
}

// listICNS walks the top-level element table: a 4-byte type followed by a
// big-endian length that includes the 8-byte element header.
func listICNS(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Wrap(KindConversion, "inspect", "open container", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	head := make([]byte, icnsHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, Wrap(KindConversion, "inspect", "read header", err)
	}
	if !validICNSHeader(head) {
		return nil, Wrap(KindConversion, "inspect", "bad signature", ErrInvalidContainer)
	}
	total := int64(binary.BigEndian.Uint32(head[4:]))

	var lines []string
	for offset := int64(icnsHeaderSize); offset < total; {
		if _, err := io.ReadFull(r, head); err != nil {
			return nil, Wrap(KindConversion, "inspect", fmt.Sprintf("element at %d", offset), err)
		}
		typ := string(head[:4])
		size := int64(binary.BigEndian.Uint32(head[4:]))
		if size < icnsHeaderSize || offset+size > total {
			return nil, Wrap(KindConversion, "inspect",
				fmt.Sprintf("element %q at %d declares %d bytes", typ, offset, size), ErrInvalidContainer)
		}
		if _, err := io.CopyN(io.Discard, r, size-icnsHeaderSize); err != nil {
			return nil, Wrap(KindConversion, "inspect", fmt.Sprintf("element %q", typ), err)
		}

		if edge, ok := icnsSlots[typ]; ok {
			lines = append(lines, fmt.Sprintf("%s %dx%d (%d bytes)", typ, edge, edge, size-icnsHeaderSize))
		} else {
			lines = append(lines, fmt.Sprintf("%s (%d bytes)", typ, size-icnsHeaderSize))
		}
		offset += size
	}
	return lines, nil
}
