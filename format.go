package iconmaker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/iconfinder/iconmaker/ico"
)

// Format is a target icon container.
type Format int

const (
	ICO Format = iota + 1
	ICNS
)

// ICNSSizes are the square edge lengths an ICNS container accepts, ascending.
var ICNSSizes = []int{16, 32, 48, 128, 256, 512, 1024}

type stepOp int

const (
	opScale stepOp = iota + 1
	opPad
)

// fixStep is one resize the reconciler applies to bring an image into the size class.
type fixStep struct {
	op stepOp
	to Resolution
}

// formatRule is the single row of per-format behaviour.
type formatRule struct {
	name      string
	ext       string
	mime      string
	headerLen int

	convertible func(w, h int) bool
	fix         func(w, h int) ([]fixStep, bool)
	validHeader func(header []byte) bool
	list        func(path string) ([]string, error)
	encode      func(ctx context.Context, t Toolset, images []string, target string) error
}

var formatRules = map[Format]formatRule{
	ICO: {
		name:        "ico",
		ext:         ".ico",
		mime:        "image/x-icon",
		headerLen:   ico.HeaderSize,
		convertible: icoConvertible,
		fix:         icoFix,
		validHeader: validICOHeader,
		list:        listICO,
		encode: func(ctx context.Context, t Toolset, images []string, target string) error {
			return t.Images.AssembleICO(ctx, images, target)
		},
	},
	ICNS: {
		name:        "icns",
		ext:         ".icns",
		mime:        "image/icns",
		headerLen:   icnsHeaderSize,
		convertible: icnsConvertible,
		fix:         icnsFix,
		validHeader: validICNSHeader,
		list:        listICNS,
		encode: func(ctx context.Context, t Toolset, images []string, target string) error {
			return t.Encoder.EncodeICNS(ctx, target, images)
		},
	},
}

// ParseFormat maps "ico", "ICNS" or ".ico" to a Format.
func ParseFormat(s string) (Format, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	for f, r := range formatRules {
		if r.name == name {
			return f, nil
		}
	}
	return 0, Wrap(KindConversion, "parse_format", fmt.Sprintf("format %q", s), ErrUnknownFormat)
}

func (f Format) rule() (formatRule, bool) {
	r, ok := formatRules[f]
	return r, ok
}

// Valid reports whether f is one of the known containers.
func (f Format) Valid() bool {
	_, ok := formatRules[f]
	return ok
}

func (f Format) String() string {
	if r, ok := f.rule(); ok {
		return r.name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	r, _ := f.rule()
	return r.ext
}

// MIMEType returns the media type of the container.
func (f Format) MIMEType() string {
	r, _ := f.rule()
	return r.mime
}

// IsSizeConvertible reports whether an image of w x h can go into the container unchanged.
func IsSizeConvertible(w, h int, f Format) bool {
	r, ok := f.rule()
	return ok && r.convertible(w, h)
}

func icoConvertible(w, h int) bool {
	return w >= 1 && w <= ico.MaxDimension && h >= 1 && h <= ico.MaxDimension
}

func icnsConvertible(w, h int) bool {
	return w == h && isICNSSize(w)
}

func isICNSSize(n int) bool {
	for _, s := range ICNSSizes {
		if s == n {
			return true
		}
	}
	return false
}

// NearestICNSSize returns the supported size closest to n. Ties go to the smaller size.
func NearestICNSSize(n int) int {
	best := ICNSSizes[0]
	for _, s := range ICNSSizes[1:] {
		if abs(s-n) < abs(best-n) {
			best = s
		}
	}
	return best
}

// icnsFix pads non-square images to a centered square, then scales squares that are
// not a supported size to the nearest one.
func icnsFix(w, h int) ([]fixStep, bool) {
	if w < 1 || h < 1 {
		return nil, false
	}
	var steps []fixStep
	side := w
	if w != h {
		side = max(w, h)
		steps = append(steps, fixStep{op: opPad, to: Resolution{side, side}})
	}
	if !isICNSSize(side) {
		n := NearestICNSSize(side)
		steps = append(steps, fixStep{op: opScale, to: Resolution{n, n}})
	}
	return steps, len(steps) > 0
}

// icoFix downscales oversize images by an integer ratio of the longer side to 256,
// falling back to an exact proportional fit when the integer ratio is not enough.
func icoFix(w, h int) ([]fixStep, bool) {
	if w < 1 || h < 1 {
		return nil, false
	}
	longest := max(w, h)
	if longest <= ico.MaxDimension {
		return nil, false
	}

	ratio := longest / ico.MaxDimension
	nw, nh := w/ratio, h/ratio
	if nw > ico.MaxDimension || nh > ico.MaxDimension {
		nw = w * ico.MaxDimension / longest
		nh = h * ico.MaxDimension / longest
	}
	return []fixStep{{op: opScale, to: Resolution{max(nw, 1), max(nh, 1)}}}, true
}

func validICOHeader(header []byte) bool {
	if len(header) != ico.HeaderSize {
		return false
	}
	h, err := ico.ReadHeader(bytes.NewReader(header))
	return err == nil && h.Valid()
}

func validICNSHeader(header []byte) bool {
	if len(header) != icnsHeaderSize {
		return false
	}
	// a length of just the header means no elements
	return string(header[:4]) == icnsMagic && binary.BigEndian.Uint32(header[4:8]) > icnsHeaderSize
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
