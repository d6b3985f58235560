package iconmaker

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func opaque(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 200, A: 255})
		}
	}
	return img
}

// writePNGFile encodes img as PNG into a new file of dir named after pattern
// and returns the path.
func writePNGFile(t *testing.T, dir, pattern string, img image.Image) string {
	t.Helper()
	f, err := os.CreateTemp(dir, pattern)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return f.Name()
}

// rgbaPNG writes an opaque w x h truecolor PNG.
func rgbaPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	return writePNGFile(t, dir, fmt.Sprintf("%dx%d-*.png", w, h), opaque(w, h))
}

func grayPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return writePNGFile(t, dir, "gray-*.png", img)
}

func palettedPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9[:16])
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 16)
	}
	return writePNGFile(t, dir, "paletted-*.png", img)
}

func gifFile(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette.WebSafe)
	for i := range img.Pix {
		img.Pix[i] = uint8(i % len(palette.WebSafe))
	}
	f, err := os.CreateTemp(dir, "icon-*.gif")
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, img, nil))
	require.NoError(t, f.Close())
	return f.Name()
}

// mustInspect resolves a local file the way the pipeline does.
func mustInspect(t *testing.T, path string) Image {
	t.Helper()
	img, err := inspect(path, path)
	require.NoError(t, err)
	return img
}

// countingTool wraps NativeTools and records how often each operation ran.
type countingTool struct {
	NativeTools

	mu     sync.Mutex
	calls  map[string]int
	failOn map[string]bool
}

func newCountingTool(failOn ...string) *countingTool {
	c := &countingTool{calls: map[string]int{}, failOn: map[string]bool{}}
	for _, op := range failOn {
		c.failOn[op] = true
	}
	return c
}

func (c *countingTool) record(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	if c.failOn[op] {
		return New(KindConversion, op, "tool failed")
	}
	return nil
}

func (c *countingTool) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingTool) ToPNG(ctx context.Context, src, dst string) error {
	if err := c.record("to_png"); err != nil {
		return err
	}
	return c.NativeTools.ToPNG(ctx, src, dst)
}

func (c *countingTool) ToPNG32(ctx context.Context, src, dst string) error {
	if err := c.record("to_png32"); err != nil {
		return err
	}
	return c.NativeTools.ToPNG32(ctx, src, dst)
}

func (c *countingTool) Scale(ctx context.Context, src, dst string, to Resolution) error {
	if err := c.record("scale"); err != nil {
		return err
	}
	return c.NativeTools.Scale(ctx, src, dst, to)
}

func (c *countingTool) Pad(ctx context.Context, src, dst string, to Resolution) error {
	if err := c.record("pad"); err != nil {
		return err
	}
	return c.NativeTools.Pad(ctx, src, dst, to)
}

func (c *countingTool) AssembleICO(ctx context.Context, images []string, target string) error {
	if err := c.record("assemble_ico"); err != nil {
		return err
	}
	return c.NativeTools.AssembleICO(ctx, images, target)
}
