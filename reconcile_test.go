package iconmaker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconcile(t *testing.T, tool ImageTool, f Format, images ...Image) (*ReconciledSet, []Notice, error) {
	t.Helper()
	return NewReconciler(tool, t.TempDir(), nil).Reconcile(context.Background(), images, f)
}

func TestReconcileScalesToNearestICNSSize(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	set, notices, err := reconcile(t, newCountingTool(), ICNS, mustInspect(t, rgbaPNG(t, dir, 300, 300)))
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, []Resolution{{256, 256}}, set.Resolutions())
	assert.False(t, set.Has(Resolution{300, 300}))
	assert.Equal(t, Resolution{256, 256}, mustInspect(t, set.Paths()[0]).Resolution())
}

func TestReconcilePaddedDuplicateDiscarded(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tool := newCountingTool()

	wide := mustInspect(t, rgbaPNG(t, dir, 64, 48))
	square := mustInspect(t, rgbaPNG(t, dir, 64, 64))

	set, notices, err := reconcile(t, tool, ICNS, wide, square)
	require.NoError(t, err)
	assert.Empty(t, notices)

	// 64 is not an ICNS size: the square image is scaled to 48, and the padded
	// 64x48 image, which would land on 48 too, is dropped before any resize.
	require.Equal(t, 1, set.Len())
	entry := set.Entries()[0]
	assert.Equal(t, Resolution{48, 48}, entry.Resolution)
	assert.Equal(t, square.Ref, entry.Ref)
	assert.Equal(t, 1, tool.count("scale"))
	assert.Zero(t, tool.count("pad"))
}

func TestReconcilePadsNonSquare(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tool := newCountingTool()

	set, _, err := reconcile(t, tool, ICNS, mustInspect(t, rgbaPNG(t, dir, 128, 100)))
	require.NoError(t, err)
	assert.Equal(t, []Resolution{{128, 128}}, set.Resolutions())
	assert.Equal(t, 1, tool.count("pad"))
	assert.Zero(t, tool.count("scale"))
}

func TestReconcileDeduplicates(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	first := mustInspect(t, rgbaPNG(t, dir, 32, 32))
	second := mustInspect(t, rgbaPNG(t, dir, 32, 32))

	for _, f := range []Format{ICO, ICNS} {
		set, notices, err := reconcile(t, newCountingTool(), f, first, second)
		require.NoError(t, err)
		assert.Empty(t, notices)
		require.Equal(t, 1, set.Len())
		assert.Equal(t, first.Path, set.Paths()[0], "first seen wins")
	}
}

func TestReconcileCompliantBeforeFixed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tool := newCountingTool()

	big := mustInspect(t, rgbaPNG(t, dir, 512, 512))
	exact := mustInspect(t, rgbaPNG(t, dir, 256, 256))

	set, _, err := reconcile(t, tool, ICO, big, exact)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, exact.Path, set.Paths()[0])
	assert.Zero(t, tool.count("scale"), "a fix landing on a taken resolution is never produced")
}

func TestReconcileICODownscale(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	set, _, err := reconcile(t, newCountingTool(), ICO,
		mustInspect(t, rgbaPNG(t, dir, 16, 16)),
		mustInspect(t, rgbaPNG(t, dir, 1024, 512)),
		mustInspect(t, rgbaPNG(t, dir, 200, 40)),
	)
	require.NoError(t, err)
	assert.Equal(t, []Resolution{{16, 16}, {200, 40}, {256, 128}}, set.Resolutions())
}

func TestReconcileDropsFailures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	ok := mustInspect(t, rgbaPNG(t, dir, 16, 16))
	big := mustInspect(t, rgbaPNG(t, dir, 300, 300))

	set, notices, err := reconcile(t, newCountingTool("scale"), ICNS, ok, big)
	require.NoError(t, err)
	assert.Equal(t, []Resolution{{16, 16}}, set.Resolutions())
	require.Len(t, notices, 1)
	assert.Equal(t, big.Ref, notices[0].Ref)
	assert.Equal(t, StateReconciling, notices[0].Stage)
	assert.True(t, IsKind(notices[0].Err, KindConversion))

	set, notices, err = reconcile(t, newCountingTool("scale"), ICNS, big)
	require.Error(t, err)
	assert.Nil(t, set)
	assert.ErrorIs(t, err, ErrNoUsableImage)
	assert.Len(t, notices, 1)

	_, _, err = reconcile(t, newCountingTool(), Format(0), ok)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

// Every accepted entry fits the target and no resolution repeats.
func TestReconcileEntriesAlwaysConvertible(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	sizes := [][2]int{
		{16, 16}, {20, 20}, {33, 17}, {48, 48}, {64, 64}, {100, 300},
		{128, 128}, {260, 260}, {300, 10}, {600, 600}, {1024, 1024},
	}
	var images []Image
	for _, s := range sizes {
		images = append(images, mustInspect(t, rgbaPNG(t, dir, s[0], s[1])))
	}

	for _, f := range []Format{ICO, ICNS} {
		t.Run(f.String(), func(t *testing.T) {
			set, _, err := reconcile(t, NativeTools{}, f, images...)
			require.NoError(t, err)

			seen := map[Resolution]bool{}
			for _, e := range set.Entries() {
				assert.True(t, IsSizeConvertible(e.Resolution.Width, e.Resolution.Height, f),
					fmt.Sprintf("%s in %s set", e.Resolution, f))
				assert.False(t, seen[e.Resolution], "duplicate %s", e.Resolution)
				seen[e.Resolution] = true
				assert.Equal(t, e.Resolution, mustInspect(t, e.Path).Resolution())
			}
		})
	}
}
