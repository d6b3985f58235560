package iconmaker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode))
	return path
}

func TestLocator(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	conv := fakeBinary(t, dir, "iconmaker-test-convert", 0o755)
	fakeBinary(t, dir, "iconmaker-test-plain", 0o644)

	loc := NewLocator("", filepath.Join(dir, "nowhere"), dir)

	got, err := loc.Locate("iconmaker-test-convert")
	require.NoError(t, err)
	assert.Equal(t, conv, got)

	got, err = NewLocator(conv).Locate("iconmaker-test-convert")
	require.NoError(t, err, "exact file path in the fixed list")
	assert.Equal(t, conv, got)

	got, err = Locator{}.Locate(conv)
	require.NoError(t, err, "names with a separator are checked directly")
	assert.Equal(t, conv, got)

	_, err = loc.Locate("iconmaker-test-plain")
	require.Error(t, err, "non-executable files are skipped")
	assert.True(t, IsKind(err, KindValue))

	_, err = Locator{}.Locate(filepath.Join(dir, "iconmaker-test-plain"))
	assert.Error(t, err)

	_, err = loc.Locate("")
	assert.Error(t, err)
}

func TestLocatorFallsBackToPath(t *testing.T) {
	dir := t.TempDir()
	want := fakeBinary(t, dir, "iconmaker-test-onpath", 0o755)
	t.Setenv("PATH", dir)

	got, err := NewLocator("/definitely/not/here").Locate("iconmaker-test-onpath")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocateTools(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	conv := fakeBinary(t, dir, "iconmaker-test-im", 0o755)
	enc := fakeBinary(t, dir, "iconmaker-test-enc", 0o755)

	tools, err := LocateTools(
		ToolSpec{Name: "iconmaker-test-im", Paths: []string{dir}},
		ToolSpec{Name: "iconmaker-test-enc", Paths: []string{dir}},
		ToolSpec{},
	)
	require.NoError(t, err)
	assert.Equal(t, Tools{ImageTool: conv, Encoder: enc}, tools)

	tools, err = LocateTools(
		ToolSpec{Name: "iconmaker-test-im", Paths: []string{dir}},
		ToolSpec{Name: "iconmaker-test-missing-enc", Paths: []string{dir}},
		ToolSpec{Name: "iconmaker-test-missing-list", Paths: []string{dir}},
	)
	require.Error(t, err)
	assert.Equal(t, conv, tools.ImageTool)
	assert.Empty(t, tools.Encoder)
	assert.Contains(t, err.Error(), "iconmaker-test-missing-enc not found")
	assert.Contains(t, err.Error(), "iconmaker-test-missing-list not found")
}
