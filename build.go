package iconmaker

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

// Builder hands a reconciled set to the encoder of the target format.
type Builder struct {
	Tools Toolset
}

// Check reports whether the toolset has the collaborator f is encoded with.
func (b *Builder) Check(f Format) error {
	if _, ok := f.rule(); !ok {
		return Wrap(KindConversion, "build", f.String(), ErrUnknownFormat)
	}
	switch {
	case f == ICO && b.Tools.Images == nil:
		return New(KindConversion, "build", "no image tool configured")
	case f == ICNS && b.Tools.Encoder == nil:
		return New(KindConversion, "build", "no icns encoder configured")
	}
	return nil
}

// Build writes the container for set to target, replacing any file already there.
// ran is false when Build stopped before the encoder was started; target is then
// untouched. Otherwise the error only reports what the encoder said, and whether
// the container is usable is decided by Verify.
func (b *Builder) Build(ctx context.Context, set *ReconciledSet, f Format, target string) (ran bool, err error) {
	if err := b.Check(f); err != nil {
		return false, err
	}
	if set == nil || set.Len() == 0 {
		return false, Wrap(KindConversion, "build", "empty image set", ErrNoUsableImage)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, Wrap(KindConversion, "build", "remove existing target", err)
	}

	rule, _ := f.rule()
	return true, rule.encode(ctx, b.Tools, set.Paths(), target)
}
