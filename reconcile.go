package iconmaker

import (
	"context"
	"fmt"
	"log/slog"
)

// Entry is one image of a ReconciledSet.
type Entry struct {
	Resolution Resolution
	Path       string
	Ref        string
}

// ReconciledSet keeps at most one image per resolution, in acceptance order.
type ReconciledSet struct {
	entries []Entry
	index   map[Resolution]int
}

// Add accepts e unless its resolution is already taken.
func (s *ReconciledSet) Add(e Entry) bool {
	if s.index == nil {
		s.index = make(map[Resolution]int)
	}
	if _, ok := s.index[e.Resolution]; ok {
		return false
	}
	s.index[e.Resolution] = len(s.entries)
	s.entries = append(s.entries, e)
	return true
}

func (s *ReconciledSet) Has(res Resolution) bool {
	_, ok := s.index[res]
	return ok
}

func (s *ReconciledSet) Len() int { return len(s.entries) }

// Entries returns a copy of the accepted images.
func (s *ReconciledSet) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

func (s *ReconciledSet) Paths() []string {
	paths := make([]string, len(s.entries))
	for i, e := range s.entries {
		paths[i] = e.Path
	}
	return paths
}

func (s *ReconciledSet) Resolutions() []Resolution {
	res := make([]Resolution, len(s.entries))
	for i, e := range s.entries {
		res[i] = e.Resolution
	}
	return res
}

// Reconciler decides which images go into a container and derives resized
// copies for the ones that do not fit.
type Reconciler struct {
	Images  ImageTool
	Logger  *slog.Logger
	scratch *scratchDir
}

// NewReconciler returns a Reconciler that writes derived images into dir.
func NewReconciler(images ImageTool, dir string, logger *slog.Logger) *Reconciler {
	return &Reconciler{Images: images, Logger: logger, scratch: &scratchDir{dir: dir}}
}

// Reconcile builds the final image set for f. Images that share a resolution
// collapse to the first one seen. Compliant images are accepted first, then
// square images that need a resize, then non-square ones, so a real rendering
// always wins a slot over a derived one. Images that cannot be fixed are
// dropped with a notice; an empty result is an error.
func (r *Reconciler) Reconcile(ctx context.Context, images []Image, f Format) (*ReconciledSet, []Notice, error) {
	rule, ok := f.rule()
	if !ok {
		return nil, nil, Wrap(KindConversion, "reconcile", f.String(), ErrUnknownFormat)
	}

	var (
		set       ReconciledSet
		notices   []Notice
		seen      = make(map[Resolution]bool)
		square    []Image
		nonSquare []Image
	)
	for _, img := range images {
		res := img.Resolution()
		if seen[res] {
			r.logger().Debug("duplicate resolution dropped", "ref", img.Ref, "resolution", res)
			continue
		}
		seen[res] = true

		switch {
		case rule.convertible(img.Width, img.Height):
			set.Add(Entry{Resolution: res, Path: img.Path, Ref: img.Ref})
		case img.Width == img.Height:
			square = append(square, img)
		default:
			nonSquare = append(nonSquare, img)
		}
	}

	for _, group := range [][]Image{square, nonSquare} {
		for _, img := range group {
			if err := ctx.Err(); err != nil {
				return nil, notices, Wrap(KindConversion, "reconcile", "cancelled", err)
			}
			if err := r.fix(ctx, &set, rule, img); err != nil {
				notices = append(notices, Notice{Ref: img.Ref, Stage: StateReconciling, Err: err})
			}
		}
	}

	if set.Len() == 0 {
		return nil, notices, &Error{
			Kind:    KindConversion,
			Op:      "reconcile",
			Message: fmt.Sprintf("nothing fits %s", f),
			Cause:   ErrNoUsableImage,
			Notices: notices,
		}
	}
	return &set, notices, nil
}

// fix derives a compliant copy of img and adds it to set. A fix whose target
// resolution is already taken is discarded before any file is produced.
func (r *Reconciler) fix(ctx context.Context, set *ReconciledSet, rule formatRule, img Image) error {
	steps, ok := rule.fix(img.Width, img.Height)
	if !ok {
		return New(KindImage, "reconcile", fmt.Sprintf("no %s fix for %s", rule.name, img.Resolution()))
	}
	final := steps[len(steps)-1].to
	if set.Has(final) {
		r.logger().Debug("fix discarded, resolution taken", "ref", img.Ref, "from", img.Resolution(), "to", final)
		return nil
	}

	src := img.Path
	for _, step := range steps {
		var err error
		switch step.op {
		case opPad:
			dst := r.scratch.path("pad", step.to)
			err = r.Images.Pad(ctx, src, dst, step.to)
			src = dst
		case opScale:
			dst := r.scratch.path("scale", step.to)
			err = r.Images.Scale(ctx, src, dst, step.to)
			src = dst
		}
		if err != nil {
			return Wrap(KindConversion, "reconcile", fmt.Sprintf("resize to %s", step.to), err)
		}
	}

	// The tool may round differently than requested, so trust the file.
	derived, err := inspect(img.Ref, src)
	if err != nil {
		return err
	}
	res := derived.Resolution()
	if !rule.convertible(res.Width, res.Height) {
		return New(KindConversion, "reconcile", fmt.Sprintf("resize produced %s, want %s", res, final))
	}
	if !set.Add(Entry{Resolution: res, Path: src, Ref: img.Ref}) {
		r.logger().Debug("fix discarded, resolution taken", "ref", img.Ref, "from", img.Resolution(), "to", res)
		return nil
	}
	r.logger().Debug("image resized", "ref", img.Ref, "from", img.Resolution(), "to", res)
	return nil
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
