package iconmaker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// State is a step of a conversion.
type State int

const (
	StateStart State = iota
	StateResolving
	StateCoercing
	StateReconciling
	StateEncoding
	StateVerifying
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:       "START",
	StateResolving:   "RESOLVING",
	StateCoercing:    "COERCING",
	StateReconciling: "RECONCILING",
	StateEncoding:    "ENCODING",
	StateVerifying:   "VERIFYING",
	StateDone:        "DONE",
	StateFailed:      "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures a Converter. Zero values fall back to defaults.
type Options struct {
	Tools            Toolset
	Logger           *slog.Logger
	HTTPClient       *http.Client
	FetchTimeout     time.Duration
	FetchConcurrency int
	MaxFetchBytes    int64
	UserAgent        string
	// ScratchDir is the parent of the per-conversion scratch directories.
	// Empty means os.TempDir.
	ScratchDir string
}

// Converter turns image references into verified icon containers. It holds no
// per-conversion state and may be shared by concurrent callers.
type Converter struct {
	opts     Options
	logger   *slog.Logger
	resolver *Resolver
}

func NewConverter(opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := NewResolver(opts.FetchTimeout)
	if opts.HTTPClient != nil {
		resolver.Client = opts.HTTPClient
	}
	if opts.FetchConcurrency > 0 {
		resolver.Concurrency = opts.FetchConcurrency
	}
	if opts.MaxFetchBytes > 0 {
		resolver.MaxBytes = opts.MaxFetchBytes
	}
	if opts.UserAgent != "" {
		resolver.UserAgent = opts.UserAgent
	}
	resolver.Logger = logger

	return &Converter{opts: opts, logger: logger, resolver: resolver}
}

// Result describes a container written by Convert.
type Result struct {
	ID          string
	Path        string
	Format      Format
	Resolutions []Resolution
	Notices     []Notice
}

// conversion is the mutable state of one Convert call.
type conversion struct {
	state   State
	notices []Notice
	target  string
	written bool
	logger  *slog.Logger
}

func (c *conversion) enter(s State) {
	c.state = s
	c.logger.Debug("state", "state", s)
}

func (c *conversion) note(n ...Notice) {
	for _, x := range n {
		c.logger.Warn("notice", "ref", x.Ref, "stage", x.Stage, "error", x.Err)
	}
	c.notices = append(c.notices, n...)
}

// fail moves to FAILED and returns err carrying every notice so far. A target
// touched by the encoder is removed.
func (c *conversion) fail(err error) error {
	c.enter(StateFailed)
	if c.written {
		if rmErr := os.Remove(c.target); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.logger.Warn("remove failed target", "error", rmErr)
		}
	}

	e := Wrap(KindConversion, "convert", "conversion failed", err)
	out := *e
	out.Notices = c.notices
	c.logger.Error("conversion failed", "error", &out)
	return &out
}

// Convert converts refs into a container of format f at target. Per-reference
// problems are reported as notices in the Result; the call only fails when the
// input is unusable as a whole or the produced container does not verify.
func (c *Converter) Convert(ctx context.Context, refs []string, f Format, target string) (*Result, error) {
	if !f.Valid() {
		return nil, Wrap(KindConversion, "convert", fmt.Sprintf("format %s", f), ErrUnknownFormat)
	}
	if len(refs) == 0 {
		return nil, Wrap(KindValue, "convert", "nothing to convert", ErrEmptyImageList)
	}
	if target == "" {
		return nil, New(KindValue, "convert", "empty target path")
	}
	if c.opts.Tools.Images == nil {
		return nil, New(KindConversion, "convert", "no image tool configured")
	}
	builder := &Builder{Tools: c.opts.Tools}
	if err := builder.Check(f); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	conv := &conversion{
		state:  StateStart,
		target: target,
		logger: c.logger.With("conversion", id, "format", f.String(), "target", target),
	}
	conv.logger.Info("conversion started", "refs", len(refs))

	scratch, err := os.MkdirTemp(c.opts.ScratchDir, "iconmaker-*")
	if err != nil {
		return nil, conv.fail(Wrap(KindConversion, "convert", "create scratch dir", err))
	}
	defer os.RemoveAll(scratch)

	conv.enter(StateResolving)
	images, notices, err := c.resolver.Resolve(ctx, refs, scratch)
	conv.note(notices...)
	if err != nil {
		return nil, conv.fail(err)
	}
	if len(images) == 0 {
		return nil, conv.fail(noUsableImage("resolve", conv.notices))
	}

	conv.enter(StateCoercing)
	coercer := NewCoercer(c.opts.Tools.Images, scratch)
	coerced := make([]Image, 0, len(images))
	for _, img := range images {
		out, err := coercer.Coerce(ctx, img)
		if err != nil {
			conv.note(Notice{Ref: img.Ref, Stage: StateCoercing, Err: err})
			continue
		}
		coerced = append(coerced, out)
	}
	if len(coerced) == 0 {
		return nil, conv.fail(noUsableImage("coerce", conv.notices))
	}

	conv.enter(StateReconciling)
	reconciler := NewReconciler(c.opts.Tools.Images, scratch, conv.logger)
	set, notices, err := reconciler.Reconcile(ctx, coerced, f)
	conv.note(notices...)
	if err != nil {
		if errors.Is(err, ErrNoUsableImage) {
			return nil, conv.fail(noUsableImage("reconcile", conv.notices))
		}
		return nil, conv.fail(err)
	}

	conv.enter(StateEncoding)
	ran, encErr := builder.Build(ctx, set, f, target)
	if !ran {
		return nil, conv.fail(encErr)
	}
	conv.written = true
	if encErr != nil {
		conv.logger.Warn("encoder reported failure, checking output", "error", encErr)
	}

	conv.enter(StateVerifying)
	ok, err := Verify(f, target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, conv.fail(err)
	}
	if !ok {
		cause := ErrInvalidContainer
		if encErr != nil {
			cause = errors.Join(ErrInvalidContainer, encErr)
		}
		return nil, conv.fail(&Error{
			Kind:    KindConversion,
			Op:      "verify",
			Message: fmt.Sprintf("%s rejected", target),
			Cause:   cause,
		})
	}
	if encErr != nil {
		conv.note(Notice{Ref: target, Stage: StateEncoding, Err: encErr})
	}
	if f == ICNS && c.opts.Tools.Introspector != nil {
		if entries, err := c.opts.Tools.Introspector.List(ctx, target); err != nil {
			conv.note(Notice{Ref: target, Stage: StateVerifying, Err: err})
		} else {
			conv.logger.Debug("container listed", "entries", len(entries))
		}
	}

	conv.enter(StateDone)
	conv.logger.Info("conversion done", "entries", set.Len(), "notices", len(conv.notices))
	return &Result{
		ID:          id,
		Path:        target,
		Format:      f,
		Resolutions: set.Resolutions(),
		Notices:     conv.notices,
	}, nil
}

// Inspect lists the entries of an existing container. ICNS files are listed by
// the configured introspection tool when there is one.
func (c *Converter) Inspect(ctx context.Context, f Format, path string) ([]string, error) {
	if f == ICNS && c.opts.Tools.Introspector != nil {
		return c.opts.Tools.Introspector.List(ctx, path)
	}
	return Inspect(f, path)
}

// noUsableImage escalates to an image error when every dropped reference failed
// on its image data, and is a conversion error otherwise.
func noUsableImage(op string, notices []Notice) *Error {
	kind := KindConversion
	if len(notices) > 0 {
		kind = KindImage
		for _, n := range notices {
			if !IsKind(n.Err, KindImage) {
				kind = KindConversion
				break
			}
		}
	}
	return &Error{Kind: kind, Op: op, Message: "every image was dropped", Cause: ErrNoUsableImage}
}
