package iconmaker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ImageTool performs the pixel-level work the pipeline delegates: format conversion,
// resizing and ICO assembly. Implementations never modify src.
type ImageTool interface {
	ToPNG(ctx context.Context, src, dst string) error
	ToPNG32(ctx context.Context, src, dst string) error
	Scale(ctx context.Context, src, dst string, to Resolution) error
	Pad(ctx context.Context, src, dst string, to Resolution) error
	AssembleICO(ctx context.Context, images []string, target string) error
}

// Encoder writes an ICNS container from a list of PNG files.
type Encoder interface {
	EncodeICNS(ctx context.Context, target string, images []string) error
}

// Introspector lists the contents of a produced ICNS container.
type Introspector interface {
	List(ctx context.Context, path string) ([]string, error)
}

// Toolset bundles the collaborators of one Converter. Introspector may be nil.
type Toolset struct {
	Images       ImageTool
	Encoder      Encoder
	Introspector Introspector
}

// Runner executes an external program and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandRunner runs programs with os/exec, each call bounded by Timeout.
type CommandRunner struct {
	Timeout time.Duration
}

func (r CommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%s timed out after %s: %w", name, r.Timeout, ctx.Err())
	}
	if err != nil {
		return out, fmt.Errorf("%s failed: %w\nOutput: %s", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// ExecTools drives the external binaries: an ImageMagick-compatible image tool,
// a png2icns-compatible encoder and an icns2png-compatible introspector.
type ExecTools struct {
	ImageTool    string
	Encoder      string
	Introspector string
	Runner       Runner
}

// NewExecTools builds ExecTools from located binaries, running them with timeout.
func NewExecTools(tools Tools, timeout time.Duration) *ExecTools {
	return &ExecTools{
		ImageTool:    tools.ImageTool,
		Encoder:      tools.Encoder,
		Introspector: tools.Introspector,
		Runner:       CommandRunner{Timeout: timeout},
	}
}

// Toolset exposes t as every collaborator it has a binary for.
func (t *ExecTools) Toolset() Toolset {
	ts := Toolset{Images: t, Encoder: t}
	if t.Introspector != "" {
		ts.Introspector = t
	}
	return ts
}

// ToPNG converts the first frame of src only; multi-frame input would otherwise
// be written as numbered files beside dst.
func (t *ExecTools) ToPNG(ctx context.Context, src, dst string) error {
	return t.run(ctx, "to_png", t.ImageTool, src+"[0]", dst)
}

func (t *ExecTools) ToPNG32(ctx context.Context, src, dst string) error {
	return t.run(ctx, "to_png32", t.ImageTool, src, "png32:"+dst)
}

func (t *ExecTools) Scale(ctx context.Context, src, dst string, to Resolution) error {
	return t.run(ctx, "scale", t.ImageTool, src, "-resize", to.String(), dst)
}

func (t *ExecTools) Pad(ctx context.Context, src, dst string, to Resolution) error {
	return t.run(ctx, "pad", t.ImageTool, src,
		"-gravity", "center",
		"-background", "transparent",
		"-extent", to.String(),
		dst)
}

func (t *ExecTools) AssembleICO(ctx context.Context, images []string, target string) error {
	args := append(append([]string{}, images...), target)
	return t.run(ctx, "assemble_ico", t.ImageTool, args...)
}

func (t *ExecTools) EncodeICNS(ctx context.Context, target string, images []string) error {
	args := append([]string{target}, images...)
	return t.run(ctx, "encode_icns", t.Encoder, args...)
}

func (t *ExecTools) List(ctx context.Context, path string) ([]string, error) {
	if t.Introspector == "" {
		return nil, New(KindConversion, "list", "introspection tool not configured")
	}
	out, err := t.runner().Run(ctx, t.Introspector, "-l", path)
	if err != nil {
		return nil, Wrap(KindConversion, "list", "list container", err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func (t *ExecTools) run(ctx context.Context, op, bin string, args ...string) error {
	if bin == "" {
		return New(KindConversion, op, "tool not configured")
	}
	if _, err := t.runner().Run(ctx, bin, args...); err != nil {
		return Wrap(KindConversion, op, "external tool", err)
	}
	return nil
}

func (t *ExecTools) runner() Runner {
	if t.Runner == nil {
		return CommandRunner{}
	}
	return t.Runner
}
