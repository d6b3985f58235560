// iconmaker - bundle PNG and GIF renderings into ICO or ICNS icons
//
// Usage:
//
//	iconmaker convert -format ico|icns [-o <file>] [-config <file>] <image>...
//	iconmaker verify -format ico|icns <file>
//	iconmaker inspect -format ico|icns [-config <file>] <file>
//	iconmaker tools [-config <file>]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"

	"github.com/iconfinder/iconmaker"
	"github.com/iconfinder/iconmaker/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(ctx, os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "inspect":
		err = runInspect(ctx, os.Args[2:])
	case "tools":
		err = runTools(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)

	var (
		formatName string
		output     string
		configPath string
	)
	fs.StringVar(&formatName, "format", "", "Target format: ico, icns")
	fs.StringVar(&output, "o", "", "Output file path (default: first image name with the format extension)")
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := iconmaker.ParseFormat(formatName)
	if err != nil {
		return err
	}
	refs := fs.Args()
	if len(refs) == 0 {
		return fmt.Errorf("at least one image is required")
	}
	if output == "" {
		output = defaultOutput(refs[0], format)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	tools, err := newToolset(cfg, logger)
	if err != nil {
		return err
	}

	conv := iconmaker.NewConverter(iconmaker.Options{
		Tools:            tools,
		Logger:           logger,
		FetchTimeout:     cfg.Fetch.Timeout,
		FetchConcurrency: cfg.Fetch.Concurrency,
		MaxFetchBytes:    cfg.Fetch.MaxBytes,
		UserAgent:        cfg.Fetch.UserAgent,
		ScratchDir:       cfg.ScratchDir,
	})

	res, err := conv.Convert(ctx, refs, format, output)
	if err != nil {
		var e *iconmaker.Error
		if errors.As(err, &e) {
			printNotices(e.Notices)
		}
		return err
	}
	printNotices(res.Notices)

	sizes := make([]string, len(res.Resolutions))
	for i, r := range res.Resolutions {
		sizes[i] = r.String()
	}
	fmt.Printf("Successfully created: %s (%s)\n", res.Path, strings.Join(sizes, ", "))
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	formatName := fs.String("format", "", "Container format: ico, icns")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one file is required")
	}

	format, err := iconmaker.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	ok, err := iconmaker.Verify(format, fs.Arg(0))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not a valid %s file", fs.Arg(0), format)
	}
	fmt.Printf("%s: valid %s\n", fs.Arg(0), format)
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	formatName := fs.String("format", "", "Container format: ico, icns")
	configPath := fs.String("config", "", "Path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one file is required")
	}

	format, err := iconmaker.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	tools, err := newToolset(cfg, logger)
	if err != nil {
		return err
	}

	lines, err := iconmaker.NewConverter(iconmaker.Options{Tools: tools, Logger: logger}).Inspect(ctx, format, fs.Arg(0))
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func runTools(args []string) error {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	found, locateErr := locate(cfg)

	show := func(role string, spec config.ToolConfig, loc string) {
		if loc == "" {
			loc = "not found"
		}
		fmt.Printf("%-13s %-10s %s\n", role, spec.Name, loc)
	}
	show("image tool", cfg.Tools.ImageTool, found.ImageTool)
	show("encoder", cfg.Tools.Encoder, found.Encoder)
	show("introspector", cfg.Tools.Introspector, found.Introspector)
	fmt.Printf("backend       %s\n", selectBackend(cfg.Backend, found))

	if cfg.Backend == config.BackendExec && locateErr != nil {
		return locateErr
	}
	return nil
}

// newToolset picks the collaborators for cfg.Backend. The auto backend uses the
// external tools when both the image tool and the encoder are installed.
func newToolset(cfg *config.Config, logger *slog.Logger) (iconmaker.Toolset, error) {
	if cfg.Backend == config.BackendNative {
		return iconmaker.NativeTools{}.Toolset(), nil
	}

	found, err := locate(cfg)
	switch selectBackend(cfg.Backend, found) {
	case config.BackendExec:
		if cfg.Backend == config.BackendExec && (found.ImageTool == "" || found.Encoder == "") {
			return iconmaker.Toolset{}, fmt.Errorf("exec backend: %w", err)
		}
		logger.Debug("using external tools", "image_tool", found.ImageTool, "encoder", found.Encoder,
			"introspector", found.Introspector)
		return iconmaker.NewExecTools(found, cfg.Tools.Timeout).Toolset(), nil
	default:
		logger.Debug("external tools unavailable, using native backend", "error", err)
		return iconmaker.NativeTools{}.Toolset(), nil
	}
}

func locate(cfg *config.Config) (iconmaker.Tools, error) {
	spec := func(t config.ToolConfig) iconmaker.ToolSpec {
		return iconmaker.ToolSpec{Name: t.Name, Paths: t.Paths}
	}
	return iconmaker.LocateTools(spec(cfg.Tools.ImageTool), spec(cfg.Tools.Encoder), spec(cfg.Tools.Introspector))
}

func selectBackend(backend string, found iconmaker.Tools) string {
	switch backend {
	case config.BackendExec, config.BackendNative:
		return backend
	}
	if found.ImageTool != "" && found.Encoder != "" {
		return config.BackendExec
	}
	return config.BackendNative
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// defaultOutput names the container after the first reference, in the working
// directory.
func defaultOutput(ref string, format iconmaker.Format) string {
	name := filepath.Base(ref)
	if iconmaker.IsRemote(ref) {
		name = "icon"
		if u, err := url.Parse(ref); err == nil && strings.Trim(u.Path, "/") != "" {
			name = path.Base(u.Path)
		}
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "" || name == "." {
		name = "icon"
	}
	return name + format.Ext()
}

func printNotices(notices []iconmaker.Notice) {
	for _, n := range notices {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", n)
	}
}

func printUsage() {
	fmt.Println(`iconmaker - bundle PNG and GIF renderings into ICO or ICNS icons

Usage:
  iconmaker convert -format ico|icns [-o <file>] [-config <file>] <image>...
  iconmaker verify -format ico|icns <file>
  iconmaker inspect -format ico|icns [-config <file>] <file>
  iconmaker tools [-config <file>]
  iconmaker help

Images are local paths or http(s) URLs.`)
}
