package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends.
const (
	BackendAuto   = "auto"
	BackendExec   = "exec"
	BackendNative = "native"
)

// Config represents the iconmaker configuration
type Config struct {
	Backend    string      `yaml:"backend"`
	Tools      ToolsConfig `yaml:"tools"`
	Fetch      FetchConfig `yaml:"fetch"`
	ScratchDir string      `yaml:"scratch_dir"`
	Log        LogConfig   `yaml:"log"`
}

type ToolsConfig struct {
	ImageTool    ToolConfig    `yaml:"image_tool"`
	Encoder      ToolConfig    `yaml:"encoder"`
	Introspector ToolConfig    `yaml:"introspector"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ToolConfig names an executable and the directories searched before $PATH.
type ToolConfig struct {
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
}

type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	MaxBytes    int64         `yaml:"max_bytes"`
	UserAgent   string        `yaml:"user_agent"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var wellKnownDirs = []string{"/usr/local/bin", "/usr/bin", "/opt/homebrew/bin", "/opt/local/bin"}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendAuto,
		Tools: ToolsConfig{
			ImageTool:    ToolConfig{Name: "convert", Paths: wellKnownDirs},
			Encoder:      ToolConfig{Name: "png2icns", Paths: wellKnownDirs},
			Introspector: ToolConfig{Name: "icns2png", Paths: wellKnownDirs},
			Timeout:      60 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
			MaxBytes:    10 << 20,
			UserAgent:   "iconmaker/1.0",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides (including a .env file in the working directory) and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ICONMAKER_* variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ICONMAKER_BACKEND":      &c.Backend,
		"ICONMAKER_IMAGE_TOOL":   &c.Tools.ImageTool.Name,
		"ICONMAKER_ENCODER":      &c.Tools.Encoder.Name,
		"ICONMAKER_INTROSPECTOR": &c.Tools.Introspector.Name,
		"ICONMAKER_SCRATCH_DIR":  &c.ScratchDir,
		"ICONMAKER_LOG_LEVEL":    &c.Log.Level,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("ICONMAKER_TOOL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ICONMAKER_TOOL_TIMEOUT: %w", err)
		}
		c.Tools.Timeout = d
	}
	return nil
}

// Validate checks the configuration for values the converter cannot run with
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendExec, BackendNative:
	default:
		return fmt.Errorf("backend must be one of auto, exec, native; got %q", c.Backend)
	}
	if c.Backend == BackendExec {
		if c.Tools.ImageTool.Name == "" {
			return fmt.Errorf("tools.image_tool.name is required for the exec backend")
		}
		if c.Tools.Encoder.Name == "" {
			return fmt.Errorf("tools.encoder.name is required for the exec backend")
		}
	}
	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("tools.timeout must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
