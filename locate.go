package iconmaker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SearchStrategy finds an executable by name.
type SearchStrategy interface {
	Find(name string) (string, bool)
}

// FixedPaths looks for the tool in well-known directories or at exact file paths.
type FixedPaths []string

func (p FixedPaths) Find(name string) (string, bool) {
	for _, candidate := range p {
		if candidate == "" {
			continue
		}
		if filepath.Base(candidate) != name {
			candidate = filepath.Join(candidate, name)
		}
		if isExecutable(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// PathLookup searches the directories named by $PATH.
type PathLookup struct{}

func (PathLookup) Find(name string) (string, bool) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return p, true
}

// Locator tries its strategies in order.
type Locator struct {
	Strategies []SearchStrategy
}

// NewLocator searches the fixed locations first, then $PATH.
func NewLocator(fixed ...string) Locator {
	return Locator{Strategies: []SearchStrategy{FixedPaths(fixed), PathLookup{}}}
}

// Locate resolves name to an executable path. A name containing a path separator
// is checked as-is.
func (l Locator) Locate(name string) (string, error) {
	if name == "" {
		return "", New(KindValue, "locate", "empty tool name")
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", New(KindValue, "locate", fmt.Sprintf("%s is not an executable file", name))
	}
	for _, s := range l.Strategies {
		if p, ok := s.Find(name); ok {
			return p, nil
		}
	}
	return "", New(KindValue, "locate", fmt.Sprintf("%s not found", name))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// ToolSpec names an external tool and where to look for it besides $PATH.
type ToolSpec struct {
	Name  string
	Paths []string
}

// Tools holds located binaries. Empty fields were not found.
type Tools struct {
	ImageTool    string
	Encoder      string
	Introspector string
}

// LocateTools resolves the three external tools once. The returned error joins
// one entry per missing tool; found tools are filled in regardless.
func LocateTools(imageTool, encoder, introspector ToolSpec) (Tools, error) {
	var (
		tools Tools
		errs  []error
	)
	find := func(spec ToolSpec, dst *string) {
		if spec.Name == "" {
			return
		}
		p, err := NewLocator(spec.Paths...).Locate(spec.Name)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = p
	}
	find(imageTool, &tools.ImageTool)
	find(encoder, &tools.Encoder)
	find(introspector, &tools.Introspector)
	return tools, errors.Join(errs...)
}
