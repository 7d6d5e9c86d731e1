package mentor

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// FileSet maps a relative path to the file content.
type FileSet map[string]string

// SortedPaths returns the paths in lexical order.
func (f FileSet) SortedPaths() []string {
	out := make([]string, 0, len(f))
	for p := range f {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns a shallow copy; contents are immutable strings so this is a full copy.
func (f FileSet) Clone() FileSet {
	if f == nil {
		return nil
	}
	out := make(FileSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ValidatePath rejects paths that are empty, absolute or escape their root.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty file path")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return fmt.Errorf("file path %q must be relative", p)
	}
	clean := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("file path %q escapes the project root", p)
	}
	return nil
}

// Validate checks every path in the set.
func (f FileSet) Validate() error {
	for _, p := range f.SortedPaths() {
		if err := ValidatePath(p); err != nil {
			return err
		}
	}
	return nil
}
