// Package scan loads a project directory into a mentor.FileSet.
package scan

import (
	"bytes"
	"fmt"
	"io/fs"
	"strings"

	"codementor/internal/safeio"
	"codementor/internal/types/mentor"
)

// MaxFileBytes bounds the size of a single loaded file.
const MaxFileBytes = 1 << 20

var skipDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, "vendor": true,
}

// Load reads the text files under root, keyed by slash paths relative to root.
// Hidden directories, dependency folders, binaries and oversized files are skipped.
func Load(root string) (mentor.FileSet, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", root, err)
	}
	files := mentor.FileSet{}
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxFileBytes {
			return nil
		}
		b, err := fsys.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.IndexByte(b, 0) >= 0 {
			return nil
		}
		files[path] = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
