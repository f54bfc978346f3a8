package talents

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultFiles contains the shipped talent markdown files, copied from
// the repo-root talents/ directory at build time via go:generate.
//
//go:generate sh -c "cp ../../talents/*.md defaults/"
//go:embed defaults/*.md
var DefaultFiles embed.FS

// Defaults returns the embedded shipped talents joined the same way
// Loader.Load joins on-disk files. Used as the guidance layer when no
// talents directory is configured or it is empty.
func Defaults() string {
	entries, err := fs.ReadDir(DefaultFiles, "defaults")
	if err != nil {
		return ""
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		content, err := fs.ReadFile(DefaultFiles, "defaults/"+name)
		if err != nil {
			continue
		}
		parts = append(parts, string(content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Seed materializes every .md file at the root of fsys into dir,
// creating it if needed. Existing files are left alone so a user's
// edited talents survive re-running init.
func Seed(fsys fs.FS, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create talents dir: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read embedded talents: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		dst := filepath.Join(dir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return fmt.Errorf("read embedded talent %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return fmt.Errorf("write talent %s: %w", e.Name(), err)
		}
	}
	return nil
}
