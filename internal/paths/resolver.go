// Package paths turns the paths the model hands to file tools into
// absolute filesystem paths. Named prefixes ("data:", "config:") map to
// directories configured at startup; everything else is tilde-expanded
// and made absolute against the working directory.
package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps named prefixes to absolute directory paths. A nil
// *Resolver still expands home and resolves relative paths.
type Resolver struct {
	prefixes map[string]string // "data:" -> "/home/op/.config/nivuus-agent"
	sorted   []string          // longest first
}

// New creates a Resolver from a prefix-to-directory map. Keys are
// prefix names without the trailing colon. Tildes in values are
// expanded. Returns nil if the map is empty.
func New(prefixes map[string]string) *Resolver {
	if len(prefixes) == 0 {
		return nil
	}
	m := make(map[string]string, len(prefixes))
	sorted := make([]string, 0, len(prefixes))
	for name, dir := range prefixes {
		key := strings.TrimSuffix(name, ":") + ":"
		m[key] = ExpandHome(dir)
		sorted = append(sorted, key)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	return &Resolver{prefixes: m, sorted: sorted}
}

// Resolve returns the absolute form of path. A registered prefix is
// replaced by its directory; otherwise a leading ~ is expanded and the
// result is made absolute.
func (r *Resolver) Resolve(path string) (string, error) {
	if r != nil {
		for _, prefix := range r.sorted {
			if rel, ok := strings.CutPrefix(path, prefix); ok {
				base := r.prefixes[prefix]
				if rel == "" {
					return base, nil
				}
				return filepath.Join(base, rel), nil
			}
		}
	}
	return filepath.Abs(ExpandHome(path))
}

// Prefixes returns the registered prefix names sorted alphabetically,
// without trailing colons.
func (r *Resolver) Prefixes() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.prefixes))
	for prefix := range r.prefixes {
		names = append(names, strings.TrimSuffix(prefix, ":"))
	}
	sort.Strings(names)
	return names
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
