// Package fragment serves essence, room and modulation fragments.
package fragment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"conductor/internal/domain"
)

// maxFragmentSize is the maximum allowed fragment file size (1 MiB).
const maxFragmentSize = 1 << 20

// essenceFile is the file name used by the per-agent directory layout.
const essenceFile = "essence.md"

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// kindDirs lists the directories searched for each kind, in priority order.
var kindDirs = map[domain.FragmentKind][]string{
	domain.FragmentEssence:    {"essence", "agents"},
	domain.FragmentRoom:       {"rooms"},
	domain.FragmentModulation: {"modulation"},
}

// ValidateName rejects names that could escape the fragment directory.
func ValidateName(name string) error {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", domain.ErrFragmentName, name)
	}
	return nil
}

// FileStore reads fragments from a sanctuary directory. Supported layouts:
//   - Flat: <kind dir>/<name>.md
//   - Agent directory: agents/<name>/essence.md (essences only)
type FileStore struct {
	root string
	fsys fs.FS
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir, fsys: os.DirFS(dir)}
}

// Root returns the sanctuary directory.
func (s *FileStore) Root() string { return s.root }

// Fragment returns the text of one fragment.
func (s *FileStore) Fragment(_ context.Context, kind domain.FragmentKind, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", &domain.FragmentError{Kind: kind, Name: name, Err: domain.ErrFragmentName}
	}
	for _, candidate := range candidates(kind, name) {
		info, err := fs.Stat(s.fsys, candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("stat fragment %s: %w", candidate, err)
		}
		if info.IsDir() {
			continue
		}
		if info.Size() > maxFragmentSize {
			return "", &domain.FragmentError{
				Kind: kind, Name: name, Err: domain.ErrInvalidInput,
				Detail: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), maxFragmentSize),
			}
		}
		data, err := fs.ReadFile(s.fsys, candidate)
		if err != nil {
			return "", fmt.Errorf("read fragment %s: %w", candidate, err)
		}
		return string(data), nil
	}
	return "", &domain.FragmentError{Kind: kind, Name: name, Err: domain.ErrFragmentNotFound}
}

func candidates(kind domain.FragmentKind, name string) []string {
	var out []string
	for _, dir := range kindDirs[kind] {
		out = append(out, path.Join(dir, name+".md"))
	}
	if kind == domain.FragmentEssence {
		out = append(out, path.Join("agents", name, essenceFile))
	}
	return out
}

// List returns the sorted, de-duplicated names available for kind.
// A missing kind directory yields an empty list.
func (s *FileStore) List(_ context.Context, kind domain.FragmentKind) ([]string, error) {
	seen := make(map[string]bool)
	for _, dir := range kindDirs[kind] {
		matches, err := doublestar.Glob(s.fsys, dir+"/*.md")
		if err != nil {
			return nil, fmt.Errorf("list %s fragments: %w", kind, err)
		}
		for _, m := range matches {
			seen[strings.TrimSuffix(path.Base(m), ".md")] = true
		}
	}
	if kind == domain.FragmentEssence {
		matches, err := doublestar.Glob(s.fsys, "agents/*/"+essenceFile)
		if err != nil {
			return nil, fmt.Errorf("list essence directories: %w", err)
		}
		for _, m := range matches {
			seen[path.Base(path.Dir(m))] = true
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		if ValidateName(n) == nil {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Locate maps a file path under the store root back to its kind and name.
func (s *FileStore) Locate(p string) (domain.FragmentKind, string, bool) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 2 && strings.HasSuffix(parts[1], ".md"):
		name := strings.TrimSuffix(parts[1], ".md")
		for _, kind := range domain.FragmentKinds {
			for _, dir := range kindDirs[kind] {
				if parts[0] == dir {
					return kind, name, ValidateName(name) == nil
				}
			}
		}
	case len(parts) == 3 && parts[0] == "agents" && parts[2] == essenceFile:
		return domain.FragmentEssence, parts[1], ValidateName(parts[1]) == nil
	}
	return "", "", false
}

// Dirs returns the absolute kind directories that exist under the root.
func (s *FileStore) Dirs() []string {
	var dirs []string
	for _, kind := range domain.FragmentKinds {
		for _, dir := range kindDirs[kind] {
			full := filepath.Join(s.root, dir)
			if info, err := os.Stat(full); err == nil && info.IsDir() {
				dirs = append(dirs, full)
			}
		}
	}
	return dirs
}
