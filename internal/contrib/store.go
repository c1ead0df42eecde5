// Package contrib manages the local, append-only contribution history.
//
// Layout under the root directory:
//
//	{number:04d}_{contributor}/{kind}_{contributor}_contribution_{number}{ext}
//	hashes/{contributor}_CONTRIBUTION_{number}{ext}
//
// Every path is a pure function of the parsed object name, so concurrent
// writers computing the same name always agree on the destination. Presence
// on disk is the only sync state; nothing is cached between calls.
package contrib

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"ceremony/internal/artifact"
)

// DefaultRoot is the default contributions directory, relative to cwd.
const DefaultRoot = "contributions"

// HashesDir holds contribution receipts.
const HashesDir = "hashes"

// Dir is one contribution directory found on disk.
type Dir struct {
	artifact.Identity
	Path string
}

// Store is the on-disk contribution history rooted at one directory.
type Store struct {
	root   string
	naming artifact.Naming
}

// New returns a store rooted at root. The directory is created lazily.
func New(root string, naming artifact.Naming) *Store {
	return &Store{root: root, naming: naming}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Naming returns the naming convention used for file names.
func (s *Store) Naming() artifact.Naming { return s.naming }

// DirFor returns the directory of a contribution.
func (s *Store) DirFor(id artifact.Identity) string {
	return filepath.Join(s.root, id.String())
}

// PathFor returns the local path of a remote object.
func (s *Store) PathFor(name artifact.Name) string {
	if name.Class == artifact.ClassReceipt {
		return filepath.Join(s.root, HashesDir, s.naming.ReceiptFile(name.Identity()))
	}
	return filepath.Join(s.DirFor(name.Identity()), s.naming.ArtifactFile(name.Kind, name.Identity()))
}

// ArtifactPath returns where one kind of a discovered contribution lives.
func (s *Store) ArtifactPath(d Dir, kind string) string {
	return filepath.Join(d.Path, s.naming.ArtifactFile(kind, d.Identity))
}

// Exists reports whether path is present as a regular file.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

var dirPattern = regexp.MustCompile(`^(\d{4,})_([^_/\\]+)$`)

// ParseDirName decodes a directory name of the form NNNN_contributor.
// ok is false for any other name; nothing is coerced.
func ParseDirName(name string) (id artifact.Identity, ok bool) {
	m := dirPattern.FindStringSubmatch(name)
	if m == nil {
		return artifact.Identity{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return artifact.Identity{}, false
	}
	return artifact.Identity{Number: n, Contributor: m[2]}, true
}

// ListContributions scans the root and returns contribution directories
// ordered by number then contributor. A missing root yields no directories.
func (s *Store) ListContributions() ([]Dir, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contributions dir: %w", err)
	}
	var dirs []Dir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := ParseDirName(e.Name())
		if !ok {
			continue
		}
		dirs = append(dirs, Dir{Identity: id, Path: filepath.Join(s.root, e.Name())})
	}
	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].Number != dirs[j].Number {
			return dirs[i].Number < dirs[j].Number
		}
		return dirs[i].Contributor < dirs[j].Contributor
	})
	return dirs, nil
}

// WriteAtomic streams r into path via a temp file in the same directory and
// renames it into place. On any failure the temp file is removed and path
// is left untouched.
func (s *Store) WriteAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return n, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return n, fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

// Gaps returns the contribution numbers missing between 0 and the highest
// number present in dirs.
func Gaps(dirs []Dir) []int {
	if len(dirs) == 0 {
		return nil
	}
	present := make(map[int]bool, len(dirs))
	highest := 0
	for _, d := range dirs {
		present[d.Number] = true
		if d.Number > highest {
			highest = d.Number
		}
	}
	var gaps []int
	for n := 0; n <= highest; n++ {
		if !present[n] {
			gaps = append(gaps, n)
		}
	}
	return gaps
}

// GroupByNumber indexes dirs by contribution number.
func GroupByNumber(dirs []Dir) map[int][]Dir {
	out := make(map[int][]Dir, len(dirs))
	for _, d := range dirs {
		out[d.Number] = append(out[d.Number], d)
	}
	return out
}
