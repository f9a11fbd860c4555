// Package repository resolves migration versions to their up and down SQL scripts.
//
// A migrations root holds two directories, up and down, each containing one file
// per version. A file belongs to the repository only if its whole name is one or
// more ASCII digits followed by ".sql", e.g. "007.sql" or "12.sql". Everything
// else, including "12a.sql", "12_init.sql" and "12.sql.bak", is ignored.
//
// Zero-padding is a convention for human sorting; versions are compared numerically.
package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"

	"github.com/ladzaretti/dbmigrate/migrateerrors"
)

const (
	UpDir   = "up"
	DownDir = "down"
)

var filenamePattern = regexp.MustCompile(`^[0-9]+\.sql$`)

// Item is the (up, down) SQL pair of a single version.
type Item struct {
	Version int
	Up      string
	Down    string
}

type Repository struct {
	fsys fs.FS
}

// New returns a [Repository] rooted at the given directory.
func New(root string) *Repository {
	return NewFS(os.DirFS(root))
}

// NewFS returns a [Repository] reading from fsys.
func NewFS(fsys fs.FS) *Repository {
	return &Repository{fsys: fsys}
}

func errf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// ParseFilename extracts the version from a migration filename.
//
// ok is false if the name does not follow the naming rule.
func ParseFilename(name string) (version int, ok bool, err error) {
	if !filenamePattern.MatchString(name) {
		return 0, false, nil
	}

	v, err := strconv.Atoi(name[:len(name)-len(".sql")])
	if err != nil {
		return 0, true, errf("parse %q: %w: %v", name, migrateerrors.ErrInvalidVersion, err)
	}

	if v <= 0 {
		return 0, true, errf("%q: %w", name, migrateerrors.ErrInvalidVersion)
	}

	return v, true, nil
}

// Filename returns the conventional zero-padded filename for a version.
func Filename(version int) string {
	return fmt.Sprintf("%03d.sql", version)
}

// ListVersions returns the versions found in the up directory,
// sorted ascending.
func (r *Repository) ListVersions() ([]int, error) {
	index, err := r.index()
	if err != nil {
		return nil, err
	}

	versions := make([]int, 0, len(index))
	for v := range index {
		versions = append(versions, v)
	}

	slices.Sort(versions)

	return versions, nil
}

// LoadUp reads the up SQL of the given version.
func (r *Repository) LoadUp(version int) (string, error) {
	return r.load(UpDir, version)
}

// LoadDown reads the down SQL of the given version.
func (r *Repository) LoadDown(version int) (string, error) {
	return r.load(DownDir, version)
}

// Load reads both scripts of the given version.
func (r *Repository) Load(version int) (Item, error) {
	up, err := r.LoadUp(version)
	if err != nil {
		return Item{}, err
	}

	down, err := r.LoadDown(version)
	if err != nil {
		return Item{}, err
	}

	return Item{Version: version, Up: up, Down: down}, nil
}

// index maps each version in the up directory to its filename.
func (r *Repository) index() (map[int]string, error) {
	entries, err := fs.ReadDir(r.fsys, UpDir)
	if err != nil {
		return nil, errf("read migrations directory %q: %w", UpDir, err)
	}

	index := make(map[int]string, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		v, ok, err := ParseFilename(e.Name())
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		if prev, exists := index[v]; exists {
			return nil, errf("%q and %q: %w", prev, e.Name(), migrateerrors.ErrAmbiguousVersion)
		}

		index[v] = e.Name()
	}

	return index, nil
}

// filename resolves the on-disk name of a version, falling back to
// the zero-padded convention when the up directory has no entry for it.
func (r *Repository) filename(version int) (string, error) {
	index, err := r.index()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if name, ok := index[version]; ok {
		return name, nil
	}

	return Filename(version), nil
}

func (r *Repository) load(dir string, version int) (string, error) {
	name, err := r.filename(version)
	if err != nil {
		return "", err
	}

	p := path.Join(dir, name)

	b, err := fs.ReadFile(r.fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &migrateerrors.VersionError{
				Version: version,
				Op:      "load " + dir,
				Err:     fmt.Errorf("%s: %w", p, migrateerrors.ErrFileNotFound),
			}
		}

		return "", &migrateerrors.VersionError{Version: version, Op: "load " + dir, Err: err}
	}

	return string(b), nil
}
