package migrate

import (
	"io/fs"
	"path/filepath"

	"github.com/pingcap/errors"
)

// ErrEnumerate reports that the generator output could not be walked.
var ErrEnumerate = errors.Normalize(
	"failed to enumerate %s: %s",
	errors.RFCCodeText("Datagen:Enumerate"),
)

// Entry is one file to migrate.
type Entry struct {
	// Source is the absolute path of the file in scratch.
	Source string
	// Rel is the path relative to the output root, slash separated.
	Rel string
}

// Manifest is the authoritative list of files produced by one generation.
// It is built once by Enumerate and not modified afterwards.
type Manifest struct {
	Root  string
	Files []Entry
	// Subdirs holds the names of the immediate child directories of Root.
	Subdirs []string
}

// Len returns the number of files.
func (m *Manifest) Len() int {
	return len(m.Files)
}

// Empty reports whether the generator produced no files at all.
func (m *Manifest) Empty() bool {
	return len(m.Files) == 0
}

// Enumerate walks root once and collects every regular file at any depth and
// the first-level subdirectory names. Deeper directories are carried by each
// file's relative path.
func Enumerate(root string) (*Manifest, error) {
	m := &Manifest{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			if filepath.Dir(path) == filepath.Clean(root) {
				m.Subdirs = append(m.Subdirs, d.Name())
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, Entry{Source: path, Rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, ErrEnumerate.GenWithStackByArgs(root, err.Error())
	}
	return m, nil
}
