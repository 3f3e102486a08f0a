// Package batch represents one sealed batch directory as an ordered,
// countable collection of archived requests. A batch is either a root
// (owning its whole directory tree) or a split-derived slice over a disjoint
// subset of a root's files. Ownership transfers whole: a root is deleted
// after full success or moved to the error area after terminal failure;
// it is never left half-owned.
package batch

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/INLOpen/nexuscommit/archive"
	"github.com/INLOpen/nexuscommit/core"
	"github.com/INLOpen/nexuscommit/sys"
)

// Batch is an ordinal-ordered set of archive files under one batch
// directory.
type Batch struct {
	dir   string
	files []string // absolute paths in ordinal order
	root  bool
}

// Open walks the fan-out tree under dir and collects its archives in
// ordinal order. Zero-padded naming makes lexical path order equal ordinal
// order. Filesystem failures are wrapped as core.FatalError.
func Open(dir string) (*Batch, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if archive.IsArchive(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, core.NewFatalError("fs", fmt.Errorf("walk batch %s: %w", dir, err))
	}
	sort.Strings(files)
	return &Batch{dir: dir, files: files, root: true}, nil
}

// Dir returns the batch directory.
func (b *Batch) Dir() string { return b.dir }

// Count returns the number of archives in the batch.
func (b *Batch) Count() int { return len(b.files) }

// Files returns a copy of the archive paths in ordinal order.
func (b *Batch) Files() []string {
	return append([]string(nil), b.files...)
}

// Iterator returns a single-pass cursor over the batch's requests.
func (b *Batch) Iterator() *Iterator {
	return &Iterator{files: b.files}
}

// Delete removes the batch's archives. A root batch removes its whole
// directory tree; a split-derived batch removes only its own files and
// leaves the tree to its root.
func (b *Batch) Delete() error {
	if b.root {
		if err := sys.RemoveAll(b.dir); err != nil {
			return core.NewFatalError("fs", fmt.Errorf("delete batch %s: %w", b.dir, err))
		}
		return nil
	}
	for _, f := range b.files {
		if err := sys.Remove(f); err != nil {
			return core.NewFatalError("fs", fmt.Errorf("delete archive %s: %w", f, err))
		}
	}
	return nil
}

// Move relocates the whole batch directory under destParent, keeping its
// name. Only a root batch owns its directory and may move it.
func (b *Batch) Move(destParent string) (string, error) {
	if !b.root {
		return "", fmt.Errorf("cannot move split-derived batch %s", b.dir)
	}
	if err := sys.MkdirAll(destParent, 0755); err != nil {
		return "", core.NewFatalError("fs", fmt.Errorf("create %s: %w", destParent, err))
	}
	dest := filepath.Join(destParent, filepath.Base(b.dir))
	if err := sys.Rename(b.dir, dest); err != nil {
		return "", core.NewFatalError("fs", fmt.Errorf("move batch %s to %s: %w", b.dir, dest, err))
	}
	return dest, nil
}

// Split partitions the batch into contiguous sub-batches of at most size
// archives. No file is duplicated or dropped. Sub-batches share the parent
// directory and do not own it.
func (b *Batch) Split(size int) []*Batch {
	if size < 1 {
		size = 1
	}
	var subs []*Batch
	for start := 0; start < len(b.files); start += size {
		end := start + size
		if end > len(b.files) {
			end = len(b.files)
		}
		subs = append(subs, &Batch{
			dir:   b.dir,
			files: b.files[start:end],
		})
	}
	return subs
}

// Remaining re-lists the directory, returning a fresh root batch over the
// archives still on disk. Used by the split policy after partial successes
// have deleted their files.
func (b *Batch) Remaining() (*Batch, error) {
	return Open(b.dir)
}
