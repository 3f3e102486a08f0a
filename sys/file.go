package sys

import (
	"io/fs"
	"os"
	"sync/atomic"
)

// FS is the filesystem surface the committer depends on. The default
// implementation delegates to the os package; tests swap in failing
// implementations to exercise substrate-failure paths.
type FS interface {
	Create(name string) (*os.File, error)
	Open(name string) (*os.File, error)
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (os.FileInfo, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// fsWrapper is a stable concrete type used to store the FS interface
// inside an atomic.Value. atomic.Value requires that all stored values
// have the same concrete type; wrapping the FS interface in this small
// struct ensures we can swap different FS implementations safely.
type fsWrapper struct {
	fs FS
}

// defaultFS stores the current FS implementation wrapped in a concrete
// fsWrapper so atomic.Value always sees the same concrete type across stores.
var defaultFS atomic.Value // stores fsWrapper

func init() {
	defaultFS.Store(fsWrapper{fs: osFS{}})
}

// SetDefault atomically replaces the FS used by the package-level helpers.
// Intended for tests; restore with SetDefault(OS()).
func SetDefault(f FS) {
	defaultFS.Store(fsWrapper{fs: f})
}

// Default returns the FS currently used by the package-level helpers.
func Default() FS {
	p := defaultFS.Load()
	fw, ok := p.(fsWrapper)
	if !ok || fw.fs == nil {
		return osFS{}
	}
	return fw.fs
}

// OS returns the FS backed directly by the os package.
func OS() FS { return osFS{} }

type osFS struct{}

func (osFS) Create(name string) (*os.File, error) { return os.Create(name) }
func (osFS) Open(name string) (*os.File, error)   { return os.Open(name) }
func (osFS) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (osFS) Remove(name string) error                     { return os.Remove(name) }
func (osFS) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (osFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (osFS) ReadDir(name string) ([]fs.DirEntry, error)   { return os.ReadDir(name) }
func (osFS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (osFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func Create(name string) (*os.File, error) { return Default().Create(name) }
func Open(name string) (*os.File, error)   { return Default().Open(name) }
func OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return Default().OpenFile(name, flag, perm)
}
func MkdirAll(path string, perm os.FileMode) error { return Default().MkdirAll(path, perm) }
func Remove(name string) error                     { return Default().Remove(name) }
func RemoveAll(path string) error                  { return Default().RemoveAll(path) }
func ReadDir(name string) ([]fs.DirEntry, error)   { return Default().ReadDir(name) }
func Stat(name string) (os.FileInfo, error)        { return Default().Stat(name) }
func WriteFile(name string, data []byte, perm os.FileMode) error {
	return Default().WriteFile(name, data, perm)
}
