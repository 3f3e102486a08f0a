package sys

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// renameImpl performs the underlying rename. It is a package variable so
// tests can force the copy fallback path.
var renameImpl = func(oldpath, newpath string) error {
	return Default().Rename(oldpath, newpath)
}

// Rename moves oldpath to newpath. If the direct rename fails (typically a
// cross-device link when the destination lives on another filesystem), it
// falls back to copying the file or directory tree and removing the source.
func Rename(oldpath, newpath string) error {
	if err := renameImpl(oldpath, newpath); err == nil {
		return nil
	}
	info, err := os.Lstat(oldpath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := copyTree(oldpath, newpath); err != nil {
			return fmt.Errorf("rename fallback for %s: %w", oldpath, err)
		}
	} else {
		if err := copyFile(oldpath, newpath, info.Mode()); err != nil {
			return fmt.Errorf("rename fallback for %s: %w", oldpath, err)
		}
	}
	return os.RemoveAll(oldpath)
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(s, d); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(s, d, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
