package gofs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/aegistudio/go-dokan/pathnorm"
)

// Dir is the native directory mirrored by the file system.
//
// An empty Dir is the current directory.
type Dir string

func (d Dir) resolve(name string) string {
	root := string(d)
	if root == "" {
		root = "."
	}
	return filepath.Join(root, filepath.FromSlash(pathnorm.Key(name)))
}

func (d Dir) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(d.resolve(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d Dir) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(d.resolve(name), perm)
}

func (d Dir) Stat(name string) (os.FileInfo, error) {
	return os.Stat(d.resolve(name))
}

func (d Dir) Rename(source, target string) error {
	return os.Rename(d.resolve(source), d.resolve(target))
}

func (d Dir) Remove(name string) error {
	return os.Remove(d.resolve(name))
}

func (d Dir) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(d.resolve(name), atime, mtime)
}

func (d Dir) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(d.resolve(name), mode)
}

var (
	_ FileSystemChtimes = Dir("")
	_ FileSystemChmod   = Dir("")
)
