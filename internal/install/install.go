package install

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"

	"github.com/ligustah/dirsync/internal/artifact"
	"github.com/ligustah/dirsync/internal/progress"
)

// ErrUnsupportedType is returned for override sources that are neither a
// regular file nor a directory.
var ErrUnsupportedType = errors.New("install: source is neither a file nor a directory")

// InstallError reports the override that could not be installed.
type InstallError struct {
	Name string
	Path string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s from %s: %v", e.Name, e.Path, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Install copies every override into dst, in order, and prints one line per
// entry to out. Existing files are overwritten. It stops at the first
// failure; entries before it stay installed.
func Install(dst billy.Filesystem, overrides []artifact.Override, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}

	for _, o := range overrides {
		if err := installOne(dst, o); err != nil {
			return &InstallError{Name: o.Name, Path: o.Path, Err: err}
		}
		fmt.Fprintln(out, progress.InstalledLine(o.Name))
	}
	return nil
}

func installOne(dst billy.Filesystem, o artifact.Override) error {
	fi, err := os.Stat(o.Path)
	if err != nil {
		return err
	}

	switch {
	case fi.Mode().IsRegular():
		return copyFile(dst, o.Path, o.Name, fi.Mode().Perm())
	case fi.IsDir():
		return copyDir(dst, o.Path, o.Name)
	default:
		return ErrUnsupportedType
	}
}

// copyDir mirrors the tree under src into dst at name. src itself may be a
// symlink; members below it that are not regular files or directories are
// skipped.
func copyDir(dst billy.Filesystem, src, name string) error {
	src, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := path.Join(name, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return dst.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return copyFile(dst, p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(dst billy.Filesystem, src, target string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}

	// An existing file keeps its old mode through O_TRUNC.
	if ch, ok := dst.(billy.Change); ok {
		if err := ch.Chmod(target, perm); err != nil {
			return fmt.Errorf("chmod %s: %w", target, err)
		}
	}
	return nil
}
