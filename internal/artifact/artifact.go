package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	dshttp "github.com/ligustah/dirsync/internal/http"
)

// PartialSuffix marks a file that is still being written by a fetcher. A
// file carrying it at reconciliation time is a remnant of an interrupted run.
const PartialSuffix = ".part"

// ErrUnknownSource is returned when a request has no fetch capability.
var ErrUnknownSource = errors.New("artifact: request has no source")

// ProgressFunc receives byte increments as a transfer makes progress.
type ProgressFunc func(n int64)

// Result describes a finished transfer.
type Result struct {
	Filename string
	Size     int64
}

// Fetcher transfers one artifact into dir under filename.
type Fetcher interface {
	Fetch(ctx context.Context, client *dshttp.Client, dir, filename string, onProgress ProgressFunc) (Result, error)
}

// Sizer is implemented by sources that can report the artifact size before
// transferring it.
type Sizer interface {
	Size(ctx context.Context, client *dshttp.Client) (int64, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, client *dshttp.Client, dir, filename string, onProgress ProgressFunc) (Result, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, client *dshttp.Client, dir, filename string, onProgress ProgressFunc) (Result, error) {
	return f(ctx, client, dir, filename, onProgress)
}

// Request is one artifact the target directory should contain.
// Filename is its identity.
type Request struct {
	// Filename is the name the artifact occupies in the target directory.
	Filename string

	// Length is the expected size in bytes. It only feeds progress totals.
	Length int64

	// Source performs the transfer.
	Source Fetcher
}

// Fetch transfers the artifact into dir.
func (r Request) Fetch(ctx context.Context, client *dshttp.Client, dir string, onProgress ProgressFunc) (Result, error) {
	if r.Source == nil {
		return Result{}, fmt.Errorf("%s: %w", r.Filename, ErrUnknownSource)
	}
	if onProgress == nil {
		onProgress = func(int64) {}
	}
	return r.Source.Fetch(ctx, client, dir, r.Filename, onProgress)
}

// Override is a local file or directory to copy into the target directory.
// Name is its identity.
type Override struct {
	Name string
	Path string
}

// ReadOverrides builds an override for every entry directly inside dir.
// A missing dir yields no overrides.
func ReadOverrides(dir string) ([]Override, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides %s: %w", dir, err)
	}

	overrides := make([]Override, 0, len(entries))
	for _, entry := range entries {
		overrides = append(overrides, Override{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	return overrides, nil
}

// partialPath returns the in-progress path for filename inside dir.
func partialPath(dir, filename string) string {
	return filepath.Join(dir, filename+PartialSuffix)
}

// writePartial copies r into the partial file for filename, reporting every
// write to onProgress.
func writePartial(dir, filename string, r io.Reader, onProgress ProgressFunc) (int64, error) {
	f, err := os.Create(partialPath(dir, filename))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filename, err)
	}

	n, err := io.Copy(io.MultiWriter(f, progressWriter(onProgress)), r)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", filename, err)
	}
	return n, nil
}

// progressWriter forwards the size of every write to a ProgressFunc.
type progressWriter ProgressFunc

func (w progressWriter) Write(p []byte) (int, error) {
	w(int64(len(p)))
	return len(p), nil
}

// commit moves a finished partial file to its final name.
func commit(dir, filename string) error {
	if err := os.Rename(partialPath(dir, filename), filepath.Join(dir, filename)); err != nil {
		return fmt.Errorf("commit %s: %w", filename, err)
	}
	return nil
}
