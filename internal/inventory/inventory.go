package inventory

import (
	"fmt"
	"sort"

	"github.com/go-git/go-billy/v5"
)

// ArchiveDir is the subfolder of the target directory that receives
// displaced files.
const ArchiveDir = ".old"

// ScanError is returned when the target directory cannot be listed or its
// archive subfolder cannot be created.
type ScanError struct {
	Dir string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Inventory is the set of regular files directly inside a target directory.
type Inventory struct {
	names []string
	set   map[string]struct{}
}

// New builds an inventory from a list of names.
func New(names ...string) *Inventory {
	inv := &Inventory{set: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if _, ok := inv.set[name]; ok {
			continue
		}
		inv.set[name] = struct{}{}
		inv.names = append(inv.names, name)
	}
	sort.Strings(inv.names)
	return inv
}

// Names returns the file names in lexical order.
func (i *Inventory) Names() []string {
	out := make([]string, len(i.names))
	copy(out, i.names)
	return out
}

// Has reports whether name is present.
func (i *Inventory) Has(name string) bool {
	_, ok := i.set[name]
	return ok
}

// Len returns the number of files.
func (i *Inventory) Len() int {
	return len(i.names)
}

// Scan ensures the archive subfolder exists, then lists the regular files at
// the root of fsys. Directories and symlinks are left out and untouched.
func Scan(fsys billy.Filesystem) (*Inventory, error) {
	if err := fsys.MkdirAll(ArchiveDir, 0o755); err != nil {
		return nil, &ScanError{Dir: fsys.Root(), Err: fmt.Errorf("create archive dir: %w", err)}
	}

	entries, err := fsys.ReadDir(".")
	if err != nil {
		return nil, &ScanError{Dir: fsys.Root(), Err: fmt.Errorf("list: %w", err)}
	}

	var names []string
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	return New(names...), nil
}
