package reconcile

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/ligustah/dirsync/internal/artifact"
	"github.com/ligustah/dirsync/internal/inventory"
)

// DisposalError is returned when an unexpected file can be neither archived
// nor deleted.
type DisposalError struct {
	Name string
	Err  error
}

func (e *DisposalError) Error() string {
	return fmt.Sprintf("dispose of %s: %v", e.Name, e.Err)
}

func (e *DisposalError) Unwrap() error {
	return e.Err
}

// Options configures a reconciliation.
type Options struct {
	// Logger receives duplicate warnings and one entry per disposal.
	// Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// VerifySize stops an on-disk file from satisfying a request whose
	// Length is known and differs from the file size.
	VerifySize bool
}

// Report records what a reconciliation did.
type Report struct {
	// Satisfied lists inventory names that matched a request or override.
	Satisfied []string
	// Archived lists names moved into the archive subfolder.
	Archived []string
	// Deleted lists names removed outright.
	Deleted []string
	// Duplicates lists request filenames dropped because an earlier
	// request already claimed them.
	Duplicates []string
}

// Reconcile compares the inventory of fsys against the desired requests and
// overrides. Entries already present are removed from both slices, leaving
// only the work still to do. Anything else found on disk is archived under
// inventory.ArchiveDir or, for partial transfers, deleted.
func Reconcile(fsys billy.Filesystem, inv *inventory.Inventory, requests *[]artifact.Request, overrides *[]artifact.Override, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	report := &Report{}
	*requests, report.Duplicates = dedupe(*requests)
	if len(report.Duplicates) > 0 {
		log.WithField("files", report.Duplicates).
			Warn("Multiple artifacts share a filename, only the first is kept. Remove the extra entries from the manifest.")
	}

	wanted := make(map[string]artifact.Request, len(*requests))
	for _, r := range *requests {
		wanted[r.Filename] = r
	}
	local := make(map[string]struct{}, len(*overrides))
	for _, o := range *overrides {
		local[o.Name] = struct{}{}
	}

	present := make(map[string]struct{})
	var unexpected []string
	for _, name := range inv.Names() {
		if r, ok := wanted[name]; ok {
			if opts.VerifySize && !sizeMatches(fsys, name, r.Length) {
				unexpected = append(unexpected, name)
				continue
			}
			delete(wanted, name)
			present[name] = struct{}{}
			report.Satisfied = append(report.Satisfied, name)
			continue
		}
		if _, ok := local[name]; ok {
			delete(local, name)
			present[name] = struct{}{}
			report.Satisfied = append(report.Satisfied, name)
			continue
		}
		unexpected = append(unexpected, name)
	}

	*requests = filter(*requests, func(r artifact.Request) bool {
		_, ok := present[r.Filename]
		return !ok
	})
	*overrides = filter(*overrides, func(o artifact.Override) bool {
		_, ok := present[o.Name]
		return !ok
	})

	for _, name := range unexpected {
		archived, err := dispose(fsys, name)
		if err != nil {
			return report, err
		}
		if archived {
			log.WithField("file", name).Info("Archived")
			report.Archived = append(report.Archived, name)
		} else {
			log.WithField("file", name).Info("Deleted")
			report.Deleted = append(report.Deleted, name)
		}
	}

	return report, nil
}

// dedupe keeps the first request for every filename.
func dedupe(requests []artifact.Request) ([]artifact.Request, []string) {
	seen := make(map[string]struct{}, len(requests))
	kept := requests[:0:0]
	var dropped []string
	for _, r := range requests {
		if _, ok := seen[r.Filename]; ok {
			dropped = append(dropped, r.Filename)
			continue
		}
		seen[r.Filename] = struct{}{}
		kept = append(kept, r)
	}
	return kept, dropped
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func sizeMatches(fsys billy.Filesystem, name string, want int64) bool {
	if want <= 0 {
		return true
	}
	fi, err := fsys.Stat(name)
	if err != nil {
		return false
	}
	return fi.Size() == want
}

// dispose archives name, falling back to deletion. It reports whether the
// file was archived.
func dispose(fsys billy.Filesystem, name string) (bool, error) {
	if !strings.HasSuffix(name, artifact.PartialSuffix) {
		dst := path.Join(inventory.ArchiveDir, name)
		if _, err := fsys.Lstat(dst); err != nil {
			if err := fsys.Rename(name, dst); err == nil {
				return true, nil
			}
		}
	}

	if err := fsys.Remove(name); err != nil {
		return false, &DisposalError{Name: name, Err: err}
	}
	return false, nil
}
