package syncer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/ligustah/dirsync/internal/artifact"
	"github.com/ligustah/dirsync/internal/downloader"
	dshttp "github.com/ligustah/dirsync/internal/http"
	"github.com/ligustah/dirsync/internal/install"
	"github.com/ligustah/dirsync/internal/inventory"
	"github.com/ligustah/dirsync/internal/progress"
	"github.com/ligustah/dirsync/internal/reconcile"
)

// Options configures a sync run.
type Options struct {
	// Directory is the target directory. It is created if missing.
	Directory string

	// Requests and Overrides are the desired content. Run does not modify
	// the caller's slices.
	Requests  []artifact.Request
	Overrides []artifact.Override

	// MaxConcurrency bounds simultaneous transfers.
	// Default: downloader.DefaultMaxConcurrency
	MaxConcurrency int

	Client *dshttp.Client

	// Progress enables the live progress line.
	Progress bool

	// Output receives progress and completion lines.
	// Default: os.Stdout
	Output io.Writer

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	VerifySize      bool
	CancelOnFailure bool
	CheckDiskSpace  bool
	DiskHeadroom    int64
}

// Summary describes a finished run.
type Summary struct {
	Report     *reconcile.Report
	Downloaded int
	Installed  int
	Bytes      int64
}

// Run scans the target directory, reconciles it against the desired
// content, downloads what is missing and installs the overrides. It stops
// at the first failing stage; work done by earlier stages stays on disk.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	opts = withDefaults(opts)

	fsys, report, requests, overrides, err := prepare(opts)
	summary := &Summary{Report: report}
	if err != nil {
		return summary, err
	}

	opts.Logger.WithFields(logrus.Fields{
		"download": len(requests),
		"install":  len(overrides),
	}).Debug("Reconciled")

	reporter := progress.NewReporter(progress.Options{
		Output: opts.Output,
		Live:   opts.Progress,
	})
	err = downloader.Execute(ctx, opts.Directory, requests, downloader.Options{
		MaxConcurrency:  opts.MaxConcurrency,
		Client:          opts.Client,
		Progress:        reporter,
		Logger:          opts.Logger,
		CancelOnFailure: opts.CancelOnFailure,
		CheckDiskSpace:  opts.CheckDiskSpace,
		DiskHeadroom:    opts.DiskHeadroom,
	})
	if err != nil {
		return summary, err
	}
	summary.Downloaded = len(requests)
	summary.Bytes = reporter.Completed()

	if err := install.Install(fsys, overrides, opts.Output); err != nil {
		return summary, err
	}
	summary.Installed = len(overrides)

	opts.Logger.WithFields(logrus.Fields{
		"downloaded": summary.Downloaded,
		"installed":  summary.Installed,
		"archived":   len(report.Archived),
		"deleted":    len(report.Deleted),
	}).Info("Sync complete")
	return summary, nil
}

// Clean brings the target directory in line with the desired content
// without fetching or installing anything. Files that are not wanted are
// archived or deleted exactly as Run would.
func Clean(_ context.Context, opts Options) (*reconcile.Report, error) {
	opts = withDefaults(opts)

	_, report, _, _, err := prepare(opts)
	if err != nil {
		return report, err
	}

	opts.Logger.WithFields(logrus.Fields{
		"archived": len(report.Archived),
		"deleted":  len(report.Deleted),
	}).Info("Clean complete")
	return report, nil
}

func withDefaults(opts Options) Options {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = downloader.DefaultMaxConcurrency
	}
	return opts
}

// prepare runs the sequential stages shared by Run and Clean.
func prepare(opts Options) (billy.Filesystem, *reconcile.Report, []artifact.Request, []artifact.Override, error) {
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, nil, nil, nil, &inventory.ScanError{Dir: opts.Directory, Err: fmt.Errorf("create directory: %w", err)}
	}
	fsys := osfs.New(opts.Directory)

	inv, err := inventory.Scan(fsys)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	requests := opts.Requests
	overrides := opts.Overrides
	report, err := reconcile.Reconcile(fsys, inv, &requests, &overrides, reconcile.Options{
		Logger:     opts.Logger,
		VerifySize: opts.VerifySize,
	})
	if err != nil {
		return nil, report, nil, nil, err
	}
	return fsys, report, requests, overrides, nil
}
