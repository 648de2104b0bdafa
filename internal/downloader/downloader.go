package downloader

import (
	"context"
	"fmt"
	"io"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ligustah/dirsync/internal/artifact"
	dshttp "github.com/ligustah/dirsync/internal/http"
	"github.com/ligustah/dirsync/internal/progress"
)

// DefaultMaxConcurrency bounds simultaneous transfers when Options leaves it
// unset.
const DefaultMaxConcurrency = 10

// Options configures a download run.
type Options struct {
	// MaxConcurrency is the number of transfers allowed in flight at once.
	// Default: DefaultMaxConcurrency
	MaxConcurrency int

	// Client is the network client handed to every fetch.
	// Default: a client with dshttp.DefaultOptions
	Client *dshttp.Client

	// Progress aggregates bytes across transfers. When nil, a reporter
	// writing plain completion lines to Output is created for the run.
	Progress *progress.Reporter

	// Output receives completion lines when Progress is nil.
	Output io.Writer

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// CancelOnFailure cancels transfers still in flight once one fails.
	// Otherwise they are left to finish on their own.
	CancelOnFailure bool

	// CheckDiskSpace refuses to start when the volume holding the target
	// directory has less than the expected total plus DiskHeadroom free.
	CheckDiskSpace bool
	DiskHeadroom   int64
}

// FetchError is returned for the first transfer that fails.
type FetchError struct {
	Filename string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Filename, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InsufficientSpaceError is returned when the disk space check fails.
type InsufficientSpaceError struct {
	Dir       string
	Required  int64
	Available int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space in %s: need %s, have %s",
		e.Dir, progress.FormatBytes(e.Required), progress.FormatBytes(e.Available))
}

type result struct {
	filename string
	err      error
}

// Execute fetches every request into dir, at most MaxConcurrency at a time.
// It returns nil once all transfers have finished, or a *FetchError as soon
// as any of them fails.
func Execute(ctx context.Context, dir string, requests []artifact.Request, opts Options) error {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Client == nil {
		opts.Client = dshttp.NewClient(dshttp.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	reporter := opts.Progress
	if reporter == nil {
		reporter = progress.NewReporter(progress.Options{Output: opts.Output})
	}

	var total int64
	for _, req := range requests {
		total += req.Length
	}

	if opts.CheckDiskSpace {
		if err := checkSpace(dir, total+opts.DiskHeadroom); err != nil {
			return err
		}
	}

	reporter.SetTotal(total)
	reporter.Start()

	runCtx := ctx
	if opts.CancelOnFailure {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrency))
	results := make(chan result, len(requests))

	for _, req := range requests {
		go func() {
			if err := sem.Acquire(runCtx, 1); err != nil {
				results <- result{filename: req.Filename, err: err}
				return
			}
			res, err := req.Fetch(runCtx, opts.Client, dir, reporter.Add)
			sem.Release(1)
			if err != nil {
				results <- result{filename: req.Filename, err: err}
				return
			}

			opts.Logger.WithFields(logrus.Fields{
				"file": res.Filename,
				"size": res.Size,
			}).Debug("Downloaded")
			reporter.Println(progress.DownloadedLine(res.Size, res.Filename))
			results <- result{filename: req.Filename}
		}()
	}

	for range requests {
		res := <-results
		if res.err != nil {
			reporter.Stop()
			return &FetchError{Filename: res.filename, Err: res.err}
		}
	}

	reporter.Finish()
	return nil
}

func checkSpace(dir string, required int64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("check disk space %s: %w", dir, err)
	}
	if int64(usage.Free) < required {
		return &InsufficientSpaceError{Dir: dir, Required: required, Available: int64(usage.Free)}
	}
	return nil
}
