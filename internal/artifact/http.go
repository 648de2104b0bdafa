package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.bug.st/downloader/v2"

	dshttp "github.com/ligustah/dirsync/internal/http"
)

// DefaultPollInterval is how often an HTTP transfer reports progress.
const DefaultPollInterval = 100 * time.Millisecond

// HTTPSource fetches an artifact from a plain HTTP(S) URL.
type HTTPSource struct {
	URL string

	// PollInterval is how often progress is reported.
	// Default: DefaultPollInterval
	PollInterval time.Duration
}

// Fetch streams URL into dir/filename.part and renames it on success. Hosts
// that refuse HEAD are read with a single GET instead.
func (s HTTPSource) Fetch(ctx context.Context, client *dshttp.Client, dir, filename string, onProgress ProgressFunc) (Result, error) {
	if client == nil {
		client = dshttp.NewClient(dshttp.DefaultOptions())
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	// The transfer ignores the HEAD status, so a missing artifact has to be
	// caught here.
	_, err := client.Head(ctx, s.URL)
	switch {
	case errors.Is(err, dshttp.ErrMethodNotAllowed):
		return s.stream(ctx, client, dir, filename, onProgress)
	case err != nil:
		return Result{}, fmt.Errorf("head %s: %w", s.URL, err)
	}

	cfg := downloader.Config{
		HttpClient: *client.HTTPClient(),
		// Leftover partial files are removed by reconciliation, never resumed.
		DoNotResumeDownload: true,
		ExtraHeaders:        client.Headers(),
	}

	d, err := downloader.DownloadWithConfigAndContext(ctx, partialPath(dir, filename), s.URL, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("start transfer %s: %w", s.URL, err)
	}
	if err := dshttp.CheckStatus(d.Resp.StatusCode); err != nil {
		d.Close()
		os.Remove(partialPath(dir, filename))
		return Result{}, fmt.Errorf("transfer %s: %w", s.URL, err)
	}
	length := d.Resp.ContentLength

	var reported int64
	poll := func(current int64) {
		if current > reported {
			onProgress(current - reported)
			reported = current
		}
	}
	if err := d.RunAndPoll(poll, interval); err != nil {
		return Result{}, fmt.Errorf("transfer %s: %w", s.URL, err)
	}

	size := d.Completed()
	if length >= 0 && size != length {
		return Result{}, fmt.Errorf("transfer %s: short read: got %d of %d bytes", s.URL, size, length)
	}

	if err := commit(dir, filename); err != nil {
		return Result{}, err
	}
	return Result{Filename: filename, Size: size}, nil
}

func (s HTTPSource) stream(ctx context.Context, client *dshttp.Client, dir, filename string, onProgress ProgressFunc) (Result, error) {
	body, length, err := client.Stream(ctx, s.URL)
	if err != nil {
		return Result{}, fmt.Errorf("transfer %s: %w", s.URL, err)
	}
	defer body.Close()

	n, err := writePartial(dir, filename, body, onProgress)
	if err != nil {
		return Result{}, fmt.Errorf("transfer %s: %w", s.URL, err)
	}
	if length >= 0 && n != length {
		return Result{}, fmt.Errorf("transfer %s: short read: got %d of %d bytes", s.URL, n, length)
	}

	if err := commit(dir, filename); err != nil {
		return Result{}, err
	}
	return Result{Filename: filename, Size: n}, nil
}

// Size asks the server for the artifact size. It returns 0 when the server
// does not report one or refuses HEAD.
func (s HTTPSource) Size(ctx context.Context, client *dshttp.Client) (int64, error) {
	info, err := client.Head(ctx, s.URL)
	if errors.Is(err, dshttp.ErrMethodNotAllowed) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", s.URL, err)
	}
	return info.Length(), nil
}
