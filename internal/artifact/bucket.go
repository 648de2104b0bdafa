package artifact

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	dshttp "github.com/ligustah/dirsync/internal/http"
)

// ErrObjectNotFound is returned when a bucket source names a missing key.
var ErrObjectNotFound = errors.New("artifact: object not found")

// BucketSource fetches an artifact from object storage. BucketURL is any
// URL gocloud.dev/blob can open for the drivers linked into the binary
// (s3://, gs://, file://).
type BucketSource struct {
	BucketURL string
	Key       string
}

// Fetch copies the object into dir/filename.part and renames it on success.
// The network client is unused; bucket drivers bring their own transport.
func (s BucketSource) Fetch(ctx context.Context, _ *dshttp.Client, dir, filename string, onProgress ProgressFunc) (Result, error) {
	bucket, err := blob.OpenBucket(ctx, s.BucketURL)
	if err != nil {
		return Result{}, fmt.Errorf("open bucket %s: %w", s.BucketURL, err)
	}
	defer bucket.Close()

	r, err := bucket.NewReader(ctx, s.Key, nil)
	if err != nil {
		return Result{}, s.wrap("open object", err)
	}
	defer r.Close()

	n, err := writePartial(dir, filename, r, onProgress)
	if err != nil {
		return Result{}, s.wrap("read object", err)
	}

	if err := commit(dir, filename); err != nil {
		return Result{}, err
	}
	return Result{Filename: filename, Size: n}, nil
}

// Size returns the object size from its attributes.
func (s BucketSource) Size(ctx context.Context, _ *dshttp.Client) (int64, error) {
	bucket, err := blob.OpenBucket(ctx, s.BucketURL)
	if err != nil {
		return 0, fmt.Errorf("open bucket %s: %w", s.BucketURL, err)
	}
	defer bucket.Close()

	attrs, err := bucket.Attributes(ctx, s.Key)
	if err != nil {
		return 0, s.wrap("stat object", err)
	}
	return attrs.Size, nil
}

func (s BucketSource) wrap(op string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%s %s: %w", op, s.Key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, s.Key, err)
}
