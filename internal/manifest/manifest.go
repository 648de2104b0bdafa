package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/dirsync/internal/artifact"
	dshttp "github.com/ligustah/dirsync/internal/http"
	"github.com/ligustah/dirsync/internal/inventory"
)

// sizeConcurrency bounds the size lookups Resolve runs at once.
const sizeConcurrency = 8

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("manifest: invalid")

// Entry declares one remote artifact.
type Entry struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
	Key    string `yaml:"key,omitempty"`
	Size   int64  `yaml:"size,omitempty"`
}

// Manifest is the desired content of a target directory.
type Manifest struct {
	// Overrides is a directory whose entries are installed as overrides.
	Overrides string  `yaml:"overrides,omitempty"`
	Artifacts []Entry `yaml:"artifacts"`

	// Logger receives size lookup warnings. Defaults to the logrus
	// standard logger.
	Logger logrus.FieldLogger `yaml:"-"`
}

// IsRemote reports whether location is fetched over HTTP rather than read
// from disk.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Load reads and validates a manifest from a local path or an http(s) URL.
// A relative overrides path in a local manifest is resolved against the
// manifest's own directory.
func Load(ctx context.Context, location string, client *dshttp.Client) (*Manifest, error) {
	data, err := read(ctx, location, client)
	if err != nil {
		return nil, err
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}

	if m.Overrides != "" && !filepath.IsAbs(m.Overrides) && !IsRemote(location) {
		m.Overrides = filepath.Join(filepath.Dir(location), m.Overrides)
	}
	return m, nil
}

func read(ctx context.Context, location string, client *dshttp.Client) ([]byte, error) {
	if !IsRemote(location) {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		return data, nil
	}

	if client == nil {
		client = dshttp.NewClient(dshttp.DefaultOptions())
	}
	body, err := client.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return data, nil
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry. Duplicate names are allowed; reconciliation
// keeps the first and warns about the rest.
func (m *Manifest) Validate() error {
	for i, e := range m.Artifacts {
		if err := e.validate(); err != nil {
			return fmt.Errorf("%w: artifact %d (%q): %v", ErrInvalid, i, e.Name, err)
		}
	}
	return nil
}

func (e Entry) validate() error {
	switch {
	case e.Name == "":
		return errors.New("name is required")
	case e.Name == "." || e.Name == ".." || strings.ContainsAny(e.Name, `/\`):
		return errors.New("name must be a plain file name")
	case e.Name == inventory.ArchiveDir:
		return errors.New("name is reserved")
	case strings.HasSuffix(e.Name, artifact.PartialSuffix):
		return fmt.Errorf("name must not end in %s", artifact.PartialSuffix)
	case e.Size < 0:
		return errors.New("size must not be negative")
	}

	hasURL := e.URL != ""
	hasBucket := e.Bucket != "" || e.Key != ""
	switch {
	case hasURL && hasBucket:
		return errors.New("set either url or bucket and key, not both")
	case !hasURL && !hasBucket:
		return errors.New("url or bucket and key is required")
	case hasBucket && (e.Bucket == "" || e.Key == ""):
		return errors.New("bucket and key must be set together")
	}
	return nil
}

func (e Entry) source() artifact.Fetcher {
	if e.URL != "" {
		return artifact.HTTPSource{URL: e.URL}
	}
	return artifact.BucketSource{BucketURL: e.Bucket, Key: e.Key}
}

// Resolve turns the manifest into work for a sync run. Missing sizes are
// looked up from the source; a failed lookup is logged and leaves the length
// at zero, since it only feeds progress estimates.
func (m *Manifest) Resolve(ctx context.Context, client *dshttp.Client) ([]artifact.Request, []artifact.Override, error) {
	log := m.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if client == nil {
		client = dshttp.NewClient(dshttp.DefaultOptions())
	}

	requests := make([]artifact.Request, len(m.Artifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeConcurrency)

	for i, e := range m.Artifacts {
		requests[i] = artifact.Request{
			Filename: e.Name,
			Length:   e.Size,
			Source:   e.source(),
		}
		if e.Size > 0 {
			continue
		}
		sizer, ok := requests[i].Source.(artifact.Sizer)
		if !ok {
			continue
		}
		g.Go(func() error {
			size, err := sizer.Size(gctx, client)
			if err != nil {
				log.WithError(err).WithField("file", e.Name).Warn("Could not determine size")
				return nil
			}
			requests[i].Length = size
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var overrides []artifact.Override
	if m.Overrides != "" {
		var err error
		overrides, err = artifact.ReadOverrides(m.Overrides)
		if err != nil {
			return nil, nil, err
		}
	}

	return requests, overrides, nil
}
