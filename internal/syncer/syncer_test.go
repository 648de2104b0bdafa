package syncer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/dirsync/internal/artifact"
	"github.com/ligustah/dirsync/internal/downloader"
	dshttp "github.com/ligustah/dirsync/internal/http"
	"github.com/ligustah/dirsync/internal/install"
	"github.com/ligustah/dirsync/internal/inventory"
)

type fileServer struct {
	*httptest.Server
	gets atomic.Int32
}

func serve(t *testing.T, files map[string][]byte) *fileServer {
	t.Helper()
	fs := &fileServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		fs.gets.Add(1)
		w.Write(data)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func client() *dshttp.Client {
	opts := dshttp.DefaultOptions()
	opts.RetryAttempts = 0
	opts.RetryBackoff = time.Millisecond
	return dshttp.NewClient(opts)
}

func options(t *testing.T, dir string, requests []artifact.Request, overrides []artifact.Override) (Options, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return Options{
		Directory: dir,
		Requests:  requests,
		Overrides: overrides,
		Client:    client(),
		Output:    &bytes.Buffer{},
		Logger:    logger,
	}, hook
}

func request(server *fileServer, name string, size int) artifact.Request {
	return artifact.Request{
		Filename: name,
		Length:   int64(size),
		Source:   artifact.HTTPSource{URL: server.URL + "/" + name},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunFullSync(t *testing.T) {
	modA := bytes.Repeat([]byte("a"), 4096)
	modB := bytes.Repeat([]byte("b"), 8192)
	server := serve(t, map[string][]byte{"/mod-a.jar": modA, "/mod-b.jar": modB})

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "config", "mod-a.toml"), "enabled = true")
	writeFile(t, filepath.Join(src, "config", "deep", "mod-b.toml"), "level = 3")

	dir := filepath.Join(t.TempDir(), "mods")
	requests := []artifact.Request{
		request(server, "mod-a.jar", len(modA)),
		request(server, "mod-b.jar", len(modB)),
	}
	overrides := []artifact.Override{{Name: "config", Path: filepath.Join(src, "config")}}

	opts, _ := options(t, dir, requests, overrides)
	out := opts.Output.(*bytes.Buffer)

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Installed)
	assert.Equal(t, int64(len(modA)+len(modB)), summary.Bytes)

	assert.Equal(t, string(modA), readFile(t, filepath.Join(dir, "mod-a.jar")))
	assert.Equal(t, string(modB), readFile(t, filepath.Join(dir, "mod-b.jar")))
	assert.Equal(t, "enabled = true", readFile(t, filepath.Join(dir, "config", "mod-a.toml")))
	assert.Equal(t, "level = 3", readFile(t, filepath.Join(dir, "config", "deep", "mod-b.toml")))

	assert.Contains(t, out.String(), "mod-a.jar")
	assert.Contains(t, out.String(), "mod-b.jar")
	assert.Contains(t, out.String(), "config")

	assert.Len(t, requests, 2, "caller slices are left alone")
}

func TestRunArchivesAndDeletes(t *testing.T) {
	server := serve(t, map[string][]byte{"/mod-a.jar": []byte("a")})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "unexpected.jar"), "u")
	writeFile(t, filepath.Join(dir, "stale.jar"+artifact.PartialSuffix), "half")

	opts, _ := options(t, dir, []artifact.Request{request(server, "mod-a.jar", 1)}, nil)
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"unexpected.jar"}, summary.Report.Archived)
	assert.Equal(t, []string{"stale.jar" + artifact.PartialSuffix}, summary.Report.Deleted)

	_, err = os.Stat(filepath.Join(dir, "unexpected.jar"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "u", readFile(t, filepath.Join(dir, inventory.ArchiveDir, "unexpected.jar")))

	_, err = os.Stat(filepath.Join(dir, inventory.ArchiveDir, "stale.jar"+artifact.PartialSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestRunAlreadySatisfied(t *testing.T) {
	server := serve(t, map[string][]byte{"/mod-a.jar": []byte("remote")})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mod-a.jar"), "local")

	opts, _ := options(t, dir, []artifact.Request{request(server, "mod-a.jar", 1024)}, nil)
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, int32(0), server.gets.Load())
	assert.Equal(t, "local", readFile(t, filepath.Join(dir, "mod-a.jar")))
}

func TestRunIdempotent(t *testing.T) {
	server := serve(t, map[string][]byte{"/mod-a.jar": []byte("a"), "/mod-b.jar": []byte("b")})
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "options.txt"), "o")

	dir := t.TempDir()
	requests := []artifact.Request{request(server, "mod-a.jar", 1), request(server, "mod-b.jar", 1)}
	overrides := []artifact.Override{{Name: "options.txt", Path: filepath.Join(src, "options.txt")}}

	opts, _ := options(t, dir, requests, overrides)
	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, int32(2), server.gets.Load())

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, 0, summary.Installed)
	assert.Empty(t, summary.Report.Archived)
	assert.Empty(t, summary.Report.Deleted)
	assert.Equal(t, int32(2), server.gets.Load())
}

func TestRunDuplicateFetchedOnce(t *testing.T) {
	server := serve(t, map[string][]byte{"/mod-b.jar": []byte("bbbbb")})

	first := request(server, "mod-b.jar", 500)
	second := artifact.Request{
		Filename: "mod-b.jar",
		Length:   900,
		Source: artifact.FetchFunc(func(context.Context, *dshttp.Client, string, string, artifact.ProgressFunc) (artifact.Result, error) {
			return artifact.Result{}, errors.New("dropped request must not be fetched")
		}),
	}

	dir := t.TempDir()
	opts, hook := options(t, dir, []artifact.Request{first, second}, nil)
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, []string{"mod-b.jar"}, summary.Report.Duplicates)
	assert.Equal(t, "bbbbb", readFile(t, filepath.Join(dir, "mod-b.jar")))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunFetchFailureKeepsSiblings(t *testing.T) {
	server := serve(t, map[string][]byte{"/mod-a.jar": []byte("a")})
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "options.txt"), "o")

	dir := t.TempDir()
	requests := []artifact.Request{request(server, "mod-a.jar", 1), request(server, "missing.jar", 1)}
	overrides := []artifact.Override{{Name: "options.txt", Path: filepath.Join(src, "options.txt")}}

	opts, _ := options(t, dir, requests, overrides)
	opts.MaxConcurrency = 1
	_, err := Run(context.Background(), opts)

	var fetchErr *downloader.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "missing.jar", fetchErr.Filename)
	assert.ErrorIs(t, err, dshttp.ErrNotFound)

	_, err = os.Stat(filepath.Join(dir, "options.txt"))
	assert.True(t, os.IsNotExist(err), "install runs only after downloads succeed")
}

func TestRunInstallFailure(t *testing.T) {
	dir := t.TempDir()
	opts, _ := options(t, dir, nil, []artifact.Override{{Name: "gone", Path: filepath.Join(t.TempDir(), "gone")}})

	_, err := Run(context.Background(), opts)

	var installErr *install.InstallError
	require.True(t, errors.As(err, &installErr))
	assert.Equal(t, "gone", installErr.Name)
}

func TestRunScanFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	writeFile(t, file, "x")

	opts, _ := options(t, file, nil, nil)
	_, err := Run(context.Background(), opts)

	var scanErr *inventory.ScanError
	assert.True(t, errors.As(err, &scanErr))
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.jar"), "k")
	writeFile(t, filepath.Join(dir, "old.jar"), "o")

	fetched := false
	keep := artifact.Request{
		Filename: "keep.jar",
		Source: artifact.FetchFunc(func(context.Context, *dshttp.Client, string, string, artifact.ProgressFunc) (artifact.Result, error) {
			fetched = true
			return artifact.Result{}, nil
		}),
	}
	missing := keep
	missing.Filename = "missing.jar"

	opts, _ := options(t, dir, []artifact.Request{keep, missing}, nil)
	report, err := Clean(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.jar"}, report.Satisfied)
	assert.Equal(t, []string{"old.jar"}, report.Archived)
	assert.False(t, fetched)

	_, err = os.Stat(filepath.Join(dir, "missing.jar"))
	assert.True(t, os.IsNotExist(err))
}
