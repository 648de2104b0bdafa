//go:build integration

// Package testutils provides shared fixtures for integration tests: an
// artifact HTTP server, a MinIO bucket and content assertions.
package testutils

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

// Artifact is a named payload served or stored by a fixture.
type Artifact struct {
	Name string
	Data []byte
}

// GenerateTestData generates test data of the given size.
// Up to 10MB the pattern is deterministic; beyond that it is random.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 251)
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// ArtifactServer serves artifacts at "/<name>" and counts GET requests.
type ArtifactServer struct {
	*httptest.Server
	gets atomic.Int64
}

// ArtifactURL returns the address of the named artifact.
func (s *ArtifactServer) ArtifactURL(name string) string {
	return s.Server.URL + "/" + name
}

// Gets returns the number of GET requests served.
func (s *ArtifactServer) Gets() int64 {
	return s.gets.Load()
}

// StartArtifactServer starts an HTTP server for the given artifacts. It is
// closed when the test ends.
func StartArtifactServer(t *testing.T, artifacts []Artifact) *ArtifactServer {
	t.Helper()

	byPath := make(map[string][]byte, len(artifacts))
	for _, a := range artifacts {
		byPath["/"+a.Name] = a.Data
	}

	s := &ArtifactServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := byPath[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		s.gets.Add(1)
		w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// MinioEnv contains connection information for a MinIO test environment.
type MinioEnv struct {
	Container testcontainers.Container
	BucketURL string
	Endpoint  string
}

// Close terminates the MinIO container.
func (e *MinioEnv) Close(ctx context.Context) error {
	if e.Container != nil {
		return e.Container.Terminate(ctx)
	}
	return nil
}

// Put stores artifacts in the bucket under prefix.
func (e *MinioEnv) Put(t *testing.T, ctx context.Context, prefix string, artifacts ...Artifact) {
	t.Helper()

	bucket, err := blob.OpenBucket(ctx, e.BucketURL)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	for _, a := range artifacts {
		if err := bucket.WriteAll(ctx, prefix+a.Name, a.Data, nil); err != nil {
			t.Fatalf("put %s: %v", a.Name, err)
		}
	}
}

// StartMinioContainer starts MinIO with a pre-created bucket and exports
// credentials for the gocloud S3 driver.
func StartMinioContainer(t *testing.T, ctx context.Context, bucketName string) *MinioEnv {
	t.Helper()

	const (
		accessKey = "minioadmin"
		secretKey = "minioadmin"
	)

	// minio and mc talk over a private network
	networkName := fmt.Sprintf("dirsync-minio-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name: networkName,
		},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(ctx) })

	minioContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Networks:     []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"minio"},
			},
			Env: map[string]string{
				"MINIO_ROOT_USER":     accessKey,
				"MINIO_ROOT_PASSWORD": secretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio container: %v", err)
	}

	createBucket(t, ctx, networkName, accessKey, secretKey, bucketName)

	host, err := minioContainer.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := minioContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}
	endpoint := fmt.Sprintf("%s:%s", host, port.Port())

	t.Setenv("AWS_ACCESS_KEY_ID", accessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", secretKey)

	return &MinioEnv{
		Container: minioContainer,
		BucketURL: fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucketName, endpoint),
		Endpoint: endpoint,
	}
}

// createBucket runs a one-shot minio/mc container that creates the bucket.
func createBucket(t *testing.T, ctx context.Context, networkName, accessKey, secretKey, bucketName string) {
	t.Helper()

	mcContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "minio/mc:latest",
			Networks:   []string{networkName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd: []string{
				fmt.Sprintf(
					"/usr/bin/mc alias set local http://minio:9000 %s %s && "+
						"/usr/bin/mc mb local/%s; exit 0",
					accessKey, secretKey, bucketName,
				),
			},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mc container: %v", err)
	}
	defer mcContainer.Terminate(ctx)
}

// AssertFileContent streams the file at path and compares it with expected
// one megabyte at a time.
func AssertFileContent(t *testing.T, path string, expected []byte) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	buf := make([]byte, 1024*1024)
	offset := 0
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("%s: longer than expected %d bytes", path, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("%s: content mismatch at offset %d", path, offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("%s: read error at offset %d: %v", path, offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("%s: got %d bytes, want %d", path, offset, len(expected))
	}
}
