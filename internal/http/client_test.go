package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("Last-Modified", "Sat, 01 Jan 2025 00:00:00 GMT")
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	info, err := client.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}

	if info.Size != 1024 {
		t.Errorf("expected size 1024, got %d", info.Size)
	}
	if info.Length() != 1024 {
		t.Errorf("expected length 1024, got %d", info.Length())
	}
	if info.LastModified.IsZero() {
		t.Error("expected LastModified to be parsed")
	}
}

func TestHeadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Head(context.Background(), server.URL)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("artifacts: []\n"))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.UserAgent = "dirsync-test"
	client := NewClient(opts)

	body, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "artifacts: []\n" {
		t.Errorf("unexpected body %q", string(data))
	}
	if ua, _ := userAgent.Load().(string); ua != "dirsync-test" {
		t.Errorf("expected user agent 'dirsync-test', got %q", ua)
	}
	if client.Headers()["User-Agent"] != "dirsync-test" {
		t.Errorf("expected Headers to carry the user agent, got %v", client.Headers())
	}
}

func TestGetForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Get(context.Background(), server.URL)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Length", "10")
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.RetryBackoff = 10 * time.Millisecond
	opts.RetryMaxBackoff = 50 * time.Millisecond

	client := NewClient(opts)
	info, err := client.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if info.Size != 10 {
		t.Errorf("expected size 10, got %d", info.Size)
	}
}

func TestRetryExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.RetryAttempts = 2
	opts.RetryBackoff = time.Millisecond
	opts.RetryMaxBackoff = 5 * time.Millisecond

	client := NewClient(opts)
	_, err := client.Get(context.Background(), server.URL)
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusOK, nil},
		{http.StatusNoContent, nil},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusMethodNotAllowed, ErrMethodNotAllowed},
		{http.StatusInternalServerError, ErrServerError},
	}

	for _, tt := range tests {
		err := CheckStatus(tt.code)
		if tt.want == nil {
			if err != nil {
				t.Errorf("CheckStatus(%d) = %v, want nil", tt.code, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("CheckStatus(%d) = %v, want %v", tt.code, err, tt.want)
		}
	}

	if err := CheckStatus(http.StatusTeapot); err == nil {
		t.Error("expected error for 418")
	}
}

func TestArtifactInfoLength(t *testing.T) {
	if got := (ArtifactInfo{Size: -1}).Length(); got != 0 {
		t.Errorf("unknown size: expected length 0, got %d", got)
	}
	if got := (ArtifactInfo{Size: 42}).Length(); got != 42 {
		t.Errorf("expected length 42, got %d", got)
	}
}

func TestHeadMethodNotAllowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Head(context.Background(), server.URL)
	if !errors.Is(err, ErrMethodNotAllowed) {
		t.Errorf("expected ErrMethodNotAllowed, got %v", err)
	}
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	body, length, err := client.Stream(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	if length != 5 {
		t.Errorf("expected length 5, got %d", length)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "hello" {
		t.Errorf("unexpected body %q", string(data))
	}
}

func TestTransferClientHasNoDeadline(t *testing.T) {
	client := NewClient(DefaultOptions())
	if client.HTTPClient().Timeout != 0 {
		t.Errorf("expected transfer client without timeout, got %v", client.HTTPClient().Timeout)
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(DefaultOptions())
	_, err := client.Head(ctx, server.URL)
	if err == nil {
		t.Error("expected error due to context cancellation")
	}
}
