package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"
)

func fastRetry(n uint64) Option {
	return WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, n)
	})
}

func TestFetchBytes(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(WithVersion("1.2.3"), fastRetry(0))
	data, err := c.FetchBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchBytes() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("FetchBytes() = %q", data)
	}
	if gotUA != "hotpush/1.2.3" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetchBytes_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	c := New(fastRetry(5))
	data, err := c.FetchBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchBytes() error = %v", err)
	}
	if string(data) != "done" || calls.Load() != 3 {
		t.Errorf("FetchBytes() = %q after %d calls", data, calls.Load())
	}
}

func TestFetchBytes_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(fastRetry(5))
	_, err := c.FetchBytes(context.Background(), server.URL)

	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusNotFound {
		t.Fatalf("FetchBytes() error = %v, want 404 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 was retried %d times", calls.Load())
	}
}

func TestFetchBytes_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	c := New(fastRetry(0), WithMaxBodySize(10))
	if _, err := c.FetchBytes(context.Background(), server.URL); err == nil {
		t.Error("FetchBytes() should reject oversized bodies")
	}
}

func TestFetchBytes_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fastRetry(3)).FetchBytes(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchBytes() error = %v, want context.Canceled", err)
	}
}

func TestDownload_RewindsOnRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	f, err := fs.Create("/download.zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("stale-bytes-from-before")); err != nil {
		t.Fatal(err)
	}

	var lastWritten int64
	n, err := New(fastRetry(2)).Download(context.Background(), server.URL, f, func(written, total int64) {
		lastWritten = written
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	_ = f.Close()

	data, _ := afero.ReadFile(fs, "/download.zip")
	if n != int64(len("payload")) || lastWritten != n {
		t.Errorf("Download() = %d bytes, progress saw %d", n, lastWritten)
	}
	if string(data) != "payload" {
		t.Errorf("downloaded content = %q", data)
	}
}

func TestDownload_FirstAttemptTruncatesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("abc"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	f, _ := fs.Create("/out")
	if _, err := New(fastRetry(0)).Download(context.Background(), server.URL, f, nil); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	_ = f.Close()

	data, _ := afero.ReadFile(fs, "/out")
	if string(data) != "abc" {
		t.Errorf("downloaded content = %q", data)
	}
}
