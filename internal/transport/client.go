// Package transport fetches update metadata and payloads over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/adamancini/hotpush/internal/logging"
)

const (
	userAgent = "hotpush/%s"

	// DefaultMaxBodySize caps FetchBytes responses.
	DefaultMaxBodySize = 1 << 20
)

var log = logging.L("transport")

// Sink is a download destination that can be rewound for a retry.
type Sink interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// ProgressFunc reports bytes written so far and the expected total (-1 if unknown).
type ProgressFunc func(written, total int64)

// Fetcher is the transport the acquisition client and package store depend on.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	Download(ctx context.Context, url string, dst Sink, progress ProgressFunc) (int64, error)
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s", e.Code, e.URL)
}

// Retryable reports whether the server may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client implements Fetcher on net/http with exponential backoff.
type Client struct {
	http        *http.Client
	userAgent   string
	maxBodySize int64
	newBackOff  func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithVersion sets the version reported in the User-Agent header.
func WithVersion(version string) Option {
	return func(c *Client) { c.userAgent = fmt.Sprintf(userAgent, version) }
}

// WithBackOff sets the retry policy factory. Each request gets a fresh policy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// WithMaxBodySize caps the size of FetchBytes responses.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) { c.maxBodySize = n }
}

// New returns a Client with sane defaults.
func New(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: 5 * time.Minute},
		userAgent:   fmt.Sprintf(userAgent, "dev"),
		maxBodySize: DefaultMaxBodySize,
		newBackOff:  defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

// FetchBytes GETs url and returns the body.
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	op := func() error {
		resp, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if int64(len(data)) > c.maxBodySize {
			return backoff.Permanent(fmt.Errorf("response from %s exceeds %d bytes", url, c.maxBodySize))
		}
		return nil
	}

	if err := c.retry(ctx, url, op); err != nil {
		return nil, err
	}
	return data, nil
}

// Download GETs url into dst, rewinding dst before each retry.
func (c *Client) Download(ctx context.Context, url string, dst Sink, progress ProgressFunc) (int64, error) {
	var written int64
	attempt := 0
	op := func() error {
		if attempt > 0 {
			if err := dst.Truncate(0); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to truncate file on retry: %w", err))
			}
			if _, err := dst.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to seek to beginning of file: %w", err))
			}
		}
		attempt++

		resp, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var w io.Writer = dst
		if progress != nil {
			w = &progressWriter{w: dst, total: resp.ContentLength, report: progress}
		}
		written, err = io.Copy(w, resp.Body)
		if err != nil {
			return fmt.Errorf("failed to write response body: %w", err)
		}
		return nil
	}

	if err := c.retry(ctx, url, op); err != nil {
		return 0, err
	}
	return written, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		serr := &StatusError{URL: url, Code: resp.StatusCode}
		if !serr.Retryable() {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}
	return resp, nil
}

func (c *Client) retry(ctx context.Context, url string, op backoff.Operation) error {
	notify := func(err error, wait time.Duration) {
		log.Debug("request failed, retrying", "url", url, "wait", wait, logging.Err(err))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	report  ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.report(p.written, p.total)
	return n, err
}
