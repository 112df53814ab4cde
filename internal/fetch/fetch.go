// Package fetch loads fragment markup from http(s) and file URLs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps how much of a fragment is read.
const DefaultMaxBodyBytes = 2 << 20

// DefaultUserAgent is sent with every HTTP request.
const DefaultUserAgent = "htmlinc/1.0"

// Fetcher returns the body of the resource at rawURL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FetchError reports a fragment that could not be loaded. StatusCode is
// zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("failed to load %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("failed to load %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("failed to load %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("failed to load %s", e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each request; zero means no client-side timeout.
	Timeout time.Duration
	// Retries is the number of extra attempts on connection errors and 5xx.
	Retries      int
	MaxBodyBytes int64
	UserAgent    string
	Logger       *zap.Logger
}

// Client fetches http(s) URLs through a retrying pooled client and file
// URLs from disk.
type Client struct {
	http      *retryablehttp.Client
	maxBody   int64
	userAgent string
	log       *zap.Logger
}

// New builds a Client.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	hc := retryablehttp.NewClient()
	hc.HTTPClient = cleanhttp.DefaultPooledClient()
	hc.HTTPClient.Timeout = opts.Timeout
	hc.RetryMax = opts.Retries
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = leveledLogger{log.Sugar()}
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		http:      hc,
		maxBody:   opts.MaxBodyBytes,
		userAgent: opts.UserAgent,
		log:       log,
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBodyBytes
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	return c
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	switch u.Scheme {
	case "http", "https":
		return c.fetchHTTP(ctx, u.String())
	case "file":
		return c.fetchFile(ctx, u)
	default:
		return "", &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

func (c *Client) fetchHTTP(ctx context.Context, target string) (string, error) {
	start := time.Now()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &FetchError{URL: target, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return "", &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := c.read(resp.Body)
	if err != nil {
		return "", &FetchError{URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	c.log.Debug("fetched fragment",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))
	return body, nil
}

func (c *Client) fetchFile(ctx context.Context, u *url.URL) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: u.String(), Err: err}
	}
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		return "", &FetchError{URL: u.String(), Err: fmt.Errorf("remote file host %q", u.Host)}
	}
	f, err := os.Open(filepathFromURL(path))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		} else if errors.Is(err, os.ErrPermission) {
			status = http.StatusForbidden
		}
		return "", &FetchError{URL: u.String(), StatusCode: status, Err: err}
	}
	defer f.Close()

	body, err := c.read(f)
	if err != nil {
		return "", &FetchError{URL: u.String(), Err: err}
	}
	c.log.Debug("read fragment", zap.String("path", path), zap.Int("bytes", len(body)))
	return body, nil
}

func (c *Client) read(r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return "", fmt.Errorf("fragment exceeds %d bytes", c.maxBody)
	}
	return string(body), nil
}

func filepathFromURL(p string) string {
	if runtime.GOOS == "windows" && len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
