package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("dinoflash.firmware")

const (
	DefaultBaseURL         = "https://dinocore-telemetry-production.up.railway.app"
	DefaultListTimeout     = 15 * time.Second
	DefaultDownloadTimeout = 30 * time.Second
	DefaultStatusTimeout   = 5 * time.Second
)

// statusError is a non-2xx registry response.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.url, e.code)
}

// Client talks to the build registry.
type Client struct {
	BaseURL         string
	HTTP            *http.Client
	Clock           clock.Clock
	ListTimeout     time.Duration
	DownloadTimeout time.Duration
	// ListAttempts bounds the build list request. Transport errors and 5xx
	// responses are retried after ListRetryDelay.
	ListAttempts   int
	ListRetryDelay time.Duration
}

// NewClient returns a Client with the default timeouts.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		HTTP:            &http.Client{},
		Clock:           clock.WallClock,
		ListTimeout:     DefaultListTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		ListAttempts:    2,
		ListRetryDelay:  time.Second,
	}
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.BaseURL + "/api/" + strings.Join(escaped, "/")
}

func (c *Client) get(ctx context.Context, u string, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, nil, errors.Trace(err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		cancel()
		return nil, nil, errors.Trace(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, nil, &statusError{url: u, code: resp.StatusCode}
	}
	return resp, cancel, nil
}

// ListBuilds fetches the build list under path ("builds" or
// "testing-builds").
func (c *Client) ListBuilds(ctx context.Context, path string) ([]Build, error) {
	u := c.url(path)
	var builds []Build
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			resp, cancel, err := c.get(ctx, u, c.ListTimeout)
			if err != nil {
				return err
			}
			defer cancel()
			defer resp.Body.Close()
			builds = nil
			if err := json.NewDecoder(resp.Body).Decode(&builds); err != nil {
				return errors.Annotatef(err, "decoding build list")
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			if ctx.Err() != nil {
				return true
			}
			if se, ok := errors.Cause(err).(*statusError); ok {
				return se.code < 500
			}
			return false
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("listing builds (attempt %d): %v", attempt, err)
		},
		Attempts: c.ListAttempts,
		Delay:    c.ListRetryDelay,
		Clock:    c.Clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
			err = retry.LastError(err)
		}
		return nil, errors.Annotatef(err, "listing %s", path)
	}
	return builds, nil
}

// Download streams one artifact of a build to dest. The body is written to
// a temporary file next to dest and renamed once complete.
func (c *Client) Download(ctx context.Context, path string, id BuildID, fileType, dest string) error {
	u := c.url(path, string(id), "files", fileType, "download")
	resp, cancel, err := c.get(ctx, u, c.DownloadTimeout)
	if err != nil {
		return errors.Annotatef(err, "downloading %s", fileType)
	}
	defer cancel()
	defer resp.Body.Close()

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Trace(err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Annotatef(err, "downloading %s", fileType)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.Trace(err)
	}
	logger.Debugf("downloaded %s (%d bytes) to %s", fileType, n, dest)
	return nil
}

// Online pings the registry status endpoint.
func (c *Client) Online(ctx context.Context) bool {
	resp, cancel, err := c.get(ctx, c.url("status"), DefaultStatusTimeout)
	if err != nil {
		logger.Debugf("registry status: %v", err)
		return false
	}
	defer cancel()
	resp.Body.Close()
	return true
}
