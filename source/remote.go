package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/greut/iiif3/cache"
)

// FetchError is a failed download from the origin. It counts as not found.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("cannot fetch %s: %d (%s)", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *FetchError) Is(target error) bool {
	return target == ErrNotFound
}

// Remote downloads the images from an origin once and keeps them in a proxy
// directory. The copies are never refreshed.
type Remote struct {
	baseURL string
	proxy   string
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group

	hits    atomic.Uint64
	fetches atomic.Uint64
	errors  atomic.Uint64
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithClient sets the HTTP client.
func WithClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = client
	}
}

// WithTimeout bounds every download.
func WithTimeout(timeout time.Duration) RemoteOption {
	return func(r *Remote) {
		r.client.Timeout = timeout
	}
}

// WithRateLimit limits the downloads per second, with bursts.
func WithRateLimit(limit float64, burst int) RemoteOption {
	return func(r *Remote) {
		if limit > 0 {
			if burst < 1 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		}
	}
}

// NewRemote creates a source fetching from baseURL into proxy.
func NewRemote(baseURL, proxy string, opts ...RemoteOption) (*Remote, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}

	r := &Remote{
		baseURL: baseURL,
		proxy:   proxy,
		client:  &http.Client{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// URL is where name is downloaded from: the base URL followed by the cleaned
// name, as is. The same cleaned name locates the proxy copy.
func (r *Remote) URL(name string) string {
	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+name), "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.baseURL + strings.Join(segments, "/")
}

// Lookup implements Source. Concurrent lookups of a missing name share a
// single download.
func (r *Remote) Lookup(ctx context.Context, name string) (string, error) {
	p := safeJoin(r.proxy, name)
	if isFile(p) {
		r.hits.Add(1)
		return p, nil
	}

	// the download outlives a caller going away, the others may wait on it.
	ctx = context.WithoutCancel(ctx)

	_, err, _ := r.group.Do(p, func() (interface{}, error) {
		if isFile(p) {
			return nil, nil
		}
		return nil, r.fetch(ctx, name, p)
	})
	if err != nil {
		r.errors.Add(1)
		return "", err
	}

	return p, nil
}

func (r *Remote) fetch(ctx context.Context, name, p string) error {
	u := r.URL(name)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return &FetchError{URL: u, Err: err}
		}
	}

	r.fetches.Add(1)
	body, err := r.download(ctx, u)
	if err != nil {
		zap.S().Warnw("download failed", "url", u, "error", err)
		return asFetchError(u, err)
	}

	if err := cache.WriteFile(p, body); err != nil {
		zap.S().Errorw("cannot keep the download", "url", u, "path", p, "error", err)
		return &FetchError{URL: u, Err: err}
	}

	zap.S().Infow("downloaded",
		"url", u,
		"path", p,
		"bytes", len(body),
	)

	return nil
}

// asFetchError keeps the first FetchError found in err, or wraps err.
func asFetchError(u string, err error) error {
	var ferr *FetchError
	if errors.As(err, &ferr) {
		return ferr
	}
	return &FetchError{URL: u, Err: err}
}

func (r *Remote) download(ctx context.Context, u string) (body []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	defer multierr.AppendInvoke(&err, multierr.Close(resp.Body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode, Err: err}
	}

	return body, nil
}
