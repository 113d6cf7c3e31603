package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
)

// Defaults for the checker.
const (
	DefaultCacheTTL      = 10 * time.Minute
	DefaultCacheSize     = 256
	DefaultRetries       = 3
	DefaultRetryInterval = 500 * time.Millisecond
	DefaultGitHubAPI     = "https://api.github.com"
)

// release is the newest build a provider offers.
type release struct {
	// Version is the release's version as the provider states it.
	Version addon.Version
	// Tag is the semver tag of GitHub releases.
	Tag string
	URL string
}

// Checker implements addon.UpdateChecker over HTTP.
type Checker struct {
	client        *http.Client
	log           *logrus.Entry
	cache         *expirable.LRU[string, *release]
	retries       uint64
	retryInterval time.Duration
	githubAPI     string
	userAgent     string
}

var _ addon.UpdateChecker = (*Checker)(nil)

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) {
		if c != nil {
			ch.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(ch *Checker) {
		if l != nil {
			ch.log = l
		}
	}
}

// WithCacheTTL sets how long provider answers are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(ch *Checker) {
		ch.cache = expirable.NewLRU[string, *release](DefaultCacheSize, nil, ttl)
	}
}

// WithRetries sets how often transient failures are retried and the
// initial wait between attempts.
func WithRetries(n uint64, interval time.Duration) Option {
	return func(ch *Checker) {
		ch.retries = n
		ch.retryInterval = interval
	}
}

// WithGitHubAPI sets the GitHub API base URL.
func WithGitHubAPI(base string) Option {
	return func(ch *Checker) {
		ch.githubAPI = base
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(ch *Checker) {
		ch.userAgent = ua
	}
}

// NewChecker creates a checker.
func NewChecker(opts ...Option) *Checker {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	c := &Checker{
		client:        &http.Client{Timeout: 2 * time.Minute},
		log:           logrus.NewEntry(l),
		cache:         expirable.NewLRU[string, *release](DefaultCacheSize, nil, DefaultCacheTTL),
		retries:       DefaultRetries,
		retryInterval: DefaultRetryInterval,
		githubAPI:     DefaultGitHubAPI,
		userAgent:     "addonhost",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAndMaybeDownload asks the addon's provider for its newest build and
// stages it at req.Path + addon.UpdateSuffix when it is newer than
// req.Version. It reports whether an update was staged.
func (c *Checker) CheckAndMaybeDownload(ctx context.Context, req addon.UpdateRequest) (bool, error) {
	log := c.log.WithFields(logrus.Fields{
		"addon":    req.Name,
		"provider": req.Provider.String(),
		"version":  req.Version.String(),
	})

	rel, err := c.latest(ctx, req)
	if err != nil {
		return false, err
	}
	if rel == nil || !newer(rel, req) {
		log.Debug("addon is up to date")
		return false, nil
	}

	log = log.WithField("available", rel.Version.String())
	if err := c.download(ctx, rel.URL, req.Path+addon.UpdateSuffix); err != nil {
		return false, err
	}
	log.Info("staged addon update")
	return true, nil
}

// latest returns the provider's newest release, or nil if it has none.
func (c *Checker) latest(ctx context.Context, req addon.UpdateRequest) (*release, error) {
	key := fmt.Sprintf("%s|%s|%t|%s", req.Provider, req.UpdateLink, req.AllowPrereleases, filepath.Base(req.Path))
	if rel, ok := c.cache.Get(key); ok {
		return rel, nil
	}

	var (
		rel *release
		err error
	)
	switch req.Provider {
	case addon.ProviderGitHub:
		rel, err = c.github(ctx, req)
	case addon.ProviderDirect:
		rel, err = c.direct(ctx, req)
	default:
		return nil, fmt.Errorf("%w: provider %s", ErrBadLink, req.Provider)
	}
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, rel)
	return rel, nil
}

// Forget drops cached provider answers.
func (c *Checker) Forget() {
	c.cache.Purge()
}

func newer(rel *release, req addon.UpdateRequest) bool {
	if rel.Tag != "" {
		return compareTag(rel.Tag, req.Version) > 0
	}
	return rel.Version.Compare(req.Version) > 0
}

// retry runs op until it succeeds, fails permanently or runs out of
// attempts.
func (c *Checker) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrBadManifest) || errors.Is(err, ErrEmptyDownload) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.log.WithError(err).WithField("retry_in", wait).Debugf("%s failed", what)
	})
}

// get performs a GET and hands the body to read when the status is 200.
func (c *Checker) get(ctx context.Context, url, accept string, read func(io.Reader) error) error {
	return c.retry(ctx, "GET "+url, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrBadLink, err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{URL: url, Code: resp.StatusCode}
		}
		return read(resp.Body)
	})
}

// download writes url to dest through a temporary file in dest's
// directory, so dest only ever holds a complete file.
func (c *Checker) download(ctx context.Context, url, dest string) error {
	dir := filepath.Dir(dest)
	return c.get(ctx, url, "application/octet-stream", func(body io.Reader) error {
		tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.download")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create download file: %w", err))
		}
		tmpName := tmp.Name()
		n, err := io.Copy(tmp, body)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err == nil && n == 0 {
			err = ErrEmptyDownload
		}
		if err == nil {
			err = os.Rename(tmpName, dest)
		}
		if err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("download %s: %w", url, err)
		}
		return nil
	})
}
