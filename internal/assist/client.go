// Package assist fetches articulation agreement data from the static data
// CDN, with bounded retries, rate limiting and a persistent read-through
// cache.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/storage/sqlite"
)

var (
	// ErrPermissionDenied marks payloads the source refuses to serve. It is
	// cached permanently and never retried.
	ErrPermissionDenied = errors.New("agreement data: permission denied")
	ErrNotFound         = errors.New("agreement data: not found")
)

const maxBodyBytes = 32 << 20

// Cache stores raw responses keyed by request path.
type Cache interface {
	Get(key string) (sqlite.CacheEntry, bool, error)
	Put(e sqlite.CacheEntry) error
}

type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	MaxAttempts   int
	Backoff       time.Duration
	RatePerSecond float64
	Concurrency   int
	CacheTTL      time.Duration
	Cache         Cache
	Metrics       *Metrics
	Logger        *zap.Logger
}

type Client struct {
	baseURL     string
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
	concurrency int
	cacheTTL    time.Duration
	cache       Cache
	limiter     *rate.Limiter
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:     opts.BaseURL,
		http:        opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		concurrency: opts.Concurrency,
		cacheTTL:    opts.CacheTTL,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	c.limiter = rate.NewLimiter(limit, 1)
	return c
}

// DirectoryPath and MajorPath are the cache keys and URL paths of the two
// payload kinds.
func DirectoryPath() string {
	return "data.json"
}

func MajorPath(fromID, toID int, major string) string {
	return strconv.Itoa(fromID) + "/" + strconv.Itoa(toID) + "/" + url.PathEscape(domain.EscapeForFilename(major)) + ".json"
}

func (c *Client) Directory(ctx context.Context) (domain.Directory, error) {
	var d domain.Directory
	err := c.getJSON(ctx, DirectoryPath(), true, &d)
	return d, err
}

func (c *Client) MajorAgreement(ctx context.Context, fromID, toID int, major string) (domain.MajorAgreement, error) {
	var m domain.MajorAgreement
	err := c.getJSON(ctx, MajorPath(fromID, toID, major), true, &m)
	return m, err
}

// Refresh refetches a path from the source, bypassing fresh cache entries.
func (c *Client) Refresh(ctx context.Context, path string) error {
	_, err := c.get(ctx, path, false)
	return err
}

type MajorRequest struct {
	FromID int
	ToID   int
	Major  string
}

// MajorResult carries either the payload or the error that prevented it.
type MajorResult struct {
	MajorRequest
	Agreement *domain.MajorAgreement
	Err       error
}

// FetchMajors loads every requested major concurrently. Failures are reported
// per result and never cancel the other fetches.
func (c *Client) FetchMajors(ctx context.Context, reqs []MajorRequest) []MajorResult {
	results := make([]MajorResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			m, err := c.MajorAgreement(gctx, req.FromID, req.ToID, req.Major)
			results[i] = MajorResult{MajorRequest: req, Err: err}
			if err == nil {
				results[i].Agreement = &m
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Client) getJSON(ctx context.Context, path string, useCache bool, out any) error {
	body, err := c.get(ctx, path, useCache)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, useCache bool) ([]byte, error) {
	var stale *sqlite.CacheEntry
	if c.cache != nil {
		entry, ok, err := c.cache.Get(path)
		if err != nil {
			c.logger.Warn("agreement cache read failed", zap.String("path", path), zap.Error(err))
		} else if ok {
			if useCache && c.fresh(entry) {
				c.metrics.observe(outcomeCacheHit)
				return cachedResult(entry)
			}
			stale = &entry
		}
	}

	start := c.now()
	status, body, err := c.fetch(ctx, path)
	c.metrics.duration.Observe(c.now().Sub(start).Seconds())

	switch {
	case err == nil:
		c.metrics.observe(outcomeOK)
		c.store(sqlite.CacheEntry{Key: path, Status: http.StatusOK, Body: body, FetchedAt: c.now().UTC()})
		return body, nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrNotFound):
		if errors.Is(err, ErrPermissionDenied) {
			c.metrics.observe(outcomeDenied)
		} else {
			c.metrics.observe(outcomeNotFound)
		}
		c.store(sqlite.CacheEntry{Key: path, Status: status, FetchedAt: c.now().UTC()})
		return nil, err
	}

	if stale != nil && stale.Status == http.StatusOK && ctx.Err() == nil {
		c.metrics.observe(outcomeStale)
		c.logger.Warn("serving stale agreement data", zap.String("path", path), zap.Time("fetched_at", stale.FetchedAt), zap.Error(err))
		return stale.Body, nil
	}
	c.metrics.observe(outcomeError)
	return nil, err
}

func (c *Client) fresh(e sqlite.CacheEntry) bool {
	if e.Status == http.StatusForbidden || e.Status == http.StatusUnauthorized {
		return true
	}
	if c.cacheTTL <= 0 {
		return false
	}
	return c.now().Sub(e.FetchedAt) < c.cacheTTL
}

func cachedResult(e sqlite.CacheEntry) ([]byte, error) {
	switch e.Status {
	case http.StatusOK:
		return e.Body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", e.Key, ErrPermissionDenied)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", e.Key, ErrNotFound)
	}
	return nil, fmt.Errorf("%s: cached status %d", e.Key, e.Status)
}

func (c *Client) store(e sqlite.CacheEntry) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(e); err != nil {
		c.logger.Warn("agreement cache write failed", zap.String("path", e.Key), zap.Error(err))
	}
}

// fetch performs the GET with bounded retries. Transport errors, 5xx and 429
// are retried with linear backoff; everything else returns immediately.
func (c *Client) fetch(ctx context.Context, path string) (int, []byte, error) {
	target := c.baseURL + "/" + path
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.retries.Inc()
			if err := c.sleep(ctx, time.Duration(attempt-1)*c.backoff); err != nil {
				return 0, nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}

		status, body, err := c.do(ctx, target)
		if err == nil {
			return status, body, nil
		}
		lastErr = err
		if !retryable(status, err) || ctx.Err() != nil {
			return status, nil, err
		}
		c.logger.Debug("agreement fetch failed, retrying",
			zap.String("path", path), zap.Int("attempt", attempt), zap.Int("status", status), zap.Error(err))
	}
	return 0, nil, fmt.Errorf("fetch %s: giving up after %d attempts: %w", path, c.maxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", target, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.StatusCode, body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, nil, fmt.Errorf("GET %s: %w", target, ErrPermissionDenied)
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil, fmt.Errorf("GET %s: %w", target, ErrNotFound)
	}
	return resp.StatusCode, nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
}

func retryable(status int, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status == 0 {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// memoryCache is a process-local Cache for callers without a database.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]sqlite.CacheEntry
}

// NewMemoryCache returns an in-memory Cache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]sqlite.CacheEntry)}
}

func (m *memoryCache) Get(key string) (sqlite.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memoryCache) Put(e sqlite.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}
