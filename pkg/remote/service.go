// Package remote fetches, parses and caches remote host fragments that are
// merged into the tree at read time.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ssh-control/pkg/manager"
	"ssh-control/pkg/metrics"
)

const (
	DefaultTTL     = manager.DefaultCacheTTL
	DefaultTimeout = manager.DefaultFetchTimeout

	timestampToken = "[timestamp]"
	noAuthKey      = "noauth"
	maxBodyBytes   = 16 << 20
)

// ErrTimeout is returned when a download exceeds the configured timeout.
var ErrTimeout = errors.New("request timeout")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// CacheInfo describes one cached fragment.
type CacheInfo struct {
	URL        string `json:"url"`
	Hosts      int    `json:"hostsCount"`
	Groups     int    `json:"groupsCount"`
	AgeSeconds int64  `json:"age"`
}

type cacheEntry struct {
	address   string
	response  manager.RemoteResponse
	fetchedAt time.Time
}

// Service is a caching manager.RemoteSource over HTTP(S). Safe for concurrent
// use; concurrent misses for the same key each go to the network.
type Service struct {
	client  *http.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ manager.RemoteSource = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTTL sets how long a cached fragment is served without refetching.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithTimeout bounds each download.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now, for cache ageing and [timestamp] substitution.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Service with a 5 minute TTL and a 10 second timeout unless
// overridden.
func New(opts ...Option) *Service {
	s := &Service{
		client:  http.DefaultClient,
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     zap.NewNop(),
		cache:   map[string]cacheEntry{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func cacheKey(cfg manager.RemoteHostsConfig) string {
	user := ""
	if cfg.BasicAuth != nil {
		user = cfg.BasicAuth.Username
	}
	if user == "" {
		user = noAuthKey
	}
	return cfg.Address + ":" + user
}

// Fetch returns the fragment for cfg. A cached response younger than the TTL
// is returned without a network call. When a live fetch fails and an older
// cached response exists, that response is returned with Stale set and the
// fetch error in Warning. Otherwise the fetch error is returned.
func (s *Service) Fetch(ctx context.Context, cfg manager.RemoteHostsConfig) (manager.RemoteResult, error) {
	key := cacheKey(cfg)

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok && s.now().Sub(cached.fetchedAt) < s.ttl {
		metrics.RecordRemoteFetch(metrics.ResultHit, 0)
		return manager.RemoteResult{Response: cached.response}, nil
	}

	start := time.Now()
	resp, err := s.download(ctx, cfg)
	elapsed := time.Since(start)
	if err != nil {
		if ok {
			metrics.RecordRemoteFetch(metrics.ResultStale, elapsed)
			s.log.Warn("remote fetch failed, using cached data",
				zap.String("address", cfg.Address),
				zap.Duration("age", s.now().Sub(cached.fetchedAt)),
				zap.Error(err),
			)
			return manager.RemoteResult{Response: cached.response, Stale: true, Warning: err}, nil
		}
		metrics.RecordRemoteFetch(metrics.ResultError, elapsed)
		s.log.Error("remote fetch failed", zap.String("address", cfg.Address), zap.Error(err))
		return manager.RemoteResult{}, err
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{address: cfg.Address, response: resp, fetchedAt: s.now()}
	n := len(s.cache)
	s.mu.Unlock()
	metrics.RecordRemoteFetch(metrics.ResultFetched, elapsed)
	metrics.SetRemoteCacheEntries(n)
	s.log.Debug("remote fetch",
		zap.String("address", cfg.Address),
		zap.Int("hosts", len(resp.Hosts)),
		zap.Int("groups", len(resp.Groups)),
		zap.Duration("took", elapsed),
	)
	return manager.RemoteResult{Response: resp}, nil
}

// ProcessAddress substitutes every [timestamp] token with the current epoch
// milliseconds.
func (s *Service) ProcessAddress(address string) string {
	if !strings.Contains(address, timestampToken) {
		return address
	}
	return strings.ReplaceAll(address, timestampToken, strconv.FormatInt(s.now().UnixMilli(), 10))
}

func (s *Service) download(ctx context.Context, cfg manager.RemoteHostsConfig) (manager.RemoteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ProcessAddress(cfg.Address), nil)
	if err != nil {
		return manager.RemoteResponse{}, fmt.Errorf("build request: %w", err)
	}
	if cfg.BasicAuth != nil {
		req.SetBasicAuth(cfg.BasicAuth.Username, cfg.BasicAuth.Password)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return manager.RemoteResponse{}, s.wrapTimeout(ctx, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return manager.RemoteResponse{}, s.wrapTimeout(ctx, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return manager.RemoteResponse{}, &StatusError{Code: res.StatusCode, Status: http.StatusText(res.StatusCode)}
	}
	parsed, err := ParseResponse(body)
	if err != nil {
		return manager.RemoteResponse{}, fmt.Errorf("failed to parse remote data: %w", err)
	}
	return parsed, nil
}

// wrapTimeout maps our own deadline expiring to ErrTimeout. Cancellation by
// the caller is returned as is.
func (s *Service) wrapTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	}
	return err
}

// ClearCache drops every cached fragment.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.cache = map[string]cacheEntry{}
	s.mu.Unlock()
	metrics.SetRemoteCacheEntries(0)
}

// CacheInfo lists cached fragments sorted by URL, with ages in whole seconds.
func (s *Service) CacheInfo() []CacheInfo {
	now := s.now()
	s.mu.Lock()
	out := make([]CacheInfo, 0, len(s.cache))
	for _, e := range s.cache {
		out = append(out, CacheInfo{
			URL:        e.address,
			Hosts:      len(e.response.Hosts),
			Groups:     len(e.response.Groups),
			AgeSeconds: int64(now.Sub(e.fetchedAt) / time.Second),
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
