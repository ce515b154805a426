package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ssh-control/pkg/manager"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestFetch_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `[{"hostName":"a"}]`)
	}))
	defer srv.Close()

	clock := newClock()
	s := New(WithClock(clock.now), WithTTL(time.Minute))
	cfg := manager.RemoteHostsConfig{Address: srv.URL}

	for i := 0; i < 3; i++ {
		res, err := s.Fetch(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
		if res.Stale || len(res.Response.Hosts) != 1 {
			t.Fatalf("unexpected result %+v", res)
		}
		clock.advance(10 * time.Second)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 network call, got %d", got)
	}

	clock.advance(time.Minute)
	if _, err := s.Fetch(context.Background(), cfg); err != nil {
		t.Fatalf("Fetch after TTL: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", got)
	}
}

func TestFetch_StaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "10.0.0.1:one")
	}))
	defer srv.Close()

	clock := newClock()
	s := New(WithClock(clock.now), WithTTL(time.Minute))
	cfg := manager.RemoteHostsConfig{Address: srv.URL}
	if _, err := s.Fetch(context.Background(), cfg); err != nil {
		t.Fatalf("initial Fetch: %v", err)
	}

	fail.Store(true)
	clock.advance(2 * time.Minute)
	res, err := s.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected stale result, got error %v", err)
	}
	if !res.Stale || res.Warning == nil || len(res.Response.Hosts) != 1 || res.Response.Hosts[0].Name != "one" {
		t.Fatalf("unexpected stale result %+v", res)
	}
	var se *StatusError
	if !errors.As(res.Warning, &se) || se.Code != 500 {
		t.Fatalf("expected StatusError warning, got %v", res.Warning)
	}
}

func TestFetch_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New()
	_, err := s.Fetch(context.Background(), manager.RemoteHostsConfig{Address: srv.URL})
	if err == nil || err.Error() != "HTTP 500: Internal Server Error" {
		t.Fatalf("expected HTTP 500 error, got %v", err)
	}
	if len(s.CacheInfo()) != 0 {
		t.Fatalf("failed fetch must not be cached")
	}
}

func TestFetch_BasicAuthAndCacheKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok {
			fmt.Fprint(w, `[]`)
			return
		}
		if pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `[{"hostName":"%s"}]`, user)
	}))
	defer srv.Close()

	s := New()
	withAuth := manager.RemoteHostsConfig{Address: srv.URL, BasicAuth: &manager.BasicAuth{Username: "alice", Password: "secret"}}
	res, err := s.Fetch(context.Background(), withAuth)
	if err != nil || len(res.Response.Hosts) != 1 || res.Response.Hosts[0].HostName != "alice" {
		t.Fatalf("unexpected auth result %+v %v", res, err)
	}
	res, err = s.Fetch(context.Background(), manager.RemoteHostsConfig{Address: srv.URL})
	if err != nil || len(res.Response.Hosts) != 0 {
		t.Fatalf("unauthenticated fetch should not reuse the authenticated entry: %+v %v", res, err)
	}
	if calls.Load() != 2 || len(s.CacheInfo()) != 2 {
		t.Fatalf("expected separate cache entries, got %d calls and %d entries", calls.Load(), len(s.CacheInfo()))
	}

	bad := manager.RemoteHostsConfig{Address: srv.URL, BasicAuth: &manager.BasicAuth{Username: "bob", Password: "wrong"}}
	if _, err := s.Fetch(context.Background(), bad); err == nil || !strings.HasPrefix(err.Error(), "HTTP 401") {
		t.Fatalf("expected HTTP 401, got %v", err)
	}
}

func TestFetch_TimestampSubstitution(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	clock := newClock()
	s := New(WithClock(clock.now))
	if _, err := s.Fetch(context.Background(), manager.RemoteHostsConfig{Address: srv.URL + "/h?ts=[timestamp]&b=[timestamp]"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	ms := clock.t.UnixMilli()
	if want, got := fmt.Sprintf("ts=%d&b=%d", ms, ms), <-queries; got != want {
		t.Fatalf("got query %q want %q", got, want)
	}
	if s.ProcessAddress("http://plain") != "http://plain" {
		t.Fatalf("addresses without the token must be unchanged")
	}
	info := s.CacheInfo()
	if len(info) != 1 || !strings.Contains(info[0].URL, "[timestamp]") {
		t.Fatalf("cache should be keyed by the configured address, got %+v", info)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := New(WithTimeout(50 * time.Millisecond))
	_, err := s.Fetch(context.Background(), manager.RemoteHostsConfig{Address: srv.URL})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "request timeout") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFetch_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hosts": 5}`)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), manager.RemoteHostsConfig{Address: srv.URL})
	if err == nil || !strings.HasPrefix(err.Error(), "failed to parse remote data") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCacheInfoAndClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hosts":[{"hostName":"a"},{"hostName":"b"}],"groups":[{"name":"g","hosts":[]}]}`)
	}))
	defer srv.Close()

	clock := newClock()
	s := New(WithClock(clock.now))
	for _, p := range []string{"/b", "/a"} {
		if _, err := s.Fetch(context.Background(), manager.RemoteHostsConfig{Address: srv.URL + p}); err != nil {
			t.Fatalf("Fetch %s: %v", p, err)
		}
	}
	clock.advance(90*time.Second + 500*time.Millisecond)

	info := s.CacheInfo()
	if len(info) != 2 || info[0].URL != srv.URL+"/a" || info[1].URL != srv.URL+"/b" {
		t.Fatalf("unexpected cache info %+v", info)
	}
	if info[0].Hosts != 2 || info[0].Groups != 1 || info[0].AgeSeconds != 90 {
		t.Fatalf("unexpected entry %+v", info[0])
	}

	s.ClearCache()
	if len(s.CacheInfo()) != 0 {
		t.Fatalf("expected empty cache after ClearCache")
	}
}
