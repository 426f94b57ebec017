// Package query fetches server state for authenticated screens. Results
// are cached per key for a stale time, concurrent fetches of one key share
// a single request, and 401/403 answers end the owning sessions.
package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime = 30 * time.Second
	DefaultCacheTime = 5 * time.Minute
	// DefaultFetchTimeout bounds a shared fetch once it no longer follows
	// any one caller's context.
	DefaultFetchTimeout = 30 * time.Second
	defaultCacheSize = 256
)

// Result is what a screen renders from: data plus loading and error flags.
type Result[T any] struct {
	Data      T
	IsLoading bool
	IsError   bool
	Err       error
	UpdatedAt time.Time
}

func (r Result[T]) IsSuccess() bool {
	return !r.IsLoading && !r.IsError && !r.UpdatedAt.IsZero()
}

// Fetcher loads the data behind one query key.
type Fetcher[T any] func(ctx context.Context) (T, error)

type entry struct {
	value     any
	fetchedAt time.Time
}

// Client owns the cache shared by every query and mutation.
type Client struct {
	cache        *expirable.LRU[string, entry]
	group        singleflight.Group
	guard        *Guard
	staleTime    time.Duration
	cacheTime    time.Duration
	fetchTimeout time.Duration
	nowTime      func() time.Time
	logger       zerolog.Logger

	// epoch changes on every invalidation; a fetch that started in an
	// older epoch does not write its result to the cache.
	mu       sync.Mutex
	epoch    atomic.Uint64
	inflight map[string]int
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	staleTime    time.Duration
	cacheTime    time.Duration
	fetchTimeout time.Duration
	size         int
	guard        *Guard
	nowTime      func() time.Time
	logger       zerolog.Logger
}

// WithDefaultStaleTime sets how long a cached result is served without refetching.
func WithDefaultStaleTime(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.staleTime = d
	}
}

// WithCacheTime sets how long an unused result stays in memory.
func WithCacheTime(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.cacheTime = d
	}
}

// WithFetchTimeout bounds each request made on behalf of the cache. Zero
// means no bound.
func WithFetchTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.fetchTimeout = d
	}
}

func WithCacheSize(n int) ClientOption {
	return func(o *clientOptions) {
		o.size = n
	}
}

func WithGuard(g *Guard) ClientOption {
	return func(o *clientOptions) {
		o.guard = g
	}
}

// WithClock sets the clock (primarily for testing)
func WithClock(nowFunc func() time.Time) ClientOption {
	return func(o *clientOptions) {
		o.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

func NewClient(opts ...ClientOption) *Client {
	o := clientOptions{
		staleTime:    DefaultStaleTime,
		cacheTime:    DefaultCacheTime,
		fetchTimeout: DefaultFetchTimeout,
		size:         defaultCacheSize,
		nowTime:      time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheTime < o.staleTime {
		o.cacheTime = o.staleTime
	}
	if o.guard == nil {
		o.guard = NewGuard(o.logger)
	}
	c := &Client{
		cache:        expirable.NewLRU[string, entry](o.size, nil, o.cacheTime),
		guard:        o.guard,
		staleTime:    o.staleTime,
		cacheTime:    o.cacheTime,
		fetchTimeout: o.fetchTimeout,
		nowTime:      o.nowTime,
		logger:       o.logger,
		inflight:     make(map[string]int),
	}
	// Cached data belongs to the session that fetched it.
	c.guard.Register(c)
	return c
}

// Guard returns the guard every query error goes through.
func (c *Client) Guard() *Guard {
	return c.guard
}

// Invalidate drops the cached results for keys. Fetches already in
// flight still answer their callers but are not cached.
func (c *Client) Invalidate(keys ...string) {
	c.mu.Lock()
	c.epoch.Add(1)
	for _, key := range keys {
		c.cache.Remove(key)
	}
	c.mu.Unlock()
	for _, key := range keys {
		c.group.Forget(key)
	}
}

// InvalidateAll drops every cached result, as after a logout.
func (c *Client) InvalidateAll() {
	c.mu.Lock()
	c.epoch.Add(1)
	c.cache.Purge()
	keys := make([]string, 0, len(c.inflight))
	for key := range c.inflight {
		keys = append(keys, key)
	}
	c.mu.Unlock()
	for _, key := range keys {
		c.group.Forget(key)
	}
}

// add caches e unless an invalidation happened since epoch was read.
func (c *Client) add(key string, e entry, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != epoch {
		return false
	}
	c.cache.Add(key, e)
	return true
}

func (c *Client) track(key string) func() {
	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.inflight[key]--; c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
	}
}

// InvalidateSession purges the cache when the guard ends the sessions.
func (c *Client) InvalidateSession(context.Context) {
	c.InvalidateAll()
}

// Query is one cached server resource.
type Query[T any] struct {
	client    *Client
	key       string
	fetch     Fetcher[T]
	staleTime time.Duration
	enabled   func() bool
	inflight  atomic.Int32
}

type Option func(*queryOptions)

type queryOptions struct {
	staleTime time.Duration
	enabled   func() bool
}

// WithStaleTime overrides the client stale time for one query. It is
// capped by the client cache time.
func WithStaleTime(d time.Duration) Option {
	return func(o *queryOptions) {
		o.staleTime = d
	}
}

// WithEnabled gates the query, typically on IsAuthenticated. A disabled
// query returns an empty result without fetching.
func WithEnabled(enabled func() bool) Option {
	return func(o *queryOptions) {
		o.enabled = enabled
	}
}

func New[T any](c *Client, key string, fetch Fetcher[T], opts ...Option) *Query[T] {
	o := queryOptions{staleTime: c.staleTime}
	for _, opt := range opts {
		opt(&o)
	}
	if o.staleTime > c.cacheTime {
		o.staleTime = c.cacheTime
	}
	return &Query[T]{
		client:    c,
		key:       key,
		fetch:     fetch,
		staleTime: o.staleTime,
		enabled:   o.enabled,
	}
}

func (q *Query[T]) Key() string {
	return q.key
}

// Fetch returns the cached result while it is fresh and fetches otherwise.
// When a refetch fails the stale data is kept alongside the error.
func (q *Query[T]) Fetch(ctx context.Context) Result[T] {
	if q.enabled != nil && !q.enabled() {
		return Result[T]{}
	}
	cached, ok := q.client.cache.Get(q.key)
	if ok && q.client.nowTime().Sub(cached.fetchedAt) < q.staleTime {
		return Result[T]{Data: cached.value.(T), UpdatedAt: cached.fetchedAt}
	}
	return q.load(ctx, cached, ok)
}

// Refetch ignores the cache and always asks the server.
func (q *Query[T]) Refetch(ctx context.Context) Result[T] {
	if q.enabled != nil && !q.enabled() {
		return Result[T]{}
	}
	cached, ok := q.client.cache.Get(q.key)
	q.client.group.Forget(q.key)
	return q.load(ctx, cached, ok)
}

// State returns the cached result without fetching. IsLoading is set
// while a Fetch or Refetch of this query is waiting on the server.
func (q *Query[T]) State() Result[T] {
	if q.enabled != nil && !q.enabled() {
		return Result[T]{}
	}
	out := Result[T]{IsLoading: q.inflight.Load() > 0}
	if cached, ok := q.client.cache.Get(q.key); ok {
		out.Data = cached.value.(T)
		out.UpdatedAt = cached.fetchedAt
	}
	return out
}

func (q *Query[T]) load(ctx context.Context, stale entry, hasStale bool) Result[T] {
	q.inflight.Add(1)
	defer q.inflight.Add(-1)
	defer q.client.track(q.key)()

	ch := q.client.group.DoChan(q.key, func() (any, error) {
		// Followers share this fetch, so it must outlive the caller that
		// started it. Every caller still stops waiting on its own ctx.
		fctx := context.WithoutCancel(ctx)
		if q.client.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, q.client.fetchTimeout)
			defer cancel()
		}

		epoch := q.client.epoch.Load()
		v, err := q.fetch(fctx)
		if err != nil {
			return nil, q.client.guard.Check(fctx, err)
		}
		e := entry{value: v, fetchedAt: q.client.nowTime()}
		if !q.client.add(q.key, e, epoch) {
			q.client.logger.Debug().Str("key", q.key).Msg("Cache invalidated during fetch, result not cached")
		}
		return e, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}

	if res.Err != nil {
		q.client.logger.Debug().Err(res.Err).Str("key", q.key).Msg("Query failed")
		out := Result[T]{IsError: true, Err: errors.Wrapf(res.Err, "query %s", q.key)}
		if hasStale {
			out.Data = stale.value.(T)
			out.UpdatedAt = stale.fetchedAt
		}
		return out
	}
	e := res.Val.(entry)
	return Result[T]{Data: e.value.(T), UpdatedAt: e.fetchedAt}
}
