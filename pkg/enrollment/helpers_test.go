package enrollment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/learnizone/enrollcore/pkg/cache"
	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeClock advances one second per reading so timestamps are distinct
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store  storage.Store
	svc    *Service
	cache  *fakeCache
	events *fakePublisher
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore(), mutate...)
}

func newFixtureWithStore(t *testing.T, store storage.Store, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{store: store, cache: newFakeCache(), events: &fakePublisher{}}
	clock := &fakeClock{now: testEpoch}
	cfg := Config{
		MaxAttempts:  5,
		RetryBackoff: time.Millisecond,
		Cache:        f.cache,
		Events:       f.events,
		Clock:        clock.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := NewService(store, cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) counter(t *testing.T, courseID string) int {
	t.Helper()
	n, err := f.svc.CourseCounter(context.Background(), courseID)
	require.NoError(t, err)
	return n
}

func (f *fixture) courses(t *testing.T, userID string) []string {
	t.Helper()
	courses, err := f.svc.EnrolledCourses(context.Background(), userID)
	require.NoError(t, err)
	return courses
}

func (f *fixture) records(t *testing.T, userID, courseID string) []*types.Enrollment {
	t.Helper()
	records, err := f.svc.pairRecords(context.Background(), userID, courseID)
	require.NoError(t, err)
	return records
}

func (f *fixture) activeCount(t *testing.T, userID, courseID string) int {
	t.Helper()
	return len(filterStatus(f.records(t, userID, courseID), types.EnrollmentStatusActive))
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]*types.CourseStats
	generations map[string]uint64
	invalidated []string
	err         error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries:     make(map[string]*types.CourseStats),
		generations: make(map[string]uint64),
	}
}

func (c *fakeCache) Get(_ context.Context, courseID string) (*types.CourseStats, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, 0, c.err
	}
	gen := c.generations[courseID]
	stats, ok := c.entries[courseID]
	if !ok {
		return nil, gen, cache.ErrMiss
	}
	return stats, gen, nil
}

func (c *fakeCache) Set(_ context.Context, stats *types.CourseStats, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.generations[stats.CourseID] != gen {
		return cache.ErrStale
	}
	c.entries[stats.CourseID] = stats
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, courseID)
	c.generations[courseID]++
	delete(c.entries, courseID)
	return c.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *fakePublisher) Publish(e *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) eventTypes() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// conflictStore fails the first n transactions with storage.ErrConflict
type conflictStore struct {
	storage.Store
	remaining atomic.Int32
	calls     atomic.Int32
}

func newConflictStore(n int32) *conflictStore {
	s := &conflictStore{Store: storage.NewMemoryStore()}
	s.remaining.Store(n)
	return s
}

func (s *conflictStore) RunTransaction(ctx context.Context, fn storage.TxFunc) error {
	s.calls.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return storage.ErrConflict
	}
	return s.Store.RunTransaction(ctx, fn)
}

// brokenStore fails every read with an I/O error
type brokenStore struct {
	storage.Store
}

var errDiskGone = errors.New("disk gone")

func (s *brokenStore) Query(context.Context, string, storage.Query) ([]*storage.Document, error) {
	return nil, errDiskGone
}

func (s *brokenStore) Get(context.Context, string, string) (*storage.Document, error) {
	return nil, errDiskGone
}

// hookStore runs hook before the first transaction only
type hookStore struct {
	storage.Store
	once sync.Once
	hook func()
}

func (s *hookStore) RunTransaction(ctx context.Context, fn storage.TxFunc) error {
	s.once.Do(s.hook)
	return s.Store.RunTransaction(ctx, fn)
}

// scanHookStore runs hook once, after the first query that follows arm,
// with that query's results already read
type scanHookStore struct {
	storage.Store
	armed atomic.Bool
	hook  func()
}

func (s *scanHookStore) arm() { s.armed.Store(true) }

func (s *scanHookStore) Query(ctx context.Context, collection string, q storage.Query) ([]*storage.Document, error) {
	docs, err := s.Store.Query(ctx, collection, q)
	if s.armed.CompareAndSwap(true, false) {
		s.hook()
	}
	return docs, err
}
