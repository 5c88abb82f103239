package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned when no stats are cached for the course
	ErrMiss = errors.New("cache: key not found")

	// ErrSerialization is returned when a cached value cannot be decoded
	ErrSerialization = errors.New("cache: serialization failed")

	// ErrStale is returned by Set when the course was invalidated after the
	// generation the stats were computed under
	ErrStale = errors.New("cache: stats are stale")
)

const (
	// KeyPrefix namespaces the cached stats
	KeyPrefix = "enrollcore:stats:"

	// GenerationPrefix namespaces the per-course invalidation counters
	GenerationPrefix = "enrollcore:statsgen:"

	// generationTTL outlives any stats computation by a wide margin, so a
	// counter can only expire and restart once no reader still holds it
	generationTTL = 24 * time.Hour
)

// DefaultTTL bounds how stale cached stats can get when an invalidation
// is lost
const DefaultTTL = 5 * time.Minute

// Options configures the Redis connection
type Options struct {
	URL          string
	TTL          time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StatsCache stores computed course statistics in Redis
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache parses the URL and pings the server
func NewStatsCache(ctx context.Context, opts Options) (*StatsCache, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewStatsCacheWithClient(client, opts.TTL), nil
}

// NewStatsCacheWithClient wraps an existing client
func NewStatsCacheWithClient(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Key returns the Redis key for a course
func Key(courseID string) string {
	return KeyPrefix + courseID
}

// GenerationKey returns the key of the course's invalidation counter
func GenerationKey(courseID string) string {
	return GenerationPrefix + courseID
}

// Get returns the cached stats together with the course's current
// generation. On a miss the generation is still returned, with ErrMiss.
func (c *StatsCache) Get(ctx context.Context, courseID string) (*types.CourseStats, uint64, error) {
	vals, err := c.client.MGet(ctx, Key(courseID), GenerationKey(courseID)).Result()
	if err != nil {
		return nil, 0, err
	}

	gen, err := parseGeneration(vals[1])
	if err != nil {
		return nil, 0, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, ErrMiss
	}

	var stats types.CourseStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, gen, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &stats, gen, nil
}

// Set stores stats computed under generation gen. The write is dropped with
// ErrStale when an Invalidate bumped the generation in the meantime.
func (c *StatsCache) Set(ctx context.Context, stats *types.CourseStats, gen uint64) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	genKey := GenerationKey(stats.CourseID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(stats.CourseID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// Invalidate drops the cached stats for a course and bumps its generation,
// so a computation already in flight cannot write its result back
func (c *StatsCache) Invalidate(ctx context.Context, courseID string) error {
	genKey := GenerationKey(courseID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, Key(courseID))
		return nil
	})
	return err
}

func parseGeneration(v any) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	raw, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("%w: generation has type %T", ErrSerialization, v)
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return gen, nil
}

// Ping checks the connection
func (c *StatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client
func (c *StatsCache) Close() error {
	return c.client.Close()
}
