package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/types"
)

// Collections used by the service
const (
	CollectionEnrollments    = "enrollments"
	CollectionCourses        = "courses"
	CollectionUsers          = "users"
	CollectionEnrollmentKeys = "enrollment_keys"
)

// UnenrollPolicy decides what happens to the enrollment record on unenroll
type UnenrollPolicy string

const (
	// UnenrollCancel marks the record CANCELLED and keeps it
	UnenrollCancel UnenrollPolicy = "cancel"

	// UnenrollDelete removes the record
	UnenrollDelete UnenrollPolicy = "delete"
)

// Defaults
const (
	DefaultMaxAttempts  = 5
	DefaultRetryBackoff = 20 * time.Millisecond
	maxRetryBackoff     = 500 * time.Millisecond
)

// StatsCache is a read-through cache for course statistics.
//
// Get returns the course's invalidation generation along with the entry
// (cache.ErrMiss when nothing is cached). Set takes the generation read
// before the stats were computed and returns cache.ErrStale instead of
// writing when Invalidate ran in between.
type StatsCache interface {
	Get(ctx context.Context, courseID string) (*types.CourseStats, uint64, error)
	Set(ctx context.Context, stats *types.CourseStats, gen uint64) error
	Invalidate(ctx context.Context, courseID string) error
}

// Config holds service configuration
type Config struct {
	// MaxAttempts bounds how often a conflicting transaction is retried
	MaxAttempts int

	// RetryBackoff is the delay before the first retry; it doubles per
	// attempt up to 500ms
	RetryBackoff time.Duration

	UnenrollPolicy UnenrollPolicy

	// Optional collaborators
	Cache  StatsCache
	Events events.Publisher

	// Clock defaults to time.Now in UTC
	Clock func() time.Time
}

func (c *Config) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.UnenrollPolicy == "" {
		c.UnenrollPolicy = UnenrollCancel
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
}

func (c *Config) validate() error {
	switch c.UnenrollPolicy {
	case UnenrollCancel, UnenrollDelete:
		return nil
	default:
		return fmt.Errorf("unknown unenroll policy %q", c.UnenrollPolicy)
	}
}
