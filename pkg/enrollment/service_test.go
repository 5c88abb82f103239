package enrollment

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, "c1", record.CourseID)
	assert.Equal(t, types.EnrollmentStatusActive, record.Status)
	assert.Zero(t, record.Progress)
	assert.False(t, record.EnrollmentDate.IsZero())
	assert.Nil(t, record.CompletionDate)

	assert.Equal(t, 1, f.activeCount(t, "u1", "c1"))
	assert.Equal(t, 1, f.counter(t, "c1"))
	assert.Equal(t, []string{"c1"}, f.courses(t, "u1"))
	assert.Equal(t, []events.EventType{events.EventEnrollmentCreated}, f.events.eventTypes())
	assert.Contains(t, f.cache.invalidated, "c1")
}

func TestEnrollPreservesExistingCourseAndUserFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Set(ctx, CollectionCourses, "c1", map[string]any{
		"id": "c1", "title": "Go", "enrolledStudents": 7,
	}))
	require.NoError(t, f.store.Set(ctx, CollectionUsers, "u1", map[string]any{
		"userId": "u1", "name": "Ada", "enrolledCourses": []string{"c0"},
	}))

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	course, err := f.store.Get(ctx, CollectionCourses, "c1")
	require.NoError(t, err)
	fields, err := course.Fields()
	require.NoError(t, err)
	assert.Equal(t, "Go", fields["title"])
	assert.Equal(t, float64(8), fields["enrolledStudents"])

	assert.Equal(t, []string{"c0", "c1"}, f.courses(t, "u1"))
}

func TestEnrollTwiceIsAlreadyEnrolled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	_, err = f.svc.Enroll(ctx, "u1", "c1")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	assert.Len(t, f.records(t, "u1", "c1"), 1)
	assert.Equal(t, 1, f.counter(t, "c1"))
}

func TestEnrollGuardCatchesMissedPreCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// the guard alone rejects a duplicate even when the query fast path
	// is skipped
	err := f.svc.runTransaction(ctx, OpEnroll, func(ctx context.Context, tx storage.Tx) error {
		_, err := f.svc.enrollTx(tx, "u1", "c1", testEpoch)
		return err
	})
	require.NoError(t, err)

	err = f.svc.runTransaction(ctx, OpEnroll, func(ctx context.Context, tx storage.Tx) error {
		_, err := f.svc.enrollTx(tx, "u1", "c1", testEpoch)
		return err
	})
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	assert.Equal(t, 1, f.counter(t, "c1"))
}

func TestConcurrentEnrollExactlyOneCommits(t *testing.T) {
	for _, name := range []string{"memory", "bolt"} {
		t.Run(name, func(t *testing.T) {
			var store storage.Store = storage.NewMemoryStore()
			if name == "bolt" {
				bolt, err := storage.NewBoltStore(t.TempDir())
				require.NoError(t, err)
				store = bolt
			}
			t.Cleanup(func() { store.Close() })

			f := newFixtureWithStore(t, store, func(c *Config) { c.MaxAttempts = 20 })
			ctx := context.Background()

			const callers = 8
			results := make([]error, callers)
			var g errgroup.Group
			for i := 0; i < callers; i++ {
				g.Go(func() error {
					_, results[i] = f.svc.Enroll(ctx, "u1", "c1")
					return nil
				})
			}
			require.NoError(t, g.Wait())

			succeeded := 0
			for _, err := range results {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrAlreadyEnrolled)
			}
			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 1, f.activeCount(t, "u1", "c1"))
			assert.Equal(t, 1, f.counter(t, "c1"))
			assert.Equal(t, []string{"c1"}, f.courses(t, "u1"))
		})
	}
}

func TestConcurrentEnrollDifferentUsersAllCount(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxAttempts = 50 })
	ctx := context.Background()

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	var g errgroup.Group
	for _, u := range users {
		g.Go(func() error {
			_, err := f.svc.Enroll(ctx, u, "c1")
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, len(users), f.counter(t, "c1"))
}

func TestUnenrollCancelPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))

	assert.Zero(t, f.activeCount(t, "u1", "c1"))
	assert.Zero(t, f.counter(t, "c1"))
	assert.Empty(t, f.courses(t, "u1"))

	kept, err := f.svc.getByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, types.EnrollmentStatusCancelled, kept.Status)

	_, err = f.store.Get(ctx, CollectionEnrollmentKeys, guardID("u1", "c1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t,
		[]events.EventType{events.EventEnrollmentCreated, events.EventEnrollmentCancelled},
		f.events.eventTypes())
}

func TestUnenrollDeletePolicy(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.UnenrollPolicy = UnenrollDelete })
	ctx := context.Background()

	record, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))

	_, err = f.svc.getByID(ctx, record.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, f.counter(t, "c1"))
	assert.Empty(t, f.courses(t, "u1"))
}

func TestUnenrollNotEnrolled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Unenroll(ctx, "u1", "c1"), ErrNotEnrolled)

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))
	assert.ErrorIs(t, f.svc.Unenroll(ctx, "u1", "c1"), ErrNotEnrolled)
}

func TestUnenrollCounterFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	// drifted counter
	require.NoError(t, f.store.Update(ctx, CollectionCourses, "c1", storage.Fields{"enrolledStudents": 0}))

	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))
	assert.Zero(t, f.counter(t, "c1"))
}

func TestReenrollAfterUnenroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))

	second, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, f.counter(t, "c1"))
	assert.Equal(t, 1, f.activeCount(t, "u1", "c1"))
	assert.Equal(t, []string{"c1"}, f.courses(t, "u1"))
}

func TestUnenrollRetainsIndexWhenCompletedRecordRemains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	_, err = f.svc.UpdateProgress(ctx, "u1", "c1", 1.0)
	require.NoError(t, err)

	// a completed course can be taken again
	_, err = f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.counter(t, "c1"))

	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))
	assert.Equal(t, 1, f.counter(t, "c1"))
	assert.Equal(t, []string{"c1"}, f.courses(t, "u1"))
}

func TestProgressScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	half, err := f.svc.UpdateProgress(ctx, "u1", "c1", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, half.Progress)
	assert.Equal(t, types.EnrollmentStatusActive, half.Status)

	done, err := f.svc.UpdateProgress(ctx, "u1", "c1", 1.0)
	require.NoError(t, err)
	assert.Equal(t, types.EnrollmentStatusCompleted, done.Status)
	require.NotNil(t, done.CompletionDate)
	assert.Equal(t, 1, f.counter(t, "c1"))
	assert.Equal(t, []string{"c1"}, f.courses(t, "u1"))

	// repeated completion does not move the stamp
	again, err := f.svc.UpdateProgress(ctx, "u1", "c1", 1.7)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Progress)
	assert.True(t, again.CompletionDate.Equal(*done.CompletionDate))
	assert.True(t, again.LastAccessDate.After(done.LastAccessDate))

	assert.Equal(t,
		[]events.EventType{events.EventEnrollmentCreated, events.EventEnrollmentCompleted},
		f.events.eventTypes())
}

func TestUpdateProgressClamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	low, err := f.svc.UpdateProgress(ctx, "u1", "c1", -0.3)
	require.NoError(t, err)
	assert.Zero(t, low.Progress)
	assert.Equal(t, types.EnrollmentStatusActive, low.Status)

	high, err := f.svc.UpdateProgress(ctx, "u1", "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, high.Progress)
	assert.Equal(t, types.EnrollmentStatusCompleted, high.Status)

	_, err = f.svc.UpdateProgress(ctx, "u1", "c1", math.NaN())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateProgressNotEnrolled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProgress(ctx, "u1", "c1", 0.5)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))

	_, err = f.svc.UpdateProgress(ctx, "u1", "c1", 0.5)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestRecordProgressDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	lessons, total, quiz := 3, 10, 82.5
	progress := 0.3
	updated, err := f.svc.RecordProgress(ctx, "u1", "c1", ProgressUpdate{
		Progress:         &progress,
		TimeSpentMinutes: 45,
		LessonsCompleted: &lessons,
		TotalLessons:     &total,
		AverageQuizScore: &quiz,
	})
	require.NoError(t, err)
	assert.Equal(t, 45, updated.TimeSpentMinutes)
	assert.Equal(t, 30, updated.CompletionPercentage())

	updated, err = f.svc.RecordProgress(ctx, "u1", "c1", ProgressUpdate{TimeSpentMinutes: 20})
	require.NoError(t, err)
	assert.Equal(t, 65, updated.TimeSpentMinutes)
	assert.Equal(t, 0.3, updated.Progress)
	assert.Equal(t, "1h 05min", updated.FormattedTimeSpent())

	tooMany := 11
	_, err = f.svc.RecordProgress(ctx, "u1", "c1", ProgressUpdate{LessonsCompleted: &tooMany})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.RecordProgress(ctx, "u1", "c1", ProgressUpdate{TimeSpentMinutes: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIssueCertificate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	_, err = f.svc.IssueCertificate(ctx, "u1", "c1")
	assert.ErrorIs(t, err, ErrNotCompleted)

	_, err = f.svc.UpdateProgress(ctx, "u1", "c1", 1)
	require.NoError(t, err)

	issued, err := f.svc.IssueCertificate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, issued.CertificateIssued)

	again, err := f.svc.IssueCertificate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, again.CertificateIssued)

	count := 0
	for _, et := range f.events.eventTypes() {
		if et == events.EventCertificateIssued {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIssueCertificateAfterReEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	_, err = f.svc.UpdateProgress(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	second, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	issued, err := f.svc.IssueCertificate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, issued.ID)
	assert.True(t, issued.CertificateIssued)

	// the new ACTIVE record is untouched and still the current enrollment
	current, err := f.svc.GetEnrollment(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.False(t, current.CertificateIssued)
}

func TestIssueCertificateNotEnrolled(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueCertificate(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestNotAuthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "", "c1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, f.svc.Unenroll(ctx, "", "c1"), ErrNotAuthenticated)
	_, err = f.svc.UpdateProgress(ctx, "", "c1", 0.1)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.svc.ListEnrollments(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = f.svc.Enroll(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListEnrollments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []string{"c1", "c2", "c3"} {
		_, err := f.svc.Enroll(ctx, "u1", c)
		require.NoError(t, err)
	}
	_, err := f.svc.Enroll(ctx, "u2", "c1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c2"))
	_, err = f.svc.UpdateProgress(ctx, "u1", "c3", 1)
	require.NoError(t, err)

	all, err := f.svc.ListEnrollments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// newest first
	assert.Equal(t, "c3", all[0].CourseID)
	assert.Equal(t, "c1", all[2].CourseID)

	counted, err := f.svc.ListEnrollments(ctx, "u1", types.EnrollmentStatusActive, types.EnrollmentStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, counted, 2)

	cancelled, err := f.svc.ListEnrollments(ctx, "u1", types.EnrollmentStatusCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "c2", cancelled[0].CourseID)
}

func TestListInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	progress := map[string]float64{"c1": 0.2, "c2": 0.8, "c3": 0, "c4": 1, "c5": 0.5}
	for c, p := range progress {
		_, err := f.svc.Enroll(ctx, "u1", c)
		require.NoError(t, err)
		_, err = f.svc.UpdateProgress(ctx, "u1", c, p)
		require.NoError(t, err)
	}

	list, err := f.svc.ListInProgress(ctx, "u1")
	require.NoError(t, err)

	var got []string
	for _, e := range list {
		got = append(got, e.CourseID)
	}
	assert.Equal(t, []string{"c2", "c5", "c1"}, got)
}

func TestLegacyLowercaseStatusIsRecognised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Set(ctx, CollectionEnrollments, "legacy-1", map[string]any{
		"enrollmentId":   "legacy-1",
		"userId":         "u1",
		"courseId":       "c1",
		"status":         "active",
		"progress":       0.4,
		"enrollmentDate": testEpoch,
		"lastAccessDate": testEpoch,
	}))

	enrolled, err := f.svc.IsEnrolled(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, enrolled)

	_, err = f.svc.Enroll(ctx, "u1", "c1")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	record, err := f.svc.GetEnrollment(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.EnrollmentStatusActive, record.Status)
}

func TestCourseStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalEnrollments)
	assert.Zero(t, empty.AverageProgress)
	assert.Zero(t, empty.CompletionRate)

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := f.svc.Enroll(ctx, u, "c2")
		require.NoError(t, err)
	}
	_, err = f.svc.UpdateProgress(ctx, "u1", "c2", 1)
	require.NoError(t, err)
	_, err = f.svc.UpdateProgress(ctx, "u2", "c2", 0.5)
	require.NoError(t, err)

	stats, err := f.svc.CourseStats(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEnrollments)
	assert.Equal(t, 2, stats.ActiveEnrollments)
	assert.Equal(t, 1, stats.CompletedEnrollments)
	assert.Equal(t, 100*float64(1)/float64(3), stats.CompletionRate)
	assert.InDelta(t, 0.5, stats.AverageProgress, 1e-9)
}

func TestCourseStatsReadThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	first, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Contains(t, f.cache.entries, "c1")

	second, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	// a committed change invalidates
	_, err = f.svc.Enroll(ctx, "u2", "c1")
	require.NoError(t, err)
	assert.NotContains(t, f.cache.entries, "c1")

	third, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, third.TotalEnrollments)
}

func TestCourseStatsComputedBeforeCommitIsNotCached(t *testing.T) {
	store := &scanHookStore{Store: storage.NewMemoryStore()}
	f := newFixtureWithStore(t, store)
	ctx := context.Background()

	// the enroll commits and invalidates after the stats scan read its records
	store.hook = func() {
		_, err := f.svc.Enroll(ctx, "u1", "c1")
		require.NoError(t, err)
	}
	store.arm()

	stale, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, stale.TotalEnrollments)
	assert.NotContains(t, f.cache.entries, "c1")

	fresh, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalEnrollments)
	assert.Contains(t, f.cache.entries, "c1")
}

func TestCacheFailureDoesNotFailOperations(t *testing.T) {
	f := newFixture(t)
	f.cache.err = errors.New("redis down")
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)

	stats, err := f.svc.CourseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEnrollments)
}

func TestConflictIsRetried(t *testing.T) {
	store := newConflictStore(2)
	f := newFixtureWithStore(t, store)

	_, err := f.svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, 1, f.counter(t, "c1"))
}

func TestConflictBudgetExhausted(t *testing.T) {
	store := newConflictStore(100)
	f := newFixtureWithStore(t, store, func(c *Config) { c.MaxAttempts = 3 })

	_, err := f.svc.Enroll(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.True(t, Retryable(err))
	assert.Equal(t, int32(3), store.calls.Load())

	// nothing partially applied
	assert.Zero(t, f.counter(t, "c1"))
	assert.Empty(t, f.courses(t, "u1"))
	assert.Empty(t, f.events.eventTypes())
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	f := newFixtureWithStore(t, &brokenStore{Store: storage.NewMemoryStore()})
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorContains(t, err, "disk gone")

	_, err = f.svc.CourseStats(ctx, "c1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = f.svc.EnrolledCourses(ctx, "u1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCancelledContextPassesThrough(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestNewServiceRejectsUnknownPolicy(t *testing.T) {
	_, err := NewService(storage.NewMemoryStore(), Config{UnenrollPolicy: "archive"})
	assert.Error(t, err)
}

func TestCode(t *testing.T) {
	tests := map[string]error{
		"ok":                nil,
		"already_enrolled":  ErrAlreadyEnrolled,
		"not_enrolled":      ErrNotEnrolled,
		"conflict":          ErrTransactionConflict,
		"unavailable":       translate(errDiskGone),
		"invalid_argument":  ErrInvalidArgument,
		"not_completed":     ErrNotCompleted,
		"not_authenticated": ErrNotAuthenticated,
		"cancelled":         context.Canceled,
		"internal":          errors.New("x"),
	}
	for want, err := range tests {
		assert.Equal(t, want, Code(err), want)
	}
}
