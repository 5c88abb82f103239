package enrollment

import (
	"context"
	"testing"

	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairCourseCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := f.svc.Enroll(ctx, u, "c1")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Unenroll(ctx, "u3", "c1"))
	require.NoError(t, f.store.Update(ctx, CollectionCourses, "c1", storage.Fields{"enrolledStudents": 9}))

	result, err := f.svc.RepairCourseCounter(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 9, result.Stored)
	assert.Equal(t, 2, result.Expected)
	assert.True(t, result.Repaired)
	assert.Equal(t, 2, f.counter(t, "c1"))
	assert.Contains(t, f.events.eventTypes(), events.EventCountersRepaired)

	// already consistent
	result, err = f.svc.RepairCourseCounter(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, result.Repaired)
}

func TestRepairCourseCounterMissingCourseDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(ctx, CollectionCourses, "c1"))

	result, err := f.svc.RepairCourseCounter(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, 1, f.counter(t, "c1"))

	// nothing enrolled and nothing stored needs no write
	result, err = f.svc.RepairCourseCounter(ctx, "c-empty")
	require.NoError(t, err)
	assert.False(t, result.Repaired)
	_, err = f.store.Get(ctx, CollectionCourses, "c-empty")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRepairUserIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []string{"c2", "c1", "c3"} {
		_, err := f.svc.Enroll(ctx, "u1", c)
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c3"))
	require.NoError(t, f.store.Update(ctx, CollectionUsers, "u1", storage.Fields{
		"enrolledCourses": []string{"c9", "c2"},
	}))

	result, err := f.svc.RepairUserIndex(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c9"}, result.Stored)
	assert.Equal(t, []string{"c1", "c2"}, result.Expected)
	assert.True(t, result.Repaired)
	assert.Equal(t, []string{"c1", "c2"}, f.courses(t, "u1"))

	result, err = f.svc.RepairUserIndex(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, result.Repaired)
}

func TestRepairUserIndexToEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unenroll(ctx, "u1", "c1"))
	require.NoError(t, f.store.Update(ctx, CollectionUsers, "u1", storage.Fields{
		"enrolledCourses": []string{"c1"},
	}))

	result, err := f.svc.RepairUserIndex(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, []string{}, result.Expected)

	doc, err := f.store.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	fields, err := doc.Fields()
	require.NoError(t, err)
	assert.Equal(t, []any{}, fields["enrolledCourses"])
}

func TestRepairRetriesWhenCourseChangesDuringScan(t *testing.T) {
	inner := storage.NewMemoryStore()
	ctx := context.Background()

	setup := newFixtureWithStore(t, inner)
	_, err := setup.svc.Enroll(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NoError(t, inner.Update(ctx, CollectionCourses, "c1", storage.Fields{"enrolledStudents": 5}))

	// the counter moves between the scan and the repair commit
	hooked := &hookStore{Store: inner, hook: func() {
		require.NoError(t, inner.Update(ctx, CollectionCourses, "c1", storage.Fields{
			"enrolledStudents": storage.Increment(1),
		}))
	}}
	f := newFixtureWithStore(t, hooked)

	result, err := f.svc.RepairCourseCounter(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, 6, result.Stored)
	assert.Equal(t, 1, result.Expected)
	assert.Equal(t, 1, f.counter(t, "c1"))
}

func TestRepairInvalidArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RepairCourseCounter(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.RepairUserIndex(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExpectedCourses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, "u1", "b")
	require.NoError(t, err)
	_, err = f.svc.UpdateProgress(ctx, "u1", "b", 1)
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, "u1", "b")
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, "u1", "a")
	require.NoError(t, err)

	records, err := f.svc.ListEnrollments(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, expectedCourses(records))
	assert.Equal(t, []string{}, expectedCourses(nil))
}
