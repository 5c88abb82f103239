package enrollment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
)

// CounterRepair reports the outcome of a course counter repair
type CounterRepair struct {
	CourseID string `json:"courseId"`
	Stored   int    `json:"stored"`
	Expected int    `json:"expected"`
	Repaired bool   `json:"repaired"`
}

// IndexRepair reports the outcome of a user index repair
type IndexRepair struct {
	UserID   string   `json:"userId"`
	Stored   []string `json:"stored"`
	Expected []string `json:"expected"`
	Repaired bool     `json:"repaired"`
}

// observedVersion returns the document's version, 0 if it does not exist
func (s *Service) observedVersion(ctx context.Context, collection, id string) (uint64, error) {
	doc, err := s.store.Get(ctx, collection, id)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}

// guardVersion fails the transaction when the document moved since the
// scan began. Every enroll and unenroll writes the course and user
// documents, so an unchanged version means the scan saw a stable set.
func guardVersion(tx storage.Tx, collection, id string, version uint64, v any) (bool, error) {
	doc, err := tx.Get(collection, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if version != 0 {
			return false, fmt.Errorf("%w: %s/%s removed during scan", storage.ErrConflict, collection, id)
		}
		return false, nil
	case err != nil:
		return false, err
	}
	if doc.Version != version {
		return false, fmt.Errorf("%w: %s/%s changed during scan", storage.ErrConflict, collection, id)
	}
	return true, doc.DataTo(v)
}

// RepairCourseCounter recomputes enrolledStudents from the course's ACTIVE
// and COMPLETED records and rewrites it if it drifted
func (s *Service) RepairCourseCounter(ctx context.Context, courseID string) (result *CounterRepair, err error) {
	timer := metrics.NewTimer()
	defer func() { s.record(OpRepairCounter, timer, err) }()

	if courseID == "" {
		return nil, fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}

	err = s.retry(ctx, OpRepairCounter, func(ctx context.Context) error {
		version, err := s.observedVersion(ctx, CollectionCourses, courseID)
		if err != nil {
			return err
		}
		records, err := s.queryEnrollments(ctx, storage.NewQuery().Where("courseId", storage.OpEqual, courseID))
		if err != nil {
			return err
		}
		expected := len(filterStatus(records, types.CountedStatuses...))

		return s.store.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
			var course types.CourseCounter
			exists, err := guardVersion(tx, CollectionCourses, courseID, version, &course)
			if err != nil {
				return err
			}
			result = &CounterRepair{CourseID: courseID, Stored: course.EnrolledStudents, Expected: expected}
			if course.EnrolledStudents == expected && (exists || expected == 0) {
				return nil
			}
			result.Repaired = true
			now := s.now()
			if exists {
				return tx.Update(CollectionCourses, courseID, storage.Fields{
					"enrolledStudents": expected,
					"updatedAt":        now,
				})
			}
			return tx.Set(CollectionCourses, courseID, types.CourseCounter{
				CourseID:         courseID,
				EnrolledStudents: expected,
				UpdatedAt:        now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Repaired {
		s.invalidateStats(ctx, courseID)
		s.publish(events.NewEnrollmentEvent(events.EventCountersRepaired, "", courseID, "",
			fmt.Sprintf("enrolledStudents %d -> %d", result.Stored, result.Expected)))
		s.logger.Info().
			Str("course_id", courseID).
			Int("stored", result.Stored).
			Int("expected", result.Expected).
			Msg("Course counter repaired")
	}
	return result, nil
}

// RepairUserIndex recomputes enrolledCourses from the user's ACTIVE and
// COMPLETED records and rewrites it if it drifted
func (s *Service) RepairUserIndex(ctx context.Context, userID string) (result *IndexRepair, err error) {
	timer := metrics.NewTimer()
	defer func() { s.record(OpRepairIndex, timer, err) }()

	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	err = s.retry(ctx, OpRepairIndex, func(ctx context.Context) error {
		version, err := s.observedVersion(ctx, CollectionUsers, userID)
		if err != nil {
			return err
		}
		records, err := s.queryEnrollments(ctx, storage.NewQuery().Where("userId", storage.OpEqual, userID))
		if err != nil {
			return err
		}
		expected := expectedCourses(filterStatus(records, types.CountedStatuses...))

		return s.store.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
			var index types.UserCourseIndex
			exists, err := guardVersion(tx, CollectionUsers, userID, version, &index)
			if err != nil {
				return err
			}
			stored := sortedCopy(index.EnrolledCourses)
			result = &IndexRepair{UserID: userID, Stored: stored, Expected: expected}
			if slices.Equal(stored, expected) && (exists || len(expected) == 0) {
				return nil
			}
			result.Repaired = true
			now := s.now()
			if exists {
				return tx.Update(CollectionUsers, userID, storage.Fields{
					"enrolledCourses": expected,
					"updatedAt":       now,
				})
			}
			return tx.Set(CollectionUsers, userID, types.UserCourseIndex{
				UserID:          userID,
				EnrolledCourses: expected,
				UpdatedAt:       now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Repaired {
		s.publish(events.NewEnrollmentEvent(events.EventCountersRepaired, userID, "", "",
			fmt.Sprintf("enrolledCourses %v -> %v", result.Stored, result.Expected)))
		s.logger.Info().
			Str("user_id", userID).
			Strs("stored", result.Stored).
			Strs("expected", result.Expected).
			Msg("User index repaired")
	}
	return result, nil
}

// expectedCourses returns the sorted distinct course ids of records
func expectedCourses(records []*types.Enrollment) []string {
	seen := make(map[string]bool)
	courses := []string{}
	for _, r := range records {
		if !seen[r.CourseID] {
			seen[r.CourseID] = true
			courses = append(courses, r.CourseID)
		}
	}
	return sortedCopy(courses)
}
