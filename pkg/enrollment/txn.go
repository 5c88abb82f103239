package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
)

// enrollmentKey is the uniqueness guard for a (user, course) pair. Its id
// is deterministic, so concurrent enrolls for the same pair read the same
// document and all but one fail at commit.
type enrollmentKey struct {
	EnrollmentID string    `json:"enrollmentId"`
	UserID       string    `json:"userId"`
	CourseID     string    `json:"courseId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func guardID(userID, courseID string) string {
	return userID + ":" + courseID
}

// retry runs attempt until it stops failing with storage.ErrConflict or the
// attempt budget is spent. attempt must be safe to run again from scratch.
func (s *Service) retry(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	var lastErr error
	for n := 1; n <= s.cfg.MaxAttempts; n++ {
		if n > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff(n - 1)):
			}
		}

		err := attempt(ctx)
		if !errors.Is(err, storage.ErrConflict) {
			metrics.TransactionAttempts.WithLabelValues(op).Observe(float64(n))
			return translate(err)
		}

		lastErr = err
		metrics.TransactionConflicts.WithLabelValues(op).Inc()
		s.logger.Warn().
			Str("operation", op).
			Int("attempt", n).
			Err(err).
			Msg("Transaction conflict")
	}

	metrics.TransactionAttempts.WithLabelValues(op).Observe(float64(s.cfg.MaxAttempts))
	return fmt.Errorf("%w: %s gave up after %d attempts: %v", ErrTransactionConflict, op, s.cfg.MaxAttempts, lastErr)
}

func (s *Service) backoff(retry int) time.Duration {
	backoff := s.cfg.RetryBackoff
	for i := 1; i < retry; i++ {
		backoff *= 2
	}
	if backoff > maxRetryBackoff {
		backoff = maxRetryBackoff
	}
	return backoff
}

// runTransaction is the conflict-retrying wrapper around the store's
// single-shot transaction
func (s *Service) runTransaction(ctx context.Context, op string, fn storage.TxFunc) error {
	return s.retry(ctx, op, func(ctx context.Context) error {
		return s.store.RunTransaction(ctx, fn)
	})
}

// enrollTx creates the record, claims the guard, bumps the course counter
// and adds the course to the user index as one commit
func (s *Service) enrollTx(tx storage.Tx, userID, courseID string, now time.Time) (*types.Enrollment, error) {
	keyID := guardID(userID, courseID)

	var guard enrollmentKey
	found, err := txGet(tx, CollectionEnrollmentKeys, keyID, &guard)
	if err != nil {
		return nil, err
	}
	if found {
		var current types.Enrollment
		exists, err := txGet(tx, CollectionEnrollments, guard.EnrollmentID, &current)
		if err != nil {
			return nil, err
		}
		if exists && current.Status == types.EnrollmentStatusActive {
			return nil, ErrAlreadyEnrolled
		}
	}

	var course types.CourseCounter
	courseExists, err := txGet(tx, CollectionCourses, courseID, &course)
	if err != nil {
		return nil, err
	}
	var index types.UserCourseIndex
	indexExists, err := txGet(tx, CollectionUsers, userID, &index)
	if err != nil {
		return nil, err
	}

	record := &types.Enrollment{
		ID:             s.store.NewID(),
		UserID:         userID,
		CourseID:       courseID,
		Status:         types.EnrollmentStatusActive,
		Progress:       0,
		EnrollmentDate: now,
		LastAccessDate: now,
	}

	if err := tx.Set(CollectionEnrollments, record.ID, record); err != nil {
		return nil, err
	}
	if err := tx.Set(CollectionEnrollmentKeys, keyID, enrollmentKey{
		EnrollmentID: record.ID,
		UserID:       userID,
		CourseID:     courseID,
		CreatedAt:    now,
	}); err != nil {
		return nil, err
	}

	if courseExists {
		err = tx.Update(CollectionCourses, courseID, storage.Fields{
			"enrolledStudents": storage.Increment(1),
			"updatedAt":        now,
		})
	} else {
		err = tx.Set(CollectionCourses, courseID, types.CourseCounter{
			CourseID:         courseID,
			EnrolledStudents: 1,
			UpdatedAt:        now,
		})
	}
	if err != nil {
		return nil, err
	}

	if indexExists {
		err = tx.Update(CollectionUsers, userID, storage.Fields{
			"enrolledCourses": storage.ArrayUnion(courseID),
			"updatedAt":       now,
		})
	} else {
		err = tx.Set(CollectionUsers, userID, types.UserCourseIndex{
			UserID:          userID,
			EnrolledCourses: []string{courseID},
			UpdatedAt:       now,
		})
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// unenrollTx retires the ACTIVE record and reverses its counter and index
// contributions. retainIndex keeps the course in the user index when
// another COMPLETED record for the pair still counts.
func (s *Service) unenrollTx(tx storage.Tx, enrollmentID, userID, courseID string, retainIndex bool, now time.Time) error {
	var current types.Enrollment
	exists, err := txGet(tx, CollectionEnrollments, enrollmentID, &current)
	if err != nil {
		return err
	}
	if !exists || current.Status != types.EnrollmentStatusActive {
		return ErrNotEnrolled
	}

	keyID := guardID(userID, courseID)
	var guard enrollmentKey
	guardExists, err := txGet(tx, CollectionEnrollmentKeys, keyID, &guard)
	if err != nil {
		return err
	}
	var course types.CourseCounter
	courseExists, err := txGet(tx, CollectionCourses, courseID, &course)
	if err != nil {
		return err
	}
	var index types.UserCourseIndex
	indexExists, err := txGet(tx, CollectionUsers, userID, &index)
	if err != nil {
		return err
	}

	switch s.cfg.UnenrollPolicy {
	case UnenrollDelete:
		err = tx.Delete(CollectionEnrollments, enrollmentID)
	default:
		err = tx.Update(CollectionEnrollments, enrollmentID, storage.Fields{
			"status":         types.EnrollmentStatusCancelled,
			"lastAccessDate": now,
		})
	}
	if err != nil {
		return err
	}

	if guardExists && guard.EnrollmentID == enrollmentID {
		if err := tx.Delete(CollectionEnrollmentKeys, keyID); err != nil {
			return err
		}
	}

	if courseExists {
		remaining := course.EnrolledStudents - 1
		if remaining < 0 {
			remaining = 0
		}
		if err := tx.Update(CollectionCourses, courseID, storage.Fields{
			"enrolledStudents": remaining,
			"updatedAt":        now,
		}); err != nil {
			return err
		}
	}

	if indexExists && !retainIndex {
		if err := tx.Update(CollectionUsers, userID, storage.Fields{
			"enrolledCourses": storage.ArrayRemove(courseID),
			"updatedAt":       now,
		}); err != nil {
			return err
		}
	}

	return nil
}

// txGet decodes a document into v and reports whether it exists
func txGet(tx storage.Tx, collection, id string, v any) (bool, error) {
	doc, err := tx.Get(collection, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := doc.DataTo(v); err != nil {
		return false, err
	}
	return true, nil
}
