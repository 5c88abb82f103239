package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/learnizone/enrollcore/pkg/cache"
	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/rs/zerolog"
)

// Operation names used in logs and metrics
const (
	OpEnroll           = "enroll"
	OpUnenroll         = "unenroll"
	OpUpdateProgress   = "update_progress"
	OpIssueCertificate = "issue_certificate"
	OpRepairCounter    = "repair_course_counter"
	OpRepairIndex      = "repair_user_index"
)

// Service is the enrollment façade. It is safe for concurrent use; all
// mutual exclusion is delegated to store transactions.
type Service struct {
	store  storage.Store
	cfg    Config
	logger zerolog.Logger
}

// NewService creates a service over store
func NewService(store storage.Store, cfg Config) (*Service, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: log.WithComponent("enrollment"),
	}, nil
}

// Policy returns the configured unenroll policy
func (s *Service) Policy() UnenrollPolicy {
	return s.cfg.UnenrollPolicy
}

func (s *Service) now() time.Time {
	return s.cfg.Clock()
}

func (s *Service) record(op string, timer *metrics.Timer, err error) {
	metrics.OperationsTotal.WithLabelValues(op, Code(err)).Inc()
	timer.ObserveDurationVec(metrics.OperationDuration, op)
}

func checkIdentity(userID, courseID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	if courseID == "" {
		return fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}
	return nil
}

// Enroll creates an ACTIVE enrollment and updates the course counter and
// user index in the same commit
func (s *Service) Enroll(ctx context.Context, userID, courseID string) (result *types.Enrollment, err error) {
	timer := metrics.NewTimer()
	defer func() { s.record(OpEnroll, timer, err) }()

	if err := checkIdentity(userID, courseID); err != nil {
		return nil, err
	}
	logger := log.WithEnrollment(s.logger, userID, courseID)
	logger.Debug().Msg("Enrolling")

	// Fast path; the guard read inside the transaction is authoritative
	existing, err := s.findEnrollment(ctx, userID, courseID, types.EnrollmentStatusActive)
	if err != nil {
		return nil, translate(err)
	}
	if existing != nil {
		return nil, ErrAlreadyEnrolled
	}

	var created *types.Enrollment
	err = s.runTransaction(ctx, OpEnroll, func(ctx context.Context, tx storage.Tx) error {
		record, err := s.enrollTx(tx, userID, courseID, s.now())
		created = record
		return err
	})
	if err != nil {
		s.logFailure(logger, OpEnroll, err)
		return nil, err
	}

	// Committed: a failed confirmation read does not undo the enrollment
	confirmed, err := s.getByID(ctx, created.ID)
	if err != nil {
		logger.Warn().Err(err).Str("enrollment_id", created.ID).Msg("Confirmation read failed")
		confirmed = created
	}

	s.invalidateStats(ctx, courseID)
	s.publish(events.NewEnrollmentEvent(events.EventEnrollmentCreated, userID, courseID, created.ID, "enrolled"))
	logger.Info().Str("enrollment_id", created.ID).Msg("Enrollment committed")
	return confirmed, nil
}

// Unenroll retires the user's ACTIVE enrollment according to the unenroll
// policy and reverses its counter and index contributions
func (s *Service) Unenroll(ctx context.Context, userID, courseID string) (err error) {
	timer := metrics.NewTimer()
	defer func() { s.record(OpUnenroll, timer, err) }()

	if err := checkIdentity(userID, courseID); err != nil {
		return err
	}
	logger := log.WithEnrollment(s.logger, userID, courseID)
	logger.Debug().Msg("Unenrolling")

	records, err := s.pairRecords(ctx, userID, courseID)
	if err != nil {
		return translate(err)
	}
	var candidate *types.Enrollment
	retainIndex := false
	for _, r := range records {
		switch {
		case r.Status == types.EnrollmentStatusActive && candidate == nil:
			candidate = r
		case r.Status == types.EnrollmentStatusCompleted:
			retainIndex = true
		}
	}
	if candidate == nil {
		return ErrNotEnrolled
	}

	err = s.runTransaction(ctx, OpUnenroll, func(ctx context.Context, tx storage.Tx) error {
		return s.unenrollTx(tx, candidate.ID, userID, courseID, retainIndex, s.now())
	})
	if err != nil {
		s.logFailure(logger, OpUnenroll, err)
		return err
	}

	s.invalidateStats(ctx, courseID)
	s.publish(events.NewEnrollmentEvent(events.EventEnrollmentCancelled, userID, courseID, candidate.ID,
		"unenrolled ("+string(s.cfg.UnenrollPolicy)+")"))
	logger.Info().
		Str("enrollment_id", candidate.ID).
		Str("policy", string(s.cfg.UnenrollPolicy)).
		Msg("Unenrollment committed")
	return nil
}

// UpdateProgress sets the progress of the user's enrollment
func (s *Service) UpdateProgress(ctx context.Context, userID, courseID string, progress float64) (*types.Enrollment, error) {
	return s.RecordProgress(ctx, userID, courseID, ProgressOnly(progress))
}

// RecordProgress applies a progress update to the user's ACTIVE enrollment,
// or to the latest COMPLETED one if none is active
func (s *Service) RecordProgress(ctx context.Context, userID, courseID string, update ProgressUpdate) (result *types.Enrollment, err error) {
	timer := metrics.NewTimer()
	defer func() { s.record(OpUpdateProgress, timer, err) }()

	if err := checkIdentity(userID, courseID); err != nil {
		return nil, err
	}
	if err := update.validate(); err != nil {
		return nil, err
	}

	target, err := s.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	var (
		updated      *types.Enrollment
		completedNow bool
	)
	err = s.runTransaction(ctx, OpUpdateProgress, func(ctx context.Context, tx storage.Tx) error {
		var current types.Enrollment
		exists, err := txGet(tx, CollectionEnrollments, target.ID, &current)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotEnrolled
		}
		completedNow, err = applyProgress(&current, update, s.now())
		if err != nil {
			return err
		}
		updated = &current
		return tx.Set(CollectionEnrollments, current.ID, &current)
	})
	if err != nil {
		s.logFailure(log.WithEnrollment(s.logger, userID, courseID), OpUpdateProgress, err)
		return nil, err
	}

	s.invalidateStats(ctx, courseID)
	if completedNow {
		s.publish(events.NewEnrollmentEvent(events.EventEnrollmentCompleted, userID, courseID, updated.ID, "course completed"))
		s.logger.Info().
			Str("user_id", userID).
			Str("course_id", courseID).
			Str("enrollment_id", updated.ID).
			Msg("Enrollment completed")
	}
	s.logger.Debug().Stringer("enrollment", updated).Msg("Progress recorded")
	return updated, nil
}

// IssueCertificate flips certificateIssued on a COMPLETED enrollment. It is
// idempotent; the flag never goes back to false.
func (s *Service) IssueCertificate(ctx context.Context, userID, courseID string) (result *types.Enrollment, err error) {
	timer := metrics.NewTimer()
	defer func() { s.record(OpIssueCertificate, timer, err) }()

	if err := checkIdentity(userID, courseID); err != nil {
		return nil, err
	}
	records, err := s.pairRecords(ctx, userID, courseID)
	if err != nil {
		return nil, translate(err)
	}
	// a re-enrollment after completion must not hide the completed record
	target := latestCompleted(records)
	if target == nil {
		if len(filterStatus(records, types.EnrollmentStatusActive)) > 0 {
			return nil, ErrNotCompleted
		}
		return nil, ErrNotEnrolled
	}

	var (
		issued *types.Enrollment
		first  bool
	)
	err = s.runTransaction(ctx, OpIssueCertificate, func(ctx context.Context, tx storage.Tx) error {
		var current types.Enrollment
		exists, err := txGet(tx, CollectionEnrollments, target.ID, &current)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotEnrolled
		}
		if current.Status != types.EnrollmentStatusCompleted {
			return ErrNotCompleted
		}
		issued = &current
		first = !current.CertificateIssued
		if !first {
			return nil
		}
		current.CertificateIssued = true
		return tx.Update(CollectionEnrollments, current.ID, storage.Fields{"certificateIssued": true})
	})
	if err != nil {
		return nil, err
	}

	if first {
		s.publish(events.NewEnrollmentEvent(events.EventCertificateIssued, userID, courseID, issued.ID, "certificate issued"))
	}
	return issued, nil
}

// GetEnrollment returns the user's ACTIVE enrollment in the course, or the
// most recent COMPLETED one
func (s *Service) GetEnrollment(ctx context.Context, userID, courseID string) (*types.Enrollment, error) {
	if err := checkIdentity(userID, courseID); err != nil {
		return nil, err
	}
	records, err := s.pairRecords(ctx, userID, courseID)
	if err != nil {
		return nil, translate(err)
	}

	if active := filterStatus(records, types.EnrollmentStatusActive); len(active) > 0 {
		return active[0], nil
	}
	if completed := latestCompleted(records); completed != nil {
		return completed, nil
	}
	return nil, ErrNotEnrolled
}

// latestCompleted returns the most recently enrolled COMPLETED record, or nil
func latestCompleted(records []*types.Enrollment) *types.Enrollment {
	var latest *types.Enrollment
	for _, r := range filterStatus(records, types.EnrollmentStatusCompleted) {
		if latest == nil || r.EnrollmentDate.After(latest.EnrollmentDate) {
			latest = r
		}
	}
	return latest
}

// IsEnrolled reports whether the user has an ACTIVE enrollment in the course
func (s *Service) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	if err := checkIdentity(userID, courseID); err != nil {
		return false, err
	}
	existing, err := s.findEnrollment(ctx, userID, courseID, types.EnrollmentStatusActive)
	if err != nil {
		return false, translate(err)
	}
	return existing != nil, nil
}

// ListEnrollments returns the user's enrollments, newest first, optionally
// restricted to the given statuses
func (s *Service) ListEnrollments(ctx context.Context, userID string, statuses ...types.EnrollmentStatus) ([]*types.Enrollment, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	q := storage.NewQuery().
		Where("userId", storage.OpEqual, userID).
		OrderBy("enrollmentDate", storage.Descending)
	records, err := s.queryEnrollments(ctx, q)
	if err != nil {
		return nil, translate(err)
	}
	return filterStatus(records, statuses...), nil
}

// ListInProgress returns ACTIVE enrollments with 0 < progress < 1, furthest
// along first
func (s *Service) ListInProgress(ctx context.Context, userID string) ([]*types.Enrollment, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	q := storage.NewQuery().
		Where("userId", storage.OpEqual, userID).
		Where("progress", storage.OpGreater, 0).
		Where("progress", storage.OpLess, 1).
		OrderBy("progress", storage.Descending)
	records, err := s.queryEnrollments(ctx, q)
	if err != nil {
		return nil, translate(err)
	}
	return filterStatus(records, types.EnrollmentStatusActive), nil
}

// EnrolledCourses returns the user's course index
func (s *Service) EnrolledCourses(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	doc, err := s.store.Get(ctx, CollectionUsers, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	var index types.UserCourseIndex
	if err := doc.DataTo(&index); err != nil {
		return nil, translate(err)
	}
	if index.EnrolledCourses == nil {
		return []string{}, nil
	}
	return index.EnrolledCourses, nil
}

// CourseCounter returns the stored enrolledStudents for a course
func (s *Service) CourseCounter(ctx context.Context, courseID string) (int, error) {
	if courseID == "" {
		return 0, fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}
	doc, err := s.store.Get(ctx, CollectionCourses, courseID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, translate(err)
	}
	var course types.CourseCounter
	if err := doc.DataTo(&course); err != nil {
		return 0, translate(err)
	}
	return course.EnrolledStudents, nil
}

// CourseStats returns aggregate statistics for a course, through the cache
// when one is configured
func (s *Service) CourseStats(ctx context.Context, courseID string) (*types.CourseStats, error) {
	if courseID == "" {
		return nil, fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}

	var gen uint64
	if s.cfg.Cache != nil {
		cached, g, err := s.cfg.Cache.Get(ctx, courseID)
		gen = g
		switch {
		case err == nil:
			metrics.StatsCacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		case errors.Is(err, cache.ErrMiss):
			metrics.StatsCacheRequests.WithLabelValues("miss").Inc()
		default:
			metrics.StatsCacheRequests.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("Stats cache read failed")
		}
	}

	records, err := s.queryEnrollments(ctx, storage.NewQuery().Where("courseId", storage.OpEqual, courseID))
	if err != nil {
		return nil, translate(err)
	}
	stats := Aggregate(courseID, records, s.now())

	if s.cfg.Cache != nil {
		switch err := s.cfg.Cache.Set(ctx, stats, gen); {
		case errors.Is(err, cache.ErrStale):
			// a commit invalidated the course during the scan
			metrics.StatsCacheRequests.WithLabelValues("stale").Inc()
		case err != nil:
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("Stats cache write failed")
		}
	}
	return stats, nil
}

// CountByStatus counts every enrollment record by status
func (s *Service) CountByStatus(ctx context.Context) (map[types.EnrollmentStatus]int, error) {
	records, err := s.queryEnrollments(ctx, storage.NewQuery())
	if err != nil {
		return nil, translate(err)
	}
	counts := make(map[types.EnrollmentStatus]int)
	for _, r := range records {
		counts[r.Status]++
	}
	return counts, nil
}

// AllEnrollments returns every enrollment record
func (s *Service) AllEnrollments(ctx context.Context) ([]*types.Enrollment, error) {
	records, err := s.queryEnrollments(ctx, storage.NewQuery())
	return records, translate(err)
}

// pairRecords returns every record for (user, course). Status filtering
// happens after decoding so legacy lower-case statuses are included.
func (s *Service) pairRecords(ctx context.Context, userID, courseID string) ([]*types.Enrollment, error) {
	return s.queryEnrollments(ctx, storage.NewQuery().
		Where("userId", storage.OpEqual, userID).
		Where("courseId", storage.OpEqual, courseID))
}

func (s *Service) findEnrollment(ctx context.Context, userID, courseID string, status types.EnrollmentStatus) (*types.Enrollment, error) {
	records, err := s.pairRecords(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Status == status {
			return r, nil
		}
	}
	return nil, nil
}

func (s *Service) getByID(ctx context.Context, id string) (*types.Enrollment, error) {
	doc, err := s.store.Get(ctx, CollectionEnrollments, id)
	if err != nil {
		return nil, err
	}
	var e types.Enrollment
	if err := doc.DataTo(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) queryEnrollments(ctx context.Context, q storage.Query) ([]*types.Enrollment, error) {
	docs, err := s.store.Query(ctx, CollectionEnrollments, q)
	if err != nil {
		return nil, err
	}
	records := make([]*types.Enrollment, 0, len(docs))
	for _, doc := range docs {
		var e types.Enrollment
		if err := doc.DataTo(&e); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = doc.ID
		}
		records = append(records, &e)
	}
	return records, nil
}

func filterStatus(records []*types.Enrollment, statuses ...types.EnrollmentStatus) []*types.Enrollment {
	if len(statuses) == 0 {
		return records
	}
	allowed := make(map[types.EnrollmentStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	out := make([]*types.Enrollment, 0, len(records))
	for _, r := range records {
		if allowed[r.Status] {
			out = append(out, r)
		}
	}
	return out
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

func (s *Service) invalidateStats(ctx context.Context, courseID string) {
	if s.cfg.Cache == nil {
		return
	}
	if err := s.cfg.Cache.Invalidate(ctx, courseID); err != nil {
		s.logger.Warn().Err(err).Str("course_id", courseID).Msg("Stats cache invalidation failed")
	}
}

func (s *Service) publish(event *events.Event) {
	if s.cfg.Events != nil {
		s.cfg.Events.Publish(event)
	}
}

func (s *Service) logFailure(logger zerolog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		logger.Error().Err(err).Str("operation", op).Msg("Store failure")
	case errors.Is(err, ErrTransactionConflict):
		logger.Warn().Err(err).Str("operation", op).Msg("Retry budget exhausted")
	default:
		logger.Debug().Err(err).Str("operation", op).Msg("Operation rejected")
	}
}
