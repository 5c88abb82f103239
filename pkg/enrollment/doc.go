/*
Package enrollment implements the enrollment consistency engine: enroll,
unenroll, progress tracking and course statistics on top of a transactional
document store.

# Documents

Four collections are kept consistent with each other:

	enrollments      one record per (user, course, attempt)
	courses          enrolledStudents counter per course
	users            enrolledCourses index per user
	enrollment_keys  uniqueness guard, id "<userId>:<courseId>"

A course's enrolledStudents equals the number of its ACTIVE and COMPLETED
records, and a user's enrolledCourses holds exactly the courses for which
such a record exists. Every mutation that affects either is committed in the
same transaction as the record change.

# Concurrency

The store only offers single-shot optimistic transactions. Service wraps
them in a retry loop with exponential backoff; after Config.MaxAttempts
conflicts the operation fails with ErrTransactionConflict and nothing has
been written. Two concurrent Enroll calls for the same pair both read the
guard document, so at most one of them commits and the other observes the
new ACTIVE record on retry and returns ErrAlreadyEnrolled.

# Errors

Every failure is mapped onto a small taxonomy (ErrAlreadyEnrolled,
ErrNotEnrolled, ErrTransactionConflict, ErrStoreUnavailable, ...). Code
returns a stable string for each class, used for metric labels and API
responses. Context cancellation is returned unchanged.

# Repair

RepairCourseCounter and RepairUserIndex recompute the denormalized values
from the records and rewrite them when they drifted. The scan is guarded by
the version of the course or user document observed before it started, so a
concurrent enroll forces a fresh scan instead of a stale write.

Usage:

	svc, err := enrollment.NewService(store, enrollment.Config{
		UnenrollPolicy: enrollment.UnenrollCancel,
		Events:         broker,
	})
	record, err := svc.Enroll(ctx, userID, courseID)
	_, err = svc.UpdateProgress(ctx, userID, courseID, 0.5)
*/
package enrollment
