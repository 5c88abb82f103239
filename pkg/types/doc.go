/*
Package types defines the enrollment domain model shared by every other package.

The central entity is Enrollment, one student's relationship to one course. Two
denormalized views derive from it and are kept in step by pkg/enrollment:

  - CourseCounter: enrolledStudents on the course document
  - UserCourseIndex: enrolledCourses on the user document

# Invariants

  - at most one ACTIVE enrollment per (userId, courseId)
  - progress >= 1.0 implies status COMPLETED; completionDate is set once and never cleared
  - enrolledStudents equals the count of ACTIVE or COMPLETED enrollments for the course
  - courseId is in enrolledCourses(userId) iff such an enrollment exists for the user

Enrollment.Validate checks the record-local rules (completion and counter bounds).
The other three span documents and are enforced by the consistency transaction.

# Statuses

Statuses persist as upper-case names. Decoding accepts the lower-case values
written by older clients, so "active" and "ACTIVE" are the same status:

	status, err := types.ParseEnrollmentStatus("completed")
	// status == types.EnrollmentStatusCompleted

ACTIVE and COMPLETED are the counted statuses. SUSPENDED, EXPIRED and CANCELLED are
orthogonal states never reached through progress updates.

# Derived Fields

Enrollment exposes presentation helpers computed from stored fields:

  - IsCompleted, IsActive
  - ProgressPercentage: "42.5%"
  - FormattedTimeSpent: "1h 05min", "45min"
  - CompletionPercentage: lessonsCompleted * 100 / totalLessons (0 without lessons)
*/
package types
