package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusExpired   EnrollmentStatus = "EXPIRED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// AllStatuses lists every known enrollment status
var AllStatuses = []EnrollmentStatus{
	EnrollmentStatusActive,
	EnrollmentStatusCompleted,
	EnrollmentStatusSuspended,
	EnrollmentStatusExpired,
	EnrollmentStatusCancelled,
}

// CountedStatuses are the statuses that contribute to a course's enrolled
// student counter and to the user's course index
var CountedStatuses = []EnrollmentStatus{
	EnrollmentStatusActive,
	EnrollmentStatusCompleted,
}

// ParseEnrollmentStatus parses a status name case-insensitively
func ParseEnrollmentStatus(s string) (EnrollmentStatus, error) {
	status := EnrollmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown enrollment status: %q", s)
	}
	return status, nil
}

// Valid reports whether the status is one of the known values
func (s EnrollmentStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Counted reports whether the status contributes to counters and indexes
func (s EnrollmentStatus) Counted() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusCompleted
}

// UnmarshalJSON accepts legacy lower-case values ("active", "cancelled")
// alongside the canonical upper-case names
func (s *EnrollmentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, err := ParseEnrollmentStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Enrollment is one student's relationship to one course
//
// JSON field names match the persisted document schema.
type Enrollment struct {
	ID                string           `json:"enrollmentId"`
	UserID            string           `json:"userId"`
	CourseID          string           `json:"courseId"`
	Status            EnrollmentStatus `json:"status"`
	Progress          float64          `json:"progress"`
	EnrollmentDate    time.Time        `json:"enrollmentDate"`
	LastAccessDate    time.Time        `json:"lastAccessDate"`
	CompletionDate    *time.Time       `json:"completionDate,omitempty"`
	TimeSpentMinutes  int              `json:"timeSpentMinutes"`
	LessonsCompleted  int              `json:"lessonsCompleted"`
	TotalLessons      int              `json:"totalLessons"`
	AverageQuizScore  float64          `json:"averageQuizScore"`
	CertificateIssued bool             `json:"certificateIssued"`
}

// IsCompleted reports whether the enrollment has been completed
func (e *Enrollment) IsCompleted() bool {
	return e.Status == EnrollmentStatusCompleted || e.Progress >= 1.0
}

// IsActive reports whether the enrollment is active
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}

// ProgressPercentage formats progress as a percentage, e.g. "42.5%"
func (e *Enrollment) ProgressPercentage() string {
	return fmt.Sprintf("%.1f%%", e.Progress*100)
}

// FormattedTimeSpent formats the time spent, e.g. "1h 05min" or "45min"
func (e *Enrollment) FormattedTimeSpent() string {
	hours := e.TimeSpentMinutes / 60
	minutes := e.TimeSpentMinutes % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %02dmin", hours, minutes)
	}
	return fmt.Sprintf("%dmin", minutes)
}

// CompletionPercentage returns the integer share of lessons completed
func (e *Enrollment) CompletionPercentage() int {
	if e.TotalLessons == 0 {
		return 0
	}
	return (e.LessonsCompleted * 100) / e.TotalLessons
}

// Validate checks the record-level invariants on counters and progress
func (e *Enrollment) Validate() error {
	if e.UserID == "" || e.CourseID == "" {
		return fmt.Errorf("enrollment requires userId and courseId")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if e.Progress < 0 || e.Progress > 1 {
		return fmt.Errorf("progress %v out of range [0,1]", e.Progress)
	}
	if e.TimeSpentMinutes < 0 || e.LessonsCompleted < 0 || e.TotalLessons < 0 {
		return fmt.Errorf("counters must not be negative")
	}
	if e.TotalLessons > 0 && e.LessonsCompleted > e.TotalLessons {
		return fmt.Errorf("lessonsCompleted %d exceeds totalLessons %d", e.LessonsCompleted, e.TotalLessons)
	}
	if e.Progress >= 1.0 && e.Status != EnrollmentStatusCompleted {
		return fmt.Errorf("progress %v requires status %s", e.Progress, EnrollmentStatusCompleted)
	}
	return nil
}

// String renders a compact description for logs
func (e *Enrollment) String() string {
	return fmt.Sprintf("Enrollment(id=%s, user=%s, course=%s, status=%s, progress=%.2f, lessons=%d/%d)",
		e.ID, e.UserID, e.CourseID, e.Status, e.Progress, e.LessonsCompleted, e.TotalLessons)
}

// EnrollmentView is an Enrollment with its derived fields, as served to
// API and CLI callers
type EnrollmentView struct {
	*Enrollment
	Completed            bool   `json:"isCompleted"`
	Active               bool   `json:"isActive"`
	ProgressPercent      string `json:"progressPercentage"`
	TimeSpent            string `json:"formattedTimeSpent"`
	CompletionPercentage int    `json:"completionPercentage"`
}

// View returns e together with its derived fields
func (e *Enrollment) View() EnrollmentView {
	return EnrollmentView{
		Enrollment:           e,
		Completed:            e.IsCompleted(),
		Active:               e.IsActive(),
		ProgressPercent:      e.ProgressPercentage(),
		TimeSpent:            e.FormattedTimeSpent(),
		CompletionPercentage: e.CompletionPercentage(),
	}
}

// Views maps View over records
func Views(records []*Enrollment) []EnrollmentView {
	out := make([]EnrollmentView, len(records))
	for i, r := range records {
		out[i] = r.View()
	}
	return out
}

// CourseCounter is the denormalized student counter attached to a course
type CourseCounter struct {
	CourseID         string    `json:"id"`
	EnrolledStudents int       `json:"enrolledStudents"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UserCourseIndex is the per-user set of counted course enrollments
type UserCourseIndex struct {
	UserID          string    `json:"userId"`
	EnrolledCourses []string  `json:"enrolledCourses"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CourseStats are aggregate enrollment statistics for one course
type CourseStats struct {
	CourseID             string    `json:"courseId"`
	TotalEnrollments     int       `json:"totalEnrollments"`
	ActiveEnrollments    int       `json:"activeEnrollments"`
	CompletedEnrollments int       `json:"completedEnrollments"`
	AverageProgress      float64   `json:"averageProgress"`
	CompletionRate       float64   `json:"completionRate"`
	ComputedAt           time.Time `json:"computedAt"`
}
