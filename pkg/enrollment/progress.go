package enrollment

import (
	"fmt"
	"math"
	"time"

	"github.com/learnizone/enrollcore/pkg/types"
)

// ProgressUpdate carries a progress change and optional detail fields.
// Nil pointers leave the stored value alone.
type ProgressUpdate struct {
	// Progress in [0,1]; out-of-range values are clamped
	Progress *float64

	// TimeSpentMinutes is added to the stored total
	TimeSpentMinutes int

	LessonsCompleted *int
	TotalLessons     *int
	AverageQuizScore *float64
}

// ProgressOnly builds an update that only sets progress
func ProgressOnly(progress float64) ProgressUpdate {
	return ProgressUpdate{Progress: &progress}
}

func (u ProgressUpdate) validate() error {
	if u.Progress != nil && math.IsNaN(*u.Progress) {
		return fmt.Errorf("%w: progress is NaN", ErrInvalidArgument)
	}
	if u.TimeSpentMinutes < 0 {
		return fmt.Errorf("%w: timeSpentMinutes must not be negative", ErrInvalidArgument)
	}
	if u.LessonsCompleted != nil && *u.LessonsCompleted < 0 {
		return fmt.Errorf("%w: lessonsCompleted must not be negative", ErrInvalidArgument)
	}
	if u.TotalLessons != nil && *u.TotalLessons < 0 {
		return fmt.Errorf("%w: totalLessons must not be negative", ErrInvalidArgument)
	}
	if u.AverageQuizScore != nil && (math.IsNaN(*u.AverageQuizScore) || *u.AverageQuizScore < 0) {
		return fmt.Errorf("%w: averageQuizScore must be a non-negative number", ErrInvalidArgument)
	}
	return nil
}

// clampProgress forces p into [0,1]
func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// applyProgress is the progress state machine. Only ACTIVE and COMPLETED
// records accept updates. Reaching 1.0 moves ACTIVE to COMPLETED and stamps
// completionDate; COMPLETED is terminal, so progress stays pinned at 1.0
// and the stamp is never moved. It reports whether this update completed
// the enrollment.
func applyProgress(e *types.Enrollment, u ProgressUpdate, now time.Time) (bool, error) {
	if err := u.validate(); err != nil {
		return false, err
	}
	if e.Status != types.EnrollmentStatusActive && e.Status != types.EnrollmentStatusCompleted {
		return false, ErrNotEnrolled
	}

	e.LastAccessDate = now
	completedNow := false

	if u.Progress != nil {
		p := clampProgress(*u.Progress)
		if e.Status == types.EnrollmentStatusCompleted {
			p = 1.0
		}
		e.Progress = p
		if p >= 1.0 && e.Status != types.EnrollmentStatusCompleted {
			e.Status = types.EnrollmentStatusCompleted
			completedNow = true
		}
	}
	if e.Status == types.EnrollmentStatusCompleted && e.CompletionDate == nil {
		stamp := now
		e.CompletionDate = &stamp
	}

	e.TimeSpentMinutes += u.TimeSpentMinutes
	if u.LessonsCompleted != nil {
		e.LessonsCompleted = *u.LessonsCompleted
	}
	if u.TotalLessons != nil {
		e.TotalLessons = *u.TotalLessons
	}
	if u.AverageQuizScore != nil {
		e.AverageQuizScore = *u.AverageQuizScore
	}
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return completedNow, nil
}
