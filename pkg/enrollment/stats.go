package enrollment

import (
	"time"

	"github.com/learnizone/enrollcore/pkg/types"
)

// Aggregate folds enrollment records into course statistics. It is a pure
// function of the set: order does not matter and an empty set yields all
// zeros.
func Aggregate(courseID string, records []*types.Enrollment, now time.Time) *types.CourseStats {
	stats := &types.CourseStats{CourseID: courseID, ComputedAt: now}

	var progressSum float64
	for _, r := range records {
		stats.TotalEnrollments++
		progressSum += r.Progress
		switch r.Status {
		case types.EnrollmentStatusActive:
			stats.ActiveEnrollments++
		case types.EnrollmentStatusCompleted:
			stats.CompletedEnrollments++
		}
	}

	if stats.TotalEnrollments > 0 {
		total := float64(stats.TotalEnrollments)
		stats.AverageProgress = progressSum / total
		stats.CompletionRate = 100 * float64(stats.CompletedEnrollments) / total
	}
	return stats
}
