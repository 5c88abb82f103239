package reconciler

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/learnizone/enrollcore/pkg/enrollment"
	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Drift kinds
const (
	KindCourseCounter = "course_counter"
	KindUserIndex     = "user_index"
)

// Repairer rewrites a drifted counter or index. *enrollment.Service
// implements it.
type Repairer interface {
	RepairCourseCounter(ctx context.Context, courseID string) (*enrollment.CounterRepair, error)
	RepairUserIndex(ctx context.Context, userID string) (*enrollment.IndexRepair, error)
}

// Drift is one denormalized value that disagrees with the records
type Drift struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Stored   any    `json:"stored"`
	Expected any    `json:"expected"`
	Repaired bool   `json:"repaired"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes one reconciliation pass
type Report struct {
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Enrollments int           `json:"enrollments"`
	Courses     int           `json:"courses"`
	Users       int           `json:"users"`
	Drifts      []Drift       `json:"drifts"`
}

// Consistent reports whether no drift was found
func (r *Report) Consistent() bool {
	return len(r.Drifts) == 0
}

// Reconciler audits course counters and user indexes against the
// enrollment records. Normal operation keeps them consistent inside each
// transaction; the reconciler catches drift from manual edits, records
// written by older clients and partial restores.
type Reconciler struct {
	store    storage.Store
	repairer Repairer
	repair   bool
	mu       sync.Mutex
	logger   zerolog.Logger
}

// NewReconciler creates a reconciler. When repair is false drift is only
// reported.
func NewReconciler(store storage.Store, repairer Repairer, repair bool) *Reconciler {
	return &Reconciler{
		store:    store,
		repairer: repairer,
		repair:   repair,
		logger:   log.WithComponent("reconciler"),
	}
}

// Run performs one reconciliation pass; it satisfies scheduler.Job
func (r *Reconciler) Run(ctx context.Context) error {
	_, err := r.Reconcile(ctx)
	return err
}

// Reconcile scans every enrollment, course and user document, reports
// drift and repairs it when enabled. Passes never overlap.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{StartedAt: time.Now().UTC()}

	var (
		records []*types.Enrollment
		courses []*storage.Document
		users   []*storage.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := r.store.Query(gctx, enrollment.CollectionEnrollments, storage.NewQuery())
		if err != nil {
			return fmt.Errorf("failed to scan enrollments: %w", err)
		}
		records = make([]*types.Enrollment, 0, len(docs))
		for _, doc := range docs {
			var e types.Enrollment
			if err := doc.DataTo(&e); err != nil {
				return fmt.Errorf("failed to decode enrollment %s: %w", doc.ID, err)
			}
			records = append(records, &e)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		courses, err = r.store.Query(gctx, enrollment.CollectionCourses, storage.NewQuery())
		if err != nil {
			return fmt.Errorf("failed to scan courses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		users, err = r.store.Query(gctx, enrollment.CollectionUsers, storage.NewQuery())
		if err != nil {
			return fmt.Errorf("failed to scan users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Enrollments = len(records)
	report.Courses = len(courses)
	report.Users = len(users)

	counterDrift, err := counterDrifts(records, courses)
	if err != nil {
		return nil, err
	}
	indexDrift, err := indexDrifts(records, users)
	if err != nil {
		return nil, err
	}
	report.Drifts = append(counterDrift, indexDrift...)

	for i := range report.Drifts {
		d := &report.Drifts[i]
		metrics.DriftDetected.WithLabelValues(d.Kind).Inc()
		r.logger.Warn().
			Str("kind", d.Kind).
			Str("id", d.ID).
			Interface("stored", d.Stored).
			Interface("expected", d.Expected).
			Msg("Drift detected")

		if r.repair && r.repairer != nil {
			r.repairOne(ctx, d)
		}
	}

	report.Duration = timer.Duration()
	r.logger.Info().
		Int("enrollments", report.Enrollments).
		Int("drifts", len(report.Drifts)).
		Dur("duration", report.Duration).
		Msg("Reconciliation complete")
	return report, nil
}

func (r *Reconciler) repairOne(ctx context.Context, d *Drift) {
	var err error
	switch d.Kind {
	case KindCourseCounter:
		var res *enrollment.CounterRepair
		res, err = r.repairer.RepairCourseCounter(ctx, d.ID)
		if err == nil {
			d.Repaired = res.Repaired
		}
	case KindUserIndex:
		var res *enrollment.IndexRepair
		res, err = r.repairer.RepairUserIndex(ctx, d.ID)
		if err == nil {
			d.Repaired = res.Repaired
		}
	}
	if err != nil {
		d.Error = err.Error()
		r.logger.Error().Err(err).Str("kind", d.Kind).Str("id", d.ID).Msg("Repair failed")
	}
}

// counterDrifts compares each course's enrolledStudents with its count of
// ACTIVE and COMPLETED records
func counterDrifts(records []*types.Enrollment, courses []*storage.Document) ([]Drift, error) {
	expected := make(map[string]int)
	for _, rec := range records {
		if rec.Status.Counted() {
			expected[rec.CourseID]++
		}
	}

	stored := make(map[string]int, len(courses))
	for _, doc := range courses {
		var c types.CourseCounter
		if err := doc.DataTo(&c); err != nil {
			return nil, fmt.Errorf("failed to decode course %s: %w", doc.ID, err)
		}
		stored[doc.ID] = c.EnrolledStudents
	}

	var drifts []Drift
	for _, id := range unionKeys(expected, stored) {
		if stored[id] != expected[id] {
			drifts = append(drifts, Drift{Kind: KindCourseCounter, ID: id, Stored: stored[id], Expected: expected[id]})
		}
	}
	return drifts, nil
}

// indexDrifts compares each user's enrolledCourses with the courses of
// their ACTIVE and COMPLETED records
func indexDrifts(records []*types.Enrollment, users []*storage.Document) ([]Drift, error) {
	sets := make(map[string]map[string]bool)
	for _, rec := range records {
		if !rec.Status.Counted() {
			continue
		}
		if sets[rec.UserID] == nil {
			sets[rec.UserID] = make(map[string]bool)
		}
		sets[rec.UserID][rec.CourseID] = true
	}
	expected := make(map[string][]string, len(sets))
	for user, set := range sets {
		expected[user] = sortedSet(set)
	}

	stored := make(map[string][]string, len(users))
	for _, doc := range users {
		var u types.UserCourseIndex
		if err := doc.DataTo(&u); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", doc.ID, err)
		}
		// duplicates are kept so they show up as drift
		have := append([]string{}, u.EnrolledCourses...)
		sort.Strings(have)
		stored[doc.ID] = have
	}

	var drifts []Drift
	for _, id := range unionKeys(expected, stored) {
		want, have := expected[id], stored[id]
		if want == nil {
			want = []string{}
		}
		if have == nil {
			have = []string{}
		}
		if !slices.Equal(want, have) {
			drifts = append(drifts, Drift{Kind: KindUserIndex, ID: id, Stored: have, Expected: want})
		}
	}
	return drifts, nil
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unionKeys[V any](a, b map[string]V) []string {
	set := make(map[string]bool, len(a)+len(b))
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}
	return sortedSet(set)
}
