/*
Package reconciler audits the denormalized enrollment values against the
enrollment records.

Two values are derived from the records and stored separately:

	courses/<id>.enrolledStudents  count of ACTIVE and COMPLETED records
	users/<id>.enrolledCourses     distinct courses of those records

Enroll and unenroll keep both in step inside one transaction. The
reconciler is the audit path for everything else: documents edited by
hand, records imported from older clients, partial restores.

A pass scans the three collections in parallel, recomputes the expected
values and reports every mismatch as a Drift. With repair enabled, each
drifted value is handed to a Repairer (the enrollment service), which
recomputes it again inside a version-guarded transaction, so a concurrent
enroll never gets overwritten by a stale count.

Passes are serialized. Scheduling is left to pkg/scheduler:

	r := reconciler.NewReconciler(store, svc, cfg.Reconciler.Repair)
	sched.AddJob("reconcile", cfg.Reconciler.Schedule, r)

# Metrics

	enrollcore_drift_detected_total{kind}
	enrollcore_reconciliation_duration_seconds
	enrollcore_reconciliation_cycles_total
*/
package reconciler
