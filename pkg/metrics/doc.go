/*
Package metrics provides Prometheus metrics and component health for enrollcore.

All metrics are package-level collectors registered with the default registry
at init, so any package can record into them without wiring. Handler exposes
them for scraping.

# Metrics

Service operations:

	enrollcore_operations_total{operation,result}
	enrollcore_operation_duration_seconds{operation}
	enrollcore_transaction_conflicts_total{operation}
	enrollcore_transaction_attempts{operation}

operation is one of enroll, unenroll, update_progress, issue_certificate,
repair_course_counter or repair_user_index. result is ok or the error class
(already_enrolled, not_enrolled, conflict, unavailable, ...).

State and background work:

	enrollcore_enrollments_total{status}             refreshed by Collector
	enrollcore_stats_cache_requests_total{result}    hit, miss, error
	enrollcore_drift_detected_total{kind}            course_counter, user_index
	enrollcore_reconciliation_duration_seconds
	enrollcore_reconciliation_cycles_total
	enrollcore_job_runs_total{job,result}

HTTP:

	enrollcore_api_requests_total{method,route,status}
	enrollcore_api_request_duration_seconds{method,route}

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "enroll")

# Health

Components report health with RegisterComponent/UpdateComponent, or register a
check with RegisterCheck and let RunChecks refresh them. Checks run in parallel,
each bounded by a short timeout.

GetHealth is unhealthy when a critical component (store, api) is down and
degraded when only optional ones such as the stats cache are. GetReadiness only
considers the critical components. The HTTP surface serves both as /health and
/ready.
*/
package metrics
