/*
Package scheduler runs periodic jobs on cron specs.

Specs have a leading seconds field ("0 0/15 * * * *" is every fifteen
minutes) and also accept descriptors such as "@every 1h". Each job gets a
context with a timeout that is cancelled when the scheduler stops.

A job never overlaps with itself. A tick that fires while the previous run
is still in progress is skipped and counted as "skipped" in
enrollcore_job_runs_total{job,result}; RunNow waits for the running
invocation instead.

	s := scheduler.NewScheduler(5 * time.Minute)
	if err := s.AddJob("reconcile", "0 0/15 * * * *", reconciler); err != nil {
		return err
	}
	s.Start()
	defer s.Stop()
*/
package scheduler
