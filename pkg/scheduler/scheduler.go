package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single job run
const DefaultJobTimeout = 10 * time.Minute

// Job is a unit of periodic work
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job
type JobFunc func(ctx context.Context) error

// Run calls f
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type entry struct {
	spec string
	job  Job
	id   cron.EntryID
	mu   sync.Mutex
}

// Scheduler runs named jobs on cron specs with seconds precision. A job
// never overlaps with itself: a tick that fires while the previous run is
// still going is skipped.
type Scheduler struct {
	cron     *cron.Cron
	timeout  time.Duration
	mu       sync.RWMutex
	jobs     map[string]*entry
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler; timeout <= 0 uses DefaultJobTimeout
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	logger := log.WithComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{logger})),
		timeout: timeout,
		jobs:    make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// AddJob registers job under name on the given cron spec
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	e := &entry{spec: spec, job: job}
	id, err := s.cron.AddFunc(spec, func() {
		if !e.mu.TryLock() {
			s.logger.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
			metrics.JobRunsTotal.WithLabelValues(name, "skipped").Inc()
			return
		}
		defer e.mu.Unlock()
		_ = s.run(s.ctx, name, e.job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	e.id = id
	s.jobs[name] = e

	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("Job registered")
	return nil
}

// RunNow runs a registered job synchronously, waiting for any scheduled
// run of the same job to finish first
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.run(ctx, name, e.job)
}

// Jobs returns the registered job names
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next scheduled run of a job, zero if unknown or the
// scheduler is not running
func (s *Scheduler) Next(name string) time.Time {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return. It is safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.logger.Info().Msg("Scheduler stopped")
	})
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := metrics.NewTimer()
	s.logger.Debug().Str("job", name).Msg("Job started")

	err := job.Run(ctx)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "failure").Inc()
		s.logger.Error().Err(err).Str("job", name).Dur("duration", timer.Duration()).Msg("Job failed")
		return err
	}
	metrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
	s.logger.Info().Str("job", name).Dur("duration", timer.Duration()).Msg("Job completed")
	return nil
}

// cronLogger routes cron's own logging into zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
