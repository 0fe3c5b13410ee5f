// Package scheduler runs the background jobs that keep search sessions
// healthy: the jittered auto-retry sweep and periodic session cleanup. Each
// job gets its own timer loop, so sub-second jitter in a schedule is honored
// exactly.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mythses/polystat/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is one unit of periodic work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// stops.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time strictly after t.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult records one execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Err         error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler owns a set of jobs and drives each on its own schedule.
type Scheduler struct {
	mu sync.Mutex

	logger *slog.Logger

	jobs    map[string]*scheduledJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *Metrics

	onJobComplete func(result JobResult)
}

type scheduledJob struct {
	job      Job
	schedule Schedule

	mu        sync.Mutex
	lastRun   time.Time
	runCount  int64
	failCount int64
}

// New returns a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		jobs:    make(map[string]*scheduledJob),
		metrics: NewMetrics(),
	}
}

// OnJobComplete registers a callback invoked after every execution. Must be
// called before Start.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

// Register adds a job. Jobs cannot be added after Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	s.jobs[name] = &scheduledJob{job: job, schedule: schedule}

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"description", job.Description(),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches one timer loop per registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(sj)
	}

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(sj *scheduledJob) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Until(sj.schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			s.execute(s.ctx, sj)
			timer.Reset(time.Until(sj.schedule.Next(time.Now())))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) error {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	return s.execute(ctx, sj)
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) error {
	name := sj.job.Name()
	startedAt := time.Now()

	err := sj.job.Run(ctx)
	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)

	sj.mu.Lock()
	sj.lastRun = startedAt
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	sj.mu.Unlock()

	s.metrics.record(name, duration, err == nil)

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", duration.String(), logger.Err(err))
	} else {
		s.logger.Debug("job completed", "job", name, "duration", duration.String())
	}

	s.mu.Lock()
	hook := s.onJobComplete
	s.mu.Unlock()
	if hook != nil {
		hook(JobResult{
			JobName:     name,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Duration:    duration,
			Err:         err,
		})
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job's state.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	RunCount    int64
	FailCount   int64
}

// ListJobs returns the state of every registered job.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		sj.mu.Lock()
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			LastRun:     sj.lastRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
		})
		sj.mu.Unlock()
	}
	return infos
}

// Metrics returns the scheduler's execution metrics.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks execution counts per job.
type Metrics struct {
	mu sync.RWMutex

	executions map[string]int64
	failures   map[string]int64
	durations  map[string]time.Duration
}

// NewMetrics returns an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		executions: make(map[string]int64),
		failures:   make(map[string]int64),
		durations:  make(map[string]time.Duration),
	}
}

func (m *Metrics) record(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions[jobName]++
	m.durations[jobName] += duration
	if !success {
		m.failures[jobName]++
	}
}

// Executions returns how many times the job has run.
func (m *Metrics) Executions(jobName string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.executions[jobName]
}

// Failures returns how many runs of the job returned an error.
func (m *Metrics) Failures(jobName string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures[jobName]
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob - Register was given a nil job.
	ErrNilJob = fmt.Errorf("job cannot be nil")

	// ErrNilSchedule - Register was given a nil schedule.
	ErrNilSchedule = fmt.Errorf("schedule cannot be nil")

	// ErrJobAlreadyExists - a job with the same name is registered.
	ErrJobAlreadyExists = fmt.Errorf("job already exists")

	// ErrJobNotFound - no job with the given name is registered.
	ErrJobNotFound = fmt.Errorf("job not found")

	// ErrSchedulerRunning - the operation requires a stopped scheduler.
	ErrSchedulerRunning = fmt.Errorf("scheduler is running")

	// ErrSchedulerNotRunning - Stop was called on a stopped scheduler.
	ErrSchedulerNotRunning = fmt.Errorf("scheduler is not running")
)
