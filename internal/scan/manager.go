package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ichiscan/internal/domain"
	"ichiscan/internal/recorder"
)

// ErrJobNotFound is returned for unknown scan identifiers.
var ErrJobNotFound = errors.New("scan job not found")

// JobState is the lifecycle state of an asynchronous scan job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Job is one asynchronous scan run, identified by a UUID.
type Job struct {
	ID        string
	Config    *domain.ScanConfig
	Progress  *Progress
	StartedAt time.Time

	cancel context.CancelFunc

	mu         sync.RWMutex
	state      JobState
	outcomes   map[string]*domain.ScanOutcome
	err        error
	finishedAt time.Time
}

// State returns the job's current lifecycle state.
func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Outcomes returns the result mapping once the job has finished, or nil
// while it is still running.
func (j *Job) Outcomes() map[string]*domain.ScanOutcome {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.outcomes
}

// Err returns the job-level error for failed jobs.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// FinishedAt returns when the job reached a terminal state.
func (j *Job) FinishedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt
}

// Manager owns asynchronous scan jobs: it starts them, tracks their
// progress, and routes cancellation by scan identifier.
type Manager struct {
	runner   *Runner
	recorder recorder.Recorder
	logger   *log.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewManager creates a job manager. rec may be nil; logger may be nil.
func NewManager(runner *Runner, rec recorder.Recorder, logger *log.Logger) *Manager {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		runner:   runner,
		recorder: rec,
		logger:   logger,
		jobs:     make(map[string]*Job),
	}
}

// Start validates the config and launches the scan in the background.
// Invalid configs are rejected before a job is created.
func (m *Manager) Start(cfg *domain.ScanConfig) (*Job, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		Config:    cfg,
		Progress:  NewProgress(len(cfg.Symbols)),
		StartedAt: time.Now(),
		cancel:    cancel,
		state:     JobRunning,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(ctx, job)
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job) {
	outcomes, err := m.runner.Run(ctx, job.Config, job.Progress)

	job.mu.Lock()
	job.finishedAt = time.Now()
	switch {
	case err != nil:
		job.state = JobFailed
		job.err = err
	case ctx.Err() != nil:
		job.state = JobCancelled
		job.outcomes = outcomes
	default:
		job.state = JobCompleted
		job.outcomes = outcomes
	}
	job.mu.Unlock()

	if err != nil {
		m.logger.Printf("scan %s failed: %v", job.ID, err)
		return
	}

	rec := &recorder.Record{
		ScanID:     job.ID,
		Config:     job.Config,
		Summary:    domain.Summarize(outcomes),
		Results:    domain.MatchedResults(outcomes),
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt(),
	}
	if err := m.recorder.RecordScan(context.Background(), rec); err != nil {
		m.logger.Printf("record scan %s: %v", job.ID, err)
	}
}

// Get returns the job for an identifier.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Cancel signals the job's scan to stop dispatching new symbols.
func (m *Manager) Cancel(id string) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	job.cancel()
	return nil
}

// List returns all known jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}
