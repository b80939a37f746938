package daemon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hegelab/hegel/pkg/hegel/sweep"
)

// Job states.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
	StateAborted = "aborted"
)

// maxFinishedJobs bounds how many terminal jobs the table retains so a
// long-lived daemon does not grow without bound. Running jobs are
// never pruned.
const maxFinishedJobs = 32

// Job is one background run owned by the daemon.
type Job struct {
	ID     string
	Kind   string
	cancel context.CancelFunc
	seq    uint64

	mu       sync.Mutex
	state    string
	filename string
	progress sweep.Progress
	err      error
}

// Status snapshots the job for the wire.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		JobID:    j.ID,
		State:    j.state,
		Filename: j.filename,
		Progress: j.progress,
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	return st
}

// SetFilename records where the job writes its data.
func (j *Job) SetFilename(name string) {
	j.mu.Lock()
	j.filename = name
	j.mu.Unlock()
}

// SetProgress updates the job's progress snapshot.
func (j *Job) SetProgress(p sweep.Progress) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

// Finish moves the job to its terminal state. A cancelled job reports
// aborted, any other error failed.
func (j *Job) Finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case err == nil:
		j.state = StateDone
	case errors.Is(err, context.Canceled):
		j.state = StateAborted
		j.err = err
	default:
		j.state = StateFailed
		j.err = err
	}
}

// Abort cancels the job's context.
func (j *Job) Abort() {
	j.cancel()
}

// Jobs tracks the daemon's background runs.
type Jobs struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	nextSeq uint64
}

// NewJobs creates an empty job table.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job)}
}

// Create registers a new running job and returns it with the context
// the run must use. Old finished jobs are pruned to make room.
func (s *Jobs) Create(ctx context.Context, kind string) (*Job, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.nextSeq++
	j := &Job{
		ID:     uuid.NewString(),
		Kind:   kind,
		cancel: cancel,
		seq:    s.nextSeq,
		state:  StateRunning,
	}
	s.jobs[j.ID] = j
	s.pruneLocked()
	s.mu.Unlock()
	return j, runCtx
}

// pruneLocked drops the oldest terminal jobs beyond maxFinishedJobs.
// Callers hold s.mu.
func (s *Jobs) pruneLocked() {
	type finished struct {
		id  string
		seq uint64
	}
	var done []finished
	for id, j := range s.jobs {
		j.mu.Lock()
		terminal := j.state != StateRunning
		j.mu.Unlock()
		if terminal {
			done = append(done, finished{id: id, seq: j.seq})
		}
	}
	if len(done) <= maxFinishedJobs {
		return
	}
	sort.Slice(done, func(i, k int) bool { return done[i].seq < done[k].seq })
	for _, f := range done[:len(done)-maxFinishedJobs] {
		delete(s.jobs, f.id)
	}
}

// Get looks a job up by id.
func (s *Jobs) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", id)
	}
	return j, nil
}

// Counts tallies jobs per state.
func (s *Jobs) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, j := range s.jobs {
		j.mu.Lock()
		counts[j.state]++
		j.mu.Unlock()
	}
	return counts
}

// AbortAll cancels every running job.
func (s *Jobs) AbortAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		j.cancel()
	}
}
