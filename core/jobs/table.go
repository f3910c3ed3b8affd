// Package jobs tracks pipelines running in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultCapacity is the number of concurrent background jobs allowed when
	// none is configured.
	DefaultCapacity = 10

	// DefaultMaxCommandText bounds the stored command text.
	DefaultMaxCommandText = 256

	// DefaultPollInterval is how often Drain polls.
	DefaultPollInterval = 50 * time.Millisecond
)

var (
	ErrJobTableFull = errors.New("job table full")
	ErrDuplicatePID = errors.New("process already belongs to a running job")
	ErrNoProcesses  = errors.New("job has no processes")
)

// Job is a background pipeline.
type Job struct {
	// Number is assigned from 1 upward and never reused.
	Number int
	// PID is the process reported to the user, the last stage of the pipeline.
	PID int
	// PIDs holds every process of the pipeline in stage order.
	PIDs []int
	// Command is a bounded snapshot of the command line.
	Command string
	Active  bool
}

// Completion describes a job the table stopped tracking.
type Completion struct {
	Job Job
	// ExitCode is the status of the last stage that failed, or 0.
	ExitCode int
	// Err is set when the job's status could not be collected.
	Err error
}

// Success is true when every stage exited with status 0.
func (c Completion) Success() bool {
	return c.Err == nil && c.ExitCode == 0
}

// String formats the completion notice shown at the prompt.
func (c Completion) String() string {
	switch {
	case c.Err != nil:
		return fmt.Sprintf("[%d]+ Error   %s: %v", c.Job.Number, c.Job.Command, c.Err)
	case c.ExitCode != 0:
		return fmt.Sprintf("[%d]+ Exit %-3d %s", c.Job.Number, c.ExitCode, c.Job.Command)
	default:
		return fmt.Sprintf("[%d]+ Done    %s", c.Job.Number, c.Job.Command)
	}
}

type slot struct {
	job     Job
	pending map[int]bool
	codes   map[int]int
}

// Table is a fixed-capacity registry of background jobs. Slots of finished
// jobs are reused by later registrations; job numbers are not.
//
// Table is owned by the shell loop and is not safe for concurrent use.
type Table struct {
	waiter   Waiter
	capacity int
	maxText  int

	slots      []slot
	free       []int
	nextNumber int

	// orphans are still running processes of jobs dropped after an error.
	orphans []int
}

// NewTable creates a table with room for capacity concurrent jobs.
func NewTable(capacity, maxCommandText int, waiter Waiter) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxCommandText <= 0 {
		maxCommandText = DefaultMaxCommandText
	}
	if waiter == nil {
		waiter = UnixWaiter{}
	}

	return &Table{
		waiter:     waiter,
		capacity:   capacity,
		maxText:    maxCommandText,
		nextNumber: 1,
	}
}

// Capacity returns the maximum number of concurrent jobs.
func (t *Table) Capacity() int {
	return t.capacity
}

// Register records a running pipeline and returns its job number.
func (t *Table) Register(command string, pids ...int) (int, error) {
	if len(pids) == 0 {
		return 0, ErrNoProcesses
	}

	for _, pid := range pids {
		if t.isLive(pid) {
			return 0, fmt.Errorf("pid %d: %w", pid, ErrDuplicatePID)
		}
	}

	idx, err := t.allocate()
	if err != nil {
		return 0, err
	}

	s := slot{
		job: Job{
			Number:  t.nextNumber,
			PID:     pids[len(pids)-1],
			PIDs:    append([]int(nil), pids...),
			Command: truncate(command, t.maxText),
			Active:  true,
		},
		pending: make(map[int]bool, len(pids)),
		codes:   make(map[int]int, len(pids)),
	}
	for _, pid := range pids {
		s.pending[pid] = true
	}

	t.slots[idx] = s
	t.nextNumber++
	return s.job.Number, nil
}

func (t *Table) allocate() (int, error) {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		return idx, nil
	}

	if len(t.slots) < t.capacity {
		t.slots = append(t.slots, slot{})
		return len(t.slots) - 1, nil
	}

	return 0, ErrJobTableFull
}

func (t *Table) isLive(pid int) bool {
	for _, orphan := range t.orphans {
		if orphan == pid {
			return true
		}
	}
	for _, s := range t.slots {
		if s.job.Active && s.pending[pid] {
			return true
		}
	}
	return false
}

// PollOnce checks every active job without blocking and returns the jobs that
// finished. A job whose status can't be collected is dropped and reported with
// Err set; its other processes are still reaped quietly on later polls.
func (t *Table) PollOnce() []Completion {
	t.reapOrphans()

	var done []Completion

	for idx := range t.slots {
		s := &t.slots[idx]
		if !s.job.Active {
			continue
		}

		var pollErr error
		for _, pid := range s.job.PIDs {
			if !s.pending[pid] {
				continue
			}

			exited, code, err := t.waiter.Reap(pid)
			switch {
			case err != nil:
				delete(s.pending, pid)
				if pollErr == nil {
					pollErr = fmt.Errorf("wait for pid %d: %w", pid, err)
				}
			case exited:
				delete(s.pending, pid)
				s.codes[pid] = code
			}
		}

		switch {
		case pollErr != nil:
			for pid := range s.pending {
				t.orphans = append(t.orphans, pid)
			}
			done = append(done, Completion{Job: t.release(idx), Err: pollErr})
		case len(s.pending) == 0:
			code := s.exitCode()
			done = append(done, Completion{Job: t.release(idx), ExitCode: code})
		}
	}

	return done
}

// reapOrphans collects processes of dropped jobs so they don't linger as
// zombies. Errors aren't retried.
func (t *Table) reapOrphans() {
	running := t.orphans[:0]
	for _, pid := range t.orphans {
		exited, _, err := t.waiter.Reap(pid)
		if err == nil && !exited {
			running = append(running, pid)
		}
	}
	t.orphans = running
}

func (s *slot) exitCode() int {
	code := 0
	for _, pid := range s.job.PIDs {
		if c := s.codes[pid]; c != 0 {
			code = c
		}
	}
	return code
}

func (t *Table) release(idx int) Job {
	s := &t.slots[idx]
	s.job.Active = false
	s.pending = nil
	s.codes = nil
	t.free = append(t.free, idx)
	return s.job
}

// Active returns the running jobs ordered by job number.
func (t *Table) Active() []Job {
	var out []Job
	for _, s := range t.slots {
		if s.job.Active {
			job := s.job
			job.PIDs = append([]int(nil), s.job.PIDs...)
			out = append(out, job)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out
}

// Len returns the number of running jobs.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.slots {
		if s.job.Active {
			n++
		}
	}
	return n
}

// Drain polls every interval until no job is active, calling notify for each
// finished job. It blocks the caller and only returns early if ctx is done.
func (t *Table) Drain(ctx context.Context, interval time.Duration, notify func(Completion)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, c := range t.PollOnce() {
			if notify != nil {
				notify(c)
			}
		}
		if t.Len() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
