package jobs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWaiter reports a process as running for a number of polls, then exited.
type fakeWaiter struct {
	running map[int]int
	codes   map[int]int
	errs    map[int]error
	calls   int
}

func newFakeWaiter() *fakeWaiter {
	return &fakeWaiter{
		running: make(map[int]int),
		codes:   make(map[int]int),
		errs:    make(map[int]error),
	}
}

func (f *fakeWaiter) Reap(pid int) (bool, int, error) {
	f.calls++
	if err, ok := f.errs[pid]; ok {
		return false, 0, err
	}
	if f.running[pid] > 0 {
		f.running[pid]--
		return false, 0, nil
	}
	return true, f.codes[pid], nil
}

func TestTable_JobNumbersNeverReused(t *testing.T) {
	waiter := newFakeWaiter()
	table := NewTable(2, 0, waiter)

	var numbers []int
	for pid := 100; pid < 105; pid++ {
		n, err := table.Register("sleep 1", pid)
		require.NoError(t, err)
		numbers = append(numbers, n)

		// Finish it so the slot frees up for the next one.
		require.Len(t, table.PollOnce(), 1)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, numbers)
}

func TestTable_PollEmpty(t *testing.T) {
	waiter := newFakeWaiter()
	table := NewTable(3, 0, waiter)

	assert.Empty(t, table.PollOnce())
	assert.Equal(t, 0, waiter.calls)
	assert.Equal(t, 0, table.Len())
}

func TestTable_Full(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[1] = 1
	waiter.running[2] = 100
	table := NewTable(2, 0, waiter)

	_, err := table.Register("a", 1)
	require.NoError(t, err)
	_, err = table.Register("b", 2)
	require.NoError(t, err)

	_, err = table.Register("c", 3)
	assert.ErrorIs(t, err, ErrJobTableFull)
	assert.Equal(t, 2, table.Len(), "full table must not overwrite active jobs")

	// Job 1 needs two polls to finish.
	assert.Empty(t, table.PollOnce())
	done := table.PollOnce()
	require.Len(t, done, 1)
	assert.Equal(t, 1, done[0].Job.Number)

	n, err := table.Register("c", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, table.slots, 2, "finished slot should be reused")
}

func TestTable_DuplicatePID(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[7] = 10
	table := NewTable(3, 0, waiter)

	_, err := table.Register("first", 7)
	require.NoError(t, err)

	_, err = table.Register("second", 7)
	assert.ErrorIs(t, err, ErrDuplicatePID)

	_, err = table.Register("empty")
	assert.ErrorIs(t, err, ErrNoProcesses)
}

func TestTable_PipelineJob(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[10] = 0
	waiter.codes[10] = 1
	waiter.running[11] = 2
	table := NewTable(3, 0, waiter)

	n, err := table.Register("false | cat", 10, 11)
	require.NoError(t, err)

	active := table.Active()
	require.Len(t, active, 1)
	assert.Equal(t, n, active[0].Number)
	assert.Equal(t, 11, active[0].PID)
	assert.Equal(t, []int{10, 11}, active[0].PIDs)

	assert.Empty(t, table.PollOnce())
	assert.Empty(t, table.PollOnce())
	done := table.PollOnce()
	require.Len(t, done, 1)
	assert.False(t, done[0].Success())
	assert.Equal(t, 1, done[0].ExitCode)
	assert.False(t, done[0].Job.Active)
	assert.Equal(t, "[1]+ Exit 1   false | cat", done[0].String())
}

func TestTable_PollError(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.errs[42] = errors.New("no child processes")
	table := NewTable(3, 0, waiter)

	_, err := table.Register("ghost", 42)
	require.NoError(t, err)

	done := table.PollOnce()
	require.Len(t, done, 1)
	assert.Error(t, done[0].Err)
	assert.Contains(t, done[0].String(), "ghost")

	calls := waiter.calls
	assert.Empty(t, table.PollOnce())
	assert.Equal(t, calls, waiter.calls, "failed jobs must not be retried")
}

func TestTable_PollErrorReapsRestOfPipeline(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.errs[10] = errors.New("no child processes")
	waiter.running[11] = 3
	table := NewTable(3, 0, waiter)

	_, err := table.Register("a | b", 10, 11)
	require.NoError(t, err)

	done := table.PollOnce()
	require.Len(t, done, 1)
	assert.Error(t, done[0].Err)
	assert.Equal(t, 0, table.Len())

	_, err = table.Register("reuse", 11)
	assert.ErrorIs(t, err, ErrDuplicatePID, "pid 11 is still ours until reaped")

	for i := 0; i < 5; i++ {
		assert.Empty(t, table.PollOnce())
	}
	assert.Equal(t, 0, waiter.running[11], "the rest of the pipeline is reaped")

	calls := waiter.calls
	table.PollOnce()
	assert.Equal(t, calls, waiter.calls, "nothing is left to reap")
}

func TestTable_ActiveReturnsCopies(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[1] = 10
	waiter.running[2] = 10
	table := NewTable(3, 0, waiter)

	_, err := table.Register("a | b", 1, 2)
	require.NoError(t, err)

	active := table.Active()
	require.Len(t, active, 1)
	active[0].PIDs[0] = 99

	assert.Equal(t, []int{1, 2}, table.Active()[0].PIDs)
}

func TestTable_Drain(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[1] = 3
	waiter.running[2] = 5
	table := NewTable(3, 0, waiter)

	_, err := table.Register("sleep 3", 1)
	require.NoError(t, err)
	_, err = table.Register("sleep 5", 2)
	require.NoError(t, err)

	var notices []string
	err = table.Drain(context.Background(), time.Millisecond, func(c Completion) {
		notices = append(notices, c.String())
	})
	require.NoError(t, err)

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{"[1]+ Done    sleep 3", "[2]+ Done    sleep 5"}, notices)
}

func TestTable_DrainCanceled(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[1] = 1 << 30
	table := NewTable(3, 0, waiter)
	_, err := table.Register("forever", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, table.Drain(ctx, time.Millisecond, nil), context.Canceled)
	assert.Equal(t, 1, table.Len())
}

func TestTable_CommandSnapshot(t *testing.T) {
	waiter := newFakeWaiter()
	waiter.running[1] = 1
	table := NewTable(1, 16, waiter)

	_, err := table.Register(strings.Repeat("x", 40), 1)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("x", 16), table.Active()[0].Command)
}

func TestUnixWaiter(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available:", err)
	}

	proc, err := os.StartProcess(truePath, []string{"true"}, &os.ProcAttr{
		Files: []*os.File{nil, nil, nil},
	})
	require.NoError(t, err)
	defer proc.Release()

	waiter := UnixWaiter{}
	deadline := time.Now().Add(5 * time.Second)
	for {
		done, code, err := waiter.Reap(proc.Pid)
		require.NoError(t, err)
		if done {
			assert.Equal(t, 0, code)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("process never exited")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Already reaped, so the kernel no longer knows it as our child.
	_, _, err = waiter.Reap(proc.Pid)
	assert.Error(t, err)
}
