package proc

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/josephlewis42/minish/core/jobs"
	"github.com/josephlewis42/minish/core/vos"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireTools(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
	}
}

type testRunner struct {
	*Runner
	out *os.File
}

func newTestRunner(t *testing.T) *testRunner {
	t.Helper()

	out, err := os.Create(filepath.Join(t.TempDir(), "stdout"))
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })

	in, err := os.Open(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })

	return &testRunner{
		Runner: &Runner{
			Fs:     afero.NewOsFs(),
			Env:    vos.NewMapEnvFromEnvList(os.Environ()),
			Stdin:  in,
			Stdout: out,
			Stderr: out,
		},
		out: out,
	}
}

func (tr *testRunner) output(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(tr.out.Name())
	require.NoError(t, err)
	return string(data)
}

func TestRun_ArgvIsVerbatim(t *testing.T) {
	requireTools(t, "cat")
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		t.Skip("no procfs:", err)
	}
	tr := newTestRunner(t)

	outcome, err := tr.Run("cat /proc/self/cmdline", [][]string{{"cat", "/proc/self/cmdline"}}, false)
	require.NoError(t, err)

	assert.True(t, outcome.Success())
	assert.Equal(t, 0, outcome.Pipes)
	assert.Equal(t, "cat\x00/proc/self/cmdline\x00", tr.output(t))
	assert.NotEqual(t, "cat", outcome.Stages[0].Path, "path should be resolved")
}

func TestRun_Pipeline(t *testing.T) {
	requireTools(t, "echo", "tr", "cat")
	tr := newTestRunner(t)

	outcome, err := tr.Run("echo hello world | cat | tr a-z A-Z", [][]string{
		{"echo", "hello", "world"},
		{"cat"},
		{"tr", "a-z", "A-Z"},
	}, false)
	require.NoError(t, err)

	assert.True(t, outcome.Success())
	assert.Equal(t, 2, outcome.Pipes)
	assert.Len(t, outcome.PIDs(), 3)
	assert.Equal(t, "HELLO WORLD\n", tr.output(t))
}

func TestRun_OutcomeFolding(t *testing.T) {
	requireTools(t, "true", "false")

	cases := map[string]struct {
		words    [][]string
		expected bool
	}{
		"true":                {[][]string{{"true"}}, true},
		"false":               {[][]string{{"false"}}, false},
		"true | true":         {[][]string{{"true"}, {"true"}}, true},
		"true | false | true": {[][]string{{"true"}, {"false"}, {"true"}}, false},
		"false | true":        {[][]string{{"false"}, {"true"}}, false},
		"true | false":        {[][]string{{"true"}, {"false"}}, false},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			tr := newTestRunner(t)
			outcome, err := tr.Run(tn, tc.words, false)
			require.NoError(t, err)

			assert.Equal(t, tc.expected, outcome.Success())
			assert.Len(t, outcome.Stages, len(tc.words))
			assert.Equal(t, len(tc.words)-1, outcome.Pipes)
		})
	}
}

func TestRun_ResolutionAbortsCommand(t *testing.T) {
	requireTools(t, "echo")
	tr := newTestRunner(t)

	_, err := tr.Run("echo hi | no-such-command-here", [][]string{
		{"echo", "hi"},
		{"no-such-command-here"},
	}, false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, tr.output(t), "nothing may start when a stage can't be resolved")

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, 1, stageErr.Index)
	assert.Equal(t, "no-such-command-here", stageErr.Name)
}

func TestRun_SearchPathUnset(t *testing.T) {
	tr := newTestRunner(t)
	tr.Env = vos.NewMapEnv()

	_, err := tr.Run("ls", [][]string{{"ls"}}, false)
	assert.ErrorIs(t, err, ErrSearchPathUnset)
}

func TestRun_MalformedRedirection(t *testing.T) {
	tr := newTestRunner(t)

	_, err := tr.Run("cat >", [][]string{{"cat", ">"}}, false)
	assert.ErrorIs(t, err, ErrMalformedRedirection)
}

func TestRun_Redirection(t *testing.T) {
	requireTools(t, "sort", "echo")
	tr := newTestRunner(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("b\na\n"), 0644))

	outcome, err := tr.Run("sort", [][]string{{"sort", "<", in, ">", out}}, false)
	require.NoError(t, err)
	require.True(t, outcome.Success())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))

	t.Run("truncate then append", func(t *testing.T) {
		_, err := tr.Run("echo one", [][]string{{"echo", "one", ">", out}}, false)
		require.NoError(t, err)
		_, err = tr.Run("echo two", [][]string{{"echo", "two", ">>", out}}, false)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\n", string(data))
	})
}

func TestRun_RedirectionFailureIsStageLocal(t *testing.T) {
	requireTools(t, "cat", "echo")
	tr := newTestRunner(t)
	missing := filepath.Join(t.TempDir(), "missing", "file")

	outcome, err := tr.Run("cat < missing | echo ok", [][]string{
		{"cat", "<", missing},
		{"echo", "ok"},
	}, false)
	require.NoError(t, err)

	require.Len(t, outcome.Stages, 2)
	assert.Error(t, outcome.Stages[0].Err)
	assert.Equal(t, 0, outcome.Stages[0].PID)
	assert.Equal(t, ExitLaunchFailure, outcome.Stages[0].ExitCode)
	assert.NoError(t, outcome.Stages[1].Err)
	assert.Equal(t, 0, outcome.Stages[1].ExitCode)
	assert.False(t, outcome.Success())
	assert.Equal(t, "ok\n", tr.output(t))
}

func TestRun_LaunchFailure(t *testing.T) {
	tr := newTestRunner(t)
	bogus := filepath.Join(t.TempDir(), "bogus")
	require.NoError(t, os.WriteFile(bogus, []byte{0, 1, 2, 3}, 0755))

	outcome, err := tr.Run(bogus, [][]string{{bogus}}, false)
	require.NoError(t, err)

	assert.Error(t, outcome.Stages[0].Err)
	assert.Equal(t, ExitLaunchFailure, outcome.Stages[0].ExitCode)
	assert.False(t, outcome.Success())
}

func countOpenFds(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no procfs:", err)
	}
	return len(entries)
}

func TestStart_ReleasesDescriptors(t *testing.T) {
	requireTools(t, "echo", "cat")
	tr := newTestRunner(t)
	words := [][]string{{"echo", "x"}, {"cat"}, {"cat"}}

	// Warm up so lazily opened runtime descriptors don't skew the count.
	_, err := tr.Run("warm up", words, false)
	require.NoError(t, err)

	before := countOpenFds(t)

	stages, cmds, err := tr.Prepare(words)
	require.NoError(t, err)
	p, err := tr.Start(stages, cmds, false)
	require.NoError(t, err)

	assert.Equal(t, 0, p.OpenDescriptors())
	assert.Equal(t, 2, p.Outcome().Pipes)

	outcome := p.Wait()
	assert.True(t, outcome.Success())
	assert.Equal(t, before, countOpenFds(t))
}

func TestRun_Background(t *testing.T) {
	requireTools(t, "echo", "cat")
	tr := newTestRunner(t)
	table := jobs.NewTable(2, 0, jobs.UnixWaiter{})
	tr.Jobs = table

	outcome, err := tr.Run("echo bg | cat", [][]string{{"echo", "bg"}, {"cat"}}, true)
	require.NoError(t, err)

	assert.True(t, outcome.Background)
	assert.Equal(t, 1, outcome.JobNumber)
	require.Len(t, table.Active(), 1)
	assert.Equal(t, outcome.PIDs(), table.Active()[0].PIDs)

	var completions []jobs.Completion
	err = table.Drain(newTimeoutContext(t, 10*time.Second), time.Millisecond, func(c jobs.Completion) {
		completions = append(completions, c)
	})
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.True(t, completions[0].Success())
	assert.Equal(t, "bg\n", tr.output(t))
}

type fullRegistry struct{}

func (fullRegistry) Register(string, ...int) (int, error) { return 0, jobs.ErrJobTableFull }
func (fullRegistry) Len() int                             { return 3 }
func (fullRegistry) Capacity() int                        { return 3 }

func TestRun_BackgroundTableFull(t *testing.T) {
	requireTools(t, "echo")
	tr := newTestRunner(t)
	tr.Jobs = fullRegistry{}

	_, err := tr.Run("echo hi", [][]string{{"echo", "hi"}}, true)
	assert.ErrorIs(t, err, jobs.ErrJobTableFull)
	assert.Empty(t, tr.output(t), "nothing may start when the job can't be tracked")
}
