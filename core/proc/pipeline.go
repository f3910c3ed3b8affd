package proc

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/josephlewis42/minish/core/jobs"
	"github.com/josephlewis42/minish/core/vos"
	"github.com/spf13/afero"
)

// JobRegistry records background pipelines.
type JobRegistry interface {
	Register(command string, pids ...int) (int, error)
	Len() int
	Capacity() int
}

// Runner resolves, wires and starts pipelines.
type Runner struct {
	// Fs is consulted when resolving commands.
	Fs afero.Fs
	// Env provides the search path.
	Env vos.VEnv
	// Launcher starts the processes, defaults to a ProcessLauncher over Env.
	Launcher Launcher
	// Jobs receives background pipelines.
	Jobs JobRegistry

	// Standard streams inherited by the first and last stage.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// StageResult is what happened to one stage of a pipeline.
type StageResult struct {
	Stage Stage
	// Path is the resolved executable.
	Path string
	// PID is 0 if the stage was never started.
	PID      int
	ExitCode int
	// Err is set if the stage couldn't be started or waited on.
	Err error
}

// Outcome folds the results of every stage of a pipeline.
type Outcome struct {
	Stages []StageResult
	// Pipes is the number of pipes created to connect the stages.
	Pipes      int
	Background bool
	// JobNumber is set for pipelines registered as background jobs.
	JobNumber int
}

// Success is true only if every stage exited with status 0.
func (o *Outcome) Success() bool {
	if o == nil || len(o.Stages) == 0 {
		return false
	}
	for _, s := range o.Stages {
		if s.Err != nil || s.ExitCode != 0 {
			return false
		}
	}
	return true
}

// PIDs returns the process IDs of the stages that started.
func (o *Outcome) PIDs() []int {
	var out []int
	for _, s := range o.Stages {
		if s.PID != 0 {
			out = append(out, s.PID)
		}
	}
	return out
}

// StageError is returned when a stage can't be planned or resolved.
type StageError struct {
	Index int
	// Name is the command name, empty if planning failed.
	Name string
	Err  error
}

func (e *StageError) Error() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Prepare plans the redirections of each stage and resolves its command.
// Nothing is started if any stage fails.
func (r *Runner) Prepare(words [][]string) ([]Stage, []ResolvedCommand, error) {
	if len(words) == 0 {
		return nil, nil, ErrEmptyCommand
	}

	searchPath, _ := r.Env.LookupEnv(vos.EnvPath)

	stages := make([]Stage, 0, len(words))
	cmds := make([]ResolvedCommand, 0, len(words))
	for i, stageWords := range words {
		stage, err := PlanRedirects(stageWords)
		if err != nil {
			return nil, nil, &StageError{Index: i, Err: err}
		}

		path, err := LookPath(r.fs(), searchPath, stage.Name())
		if err != nil {
			return nil, nil, &StageError{Index: i, Name: stage.Name(), Err: err}
		}

		stages = append(stages, stage)
		cmds = append(cmds, ResolvedCommand{Path: path, Argv: stage.Argv})
	}

	return stages, cmds, nil
}

// Run starts a pipeline. Foreground pipelines are waited for; background ones
// are registered as a single job and left running.
//
// The returned error means the whole command was aborted before any process
// started. Failures of individual stages are reported in the Outcome.
func (r *Runner) Run(command string, words [][]string, background bool) (*Outcome, error) {
	stages, cmds, err := r.Prepare(words)
	if err != nil {
		return nil, err
	}

	if background {
		if r.Jobs == nil {
			return nil, errors.New("background jobs are not supported")
		}
		if r.Jobs.Len() >= r.Jobs.Capacity() {
			return nil, jobs.ErrJobTableFull
		}
	}

	p, err := r.Start(stages, cmds, background)
	if err != nil {
		return nil, err
	}

	if !background {
		return p.Wait(), nil
	}

	pids := p.outcome.PIDs()
	if len(pids) == 0 {
		// Nothing to track, every stage failed to start.
		return p.outcome, nil
	}

	num, err := r.Jobs.Register(command, pids...)
	if err != nil {
		// The processes are already running, don't leave them unreaped.
		p.Wait()
		return nil, err
	}
	p.Release()
	p.outcome.JobNumber = num
	return p.outcome, nil
}

// Pipeline is a started pipeline.
type Pipeline struct {
	outcome *Outcome
	procs   []*os.Process
	fds     *fdSet
}

// Start connects the stages with pipes and launches one process per stage.
// Pipes are allocated up front; the shell closes its copy of every descriptor
// as soon as the stage that uses it has been launched.
func (r *Runner) Start(stages []Stage, cmds []ResolvedCommand, background bool) (*Pipeline, error) {
	n := len(stages)
	if n == 0 || n != len(cmds) {
		return nil, ErrEmptyCommand
	}

	fds := &fdSet{}
	defer fds.Close()

	pipes := make([][2]*os.File, n-1)
	for i := range pipes {
		rd, wr, err := fds.pipe()
		if err != nil {
			return nil, fmt.Errorf("pipe: %w", err)
		}
		pipes[i] = [2]*os.File{rd, wr}
	}

	p := &Pipeline{
		outcome: &Outcome{Pipes: len(pipes), Background: background},
		procs:   make([]*os.Process, n),
		fds:     fds,
	}

	for i, stage := range stages {
		result := StageResult{Stage: stage, Path: cmds[i].Path}

		wiring, err := r.wire(fds, stage, pipes, i, background)
		if err == nil {
			var proc *os.Process
			proc, err = r.launcher().Launch(cmds[i], wiring)
			if err == nil {
				p.procs[i] = proc
				result.PID = proc.Pid
			}
		}
		if err != nil {
			result.Err = err
			result.ExitCode = ExitLaunchFailure
		}

		// The child has its own copies now.
		fds.release(wiring.Stdin, wiring.Stdout)
		if i > 0 {
			fds.release(pipes[i-1][0])
		}
		if i < n-1 {
			fds.release(pipes[i][1])
		}

		p.outcome.Stages = append(p.outcome.Stages, result)
	}

	return p, nil
}

// wire picks the standard streams for stage i. A pipe always takes precedence
// over a redirection file.
func (r *Runner) wire(fds *fdSet, stage Stage, pipes [][2]*os.File, i int, background bool) (Wiring, error) {
	w := Wiring{Stdin: r.Stdin, Stdout: r.Stdout, Stderr: r.Stderr}

	switch {
	case i > 0:
		w.Stdin = pipes[i-1][0]
	case stage.Input != "":
		f, err := fds.open(stage.Input, os.O_RDONLY, 0)
		if err != nil {
			return w, err
		}
		w.Stdin = f
	case background:
		// Background jobs must not compete with the shell for the terminal.
		f, err := fds.open(os.DevNull, os.O_RDONLY, 0)
		if err != nil {
			return w, err
		}
		w.Stdin = f
	}

	switch {
	case i < len(pipes):
		w.Stdout = pipes[i][1]
	case stage.Output != "":
		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if stage.Append {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := fds.open(stage.Output, flag, 0644)
		if err != nil {
			fds.release(w.Stdin)
			return w, err
		}
		w.Stdout = f
	}

	return w, nil
}

func (r *Runner) launcher() Launcher {
	if r.Launcher == nil {
		r.Launcher = &ProcessLauncher{Env: r.Env}
	}
	return r.Launcher
}

func (r *Runner) fs() afero.Fs {
	if r.Fs == nil {
		r.Fs = afero.NewOsFs()
	}
	return r.Fs
}

// OpenDescriptors returns how many pipe and file descriptors the shell still
// holds for this pipeline.
func (p *Pipeline) OpenDescriptors() int {
	return p.fds.held()
}

// Outcome returns the results gathered so far.
func (p *Pipeline) Outcome() *Outcome {
	return p.outcome
}

// Wait blocks until every started stage terminates, in stage order.
func (p *Pipeline) Wait() *Outcome {
	for i, proc := range p.procs {
		if proc == nil {
			continue
		}
		state, err := proc.Wait()
		result := &p.outcome.Stages[i]
		if err != nil {
			result.Err = err
			result.ExitCode = ExitLaunchFailure
			continue
		}
		result.ExitCode = exitCode(state)
	}
	p.procs = nil
	return p.outcome
}

// Release gives up the process handles of a pipeline that will be reaped
// elsewhere.
func (p *Pipeline) Release() {
	for _, proc := range p.procs {
		if proc != nil {
			proc.Release()
		}
	}
	p.procs = nil
}

func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
