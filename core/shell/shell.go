package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/josephlewis42/minish/core/config"
	"github.com/josephlewis42/minish/core/history"
	"github.com/josephlewis42/minish/core/jobs"
	"github.com/josephlewis42/minish/core/logger"
	"github.com/josephlewis42/minish/core/proc"
	"github.com/josephlewis42/minish/core/vos"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

// Name prefixes every error the shell reports.
const Name = "minish"

// Options configures a Shell, zero values pick the defaults of the running
// process.
type Options struct {
	Config *config.Configuration
	Env    vos.VEnv
	Fs     afero.Fs

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Reader defaults to NewLineReader over Stdin.
	Reader LineReader
	Events *logger.SessionLogger
	Waiter jobs.Waiter
}

// Shell is a single interactive session. All of its state is owned by the
// goroutine calling Run.
type Shell struct {
	config *config.Configuration
	env    vos.VEnv
	reader LineReader
	runner *proc.Runner
	jobs   *jobs.Table
	recent *history.Recent
	events *logger.SessionLogger
	split  Tokenizer

	stdout io.Writer
	stderr io.Writer

	promptColor *color.Color
	errorColor  *color.Color

	exited   bool
	exitCode int
}

// New creates a session.
func New(opts Options) (*Shell, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Env == nil {
		opts.Env = vos.OSEnv{}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Events == nil {
		opts.Events = logger.Discard().Sessionless()
	}
	if opts.Waiter == nil {
		opts.Waiter = jobs.UnixWaiter{}
	}
	if opts.Reader == nil {
		reader, err := NewLineReader(opts.Stdin, opts.Stdout, opts.Stderr)
		if err != nil {
			return nil, err
		}
		opts.Reader = reader
	}

	table := jobs.NewTable(opts.Config.MaxJobs, opts.Config.MaxCommandText, opts.Waiter)

	s := &Shell{
		config: opts.Config,
		env:    opts.Env,
		reader: opts.Reader,
		runner: &proc.Runner{
			Fs:     opts.Fs,
			Env:    opts.Env,
			Jobs:   table,
			Stdin:  opts.Stdin,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
		},
		jobs:   table,
		recent: history.NewRecent(opts.Config.RecentCommands),
		events: opts.Events,
		split:  TokenizerFor(opts.Config.WordSplitting),
		stdout: opts.Stdout,
		stderr: opts.Stderr,

		promptColor: color.New(color.FgGreen, color.Bold),
		errorColor:  color.New(color.FgRed),
	}

	if useColor(opts.Config.Color, opts.Stdout) {
		s.promptColor.EnableColor()
		s.errorColor.EnableColor()
	} else {
		s.promptColor.DisableColor()
		s.errorColor.DisableColor()
	}

	return s, nil
}

func useColor(mode string, out *os.File) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return term.IsTerminal(int(out.Fd()))
	}
}

// Run reads and executes lines until exit or end of input and returns the
// shell's exit status.
func (s *Shell) Run(ctx context.Context) int {
	for !s.exited {
		s.reader.SetPrompt(s.Prompt())
		line, err := s.reader.Readline()

		switch {
		case err == io.EOF:
			s.Execute(ctx, BuiltinExit.String())

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			s.errorf("%v", err)
			s.Execute(ctx, BuiltinExit.String())

		default:
			s.Execute(ctx, line)
		}
	}

	return s.exitCode
}

// Exited reports whether the exit builtin has run.
func (s *Shell) Exited() bool {
	return s.exited
}

// Recent returns the log of successfully dispatched commands.
func (s *Shell) Recent() *history.Recent {
	return s.recent
}

// Jobs returns the background job table.
func (s *Shell) Jobs() *jobs.Table {
	return s.jobs
}

// Close releases the line reader.
func (s *Shell) Close() error {
	return s.reader.Close()
}

// Execute runs a single line. Background jobs are checked once afterwards.
// Lines that dispatched successfully are added to the recent command log.
func (s *Shell) Execute(ctx context.Context, line string) {
	defer s.pollJobs()

	text := strings.TrimSpace(line)
	if text == "" {
		return
	}

	cmd, err := Parse(vos.Expand(s.env, text), s.split)
	if err != nil {
		s.errorf("%v", err)
		s.events.Record(&logger.LaunchError{Command: []string{text}, ErrorMessage: err.Error()})
		return
	}

	var ok bool
	switch c := cmd.(type) {
	case nil:
		return
	case *BuiltinCommand:
		ok = s.runBuiltin(ctx, c)
	case *PipelineCommand:
		ok = s.runPipeline(JobText(text), c)
	default:
		panic(fmt.Sprintf("unknown command type %T", cmd))
	}

	if ok {
		s.recent.Add(text)
	}
}

func (s *Shell) runPipeline(text string, c *PipelineCommand) bool {
	outcome, err := s.runner.Run(text, c.Stages, c.Background)
	if err != nil {
		s.errorf("%v", err)

		var stageErr *proc.StageError
		if errors.As(err, &stageErr) && errors.Is(err, proc.ErrNotFound) {
			s.events.Record(&logger.UnknownCommand{
				Command:      c.Stages[stageErr.Index],
				ErrorMessage: err.Error(),
			})
		} else {
			s.events.Record(&logger.LaunchError{Command: c.Stages[0], ErrorMessage: err.Error()})
		}
		return false
	}

	launched := true
	event := &logger.RunCommand{
		Command:    c.Stages,
		Background: outcome.Background,
		JobNumber:  outcome.JobNumber,
	}
	for _, stage := range outcome.Stages {
		event.ResolvedCommandPaths = append(event.ResolvedCommandPaths, stage.Path)
		if !outcome.Background {
			event.ExitCodes = append(event.ExitCodes, stage.ExitCode)
		}
		if stage.Err != nil && stage.PID == 0 {
			launched = false
			s.errorf("%s: %v", stage.Stage.Name(), stage.Err)
			s.events.Record(&logger.LaunchError{Command: stage.Stage.Argv, ErrorMessage: stage.Err.Error()})
		}
	}
	s.events.Record(event)

	if !outcome.Background {
		return outcome.Success()
	}

	if outcome.JobNumber == 0 {
		return false
	}
	pids := outcome.PIDs()
	fmt.Fprintf(s.stdout, "[%d] %d\n", outcome.JobNumber, pids[len(pids)-1])
	return launched
}

func (s *Shell) pollJobs() {
	for _, c := range s.jobs.PollOnce() {
		s.notify(c)
	}
}

func (s *Shell) notify(c jobs.Completion) {
	fmt.Fprintln(s.stdout, c.String())

	event := &logger.JobDone{
		Number:   c.Job.Number,
		PID:      c.Job.PID,
		Command:  c.Job.Command,
		ExitCode: c.ExitCode,
	}
	if c.Err != nil {
		event.ErrorMessage = c.Err.Error()
	}
	s.events.Record(event)
}

func (s *Shell) errorf(format string, args ...interface{}) {
	fmt.Fprintf(s.stderr, "%s %s\n", s.errorColor.Sprint(Name+":"), fmt.Sprintf(format, args...))
}
