package shell

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/josephlewis42/minish/core/logger"
	"github.com/josephlewis42/minish/core/proc"
	"github.com/josephlewis42/minish/core/vos"
	"github.com/pborman/getopt/v2"
)

var (
	ErrTooManyArguments = errors.New("too many arguments")
	ErrHomeUnset        = errors.New("HOME not set")
)

// runBuiltin dispatches a builtin and reports whether it succeeded.
func (s *Shell) runBuiltin(ctx context.Context, c *BuiltinCommand) bool {
	restore, argv, err := s.redirectBuiltin(c.Argv)
	if err == nil {
		switch c.Kind {
		case BuiltinCd:
			err = s.cd(argv)
		case BuiltinJobs:
			err = s.listJobs(argv)
		case BuiltinExit:
			err = s.exit(ctx)
		case BuiltinHistory:
			err = s.history(argv)
		default:
			err = fmt.Errorf("unknown builtin %v", c.Kind)
		}
		if closeErr := restore(); err == nil {
			err = closeErr
		}
	}

	event := &logger.Builtin{Command: c.Argv}
	if err != nil {
		event.ErrorMessage = err.Error()
		s.errorf("%s: %v", c.Argv[0], err)
	}
	s.events.Record(event)

	return err == nil
}

// redirectBuiltin applies the redirections of a builtin the same way they
// apply to external commands. Output goes to the file until restore is
// called; an input file only has to be readable since builtins read nothing.
func (s *Shell) redirectBuiltin(words []string) (restore func() error, argv []string, err error) {
	restore = func() error { return nil }

	stage, err := proc.PlanRedirects(words)
	if err != nil {
		return restore, nil, err
	}

	if stage.Input != "" {
		f, err := os.Open(stage.Input)
		if err != nil {
			return restore, nil, err
		}
		f.Close()
	}

	if stage.Output != "" {
		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if stage.Append {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(stage.Output, flag, 0644)
		if err != nil {
			return restore, nil, err
		}

		stdout := s.stdout
		s.stdout = f
		restore = func() error {
			s.stdout = stdout
			return f.Close()
		}
	}

	return restore, stage.Argv, nil
}

// cd changes the working directory of the shell and every process it starts
// afterwards.
func (s *Shell) cd(args []string) error {
	var dir string
	switch len(args) {
	case 1:
		home, ok := s.env.LookupEnv(vos.EnvHome)
		if !ok || home == "" {
			return ErrHomeUnset
		}
		dir = home
	case 2:
		dir = args[1]
	default:
		return ErrTooManyArguments
	}

	if err := os.Chdir(dir); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return fmt.Errorf("%s: %w", dir, pathErr.Err)
		}
		return err
	}

	if wd, err := os.Getwd(); err == nil {
		s.env.Setenv(vos.EnvPWD, wd)
	}
	return nil
}

func (s *Shell) listJobs(args []string) error {
	opts := getopt.New()
	pidsOnly := opts.Bool('p', "list process IDs only")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-p]")
		fmt.Fprintln(w, "Display status of background jobs.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		return err
	}
	if opts.NArgs() > 0 {
		return ErrTooManyArguments
	}

	active := s.jobs.Active()
	if len(active) == 0 && !*pidsOnly {
		fmt.Fprintln(s.stdout, "no active jobs")
		return nil
	}

	for _, job := range active {
		if *pidsOnly {
			fmt.Fprintln(s.stdout, job.PID)
			continue
		}
		fmt.Fprintf(s.stdout, "[%d] %d %s\n", job.Number, job.PID, job.Command)
	}
	return nil
}

// exit waits for every background job, prints the recent commands and ends
// the session.
func (s *Shell) exit(ctx context.Context) error {
	s.exited = true
	s.exitCode = 0

	if n := s.jobs.Len(); n > 0 {
		fmt.Fprintf(s.stdout, "Waiting for %d background job(s)...\n", n)
	}
	err := s.jobs.Drain(ctx, s.config.PollDuration(), s.notify)

	s.printRecent()
	return err
}

func (s *Shell) printRecent() {
	entries := s.recent.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(s.stdout, "No recent commands.")
		return
	}

	fmt.Fprintln(s.stdout, "Recent commands:")
	for i, line := range entries {
		if i == len(entries)-1 {
			fmt.Fprintf(s.stdout, "% 5d  %s (most recent)\n", i+1, line)
			continue
		}
		fmt.Fprintf(s.stdout, "% 5d  %s\n", i+1, line)
	}
}

func (s *Shell) history(args []string) error {
	opts := getopt.New()
	clear := opts.Bool('c', "clear the history by deleting all entries")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: history [-c]")
		fmt.Fprintln(w, "Display the recent commands with line numbers.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		return err
	}
	if opts.NArgs() > 0 {
		return ErrTooManyArguments
	}

	if *clear {
		s.recent.Clear()
		return nil
	}

	for i, line := range s.recent.Entries() {
		fmt.Fprintf(s.stdout, "% 5d  %s\n", i+1, line)
	}
	return nil
}
