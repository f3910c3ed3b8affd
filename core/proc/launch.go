package proc

import (
	"os"

	"github.com/josephlewis42/minish/core/vos"
)

// ExitLaunchFailure is the status recorded for a stage whose program could not
// be started.
const ExitLaunchFailure = 127

// ResolvedCommand is an executable path with the argument vector to pass it.
// Argv[0] is the name the user typed, not the resolved path.
type ResolvedCommand struct {
	Path string
	Argv []string
}

// Wiring holds the descriptors a new process gets as its standard streams.
type Wiring struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Launcher starts one process for one pipeline stage.
type Launcher interface {
	// Launch starts the command and returns without waiting for it.
	Launch(cmd ResolvedCommand, wiring Wiring) (*os.Process, error)
}

// ProcessLauncher starts real operating system processes.
//
// The child only receives the three descriptors in its Wiring. Everything else
// the shell has open is close-on-exec, so no stage can hold another stage's
// pipe ends open. If the program image can't be loaded the forked child exits
// immediately and the error is returned here, the child never runs shell code.
type ProcessLauncher struct {
	// Env supplies the environment of new processes.
	Env vos.EnvironFetcher
	// Dir is the working directory, empty for the shell's own.
	Dir string
}

var _ Launcher = (*ProcessLauncher)(nil)

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(cmd ResolvedCommand, wiring Wiring) (*os.Process, error) {
	var env []string
	if l.Env != nil {
		env = l.Env.Environ()
	}

	return os.StartProcess(cmd.Path, cmd.Argv, &os.ProcAttr{
		Dir:   l.Dir,
		Env:   env,
		Files: []*os.File{wiring.Stdin, wiring.Stdout, wiring.Stderr},
	})
}
