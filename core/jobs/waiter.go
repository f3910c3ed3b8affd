package jobs

import (
	"golang.org/x/sys/unix"
)

// Waiter checks whether a child process has terminated without blocking.
type Waiter interface {
	// Reap reports whether pid has terminated. If it has, the child is reaped
	// and its exit code returned; a process killed by a signal reports
	// 128+signal like a POSIX shell would.
	Reap(pid int) (done bool, code int, err error)
}

// UnixWaiter reaps children with wait4(2) and WNOHANG.
type UnixWaiter struct{}

var _ Waiter = UnixWaiter{}

// Reap implements Waiter.
func (UnixWaiter) Reap(pid int) (bool, int, error) {
	var status unix.WaitStatus
	var (
		wpid int
		err  error
	)
	for {
		wpid, err = unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if err != unix.EINTR {
			break
		}
	}

	switch {
	case err != nil:
		return false, 0, err
	case wpid == 0:
		return false, 0, nil
	case status.Exited():
		return true, status.ExitStatus(), nil
	case status.Signaled():
		return true, 128 + int(status.Signal()), nil
	default:
		return false, 0, nil
	}
}
