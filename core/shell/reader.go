package shell

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/abiosoft/readline"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// LineReader reads one command line at a time.
type LineReader interface {
	SetPrompt(prompt string)
	// Readline returns io.EOF when input is exhausted.
	Readline() (string, error)
	Close() error
}

// NewLineReader uses readline when stdin is a terminal and reads plain lines
// without a prompt otherwise.
func NewLineReader(stdin *os.File, stdout, stderr io.Writer) (LineReader, error) {
	if !term.IsTerminal(int(stdin.Fd())) {
		return NewScanReader(stdin), nil
	}

	gate := &gatedStdin{f: stdin}
	rl, err := readline.NewEx(&readline.Config{
		Stdin:             gate,
		Stdout:            stdout,
		Stderr:            stderr,
		HistoryLimit:      500,
		HistorySearchFold: true,
		FuncIsTerminal: func() bool {
			return true
		},
	})
	if err != nil {
		return nil, err
	}
	return &terminalReader{rl: rl, gate: gate}, nil
}

type terminalReader struct {
	rl   *readline.Instance
	gate *gatedStdin
}

func (r *terminalReader) SetPrompt(prompt string) {
	r.rl.SetPrompt(prompt)
}

func (r *terminalReader) Readline() (string, error) {
	r.gate.open.Store(true)
	defer r.gate.open.Store(false)

	return r.rl.Readline()
}

func (r *terminalReader) Close() error {
	return r.rl.Close()
}

// gatedStdin only consumes the terminal while a line is being edited so
// foreground commands get their input.
type gatedStdin struct {
	f    *os.File
	open atomic.Bool
}

const gatePoll = 50 * time.Millisecond

func (g *gatedStdin) Read(p []byte) (int, error) {
	fds := []unix.PollFd{{Fd: int32(g.f.Fd()), Events: unix.POLLIN}}
	for {
		if !g.open.Load() {
			time.Sleep(gatePoll)
			continue
		}

		n, err := unix.Poll(fds, int(gatePoll/time.Millisecond))
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, err
		case n > 0 && g.open.Load():
			return g.f.Read(p)
		}
	}
}

func (g *gatedStdin) Close() error {
	return nil
}

// ScanReader reads newline terminated lines from a non-interactive input.
// It reads a byte at a time so nothing past the current line is consumed,
// foreground commands sharing the input see the rest of it.
type ScanReader struct {
	r   io.Reader
	buf [1]byte
}

var _ LineReader = (*ScanReader)(nil)

func NewScanReader(r io.Reader) *ScanReader {
	return &ScanReader{r: r}
}

// SetPrompt is a no-op, prompts are only shown on terminals.
func (*ScanReader) SetPrompt(string) {}

func (s *ScanReader) Readline() (string, error) {
	var line []byte
	for {
		n, err := s.r.Read(s.buf[:])
		if n > 0 {
			if s.buf[0] == '\n' {
				return strings.TrimSuffix(string(line), "\r"), nil
			}
			line = append(line, s.buf[0])
			continue
		}
		switch {
		case err == io.EOF && len(line) > 0:
			return string(line), nil
		case err != nil:
			return "", err
		}
	}
}

func (*ScanReader) Close() error {
	return nil
}
