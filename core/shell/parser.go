package shell

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyStage is returned when a pipe has nothing on one side.
	ErrEmptyStage = errors.New("syntax error near unexpected token `|'")
)

// BuiltinKind identifies a command the shell runs itself.
type BuiltinKind int

const (
	BuiltinCd BuiltinKind = iota + 1
	BuiltinJobs
	BuiltinExit
	BuiltinHistory
)

var builtinNames = map[string]BuiltinKind{
	"cd":      BuiltinCd,
	"jobs":    BuiltinJobs,
	"exit":    BuiltinExit,
	"history": BuiltinHistory,
}

func (k BuiltinKind) String() string {
	for name, kind := range builtinNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("BuiltinKind(%d)", int(k))
}

// BuiltinNames lists the builtins in a stable order.
func BuiltinNames() []string {
	return []string{
		BuiltinCd.String(),
		BuiltinExit.String(),
		BuiltinHistory.String(),
		BuiltinJobs.String(),
	}
}

// Command is the result of parsing a line, either a *BuiltinCommand or a
// *PipelineCommand.
type Command interface {
	isCommand()
}

// BuiltinCommand runs inside the shell.
type BuiltinCommand struct {
	Kind BuiltinKind
	Argv []string
}

// PipelineCommand is one or more external commands connected by pipes.
type PipelineCommand struct {
	Stages     [][]string
	Background bool
}

func (*BuiltinCommand) isCommand()  {}
func (*PipelineCommand) isCommand() {}

// Parse splits an expanded line into pipeline stages and words. It returns a
// nil Command for blank lines.
//
// A trailing & runs the line in the background. Builtins are only recognized
// when they make up the whole line and always run in the foreground.
func Parse(line string, split Tokenizer) (Command, error) {
	line = strings.TrimSpace(line)
	background := false
	if strings.HasSuffix(line, "&") {
		background = true
		line = strings.TrimSpace(strings.TrimSuffix(line, "&"))
	}
	if line == "" {
		if background {
			return nil, errors.New("syntax error near unexpected token `&'")
		}
		return nil, nil
	}

	var stages [][]string
	for _, part := range strings.Split(line, "|") {
		words, err := split(part)
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			return nil, ErrEmptyStage
		}
		stages = append(stages, words)
	}

	if len(stages) == 1 {
		if kind, ok := builtinNames[stages[0][0]]; ok {
			return &BuiltinCommand{Kind: kind, Argv: stages[0]}, nil
		}
	}

	return &PipelineCommand{Stages: stages, Background: background}, nil
}

// JobText is the command text kept for a line, without a trailing &.
func JobText(line string) string {
	line = strings.TrimSpace(line)
	return strings.TrimSpace(strings.TrimSuffix(line, "&"))
}
