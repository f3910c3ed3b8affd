package proc

import (
	"errors"
	"fmt"
)

// Redirection markers recognized in a stage's words.
const (
	RedirectIn     = "<"
	RedirectOut    = ">"
	RedirectAppend = ">>"
)

var (
	ErrMalformedRedirection = errors.New("redirection requires a file name")
	ErrEmptyCommand         = errors.New("empty command")
)

// Stage is one command of a pipeline after its redirections were extracted.
type Stage struct {
	// Argv holds the command name followed by its arguments.
	Argv []string
	// Input is the file standard input is read from, empty if none.
	Input string
	// Output is the file standard output is written to, empty if none.
	Output string
	// Append opens Output for appending instead of truncating it.
	Append bool
}

// Name returns the command name of the stage.
func (s Stage) Name() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// PlanRedirects scans words once from left to right, removing redirection
// markers and their file names. If a marker appears more than once the last
// one wins.
func PlanRedirects(words []string) (Stage, error) {
	var stage Stage
	argv := make([]string, 0, len(words))

	for i := 0; i < len(words); i++ {
		word := words[i]
		if !isRedirect(word) {
			argv = append(argv, word)
			continue
		}

		if i+1 >= len(words) || isRedirect(words[i+1]) {
			return Stage{}, fmt.Errorf("%s: %w", word, ErrMalformedRedirection)
		}
		i++

		switch word {
		case RedirectIn:
			stage.Input = words[i]
		case RedirectOut:
			stage.Output = words[i]
			stage.Append = false
		case RedirectAppend:
			stage.Output = words[i]
			stage.Append = true
		}
	}

	if len(argv) == 0 {
		return Stage{}, ErrEmptyCommand
	}
	stage.Argv = argv
	return stage, nil
}

func isRedirect(word string) bool {
	switch word {
	case RedirectIn, RedirectOut, RedirectAppend:
		return true
	}
	return false
}
