package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRedirects(t *testing.T) {
	cases := map[string]struct {
		words    []string
		expected Stage
	}{
		"no redirection": {
			words:    []string{"ls", "-l", "/tmp"},
			expected: Stage{Argv: []string{"ls", "-l", "/tmp"}},
		},
		"input": {
			words:    []string{"sort", "<", "in.txt"},
			expected: Stage{Argv: []string{"sort"}, Input: "in.txt"},
		},
		"output": {
			words:    []string{"ls", ">", "out.txt", "-a"},
			expected: Stage{Argv: []string{"ls", "-a"}, Output: "out.txt"},
		},
		"append": {
			words:    []string{"echo", "hi", ">>", "log"},
			expected: Stage{Argv: []string{"echo", "hi"}, Output: "log", Append: true},
		},
		"both": {
			words:    []string{"<", "in", "tr", "a", "b", ">", "out"},
			expected: Stage{Argv: []string{"tr", "a", "b"}, Input: "in", Output: "out"},
		},
		"last output wins": {
			words:    []string{"cat", ">", "a.txt", ">", "b.txt"},
			expected: Stage{Argv: []string{"cat"}, Output: "b.txt"},
		},
		"last input wins": {
			words:    []string{"cat", "<", "a.txt", "<", "b.txt"},
			expected: Stage{Argv: []string{"cat"}, Input: "b.txt"},
		},
		"truncate after append": {
			words:    []string{"cat", ">>", "a.txt", ">", "a.txt"},
			expected: Stage{Argv: []string{"cat"}, Output: "a.txt"},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			actual, err := PlanRedirects(tc.words)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestPlanRedirects_Errors(t *testing.T) {
	cases := map[string]struct {
		words []string
		err   error
	}{
		"trailing output marker": {[]string{"cat", ">"}, ErrMalformedRedirection},
		"trailing input marker":  {[]string{"cat", "<"}, ErrMalformedRedirection},
		"marker after marker":    {[]string{"cat", ">", "<", "x"}, ErrMalformedRedirection},
		"only redirection":       {[]string{">", "out"}, ErrEmptyCommand},
		"nothing":                {nil, ErrEmptyCommand},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			_, err := PlanRedirects(tc.words)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
