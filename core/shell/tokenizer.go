package shell

import (
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/josephlewis42/minish/core/config"
)

// Tokenizer splits the text of a single stage into words.
type Tokenizer func(text string) ([]string, error)

// LiteralWords splits on blanks, quotes have no special meaning.
func LiteralWords(text string) ([]string, error) {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t'
	}), nil
}

// PosixWords splits like a POSIX shell, honoring quotes and backslashes.
func PosixWords(text string) ([]string, error) {
	return shlex.Split(text, true)
}

// TokenizerFor returns the Tokenizer for a word_splitting setting.
func TokenizerFor(mode string) Tokenizer {
	if mode == config.WordSplittingPosix {
		return PosixWords
	}
	return LiteralWords
}
