package vos

import (
	"regexp"
	"strings"
)

var envRegex = regexp.MustCompile(`\$\w+`)

// Expand substitutes $NAME references and a leading ~ on any word of the line.
// References to unset variables are kept literally.
func Expand(env VEnv, line string) string {
	line = envRegex.ReplaceAllStringFunc(line, func(ref string) string {
		if val, ok := env.LookupEnv(ref[1:]); ok {
			return val
		}
		return ref
	})

	home, ok := env.LookupEnv(EnvHome)
	if !ok || !strings.Contains(line, "~") {
		return line
	}

	var sb strings.Builder
	for i := 0; i < len(line); i++ {
		if line[i] == '~' && startsWord(line, i) && endsTilde(line, i+1) {
			sb.WriteString(home)
			continue
		}
		sb.WriteByte(line[i])
	}
	return sb.String()
}

func startsWord(line string, i int) bool {
	return i == 0 || isBreak(line[i-1])
}

func endsTilde(line string, i int) bool {
	return i == len(line) || line[i] == '/' || isBreak(line[i])
}

func isBreak(b byte) bool {
	switch b {
	case ' ', '\t', '|', '<', '>':
		return true
	}
	return false
}
