package shell

import (
	"os"
	"strings"

	"github.com/josephlewis42/minish/core/vos"
)

// Prompt expands the configured prompt: \u is the user, \h the machine name,
// \w the working directory with $HOME shown as ~ and \$ is # for root.
func (s *Shell) Prompt() string {
	host := s.env.Getenv(vos.EnvMachine)
	if host == "" {
		host, _ = os.Hostname()
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = s.env.Getenv(vos.EnvPWD)
	}
	if home := s.env.Getenv(vos.EnvHome); home != "" && home != "/" {
		if pwd == home || strings.HasPrefix(pwd, home+"/") {
			pwd = "~" + strings.TrimPrefix(pwd, home)
		}
	}

	sigil := "$"
	if os.Geteuid() == 0 {
		sigil = "#"
	}

	prompt := strings.NewReplacer(
		`\u`, s.env.Getenv(vos.EnvUser),
		`\h`, host,
		`\w`, pwd,
		`\$`, sigil,
	).Replace(s.config.Prompt)

	return s.promptColor.Sprint(prompt)
}
