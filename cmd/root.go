package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/josephlewis42/minish/core/config"
	"github.com/josephlewis42/minish/core/logger"
	"github.com/josephlewis42/minish/core/shell"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	colorMode   string
	commandLine string
	exitCode    int
)

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "minish")
}

func loadConfig() (*config.Configuration, error) {
	return config.Load(cfgPath)
}

func openEvents(cfg *config.Configuration) (*logger.Logger, func() error, error) {
	if !cfg.EventLog {
		return logger.Discard(), func() error { return nil }, nil
	}

	fd, err := cfg.OpenAppLog()
	if err != nil {
		return nil, nil, err
	}
	return logger.NewJsonLinesLogRecorder(fd), fd.Close, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "minish",
	Short: "Minimal interactive pipeline shell",
	Long: `A small interactive shell that runs pipelines of external commands with
file redirection, background jobs and the cd, jobs, history and exit builtins.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("color") {
			cfg.Color = colorMode
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		events, closeEvents, err := openEvents(cfg)
		if err != nil {
			return err
		}
		defer closeEvents()

		opts := shell.Options{
			Config: cfg,
			Events: events.NewSession(),
		}
		if cmd.Flags().Changed("command") {
			opts.Reader = shell.NewScanReader(strings.NewReader(commandLine))
		}

		sh, err := shell.New(opts)
		if err != nil {
			return err
		}
		defer sh.Close()

		// Interrupts belong to the foreground pipeline, the shell keeps running.
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)

		exitCode = sh.Run(context.Background())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config path")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run the given lines instead of reading input")
	rootCmd.Flags().StringVar(&colorMode, "color", config.ColorAuto, "colorize the prompt and errors: always, auto or never")
}
