package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	AppLogName        = "events.log"
)

const (
	WordSplittingLiteral = "literal"
	WordSplittingPosix   = "posix"

	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs afero.Fs

	Prompt         string `json:"prompt" validate:"required"`
	MaxJobs        int    `json:"max_jobs" validate:"gte=1,lte=64"`
	RecentCommands int    `json:"recent_commands" validate:"gte=1,lte=100"`
	MaxCommandText int    `json:"max_command_text" validate:"gte=16,lte=4096"`
	WordSplitting  string `json:"word_splitting" validate:"oneof=literal posix"`
	Color          string `json:"color" validate:"oneof=always auto never"`
	PollInterval   string `json:"poll_interval" validate:"duration"`
	EventLog       bool   `json:"event_log"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})

	return validate.Struct(c)
}

// PollDuration is the parsed PollInterval.
func (c *Configuration) PollDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		c.configFs = afero.NewMemMapFs()
	}
	return c.configFs
}

// OpenAppLog opens the event log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// Default returns the built-in configuration, it isn't backed by a directory
// and has the event log turned off.
func Default() *Configuration {
	out := defaultConfig()
	out.EventLog = false
	return out
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
