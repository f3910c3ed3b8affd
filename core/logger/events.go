package logger

// Event is one of the event types a LogEntry can carry.
type Event interface {
	isEvent()
}

// LogEntry is a single line of the event log.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	RunCommand     *RunCommand     `json:"run_command,omitempty"`
	UnknownCommand *UnknownCommand `json:"unknown_command,omitempty"`
	Builtin        *Builtin        `json:"builtin,omitempty"`
	JobDone        *JobDone        `json:"job_done,omitempty"`
	LaunchError    *LaunchError    `json:"launch_error,omitempty"`
}

// GetLogType returns the event held by the entry or nil if there isn't one.
func (le *LogEntry) GetLogType() Event {
	switch {
	case le.RunCommand != nil:
		return le.RunCommand
	case le.UnknownCommand != nil:
		return le.UnknownCommand
	case le.Builtin != nil:
		return le.Builtin
	case le.JobDone != nil:
		return le.JobDone
	case le.LaunchError != nil:
		return le.LaunchError
	default:
		return nil
	}
}

func (le *LogEntry) setLogType(event Event) {
	switch e := event.(type) {
	case *RunCommand:
		le.RunCommand = e
	case *UnknownCommand:
		le.UnknownCommand = e
	case *Builtin:
		le.Builtin = e
	case *JobDone:
		le.JobDone = e
	case *LaunchError:
		le.LaunchError = e
	}
}

// RunCommand is logged for every pipeline that was started.
type RunCommand struct {
	// Command is the argv of each stage.
	Command [][]string `json:"command"`
	// ResolvedCommandPaths holds the executable of each stage.
	ResolvedCommandPaths []string `json:"resolved_command_paths"`
	ExitCodes            []int    `json:"exit_codes,omitempty"`
	Background           bool     `json:"background,omitempty"`
	JobNumber            int      `json:"job_number,omitempty"`
}

// UnknownCommand is logged when a stage couldn't be resolved.
type UnknownCommand struct {
	Command      []string `json:"command"`
	ErrorMessage string   `json:"error_message"`
}

// Builtin is logged for every builtin invocation.
type Builtin struct {
	Command      []string `json:"command"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// JobDone is logged when a background job is reaped.
type JobDone struct {
	Number       int    `json:"number"`
	PID          int    `json:"pid"`
	Command      string `json:"command"`
	ExitCode     int    `json:"exit_code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// LaunchError is logged when a line couldn't be turned into running
// processes, or a single stage failed to start.
type LaunchError struct {
	Command      []string `json:"command"`
	ErrorMessage string   `json:"error_message"`
}

func (*RunCommand) isEvent()     {}
func (*UnknownCommand) isEvent() {}
func (*Builtin) isEvent()        {}
func (*JobDone) isEvent()        {}
func (*LaunchError) isEvent()    {}
