package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"invalid_log_entries,omitempty"`

	RunCommand     RunCommandReport     `json:"run_command_report"`
	UnknownCommand UnknownCommandReport `json:"unknown_command_report"`
	Builtin        BuiltinReport        `json:"builtin_report"`
	JobDone        JobDoneReport        `json:"job_done_report"`
	LaunchError    LaunchErrorReport    `json:"launch_error_report"`
}

func NewReport() *Report {
	return &Report{
		LaunchError: LaunchErrorReport{Errors: NewPathCounter("command", "error")},
	}
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch event := le.GetLogType().(type) {
	case *RunCommand:
		r.RunCommand.update(event)
	case *UnknownCommand:
		r.UnknownCommand.update(event)
	case *Builtin:
		r.Builtin.update(event)
	case *JobDone:
		r.JobDone.update(event)
	case *LaunchError:
		r.LaunchError.update(event)
	default:
		r.InvalidEntries.Increment(fmt.Sprintf("%T", event))
	}
}

type RunCommandReport struct {
	Count      int `json:"count"`
	Background int `json:"background"`
	Failed     int `json:"failed"`
	// Name of the resolved command
	ResolvedCommandPaths StrCounter `json:"resolved_command_paths"`
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Number of stages in each pipeline.
	PipelineLengths StrCounter `json:"pipeline_lengths"`
}

func (r *RunCommandReport) update(rc *RunCommand) {
	r.Count++
	if rc.Background {
		r.Background++
	}
	for _, code := range rc.ExitCodes {
		if code != 0 {
			r.Failed++
			break
		}
	}
	for _, p := range rc.ResolvedCommandPaths {
		r.ResolvedCommandPaths.Increment(p)
	}
	for _, stage := range rc.Command {
		if len(stage) > 0 {
			r.CommandNames.Increment(path.Base(stage[0]))
		}
	}
	r.PipelineLengths.Increment(fmt.Sprint(len(rc.Command)))
}

type UnknownCommandReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *UnknownCommandReport) update(logEntry *UnknownCommand) {
	if len(logEntry.Command) > 0 {
		r.CommandNames.Increment(logEntry.Command[0])
	}
}

type BuiltinReport struct {
	CommandNames StrCounter `json:"command_names"`
	Errors       StrCounter `json:"errors,omitempty"`
}

func (r *BuiltinReport) update(b *Builtin) {
	if len(b.Command) == 0 {
		return
	}
	r.CommandNames.Increment(b.Command[0])
	if b.ErrorMessage != "" {
		r.Errors.Increment(b.Command[0])
	}
}

type JobDoneReport struct {
	Count     int        `json:"count"`
	ExitCodes StrCounter `json:"exit_codes"`
}

func (r *JobDoneReport) update(j *JobDone) {
	r.Count++
	if j.ErrorMessage != "" {
		r.ExitCodes.Increment("error")
		return
	}
	r.ExitCodes.Increment(fmt.Sprint(j.ExitCode))
}

type LaunchErrorReport struct {
	Errors *PathCounter `json:"errors"`
}

func (r *LaunchErrorReport) update(le *LaunchError) {
	if r.Errors == nil {
		r.Errors = NewPathCounter("command", "error")
	}
	name := ""
	if len(le.Command) > 0 {
		name = le.Command[0]
	}
	r.Errors.Increment(name, le.ErrorMessage)
}

// SessionReport lists the commands run in each session.
type SessionReport struct {
	// Map of sessionID -> session
	sessions map[string]*Session
}

type Session struct {
	LogEntries int      `json:"log_entries"`
	Commands   []string `json:"commands"`
	Jobs       int      `json:"jobs"`
}

func (s *Session) Update(le *LogEntry) {
	s.LogEntries++

	switch event := le.GetLogType().(type) {
	case *RunCommand:
		var stages []string
		for _, stage := range event.Command {
			stages = append(stages, strings.Join(stage, " "))
		}
		cmd := strings.Join(stages, " | ")
		if event.Background {
			cmd += " &"
			s.Jobs++
		}
		s.Commands = append(s.Commands, cmd)
	case *UnknownCommand:
		s.Commands = append(s.Commands, strings.Join(event.Command, " "))
	case *Builtin:
		s.Commands = append(s.Commands, strings.Join(event.Command, " "))
	}
}

func (s *SessionReport) init() {
	if s.sessions == nil {
		s.sessions = make(map[string]*Session)
	}
}

// MarshalJSON implements a custom JSON marshaler.
func (s *SessionReport) MarshalJSON() ([]byte, error) {
	s.init()

	return json.Marshal(s.sessions)
}

func (s *SessionReport) Update(le *LogEntry) {
	s.init()

	if le.SessionID == "" {
		return
	}
	report, ok := s.sessions[le.SessionID]
	if !ok {
		report = &Session{}
		s.sessions[le.SessionID] = report
	}

	report.Update(le)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of times each combination of columns is seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implements a custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
