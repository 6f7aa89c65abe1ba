// Package options provides the configuration surface for a TDAG container:
// where its backing file lives, how large each section's fixed capacity is,
// and which of the optional stdin/stdout/stderr/argv taint sources are wired
// up automatically. It mirrors the environment variables documented for the
// C/C++ runtime this format originated from, so a process can be configured
// either programmatically or by inheriting its parent's environment.
package options

import (
	"os"
	"strings"
)

// Options configures a TDAG container and the engine built on top of it.
type Options struct {
	// TDAGPath is the path to the backing container file.
	//
	// Default: "polytracker.tdag"
	TDAGPath string `json:"tdagPath"`

	// SourceCapacity bounds how many distinct taint sources (open files,
	// stdin, synthetic sources such as argv) the container can record.
	//
	// Default: 256
	SourceCapacity int `json:"sourceCapacity"`

	// MaxLabel bounds the highest label value the engine will allocate.
	//
	// Default: 2^31 - 1
	MaxLabel uint32 `json:"maxLabel"`

	// RedundantLabelRange is the width of the backward scan UnionLabel
	// performs before constructing a brand new label, looking for an
	// existing entry that is already equivalent to the one requested.
	//
	// Default: 100
	RedundantLabelRange int `json:"redundantLabelRange"`

	// FunctionCapacity bounds how many distinct function names the
	// function-mapping section can intern.
	//
	// Default: 65536
	FunctionCapacity int `json:"functionCapacity"`

	// SinkLogCapacity bounds how many sink-write records can be appended.
	//
	// Default: 1048576
	SinkLogCapacity int `json:"sinkLogCapacity"`

	// EventsCapacity bounds the byte size of the function entry/exit and
	// taint-affected-control-flow event stream.
	//
	// Default: 1GB
	EventsCapacity int64 `json:"eventsCapacity"`

	// BasicBlockCapacity bounds how many entries the basic-block log and
	// the control-flow log can each hold.
	//
	// Default: 1048576
	BasicBlockCapacity int `json:"basicBlockCapacity"`

	// StringTableCapacity bounds the byte size of the shared string table
	// backing source and function names.
	//
	// Default: 16MB
	StringTableCapacity int64 `json:"stringTableCapacity"`

	// StdinSource, when true, registers process stdin as a taint source.
	StdinSource bool `json:"stdinSource"`

	// StdoutSink, when true, registers process stdout as a taint sink.
	StdoutSink bool `json:"stdoutSink"`

	// StderrSink, when true, registers process stderr as a taint sink.
	StderrSink bool `json:"stderrSink"`

	// TaintArgv, when true, registers each command-line argument as its
	// own named taint source at process start.
	TaintArgv bool `json:"taintArgv"`
}

// OptionFunc is a function that modifies Options in place.
type OptionFunc func(*Options)

// WithDefaultOptions applies the built-in default configuration.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		defaults := NewDefaultOptions()
		*o = defaults
	}
}

// WithTDAGPath sets the path to the backing container file.
func WithTDAGPath(path string) OptionFunc {
	return func(o *Options) {
		path = strings.TrimSpace(path)
		if path != "" {
			o.TDAGPath = path
		}
	}
}

// WithSourceCapacity sets the maximum number of taint sources the container
// can record.
func WithSourceCapacity(capacity int) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.SourceCapacity = capacity
		}
	}
}

// WithMaxLabel sets the highest label value the engine will allocate.
func WithMaxLabel(max uint32) OptionFunc {
	return func(o *Options) {
		if max > 0 {
			o.MaxLabel = max
		}
	}
}

// WithRedundantLabelRange sets the width of UnionLabel's backward
// duplicate-detection scan.
func WithRedundantLabelRange(n int) OptionFunc {
	return func(o *Options) {
		if n >= 0 {
			o.RedundantLabelRange = n
		}
	}
}

// WithFunctionCapacity sets the maximum number of distinct function names
// the container can intern.
func WithFunctionCapacity(capacity int) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.FunctionCapacity = capacity
		}
	}
}

// WithSinkLogCapacity sets the maximum number of sink-write records.
func WithSinkLogCapacity(capacity int) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.SinkLogCapacity = capacity
		}
	}
}

// WithEventsCapacity sets the byte size reserved for the event stream.
func WithEventsCapacity(capacity int64) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.EventsCapacity = capacity
		}
	}
}

// WithBasicBlockCapacity sets the maximum number of basic-block / control-
// flow log entries.
func WithBasicBlockCapacity(capacity int) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.BasicBlockCapacity = capacity
		}
	}
}

// WithStringTableCapacity sets the byte size reserved for the shared
// string table.
func WithStringTableCapacity(capacity int64) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.StringTableCapacity = capacity
		}
	}
}

// WithEnv overrides TDAGPath, StdinSource, StdoutSink, StderrSink, and
// TaintArgv from the process environment, following the same variable
// names (POLYDB, POLYTRACKER_STDIN_SOURCE, POLYTRACKER_STDOUT_SINK,
// POLYTRACKER_STDERR_SINK, POLYTRACKER_TAINT_ARGV) the originating runtime
// used. Unset variables leave the current value untouched; set variables
// are gated on the literal string "1", matching the original runtime's
// getenv checks.
func WithEnv() OptionFunc {
	return func(o *Options) {
		if path, ok := os.LookupEnv("POLYDB"); ok {
			path = strings.TrimSpace(path)
			if path != "" {
				o.TDAGPath = path
			}
		}
		if isEnvOne("POLYTRACKER_STDIN_SOURCE") {
			o.StdinSource = true
		}
		if isEnvOne("POLYTRACKER_STDOUT_SINK") {
			o.StdoutSink = true
		}
		if isEnvOne("POLYTRACKER_STDERR_SINK") {
			o.StderrSink = true
		}
		if isEnvOne("POLYTRACKER_TAINT_ARGV") {
			o.TaintArgv = true
		}
	}
}

func isEnvOne(name string) bool {
	return os.Getenv(name) == "1"
}
