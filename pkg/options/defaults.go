package options

const (
	// DefaultTDAGPath is the backing file path used when neither an
	// explicit option nor the POLYDB environment variable names one.
	DefaultTDAGPath = "polytracker.tdag"

	// DefaultSourceCapacity is the number of entries the Sources section
	// can hold before AddSource starts failing with capacity exhaustion.
	DefaultSourceCapacity = 256

	// DefaultMaxLabel is the highest label value the Labels section will
	// ever hand out (2^31 - 1, matching the 31-bit label field width).
	DefaultMaxLabel uint32 = 1<<31 - 1

	// DefaultRedundantLabelRange is the number of most-recently-created
	// labels UnionLabel scans backward through looking for an existing
	// entry equivalent to the one it's about to create.
	DefaultRedundantLabelRange = 100

	// DefaultFunctionCapacity is the number of distinct function names the
	// function-mapping section can intern.
	DefaultFunctionCapacity = 1 << 16

	// DefaultSinkLogCapacity is the number of entries the sink log can
	// append before it is full.
	DefaultSinkLogCapacity = 1 << 20

	// DefaultEventsCapacity is the byte size reserved for the function
	// entry/exit/control-flow event stream.
	DefaultEventsCapacity = 1 << 30

	// DefaultBasicBlockCapacity is the number of entries the basic-block
	// log and the control-flow log can each hold.
	DefaultBasicBlockCapacity = 1 << 20

	// DefaultStringTableCapacity is the byte size reserved for the shared
	// string table backing source and function names.
	DefaultStringTableCapacity int64 = 1 << 24
)

// defaultOptions holds the configuration used when WithDefaultOptions is
// applied before any other OptionFunc.
var defaultOptions = Options{
	TDAGPath:            DefaultTDAGPath,
	SourceCapacity:      DefaultSourceCapacity,
	MaxLabel:            DefaultMaxLabel,
	RedundantLabelRange: DefaultRedundantLabelRange,
	FunctionCapacity:    DefaultFunctionCapacity,
	SinkLogCapacity:     DefaultSinkLogCapacity,
	EventsCapacity:      DefaultEventsCapacity,
	BasicBlockCapacity:  DefaultBasicBlockCapacity,
	StringTableCapacity: DefaultStringTableCapacity,
}

// NewDefaultOptions returns a copy of the built-in default configuration.
func NewDefaultOptions() Options {
	return defaultOptions
}
