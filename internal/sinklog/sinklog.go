// Package sinklog implements the Sink log section: an append-only record of
// every tainted byte observed flowing into a sink, one SinkLogEntry per
// byte. A full log makes LogSingle return ok=false; the engine facade
// treats that as fatal, as it does for the other bounded sections.
package sinklog

import "github.com/trailofbits/taintdag/internal/section"

// Entry is one logged byte: the sink-relative offset it was written at, the
// label denoting its taint, and which registered sink wrote it. Fields are
// ordered largest first to avoid padding.
type Entry struct {
	Offset    uint64
	Label     uint32
	SinkIndex uint8
}

// Log is the Sink log section.
type Log struct {
	entries *section.Fixed[Entry]
}

// New wraps span in a Log.
func New(span []byte) (*Log, error) {
	entries, err := section.NewFixed[Entry](span)
	if err != nil {
		return nil, err
	}
	return &Log{entries: entries}, nil
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (l *Log) Size() uint32 { return l.entries.Size() }

// LogSingle appends one record. ok is false if the log is full; the caller
// treats that as fatal, per the append-only log error-handling rule.
func (l *Log) LogSingle(offset uint64, label uint32, sinkIndex uint8) (index uint32, ok bool) {
	return l.entries.Construct(Entry{Offset: offset, Label: label, SinkIndex: sinkIndex})
}

// All returns every logged entry, in append order.
func (l *Log) All() []Entry { return l.entries.All() }
