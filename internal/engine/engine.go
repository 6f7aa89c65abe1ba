// Package engine implements the facade bundling every section into one
// process-wide object: the Labels DAG, Sources table, shared StringTable,
// Sink log, SourceLabelIndex bitmap, Functions table, Events stream, and the
// two control-flow logs, all backed by a single memory-mapped container
// file laid out by internal/header.
package engine

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/trailofbits/taintdag/internal/bitmap"
	"github.com/trailofbits/taintdag/internal/cflog"
	"github.com/trailofbits/taintdag/internal/encoding"
	"github.com/trailofbits/taintdag/internal/fnmapping"
	"github.com/trailofbits/taintdag/internal/header"
	"github.com/trailofbits/taintdag/internal/labels"
	"github.com/trailofbits/taintdag/internal/mmapfile"
	"github.com/trailofbits/taintdag/internal/shadow"
	"github.com/trailofbits/taintdag/internal/sinklog"
	"github.com/trailofbits/taintdag/internal/sources"
	"github.com/trailofbits/taintdag/internal/stringtable"
	"github.com/trailofbits/taintdag/pkg/errors"
	"github.com/trailofbits/taintdag/pkg/options"
)

// FunctionIndex identifies one interned function name.
type FunctionIndex = fnmapping.FunctionIndex

// Engine is the single process-wide object bundling every section. It is
// constructed once per process and, per the original design, deliberately
// never torn down mid-run: Close is only meaningful at process exit.
type Engine struct {
	file   *mmapfile.File
	layout header.Layout
	opts   options.Options
	log    *zap.SugaredLogger

	labels      *labels.DAG
	sources     *sources.Table
	strings     *stringtable.Table
	sinkLog     *sinklog.Log
	bitmap      *bitmap.Bitmap
	functions   *fnmapping.Functions
	events      *fnmapping.Events
	basicBlocks *cflog.BasicBlocks
	controlFlow *cflog.ControlFlow
	shadow      *shadow.Memory

	currentBasicBlock uint32

	closed atomic.Bool
}

// New creates a brand new container file at opts.TDAGPath, sized to hold
// every section at its configured capacity, and returns the Engine built on
// top of it.
func New(opts options.Options, log *zap.SugaredLogger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	sourceEntrySize := uint64(unsafe.Sizeof(sources.Entry{}))
	labelWordSize := uint64(unsafe.Sizeof(encoding.StorageWord(0)))
	sinkEntrySize := uint64(unsafe.Sizeof(sinklog.Entry{}))
	functionEntrySize := uint64(unsafe.Sizeof(fnmapping.Entry{}))
	basicBlockEntrySize := uint64(unsafe.Sizeof(uint32(0)))
	controlFlowEntrySize := uint64(unsafe.Sizeof(cflog.Pair{}))

	specs := []header.Spec{
		{Tag: header.TagSources, Align: 8, AllocSize: sourceEntrySize * uint64(opts.SourceCapacity)},
		{Tag: header.TagLabels, Align: 8, AllocSize: labelWordSize * (uint64(opts.MaxLabel) + 1)},
		{Tag: header.TagStringTable, Align: 8, AllocSize: uint64(opts.StringTableCapacity)},
		{Tag: header.TagSink, Align: 8, AllocSize: sinkEntrySize * uint64(opts.SinkLogCapacity)},
		{Tag: header.TagSourceLabelIndex, Align: 8, AllocSize: (uint64(opts.MaxLabel) + 1 + 63) / 64 * 8},
		{Tag: header.TagFunctions, Align: 8, AllocSize: functionEntrySize * uint64(opts.FunctionCapacity)},
		{Tag: header.TagEvents, Align: 8, AllocSize: uint64(opts.EventsCapacity)},
		{Tag: header.TagBasicBlocks, Align: 8, AllocSize: basicBlockEntrySize * uint64(opts.BasicBlockCapacity)},
		{Tag: header.TagControlFlow, Align: 8, AllocSize: controlFlowEntrySize * uint64(opts.BasicBlockCapacity)},
	}

	layout := header.Plan(specs)

	file, err := mmapfile.Create(opts.TDAGPath, int64(layout.Total), log)
	if err != nil {
		return nil, err
	}

	if err := header.Write(file.Bytes(), layout); err != nil {
		file.Close()
		return nil, err
	}

	e, err := wire(file, layout, opts, log)
	if err != nil {
		file.Close()
		return nil, err
	}

	log.Infow("container ready", "path", opts.TDAGPath, "total_size", layout.Total)
	return e, nil
}

func wire(file *mmapfile.File, layout header.Layout, opts options.Options, log *zap.SugaredLogger) (*Engine, error) {
	spanFor := func(meta header.SectionMeta) []byte {
		return file.Bytes()[meta.Offset : meta.Offset+meta.Size]
	}
	bySections := make(map[uint32]header.SectionMeta, len(layout.Sections))
	for _, s := range layout.Sections {
		bySections[s.Tag] = s
	}

	strings := stringtable.New(spanFor(bySections[header.TagStringTable]), log)

	sourcesTable, err := sources.New(spanFor(bySections[header.TagSources]), strings)
	if err != nil {
		return nil, err
	}

	labelsDAG, err := labels.New(spanFor(bySections[header.TagLabels]), uint32(opts.RedundantLabelRange))
	if err != nil {
		return nil, err
	}

	sinkLog, err := sinklog.New(spanFor(bySections[header.TagSink]))
	if err != nil {
		return nil, err
	}

	bm := bitmap.New(spanFor(bySections[header.TagSourceLabelIndex]))

	functions, err := fnmapping.New(spanFor(bySections[header.TagFunctions]), strings)
	if err != nil {
		return nil, err
	}

	events := fnmapping.NewEvents(spanFor(bySections[header.TagEvents]))

	basicBlocks, err := cflog.NewBasicBlocks(spanFor(bySections[header.TagBasicBlocks]))
	if err != nil {
		return nil, err
	}

	controlFlow, err := cflog.NewControlFlow(spanFor(bySections[header.TagControlFlow]))
	if err != nil {
		return nil, err
	}

	return &Engine{
		file:        file,
		layout:      layout,
		opts:        opts,
		log:         log,
		labels:      labelsDAG,
		sources:     sourcesTable,
		strings:     strings,
		sinkLog:     sinkLog,
		bitmap:      bm,
		functions:   functions,
		events:      events,
		basicBlocks: basicBlocks,
		controlFlow: controlFlow,
		shadow:      shadow.New(),
	}, nil
}

// Close finalizes every section's used size into the header and unmaps the
// container file. Per the original design the engine instance is otherwise
// never torn down mid-run; Close is for orderly process-exit cleanup (and
// for tests). A second call returns nil without touching the container.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	used := make([]uint64, len(e.layout.Sections))
	for i, s := range e.layout.Sections {
		switch s.Tag {
		case header.TagSources:
			used[i] = uint64(e.sources.Size())
		case header.TagLabels:
			used[i] = uint64(e.labels.Size())
		case header.TagStringTable:
			used[i] = uint64(e.strings.Size())
		case header.TagSink:
			used[i] = uint64(e.sinkLog.Size())
		case header.TagSourceLabelIndex:
			used[i] = uint64(e.bitmap.Size())
		case header.TagFunctions:
			used[i] = uint64(e.functions.Size())
		case header.TagEvents:
			used[i] = uint64(e.events.Size())
		case header.TagBasicBlocks:
			used[i] = uint64(e.basicBlocks.Size())
		case header.TagControlFlow:
			used[i] = uint64(e.controlFlow.Size())
		}
	}
	if err := header.Finalize(e.file.Bytes(), e.layout, used); err != nil {
		return err
	}
	if err := e.file.Sync(); err != nil {
		return err
	}
	return e.file.Close()
}

// UnionLabels computes the label denoting the combined taint of l and r.
// Exhausting the Labels section backing the DAG is fatal: the DAG has
// nowhere left to record the result.
func (e *Engine) UnionLabels(l, r uint32) (uint32, error) {
	label, err := e.labels.UnionLabel(l, r)
	if err != nil {
		if errors.IsCapacityExhausted(err) {
			e.fatal(err)
		}
		return 0, err
	}
	return label, nil
}

// OpenFile registers fd (opened at path) as a taint source, best-effort
// recording its size via os.Stat. Exhausting the Sources section or its
// backing string table is fatal: both are bounded sections the DAG's
// source labels point into.
func (e *Engine) OpenFile(fd int32, path string) (index uint32, ok bool) {
	size := sources.InvalidSize
	if st, err := os.Stat(path); err == nil {
		size = uint64(st.Size())
	}
	index, ok = e.sources.AddSource(path, fd, size)
	if !ok {
		e.fatal(errors.NewCapacityExhaustedError("sources", e.opts.SourceCapacity))
		return 0, false
	}
	return index, true
}

// CloseFile is a no-op: sources are immortal for the lifetime of the
// container, so closing the underlying descriptor has nothing to clean up.
func (e *Engine) CloseFile(fd int32) {}

// SourceTaint allocates length consecutive source labels for
// source fd's byte range [offset, offset+length), marks each in the
// SourceLabelIndex bitmap, and (if dst is non-nil) stamps the corresponding
// shadow-memory labels over dst. It returns the allocated label range
// [first, end). An offset beyond encoding.MaxSourceOffset is a fatal,
// out-of-range request from instrumentation.
func (e *Engine) SourceTaint(fd int32, dst []byte, offset uint64, length uint32) (first, end uint32, ok bool) {
	if offset > uint64(encoding.MaxSourceOffset) {
		e.fatal(errors.NewLabelOutOfRangeError(0, "source_taint").WithDetail("offset", offset))
		return 0, 0, false
	}

	idx, ok := e.sources.MappingIndex(fd)
	if !ok {
		return 0, 0, false
	}

	first, end, ok = e.labels.CreateSourceLabels(encoding.SourceIndex(idx), encoding.SourceOffset(offset), length)
	if !ok {
		e.fatal(errors.NewCapacityExhaustedError("labels", int(e.opts.MaxLabel)+1))
		return 0, 0, false
	}

	e.bitmap.SetRange(first, length)

	if dst != nil {
		for i := uint32(0); i < length && i < uint32(len(dst)); i++ {
			e.shadow.SetLabel(byteAddr(dst, i), first+i)
		}
	}
	return first, end, true
}

// CreateTaintSource registers a synthetic, fd-less taint source (fd = -1,
// e.g. argv) named name and allocates source labels over dst, stamping
// shadow memory the same way SourceTaint does.
func (e *Engine) CreateTaintSource(name string, dst []byte) (first, end uint32, ok bool) {
	idx, ok := e.sources.AddSource(name, sources.InvalidFD, uint64(len(dst)))
	if !ok {
		e.fatal(errors.NewCapacityExhaustedError("sources", e.opts.SourceCapacity))
		return 0, 0, false
	}

	first, end, ok = e.labels.CreateSourceLabels(encoding.SourceIndex(idx), 0, uint32(len(dst)))
	if !ok {
		e.fatal(errors.NewCapacityExhaustedError("labels", int(e.opts.MaxLabel)+1))
		return 0, 0, false
	}

	e.bitmap.SetRange(first, uint32(len(dst)))

	for i := range dst {
		e.shadow.SetLabel(byteAddr(dst, i), first+uint32(i))
	}
	return first, end, true
}

// AffectsControlFlow marks label, and everything it transitively denotes,
// as affecting control flow.
func (e *Engine) AffectsControlFlow(label uint32) error {
	return e.labels.AffectsControlFlow(label)
}

// TaintSinkBytes logs one sink record per byte of mem, read from shadow
// memory, skipping bytes whose label is 0 (untainted).
func (e *Engine) TaintSinkBytes(fd int32, offset uint64, mem []byte) error {
	sinkIdx, ok := e.sources.MappingIndex(fd)
	if !ok {
		return fmt.Errorf("engine: sink fd %d was never registered", fd)
	}
	for i := range mem {
		label := e.shadow.GetLabel(byteAddr(mem, i))
		if label == 0 {
			continue
		}
		if _, ok := e.sinkLog.LogSingle(offset+uint64(i), label, uint8(sinkIdx)); !ok {
			err := errors.NewCapacityExhaustedError("sink_log", int(e.opts.SinkLogCapacity))
			e.fatal(err)
			return err
		}
	}
	return nil
}

// TaintSinkLabel logs length sink records, one per byte of [offset,
// offset+length), all sharing the single given label. It is a no-op if
// label is 0 (untainted).
func (e *Engine) TaintSinkLabel(fd int32, offset uint64, label uint32, length uint32) error {
	if label == 0 {
		return nil
	}
	sinkIdx, ok := e.sources.MappingIndex(fd)
	if !ok {
		return fmt.Errorf("engine: sink fd %d was never registered", fd)
	}
	for i := uint32(0); i < length; i++ {
		if _, ok := e.sinkLog.LogSingle(offset+uint64(i), label, uint8(sinkIdx)); !ok {
			err := errors.NewCapacityExhaustedError("sink_log", int(e.opts.SinkLogCapacity))
			e.fatal(err)
			return err
		}
	}
	return nil
}

// FunctionEntry interns name (if new) and logs a function-entry event,
// updating the basic-block log's "current basic block" bookkeeping is left
// to LogBasicBlock, called independently by the instrumentation. Exhausting
// the Functions table or the Events log is fatal: both are append-only
// sections with no way to recover the dropped record.
func (e *Engine) FunctionEntry(name string) (FunctionIndex, error) {
	idx, ok := e.functions.AddMapping(name)
	if !ok {
		err := errors.NewCapacityExhaustedError("functions", e.opts.FunctionCapacity)
		e.fatal(err)
		return 0, err
	}
	if !e.events.LogEnter(idx) {
		err := errors.NewCapacityExhaustedError("events", int(e.opts.EventsCapacity))
		e.fatal(err)
		return 0, err
	}
	return idx, nil
}

// FunctionExit logs a function-exit event for the given function index.
// Exhausting the Events log is fatal, for the same reason as FunctionEntry.
func (e *Engine) FunctionExit(idx FunctionIndex) error {
	if !e.events.LogExit(idx) {
		err := errors.NewCapacityExhaustedError("events", int(e.opts.EventsCapacity))
		e.fatal(err)
		return err
	}
	return nil
}

// LogBasicBlock records bbID as the currently executing basic block.
// Exhausting the basic-block log is fatal: it is an append-only section and
// a dropped record would silently lose control-flow history.
func (e *Engine) LogBasicBlock(bbID uint32) error {
	e.currentBasicBlock = bbID
	if _, ok := e.basicBlocks.Enter(bbID); !ok {
		err := errors.NewCapacityExhaustedError("basic_blocks", e.opts.BasicBlockCapacity)
		e.fatal(err)
		return err
	}
	return nil
}

// LogConditionalBranch marks label as affecting control flow and records the
// (label, current basic block) pair in the control-flow log. Exhausting the
// control-flow log is fatal, for the same reason as LogBasicBlock.
func (e *Engine) LogConditionalBranch(label uint32) error {
	if err := e.labels.AffectsControlFlow(label); err != nil {
		return err
	}
	if _, ok := e.controlFlow.Log(label, e.currentBasicBlock); !ok {
		err := errors.NewCapacityExhaustedError("control_flow", e.opts.BasicBlockCapacity)
		e.fatal(err)
		return err
	}
	return nil
}

// fatal routes an unrecoverable error through the pluggable exit hook.
func (e *Engine) fatal(err error) {
	e.log.Errorw("fatal engine error", "error", err)
	errors.Exit(1)
}

func byteAddr(buf []byte, i uint32) unsafe.Pointer {
	return unsafe.Pointer(&buf[i])
}
