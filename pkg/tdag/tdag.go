// Package tdag is the public facade over a TDAG container: one Instance
// bundles the label DAG, source/sink bookkeeping, and function/control-flow
// logs behind a small, stable API, mirroring how the engine facade itself
// bundles its sections. It is the entry point embedding runtimes (see
// cmd/tdagrt) and standalone tools are expected to use.
package tdag

import (
	"go.uber.org/zap"

	"github.com/trailofbits/taintdag/internal/engine"
	"github.com/trailofbits/taintdag/pkg/logger"
	"github.com/trailofbits/taintdag/pkg/options"
)

// FunctionIndex identifies one interned function name.
type FunctionIndex = engine.FunctionIndex

// Instance is one open TDAG container.
type Instance struct {
	eng *engine.Engine
	log *zap.SugaredLogger
}

// Open creates a new container configured by opts (WithDefaultOptions()
// applied first unless the caller supplies their own base), returning the
// Instance built on top of it.
func Open(opts ...options.OptionFunc) (*Instance, error) {
	cfg := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	log, err := logger.New("tdag")
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(cfg, log)
	if err != nil {
		return nil, err
	}

	return &Instance{eng: eng, log: log}, nil
}

// Close finalizes the container's header and unmaps its backing file.
func (i *Instance) Close() error {
	return i.eng.Close()
}

// UnionLabels computes the label denoting the combined taint of l and r.
func (i *Instance) UnionLabels(l, r uint32) (uint32, error) {
	return i.eng.UnionLabels(l, r)
}

// OpenFile registers fd (opened at path) as a taint source.
func (i *Instance) OpenFile(fd int32, path string) (index uint32, ok bool) {
	return i.eng.OpenFile(fd, path)
}

// CloseFile is a no-op: sources are immortal for the container's lifetime.
func (i *Instance) CloseFile(fd int32) {
	i.eng.CloseFile(fd)
}

// SourceTaint allocates source labels for fd's byte range [offset,
// offset+length) and, if dst is non-nil, stamps shadow memory over it.
func (i *Instance) SourceTaint(fd int32, dst []byte, offset uint64, length uint32) (first, end uint32, ok bool) {
	return i.eng.SourceTaint(fd, dst, offset, length)
}

// CreateTaintSource registers a synthetic, fd-less taint source named name
// and allocates source labels over dst.
func (i *Instance) CreateTaintSource(name string, dst []byte) (first, end uint32, ok bool) {
	return i.eng.CreateTaintSource(name, dst)
}

// AffectsControlFlow marks label, and everything it transitively denotes,
// as affecting control flow.
func (i *Instance) AffectsControlFlow(label uint32) error {
	return i.eng.AffectsControlFlow(label)
}

// TaintSinkBytes logs one sink record per tainted byte of mem, read from
// shadow memory.
func (i *Instance) TaintSinkBytes(fd int32, offset uint64, mem []byte) error {
	return i.eng.TaintSinkBytes(fd, offset, mem)
}

// TaintSinkLabel logs length sink records sharing the single given label.
func (i *Instance) TaintSinkLabel(fd int32, offset uint64, label uint32, length uint32) error {
	return i.eng.TaintSinkLabel(fd, offset, label, length)
}

// FunctionEntry interns name (if new) and logs a function-entry event.
func (i *Instance) FunctionEntry(name string) (FunctionIndex, error) {
	return i.eng.FunctionEntry(name)
}

// FunctionExit logs a function-exit event for idx.
func (i *Instance) FunctionExit(idx FunctionIndex) error {
	return i.eng.FunctionExit(idx)
}

// LogBasicBlock records bbID as the currently executing basic block.
func (i *Instance) LogBasicBlock(bbID uint32) error {
	return i.eng.LogBasicBlock(bbID)
}

// LogConditionalBranch marks label as affecting control flow and records it
// against the current basic block.
func (i *Instance) LogConditionalBranch(label uint32) error {
	return i.eng.LogConditionalBranch(label)
}
