// Package cflog implements the two sections that together record control
// flow: BasicBlocksLog, an append-only stream of every basic block id
// entered (the process-wide "current basic block" itself is kept by the
// engine facade, not by this package), and ControlFlowLog, the
// append-only stream of (label, basic block) pairs recorded whenever a
// control-flow-affecting label is observed inside a block.
package cflog

import "github.com/trailofbits/taintdag/internal/section"

// BasicBlocks is the BasicBlocksLog section: every entry is a basic block
// id, in the order execution reached it.
type BasicBlocks struct {
	entries *section.Fixed[uint32]
}

// NewBasicBlocks wraps span in a BasicBlocks log.
func NewBasicBlocks(span []byte) (*BasicBlocks, error) {
	entries, err := section.NewFixed[uint32](span)
	if err != nil {
		return nil, err
	}
	return &BasicBlocks{entries: entries}, nil
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (b *BasicBlocks) Size() uint32 { return b.entries.Size() }

// Enter appends bbID to the log and returns its log index. ok is false if
// the log is full.
func (b *BasicBlocks) Enter(bbID uint32) (index uint32, ok bool) {
	return b.entries.Construct(bbID)
}

// All returns every logged basic block id, in execution order.
func (b *BasicBlocks) All() []uint32 { return b.entries.All() }

// Pair is one ControlFlowLog record: a control-flow-affecting label
// observed while executing the named basic block.
type Pair struct {
	Label      uint32
	BasicBlock uint32
}

// ControlFlow is the ControlFlowLog section.
type ControlFlow struct {
	entries *section.Fixed[Pair]
}

// NewControlFlow wraps span in a ControlFlow log.
func NewControlFlow(span []byte) (*ControlFlow, error) {
	entries, err := section.NewFixed[Pair](span)
	if err != nil {
		return nil, err
	}
	return &ControlFlow{entries: entries}, nil
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (c *ControlFlow) Size() uint32 { return c.entries.Size() }

// Log appends one (label, basic block) pair.
func (c *ControlFlow) Log(label, basicBlock uint32) (index uint32, ok bool) {
	return c.entries.Construct(Pair{Label: label, BasicBlock: basicBlock})
}

// All returns every logged pair, in append order.
func (c *ControlFlow) All() []Pair { return c.entries.All() }
