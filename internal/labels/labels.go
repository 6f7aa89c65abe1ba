// Package labels implements the Labels section: the append-only DAG of
// StorageWords addressed by Label id, and the union algebra that combines
// two labels into the label denoting their combined taint.
//
// Label 0 is reserved at construction time as the untainted sentinel and is
// never returned by UnionLabel's algebra (union with 0 is the identity).
package labels

import (
	"github.com/trailofbits/taintdag/internal/encoding"
	"github.com/trailofbits/taintdag/internal/section"
	"github.com/trailofbits/taintdag/pkg/errors"
)

// DAG is the Labels section together with the union algebra.
type DAG struct {
	words               *section.Fixed[encoding.StorageWord]
	redundantLabelRange uint32
}

// New wraps span in a DAG and constructs label 0 as the untainted sentinel.
// redundantLabelRange bounds how far back the duplicate-suppression scan in
// UnionLabel looks before allocating a new label.
func New(span []byte, redundantLabelRange uint32) (*DAG, error) {
	words, err := section.NewFixed[encoding.StorageWord](span)
	if err != nil {
		return nil, err
	}
	d := &DAG{words: words, redundantLabelRange: redundantLabelRange}
	if _, ok := d.words.Construct(encoding.Encode(encoding.SourceTaint{Index: 0, Offset: 0})); !ok {
		return nil, errors.NewCapacityExhaustedError("labels", int(d.words.Capacity()))
	}
	return d, nil
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (d *DAG) Size() uint32 { return d.words.Size() }

// CreateSourceLabels allocates length consecutive labels, one per byte of a
// newly registered source range [offset, offset+length), and returns the
// inclusive-exclusive label range [first, end). ok is false if the section
// has no room for length more labels.
func (d *DAG) CreateSourceLabels(src encoding.SourceIndex, offset encoding.SourceOffset, length uint32) (first, end uint32, ok bool) {
	if length == 0 {
		return 0, 0, false
	}
	first, ok = d.words.ConstructRange(length, func(i uint32) encoding.StorageWord {
		return encoding.Encode(encoding.SourceTaint{Index: src, Offset: offset + encoding.SourceOffset(i)})
	})
	if !ok {
		return 0, 0, false
	}
	return first, first + length, true
}

// ReadLabel decodes the Taint stored for label.
func (d *DAG) ReadLabel(label uint32) (encoding.Taint, error) {
	w, ok := d.rawWord(label)
	if !ok {
		return nil, errors.NewLabelOutOfRangeError(label, "read_label")
	}
	t, err := encoding.Decode(w)
	if err != nil {
		return nil, errors.NewCorruptEncodingError(label, w)
	}
	return t, nil
}

func (d *DAG) rawWord(label uint32) (encoding.StorageWord, bool) {
	return d.words.Index(label)
}

// UnionLabel computes the label denoting the combined taint of l and r,
// applying the union algebra (§ the encoding package's Taint cases), the
// duplicate-suppression scan, and allocating a new label only if neither
// produces an existing one.
func (d *DAG) UnionLabel(l, r uint32) (uint32, error) {
	if l == r {
		return l, nil
	}
	if l == 0 {
		return r, nil
	}
	if r == 0 {
		return l, nil
	}

	wl, ok := d.rawWord(l)
	if !ok {
		return 0, errors.NewLabelOutOfRangeError(l, "union_label")
	}
	wr, ok := d.rawWord(r)
	if !ok {
		return 0, errors.NewLabelOutOfRangeError(r, "union_label")
	}

	tl, err := encoding.Decode(wl)
	if err != nil {
		return 0, errors.NewCorruptEncodingError(l, wl)
	}
	tr, err := encoding.Decode(wr)
	if err != nil {
		return 0, errors.NewCorruptEncodingError(r, wr)
	}

	cr := d.combine(l, tl, r, tr)
	if cr.matched {
		return cr.label, nil
	}

	newTaint := cr.forced
	if newTaint == nil {
		newTaint = promote(l, r)
	}
	w := encoding.Encode(newTaint)

	if dup, ok := d.duplicateCheck(max32(l, r), w); ok {
		return dup, nil
	}

	newLabel, ok := d.words.Construct(w)
	if !ok {
		return 0, errors.NewCapacityExhaustedError("labels", int(d.words.Capacity()))
	}
	return newLabel, nil
}

// combineResult is the outcome of one union-algebra case. matched means an
// existing label already denotes the union (label holds it); otherwise
// forced, if non-nil, is the specific Taint the pair must promote to (e.g.
// an extended range); if forced is also nil the generic promote fallback
// applies.
type combineResult struct {
	label   uint32
	matched bool
	forced  encoding.Taint
}

func matchedResult(label uint32) combineResult    { return combineResult{label: label, matched: true} }
func forcedResult(t encoding.Taint) combineResult { return combineResult{forced: t} }
func noResult() combineResult                     { return combineResult{} }

// combine applies the union algebra's enclosure/adjacency/identity tests for
// every pairing of Taint variants.
func (d *DAG) combine(la uint32, ta encoding.Taint, lb uint32, tb encoding.Taint) combineResult {
	switch va := ta.(type) {
	case encoding.SourceTaint:
		switch vb := tb.(type) {
		case encoding.SourceTaint:
			if va.Index == vb.Index && va.Offset == vb.Offset {
				return matchedResult(la)
			}
			return noResult()
		case encoding.RangeTaint:
			return d.rangeSourceCombine(lb, vb, la)
		case encoding.UnionTaint:
			return d.unionSourceCombine(lb, vb, la)
		}
	case encoding.RangeTaint:
		switch vb := tb.(type) {
		case encoding.SourceTaint:
			return d.rangeSourceCombine(la, va, lb)
		case encoding.RangeTaint:
			return d.rangeRangeCombine(la, va, lb, vb)
		case encoding.UnionTaint:
			return d.unionRangeCombine(lb, vb, la, va)
		}
	case encoding.UnionTaint:
		switch vb := tb.(type) {
		case encoding.SourceTaint:
			return d.unionSourceCombine(la, va, lb)
		case encoding.RangeTaint:
			return d.unionRangeCombine(la, va, lb, vb)
		case encoding.UnionTaint:
			return d.unionUnionCombine(la, va, lb, vb)
		}
	}
	return noResult()
}

// rangeSourceCombine implements Range+Source: if the source label falls
// inside the range, the range already denotes the union; if it abuts the
// range by exactly one, a new RangeTaint extended to cover it is forced;
// otherwise the pair promotes generically.
func (d *DAG) rangeSourceCombine(rangeLabel uint32, r encoding.RangeTaint, sourceLabel uint32) combineResult {
	if sourceLabel >= r.First && sourceLabel <= r.Last {
		return matchedResult(rangeLabel)
	}
	if sourceLabel+1 == r.First {
		return forcedResult(encoding.RangeTaint{First: sourceLabel, Last: r.Last})
	}
	if sourceLabel == r.Last+1 {
		return forcedResult(encoding.RangeTaint{First: r.First, Last: sourceLabel})
	}
	return noResult()
}

// rangeRangeCombine implements Range+Range: if one range encloses the
// other's bounds, the enclosing label already denotes the union; if the two
// ranges are adjacent (one's Last+1 == the other's First), a new RangeTaint
// spanning both is forced; otherwise promote.
func (d *DAG) rangeRangeCombine(la uint32, ra encoding.RangeTaint, lb uint32, rb encoding.RangeTaint) combineResult {
	if ra.First <= rb.First && ra.Last >= rb.Last {
		return matchedResult(la)
	}
	if rb.First <= ra.First && rb.Last >= ra.Last {
		return matchedResult(lb)
	}
	if ra.Last+1 == rb.First {
		return forcedResult(encoding.RangeTaint{First: ra.First, Last: rb.Last})
	}
	if rb.Last+1 == ra.First {
		return forcedResult(encoding.RangeTaint{First: rb.First, Last: ra.Last})
	}
	return noResult()
}

// unionSourceCombine implements Union+Source: if the union's tree already
// contains the source label, the union label already denotes the result;
// otherwise promote.
func (d *DAG) unionSourceCombine(unionLabel uint32, u encoding.UnionTaint, sourceLabel uint32) combineResult {
	if d.encloses(unionLabel, sourceLabel) {
		return matchedResult(unionLabel)
	}
	return noResult()
}

// unionRangeCombine implements Union+Range, mirroring union_range from the
// original C++ Visitor case for case: three enclosure directions (the
// range's interval covers the union's own label, the range's interval
// covers both of the union's children, or the union's direct children
// include the range's own label), then two content-adjacency branches
// (one of the union's children sits immediately beside the range and the
// other child is itself inside or abutting it) that fuse into a single
// extended RangeTaint, then two label-id-adjacency branches (the union's
// own label immediately abuts the range) that do the same using the
// union's label id as the new endpoint.
func (d *DAG) unionRangeCombine(unionLabel uint32, u encoding.UnionTaint, rangeLabel uint32, r encoding.RangeTaint) combineResult {
	if r.First <= unionLabel && unionLabel <= r.Last {
		return matchedResult(rangeLabel)
	}
	if r.First <= u.Lower && r.Last >= u.Higher {
		return matchedResult(rangeLabel)
	}
	if d.encloses(unionLabel, rangeLabel) {
		return matchedResult(unionLabel)
	}

	if u.Lower+1 == r.First {
		if r.First <= u.Higher && u.Higher <= r.Last {
			return forcedResult(encoding.RangeTaint{First: u.Lower, Last: r.Last})
		}
		if u.Higher == r.Last+1 {
			return forcedResult(encoding.RangeTaint{First: u.Lower, Last: u.Higher})
		}
	} else if u.Higher == r.Last+1 {
		if r.First <= u.Lower && u.Lower <= r.Last {
			return forcedResult(encoding.RangeTaint{First: r.First, Last: u.Higher})
		}
	}

	if unionLabel+1 == r.First {
		return forcedResult(encoding.RangeTaint{First: unionLabel, Last: r.Last})
	}
	if r.Last+1 == unionLabel {
		return forcedResult(encoding.RangeTaint{First: r.First, Last: unionLabel})
	}

	return noResult()
}

// unionUnionCombine implements Union+Union: if either union already
// encloses the other's label, the enclosing one denotes the result; if both
// unions share the same pair of children (in either order), either label
// denotes the result; otherwise promote.
func (d *DAG) unionUnionCombine(la uint32, ua encoding.UnionTaint, lb uint32, ub encoding.UnionTaint) combineResult {
	if d.encloses(la, lb) {
		return matchedResult(la)
	}
	if d.encloses(lb, la) {
		return matchedResult(lb)
	}
	samePair := (ua.Higher == ub.Higher && ua.Lower == ub.Lower) ||
		(ua.Higher == ub.Lower && ua.Lower == ub.Higher)
	if samePair {
		return matchedResult(la)
	}
	return noResult()
}

// encloses reports whether container's label directly contains target:
// container is a RangeTaint whose interval numerically covers target, or
// container is a UnionTaint whose direct Higher or Lower child equals
// target. It does not recurse into a UnionTaint's children, matching the
// original encloses(UnionTaint const&, label_t)'s shallow semantics.
func (d *DAG) encloses(container, target uint32) bool {
	w, ok := d.rawWord(container)
	if !ok {
		return false
	}
	if encoding.IsSourceTaint(w) {
		return false
	}
	t, err := encoding.Decode(w)
	if err != nil {
		return false
	}
	switch v := t.(type) {
	case encoding.RangeTaint:
		return target >= v.First && target <= v.Last
	case encoding.UnionTaint:
		return target == v.Higher || target == v.Lower
	default:
		return false
	}
}

// promote builds the generic fallback taint for two labels whose algebra
// found no existing enclosing label: adjacent label ids fuse into a
// RangeTaint, anything else becomes a UnionTaint.
func promote(l, r uint32) encoding.Taint {
	lo, hi := l, r
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == lo+1 {
		return encoding.RangeTaint{First: lo, Last: hi}
	}
	return encoding.UnionTaint{Higher: hi, Lower: lo}
}

// duplicateCheck scans stored words backwards from the most recently
// constructed label down to max(l, r), bounded additionally by
// redundantLabelRange slots, looking for one that already equals w (modulo
// its CF bit). The slot hi itself is included in the scan.
func (d *DAG) duplicateCheck(hi uint32, w encoding.StorageWord) (uint32, bool) {
	count := d.words.Count()
	lowerBound := hi
	if count > d.redundantLabelRange && count-d.redundantLabelRange > lowerBound {
		lowerBound = count - d.redundantLabelRange
	}
	for i := count; i > lowerBound; i-- {
		idx := i - 1
		word, ok := d.rawWord(idx)
		if ok && encoding.EqualIgnoreCF(word, w) {
			return idx, true
		}
	}
	return 0, false
}

// AffectsControlFlow marks label, and every label transitively reachable
// from it (through UnionTaint children or RangeTaint members), as affecting
// control flow. It walks an explicit FIFO queue rather than recursing, and
// each slot's CF bit is written at most once, so the store needs no CAS.
func (d *DAG) AffectsControlFlow(label uint32) error {
	if label == 0 {
		return nil
	}
	w, ok := d.rawWord(label)
	if !ok {
		return errors.NewLabelOutOfRangeError(label, "affects_control_flow")
	}
	if encoding.CheckAffectsControlFlow(w) {
		return nil
	}

	queue := []uint32{label}
	visited := map[uint32]bool{label: true}

	for len(queue) > 0 {
		l := queue[0]
		queue = queue[1:]

		lw, ok := d.rawWord(l)
		if !ok {
			continue
		}
		if encoding.CheckAffectsControlFlow(lw) {
			continue
		}
		d.words.Set(l, encoding.AddAffectsControlFlow(lw))

		if encoding.IsSourceTaint(lw) {
			continue
		}
		t, err := encoding.Decode(lw)
		if err != nil {
			return errors.NewCorruptEncodingError(l, lw)
		}
		switch v := t.(type) {
		case encoding.UnionTaint:
			enqueueIfUnvisited(&queue, visited, v.Higher)
			enqueueIfUnvisited(&queue, visited, v.Lower)
		case encoding.RangeTaint:
			for child := v.First; child <= v.Last; child++ {
				enqueueIfUnvisited(&queue, visited, child)
			}
		}
	}
	return nil
}

func enqueueIfUnvisited(queue *[]uint32, visited map[uint32]bool, label uint32) {
	if !visited[label] {
		visited[label] = true
		*queue = append(*queue, label)
	}
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
