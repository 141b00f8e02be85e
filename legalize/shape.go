package legalize

import (
	"fmt"

	"github.com/sarchlab/conform/ir"
)

// OperandShape is the byte range every lane of one operand touches. An
// operand without lanes places no constraint on splitting.
type OperandShape struct {
	Name   string
	Lanes  []ir.Span
	Region ir.Region
	IsDst  bool
}

// Shape is everything PlanSplit needs to know about an instruction.
type Shape struct {
	ExecSize    int
	MaskOffset  int
	RowBytes    int
	MaxExecSize int
	MinExecSize int
	Granularity int

	// AccLimit bounds the piece width by the accumulator channels; zero
	// when no accumulator is involved.
	AccLimit int

	// FreeOffsets is set for unpredicated NoMask instructions, whose
	// pieces may start at any lane.
	FreeOffsets bool

	// Unsplittable is set when the predicate combines bits over the whole
	// execution width.
	Unsplittable bool

	Operands []OperandShape
}

// PlanKind classifies the outcome of PlanSplit.
type PlanKind uint8

// Plan kinds.
const (
	Fits PlanKind = iota
	NeedsEvenSplit
	NeedsGeneralSplit
	NeedsCompensationMove
)

func (k PlanKind) String() string {
	switch k {
	case Fits:
		return "fits"
	case NeedsEvenSplit:
		return "even-split"
	case NeedsGeneralSplit:
		return "general-split"
	case NeedsCompensationMove:
		return "compensation-move"
	}

	return fmt.Sprintf("plan(%d)", k)
}

// Plan is the split decision for one instruction. Widths lists the piece
// sizes in lane order. Blockers names the operands that keep a legal split
// from existing.
type Plan struct {
	Kind     PlanKind
	Widths   []int
	Blockers []string
}

// PlanSplit decides how to cut an instruction into pieces that each satisfy
// the register-crossing, width and mask-offset rules.
func PlanSplit(s Shape) Plan {
	if s.legal(0, s.ExecSize) {
		return Plan{Kind: Fits, Widths: []int{s.ExecSize}}
	}

	if s.Unsplittable {
		return Plan{Kind: NeedsCompensationMove, Blockers: s.blockers(s.ExecSize)}
	}

	var widths []int
	for start := 0; start < s.ExecSize; {
		w := s.widest(start)
		if w == 0 {
			return Plan{Kind: NeedsCompensationMove, Blockers: s.blockers(s.natural())}
		}

		widths = append(widths, w)
		start += w
	}

	kind := NeedsEvenSplit
	for _, w := range widths {
		if w != widths[0] {
			kind = NeedsGeneralSplit
		}
	}

	return Plan{Kind: kind, Widths: widths}
}

// widest returns the largest legal power-of-two piece starting at start, or
// zero.
func (s Shape) widest(start int) int {
	w := 1
	for w*2 <= s.ExecSize-start {
		w *= 2
	}

	for ; w >= 1; w /= 2 {
		if s.legal(start, w) {
			return w
		}
	}

	return 0
}

// natural is the piece width a split would use if no operand were in the
// way.
func (s Shape) natural() int {
	limit := min(s.ExecSize, s.MaxExecSize)
	if s.AccLimit > 0 {
		limit = min(limit, s.AccLimit)
	}

	w := 1
	for w*2 <= limit {
		w *= 2
	}

	return w
}

func (s Shape) blockers(width int) []string {
	var names []string
	for _, op := range s.Operands {
		for start := 0; start < s.ExecSize; start += width {
			if !op.legal(start, width, s.RowBytes) {
				names = append(names, op.Name)
				break
			}
		}
	}

	return names
}

func (s Shape) legal(start, w int) bool {
	if w > s.MaxExecSize || w < min(s.MinExecSize, s.ExecSize) {
		return false
	}

	if s.AccLimit > 0 && w > s.AccLimit {
		return false
	}

	if start != 0 && !s.FreeOffsets && (s.MaskOffset+start)%s.Granularity != 0 {
		return false
	}

	for _, op := range s.Operands {
		if !op.legal(start, w, s.RowBytes) {
			return false
		}
	}

	return true
}

// legal reports whether lanes [start, start+w) of the operand can be
// encoded as one operand: expressible as a region, no element straddling a
// row, every width group within one row, and at most two rows split evenly
// between the two halves of the piece.
func (op OperandShape) legal(start, w, rowBytes int) bool {
	if len(op.Lanes) == 0 {
		return true
	}

	r := op.Region
	if !op.IsDst && w > 1 && !r.IsScalar() && r.W > 0 {
		inside := start%r.W+w <= r.W
		whole := start%r.W == 0 && w%r.W == 0
		if !inside && !whole {
			return false
		}
	}

	rowOf := func(lane int) int {
		return op.Lanes[lane].Lo / rowBytes
	}

	for i := start; i < start+w; i++ {
		span := op.Lanes[i]
		if span.Lo/rowBytes != (span.Hi-1)/rowBytes {
			return false
		}

		if !op.IsDst && r.W > 0 && !r.IsScalar() && i > start && i%r.W != 0 && rowOf(i) != rowOf(i-1) {
			return false
		}
	}

	first, last := rowOf(start), rowOf(start+w-1)
	switch {
	case first == last:
		return true
	case w%2 != 0:
		return false
	}

	half := start + w/2
	for i := start; i < start+w; i++ {
		want := first
		if i >= half {
			want = first + 1
		}

		if rowOf(i) != want {
			return false
		}
	}

	return last == first+1
}
