package ir

import "fmt"

// InstID is the stable arena index of an instruction within its function.
type InstID int32

// NoInst is the invalid instruction ID.
const NoInst InstID = -1

// PredControl selects how predicate bits are combined across lanes.
type PredControl uint8

// Predicate controls. PredAny and PredAll evaluate over the whole execution
// width, so such instructions cannot be split.
const (
	PredSeq PredControl = iota
	PredAny
	PredAll
)

// Predicate enables lanes from the bits of a flag register. Lane i of an
// instruction reads bit SubReg*16 + MaskOffset + i.
type Predicate struct {
	Flag    *Declare
	SubReg  int
	Inverse bool
	Control PredControl
}

// Clone returns a copy of the predicate.
func (p *Predicate) Clone() *Predicate {
	if p == nil {
		return nil
	}

	c := *p
	return &c
}

// CondKind is the comparison a conditional modifier performs.
type CondKind uint8

// Conditional modifiers.
const (
	CondEq CondKind = iota
	CondNe
	CondGt
	CondGe
	CondLt
	CondLe
)

var condNames = [...]string{"eq", "ne", "gt", "ge", "lt", "le"}

func (c CondKind) String() string {
	return condNames[c]
}

// CondMod writes the comparison result of each lane into a flag bit, laid
// out the same way as Predicate bits.
type CondMod struct {
	Kind   CondKind
	Flag   *Declare
	SubReg int
}

// Clone returns a copy of the conditional modifier.
func (c *CondMod) Clone() *CondMod {
	if c == nil {
		return nil
	}

	cc := *c
	return &cc
}

// MsgDesc describes the payload and response of a send in register rows.
type MsgDesc struct {
	FuncID    uint32
	MsgLen    int
	ExtMsgLen int
	RespLen   int
}

// DpasInfo holds the systolic depth and repeat count of a dpas.
type DpasInfo struct {
	Depth  int
	Repeat int
}

// Inst is one SIMD instruction.
type Inst struct {
	ID         InstID
	Op         Opcode
	ExecSize   int
	Pred       *Predicate
	CondMod    *CondMod
	Sat        bool
	MaskOffset int
	NoMask     bool

	Dst  *Dst
	Srcs [3]*Src

	ImplAccSrc *Src
	ImplAccDst *Dst

	Msg     *MsgDesc
	Dpas    *DpasInfo
	BfnCtrl uint8
}

// NumSrcs returns the number of explicit sources of the instruction.
func (i *Inst) NumSrcs() int {
	return i.Op.NumSrcs()
}

// Src returns source n.
func (i *Inst) Src(n int) *Src {
	return i.Srcs[n]
}

// IsPredicated reports whether a predicate controls the instruction.
func (i *Inst) IsPredicated() bool {
	return i.Pred != nil
}

// ReadsAcc reports whether any operand of the instruction reads the
// accumulator.
func (i *Inst) ReadsAcc() bool {
	if i.ImplAccSrc != nil {
		return true
	}

	for n := 0; n < i.NumSrcs(); n++ {
		if i.Srcs[n].IsAcc() {
			return true
		}
	}

	return false
}

// WritesAcc reports whether the instruction writes the accumulator.
func (i *Inst) WritesAcc() bool {
	return i.ImplAccDst != nil || i.Dst.IsAcc()
}

// UsesAcc reports whether the instruction touches the accumulator at all.
func (i *Inst) UsesAcc() bool {
	return i.ReadsAcc() || i.WritesAcc()
}

// ExecTypeSize returns the byte width of the widest operand type.
func (i *Inst) ExecTypeSize() int {
	size := 0
	if i.Dst != nil && i.Dst.Kind != KindNull {
		size = i.Dst.Type.Size()
	}

	for n := 0; n < i.NumSrcs(); n++ {
		s := i.Srcs[n]
		if s == nil || s.Kind == KindAddrOf {
			continue
		}

		if s.Type.Size() > size {
			size = s.Type.Size()
		}
	}

	if size == 0 {
		size = 1
	}

	return size
}

// Clone returns a deep copy of the instruction without an ID.
func (i *Inst) Clone() *Inst {
	c := *i
	c.ID = NoInst
	c.Pred = i.Pred.Clone()
	c.CondMod = i.CondMod.Clone()
	c.Dst = i.Dst.Clone()

	for n := range c.Srcs {
		c.Srcs[n] = i.Srcs[n].Clone()
	}

	c.ImplAccSrc = i.ImplAccSrc.Clone()
	c.ImplAccDst = i.ImplAccDst.Clone()

	if i.Msg != nil {
		m := *i.Msg
		c.Msg = &m
	}

	if i.Dpas != nil {
		d := *i.Dpas
		c.Dpas = &d
	}

	return &c
}

// MustHaveSrcCount panics when the instruction does not carry exactly the
// sources its opcode requires.
func (i *Inst) MustHaveSrcCount() {
	for n := 0; n < 3; n++ {
		present := i.Srcs[n] != nil
		if present != (n < i.NumSrcs()) {
			panic(fmt.Sprintf("%s: expected %d sources", i.Op, i.NumSrcs()))
		}
	}
}
