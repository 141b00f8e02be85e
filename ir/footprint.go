package ir

import (
	"slices"
)

// Span is a half-open range of storage units: bytes, or bits for flags.
type Span struct {
	Lo, Hi int
}

// Footprint is the storage an operand touches within one root declare.
type Footprint struct {
	Root  *Declare
	Spans []Span
}

// Empty reports whether the footprint touches nothing.
func (fp Footprint) Empty() bool {
	return fp.Root == nil || len(fp.Spans) == 0
}

// Overlaps reports whether the two footprints share storage.
func (fp Footprint) Overlaps(other Footprint) bool {
	if fp.Empty() || other.Empty() || fp.Root != other.Root {
		return false
	}

	i, j := 0, 0
	for i < len(fp.Spans) && j < len(other.Spans) {
		a, b := fp.Spans[i], other.Spans[j]
		if a.Lo < b.Hi && b.Lo < a.Hi {
			return true
		}

		if a.Hi <= b.Hi {
			i++
		} else {
			j++
		}
	}

	return false
}

// Subtract returns the part of fp not covered by other.
func (fp Footprint) Subtract(other Footprint) Footprint {
	if fp.Empty() || other.Empty() || fp.Root != other.Root {
		return fp
	}

	out := Footprint{Root: fp.Root}
	for _, s := range fp.Spans {
		rest := []Span{s}
		for _, o := range other.Spans {
			var next []Span
			for _, r := range rest {
				if o.Hi <= r.Lo || o.Lo >= r.Hi {
					next = append(next, r)
					continue
				}

				if r.Lo < o.Lo {
					next = append(next, Span{r.Lo, o.Lo})
				}

				if o.Hi < r.Hi {
					next = append(next, Span{o.Hi, r.Hi})
				}
			}
			rest = next
		}
		out.Spans = append(out.Spans, rest...)
	}

	return out
}

// Bounds returns the lowest and one-past-highest unit touched.
func (fp Footprint) Bounds() (int, int) {
	if fp.Empty() {
		return 0, 0
	}

	return fp.Spans[0].Lo, fp.Spans[len(fp.Spans)-1].Hi
}

func newFootprint(root *Declare, spans []Span) Footprint {
	if len(spans) == 0 {
		return Footprint{}
	}

	slices.SortFunc(spans, func(a, b Span) int { return a.Lo - b.Lo })

	merged := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Lo <= last.Hi {
			if s.Hi > last.Hi {
				last.Hi = s.Hi
			}
			continue
		}
		merged = append(merged, s)
	}

	return Footprint{Root: root, Spans: merged}
}

// SrcFootprint returns the storage a direct source reads over execSize
// lanes. Indirect sources report nothing here; see AddrFootprint.
func SrcFootprint(s *Src, execSize, rowBytes int) Footprint {
	if !s.IsDirect() {
		return Footprint{}
	}

	root := s.Base.Root()
	base := s.ByteOffset(rowBytes)

	if root.File == RegFileAcc {
		return newFootprint(root, []Span{{base, base + execSize*AccSlotBytes}})
	}

	size := s.Type.Size()
	spans := make([]Span, 0, execSize)
	for i := 0; i < execSize; i++ {
		lo := base + s.Region.ElemOffset(i)*size
		spans = append(spans, Span{lo, lo + size})
	}

	return newFootprint(root, spans)
}

// DstFootprint returns the storage a direct destination writes.
func DstFootprint(d *Dst, execSize, rowBytes int) Footprint {
	if !d.IsDirect() {
		return Footprint{}
	}

	root := d.Base.Root()
	base := d.ByteOffset(rowBytes)

	if root.File == RegFileAcc {
		return newFootprint(root, []Span{{base, base + execSize*AccSlotBytes}})
	}

	size := d.Type.Size()
	h := d.H
	if execSize == 1 {
		h = 0
	}

	spans := make([]Span, 0, execSize)
	for i := 0; i < execSize; i++ {
		lo := base + i*h*size
		spans = append(spans, Span{lo, lo + size})
	}

	return newFootprint(root, spans)
}

// RowsFootprint returns n whole rows starting at the operand's offset.
func RowsFootprint(base *Declare, off, rows, rowBytes int) Footprint {
	if base == nil || rows == 0 {
		return Footprint{}
	}

	return newFootprint(base.Root(), []Span{{off, off + rows*rowBytes}})
}

// AddrFootprint returns the address register slots an indirect operand
// reads.
func AddrFootprint(base *Declare, sub, slots int) Footprint {
	if base == nil {
		return Footprint{}
	}

	lo := base.RootOffset() + sub*2
	return newFootprint(base.Root(), []Span{{lo, lo + slots*2}})
}

// FlagFootprint returns the flag bits a predicate or conditional modifier
// touches.
func FlagFootprint(flag *Declare, subReg, maskOffset, execSize int) Footprint {
	if flag == nil {
		return Footprint{}
	}

	lo := flag.RootOffset()*8 + subReg*16 + maskOffset
	return newFootprint(flag.Root(), []Span{{lo, lo + execSize}})
}

// OpndPos names the operand slot a def-use edge lands on.
type OpndPos uint8

// Operand slots.
const (
	PosSrc0 OpndPos = iota
	PosSrc1
	PosSrc2
	PosPred
	PosAccSrc
	PosAddr
)

func (p OpndPos) String() string {
	switch p {
	case PosSrc0:
		return "src0"
	case PosSrc1:
		return "src1"
	case PosSrc2:
		return "src2"
	case PosPred:
		return "pred"
	case PosAccSrc:
		return "acc"
	case PosAddr:
		return "addr"
	}

	return "?"
}

// Read is one footprint an instruction reads, tagged with its slot.
type Read struct {
	Pos OpndPos
	FP  Footprint
}

// Reads lists everything inst reads.
func Reads(inst *Inst, rowBytes int) []Read {
	var reads []Read

	for n := 0; n < inst.NumSrcs(); n++ {
		s := inst.Srcs[n]
		if s == nil || s.Kind != KindReg {
			continue
		}

		pos := OpndPos(n)
		if s.Access == AccessIndirect {
			reads = append(reads, Read{PosAddr, AddrFootprint(s.Base, s.SubRegOff, addrSlots(s, inst.ExecSize))})
			continue
		}

		reads = append(reads, Read{pos, srcFootprintOf(inst, n, rowBytes)})
	}

	if inst.Dst.IsReg() && inst.Dst.Access == AccessIndirect {
		reads = append(reads, Read{PosAddr, AddrFootprint(inst.Dst.Base, inst.Dst.SubRegOff, 1)})
	}

	if inst.ImplAccSrc != nil {
		reads = append(reads, Read{PosAccSrc, SrcFootprint(inst.ImplAccSrc, inst.ExecSize, rowBytes)})
	}

	if inst.Pred != nil {
		reads = append(reads, Read{PosPred, FlagFootprint(inst.Pred.Flag, inst.Pred.SubReg, inst.MaskOffset, inst.ExecSize)})
	}

	return reads
}

// Writes lists everything inst writes.
func Writes(inst *Inst, rowBytes int) []Footprint {
	var writes []Footprint

	if inst.Dst.IsDirect() {
		writes = append(writes, dstFootprintOf(inst, rowBytes))
	}

	if inst.ImplAccDst != nil {
		writes = append(writes, DstFootprint(inst.ImplAccDst, inst.ExecSize, rowBytes))
	}

	if inst.CondMod != nil {
		writes = append(writes, FlagFootprint(inst.CondMod.Flag, inst.CondMod.SubReg, inst.MaskOffset, inst.ExecSize))
	}

	return writes
}

func addrSlots(s *Src, execSize int) int {
	if s.Region.VxH && s.Region.W > 0 {
		return (execSize + s.Region.W - 1) / s.Region.W
	}

	return 1
}

func srcFootprintOf(inst *Inst, n, rowBytes int) Footprint {
	s := inst.Srcs[n]

	switch inst.Op {
	case OpSend:
		rows := inst.Msg.MsgLen
		if n == 1 {
			rows = inst.Msg.ExtMsgLen
		}
		return RowsFootprint(s.Base, s.ByteOffset(rowBytes), rows, rowBytes)
	case OpDpas:
		elems := inst.Dpas.Repeat * inst.ExecSize
		switch n {
		case 1:
			elems = inst.Dpas.Depth * inst.ExecSize
		case 2:
			elems = inst.Dpas.Repeat * inst.Dpas.Depth
		}
		off := s.ByteOffset(rowBytes)
		return newFootprint(s.Base.Root(), []Span{{off, off + elems*s.Type.Size()}})
	}

	return SrcFootprint(s, inst.ExecSize, rowBytes)
}

func dstFootprintOf(inst *Inst, rowBytes int) Footprint {
	d := inst.Dst

	switch inst.Op {
	case OpSend:
		return RowsFootprint(d.Base, d.ByteOffset(rowBytes), inst.Msg.RespLen, rowBytes)
	case OpDpas:
		off := d.ByteOffset(rowBytes)
		n := inst.Dpas.Repeat * inst.ExecSize * d.Type.Size()
		return newFootprint(d.Base.Root(), []Span{{off, off + n}})
	case OpMadw:
		lo := DstFootprint(d, inst.ExecSize, rowBytes)
		hi := DstFootprint(MadwHi(d, inst.ExecSize, rowBytes), inst.ExecSize, rowBytes)
		return newFootprint(lo.Root, append(slices.Clone(lo.Spans), hi.Spans...))
	}

	return DstFootprint(d, inst.ExecSize, rowBytes)
}

// MadwHi returns the destination of the high halves of a madw: the rows
// following the low halves.
func MadwHi(d *Dst, execSize, rowBytes int) *Dst {
	hi := d.Clone()
	loBytes := execSize * d.Type.Size() * max(d.H, 1)
	rows := (loBytes + rowBytes - 1) / rowBytes
	hi.RegOff += rows

	return hi
}
