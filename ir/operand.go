package ir

import (
	"fmt"
	"math"

	"github.com/x448/float16"
)

// OperandKind separates register operands from immediates and the like.
type OperandKind uint8

// Operand kinds.
const (
	KindReg OperandKind = iota
	KindImm
	KindAddrOf
	KindNull
)

// Access is the addressing mode of a register operand.
type Access uint8

// Addressing modes.
const (
	AccessDirect Access = iota
	AccessIndirect
)

// Modifier is a source modifier.
type Modifier uint8

// Source modifiers.
const (
	ModNone Modifier = iota
	ModNeg
	ModAbs
	ModNegAbs
)

func (m Modifier) String() string {
	switch m {
	case ModNeg:
		return "-"
	case ModAbs:
		return "(abs)"
	case ModNegAbs:
		return "-(abs)"
	}

	return ""
}

// Region is the <V;W,H> access pattern of a source. When VxH is set the
// operand is indirect and every width group takes its own address register.
type Region struct {
	V, W, H int
	VxH     bool
}

// Scalar is the <0;1,0> region.
var Scalar = Region{V: 0, W: 1, H: 0}

// Contiguous returns the packed region for the given execution size.
func Contiguous(execSize int) Region {
	return Strided(execSize, 1)
}

// Strided returns a flat region with uniform element stride s.
func Strided(execSize, s int) Region {
	if execSize == 1 {
		return Scalar
	}

	w := execSize
	if w > 16 {
		w = 16
	}

	return Region{V: w * s, W: w, H: s}
}

// IsScalar reports whether every lane reads the same element.
func (r Region) IsScalar() bool {
	return !r.VxH && r.V == 0 && r.H == 0
}

// ElemOffset returns the element offset read by lane i.
func (r Region) ElemOffset(i int) int {
	if r.W <= 0 {
		return 0
	}

	return (i/r.W)*r.V + (i%r.W)*r.H
}

// UniformStride returns the element stride between consecutive lanes when
// the region reads with a single stride.
func (r Region) UniformStride(execSize int) (int, bool) {
	if r.VxH {
		return 0, false
	}

	if execSize == 1 || r.IsScalar() {
		return 0, true
	}

	if r.W == 1 {
		return r.V, true
	}

	if r.W >= execSize || r.V == r.W*r.H {
		return r.H, true
	}

	return 0, false
}

func (r Region) String() string {
	if r.VxH {
		return fmt.Sprintf("<%d,%d>", r.W, r.H)
	}

	return fmt.Sprintf("<%d;%d,%d>", r.V, r.W, r.H)
}

// Src is a source operand.
type Src struct {
	Kind OperandKind

	// Base is the declare read for direct access, the address register for
	// indirect access and the target for an address-of operand.
	Base      *Declare
	RegOff    int
	SubRegOff int
	Type      Type
	Region    Region
	Access    Access
	AddrImm   int
	Mod       Modifier

	Imm uint64
}

// Dst is a destination operand.
type Dst struct {
	Kind      OperandKind
	Base      *Declare
	RegOff    int
	SubRegOff int
	Type      Type
	H         int
	Access    Access
	AddrImm   int
}

// SrcOf returns a direct source reading d from element elem.
func SrcOf(d *Declare, elem int, r Region) *Src {
	return SrcTyped(d, d.Type, elem, r)
}

// SrcTyped returns a direct source viewing d as type t.
func SrcTyped(d *Declare, t Type, elem int, r Region) *Src {
	return &Src{Kind: KindReg, Base: d, SubRegOff: elem, Type: t, Region: r}
}

// DstOf returns a direct destination writing d from element elem.
func DstOf(d *Declare, elem, h int) *Dst {
	return DstTyped(d, d.Type, elem, h)
}

// DstTyped returns a direct destination viewing d as type t.
func DstTyped(d *Declare, t Type, elem, h int) *Dst {
	return &Dst{Kind: KindReg, Base: d, SubRegOff: elem, Type: t, H: h}
}

// NullDst returns a destination that discards the result.
func NullDst(t Type) *Dst {
	return &Dst{Kind: KindNull, Type: t, H: 1}
}

// NullSrc returns an absent source, such as the missing extended payload
// of a send.
func NullSrc(t Type) *Src {
	return &Src{Kind: KindNull, Type: t, Region: Scalar}
}

// Indirect returns a source read through address register addr.
func Indirect(addr *Declare, sub, imm int, t Type, r Region) *Src {
	return &Src{
		Kind:      KindReg,
		Base:      addr,
		SubRegOff: sub,
		Type:      t,
		Region:    r,
		Access:    AccessIndirect,
		AddrImm:   imm,
	}
}

// IndirectDst returns a destination written through address register addr.
func IndirectDst(addr *Declare, sub, imm int, t Type, h int) *Dst {
	return &Dst{
		Kind:      KindReg,
		Base:      addr,
		SubRegOff: sub,
		Type:      t,
		H:         h,
		Access:    AccessIndirect,
		AddrImm:   imm,
	}
}

// AddrOf returns the address of target plus a byte offset.
func AddrOf(target *Declare, off int) *Src {
	return &Src{Kind: KindAddrOf, Base: target, Type: TypeUW, AddrImm: off, Region: Scalar}
}

// Imm returns an immediate with raw bits v.
func Imm(t Type, v uint64) *Src {
	return &Src{Kind: KindImm, Type: t, Imm: v & typeMask(t), Region: Scalar}
}

// ImmInt returns an integer immediate.
func ImmInt(t Type, v int64) *Src {
	return Imm(t, uint64(v))
}

// ImmFloat returns a float immediate rounded to t.
func ImmFloat(t Type, v float64) *Src {
	switch t {
	case TypeHF:
		return Imm(t, uint64(float16.Fromfloat32(float32(v)).Bits()))
	case TypeF:
		return Imm(t, uint64(math.Float32bits(float32(v))))
	case TypeDF:
		return Imm(t, math.Float64bits(v))
	}

	panic(fmt.Sprintf("not a float immediate type: %s", t))
}

func typeMask(t Type) uint64 {
	if t.Size() >= 8 {
		return math.MaxUint64
	}

	return (uint64(1) << (8 * t.Size())) - 1
}

// IsReg reports whether the source is a register read.
func (s *Src) IsReg() bool {
	return s != nil && s.Kind == KindReg
}

// IsDirect reports whether the source is a direct register read.
func (s *Src) IsDirect() bool {
	return s.IsReg() && s.Access == AccessDirect
}

// IsImm reports whether the source is an immediate.
func (s *Src) IsImm() bool {
	return s != nil && s.Kind == KindImm
}

// IsAcc reports whether the source reads the accumulator.
func (s *Src) IsAcc() bool {
	return s.IsDirect() && s.Base.Root().File == RegFileAcc
}

// ImmInt64 returns the immediate sign- or zero-extended per its type.
func (s *Src) ImmInt64() int64 {
	bits := s.Type.Size() * 8
	if bits >= 64 {
		return int64(s.Imm)
	}

	if s.Type.IsSigned() {
		shift := 64 - bits
		return int64(s.Imm<<shift) >> shift
	}

	return int64(s.Imm)
}

// ImmFloat64 returns the value of a float immediate.
func (s *Src) ImmFloat64() float64 {
	switch s.Type {
	case TypeHF:
		return float64(float16.Frombits(uint16(s.Imm)).Float32())
	case TypeBF:
		return float64(math.Float32frombits(uint32(s.Imm) << 16))
	case TypeF:
		return float64(math.Float32frombits(uint32(s.Imm)))
	case TypeDF:
		return math.Float64frombits(s.Imm)
	}

	return float64(s.ImmInt64())
}

// ByteOffset returns the offset of element 0 within the root declare.
func (s *Src) ByteOffset(rowBytes int) int {
	return operandOffset(s.Base, s.RegOff, s.SubRegOff, s.Type, rowBytes)
}

// Clone returns a copy of the source.
func (s *Src) Clone() *Src {
	if s == nil {
		return nil
	}

	c := *s
	return &c
}

// IsReg reports whether the destination writes a register.
func (d *Dst) IsReg() bool {
	return d != nil && d.Kind == KindReg
}

// IsDirect reports whether the destination is a direct register write.
func (d *Dst) IsDirect() bool {
	return d.IsReg() && d.Access == AccessDirect
}

// IsAcc reports whether the destination writes the accumulator.
func (d *Dst) IsAcc() bool {
	return d.IsDirect() && d.Base.Root().File == RegFileAcc
}

// ByteOffset returns the offset of element 0 within the root declare.
func (d *Dst) ByteOffset(rowBytes int) int {
	return operandOffset(d.Base, d.RegOff, d.SubRegOff, d.Type, rowBytes)
}

// Clone returns a copy of the destination.
func (d *Dst) Clone() *Dst {
	if d == nil {
		return nil
	}

	c := *d
	return &c
}

// AsSrc returns a source reading what the destination writes over execSize
// lanes.
func (d *Dst) AsSrc(execSize int) *Src {
	return &Src{
		Kind:      KindReg,
		Base:      d.Base,
		RegOff:    d.RegOff,
		SubRegOff: d.SubRegOff,
		Type:      d.Type,
		Region:    Strided(execSize, d.H),
	}
}

// SameLocation reports whether the source reads exactly the elements the
// destination writes, lane for lane.
func (d *Dst) SameLocation(s *Src, execSize, rowBytes int) bool {
	if !d.IsDirect() || !s.IsDirect() || d.Base.Root() != s.Base.Root() {
		return false
	}

	if d.Type.Size() != s.Type.Size() ||
		d.ByteOffset(rowBytes) != s.ByteOffset(rowBytes) {
		return false
	}

	stride, ok := s.Region.UniformStride(execSize)
	return ok && (execSize == 1 || stride == d.H)
}

func operandOffset(base *Declare, regOff, subRegOff int, t Type, rowBytes int) int {
	if base == nil {
		return 0
	}

	elem := t.Size()
	if base.Root().File == RegFileAcc {
		elem = AccSlotBytes
	}

	return base.RootOffset() + regOff*rowBytes + subRegOff*elem
}
