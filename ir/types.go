// Package ir defines the mid-level SIMD instruction representation that the
// legalizer rewrites.
package ir

import "fmt"

// Type is the element type of an operand.
type Type uint8

// The supported element types.
const (
	TypeUndef Type = iota
	TypeUB
	TypeB
	TypeUW
	TypeW
	TypeUD
	TypeD
	TypeUQ
	TypeQ
	TypeHF
	TypeBF
	TypeF
	TypeDF
	numTypes
)

type typeInfo struct {
	name   string
	size   int
	signed bool
	float  bool
}

var typeInfos = [numTypes]typeInfo{
	TypeUndef: {"undef", 0, false, false},
	TypeUB:    {"ub", 1, false, false},
	TypeB:     {"b", 1, true, false},
	TypeUW:    {"uw", 2, false, false},
	TypeW:     {"w", 2, true, false},
	TypeUD:    {"ud", 4, false, false},
	TypeD:     {"d", 4, true, false},
	TypeUQ:    {"uq", 8, false, false},
	TypeQ:     {"q", 8, true, false},
	TypeHF:    {"hf", 2, true, true},
	TypeBF:    {"bf", 2, true, true},
	TypeF:     {"f", 4, true, true},
	TypeDF:    {"df", 8, true, true},
}

// Size returns the byte width of the type.
func (t Type) Size() int {
	return typeInfos[t].size
}

// IsInt reports whether the type is an integer type.
func (t Type) IsInt() bool {
	return t != TypeUndef && !typeInfos[t].float
}

// IsSigned reports whether the type is signed. All float types are signed.
func (t Type) IsSigned() bool {
	return typeInfos[t].signed
}

// IsFloat reports whether the type is a floating point type.
func (t Type) IsFloat() bool {
	return typeInfos[t].float
}

// IsLowPrecisionFloat reports whether the type is HF or BF.
func (t Type) IsLowPrecisionFloat() bool {
	return t == TypeHF || t == TypeBF
}

// Unsigned returns the unsigned integer type of the same width.
func (t Type) Unsigned() Type {
	if !t.IsInt() {
		return t
	}

	return IntType(t.Size(), false)
}

func (t Type) String() string {
	if int(t) >= len(typeInfos) {
		return fmt.Sprintf("type(%d)", t)
	}

	return typeInfos[t].name
}

// IntType returns the integer type of the given byte width.
func IntType(size int, signed bool) Type {
	switch size {
	case 1:
		if signed {
			return TypeB
		}
		return TypeUB
	case 2:
		if signed {
			return TypeW
		}
		return TypeUW
	case 4:
		if signed {
			return TypeD
		}
		return TypeUD
	case 8:
		if signed {
			return TypeQ
		}
		return TypeUQ
	}

	panic(fmt.Sprintf("no integer type of size %d", size))
}

// Opcode identifies the operation an instruction performs.
type Opcode uint8

// The opcodes known to the legalizer. PseudoMad and PseudoSada2 are the
// generic forms produced upstream; Mad and Sada2 are their native encodings.
const (
	OpNop Opcode = iota
	OpMov
	OpSel
	OpNot
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpAsr
	OpAdd
	OpMul
	OpMulh
	OpMach
	OpPseudoMad
	OpMad
	OpMadw
	OpAddc
	OpSubb
	OpSad2
	OpSada2
	OpPseudoSada2
	OpBfn
	OpCmp
	OpDp4
	OpLine
	OpSend
	OpDpas
	numOpcodes
)

type opcodeInfo struct {
	name        string
	numSrcs     int
	minExecSize int
	commutative bool
	accSrc      bool
	accDst      bool
	arith       bool
}

var opcodeInfos = [numOpcodes]opcodeInfo{
	OpNop:         {name: "nop"},
	OpMov:         {name: "mov", numSrcs: 1, arith: true},
	OpSel:         {name: "sel", numSrcs: 2, arith: true},
	OpNot:         {name: "not", numSrcs: 1},
	OpAnd:         {name: "and", numSrcs: 2, commutative: true},
	OpOr:          {name: "or", numSrcs: 2, commutative: true},
	OpXor:         {name: "xor", numSrcs: 2, commutative: true},
	OpShl:         {name: "shl", numSrcs: 2},
	OpShr:         {name: "shr", numSrcs: 2},
	OpAsr:         {name: "asr", numSrcs: 2},
	OpAdd:         {name: "add", numSrcs: 2, commutative: true, arith: true},
	OpMul:         {name: "mul", numSrcs: 2, commutative: true, arith: true},
	OpMulh:        {name: "mulh", numSrcs: 2, commutative: true, arith: true},
	OpMach:        {name: "mach", numSrcs: 2, accSrc: true, accDst: true},
	OpPseudoMad:   {name: "pseudo_mad", numSrcs: 3, arith: true},
	OpMad:         {name: "mad", numSrcs: 3, arith: true},
	OpMadw:        {name: "madw", numSrcs: 3},
	OpAddc:        {name: "addc", numSrcs: 2, accDst: true},
	OpSubb:        {name: "subb", numSrcs: 2, accDst: true},
	OpSad2:        {name: "sad2", numSrcs: 2, minExecSize: 2},
	OpSada2:       {name: "sada2", numSrcs: 2, minExecSize: 2, accSrc: true},
	OpPseudoSada2: {name: "pseudo_sada2", numSrcs: 3, minExecSize: 2},
	OpBfn:         {name: "bfn", numSrcs: 3},
	OpCmp:         {name: "cmp", numSrcs: 2, arith: true},
	OpDp4:         {name: "dp4", numSrcs: 2, minExecSize: 4, arith: true},
	OpLine:        {name: "line", numSrcs: 2, minExecSize: 8, arith: true},
	OpSend:        {name: "send", numSrcs: 2},
	OpDpas:        {name: "dpas", numSrcs: 3},
}

func (o Opcode) String() string {
	if int(o) >= len(opcodeInfos) {
		return fmt.Sprintf("op(%d)", o)
	}

	return opcodeInfos[o].name
}

// NumSrcs returns the number of explicit source operands of the opcode.
func (o Opcode) NumSrcs() int {
	return opcodeInfos[o].numSrcs
}

// MinExecSize returns the smallest lane group the opcode can be split into.
func (o Opcode) MinExecSize() int {
	if m := opcodeInfos[o].minExecSize; m > 0 {
		return m
	}

	return 1
}

// IsCommutative reports whether src0 and src1 may be swapped.
func (o Opcode) IsCommutative() bool {
	return opcodeInfos[o].commutative
}

// ReadsImplicitAcc reports whether the opcode reads the accumulator implicitly.
func (o Opcode) ReadsImplicitAcc() bool {
	return opcodeInfos[o].accSrc
}

// WritesImplicitAcc reports whether the opcode writes the accumulator
// implicitly.
func (o Opcode) WritesImplicitAcc() bool {
	return opcodeInfos[o].accDst
}

// AllowsSrcModifiers reports whether source modifiers are encodable.
func (o Opcode) AllowsSrcModifiers() bool {
	return opcodeInfos[o].arith
}

// IsTernary reports whether the opcode is encoded in the three-source format.
func (o Opcode) IsTernary() bool {
	return o.NumSrcs() == 3 && o != OpPseudoMad && o != OpPseudoSada2 &&
		o != OpMadw && o != OpDpas
}

// ParseOpcode finds an opcode by name.
func ParseOpcode(name string) (Opcode, error) {
	for i, info := range opcodeInfos {
		if info.name == name {
			return Opcode(i), nil
		}
	}

	return OpNop, fmt.Errorf("unknown opcode %q", name)
}
