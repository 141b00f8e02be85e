package legalize

import (
	"github.com/x448/float16"

	"github.com/sarchlab/conform/ir"
)

// ternaryImm returns s as an immediate the three-source encoding can carry,
// which holds at most 16 bits.
func ternaryImm(s *ir.Src) (*ir.Src, bool) {
	switch s.Type {
	case ir.TypeHF, ir.TypeW, ir.TypeUW:
		return s, true
	case ir.TypeF:
		v := s.ImmFloat64()
		h := float16.Fromfloat32(float32(v))
		if float64(h.Float32()) != v {
			return nil, false
		}
		return ir.Imm(ir.TypeHF, uint64(h.Bits())), true
	case ir.TypeD, ir.TypeUD, ir.TypeB, ir.TypeUB:
		v := s.ImmInt64()
		switch {
		case v >= -1<<15 && v < 1<<15:
			return ir.ImmInt(ir.TypeW, v), true
		case v >= 0 && v < 1<<16:
			return ir.ImmInt(ir.TypeUW, v), true
		}
	}

	return nil, false
}

// madInPlace returns the native operand order of a float pseudo_mad when it
// can be encoded directly: the addend and the first factor trade places, and
// the factors swap when src1 would otherwise be an immediate.
func (c *fixCtx) madInPlace(inst *ir.Inst) ([3]*ir.Src, bool) {
	var none [3]*ir.Src

	if !c.p.HasAlign1Ternary() || !allFloat(inst) {
		return none, false
	}

	a, b, addend := inst.Srcs[1], inst.Srcs[0], inst.Srcs[2]
	if a.IsImm() {
		a, b = b, a
	}

	if a.IsImm() {
		return none, false
	}

	for _, s := range []*ir.Src{a, b, addend} {
		if s.IsReg() && s.Access == ir.AccessIndirect {
			return none, false
		}
	}

	if b.IsReg() && !b.Region.IsScalar() && !contiguous(b, inst.ExecSize) {
		return none, false
	}

	if b.IsImm() {
		imm, ok := ternaryImm(b)
		if !ok {
			return none, false
		}
		b = imm
	}

	if addend.IsImm() {
		imm, ok := ternaryImm(addend)
		if !ok {
			return none, false
		}
		addend = imm
	}

	d := inst.Dst
	if d.IsReg() && inst.ExecSize > 1 && d.H != 1 {
		return none, false
	}

	if directGRFDst(d) && !d.Base.TryAlign(d.ByteOffset(c.row()), 16, c.row()) {
		return none, false
	}

	return [3]*ir.Src{addend.Clone(), a.Clone(), b.Clone()}, true
}

func allFloat(inst *ir.Inst) bool {
	if inst.Dst.IsReg() && !inst.Dst.Type.IsFloat() {
		return false
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if !inst.Srcs[n].Type.IsFloat() {
			return false
		}
	}

	return true
}

// fixMad lowers pseudo_mad to the native mad operand order, or to a
// multiply into a temporary followed by an add.
func fixMad(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op != ir.OpPseudoMad {
		return unchanged()
	}

	if srcs, ok := c.madInPlace(inst); ok {
		c.modify(id, func(inst *ir.Inst) {
			inst.Op = ir.OpMad
			inst.Srcs = srcs
		})

		return replaced(id)
	}

	if inst.Sat && !isFloatOp(inst) &&
		(inst.Srcs[0].Type.Size() >= 4 || inst.Srcs[1].Type.Size() >= 4) {
		c.fatal(id, "saturating integer pseudo_mad of 32-bit sources")
	}

	t := madTempType(inst)
	tmpDst, tmpSrc := c.tempOperands(t, inst.ExecSize, 1, 0)

	mul := c.f.NewInst(ir.OpMul, inst.ExecSize, tmpDst, inst.Srcs[0].Clone(), inst.Srcs[1].Clone())
	mul.NoMask = inst.NoMask
	mul.MaskOffset = inst.MaskOffset

	add := inst.Clone()
	add.Op = ir.OpAdd
	add.Srcs = [3]*ir.Src{tmpSrc, inst.Srcs[2].Clone(), nil}

	return replaced(c.replace(id, mul, add)...)
}

// madTempType holds the product at the precision the instruction computes
// in.
func madTempType(inst *ir.Inst) ir.Type {
	if isFloatOp(inst) {
		for n := 0; n < 3; n++ {
			if inst.Srcs[n].Type == ir.TypeDF {
				return ir.TypeDF
			}
		}
		if inst.Dst.Type == ir.TypeDF {
			return ir.TypeDF
		}

		return ir.TypeF
	}

	return ir.IntType(max(inst.Dst.Type.Size(), 4), inst.Dst.Type.IsSigned())
}
