package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// intToHF reports whether inst converts a register integer straight to
// half float on a platform that cannot.
func (c *fixCtx) intToHF(inst *ir.Inst) bool {
	if c.p.HasIntToHFConversion() || inst.Op != ir.OpMov || !inst.Dst.IsReg() {
		return false
	}

	return inst.Dst.Type == ir.TypeHF && inst.Srcs[0].Type.IsInt()
}

// fixIntToHF converts integers to half float through a float temporary.
// Both conversions are exact or round once, so the result is unchanged.
func fixIntToHF(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if !c.intToHF(inst) {
		return unchanged()
	}

	s := inst.Srcs[0]
	if s.IsImm() {
		v := float64(s.ImmInt64())
		c.modify(id, func(inst *ir.Inst) { inst.Srcs[0] = ir.ImmFloat(ir.TypeHF, v) })
		return replaced(id)
	}

	tmpDst, tmpSrc := c.tempOperands(ir.TypeF, inst.ExecSize, 1, 0)
	if s.Region.IsScalar() {
		tmpDst, tmpSrc = c.tempOperands(ir.TypeF, 1, 1, 0)
	}

	return insertedBefore(c.copySrc(id, 0, tmpDst, tmpSrc))
}

// unsupportedMix reports which low-precision float types inst mixes with
// 32-bit floats without the platform supporting it.
func (c *fixCtx) unsupportedMix(inst *ir.Inst) (hf, bf bool) {
	if inst.Op == ir.OpMov || inst.Op == ir.OpSend || inst.Op == ir.OpDpas || !isFloatOp(inst) {
		return false, false
	}

	var hasHF, hasBF, hasF bool
	see := func(t ir.Type, imm bool) {
		switch t {
		case ir.TypeHF:
			hasHF = hasHF || !imm
		case ir.TypeBF:
			hasBF = true
		case ir.TypeF:
			hasF = true
		}
	}

	if inst.Dst.IsReg() {
		see(inst.Dst.Type, false)
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if s := inst.Srcs[n]; s != nil {
			see(s.Type, s.IsImm())
		}
	}

	hf = hasHF && hasF && !c.p.HasMixMode()
	bf = hasBF && (!c.p.HasBFMixMode() || !hasF)
	return hf, bf
}

// packedHFMisplaced reports whether a packed half-float source of a mixed
// instruction sits outside the half row that matches its destination.
func (c *fixCtx) packedHFMisplaced(inst *ir.Inst, n int) bool {
	s := inst.Srcs[n]
	if !c.p.HasMixMode() || !mixedModeType(c.p, inst, s.Type) || s.Type != ir.TypeHF {
		return false
	}

	if !directGRFSrc(s) || !directGRFDst(inst.Dst) || inst.Dst.Type != ir.TypeF || inst.ExecSize == 1 {
		return false
	}

	stride, ok := s.Region.UniformStride(inst.ExecSize)
	if !ok || stride != 1 {
		return false
	}

	want := (inst.Dst.ByteOffset(c.row()) % c.row()) / 2
	return s.ByteOffset(c.row())%c.row() != want
}

// fixMixedHF widens low-precision float operands the platform cannot mix
// with 32-bit floats and repositions packed half-float sources.
func fixMixedHF(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if alignExempt(inst) {
		return unchanged()
	}

	hf, bf := c.unsupportedMix(inst)

	if bf && !c.p.Supports(ir.TypeBF) {
		c.fatal(id, "bfloat operands are not supported on %s", c.p)
	}

	res := unchanged()
	widen := func(t ir.Type) bool {
		return t == ir.TypeHF && hf || t == ir.TypeBF && bf
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		s := c.inst(id).Srcs[n]
		switch {
		case s == nil:
		case s.IsImm() && widen(s.Type):
			v := s.ImmFloat64()
			c.modify(id, func(inst *ir.Inst) { inst.Srcs[n] = ir.ImmFloat(ir.TypeF, v) })
			res = res.merge(replaced(id))
		case s.IsReg() && widen(s.Type):
			tmpDst, tmpSrc := c.tempOperands(ir.TypeF, inst.ExecSize, 1, 0)
			if s.Region.IsScalar() {
				tmpDst, tmpSrc = c.tempOperands(ir.TypeF, 1, 1, 0)
			}
			res = res.merge(replaced(c.copySrc(id, n, tmpDst, tmpSrc), id))
		case c.packedHFMisplaced(c.inst(id), n):
			tmpDst, tmpSrc := c.packedHFTemp(c.inst(id))
			res = res.merge(replaced(c.copySrc(id, n, tmpDst, tmpSrc), id))
		}
	}

	if d := c.inst(id).Dst; d.IsReg() && widen(d.Type) {
		tmpDst, tmpSrc := c.tempOperands(ir.TypeF, inst.ExecSize, 1, 0)
		res = res.merge(replaced(append(c.redirectDst(id, tmpDst, tmpSrc), id)...))
	}

	return res
}

// packedHFTemp creates a packed half-float temporary starting at half the
// row position of the float destination of inst.
func (c *fixCtx) packedHFTemp(inst *ir.Inst) (*ir.Dst, *ir.Src) {
	elem := (inst.Dst.ByteOffset(c.row()) % c.row()) / 4
	return c.tempOperands(ir.TypeHF, inst.ExecSize, 1, elem)
}
