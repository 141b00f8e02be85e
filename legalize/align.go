package legalize

import (
	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

func alignExempt(inst *ir.Inst) bool {
	switch inst.Op {
	case ir.OpNop, ir.OpSend, ir.OpDpas, ir.OpMadw:
		return true
	}

	return false
}

// isFloatOp reports whether inst computes in floating point.
func isFloatOp(inst *ir.Inst) bool {
	if inst.Dst.IsReg() && inst.Dst.Type.IsFloat() {
		return true
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if s := inst.Srcs[n]; s != nil && s.Type.IsFloat() {
			return true
		}
	}

	return false
}

// mixedModeType reports whether operands of type t may stay packed in a
// 32-bit float instruction on p.
func mixedModeType(p *config.Platform, inst *ir.Inst, t ir.Type) bool {
	if execBytes(inst) != 4 || !isFloatOp(inst) {
		return false
	}

	switch t {
	case ir.TypeHF:
		return p.HasMixMode()
	case ir.TypeBF:
		return p.HasBFMixMode()
	}

	return false
}

// dstTooNarrow reports whether the destination stride of inst is smaller
// than its execution type.
func dstTooNarrow(p *config.Platform, inst *ir.Inst) bool {
	d := inst.Dst
	if alignExempt(inst) || inst.ExecSize == 1 || !directGRFDst(d) {
		return false
	}

	if mixedModeType(p, inst, d.Type) {
		return false
	}

	return dstStrideBytes(d) < execBytes(inst)
}

// narrowSrcMisaligned reports whether source n is narrower than the
// execution type without matching the byte stride and row position of the
// destination.
func narrowSrcMisaligned(p *config.Platform, inst *ir.Inst, n, rowBytes int) bool {
	s := inst.Srcs[n]
	d := inst.Dst
	if alignExempt(inst) || inst.ExecSize == 1 || !directGRFDst(d) || !directGRFSrc(s) {
		return false
	}

	if s.Region.IsScalar() || s.Type.Size() >= execBytes(inst) || mixedModeType(p, inst, s.Type) {
		return false
	}

	return !sameLanePlacement(inst, s, rowBytes)
}

// sameLanePlacement reports whether every lane of s sits at the byte stride
// and row position of the destination lanes.
func sameLanePlacement(inst *ir.Inst, s *ir.Src, rowBytes int) bool {
	d := inst.Dst

	stride, ok := s.Region.UniformStride(inst.ExecSize)
	if !ok || stride*s.Type.Size() != dstStrideBytes(d) {
		return false
	}

	return s.ByteOffset(rowBytes)%rowBytes == d.ByteOffset(rowBytes)%rowBytes
}

// qwordSrcMisaligned reports whether a 64-bit operation reads source n at a
// different row position than it writes.
func qwordSrcMisaligned(p *config.Platform, inst *ir.Inst, n, rowBytes int) bool {
	s := inst.Srcs[n]
	d := inst.Dst
	if !p.HasErratum(config.WaSame64bSubRegOffset) || alignExempt(inst) || execBytes(inst) != 8 {
		return false
	}

	if inst.ExecSize == 1 || !directGRFDst(d) || !directGRFSrc(s) || s.Region.IsScalar() {
		return false
	}

	return s.ByteOffset(rowBytes)%rowBytes != d.ByteOffset(rowBytes)%rowBytes
}

// immNeedsRetype reports whether source n is an immediate the encoding
// cannot carry as typed.
func immNeedsRetype(inst *ir.Inst, n int) (ir.Type, bool) {
	s := inst.Srcs[n]
	if !s.IsImm() || alignExempt(inst) {
		return 0, false
	}

	switch s.Type {
	case ir.TypeB:
		return ir.TypeW, true
	case ir.TypeUB:
		return ir.TypeUW, true
	}

	if execBytes(inst) == 8 {
		switch {
		case s.Type.IsInt() && s.Type.Size() < 8:
			return ir.IntType(8, s.Type.IsSigned()), true
		case s.Type == ir.TypeF || s.Type == ir.TypeHF:
			return ir.TypeDF, true
		}
	}

	return 0, false
}

func retypeImm(s *ir.Src, t ir.Type) *ir.Src {
	if s.Type.IsFloat() {
		return ir.ImmFloat(t, s.ImmFloat64())
	}

	return ir.ImmInt(t, s.ImmInt64())
}

// widened returns the type a source of type t is converted to when it
// cannot be placed next to the destination lanes: the execution type of
// the same kind.
func widened(inst *ir.Inst, t ir.Type) ir.Type {
	eb := execBytes(inst)

	switch {
	case t == ir.TypeHF || t == ir.TypeBF:
		if eb == 8 {
			return ir.TypeDF
		}
		return ir.TypeF
	case t == ir.TypeF:
		return ir.TypeDF
	case inst.Op == ir.OpShr:
		return ir.IntType(eb, false)
	}

	return ir.IntType(eb, t.IsSigned())
}

// fixAlign enforces the destination stride and source placement rules.
func fixAlign(c *fixCtx, id ir.InstID) Result {
	res := unchanged()

	inst := c.inst(id)
	for n := 0; n < inst.NumSrcs(); n++ {
		if t, ok := immNeedsRetype(inst, n); ok {
			c.modify(id, func(inst *ir.Inst) { inst.Srcs[n] = retypeImm(inst.Srcs[n], t) })
			res = res.merge(replaced(id))
		}
	}

	if dstTooNarrow(c.p, c.inst(id)) {
		inst = c.inst(id)
		d := inst.Dst
		stride := (execBytes(inst) + d.Type.Size() - 1) / d.Type.Size()
		tmpDst, tmpSrc := c.tempOperands(d.Type, inst.ExecSize, stride, 0)

		ids := c.redirectDst(id, tmpDst, tmpSrc)
		res = res.merge(replaced(append(ids, id)...))
	}

	for n := 0; n < c.inst(id).NumSrcs(); n++ {
		inst = c.inst(id)
		switch {
		case narrowSrcMisaligned(c.p, inst, n, c.row()):
			res = res.merge(replaced(c.placeNextToDst(id, n), id))
		case qwordSrcMisaligned(c.p, inst, n, c.row()):
			res = res.merge(replaced(c.placeNextToDst(id, n), id))
		}
	}

	return res
}

// placeNextToDst copies source n into a temporary whose lanes line up with
// the destination lanes, or widens it to the execution type when no such
// placement exists.
func (c *fixCtx) placeNextToDst(id ir.InstID, n int) ir.InstID {
	inst := c.inst(id)
	s := inst.Srcs[n]

	t := s.Type
	if _, _, ok := c.dstLikePlacement(inst, t); !ok {
		t = widened(inst, t)
	}

	tmpDst, tmpSrc := c.dstLikeTemp(inst, t)
	return c.copySrc(id, n, tmpDst, tmpSrc)
}
