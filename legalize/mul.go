package legalize

import (
	"github.com/sarchlab/conform/ir"
)

func isDword(t ir.Type) bool {
	return t == ir.TypeD || t == ir.TypeUD
}

// narrowImmFactor returns src1 retyped to a 16-bit immediate when its value
// fits, which the hardware multiplies natively.
func narrowImmFactor(s *ir.Src) (*ir.Src, bool) {
	if !s.IsImm() || !isDword(s.Type) {
		return nil, false
	}

	v := s.ImmInt64()
	switch {
	case v >= 0 && v < 1<<16:
		return ir.ImmInt(ir.TypeUW, v), true
	case v >= -1<<15 && v < 0:
		return ir.ImmInt(ir.TypeW, v), true
	}

	return nil, false
}

// needsDWMulMacro reports whether inst is a 32x32-bit multiply the platform
// cannot execute.
func (c *fixCtx) needsDWMulMacro(inst *ir.Inst) bool {
	if inst.Op != ir.OpMul || c.p.HasNativeDWMul() || isFloatOp(inst) {
		return false
	}

	return isDword(inst.Srcs[0].Type) && isDword(inst.Srcs[1].Type) && !inst.Dst.IsAcc()
}

// lowWord views the low 16 bits of every lane of a dword source.
func lowWord(s *ir.Src) *ir.Src {
	if s.IsImm() {
		return ir.ImmInt(ir.TypeUW, int64(s.Imm&0xffff))
	}

	lo := s.Clone()
	lo.Type = ir.TypeUW
	lo.Mod = ir.ModNone
	lo.SubRegOff *= 2
	if !lo.Region.IsScalar() {
		lo.Region.V *= 2
		lo.Region.H *= 2
	}

	return lo
}

func accType(inst *ir.Inst) ir.Type {
	if inst.Srcs[0].Type.IsSigned() || inst.Srcs[1].Type.IsSigned() {
		return ir.TypeD
	}

	return ir.TypeUD
}

// fixMulMacros expands multiplies the hardware lacks: 32x32-bit mul, mulh
// and madw. Wide instructions are first split evenly so that each piece
// fits the accumulator.
func fixMulMacros(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)

	switch {
	case inst.Op == ir.OpMul && c.needsDWMulMacro(inst):
		if imm, ok := narrowImmFactor(inst.Srcs[1]); ok {
			c.modify(id, func(inst *ir.Inst) { inst.Srcs[1] = imm })
			return replaced(id)
		}
		if inst.Sat {
			c.fatal(id, "saturating 32-bit multiply cannot be expanded")
		}
	case inst.Op == ir.OpMulh:
	case inst.Op == ir.OpMadw:
		if inst.Sat || inst.CondMod != nil {
			c.fatal(id, "madw cannot saturate or set flags")
		}
	default:
		return unchanged()
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if s := inst.Srcs[n]; s.Mod != ir.ModNone {
			c.fatal(id, "%s source %d carries a modifier", inst.Op, n)
		}
	}

	var hi *ir.Dst
	if inst.Op == ir.OpMadw {
		hi = ir.MadwHi(inst.Dst, inst.ExecSize, c.row())
	}

	width := min(inst.ExecSize, c.p.AccChannels(ir.TypeD))
	if width < inst.ExecSize {
		if moves := c.separateOverlaps(id); len(moves) > 0 {
			return replaced(append(moves, id)...)
		}
	}

	var out []*ir.Inst
	for start := 0; start < inst.ExecSize; start += width {
		piece := sliceInst(inst, start, width)

		var pieceHi *ir.Dst
		if hi != nil {
			pieceHi = hi.Clone()
			sliceDst(pieceHi, inst.ExecSize, start)
		}

		switch inst.Op {
		case ir.OpMul:
			out = append(out, c.expandMul(piece)...)
		case ir.OpMulh:
			out = append(out, c.expandMulh(piece)...)
		case ir.OpMadw:
			out = append(out, c.expandMadw(piece, pieceHi)...)
		}
	}

	Trace("multiply macro", "inst", inst, "pieces", inst.ExecSize/width)

	return replaced(c.replace(id, out...)...)
}

// mulLow starts every expansion: the low word product goes to the
// accumulator so that mach can complete it.
func (c *fixCtx) mulLow(piece *ir.Inst) *ir.Inst {
	mul := c.f.NewInst(ir.OpMul, piece.ExecSize, c.f.AccDst(accType(piece)),
		piece.Srcs[0].Clone(), lowWord(piece.Srcs[1]))
	mul.NoMask = piece.NoMask
	mul.MaskOffset = piece.MaskOffset

	return mul
}

// mach builds the high-half multiply of piece writing dst.
func (c *fixCtx) mach(piece *ir.Inst, dst *ir.Dst) *ir.Inst {
	mach := c.f.NewInst(ir.OpMach, piece.ExecSize, dst, piece.Srcs[0].Clone(), piece.Srcs[1].Clone())
	mach.NoMask = piece.NoMask
	mach.MaskOffset = piece.MaskOffset

	return mach
}

func (c *fixCtx) expandMul(piece *ir.Inst) []*ir.Inst {
	t := accType(piece)

	if d := piece.Dst; d.IsReg() && d.Type.Size() == 8 {
		if piece.CondMod != nil {
			c.fatal(piece.ID, "widening multiply cannot set flags")
		}

		hiDst, hiSrc := c.tempOperands(t, piece.ExecSize, 1, 0)
		lo, hi := qwordHalves(d)

		movLo := c.maskedMov(piece, lo, c.f.AccSrc(ir.TypeUD, piece.ExecSize))
		movHi := c.maskedMov(piece, hi, hiSrc)

		return []*ir.Inst{c.mulLow(piece), c.mach(piece, hiDst), movLo, movHi}
	}

	mov := c.maskedMov(piece, piece.Dst.Clone(), c.f.AccSrc(t, piece.ExecSize))
	mov.CondMod = piece.CondMod.Clone()

	return []*ir.Inst{c.mulLow(piece), c.mach(piece, ir.NullDst(t)), mov}
}

// qwordHalves views the low and high dwords of a 64-bit destination.
func qwordHalves(d *ir.Dst) (*ir.Dst, *ir.Dst) {
	lo := d.Clone()
	lo.Type = ir.TypeUD
	lo.SubRegOff *= 2
	lo.H = max(d.H, 1) * 2

	hi := lo.Clone()
	hi.SubRegOff++

	return lo, hi
}

func (c *fixCtx) expandMulh(piece *ir.Inst) []*ir.Inst {
	if piece.Pred == nil && piece.CondMod == nil && !piece.Sat {
		return []*ir.Inst{c.mulLow(piece), c.mach(piece, piece.Dst.Clone())}
	}

	t := piece.Dst.Type
	tmpDst, tmpSrc := c.tempOperands(t, piece.ExecSize, 1, 0)

	mov := c.maskedMov(piece, piece.Dst.Clone(), tmpSrc)
	mov.CondMod = piece.CondMod.Clone()
	mov.Sat = piece.Sat

	return []*ir.Inst{c.mulLow(piece), c.mach(piece, tmpDst), mov}
}

// expandMadw computes the 64-bit s0*s1+s2 of every lane, low halves to the
// destination and high halves to hi. A zero addend needs no carry
// propagation.
func (c *fixCtx) expandMadw(piece *ir.Inst, hi *ir.Dst) []*ir.Inst {
	addend := piece.Srcs[2]

	if addend.IsImm() && addend.ImmInt64() == 0 {
		mach := c.mach(piece, hi)
		mach.Pred = piece.Pred.Clone()

		movLo := c.maskedMov(piece, piece.Dst.Clone(), c.f.AccSrc(piece.Dst.Type, piece.ExecSize))

		return []*ir.Inst{c.mulLow(piece), mach, movLo}
	}

	exec := piece.ExecSize
	hiDst, hiSrc := c.tempOperands(ir.TypeD, exec, 1, 0)
	loDst, loSrc := c.tempOperands(ir.TypeUD, exec, 1, 0)
	sumDst, sumSrc := c.tempOperands(ir.TypeUD, exec, 1, 0)

	unmasked := func(inst *ir.Inst) *ir.Inst {
		inst.NoMask = piece.NoMask
		inst.MaskOffset = piece.MaskOffset
		return inst
	}

	addc := unmasked(c.f.NewInst(ir.OpAddc, exec, sumDst, loSrc, retypedAddend(addend)))
	carryAcc := c.f.AccSrc(ir.TypeUD, exec)
	carryAcc.SubRegOff = addc.ImplAccDst.SubRegOff

	out := []*ir.Inst{
		c.mulLow(piece),
		c.mach(piece, hiDst),
		unmasked(c.newMov(exec, loDst, c.f.AccSrc(ir.TypeUD, exec))),
		addc,
		unmasked(c.f.NewInst(ir.OpAdd, exec, hiDst.Clone(), hiSrc.Clone(), carryAcc)),
	}

	switch {
	case addend.IsImm():
		if addend.Type.IsSigned() && addend.ImmInt64() < 0 {
			out = append(out, unmasked(c.f.NewInst(ir.OpAdd, exec, hiDst.Clone(), hiSrc.Clone(), ir.ImmInt(ir.TypeD, -1))))
		}
	case addend.Type.IsSigned():
		signDst, signSrc := c.tempOperands(ir.TypeD, exec, 1, 0)
		out = append(out,
			unmasked(c.f.NewInst(ir.OpAsr, exec, signDst, addend.Clone(), ir.ImmInt(ir.TypeUW, 31))),
			unmasked(c.f.NewInst(ir.OpAdd, exec, hiDst.Clone(), hiSrc.Clone(), signSrc)),
		)
	}

	return append(out,
		c.maskedMov(piece, piece.Dst.Clone(), sumSrc),
		c.maskedMov(piece, hi, hiSrc.Clone()),
	)
}

// retypedAddend feeds the addend to addc as an unsigned dword.
func retypedAddend(s *ir.Src) *ir.Src {
	if s.IsImm() {
		return ir.ImmInt(ir.TypeUD, int64(uint32(s.Imm)))
	}

	return s.Clone()
}
