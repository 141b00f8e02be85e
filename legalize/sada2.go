package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// fixSada2 lowers pseudo_sada2. When the addend is produced by a single
// movement that feeds nothing else, the movement writes the accumulator
// instead and the native sada2 consumes it; otherwise the sum of absolute
// differences goes to a temporary followed by an add.
func fixSada2(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op != ir.OpPseudoSada2 {
		return unchanged()
	}

	if def, ok := c.accumulatorFeed(id); ok {
		c.modify(def, func(d *ir.Inst) {
			d.Dst = c.f.AccDst(d.Dst.Type)
		})

		c.modify(id, func(inst *ir.Inst) {
			inst.Op = ir.OpSada2
			inst.Srcs[2] = nil
			inst.ImplAccSrc = c.f.AccSrc(ir.TypeW, inst.ExecSize)
		})

		Trace("sada2 through accumulator", "def", def, "use", id)
		return replaced(def, id)
	}

	tmpDst, tmpSrc := c.tempOperands(ir.TypeW, inst.ExecSize, 1, 0)

	sad := c.f.NewInst(ir.OpSad2, inst.ExecSize, tmpDst, inst.Srcs[0].Clone(), inst.Srcs[1].Clone())
	sad.NoMask = inst.NoMask
	sad.MaskOffset = inst.MaskOffset

	add := inst.Clone()
	add.Op = ir.OpAdd
	add.Srcs = [3]*ir.Src{tmpSrc, inst.Srcs[2].Clone(), nil}

	return replaced(c.replace(id, sad, add)...)
}

// accumulatorFeed finds the instruction that may write the addend of the
// pseudo_sada2 id straight into the accumulator.
func (c *fixCtx) accumulatorFeed(id ir.InstID) (ir.InstID, bool) {
	inst := c.inst(id)
	s2 := inst.Srcs[2]
	if !directGRFSrc(s2) || (s2.Type != ir.TypeW && s2.Type != ir.TypeUW) {
		return ir.NoInst, false
	}

	if root := s2.Base.Root(); root.Global || root.AddressTaken {
		return ir.NoInst, false
	}

	if inst.ExecSize > c.p.AccChannels(ir.TypeW) {
		return ir.NoInst, false
	}

	defs := c.f.DU.DefsAt(id, ir.PosSrc2)
	if len(defs) != 1 {
		return ir.NoInst, false
	}

	def := c.inst(defs[0])
	if len(c.f.DU.Uses(def.ID)) != 1 || !c.accFriendlyMov(def, inst) {
		return ir.NoInst, false
	}

	if !def.Dst.SameLocation(s2, inst.ExecSize, c.row()) {
		return ir.NoInst, false
	}

	from, to := c.b.IndexOf(def.ID), c.b.IndexOf(id)
	for _, between := range c.b.Insts[from+1 : to] {
		if c.inst(between).UsesAcc() {
			return ir.NoInst, false
		}
	}

	return def.ID, true
}

// accFriendlyMov reports whether def is a plain movement whose value the
// accumulator holds exactly as the destination would.
func (c *fixCtx) accFriendlyMov(def, use *ir.Inst) bool {
	if def.Op != ir.OpMov || def.Pred != nil || def.CondMod != nil || def.Sat {
		return false
	}

	if def.ExecSize != use.ExecSize || def.MaskOffset != use.MaskOffset || def.NoMask != use.NoMask {
		return false
	}

	if !directGRFDst(def.Dst) || def.UsesAcc() {
		return false
	}

	s := def.Srcs[0]
	if !s.Type.IsInt() {
		return false
	}

	if s.IsImm() {
		v := s.ImmInt64()
		lo, hi := int64(-1<<15), int64(1<<15-1)
		if def.Dst.Type == ir.TypeUW {
			lo, hi = 0, 1<<16-1
		}
		return v >= lo && v <= hi
	}

	switch {
	case s.Type.Size() == 1:
		return def.Dst.Type == ir.TypeW || !s.Type.IsSigned()
	case s.Type.Size() == 2:
		return s.Type == def.Dst.Type
	}

	return false
}
