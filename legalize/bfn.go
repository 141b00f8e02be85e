package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// fixBfn checks that bfn is available and moves immediates the ternary
// encoding cannot carry into registers.
func fixBfn(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op != ir.OpBfn {
		return unchanged()
	}

	if !c.p.HasBFN() {
		c.fatal(id, "bfn is not supported on %s", c.p)
	}

	res := unchanged()
	for n := 0; n < 3; n++ {
		if narrowSigned(c.inst(id), n) {
			t := ir.IntType(c.inst(id).Dst.Type.Size(), true)
			tmpDst, tmpSrc := c.dstLikeTemp(c.inst(id), t)
			res = res.merge(insertedBefore(c.copySrc(id, n, tmpDst, tmpSrc)))
		}
	}

	if unsigned, changed := unsignedBfn(inst); changed {
		c.modify(id, func(inst *ir.Inst) {
			inst.Dst = unsigned.Dst
			inst.Srcs = unsigned.Srcs
		})
		res = replaced(id)
	}

	wide := c.inst(id).Dst.Type.Size() >= 4

	for n := 0; n < 3; n++ {
		s := c.inst(id).Srcs[n]
		if !s.IsImm() {
			continue
		}

		switch {
		case wide || n == 1:
			res = res.merge(insertedBefore(c.scalarTemp(id, n, ir.TypeUD)))
		case s.Type != ir.TypeUW && s.Type != ir.TypeW:
			v := s.ImmInt64()
			c.modify(id, func(inst *ir.Inst) { inst.Srcs[n] = ir.ImmInt(ir.TypeUW, v) })
			res = res.merge(replaced(id))
		}
	}

	return res
}

// narrowSigned reports whether source n of inst is a signed register
// narrower than the destination, which would lose its sign extension once
// viewed as unsigned.
func narrowSigned(inst *ir.Inst, n int) bool {
	s := inst.Srcs[n]
	return s.IsReg() && s.Type.IsSigned() && s.Type.Size() < inst.Dst.Type.Size()
}

// unsignedBfn returns inst with every integer register operand viewed as
// unsigned. The function works on bits, so the result does not change.
func unsignedBfn(inst *ir.Inst) (*ir.Inst, bool) {
	out := inst.Clone()
	changed := false

	if d := out.Dst; d.IsReg() && d.Type.IsSigned() {
		d.Type = d.Type.Unsigned()
		changed = true
	}

	for n := 0; n < 3; n++ {
		if s := out.Srcs[n]; s.IsReg() && s.Type.IsSigned() {
			s.Type = s.Type.Unsigned()
			changed = true
		}
	}

	return out, changed
}
