package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// conformRules run in order on every instruction during the final sweep.
var conformRules = []struct {
	name string
	fix  func(c *fixCtx, id ir.InstID) Result
}{
	{"regions", fixRegions},
	{"imm-placement", fixImmPlacement},
	{"ternary-indirect", fixTernaryIndirect},
	{"imm64", fixImm64},
	{"mul-macro", fixMulMacros},
	{"acc-dst", fixAccDst},
	{"dst-stride", fixDstStride},
	{"modifiers", checkModifiers},
}

// conformInst applies the encoding rules to id. Rules stop once the
// instruction has been expanded away.
func conformInst(c *fixCtx, id ir.InstID) Result {
	res := unchanged()

	for _, rule := range conformRules {
		if c.inst(id) == nil {
			break
		}

		r := rule.fix(c, id)
		if r.Changed() {
			Trace("conform", "rule", rule.name, "inst", id, "result", r)
		}
		res = res.merge(r)
	}

	return res
}

func fixRegions(c *fixCtx, id ir.InstID) Result {
	if reduceExempt(c.inst(id)) {
		return unchanged()
	}

	res := normalizeRegions(c, id)
	if crossingGroups(c.inst(id), c.row()) {
		res = res.merge(fixExecSize(c, id))
	}

	return res
}

func immExempt(inst *ir.Inst) bool {
	switch inst.Op {
	case ir.OpNop, ir.OpSend, ir.OpDpas, ir.OpMadw, ir.OpPseudoMad, ir.OpPseudoSada2:
		return true
	}

	return false
}

// misplacedImm returns the first immediate source of inst the encoding
// cannot carry in its slot, or -1.
func misplacedImm(inst *ir.Inst) int {
	if immExempt(inst) {
		return -1
	}

	switch inst.NumSrcs() {
	case 2:
		if inst.Srcs[0].IsImm() {
			return 0
		}
	case 3:
		if inst.Srcs[1].IsImm() {
			return 1
		}

		for _, n := range []int{0, 2} {
			if s := inst.Srcs[n]; s.IsImm() && s.Type.Size() != 2 {
				return n
			}
		}

		if inst.Srcs[0].IsImm() && inst.Srcs[2].IsImm() {
			return 0
		}
	}

	return -1
}

var swappedCond = map[ir.CondKind]ir.CondKind{
	ir.CondEq: ir.CondEq,
	ir.CondNe: ir.CondNe,
	ir.CondGt: ir.CondLt,
	ir.CondLt: ir.CondGt,
	ir.CondGe: ir.CondLe,
	ir.CondLe: ir.CondGe,
}

// swapSources exchanges the two sources of inst when the result allows it
// and reports whether it did.
func swapSources(inst *ir.Inst) bool {
	if inst.NumSrcs() != 2 || inst.Srcs[1].IsImm() {
		return false
	}

	switch {
	case inst.Op.IsCommutative():
	case inst.Op == ir.OpCmp && inst.CondMod != nil:
		inst.CondMod.Kind = swappedCond[inst.CondMod.Kind]
	case inst.Op == ir.OpSel && inst.CondMod != nil:
		if isFloatOp(inst) || inst.CondMod.Kind == ir.CondEq || inst.CondMod.Kind == ir.CondNe {
			return false
		}
	case inst.Op == ir.OpSel && inst.Pred != nil && inst.Pred.Control == ir.PredSeq:
		inst.Pred.Inverse = !inst.Pred.Inverse
	default:
		return false
	}

	inst.Srcs[0], inst.Srcs[1] = inst.Srcs[1], inst.Srcs[0]
	return true
}

// fixImmPlacement moves immediates into slots that can encode them,
// swapping sources when possible and copying to a register otherwise.
func fixImmPlacement(c *fixCtx, id ir.InstID) Result {
	res := unchanged()

	for n := misplacedImm(c.inst(id)); n >= 0; n = misplacedImm(c.inst(id)) {
		inst := c.inst(id)
		if n == 0 && inst.NumSrcs() == 2 {
			if swapped := inst.Clone(); swapSources(swapped) {
				c.modify(id, func(inst *ir.Inst) {
					inst.Srcs = swapped.Srcs
					inst.CondMod = swapped.CondMod
					inst.Pred = swapped.Pred
				})
				res = res.merge(replaced(id))
				continue
			}
		}

		res = res.merge(replaced(c.scalarTemp(id, n, inst.Srcs[n].Type), id))
	}

	return res
}

// fixTernaryIndirect copies indirect sources of three-source instructions
// into registers.
func fixTernaryIndirect(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op != ir.OpMad && inst.Op != ir.OpBfn {
		return unchanged()
	}

	res := unchanged()
	for n := 0; n < 3; n++ {
		s := c.inst(id).Srcs[n]
		if !s.IsReg() || s.Access != ir.AccessIndirect {
			continue
		}

		res = res.merge(replaced(c.copyAway(id, n), id))
	}

	return res
}

// fixImm64 moves 64-bit immediates of anything but a mov into registers.
func fixImm64(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op == ir.OpMov || immExempt(inst) {
		return unchanged()
	}

	res := unchanged()
	for n := 0; n < inst.NumSrcs(); n++ {
		s := c.inst(id).Srcs[n]
		if !s.IsImm() || s.Type.Size() != 8 {
			continue
		}

		res = res.merge(replaced(c.scalarTemp(id, n, s.Type), id))
	}

	return res
}

// accDstMisaligned reports whether an instruction touching the accumulator
// writes a register destination that does not start a row.
func accDstMisaligned(inst *ir.Inst, rowBytes int) bool {
	d := inst.Dst
	if !inst.UsesAcc() || !directGRFDst(d) {
		return false
	}

	return !d.Base.AlignedTo(d.ByteOffset(rowBytes), rowBytes, rowBytes)
}

func fixAccDst(c *fixCtx, id ir.InstID) Result {
	if !accDstMisaligned(c.inst(id), c.row()) {
		return unchanged()
	}

	ids := c.alignDstToRow(id)
	if len(ids) == 0 {
		return unchanged()
	}

	return replaced(append(ids, id)...)
}

// badDstStride reports whether the destination stride cannot be encoded.
func badDstStride(inst *ir.Inst) bool {
	d := inst.Dst
	if !d.IsReg() || d.IsAcc() || inst.Op == ir.OpSend || inst.Op == ir.OpDpas {
		return false
	}

	if inst.ExecSize == 1 {
		return d.H != 1
	}

	return d.H != 1 && d.H != 2 && d.H != 4
}

func fixDstStride(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if !badDstStride(inst) {
		return unchanged()
	}

	if inst.ExecSize > 1 {
		c.fatal(id, "destination stride %d cannot be encoded", inst.Dst.H)
	}

	c.modify(id, func(inst *ir.Inst) { inst.Dst.H = 1 })
	return replaced(id)
}

func checkModifiers(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op.AllowsSrcModifiers() {
		return unchanged()
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if s := inst.Srcs[n]; s != nil && s.Mod != ir.ModNone {
			c.fatal(id, "%s does not take source modifiers", inst.Op)
		}
	}

	return unchanged()
}
