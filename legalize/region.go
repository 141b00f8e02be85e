package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// normalizeRegion rewrites r into the canonical encoding of the same lane
// pattern over execSize lanes.
func normalizeRegion(r ir.Region, execSize int) ir.Region {
	if r.VxH && r.W >= execSize {
		return ir.Region{V: r.H, W: 1, H: 0}
	}

	if r.VxH || r.IsScalar() {
		return r
	}

	if execSize == 1 {
		return ir.Scalar
	}

	if r.W > execSize {
		r.W = execSize
	}

	if r.W == 1 {
		r.H = 0
	}

	if r.W == execSize {
		if r.H == 0 {
			return ir.Scalar
		}
		r.V = r.W * r.H
	}

	if r.V == 0 && r.H == 0 {
		return ir.Scalar
	}

	return r
}

// groupCrossesRow reports whether any width group of s spans two rows.
func groupCrossesRow(s *ir.Src, r ir.Region, execSize, rowBytes int) bool {
	if !directGRFSrc(s) || r.IsScalar() || r.W <= 1 {
		return false
	}

	base := s.ByteOffset(rowBytes)
	size := s.Type.Size()
	rowOf := func(lane int) int {
		return (base + r.ElemOffset(lane)*size) / rowBytes
	}

	for i := 0; i < execSize; i++ {
		if i%r.W != 0 && rowOf(i) != rowOf(i-i%r.W) {
			return true
		}
	}

	return false
}

// legalRegion returns the region source n of inst should use: normalized,
// and flattened to one element per group when a group would cross a row.
func legalRegion(inst *ir.Inst, n, rowBytes int) ir.Region {
	s := inst.Srcs[n]
	r := normalizeRegion(s.Region, inst.ExecSize)

	if groupCrossesRow(s, r, inst.ExecSize, rowBytes) {
		if stride, ok := r.UniformStride(inst.ExecSize); ok {
			r = ir.Region{V: stride, W: 1, H: 0}
		}
	}

	return r
}

func regionExempt(inst *ir.Inst, n int) bool {
	s := inst.Srcs[n]
	if !s.IsReg() || inst.Op == ir.OpSend || inst.Op == ir.OpDpas {
		return true
	}

	return s.Region.VxH && s.Region.W < inst.ExecSize
}

// normalizeRegions rewrites every source region of id into its legal form.
func normalizeRegions(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)

	changed := false
	for n := 0; n < inst.NumSrcs(); n++ {
		if regionExempt(inst, n) {
			continue
		}

		r := legalRegion(inst, n, c.row())
		if r == inst.Srcs[n].Region {
			continue
		}

		c.modify(id, func(inst *ir.Inst) { inst.Srcs[n].Region = r })
		changed = true
	}

	if !changed {
		return unchanged()
	}

	return replaced(id)
}

// crossingGroups reports whether some source still has a width group
// crossing a row after normalization.
func crossingGroups(inst *ir.Inst, rowBytes int) bool {
	for n := 0; n < inst.NumSrcs(); n++ {
		if regionExempt(inst, n) {
			continue
		}

		if groupCrossesRow(inst.Srcs[n], inst.Srcs[n].Region, inst.ExecSize, rowBytes) {
			return true
		}
	}

	return false
}
