package legalize

import (
	"slices"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
	"github.com/sarchlab/conform/pointsto"
)

func overlapExempt(inst *ir.Inst) bool {
	switch inst.Op {
	case ir.OpNop, ir.OpSend, ir.OpDpas, ir.OpMadw:
		return true
	}

	return false
}

// spansRows reports whether the destination of inst may touch more than one
// register row.
func spansRows(inst *ir.Inst, rowBytes int) bool {
	d := inst.Dst
	if !d.IsReg() || d.Base == nil {
		return false
	}

	if d.Access == ir.AccessIndirect {
		return inst.ExecSize*max(d.H, 1)*d.Type.Size() > rowBytes
	}

	lo, hi := ir.DstFootprint(d, inst.ExecSize, rowBytes).Bounds()
	return hi > lo && lo/rowBytes != (hi-1)/rowBytes
}

// dstSrcOverlap reports whether source n shares storage with a destination
// spanning several rows without reading it lane for lane.
func dstSrcOverlap(p *config.Platform, inst *ir.Inst, n, rowBytes int) bool {
	if !p.HasErratum(config.WaDstSrcOverlap) || overlapExempt(inst) {
		return false
	}

	d, s := inst.Dst, inst.Srcs[n]
	if !directGRFDst(d) || !directGRFSrc(s) || d.Base.Root() != s.Base.Root() {
		return false
	}

	if !spansRows(inst, rowBytes) || d.SameLocation(s, inst.ExecSize, rowBytes) {
		return false
	}

	dstFP := ir.DstFootprint(d, inst.ExecSize, rowBytes)
	return ir.SrcFootprint(s, inst.ExecSize, rowBytes).Overlaps(dstFP)
}

// fixOverlap copies sources away from a destination they partially overlap.
func fixOverlap(c *fixCtx, id ir.InstID) Result {
	res := unchanged()

	for n := 0; n < c.inst(id).NumSrcs(); n++ {
		if !dstSrcOverlap(c.p, c.inst(id), n, c.row()) {
			continue
		}

		res = res.merge(replaced(c.copyAway(id, n), id))
	}

	return res
}

// aliasedSrc reports whether source n may share storage with the
// destination through indirect addressing.
func aliasedSrc(p *config.Platform, pt pointsto.Analysis, inst *ir.Inst, n, rowBytes int) bool {
	if !p.HasErratum(config.WaDstSrcOverlap) || overlapExempt(inst) || !spansRows(inst, rowBytes) {
		return false
	}

	d, s := inst.Dst, inst.Srcs[n]
	if !s.IsReg() || !d.IsReg() {
		return false
	}

	switch {
	case d.Access == ir.AccessIndirect && directGRFSrc(s):
		return slices.Contains(pt.PointsTo(d.Base), s.Base.Root())
	case directGRFDst(d) && s.Access == ir.AccessIndirect:
		return slices.Contains(pt.PointsTo(s.Base), d.Base.Root())
	}

	return false
}

// fixAlias copies sources that may alias the destination through an
// address register.
func fixAlias(c *fixCtx, id ir.InstID) Result {
	if c.pt == nil {
		return unchanged()
	}

	res := unchanged()

	for n := 0; n < c.inst(id).NumSrcs(); n++ {
		if !aliasedSrc(c.p, c.pt, c.inst(id), n, c.row()) {
			continue
		}

		res = res.merge(replaced(c.copyAway(id, n), id))
	}

	return res
}

// copyAway moves source n of id into a fresh temporary of the same type.
func (c *fixCtx) copyAway(id ir.InstID, n int) ir.InstID {
	inst := c.inst(id)
	tmpDst, tmpSrc := c.dstLikeTemp(inst, inst.Srcs[n].Type)

	return c.copySrc(id, n, tmpDst, tmpSrc)
}
