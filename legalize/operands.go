package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// execBytes is the execution type width: the widest of the destination and
// the register sources. Immediates are converted and do not count.
func execBytes(inst *ir.Inst) int {
	size := 0
	if inst.Dst.IsReg() {
		size = inst.Dst.Type.Size()
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if s := inst.Srcs[n]; s.IsReg() && s.Type.Size() > size {
			size = s.Type.Size()
		}
	}

	if size == 0 {
		size = inst.ExecTypeSize()
	}

	return size
}

// isGRF reports whether the operand base is a general register.
func isGRF(d *ir.Declare) bool {
	return d != nil && d.Root().File == ir.RegFileGRF
}

func directGRFDst(d *ir.Dst) bool {
	return d.IsDirect() && isGRF(d.Base)
}

func directGRFSrc(s *ir.Src) bool {
	return s.IsDirect() && isGRF(s.Base)
}

// dstStrideBytes is the byte distance between consecutive lanes of the
// destination.
func dstStrideBytes(d *ir.Dst) int {
	return d.Type.Size() * max(d.H, 1)
}

// regionFor returns a strided region whose width groups stay within a row.
func regionFor(execSize, stride, size, rowBytes int) ir.Region {
	if execSize == 1 {
		return ir.Scalar
	}

	w := min(execSize, 16)
	for w > 1 && w*stride*size > rowBytes {
		w /= 2
	}

	return ir.Region{V: w * stride, W: w, H: stride}
}

// tempOperands creates a row-aligned temporary holding execSize lanes of
// type t, stride elements apart, starting elem elements into the first row.
func (c *fixCtx) tempOperands(t ir.Type, execSize, stride, elem int) (*ir.Dst, *ir.Src) {
	n := elem + execSize*stride
	if execSize == 1 {
		n = elem + 1
	}

	tmp := c.f.NewTemp(t, n, ir.AlignGRF)
	dst := ir.DstTyped(tmp, t, elem, stride)
	src := ir.SrcTyped(tmp, t, elem, regionFor(execSize, stride, t.Size(), c.row()))

	return dst, src
}

// canonicalStride is the element stride that gives every lane execBytes
// bytes.
func canonicalStride(t ir.Type, execBytes int) int {
	return max(1, execBytes/t.Size())
}

// dstLikePlacement returns the stride and first element a temporary of
// type t needs so that its lanes sit where the destination lanes of inst
// sit within a row.
func (c *fixCtx) dstLikePlacement(inst *ir.Inst, t ir.Type) (stride, elem int, ok bool) {
	d := inst.Dst
	size := t.Size()

	if !directGRFDst(d) || inst.ExecSize == 1 {
		return 0, 0, false
	}

	strideBytes := dstStrideBytes(d)
	sub := d.ByteOffset(c.row()) % c.row()
	if strideBytes%size != 0 || sub%size != 0 {
		return 0, 0, false
	}

	return strideBytes / size, sub / size, true
}

// dstLikeTemp creates a temporary of type t laid out like the destination
// of inst, or from the start of a row when that is impossible.
func (c *fixCtx) dstLikeTemp(inst *ir.Inst, t ir.Type) (*ir.Dst, *ir.Src) {
	if stride, elem, ok := c.dstLikePlacement(inst, t); ok {
		return c.tempOperands(t, inst.ExecSize, stride, elem)
	}

	return c.tempOperands(t, inst.ExecSize, canonicalStride(t, execBytes(inst)), 0)
}

// copySrc moves source n of id into a temporary through an unpredicated copy
// inserted in front of id. The source modifier stays on id.
func (c *fixCtx) copySrc(id ir.InstID, n int, tmpDst *ir.Dst, tmpSrc *ir.Src) ir.InstID {
	inst := c.inst(id)

	from := inst.Srcs[n].Clone()
	mod := from.Mod
	from.Mod = ir.ModNone

	execSize := inst.ExecSize
	if tmpSrc.Region.IsScalar() {
		execSize = 1
	}

	mov := c.newMov(execSize, tmpDst, from)
	mov.NoMask = true
	mov.MaskOffset = inst.MaskOffset
	movID := c.insertBefore(id, mov)

	c.modify(id, func(inst *ir.Inst) {
		s := tmpSrc.Clone()
		s.Mod = mod
		inst.Srcs[n] = s
	})

	return movID
}

// scalarTemp moves a scalar source n of id into a one-element temporary.
func (c *fixCtx) scalarTemp(id ir.InstID, n int, t ir.Type) ir.InstID {
	tmpDst, tmpSrc := c.tempOperands(t, 1, 1, 0)
	return c.copySrc(id, n, tmpDst, tmpSrc)
}

// redirectDst makes id write tmpDst and copies the result back to the
// original destination. The returned IDs are the new copies.
func (c *fixCtx) redirectDst(id ir.InstID, tmpDst *ir.Dst, tmpSrc *ir.Src) []ir.InstID {
	inst := c.inst(id)
	orig := inst.Dst.Clone()

	// sel and cmp need their conditional modifier to compute the result;
	// everything else evaluates it on the written value, so the copy can
	// take it over.
	var cmod *ir.CondMod
	keepCondMod := inst.Op == ir.OpSel || inst.Op == ir.OpCmp
	if inst.CondMod != nil && !keepCondMod {
		cmod = inst.CondMod
	}

	clobbersPred := inst.Op == ir.OpCmp && inst.Pred != nil &&
		inst.Pred.Flag.Root() == inst.CondMod.Flag.Root()

	var ids []ir.InstID
	if clobbersPred && c.conditional(inst) {
		pre := c.noMaskMov(inst, tmpDst.Clone(), orig.AsSrc(inst.ExecSize))
		ids = append(ids, c.insertBefore(id, pre))

		post := c.noMaskMov(inst, orig, tmpSrc.Clone())
		c.modify(id, func(inst *ir.Inst) { inst.Dst = tmpDst })
		ids = append(ids, c.insertAfter(id, post))

		return ids
	}

	post := c.maskedMov(inst, orig, tmpSrc.Clone())
	post.CondMod = cmod.Clone()
	if inst.Op == ir.OpSel {
		post.Pred = nil
	}

	c.modify(id, func(inst *ir.Inst) {
		inst.Dst = tmpDst
		if cmod != nil {
			inst.CondMod = nil
		}
	})
	ids = append(ids, c.insertAfter(id, post))

	return ids
}

// alignDstToRow makes the destination of id start a register row, by
// raising the declare alignment when possible and through a temporary
// otherwise.
func (c *fixCtx) alignDstToRow(id ir.InstID) []ir.InstID {
	inst := c.inst(id)
	d := inst.Dst
	if !directGRFDst(d) {
		return nil
	}

	off := d.ByteOffset(c.row())
	if d.Base.TryAlign(off, c.row(), c.row()) {
		return nil
	}

	stride := max(d.H, 1)
	if inst.ExecSize == 1 {
		stride = 1
	}

	tmpDst, tmpSrc := c.tempOperands(d.Type, inst.ExecSize, stride, 0)
	return c.redirectDst(id, tmpDst, tmpSrc)
}

// rowAligned reports whether byte offset off of d starts a row.
func (c *fixCtx) rowAligned(d *ir.Declare, off int) bool {
	return d.AlignedTo(off, c.row(), c.row())
}
