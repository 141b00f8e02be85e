package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// shapeOf collects the split constraints of inst.
func (c *fixCtx) shapeOf(inst *ir.Inst) Shape {
	s := Shape{
		ExecSize:     inst.ExecSize,
		MaskOffset:   inst.MaskOffset,
		RowBytes:     c.row(),
		MaxExecSize:  c.p.MaxExecSizeFor(execBytes(inst)),
		MinExecSize:  inst.Op.MinExecSize(),
		Granularity:  c.p.MaskGranularity(),
		FreeOffsets:  inst.NoMask && inst.Pred == nil && inst.CondMod == nil,
		Unsplittable: inst.Pred != nil && inst.Pred.Control != ir.PredSeq,
	}

	if inst.UsesAcc() {
		s.AccLimit = c.accLimit(inst)
	}

	if d := inst.Dst; directGRFDst(d) {
		base, size, h := d.ByteOffset(c.row()), d.Type.Size(), max(d.H, 1)
		op := OperandShape{Name: "dst", IsDst: true, Lanes: make([]ir.Span, inst.ExecSize)}
		for i := range op.Lanes {
			lo := base + i*h*size
			op.Lanes[i] = ir.Span{Lo: lo, Hi: lo + size}
		}
		s.Operands = append(s.Operands, op)
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		src := inst.Srcs[n]
		if !directGRFSrc(src) || src.Region.IsScalar() {
			continue
		}

		base, size := src.ByteOffset(c.row()), src.Type.Size()
		op := OperandShape{Name: ir.OpndPos(n).String(), Region: src.Region, Lanes: make([]ir.Span, inst.ExecSize)}
		for i := range op.Lanes {
			lo := base + src.Region.ElemOffset(i)*size
			op.Lanes[i] = ir.Span{Lo: lo, Hi: lo + size}
		}
		s.Operands = append(s.Operands, op)
	}

	return s
}

// accLimit is the number of accumulator channels available to inst.
func (c *fixCtx) accLimit(inst *ir.Inst) int {
	limit := c.p.MaxExecSize()
	use := func(t ir.Type) {
		limit = min(limit, c.p.AccChannels(t))
	}

	if inst.ImplAccSrc != nil {
		use(inst.ImplAccSrc.Type)
	}

	if inst.ImplAccDst != nil {
		use(inst.ImplAccDst.Type)
	}

	if inst.Dst.IsAcc() {
		use(inst.Dst.Type)
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if inst.Srcs[n].IsAcc() {
			use(inst.Srcs[n].Type)
		}
	}

	return limit
}

func reduceExempt(inst *ir.Inst) bool {
	switch inst.Op {
	case ir.OpNop, ir.OpSend, ir.OpDpas, ir.OpMadw:
		return true
	}

	return false
}

// fixExecSize splits instructions whose operands do not fit the hardware
// at their execution size.
func fixExecSize(c *fixCtx, id ir.InstID) Result {
	if reduceExempt(c.inst(id)) {
		return unchanged()
	}

	res := normalizeRegions(c, id)
	inst := c.inst(id)

	plan := PlanSplit(c.shapeOf(inst))
	switch plan.Kind {
	case Fits:
		return res
	case NeedsCompensationMove:
		if inst.UsesAcc() {
			c.fatal(id, "%s uses the accumulator and cannot be split evenly", inst.Op)
		}

		ids := c.canonicalize(id)
		if len(ids) == 0 {
			c.fatal(id, "no legal split of %s (blocked by %v)", inst, plan.Blockers)
		}

		return res.merge(replaced(append(ids, id)...))
	}

	if inst.UsesAcc() && plan.Kind != NeedsEvenSplit {
		c.fatal(id, "%s uses the accumulator and cannot be split into %v", inst.Op, plan.Widths)
	}

	if moves := c.separateOverlaps(id); len(moves) > 0 {
		return res.merge(replaced(append(moves, id)...))
	}

	return res.merge(replaced(c.split(id, plan.Widths)...))
}

// split replaces id by pieces of the given widths.
func (c *fixCtx) split(id ir.InstID, widths []int) []ir.InstID {
	inst := c.inst(id)

	pieces := make([]*ir.Inst, 0, len(widths))
	start := 0
	for _, w := range widths {
		pieces = append(pieces, sliceInst(inst, start, w))
		start += w
	}

	Trace("split", "step", c.step, "inst", inst, "widths", widths)

	return c.replace(id, pieces...)
}

// separateOverlaps copies away every source that shares storage with the
// destination without reading it lane for lane, so pieces executed one
// after another still see the original values.
func (c *fixCtx) separateOverlaps(id ir.InstID) []ir.InstID {
	inst := c.inst(id)
	if !directGRFDst(inst.Dst) {
		return nil
	}

	dstFP := ir.DstFootprint(inst.Dst, inst.ExecSize, c.row())

	var ids []ir.InstID
	for n := 0; n < inst.NumSrcs(); n++ {
		inst = c.inst(id)
		s := inst.Srcs[n]
		if !directGRFSrc(s) {
			continue
		}

		fp := ir.SrcFootprint(s, inst.ExecSize, c.row())
		if !fp.Overlaps(dstFP) || inst.Dst.SameLocation(s, inst.ExecSize, c.row()) {
			continue
		}

		tmpDst, tmpSrc := c.tempOperands(s.Type, inst.ExecSize, canonicalStride(s.Type, execBytes(inst)), 0)
		ids = append(ids, c.copySrc(id, n, tmpDst, tmpSrc))
	}

	return ids
}

func (c *fixCtx) canonicalSrc(s *ir.Src, execSize, stride int) bool {
	off := s.ByteOffset(c.row())
	if !c.rowAligned(s.Base, off) {
		return false
	}

	return s.Region == regionFor(execSize, stride, s.Type.Size(), c.row())
}

// canonicalize moves every register operand of id that is not laid out
// from the start of a row with execBytes bytes per lane into such a
// temporary. Sources get a copy in front; the destination is written to a
// temporary that is copied in before and out after, all without masks.
func (c *fixCtx) canonicalize(id ir.InstID) []ir.InstID {
	inst := c.inst(id)
	eb := execBytes(inst)

	var ids []ir.InstID
	for n := 0; n < inst.NumSrcs(); n++ {
		s := c.inst(id).Srcs[n]
		if !directGRFSrc(s) || s.Region.IsScalar() {
			continue
		}

		stride := canonicalStride(s.Type, eb)
		if c.canonicalSrc(s, inst.ExecSize, stride) {
			continue
		}

		tmpDst, tmpSrc := c.tempOperands(s.Type, inst.ExecSize, stride, 0)
		ids = append(ids, c.copySrc(id, n, tmpDst, tmpSrc))
	}

	d := inst.Dst
	if directGRFDst(d) {
		stride := canonicalStride(d.Type, eb)
		if d.H != stride || !c.rowAligned(d.Base, d.ByteOffset(c.row())) {
			tmpDst, tmpSrc := c.tempOperands(d.Type, inst.ExecSize, stride, 0)
			ids = append(ids, c.wrapDst(id, tmpDst, tmpSrc)...)
		}
	}

	return ids
}

// wrapDst makes id write tmpDst. The original contents are copied in first
// when id may leave lanes untouched, and the result is copied back after;
// both copies ignore the execution mask.
func (c *fixCtx) wrapDst(id ir.InstID, tmpDst *ir.Dst, tmpSrc *ir.Src) []ir.InstID {
	inst := c.inst(id)
	orig := inst.Dst.Clone()

	var ids []ir.InstID
	if c.conditional(inst) {
		ids = append(ids, c.insertBefore(id, c.noMaskMov(inst, tmpDst.Clone(), orig.AsSrc(inst.ExecSize))))
	}

	c.modify(id, func(inst *ir.Inst) { inst.Dst = tmpDst })
	ids = append(ids, c.insertAfter(id, c.noMaskMov(inst, orig, tmpSrc.Clone())))

	return ids
}

// sliceInst returns a copy of inst restricted to lanes [start, start+width).
func sliceInst(inst *ir.Inst, start, width int) *ir.Inst {
	p := inst.Clone()
	p.ExecSize = width
	p.MaskOffset += start

	if p.Dst.IsReg() {
		sliceDst(p.Dst, inst.ExecSize, start)
	}

	for n := 0; n < p.NumSrcs(); n++ {
		if p.Srcs[n] != nil {
			sliceSrc(p.Srcs[n], start, width)
		}
	}

	if p.ImplAccSrc != nil {
		p.ImplAccSrc.SubRegOff += start
	}

	if p.ImplAccDst != nil {
		p.ImplAccDst.SubRegOff += start
	}

	return p
}

func sliceDst(d *ir.Dst, execSize, start int) {
	h := d.H
	if execSize == 1 {
		h = 0
	}

	if d.Access == ir.AccessIndirect {
		d.AddrImm += start * h * d.Type.Size()
		return
	}

	d.SubRegOff += start * h
}

func sliceSrc(s *ir.Src, start, width int) {
	if s.Kind != ir.KindReg || s.Region.IsScalar() {
		return
	}

	r := s.Region
	switch {
	case r.VxH:
		s.SubRegOff += start / max(r.W, 1)
	case s.Access == ir.AccessIndirect:
		s.AddrImm += r.ElemOffset(start) * s.Type.Size()
		s.Region = subRegion(r, start, width)
	default:
		s.SubRegOff += r.ElemOffset(start)
		s.Region = subRegion(r, start, width)
	}
}

// subRegion re-expresses the lanes [start, start+width) of r from the first
// element they read. The caller guarantees the piece is expressible.
func subRegion(r ir.Region, start, width int) ir.Region {
	if r.W <= 0 || width == 1 {
		return ir.Scalar
	}

	switch {
	case start%r.W+width <= r.W:
		return normalizeRegion(ir.Region{V: width * r.H, W: width, H: r.H}, width)
	case start%r.W == 0 && width%r.W == 0:
		return normalizeRegion(r, width)
	}

	panic("piece is not expressible as a region")
}
