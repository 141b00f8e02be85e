package legalize

import (
	"github.com/sarchlab/conform/ir"
)

// carryConsumer returns the mov that reads the carry of the addc or subb id
// lane for lane, provided nothing touches the accumulator in between.
func (c *fixCtx) carryConsumer(id ir.InstID) ir.InstID {
	inst := c.inst(id)

	for _, next := range c.b.Insts[c.b.IndexOf(id)+1:] {
		use := c.inst(next)
		if !use.UsesAcc() {
			continue
		}

		s := use.Srcs[0]
		switch {
		case use.Op != ir.OpMov || !s.IsAcc() || use.WritesAcc():
		case use.ExecSize != inst.ExecSize || use.MaskOffset != inst.MaskOffset:
		case s.SubRegOff != inst.ImplAccDst.SubRegOff:
		case !contiguous(s, use.ExecSize):
		default:
			return next
		}

		return ir.NoInst
	}

	return ir.NoInst
}

func contiguous(s *ir.Src, execSize int) bool {
	stride, ok := s.Region.UniformStride(execSize)
	return ok && (stride == 1 || execSize == 1)
}

// independent reports whether a and b may execute in either order. The
// accumulator is left out: callers keep its channels apart themselves.
func (c *fixCtx) independent(a, b *ir.Inst) bool {
	conflict := func(w []ir.Footprint, r []ir.Footprint) bool {
		for _, x := range w {
			if x.Root != nil && x.Root.File == ir.RegFileAcc {
				continue
			}
			for _, y := range r {
				if x.Overlaps(y) {
					return true
				}
			}
		}
		return false
	}

	readsOf := func(inst *ir.Inst) []ir.Footprint {
		var fps []ir.Footprint
		for _, r := range ir.Reads(inst, c.row()) {
			fps = append(fps, r.FP)
		}
		return fps
	}

	wa, wb := ir.Writes(a, c.row()), ir.Writes(b, c.row())
	return !conflict(wa, readsOf(b)) && !conflict(wa, wb) && !conflict(wb, readsOf(a))
}

// interleaveAt returns where the interleaved pieces of producer and
// consumer can go: in front of the producer when the consumer can move up
// to it, or in front of the consumer when the producer can move down.
func (c *fixCtx) interleaveAt(producer, consumer ir.InstID) (ir.InstID, bool) {
	from, to := c.b.IndexOf(producer), c.b.IndexOf(consumer)
	between := c.b.Insts[from+1 : to]

	p, u := c.inst(producer), c.inst(consumer)
	if !c.independent(p, u) {
		return ir.NoInst, false
	}

	hoist, sink := true, true
	for _, id := range between {
		x := c.inst(id)
		hoist = hoist && c.independent(u, x)
		sink = sink && c.independent(p, x)
	}

	switch {
	case hoist:
		return producer, true
	case sink:
		return consumer, true
	}

	return ir.NoInst, false
}

// fixCarry makes addc and subb fit the accumulator. Narrow ones get row
// aligned destinations; wide ones are split together with the mov reading
// their carry.
func fixCarry(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op != ir.OpAddc && inst.Op != ir.OpSubb {
		return unchanged()
	}

	consumer := c.carryConsumer(id)
	width := c.p.AccChannels(ir.TypeUD)

	if inst.ExecSize <= width {
		ids := c.alignDstToRow(id)
		if consumer != ir.NoInst {
			ids = append(ids, c.alignDstToRow(consumer)...)
		}

		if len(ids) == 0 {
			return unchanged()
		}

		return insertedAfter(ids...)
	}

	if inst.ExecSize%width != 0 {
		c.fatal(id, "%s of %d lanes cannot be split into %d-lane pieces", inst.Op, inst.ExecSize, width)
	}

	widths := make([]int, inst.ExecSize/width)
	for i := range widths {
		widths[i] = width
	}

	if consumer == ir.NoInst {
		return replaced(c.split(id, widths)...)
	}

	if pos, ok := c.interleaveAt(id, consumer); ok {
		use := c.inst(consumer)

		var pieces []*ir.Inst
		for start := 0; start < inst.ExecSize; start += width {
			pieces = append(pieces, sliceInst(inst, start, width), sliceInst(use, start, width))
		}

		ids := c.insertAllBefore(pos, pieces...)
		c.remove(id)
		c.remove(consumer)

		Trace("interleaved carry", "producer", id, "consumer", consumer, "pieces", len(widths))
		return replaced(ids...)
	}

	return replaced(c.carryThroughTemp(id, consumer, width)...)
}

// carryThroughTemp splits the producer and saves the carry of every piece
// into a temporary the consumer then reads instead of the accumulator.
func (c *fixCtx) carryThroughTemp(id, consumer ir.InstID, width int) []ir.InstID {
	inst := c.inst(id)
	use := c.inst(consumer)

	t := use.Srcs[0].Type
	tmpDst, tmpSrc := c.tempOperands(t, inst.ExecSize, 1, 0)

	var pieces []*ir.Inst
	for start := 0; start < inst.ExecSize; start += width {
		piece := sliceInst(inst, start, width)

		carry := c.f.AccSrc(t, width)
		carry.SubRegOff = piece.ImplAccDst.SubRegOff

		save := tmpDst.Clone()
		save.SubRegOff += start

		mov := c.newMov(width, save, carry)
		mov.NoMask = true
		mov.MaskOffset = piece.MaskOffset

		pieces = append(pieces, piece, mov)
	}

	ids := c.replace(id, pieces...)
	c.modify(consumer, func(use *ir.Inst) {
		s := tmpSrc.Clone()
		s.Mod = use.Srcs[0].Mod
		use.Srcs[0] = s
	})

	return append(ids, consumer)
}
