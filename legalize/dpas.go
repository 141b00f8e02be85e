package legalize

import (
	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

// dpasElems returns how many elements source n of a dpas reads.
func dpasElems(inst *ir.Inst, n int) int {
	exec, depth, repeat := inst.ExecSize, inst.Dpas.Depth, inst.Dpas.Repeat

	switch n {
	case 0:
		return repeat * exec
	case 1:
		return depth * exec
	}

	return repeat * depth
}

func dpasSrcFootprint(inst *ir.Inst, n, rowBytes int) ir.Footprint {
	s := inst.Srcs[n]
	off := s.ByteOffset(rowBytes)

	return footprintOf(s.Base, off, dpasElems(inst, n)*s.Type.Size())
}

func dpasDstFootprint(inst *ir.Inst, rowBytes int) ir.Footprint {
	d := inst.Dst
	return footprintOf(d.Base, d.ByteOffset(rowBytes), inst.Dpas.Repeat*inst.ExecSize*d.Type.Size())
}

func footprintOf(base *ir.Declare, off, size int) ir.Footprint {
	return ir.Footprint{Root: base.Root(), Spans: []ir.Span{{Lo: off, Hi: off + size}}}
}

// dpasSrc2Misaligned reports whether a full-size dpas reads src2 from
// inside a row on a platform that requires it to start one.
func dpasSrc2Misaligned(p *config.Platform, inst *ir.Inst, rowBytes int) bool {
	if inst.Op != ir.OpDpas || !p.HasErratum(config.WaGRFAlignedSrc2DPAS) {
		return false
	}

	if inst.Dpas.Depth != 8 || inst.Dpas.Repeat != 8 {
		return false
	}

	s := inst.Srcs[2]
	return directGRFSrc(s) && !s.Base.AlignedTo(s.ByteOffset(rowBytes), rowBytes, rowBytes)
}

// fixDpas splits a full-size dpas with a misaligned src2 into two halves.
func fixDpas(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if !dpasSrc2Misaligned(c.p, inst, c.row()) {
		return unchanged()
	}

	s2 := inst.Srcs[2]
	if s2.Base.TryAlign(s2.ByteOffset(c.row()), c.row(), c.row()) {
		return unchanged()
	}

	var ids []ir.InstID
	dstFP := ir.Footprint{}
	if directGRFDst(inst.Dst) {
		dstFP = dpasDstFootprint(inst, c.row())
	}

	for n := 0; n < 3; n++ {
		inst = c.inst(id)
		s := inst.Srcs[n]
		if !directGRFSrc(s) || !dpasSrcFootprint(inst, n, c.row()).Overlaps(dstFP) {
			continue
		}

		if n == 0 && s.Type.Size() == inst.Dst.Type.Size() &&
			s.Base.Root() == inst.Dst.Base.Root() &&
			s.ByteOffset(c.row()) == inst.Dst.ByteOffset(c.row()) {
			continue
		}

		ids = append(ids, c.copyElems(id, n, dpasElems(inst, n))...)
	}

	inst = c.inst(id)
	half := inst.Dpas.Repeat / 2

	lo := inst.Clone()
	lo.Dpas.Repeat = half

	hi := lo.Clone()
	hi.Dst.SubRegOff += half * inst.ExecSize
	hi.Srcs[0].SubRegOff += half * inst.ExecSize
	hi.Srcs[2].SubRegOff += half * inst.Dpas.Depth

	Trace("split", "step", c.step, "inst", inst, "repeat", half)

	return replaced(append(ids, c.replace(id, lo, hi)...)...)
}

// copyElems copies the n contiguous elements source s of id reads into a
// fresh temporary, bit for bit and without masks.
func (c *fixCtx) copyElems(id ir.InstID, n, count int) []ir.InstID {
	s := c.inst(id).Srcs[n]
	size := s.Type.Size()
	bits := ir.IntType(size, false)
	tmp := c.f.NewTemp(bits, count, ir.AlignGRF)

	var movs []*ir.Inst
	for done := 0; done < count; {
		exec := 1
		for exec*2 <= count-done && exec*2*size <= 2*c.row() && exec*2 <= c.p.MaxExecSize() {
			exec *= 2
		}

		from := ir.SrcTyped(s.Base, bits, 0, regionFor(exec, 1, size, c.row()))
		from.RegOff = s.RegOff
		from.SubRegOff = s.SubRegOff + done

		mov := c.newMov(exec, ir.DstTyped(tmp, bits, done, 1), from)
		mov.NoMask = true
		movs = append(movs, mov)
		done += exec
	}

	ids := c.insertAllBefore(id, movs...)
	c.modify(id, func(inst *ir.Inst) {
		inst.Srcs[n] = ir.SrcTyped(tmp, s.Type, 0, s.Region)
	})

	return ids
}
