package legalize

import (
	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

// rowsView is a dword view of whole rows starting at byte off of base.
type rowsView struct {
	base *ir.Declare
	off  int
}

func srcRows(s *ir.Src, rowBytes int) rowsView {
	return rowsView{s.Base, s.RegOff*rowBytes + s.SubRegOff*s.Type.Size()}
}

func dstRows(d *ir.Dst, rowBytes int) rowsView {
	return rowsView{d.Base, d.RegOff*rowBytes + d.SubRegOff*d.Type.Size()}
}

// copyRows builds the movs copying n rows from one view to another, at most
// two rows per mov and ignoring the execution mask.
func (c *fixCtx) copyRows(to, from rowsView, n int) []*ir.Inst {
	var movs []*ir.Inst
	for r := 0; r < n; r += 2 {
		rows := min(2, n-r)
		exec := rows * c.row() / 4
		delta := r * c.row()

		dst := ir.DstTyped(to.base, ir.TypeUD, (to.off+delta)/4, 1)
		src := ir.SrcTyped(from.base, ir.TypeUD, (from.off+delta)/4, regionFor(exec, 1, 4, c.row()))

		mov := c.newMov(exec, dst, src)
		mov.NoMask = true
		movs = append(movs, mov)
	}

	return movs
}

func (c *fixCtx) rowsTemp(n int) rowsView {
	return rowsView{c.f.NewTemp(ir.TypeUD, n*c.row()/4, ir.AlignGRF), 0}
}

func payloadRows(inst *ir.Inst, n int) int {
	if n == 0 {
		return inst.Msg.MsgLen
	}

	return inst.Msg.ExtMsgLen
}

// sendOverlaps reports whether the response of a send lands on its payload.
func sendOverlaps(inst *ir.Inst, n, rowBytes int) bool {
	d, s := inst.Dst, inst.Srcs[n]
	if !directGRFDst(d) || !directGRFSrc(s) || inst.Msg.RespLen == 0 || payloadRows(inst, n) == 0 {
		return false
	}

	resp := ir.RowsFootprint(d.Base, d.ByteOffset(rowBytes), inst.Msg.RespLen, rowBytes)
	payload := ir.RowsFootprint(s.Base, s.ByteOffset(rowBytes), payloadRows(inst, n), rowBytes)

	return resp.Overlaps(payload)
}

// fixSend row-aligns the payloads and the response of a send and keeps the
// response off the payload where the platform requires it.
func fixSend(c *fixCtx, id ir.InstID) Result {
	inst := c.inst(id)
	if inst.Op != ir.OpSend {
		return unchanged()
	}

	res := unchanged()
	for n := 0; n < 2; n++ {
		s := c.inst(id).Srcs[n]
		rows := payloadRows(inst, n)
		if rows == 0 || !directGRFSrc(s) || s.Base.TryAlign(s.ByteOffset(c.row()), c.row(), c.row()) {
			continue
		}

		res = res.merge(c.copyPayload(id, n))
	}

	inst = c.inst(id)
	if d := inst.Dst; directGRFDst(d) && inst.Msg.RespLen > 0 &&
		!d.Base.TryAlign(d.ByteOffset(c.row()), c.row(), c.row()) {
		res = res.merge(c.redirectResponse(id))
	}

	if !c.p.HasErratum(config.WaDisableSendSrcDstOverlap) {
		return res
	}

	for n := 0; n < 2; n++ {
		inst = c.inst(id)
		if !sendOverlaps(inst, n, c.row()) {
			continue
		}

		if c.conditional(inst) {
			res = res.merge(c.copyPayload(id, n))
			continue
		}

		res = res.merge(c.redirectResponse(id))
	}

	return res
}

// copyPayload moves payload n of id to fresh rows.
func (c *fixCtx) copyPayload(id ir.InstID, n int) Result {
	inst := c.inst(id)
	s := inst.Srcs[n]
	rows := payloadRows(inst, n)

	from := srcRows(s, c.row())
	if from.off%4 != 0 {
		c.fatal(id, "send %s does not start on a dword", ir.OpndPos(n))
	}

	tmp := c.rowsTemp(rows)
	ids := c.insertAllBefore(id, c.copyRows(tmp, from, rows)...)

	c.modify(id, func(inst *ir.Inst) {
		inst.Srcs[n] = ir.SrcTyped(tmp.base, s.Type, 0, s.Region)
	})

	return replaced(append(ids, id)...)
}

// redirectResponse makes id respond into fresh rows that are copied to the
// original response afterwards. A send that may not run gets the original
// contents copied in first.
func (c *fixCtx) redirectResponse(id ir.InstID) Result {
	inst := c.inst(id)
	d := inst.Dst
	rows := inst.Msg.RespLen

	orig := dstRows(d, c.row())
	if orig.off%4 != 0 {
		c.fatal(id, "send response does not start on a dword")
	}

	tmp := c.rowsTemp(rows)

	var ids []ir.InstID
	if c.conditional(inst) {
		ids = append(ids, c.insertAllBefore(id, c.copyRows(tmp, orig, rows)...)...)
	}

	c.modify(id, func(inst *ir.Inst) {
		inst.Dst = ir.DstTyped(tmp.base, d.Type, 0, d.H)
	})

	ids = append(ids, c.insertAllAfter(id, c.copyRows(orig, tmp, rows)...)...)

	return replaced(append(ids, id)...)
}
