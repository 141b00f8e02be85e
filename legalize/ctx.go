package legalize

import (
	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
	"github.com/sarchlab/conform/pointsto"
)

// fixCtx is handed to every fix. All mutations of the block go through it so
// that the def-use relation can be refreshed once the fix returns.
type fixCtx struct {
	f    *ir.Func
	p    *config.Platform
	b    *ir.Block
	pt   pointsto.Analysis
	step string

	readers map[ir.InstID]bool
	writes  []ir.Footprint
	created []ir.InstID
}

func newFixCtx(f *ir.Func, p *config.Platform, b *ir.Block, step string) *fixCtx {
	return &fixCtx{
		f:       f,
		p:       p,
		b:       b,
		step:    step,
		readers: make(map[ir.InstID]bool),
	}
}

func (c *fixCtx) row() int {
	return c.f.RowBytes
}

func (c *fixCtx) inst(id ir.InstID) *ir.Inst {
	return c.f.Inst(id)
}

// touch records the current operands of id as dirty.
func (c *fixCtx) touch(id ir.InstID) {
	inst := c.f.Inst(id)
	if inst == nil {
		return
	}

	c.readers[id] = true
	c.writes = append(c.writes, ir.Writes(inst, c.row())...)
}

func (c *fixCtx) insertBefore(pos ir.InstID, inst *ir.Inst) ir.InstID {
	id := c.f.InsertBefore(pos, inst)
	c.touch(id)
	c.created = append(c.created, id)
	Trace("insert", "step", c.step, "before", pos, "inst", inst)

	return id
}

func (c *fixCtx) insertAfter(pos ir.InstID, inst *ir.Inst) ir.InstID {
	id := c.f.InsertAfter(pos, inst)
	c.touch(id)
	c.created = append(c.created, id)
	Trace("insert", "step", c.step, "after", pos, "inst", inst)

	return id
}

// insertAllBefore places insts in order in front of pos.
func (c *fixCtx) insertAllBefore(pos ir.InstID, insts ...*ir.Inst) []ir.InstID {
	ids := make([]ir.InstID, 0, len(insts))
	for _, inst := range insts {
		ids = append(ids, c.insertBefore(pos, inst))
	}

	return ids
}

// insertAllAfter places insts in order behind pos.
func (c *fixCtx) insertAllAfter(pos ir.InstID, insts ...*ir.Inst) []ir.InstID {
	ids := make([]ir.InstID, 0, len(insts))
	for _, inst := range insts {
		pos = c.insertAfter(pos, inst)
		ids = append(ids, pos)
	}

	return ids
}

func (c *fixCtx) remove(id ir.InstID) {
	c.touch(id)
	Trace("remove", "step", c.step, "inst", c.f.Inst(id))
	c.f.Remove(id)
}

// replace puts insts where id was and removes id.
func (c *fixCtx) replace(id ir.InstID, insts ...*ir.Inst) []ir.InstID {
	ids := c.insertAllBefore(id, insts...)
	c.remove(id)

	return ids
}

// modify applies fn to the instruction in place.
func (c *fixCtx) modify(id ir.InstID, fn func(inst *ir.Inst)) {
	c.touch(id)
	fn(c.f.Inst(id))
	c.touch(id)
	Trace("modify", "step", c.step, "inst", c.f.Inst(id))
}

// flush brings the def-use relation of the block up to date.
func (c *fixCtx) flush() {
	if len(c.readers) == 0 && len(c.writes) == 0 {
		return
	}

	c.f.RefreshDefUse(c.b, c.readers, c.writes)
	c.readers = make(map[ir.InstID]bool)
	c.writes = nil
}

// takeCreated returns the instructions inserted since the last call.
func (c *fixCtx) takeCreated() []ir.InstID {
	ids := c.created
	c.created = nil

	return ids
}

// conditional reports whether inst may leave some lanes of its destination
// untouched.
func (c *fixCtx) conditional(inst *ir.Inst) bool {
	return !ir.WritesUnconditionally(inst, c.b)
}

func (c *fixCtx) newMov(execSize int, dst *ir.Dst, src *ir.Src) *ir.Inst {
	return c.f.NewInst(ir.OpMov, execSize, dst, src)
}

// noMaskMov builds an unpredicated copy that writes all lanes.
func (c *fixCtx) noMaskMov(like *ir.Inst, dst *ir.Dst, src *ir.Src) *ir.Inst {
	mov := c.newMov(like.ExecSize, dst, src)
	mov.NoMask = true
	mov.MaskOffset = like.MaskOffset

	return mov
}

// maskedMov builds a copy enabled exactly like inst.
func (c *fixCtx) maskedMov(like *ir.Inst, dst *ir.Dst, src *ir.Src) *ir.Inst {
	mov := c.newMov(like.ExecSize, dst, src)
	mov.NoMask = like.NoMask
	mov.MaskOffset = like.MaskOffset
	mov.Pred = like.Pred.Clone()

	return mov
}
