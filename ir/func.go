package ir

import (
	"fmt"
	"slices"
)

// Block is a basic block: an ordered list of instructions.
type Block struct {
	ID             int
	Name           string
	Insts          []InstID
	AllLanesActive bool
}

// IndexOf returns the position of id in the block or -1.
func (b *Block) IndexOf(id InstID) int {
	return slices.Index(b.Insts, id)
}

// Func is one function: an arena of instructions laid out in blocks.
type Func struct {
	Name     string
	RowBytes int
	Decls    []*Declare
	Blocks   []*Block
	DU       *DefUse

	insts  []*Inst
	owner  []*Block
	acc    *Declare
	nTemps int
}

// NewFunc creates an empty function for a register file with rows of
// rowBytes bytes.
func NewFunc(name string, rowBytes int) *Func {
	return &Func{
		Name:     name,
		RowBytes: rowBytes,
		DU:       NewDefUse(),
	}
}

// NewDecl adds a GRF declare of n elements of type t.
func (f *Func) NewDecl(name string, t Type, n int) *Declare {
	d := &Declare{
		ID:       DeclID(len(f.Decls)),
		Name:     name,
		NumElems: n,
		Type:     t,
		File:     RegFileGRF,
	}
	f.Decls = append(f.Decls, d)

	return d
}

// NewAlias adds a declare viewing n elements of type t at byte offset off of
// another declare.
func (f *Func) NewAlias(name string, of *Declare, off int, t Type, n int) *Declare {
	d := f.NewDecl(name, t, n)
	d.AliasOf = of
	d.AliasOffset = off
	d.File = of.File

	return d
}

// NewFlag adds a 32-bit flag register.
func (f *Func) NewFlag(name string) *Declare {
	d := f.NewDecl(name, TypeUW, 2)
	d.File = RegFileFlag

	return d
}

// NewAddr adds an address register with n 16-bit slots.
func (f *Func) NewAddr(name string, n int) *Declare {
	d := f.NewDecl(name, TypeUW, n)
	d.File = RegFileAddress

	return d
}

// NewTemp adds a compiler temporary.
func (f *Func) NewTemp(t Type, n int, align Align) *Declare {
	f.nTemps++
	d := f.NewDecl(fmt.Sprintf("TMP%d", f.nTemps), t, n)
	d.Align = align

	return d
}

// Acc returns the accumulator declare of the function.
func (f *Func) Acc() *Declare {
	if f.acc == nil {
		f.acc = f.NewDecl("acc0", TypeQ, 64)
		f.acc.File = RegFileAcc
	}

	return f.acc
}

// AccSrc returns a source reading the accumulator as type t.
func (f *Func) AccSrc(t Type, execSize int) *Src {
	return SrcTyped(f.Acc(), t, 0, Contiguous(execSize))
}

// AccDst returns a destination writing the accumulator as type t.
func (f *Func) AccDst(t Type) *Dst {
	return DstTyped(f.Acc(), t, 0, 1)
}

// NewBlock appends an empty block.
func (f *Func) NewBlock(name string, allLanesActive bool) *Block {
	b := &Block{ID: len(f.Blocks), Name: name, AllLanesActive: allLanesActive}
	f.Blocks = append(f.Blocks, b)

	return b
}

// NewInst builds an instruction with the implicit accumulator operands its
// opcode requires. The instruction is not placed in the arena.
func (f *Func) NewInst(op Opcode, execSize int, dst *Dst, srcs ...*Src) *Inst {
	inst := &Inst{ID: NoInst, Op: op, ExecSize: execSize, Dst: dst}
	copy(inst.Srcs[:], srcs)
	f.SyncImplicitAcc(inst)

	return inst
}

// SyncImplicitAcc recomputes the implicit accumulator operands of inst from
// its opcode and destination.
func (f *Func) SyncImplicitAcc(inst *Inst) {
	inst.ImplAccSrc = nil
	inst.ImplAccDst = nil

	t := TypeUD
	if inst.Dst != nil {
		t = inst.Dst.Type
	}

	if inst.Op.ReadsImplicitAcc() {
		inst.ImplAccSrc = f.AccSrc(t, inst.ExecSize)
		if inst.Op == OpMach && inst.Srcs[0] != nil {
			inst.ImplAccSrc.Type = inst.Srcs[0].Type
		}
	}

	if inst.Op.WritesImplicitAcc() {
		inst.ImplAccDst = f.AccDst(t)
		if inst.Op == OpAddc || inst.Op == OpSubb {
			inst.ImplAccDst.SubRegOff = f.CarryChannel(inst)
		}
	}
}

// CarryChannel returns the first accumulator channel an addc or subb writes
// its carry to: the lane position of its destination within a row.
func (f *Func) CarryChannel(inst *Inst) int {
	d := inst.Dst
	if !d.IsDirect() || d.Type.Size() == 0 {
		return 0
	}

	return (d.ByteOffset(f.RowBytes) % f.RowBytes) / d.Type.Size()
}

// place adds inst to the arena without putting it in a block.
func (f *Func) place(inst *Inst) InstID {
	id := InstID(len(f.insts))
	inst.ID = id
	f.insts = append(f.insts, inst)
	f.owner = append(f.owner, nil)

	return id
}

// Append adds inst at the end of b.
func (f *Func) Append(b *Block, inst *Inst) InstID {
	id := f.place(inst)
	b.Insts = append(b.Insts, id)
	f.owner[id] = b

	return id
}

// InsertBefore places inst in front of pos.
func (f *Func) InsertBefore(pos InstID, inst *Inst) InstID {
	b := f.BlockOf(pos)
	idx := b.IndexOf(pos)
	id := f.place(inst)
	b.Insts = slices.Insert(b.Insts, idx, id)
	f.owner[id] = b

	return id
}

// InsertAfter places inst behind pos.
func (f *Func) InsertAfter(pos InstID, inst *Inst) InstID {
	b := f.BlockOf(pos)
	idx := b.IndexOf(pos)
	id := f.place(inst)
	b.Insts = slices.Insert(b.Insts, idx+1, id)
	f.owner[id] = b

	return id
}

// Remove takes id out of its block and drops all its def-use edges.
func (f *Func) Remove(id InstID) {
	b := f.BlockOf(id)
	if b == nil {
		panic(fmt.Sprintf("instruction %d is not placed", id))
	}

	b.Insts = slices.Delete(b.Insts, b.IndexOf(id), b.IndexOf(id)+1)
	f.owner[id] = nil
	f.insts[id] = nil
	f.DU.RemoveInst(id)
}

// Inst returns the instruction with the given ID, or nil once removed.
func (f *Func) Inst(id InstID) *Inst {
	if id < 0 || int(id) >= len(f.insts) {
		return nil
	}

	return f.insts[id]
}

// BlockOf returns the block holding id.
func (f *Func) BlockOf(id InstID) *Block {
	if id < 0 || int(id) >= len(f.owner) {
		return nil
	}

	return f.owner[id]
}

// InstsOf returns the instructions of b in order.
func (f *Func) InstsOf(b *Block) []*Inst {
	out := make([]*Inst, 0, len(b.Insts))
	for _, id := range b.Insts {
		out = append(out, f.insts[id])
	}

	return out
}

// NumInsts returns the number of placed instructions.
func (f *Func) NumInsts() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Insts)
	}

	return n
}

// ArenaSize returns the number of IDs ever handed out.
func (f *Func) ArenaSize() int {
	return len(f.insts)
}
