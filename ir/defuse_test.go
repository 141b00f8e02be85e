package ir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/conform/ir"
)

var _ = Describe("DefUse", func() {
	var (
		f       *ir.Func
		x, a, d *ir.Declare
		f0      *ir.Declare
	)

	BeforeEach(func() {
		f = ir.NewFunc("du", 32)
		x = f.NewDecl("x", ir.TypeD, 8)
		a = f.NewDecl("a", ir.TypeD, 8)
		d = f.NewDecl("d", ir.TypeD, 8)
		f0 = f.NewFlag("f0")
	})

	// build lays out
	//
	//	0: mov a <- x
	//	1: mov a <- 1 over width lanes
	//	2: add d <- a, x
	build := func(allActive bool, width int, mutate func(*ir.Inst)) *ir.Block {
		blk := f.NewBlock("entry", allActive)
		f.Append(blk, f.NewInst(ir.OpMov, 8, ir.DstOf(a, 0, 1), ir.SrcOf(x, 0, ir.Contiguous(8))))

		over := f.NewInst(ir.OpMov, width, ir.DstOf(a, 0, 1), ir.ImmInt(ir.TypeD, 1))
		if mutate != nil {
			mutate(over)
		}
		f.Append(blk, over)

		f.Append(blk, f.NewInst(ir.OpAdd, 8, ir.DstOf(d, 0, 1),
			ir.SrcOf(a, 0, ir.Contiguous(8)), ir.SrcOf(x, 0, ir.Contiguous(8))))
		f.ComputeDefUse()

		return blk
	}

	It("should stop at an unconditional full overwrite", func() {
		build(true, 8, nil)

		Expect(f.DU.Edges()).To(Equal([]ir.Edge{{Def: 1, Use: 2, Pos: ir.PosSrc0}}))
		Expect(f.DU.Uses(1)).To(HaveLen(1))
		Expect(f.DU.Uses(0)).To(BeEmpty())
		Expect(ir.Verify(f)).To(BeEmpty())
	})

	It("should look past a predicated write", func() {
		build(true, 8, func(inst *ir.Inst) {
			inst.Pred = &ir.Predicate{Flag: f0}
		})

		Expect(f.DU.DefsAt(2, ir.PosSrc0)).To(ConsistOf(ir.InstID(0), ir.InstID(1)))
	})

	It("should look past a write under a partial mask", func() {
		build(false, 8, nil)

		Expect(f.DU.DefsAt(2, ir.PosSrc0)).To(ConsistOf(ir.InstID(0), ir.InstID(1)))
	})

	It("should treat NoMask as unconditional", func() {
		build(false, 8, func(inst *ir.Inst) {
			inst.NoMask = true
		})

		Expect(f.DU.DefsAt(2, ir.PosSrc0)).To(ConsistOf(ir.InstID(1)))
	})

	It("should look past a partial overwrite", func() {
		build(true, 4, nil)

		Expect(f.DU.DefsAt(2, ir.PosSrc0)).To(ConsistOf(ir.InstID(0), ir.InstID(1)))
	})

	It("should link predicates to the flag writer", func() {
		blk := f.NewBlock("entry", true)
		cmp := f.NewInst(ir.OpCmp, 8, ir.NullDst(ir.TypeD),
			ir.SrcOf(x, 0, ir.Contiguous(8)), ir.ImmInt(ir.TypeD, 0))
		cmp.CondMod = &ir.CondMod{Kind: ir.CondGt, Flag: f0}
		f.Append(blk, cmp)

		sel := f.NewInst(ir.OpMov, 8, ir.DstOf(d, 0, 1), ir.SrcOf(x, 0, ir.Contiguous(8)))
		sel.Pred = &ir.Predicate{Flag: f0}
		f.Append(blk, sel)
		f.ComputeDefUse()

		Expect(f.DU.Defs(1)).To(Equal([]ir.Edge{{Def: 0, Use: 1, Pos: ir.PosPred}}))
	})

	It("should link implicit accumulator reads", func() {
		blk := f.NewBlock("entry", true)
		f.Append(blk, f.NewInst(ir.OpMov, 8, f.AccDst(ir.TypeD), ir.SrcOf(x, 0, ir.Contiguous(8))))
		f.Append(blk, f.NewInst(ir.OpMach, 8, ir.DstOf(d, 0, 1),
			ir.SrcOf(x, 0, ir.Contiguous(8)), ir.SrcOf(a, 0, ir.Contiguous(8))))
		f.ComputeDefUse()

		Expect(f.DU.DefsAt(1, ir.PosAccSrc)).To(ConsistOf(ir.InstID(0)))
	})

	It("should drop edges with a removed instruction", func() {
		build(true, 8, nil)

		f.DU.RemoveInst(1)

		Expect(f.DU.Edges()).To(BeEmpty())
	})

	It("should refresh the readers of a new write", func() {
		blk := f.NewBlock("entry", true)
		f.Append(blk, f.NewInst(ir.OpMov, 8, ir.DstOf(a, 0, 1), ir.SrcOf(x, 0, ir.Contiguous(8))))
		add := f.Append(blk, f.NewInst(ir.OpAdd, 8, ir.DstOf(d, 0, 1),
			ir.SrcOf(a, 0, ir.Contiguous(8)), ir.SrcOf(x, 0, ir.Contiguous(8))))
		f.ComputeDefUse()

		over := f.NewInst(ir.OpMov, 8, ir.DstOf(a, 0, 1), ir.ImmInt(ir.TypeD, 7))
		id := f.InsertBefore(add, over)
		f.RefreshDefUse(blk, nil, ir.Writes(over, f.RowBytes))

		Expect(f.DU.DefsAt(add, ir.PosSrc0)).To(ConsistOf(id))
		Expect(ir.Verify(f)).To(BeEmpty())
	})

	Context("when verifying", func() {
		BeforeEach(func() {
			build(true, 8, nil)
		})

		It("should report a stale edge", func() {
			f.DU.AddEdge(0, 2, ir.PosSrc1)

			Expect(ir.Verify(f)).To(ContainElement(And(
				HaveField("Type", ir.IssueDefUse),
				HaveField("Message", ContainSubstring("stale edge")),
			)))
		})

		It("should report a missing edge", func() {
			f.DU.RemoveEdge(1, 2, ir.PosSrc0)

			Expect(ir.Verify(f)).To(ContainElement(
				HaveField("Message", ContainSubstring("missing edge 1 -> 2")),
			))
		})

		It("should report a bad execution size", func() {
			f.Inst(2).ExecSize = 3

			Expect(ir.Verify(f)).To(ContainElement(And(
				HaveField("Type", ir.IssueStruct),
				HaveField("Inst", ir.InstID(2)),
			)))
		})

		It("should report a missing source", func() {
			f.Inst(2).Srcs[1] = nil

			Expect(ir.Verify(f)).To(ContainElement(And(
				HaveField("Type", ir.IssueStruct),
				HaveField("Message", ContainSubstring("expected 2 sources")),
			)))
		})
	})
})
