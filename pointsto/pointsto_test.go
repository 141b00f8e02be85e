package pointsto_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/conform/ir"
	"github.com/sarchlab/conform/pointsto"
)

var _ = Describe("Compute", func() {
	var (
		f          *ir.Func
		blk        *ir.Block
		a0, a1, a2 *ir.Declare
		x, y, z    *ir.Declare
	)

	BeforeEach(func() {
		f = ir.NewFunc("pt", 32)
		a0 = f.NewAddr("a0", 1)
		a1 = f.NewAddr("a1", 1)
		a2 = f.NewAddr("a2", 1)
		x = f.NewDecl("x", ir.TypeD, 8)
		y = f.NewDecl("y", ir.TypeD, 8)
		z = f.NewDecl("z", ir.TypeUW, 8)
		x.AddressTaken = true
		y.AddressTaken = true
		blk = f.NewBlock("entry", true)
	})

	setAddr := func(addr *ir.Declare, src *ir.Src) {
		f.Append(blk, f.NewInst(ir.OpMov, 1, ir.DstOf(addr, 0, 1), src))
	}

	It("should follow address-of sources", func() {
		view := f.NewAlias("xv", x, 16, ir.TypeD, 4)
		setAddr(a0, ir.AddrOf(view, 0))

		t := pointsto.Compute(f)

		Expect(t.PointsTo(a0)).To(ConsistOf(x))
		Expect(t.PointsTo(a1)).To(BeEmpty())
	})

	It("should merge copies until nothing changes", func() {
		setAddr(a2, ir.SrcOf(a1, 0, ir.Scalar))
		setAddr(a1, ir.SrcOf(a0, 0, ir.Scalar))
		setAddr(a0, ir.AddrOf(x, 0))
		f.Append(blk, f.NewInst(ir.OpAdd, 1, ir.DstOf(a0, 0, 1), ir.AddrOf(y, 0), ir.ImmInt(ir.TypeUW, 4)))

		t := pointsto.Compute(f)

		Expect(t.PointsTo(a2)).To(ConsistOf(x, y))
		Expect(t.PointsTo(a1)).To(ConsistOf(x, y))
	})

	It("should assume every address-taken declare for unknown values", func() {
		setAddr(a0, ir.SrcOf(z, 0, ir.Scalar))

		t := pointsto.Compute(f)

		Expect(t.PointsTo(a0)).To(ConsistOf(x, y))
	})

	It("should ignore plain immediates", func() {
		setAddr(a0, ir.ImmInt(ir.TypeUW, 64))

		Expect(pointsto.Compute(f).PointsTo(a0)).To(BeEmpty())
	})
})

var _ = Describe("Table", func() {
	It("should record each target once", func() {
		f := ir.NewFunc("t", 32)
		a0 := f.NewAddr("a0", 2)
		x := f.NewDecl("x", ir.TypeD, 8)

		t := pointsto.NewTable()

		Expect(t.Add(a0, x)).To(BeTrue())
		Expect(t.Add(a0, f.NewAlias("xv", x, 4, ir.TypeD, 1))).To(BeFalse())

		got := t.PointsTo(a0)
		got[0] = nil
		Expect(t.PointsTo(a0)).To(ConsistOf(x))
	})
})
