package ir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/conform/ir"
)

var _ = Describe("Footprint", func() {
	var (
		f *ir.Func
		d *ir.Declare
	)

	BeforeEach(func() {
		f = ir.NewFunc("fp", 32)
		d = f.NewDecl("d", ir.TypeD, 16)
	})

	It("should list the bytes a strided source reads", func() {
		fp := ir.SrcFootprint(ir.SrcOf(d, 0, ir.Strided(4, 2)), 4, 32)

		Expect(fp.Root).To(BeIdenticalTo(d))
		Expect(fp.Spans).To(Equal([]ir.Span{{0, 4}, {8, 12}, {16, 20}, {24, 28}}))
	})

	It("should merge adjacent lanes", func() {
		fp := ir.DstFootprint(ir.DstOf(d, 2, 1), 8, 32)

		Expect(fp.Spans).To(Equal([]ir.Span{{8, 40}}))

		lo, hi := fp.Bounds()
		Expect(lo).To(Equal(8))
		Expect(hi).To(Equal(40))
	})

	It("should ignore the stride of a single lane", func() {
		fp := ir.DstFootprint(ir.DstOf(d, 3, 4), 1, 32)

		Expect(fp.Spans).To(Equal([]ir.Span{{12, 16}}))
	})

	It("should see storage shared through an alias", func() {
		view := f.NewAlias("view", d, 32, ir.TypeUW, 16)
		packed := ir.SrcFootprint(ir.SrcOf(d, 8, ir.Contiguous(2)), 2, 32)
		viewed := ir.DstFootprint(ir.DstOf(view, 2, 1), 2, 32)

		Expect(viewed.Root).To(BeIdenticalTo(d))
		Expect(viewed.Spans).To(Equal([]ir.Span{{36, 40}}))
		Expect(packed.Overlaps(viewed)).To(BeTrue())
	})

	It("should not overlap interleaved lanes", func() {
		even := ir.SrcFootprint(ir.SrcOf(d, 0, ir.Strided(4, 2)), 4, 32)
		odd := ir.SrcFootprint(ir.SrcOf(d, 1, ir.Strided(4, 2)), 4, 32)

		Expect(even.Overlaps(odd)).To(BeFalse())
		Expect(even.Overlaps(ir.Footprint{})).To(BeFalse())
	})

	It("should subtract what another footprint covers", func() {
		all := ir.SrcFootprint(ir.SrcOf(d, 0, ir.Contiguous(8)), 8, 32)
		even := ir.SrcFootprint(ir.SrcOf(d, 0, ir.Strided(4, 2)), 4, 32)

		rest := all.Subtract(even)

		Expect(rest.Spans).To(Equal([]ir.Span{{4, 8}, {12, 16}, {20, 24}, {28, 32}}))
		Expect(rest.Subtract(all).Empty()).To(BeTrue())
	})

	It("should count flag bits by lane", func() {
		f0 := f.NewFlag("f0")
		fp := ir.FlagFootprint(f0, 1, 8, 8)

		Expect(fp.Spans).To(Equal([]ir.Span{{24, 32}}))
	})

	It("should give the accumulator a slot per lane", func() {
		fp := ir.SrcFootprint(f.AccSrc(ir.TypeW, 8), 8, 32)

		Expect(fp.Spans).To(Equal([]ir.Span{{0, 8 * ir.AccSlotBytes}}))
	})

	It("should read whole rows for a send payload", func() {
		pl := f.NewDecl("pl", ir.TypeUD, 16)
		send := f.NewInst(ir.OpSend, 8, ir.DstOf(d, 0, 1), ir.SrcOf(pl, 8, ir.Contiguous(8)), ir.NullSrc(ir.TypeUD))
		send.Msg = &ir.MsgDesc{MsgLen: 1, RespLen: 2}

		reads := ir.Reads(send, 32)
		Expect(reads).To(HaveLen(1))
		Expect(reads[0].FP.Spans).To(Equal([]ir.Span{{32, 64}}))

		writes := ir.Writes(send, 32)
		Expect(writes).To(HaveLen(1))
		Expect(writes[0].Spans).To(Equal([]ir.Span{{0, 64}}))
	})

	It("should place the high halves of a madw in the following rows", func() {
		hi := ir.MadwHi(ir.DstOf(d, 0, 1), 8, 32)

		Expect(hi.RegOff).To(Equal(1))
		Expect(hi.SubRegOff).To(Equal(0))
	})
})
