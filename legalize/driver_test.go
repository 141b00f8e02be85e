package legalize

import (
	"errors"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

func bfnProgram() *ir.Func {
	f := ir.NewFunc("bfn", 32)
	a := f.NewDecl("a", ir.TypeUD, 8)
	d := f.NewDecl("d", ir.TypeUD, 8)

	blk := f.NewBlock("entry", true)
	bfn := f.NewInst(ir.OpBfn, 8, ir.DstOf(d, 0, 1), contiguous8(a), contiguous8(a), contiguous8(a))
	bfn.BfnCtrl = 0x96
	f.Append(blk, bfn)

	return f
}

// aliasProgram writes d through an address register while reading d
// directly over two rows.
func aliasProgram() *ir.Func {
	f := ir.NewFunc("alias", 32)
	a0 := f.NewAddr("a0", 1)
	d := f.NewDecl("d", ir.TypeD, 16)
	b := f.NewDecl("b", ir.TypeD, 16)
	d.AddressTaken = true
	global(d, b)

	blk := f.NewBlock("entry", true)
	f.Append(blk, f.NewInst(ir.OpMov, 1, ir.DstOf(a0, 0, 1), ir.AddrOf(d, 0)))
	f.Append(blk, f.NewInst(ir.OpAdd, 16, ir.IndirectDst(a0, 0, 0, ir.TypeD, 1),
		ir.SrcOf(d, 0, ir.Contiguous(16)), ir.SrcOf(b, 0, ir.Contiguous(16))))

	return f
}

func instStrings(f *ir.Func) []string {
	var out []string
	for _, inst := range onlyInsts(f) {
		out = append(out, inst.String())
	}

	return out
}

var _ = Describe("Driver", func() {
	var (
		mockCtrl *gomock.Controller
		hook     *MockHook
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hook = NewMockHook(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should list the steps in order", func() {
		Expect(StepNames()).To(Equal([]string{
			"layout", "mixed-precision", "carry", "fma", "bfn", "align", "reduce",
			"mixed-hf", "accumulate", "send", "overlap", "conform", "dpas", "xbar", "alias",
		}))
	})

	It("should panic without a platform", func() {
		Expect(func() { MakeDriverBuilder().Build() }).To(Panic())
	})

	It("should refuse a function built for other rows", func() {
		d := verifyingDriver(config.PlatformFor(config.XeHPC))
		err := d.Legalize(dwordMulProgram(32)())

		Expect(err).To(MatchError(ContainSubstring("rows of 32 bytes")))

		var ie *InternalError
		Expect(errors.As(err, &ie)).To(BeFalse())
	})

	It("should report fixes and legalized blocks to hooks", func() {
		var fixes []FixRecord
		blocks := 0

		hook.EXPECT().
			Func(gomock.Any()).
			Do(func(ctx sim.HookCtx) {
				switch ctx.Pos {
				case HookPosFixApplied:
					fixes = append(fixes, ctx.Detail.(FixRecord))
				case HookPosBlockLegalized:
					Expect(ctx.Item.(*ir.Block).Name).To(Equal("entry"))
					blocks++
				}
			}).
			AnyTimes()

		d := verifyingDriver(config.PlatformFor(config.Xe))
		d.AcceptHook(hook)

		Expect(d.Legalize(dwordMulProgram(32)())).To(Succeed())
		Expect(blocks).To(Equal(1))
		Expect(fixes).To(ContainElement(And(
			HaveField("Func", "mul"),
			HaveField("Step", "conform"),
		)))
	})

	It("should leave skipped steps undone", func() {
		d := MakeDriverBuilder().
			WithPlatform(config.PlatformFor(config.Xe)).
			WithOptions(config.MakeOptions().WithSkip("conform")).
			Build()

		f := dwordMulProgram(32)()
		Expect(d.Legalize(f)).To(Succeed())
		Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMul}))
		Expect(CheckConformity(f, d.Platform())).To(ContainElement(HaveField("Type", IssueEncoding)))
	})

	Context("when a precondition does not hold", func() {
		It("should return bfn on a platform without it as an internal error", func() {
			err := verifyingDriver(config.PlatformFor(config.Gen9)).Legalize(bfnProgram())

			var ie *InternalError
			Expect(errors.As(err, &ie)).To(BeTrue())
			Expect(ie.Func).To(Equal("bfn"))
			Expect(ie.Step).To(Equal("bfn"))
		})

		It("should refuse to expand a saturating 32-bit multiply", func() {
			f := dwordMulProgram(32)()
			onlyInsts(f)[0].Sat = true

			err := verifyingDriver(config.PlatformFor(config.Xe)).Legalize(f)

			var ie *InternalError
			Expect(errors.As(err, &ie)).To(BeTrue())
			Expect(ie.Msg).To(ContainSubstring("saturating"))
		})
	})

	It("should legalize many functions and join their errors", func() {
		d := MakeDriverBuilder().
			WithPlatform(config.PlatformFor(config.Xe)).
			WithOptions(config.MakeOptions().WithWorkers(3)).
			Build()

		var funcs []*ir.Func
		for i := 0; i < 6; i++ {
			funcs = append(funcs, dwordMulProgram(32)())
		}
		funcs = append(funcs, bfnProgram(), bfnProgram())

		err := d.LegalizeAll(funcs)
		Expect(err).To(HaveOccurred())

		joined, ok := err.(interface{ Unwrap() []error })
		Expect(ok).To(BeTrue())

		failed := 0
		for _, e := range joined.Unwrap() {
			var ie *InternalError
			Expect(errors.As(e, &ie)).To(BeTrue())
			failed++
		}
		Expect(failed).To(Equal(2))

		for _, f := range funcs[:6] {
			Expect(CheckConformity(f, d.Platform())).To(BeEmpty())
		}
	})

	It("should succeed on an empty list", func() {
		Expect(verifyingDriver(config.PlatformFor(config.Xe)).LegalizeAll(nil)).To(Succeed())
	})

	Context("when an indirect destination may alias a source", func() {
		It("should copy the source using the computed points-to table", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Gen9),
				build:    aliasProgram,
				outputs:  []string{"d"},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMov, ir.OpMov, ir.OpAdd}))
			Expect(insts[1].NoMask).To(BeTrue())
			Expect(insts[2].Srcs[0].Base.Name).NotTo(Equal("d"))
			Expect(insts[2].Srcs[1].Base.Name).To(Equal("b"))
		})

		It("should trust a given analysis", func() {
			pt := NewMockAnalysis(mockCtrl)
			pt.EXPECT().PointsTo(gomock.Any()).Return(nil).MinTimes(1)

			d := MakeDriverBuilder().
				WithPlatform(config.PlatformFor(config.Gen9)).
				WithPointsTo(pt).
				Build()

			f := aliasProgram()
			Expect(d.Legalize(f)).To(Succeed())
			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMov, ir.OpAdd}))
		})

		It("should not care on a platform without the overlap erratum", func() {
			pt := NewMockAnalysis(mockCtrl)
			pt.EXPECT().PointsTo(gomock.Any()).Times(0)

			d := MakeDriverBuilder().
				WithPlatform(config.PlatformFor(config.Xe)).
				WithPointsTo(pt).
				Build()

			f := aliasProgram()
			Expect(d.Legalize(f)).To(Succeed())
			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMov, ir.OpAdd}))
		})
	})

	DescribeTable("should change nothing the second time",
		func(p *config.Platform, build func() *ir.Func) {
			d := verifyingDriver(p)
			f := build()
			Expect(d.Legalize(f)).To(Succeed())
			before := instStrings(f)

			hook.EXPECT().
				Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					Expect(ctx.Pos).NotTo(BeIdenticalTo(HookPosFixApplied), "%v", ctx.Detail)
				}).
				AnyTimes()
			d.AcceptHook(hook)

			Expect(d.Legalize(f)).To(Succeed())
			Expect(instStrings(f)).To(Equal(before))
		},
		Entry("pseudo_mad", config.PlatformFor(config.Xe), pseudoMadProgram),
		Entry("wide addc", config.PlatformFor(config.XeHPC), carryProgram),
		Entry("dword mul", config.PlatformFor(config.Xe), dwordMulProgram(32)),
		Entry("packed bytes", config.PlatformFor(config.Gen9), byteToWordProgram),
		Entry("alias", config.PlatformFor(config.Gen9), aliasProgram),
	)
})
