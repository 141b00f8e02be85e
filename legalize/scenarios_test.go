package legalize

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

func pseudoMadProgram() *ir.Func {
	f := ir.NewFunc("pseudo_mad", 32)
	a := f.NewDecl("a", ir.TypeF, 8)
	b := f.NewDecl("b", ir.TypeF, 8)
	d := f.NewDecl("d", ir.TypeF, 8)
	global(a, b, d)

	blk := f.NewBlock("entry", true)
	f.Append(blk, f.NewInst(ir.OpPseudoMad, 8, ir.DstOf(d, 0, 1),
		contiguous8(a), contiguous8(b), ir.ImmFloat(ir.TypeHF, 1.5)))

	return f
}

func carryProgram() *ir.Func {
	f := ir.NewFunc("carry", 64)
	a := f.NewDecl("a", ir.TypeUD, 32)
	b := f.NewDecl("b", ir.TypeUD, 32)
	d := f.NewDecl("d", ir.TypeUD, 32)
	c := f.NewDecl("c", ir.TypeUD, 32)
	flag := f.NewFlag("f0")
	global(a, b, d, c, flag)

	blk := f.NewBlock("entry", true)
	addc := f.NewInst(ir.OpAddc, 32, ir.DstOf(d, 0, 1),
		ir.SrcOf(a, 0, ir.Contiguous(32)), ir.SrcOf(b, 0, ir.Contiguous(32)))
	addc.Pred = &ir.Predicate{Flag: flag}
	f.Append(blk, addc)
	f.Append(blk, f.NewInst(ir.OpMov, 32, ir.DstOf(c, 0, 1), f.AccSrc(ir.TypeUD, 32)))

	return f
}

// blockedCarryProgram puts between a wide addc and the mov reading its
// carry an add that keeps the mov from moving up. When readsSum is set the
// add also reads the addc result, so the addc cannot move down either.
func blockedCarryProgram(readsSum bool) func() *ir.Func {
	return func() *ir.Func {
		f := ir.NewFunc("carry", 64)
		a := f.NewDecl("a", ir.TypeUD, 32)
		b := f.NewDecl("b", ir.TypeUD, 32)
		d := f.NewDecl("d", ir.TypeUD, 32)
		c := f.NewDecl("c", ir.TypeUD, 32)
		g := f.NewDecl("g", ir.TypeUD, 32)
		global(a, b, d, c, g)

		blk := f.NewBlock("entry", false)
		f.Append(blk, f.NewInst(ir.OpAddc, 32, ir.DstOf(d, 0, 1),
			ir.SrcOf(a, 0, ir.Contiguous(32)), ir.SrcOf(b, 0, ir.Contiguous(32))))

		if readsSum {
			f.Append(blk, f.NewInst(ir.OpAdd, 32, ir.DstOf(c, 0, 1),
				ir.SrcOf(d, 0, ir.Contiguous(32)), ir.ImmInt(ir.TypeUD, 1)))
		} else {
			f.Append(blk, f.NewInst(ir.OpAdd, 32, ir.DstOf(g, 0, 1),
				ir.SrcOf(c, 0, ir.Contiguous(32)), ir.ImmInt(ir.TypeUD, 1)))
		}

		f.Append(blk, f.NewInst(ir.OpMov, 32, ir.DstOf(c, 0, 1), f.AccSrc(ir.TypeUD, 32)))

		return f
	}
}

func dwordMulProgram(rowBytes int) func() *ir.Func {
	return func() *ir.Func {
		f := ir.NewFunc("mul", rowBytes)
		a := f.NewDecl("a", ir.TypeD, 16)
		b := f.NewDecl("b", ir.TypeD, 16)
		d := f.NewDecl("d", ir.TypeD, 16)
		global(a, b, d)

		blk := f.NewBlock("entry", true)
		f.Append(blk, f.NewInst(ir.OpMul, 16, ir.DstOf(d, 0, 1),
			ir.SrcOf(a, 0, ir.Contiguous(16)), ir.SrcOf(b, 0, ir.Contiguous(16))))

		return f
	}
}

func byteToWordProgram() *ir.Func {
	f := ir.NewFunc("widen", 32)
	s := f.NewDecl("s", ir.TypeUB, 8)
	d := f.NewDecl("d", ir.TypeW, 16)
	global(s, d)

	blk := f.NewBlock("entry", true)
	f.Append(blk, f.NewInst(ir.OpMov, 8, ir.DstOf(d, 1, 1), contiguous8(s)))

	return f
}

func madwProgram(addend func(f *ir.Func) *ir.Src) func() *ir.Func {
	return func() *ir.Func {
		f := ir.NewFunc("madw", 32)
		a := f.NewDecl("a", ir.TypeD, 8)
		b := f.NewDecl("b", ir.TypeD, 8)
		d := f.NewDecl("d", ir.TypeD, 16)
		global(a, b, d)

		blk := f.NewBlock("entry", true)
		f.Append(blk, f.NewInst(ir.OpMadw, 8, ir.DstOf(d, 0, 1),
			contiguous8(a), contiguous8(b), addend(f)))

		return f
	}
}

var _ = Describe("Legalization", func() {
	Context("when a float pseudo_mad can be encoded directly", func() {
		It("should rewrite it into mad with the addend first", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Xe),
				build:    pseudoMadProgram,
				outputs:  []string{"d"},
				prepare: func(in inputs, rng *rand.Rand) {
					in.putF("a", smallFloats(rng, 8)...)
					in.putF("b", smallFloats(rng, 8)...)
				},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(insts).To(HaveLen(1))
			Expect(insts[0].Op).To(Equal(ir.OpMad))
			Expect(insts[0].Srcs[0].IsImm()).To(BeTrue())
			Expect(insts[0].Srcs[0].Type).To(Equal(ir.TypeHF))
			Expect(insts[0].Srcs[1].Base.Name).To(Equal("b"))
			Expect(insts[0].Srcs[2].Base.Name).To(Equal("a"))
		})

		It("should keep the immediate factor out of src1", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Xe),
				build: func() *ir.Func {
					f := ir.NewFunc("pseudo_mad", 32)
					a := f.NewDecl("a", ir.TypeF, 8)
					c := f.NewDecl("c", ir.TypeF, 8)
					d := f.NewDecl("d", ir.TypeF, 8)
					global(a, c, d)

					blk := f.NewBlock("entry", true)
					f.Append(blk, f.NewInst(ir.OpPseudoMad, 8, ir.DstOf(d, 0, 1),
						contiguous8(a), ir.ImmFloat(ir.TypeF, 0.5), contiguous8(c)))

					return f
				},
				outputs: []string{"d"},
				prepare: func(in inputs, rng *rand.Rand) {
					in.putF("a", smallFloats(rng, 8)...)
					in.putF("c", smallFloats(rng, 8)...)
				},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMad}))
			Expect(insts[0].Srcs[0].Base.Name).To(Equal("c"))
			Expect(insts[0].Srcs[1].Base.Name).To(Equal("a"))
			Expect(insts[0].Srcs[2].IsImm()).To(BeTrue())
		})
	})

	Context("when a wide addc feeds a mov of its carry", func() {
		It("should interleave the halves of both", func() {
			f := equivalence{
				platform: config.PlatformFor(config.XeHPC),
				build:    carryProgram,
				outputs:  []string{"d", "c"},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpAddc, ir.OpMov, ir.OpAddc, ir.OpMov}))
			for i, inst := range insts {
				Expect(inst.ExecSize).To(Equal(16))
				Expect(inst.MaskOffset).To(Equal(16 * (i / 2)))
			}
			Expect(insts[0].Pred).NotTo(BeNil())
			Expect(insts[2].Pred).NotTo(BeNil())
			Expect(insts[1].Srcs[0].SubRegOff).To(Equal(insts[0].ImplAccDst.SubRegOff))
			Expect(insts[3].Srcs[0].SubRegOff).To(Equal(insts[2].ImplAccDst.SubRegOff))
		})
	})

	Context("when a wide addc and its carry mov cannot be hoisted together", func() {
		It("should sink the interleaved halves down to the mov", func() {
			f := equivalence{
				platform: config.PlatformFor(config.XeHPC),
				build:    blockedCarryProgram(false),
				outputs:  []string{"d", "c", "g"},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpAdd, ir.OpAddc, ir.OpMov, ir.OpAddc, ir.OpMov}))
			Expect(insts[0].Dst.Base.Name).To(Equal("g"))
			Expect(insts[2].Srcs[0].IsAcc()).To(BeTrue())
			Expect(insts[4].Srcs[0].SubRegOff).To(Equal(insts[3].ImplAccDst.SubRegOff))
		})

		It("should save the carry of every half when neither can move", func() {
			f := equivalence{
				platform: config.PlatformFor(config.XeHPC),
				build:    blockedCarryProgram(true),
				outputs:  []string{"d", "c"},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(opcodes(f)).To(Equal([]ir.Opcode{
				ir.OpAddc, ir.OpMov, ir.OpAddc, ir.OpMov, ir.OpAdd, ir.OpMov,
			}))

			saved := insts[1].Dst.Base
			Expect(insts[1].NoMask).To(BeTrue())
			Expect(insts[3].Dst.Base).To(Equal(saved))
			Expect(insts[3].Dst.SubRegOff).To(Equal(16))

			consumer := insts[5]
			Expect(consumer.ExecSize).To(Equal(32))
			Expect(consumer.Srcs[0].IsAcc()).To(BeFalse())
			Expect(consumer.Srcs[0].Base).To(Equal(saved))
		})
	})

	Context("when a 32-bit multiply has no native support", func() {
		It("should expand it per accumulator width on 32-byte rows", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Xe),
				build:    dwordMulProgram(32),
				outputs:  []string{"d"},
			}.legalizeAndCompare()

			Expect(opcodes(f)).To(Equal([]ir.Opcode{
				ir.OpMul, ir.OpMach, ir.OpMov,
				ir.OpMul, ir.OpMach, ir.OpMov,
			}))
		})

		It("should expand it in one piece on 64-byte rows", func() {
			f := equivalence{
				platform: config.PlatformFor(config.XeHPC),
				build:    dwordMulProgram(64),
				outputs:  []string{"d"},
			}.legalizeAndCompare()

			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMul, ir.OpMach, ir.OpMov}))
		})

		It("should keep it on a platform that multiplies dwords", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Gen9),
				build:    dwordMulProgram(32),
				outputs:  []string{"d"},
			}.legalizeAndCompare()

			Expect(opcodes(f)).To(ConsistOf(ir.OpMul))
		})
	})

	Context("when a byte source is packed under a word destination", func() {
		It("should copy it next to the destination lanes once", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Gen9),
				build:    byteToWordProgram,
				outputs:  []string{"d"},
			}.legalizeAndCompare()

			insts := onlyInsts(f)
			Expect(insts).To(HaveLen(2))

			pre, mov := insts[0], insts[1]
			Expect(pre.Op).To(Equal(ir.OpMov))
			Expect(pre.NoMask).To(BeTrue())
			Expect(pre.Srcs[0].Base.Name).To(Equal("s"))

			Expect(mov.Dst.Base.Name).To(Equal("d"))
			Expect(mov.Dst.SubRegOff).To(Equal(1))
			Expect(mov.Dst.H).To(Equal(1))
			Expect(mov.Srcs[0].Base).To(Equal(pre.Dst.Base))
		})
	})

	Context("when a madw adds zero", func() {
		It("should skip the carry chain", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Xe),
				build: madwProgram(func(*ir.Func) *ir.Src {
					return ir.ImmInt(ir.TypeD, 0)
				}),
				outputs: []string{"d"},
			}.legalizeAndCompare()

			Expect(opcodes(f)).To(Equal([]ir.Opcode{ir.OpMul, ir.OpMach, ir.OpMov}))
		})
	})

	Context("when a madw adds a register", func() {
		It("should propagate the carry into the high halves", func() {
			build := madwProgram(func(f *ir.Func) *ir.Src {
				c := f.NewDecl("c", ir.TypeD, 8)
				global(c)
				return contiguous8(c)
			})

			f := equivalence{
				platform: config.PlatformFor(config.Xe),
				build:    build,
				outputs:  []string{"d"},
			}.legalizeAndCompare()

			Expect(opcodes(f)).To(ContainElements(ir.OpAddc, ir.OpAsr))
			Expect(opcodes(f)).NotTo(ContainElement(ir.OpMadw))
		})

		It("should correct the high halves of a negative immediate", func() {
			f := equivalence{
				platform: config.PlatformFor(config.Xe),
				build: madwProgram(func(*ir.Func) *ir.Src {
					return ir.ImmInt(ir.TypeD, -7)
				}),
				outputs: []string{"d"},
			}.legalizeAndCompare()

			Expect(opcodes(f)).To(ContainElement(ir.OpAddc))
		})
	})
})
