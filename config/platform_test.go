package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

var _ = Describe("Platform", func() {
	DescribeTable("presets",
		func(g config.Generation, rowBytes, gran int, errata []config.Erratum) {
			p := config.PlatformFor(g)

			Expect(p.Generation()).To(Equal(g))
			Expect(p.RowBytes()).To(Equal(rowBytes))
			Expect(p.MaskGranularity()).To(Equal(gran))
			Expect(p.MaxExecSize()).To(Equal(32))
			if errata == nil {
				Expect(p.Errata()).To(BeEmpty())
			} else {
				Expect(p.Errata()).To(Equal(errata))
			}
		},
		Entry("gen9", config.Gen9, 32, 4, []config.Erratum{config.WaDstSrcOverlap}),
		Entry("gen9lp", config.Gen9LP, 32, 4,
			[]config.Erratum{config.WaDstSrcOverlap, config.WaSame64bSubRegOffset}),
		Entry("xe", config.Xe, 32, 4,
			[]config.Erratum{config.WaDisableSendSrcDstOverlap, config.WaByteXBarRestriction}),
		Entry("xehpc", config.XeHPC, 64, 8, []config.Erratum{
			config.WaDisableSendSrcDstOverlap, config.WaGRFAlignedSrc2DPAS, config.WaDstSrcOverlap,
		}),
		Entry("xe2", config.Xe2, 64, 8, nil),
	)

	It("should know which generations multiply dwords natively", func() {
		Expect(config.PlatformFor(config.Gen9).HasNativeDWMul()).To(BeTrue())
		Expect(config.PlatformFor(config.Xe).HasNativeDWMul()).To(BeFalse())
		Expect(config.PlatformFor(config.Gen9LP).HasMixMode()).To(BeFalse())
		Expect(config.PlatformFor(config.XeHP).HasBFN()).To(BeTrue())
		Expect(config.PlatformFor(config.Xe).HasDPAS()).To(BeFalse())
	})

	It("should restrict types per generation", func() {
		Expect(config.PlatformFor(config.Xe).Supports(ir.TypeDF)).To(BeFalse())
		Expect(config.PlatformFor(config.Gen9).Supports(ir.TypeBF)).To(BeFalse())
		Expect(config.PlatformFor(config.XeHP).Supports(ir.TypeBF)).To(BeTrue())
	})

	It("should size the accumulator by type", func() {
		p := config.PlatformFor(config.Gen9)

		Expect(p.AccChannels(ir.TypeD)).To(Equal(8))
		Expect(p.AccChannels(ir.TypeW)).To(Equal(16))
		Expect(p.AccChannels(ir.TypeB)).To(Equal(16))
		Expect(config.PlatformFor(config.XeHPC).AccChannels(ir.TypeD)).To(Equal(16))
	})

	It("should keep operands within two rows", func() {
		p := config.PlatformFor(config.Gen9)

		Expect(p.MaxExecSizeFor(4)).To(Equal(16))
		Expect(p.MaxExecSizeFor(8)).To(Equal(8))
		Expect(p.MaxExecSizeFor(1)).To(Equal(32))
	})

	It("should override single capabilities", func() {
		p := config.MakePlatformBuilder().
			WithGeneration(config.Xe).
			WithNativeDWMul(true).
			WithErratum(config.WaByteXBarRestriction, false).
			WithType(ir.TypeDF, true).
			Build()

		Expect(p.HasNativeDWMul()).To(BeTrue())
		Expect(p.HasErratum(config.WaByteXBarRestriction)).To(BeFalse())
		Expect(p.HasErratum(config.WaDisableSendSrcDstOverlap)).To(BeTrue())
		Expect(p.Supports(ir.TypeDF)).To(BeTrue())
		Expect(config.PlatformFor(config.Xe).HasNativeDWMul()).To(BeFalse())
	})

	It("should refuse a platform without rows", func() {
		Expect(func() {
			config.MakePlatformBuilder().WithRowBytes(0).Build()
		}).To(Panic())
	})

	It("should look platforms up by name", func() {
		p, err := config.PlatformByName("XeHPC")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Generation()).To(Equal(config.XeHPC))
		Expect(p.String()).To(Equal("xehpc(simd16, 64B rows)"))

		_, err = config.PlatformByName("gen42")
		Expect(err).To(MatchError(ContainSubstring("unknown generation")))
	})

	It("should parse errata by name", func() {
		e, err := config.ParseErratum("WaDstSrcOverlap")
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(config.WaDstSrcOverlap))
		Expect(e.String()).To(Equal("WaDstSrcOverlap"))

		_, err = config.ParseErratum("WaNothing")
		Expect(err).To(HaveOccurred())
	})
})
