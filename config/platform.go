package config

import (
	"fmt"
	"strings"

	"github.com/sarchlab/conform/ir"
)

// Generation is a hardware generation with its own capability preset.
type Generation uint8

// Known generations.
const (
	Gen9 Generation = iota
	Gen9LP
	Gen11
	Xe
	XeHP
	XeHPC
	Xe2
	numGenerations
)

var generationNames = [numGenerations]string{
	"gen9", "gen9lp", "gen11", "xe", "xehp", "xehpc", "xe2",
}

func (g Generation) String() string {
	if g >= numGenerations {
		return fmt.Sprintf("gen(%d)", g)
	}

	return generationNames[g]
}

// ParseGeneration finds a generation by name.
func ParseGeneration(name string) (Generation, error) {
	for i, n := range generationNames {
		if strings.EqualFold(n, name) {
			return Generation(i), nil
		}
	}

	return 0, fmt.Errorf("unknown generation %q", name)
}

// Erratum names a hardware defect that needs a workaround.
type Erratum uint8

// Known errata.
const (
	// WaDisableSendSrcDstOverlap: a send response must not overlap its
	// payload.
	WaDisableSendSrcDstOverlap Erratum = iota
	// WaGRFAlignedSrc2DPAS: a depth-8 repeat-8 dpas needs a row-aligned
	// src2.
	WaGRFAlignedSrc2DPAS
	// WaByteXBarRestriction: byte sources with a stride over two bytes
	// cannot feed dword or wider lanes.
	WaByteXBarRestriction
	// WaDstSrcOverlap: a destination spanning two rows must not partially
	// overlap a source.
	WaDstSrcOverlap
	// WaSame64bSubRegOffset: 64-bit operations need every operand at the
	// same sub-register offset.
	WaSame64bSubRegOffset
	numErrata
)

var errataNames = [numErrata]string{
	"WaDisableSendSrcDstOverlap",
	"WaGRFAlignedSrc2DPAS",
	"WaByteXBarRestriction",
	"WaDstSrcOverlap",
	"WaSame64bSubRegOffset",
}

func (e Erratum) String() string {
	if e >= numErrata {
		return fmt.Sprintf("erratum(%d)", e)
	}

	return errataNames[e]
}

// ParseErratum finds an erratum by name.
func ParseErratum(name string) (Erratum, error) {
	for i, n := range errataNames {
		if n == name {
			return Erratum(i), nil
		}
	}

	return 0, fmt.Errorf("unknown erratum %q", name)
}

// Platform is the read-only capability set of a target. Build one with
// PlatformBuilder; fixes only read it.
type Platform struct {
	gen               Generation
	nativeExecSize    int
	maxExecSize       int
	rowBytes          int
	maskGranularity   int
	nativeDWMul       bool
	align1Ternary     bool
	mixMode           bool
	bfMixMode         bool
	intToHFConversion bool
	packedByteDst     bool
	bfn               bool
	dpas              bool
	errata            uint32
	types             uint32
}

// Generation returns the hardware generation.
func (p *Platform) Generation() Generation { return p.gen }

// NativeExecSize returns the lane count executed per cycle.
func (p *Platform) NativeExecSize() int { return p.nativeExecSize }

// MaxExecSize returns the largest encodable execution size.
func (p *Platform) MaxExecSize() int { return p.maxExecSize }

// RowBytes returns the size of one register row.
func (p *Platform) RowBytes() int { return p.rowBytes }

// MaskGranularity returns the step between legal mask offsets.
func (p *Platform) MaskGranularity() int { return p.maskGranularity }

// HasNativeDWMul reports whether 32x32-bit integer multiply is native.
func (p *Platform) HasNativeDWMul() bool { return p.nativeDWMul }

// HasAlign1Ternary reports whether three-source instructions take regioned
// operands.
func (p *Platform) HasAlign1Ternary() bool { return p.align1Ternary }

// HasMixMode reports whether HF and F operands can be mixed.
func (p *Platform) HasMixMode() bool { return p.mixMode }

// HasBFMixMode reports whether BF and F operands can be mixed.
func (p *Platform) HasBFMixMode() bool { return p.bfMixMode }

// HasIntToHFConversion reports whether a mov converts integers to HF
// directly.
func (p *Platform) HasIntToHFConversion() bool { return p.intToHFConversion }

// HasPackedByteDst reports whether non-mov byte destinations may be packed.
func (p *Platform) HasPackedByteDst() bool { return p.packedByteDst }

// HasBFN reports whether the bfn instruction exists.
func (p *Platform) HasBFN() bool { return p.bfn }

// HasDPAS reports whether the dpas instruction exists.
func (p *Platform) HasDPAS() bool { return p.dpas }

// HasErratum reports whether the workaround for e is needed.
func (p *Platform) HasErratum(e Erratum) bool {
	return p.errata&(1<<e) != 0
}

// Errata lists the active errata.
func (p *Platform) Errata() []Erratum {
	var out []Erratum
	for e := Erratum(0); e < numErrata; e++ {
		if p.HasErratum(e) {
			out = append(out, e)
		}
	}

	return out
}

// Supports reports whether t is a legal operand type.
func (p *Platform) Supports(t ir.Type) bool {
	return p.types&(1<<t) != 0
}

// AccChannels returns how many lanes of type t the accumulator holds.
func (p *Platform) AccChannels(t ir.Type) int {
	size := max(t.Size(), 2)
	return min(p.rowBytes/size, p.maxExecSize)
}

// MaxExecSizeFor returns the largest execution size whose operands of
// execTypeBytes stay within two rows.
func (p *Platform) MaxExecSizeFor(execTypeBytes int) int {
	return min(p.maxExecSize, 2*p.rowBytes/max(execTypeBytes, 1))
}

func (p *Platform) String() string {
	return fmt.Sprintf("%s(simd%d, %dB rows)", p.gen, p.nativeExecSize, p.rowBytes)
}

func typeSet(types ...ir.Type) uint32 {
	var s uint32
	for _, t := range types {
		s |= 1 << t
	}

	return s
}

func errataSet(errata ...Erratum) uint32 {
	var s uint32
	for _, e := range errata {
		s |= 1 << e
	}

	return s
}

var allTypes = typeSet(ir.TypeUB, ir.TypeB, ir.TypeUW, ir.TypeW, ir.TypeUD,
	ir.TypeD, ir.TypeUQ, ir.TypeQ, ir.TypeHF, ir.TypeF, ir.TypeDF)

var presets = [numGenerations]Platform{
	Gen9: {
		nativeExecSize: 8, maxExecSize: 32, rowBytes: 32, maskGranularity: 4,
		nativeDWMul: true, mixMode: true, intToHFConversion: true,
		errata: errataSet(WaDstSrcOverlap),
		types:  allTypes,
	},
	Gen9LP: {
		nativeExecSize: 8, maxExecSize: 32, rowBytes: 32, maskGranularity: 4,
		nativeDWMul: true, intToHFConversion: false,
		errata: errataSet(WaDstSrcOverlap, WaSame64bSubRegOffset),
		types:  allTypes,
	},
	Gen11: {
		nativeExecSize: 8, maxExecSize: 32, rowBytes: 32, maskGranularity: 4,
		align1Ternary: true, mixMode: true, intToHFConversion: true,
		errata: errataSet(WaDstSrcOverlap),
		types:  allTypes,
	},
	Xe: {
		nativeExecSize: 8, maxExecSize: 32, rowBytes: 32, maskGranularity: 4,
		align1Ternary: true, mixMode: true, intToHFConversion: true,
		errata: errataSet(WaDisableSendSrcDstOverlap, WaByteXBarRestriction),
		types:  allTypes &^ typeSet(ir.TypeDF),
	},
	XeHP: {
		nativeExecSize: 8, maxExecSize: 32, rowBytes: 32, maskGranularity: 4,
		align1Ternary: true, mixMode: true, bfMixMode: true, intToHFConversion: true,
		bfn: true, dpas: true,
		errata: errataSet(WaGRFAlignedSrc2DPAS, WaByteXBarRestriction),
		types:  allTypes | typeSet(ir.TypeBF),
	},
	XeHPC: {
		nativeExecSize: 16, maxExecSize: 32, rowBytes: 64, maskGranularity: 8,
		align1Ternary: true, mixMode: true, bfMixMode: true, intToHFConversion: true,
		packedByteDst: true, bfn: true, dpas: true,
		errata: errataSet(WaDisableSendSrcDstOverlap, WaGRFAlignedSrc2DPAS, WaDstSrcOverlap),
		types:  allTypes | typeSet(ir.TypeBF),
	},
	Xe2: {
		nativeExecSize: 16, maxExecSize: 32, rowBytes: 64, maskGranularity: 8,
		align1Ternary: true, mixMode: true, bfMixMode: true, intToHFConversion: true,
		packedByteDst: true, bfn: true, dpas: true,
		types: allTypes | typeSet(ir.TypeBF),
	},
}

// PlatformBuilder builds platforms. Start from a generation preset with
// WithGeneration and override single capabilities afterwards.
type PlatformBuilder struct {
	p Platform
}

// MakePlatformBuilder returns a builder initialized to the Gen9 preset.
func MakePlatformBuilder() PlatformBuilder {
	return PlatformBuilder{}.WithGeneration(Gen9)
}

// WithGeneration resets every capability to the preset of g.
func (b PlatformBuilder) WithGeneration(g Generation) PlatformBuilder {
	if g >= numGenerations {
		panic(fmt.Sprintf("unknown generation %d", g))
	}

	b.p = presets[g]
	b.p.gen = g

	return b
}

// WithNativeExecSize sets the native execution width.
func (b PlatformBuilder) WithNativeExecSize(n int) PlatformBuilder {
	b.p.nativeExecSize = n
	return b
}

// WithRowBytes sets the register row size.
func (b PlatformBuilder) WithRowBytes(n int) PlatformBuilder {
	b.p.rowBytes = n
	return b
}

// WithMaskGranularity sets the mask offset granularity.
func (b PlatformBuilder) WithMaskGranularity(n int) PlatformBuilder {
	b.p.maskGranularity = n
	return b
}

// WithNativeDWMul sets whether 32x32-bit multiply is native.
func (b PlatformBuilder) WithNativeDWMul(on bool) PlatformBuilder {
	b.p.nativeDWMul = on
	return b
}

// WithAlign1Ternary sets whether three-source instructions take regions.
func (b PlatformBuilder) WithAlign1Ternary(on bool) PlatformBuilder {
	b.p.align1Ternary = on
	return b
}

// WithMixMode sets whether HF and F may be mixed.
func (b PlatformBuilder) WithMixMode(on bool) PlatformBuilder {
	b.p.mixMode = on
	return b
}

// WithBFMixMode sets whether BF and F may be mixed.
func (b PlatformBuilder) WithBFMixMode(on bool) PlatformBuilder {
	b.p.bfMixMode = on
	return b
}

// WithIntToHFConversion sets whether mov converts integers to HF directly.
func (b PlatformBuilder) WithIntToHFConversion(on bool) PlatformBuilder {
	b.p.intToHFConversion = on
	return b
}

// WithPackedByteDst sets whether non-mov byte destinations may be packed.
func (b PlatformBuilder) WithPackedByteDst(on bool) PlatformBuilder {
	b.p.packedByteDst = on
	return b
}

// WithBFN sets whether bfn exists.
func (b PlatformBuilder) WithBFN(on bool) PlatformBuilder {
	b.p.bfn = on
	return b
}

// WithErratum turns the workaround for e on or off.
func (b PlatformBuilder) WithErratum(e Erratum, on bool) PlatformBuilder {
	if on {
		b.p.errata |= 1 << e
	} else {
		b.p.errata &^= 1 << e
	}

	return b
}

// WithoutErrata clears every erratum.
func (b PlatformBuilder) WithoutErrata() PlatformBuilder {
	b.p.errata = 0
	return b
}

// WithType adds or removes a supported type.
func (b PlatformBuilder) WithType(t ir.Type, on bool) PlatformBuilder {
	if on {
		b.p.types |= 1 << t
	} else {
		b.p.types &^= 1 << t
	}

	return b
}

// Build returns the platform.
func (b PlatformBuilder) Build() *Platform {
	p := b.p
	if p.nativeExecSize <= 0 || p.rowBytes <= 0 || p.maskGranularity <= 0 {
		panic("platform is missing its execution width, row size or mask granularity")
	}

	return &p
}

// PlatformFor returns the preset of a generation.
func PlatformFor(g Generation) *Platform {
	return PlatformBuilder{}.WithGeneration(g).Build()
}

// PlatformByName returns the preset of a named generation.
func PlatformByName(name string) (*Platform, error) {
	g, err := ParseGeneration(name)
	if err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}

	return PlatformFor(g), nil
}
