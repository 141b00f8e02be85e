package legalize

import (
	"fmt"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

// IssueEncoding marks an instruction the platform cannot encode.
const IssueEncoding ir.IssueType = "ENCODE"

type checker struct {
	c      *fixCtx
	issues []ir.Issue
}

func (k *checker) report(inst *ir.Inst, format string, args ...any) {
	k.issues = append(k.issues, ir.Issue{
		Type:    IssueEncoding,
		Inst:    inst.ID,
		Message: fmt.Sprintf("%s: %s", inst.Op, fmt.Sprintf(format, args...)),
	})
}

// CheckConformity lists every instruction of f that still breaks a rule of
// p. A legalized function has none.
func CheckConformity(f *ir.Func, p *config.Platform) []ir.Issue {
	k := &checker{}

	for _, b := range f.Blocks {
		k.c = newFixCtx(f, p, b, "check")
		for _, inst := range f.InstsOf(b) {
			k.check(inst)
		}
	}

	return k.issues
}

func (k *checker) check(inst *ir.Inst) {
	k.checkOpcode(inst)
	k.checkRegions(inst)
	k.checkAlignment(inst)
	k.checkImmediates(inst)
	k.checkDst(inst)
	k.checkMixed(inst)
	k.checkWorkarounds(inst)
}

func (k *checker) checkOpcode(inst *ir.Inst) {
	c := k.c

	switch {
	case inst.Op == ir.OpPseudoMad || inst.Op == ir.OpPseudoSada2:
		k.report(inst, "pseudo instruction left")
	case inst.Op == ir.OpMulh || inst.Op == ir.OpMadw:
		k.report(inst, "macro left unexpanded")
	case c.needsDWMulMacro(inst):
		if _, ok := narrowImmFactor(inst.Srcs[1]); !ok {
			k.report(inst, "32-bit multiply without native support")
		}
	case inst.Op == ir.OpBfn && !c.p.HasBFN():
		k.report(inst, "not available on %s", c.p)
	}

	if !inst.Op.AllowsSrcModifiers() {
		for n := 0; n < inst.NumSrcs(); n++ {
			if inst.Srcs[n].Mod != ir.ModNone {
				k.report(inst, "source modifier on %s", ir.OpndPos(n))
			}
		}
	}

	if inst.Op == ir.OpMad || inst.Op == ir.OpBfn {
		for n := 0; n < 3; n++ {
			if s := inst.Srcs[n]; s.IsReg() && s.Access == ir.AccessIndirect {
				k.report(inst, "indirect %s in a three-source instruction", ir.OpndPos(n))
			}
		}
	}
}

func (k *checker) checkRegions(inst *ir.Inst) {
	c := k.c
	if reduceExempt(inst) {
		return
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if regionExempt(inst, n) {
			continue
		}

		if want := legalRegion(inst, n, c.row()); want != inst.Srcs[n].Region {
			k.report(inst, "%s region %v should be %v", ir.OpndPos(n), inst.Srcs[n].Region, want)
		}
	}

	if crossingGroups(inst, c.row()) {
		k.report(inst, "a region width group crosses a row")
	}

	if plan := PlanSplit(c.shapeOf(inst)); plan.Kind != Fits {
		k.report(inst, "execution size %d needs %s %v", inst.ExecSize, plan.Kind, plan.Widths)
	}
}

func (k *checker) checkAlignment(inst *ir.Inst) {
	c := k.c

	if dstTooNarrow(c.p, inst) {
		k.report(inst, "destination stride is narrower than the execution type")
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if narrowSrcMisaligned(c.p, inst, n, c.row()) {
			k.report(inst, "narrow %s is not placed like the destination", ir.OpndPos(n))
		}

		if qwordSrcMisaligned(c.p, inst, n, c.row()) {
			k.report(inst, "64-bit %s has a different row position than the destination", ir.OpndPos(n))
		}
	}

	if accDstMisaligned(inst, c.row()) {
		k.report(inst, "accumulator user writes a destination inside a row")
	}

	if inst.Op == ir.OpSend {
		for n := 0; n < 2; n++ {
			s := inst.Srcs[n]
			if payloadRows(inst, n) > 0 && directGRFSrc(s) && !c.rowAligned(s.Base, s.ByteOffset(c.row())) {
				k.report(inst, "payload %s does not start a row", ir.OpndPos(n))
			}
		}

		if d := inst.Dst; directGRFDst(d) && inst.Msg.RespLen > 0 && !c.rowAligned(d.Base, d.ByteOffset(c.row())) {
			k.report(inst, "response does not start a row")
		}
	}
}

func (k *checker) checkImmediates(inst *ir.Inst) {
	for n := 0; n < inst.NumSrcs(); n++ {
		if _, ok := immNeedsRetype(inst, n); ok {
			k.report(inst, "immediate %s cannot be encoded as %s", ir.OpndPos(n), inst.Srcs[n].Type)
		}

		if s := inst.Srcs[n]; s.IsImm() && s.Type.Size() == 8 && inst.Op != ir.OpMov && !immExempt(inst) {
			k.report(inst, "64-bit immediate %s", ir.OpndPos(n))
		}
	}

	if n := misplacedImm(inst); n >= 0 {
		k.report(inst, "immediate in %s", ir.OpndPos(n))
	}
}

func (k *checker) checkDst(inst *ir.Inst) {
	if badDstStride(inst) {
		k.report(inst, "destination stride %d", inst.Dst.H)
	}
}

func (k *checker) checkMixed(inst *ir.Inst) {
	c := k.c

	if c.intToHF(inst) {
		k.report(inst, "integer to half float conversion")
	}

	if hf, bf := c.unsupportedMix(inst); hf || bf {
		k.report(inst, "unsupported mix of float precisions")
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if c.packedHFMisplaced(inst, n) {
			k.report(inst, "packed half float %s is misplaced", ir.OpndPos(n))
		}
	}
}

func (k *checker) checkWorkarounds(inst *ir.Inst) {
	c := k.c

	if inst.Op == ir.OpSend && c.p.HasErratum(config.WaDisableSendSrcDstOverlap) {
		for n := 0; n < 2; n++ {
			if sendOverlaps(inst, n, c.row()) {
				k.report(inst, "response overlaps payload %s", ir.OpndPos(n))
			}
		}
	}

	if dpasSrc2Misaligned(c.p, inst, c.row()) {
		k.report(inst, "src2 of a full-size dpas does not start a row")
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if byteXBar(c.p, inst, n) {
			k.report(inst, "byte %s crosses the crossbar", ir.OpndPos(n))
		}

		if dstSrcOverlap(c.p, inst, n, c.row()) {
			k.report(inst, "%s partially overlaps the destination", ir.OpndPos(n))
		}
	}
}
