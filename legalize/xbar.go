package legalize

import (
	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

// byteXBar reports whether source n is a byte source read at more than two
// bytes per lane by an instruction with a 32-bit or wider execution type.
func byteXBar(p *config.Platform, inst *ir.Inst, n int) bool {
	s := inst.Srcs[n]
	if !p.HasErratum(config.WaByteXBarRestriction) || alignExempt(inst) || inst.ExecSize == 1 {
		return false
	}

	if !directGRFSrc(s) || s.Type.Size() != 1 || s.Region.IsScalar() || execBytes(inst) < 4 {
		return false
	}

	stride, ok := s.Region.UniformStride(inst.ExecSize)
	return !ok || stride > 2
}

// fixByteXBar moves offending byte sources into a word temporary laid out
// like the destination.
func fixByteXBar(c *fixCtx, id ir.InstID) Result {
	res := unchanged()

	for n := 0; n < c.inst(id).NumSrcs(); n++ {
		inst := c.inst(id)
		if !byteXBar(c.p, inst, n) {
			continue
		}

		s := inst.Srcs[n]
		t := ir.IntType(2, s.Type.IsSigned())
		if inst.Op == ir.OpShr {
			t = ir.TypeUW
		}

		tmpDst, tmpSrc := c.dstLikeTemp(inst, t)
		mov := c.copySrc(id, n, tmpDst, tmpSrc)
		if t == ir.TypeUW && s.Type.IsSigned() {
			c.modify(mov, func(mov *ir.Inst) { mov.Srcs[0].Type = ir.TypeUB })
		}

		res = res.merge(replaced(mov, id))
	}

	return res
}
