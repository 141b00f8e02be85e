package legalize

import (
	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
)

// packedByteDst reports whether inst writes packed bytes on a platform that
// cannot.
func packedByteDst(p *config.Platform, inst *ir.Inst) bool {
	d := inst.Dst
	if p.HasPackedByteDst() || inst.Op == ir.OpMov || inst.ExecSize == 1 {
		return false
	}

	return directGRFDst(d) && d.Type.Size() == 1 && d.H == 1
}

// byteOnlyAccess reports whether every operand of inst touching root reads
// or writes it directly as bytes.
func byteOnlyAccess(inst *ir.Inst, root *ir.Declare) bool {
	rowBased := inst.Op == ir.OpSend || inst.Op == ir.OpDpas

	if d := inst.Dst; d.IsDirect() && d.Base.Root() == root {
		if rowBased || d.Type.Size() != 1 {
			return false
		}
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		s := inst.Srcs[n]
		if s == nil || s.Base == nil || s.Base.Root() != root {
			continue
		}

		if s.Kind == ir.KindAddrOf || !s.IsDirect() || rowBased || s.Type.Size() != 1 {
			return false
		}
	}

	return true
}

// widenableRoots returns the roots written as packed bytes that can be
// given a two-byte stride everywhere, in declaration order.
func widenableRoots(f *ir.Func, p *config.Platform) []*ir.Declare {
	if p.HasPackedByteDst() {
		return nil
	}

	aliased := make(map[*ir.Declare]bool)
	for _, d := range f.Decls {
		if d.AliasOf != nil {
			aliased[d.Root()] = true
		}
	}

	candidates := make(map[*ir.Declare]bool)
	for _, b := range f.Blocks {
		for _, inst := range f.InstsOf(b) {
			if packedByteDst(p, inst) {
				candidates[inst.Dst.Base.Root()] = true
			}
		}
	}

	for root := range candidates {
		if root.Global || root.AddressTaken || root.Fixed || aliased[root] {
			delete(candidates, root)
		}
	}

	for _, b := range f.Blocks {
		for _, inst := range f.InstsOf(b) {
			for root := range candidates {
				if !byteOnlyAccess(inst, root) {
					delete(candidates, root)
				}
			}
		}
	}

	var roots []*ir.Declare
	for _, d := range f.Decls {
		if candidates[d] {
			roots = append(roots, d)
		}
	}

	return roots
}

// widenPackedBytes doubles the storage of every widenable root and spreads
// its bytes two apart, so that no instruction has to write packed bytes.
func widenPackedBytes(f *ir.Func, p *config.Platform, step string) []*ir.Declare {
	roots := widenableRoots(f, p)
	if len(roots) == 0 {
		return nil
	}

	widen := make(map[*ir.Declare]bool, len(roots))
	for _, root := range roots {
		root.NumElems *= 2
		widen[root] = true
	}

	for _, b := range f.Blocks {
		c := newFixCtx(f, p, b, step)

		for _, inst := range f.InstsOf(b) {
			if !touchesAny(inst, widen) {
				continue
			}

			c.modify(inst.ID, func(inst *ir.Inst) { spreadBytes(inst, widen, f.RowBytes) })
		}

		c.flush()
	}

	return roots
}

func touchesAny(inst *ir.Inst, roots map[*ir.Declare]bool) bool {
	if d := inst.Dst; d.IsDirect() && roots[d.Base.Root()] {
		return true
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if s := inst.Srcs[n]; s.IsDirect() && roots[s.Base.Root()] {
			return true
		}
	}

	return false
}

// spreadBytes rewrites the operands of inst on the given roots for a
// layout where byte i lives at offset 2i.
func spreadBytes(inst *ir.Inst, roots map[*ir.Declare]bool, rowBytes int) {
	if d := inst.Dst; d.IsDirect() && roots[d.Base.Root()] {
		off := d.ByteOffset(rowBytes)
		d.RegOff, d.SubRegOff = 0, 2*off
		if inst.ExecSize > 1 {
			d.H *= 2
		}
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		s := inst.Srcs[n]
		if !s.IsDirect() || !roots[s.Base.Root()] {
			continue
		}

		off := s.ByteOffset(rowBytes)
		s.RegOff, s.SubRegOff = 0, 2*off
		if !s.Region.IsScalar() {
			s.Region.V *= 2
			s.Region.H *= 2
		}
	}
}
