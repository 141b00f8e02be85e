package emu

import (
	"fmt"

	"github.com/sarchlab/conform/ir"
)

// Emulator executes the blocks of one function.
type Emulator struct {
	f *ir.Func
}

// New creates an emulator for f.
func New(f *ir.Func) *Emulator {
	return &Emulator{f: f}
}

// Run executes every block of the function in order.
func (e *Emulator) Run(s *State) {
	for _, b := range e.f.Blocks {
		e.RunBlock(b, s)
	}
}

// RunBlock executes the instructions of b in order.
func (e *Emulator) RunBlock(b *ir.Block, s *State) {
	for _, inst := range e.f.InstsOf(b) {
		e.RunInst(inst, s)
	}
}

// RunInst executes one instruction. All sources are read before any
// destination is written.
func (e *Emulator) RunInst(inst *ir.Inst, s *State) {
	instFuncs := map[ir.Opcode]func(*ir.Inst, *State){
		ir.OpNop:         func(_ *ir.Inst, _ *State) {},
		ir.OpMov:         e.runALU,
		ir.OpNot:         e.runALU,
		ir.OpAnd:         e.runALU,
		ir.OpOr:          e.runALU,
		ir.OpXor:         e.runALU,
		ir.OpShl:         e.runALU,
		ir.OpShr:         e.runALU,
		ir.OpAsr:         e.runALU,
		ir.OpAdd:         e.runALU,
		ir.OpMul:         e.runALU,
		ir.OpMulh:        e.runALU,
		ir.OpPseudoMad:   e.runALU,
		ir.OpMad:         e.runALU,
		ir.OpSel:         e.runALU,
		ir.OpCmp:         e.runCmp,
		ir.OpMach:        e.runMach,
		ir.OpMadw:        e.runMadw,
		ir.OpAddc:        e.runCarry,
		ir.OpSubb:        e.runCarry,
		ir.OpSad2:        e.runSad,
		ir.OpSada2:       e.runSad,
		ir.OpPseudoSada2: e.runSad,
		ir.OpBfn:         e.runBfn,
		ir.OpDp4:         e.runDp4,
		ir.OpLine:        e.runLine,
		ir.OpSend:        e.runSend,
		ir.OpDpas:        e.runDpas,
	}

	if instFunc, ok := instFuncs[inst.Op]; ok {
		instFunc(inst, s)
	} else {
		panic(fmt.Sprintf("unknown instruction '%s'", inst.Op))
	}
}

// enabled returns which lanes of inst write results.
func (e *Emulator) enabled(inst *ir.Inst, s *State) []bool {
	lanes := make([]bool, inst.ExecSize)
	for i := range lanes {
		lanes[i] = inst.NoMask || (s.EMask>>(inst.MaskOffset+i))&1 == 1
	}

	p := inst.Pred
	if p == nil || inst.Op == ir.OpSel {
		return lanes
	}

	bits := make([]bool, inst.ExecSize)
	anySet, allSet := false, true
	for i := range bits {
		bits[i] = s.flagBit(p.Flag, p.SubReg*16+inst.MaskOffset+i) != p.Inverse
		anySet = anySet || bits[i]
		allSet = allSet && bits[i]
	}

	for i := range lanes {
		switch p.Control {
		case ir.PredAny:
			lanes[i] = lanes[i] && anySet
		case ir.PredAll:
			lanes[i] = lanes[i] && allSet
		default:
			lanes[i] = lanes[i] && bits[i]
		}
	}

	return lanes
}

func (e *Emulator) predBit(inst *ir.Inst, s *State, lane int) bool {
	p := inst.Pred
	return s.flagBit(p.Flag, p.SubReg*16+inst.MaskOffset+lane) != p.Inverse
}

func (e *Emulator) srcAddr(src *ir.Src, lane int, s *State) int {
	size := src.Type.Size()

	if src.Access == ir.AccessIndirect {
		group, elem := 0, src.Region.ElemOffset(lane)
		if src.Region.VxH {
			group, elem = lane/src.Region.W, (lane%src.Region.W)*src.Region.H
		}

		addr := int(s.load(s.Addr(src.Base, (src.SubRegOff+group)*2), 2))
		return addr + src.AddrImm + elem*size
	}

	return s.root(src.Base) + src.ByteOffset(s.RowBytes) + src.Region.ElemOffset(lane)*size
}

func (e *Emulator) dstAddr(dst *ir.Dst, lane int, s *State) int {
	size := dst.Type.Size()
	if dst.Access == ir.AccessIndirect {
		addr := int(s.load(s.Addr(dst.Base, dst.SubRegOff*2), 2))
		return addr + dst.AddrImm + lane*dst.H*size
	}

	return s.root(dst.Base) + dst.ByteOffset(s.RowBytes) + lane*dst.H*size
}

func (e *Emulator) readSrc(src *ir.Src, lane int, s *State) value {
	var v value

	switch {
	case src.Kind == ir.KindImm:
		v = decode(src.Imm, src.Type)
	case src.Kind == ir.KindAddrOf:
		return intValue(int64(s.Addr(src.Base, src.AddrImm)))
	case src.IsAcc():
		v = decode(s.acc[src.SubRegOff+src.Region.ElemOffset(lane)], src.Type)
	default:
		v = decode(s.load(e.srcAddr(src, lane, s), src.Type.Size()), src.Type)
	}

	return applyMod(v, src.Mod)
}

func (e *Emulator) writeBits(dst *ir.Dst, lane int, bits uint64, s *State) {
	switch {
	case dst.Kind == ir.KindNull:
	case dst.IsAcc():
		s.acc[dst.SubRegOff+lane] = bits
	default:
		s.store(e.dstAddr(dst, lane, s), dst.Type.Size(), bits)
	}
}

// writeValue encodes v for the destination. The accumulator keeps full
// integer precision.
func (e *Emulator) writeValue(inst *ir.Inst, lane int, v value, s *State) uint64 {
	dst := inst.Dst
	if dst.IsAcc() && !v.isFloat {
		s.acc[dst.SubRegOff+lane] = uint64(v.i)
		return uint64(v.i)
	}

	bits := encode(v, dst.Type, inst.Sat)
	e.writeBits(dst, lane, bits, s)

	return bits
}

func (e *Emulator) setCondMod(inst *ir.Inst, lane int, result bool, s *State) {
	cm := inst.CondMod
	s.setFlagBit(cm.Flag, cm.SubReg*16+inst.MaskOffset+lane, result)
}

func domainOf(inst *ir.Inst) (bool, precision) {
	isFloat, prec := false, precF
	if inst.Dst != nil && inst.Dst.Type.IsFloat() {
		isFloat = true
		if inst.Dst.Type == ir.TypeDF {
			prec = precDF
		}
	}

	for n := 0; n < inst.NumSrcs(); n++ {
		if src := inst.Srcs[n]; src != nil && src.Type.IsFloat() {
			isFloat = true
			if src.Type == ir.TypeDF {
				prec = precDF
			}
		}
	}

	return isFloat, prec
}

func (e *Emulator) readArgs(inst *ir.Inst, lane int, s *State, isFloat bool) []value {
	args := make([]value, inst.NumSrcs())
	for n := range args {
		v := e.readSrc(inst.Srcs[n], lane, s)
		if isFloat {
			v = floatValue(v.asFloat())
		} else {
			v = intValue(v.asInt())
		}
		args[n] = v
	}

	return args
}

func (e *Emulator) runALU(inst *ir.Inst, s *State) {
	isFloat, prec := domainOf(inst)
	lanes := e.enabled(inst, s)

	results := make([]value, inst.ExecSize)
	for i := range results {
		args := e.readArgs(inst, i, s, isFloat)
		if isFloat {
			results[i] = floatValue(e.floatOp(inst, s, i, args, prec))
		} else {
			results[i] = intValue(e.intOp(inst, s, i, args))
		}
	}

	for i, on := range lanes {
		if !on {
			continue
		}

		bits := e.writeValue(inst, i, results[i], s)
		if inst.CondMod != nil && inst.Op != ir.OpSel {
			got := decode(bits, inst.Dst.Type)
			zero := intValue(0)
			if got.isFloat {
				zero = floatValue(0)
			}
			e.setCondMod(inst, i, compare(got, zero, inst.CondMod.Kind), s)
		}
	}
}

func (e *Emulator) floatOp(inst *ir.Inst, s *State, lane int, a []value, prec precision) float64 {
	switch inst.Op {
	case ir.OpMov:
		return a[0].f
	case ir.OpAdd:
		return prec.round(a[0].f + a[1].f)
	case ir.OpMul:
		return prec.round(a[0].f * a[1].f)
	case ir.OpMad:
		return prec.round(a[0].f + prec.round(a[1].f*a[2].f))
	case ir.OpPseudoMad:
		return prec.round(prec.round(a[0].f*a[1].f) + a[2].f)
	case ir.OpSel:
		return e.sel(inst, s, lane, a).f
	}

	panic(fmt.Sprintf("%s has no float form", inst.Op))
}

func (e *Emulator) intOp(inst *ir.Inst, s *State, lane int, a []value) int64 {
	shiftMask := int64(31)
	if inst.ExecTypeSize() == 8 {
		shiftMask = 63
	}

	switch inst.Op {
	case ir.OpMov:
		return a[0].i
	case ir.OpNot:
		return ^a[0].i
	case ir.OpAnd:
		return a[0].i & a[1].i
	case ir.OpOr:
		return a[0].i | a[1].i
	case ir.OpXor:
		return a[0].i ^ a[1].i
	case ir.OpShl:
		return a[0].i << (a[1].i & shiftMask)
	case ir.OpShr:
		u := uint64(a[0].i) & maskOf(inst.Srcs[0].Type.Size()*8)
		return int64(u >> (a[1].i & shiftMask))
	case ir.OpAsr:
		return a[0].i >> (a[1].i & shiftMask)
	case ir.OpAdd:
		return a[0].i + a[1].i
	case ir.OpMul:
		return a[0].i * a[1].i
	case ir.OpMulh:
		return (a[0].i * a[1].i) >> 32
	case ir.OpMad:
		return a[0].i + a[1].i*a[2].i
	case ir.OpPseudoMad:
		return a[0].i*a[1].i + a[2].i
	case ir.OpSel:
		return e.sel(inst, s, lane, a).i
	}

	panic(fmt.Sprintf("%s has no integer form", inst.Op))
}

// sel picks by predicate, or computes min/max under a conditional modifier.
func (e *Emulator) sel(inst *ir.Inst, s *State, lane int, a []value) value {
	switch {
	case inst.CondMod != nil:
		if compare(a[0], a[1], inst.CondMod.Kind) {
			return a[0]
		}
		return a[1]
	case inst.Pred != nil:
		if e.predBit(inst, s, lane) {
			return a[0]
		}
		return a[1]
	}

	return a[0]
}

func (e *Emulator) runCmp(inst *ir.Inst, s *State) {
	isFloat, _ := domainOf(inst)
	lanes := e.enabled(inst, s)

	results := make([]bool, inst.ExecSize)
	for i := range results {
		args := e.readArgs(inst, i, s, isFloat)
		results[i] = compare(args[0], args[1], inst.CondMod.Kind)
	}

	for i, on := range lanes {
		if !on {
			continue
		}

		var bits uint64
		if results[i] {
			bits = maskOf(inst.Dst.Type.Size() * 8)
		}
		e.writeBits(inst.Dst, i, bits, s)
		e.setCondMod(inst, i, results[i], s)
	}
}

// runMach completes a product started by a mul into the accumulator: the
// accumulator holds s0 times the low word of s1 and mach adds s0 times the
// rest of s1. The high 32 bits go to the destination and the low 32 bits
// stay in the accumulator.
func (e *Emulator) runMach(inst *ir.Inst, s *State) {
	lanes := e.enabled(inst, s)

	products := make([]int64, inst.ExecSize)
	for i := range products {
		a := e.readArgs(inst, i, s, false)
		partial := int64(s.acc[inst.ImplAccSrc.SubRegOff+i])
		products[i] = partial + a[0].i*(a[1].i-a[1].i&0xffff)
	}

	for i, on := range lanes {
		if !on {
			continue
		}

		e.writeValue(inst, i, intValue(products[i]>>32), s)
		s.acc[inst.ImplAccDst.SubRegOff+i] = uint64(uint32(products[i]))
	}
}

// runMadw writes the low halves of s0*s1+s2 to the destination and the high
// halves to the rows following it.
func (e *Emulator) runMadw(inst *ir.Inst, s *State) {
	lanes := e.enabled(inst, s)
	hi := ir.MadwHi(inst.Dst, inst.ExecSize, s.RowBytes)

	results := make([]int64, inst.ExecSize)
	for i := range results {
		a := e.readArgs(inst, i, s, false)
		results[i] = a[0].i*a[1].i + a[2].i
	}

	for i, on := range lanes {
		if !on {
			continue
		}

		e.writeBits(inst.Dst, i, uint64(uint32(results[i])), s)
		e.writeBits(hi, i, uint64(uint32(results[i]>>32)), s)
	}
}

// runCarry implements addc and subb: the carry or borrow of each lane goes
// to the accumulator channel its destination lane maps to.
func (e *Emulator) runCarry(inst *ir.Inst, s *State) {
	lanes := e.enabled(inst, s)

	type result struct{ lo, carry uint64 }
	results := make([]result, inst.ExecSize)
	for i := range results {
		a := e.readArgs(inst, i, s, false)
		x, y := uint64(uint32(a[0].i)), uint64(uint32(a[1].i))

		if inst.Op == ir.OpAddc {
			sum := x + y
			results[i] = result{uint64(uint32(sum)), sum >> 32}
		} else {
			var borrow uint64
			if x < y {
				borrow = 1
			}
			results[i] = result{uint64(uint32(x - y)), borrow}
		}
	}

	for i, on := range lanes {
		if !on {
			continue
		}

		e.writeBits(inst.Dst, i, results[i].lo, s)
		s.acc[inst.ImplAccDst.SubRegOff+i] = results[i].carry
	}
}

func sadBytes(w int64, signed bool) (int64, int64) {
	lo, hi := int64(uint8(w)), int64(uint8(w>>8))
	if signed {
		lo, hi = int64(int8(w)), int64(int8(w>>8))
	}

	return lo, hi
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}

// runSad implements sad2 and its accumulating forms on pairs of bytes packed
// in each word lane.
func (e *Emulator) runSad(inst *ir.Inst, s *State) {
	lanes := e.enabled(inst, s)

	results := make([]int64, inst.ExecSize)
	for i := range results {
		a := e.readArgs(inst, i, s, false)
		x0, x1 := sadBytes(a[0].i, inst.Srcs[0].Type.IsSigned())
		y0, y1 := sadBytes(a[1].i, inst.Srcs[1].Type.IsSigned())
		sum := abs64(x0-y0) + abs64(x1-y1)

		switch inst.Op {
		case ir.OpSada2:
			sum += int64(s.acc[inst.ImplAccSrc.SubRegOff+i])
		case ir.OpPseudoSada2:
			sum += a[2].i
		}
		results[i] = sum
	}

	for i, on := range lanes {
		if on {
			e.writeValue(inst, i, intValue(results[i]), s)
		}
	}
}

func (e *Emulator) runBfn(inst *ir.Inst, s *State) {
	lanes := e.enabled(inst, s)
	width := inst.Dst.Type.Size() * 8

	results := make([]int64, inst.ExecSize)
	for i := range results {
		a := e.readArgs(inst, i, s, false)
		var r int64
		for bit := 0; bit < width; bit++ {
			idx := (a[0].i>>bit&1)<<2 | (a[1].i>>bit&1)<<1 | a[2].i>>bit&1
			r |= int64(inst.BfnCtrl>>idx&1) << bit
		}
		results[i] = r
	}

	for i, on := range lanes {
		if on {
			e.writeValue(inst, i, intValue(results[i]), s)
		}
	}
}

func (e *Emulator) runDp4(inst *ir.Inst, s *State) {
	isFloat, prec := domainOf(inst)
	lanes := e.enabled(inst, s)

	results := make([]value, inst.ExecSize)
	for i := range results {
		group := i / 4 * 4
		var fsum float64
		var isum int64
		for k := 0; k < 4; k++ {
			x := e.readSrc(inst.Srcs[0], group+k, s)
			y := e.readSrc(inst.Srcs[1], group+k, s)
			if isFloat {
				fsum = prec.round(fsum + prec.round(x.asFloat()*y.asFloat()))
			} else {
				isum += x.asInt() * y.asInt()
			}
		}

		results[i] = intValue(isum)
		if isFloat {
			results[i] = floatValue(fsum)
		}
	}

	for i, on := range lanes {
		if on {
			e.writeValue(inst, i, results[i], s)
		}
	}
}

// runLine computes p*src1 + q where p and q are lanes 0 and 3 of src0.
func (e *Emulator) runLine(inst *ir.Inst, s *State) {
	_, prec := domainOf(inst)
	lanes := e.enabled(inst, s)

	p := e.readSrc(inst.Srcs[0], 0, s).asFloat()
	q := e.readSrc(inst.Srcs[0], 3, s).asFloat()

	results := make([]float64, inst.ExecSize)
	for i := range results {
		x := e.readSrc(inst.Srcs[1], i, s).asFloat()
		results[i] = prec.round(prec.round(p*x) + q)
	}

	for i, on := range lanes {
		if on {
			e.writeValue(inst, i, floatValue(results[i]), s)
		}
	}
}

// runSend models a message as a pure function of its payload: response
// dword k is payload dword k (mod payload size) plus k plus the function ID.
// The whole response is written when any lane executes.
func (e *Emulator) runSend(inst *ir.Inst, s *State) {
	row := s.RowBytes
	var payload []uint64

	src0 := inst.Srcs[0]
	for k := 0; k < inst.Msg.MsgLen*row/4; k++ {
		payload = append(payload, s.load(s.root(src0.Base)+src0.ByteOffset(row)+4*k, 4))
	}

	if src1 := inst.Srcs[1]; src1.IsReg() {
		for k := 0; k < inst.Msg.ExtMsgLen*row/4; k++ {
			payload = append(payload, s.load(s.root(src1.Base)+src1.ByteOffset(row)+4*k, 4))
		}
	}

	active := false
	for _, on := range e.enabled(inst, s) {
		active = active || on
	}

	if !active || !inst.Dst.IsReg() {
		return
	}

	base := s.root(inst.Dst.Base) + inst.Dst.ByteOffset(row)
	for k := 0; k < inst.Msg.RespLen*row/4; k++ {
		var v uint64
		if len(payload) > 0 {
			v = payload[k%len(payload)]
		}
		s.store(base+4*k, 4, uint64(uint32(v+uint64(k)+uint64(inst.Msg.FuncID))))
	}
}

// runDpas computes, for each repeat row r and lane n,
// dst[r][n] = src0[r][n] + sum_k src1[k][n] * src2[r][k].
func (e *Emulator) runDpas(inst *ir.Inst, s *State) {
	lanes := e.enabled(inst, s)
	row := s.RowBytes
	exec, depth, repeat := inst.ExecSize, inst.Dpas.Depth, inst.Dpas.Repeat

	elem := func(src *ir.Src, idx int) float64 {
		addr := s.root(src.Base) + src.ByteOffset(row) + idx*src.Type.Size()
		return decode(s.load(addr, src.Type.Size()), src.Type).asFloat()
	}

	results := make([]float64, repeat*exec)
	for r := 0; r < repeat; r++ {
		for n := 0; n < exec; n++ {
			acc := elem(inst.Srcs[0], r*exec+n)
			for k := 0; k < depth; k++ {
				acc = precF.round(acc + precF.round(elem(inst.Srcs[1], k*exec+n)*elem(inst.Srcs[2], r*depth+k)))
			}
			results[r*exec+n] = acc
		}
	}

	dst := inst.Dst
	base := s.root(dst.Base) + dst.ByteOffset(row)
	for r := 0; r < repeat; r++ {
		for n, on := range lanes {
			if on {
				idx := r*exec + n
				s.store(base+idx*dst.Type.Size(), dst.Type.Size(), encode(floatValue(results[idx]), dst.Type, inst.Sat))
			}
		}
	}
}
