package emu

import (
	"math"

	"github.com/x448/float16"

	"github.com/sarchlab/conform/ir"
)

// value is one lane of an operand after decoding. Integer values keep the
// exact 64-bit result; float values are kept in float64 and rounded to the
// computation precision after every primitive operation.
type value struct {
	i       int64
	f       float64
	isFloat bool
}

func intValue(v int64) value     { return value{i: v} }
func floatValue(v float64) value { return value{f: v, isFloat: true} }

func (v value) asFloat() float64 {
	if v.isFloat {
		return v.f
	}

	return float64(v.i)
}

func (v value) asInt() int64 {
	if !v.isFloat {
		return v.i
	}

	return truncToInt(v.f)
}

func truncToInt(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}

	return int64(f)
}

// decode turns raw bits of type t into a value.
func decode(bits uint64, t ir.Type) value {
	switch t {
	case ir.TypeHF:
		return floatValue(float64(float16.Frombits(uint16(bits)).Float32()))
	case ir.TypeBF:
		return floatValue(float64(math.Float32frombits(uint32(bits) << 16)))
	case ir.TypeF:
		return floatValue(float64(math.Float32frombits(uint32(bits))))
	case ir.TypeDF:
		return floatValue(math.Float64frombits(bits))
	}

	size := t.Size() * 8
	if size >= 64 {
		return intValue(int64(bits))
	}

	bits &= (1 << size) - 1
	if t.IsSigned() {
		shift := 64 - size
		return intValue(int64(bits<<shift) >> shift)
	}

	return intValue(int64(bits))
}

// encode converts v to type t. Integers wrap unless sat is set; floats
// converted to integers saturate.
func encode(v value, t ir.Type, sat bool) uint64 {
	if t.IsFloat() {
		f := v.asFloat()
		if sat {
			f = saturateFloat(f)
		}

		return floatBits(f, t)
	}

	size := t.Size() * 8
	if v.isFloat || sat {
		lo, hi := intRange(t)
		if v.isFloat {
			f := v.f
			if math.IsNaN(f) {
				return 0
			}
			f = math.Trunc(f)
			if f <= float64(lo) {
				return uint64(lo) & maskOf(size)
			}
			if f >= float64(hi) {
				return uint64(hi) & maskOf(size)
			}
			return uint64(int64(f)) & maskOf(size)
		}

		i := v.i
		if i < lo {
			i = lo
		}
		if t.IsSigned() || size == 64 {
			if i > hi {
				i = hi
			}
		} else if uint64(i) > uint64(hi) {
			i = hi
		}

		return uint64(i) & maskOf(size)
	}

	return uint64(v.i) & maskOf(size)
}

func maskOf(bits int) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}

	return (1 << bits) - 1
}

func intRange(t ir.Type) (int64, int64) {
	bits := t.Size() * 8
	if t.IsSigned() {
		if bits == 64 {
			return math.MinInt64, math.MaxInt64
		}
		return -(1 << (bits - 1)), (1 << (bits - 1)) - 1
	}

	if bits == 64 {
		return 0, math.MaxInt64
	}

	return 0, (1 << bits) - 1
}

func saturateFloat(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}

	return f
}

func floatBits(f float64, t ir.Type) uint64 {
	switch t {
	case ir.TypeHF:
		return uint64(float16.Fromfloat32(float32(f)).Bits())
	case ir.TypeBF:
		return uint64(bfloat16Bits(float32(f)))
	case ir.TypeF:
		return uint64(math.Float32bits(float32(f)))
	}

	return math.Float64bits(f)
}

// bfloat16Bits rounds to nearest even on the upper half of the float32.
func bfloat16Bits(f float32) uint16 {
	b := math.Float32bits(f)
	if math.IsNaN(float64(f)) {
		return uint16(b>>16) | 0x40
	}

	b += 0x7fff + (b>>16)&1
	return uint16(b >> 16)
}

// precision rounds a float result to the computation precision of an
// instruction: float32 unless a 64-bit float operand is involved.
type precision bool

const (
	precF  precision = false
	precDF precision = true
)

func (p precision) round(f float64) float64 {
	if p == precDF {
		return f
	}

	return float64(float32(f))
}

func applyMod(v value, m ir.Modifier) value {
	switch m {
	case ir.ModAbs, ir.ModNegAbs:
		if v.isFloat {
			v.f = math.Abs(v.f)
		} else if v.i < 0 {
			v.i = -v.i
		}
	}

	switch m {
	case ir.ModNeg, ir.ModNegAbs:
		if v.isFloat {
			v.f = -v.f
		} else {
			v.i = -v.i
		}
	}

	return v
}

func compare(a, b value, kind ir.CondKind) bool {
	if a.isFloat || b.isFloat {
		x, y := a.asFloat(), b.asFloat()
		switch kind {
		case ir.CondEq:
			return x == y
		case ir.CondNe:
			return x != y
		case ir.CondGt:
			return x > y
		case ir.CondGe:
			return x >= y
		case ir.CondLt:
			return x < y
		case ir.CondLe:
			return x <= y
		}
	}

	x, y := a.i, b.i
	switch kind {
	case ir.CondEq:
		return x == y
	case ir.CondNe:
		return x != y
	case ir.CondGt:
		return x > y
	case ir.CondGe:
		return x >= y
	case ir.CondLt:
		return x < y
	}

	return x <= y
}
