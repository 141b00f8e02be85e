package legalize

import (
	"encoding/binary"
	"math"
	"math/rand"

	. "github.com/onsi/gomega"
	"github.com/x448/float16"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/emu"
	"github.com/sarchlab/conform/ir"
)

const allLanes = 0xffffffff

func verifyingDriver(p *config.Platform) *Driver {
	return MakeDriverBuilder().
		WithPlatform(p).
		WithOptions(config.MakeOptions().WithVerify(true)).
		Build()
}

func global(ds ...*ir.Declare) {
	for _, d := range ds {
		d.Global = true
	}
}

func contiguous8(d *ir.Declare) *ir.Src {
	return ir.SrcOf(d, 0, ir.Contiguous(8))
}

func opcodes(f *ir.Func) []ir.Opcode {
	var ops []ir.Opcode
	for _, b := range f.Blocks {
		for _, inst := range f.InstsOf(b) {
			ops = append(ops, inst.Op)
		}
	}

	return ops
}

func onlyInsts(f *ir.Func) []*ir.Inst {
	var insts []*ir.Inst
	for _, b := range f.Blocks {
		insts = append(insts, f.InstsOf(b)...)
	}

	return insts
}

// inputs maps declare names to their initial bytes.
type inputs map[string][]byte

func randomInputs(f *ir.Func, rng *rand.Rand) inputs {
	in := make(inputs)
	for _, d := range f.Decls {
		if d.AliasOf != nil || (d.File != ir.RegFileGRF && d.File != ir.RegFileFlag) {
			continue
		}

		buf := make([]byte, d.ByteSize())
		rng.Read(buf)
		in[d.Name] = buf
	}

	return in
}

func (in inputs) putF(name string, vals ...float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(in[name][4*i:], math.Float32bits(v))
	}
}

func (in inputs) putUD(name string, vals ...uint32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(in[name][4*i:], v)
	}
}

func (in inputs) putHF(name string, vals ...float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint16(in[name][2*i:], float16.Fromfloat32(v).Bits())
	}
}

func runWith(f *ir.Func, emask uint32, in inputs) *emu.State {
	s := emu.NewState(f, emask)
	for name, buf := range in {
		for i, b := range buf {
			s.Set(name, ir.TypeUB, i, uint64(b))
		}
	}

	emu.New(f).Run(s)

	return s
}

// equivalence describes a program whose legalized form must leave the same
// bytes in outputs as the original.
type equivalence struct {
	platform *config.Platform
	build    func() *ir.Func
	outputs  []string
	masks    []uint32

	// prepare adjusts random inputs, typically to keep floats finite.
	prepare func(in inputs, rng *rand.Rand)
}

// legalizeAndCompare legalizes a fresh copy of the program, checks it is
// conformant and compares it with the original on random inputs, under
// partial execution masks as well when a block is divergent.
func (e equivalence) legalizeAndCompare() *ir.Func {
	legal := e.build()
	Expect(verifyingDriver(e.platform).Legalize(legal)).To(Succeed())
	Expect(CheckConformity(legal, e.platform)).To(BeEmpty(), ir.DumpBlock(legal, legal.Blocks[0]))
	Expect(ir.Verify(legal)).To(BeEmpty())

	orig := e.build()

	masks := e.masks
	if len(masks) == 0 {
		masks = []uint32{allLanes}
		if divergent(orig) {
			masks = append(masks, 0x00ff0f0f, 0x0000f0f0)
		}
	}

	for seed := int64(1); seed <= 6; seed++ {
		rng := rand.New(rand.NewSource(seed))
		in := randomInputs(orig, rng)
		if e.prepare != nil {
			e.prepare(in, rng)
		}

		for _, mask := range masks {
			want := runWith(orig, mask, in)
			got := runWith(legal, mask, in)

			for _, name := range e.outputs {
				Expect(got.Bytes(name)).To(Equal(want.Bytes(name)),
					"%s differs for seed %d and mask %#x", name, seed, mask)
			}
		}
	}

	return legal
}

// divergent reports whether some block of f may run with lanes disabled.
// Only such functions are compared under partial execution masks.
func divergent(f *ir.Func) bool {
	for _, b := range f.Blocks {
		if !b.AllLanesActive {
			return true
		}
	}

	return false
}

func smallFloats(rng *rand.Rand, n int) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(rng.Intn(64)-32) / 4
	}

	return vals
}
