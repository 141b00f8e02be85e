// Package emu is a reference SIMD emulator for the IR. It gives every
// instruction a precise per-lane meaning so rewritten code can be compared
// with the original.
package emu

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/sarchlab/conform/ir"
)

// State is the register file seen by one run: every root declare gets a
// row-aligned slice of a flat byte array, and the accumulator keeps 64-bit
// channels.
type State struct {
	RowBytes int
	EMask    uint32

	mem   []byte
	base  map[*ir.Declare]int
	names map[string]*ir.Declare
	acc   [64]uint64
}

// NewState lays out every root declare of f. Lanes whose bit is clear in
// emask are inactive unless an instruction is NoMask.
func NewState(f *ir.Func, emask uint32) *State {
	s := &State{
		RowBytes: f.RowBytes,
		EMask:    emask,
		base:     make(map[*ir.Declare]int),
		names:    make(map[string]*ir.Declare),
	}

	for _, d := range f.Decls {
		if d.AliasOf == nil {
			s.root(d)
		}
		s.names[d.Name] = d
	}

	return s
}

func (s *State) root(d *ir.Declare) int {
	d = d.Root()
	if off, ok := s.base[d]; ok {
		return off
	}

	off := len(s.mem)
	rows := (d.ByteSize() + s.RowBytes - 1) / s.RowBytes
	s.mem = append(s.mem, make([]byte, max(rows, 1)*s.RowBytes)...)
	s.base[d] = off
	s.names[d.Name] = d

	return off
}

// Addr returns the flat address of byte off of declare d.
func (s *State) Addr(d *ir.Declare, off int) int {
	return s.root(d) + d.RootOffset() + off
}

func (s *State) load(addr, size int) uint64 {
	if addr < 0 || addr+size > len(s.mem) {
		panic(fmt.Sprintf("load of %d bytes at %#x is out of range", size, addr))
	}

	var buf [8]byte
	copy(buf[:], s.mem[addr:addr+size])

	return binary.LittleEndian.Uint64(buf[:])
}

func (s *State) store(addr, size int, v uint64) {
	if addr < 0 || addr+size > len(s.mem) {
		panic(fmt.Sprintf("store of %d bytes at %#x is out of range", size, addr))
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(s.mem[addr:addr+size], buf[:size])
}

func (s *State) decl(name string) *ir.Declare {
	d, ok := s.names[name]
	if !ok {
		panic(fmt.Sprintf("no declare named %q", name))
	}

	return d
}

// Set writes element idx of the named declare, viewed as type t.
func (s *State) Set(name string, t ir.Type, idx int, bits uint64) {
	d := s.decl(name)
	s.store(s.Addr(d, idx*t.Size()), t.Size(), bits)
}

// Get reads element idx of the named declare, viewed as type t.
func (s *State) Get(name string, t ir.Type, idx int) uint64 {
	d := s.decl(name)
	return s.load(s.Addr(d, idx*t.Size()), t.Size())
}

// Fill writes consecutive elements starting at element 0.
func (s *State) Fill(name string, t ir.Type, values ...uint64) {
	for i, v := range values {
		s.Set(name, t, i, v)
	}
}

// Elems reads n consecutive elements starting at element 0.
func (s *State) Elems(name string, t ir.Type, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = s.Get(name, t, i)
	}

	return out
}

// Bytes returns a copy of the storage of the named declare.
func (s *State) Bytes(name string) []byte {
	d := s.decl(name)
	addr := s.Addr(d, 0)

	return append([]byte(nil), s.mem[addr:addr+d.ByteSize()]...)
}

// SetFlag writes the 32 bits of the named flag register.
func (s *State) SetFlag(name string, bits uint32) {
	s.Set(name, ir.TypeUD, 0, uint64(bits))
}

// Flag reads the 32 bits of the named flag register.
func (s *State) Flag(name string) uint32 {
	return uint32(s.Get(name, ir.TypeUD, 0))
}

func (s *State) flagBit(flag *ir.Declare, bit int) bool {
	addr := s.Addr(flag, bit/8)
	return s.mem[addr]&(1<<(bit%8)) != 0
}

func (s *State) setFlagBit(flag *ir.Declare, bit int, on bool) {
	addr := s.Addr(flag, bit/8)
	if on {
		s.mem[addr] |= 1 << (bit % 8)
	} else {
		s.mem[addr] &^= 1 << (bit % 8)
	}
}

// Acc returns accumulator channel ch.
func (s *State) Acc(ch int) uint64 {
	return s.acc[ch]
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.mem = append([]byte(nil), s.mem...)
	c.base = make(map[*ir.Declare]int, len(s.base))
	for k, v := range s.base {
		c.base[k] = v
	}

	c.names = make(map[string]*ir.Declare, len(s.names))
	for k, v := range s.names {
		c.names[k] = v
	}

	return &c
}

// LogState writes a checkpoint of the named declares at debug level.
func (s *State) LogState(names ...string) {
	args := make([]any, 0, 2*len(names))
	for _, n := range names {
		args = append(args, n, s.Bytes(n))
	}

	slog.Debug("StateCheckpoint", args...)
}
