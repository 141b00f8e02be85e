package ir

import "fmt"

// RegFile is the register file a declare lives in.
type RegFile uint8

// Register files.
const (
	RegFileGRF RegFile = iota
	RegFileAddress
	RegFileFlag
	RegFileAcc
	RegFileNull
)

func (r RegFile) String() string {
	switch r {
	case RegFileGRF:
		return "grf"
	case RegFileAddress:
		return "addr"
	case RegFileFlag:
		return "flag"
	case RegFileAcc:
		return "acc"
	case RegFileNull:
		return "null"
	}

	return fmt.Sprintf("regfile(%d)", r)
}

// Align is the sub-register alignment of a declare in bytes. AlignGRF means
// the declare starts a register row.
type Align int

// Alignments.
const (
	AlignAny   Align = 0
	AlignWord  Align = 2
	AlignDword Align = 4
	AlignQword Align = 8
	AlignOword Align = 16
	AlignGRF   Align = -1
)

// AccSlotBytes is the storage width of one accumulator channel.
const AccSlotBytes = 8

// DeclID identifies a declare within a function.
type DeclID int32

// Declare is a named group of virtual registers.
type Declare struct {
	ID       DeclID
	Name     string
	NumElems int
	Type     Type
	Align    Align
	File     RegFile

	AliasOf     *Declare
	AliasOffset int

	AddressTaken bool
	Global       bool
	Fixed        bool
}

// Root follows the alias chain to the declare that owns the storage.
func (d *Declare) Root() *Declare {
	for d.AliasOf != nil {
		d = d.AliasOf
	}

	return d
}

// RootOffset returns the byte offset of the declare within its root.
func (d *Declare) RootOffset() int {
	off := 0
	for d.AliasOf != nil {
		off += d.AliasOffset
		d = d.AliasOf
	}

	return off
}

// ByteSize returns the storage size of the declare.
func (d *Declare) ByteSize() int {
	if d.File == RegFileAcc {
		return d.NumElems * AccSlotBytes
	}

	return d.NumElems * d.Type.Size()
}

// IsRowAligned reports whether the declare is known to start a register row.
// Roots spanning at least one row are always placed at a row boundary.
func (d *Declare) IsRowAligned(rowBytes int) bool {
	root := d.Root()
	if root.File != RegFileGRF {
		return true
	}

	rootAligned := root.Align == AlignGRF || root.ByteSize() >= rowBytes
	return rootAligned && d.RootOffset()%rowBytes == 0
}

// AlignedTo reports whether byte offset off within the root is guaranteed to
// be a multiple of n bytes after register allocation.
func (d *Declare) AlignedTo(off, n int, rowBytes int) bool {
	if off%n != 0 {
		return false
	}

	root := d.Root()
	if root.File != RegFileGRF {
		return true
	}

	if root.Align == AlignGRF || root.ByteSize() >= rowBytes {
		return rowBytes%n == 0
	}

	return root.Align != AlignAny && int(root.Align)%n == 0
}

// TryAlign upgrades the root alignment so that byte offset off is aligned to
// n bytes. It fails for fixed or address-taken roots.
func (d *Declare) TryAlign(off, n int, rowBytes int) bool {
	if d.AlignedTo(off, n, rowBytes) {
		return true
	}

	if off%n != 0 {
		return false
	}

	root := d.Root()
	if root.Fixed || root.AddressTaken || root.File != RegFileGRF {
		return false
	}

	if n >= rowBytes || n > int(AlignOword) {
		root.Align = AlignGRF
	} else {
		root.Align = Align(n)
	}

	return true
}

func (d *Declare) String() string {
	return d.Name
}
