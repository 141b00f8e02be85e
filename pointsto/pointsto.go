// Package pointsto resolves indirectly addressed operands to the declares
// they may access.
package pointsto

import (
	"slices"

	"github.com/samber/lo"

	"github.com/sarchlab/conform/ir"
)

// Analysis answers which root declares an address register may point into.
type Analysis interface {
	PointsTo(addr *ir.Declare) []*ir.Declare
}

// Table is a flow-insensitive points-to relation.
type Table struct {
	targets map[*ir.Declare][]*ir.Declare
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{targets: make(map[*ir.Declare][]*ir.Declare)}
}

// Add records that addr may point into target.
func (t *Table) Add(addr, target *ir.Declare) bool {
	addr = addr.Root()
	target = target.Root()

	if slices.Contains(t.targets[addr], target) {
		return false
	}

	t.targets[addr] = append(t.targets[addr], target)
	return true
}

// PointsTo returns the possible targets of addr.
func (t *Table) PointsTo(addr *ir.Declare) []*ir.Declare {
	return slices.Clone(t.targets[addr.Root()])
}

// Compute builds the table of f from the instructions writing address
// registers. Address-of sources add their target, copies between address
// registers merge sets, and anything else may point to every address-taken
// declare.
func Compute(f *ir.Func) *Table {
	t := NewTable()

	addressTaken := lo.Filter(f.Decls, func(d *ir.Declare, _ int) bool {
		return d.AliasOf == nil && d.AddressTaken
	})

	var copies [][2]*ir.Declare

	for _, b := range f.Blocks {
		for _, inst := range f.InstsOf(b) {
			if !inst.Dst.IsDirect() || inst.Dst.Base.Root().File != ir.RegFileAddress {
				continue
			}

			dst := inst.Dst.Base
			for n := 0; n < inst.NumSrcs(); n++ {
				s := inst.Srcs[n]
				switch {
				case s == nil, s.IsImm():
				case s.Kind == ir.KindAddrOf:
					t.Add(dst, s.Base)
				case s.IsDirect() && s.Base.Root().File == ir.RegFileAddress:
					copies = append(copies, [2]*ir.Declare{dst, s.Base})
				default:
					for _, d := range addressTaken {
						t.Add(dst, d)
					}
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, c := range copies {
			for _, target := range t.PointsTo(c[1]) {
				changed = t.Add(c[0], target) || changed
			}
		}
	}

	return t
}
