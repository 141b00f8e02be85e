package ir

import (
	"cmp"
	"slices"
)

// Edge links the instruction that produces a value to an operand slot of an
// instruction that consumes it.
type Edge struct {
	Def InstID
	Use InstID
	Pos OpndPos
}

// DefUse is the bidirectional producer/consumer relation of a function,
// stored as two multimaps keyed by instruction ID.
type DefUse struct {
	uses map[InstID][]Edge
	defs map[InstID][]Edge
}

// NewDefUse creates an empty relation.
func NewDefUse() *DefUse {
	return &DefUse{
		uses: make(map[InstID][]Edge),
		defs: make(map[InstID][]Edge),
	}
}

// AddEdge records that use reads, at pos, a value def writes.
func (du *DefUse) AddEdge(def, use InstID, pos OpndPos) {
	e := Edge{Def: def, Use: use, Pos: pos}
	if slices.Contains(du.defs[use], e) {
		return
	}

	du.uses[def] = append(du.uses[def], e)
	du.defs[use] = append(du.defs[use], e)
}

// RemoveEdge drops one edge.
func (du *DefUse) RemoveEdge(def, use InstID, pos OpndPos) {
	e := Edge{Def: def, Use: use, Pos: pos}
	du.uses[def] = dropEdge(du.uses[def], e)
	du.defs[use] = dropEdge(du.defs[use], e)

	if len(du.uses[def]) == 0 {
		delete(du.uses, def)
	}

	if len(du.defs[use]) == 0 {
		delete(du.defs, use)
	}
}

func dropEdge(edges []Edge, e Edge) []Edge {
	if i := slices.Index(edges, e); i >= 0 {
		return slices.Delete(edges, i, i+1)
	}

	return edges
}

// Uses returns the consumers of def.
func (du *DefUse) Uses(def InstID) []Edge {
	return slices.Clone(du.uses[def])
}

// Defs returns the producers feeding use.
func (du *DefUse) Defs(use InstID) []Edge {
	return slices.Clone(du.defs[use])
}

// DefsAt returns the producers feeding slot pos of use.
func (du *DefUse) DefsAt(use InstID, pos OpndPos) []InstID {
	var ids []InstID
	for _, e := range du.defs[use] {
		if e.Pos == pos {
			ids = append(ids, e.Def)
		}
	}

	return ids
}

// RemoveInst drops every edge touching id.
func (du *DefUse) RemoveInst(id InstID) {
	du.clearDefs(id)

	for _, e := range du.Uses(id) {
		du.RemoveEdge(e.Def, e.Use, e.Pos)
	}
}

func (du *DefUse) clearDefs(use InstID) {
	for _, e := range du.Defs(use) {
		du.RemoveEdge(e.Def, e.Use, e.Pos)
	}
}

// Edges returns every edge in a stable order.
func (du *DefUse) Edges() []Edge {
	var all []Edge
	for _, edges := range du.defs {
		all = append(all, edges...)
	}

	slices.SortFunc(all, func(a, b Edge) int {
		return cmp.Or(
			cmp.Compare(a.Use, b.Use),
			cmp.Compare(a.Def, b.Def),
			cmp.Compare(a.Pos, b.Pos),
		)
	})

	return all
}

// WritesUnconditionally reports whether inst writes every lane of its
// destination whenever the block executes.
func WritesUnconditionally(inst *Inst, b *Block) bool {
	return inst.Pred == nil && (inst.NoMask || b.AllLanesActive)
}

// ComputeDefUse rebuilds the relation of every block from scratch.
func (f *Func) ComputeDefUse() {
	f.DU = NewDefUse()
	for _, b := range f.Blocks {
		for idx := range b.Insts {
			f.linkDefs(f.DU, b, idx)
		}
	}
}

// linkDefs records the producers of the instruction at idx in b by walking
// backwards until every byte it reads has been fully overwritten.
func (f *Func) linkDefs(du *DefUse, b *Block, idx int) {
	use := b.Insts[idx]
	inst := f.insts[use]

	for _, r := range Reads(inst, f.RowBytes) {
		remaining := r.FP
		for j := idx - 1; j >= 0 && !remaining.Empty(); j-- {
			def := f.insts[b.Insts[j]]
			uncond := WritesUnconditionally(def, b)

			for _, w := range Writes(def, f.RowBytes) {
				if !remaining.Overlaps(w) {
					continue
				}

				du.AddEdge(def.ID, use, r.Pos)
				if uncond {
					remaining = remaining.Subtract(w)
				}
			}
		}
	}
}

// RefreshDefUse recomputes the producers of every instruction in b that is
// listed in readers or reads storage overlapping one of writes.
func (f *Func) RefreshDefUse(b *Block, readers map[InstID]bool, writes []Footprint) {
	for idx, id := range b.Insts {
		if !readers[id] && !readsAny(f.insts[id], writes, f.RowBytes) {
			continue
		}

		f.DU.clearDefs(id)
		f.linkDefs(f.DU, b, idx)
	}
}

func readsAny(inst *Inst, writes []Footprint, rowBytes int) bool {
	if len(writes) == 0 {
		return false
	}

	for _, r := range Reads(inst, rowBytes) {
		for _, w := range writes {
			if r.FP.Overlaps(w) {
				return true
			}
		}
	}

	return false
}
