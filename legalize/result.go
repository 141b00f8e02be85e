package legalize

import (
	"fmt"
	"slices"

	"github.com/sarchlab/conform/ir"
)

// ResultKind says what a fix did to the instruction it was given.
type ResultKind uint8

// Result kinds.
const (
	Unchanged ResultKind = iota
	InsertedBefore
	InsertedAfter
	Replaced
)

func (k ResultKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case InsertedBefore:
		return "inserted-before"
	case InsertedAfter:
		return "inserted-after"
	case Replaced:
		return "replaced"
	}

	return fmt.Sprintf("result(%d)", k)
}

// Result is returned by every fix. IDs lists the instructions the driver has
// to look at again: the new ones, and for Replaced also a rewritten original.
type Result struct {
	Kind ResultKind
	IDs  []ir.InstID
}

func unchanged() Result { return Result{} }

func insertedBefore(ids ...ir.InstID) Result { return Result{InsertedBefore, ids} }

func insertedAfter(ids ...ir.InstID) Result { return Result{InsertedAfter, ids} }

func replaced(ids ...ir.InstID) Result { return Result{Replaced, ids} }

// Changed reports whether the fix mutated anything.
func (r Result) Changed() bool {
	return r.Kind != Unchanged
}

// merge combines the results of two fixes applied to the same instruction.
func (r Result) merge(o Result) Result {
	switch {
	case !o.Changed():
		return r
	case !r.Changed():
		return o
	}

	kind := r.Kind
	if kind != o.Kind {
		kind = Replaced
	}

	ids := slices.Clone(r.IDs)
	for _, id := range o.IDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	return Result{kind, ids}
}

func (r Result) String() string {
	return fmt.Sprintf("%s%v", r.Kind, r.IDs)
}
