package ir

import (
	"fmt"
	"slices"
)

// IssueType classifies a problem found by Verify.
type IssueType string

// Issue types.
const (
	IssueStruct IssueType = "STRUCT"
	IssueDefUse IssueType = "DEFUSE"
)

// Issue is one problem found in a function.
type Issue struct {
	Type    IssueType
	Inst    InstID
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] #%d: %s", i.Type, i.Inst, i.Message)
}

// Verify checks the structure of f and that its recorded def-use relation is
// exactly what the current instruction list implies.
func Verify(f *Func) []Issue {
	var issues []Issue

	for _, b := range f.Blocks {
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst == nil {
				issues = append(issues, Issue{IssueStruct, id, "removed instruction still listed"})
				continue
			}

			if f.BlockOf(id) != b {
				issues = append(issues, Issue{IssueStruct, id, "block ownership mismatch"})
			}

			issues = append(issues, checkSrcCount(inst)...)

			if inst.ExecSize < 1 || inst.ExecSize > 32 || inst.ExecSize&(inst.ExecSize-1) != 0 {
				issues = append(issues, Issue{IssueStruct, id,
					fmt.Sprintf("execution size %d is not a power of two in [1,32]", inst.ExecSize)})
			}
		}
	}

	issues = append(issues, verifyDefUse(f)...)

	return issues
}

func checkSrcCount(inst *Inst) (issues []Issue) {
	defer func() {
		if r := recover(); r != nil {
			issues = []Issue{{IssueStruct, inst.ID, fmt.Sprint(r)}}
		}
	}()

	inst.MustHaveSrcCount()

	return nil
}

func verifyDefUse(f *Func) []Issue {
	var issues []Issue

	fresh := NewDefUse()
	for _, b := range f.Blocks {
		for idx := range b.Insts {
			if f.Inst(b.Insts[idx]) == nil {
				return issues
			}
			f.linkDefs(fresh, b, idx)
		}
	}

	recorded := f.DU.Edges()
	want := fresh.Edges()

	for _, e := range recorded {
		if f.BlockOf(e.Def) == nil || f.BlockOf(e.Use) == nil {
			issues = append(issues, Issue{IssueDefUse, e.Use,
				fmt.Sprintf("dangling edge %d -> %d (%s)", e.Def, e.Use, e.Pos)})
			continue
		}

		if !slices.Contains(want, e) {
			issues = append(issues, Issue{IssueDefUse, e.Use,
				fmt.Sprintf("stale edge %d -> %d (%s)", e.Def, e.Use, e.Pos)})
		}

		if !slices.Contains(f.DU.uses[e.Def], e) {
			issues = append(issues, Issue{IssueDefUse, e.Use,
				fmt.Sprintf("edge %d -> %d (%s) missing from the use list", e.Def, e.Use, e.Pos)})
		}
	}

	for _, e := range want {
		if !slices.Contains(recorded, e) {
			issues = append(issues, Issue{IssueDefUse, e.Use,
				fmt.Sprintf("missing edge %d -> %d (%s)", e.Def, e.Use, e.Pos)})
		}
	}

	for def, edges := range f.DU.uses {
		for _, e := range edges {
			if e.Def != def || !slices.Contains(f.DU.defs[e.Use], e) {
				issues = append(issues, Issue{IssueDefUse, e.Use,
					fmt.Sprintf("edge %d -> %d (%s) missing from the def list", e.Def, e.Use, e.Pos)})
			}
		}
	}

	return issues
}
