package legalize

import (
	"github.com/samber/lo"

	"github.com/sarchlab/conform/ir"
)

type stepScope uint8

const (
	// scopeFunc steps run once over the whole function before anything else.
	scopeFunc stepScope = iota
	// scopeBlock steps run block by block, in table order.
	scopeBlock
	// scopeGlobal steps run after every block went through the block steps.
	scopeGlobal
)

type step struct {
	name  string
	scope stepScope

	// fix rewrites one instruction. layout has no per-instruction form and
	// sets whole instead.
	fix   func(c *fixCtx, id ir.InstID) Result
	whole func(d *Driver, f *ir.Func)

	// closure marks steps that run again on instructions created after
	// they had their turn.
	closure bool
}

// The order is a correctness dependency: later steps rely on the operand
// shapes earlier ones produce.
var pipeline = []step{
	{name: "layout", scope: scopeFunc, whole: (*Driver).layout},
	{name: "mixed-precision", scope: scopeFunc, fix: fixIntToHF},

	{name: "carry", scope: scopeBlock, fix: fixCarry},
	{name: "fma", scope: scopeBlock, fix: fixMad},
	{name: "bfn", scope: scopeBlock, fix: fixBfn},
	{name: "align", scope: scopeBlock, fix: fixAlign, closure: true},
	{name: "reduce", scope: scopeBlock, fix: fixExecSize, closure: true},
	{name: "mixed-hf", scope: scopeBlock, fix: fixMixedHF, closure: true},
	{name: "accumulate", scope: scopeBlock, fix: fixSada2},
	{name: "send", scope: scopeBlock, fix: fixSend, closure: true},
	{name: "overlap", scope: scopeBlock, fix: fixOverlap, closure: true},
	{name: "conform", scope: scopeBlock, fix: conformInst, closure: true},
	{name: "dpas", scope: scopeBlock, fix: fixDpas, closure: true},
	{name: "xbar", scope: scopeBlock, fix: fixByteXBar, closure: true},

	{name: "alias", scope: scopeGlobal, fix: fixAlias},
}

// StepNames lists the pipeline steps in the order they run.
func StepNames() []string {
	return lo.Map(pipeline, func(s step, _ int) string { return s.name })
}

func stepsOf(scope stepScope) []step {
	return lo.Filter(pipeline, func(s step, _ int) bool { return s.scope == scope })
}

func closureSteps() []step {
	return lo.Filter(pipeline, func(s step, _ int) bool { return s.closure })
}
