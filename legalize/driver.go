// Package legalize rewrites IR functions until every instruction can be
// encoded on the target platform, keeping the per-lane results unchanged.
package legalize

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/ir"
	"github.com/sarchlab/conform/pointsto"
)

// HookPosFixApplied marks a fix that changed an instruction. The item is
// the instruction the fix was given and the detail is a FixRecord.
var HookPosFixApplied = &sim.HookPos{Name: "Fix Applied"}

// HookPosBlockLegalized marks a block that went through every block step.
// The item is the block and the detail is the function.
var HookPosBlockLegalized = &sim.HookPos{Name: "Block Legalized"}

// FixRecord describes one applied fix.
type FixRecord struct {
	Func   string
	Block  string
	Step   string
	Result Result
}

const (
	maxVisitsPerInst = 64
	maxClosureRounds = 8
)

// Driver runs the legalization pipeline.
type Driver struct {
	*sim.HookableBase

	platform *config.Platform
	options  config.Options
	pointsTo pointsto.Analysis
}

// DriverBuilder creates drivers.
type DriverBuilder struct {
	platform *config.Platform
	options  config.Options
	pointsTo pointsto.Analysis
}

// MakeDriverBuilder returns a builder with default options.
func MakeDriverBuilder() DriverBuilder {
	return DriverBuilder{options: config.MakeOptions()}
}

// WithPlatform sets the target platform.
func (b DriverBuilder) WithPlatform(p *config.Platform) DriverBuilder {
	b.platform = p
	return b
}

// WithOptions sets the debug options.
func (b DriverBuilder) WithOptions(o config.Options) DriverBuilder {
	b.options = o
	return b
}

// WithPointsTo sets the points-to analysis used by the alias step. Without
// one, the driver computes a table per function.
func (b DriverBuilder) WithPointsTo(pt pointsto.Analysis) DriverBuilder {
	b.pointsTo = pt
	return b
}

// Build creates the driver.
func (b DriverBuilder) Build() *Driver {
	if b.platform == nil {
		panic("platform is not set")
	}

	return &Driver{
		HookableBase: sim.NewHookableBase(),
		platform:     b.platform,
		options:      b.options,
		pointsTo:     b.pointsTo,
	}
}

// Platform returns the target platform.
func (d *Driver) Platform() *config.Platform {
	return d.platform
}

// Legalize rewrites f in place. Violated preconditions come back as an
// *InternalError.
func (d *Driver) Legalize(f *ir.Func) (err error) {
	if f.RowBytes != d.platform.RowBytes() {
		return fmt.Errorf("legalize %s: rows of %d bytes do not match %s (%d bytes)",
			f.Name, f.RowBytes, d.platform, d.platform.RowBytes())
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		ie, ok := r.(*InternalError)
		if !ok {
			panic(r)
		}

		slog.Error("legalization failed", "func", ie.Func, "step", ie.Step, "inst", ie.Inst, "msg", ie.Msg)
		err = ie
	}()

	pt := d.pointsTo
	if pt == nil {
		pt = pointsto.Compute(f)
	}

	r := &run{d: d, f: f, pt: pt}
	r.legalize()

	return nil
}

// LegalizeAll legalizes independent functions on the configured number of
// workers and joins their errors.
func (d *Driver) LegalizeAll(funcs []*ir.Func) error {
	errs := make([]error, len(funcs))
	next := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(d.options.Workers(), max(len(funcs), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				errs[i] = d.Legalize(funcs[i])
			}
		}()
	}

	for i := range funcs {
		next <- i
	}
	close(next)
	wg.Wait()

	return errors.Join(errs...)
}

func (d *Driver) layout(f *ir.Func) {
	for _, root := range widenPackedBytes(f, d.platform, "layout") {
		Trace("widen", "step", "layout", "decl", root, "elems", root.NumElems)
	}
}

// run is the state of one Legalize call.
type run struct {
	d  *Driver
	f  *ir.Func
	pt pointsto.Analysis
}

func (r *run) legalize() {
	r.f.ComputeDefUse()

	for _, st := range stepsOf(scopeFunc) {
		if r.d.options.Skips(st.name) {
			continue
		}

		if st.whole != nil {
			st.whole(r.d, r.f)
		} else {
			for _, b := range r.f.Blocks {
				r.runStep(b, st, nil)
			}
		}

		r.afterStep(st, r.f.Blocks...)
	}

	for _, b := range r.f.Blocks {
		var late []ir.InstID
		for _, st := range stepsOf(scopeBlock) {
			if r.d.options.Skips(st.name) {
				continue
			}

			late = append(late, r.runStep(b, st, nil)...)
			r.afterStep(st, b)
		}

		r.closure(b, late)

		slog.Debug("BlockLegalized", "func", r.f.Name, "block", b.Name, "insts", len(b.Insts))
		r.d.InvokeHook(sim.HookCtx{
			Domain: r.d,
			Pos:    HookPosBlockLegalized,
			Item:   b,
			Detail: r.f,
		})
	}

	for _, st := range stepsOf(scopeGlobal) {
		if r.d.options.Skips(st.name) {
			continue
		}

		for _, b := range r.f.Blocks {
			r.closure(b, r.runStep(b, st, nil))
		}

		r.afterStep(st, r.f.Blocks...)
	}
}

// runStep applies st to the instructions of b, or to those in only when
// it is given. Instructions a fix creates or rewrites are looked at again
// before the rest of the queue. It returns every such instruction.
func (r *run) runStep(b *ir.Block, st step, only map[ir.InstID]bool) []ir.InstID {
	c := newFixCtx(r.f, r.d.platform, b, st.name)
	c.pt = r.pt

	queue := slices.Clone(b.Insts)
	if only != nil {
		queue = lo.Filter(queue, func(id ir.InstID, _ int) bool { return only[id] })
	}

	budget := maxVisitsPerInst * (len(queue) + 1)

	var touched []ir.InstID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		inst := r.f.Inst(id)
		if inst == nil {
			continue
		}

		budget--
		if budget < 0 {
			c.fatal(id, "step does not converge")
		}

		res := st.fix(c, id)
		c.flush()
		created := c.takeCreated()

		if !res.Changed() {
			continue
		}

		r.d.InvokeHook(sim.HookCtx{
			Domain: r.d,
			Pos:    HookPosFixApplied,
			Item:   inst,
			Detail: FixRecord{Func: r.f.Name, Block: b.Name, Step: st.name, Result: res},
		})

		again := lo.Filter(lo.Uniq(append(slices.Clone(res.IDs), created...)), func(x ir.InstID, _ int) bool {
			return r.f.Inst(x) != nil && r.f.BlockOf(x) == b
		})
		slices.SortFunc(again, func(x, y ir.InstID) int { return b.IndexOf(x) - b.IndexOf(y) })

		for _, x := range again {
			if only != nil {
				only[x] = true
			}
		}

		queue = append(again, lo.Without(queue, again...)...)
		touched = append(touched, again...)
	}

	return touched
}

// closure runs the instructions created or rewritten late through the
// closure steps again until nothing changes.
func (r *run) closure(b *ir.Block, late []ir.InstID) {
	for round := 0; len(late) > 0; round++ {
		if round == maxClosureRounds {
			panic(&InternalError{
				Func: r.f.Name,
				Step: "closure",
				Inst: late[0],
				Msg:  fmt.Sprintf("no fixed point after %d rounds", maxClosureRounds),
			})
		}

		only := make(map[ir.InstID]bool, len(late))
		for _, id := range late {
			only[id] = true
		}

		var next []ir.InstID
		for _, st := range closureSteps() {
			if r.d.options.Skips(st.name) {
				continue
			}

			next = append(next, r.runStep(b, st, only)...)
			r.afterStep(st, b)
		}

		late = lo.Uniq(next)
	}
}

func (r *run) afterStep(st step, blocks ...*ir.Block) {
	if r.d.options.Verify() {
		if issues := ir.Verify(r.f); len(issues) > 0 {
			panic(&InternalError{
				Func: r.f.Name,
				Step: st.name,
				Inst: issues[0].Inst,
				Msg:  fmt.Sprintf("verification failed: %v", issues),
			})
		}
	}

	if r.d.options.Prints(st.name) {
		for _, b := range blocks {
			fmt.Printf("%s after %s\n%s\n", r.f.Name, st.name, ir.DumpBlock(r.f, b))
		}
	}
}
