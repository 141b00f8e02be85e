package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/conform/config"
	"github.com/sarchlab/conform/emu"
	"github.com/sarchlab/conform/ir"
	"github.com/sarchlab/conform/legalize"
)

var generation = config.Xe

// fixCounter counts the fixes each step applies.
type fixCounter struct {
	counts map[string]int
	order  []string
}

func (c *fixCounter) Func(ctx sim.HookCtx) {
	if ctx.Pos != legalize.HookPosFixApplied {
		return
	}

	rec := ctx.Detail.(legalize.FixRecord)
	if _, ok := c.counts[rec.Step]; !ok {
		c.order = append(c.order, rec.Step)
	}
	c.counts[rec.Step]++
}

func (c *fixCounter) print() {
	t := table.NewWriter()
	t.SetTitle("Fixes per step")
	t.AppendHeader(table.Row{"Step", "Fixes"})

	for _, step := range c.order {
		t.AppendRow(table.Row{step, c.counts[step]})
	}

	fmt.Println(t.Render())
}

// kernel computes out = x*y + z and wide = x*y over 16 dword lanes.
func kernel(rowBytes int) *ir.Func {
	f := ir.NewFunc("kernel", rowBytes)
	x := f.NewDecl("x", ir.TypeD, 16)
	y := f.NewDecl("y", ir.TypeD, 16)
	z := f.NewDecl("z", ir.TypeD, 16)
	out := f.NewDecl("out", ir.TypeD, 16)
	wide := f.NewDecl("wide", ir.TypeQ, 16)

	for _, d := range []*ir.Declare{x, y, z, out, wide} {
		d.Global = true
	}

	src := func(d *ir.Declare) *ir.Src {
		return ir.SrcOf(d, 0, ir.Contiguous(16))
	}

	blk := f.NewBlock("entry", true)
	f.Append(blk, f.NewInst(ir.OpPseudoMad, 16, ir.DstOf(out, 0, 1), src(x), src(y), src(z)))
	f.Append(blk, f.NewInst(ir.OpMul, 16, ir.DstOf(wide, 0, 1), src(x), src(y)))

	return f
}

func simulate(f *ir.Func, seed int64) *emu.State {
	rng := rand.New(rand.NewSource(seed))
	s := emu.NewState(f, 0xffffffff)

	for _, name := range []string{"x", "y", "z"} {
		for i := 0; i < 16; i++ {
			s.Set(name, ir.TypeD, i, uint64(rng.Uint32()))
		}
	}

	emu.New(f).Run(s)
	s.LogState("out", "wide")

	return s
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: legalize.LevelTrace})))

	platform := config.PlatformFor(generation)
	counter := &fixCounter{counts: map[string]int{}}
	atexit.Register(counter.print)

	driver := legalize.MakeDriverBuilder().
		WithPlatform(platform).
		WithOptions(config.OptionsFromEnv(legalize.StepNames())).
		Build()
	driver.AcceptHook(counter)

	f := kernel(platform.RowBytes())
	fmt.Println(ir.DumpBlock(f, f.Blocks[0]))

	if err := driver.Legalize(f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	fmt.Println(ir.DumpBlock(f, f.Blocks[0]))

	for _, issue := range legalize.CheckConformity(f, platform) {
		fmt.Println(issue)
	}

	want, got := simulate(kernel(platform.RowBytes()), 1), simulate(f, 1)
	for _, name := range []string{"out", "wide"} {
		if !bytes.Equal(want.Bytes(name), got.Bytes(name)) {
			fmt.Printf("%s differs after legalization on %s\n", name, platform)
			atexit.Exit(1)
		}
	}

	fmt.Printf("legalized for %s with identical results\n", platform)
	atexit.Exit(0)
}
