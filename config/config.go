// Package config provides the target platform capabilities and the debug
// options of a legalization run.
package config

import (
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

// Environment variables read by OptionsFromEnv.
const (
	EnvSkip    = "CONFORM_SKIP"
	EnvPrint   = "CONFORM_PRINT"
	EnvVerify  = "CONFORM_VERIFY"
	EnvWorkers = "CONFORM_WORKERS"
)

// Options is built once per compilation and shared by reference with every
// function legalized in it.
type Options struct {
	skip    map[string]bool
	print   map[string]bool
	verify  bool
	workers int
}

// MakeOptions returns options with nothing skipped or printed.
func MakeOptions() Options {
	return Options{
		skip:    map[string]bool{},
		print:   map[string]bool{},
		workers: 1,
	}
}

// WithSkip disables the named steps.
func (o Options) WithSkip(steps ...string) Options {
	o.skip = withNames(o.skip, steps)
	return o
}

// WithPrint dumps the block after each of the named steps.
func (o Options) WithPrint(steps ...string) Options {
	o.print = withNames(o.print, steps)
	return o
}

// WithVerify checks def-use integrity after every step.
func (o Options) WithVerify(on bool) Options {
	o.verify = on
	return o
}

// WithWorkers sets how many functions are legalized in parallel.
func (o Options) WithWorkers(n int) Options {
	o.workers = max(n, 1)
	return o
}

func withNames(set map[string]bool, names []string) map[string]bool {
	out := make(map[string]bool, len(set)+len(names))
	for k := range set {
		out[k] = true
	}

	for _, n := range names {
		out[n] = true
	}

	return out
}

// Skips reports whether step is disabled.
func (o Options) Skips(step string) bool { return o.skip[step] }

// Prints reports whether the block is dumped after step.
func (o Options) Prints(step string) bool { return o.print[step] }

// Verify reports whether def-use integrity is checked after every step.
func (o Options) Verify() bool { return o.verify }

// Workers returns the number of parallel workers.
func (o Options) Workers() int { return max(o.workers, 1) }

// OptionsFromEnv reads the debug options from the environment. Names not in
// known and malformed numbers are logged and ignored.
func OptionsFromEnv(known []string) Options {
	o := MakeOptions().
		WithSkip(parseSteps(EnvSkip, known)...).
		WithPrint(parseSteps(EnvPrint, known)...).
		WithVerify(env.Bool(EnvVerify))

	if w := strings.TrimSpace(env.Str(EnvWorkers)); w != "" {
		switch n, err := strconv.Atoi(w); {
		case err != nil || n < 0:
			slog.Warn("ignoring malformed worker count", "var", EnvWorkers, "value", w)
		case n == 0:
			o = o.WithWorkers(runtime.NumCPU())
		default:
			o = o.WithWorkers(n)
		}
	}

	return o
}

func parseSteps(name string, known []string) []string {
	var steps []string

	for _, field := range strings.Split(env.Str(name), ",") {
		step := strings.TrimSpace(field)
		if step == "" {
			continue
		}

		if !slices.Contains(known, step) {
			slog.Warn("ignoring unknown step", "var", name, "step", step)
			continue
		}

		steps = append(steps, step)
	}

	return steps
}
