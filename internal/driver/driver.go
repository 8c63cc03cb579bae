// Package driver wires the pipeline: AST units -> MIR builder -> analyzer.
// The only parallelism lives here — independent top-level units are seeded
// across a worker pool before the (strictly single-threaded) analyzer runs.
package driver

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mirlang/mirc/internal/analyzer"
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
)

// AnalyzeAll lowers every unit into a fresh module and runs the analyzer to
// completion. Units are lowered in parallel when opts.Threads > 1, each worker
// emitting into a detached unit block with a private diagnostic sink; blocks
// and sinks are spliced/merged in unit order so the result is identical to a
// serial run. llvmTypes may be nil (no LLVM materialization, e.g. in tests).
func AnalyzeAll(name string, units []*ast.Node, opts config.Options, sink *diag.Sink, llvmTypes *analyzer.LLVMTypes) *mir.Module {
	m := mir.NewModule(name)

	workers := opts.Threads
	if workers > len(units) {
		workers = len(units)
	}
	if workers <= 1 || len(units) <= 1 {
		b := mir.NewBuilder(m, sink)
		for _, unit := range units {
			b.BuildUnit(unit)
		}
	} else {
		buildParallel(m, units, workers, sink)
	}

	a := analyzer.New(m, sink, llvmTypes)
	a.Run()
	return m
}

func buildParallel(m *mir.Module, units []*ast.Node, workers int, sink *diag.Sink) {
	type seeded struct {
		block *mir.Block
		sink  *diag.Sink
	}
	out := make([]seeded, len(units))

	jobs := make(chan int)
	wg := sync.WaitGroup{}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				unitSink := diag.NewSink(sink.NoWarn)
				blk := m.NewUnitBlock(units[idx].Loc.Unit)
				mir.NewUnitBuilder(m, unitSink, blk).BuildUnit(units[idx])
				out[idx] = seeded{block: blk, sink: unitSink}
			}
		}()
	}
	for idx := range units {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for _, s := range out {
		m.SpliceGlobal(s.block)
		sink.Merge(s.sink)
	}
}

// Run executes the analyzed module's entry point and/or test cases per opts,
// on a fresh VM constructed by newVM. Split out so cmd/mirc and tests share
// the same post-analysis behavior: nothing executes when analysis reported
// errors.
func Run(m *mir.Module, sink *diag.Sink, opts config.Options, newVM func() Runner) error {
	if sink.HasErrors() {
		return errors.Errorf("analysis failed with %d error(s)", sink.ErrorCount())
	}
	if !opts.Run && !opts.RunTests {
		return nil
	}
	r := newVM()
	if opts.Run {
		if !r.RunMain() {
			return errors.New("execution aborted")
		}
	}
	if opts.RunTests {
		if failed := r.RunTests(); failed > 0 {
			logrus.WithField("failed", failed).Error("test run finished with failures")
			return errors.Errorf("%d test(s) failed", failed)
		}
	}
	return nil
}

// Runner is the slice of the VM the driver needs.
type Runner interface {
	RunMain() bool
	RunTests() int
}
