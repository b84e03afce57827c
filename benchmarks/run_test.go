package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

func benchmarkRun(b *testing.B, params runflow.RunFlowParams, opts ...runflow.RunOption) {
	b.Helper()
	params = mustValidate(b, params)
	graphs, errs := runflow.ComputeSubgraphs(params.NodeConfigs, params.Edges)
	if len(errs) > 0 {
		b.Fatal(errs)
	}
	params.Graphs = graphs

	opts = append(opts, runflow.WithLogger(quiet))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := runflow.RunFlow(ctx, params, opts...); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRun_Linear_5 runs a 5-node linear flow.
func BenchmarkRun_Linear_5(b *testing.B) {
	benchmarkRun(b, buildLinearFlow(5))
}

// BenchmarkRun_Linear_10 runs a 10-node linear flow.
func BenchmarkRun_Linear_10(b *testing.B) {
	benchmarkRun(b, buildLinearFlow(10))
}

// BenchmarkRun_Linear_50 runs a 50-node linear flow.
func BenchmarkRun_Linear_50(b *testing.B) {
	benchmarkRun(b, buildLinearFlow(50))
}

// BenchmarkRun_Linear_100 runs a 100-node linear flow.
func BenchmarkRun_Linear_100(b *testing.B) {
	benchmarkRun(b, buildLinearFlow(100))
}

// BenchmarkRun_FanOut_10 runs 10 parallel nodes.
func BenchmarkRun_FanOut_10(b *testing.B) {
	benchmarkRun(b, buildFanOutFlow(10))
}

// BenchmarkRun_FanOut_100 runs 100 parallel nodes.
func BenchmarkRun_FanOut_100(b *testing.B) {
	benchmarkRun(b, buildFanOutFlow(100))
}

// BenchmarkRun_FanOut_100_Limit4 runs 100 parallel nodes, 4 at a time.
func BenchmarkRun_FanOut_100_Limit4(b *testing.B) {
	benchmarkRun(b, buildFanOutFlow(100), runflow.WithMaxConcurrency(4))
}

// BenchmarkRun_Branching runs a flow with one skipped branch.
func BenchmarkRun_Branching(b *testing.B) {
	benchmarkRun(b, buildBranchingFlow(2))
}

// BenchmarkRun_Loop runs a loop (3 iterations).
func BenchmarkRun_Loop(b *testing.B) {
	benchmarkRun(b, buildLoopFlow(3))
}

// BenchmarkRun_Loop_10 runs a loop (10 iterations).
func BenchmarkRun_Loop_10(b *testing.B) {
	benchmarkRun(b, buildLoopFlow(10))
}

// BenchmarkRun_WithProgress measures the cost of progress collection.
func BenchmarkRun_WithProgress(b *testing.B) {
	params := mustValidate(b, buildLinearFlow(10))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		params.ProgressObserver = &runflow.ProgressCollector{}
		if _, err := runflow.RunFlow(ctx, params, runflow.WithLogger(quiet)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkContextCreation measures context creation overhead.
func BenchmarkContextCreation(b *testing.B) {
	bg := context.Background()
	for i := 0; i < b.N; i++ {
		runflow.NewContext(bg)
	}
}
