package pool

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/octopusdb/octopusdb/pkg/command"
	"github.com/octopusdb/octopusdb/pkg/config"
)

// BenchmarkDispatchThroughput measures sustained dispatch throughput across
// the default-sized pool, the idiomatic Go rendering of the teacher's
// standalone benchmark/main.go enqueue-and-drain measurement.
func BenchmarkDispatchThroughput(b *testing.B) {
	p := New(config.Default())
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fut, err := p.Dispatch(command.Command{Kind: command.Set, Key: fmt.Sprintf("bench-%d", i), Value: "v"}, 0, 0)
		if err != nil {
			b.Fatalf("dispatch: %v", err)
		}
		if _, err := fut.Wait(ctx); err != nil {
			b.Fatalf("wait: %v", err)
		}
	}
}

// BenchmarkDispatchThroughputParallel measures throughput under concurrent
// dispatching callers, matching the teacher benchmark's multi-enqueuer
// setup (its -workers flag).
func BenchmarkDispatchThroughputParallel(b *testing.B) {
	p := New(config.Default())
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			fut, err := p.Dispatch(command.Command{Kind: command.Incr, Key: "bench-counter"}, 0, 0)
			if err != nil {
				b.Fatalf("dispatch: %v", err)
			}
			if _, err := fut.Wait(ctx); err != nil {
				b.Fatalf("wait: %v", err)
			}
			i++
		}
	})
}
