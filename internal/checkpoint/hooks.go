package checkpoint

import "context"

// HeapDumper is the pluggable hook behind §4.6 step 4 ("emits a heap
// dump"). The coordinator has no JIT/GC of its own to call into (§1
// Out-of-scope: "interacts with them only through the enumerated hooks"),
// so this interface lets an embedding runtime supply the real
// implementation; a nil HeapDumper simply skips the step.
type HeapDumper interface {
	Dump(ctx context.Context, reason string) error
}

// PerfSubsystem models the "process-wide perf/shared-counter subsystem"
// from §4.6 steps 6/9: it must detach its shared file (a known aliasing FD)
// before the engine runs and reattach afterward.
type PerfSubsystem interface {
	Detach(ctx context.Context) error
	Reattach(ctx context.Context) error
}

// DiagnosticListener is the operator-facing listener aborted in §4.6 step 1
// so it cannot open new descriptors mid-checkpoint.
type DiagnosticListener interface {
	Abort(ctx context.Context) error
}

// GCHook forces the full heap-compacting collection of §4.6 step 2.
type GCHook interface {
	CollectFull(ctx context.Context) error
}
