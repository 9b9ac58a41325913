// Package fjord is the native boundary to an embedded simulation runtime.
//
// A solver engine, compiled to WebAssembly, runs inside a managed runtime
// that is booted exactly once per process. fjord provides the boundary
// layer: the one-shot lifecycle of that runtime, the dispatch table that
// maps named engine exports to callable entry points, and the registry of
// opaque integer handles identifying live simulations.
//
// The library is organized into a small set of packages:
//
//	fjord/            Root package with the Memory and Allocator seams
//	├── bridge/       Lifecycle manager, symbol table, dispatch shims
//	├── engine/       Managed runtime adapter (wazero implementation)
//	├── registry/     Simulation handle registry (arena + generations)
//	├── errors/       Structured boundary errors
//	├── manifest/     Project manifest (fjord.yaml)
//	├── journal/      Run journal (bbolt)
//	├── cluster/      Launcher/cluster settings recovery
//	└── cmd/fjord/    CLI driver
//
// # Quick Start
//
//	ctx := context.Background()
//	b := bridge.New()
//	if err := b.Init(ctx, "/path/to/project"); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Finalize(ctx)
//
//	h, err := b.CreateSimulation(ctx, "descriptions/sedov.jl")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    done, _ := b.IsFinished(ctx, h)
//	    if done {
//	        break
//	    }
//	    if err := b.Step(ctx, h); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	b.ReleaseSimulation(ctx, h)
//
// # Thread Safety
//
// The boundary is single-threaded by contract. The lifecycle state, the
// symbol table and the dispatch shims are not synchronized; concurrent
// calls from multiple goroutines require an external lock. All dispatch
// is synchronous and runs to completion on the calling goroutine; a hung
// engine call blocks that goroutine indefinitely.
//
// # Error Model
//
// Two classes only. Boundary-contract violations (double init, finalize
// before init, missing engine export) are returned as fatal errors that
// the top-level caller is expected to abort on; there is no recovery
// path, because a partially initialized runtime cannot be unwound.
// Engine-side faults (malformed description file, numerical failure) are
// forwarded opaquely without interpretation.
package fjord
