// Package bridge is the boundary layer between native callers and the
// embedded solver engine.
//
// A Bridge owns a one-shot lifecycle state machine
// (Uninitialized -> Ready -> Finalized), the symbol table that maps each
// exposed operation to a resolved engine export, and the registry of
// opaque simulation handles. Init performs every initialization step or
// fails with a fatal error; there is no partial state to recover from.
//
//	b := bridge.New()
//	if err := b.Init(ctx, projectDir); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Finalize(ctx)
//
//	h, err := b.CreateSimulation(ctx, "/project/descriptions/sedov.jl")
//	...
//	b.ReleaseSimulation(ctx, h)
//
// Each simulation operation is a thin typed shim: it fetches its slot
// from the symbol table, marshals arguments onto the engine's core-ABI
// stack, and forwards the engine's result without interpretation.
//
// The Bridge is not safe for concurrent use. Callers drive it from a
// single goroutine or serialize access externally; this is a contract,
// not an internal guarantee.
package bridge
