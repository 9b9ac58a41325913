// Package registry maps opaque simulation handles to engine-side state
// references.
//
// The engine owns the simulation objects; the host holds only a small
// integer Handle. The registry is an arena of slots reused through a free
// list, with a per-slot generation counter so that a handle kept across a
// release is detected as stale instead of silently aliasing the slot's
// next occupant.
//
// # Handles
//
// Handle 0 is reserved and always invalid. A live handle resolves to the
// engine's own state reference:
//
//	table := registry.NewTable()
//	h := table.Insert(ref)
//
//	ref, err := table.Resolve(h)   // err is nil while h is live
//	table.Remove(h)
//	_, err = table.Resolve(h)      // unknown or stale handle error
//
// Handles are unique among live simulations but a slot may be reused
// after release; the generation check is what makes reuse observable.
//
// # Observers
//
// Subscribers receive create/release events, which the run journal uses
// to record simulation lifecycles:
//
//	table.Subscribe(obs)
//
// The registry is safe for concurrent use on its own, but the wider
// boundary is single-threaded by contract; per-handle operations must be
// externally serialized.
package registry
