package engine

import (
	"context"
	"io"

	fjord "github.com/fjordsim/fjord"
)

// Function is a resolved engine export. Call follows core-ABI stack
// semantics: parameters are read from stack on entry and results written
// back over it, so the slice must be sized to max(params, results).
type Function interface {
	Call(ctx context.Context, stack []uint64) error
	ParamCount() int
	ResultCount() int
}

// Runtime is the managed runtime hosting the solver engine. It is booted
// once per process and shut down irreversibly.
type Runtime interface {
	// Lookup resolves a named export. A missing name means the engine
	// package is absent or incompatible.
	Lookup(name string) (Function, error)

	// Memory exposes the engine's linear memory.
	Memory() fjord.Memory

	// Allocator allocates staging space inside the engine's memory.
	Allocator() fjord.Allocator

	// Close shuts the runtime down. No call may be dispatched afterwards.
	Close(ctx context.Context) error
}

// Config holds the boot parameters for the wazero-backed runtime.
type Config struct {
	// Module is the solver engine's WASM binary.
	Module []byte

	// Name is the instance name, usually the engine name from the
	// project manifest.
	Name string

	// CachePath is the compilation cache directory. Empty disables
	// caching.
	CachePath string

	// MemoryLimitPages caps the engine's linear memory in 64KiB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Mounts maps host directories to guest paths so the engine can
	// read simulation description files.
	Mounts map[string]string

	// Stdout and Stderr receive the engine's output streams. Nil
	// discards them.
	Stdout io.Writer
	Stderr io.Writer
}
