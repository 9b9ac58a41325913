// Package engine adapts the managed runtime that hosts the solver.
//
// The production implementation embeds wazero and runs the solver engine
// as a WebAssembly module: Boot compiles and instantiates it once,
// Lookup resolves its named exports into callable entry points, and the
// Memory/Allocator accessors expose the linear memory through which
// staged arguments (paths, code strings, float buffers) cross the
// boundary.
//
// The Runtime interface is the seam the bridge dispatches through;
// embedders and tests may provide their own implementation.
package engine
