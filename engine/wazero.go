package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	fjord "github.com/fjordsim/fjord"
	"github.com/fjordsim/fjord/errors"
)

// allocator export names, in lookup order. wasi-libc based engines export
// malloc/free; engines built with a custom allocator export the fjord_
// pair instead.
var (
	allocNames = []string{"malloc", "fjord_alloc"}
	freeNames  = []string{"free", "fjord_free"}
)

// WazeroRuntime is the wazero-backed managed runtime.
type WazeroRuntime struct {
	runtime wazero.Runtime
	module  api.Module
	memory  *wazeroMemory
	alloc   *wazeroAllocator
}

// Boot compiles and instantiates the solver engine. It is called exactly
// once per process by the lifecycle manager.
func Boot(ctx context.Context, cfg Config) (*WazeroRuntime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.CachePath != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CachePath)
		if err != nil {
			return nil, errors.Boot("open compilation cache", err)
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, errors.Boot("instantiate WASI", err)
	}

	compiled, err := r.CompileModule(ctx, cfg.Module)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Boot("compile engine module", err)
	}

	modCfg := wazero.NewModuleConfig().WithName(cfg.Name)
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}
	if len(cfg.Mounts) > 0 {
		fsCfg := wazero.NewFSConfig()
		for host, guest := range cfg.Mounts {
			fsCfg = fsCfg.WithDirMount(host, guest)
		}
		modCfg = modCfg.WithFSConfig(fsCfg)
	}

	module, err := r.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Boot("instantiate engine module", err)
	}

	rt := &WazeroRuntime{runtime: r, module: module}

	mem := module.Memory()
	if mem == nil {
		r.Close(ctx)
		return nil, errors.Boot("engine module exports no memory", nil)
	}
	rt.memory = &wazeroMemory{mem: mem}

	var allocFn, freeFn api.Function
	for _, name := range allocNames {
		if allocFn = module.ExportedFunction(name); allocFn != nil {
			break
		}
	}
	for _, name := range freeNames {
		if freeFn = module.ExportedFunction(name); freeFn != nil {
			break
		}
	}
	if allocFn == nil {
		r.Close(ctx)
		return nil, errors.Boot("engine module exports no allocator", nil)
	}
	rt.alloc = &wazeroAllocator{allocFn: allocFn, freeFn: freeFn}

	Logger().Debug("engine booted",
		zap.String("name", cfg.Name),
		zap.String("cache", cfg.CachePath),
		zap.Uint32("memory_bytes", mem.Size()))

	return rt, nil
}

// Lookup resolves a named export into a callable entry point.
func (r *WazeroRuntime) Lookup(name string) (Function, error) {
	fn := r.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(name)
	}
	return &wazeroFunction{fn: fn}, nil
}

// Memory exposes the engine's linear memory.
func (r *WazeroRuntime) Memory() fjord.Memory {
	return r.memory
}

// Allocator allocates staging space in the engine's memory.
func (r *WazeroRuntime) Allocator() fjord.Allocator {
	return r.alloc
}

// Close shuts the runtime down irreversibly.
func (r *WazeroRuntime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

type wazeroFunction struct {
	fn api.Function
}

func (f *wazeroFunction) Call(ctx context.Context, stack []uint64) error {
	return f.fn.CallWithStack(ctx, stack)
}

func (f *wazeroFunction) ParamCount() int {
	return len(f.fn.Definition().ParamTypes())
}

func (f *wazeroFunction) ResultCount() int {
	return len(f.fn.Definition().ResultTypes())
}

// wazeroMemory wraps wazero memory to implement fjord.Memory
type wazeroMemory struct {
	mem api.Memory
}

func (m *wazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *wazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *wazeroMemory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *wazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *wazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *wazeroMemory) Size() uint32 {
	return m.mem.Size()
}

// wazeroAllocator drives the engine's exported allocator. The boundary is
// single-threaded by contract, so calls are not synchronized.
type wazeroAllocator struct {
	allocFn api.Function
	freeFn  api.Function
	stack   [1]uint64
}

func (a *wazeroAllocator) Alloc(size uint32) (uint32, error) {
	a.stack[0] = uint64(size)
	if err := a.allocFn.CallWithStack(context.Background(), a.stack[:]); err != nil {
		return 0, err
	}
	ptr := uint32(a.stack[0])
	if ptr == 0 {
		return 0, fmt.Errorf("engine allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

func (a *wazeroAllocator) Free(ptr uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	a.stack[0] = uint64(ptr)
	if err := a.freeFn.CallWithStack(context.Background(), a.stack[:]); err != nil {
		Logger().Warn("Free: engine deallocation failed",
			zap.Uint32("ptr", ptr),
			zap.Error(err))
	}
}

// Compile-time checks against the root interfaces.
var _ Runtime = (*WazeroRuntime)(nil)
var _ fjord.Memory = (*wazeroMemory)(nil)
var _ fjord.MemorySizer = (*wazeroMemory)(nil)
var _ fjord.Allocator = (*wazeroAllocator)(nil)
