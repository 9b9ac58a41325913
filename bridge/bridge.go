package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fjordsim/fjord/cluster"
	"github.com/fjordsim/fjord/engine"
	"github.com/fjordsim/fjord/errors"
	"github.com/fjordsim/fjord/manifest"
	"github.com/fjordsim/fjord/registry"
)

// EnvCachePath overrides the engine's compilation cache location. When
// unset, Init derives it from the project directory and exports the
// resolved value back into the environment.
const EnvCachePath = "FJORD_CACHE_PATH"

// defaultCacheSuffix is appended to the project directory when no cache
// path is forced or inherited.
const defaultCacheSuffix = ".fjord/cache"

// maxBootstrapBytes bounds the environment activation payload.
const maxBootstrapBytes = 1024

// State is the lifecycle state of a Bridge.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Bridge owns the boundary to one embedded solver engine. The zero
// value is not usable; construct with New.
type Bridge struct {
	rt       engine.Runtime
	injected bool

	table symbolTable
	sims  *registry.Table

	state State
	debug debugMode

	pkgVersions    string
	pkgVersionsExt string

	forcedCachePath string
	settings        cluster.Settings
	haveSettings    bool
}

// Option configures a Bridge at construction time.
type Option func(*Bridge)

// WithRuntime injects a pre-booted managed runtime. Init then skips the
// boot step but still activates the environment and resolves the symbol
// table against the injected runtime. Intended for embedders and tests.
func WithRuntime(rt engine.Runtime) Option {
	return func(b *Bridge) {
		b.rt = rt
		b.injected = true
	}
}

// WithCachePath forces the engine's compilation cache location,
// overriding both the environment and the project-derived default.
func WithCachePath(path string) Option {
	return func(b *Bridge) { b.forcedCachePath = path }
}

// WithCluster supplies launcher settings recovered before the lifecycle
// started (see package cluster). Applied once, during Init.
func WithCluster(s cluster.Settings) Option {
	return func(b *Bridge) {
		b.settings = s
		b.haveSettings = true
	}
}

// New returns an Uninitialized bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{sims: registry.NewTable()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return b.state
}

// Observe subscribes an observer to simulation handle lifecycle events.
func (b *Bridge) Observe(o registry.Observer) {
	b.sims.Subscribe(o)
}

// Simulations returns the number of live simulation handles.
func (b *Bridge) Simulations() int {
	return b.sims.Len()
}

// Init boots the managed runtime against the project at projectDir,
// activates its environment, and resolves the symbol table. It is valid
// exactly once per Bridge; any failure is fatal for the process, since a
// partially initialized runtime cannot be unwound.
func (b *Bridge) Init(ctx context.Context, projectDir string) error {
	if b.state != StateUninitialized {
		// Init after Finalize is equally erroneous, but Finalize
		// requires a prior Init, so one check covers both.
		return errors.DoubleInit()
	}

	mode, recognized := debugModeFromEnv()
	if !recognized {
		Logger().Warn("unrecognized debug toggle, logging nothing",
			zap.String("var", EnvDebug),
			zap.String("value", os.Getenv(EnvDebug)))
	}
	b.debug = mode

	cachePath := resolveCachePath(projectDir, b.forcedCachePath, os.Getenv)
	if err := os.Setenv(EnvCachePath, cachePath); err != nil {
		return errors.Boot("export cache path", err)
	}

	if !b.haveSettings {
		b.settings = cluster.Discover()
	}

	if b.rt == nil {
		m, err := manifest.Load(projectDir)
		if err != nil {
			return err
		}
		wasm, err := m.ReadModule()
		if err != nil {
			return err
		}

		cfg := engine.Config{
			Module:           wasm,
			Name:             m.Engine.Name,
			CachePath:        cachePath,
			MemoryLimitPages: m.Engine.MemoryLimitPages,
			Mounts:           m.HostMounts(),
		}
		if b.debug.engineStdio() {
			cfg.Stdout = os.Stdout
			cfg.Stderr = os.Stderr
		}

		rt, err := engine.Boot(ctx, cfg)
		if err != nil {
			return err
		}
		b.rt = rt
	}

	if err := b.bootstrap(ctx, projectDir); err != nil {
		b.teardownAfterInitFailure(ctx)
		return err
	}

	if err := b.table.resolveAll(b.rt); err != nil {
		b.teardownAfterInitFailure(ctx)
		return err
	}

	if err := b.resolveVersionStrings(ctx); err != nil {
		b.teardownAfterInitFailure(ctx)
		return err
	}

	b.state = StateReady

	if b.debug.hostEvents() {
		Logger().Info("bridge ready",
			zap.String("version", Version()),
			zap.String("project", projectDir),
			zap.String("cache", cachePath),
			zap.Int("rank", b.settings.Rank),
			zap.Int("world_size", b.settings.WorldSize))
		Logger().Debug("engine packages", zap.String("packages", b.pkgVersions))
	}
	return nil
}

// Finalize clears the symbol table and shuts the managed runtime down
// irreversibly. No operation may be dispatched afterwards.
func (b *Bridge) Finalize(ctx context.Context) error {
	switch b.state {
	case StateUninitialized:
		return errors.NotInitialized(errors.PhaseLifecycle, "Finalize")
	case StateFinalized:
		return errors.DoubleFinalize()
	}

	if b.debug.hostEvents() {
		Logger().Info("bridge finalize", zap.Int("live_simulations", b.sims.Len()))
	}

	b.table.clearAll()
	b.sims.Clear()
	b.state = StateFinalized

	if err := b.rt.Close(ctx); err != nil {
		return errors.IO(errors.PhaseFinalize, "shut down managed runtime", err)
	}
	return nil
}

// bootstrap builds the bounded activation payload and hands it to the
// engine's bootstrap export.
func (b *Bridge) bootstrap(ctx context.Context, projectDir string) error {
	payload := fmt.Sprintf("project=%s\nrank=%d\nworld_size=%d\nlaunched=%d\n",
		projectDir, b.settings.Rank, b.settings.WorldSize, boolToInt(b.settings.Launched))
	if len(payload) > maxBootstrapBytes {
		return errors.Overflow(errors.PhaseBootstrap, "bootstrap payload", len(payload), maxBootstrapBytes)
	}

	fn, err := b.rt.Lookup(symBootstrap)
	if err != nil {
		return errors.Bootstrap("engine package does not export "+symBootstrap, err)
	}
	if fn.ParamCount() != 2 || fn.ResultCount() != 1 {
		return errors.SignatureMismatch(symBootstrap, 2, 1, fn.ParamCount(), fn.ResultCount())
	}

	ptr, free, err := b.stageString(payload)
	if err != nil {
		return errors.Bootstrap("stage payload", err)
	}
	defer free()

	stack := [2]uint64{uint64(ptr), uint64(len(payload))}
	if err := fn.Call(ctx, stack[:]); err != nil {
		return errors.Bootstrap("activate project environment", err)
	}
	if code := int32(uint32(stack[0])); code != 0 {
		return errors.Bootstrap(fmt.Sprintf("engine rejected activation (code %d)", code), nil)
	}
	return nil
}

// teardownAfterInitFailure best-effort closes a runtime we booted
// ourselves. The init failure itself is what gets reported; the caller
// aborts on it either way.
func (b *Bridge) teardownAfterInitFailure(ctx context.Context) {
	if b.injected || b.rt == nil {
		return
	}
	if err := b.rt.Close(ctx); err != nil {
		Logger().Warn("teardown after failed init", zap.Error(err))
	}
}

func (b *Bridge) requireReady(what string) error {
	switch b.state {
	case StateUninitialized:
		return errors.NotInitialized(errors.PhaseDispatch, what)
	case StateFinalized:
		return errors.Finalized(errors.PhaseDispatch, what)
	}
	return nil
}

func resolveCachePath(projectDir, forced string, getenv func(string) string) string {
	if forced != "" {
		return forced
	}
	if v := getenv(EnvCachePath); v != "" {
		return v
	}
	return filepath.Join(projectDir, defaultCacheSuffix)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
