package bridge

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/fjordsim/fjord/cluster"
	"github.com/fjordsim/fjord/errors"
	"github.com/fjordsim/fjord/registry"
)

func newTestBridge(t *testing.T, opts ...Option) (*Bridge, *fakeSolver) {
	t.Helper()
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvCachePath, "")

	s := newFakeSolver()
	opts = append([]Option{WithRuntime(s)}, opts...)
	b := New(opts...)
	if err := b.Init(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return b, s
}

func createSim(t *testing.T, b *Bridge) registry.Handle {
	t.Helper()
	h, err := b.CreateSimulation(context.Background(), "advection.jl")
	if err != nil {
		t.Fatalf("CreateSimulation: %v", err)
	}
	return h
}

func TestInit_Lifecycle(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBridge(t)

	if b.State() != StateReady {
		t.Fatalf("state after Init = %v, want ready", b.State())
	}
	if s.bootstrapped == "" {
		t.Fatal("bootstrap payload never reached the engine")
	}
	for _, want := range []string{"project=", "rank=0", "world_size=1", "launched=0"} {
		if !strings.Contains(s.bootstrapped, want) {
			t.Errorf("bootstrap payload %q missing %q", s.bootstrapped, want)
		}
	}

	e := b.Init(ctx, t.TempDir())
	if !errors.Is(e, errors.DoubleInit()) {
		t.Fatalf("second Init = %v, want double_init", e)
	}
	if !errors.IsFatal(e) {
		t.Fatal("double init must be fatal")
	}

	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if b.State() != StateFinalized {
		t.Fatalf("state after Finalize = %v, want finalized", b.State())
	}
	if !s.closed {
		t.Fatal("Finalize did not close the runtime")
	}

	if err := b.Finalize(ctx); !errors.Is(err, errors.DoubleFinalize()) {
		t.Fatalf("second Finalize = %v, want double_finalize", err)
	}
	if err := b.Init(ctx, t.TempDir()); !errors.Is(err, errors.DoubleInit()) {
		t.Fatalf("Init after Finalize = %v, want double_init", err)
	}
}

func TestFinalize_BeforeInit(t *testing.T) {
	b := New()
	e := b.Finalize(context.Background())
	if !errors.Is(e, errors.NotInitialized(errors.PhaseLifecycle, "")) {
		t.Fatalf("Finalize before Init = %v, want not_initialized", e)
	}
	if !errors.IsFatal(e) {
		t.Fatal("finalize before init must be fatal")
	}
}

func TestInit_BootstrapRejected(t *testing.T) {
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvCachePath, "")

	s := newFakeSolver()
	s.bootstrapCode = 3
	b := New(WithRuntime(s))

	e := b.Init(context.Background(), t.TempDir())
	if e == nil {
		t.Fatal("Init succeeded despite rejected activation")
	}
	if !errors.IsFatal(e) {
		t.Fatalf("bootstrap failure %v must be fatal", e)
	}
	if b.State() != StateUninitialized {
		t.Fatalf("state after failed Init = %v, want uninitialized", b.State())
	}
}

func TestInit_OversizedBootstrapPayload(t *testing.T) {
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvCachePath, "/tmp/fjord-cache")

	s := newFakeSolver()
	b := New(WithRuntime(s))

	// A project path long enough to blow the activation payload bound.
	e := b.Init(context.Background(), "/"+strings.Repeat("x", 2*maxBootstrapBytes))
	if !errors.Is(e, errors.Overflow(errors.PhaseBootstrap, "", 0, 0)) {
		t.Fatalf("Init = %v, want overflow", e)
	}
	if !errors.IsFatal(e) {
		t.Fatal("oversized bootstrap payload must be fatal")
	}
	if s.bootstrapped != "" {
		t.Fatal("oversized payload must not reach the engine")
	}
}

func TestInit_MissingExportIsFatal(t *testing.T) {
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvCachePath, "")

	s := newFakeSolver()
	delete(s.funcs, "fjord_calculate_dt")
	b := New(WithRuntime(s))

	e := b.Init(context.Background(), t.TempDir())
	if !errors.Is(e, errors.MissingExport("fjord_calculate_dt")) {
		t.Fatalf("Init = %v, want missing_export", e)
	}
	if !errors.IsFatal(e) {
		t.Fatal("missing export must be fatal")
	}
}

func TestInit_SignatureMismatchIsFatal(t *testing.T) {
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvCachePath, "")

	s := newFakeSolver()
	s.funcs["fjord_step"] = &fakeFunc{2, 1, func(context.Context, []uint64) error { return nil }}
	b := New(WithRuntime(s))

	e := b.Init(context.Background(), t.TempDir())
	if !errors.Is(e, errors.SignatureMismatch("fjord_step", 0, 0, 0, 0)) {
		t.Fatalf("Init = %v, want signature_mismatch", e)
	}
	if !errors.IsFatal(e) {
		t.Fatal("signature mismatch must be fatal")
	}
}

func TestSymbolTable_PopulatedWhileReady(t *testing.T) {
	b, _ := newTestBridge(t)

	for id := op(0); id < opCount; id++ {
		if b.table.get(id) == nil {
			t.Errorf("slot %s nil while ready", ops[id].name)
		}
	}

	if err := b.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for id := op(0); id < opCount; id++ {
		if b.table.get(id) != nil {
			t.Errorf("slot %s survives Finalize", ops[id].name)
		}
	}
}

func TestDispatch_RequiresReady(t *testing.T) {
	ctx := context.Background()

	b := New()
	if _, e := b.CreateSimulation(ctx, "advection.jl"); !errors.Is(e, errors.NotInitialized(errors.PhaseDispatch, "")) {
		t.Fatalf("CreateSimulation before Init = %v, want not_initialized", e)
	}

	b, _ = newTestBridge(t)
	h := createSim(t, b)
	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, e := b.IsFinished(ctx, h); !errors.Is(e, errors.Finalized(errors.PhaseDispatch, "")) {
		t.Fatalf("IsFinished after Finalize = %v, want finalized", e)
	}
}

func TestCreateSimulation_Handles(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBridge(t)

	h1 := createSim(t, b)
	h2 := createSim(t, b)
	if h1 == 0 || h2 == 0 || h1 == h2 {
		t.Fatalf("handles %d, %d: want distinct nonzero", h1, h2)
	}
	if b.Simulations() != 2 {
		t.Fatalf("Simulations() = %d, want 2", b.Simulations())
	}

	if err := b.ReleaseSimulation(ctx, h1); err != nil {
		t.Fatalf("ReleaseSimulation: %v", err)
	}
	if len(s.released) != 1 {
		t.Fatalf("engine released %d refs, want 1", len(s.released))
	}

	// The released handle must stay dead even after its slot is reused.
	h3 := createSim(t, b)
	if _, e := b.sims.Resolve(h1); !errors.Is(e, errors.StaleHandle(0)) {
		t.Fatalf("resolve of released handle = %v, want stale_handle", e)
	}
	if _, err := b.NDims(ctx, h3); err != nil {
		t.Fatalf("NDims on reused slot: %v", err)
	}
}

func TestCreateSimulation_EngineFault(t *testing.T) {
	b, _ := newTestBridge(t)

	_, e := b.CreateSimulation(context.Background(), "missing.jl")
	if !errors.Is(e, errors.EngineFault("", 0)) {
		t.Fatalf("CreateSimulation = %v, want engine_fault", e)
	}
	if errors.IsFatal(e) {
		t.Fatal("engine fault on create must not be fatal")
	}
	if b.Simulations() != 0 {
		t.Fatal("failed create leaked a handle")
	}
}

func TestDispatch_UnknownHandle(t *testing.T) {
	b, _ := newTestBridge(t)

	_, e := b.NElements(context.Background(), registry.Handle(12345))
	if !errors.Is(e, errors.UnknownHandle(0)) {
		t.Fatalf("NElements = %v, want unknown_handle", e)
	}
	if errors.IsFatal(e) {
		t.Fatal("unknown handle must not be fatal")
	}
}

func TestStep_EngineFault(t *testing.T) {
	b, s := newTestBridge(t)
	h := createSim(t, b)

	s.stepFault = -9
	e := b.Step(context.Background(), h)
	if !errors.Is(e, errors.EngineFault("", 0)) {
		t.Fatalf("Step = %v, want engine_fault", e)
	}

	// The fault is transient; the handle stays usable.
	if err := b.Step(context.Background(), h); err != nil {
		t.Fatalf("Step after fault: %v", err)
	}
}

func TestQueries_MeshShape(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBridge(t)
	h := createSim(t, b)

	checks := []struct {
		name string
		fn   func(context.Context, registry.Handle) (int32, error)
		want int32
	}{
		{"NDims", b.NDims, fakeNDims},
		{"NElements", b.NElements, fakeNElements},
		{"NElementsGlobal", b.NElementsGlobal, fakeNElements},
		{"NDofs", b.NDofs, fakeNDofs},
		{"NDofsGlobal", b.NDofsGlobal, fakeNDofs},
		{"NDofsElement", b.NDofsElement, fakeNDofsElement},
		{"NVariables", b.NVariables, fakeNVariables},
	}
	for _, c := range checks {
		got, err := c.fn(ctx, h)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s = %d, want %d", c.name, got, c.want)
		}
	}

	// Local and global counts agree in a single-process run, and dofs
	// factor over elements.
	ne, _ := b.NElements(ctx, h)
	ndofs, _ := b.NDofs(ctx, h)
	perElem, _ := b.NDofsElement(ctx, h)
	if ndofs != ne*perElem {
		t.Fatalf("ndofs %d != nelements %d * ndofs_element %d", ndofs, ne, perElem)
	}
}

func TestLoadCellAverages(t *testing.T) {
	b, _ := newTestBridge(t)
	h := createSim(t, b)

	data := make([]float64, fakeNElements)
	if err := b.LoadCellAverages(context.Background(), h, 0, data); err != nil {
		t.Fatalf("LoadCellAverages: %v", err)
	}

	// Boundary elements carry the inflow value, interior the advected one.
	if data[0] != fakeBoundaryAverage {
		t.Errorf("corner element = %g, want %g", data[0], fakeBoundaryAverage)
	}
	if data[17] != fakeInteriorAverage {
		t.Errorf("interior element = %g, want %g", data[17], fakeInteriorAverage)
	}
}

func TestLoadPrimitive(t *testing.T) {
	b, _ := newTestBridge(t)
	h := createSim(t, b)

	data := make([]float64, fakeNDofs)
	if err := b.LoadPrimitive(context.Background(), h, 2, data); err != nil {
		t.Fatalf("LoadPrimitive: %v", err)
	}
	for _, i := range []int{0, 1, fakeNDofs - 1} {
		if want := nodeValue(2, i); data[i] != want {
			t.Errorf("node %d = %g, want %g", i, data[i], want)
		}
	}
}

func TestLoadNodeCoordinates(t *testing.T) {
	b, _ := newTestBridge(t)
	h := createSim(t, b)

	data := make([]float64, fakeNDims*fakeNDofs)
	if err := b.LoadNodeCoordinates(context.Background(), h, data); err != nil {
		t.Fatalf("LoadNodeCoordinates: %v", err)
	}
	// Dimensions are laid out one after the other.
	if data[0] != 0 || data[fakeNDofs] != 1 {
		t.Errorf("dimension blocks start at %g, %g; want 0, 1", data[0], data[fakeNDofs])
	}
}

func TestStoreInDatabase(t *testing.T) {
	b, s := newTestBridge(t)
	h := createSim(t, b)

	vals := []float64{3.5, -1.25, 0, math.Pi}
	if err := b.StoreInDatabase(context.Background(), h, 1, vals); err != nil {
		t.Fatalf("StoreInDatabase: %v", err)
	}

	stored := s.sims[1].database[1]
	if len(stored) != len(vals) {
		t.Fatalf("engine stored %d values, want %d", len(stored), len(vals))
	}
	for i := range vals {
		if stored[i] != vals[i] {
			t.Errorf("stored[%d] = %g, want %g", i, stored[i], vals[i])
		}
	}
}

func TestMeshForest(t *testing.T) {
	b, _ := newTestBridge(t)
	h := createSim(t, b)

	ref, err := b.MeshForest(context.Background(), h)
	if err != nil {
		t.Fatalf("MeshForest: %v", err)
	}
	if ref == 0 {
		t.Fatal("MeshForest returned a zero token")
	}
}

func TestEval(t *testing.T) {
	b, _ := newTestBridge(t)

	if err := b.Eval(context.Background(), `println("hi")`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	e := b.Eval(context.Background(), `error("boom")`)
	if !errors.Is(e, errors.EngineFault("", 0)) {
		t.Fatalf("Eval = %v, want engine_fault", e)
	}
}

func TestVersions(t *testing.T) {
	b, _ := newTestBridge(t)

	if Version() != versionFull || VersionMajor() != versionMajor ||
		VersionMinor() != versionMinor || VersionPatch() != versionPatch {
		t.Fatal("library version accessors disagree with constants")
	}

	pkgs, err := b.VersionPackages()
	if err != nil {
		t.Fatalf("VersionPackages: %v", err)
	}
	if pkgs != fakePackages {
		t.Fatalf("VersionPackages = %q, want %q", pkgs, fakePackages)
	}

	// Stable for the whole session.
	again, _ := b.VersionPackages()
	if again != pkgs {
		t.Fatal("VersionPackages changed between calls")
	}

	ext, err := b.VersionPackagesExtended()
	if err != nil {
		t.Fatalf("VersionPackagesExtended: %v", err)
	}
	if !strings.HasPrefix(ext, fakePackages) || ext == pkgs {
		t.Fatalf("extended listing %q does not extend %q", ext, pkgs)
	}
}

func TestCachePathResolution(t *testing.T) {
	getenv := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	got := resolveCachePath("/work/proj", "", getenv(nil))
	if want := "/work/proj/.fjord/cache"; got != want {
		t.Errorf("default = %q, want %q", got, want)
	}

	got = resolveCachePath("/work/proj", "", getenv(map[string]string{EnvCachePath: "/var/cache/fjord"}))
	if got != "/var/cache/fjord" {
		t.Errorf("env = %q, want /var/cache/fjord", got)
	}

	got = resolveCachePath("/work/proj", "/forced", getenv(map[string]string{EnvCachePath: "/var/cache/fjord"}))
	if got != "/forced" {
		t.Errorf("forced = %q, want /forced", got)
	}
}

func TestFinalize_ClearsSimulations(t *testing.T) {
	b, _ := newTestBridge(t)
	createSim(t, b)
	createSim(t, b)

	if err := b.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if b.Simulations() != 0 {
		t.Fatalf("Simulations() after Finalize = %d, want 0", b.Simulations())
	}
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBridge(t, WithCluster(cluster.Settings{Rank: 0, WorldSize: 1}))
	h := createSim(t, b)

	dt, err := b.CalculateDT(ctx, h)
	if err != nil {
		t.Fatalf("CalculateDT: %v", err)
	}
	if dt != fakeDT {
		t.Fatalf("dt = %v, want %v", dt, fakeDT)
	}

	steps := 0
	for {
		done, err := b.IsFinished(ctx, h)
		if err != nil {
			t.Fatalf("IsFinished: %v", err)
		}
		if done {
			break
		}
		if err := b.Step(ctx, h); err != nil {
			t.Fatalf("Step %d: %v", steps, err)
		}
		steps++
		if steps > 1000 {
			t.Fatal("simulation never finished")
		}
	}
	if steps != 10 {
		t.Fatalf("ran %d steps, want 10", steps)
	}

	tm, err := b.Time(ctx, h)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if math.Abs(tm-fakeFinalTime) > 1e-12 {
		t.Fatalf("final time = %v, want %v", tm, fakeFinalTime)
	}

	if err := b.ReleaseSimulation(ctx, h); err != nil {
		t.Fatalf("ReleaseSimulation: %v", err)
	}
	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestStagingBalanced(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBridge(t)
	h := createSim(t, b)

	data := make([]float64, fakeNElements)
	if err := b.LoadCellAverages(ctx, h, 0, data); err != nil {
		t.Fatalf("LoadCellAverages: %v", err)
	}
	if err := b.StoreInDatabase(ctx, h, 0, data); err != nil {
		t.Fatalf("StoreInDatabase: %v", err)
	}
	if err := b.Eval(ctx, "1+1"); err != nil {
		t.Fatalf("Eval: %v", err)
	}

	// Everything the shims staged must have been released again; only
	// the version strings from Init stay resident.
	if s.alloc.live != 2 {
		t.Fatalf("%d live allocations, want 2", s.alloc.live)
	}
}
