package bridge

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/fjordsim/fjord/engine"
	"github.com/fjordsim/fjord/errors"
	"github.com/fjordsim/fjord/registry"
)

// ForestRef is an opaque token for a simulation's mesh forest, valid
// only for hand-off back into the engine.
type ForestRef uint64

// stageString copies s into engine linear memory and returns the guest
// pointer together with its release function.
func (b *Bridge) stageString(s string) (uint32, func(), error) {
	alloc := b.rt.Allocator()
	ptr, err := alloc.Alloc(uint32(len(s)))
	if err != nil {
		return 0, nil, err
	}
	if err := b.rt.Memory().Write(ptr, []byte(s)); err != nil {
		alloc.Free(ptr)
		return 0, nil, err
	}
	return ptr, func() { alloc.Free(ptr) }, nil
}

// resolve maps a public handle to the engine-side reference it guards.
func (b *Bridge) resolve(op string, h registry.Handle) (registry.Ref, error) {
	if err := b.requireReady(op); err != nil {
		return 0, err
	}
	return b.sims.Resolve(h)
}

// call dispatches a resolved slot and wraps engine faults.
func (b *Bridge) call(ctx context.Context, id op, stack []uint64) error {
	if err := b.table.get(id).Call(ctx, stack); err != nil {
		return errors.Dispatch(ops[id].name, err)
	}
	return nil
}

// queryI32 covers the (ref) -> i32 accessor family.
func (b *Bridge) queryI32(ctx context.Context, id op, h registry.Handle) (int32, error) {
	ref, err := b.resolve(ops[id].name, h)
	if err != nil {
		return 0, err
	}
	stack := [1]uint64{uint64(uint32(ref))}
	if err := b.call(ctx, id, stack[:]); err != nil {
		return 0, err
	}
	return int32(uint32(stack[0])), nil
}

// queryF64 covers the (ref) -> f64 accessor family.
func (b *Bridge) queryF64(ctx context.Context, id op, h registry.Handle) (float64, error) {
	ref, err := b.resolve(ops[id].name, h)
	if err != nil {
		return 0, err
	}
	stack := [1]uint64{uint64(uint32(ref))}
	if err := b.call(ctx, id, stack[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(stack[0]), nil
}

// CreateSimulation sets up a simulation from the project-relative
// configuration script at configPath and returns a handle to it. The
// handle stays valid until ReleaseSimulation or Finalize.
func (b *Bridge) CreateSimulation(ctx context.Context, configPath string) (registry.Handle, error) {
	if err := b.requireReady("CreateSimulation"); err != nil {
		return 0, err
	}

	ptr, free, err := b.stageString(configPath)
	if err != nil {
		return 0, errors.Dispatch(ops[opSimCreate].name, err)
	}
	defer free()

	stack := [2]uint64{uint64(ptr), uint64(len(configPath))}
	if err := b.call(ctx, opSimCreate, stack[:]); err != nil {
		return 0, err
	}
	ref := int32(uint32(stack[0]))
	if ref < 0 {
		return 0, errors.EngineFault(ops[opSimCreate].name, ref)
	}

	h := b.sims.Insert(registry.Ref(ref))
	if h == 0 {
		// Registry full. Release the engine-side state we just created
		// before reporting, so nothing leaks.
		rel := [1]uint64{uint64(uint32(ref))}
		if err := b.call(ctx, opSimRelease, rel[:]); err != nil {
			Logger().Warn("release after registry exhaustion", zap.Error(err))
		}
		return 0, errors.Overflow(errors.PhaseRegistry, "simulation handles", b.sims.Len()+1, b.sims.Len())
	}

	if b.debug.hostEvents() {
		Logger().Info("simulation created",
			zap.Int32("handle", int32(h)),
			zap.String("config", configPath))
	}
	return h, nil
}

// ReleaseSimulation tears down the simulation behind h and invalidates
// the handle. The handle is consumed even when engine-side teardown
// reports a fault.
func (b *Bridge) ReleaseSimulation(ctx context.Context, h registry.Handle) error {
	ref, err := b.resolve("ReleaseSimulation", h)
	if err != nil {
		return err
	}

	stack := [1]uint64{uint64(uint32(ref))}
	callErr := b.call(ctx, opSimRelease, stack[:])
	b.sims.Remove(h)

	if b.debug.hostEvents() {
		Logger().Info("simulation released", zap.Int32("handle", int32(h)))
	}
	return callErr
}

// Step advances the simulation by one time step.
func (b *Bridge) Step(ctx context.Context, h registry.Handle) error {
	code, err := b.queryI32(ctx, opStep, h)
	if err != nil {
		return err
	}
	if code < 0 {
		return errors.EngineFault(ops[opStep].name, code)
	}
	return nil
}

// IsFinished reports whether the simulation reached its final time.
func (b *Bridge) IsFinished(ctx context.Context, h registry.Handle) (bool, error) {
	v, err := b.queryI32(ctx, opIsFinished, h)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// CalculateDT returns the time step size the next Step will take.
func (b *Bridge) CalculateDT(ctx context.Context, h registry.Handle) (float64, error) {
	return b.queryF64(ctx, opCalculateDT, h)
}

// Time returns the simulation's current physical time.
func (b *Bridge) Time(ctx context.Context, h registry.Handle) (float64, error) {
	return b.queryF64(ctx, opGetTime, h)
}

// NDims returns the spatial dimension of the simulation's mesh.
func (b *Bridge) NDims(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNDims, h)
}

// NElements returns the number of mesh elements local to this rank.
func (b *Bridge) NElements(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNElements, h)
}

// NElementsGlobal returns the number of mesh elements across all ranks.
func (b *Bridge) NElementsGlobal(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNElementsGlobal, h)
}

// NDofs returns the number of degrees of freedom local to this rank.
func (b *Bridge) NDofs(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNDofs, h)
}

// NDofsGlobal returns the number of degrees of freedom across all ranks.
func (b *Bridge) NDofsGlobal(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNDofsGlobal, h)
}

// NDofsElement returns the number of degrees of freedom per element.
func (b *Bridge) NDofsElement(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNDofsElement, h)
}

// NVariables returns the number of conservative variables.
func (b *Bridge) NVariables(ctx context.Context, h registry.Handle) (int32, error) {
	return b.queryI32(ctx, opNVariables, h)
}

// LoadCellAverages fills data with the element-wise averages of the
// variable at index. data must hold NElements values; the engine writes
// exactly that many and traps on an undersized staging buffer.
func (b *Bridge) LoadCellAverages(ctx context.Context, h registry.Handle, index int32, data []float64) error {
	return b.loadField(ctx, opLoadCellAverages, h, index, data)
}

// LoadPrimitive fills data with the node values of the primitive
// variable at index. data must hold NDofs values.
func (b *Bridge) LoadPrimitive(ctx context.Context, h registry.Handle, index int32, data []float64) error {
	return b.loadField(ctx, opLoadPrimitive, h, index, data)
}

func (b *Bridge) loadField(ctx context.Context, id op, h registry.Handle, index int32, data []float64) error {
	ref, err := b.resolve(ops[id].name, h)
	if err != nil {
		return err
	}

	alloc := b.rt.Allocator()
	size := uint32(len(data)) * 8
	ptr, err := alloc.Alloc(size)
	if err != nil {
		return errors.Dispatch(ops[id].name, err)
	}
	defer alloc.Free(ptr)

	stack := [3]uint64{uint64(ptr), uint64(uint32(index)), uint64(uint32(ref))}
	if err := b.call(ctx, id, stack[:]); err != nil {
		return err
	}
	if err := engine.ReadFloat64s(b.rt.Memory(), ptr, data, len(data)); err != nil {
		return errors.Dispatch(ops[id].name, err)
	}
	return nil
}

// LoadNodeCoordinates fills data with the physical coordinates of every
// node, one spatial dimension after the other. data must hold
// NDims times NDofs values.
func (b *Bridge) LoadNodeCoordinates(ctx context.Context, h registry.Handle, data []float64) error {
	ref, err := b.resolve(ops[opLoadNodeCoordinates].name, h)
	if err != nil {
		return err
	}

	alloc := b.rt.Allocator()
	ptr, err := alloc.Alloc(uint32(len(data)) * 8)
	if err != nil {
		return errors.Dispatch(ops[opLoadNodeCoordinates].name, err)
	}
	defer alloc.Free(ptr)

	stack := [2]uint64{uint64(uint32(ref)), uint64(ptr)}
	if err := b.call(ctx, opLoadNodeCoordinates, stack[:]); err != nil {
		return err
	}
	if err := engine.ReadFloat64s(b.rt.Memory(), ptr, data, len(data)); err != nil {
		return errors.Dispatch(ops[opLoadNodeCoordinates].name, err)
	}
	return nil
}

// StoreInDatabase registers data under slot index in the simulation's
// in-memory database, where configuration scripts can read it back.
// The engine copies the values, so data may be reused afterwards.
func (b *Bridge) StoreInDatabase(ctx context.Context, h registry.Handle, index int32, data []float64) error {
	ref, err := b.resolve(ops[opStoreInDatabase].name, h)
	if err != nil {
		return err
	}

	alloc := b.rt.Allocator()
	ptr, err := alloc.Alloc(uint32(len(data)) * 8)
	if err != nil {
		return errors.Dispatch(ops[opStoreInDatabase].name, err)
	}
	defer alloc.Free(ptr)

	if err := engine.WriteFloat64s(b.rt.Memory(), ptr, data); err != nil {
		return errors.Dispatch(ops[opStoreInDatabase].name, err)
	}
	stack := [4]uint64{uint64(uint32(ref)), uint64(uint32(index)), uint64(uint32(len(data))), uint64(ptr)}
	return b.call(ctx, opStoreInDatabase, stack[:])
}

// MeshForest returns the opaque token for the simulation's mesh forest.
func (b *Bridge) MeshForest(ctx context.Context, h registry.Handle) (ForestRef, error) {
	ref, err := b.resolve(ops[opMeshForest].name, h)
	if err != nil {
		return 0, err
	}
	stack := [1]uint64{uint64(uint32(ref))}
	if err := b.call(ctx, opMeshForest, stack[:]); err != nil {
		return 0, err
	}
	return ForestRef(stack[0]), nil
}

// Eval hands code to the engine's script evaluator and returns its
// status. Development escape hatch only: evaluated code runs with full
// access to the engine's state and can corrupt any live simulation.
func (b *Bridge) Eval(ctx context.Context, code string) error {
	if err := b.requireReady("Eval"); err != nil {
		return err
	}

	ptr, free, err := b.stageString(code)
	if err != nil {
		return errors.Dispatch(ops[opEval].name, err)
	}
	defer free()

	stack := [2]uint64{uint64(ptr), uint64(len(code))}
	if err := b.call(ctx, opEval, stack[:]); err != nil {
		return err
	}
	if status := int32(uint32(stack[0])); status != 0 {
		return errors.EngineFault(ops[opEval].name, status)
	}
	return nil
}
