package bridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	fjord "github.com/fjordsim/fjord"
	"github.com/fjordsim/fjord/engine"
	"github.com/fjordsim/fjord/errors"
)

// The tests below run the bridge against an in-process stand-in for the
// solver engine: a map of exports over a plain byte-slice memory,
// modeling a 2D advection setup on a 16x16 mesh.

const (
	fakeNDims        = 2
	fakeNElements    = 256
	fakeNDofsElement = 25
	fakeNDofs        = fakeNElements * fakeNDofsElement
	fakeNVariables   = 4
	fakeDT           = 0.0032132984504400627
	fakeFinalTime    = 10 * fakeDT

	fakeBoundaryAverage = 1.0
	fakeInteriorAverage = 2.5

	fakePackages    = "hydroflux 0.9.2\nmeshkit 1.4.0\nquadrule n/a"
	fakePackagesExt = fakePackages + "\nlinalg 3.1.7\nioutil-ng 0.2.0"
)

type fakeMemory struct {
	data []byte
}

func (m *fakeMemory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, fmt.Errorf("read [%d,%d) out of range", offset, offset+length)
	}
	return m.data[offset : offset+length], nil
}

func (m *fakeMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return fmt.Errorf("write [%d,%d) out of range", offset, offset+uint32(len(data)))
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *fakeMemory) ReadU32(offset uint32) (uint32, error) {
	raw, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (m *fakeMemory) ReadU64(offset uint32) (uint64, error) {
	raw, err := m.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (m *fakeMemory) WriteU32(offset uint32, value uint32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], value)
	return m.Write(offset, raw[:])
}

func (m *fakeMemory) WriteU64(offset uint32, value uint64) error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], value)
	return m.Write(offset, raw[:])
}

// fakeAlloc is a bump allocator; Free only tracks balance.
type fakeAlloc struct {
	next    uint32
	live    int
	frees   int
	failing bool
}

func (a *fakeAlloc) Alloc(size uint32) (uint32, error) {
	if a.failing {
		return 0, fmt.Errorf("allocator exhausted")
	}
	ptr := a.next
	a.next += (size + 7) &^ 7
	a.live++
	return ptr, nil
}

func (a *fakeAlloc) Free(ptr uint32) {
	a.live--
	a.frees++
}

type fakeFunc struct {
	params  int
	results int
	fn      func(ctx context.Context, stack []uint64) error
}

func (f *fakeFunc) Call(ctx context.Context, stack []uint64) error { return f.fn(ctx, stack) }
func (f *fakeFunc) ParamCount() int                                { return f.params }
func (f *fakeFunc) ResultCount() int                               { return f.results }

type fakeSim struct {
	config   string
	time     float64
	steps    int
	database map[int32][]float64
}

// fakeSolver implements engine.Runtime over the export map below.
type fakeSolver struct {
	mem   *fakeMemory
	alloc *fakeAlloc
	funcs map[string]*fakeFunc

	sims    map[int32]*fakeSim
	nextRef int32

	bootstrapped string
	released     []int32
	closed       bool

	// bootstrapCode, when nonzero, makes activation fail.
	bootstrapCode int32
	// stepFault, when nonzero, is returned by the next step call.
	stepFault int32
}

func (s *fakeSolver) Lookup(name string) (engine.Function, error) {
	fn, ok := s.funcs[name]
	if !ok {
		return nil, errors.MissingExport(name)
	}
	return fn, nil
}

func (s *fakeSolver) Memory() fjord.Memory        { return s.mem }
func (s *fakeSolver) Allocator() fjord.Allocator  { return s.alloc }
func (s *fakeSolver) Close(context.Context) error { s.closed = true; return nil }

func (s *fakeSolver) sim(ref int32) *fakeSim {
	sim, ok := s.sims[ref]
	if !ok {
		panic(fmt.Sprintf("dispatch against dead engine ref %d", ref))
	}
	return sim
}

// packString copies v into engine memory and returns the fat pointer the
// version exports use.
func (s *fakeSolver) packString(v string) uint64 {
	ptr, _ := s.alloc.Alloc(uint32(len(v)))
	copy(s.mem.data[ptr:], v)
	return uint64(ptr)<<32 | uint64(len(v))
}

// elementAverage models a boundary layer on a 16x16 element grid.
func elementAverage(i int) float64 {
	row, col := i/16, i%16
	if row == 0 || row == 15 || col == 0 || col == 15 {
		return fakeBoundaryAverage
	}
	return fakeInteriorAverage
}

// nodeValue is the fake's per-node field: variable index in the
// thousands digit, node index below.
func nodeValue(index int32, node int) float64 {
	return float64(index)*1000 + float64(node)
}

func newFakeSolver() *fakeSolver {
	s := &fakeSolver{
		mem:     &fakeMemory{data: make([]byte, 1<<20)},
		alloc:   &fakeAlloc{next: 8},
		sims:    make(map[int32]*fakeSim),
		nextRef: 1,
	}

	readStr := func(stack []uint64) string {
		ptr, n := uint32(stack[0]), uint32(stack[1])
		return string(s.mem.data[ptr : ptr+n])
	}

	s.funcs = map[string]*fakeFunc{
		symBootstrap: {2, 1, func(_ context.Context, stack []uint64) error {
			s.bootstrapped = readStr(stack)
			stack[0] = uint64(uint32(s.bootstrapCode))
			return nil
		}},
		"fjord_sim_create": {2, 1, func(_ context.Context, stack []uint64) error {
			config := readStr(stack)
			if strings.HasSuffix(config, "missing.jl") {
				code := int32(-2)
				stack[0] = uint64(uint32(code))
				return nil
			}
			ref := s.nextRef
			s.nextRef++
			s.sims[ref] = &fakeSim{config: config, database: make(map[int32][]float64)}
			stack[0] = uint64(uint32(ref))
			return nil
		}},
		"fjord_sim_release": {1, 0, func(_ context.Context, stack []uint64) error {
			ref := int32(uint32(stack[0]))
			delete(s.sims, ref)
			s.released = append(s.released, ref)
			return nil
		}},
		"fjord_step": {1, 1, func(_ context.Context, stack []uint64) error {
			if s.stepFault != 0 {
				stack[0] = uint64(uint32(s.stepFault))
				s.stepFault = 0
				return nil
			}
			sim := s.sim(int32(uint32(stack[0])))
			sim.steps++
			sim.time += fakeDT
			stack[0] = 0
			return nil
		}},
		"fjord_is_finished": {1, 1, func(_ context.Context, stack []uint64) error {
			sim := s.sim(int32(uint32(stack[0])))
			stack[0] = 0
			if sim.time >= fakeFinalTime-1e-12 {
				stack[0] = 1
			}
			return nil
		}},
		"fjord_calculate_dt": {1, 1, func(_ context.Context, stack []uint64) error {
			s.sim(int32(uint32(stack[0])))
			stack[0] = math.Float64bits(fakeDT)
			return nil
		}},
		"fjord_get_time": {1, 1, func(_ context.Context, stack []uint64) error {
			sim := s.sim(int32(uint32(stack[0])))
			stack[0] = math.Float64bits(sim.time)
			return nil
		}},
		"fjord_ndims":             s.query(fakeNDims),
		"fjord_nelements":         s.query(fakeNElements),
		"fjord_nelements_global":  s.query(fakeNElements),
		"fjord_ndofs":             s.query(fakeNDofs),
		"fjord_ndofs_global":      s.query(fakeNDofs),
		"fjord_ndofs_element":     s.query(fakeNDofsElement),
		"fjord_nvariables":        s.query(fakeNVariables),
		"fjord_load_cell_averages": {3, 0, func(_ context.Context, stack []uint64) error {
			ptr := uint32(stack[0])
			s.sim(int32(uint32(stack[2])))
			for i := 0; i < fakeNElements; i++ {
				binary.LittleEndian.PutUint64(s.mem.data[ptr+uint32(i*8):],
					math.Float64bits(elementAverage(i)))
			}
			return nil
		}},
		"fjord_load_primitive": {3, 0, func(_ context.Context, stack []uint64) error {
			ptr, index := uint32(stack[0]), int32(uint32(stack[1]))
			s.sim(int32(uint32(stack[2])))
			for i := 0; i < fakeNDofs; i++ {
				binary.LittleEndian.PutUint64(s.mem.data[ptr+uint32(i*8):],
					math.Float64bits(nodeValue(index, i)))
			}
			return nil
		}},
		"fjord_load_node_coordinates": {2, 0, func(_ context.Context, stack []uint64) error {
			s.sim(int32(uint32(stack[0])))
			ptr := uint32(stack[1])
			// x coordinates first, then y, node index scaled into [0,1).
			for d := 0; d < fakeNDims; d++ {
				for i := 0; i < fakeNDofs; i++ {
					v := float64(d) + float64(i)/fakeNDofs
					binary.LittleEndian.PutUint64(s.mem.data[ptr:], math.Float64bits(v))
					ptr += 8
				}
			}
			return nil
		}},
		"fjord_store_in_database": {4, 0, func(_ context.Context, stack []uint64) error {
			sim := s.sim(int32(uint32(stack[0])))
			index := int32(uint32(stack[1]))
			size, ptr := uint32(stack[2]), uint32(stack[3])
			vals := make([]float64, size)
			for i := range vals {
				vals[i] = math.Float64frombits(
					binary.LittleEndian.Uint64(s.mem.data[ptr+uint32(i*8):]))
			}
			sim.database[index] = vals
			return nil
		}},
		"fjord_mesh_forest": {1, 1, func(_ context.Context, stack []uint64) error {
			ref := int32(uint32(stack[0]))
			s.sim(ref)
			stack[0] = 0xf02e57<<32 | uint64(uint32(ref))
			return nil
		}},
		"fjord_version_packages": {0, 1, func(_ context.Context, stack []uint64) error {
			stack[0] = s.packString(fakePackages)
			return nil
		}},
		"fjord_version_packages_extended": {0, 1, func(_ context.Context, stack []uint64) error {
			stack[0] = s.packString(fakePackagesExt)
			return nil
		}},
		"fjord_eval": {2, 1, func(_ context.Context, stack []uint64) error {
			code := readStr(stack)
			stack[0] = 0
			if strings.Contains(code, "error(") {
				stack[0] = uint64(uint32(int32(7)))
			}
			return nil
		}},
	}
	return s
}

// query builds a (ref) -> i32 export returning a fixed value.
func (s *fakeSolver) query(v int32) *fakeFunc {
	return &fakeFunc{1, 1, func(_ context.Context, stack []uint64) error {
		s.sim(int32(uint32(stack[0])))
		stack[0] = uint64(uint32(v))
		return nil
	}}
}
