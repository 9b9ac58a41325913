package bridge

import (
	"github.com/fjordsim/fjord/engine"
	"github.com/fjordsim/fjord/errors"
)

// op indexes the symbol table, one id per exposed operation.
type op int

const (
	opSimCreate op = iota
	opCalculateDT
	opIsFinished
	opStep
	opSimRelease
	opNDims
	opNElements
	opNElementsGlobal
	opNDofs
	opNDofsGlobal
	opNDofsElement
	opNVariables
	opLoadCellAverages
	opLoadPrimitive
	opStoreInDatabase
	opVersionPackages
	opVersionPackagesExtended
	opEval
	opMeshForest
	opGetTime
	opLoadNodeCoordinates

	opCount
)

// symBootstrap activates the project environment during Init. It is
// needed only once, so it is resolved ad hoc rather than kept in a slot.
const symBootstrap = "fjord_bootstrap"

type opInfo struct {
	name    string
	params  int
	results int
}

// Export names and core signatures of the engine package's entry points.
// A missing name, or a name with the wrong shape, means the engine
// package is incompatible and Init must abort.
var ops = [opCount]opInfo{
	opSimCreate:               {"fjord_sim_create", 2, 1},
	opCalculateDT:             {"fjord_calculate_dt", 1, 1},
	opIsFinished:              {"fjord_is_finished", 1, 1},
	opStep:                    {"fjord_step", 1, 1},
	opSimRelease:              {"fjord_sim_release", 1, 0},
	opNDims:                   {"fjord_ndims", 1, 1},
	opNElements:               {"fjord_nelements", 1, 1},
	opNElementsGlobal:         {"fjord_nelements_global", 1, 1},
	opNDofs:                   {"fjord_ndofs", 1, 1},
	opNDofsGlobal:             {"fjord_ndofs_global", 1, 1},
	opNDofsElement:            {"fjord_ndofs_element", 1, 1},
	opNVariables:              {"fjord_nvariables", 1, 1},
	opLoadCellAverages:        {"fjord_load_cell_averages", 3, 0},
	opLoadPrimitive:           {"fjord_load_primitive", 3, 0},
	opStoreInDatabase:         {"fjord_store_in_database", 4, 0},
	opVersionPackages:         {"fjord_version_packages", 0, 1},
	opVersionPackagesExtended: {"fjord_version_packages_extended", 0, 1},
	opEval:                    {"fjord_eval", 2, 1},
	opMeshForest:              {"fjord_mesh_forest", 1, 1},
	opGetTime:                 {"fjord_get_time", 1, 1},
	opLoadNodeCoordinates:     {"fjord_load_node_coordinates", 2, 0},
}

// symbolTable holds one resolved entry point per operation. All slots
// are populated as a batch during Init and cleared as a batch during
// Finalize; between the two, every slot is non-nil.
type symbolTable struct {
	slots [opCount]engine.Function
}

func (t *symbolTable) resolveAll(rt engine.Runtime) error {
	for id := op(0); id < opCount; id++ {
		info := ops[id]
		fn, err := rt.Lookup(info.name)
		if err != nil {
			return err
		}
		if fn.ParamCount() != info.params || fn.ResultCount() != info.results {
			return errors.SignatureMismatch(info.name,
				info.params, info.results, fn.ParamCount(), fn.ResultCount())
		}
		t.slots[id] = fn
	}
	return nil
}

func (t *symbolTable) clearAll() {
	for i := range t.slots {
		t.slots[i] = nil
	}
}

func (t *symbolTable) get(id op) engine.Function {
	return t.slots[id]
}
