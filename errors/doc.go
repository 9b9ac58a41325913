// Package errors provides the structured error types used across the
// fjord boundary.
//
// Every error carries a Phase (where in the boundary it occurred) and a
// Kind (what went wrong). Two classes exist:
//
//   - Fatal boundary-contract violations: double init, finalize before
//     init, a missing or ill-typed engine export, an oversized bootstrap
//     payload. These indicate a broken integration. IsFatal reports true
//     and the top-level caller is expected to abort; the boundary itself
//     never terminates the process.
//
//   - Engine faults: failures the managed side signalled during a
//     dispatched operation. The boundary forwards them without
//     interpretation; IsFatal reports false.
//
// Errors support errors.Is matching by phase and kind:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindDoubleInit}) {
//	    ...
//	}
package errors
