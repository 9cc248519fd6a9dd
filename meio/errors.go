package meio

import "errors"

// Sentinel errors for the engine's failure kinds. Callers match them with
// errors.Is; the JSON layer maps them to kind strings via KindOf.
var (
	// ErrValidation marks malformed items or edges: non-positive units,
	// unknown references, allocation overflow, missing demand nodes.
	ErrValidation = errors.New("validation error")

	// ErrCycle marks a network whose BOM graph contains a cycle.
	ErrCycle = errors.New("cycle detected")

	// ErrNotATree marks a tree-only solver invoked on a general network.
	ErrNotATree = errors.New("network is not a tree")

	// ErrInfeasibleBounds marks inverted or unsatisfiable service-time bounds.
	ErrInfeasibleBounds = errors.New("infeasible service time bounds")

	// ErrSimulationFailure marks a capacity/allocation configuration the
	// simulator cannot represent, or repeated replication failures.
	ErrSimulationFailure = errors.New("simulation failure")
)

// KindOf returns the error kind discriminator used by the result contract.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrCycle):
		return "CycleError"
	case errors.Is(err, ErrNotATree):
		return "NotATreeError"
	case errors.Is(err, ErrInfeasibleBounds):
		return "InfeasibleBoundsError"
	case errors.Is(err, ErrSimulationFailure):
		return "SimulationFailureError"
	default:
		return "InternalError"
	}
}
