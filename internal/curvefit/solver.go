package curvefit

import "assaycore/pkg/domain"

// Backend selects the optimization strategy for a fit.
type Backend string

// Backend preferences. Anything other than auto or solver forces the local
// gradient-descent optimizer.
const (
	// BackendAuto uses the delegate solver when one is configured, falling
	// back to gradient descent otherwise.
	BackendAuto Backend = "auto"
	// BackendSolver forces the delegate solver. When none is configured the
	// fit reports the failure and returns the initial guess unmodified.
	BackendSolver Backend = "solver"
	// BackendGradient forces the built-in gradient-descent optimizer.
	BackendGradient Backend = "gradient"
)

// Bound is a per-parameter box constraint handed to a delegate solver.
// Unbounded sides are +/-Inf.
type Bound struct {
	Min float64
	Max float64
}

// Solver is the capability interface for an external bounded nonlinear
// least-squares implementation. The built-in gradient-descent optimizer is
// the default strategy; a Solver is an optional delegate selected via the
// Backend preference.
type Solver interface {
	// Fit solves min over params of the least-squares residual between the
	// model evaluated at xs and ys, starting from initial, subject to bounds.
	// maxEvaluations caps model evaluations.
	Fit(model domain.ModelKind, xs, ys, initial []float64, constraints []Bound, maxEvaluations int) ([]float64, error)
}

// solverEvaluationCap bounds the model evaluations handed to delegate
// solvers.
const solverEvaluationCap = 10000
