package curvefit

import (
	"fmt"
	"time"

	"assaycore/pkg/domain"
)

// Default optimization settings per model, matching the tuned values the
// calibration workflows ship with. The tolerance is calibrated so the
// loss-delta stop triggers on clean standards within the iteration budget;
// noise-free 4PL samples must converge under the defaults.
const (
	DefaultLearningRate4PL  = 5e-4
	DefaultMaxIterations4PL = 1500
	DefaultLearningRate5PL  = 2e-4
	DefaultMaxIterations5PL = 1800
	DefaultTolerance        = 1e-5
)

// Config carries the optimization preferences for a fit call. Zero values
// select the per-model defaults.
type Config struct {
	Backend       Backend
	LearningRate  float64
	MaxIterations int
	Tolerance     float64
	// Solver is the optional delegate used by BackendAuto and BackendSolver.
	Solver Solver
}

func (c Config) withDefaults(model domain.ModelKind) Config {
	if c.Backend == "" {
		c.Backend = BackendAuto
	}
	if c.LearningRate == 0 {
		if model == domain.Model5PL {
			c.LearningRate = DefaultLearningRate5PL
		} else {
			c.LearningRate = DefaultLearningRate4PL
		}
	}
	if c.MaxIterations == 0 {
		if model == domain.Model5PL {
			c.MaxIterations = DefaultMaxIterations5PL
		} else {
			c.MaxIterations = DefaultMaxIterations4PL
		}
	}
	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	return c
}

// Fit4PL fits the four-parameter logistic model to the supplied standards.
// Inputs must be non-empty, of equal length, and strictly positive in x.
func Fit4PL(xs, ys []float64, cfg Config) (domain.FitResult, error) {
	return fit(domain.Model4PL, xs, ys, cfg)
}

// Fit5PL fits the five-parameter logistic model to the supplied standards.
func Fit5PL(xs, ys []float64, cfg Config) (domain.FitResult, error) {
	return fit(domain.Model5PL, xs, ys, cfg)
}

func validateInputs(op string, xs, ys []float64) error {
	if len(xs) == 0 || len(ys) == 0 {
		return domain.ValidationError{Op: op, Reason: "inputs must be non-empty"}
	}
	if len(xs) != len(ys) {
		return domain.ValidationError{Op: op, Reason: fmt.Sprintf("input length mismatch: %d x values, %d y values", len(xs), len(ys))}
	}
	for i, x := range xs {
		if x <= 0 {
			return domain.ValidationError{Op: op, Reason: fmt.Sprintf("x values must be strictly positive, got %g at index %d", x, i)}
		}
	}
	return nil
}

func fit(model domain.ModelKind, xs, ys []float64, cfg Config) (domain.FitResult, error) {
	op := "fit_4pl"
	if model == domain.Model5PL {
		op = "fit_5pl"
	}
	if err := validateInputs(op, xs, ys); err != nil {
		return domain.FitResult{}, err
	}
	cfg = cfg.withDefaults(model)

	initial := initialGuess(model, xs, ys)
	loss := sumSquaredResiduals(model, xs, ys)

	var params []float64
	var converged bool
	var status string

	switch {
	case cfg.Backend == BackendSolver, cfg.Backend == BackendAuto && cfg.Solver != nil:
		params, converged, status = delegateFit(model, xs, ys, initial, cfg)
	default:
		outcome := minimize(loss, initial, cfg.LearningRate, cfg.MaxIterations, cfg.Tolerance)
		params, converged, status = outcome.params, outcome.converged, outcome.status
	}

	return buildResult(model, xs, ys, params, converged, status), nil
}

// delegateFit runs the configured delegate solver. Any failure falls back to
// the initial guess unmodified, reporting the reason; the local optimizer is
// not retried on this path.
func delegateFit(model domain.ModelKind, xs, ys, initial []float64, cfg Config) (params []float64, converged bool, status string) {
	if cfg.Solver == nil {
		return initial, false, "delegate solver failed: no solver configured"
	}
	fitted, err := cfg.Solver.Fit(model, xs, ys, initial, bounds(model), solverEvaluationCap)
	if err != nil {
		return initial, false, fmt.Sprintf("delegate solver failed: %v", err)
	}
	return fitted, true, "converged: delegate solver"
}

func buildResult(model domain.ModelKind, xs, ys, params []float64, converged bool, status string) domain.FitResult {
	names := paramNames(model)
	mapping := make(map[string]float64, len(names))
	for i, name := range names {
		mapping[name] = params[i]
	}

	predictions := make([]domain.CurvePoint, len(xs))
	predicted := make([]float64, len(xs))
	for i, x := range xs {
		y := evaluate(model, x, params)
		predictions[i] = domain.CurvePoint{X: x, Y: y}
		predicted[i] = y
	}

	return domain.FitResult{
		Model:       model,
		Parameters:  mapping,
		RSquared:    rSquared(ys, predicted),
		Predictions: predictions,
		Converged:   converged,
		Status:      status,
		FittedAt:    time.Now().UTC(),
	}
}

// DefaultCurvePoints is the sample count used by SampleCurve when the caller
// passes zero.
const DefaultCurvePoints = 20

// SampleCurve evaluates the fitted model over an evenly spaced grid spanning
// the fitted x range, for charting. When all x values coincide the span
// defaults to 1.0 to avoid degenerate spacing.
func SampleCurve(result domain.FitResult, points int) ([]domain.CurvePoint, error) {
	if points == 0 {
		points = DefaultCurvePoints
	}
	if points < 2 {
		return nil, domain.ValidationError{Op: "sample_curve", Reason: fmt.Sprintf("at least 2 points required, got %d", points)}
	}
	if len(result.Predictions) == 0 {
		return nil, domain.ValidationError{Op: "sample_curve", Reason: "fit result has no predictions"}
	}

	minX := result.Predictions[0].X
	maxX := minX
	for _, p := range result.Predictions[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
	}
	span := maxX - minX
	if span == 0 {
		span = 1.0
	}

	names := paramNames(result.Model)
	params := make([]float64, len(names))
	for i, name := range names {
		params[i] = result.Parameters[name]
	}

	curve := make([]domain.CurvePoint, points)
	for i := 0; i < points; i++ {
		x := minX + span*float64(i)/float64(points-1)
		curve[i] = domain.CurvePoint{X: x, Y: evaluate(result.Model, x, params)}
	}
	return curve, nil
}

// ParseBackend maps a textual preference onto a Backend. Unrecognized values
// select the local optimizer.
func ParseBackend(s string) Backend {
	switch Backend(s) {
	case BackendAuto:
		return BackendAuto
	case BackendSolver:
		return BackendSolver
	default:
		return BackendGradient
	}
}
