package curvefit

import (
	"fmt"
	"math"
)

// LossFunc is a scalar loss over a real parameter vector.
type LossFunc func(params []float64) float64

// gradientEpsilon is the central finite-difference step.
const gradientEpsilon = 1e-4

// descentOutcome carries the optimizer's terminal state.
type descentOutcome struct {
	params    []float64
	converged bool
	status    string
}

// centralGradient computes the finite-difference gradient of loss at params,
// perturbing one component at a time.
func centralGradient(loss LossFunc, params []float64) []float64 {
	grads := make([]float64, len(params))
	for i, value := range params {
		params[i] = value + gradientEpsilon
		plus := loss(params)
		params[i] = value - gradientEpsilon
		minus := loss(params)
		params[i] = value
		grads[i] = (plus - minus) / (2 * gradientEpsilon)
	}
	return grads
}

// minimize runs plain fixed-step gradient descent. Two stopping conditions,
// in this order each iteration: the gradient check runs before the update, so
// zero-iteration convergence is possible and returns the incoming vector; the
// loss-delta check runs after the update. If neither triggers within
// maxIterations the last vector is returned with converged=false.
func minimize(loss LossFunc, initial []float64, learningRate float64, maxIterations int, tolerance float64) descentOutcome {
	params := append([]float64(nil), initial...)
	prevLoss := loss(params)

	for iter := 0; iter < maxIterations; iter++ {
		grads := centralGradient(loss, params)
		maxAbs := 0.0
		for _, g := range grads {
			if a := math.Abs(g); a > maxAbs {
				maxAbs = a
			}
		}
		if maxAbs < tolerance {
			return descentOutcome{
				params:    params,
				converged: true,
				status:    fmt.Sprintf("converged: gradient %.3g below tolerance after %d iterations", maxAbs, iter),
			}
		}

		for i := range params {
			params[i] -= learningRate * grads[i]
		}

		current := loss(params)
		if math.Abs(current-prevLoss) < tolerance {
			return descentOutcome{
				params:    params,
				converged: true,
				status:    fmt.Sprintf("converged: loss delta below tolerance after %d iterations", iter+1),
			}
		}
		prevLoss = current
	}

	return descentOutcome{
		params:    params,
		converged: false,
		status:    fmt.Sprintf("maximum iterations reached (%d)", maxIterations),
	}
}
