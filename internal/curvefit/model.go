// Package curvefit fits four- and five-parameter logistic calibration curves
// to standard concentration/signal pairs.
package curvefit

import (
	"math"

	"assaycore/pkg/domain"
)

// Parameter names in optimizer vector order.
const (
	ParamA = "a" // response at zero concentration asymptote
	ParamB = "b" // slope factor
	ParamC = "c" // inflection concentration
	ParamD = "d" // response at infinite concentration asymptote
	ParamG = "g" // asymmetry factor (5PL only)
)

// paramFloor keeps c (and g for 5PL) strictly positive so the x/c ratio and
// the outer exponent stay defined over the validated domain.
const paramFloor = 1e-6

// FourPL evaluates the four-parameter logistic model at x.
// Total for x>0, c>0.
func FourPL(x, a, b, c, d float64) float64 {
	return d + (a-d)/(1+math.Pow(x/c, b))
}

// FivePL evaluates the five-parameter logistic model at x.
func FivePL(x, a, b, c, d, g float64) float64 {
	return d + (a-d)/math.Pow(1+math.Pow(x/c, b), g)
}

func paramNames(model domain.ModelKind) []string {
	if model == domain.Model5PL {
		return []string{ParamA, ParamB, ParamC, ParamD, ParamG}
	}
	return []string{ParamA, ParamB, ParamC, ParamD}
}

func evaluate(model domain.ModelKind, x float64, params []float64) float64 {
	if model == domain.Model5PL {
		return FivePL(x, params[0], params[1], params[2], params[3], params[4])
	}
	return FourPL(x, params[0], params[1], params[2], params[3])
}

// initialGuess builds the starting vector: a=min(y), d=max(y), c=mean(x)
// floored to keep the ratio defined, b=1, and g=1 for the 5PL model.
func initialGuess(model domain.ModelKind, xs, ys []float64) []float64 {
	a := ys[0]
	d := ys[0]
	for _, y := range ys[1:] {
		if y < a {
			a = y
		}
		if y > d {
			d = y
		}
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	c := sum / float64(len(xs))
	if c < paramFloor {
		c = paramFloor
	}
	if model == domain.Model5PL {
		return []float64{a, 1.0, c, d, 1.0}
	}
	return []float64{a, 1.0, c, d}
}

// bounds returns the per-parameter box constraints handed to a delegate
// solver: b>=0 and c>=floor for both models, g>=floor for 5PL.
func bounds(model domain.ModelKind) []Bound {
	unbounded := Bound{Min: math.Inf(-1), Max: math.Inf(1)}
	out := []Bound{
		unbounded,                           // a
		{Min: 0, Max: math.Inf(1)},          // b
		{Min: paramFloor, Max: math.Inf(1)}, // c
		unbounded,                           // d
	}
	if model == domain.Model5PL {
		out = append(out, Bound{Min: paramFloor, Max: math.Inf(1)}) // g
	}
	return out
}

func sumSquaredResiduals(model domain.ModelKind, xs, ys []float64) LossFunc {
	return func(params []float64) float64 {
		var total float64
		for i, x := range xs {
			diff := evaluate(model, x, params) - ys[i]
			total += diff * diff
		}
		return total
	}
}

func rSquared(observed, predicted []float64) float64 {
	var mean float64
	for _, o := range observed {
		mean += o
	}
	mean /= float64(len(observed))

	var ssTot, ssRes float64
	for i, o := range observed {
		ssTot += (o - mean) * (o - mean)
		diff := o - predicted[i]
		ssRes += diff * diff
	}
	if ssTot == 0 {
		return 0.0
	}
	return 1 - ssRes/ssTot
}
