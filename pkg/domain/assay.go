// Package domain defines the core value types, error taxonomy, and
// persistence primitives shared by the assaycore subsystems.
package domain

import "time"

// ModelKind identifies a supported logistic calibration model.
type ModelKind string

// Supported calibration models.
const (
	// Model4PL is the four-parameter logistic model d + (a-d)/(1+(x/c)^b).
	Model4PL ModelKind = "4PL"
	// Model5PL is the five-parameter logistic model d + (a-d)/((1+(x/c)^b)^g).
	Model5PL ModelKind = "5PL"
)

// CurvePoint pairs a concentration with a signal value.
type CurvePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FitResult captures the outcome of a calibration curve fit. It is a value
// object: produced exactly once per fit call and never mutated afterwards.
type FitResult struct {
	Model       ModelKind          `json:"model"`
	Parameters  map[string]float64 `json:"parameters"`
	RSquared    float64            `json:"r_squared"`
	Predictions []CurvePoint       `json:"predictions"`
	Converged   bool               `json:"converged"`
	Status      string             `json:"status"`
	FittedAt    time.Time          `json:"fitted_at"`
}

// ControlResult is a single quality-control observation. Sequence order is
// significant: Westgard rules are defined over consecutive elements in input
// order, not sorted by run number.
type ControlResult struct {
	Run   int     `json:"run"`
	Value float64 `json:"value"`
	Mean  float64 `json:"mean"`
	SD    float64 `json:"sd"`
}

// ZScore returns the normalized deviation of the control value. A zero
// standard deviation yields 0 by definition, never an error.
func (c ControlResult) ZScore() float64 {
	if c.SD == 0 {
		return 0
	}
	return (c.Value - c.Mean) / c.SD
}

// LeveyJenningsPoint is one charted control observation.
type LeveyJenningsPoint struct {
	Run    int     `json:"run"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

// Westgard rule identifiers. The rule set is fixed; reports key breach
// indices by these names.
const (
	Rule12S = "1_2s"
	Rule13S = "1_3s"
	Rule22S = "2_2s"
	RuleR4S = "r_4s"
	Rule41S = "4_1s"
	Rule10X = "10_x"
)

// WestgardRuleNames lists the fixed rule identifiers in evaluation order.
func WestgardRuleNames() []string {
	return []string{Rule12S, Rule13S, Rule22S, RuleR4S, Rule41S, Rule10X}
}

// BreachReport maps each Westgard rule name to the ascending indices of the
// input sequence at which the rule fired. Every rule name is present, with an
// empty slice when the rule never fired. Never mutated after construction.
type BreachReport map[string][]int

// HasBreach reports whether any rule fired.
func (r BreachReport) HasBreach() bool {
	for _, indices := range r {
		if len(indices) > 0 {
			return true
		}
	}
	return false
}
