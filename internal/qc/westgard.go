// Package qc evaluates ordered control-run sequences against the Westgard
// multi-rule scheme and prepares Levey-Jennings chart points.
package qc

import (
	"math"

	"assaycore/pkg/domain"
)

// Rule flags breaching indices over an ordered z-score sequence. Rules are
// independent: a single index may appear in several rule reports.
type Rule interface {
	Name() string
	Evaluate(z []float64) []int
}

// Evaluator runs a fixed, ordered rule set.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator returns the evaluator carrying the six standard Westgard
// rules. The rule set is fixed; there is no per-assay customization.
func NewEvaluator() *Evaluator {
	return &Evaluator{rules: []Rule{
		oneTwoS{},
		oneThreeS{},
		twoTwoS{},
		rFourS{},
		fourOneS{},
		tenX{},
	}}
}

// Evaluate scores the control sequence, returning breach indices per rule.
// Every rule name is present in the report, empty when the rule never fired.
func (e *Evaluator) Evaluate(results []domain.ControlResult) domain.BreachReport {
	z := make([]float64, len(results))
	for i, r := range results {
		z[i] = r.ZScore()
	}
	report := make(domain.BreachReport, len(e.rules))
	for _, rule := range e.rules {
		indices := rule.Evaluate(z)
		if indices == nil {
			indices = []int{}
		}
		report[rule.Name()] = indices
	}
	return report
}

// CheckWestgard evaluates the control sequence against the standard rule set.
func CheckWestgard(results []domain.ControlResult) domain.BreachReport {
	return NewEvaluator().Evaluate(results)
}

// oneTwoS: a single control at or beyond 2 SD from the mean.
type oneTwoS struct{}

func (oneTwoS) Name() string { return domain.Rule12S }

func (oneTwoS) Evaluate(z []float64) []int {
	var breaches []int
	for i, v := range z {
		if math.Abs(v) >= 2 {
			breaches = append(breaches, i)
		}
	}
	return breaches
}

// oneThreeS: a single control at or beyond 3 SD from the mean.
type oneThreeS struct{}

func (oneThreeS) Name() string { return domain.Rule13S }

func (oneThreeS) Evaluate(z []float64) []int {
	var breaches []int
	for i, v := range z {
		if math.Abs(v) >= 3 {
			breaches = append(breaches, i)
		}
	}
	return breaches
}

// twoTwoS: two consecutive controls each at or beyond 2 SD.
type twoTwoS struct{}

func (twoTwoS) Name() string { return domain.Rule22S }

func (twoTwoS) Evaluate(z []float64) []int {
	var breaches []int
	for i := 1; i < len(z); i++ {
		if math.Abs(z[i]) >= 2 && math.Abs(z[i-1]) >= 2 {
			breaches = append(breaches, i)
		}
	}
	return breaches
}

// rFourS: two consecutive controls on opposite sides of the mean separated by
// at least 4 SD. The opposite-side test is the sign of the product; a zero
// z-score never qualifies.
type rFourS struct{}

func (rFourS) Name() string { return domain.RuleR4S }

func (rFourS) Evaluate(z []float64) []int {
	var breaches []int
	for i := 1; i < len(z); i++ {
		if math.Abs(z[i]-z[i-1]) >= 4 && z[i]*z[i-1] < 0 {
			breaches = append(breaches, i)
		}
	}
	return breaches
}

// fourOneS: four consecutive controls each at or beyond 1 SD.
type fourOneS struct{}

func (fourOneS) Name() string { return domain.Rule41S }

func (fourOneS) Evaluate(z []float64) []int {
	var breaches []int
	for i := 3; i < len(z); i++ {
		run := true
		for j := i - 3; j <= i; j++ {
			if math.Abs(z[j]) < 1 {
				run = false
				break
			}
		}
		if run {
			breaches = append(breaches, i)
		}
	}
	return breaches
}

// tenX: ten consecutive controls on the same side of the mean. A zero
// z-score breaks the run in either direction.
type tenX struct{}

func (tenX) Name() string { return domain.Rule10X }

func (tenX) Evaluate(z []float64) []int {
	var breaches []int
	for i := 9; i < len(z); i++ {
		positive := true
		negative := true
		for j := i - 9; j <= i; j++ {
			if z[j] <= 0 {
				positive = false
			}
			if z[j] >= 0 {
				negative = false
			}
		}
		if positive || negative {
			breaches = append(breaches, i)
		}
	}
	return breaches
}
