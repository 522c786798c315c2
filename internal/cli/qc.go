package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"assaycore/pkg/domain"
)

var (
	qcInput string
	qcChart bool
)

var qcCmd = &cobra.Command{
	Use:   "qc",
	Short: "Evaluate control runs against the Westgard rules",
	Long: `QC reads an ordered control sequence from a JSON file of
{"run": ..., "value": ..., "mean": ..., "sd": ...} records and reports which
Westgard rules fired at which indices.

Examples:
  assayctl qc --input controls.json
  assayctl qc --input controls.json --chart`,
	RunE: runQC,
}

func init() {
	qcCmd.Flags().StringVar(&qcInput, "input", "", "JSON file with control results (required)")
	qcCmd.Flags().BoolVar(&qcChart, "chart", false, "include Levey-Jennings chart points")
	_ = qcCmd.MarkFlagRequired("input")
}

func runQC(cmd *cobra.Command, args []string) error {
	results, err := readControlResults(qcInput)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	ctx := context.Background()
	report, err := svc.CheckWestgard(ctx, results)
	if err != nil {
		return err
	}
	output := struct {
		Breaches  domain.BreachReport         `json:"breaches"`
		InControl bool                        `json:"in_control"`
		Chart     []domain.LeveyJenningsPoint `json:"chart,omitempty"`
	}{Breaches: report, InControl: !report.HasBreach()}
	if qcChart {
		output.Chart, err = svc.LeveyJennings(ctx, results)
		if err != nil {
			return err
		}
	}
	return printJSON(output)
}

func readControlResults(path string) ([]domain.ControlResult, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var results []domain.ControlResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return results, nil
}
