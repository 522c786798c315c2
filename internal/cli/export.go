package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"assaycore/internal/adapters/reports"
	"assaycore/internal/blob"
	"assaycore/internal/core"
)

var (
	exportKind    string
	exportInput   string
	exportTitle   string
	exportFormats []string
	exportActor   string
	exportTimeout time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a report to artifacts in the blob store",
	Long: `Export renders a calibration or QC report into immutable artifacts.
The report payload is read from a JSON file matching the report kind.

Examples:
  assayctl export --kind calibration --input fit.json
  assayctl export --kind qc --input qc.json --format csv`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportKind, "kind", "", "report kind: calibration or qc (required)")
	exportCmd.Flags().StringVar(&exportInput, "input", "", "JSON file with the report payload (required)")
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "report title")
	exportCmd.Flags().StringSliceVar(&exportFormats, "format", nil, "artifact formats: json, csv (default both)")
	exportCmd.Flags().StringVar(&exportActor, "actor", "", "requesting operator recorded in the audit trail")
	exportCmd.Flags().DurationVar(&exportTimeout, "timeout", 30*time.Second, "wait limit for the export to finish")
	_ = exportCmd.MarkFlagRequired("kind")
	_ = exportCmd.MarkFlagRequired("input")
}

func runExport(cmd *cobra.Command, args []string) error {
	payload, err := os.ReadFile(exportInput)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	input := reports.ExportInput{
		Kind:        reports.ReportKind(exportKind),
		Title:       exportTitle,
		RequestedBy: exportActor,
	}
	switch input.Kind {
	case reports.ReportCalibration:
		var report reports.CalibrationReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return fmt.Errorf("parse calibration payload: %w", err)
		}
		input.Calibration = &report
	case reports.ReportQC:
		var report reports.QCReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return fmt.Errorf("parse qc payload: %w", err)
		}
		input.QC = &report
	default:
		return fmt.Errorf("unknown report kind %q (want calibration or qc)", exportKind)
	}
	for _, format := range exportFormats {
		input.Formats = append(input.Formats, reports.ReportFormat(format))
	}

	ctx := context.Background()
	store, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	persistent, err := core.OpenPersistentStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	worker := reports.NewWorker(store, core.NewStoreAuditRecorder(persistent, exportActor))
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	record, err := worker.Enqueue(ctx, input)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(exportTimeout)
	for {
		snapshot, ok := worker.GetExport(record.ID)
		if !ok {
			return fmt.Errorf("export %s disappeared", record.ID)
		}
		switch snapshot.Status {
		case reports.ExportStatusSucceeded:
			return printJSON(snapshot)
		case reports.ExportStatusFailed:
			return fmt.Errorf("export failed: %s", snapshot.Error)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("export %s still %s after %s", record.ID, snapshot.Status, exportTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
