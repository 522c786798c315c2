package reports

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"assaycore/internal/blob"
	"assaycore/internal/core"
	"assaycore/pkg/domain"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (c *captureAudit) Record(ctx context.Context, entry core.AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) snapshot() []core.AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.AuditEntry(nil), c.entries...)
}

func calibrationInput() ExportInput {
	return ExportInput{
		Kind:        ReportCalibration,
		Title:       "morning run",
		RequestedBy: "analyst",
		Calibration: &CalibrationReport{
			Result: domain.FitResult{
				Model:      domain.Model4PL,
				Parameters: map[string]float64{"a": 0.05, "b": 1.2, "c": 2.0, "d": 1.0},
				RSquared:   0.99,
				Converged:  true,
				Status:     "converged: gradient magnitude below tolerance after 12 iterations",
				FittedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			},
			Curve: []domain.CurvePoint{{X: 0.1, Y: 0.9}, {X: 1, Y: 0.5}, {X: 5, Y: 0.1}},
		},
	}
}

func qcInput() ExportInput {
	return ExportInput{
		Kind:        ReportQC,
		RequestedBy: "analyst",
		QC: &QCReport{
			Results: []domain.ControlResult{
				{Run: 1, Value: 13.5, Mean: 10, SD: 1},
				{Run: 2, Value: 9.8, Mean: 10, SD: 1},
			},
			Breaches: domain.BreachReport{
				domain.Rule13S: {0},
				domain.Rule12S: {0},
			},
		},
	}
}

func waitForStatus(t *testing.T, w *Worker, id string, want ExportStatus) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.GetExport(id)
		if !ok {
			t.Fatalf("export %s disappeared", id)
		}
		if record.Status == want {
			return record
		}
		if record.Status == ExportStatusFailed && want != ExportStatusFailed {
			t.Fatalf("export failed: %s", record.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %s never reached status %s", id, want)
	return ExportRecord{}
}

func TestEnqueueValidation(t *testing.T) {
	w := NewWorker(blob.NewMemory(), nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input ExportInput
	}{
		{"unknown kind", ExportInput{Kind: "pdf"}},
		{"missing calibration payload", ExportInput{Kind: ReportCalibration}},
		{"missing qc payload", ExportInput{Kind: ReportQC}},
		{"unsupported format", func() ExportInput {
			in := calibrationInput()
			in.Formats = []ReportFormat{"xlsx"}
			return in
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := w.Enqueue(ctx, tc.input); err == nil {
				t.Fatal("expected enqueue error")
			}
		})
	}
}

func TestEnqueueDefaultsAndDeduplicatesFormats(t *testing.T) {
	w := NewWorker(blob.NewMemory(), nil)
	record, err := w.Enqueue(context.Background(), calibrationInput())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(record.Formats) != 2 || record.Formats[0] != FormatJSON || record.Formats[1] != FormatCSV {
		t.Fatalf("expected default formats json+csv, got %v", record.Formats)
	}
	if record.Status != ExportStatusQueued || record.ID == "" {
		t.Fatalf("unexpected record %+v", record)
	}

	in := calibrationInput()
	in.Formats = []ReportFormat{FormatJSON, FormatJSON}
	record, err = w.Enqueue(context.Background(), in)
	if err != nil {
		t.Fatalf("enqueue with duplicates: %v", err)
	}
	if len(record.Formats) != 1 || record.Formats[0] != FormatJSON {
		t.Fatalf("duplicates not collapsed: %v", record.Formats)
	}
}

func TestCalibrationExportProducesArtifacts(t *testing.T) {
	store := blob.NewMemory()
	audit := &captureAudit{}
	w := NewWorker(store, audit)
	w.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	}()

	record, err := w.Enqueue(context.Background(), calibrationInput())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForStatus(t, w, record.ID, ExportStatusSucceeded)
	if len(done.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %+v", done.Artifacts)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed export missing completion time")
	}

	byFormat := make(map[ReportFormat]Artifact)
	for _, artifact := range done.Artifacts {
		byFormat[artifact.Format] = artifact
	}

	jsonArtifact, ok := byFormat[FormatJSON]
	if !ok {
		t.Fatal("missing json artifact")
	}
	if jsonArtifact.ContentType != "application/json" {
		t.Fatalf("unexpected content type %s", jsonArtifact.ContentType)
	}
	_, rc, err := store.Get(context.Background(), jsonArtifact.Key)
	if err != nil {
		t.Fatalf("stored json artifact missing: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	rc.Close()
	var decoded CalibrationReport
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("json artifact not decodable: %v", err)
	}
	if decoded.Result.RSquared != 0.99 || len(decoded.Curve) != 3 {
		t.Fatalf("json artifact lost data: %+v", decoded)
	}

	csvArtifact, ok := byFormat[FormatCSV]
	if !ok {
		t.Fatal("missing csv artifact")
	}
	_, rc, err = store.Get(context.Background(), csvArtifact.Key)
	if err != nil {
		t.Fatalf("stored csv artifact missing: %v", err)
	}
	payload, _ = io.ReadAll(rc)
	rc.Close()
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %q", payload)
	}
	if !strings.Contains(lines[0], "concentration") || !strings.Contains(lines[0], "response") {
		t.Fatalf("unexpected csv header %q", lines[0])
	}

	statuses := make(map[ExportStatus]bool)
	for _, entry := range audit.snapshot() {
		if entry.Operation != "report_export" {
			t.Fatalf("unexpected audit operation %q", entry.Operation)
		}
		if status, ok := entry.Detail["export_status"].(string); ok {
			statuses[ExportStatus(status)] = true
		}
	}
	if !statuses[ExportStatusQueued] || !statuses[ExportStatusSucceeded] {
		t.Fatalf("audit trail missing lifecycle entries: %v", statuses)
	}
}

func TestQCExportRendersControlRows(t *testing.T) {
	store := blob.NewMemory()
	w := NewWorker(store, nil)
	w.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	}()

	in := qcInput()
	in.Formats = []ReportFormat{FormatCSV}
	record, err := w.Enqueue(context.Background(), in)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForStatus(t, w, record.ID, ExportStatusSucceeded)
	if len(done.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %+v", done.Artifacts)
	}
	_, rc, err := store.Get(context.Background(), done.Artifacts[0].Key)
	if err != nil {
		t.Fatalf("stored artifact missing: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	rc.Close()
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %q", payload)
	}
	// Rules joined in the fixed evaluation order, not map order.
	if !strings.Contains(lines[1], "1_2s;1_3s") {
		t.Fatalf("breached rules not in rule order on first row: %q", lines[1])
	}
	if strings.Contains(lines[2], "1_2s") {
		t.Fatalf("clean row should carry no rules: %q", lines[2])
	}
}

func TestExportFailureIsRecorded(t *testing.T) {
	store := blob.NewMemory()
	w := NewWorker(store, nil)

	in := calibrationInput()
	in.Formats = []ReportFormat{FormatJSON}
	record, err := w.Enqueue(context.Background(), in)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Occupy the destination key before the worker runs so the create-only
	// Put rejects the export.
	key := "reports/" + record.ID + "/calibration.json"
	if _, err := store.Put(context.Background(), key, strings.NewReader("taken"), blob.PutOptions{}); err != nil {
		t.Fatalf("seed conflicting blob: %v", err)
	}
	w.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	}()
	done := waitForStatus(t, w, record.ID, ExportStatusFailed)
	if done.Error == "" {
		t.Fatal("failed export should carry an error message")
	}
}

func TestGetExportUnknownID(t *testing.T) {
	w := NewWorker(blob.NewMemory(), nil)
	if _, ok := w.GetExport("nope"); ok {
		t.Fatal("unknown id should not resolve")
	}
}
