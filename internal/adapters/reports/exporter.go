// Package reports renders calibration and quality-control reports to
// immutable artifacts in a blob store, asynchronously.
package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"assaycore/internal/blob"
	"assaycore/internal/core"
	"assaycore/pkg/domain"
)

// ReportKind selects the report payload shape.
type ReportKind string

const (
	ReportCalibration ReportKind = "calibration"
	ReportQC          ReportKind = "qc"
)

// ReportFormat selects an artifact encoding.
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// CalibrationReport carries a fit outcome plus its sampled curve.
type CalibrationReport struct {
	Result domain.FitResult    `json:"result"`
	Curve  []domain.CurvePoint `json:"curve,omitempty"`
}

// QCReport carries a control sequence with its rule breaches and chart.
type QCReport struct {
	Results  []domain.ControlResult      `json:"results"`
	Breaches domain.BreachReport         `json:"breaches"`
	Chart    []domain.LeveyJenningsPoint `json:"chart,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Kind        ReportKind
	Title       string
	RequestedBy string
	Formats     []ReportFormat
	Calibration *CalibrationReport
	QC          *QCReport
}

// Artifact captures a stored report artifact.
type Artifact struct {
	Key         string       `json:"key"`
	Format      ReportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string         `json:"id"`
	Kind        ReportKind     `json:"kind"`
	Title       string         `json:"title,omitempty"`
	Formats     []ReportFormat `json:"formats"`
	Status      ExportStatus   `json:"status"`
	Error       string         `json:"error,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	RequestedBy string         `json:"requested_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Worker renders report exports asynchronously into a blob store.
type Worker struct {
	store blob.Store
	audit core.AuditRecorder

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	artifact Artifact
	payload  []byte
}

// NewWorker constructs an export worker over the given blob store. The audit
// recorder may be nil.
func NewWorker(store blob.Store, audit core.AuditRecorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// Enqueue schedules a report export and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.store == nil {
		return ExportRecord{}, fmt.Errorf("blob store not configured")
	}
	switch input.Kind {
	case ReportCalibration:
		if input.Calibration == nil {
			return ExportRecord{}, fmt.Errorf("calibration payload required")
		}
	case ReportQC:
		if input.QC == nil {
			return ExportRecord{}, fmt.Errorf("qc payload required")
		}
	default:
		return ExportRecord{}, fmt.Errorf("unknown report kind %q", input.Kind)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ReportFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ReportFormat, 0, len(formats))
	seen := make(map[ReportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return ExportRecord{}, fmt.Errorf("unsupported report format %q", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Kind:        input.Kind,
		Title:       input.Title,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, id, ExportStatusQueued, nil)

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return ExportRecord{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

func (w *Worker) process(task exportTask) {
	w.updateStatus(task.id, ExportStatusRunning, "")

	formats := w.formatsFor(task.id)
	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		rendered, err := materialize(task.id, format, task.input)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		info, err := w.store.Put(w.ctx, rendered.artifact.Key, bytes.NewReader(rendered.payload), blob.PutOptions{
			ContentType: rendered.artifact.ContentType,
			Metadata:    map[string]string{"kind": string(task.input.Kind), "format": string(format)},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		stored := rendered.artifact
		stored.SizeBytes = info.Size
		stored.CreatedAt = info.LastModified
		if url, err := w.store.PresignURL(w.ctx, stored.Key, blob.SignedURLOptions{}); err == nil {
			stored.URL = url
		}
		artifacts = append(artifacts, stored)
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) formatsFor(id string) []ReportFormat {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return append([]ReportFormat(nil), record.Formats...)
	}
	return nil
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, nil)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusSucceeded, map[string]any{"artifacts": len(artifacts)})
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusFailed, map[string]any{"error": reason})
}

func (w *Worker) recordAudit(ctx context.Context, id string, status ExportStatus, detail map[string]any) {
	if w.audit == nil {
		return
	}
	auditStatus := core.AuditStatusSuccess
	if status == ExportStatusFailed {
		auditStatus = core.AuditStatusError
	}
	if detail == nil {
		detail = map[string]any{}
	}
	detail["export_status"] = string(status)
	w.audit.Record(ctx, core.AuditEntry{
		Operation: "report_export",
		Status:    auditStatus,
		EntityID:  id,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
}

func materialize(id string, format ReportFormat, input ExportInput) (renderedArtifact, error) {
	switch format {
	case FormatJSON:
		var payload []byte
		var err error
		if input.Kind == ReportCalibration {
			payload, err = json.Marshal(input.Calibration)
		} else {
			payload, err = json.Marshal(input.QC)
		}
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return renderedArtifact{
			artifact: Artifact{
				Key:         artifactKey(id, input.Kind, "json"),
				Format:      FormatJSON,
				ContentType: "application/json",
				SizeBytes:   int64(len(payload)),
				CreatedAt:   time.Now().UTC(),
			},
			payload: payload,
		}, nil
	case FormatCSV:
		payload, err := renderCSV(input)
		if err != nil {
			return renderedArtifact{}, err
		}
		return renderedArtifact{
			artifact: Artifact{
				Key:         artifactKey(id, input.Kind, "csv"),
				Format:      FormatCSV,
				ContentType: "text/csv",
				SizeBytes:   int64(len(payload)),
				CreatedAt:   time.Now().UTC(),
			},
			payload: payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported report format %q", format)
	}
}

func renderCSV(input ExportInput) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	switch input.Kind {
	case ReportCalibration:
		if err := writer.Write([]string{"concentration", "response"}); err != nil {
			return nil, err
		}
		points := input.Calibration.Curve
		if len(points) == 0 {
			points = input.Calibration.Result.Predictions
		}
		for _, p := range points {
			if err := writer.Write([]string{formatFloat(p.X), formatFloat(p.Y)}); err != nil {
				return nil, err
			}
		}
	case ReportQC:
		if err := writer.Write([]string{"run", "value", "z_score", "breached_rules"}); err != nil {
			return nil, err
		}
		breachedBy := make(map[int][]string)
		for _, rule := range domain.WestgardRuleNames() {
			for _, i := range input.QC.Breaches[rule] {
				breachedBy[i] = append(breachedBy[i], rule)
			}
		}
		for i, r := range input.QC.Results {
			rules := breachedBy[i]
			if err := writer.Write([]string{
				strconv.Itoa(r.Run),
				formatFloat(r.Value),
				formatFloat(r.ZScore()),
				strings.Join(rules, ";"),
			}); err != nil {
				return nil, err
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func artifactKey(id string, kind ReportKind, ext string) string {
	return fmt.Sprintf("reports/%s/%s.%s", id, kind, ext)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]ReportFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
