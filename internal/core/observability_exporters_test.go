package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"
)

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "fit_4pl", true, 20*time.Millisecond)
	rec.Observe(ctx, "fit_4pl", true, 30*time.Millisecond)
	rec.Observe(ctx, "fit_4pl", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["fit_4pl"] != 55 {
		t.Fatalf("unexpected duration total %v", snap.DurationsMS)
	}
	if snap.Results["fit_4pl"]["success"] != 2 || snap.Results["fit_4pl"]["error"] != 1 {
		t.Fatalf("unexpected result counters %v", snap.Results)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatal("empty operation should be ignored")
	}
}

func TestExpvarRecorderIsPublished(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "assay_service_metrics_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	v := expvar.Get(rec.Name())
	if v == nil {
		t.Fatal("recorder not published under its name")
	}
	rec.Observe(context.Background(), "check_westgard", true, time.Millisecond)
	var snap ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(v.String()), &snap); err != nil {
		t.Fatalf("published value not json: %v", err)
	}
	if snap.Results["check_westgard"]["success"] != 1 {
		t.Fatalf("published snapshot missing observation: %+v", snap)
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	buf := &bytes.Buffer{}
	tracer := NewJSONTracer(buf)

	_, span := tracer.Start(context.Background(), "fit_5pl")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "start_step")
	span.End(errors.New("no step started"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Operation != "fit_5pl" || entries[0].Status != "success" || entries[0].Error != "" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "no step started" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 emitted lines, got %q", buf.String())
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("emitted line not json: %v", err)
	}
	if decoded.Operation != "start_step" {
		t.Fatalf("unexpected emitted entry %+v", decoded)
	}
}

func TestJSONTracerNilWriter(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "list_workflows")
	span.End(nil)
	if len(tracer.Entries()) != 1 {
		t.Fatal("entries should be retained without a writer")
	}
}
