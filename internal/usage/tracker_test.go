package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTracker_RecordAggregatesAndPersists(t *testing.T) {
	ws := t.TempDir()
	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	// Avoid background autosave during the test (debounce uses AfterFunc).
	tracker.dirty = true

	tracker.Record(Event{
		Timestamp:    time.Now(),
		UserID:       "u1",
		Provider:     "openai",
		Model:        "gpt-4o",
		ReportType:   "basic",
		InputTokens:  10,
		OutputTokens: 5,
		Success:      true,
	})
	tracker.Record(Event{
		Timestamp:    time.Now(),
		UserID:       "u1",
		Provider:     "openai",
		Model:        "gpt-4o",
		ReportType:   "advanced",
		InputTokens:  2,
		OutputTokens: 3,
		Degraded:     true,
	})

	stats := tracker.Stats()
	if stats.Total.Input != 12 || stats.Total.Output != 8 || stats.Total.Total != 20 {
		t.Fatalf("Total=%+v, want input=12 output=8 total=20", stats.Total)
	}
	if stats.Total.Requests != 2 {
		t.Fatalf("Total.Requests=%d, want 2", stats.Total.Requests)
	}
	if got := stats.ByProvider["openai"]; got.Total != 20 {
		t.Fatalf("ByProvider[openai]=%+v, want total=20", got)
	}
	if got := stats.ByModel["gpt-4o"]; got.Total != 20 {
		t.Fatalf("ByModel[gpt-4o]=%+v, want total=20", got)
	}
	if got := stats.ByReportType["basic"]; got.Total != 15 {
		t.Fatalf("ByReportType[basic]=%+v, want total=15", got)
	}
	if got := stats.ByOutcome["success"]; got.Requests != 1 {
		t.Fatalf("ByOutcome[success]=%+v, want 1 request", got)
	}
	if got := stats.ByOutcome["degraded"]; got.Requests != 1 {
		t.Fatalf("ByOutcome[degraded]=%+v, want 1 request", got)
	}
	if stats.Total.CostUSD <= 0 {
		t.Fatalf("expected a positive cost estimate, got %f", stats.Total.CostUSD)
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(ws, ".finsight", "usage.json"))
	if err != nil {
		t.Fatalf("read usage.json: %v", err)
	}
	var persisted Data
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal usage.json: %v", err)
	}
	if persisted.Aggregate.Total.Total != 20 {
		t.Fatalf("persisted total=%d, want 20", persisted.Aggregate.Total.Total)
	}
}

func TestTracker_FlushClearsDirtyBeforeSaving(t *testing.T) {
	ws := t.TempDir()
	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	// Keep the real debounce timer from firing during the test.
	tracker.saveDelay = time.Hour

	tracker.Record(Event{Model: "gpt-4o", ReportType: "basic", InputTokens: 10, OutputTokens: 5, Success: true})
	tracker.flush()

	// An event arriving once the flush has started must re-arm the debounce,
	// otherwise it sits unpersisted until some later event.
	tracker.Record(Event{Model: "gpt-4o", ReportType: "basic", InputTokens: 1, OutputTokens: 1, Success: true})

	tracker.mu.Lock()
	dirty := tracker.dirty
	tracker.mu.Unlock()
	if !dirty {
		t.Fatal("expected a new save to be scheduled for the event recorded after flush")
	}

	// The flush itself persisted the first event.
	data, err := os.ReadFile(filepath.Join(ws, ".finsight", "usage.json"))
	if err != nil {
		t.Fatalf("read usage.json: %v", err)
	}
	var persisted Data
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal usage.json: %v", err)
	}
	if persisted.Aggregate.Total.Requests != 1 {
		t.Fatalf("persisted requests=%d, want 1", persisted.Aggregate.Total.Requests)
	}
}

func TestEstimateCost_KnownAndUnknownModels(t *testing.T) {
	// gpt-4o-mini must match before the gpt-4o prefix.
	mini := EstimateCost("gpt-4o-mini", 1_000_000, 0)
	if mini != 0.15 {
		t.Fatalf("gpt-4o-mini input cost=%f, want 0.15", mini)
	}
	full := EstimateCost("gpt-4o", 1_000_000, 0)
	if full != 2.50 {
		t.Fatalf("gpt-4o input cost=%f, want 2.50", full)
	}
	unknown := EstimateCost("mystery-model", 0, 1_000_000)
	if unknown != defaultOutputRate {
		t.Fatalf("unknown model output cost=%f, want %f", unknown, defaultOutputRate)
	}
}

func TestEvent_Outcome(t *testing.T) {
	if got := (Event{Success: true}).Outcome(); got != "success" {
		t.Fatalf("got %s", got)
	}
	if got := (Event{Degraded: true}).Outcome(); got != "degraded" {
		t.Fatalf("got %s", got)
	}
	if got := (Event{}).Outcome(); got != "failed" {
		t.Fatalf("got %s", got)
	}
}
