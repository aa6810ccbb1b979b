package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"finsight/internal/logging"
)

// Tracker aggregates usage events and persists them to disk with a debounced
// auto-save, so a burst of reports costs one write.
type Tracker struct {
	mu        sync.Mutex
	data      Data
	filePath  string
	dirty     bool
	saveDelay time.Duration
}

// NewTracker creates a tracker persisting under <workspace>/.finsight/usage.json.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, ".finsight")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .finsight dir: %w", err)
	}

	t := &Tracker{
		filePath:  filepath.Join(dir, "usage.json"),
		saveDelay: 5 * time.Second,
		data: Data{

			Version: "1.0",
			Aggregate: AggregatedStats{
				ByProvider:   make(map[string]TokenCounts),
				ByModel:      make(map[string]TokenCounts),
				ByReportType: make(map[string]TokenCounts),
				ByOutcome:    make(map[string]TokenCounts),
				ByUser:       make(map[string]TokenCounts),
			},
		},
	}

	if err := t.Load(); err != nil {
		logging.Usage("starting with empty usage data: %v", err)
	}

	return t, nil
}

// Load reads persisted usage data. A missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	if t.data.Aggregate.ByProvider == nil {
		t.data.Aggregate.ByProvider = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByReportType == nil {
		t.data.Aggregate.ByReportType = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByOutcome == nil {
		t.data.Aggregate.ByOutcome = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByUser == nil {
		t.data.Aggregate.ByUser = make(map[string]TokenCounts)
	}

	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Record folds one event into the aggregates and schedules a debounced save.
func (t *Tracker) Record(e Event) {
	cost := EstimateCost(e.Model, e.InputTokens, e.OutputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.Total.Add(e.InputTokens, e.OutputTokens, cost)
	addToMap(t.data.Aggregate.ByProvider, e.Provider, e.InputTokens, e.OutputTokens, cost)
	addToMap(t.data.Aggregate.ByModel, e.Model, e.InputTokens, e.OutputTokens, cost)
	addToMap(t.data.Aggregate.ByReportType, e.ReportType, e.InputTokens, e.OutputTokens, cost)
	addToMap(t.data.Aggregate.ByOutcome, e.Outcome(), e.InputTokens, e.OutputTokens, cost)
	if e.UserID != "" {
		addToMap(t.data.Aggregate.ByUser, e.UserID, e.InputTokens, e.OutputTokens, cost)
	}

	logging.Get(logging.CategoryUsage).StructuredLog("info", "recorded event", map[string]interface{}{
		"model":    e.Model,
		"type":     e.ReportType,
		"outcome":  e.Outcome(),
		"tokens":   e.InputTokens + e.OutputTokens,
		"cost_usd": cost,
	})

	if !t.dirty {
		t.dirty = true
		time.AfterFunc(t.saveDelay, t.flush)
	}
}

// flush clears the dirty flag before writing so events recorded while the
// save is in flight schedule their own save instead of sitting unpersisted.
func (t *Tracker) flush() {
	t.mu.Lock()
	t.dirty = false
	t.mu.Unlock()

	if err := t.Save(); err != nil {
		logging.Usage("auto-save failed: %v", err)
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByReportType = copyTokenCountsMap(stats.ByReportType)
	stats.ByOutcome = copyTokenCountsMap(stats.ByOutcome)
	stats.ByUser = copyTokenCountsMap(stats.ByUser)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int, cost float64) {
	entry := m[key]
	entry.Add(input, output, cost)
	m[key] = entry
}
