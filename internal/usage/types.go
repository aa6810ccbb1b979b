package usage

import "time"

// Data is the root structure stored in persistence.
type Data struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// Event is a single report-generation accounting record. Recording is
// fire-and-forget; failures here never affect the report itself.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	ReportType   string    `json:"report_type"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	Degraded     bool      `json:"degraded,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	Total        TokenCounts            `json:"total"`
	ByProvider   map[string]TokenCounts `json:"by_provider"`
	ByModel      map[string]TokenCounts `json:"by_model"`
	ByReportType map[string]TokenCounts `json:"by_report_type"`
	ByOutcome    map[string]TokenCounts `json:"by_outcome"` // success, degraded, failed
	ByUser       map[string]TokenCounts `json:"by_user"`
}

// TokenCounts holds token sums, a request counter, and a running cost estimate.
type TokenCounts struct {
	Input    int64   `json:"input"`
	Output   int64   `json:"output"`
	Total    int64   `json:"total"`
	Requests int64   `json:"requests"`
	CostUSD  float64 `json:"cost_est_usd,omitempty"`
}

func (tc *TokenCounts) Add(input, output int, cost float64) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
	tc.Requests++
	tc.CostUSD += cost
}

// modelRates maps model name prefixes to USD per million input/output tokens.
// Unknown models fall back to the default row.
var modelRates = []struct {
	prefix string
	input  float64
	output float64
}{
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.00},
	{"gemini-2.5-pro", 1.25, 10.00},
	{"gemini-2.5-flash", 0.30, 2.50},
}

const (
	defaultInputRate  = 1.00
	defaultOutputRate = 4.00
)

// EstimateCost returns the USD estimate for one event's token counts.
func EstimateCost(model string, input, output int) float64 {
	in, out := defaultInputRate, defaultOutputRate
	for _, r := range modelRates {
		if len(model) >= len(r.prefix) && model[:len(r.prefix)] == r.prefix {
			in, out = r.input, r.output
			break
		}
	}
	return float64(input)/1e6*in + float64(output)/1e6*out
}

// Outcome buckets an event for the by-outcome breakdown.
func (e Event) Outcome() string {
	switch {
	case e.Degraded:
		return "degraded"
	case e.Success:
		return "success"
	default:
		return "failed"
	}
}
