package report

import (
	"time"

	"finsight/internal/llm"
)

// ReportType selects the depth of analysis. Cheaper types get scheduling
// priority so quick work is not starved behind slow advanced reports.
type ReportType string

const (
	TypeBasic        ReportType = "basic"
	TypeIntermediate ReportType = "intermediate"
	TypeAdvanced     ReportType = "advanced"
)

// Valid reports whether t is one of the known report types.
func (t ReportType) Valid() bool {
	switch t {
	case TypeBasic, TypeIntermediate, TypeAdvanced:
		return true
	}
	return false
}

// InvestmentData is the structured input a report is generated from.
// Goals, RiskTolerance, and TimeHorizon are required; the rest feed the
// completeness score and enrich the prompt when present.
type InvestmentData struct {
	Goals         string `json:"goals"`
	RiskTolerance string `json:"riskTolerance"`
	TimeHorizon   string `json:"timeHorizon"`

	Age                 string `json:"age,omitempty"`
	AnnualIncome        string `json:"annualIncome,omitempty"`
	CurrentSavings      string `json:"currentSavings,omitempty"`
	MonthlyContribution string `json:"monthlyContribution,omitempty"`
	CurrentInvestments  string `json:"currentInvestments,omitempty"`
	Liabilities         string `json:"liabilities,omitempty"`
}

// Preferences carry per-user generation options.
type Preferences struct {
	Premium  bool   `json:"premium"`
	Language string `json:"language,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// GenerationRequest is the immutable input bundle for one report.
type GenerationRequest struct {
	Data        InvestmentData
	Type        ReportType
	Preferences Preferences
	UserID      string
	UserEmail   string
	SubmittedAt time.Time

	// Retry marks a resubmission of previously failed work; it earns a
	// scheduling priority bonus.
	Retry bool
}

// Section keys, in rendering order.
const (
	SectionSummary         = "summary"
	SectionAnalysis        = "analysis"
	SectionRiskAssessment  = "riskAssessment"
	SectionRecommendations = "recommendations"
	SectionImplementation  = "implementation"
	SectionMonitoring      = "monitoring"
)

// Section is one labeled block of report text.
type Section struct {
	Key  string
	Text string
}

// Metadata describes how a report was produced.
type Metadata struct {
	ReportType       ReportType
	GeneratedAt      time.Time
	ProcessingTimeMs int64
	TokenUsage       llm.TokenUsage
	DataCompleteness float64 // 0..100
	Attempts         int
	Model            string
}

// ReportResult is the terminal artifact returned to the caller.
type ReportResult struct {
	Title             string
	Summary           string
	FullText          string
	Sections          []Section
	Degraded          bool
	DegradationReason string
	Metadata          Metadata
}

// SectionText returns the text for a section key, or "" when absent.
func (r *ReportResult) SectionText(key string) string {
	for _, s := range r.Sections {
		if s.Key == key {
			return s.Text
		}
	}
	return ""
}

// Priority bonuses; base priority favors cheaper report types.
const (
	premiumBonus = 2
	retryBonus   = 1
)

var basePriority = map[ReportType]int{
	TypeBasic:        3,
	TypeIntermediate: 2,
	TypeAdvanced:     1,
}

// Priority computes the scheduling priority for a request. Higher values are
// admitted first.
func Priority(req *GenerationRequest) int {
	p := basePriority[req.Type]
	if req.Preferences.Premium {
		p += premiumBonus
	}
	if req.Retry {
		p += retryBonus
	}
	return p
}
