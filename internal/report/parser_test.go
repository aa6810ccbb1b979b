package report

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSections_TwoHeaders(t *testing.T) {
	raw := `EXECUTIVE SUMMARY
Your portfolio is well positioned.
Stay the course.

RECOMMENDATIONS
- Increase bond allocation.
- Rebalance quarterly.`

	got := ParseSections(raw)
	want := []Section{
		{Key: SectionSummary, Text: "Your portfolio is well positioned.\nStay the course."},
		{Key: SectionRecommendations, Text: "- Increase bond allocation.\n- Rebalance quarterly."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSections_NoHeaderFallsBackToSummary(t *testing.T) {
	raw := "  Just a plain paragraph with no headings at all.  "
	got := ParseSections(raw)
	want := []Section{
		{Key: SectionSummary, Text: "Just a plain paragraph with no headings at all."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSections_SynonymsAndMarkdownDecorations(t *testing.T) {
	raw := `## Portfolio Summary
Overview text.

### Risk Analysis
Volatility is moderate.

NEXT STEPS
Open a brokerage account.`

	got := ParseSections(raw)
	want := []Section{
		{Key: SectionSummary, Text: "Overview text."},
		{Key: SectionRiskAssessment, Text: "Volatility is moderate."},
		{Key: SectionImplementation, Text: "Open a brokerage account."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
}

// A compound heading must land on the most specific section.
func TestParseSections_RiskAnalysisBeatsBareAnalysis(t *testing.T) {
	raw := `RISK ANALYSIS
Drawdown risk is elevated.`

	got := ParseSections(raw)
	if len(got) != 1 || got[0].Key != SectionRiskAssessment {
		t.Fatalf("expected riskAssessment section, got %+v", got)
	}
}

func TestParseSections_RepeatedHeaderAccumulates(t *testing.T) {
	raw := `SUMMARY
First part.

ANALYSIS
Middle.

SUMMARY
Second part.`

	got := ParseSections(raw)
	want := []Section{
		{Key: SectionSummary, Text: "First part.\nSecond part."},
		{Key: SectionAnalysis, Text: "Middle."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSections_EmptyInput(t *testing.T) {
	if got := ParseSections("   \n  "); len(got) != 0 {
		t.Fatalf("expected no sections for blank input, got %+v", got)
	}
}
