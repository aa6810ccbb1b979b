package report

import (
	"fmt"
	"strings"
	"time"

	"finsight/internal/logging"
)

// Degrade synthesizes a best-effort local report when the upstream model is
// unavailable after exhausting retries. The result is a successful report
// tagged degraded, with zero token usage.
func Degrade(req *GenerationRequest, reason string, completeness float64, started time.Time) *ReportResult {
	logging.Report("serving degraded report for user %s: %s", req.UserID, reason)

	risk := normalizeRisk(req.Data.RiskTolerance)
	summary := riskNarrative(risk)
	analysis := horizonGuidance(req.Data.TimeHorizon)
	recs := recommendations(risk, req.Type)

	sections := []Section{
		{Key: SectionSummary, Text: summary},
		{Key: SectionAnalysis, Text: analysis},
		{Key: SectionRecommendations, Text: strings.Join(recs, "\n")},
	}

	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.Text)
		b.WriteString("\n\n")
	}

	return &ReportResult{
		Title:             fmt.Sprintf("Investment Guidance (%s)", req.Type),
		Summary:           summary,
		FullText:          strings.TrimSpace(b.String()),
		Sections:          sections,
		Degraded:          true,
		DegradationReason: reason,
		Metadata: Metadata{
			ReportType:       req.Type,
			GeneratedAt:      time.Now(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
			DataCompleteness: completeness,
		},
	}
}

func normalizeRisk(risk string) string {
	r := strings.ToLower(strings.TrimSpace(risk))
	switch {
	case strings.Contains(r, "conservative") || strings.Contains(r, "low"):
		return "conservative"
	case strings.Contains(r, "aggressive") || strings.Contains(r, "high"):
		return "aggressive"
	default:
		return "moderate"
	}
}

func riskNarrative(risk string) string {
	switch risk {
	case "conservative":
		return "Based on your conservative risk profile, prioritize capital preservation: " +
			"a portfolio weighted toward high-grade bonds and cash equivalents (roughly 70/30 " +
			"fixed income to equities) limits drawdowns while still capturing modest growth."
	case "aggressive":
		return "Based on your aggressive risk profile, a growth-oriented allocation is appropriate: " +
			"a portfolio weighted heavily toward equities (roughly 85/15 equities to fixed income), " +
			"accepting larger short-term swings in exchange for higher expected long-term returns."
	default:
		return "Based on your moderate risk profile, a balanced allocation is appropriate: " +
			"a classic mix of roughly 60% equities and 40% fixed income balances growth against " +
			"stability and suits most medium-term objectives."
	}
}

// horizonGuidance keys off short/long keywords in the stated time horizon.
func horizonGuidance(horizon string) string {
	h := strings.ToLower(horizon)
	switch {
	case strings.Contains(h, "short") || strings.Contains(h, "1 year") || strings.Contains(h, "2 year"):
		return "With a short time horizon, liquidity matters more than yield: keep funds you will " +
			"need soon in money-market instruments or short-duration bonds, and avoid locking " +
			"capital into volatile assets you may be forced to sell at a loss."
	case strings.Contains(h, "long") || strings.Contains(h, "10") || strings.Contains(h, "retirement"):
		return "With a long time horizon, time in the market outweighs timing the market: broad " +
			"equity index exposure with periodic rebalancing historically compounds well, and " +
			"short-term volatility can largely be ridden out."
	default:
		return "With a medium time horizon, blend growth assets with a stability sleeve: equities " +
			"drive returns while a bond allocation dampens drawdowns as the goal date approaches."
	}
}

func recommendations(risk string, reportType ReportType) []string {
	var recs []string
	switch risk {
	case "conservative":
		recs = []string{
			"- Build an emergency fund covering 6 months of expenses before investing further.",
			"- Favor investment-grade bond funds and treasury ladders for the core allocation.",
			"- Limit any single equity position to a small slice of the portfolio.",
		}
	case "aggressive":
		recs = []string{
			"- Maximize contributions to tax-advantaged accounts before taxable investing.",
			"- Use broad equity index funds as the core, adding satellite growth positions deliberately.",
			"- Rebalance on a fixed schedule so winners do not silently concentrate risk.",
		}
	default:
		recs = []string{
			"- Hold a diversified core of equity and bond index funds near a 60/40 split.",
			"- Automate monthly contributions to smooth out entry prices.",
			"- Review the allocation annually and rebalance when drift exceeds 5%.",
		}
	}

	if reportType == TypeAdvanced {
		recs = append(recs,
			"- Harvest tax losses in taxable accounts to offset realized gains.",
			"- Consider a small allocation to alternatives (REITs, commodities) for diversification.",
		)
	}
	return recs
}
