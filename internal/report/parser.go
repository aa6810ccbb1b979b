package report

import "strings"

// sectionKeywords maps each section key to the heading synonyms that mark it.
// A line is a header when its uppercased form contains any synonym. Order
// within each list matters only for readability; matching checks all keys.
var sectionKeywords = []struct {
	key      string
	synonyms []string
}{
	{SectionSummary, []string{"EXECUTIVE SUMMARY", "PORTFOLIO SUMMARY", "SUMMARY"}},
	{SectionAnalysis, []string{"PORTFOLIO ANALYSIS", "DETAILED ANALYSIS", "ANALYSIS"}},
	{SectionRiskAssessment, []string{"RISK ASSESSMENT", "RISK ANALYSIS", "RISK PROFILE"}},
	{SectionRecommendations, []string{"RECOMMENDATIONS", "RECOMMENDED ACTIONS", "SUGGESTIONS"}},
	{SectionImplementation, []string{"IMPLEMENTATION", "ACTION PLAN", "NEXT STEPS"}},
	{SectionMonitoring, []string{"MONITORING", "REVIEW SCHEDULE", "ONGOING REVIEW"}},
}

// ParseSections splits raw completion text into labeled sections by heading
// keywords. Content lines accumulate under the most recently seen header.
// Text with no recognizable header at all becomes the summary section.
func ParseSections(raw string) []Section {
	lines := strings.Split(raw, "\n")

	var sections []Section
	current := ""
	var buf []string

	flush := func() {
		if current == "" {
			return
		}
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if text == "" {
			return
		}
		for i := range sections {
			if sections[i].Key == current {
				sections[i].Text = strings.TrimSpace(sections[i].Text + "\n" + text)
				return
			}
		}
		sections = append(sections, Section{Key: current, Text: text})
	}

	for _, line := range lines {
		if key, ok := matchHeader(line); ok {
			flush()
			current = key
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()

	if len(sections) == 0 {
		if text := strings.TrimSpace(raw); text != "" {
			sections = append(sections, Section{Key: SectionSummary, Text: text})
		}
	}
	return sections
}

// matchHeader picks the longest matching synonym so that compound headings
// like "RISK ANALYSIS" land on the risk section rather than the bare
// "ANALYSIS" keyword.
func matchHeader(line string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(line))
	if upper == "" {
		return "", false
	}
	bestKey, bestLen := "", 0
	for _, sk := range sectionKeywords {
		for _, syn := range sk.synonyms {
			if len(syn) > bestLen && strings.Contains(upper, syn) {
				bestKey, bestLen = sk.key, len(syn)
			}
		}
	}
	return bestKey, bestLen > 0
}
