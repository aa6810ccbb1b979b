package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"finsight/internal/usage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d6dae0")).Width(22)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show accumulated usage statistics",
	Long:  `Prints token usage, request counts, and estimated cost, broken down by model, report type, and outcome.`,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	tracker, err := usage.NewTracker(workspace)
	if err != nil {
		return err
	}
	stats := tracker.Stats()

	if stats.Total.Requests == 0 {
		fmt.Println(dimStyle.Render("No usage recorded yet."))
		return nil
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Usage Summary"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("Requests", fmt.Sprintf("%d", stats.Total.Requests))
	row("Input tokens", fmt.Sprintf("%d", stats.Total.Input))
	row("Output tokens", fmt.Sprintf("%d", stats.Total.Output))
	row("Estimated cost", fmt.Sprintf("$%.4f", stats.Total.CostUSD))

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("By Model"))
	b.WriteString("\n")
	writeBreakdown(&b, stats.ByModel)

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("By Report Type"))
	b.WriteString("\n")
	writeBreakdown(&b, stats.ByReportType)

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("By Outcome"))
	b.WriteString("\n")
	writeBreakdown(&b, stats.ByOutcome)

	fmt.Println(b.String())
	return nil
}

func writeBreakdown(b *strings.Builder, m map[string]usage.TokenCounts) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		tc := m[k]
		b.WriteString(labelStyle.Render("  " + k))
		b.WriteString(fmt.Sprintf("%d req, %d tokens, $%.4f\n", tc.Requests, tc.Total, tc.CostUSD))
	}
}
