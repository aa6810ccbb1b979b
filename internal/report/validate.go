package report

import (
	"fmt"
	"strings"
)

// ValidationError rejects a request before admission. It carries the missing
// required fields so the caller can fix the input.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Validate checks required fields and scores input completeness over the
// required and optional fields combined. The score is a percentage.
func Validate(req *GenerationRequest) (float64, error) {
	var missing []string
	if strings.TrimSpace(req.Data.Goals) == "" {
		missing = append(missing, "goals")
	}
	if strings.TrimSpace(req.Data.RiskTolerance) == "" {
		missing = append(missing, "riskTolerance")
	}
	if strings.TrimSpace(req.Data.TimeHorizon) == "" {
		missing = append(missing, "timeHorizon")
	}
	if len(missing) > 0 {
		return 0, &ValidationError{Missing: missing}
	}
	if !req.Type.Valid() {
		return 0, &ValidationError{Missing: []string{"reportType"}}
	}

	fields := []string{
		req.Data.Goals,
		req.Data.RiskTolerance,
		req.Data.TimeHorizon,
		req.Data.Age,
		req.Data.AnnualIncome,
		req.Data.CurrentSavings,
		req.Data.MonthlyContribution,
		req.Data.CurrentInvestments,
		req.Data.Liabilities,
	}
	present := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			present++
		}
	}
	return float64(present) / float64(len(fields)) * 100, nil
}
