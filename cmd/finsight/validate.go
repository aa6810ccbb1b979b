package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"finsight/internal/report"
)

var validateCmd = &cobra.Command{
	Use:   "validate [input.json...]",
	Short: "Check input files without generating reports",
	Long:  `Validates each input file against the required fields and prints its data completeness score. No upstream calls are made.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	failures := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failures++
			continue
		}

		var inv report.InvestmentData
		if err := json.Unmarshal(data, &inv); err != nil {
			fmt.Printf("%s: invalid JSON: %v\n", path, err)
			failures++
			continue
		}

		req := &report.GenerationRequest{Data: inv, Type: report.TypeBasic}
		completeness, err := report.Validate(req)
		if err != nil {
			var vErr *report.ValidationError
			if errors.As(err, &vErr) {
				fmt.Printf("%s: missing %s\n", path, strings.Join(vErr.Missing, ", "))
			} else {
				fmt.Printf("%s: %v\n", path, err)
			}
			failures++
			continue
		}

		fmt.Printf("%s: ok (%.0f%% complete)\n", path, completeness)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failures, len(args))
	}
	return nil
}
