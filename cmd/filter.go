package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"cohort-copilot/core/filter"

	"github.com/spf13/cobra"
)

var (
	filterDataFlag string
	filterSpecFlag string
	filterOutFlag  string
)

// filterCmd represents the filter command
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Run a JSON filter spec against a local dataset file",
	Long: `Applies a JSON filter spec to a dataset file fetched with the fetch
command and writes the matching rows. Useful for replaying a query offline
without the translation step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readJSONObject(filterDataFlag)
		if err != nil {
			return fmt.Errorf("failed to load dataset: %w", err)
		}
		spec, err := readJSONObject(filterSpecFlag)
		if err != nil {
			return fmt.Errorf("failed to load spec: %w", err)
		}

		if err := filter.Validate(spec, datasetFields(data)); err != nil {
			return fmt.Errorf("invalid spec: %w", err)
		}

		matches, err := filter.Rows(data, spec)
		if err != nil {
			return fmt.Errorf("filtering failed: %w", err)
		}

		out, err := json.MarshalIndent(map[string]any{
			"matched_count": len(matches),
			"matches":       matches,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal matches: %w", err)
		}

		if filterOutFlag == "" {
			fmt.Println(string(out))
			return nil
		}
		if err := os.WriteFile(filterOutFlag, out, 0644); err != nil {
			return fmt.Errorf("failed to save matches: %w", err)
		}
		fmt.Printf("Matched %d rows, saved to %s\n", len(matches), filterOutFlag)
		return nil
	},
}

// datasetFields collects the field names of the first row so the spec can be
// validated against what the dataset actually carries.
func datasetFields(data map[string]any) map[string]struct{} {
	fields := make(map[string]struct{})
	rows, _ := data["rows_as_objects"].([]any)
	if len(rows) == 0 {
		if typed, ok := data["rows_as_objects"].([]map[string]any); ok && len(typed) > 0 {
			for k := range typed[0] {
				fields[k] = struct{}{}
			}
		}
		return fields
	}
	if first, ok := rows[0].(map[string]any); ok {
		for k := range first {
			fields[k] = struct{}{}
		}
	}
	return fields
}

func readJSONObject(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func init() {
	filterCmd.Flags().StringVar(&filterDataFlag, "data", "preview.json", "dataset file produced by the fetch command")
	filterCmd.Flags().StringVar(&filterSpecFlag, "spec", "", "JSON filter spec file")
	filterCmd.Flags().StringVar(&filterOutFlag, "out", "", "output file for matches (stdout when empty)")
	_ = filterCmd.MarkFlagRequired("spec")
	RootCmd.AddCommand(filterCmd)
}
