package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joshsymonds/mailrules/internal/rules"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func (a *app) jsonOutput() bool {
	return a.output == outputJSON
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func writeRuleTable(w io.Writer, ruleSet []rules.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tFIELD\tCONTAINS\tACTION\tVALUE")
	for _, r := range ruleSet {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Enabled, r.Criteria.Field, r.Criteria.Value, r.Action, r.Value)
	}
	return tw.Flush()
}

func writeRule(w io.Writer, r rules.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", r.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", r.Name)
	if r.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", r.Description)
	}
	fmt.Fprintf(tw, "Enabled:\t%t\n", r.Enabled)
	fmt.Fprintf(tw, "Criteria:\t%s contains %q\n", r.Criteria.Field, r.Criteria.Value)
	fmt.Fprintf(tw, "Action:\t%s\n", r.Action)
	if r.Value != "" {
		fmt.Fprintf(tw, "Value:\t%s\n", r.Value)
	}
	fmt.Fprintf(tw, "Priority:\t%d\n", r.Priority)
	return tw.Flush()
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid rule id %q", arg)
	}
	return id, nil
}

func joinStrings[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
