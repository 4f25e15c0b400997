package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Fail-on tokens accepted by ShouldFail.
const (
	FailDead         = "dead"
	FailInvalid      = "invalid"
	FailMissingLabel = "missing-label"
	FailConflict     = "conflict"
)

// LintReport captures rule findings for CI enforcement.
type LintReport struct {
	Total    int
	Findings Findings
}

// RunLint reuses the regular audit analysis but returns a lean report.
func (s *Service) RunLint(ctx context.Context, opts Options) (LintReport, error) {
	rep, err := s.Run(ctx, opts)
	if err != nil {
		return LintReport{}, err
	}
	return LintReport{Total: rep.Total, Findings: rep.Findings}, nil
}

// Empty reports whether there are no findings at all.
func (lr LintReport) Empty() bool {
	f := lr.Findings
	return len(f.DeadRules) == 0 && len(f.InvalidRules) == 0 &&
		len(f.MissingLabels) == 0 && len(f.Conflicts) == 0
}

// ShouldFail reports whether any of the requested conditions are present.
func (lr LintReport) ShouldFail(failOn []string) bool {
	flags := map[string]bool{
		FailDead:         len(lr.Findings.DeadRules) > 0,
		FailInvalid:      len(lr.Findings.InvalidRules) > 0,
		FailMissingLabel: len(lr.Findings.MissingLabels) > 0,
		FailConflict:     len(lr.Findings.Conflicts) > 0,
	}
	for _, cond := range failOn {
		cond = strings.TrimSpace(strings.ToLower(cond))
		if cond == "" {
			continue
		}
		if flags[cond] {
			return true
		}
	}
	return false
}

// HumanSummary renders a concise CLI summary.
func (lr LintReport) HumanSummary() string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "mailrules lint: %d messages checked\n", lr.Total)
	if lr.Empty() {
		builder.WriteString("no findings\n")
		return builder.String()
	}
	writeRuleFindings(builder, "dead rules", lr.Findings.DeadRules)
	writeRuleFindings(builder, "invalid rules", lr.Findings.InvalidRules)
	if len(lr.Findings.MissingLabels) > 0 {
		builder.WriteString("missing labels:\n")
		labels := append([]string(nil), lr.Findings.MissingLabels...)
		sort.Strings(labels)
		for _, lbl := range labels {
			fmt.Fprintf(builder, "  %s\n", lbl)
		}
	}
	if len(lr.Findings.Conflicts) > 0 {
		builder.WriteString("conflicts:\n")
		for _, cf := range lr.Findings.Conflicts {
			fmt.Fprintf(builder, "  %s: %s\n", strings.Join(cf.Rules, ", "), cf.Description)
		}
	}
	return builder.String()
}

func writeRuleFindings(builder *strings.Builder, title string, findings []RuleFinding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(builder, "%s:\n", title)
	sorted := append([]RuleFinding(nil), findings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, fr := range sorted {
		fmt.Fprintf(builder, "  #%d %s: %s\n", fr.ID, fr.Name, fr.Reason)
	}
}

// ParseFailOn splits a comma separated list into canonical tokens.
func ParseFailOn(input string) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		switch part {
		case FailDead, FailInvalid, FailMissingLabel, FailConflict:
		default:
			return nil, fmt.Errorf("unknown fail-on condition %q", part)
		}
		out = append(out, part)
	}
	return out, nil
}
