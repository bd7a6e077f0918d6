// Package validator performs static checks on frozen fsm tables: states no
// machine can reach, candidates that can never be selected and the like.
package validator

import (
	"fmt"
	"strings"

	"facette.io/natsort"
	"github.com/amp-labs/amp-fsm/fsm"
)

// Severity defines the severity level of a finding.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}

	return "warning"
}

// Finding is one issue reported by a Rule.
type Finding struct {
	Code     string // Finding code like "UNREACHABLE_STATE"
	Severity Severity
	State    string // State name, empty for table-wide findings
	Input    string // Input name when the finding is about a transition
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Severity, f.Code, f.Message)
}

// Report contains the results of validating a table.
type Report struct {
	Valid    bool
	Errors   []Finding
	Warnings []Finding
}

// Validate runs the default rules. starts are the states machines will be
// created in; without them reachability is not checked.
func Validate(table *fsm.Table, starts ...fsm.State) Report {
	return ValidateWithRules(table, DefaultRules(), starts...)
}

// ValidateWithRules runs the given rules. Findings are ordered naturally by
// state, input and code, so reports are stable across runs.
func ValidateWithRules(table *fsm.Table, rules []Rule, starts ...fsm.State) Report {
	var findings []Finding

	for _, rule := range rules {
		findings = append(findings, rule.Check(table, starts)...)
	}

	report := Report{Valid: true}

	for _, finding := range sortFindings(findings) {
		switch finding.Severity {
		case SeverityError:
			report.Errors = append(report.Errors, finding)
		case SeverityWarning:
			report.Warnings = append(report.Warnings, finding)
		}
	}

	report.Valid = len(report.Errors) == 0

	return report
}

func sortFindings(findings []Finding) []Finding {
	keys := make([]string, len(findings))
	byKey := make(map[string]Finding, len(findings))

	for i, finding := range findings {
		key := strings.Join([]string{finding.State, finding.Input, finding.Code, fmt.Sprintf("%06d", i)}, "\x00")
		keys[i] = key
		byKey[key] = finding
	}

	natsort.Sort(keys)

	sorted := make([]Finding, len(keys))
	for i, key := range keys {
		sorted[i] = byKey[key]
	}

	return sorted
}

// FormatReport renders a report for humans.
func FormatReport(report Report) string {
	var sb strings.Builder

	if report.Valid && len(report.Warnings) == 0 {
		sb.WriteString("table is valid\n")

		return sb.String()
	}

	for _, finding := range report.Errors {
		sb.WriteString(finding.String())
		sb.WriteString("\n")
	}

	for _, finding := range report.Warnings {
		sb.WriteString(finding.String())
		sb.WriteString("\n")
	}

	return sb.String()
}
