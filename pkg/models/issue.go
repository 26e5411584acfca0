package models

import (
	"strings"
)

// Issue types requested from the analysis server.
const (
	IssueTypeBug       = "BUG"
	IssueTypeCodeSmell = "CODE_SMELL"
)

// Severity is an analysis-server issue severity.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
	SeverityBlocker  Severity = "BLOCKER"
)

var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityMinor:    2,
	SeverityMajor:    3,
	SeverityCritical: 4,
	SeverityBlocker:  5,
}

// ParseSeverity normalizes a severity name. Unknown names yield the empty severity.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; ok {
		return sev
	}
	return ""
}

// Rank orders severities; unknown severities rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// RawIssue is one issue object exactly as returned by the analysis server.
type RawIssue struct {
	Key       string   `json:"key,omitempty"`
	Rule      string   `json:"rule"`
	Component string   `json:"component"`
	Project   string   `json:"project,omitempty"`
	Type      string   `json:"type"`
	Severity  string   `json:"severity"`
	Status    string   `json:"status,omitempty"`
	Message   string   `json:"message,omitempty"`
	Line      int      `json:"line,omitempty"`
	Tags      []string `json:"tags"`
}

// Path returns the project-relative, forward-slash path of the issue's component.
// Components are reported as "projectKey:relative/path".
func (i RawIssue) Path() string {
	p := i.Component
	if idx := strings.Index(p, ":"); idx != -1 {
		p = p[idx+1:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}

// RawIssueReport is the full issue list of one (project, revision) pair.
type RawIssueReport []RawIssue
