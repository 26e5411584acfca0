// Package normalize turns raw analysis-server issue reports into canonical
// smell events under a configurable ruleset policy.
package normalize

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Policy modes.
const (
	ModeAll           = config.PolicyAll
	ModeCurated       = config.PolicyCurated
	ModeCrossLanguage = config.PolicyCrossLanguage
	ModeSeverity      = config.PolicySeverity
)

// DefaultSeverityThreshold applies in severity mode when no minimum is set.
const DefaultSeverityThreshold = models.SeverityCritical

// RulesetPolicy decides which language-matched issues count as smells.
type RulesetPolicy struct {
	Mode        string
	Rules       []string // overrides the built-in list in curated and cross-language modes
	MinSeverity models.Severity
}

// PolicyFromConfig builds a policy from the ruleset section of the config.
func PolicyFromConfig(rc config.RulesetConfig) (RulesetPolicy, error) {
	p := RulesetPolicy{Mode: rc.Policy, Rules: rc.Rules}
	if p.Mode == "" {
		p.Mode = ModeCrossLanguage
	}
	switch p.Mode {
	case ModeAll, ModeCurated, ModeCrossLanguage, ModeSeverity:
	default:
		return RulesetPolicy{}, fmt.Errorf("unknown ruleset policy %q", rc.Policy)
	}
	if rc.MinSeverity != "" {
		p.MinSeverity = models.ParseSeverity(rc.MinSeverity)
		if p.MinSeverity == "" {
			return RulesetPolicy{}, fmt.Errorf("unknown severity %q", rc.MinSeverity)
		}
	}
	return p, nil
}

// RuleSet returns the allowed rule codes, or nil when every rule is allowed.
func (p RulesetPolicy) RuleSet() map[string]struct{} {
	var codes []string
	switch p.Mode {
	case ModeCurated:
		codes = models.CuratedRuleCodes()
	case ModeCrossLanguage:
		codes = models.CommonRuleCodes()
	default:
		return nil
	}
	if len(p.Rules) > 0 {
		codes = p.Rules
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[models.RuleCode(c)] = struct{}{}
	}
	return set
}

// threshold returns the effective minimum severity, empty for none.
func (p RulesetPolicy) threshold() models.Severity {
	if p.MinSeverity != "" {
		return p.MinSeverity
	}
	if p.Mode == ModeSeverity {
		return DefaultSeverityThreshold
	}
	return ""
}

// Reason names why an issue was dropped.
type Reason string

const (
	ReasonTest     Reason = "test"
	ReasonLanguage Reason = "language"
	ReasonRuleset  Reason = "ruleset"
	ReasonSeverity Reason = "severity"
)

// Dropped counts discarded issues per reason.
type Dropped map[Reason]int

// Total returns the number of dropped issues.
func (d Dropped) Total() int {
	n := 0
	for _, c := range d {
		n += c
	}
	return n
}

// Add merges other into d.
func (d Dropped) Add(other Dropped) {
	for r, c := range other {
		d[r] += c
	}
}

// Normalizer applies one policy identically to every report.
type Normalizer struct {
	policy    RulesetPolicy
	rules     map[string]struct{}
	threshold models.Severity
}

// New creates a normalizer for policy.
func New(policy RulesetPolicy) *Normalizer {
	return &Normalizer{
		policy:    policy,
		rules:     policy.RuleSet(),
		threshold: policy.threshold(),
	}
}

// Policy returns the normalizer's policy.
func (n *Normalizer) Policy() RulesetPolicy {
	return n.policy
}

// Normalize converts one revision's report into canonical events. Filters run
// in order: test paths, language, then the ruleset policy.
func (n *Normalizer) Normalize(project models.Project, revision string, report models.RawIssueReport) ([]models.CanonicalEvent, Dropped) {
	dropped := Dropped{}
	events := make([]models.CanonicalEvent, 0, len(report))

	for _, issue := range report {
		path := issue.Path()
		if IsTestPath(path) {
			dropped[ReasonTest]++
			continue
		}

		lang, ok := models.RuleLanguage(issue.Rule)
		if !ok || lang != project.Language || !project.Language.HasExtension(path) {
			dropped[ReasonLanguage]++
			continue
		}

		code := models.RuleCode(issue.Rule)
		if n.rules != nil {
			if _, ok := n.rules[code]; !ok {
				dropped[ReasonRuleset]++
				continue
			}
		}

		severity := models.ParseSeverity(issue.Severity)
		if n.threshold != "" && !severity.AtLeast(n.threshold) {
			dropped[ReasonSeverity]++
			continue
		}

		tags := issue.Tags
		if tags == nil {
			tags = []string{}
		}
		events = append(events, models.CanonicalEvent{
			Project:  project.Name,
			Revision: revision,
			File:     path,
			Rule:     code,
			Type:     issue.Type,
			Severity: severity,
			Tags:     tags,
		})
	}
	return events, dropped
}

// IsTestPath is the coarse test-file heuristic: any path containing "test".
func IsTestPath(path string) bool {
	return strings.Contains(path, "test")
}

//go:embed report.schema.json
var reportSchemaJSON []byte

const reportSchemaURL = "report.schema.json"

var reportSchema = func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(reportSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("report schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(reportSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("report schema: %v", err))
	}
	return c.MustCompile(reportSchemaURL)
}()

// LoadReport reads and validates a persisted raw report.
func LoadReport(path string) (models.RawIssueReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseReport(path, data)
}

// ParseReport validates data against the report schema and decodes it. name
// identifies the report in errors.
func ParseReport(name string, data []byte) (models.RawIssueReport, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("malformed report %s: %w", name, err)
	}
	if err := reportSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", name, err)
	}
	var report models.RawIssueReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", name, err)
	}
	return report, nil
}
