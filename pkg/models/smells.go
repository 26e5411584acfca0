package models

import "sort"

// Rule describes a smell rule shared by the JavaScript and TypeScript analyzers.
type Rule struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	ShortLabel  string `json:"short_label"`
	Description string `json:"description"`
	Curated     bool   `json:"curated"` // member of the curated smell list
}

// Rules is the cross-language rule catalogue. A rule is listed only if it fires
// under equivalent semantics for both languages.
var Rules = []Rule{
	{Code: "S103", Label: "Lengthy Line", ShortLabel: "LL", Description: "Lines should not be too long", Curated: true},
	{Code: "S107", Label: "Long Parameter List", ShortLabel: "LPL", Description: "Functions should not have too many parameters", Curated: true},
	{Code: "S134", Label: "Depth", ShortLabel: "D", Description: "Control flow statements should not be nested too deeply", Curated: true},
	{Code: "S138", Label: "Long Method", ShortLabel: "LM", Description: "Functions should not have too many lines of code", Curated: true},
	{Code: "S1121", Label: "Assignment in Conditional Statement", ShortLabel: "ACS", Description: "Assignments should not be made from within sub-expressions", Curated: true},
	{Code: "S1479", Label: "Complex Switch Case", ShortLabel: "CSC", Description: "'switch' statements should not have too many 'case' clauses", Curated: true},
	{Code: "S1541", Label: "Complex Code", ShortLabel: "CC", Description: "Cyclomatic Complexity of functions should not be too high", Curated: true},

	{Code: "S104", Label: "Lengthy File", ShortLabel: "LF", Description: "Files should not have too many lines of code"},
	{Code: "S109", Label: "Magic Number", ShortLabel: "MN", Description: "Magic numbers should not be used"},
	{Code: "S125", Label: "Retired Code", ShortLabel: "RC", Description: "Sections of code should not be commented out"},
	{Code: "S1067", Label: "Complex Expression", ShortLabel: "CE", Description: "Expressions should not be too complex"},
	{Code: "S1117", Label: "Shadowed Variable", ShortLabel: "SV", Description: "Variables should not be shadowed"},
	{Code: "S1186", Label: "Empty Function", ShortLabel: "EF", Description: "Functions should not be empty"},
	{Code: "S1192", Label: "Duplicated String", ShortLabel: "DS", Description: "String literals should not be duplicated"},
	{Code: "S1440", Label: "Weak Equality", ShortLabel: "WE", Description: "'===' and '!==' should be used instead of '==' and '!='"},
	{Code: "S1763", Label: "Unreachable Code", ShortLabel: "UC", Description: "All code should be reachable"},
	{Code: "S1854", Label: "Useless Assignment", ShortLabel: "UA", Description: "Unused assignments should be removed"},
	{Code: "S2424", Label: "Overwritten Built-Ins", ShortLabel: "OBI", Description: "Built-in objects should not be overridden"},
	{Code: "S2814", Label: "Overwritten Variable/Function", ShortLabel: "OVF", Description: "Variables and functions should not be redeclared"},
	{Code: "S3003", Label: "Ordinal String Comparison", ShortLabel: "OSC", Description: "Comparison operators should not be used with strings"},
	{Code: "S3516", Label: "Invariant Function", ShortLabel: "IF", Description: "Function returns should not be invariant"},
	{Code: "S3696", Label: "Invalid Error", ShortLabel: "IE", Description: "Literals should not be thrown"},
	{Code: "S3699", Label: "Unknown Output", ShortLabel: "UO", Description: "The output of functions that don't return anything should not be used"},
	{Code: "S3801", Label: "Inconsistent Return", ShortLabel: "IR", Description: "Functions should use 'return' consistently"},
	{Code: "S4144", Label: "Duplicated Function", ShortLabel: "DF", Description: "Functions should not have identical implementations"},
}

var rulesByCode = func() map[string]Rule {
	m := make(map[string]Rule, len(Rules))
	for _, r := range Rules {
		m[r.Code] = r
	}
	return m
}()

// LookupRule returns the catalogue entry for a bare rule code.
func LookupRule(code string) (Rule, bool) {
	r, ok := rulesByCode[code]
	return r, ok
}

// RuleLabel returns the rule's label, or the code itself for uncatalogued rules.
func RuleLabel(code string) string {
	if r, ok := rulesByCode[code]; ok {
		return r.Label
	}
	return code
}

// RuleShortLabel returns the rule's short label, or the code itself.
func RuleShortLabel(code string) string {
	if r, ok := rulesByCode[code]; ok {
		return r.ShortLabel
	}
	return code
}

// CuratedRuleCodes returns the codes of the curated smell list.
func CuratedRuleCodes() []string {
	var codes []string
	for _, r := range Rules {
		if r.Curated {
			codes = append(codes, r.Code)
		}
	}
	return codes
}

// CommonRuleCodes returns every code of the cross-language catalogue.
func CommonRuleCodes() []string {
	codes := make([]string, len(Rules))
	for i, r := range Rules {
		codes[i] = r.Code
	}
	return codes
}

// SortRules orders rule codes by catalogue position, uncatalogued codes last in lexical order.
func SortRules(codes []string) {
	pos := make(map[string]int, len(Rules))
	for i, r := range Rules {
		pos[r.Code] = i
	}
	sort.SliceStable(codes, func(i, j int) bool {
		pi, oki := pos[codes[i]]
		pj, okj := pos[codes[j]]
		switch {
		case oki && okj:
			return pi < pj
		case oki:
			return true
		case okj:
			return false
		default:
			return codes[i] < codes[j]
		}
	})
}
