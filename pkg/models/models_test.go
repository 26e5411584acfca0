package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevision_JSONDateLayout(t *testing.T) {
	rev := Revision{
		Hash:   "0123456789abcdef",
		Date:   time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		Author: "dev@example.com",
	}

	data, err := json.Marshal(rev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash":"0123456789abcdef","date":"2021.03.04 - 05:06:07","author":"dev@example.com"}`, string(data))

	var decoded Revision
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rev.Hash, decoded.Hash)
	assert.True(t, rev.Date.Equal(decoded.Date))
	assert.Equal(t, "0123456", decoded.ShortHash())
}

func TestRevision_UnmarshalInvalidDate(t *testing.T) {
	var rev Revision
	err := json.Unmarshal([]byte(`{"hash":"abc","date":"yesterday","author":"x"}`), &rev)
	assert.Error(t, err)
}

func TestParseProject(t *testing.T) {
	p, err := ParseProject("expressjs/express", LangJavaScript)
	require.NoError(t, err)
	assert.Equal(t, "express", p.Key())
	assert.Equal(t, "https://github.com/expressjs/express.git", p.CloneURL())

	for _, bad := range []string{"express", "/express", "a/b/c", "owner/"} {
		_, err := ParseProject(bad, LangJavaScript)
		assert.Error(t, err, bad)
	}
}

func TestLanguage_HasExtension(t *testing.T) {
	tests := []struct {
		lang Language
		file string
		want bool
	}{
		{LangJavaScript, "src/index.js", true},
		{LangJavaScript, "src/App.JSX", true},
		{LangJavaScript, "lib/mod.mjs", true},
		{LangJavaScript, "src/index.ts", false},
		{LangTypeScript, "src/index.ts", true},
		{LangTypeScript, "src/App.tsx", true},
		{LangTypeScript, "src/index.js", false},
		{LangTypeScript, "README", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.lang.HasExtension(tt.file), "%s %s", tt.lang, tt.file)
	}
}

func TestRuleLanguage(t *testing.T) {
	lang, ok := RuleLanguage("javascript:S1541")
	assert.True(t, ok)
	assert.Equal(t, LangJavaScript, lang)

	lang, ok = RuleLanguage("ts:S107")
	assert.True(t, ok)
	assert.Equal(t, LangTypeScript, lang)

	_, ok = RuleLanguage("S107")
	assert.False(t, ok)
	_, ok = RuleLanguage("python:S107")
	assert.False(t, ok)

	assert.Equal(t, "S1541", RuleCode("typescript:S1541"))
	assert.Equal(t, "S1541", RuleCode("S1541"))
}

func TestRawIssue_Path(t *testing.T) {
	tests := map[string]string{
		"express:lib/router/index.js": "lib/router/index.js",
		"express:lib\\router\\x.js":   "lib/router/x.js",
		"lib/plain.js":                "lib/plain.js",
	}
	for component, want := range tests {
		assert.Equal(t, want, RawIssue{Component: component}.Path())
	}
}

func TestSeverity_AtLeast(t *testing.T) {
	assert.True(t, SeverityBlocker.AtLeast(SeverityCritical))
	assert.True(t, SeverityCritical.AtLeast(SeverityCritical))
	assert.False(t, SeverityMajor.AtLeast(SeverityCritical))
	assert.Equal(t, SeverityMinor, ParseSeverity(" minor "))
	assert.Equal(t, Severity(""), ParseSeverity("fatal"))
}

func TestDeltaRecord_Complete(t *testing.T) {
	d := DeltaRecord{Steady: 1, Increased: 1}
	assert.Equal(t, 2, d.Transitions())
	assert.True(t, d.Complete(3))
	assert.False(t, d.Complete(4))
	assert.False(t, DeltaRecord{}.Complete(1))
}

func TestRuleCatalogue(t *testing.T) {
	assert.Len(t, CuratedRuleCodes(), 7)
	assert.Len(t, CommonRuleCodes(), len(Rules))
	assert.Equal(t, "Complex Code", RuleLabel("S1541"))
	assert.Equal(t, "S9999", RuleShortLabel("S9999"))

	codes := []string{"S9999", "S1541", "S103", "S0001"}
	SortRules(codes)
	assert.Equal(t, []string{"S103", "S1541", "S0001", "S9999"}, codes)
}

func TestSmellRow_Total(t *testing.T) {
	row := SmellRow{Counts: map[string]int{"S103": 2, "S1541": 3}}
	assert.Equal(t, 5, row.Total())
	assert.Equal(t, 0, row.Count("S107"))
}
