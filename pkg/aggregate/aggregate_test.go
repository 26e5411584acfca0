package aggregate

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/smelltrend/pkg/hosting"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/smelltable"
)

func row(project, rev, file string, counts map[string]int) models.SmellRow {
	if counts == nil {
		counts = map[string]int{}
	}
	return models.SmellRow{Project: project, Revision: rev, File: file, Counts: counts}
}

// dataset has two JS projects (a, b), one TS project (t) and a JS project
// (empty) with no rows at all.
func dataset() *Dataset {
	table := smelltable.NewTable([]string{"S103", "S107", "S1541"}, []models.SmellRow{
		row("a", "r1", "x.js", map[string]int{"S103": 2, "S1541": 1}),
		row("a", "r1", "y.js", map[string]int{"S103": 1}),
		row("a", "r2", "x.js", nil),
		row("b", "r1", "z.js", map[string]int{"S107": 1, "S103": 1}),
		row("t", "r1", "w.ts", map[string]int{"S1541": 5}),
	})
	return &Dataset{
		Projects: []models.Project{
			{Name: "a", Language: models.LangJavaScript},
			{Name: "b", Language: models.LangJavaScript},
			{Name: "empty", Language: models.LangJavaScript},
			{Name: "t", Language: models.LangTypeScript},
		},
		Table: table,
		FileDeltas: []models.DeltaRecord{
			{Project: "a", File: "x.js", Steady: 1, Increased: 1},
			{Project: "a", File: "y.js", Decreased: 2},
			{Project: "b", File: "z.js", Steady: 1}, // incomplete
			{Project: "t", File: "w.ts", Increased: 2},
		},
		AppDeltas: []models.DeltaRecord{
			{Project: "a", Steady: 2},
			{Project: "b", Increased: 1, Decreased: 1},
		},
		Window: 3,
	}
}

func TestOverallDistribution(t *testing.T) {
	d := dataset()

	js := d.OverallDistribution(models.LangJavaScript)
	assert.InDelta(t, 4.0/6, js.Get("S103"), 1e-12)
	assert.InDelta(t, 1.0/6, js.Get("S107"), 1e-12)
	assert.InDelta(t, 1.0/6, js.Get("S1541"), 1e-12)
	assert.InDelta(t, 1.0, js.Sum(), 1e-9)

	ts := d.OverallDistribution(models.LangTypeScript)
	assert.InDelta(t, 1.0, ts.Get("S1541"), 1e-12)
}

func TestOverallDistribution_NoOccurrencesIsAllZero(t *testing.T) {
	d := &Dataset{
		Projects: []models.Project{{Name: "a", Language: models.LangJavaScript}},
		Table:    smelltable.NewTable([]string{"S103"}, []models.SmellRow{row("a", "r1", "x.js", nil)}),
	}
	dist := d.OverallDistribution(models.LangJavaScript)
	assert.Equal(t, 0.0, dist.Sum())
	assert.Equal(t, []string{"S103"}, dist.Rules)
}

func TestAppFrequency_DenominatorIsConfiguredProjects(t *testing.T) {
	freq := dataset().AppFrequency(models.LangJavaScript)
	assert.InDelta(t, 2.0/3, freq.Get("S103"), 1e-12)
	assert.InDelta(t, 1.0/3, freq.Get("S107"), 1e-12)
	assert.InDelta(t, 1.0/3, freq.Get("S1541"), 1e-12)
}

func TestFileFrequency_DenominatorIsFileRevisionRows(t *testing.T) {
	freq := dataset().FileFrequency(models.LangJavaScript)
	assert.InDelta(t, 3.0/4, freq.Get("S103"), 1e-12)
	assert.InDelta(t, 1.0/4, freq.Get("S107"), 1e-12)
	assert.Equal(t, 0.0, dataset().FileFrequency("cobol").Get("S103"))
}

func TestCooccurrence(t *testing.T) {
	m, err := dataset().Cooccurrence(models.LangJavaScript, DefaultEpsilon)
	require.NoError(t, err)

	assert.InDelta(t, 1.0/4, m.At("S103", "S1541"), 1e-12)
	assert.InDelta(t, 1.0/4, m.At("S103", "S107"), 1e-12)
	assert.Equal(t, 0.0, m.At("S107", "S1541"))
	assert.Equal(t, 0.0, m.At("S103", "S103"))
	assert.Equal(t, 0.0, m.At("S103", "unknown"))
}

func TestCooccurrence_EpsilonZeroesSmallSupport(t *testing.T) {
	m, err := dataset().Cooccurrence(models.LangJavaScript, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.At("S103", "S1541"))
}

func TestCooccurrence_Symmetric(t *testing.T) {
	for _, lang := range models.Languages {
		m, err := dataset().Cooccurrence(lang, DefaultEpsilon)
		require.NoError(t, err)
		for i := range m.Rules {
			for j := range m.Rules {
				assert.Equal(t, m.Values[i][j], m.Values[j][i])
			}
		}
	}
}

func TestCheckSymmetric(t *testing.T) {
	m := newMatrix([]string{"S103", "S107"})
	m.Values[0][1] = 0.5
	err := m.CheckSymmetric()
	var pre *PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Contains(t, pre.Error(), "S103")
}

func TestPrune(t *testing.T) {
	a := newMatrix([]string{"S103", "S107", "S1541"})
	b := newMatrix([]string{"S103", "S107", "S1541"})
	a.Values[0][2], a.Values[2][0] = 0.1, 0.1
	b.Values[0][2], b.Values[2][0] = 0.2, 0.2

	pruned := Prune(a, b)
	require.Len(t, pruned, 2)
	assert.Equal(t, []string{"S103", "S1541"}, pruned[0].Rules)
	assert.Equal(t, 0.2, pruned[1].At("S1541", "S103"))
	assert.Nil(t, Prune())
}

func TestDeltaFiveNumberSummary(t *testing.T) {
	d := dataset()

	files := d.DeltaFiveNumberSummary(models.LangJavaScript, models.ScaleFile)
	assert.Equal(t, 3, files.Total)
	assert.Equal(t, 2, files.Complete)
	assert.Equal(t, 0.0, files.Steady.Min)
	assert.Equal(t, 1.0, files.Steady.Max)
	assert.Equal(t, 0.5, files.Increased.Mean)
	assert.Equal(t, 2.0, files.Decreased.Max)

	app := d.DeltaFiveNumberSummary(models.LangJavaScript, models.ScaleApp)
	assert.Equal(t, 2, app.Complete)
	assert.Equal(t, 1.0, app.Steady.Mean)

	ts := d.DeltaFiveNumberSummary(models.LangTypeScript, models.ScaleApp)
	assert.Equal(t, 0, ts.Complete)
	assert.Equal(t, 0, ts.Steady.N)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "62k", Compact(62000))
	assert.Equal(t, "1.2k", Compact(1234))
	assert.Equal(t, "950", Compact(950))
	assert.Equal(t, "66.7%", Percent(2.0/3))
	assert.Equal(t, "-", RatioPercent(0.0001))
	assert.Equal(t, "12.5%", RatioPercent(0.125))
}

func TestRepoStatsTable(t *testing.T) {
	created := time.Date(2009, 6, 26, 0, 0, 0, 0, time.UTC)
	all := []*hosting.RepoStats{
		{Project: models.Project{Name: "small", Language: models.LangJavaScript}, CreatedAt: created, Stars: 10, Languages: map[string]int{"JavaScript": 1}},
		{Project: models.Project{Name: "big", Language: models.LangJavaScript}, CreatedAt: created, Stars: 62000, Commits: 5800, Languages: map[string]int{"JavaScript": 3, "TypeScript": 1}},
		{Project: models.Project{Name: "typed", Language: models.LangTypeScript}, Stars: 99999},
	}

	table := RepoStatsTable(models.LangJavaScript, all)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"big", "2009", "62k", "0", "0", "5.8k", "0", "75.0%", "25.0%"}, table.Rows[0])
	assert.Equal(t, "-", table.Rows[1][8])
}

func TestTablesRender(t *testing.T) {
	d := dataset()
	values := map[models.Language]RuleValues{
		models.LangJavaScript: d.OverallDistribution(models.LangJavaScript),
		models.LangTypeScript: d.OverallDistribution(models.LangTypeScript),
	}
	table := RuleTable("Overall smell distribution", models.Languages, values)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"Lengthy Line", "66.7%", "0.0%"}, table.Rows[0])

	var buf bytes.Buffer
	require.NoError(t, table.RenderMarkdown(&buf))
	assert.Contains(t, buf.String(), "| Smell | JS | TS |")

	m, err := d.Cooccurrence(models.LangJavaScript, DefaultEpsilon)
	require.NoError(t, err)
	mt := MatrixTable("Co-occurrence", m)
	assert.Equal(t, []string{"", "LL", "LPL", "CC"}, mt.Headers)

	dt := DeltaTable("File deltas", d.DeltaFiveNumberSummary(models.LangJavaScript, models.ScaleFile))
	assert.Equal(t, "2/3 complete", dt.Footer[0])
}
