package smelltable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/store"
)

func ev(project, rev, file, rule string) models.CanonicalEvent {
	return models.CanonicalEvent{Project: project, Revision: rev, File: file, Rule: rule, Tags: []string{}}
}

func key(project, rev, file string) models.FileKey {
	return models.FileKey{Project: project, Revision: rev, File: file}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	layout := store.New(dir)
	require.NoError(t, layout.EnsureDirs())

	a := models.Project{Name: "a", Language: models.LangJavaScript}
	b := models.Project{Name: "b", Language: models.LangJavaScript}
	require.NoError(t, store.WriteEvents(layout.EventsFile("a"), []models.CanonicalEvent{ev("a", "r1", "x.js", "S103")}))
	require.NoError(t, store.WriteEvents(layout.EventsFile("b"), []models.CanonicalEvent{ev("b", "r1", "y.js", "S107"), ev("b", "r1", "y.js", "S107")}))

	events, err := Merge([]models.Project{a, b}, StoreLoader(layout))
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Project)

	c := models.Project{Name: "c", Language: models.LangTypeScript}
	_, err = Merge([]models.Project{a, c}, StoreLoader(layout))
	var missing *MissingDataError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "c", missing.Project)
}

func TestMerge_LoaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Merge([]models.Project{{Name: "a"}}, func(models.Project) ([]models.CanonicalEvent, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPivot_KeySpaceIsListing(t *testing.T) {
	files := []models.FileKey{
		key("p", "r2", "b.js"),
		key("p", "r1", "b.js"),
		key("p", "r1", "a.js"),
		key("p", "r1", "a.js"), // duplicate listing entry
	}
	events := []models.CanonicalEvent{
		ev("p", "r1", "a.js", "S1541"),
		ev("p", "r1", "a.js", "S1541"),
		ev("p", "r1", "a.js", "S103"),
		ev("p", "r2", "b.js", "S107"),
		ev("p", "r2", "gone.js", "S107"), // orphan
	}
	order := RevisionOrder{}
	order.Add("p", []models.Revision{{Hash: "r1"}, {Hash: "r2"}})

	table := Pivot(events, files, order)

	assert.Equal(t, []string{"S103", "S107", "S1541"}, table.Rules)
	assert.Equal(t, 1, table.Orphans)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, key("p", "r1", "a.js"), table.Rows[0].Key())
	assert.Equal(t, key("p", "r1", "b.js"), table.Rows[1].Key())
	assert.Equal(t, key("p", "r2", "b.js"), table.Rows[2].Key())

	assert.Equal(t, 2, table.Rows[0].Count("S1541"))
	assert.Equal(t, 1, table.Rows[0].Count("S103"))
	assert.Equal(t, 0, table.Rows[1].Total())

	i, ok := table.Index(key("p", "r2", "b.js"))
	require.True(t, ok)
	assert.Equal(t, 2, i)
	assert.False(t, table.Has(key("p", "r2", "gone.js")))
}

func TestPivot_CountsMatchEventMultiplicity(t *testing.T) {
	var files []models.FileKey
	var events []models.CanonicalEvent
	for _, f := range []string{"a.js", "b.js", "c.js"} {
		files = append(files, key("p", "r1", f))
	}
	for i := 0; i < 7; i++ {
		events = append(events, ev("p", "r1", files[i%3].File, []string{"S103", "S109"}[i%2]))
	}

	table := Pivot(events, files, nil)
	total := 0
	for _, r := range table.Rows {
		total += r.Total()
	}
	assert.Equal(t, len(events), total+table.Orphans)
	assert.Equal(t, 7, table.RevisionTotal("p", "r1"))
}

func TestTable_ProjectViews(t *testing.T) {
	table := NewTable([]string{"S103"}, []models.SmellRow{
		{Project: "a", Revision: "r1", File: "x.js", Counts: map[string]int{"S103": 2}},
		{Project: "b", Revision: "r1", File: "y.js", Counts: map[string]int{"S103": 1}},
		{Project: "a", Revision: "r2", File: "x.js", Counts: map[string]int{"S103": 3}},
	})

	assert.Len(t, table.RowsFor("a"), 2)
	assert.Empty(t, table.RowsFor("zzz"))
	assert.Equal(t, map[string]map[string]int{"a": {"S103": 5}, "b": {"S103": 1}}, table.ProjectTotals())

	row, ok := table.Row(key("a", "r2", "x.js"))
	require.True(t, ok)
	assert.Equal(t, 3, row.Count("S103"))
}
