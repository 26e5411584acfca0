package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/hosting"
	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/stats"
)

// Percent formats a fraction as a percentage with one decimal.
func Percent(x float64) string {
	return strconv.FormatFloat(stats.Round(x*100, 1), 'f', 1, 64) + "%"
}

// RatioPercent is Percent but renders a zero share as "-".
func RatioPercent(x float64) string {
	if stats.Round(x*100, 1) == 0 {
		return "-"
	}
	return Percent(x)
}

// Compact renders a count in short SI form (950, 1.2k, 62k).
func Compact(n int) string {
	return strings.ReplaceAll(humanize.SIWithDigits(float64(n), 1, ""), " ", "")
}

// RuleTable renders per-language rule values as percentages, one row per rule.
func RuleTable(title string, langs []models.Language, values map[models.Language]RuleValues) *output.Table {
	headers := []string{"Smell"}
	for _, l := range langs {
		headers = append(headers, strings.ToUpper(l.Short()))
	}

	var rules []string
	seen := map[string]struct{}{}
	for _, l := range langs {
		for _, r := range values[l].Rules {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				rules = append(rules, r)
			}
		}
	}
	models.SortRules(rules)

	data := map[string]map[string]float64{}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		row := []string{models.RuleLabel(r)}
		for _, l := range langs {
			v := values[l].Get(r)
			row = append(row, Percent(v))
			if data[string(l)] == nil {
				data[string(l)] = map[string]float64{}
			}
			data[string(l)][r] = v
		}
		rows = append(rows, row)
	}
	return output.NewTable(title, headers, rows, nil, data)
}

// MatrixTable renders a co-occurrence matrix with short rule labels.
func MatrixTable(title string, m *Matrix) *output.Table {
	headers := []string{""}
	for _, r := range m.Rules {
		headers = append(headers, models.RuleShortLabel(r))
	}
	rows := make([][]string, len(m.Rules))
	for i, r := range m.Rules {
		row := []string{models.RuleShortLabel(r)}
		for _, v := range m.Values[i] {
			row = append(row, strconv.FormatFloat(v, 'f', 3, 64))
		}
		rows[i] = row
	}
	return output.NewTable(title, headers, rows, nil, m)
}

// DeltaTable renders a delta summary with one row per counter.
func DeltaTable(title string, s DeltaSummary) *output.Table {
	headers := []string{"Delta", "Min", "Q1", "Median", "Mean", "Q3", "Max"}
	format := func(x float64) string {
		return strconv.FormatFloat(stats.Round(x, 1), 'f', 1, 64)
	}
	row := func(name string, sum stats.Summary) []string {
		return []string{name, format(sum.Min), format(sum.Q1), format(sum.Median), format(sum.Mean), format(sum.Q3), format(sum.Max)}
	}
	rows := [][]string{
		row("steady", s.Steady),
		row("increased", s.Increased),
		row("decreased", s.Decreased),
	}
	footer := []string{fmt.Sprintf("%d/%d complete", s.Complete, s.Total), "", "", "", "", "", ""}
	return output.NewTable(title, headers, rows, footer, s)
}

// RepoStatsTable renders the hosting metadata of the language's projects,
// most starred first.
func RepoStatsTable(lang models.Language, all []*hosting.RepoStats) *output.Table {
	var selected []*hosting.RepoStats
	for _, s := range all {
		if s != nil && s.Project.Language == lang {
			selected = append(selected, s)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Stars > selected[j].Stars
	})

	headers := []string{"Project", "Created", "Stars", "Forks", "Contributors", "Commits", "Releases", "JS", "TS"}
	rows := make([][]string, 0, len(selected))
	for _, s := range selected {
		rows = append(rows, []string{
			s.Project.Name,
			strconv.Itoa(s.CreatedAt.Year()),
			Compact(s.Stars),
			Compact(s.Forks),
			Compact(s.Contributors),
			Compact(s.Commits),
			strconv.Itoa(s.Releases),
			RatioPercent(s.LanguageRatio(hosting.LanguageJavaScript)),
			RatioPercent(s.LanguageRatio(hosting.LanguageTypeScript)),
		})
	}
	title := fmt.Sprintf("Repositories (%s)", strings.ToUpper(lang.Short()))
	return output.NewTable(title, headers, rows, nil, selected)
}
