// Package aggregate computes per-language rollups over the pivoted smell
// matrix and the delta records.
package aggregate

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/smelltrend/pkg/models"
	"github.com/panbanda/smelltrend/pkg/smelltable"
	"github.com/panbanda/smelltrend/pkg/stats"
)

// DefaultEpsilon is the minimum pair support reported by Cooccurrence.
const DefaultEpsilon = 1e-9

// PreconditionError reports an internal invariant violated by a computed result.
type PreconditionError struct {
	Report string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Report, e.Detail)
}

// Dataset is everything the reports read.
type Dataset struct {
	Projects   []models.Project
	Table      *smelltable.Table
	FileDeltas []models.DeltaRecord
	AppDeltas  []models.DeltaRecord
	Window     int
}

// RuleValues maps rule code to a value, in the order of Rules.
type RuleValues struct {
	Rules  []string           `json:"rules"`
	Values map[string]float64 `json:"values"`
}

// Get returns the value of rule, 0 when absent.
func (v RuleValues) Get(rule string) float64 {
	return v.Values[rule]
}

// Sum adds all values.
func (v RuleValues) Sum() float64 {
	s := 0.0
	for _, x := range v.Values {
		s += x
	}
	return s
}

func (d *Dataset) newValues() RuleValues {
	v := RuleValues{Rules: append([]string(nil), d.Table.Rules...), Values: make(map[string]float64, len(d.Table.Rules))}
	for _, r := range d.Table.Rules {
		v.Values[r] = 0
	}
	return v
}

func (d *Dataset) projectSet(lang models.Language) map[string]struct{} {
	set := map[string]struct{}{}
	for _, p := range models.FilterByLanguage(d.Projects, lang) {
		set[p.Name] = struct{}{}
	}
	return set
}

// rows returns the matrix rows of projects declared with lang.
func (d *Dataset) rows(lang models.Language) []models.SmellRow {
	projects := d.projectSet(lang)
	var out []models.SmellRow
	for _, r := range d.Table.Rows {
		if _, ok := projects[r.Project]; ok {
			out = append(out, r)
		}
	}
	return out
}

// OverallDistribution returns each rule's share of all occurrences across the
// language's projects. The values sum to 1 unless there are no occurrences,
// in which case they are all 0.
func (d *Dataset) OverallDistribution(lang models.Language) RuleValues {
	v := d.newValues()
	total := 0
	for _, r := range d.rows(lang) {
		for rule, c := range r.Counts {
			v.Values[rule] += float64(c)
			total += c
		}
	}
	if total == 0 {
		return v
	}
	for rule := range v.Values {
		v.Values[rule] /= float64(total)
	}
	return v
}

// AppFrequency returns the fraction of the language's configured projects with
// at least one occurrence of each rule.
func (d *Dataset) AppFrequency(lang models.Language) RuleValues {
	v := d.newValues()
	projects := models.FilterByLanguage(d.Projects, lang)
	if len(projects) == 0 {
		return v
	}
	totals := d.Table.ProjectTotals()
	for _, p := range projects {
		for rule, c := range totals[p.Name] {
			if c > 0 {
				v.Values[rule]++
			}
		}
	}
	for rule := range v.Values {
		v.Values[rule] /= float64(len(projects))
	}
	return v
}

// FileFrequency returns the fraction of the language's file-revision rows
// with at least one occurrence of each rule.
func (d *Dataset) FileFrequency(lang models.Language) RuleValues {
	v := d.newValues()
	rows := d.rows(lang)
	if len(rows) == 0 {
		return v
	}
	for _, r := range rows {
		for rule, c := range r.Counts {
			if c > 0 {
				v.Values[rule]++
			}
		}
	}
	for rule := range v.Values {
		v.Values[rule] /= float64(len(rows))
	}
	return v
}

// Matrix is a square rule by rule matrix.
type Matrix struct {
	Rules  []string    `json:"rules"`
	Values [][]float64 `json:"values"`
}

func newMatrix(rules []string) *Matrix {
	m := &Matrix{Rules: append([]string(nil), rules...), Values: make([][]float64, len(rules))}
	for i := range m.Values {
		m.Values[i] = make([]float64, len(rules))
	}
	return m
}

func (m *Matrix) index(rule string) int {
	for i, r := range m.Rules {
		if r == rule {
			return i
		}
	}
	return -1
}

// At returns the value for a rule pair, 0 for unknown rules.
func (m *Matrix) At(a, b string) float64 {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return 0
	}
	return m.Values[i][j]
}

// CheckSymmetric returns a PreconditionError naming the first asymmetric pair.
func (m *Matrix) CheckSymmetric() error {
	for i := range m.Rules {
		for j := i + 1; j < len(m.Rules); j++ {
			if m.Values[i][j] != m.Values[j][i] {
				return &PreconditionError{
					Report: "cooccurrence",
					Detail: fmt.Sprintf("M[%s][%s]=%g but M[%s][%s]=%g", m.Rules[i], m.Rules[j], m.Values[i][j], m.Rules[j], m.Rules[i], m.Values[j][i]),
				}
			}
		}
	}
	return nil
}

// rowHasCooccurrence reports whether rule i pairs with any other rule.
func (m *Matrix) rowHasCooccurrence(i int) bool {
	for j, x := range m.Values[i] {
		if j != i && x != 0 {
			return true
		}
	}
	return false
}

// Cooccurrence computes the support of every rule pair over the language's
// file-revision rows: the fraction of rows where both rules are present.
// Supports below epsilon are reported as 0 and the diagonal is always 0.
func (d *Dataset) Cooccurrence(lang models.Language, epsilon float64) (*Matrix, error) {
	rows := d.rows(lang)
	m := newMatrix(d.Table.Rules)
	if len(rows) == 0 {
		return m, nil
	}

	present := make([]*roaring.Bitmap, len(m.Rules))
	for i, rule := range m.Rules {
		bm := roaring.New()
		for idx, r := range rows {
			if r.Counts[rule] > 0 {
				bm.Add(uint32(idx))
			}
		}
		present[i] = bm
	}

	n := float64(len(rows))
	for i := range m.Rules {
		if present[i].IsEmpty() {
			continue
		}
		for j := i + 1; j < len(m.Rules); j++ {
			support := float64(present[i].AndCardinality(present[j])) / n
			if support < epsilon {
				support = 0
			}
			m.Values[i][j] = support
			m.Values[j][i] = support
		}
	}

	if err := m.CheckSymmetric(); err != nil {
		return nil, err
	}
	return m, nil
}

// Prune drops rules that co-occur with no other rule in any of the matrices.
// All matrices must share the same rule order.
func Prune(matrices ...*Matrix) []*Matrix {
	if len(matrices) == 0 {
		return nil
	}
	var keep []int
	for i := range matrices[0].Rules {
		for _, m := range matrices {
			if m.rowHasCooccurrence(i) {
				keep = append(keep, i)
				break
			}
		}
	}

	out := make([]*Matrix, len(matrices))
	for k, m := range matrices {
		rules := make([]string, len(keep))
		for a, i := range keep {
			rules[a] = m.Rules[i]
		}
		p := newMatrix(rules)
		for a, i := range keep {
			for b, j := range keep {
				p.Values[a][b] = m.Values[i][j]
			}
		}
		out[k] = p
	}
	return out
}

// DeltaSummary is the five-number summary of each delta counter.
type DeltaSummary struct {
	Language  models.Language   `json:"language"`
	Scale     models.DeltaScale `json:"scale"`
	Total     int               `json:"total"`
	Complete  int               `json:"complete"`
	Steady    stats.Summary     `json:"steady"`
	Increased stats.Summary     `json:"increased"`
	Decreased stats.Summary     `json:"decreased"`
}

// DeltaFiveNumberSummary summarizes the complete delta records of the
// language's projects at the given scale.
func (d *Dataset) DeltaFiveNumberSummary(lang models.Language, scale models.DeltaScale) DeltaSummary {
	records := d.FileDeltas
	if scale == models.ScaleApp {
		records = d.AppDeltas
	}
	projects := d.projectSet(lang)

	out := DeltaSummary{Language: lang, Scale: scale}
	var steady, inc, dec []int
	for _, r := range records {
		if _, ok := projects[r.Project]; !ok {
			continue
		}
		out.Total++
		if !r.Complete(d.Window) {
			continue
		}
		out.Complete++
		steady = append(steady, r.Steady)
		inc = append(inc, r.Increased)
		dec = append(dec, r.Decreased)
	}
	out.Steady = stats.SummarizeInts(steady)
	out.Increased = stats.SummarizeInts(inc)
	out.Decreased = stats.SummarizeInts(dec)
	return out
}
