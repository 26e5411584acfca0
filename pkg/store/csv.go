package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/panbanda/smelltrend/pkg/models"
)

var (
	eventsHeader = []string{"project", "commit_hash", "file_name", "rule", "type", "severity", "tags"}
	filesHeader  = []string{"project", "commit_hash", "file_name"}
	keyHeader    = []string{"project", "commit_hash", "file_name"}
	fileDeltaHdr = []string{"project", "file_name", "steady", "increased", "decreased"}
	appDeltaHdr  = []string{"project", "steady", "increased", "decreased"}
)

// HeaderError reports a CSV file whose header does not match the expected columns.
type HeaderError struct {
	Path string
	Got  []string
	Want []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s: unexpected header %v (want %v)", e.Path, e.Got, e.Want)
}

func writeCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return WriteFileAtomic(path, buf.Bytes())
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read %s: missing header", path)
	}
	return records[0], records[1:], nil
}

func checkHeader(path string, got, want []string) error {
	if len(got) < len(want) {
		return &HeaderError{Path: path, Got: got, Want: want}
	}
	for i := range want {
		if got[i] != want[i] {
			return &HeaderError{Path: path, Got: got, Want: want}
		}
	}
	return nil
}

// WriteEvents persists canonical events. Tags are stored as a JSON array cell.
func WriteEvents(path string, events []models.CanonicalEvent) error {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		tagCell, err := json.Marshal(tags)
		if err != nil {
			return err
		}
		rows = append(rows, []string{e.Project, e.Revision, e.File, e.Rule, e.Type, string(e.Severity), string(tagCell)})
	}
	return writeCSV(path, eventsHeader, rows)
}

// ReadEvents loads events written by WriteEvents.
func ReadEvents(path string) ([]models.CanonicalEvent, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(path, header, eventsHeader); err != nil {
		return nil, err
	}

	events := make([]models.CanonicalEvent, 0, len(rows))
	for i, row := range rows {
		var tags []string
		if row[6] != "" {
			if err := json.Unmarshal([]byte(row[6]), &tags); err != nil {
				return nil, fmt.Errorf("%s line %d: tags: %w", path, i+2, err)
			}
		}
		events = append(events, models.CanonicalEvent{
			Project:  row[0],
			Revision: row[1],
			File:     row[2],
			Rule:     row[3],
			Type:     row[4],
			Severity: models.Severity(row[5]),
			Tags:     tags,
		})
	}
	return events, nil
}

// WriteFiles persists a valid-file listing.
func WriteFiles(path string, files []models.FileKey) error {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{f.Project, f.Revision, f.File})
	}
	return writeCSV(path, filesHeader, rows)
}

// ReadFiles loads a valid-file listing.
func ReadFiles(path string) ([]models.FileKey, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(path, header, filesHeader); err != nil {
		return nil, err
	}
	files := make([]models.FileKey, 0, len(rows))
	for _, row := range rows {
		files = append(files, models.FileKey{Project: row[0], Revision: row[1], File: row[2]})
	}
	return files, nil
}

// WriteSmells persists the pivoted smell matrix with one column per rule.
func WriteSmells(path string, rules []string, rows []models.SmellRow) error {
	header := append(append([]string{}, keyHeader...), rules...)
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		rec := []string{r.Project, r.Revision, r.File}
		for _, rule := range rules {
			rec = append(rec, strconv.Itoa(r.Counts[rule]))
		}
		out = append(out, rec)
	}
	return writeCSV(path, header, out)
}

// ReadSmells loads a matrix written by WriteSmells and returns its rule columns and rows.
func ReadSmells(path string) ([]string, []models.SmellRow, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	if err := checkHeader(path, header, keyHeader); err != nil {
		return nil, nil, err
	}
	rules := append([]string{}, header[len(keyHeader):]...)

	out := make([]models.SmellRow, 0, len(rows))
	for i, row := range rows {
		counts := make(map[string]int, len(rules))
		for j, rule := range rules {
			n, err := strconv.Atoi(row[len(keyHeader)+j])
			if err != nil {
				return nil, nil, fmt.Errorf("%s line %d column %s: %w", path, i+2, rule, err)
			}
			if n != 0 {
				counts[rule] = n
			}
		}
		out = append(out, models.SmellRow{Project: row[0], Revision: row[1], File: row[2], Counts: counts})
	}
	return rules, out, nil
}

// WriteDeltas persists delta records at the given scale.
func WriteDeltas(path string, scale models.DeltaScale, records []models.DeltaRecord) error {
	header := fileDeltaHdr
	if scale == models.ScaleApp {
		header = appDeltaHdr
	}
	rows := make([][]string, 0, len(records))
	for _, d := range records {
		counts := []string{strconv.Itoa(d.Steady), strconv.Itoa(d.Increased), strconv.Itoa(d.Decreased)}
		if scale == models.ScaleApp {
			rows = append(rows, append([]string{d.Project}, counts...))
		} else {
			rows = append(rows, append([]string{d.Project, d.File}, counts...))
		}
	}
	return writeCSV(path, header, rows)
}

// ReadDeltas loads delta records written by WriteDeltas.
func ReadDeltas(path string, scale models.DeltaScale) ([]models.DeltaRecord, error) {
	want := fileDeltaHdr
	if scale == models.ScaleApp {
		want = appDeltaHdr
	}
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(path, header, want); err != nil {
		return nil, err
	}

	records := make([]models.DeltaRecord, 0, len(rows))
	for i, row := range rows {
		d := models.DeltaRecord{Project: row[0]}
		off := 1
		if scale != models.ScaleApp {
			d.File = row[1]
			off = 2
		}
		vals := make([]int, 3)
		for j := range vals {
			n, err := strconv.Atoi(row[off+j])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
			}
			vals[j] = n
		}
		d.Steady, d.Increased, d.Decreased = vals[0], vals[1], vals[2]
		records = append(records, d)
	}
	return records, nil
}
