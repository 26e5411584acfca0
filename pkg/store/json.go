package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/panbanda/smelltrend/pkg/models"
)

// WriteFileAtomic writes data to a temp file in the target directory and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// WriteJSON atomically writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ReadRevisions loads a cached revision list and assigns chronological positions.
func ReadRevisions(path string) ([]models.Revision, error) {
	var revs []models.Revision
	if err := ReadJSON(path, &revs); err != nil {
		return nil, err
	}
	models.Renumber(revs)
	return revs, nil
}

// WriteRevisions persists an oldest-first revision list.
func WriteRevisions(path string, revs []models.Revision) error {
	if revs == nil {
		revs = []models.Revision{}
	}
	return WriteJSON(path, revs)
}

// WriteReport persists a raw issue report verbatim.
func WriteReport(path string, report models.RawIssueReport) error {
	if report == nil {
		report = models.RawIssueReport{}
	}
	return WriteJSON(path, report)
}
