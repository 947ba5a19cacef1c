// Package archive writes health reports to dated directories so that
// operators can inspect past cycles and downstream loaders can pick
// them up. The core itself never reads these files back during
// collection.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ispmon/ispmon/monitor"
	"github.com/ispmon/ispmon/schema"
)

// Writer stores one report per file under root/yyyy/mm/dd/.
type Writer struct {
	root string
}

// NewWriter prepares the archive root directory.
func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Writer{root: root}, nil
}

// Write stores the report in its archival row form and returns the
// file path.
func (w *Writer) Write(report monitor.Report) (string, error) {
	dir := filepath.Join(w.root, report.Time.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	row := schema.FromReport(report)
	data, err := json.Marshal(row)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.json", report.Time.Format("20060102T150405Z"), report.ID)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads one archived report row.
func Read(path string) (schema.ReportRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.ReportRow{}, err
	}
	var row schema.ReportRow
	if err := json.Unmarshal(data, &row); err != nil {
		return schema.ReportRow{}, fmt.Errorf("%s: %v", path, err)
	}
	return row, nil
}

// DayDir returns the directory reports written at t land in.
func (w *Writer) DayDir(t time.Time) string {
	return filepath.Join(w.root, t.Format("2006/01/02"))
}
