// Package report writes batch redaction summaries to spreadsheets.
package report

import (
	"fmt"
	"strings"
	"time"

	"redactor/internal/pipeline"
)

// Status values of a report row.
const (
	StatusRedacted = "redacted"
	StatusClean    = "clean"
	StatusFailed   = "failed"
)

// Headers are the column titles shared by every report format.
var Headers = []string{
	"File", "Status", "Entities", "Types", "Method", "Engines",
	"OCR Score", "Degradation", "Duration (s)", "Masked File", "Error", "Processed At",
}

// Row represents one processed file.
type Row struct {
	File        string
	Status      string
	Entities    int
	Types       string
	Method      string
	Engines     string
	OCRScore    float64
	Degradation string
	Duration    float64
	MaskedFile  string
	Error       string
	ProcessedAt string
}

// NewRow builds a report row from a pipeline result. result may be nil when
// err is set.
func NewRow(file string, result *pipeline.Result, maskedFile string, err error, processedAt time.Time) Row {
	row := Row{
		File:        file,
		ProcessedAt: processedAt.Format("2006-01-02 15:04:05"),
	}
	if err != nil || result == nil {
		row.Status = StatusFailed
		if err != nil {
			row.Error = err.Error()
		}
		return row
	}

	stats := result.Statistics
	row.Status = StatusClean
	if stats.EntityCount > 0 {
		row.Status = StatusRedacted
	}
	row.Entities = stats.EntityCount
	row.Types = formatCounts(stats)
	row.Method = string(stats.DetectionMethod)
	row.Engines = strings.Join(stats.EnginesUsed, ", ")
	row.OCRScore = stats.OCRScore
	row.Degradation = stats.Degradation
	row.Duration = stats.TotalDuration.Seconds()
	row.MaskedFile = maskedFile
	return row
}

// formatCounts renders "type:n" pairs in the sorted type order of stats.
func formatCounts(stats pipeline.Statistics) string {
	parts := make([]string, 0, len(stats.EntityTypes))
	for _, t := range stats.EntityTypes {
		parts = append(parts, fmt.Sprintf("%s:%d", t, stats.CountsByType[t]))
	}
	return strings.Join(parts, ", ")
}

// Values returns the row in Headers order.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.File,        // A
		r.Status,      // B
		r.Entities,    // C
		r.Types,       // D
		r.Method,      // E
		r.Engines,     // F
		r.OCRScore,    // G
		r.Degradation, // H
		r.Duration,    // I
		r.MaskedFile,  // J
		r.Error,       // K
		r.ProcessedAt, // L
	}
}
